package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/edufleet/central-api/internal/models"
	"github.com/edufleet/central-api/internal/telemetry"
)

// TelemetrySource is one external siteinfo database.
type TelemetrySource interface {
	Name() string
	Fetch(ctx context.Context) (telemetry.Batch, error)
}

// siteResolver matches a record to its catalog site, creating rows lazily.
type siteResolver interface {
	Resolve(ctx context.Context, rec telemetry.Record) (*models.Site, error)
}

// snapshotWriter appends one snapshot per resolved record.
type snapshotWriter interface {
	Write(ctx context.Context, site *models.Site, rec telemetry.Record, runTS time.Time) (*models.SiteDetail, error)
}

// IngestReport summarises one ingest run for operators: how many records
// made it into the catalog, how many were dropped, and which sources failed
// outright. Committed snapshots always stand, even for runs that abort.
type IngestReport struct {
	RunID          string                    `json:"run_id"`
	StartedAt      time.Time                 `json:"started_at"`
	Duration       time.Duration             `json:"duration"`
	Processed      int                       `json:"processed"`
	Skipped        int                       `json:"skipped"`
	SourceFailures []telemetry.SourceFailure `json:"source_failures,omitempty"`
}

// IngestService drives the full pull-reconcile-snapshot pipeline. Sources
// are ingested concurrently, one worker per source; records within one
// source run sequentially in report order.
type IngestService struct {
	sources    []TelemetrySource
	resolver   siteResolver
	snapshots  snapshotWriter
	cache      *CacheService
	metrics    *MetricsService
	logger     *zap.Logger
	maxWorkers int
	now        func() time.Time
}

// IngestServiceParams groups constructor dependencies.
type IngestServiceParams struct {
	Sources    []TelemetrySource
	Resolver   siteResolver
	Snapshots  snapshotWriter
	Cache      *CacheService
	Metrics    *MetricsService
	Logger     *zap.Logger
	MaxWorkers int
}

// NewIngestService constructs an IngestService.
func NewIngestService(params IngestServiceParams) *IngestService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxWorkers := params.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	return &IngestService{
		sources:    params.Sources,
		resolver:   params.Resolver,
		snapshots:  params.Snapshots,
		cache:      params.Cache,
		metrics:    params.Metrics,
		logger:     logger,
		maxWorkers: maxWorkers,
		now:        time.Now,
	}
}

// Run executes one ingest run across every configured source. A source that
// cannot be reached is recorded and skipped; a catalog store failure aborts
// the remaining writes of the run. Either way the report reflects everything
// that actually committed.
func (s *IngestService) Run(ctx context.Context) (*IngestReport, error) {
	report := &IngestReport{
		RunID:     uuid.NewString(),
		StartedAt: s.now().UTC(),
	}
	// One timestamp for the whole run so "newest snapshot per site" queries
	// compare snapshots from the same run as equals.
	runTS := report.StartedAt

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.maxWorkers)

	for _, source := range s.sources {
		source := source
		group.Go(func() error {
			batch, err := source.Fetch(groupCtx)

			mu.Lock()
			report.Skipped += batch.Skipped
			mu.Unlock()

			if err != nil {
				// Unreachable or failing sources never abort the run;
				// whatever rows were pulled before the failure still count.
				s.logger.Warn("telemetry source failed",
					zap.String("run_id", report.RunID),
					zap.String("source", source.Name()),
					zap.Error(err))
				mu.Lock()
				report.SourceFailures = append(report.SourceFailures, telemetry.SourceFailure{
					Source: source.Name(),
					Reason: err.Error(),
				})
				mu.Unlock()
			}

			for _, rec := range batch.Records {
				if err := s.ingestRecord(groupCtx, rec, runTS); err != nil {
					// Catalog store failure: fatal for the rest of the run.
					return err
				}
				mu.Lock()
				report.Processed++
				mu.Unlock()
			}
			return nil
		})
	}

	runErr := group.Wait()
	report.Duration = s.now().UTC().Sub(report.StartedAt)

	s.metrics.ObserveIngestRun(report.Processed, report.Skipped, len(report.SourceFailures), report.Duration)

	if report.Processed > 0 {
		// New snapshots invalidate every cached rollup.
		if err := s.cache.Invalidate(ctx, "rollup:*"); err != nil {
			s.logger.Warn("rollup cache invalidation failed", zap.String("run_id", report.RunID), zap.Error(err))
		}
	}

	s.logger.Info("ingest run finished",
		zap.String("run_id", report.RunID),
		zap.Int("processed", report.Processed),
		zap.Int("skipped", report.Skipped),
		zap.Int("source_failures", len(report.SourceFailures)),
		zap.Duration("duration", report.Duration))

	return report, runErr
}

func (s *IngestService) ingestRecord(ctx context.Context, rec telemetry.Record, runTS time.Time) error {
	site, err := s.resolver.Resolve(ctx, rec)
	if err != nil {
		return err
	}
	_, err = s.snapshots.Write(ctx, site, rec, runTS)
	return err
}
