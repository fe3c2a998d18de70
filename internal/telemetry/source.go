package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/edufleet/central-api/pkg/database"
)

// discoverQuery finds every schema on a source server carrying a siteinfo
// table. Moodle prefixes its tables, so both spellings are checked.
const discoverQuery = `SELECT table_schema, table_name FROM information_schema.tables ` +
	`WHERE table_name = 'siteinfo' OR table_name = 'mdl_siteinfo'`

// Source pulls raw site reports from one external telemetry database.
type Source struct {
	dsn     string
	timeout time.Duration
	logger  *zap.Logger

	// open is swappable for tests.
	open func(ctx context.Context, dsn string) (*sqlx.DB, error)
}

// NewSource builds a source for the given MySQL DSN.
func NewSource(dsn string, timeout time.Duration, logger *zap.Logger) *Source {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{dsn: dsn, timeout: timeout, logger: logger, open: database.OpenTelemetrySource}
}

// Name returns the DSN with credentials stripped, for logs and run reports.
func (s *Source) Name() string {
	if at := strings.LastIndex(s.dsn, "@"); at >= 0 {
		return s.dsn[at+1:]
	}
	return s.dsn
}

// Fetch discovers every siteinfo table on the source and returns the
// normalized rows. The entire pull is bounded by the source timeout so one
// hung server cannot stall a concurrent ingest run.
func (s *Source) Fetch(ctx context.Context) (Batch, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	db, err := s.open(ctx, s.dsn)
	if err != nil {
		return Batch{}, fmt.Errorf("connect %s: %w", s.Name(), err)
	}
	defer db.Close()

	type tableRef struct {
		Schema string `db:"table_schema"`
		Name   string `db:"table_name"`
	}
	var tables []tableRef
	if err := db.SelectContext(ctx, &tables, discoverQuery); err != nil {
		return Batch{}, fmt.Errorf("discover siteinfo tables on %s: %w", s.Name(), err)
	}

	batch := Batch{}
	for _, table := range tables {
		rows, err := db.QueryxContext(ctx, fmt.Sprintf("SELECT * FROM `%s`.`%s`", table.Schema, table.Name))
		if err != nil {
			return batch, fmt.Errorf("query %s.%s on %s: %w", table.Schema, table.Name, s.Name(), err)
		}

		for rows.Next() {
			raw := map[string]interface{}{}
			if err := rows.MapScan(raw); err != nil {
				_ = rows.Close()
				return batch, fmt.Errorf("scan %s.%s on %s: %w", table.Schema, table.Name, s.Name(), err)
			}

			rec, err := Normalize(raw)
			if err != nil {
				batch.Skipped++
				s.logger.Warn("dropping malformed siteinfo row",
					zap.String("source", s.Name()),
					zap.String("table", table.Schema+"."+table.Name),
					zap.Error(err))
				continue
			}
			batch.Records = append(batch.Records, rec)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return batch, fmt.Errorf("iterate %s.%s on %s: %w", table.Schema, table.Name, s.Name(), err)
		}
		_ = rows.Close()
	}

	return batch, nil
}
