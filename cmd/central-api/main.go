package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/edufleet/central-api/internal/handler"
	"github.com/edufleet/central-api/internal/middleware"
	"github.com/edufleet/central-api/internal/repository"
	"github.com/edufleet/central-api/internal/service"
	"github.com/edufleet/central-api/internal/telemetry"
	"github.com/edufleet/central-api/pkg/cache"
	"github.com/edufleet/central-api/pkg/config"
	"github.com/edufleet/central-api/pkg/database"
	"github.com/edufleet/central-api/pkg/jobs"
	"github.com/edufleet/central-api/pkg/logger"
	corsmiddleware "github.com/edufleet/central-api/pkg/middleware/cors"
	reqidmiddleware "github.com/edufleet/central-api/pkg/middleware/requestid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect catalog store", "error", err)
	}
	defer db.Close()

	// Repositories.
	districtRepo := repository.NewDistrictRepository(db)
	schoolRepo := repository.NewSchoolRepository(db)
	siteRepo := repository.NewSiteRepository(db)
	detailRepo := repository.NewSiteDetailRepository(db)
	courseRepo := repository.NewCourseRepository(db)

	metricsSvc := service.NewMetricsService()

	// Rollup cache is feature-flagged; without Redis the service degrades to
	// recompute-per-call, which is the documented baseline anyway.
	var cacheSvc *service.CacheService
	if cfg.Rollups.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect redis", "error", err)
		}
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		defer cacheRepo.Close() //nolint:errcheck
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Rollups.CacheTTL, logr, true)
	}

	// Telemetry sources, one per configured DSN.
	sources := make([]*telemetry.Source, 0, len(cfg.Telemetry.Sources))
	for _, dsn := range cfg.Telemetry.Sources {
		sources = append(sources, telemetry.NewSource(dsn, cfg.Telemetry.QueryTimeout, logr))
	}

	reconciler := service.NewReconcileService(schoolRepo, siteRepo, logr)
	snapshots := service.NewSnapshotWriter(detailRepo)

	ingestSources := make([]service.TelemetrySource, len(sources))
	for i, src := range sources {
		ingestSources[i] = src
	}
	ingestSvc := service.NewIngestService(service.IngestServiceParams{
		Sources:    ingestSources,
		Resolver:   reconciler,
		Snapshots:  snapshots,
		Cache:      cacheSvc,
		Metrics:    metricsSvc,
		Logger:     logr,
		MaxWorkers: cfg.Telemetry.MaxConcurrent,
	})

	rollupSvc := service.NewRollupService(service.RollupServiceParams{
		Districts: districtRepo,
		Schools:   schoolRepo,
		Sites:     siteRepo,
		Snapshots: detailRepo,
		Cache:     cacheSvc,
		Metrics:   metricsSvc,
		Logger:    logr,
	})
	reportSvc := service.NewReportService(rollupSvc)
	catalogSvc := service.NewCatalogService(districtRepo, schoolRepo, siteRepo, logr)
	siteSvc := service.NewSiteService(siteRepo, detailRepo, logr)

	// Install queue first so the course service can enqueue onto it; its
	// handler closes over the service, so wiring happens in two steps.
	var courseSvc *service.CourseService
	installQueue := jobs.NewQueue("course-install", func(ctx context.Context, job jobs.Job) error {
		return courseSvc.HandleInstallJob(ctx, job)
	}, jobs.QueueConfig{
		Workers:    cfg.Ingest.Workers,
		MaxRetries: cfg.Ingest.MaxRetries,
		RetryDelay: cfg.Ingest.RetryDelay,
		Logger:     logr,
	})
	courseSvc = service.NewCourseService(service.CourseServiceParams{
		Courses:        courseRepo,
		Sites:          siteRepo,
		Queue:          installQueue,
		PackageDir:     cfg.Courses.PackageDir,
		InstallPath:    cfg.Courses.InstallPath,
		InstallTimeout: cfg.Courses.InstallTimeout,
		Logger:         logr,
	})

	ingestQueue := jobs.NewQueue("ingest", func(ctx context.Context, job jobs.Job) error {
		report, err := ingestSvc.Run(ctx)
		if report != nil {
			logr.Info("queued ingest run finished",
				zap.String("run_id", report.RunID),
				zap.Int("processed", report.Processed),
				zap.Int("skipped", report.Skipped))
		}
		return err
	}, jobs.QueueConfig{
		Workers:    1,
		MaxRetries: cfg.Ingest.MaxRetries,
		RetryDelay: cfg.Ingest.RetryDelay,
		Logger:     logr,
	})

	installQueue.Start(ctx)
	defer installQueue.Stop()
	ingestQueue.Start(ctx)
	defer ingestQueue.Stop()

	// Handlers.
	ingestHandler := handler.NewIngestHandler(ingestSvc, ingestQueue)
	rollupHandler := handler.NewRollupHandler(rollupSvc, reportSvc)
	catalogHandler := handler.NewCatalogHandler(catalogSvc)
	siteHandler := handler.NewSiteHandler(siteSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "catalog store unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/ingest/runs", ingestHandler.Trigger)

		api.GET("/rollups/fleet", rollupHandler.Fleet)
		api.GET("/rollups/districts/:id", rollupHandler.District)
		api.GET("/rollups/schools/:id", rollupHandler.School)
		api.GET("/rollups/status", rollupHandler.Status)
		api.GET("/rollups/export", rollupHandler.Export)

		api.GET("/districts", catalogHandler.Districts)
		api.GET("/districts/:id/schools", catalogHandler.Schools)
		api.GET("/schools/:id/sites", catalogHandler.Sites)
		api.PUT("/schools/:id/district", catalogHandler.ReassignSchool)

		api.GET("/sites/lookup", siteHandler.Lookup)
		api.GET("/sites/:id/courses", siteHandler.Courses)
		api.GET("/sites/:id/siblings", siteHandler.Siblings)

		api.POST("/courses/scan", courseHandler.Scan)
		api.GET("/courses/packages", courseHandler.Packages)
		api.GET("/courses/targets", courseHandler.Targets)
		api.POST("/courses/install", courseHandler.Install)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env, "sources", len(sources))
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
