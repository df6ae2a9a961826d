package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/studio-scheduler/api/swagger"
	"github.com/noah-isme/studio-scheduler/internal/handler"
	"github.com/noah-isme/studio-scheduler/internal/middleware"
	"github.com/noah-isme/studio-scheduler/internal/repository"
	"github.com/noah-isme/studio-scheduler/internal/service"
	"github.com/noah-isme/studio-scheduler/pkg/cache"
	"github.com/noah-isme/studio-scheduler/pkg/config"
	"github.com/noah-isme/studio-scheduler/pkg/database"
	"github.com/noah-isme/studio-scheduler/pkg/export"
	"github.com/noah-isme/studio-scheduler/pkg/jobs"
	"github.com/noah-isme/studio-scheduler/pkg/logger"
	"github.com/noah-isme/studio-scheduler/pkg/messaging"
	corsmiddleware "github.com/noah-isme/studio-scheduler/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/studio-scheduler/pkg/middleware/requestid"
)

// @title Studio Scheduler API
// @version 1.0.0
// @description Recurring class sessions, resource allocation and open-studio waitlists for a pottery studio.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, availability cache disabled", zap.Error(err))
			redisClient = nil
		}
	}
	cacheRepo := repository.NewCacheRepository(redisClient, cfg.Redis.KeyPrefix)
	defer cacheRepo.Close() //nolint:errcheck

	var publisher *messaging.Publisher
	if cfg.RabbitMQ.Enabled {
		publisher, err = messaging.NewPublisher(cfg.RabbitMQ, logr)
		if err != nil {
			logr.Warn("rabbitmq unavailable, domain events disabled", zap.Error(err))
			publisher = nil
		}
	}
	defer publisher.Close() //nolint:errcheck

	var metricsSvc *service.MetricsService
	if cfg.Metrics.Enabled {
		metricsSvc = service.NewMetricsService()
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Availability.CacheTTL, logr, cfg.Availability.CacheEnabled && redisClient != nil)
	validate := validator.New()

	app := buildApp(db, cfg, cacheSvc, publisher, metricsSvc, validate, logr)

	queue := jobs.NewQueue("release-worker", app.worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Scheduler.WorkerConcurrency,
		MaxRetries: cfg.Scheduler.WorkerRetries,
		RetryDelay: cfg.Scheduler.WorkerRetryDelay,
		MaxDelay:   cfg.Scheduler.WorkerMaxRetryDelay,
		JobTimeout: cfg.Scheduler.WorkerJobTimeout,
		Logger:     logr,
	})
	app.attachQueue(queue)
	queue.Start(ctx)
	defer queue.Stop()
	go app.worker.Run(ctx)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc, cfg.Metrics.Path, "/health", "/ready"))
	r.Use(middleware.WithResponseMeta())

	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, metricsHandler.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	verifier := service.NewTokenVerifier(cfg.JWT.Secret, cfg.JWT.Issuer)
	api := r.Group(cfg.APIPrefix, middleware.JWT(verifier))
	registerRoutes(api, app.handlers(metricsHandler))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Error("failed to shutdown server", zap.Error(err))
		}
	}()

	logr.Sugar().Infow("server starting", "addr", server.Addr, "env", cfg.Env)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
	logr.Info("server stopped")
}

// app holds the wired services. HTTP cancellations promote waitlists inline while
// the background worker defers promotion to the job queue.
type app struct {
	requirements *service.RequirementService
	allocations  *service.AllocationService
	availability *service.AvailabilityService
	materializer *service.SessionMaterializerService
	waitlist     *service.WaitlistService
	release      *service.ReleaseSchedulerService
	export       *service.ExportService
	worker       *service.ReleaseWorker
	queuedQueue  *deferredQueue
}

func buildApp(db *sqlx.DB, cfg *config.Config, cacheSvc *service.CacheService, publisher *messaging.Publisher, metricsSvc *service.MetricsService, validate *validator.Validate, logr *zap.Logger) *app {
	classRepo := repository.NewClassRepository(db)
	sessionRepo := repository.NewClassSessionRepository(db)
	patternRepo := repository.NewSchedulePatternRepository(db)
	resourceRepo := repository.NewResourceRepository(db)
	allocationRepo := repository.NewAllocationRepository(db)
	reservationRepo := repository.NewReservationRepository(db)
	openStudioRepo := repository.NewOpenStudioRepository(db)
	waitlistRepo := repository.NewWaitlistRepository(db)

	availability := service.NewAvailabilityService(openStudioRepo, resourceRepo, sessionRepo, allocationRepo, cacheSvc, metricsSvc, logr, service.AvailabilityConfig{
		DefaultReleaseHours: cfg.Scheduler.DefaultReleaseHours,
		CacheTTL:            cfg.Availability.CacheTTL,
	})
	waitlist := service.NewWaitlistService(waitlistRepo, openStudioRepo, resourceRepo, availability, db, cacheSvc, publisher, metricsSvc, validate, logr)
	releaseCfg := service.ReleaseConfig{DefaultReleaseHours: cfg.Scheduler.DefaultReleaseHours}

	queued := &deferredQueue{}
	promoter := service.NewQueuedPromoter(queued)
	sweeper := service.NewReleaseSchedulerService(sessionRepo, allocationRepo, reservationRepo, classRepo, openStudioRepo, promoter, db, cacheSvc, publisher, metricsSvc, logr, releaseCfg)

	return &app{
		requirements: service.NewRequirementService(classRepo, resourceRepo),
		allocations:  service.NewAllocationService(sessionRepo, classRepo, resourceRepo, allocationRepo, reservationRepo, db, cacheSvc, metricsSvc, logr),
		availability: availability,
		materializer: service.NewSessionMaterializerService(patternRepo, classRepo, sessionRepo, allocationRepo, db, cacheSvc, publisher, metricsSvc, validate, logr, service.SessionMaterializerConfig{
			MaxOccurrences: cfg.Scheduler.MaxOccurrences,
		}),
		waitlist:    waitlist,
		release:     service.NewReleaseSchedulerService(sessionRepo, allocationRepo, reservationRepo, classRepo, openStudioRepo, waitlist, db, cacheSvc, publisher, metricsSvc, logr, releaseCfg),
		export:      service.NewExportService(classRepo, sessionRepo, export.NewCSVExporter(), nil, validate, logr),
		worker:      service.NewReleaseWorker(sweeper, waitlist, cfg.Scheduler.ReleaseSweepInterval, logr),
		queuedQueue: queued,
	}
}

// attachQueue points the worker ticker and the deferred promoter at the started queue.
func (a *app) attachQueue(queue *jobs.Queue) {
	a.worker.AttachQueue(queue)
	a.queuedQueue.queue = queue
}

func (a *app) handlers(metrics *handler.MetricsHandler) routeHandlers {
	return routeHandlers{
		patterns:     handler.NewPatternHandler(a.materializer),
		classes:      handler.NewClassHandler(a.requirements, a.materializer, a.export),
		sessions:     handler.NewClassSessionHandler(a.allocations, a.release, a.materializer),
		openStudio:   handler.NewOpenStudioHandler(a.availability, a.waitlist),
		reservations: handler.NewReservationHandler(a.release),
		metrics:      metrics,
	}
}

// deferredQueue lets the promoter be built before the queue it feeds exists.
type deferredQueue struct {
	queue *jobs.Queue
}

func (d *deferredQueue) Enqueue(job jobs.Job) (bool, error) {
	if d.queue == nil {
		return false, errors.New("job queue not started")
	}
	return d.queue.Enqueue(job)
}
