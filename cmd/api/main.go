package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/insite-net/partage-api/internal/handler"
	"github.com/insite-net/partage-api/internal/repository"
	"github.com/insite-net/partage-api/internal/service"
	"github.com/insite-net/partage-api/pkg/cache"
	"github.com/insite-net/partage-api/pkg/config"
	"github.com/insite-net/partage-api/pkg/database"
	"github.com/insite-net/partage-api/pkg/jobs"
	"github.com/insite-net/partage-api/pkg/logger"
	"github.com/insite-net/partage-api/pkg/storage"
)

// @title Partage API
// @version 1.0.0
// @description Project submissions, media storage and ZIP archives for construction quotes.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	migrateOnly := flag.Bool("migrate-only", false, "apply migrations and exit")
	rollback := flag.Bool("rollback", false, "revert the latest migration and exit")
	flag.Parse()

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

	if *migrateOnly || *rollback {
		if err := migrate(cfg, *rollback); err != nil {
			logr.Fatal("migration failed", zap.Error(err))
		}
		logr.Info("migrations done", zap.Bool("rollback", *rollback))
		return
	}

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if err := database.Migrate(db.DB); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		redisClient = nil
	}

	httpClient := &http.Client{Timeout: cfg.Archive.FetchTimeout}
	files, err := storage.Open(ctx, cfg.Storage, cfg.PublicBaseURL, cfg.Storage.FilesBucket, httpClient)
	if err != nil {
		return fmt.Errorf("open files bucket: %w", err)
	}
	media, err := storage.Open(ctx, cfg.Storage, cfg.PublicBaseURL, cfg.Storage.MediaBucket, httpClient)
	if err != nil {
		return fmt.Errorf("open media bucket: %w", err)
	}
	fetcher := storage.NewFetcher(httpClient, cfg.Archive.MaxFileSizeBytes, files, media)
	signer := storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL)

	validate := validator.New()
	metrics := service.NewMetricsService()

	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metrics, 10*time.Minute, logr, redisClient != nil)

	submissionRepo := repository.NewSubmissionRepository(db)
	jobRepo := repository.NewArchiveJobRepository(db)
	userRepo := repository.NewUserRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            "partage-api",
	})
	if err := authSvc.EnsureAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password, cfg.Admin.FullName); err != nil {
		logr.Warn("admin bootstrap failed", zap.Error(err))
	}

	archiveSvc := service.NewArchiveService(submissionRepo, files, fetcher, signer, metrics, logr, service.ArchiveServiceConfig{
		FetchConcurrency: cfg.Archive.FetchConcurrency,
		CompressionLevel: cfg.Archive.CompressionLevel,
		MaxFileSizeBytes: cfg.Archive.MaxFileSizeBytes,
		FetchTimeout:     cfg.Archive.FetchTimeout,
		APIPrefix:        cfg.APIPrefix,
	})

	notifier := service.NewNotificationService(service.NewResendSender(cfg.Mail.ResendAPIKey), service.NotificationConfig{
		From:    cfg.Mail.From,
		To:      cfg.Mail.To,
		DevMode: cfg.Env != config.EnvProduction,
	}, logr)

	submissionSvc := service.NewSubmissionService(submissionRepo, files, media, archiveSvc, notifier, cacheSvc, validate, logr, service.SubmissionServiceConfig{
		MaxFileBytes: cfg.Intake.MaxUploadBytes,
		MaxFiles:     cfg.Intake.MaxFiles,
	})
	exportSvc := service.NewExportService(submissionSvc, logr, nil, nil)
	geocodeSvc := service.NewGeocodeService(&http.Client{}, cacheSvc, logr, service.GeocodeServiceConfig{
		BaseURL:  cfg.Geocode.BaseURL,
		Timeout:  cfg.Geocode.Timeout,
		CacheTTL: cfg.Geocode.CacheTTL,
	})

	worker := service.NewArchiveWorker(jobRepo, archiveSvc, cfg.Jobs.WorkerRetries, metrics, logr)
	queue := jobs.NewQueue("archive-builds", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Jobs.WorkerConcurrency,
		BufferSize: cfg.Jobs.BufferSize,
		MaxRetries: cfg.Jobs.WorkerRetries,
		Logger:     logr,
	})
	worker.ObserveQueue(queue.Len)
	jobSvc := service.NewArchiveJobService(jobRepo, submissionRepo, queue, metrics, logr, service.ArchiveJobServiceConfig{
		Retention:       cfg.Jobs.Retention,
		CleanupInterval: cfg.Jobs.CleanupInterval,
	})

	if cfg.Jobs.Enabled {
		queue.Start(ctx)
		defer queue.Stop()
		jobSvc.RecoverPendingJobs(ctx)
		jobSvc.StartCleanup(ctx)
	}

	router := newRouter(cfg, logr, routes{
		auth:        handler.NewAuthHandler(authSvc),
		submissions: handler.NewSubmissionHandler(submissionSvc, exportSvc),
		archives:    handler.NewArchiveHandler(archiveSvc, jobSvc),
		geocode:     handler.NewGeocodeHandler(geocodeSvc),
		storage:     handler.NewStorageHandler(files, media),
		metrics:     handler.NewMetricsHandler(metrics, readinessChecks(db, redisClient)),
		cache:       handler.NewCacheHandler(cacheSvc),
		validator:   authSvc,
		observer:    metrics,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.String("storage", cfg.Storage.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := cacheRepo.Close(); err != nil {
		logr.Warn("failed to close redis", zap.Error(err))
	}
	return nil
}

func migrate(cfg *config.Config, rollback bool) error {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()
	if rollback {
		return database.Rollback(db.DB)
	}
	return database.Migrate(db.DB)
}

func readinessChecks(db *sqlx.DB, redisClient *redis.Client) map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{
		"database": db.PingContext,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	return checks
}
