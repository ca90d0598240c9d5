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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/attendance-sheet/api/swagger"
	"github.com/noah-isme/attendance-sheet/internal/handler"
	internalmiddleware "github.com/noah-isme/attendance-sheet/internal/middleware"
	"github.com/noah-isme/attendance-sheet/internal/repository"
	"github.com/noah-isme/attendance-sheet/internal/roster"
	"github.com/noah-isme/attendance-sheet/internal/service"
	"github.com/noah-isme/attendance-sheet/pkg/cache"
	"github.com/noah-isme/attendance-sheet/pkg/config"
	"github.com/noah-isme/attendance-sheet/pkg/database"
	"github.com/noah-isme/attendance-sheet/pkg/jobs"
	"github.com/noah-isme/attendance-sheet/pkg/logger"
	corsmiddleware "github.com/noah-isme/attendance-sheet/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/attendance-sheet/pkg/middleware/requestid"
	"github.com/noah-isme/attendance-sheet/pkg/storage"
)

// @title Attendance Sheet API
// @version 1.0.0
// @description Monthly attendance entry wizard: roster upload, per-employee day entry, backup and sheet export
// @BasePath /api/v1
// @schemes http

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backup, ready, closeBackup, err := openBackup(ctx, cfg)
	if err != nil {
		logr.Fatal("failed to open session backup", zap.String("driver", cfg.Backup.Driver), zap.Error(err))
	}
	defer closeBackup()

	var metrics *service.MetricsService
	if cfg.Metrics.Enabled {
		metrics = service.NewMetricsService()
	}
	validate := validator.New()

	entries := service.NewEntryService(
		backup,
		roster.NewLoader(cfg.Roster.CodeColumns, cfg.Roster.NameColumns),
		validate,
		metrics,
		service.EntryConfig{MinYear: cfg.Period.MinYear, MaxYear: cfg.Period.MaxYear},
		logr,
	)
	entries.Restore(ctx)

	exportStore, err := storage.NewLocalStorage(cfg.Export.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare export storage", zap.Error(err))
	}
	queue := jobs.NewQueue("exports", jobs.QueueConfig{
		Workers:    cfg.Export.WorkerConcurrency,
		BufferSize: 16,
		MaxRetries: cfg.Export.WorkerRetries,
		RetryDelay: 5 * time.Second,
		Logger:     logr,
	})
	exports := service.NewExportService(
		entries,
		exportStore,
		storage.NewSignedURLSigner(cfg.Export.SignedURLSecret, cfg.Export.SignedURLTTL),
		queue,
		validate,
		metrics,
		service.ExportConfig{
			APIPrefix: cfg.APIPrefix,
			SheetName: cfg.Export.SheetName,
			Filename:  cfg.Export.Filename,
			Retention: cfg.Export.Retention,
		},
		logr,
	)
	queue.Register(service.JobExportCleanup, exports.CleanupJob)
	queue.Start(ctx)
	defer queue.Stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	if metrics != nil {
		r.Use(internalmiddleware.Metrics(metrics))
	}

	metricsHandler := handler.NewMetricsHandler(metrics, ready)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	if metrics != nil {
		r.GET("/metrics", metricsHandler.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	sessionHandler := handler.NewSessionHandler(entries, cfg.Roster.MaxUploadBytes)
	exportHandler := handler.NewExportHandler(exports)

	api := r.Group(cfg.APIPrefix)
	{
		sess := api.Group("/session")
		sess.GET("", sessionHandler.Current)
		sess.DELETE("", sessionHandler.Reset)
		sess.POST("/roster", sessionHandler.UploadRoster)
		sess.GET("/roster", sessionHandler.Roster)
		sess.PUT("/period", sessionHandler.SetPeriod)
		sess.POST("/preview", sessionHandler.Preview)
		sess.POST("/save", sessionHandler.Save)
		sess.POST("/next", sessionHandler.SaveAndNext)
		sess.POST("/previous", sessionHandler.SaveAndPrevious)
		sess.POST("/retreat", sessionHandler.Retreat)
		sess.GET("/rows", sessionHandler.Rows)
		sess.GET("/export", exportHandler.Stream)
		sess.POST("/export", exportHandler.Publish)

		api.GET("/export/:token", exportHandler.Download)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env, "backup_driver", backup.Driver())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Error("server shutdown failed", zap.Error(err))
	}
}

// openBackup builds the snapshot store selected by BACKUP_DRIVER along with a
// readiness probe and a close func for its connection.
func openBackup(ctx context.Context, cfg *config.Config) (service.BackupStore, handler.ReadinessCheck, func(), error) {
	switch cfg.Backup.Driver {
	case config.BackupDriverPostgres:
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, nil, nil, err
		}
		repo := repository.NewPostgresSnapshotRepository(db, cfg.Backup.SessionID)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		return repo, db.PingContext, func() { _ = db.Close() }, nil
	case config.BackupDriverRedis:
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, nil, err
		}
		repo := repository.NewRedisSnapshotRepository(client, cfg.Redis.KeyPrefix, cfg.Backup.SessionID)
		ready := func(ctx context.Context) error { return client.Ping(ctx).Err() }
		return repo, ready, func() { _ = repo.Close() }, nil
	default:
		if err := os.MkdirAll(cfg.Backup.FileDir, 0o700); err != nil {
			return nil, nil, nil, err
		}
		repo := repository.NewFileSnapshotRepository(cfg.Backup.FileDir, cfg.Backup.SessionID)
		ready := func(ctx context.Context) error {
			_, err := os.Stat(cfg.Backup.FileDir)
			return err
		}
		return repo, ready, func() {}, nil
	}
}
