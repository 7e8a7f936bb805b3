package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/solsentinel/solsentinel/internal/application/analysis"
	app "github.com/solsentinel/solsentinel/internal/application/scans"
	"github.com/solsentinel/solsentinel/internal/application/tasks"
	"github.com/solsentinel/solsentinel/internal/config"
	"github.com/solsentinel/solsentinel/internal/domain/scanerrors"
	domain "github.com/solsentinel/solsentinel/internal/domain/scans"
	"github.com/solsentinel/solsentinel/internal/infra/blockchain"
	"github.com/solsentinel/solsentinel/internal/infra/db/memory"
	"github.com/solsentinel/solsentinel/internal/infra/db/mysql"
	"github.com/solsentinel/solsentinel/internal/infra/db/postgres"
	"github.com/solsentinel/solsentinel/internal/infra/detector/httpapi"
	"github.com/solsentinel/solsentinel/internal/infra/detector/openai"
	"github.com/solsentinel/solsentinel/internal/infra/httpserver"
	"github.com/solsentinel/solsentinel/internal/infra/storage"
	"github.com/solsentinel/solsentinel/internal/logging"
	"github.com/solsentinel/solsentinel/internal/middleware"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Persistence
	var (
		scanRepo  domain.Repository
		errorRepo scanerrors.Repository
		sqlDB     *sql.DB
	)
	switch cfg.Database.Driver {
	case "mysql":
		db, err := mysql.Connect(ctx, cfg.Database.MySQLDSN())
		if err != nil {
			return fmt.Errorf("connecting to mysql: %w", err)
		}
		defer db.Close()
		sqlDB = db
		scanRepo = mysql.NewScanRepository(db)
		errorRepo = mysql.NewScanErrorRepository(db)
	case "postgres":
		db, err := postgres.Connect(ctx, cfg.Database.PostgresDSN())
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer db.Close()
		sqlDB = db
		scanRepo = postgres.NewScanRepository(db)
		errorRepo = postgres.NewScanErrorRepository(db)
	default:
		scanRepo = memory.NewScanRepository()
		errorRepo = memory.NewScanErrorRepository()
		log.Warn("using in-memory storage, scans will not survive a restart")
	}

	// Detector
	var det domain.Detector
	switch cfg.Detector.Provider {
	case "openai":
		det = openai.NewClient(cfg.Detector.APIKey, cfg.Detector.Model)
	default:
		det = httpapi.New(cfg.Detector.URL, cfg.Detector.Timeout())
	}

	explorer := blockchain.New(cfg.Explorer.BaseURL, cfg.Explorer.APIKey, cfg.Explorer.Timeout(), log)

	var reports domain.ReportStore
	if cfg.Minio.Enabled {
		store, err := storage.New(ctx, cfg.Minio.Endpoint, cfg.Minio.Region, cfg.Minio.BucketName,
			cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.UseSSL)
		if err != nil {
			return fmt.Errorf("connecting to minio: %w", err)
		}
		reports = store
	}

	metrics := middleware.NewMetrics()
	runner := tasks.NewRunner(log)

	service := &app.Service{
		Repo:     scanRepo,
		Errors:   errorRepo,
		Analyzer: analysis.NewInvoker(det, cfg.Detector.Timeout(), log),
		Explorer: explorer,
		Reports:  reports,
		Tasks:    runner,
		Clock:    app.SystemClock{},
		Metrics:  metrics,
		Log:      log,
	}

	limiter := middleware.NewLimiter(cfg.RateLimit.Window(), cfg.RateLimit.MaxRequests)
	defer limiter.Stop()

	var checkers []middleware.HealthChecker
	if sqlDB != nil {
		checkers = append(checkers, middleware.NewDatabaseHealthChecker(sqlDB))
	}

	handler := httpserver.New(service, log, httpserver.Options{
		APIKeys:  cfg.Auth.APIKeys,
		Limiter:  limiter,
		Metrics:  metrics,
		Checkers: checkers,
	})

	go service.RunReconciler(ctx, cfg.Reconciler.Interval(), cfg.Reconciler.StaleAfter())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.Int("port", cfg.Server.Port), zap.String("db", cfg.Database.Driver))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownSeconds)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if err := runner.Drain(shutdownCtx); err != nil {
		log.Warn("background tasks still running at shutdown",
			zap.Strings("tasks", runner.InFlight()),
			zap.Error(err),
		)
	}
	return nil
}
