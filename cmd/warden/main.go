package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wardenhq/warden/pkg/api"
	"github.com/wardenhq/warden/pkg/audit"
	"github.com/wardenhq/warden/pkg/config"
	"github.com/wardenhq/warden/pkg/directory"
	"github.com/wardenhq/warden/pkg/observability"
	"github.com/wardenhq/warden/pkg/review"
	"github.com/wardenhq/warden/pkg/staging"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("warden: %v", err)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.WithFields(map[string]interface{}{
		"db_driver":    cfg.Database.Driver,
		"ledger_path":  cfg.Staging.BasePath,
		"listen_addr":  cfg.Server.Host + ":" + cfg.Server.Port,
		"metrics_addr": cfg.Server.Host + ":" + cfg.Server.HealthPort,
	}).Info("Starting warden")

	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	if err := directory.EnsureSchema(ctx, db, cfg.Database.Driver); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	var metrics *observability.Metrics
	registry := prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	var auditor audit.Logger = audit.NopLogger{}
	if cfg.Audit.Enabled {
		fileAuditor, err := audit.NewFileLogger(audit.FileLoggerConfig{BasePath: cfg.Audit.BasePath})
		if err != nil {
			return fmt.Errorf("failed to open audit log: %w", err)
		}
		auditor = fileAuditor
	}

	ledger := staging.NewStore(cfg.Staging.BasePath, logger, metrics, auditor)
	txn := directory.NewCoordinator(db)
	users := directory.NewUserService(txn, ledger, logger)
	roles := directory.NewRoleService(txn, ledger, logger)
	devices := directory.NewDeviceService(txn, ledger, logger)
	settings := directory.NewSettingService(txn, ledger, logger)

	committer := review.NewCommitter(ledger, review.Mutators{
		Users:    users,
		Roles:    roles,
		Devices:  devices,
		Settings: settings,
	}, txn, logger, metrics, auditor)

	janitor := staging.NewJanitor(cfg.Staging.BasePath, cfg.Staging.SessionTTL, logger)
	if cfg.Staging.JanitorEnabled {
		if err := janitor.Start(cfg.Staging.JanitorSchedule); err != nil {
			return fmt.Errorf("failed to start ledger janitor: %w", err)
		}
		defer janitor.Stop()
	}

	server := api.NewServer(committer, users, roles, devices, settings, logger, metrics)
	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	health := observability.NewHealthChecker(db)
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", health.Liveness)
	healthMux.HandleFunc("/readyz", health.Readiness)
	healthMux.Handle("/metrics", observability.Handler(registry))
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	go func() {
		logger.WithField("addr", healthServer.Addr).Info("Health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Health server failed")
		}
	}()
	statsDone := make(chan struct{})
	defer close(statsDone)
	if metrics != nil {
		go func() {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					metrics.CollectDBStats(db)
				case <-statsDone:
					return
				}
			}
		}()
	}

	go func() {
		logger.WithField("addr", apiServer.Addr).Info("API server listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("API server failed")
		}
	}()

	return observability.WaitForShutdown(logger, cfg.Server.ShutdownTimeout,
		[]*http.Server{apiServer, healthServer},
		func(context.Context) error { return auditor.Close() },
	)
}
