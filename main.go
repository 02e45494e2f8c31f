package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kusuridheeraj/sentinel/internal/config"
	"github.com/kusuridheeraj/sentinel/internal/publisher"
	"github.com/kusuridheeraj/sentinel/internal/repository"
	"github.com/kusuridheeraj/sentinel/internal/server"
	"github.com/kusuridheeraj/sentinel/internal/service"

	"github.com/joho/godotenv"

	log "github.com/sirupsen/logrus"

	"github.com/labstack/echo/v4"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})

	log.SetOutput(os.Stdout)

	if err := godotenv.Load(); err != nil {
		log.Warn("Could not load .env file.")
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithField("error", err).Fatal("Could not load configuration")
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithField("log_level", cfg.LogLevel).Warn("Unknown log level, falling back to info")
		level = log.InfoLevel
	}
	log.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store service.LedgerStore
		db    *sql.DB
	)
	switch cfg.Ledger.Store {
	case config.StoreMemory:
		log.Warn("Using in-memory ledger store; entries will not survive a restart")
		store = repository.NewMemoryLedgerRepository()
	default:
		if err := repository.Migrate(cfg.DB.MigrationsPath, cfg.DB.URL); err != nil {
			log.WithField("error", err).Fatal("Could not apply migration")
		}

		db, err = repository.OpenPostgres(ctx, cfg.DB.URL, repository.PoolOptions{
			MaxOpenConns:    cfg.DB.MaxOpenConns,
			MaxIdleConns:    cfg.DB.MaxIdleConns,
			ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.DB.ConnMaxIdleTime,
		})
		if err != nil {
			log.WithField("error", err).Fatal("Could not connect to the database")
		}
		defer db.Close()
		log.Info("Successfully connected to the PostgreSQL database.")

		store = repository.NewPostgresLedgerRepository(db, cfg.DB.QueryTimeout)
	}

	var audit *service.AuditService
	if cfg.Kafka.Enabled() {
		auditPublisher, err := publisher.NewAuditPublisher(cfg.Kafka.BootstrapServers, cfg.Kafka.LedgerTopic)
		if err != nil {
			log.WithField("error", err).Fatal("Could not create audit publisher")
		}
		defer auditPublisher.Close()
		audit = service.NewAuditService(auditPublisher)
	} else {
		log.Info("KAFKA_BOOTSTRAP_SERVERS not set, ledger entries will not be published")
	}

	policy := service.RetryPolicy{
		MaxAttempts: cfg.Ledger.MaxAttempts,
		BackoffBase: cfg.Ledger.BackoffBase,
		Jitter:      cfg.Ledger.Jitter,
	}
	ledgerService := service.NewLedgerService(store, policy, audit)
	defer ledgerService.Close()

	srv := server.NewServer(ledgerService)

	e := echo.New()
	e.HideBanner = true
	srv.RegisterRoutes(e)

	go func() {
		log.WithFields(log.Fields{
			"port":  cfg.Port,
			"store": cfg.Ledger.Store,
		}).Info("Audit ledger service is starting with Echo")

		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithField("error", err).Fatal("Echo server failed to start")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down audit ledger service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithField("error", err).Error("Echo server shutdown failed")
	}
}
