package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/counseling-scheduler/internal/appointment"
	"github.com/hackgods/counseling-scheduler/internal/config"
	"github.com/hackgods/counseling-scheduler/internal/db"
	"github.com/hackgods/counseling-scheduler/internal/logger"
	"github.com/hackgods/counseling-scheduler/internal/metrics"
	"github.com/hackgods/counseling-scheduler/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	lg, err := logger.New(cfg.Env, cfg.LogLevel, logger.FileOptions{Path: cfg.LogFile})
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	if cfg.StorageBackend != config.BackendPostgres {
		lg.Fatal("notify-relay requires the postgres storage backend", zap.String("storage", cfg.StorageBackend))
	}

	lg.Info("notify-relay starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.RelayInterval),
		zap.Int("batch", cfg.RelayBatchSize),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2})
	cancelPg()
	if err != nil {
		lg.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	lg.Info("connected to Postgres")

	var pub notify.Publisher
	if cfg.NATSURL != "" {
		nc, err := notify.Connect(cfg.NATSURL, lg.Named("nats"))
		if err != nil {
			lg.Fatal("nats connection error", zap.Error(err))
		}
		defer nc.Drain()
		lg.Info("connected to NATS", zap.String("url", nc.ConnectedUrlRedacted()))
		pub = notify.NewNATSPublisher(nc)
	} else {
		lg.Warn("NATS_URL not set, events will only be logged")
		pub = notify.NewLogPublisher(lg.Named("events"))
	}

	m := metrics.New()
	if addr := cfg.MetricsAddr; addr != "" {
		go func() {
			lg.Info("metrics listening", zap.String("addr", addr))
			srv := &http.Server{Addr: addr, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				lg.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	var outbox appointment.Outbox = appointment.NewPgRepository(pgPool)
	relay := notify.NewRelay(outbox, pub, lg.Named("relay"), m, cfg.RelayBatchSize, cfg.NATSSubject)

	relay.Run(rootCtx, cfg.RelayInterval)
	lg.Info("notify-relay stopped")
}
