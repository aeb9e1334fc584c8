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

	"github.com/hackgods/counseling-scheduler/internal/api"
	"github.com/hackgods/counseling-scheduler/internal/appointment"
	"github.com/hackgods/counseling-scheduler/internal/config"
	"github.com/hackgods/counseling-scheduler/internal/db"
	"github.com/hackgods/counseling-scheduler/internal/logger"
	"github.com/hackgods/counseling-scheduler/internal/metrics"
	redisclient "github.com/hackgods/counseling-scheduler/internal/redis"
	"github.com/hackgods/counseling-scheduler/internal/schedule"
)

var version = "dev"

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

	lg.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("storage", cfg.StorageBackend),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		repo   appointment.Repository
		checks []api.Check
	)

	switch cfg.StorageBackend {
	case config.BackendMemory:
		mem := appointment.NewMemoryRepository()
		seedMemoryDirectory(mem, lg.Named("demo"))
		repo = mem
		lg.Warn("using in-memory storage, data is not persisted")
	default:
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{Logger: lg.Named("pgx")})
		cancelPg()
		if err != nil {
			lg.Fatal("postgres connection error", zap.Error(err))
		}
		defer pgPool.Close()
		lg.Info("connected to Postgres")

		repo = appointment.NewPgRepository(pgPool)
		checks = append(checks, api.Check{Name: "postgres", Critical: true, Ping: pgPool.Ping})
	}

	var locker redisclient.Locker
	if cfg.RedisAddr != "" {
		rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			lg.Fatal("redis connection error", zap.Error(err))
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				lg.Warn("error closing redis", zap.Error(err))
			}
		}()
		lg.Info("connected to Redis", zap.Duration("lock_ttl", cfg.LockTTL))

		locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
		checks = append(checks, api.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	calendar := schedule.NewCalendar(cfg.Policy, schedule.SystemClock)
	svc := appointment.NewService(repo, calendar, locker, lg.Named("appointment"))

	router := api.NewRouter(api.RouterConfig{
		Service:        svc,
		Metrics:        metrics.New(),
		Logger:         lg.Named("http"),
		Checks:         checks,
		RequestTimeout: cfg.RequestTimeout,
		Env:            cfg.Env,
		Version:        version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.RequestTimeout,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-rootCtx.Done():
		lg.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			lg.Error("http server error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("graceful shutdown failed", zap.Error(err))
	}

	lg.Info("api-server stopped")
}
