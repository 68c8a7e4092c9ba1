package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"QLDCwebserver/internal/auth"
	"QLDCwebserver/internal/config"
	"QLDCwebserver/internal/httpapi"
	"QLDCwebserver/internal/identity"
	"QLDCwebserver/internal/metrics"
	"QLDCwebserver/internal/service"
	"QLDCwebserver/internal/store"
	"QLDCwebserver/internal/store/memory"
	"QLDCwebserver/internal/store/postgres"
	"QLDCwebserver/internal/store/redis"
	"QLDCwebserver/internal/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	logger := newLogger(cfg)

	backend, err := openStore(context.Background(), cfg)
	if err != nil {
		logger.Error("store open failed", "store", cfg.Store, "err", err)
		os.Exit(1)
	}
	closeBackend := func() {
		if err := backend.Close(); err != nil {
			logger.Error("store close failed", "err", err)
		}
	}
	defer closeBackend()
	logger.Info("throttle store ready", "store", cfg.Store)

	var (
		m              *metrics.Metrics
		metricsHandler http.Handler
	)
	if cfg.Metrics {
		m = metrics.New()
		metricsHandler = m.Handler()
	}

	authSvc := &service.AuthService{
		Identity: identity.NewClient(cfg.IdentityURL, nil),
		Store:    backend,
		Throttle: cfg.Throttle,
		Logger:   logger,
		Metrics:  m,
	}

	if cfg.Throttle.LockDuration < time.Minute {
		logger.Warn("login lock duration is short", "lock_duration", cfg.Throttle.LockDuration, "max_attempts", cfg.Throttle.MaxAttempts)
	}

	router := httpapi.NewRouter(httpapi.RouterOpts{
		Logger:       logger,
		IsProd:       cfg.IsProd(),
		StorePing:    backend.Ping,
		Metrics:      metricsHandler,
		Auth:         authSvc,
		ProfileCodec: auth.NewProfileCodec([]byte(cfg.CookieSecret)),
		CookieSecure: cfg.CookieSecure(),
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "env", cfg.Env, "addr", cfg.Addr, "identity_url", cfg.IdentityURL.String())
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			closeBackend()
			os.Exit(1)
		}
	}
}

func openStore(ctx context.Context, cfg config.Config) (store.Backend, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return memory.New(), nil
	case config.StoreRedis:
		s := redis.New(redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.Ping(pingCtx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	case config.StorePostgres:
		pool, err := postgres.Open(ctx, cfg.DBDSN)
		if err != nil {
			return nil, err
		}
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return postgres.NewThrottleStore(pool), nil
	case config.StoreSQLite:
		return sqlite.Open(cfg.SQLiteDir)
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsProd() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
