package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/toko-cart/internal/app"
	"github.com/noah-isme/toko-cart/internal/config"
	"github.com/noah-isme/toko-cart/internal/obs"
	"github.com/noah-isme/toko-cart/internal/queue"
	"github.com/noah-isme/toko-cart/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.ObsLogFormat, cfg.ObsLogLevel).With().Str("component", "worker").Logger()
	resilience.MustRegisterMetrics(cfg.ObsMetricsNamespace, nil)

	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("DATABASE_URL is required to record coupon usage")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := app.Connect(ctx, cfg, "toko-cart-worker")
	if err != nil {
		logger.Fatal().Err(err).Msg("database")
	}
	defer pool.Close()
	backends := app.NewBackends(cfg, pool, nil, logger)

	opt, err := queue.RedisOpt(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("task queue")
	}
	srv := queue.NewServer(opt, cfg.AsynqConcurrency, logger)
	mux := asynq.NewServeMux()
	consumer := &queue.Consumer{Coupons: backends.Coupons, Logger: logger}
	consumer.Register(mux)

	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}
	logger.Info().Int("concurrency", cfg.AsynqConcurrency).Msg("worker started")

	var metricsSrv *http.Server
	if addr := os.Getenv("WORKER_METRICS_ADDR"); addr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: addr, Handler: metricsMux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics listener")
			}
		}()
	}

	<-ctx.Done()
	srv.Shutdown()
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	logger.Info().Msg("worker shutdown complete")
}
