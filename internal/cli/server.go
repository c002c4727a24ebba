package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/infra/redis"
	"quiz-attempt-service/internal/logging"
	"quiz-attempt-service/internal/metrics"
	transport "quiz-attempt-service/internal/transport/http"
)

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the HTTP API and the expiration sweeps",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}
}

func runServer(ctx context.Context, cfg config.Config) error {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
	}

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	hub := app.NewEventHub()
	var bus *redis.EventBus
	var events app.Publisher = hub
	if b.redis != nil {
		bus = redis.NewEventBus(b.redis, redis.DefaultEventChannel, logger.Named("events"))
		events = bus
	}

	opts := app.Options{
		Logger:  logger,
		Metrics: m,
		Events:  events,
		Retry:   retryPolicy(cfg),
	}
	sessions, attempts := services(cfg, b, opts)

	handler := transport.NewHandler(sessions, attempts, hub, logger.Named("http"), m, transport.Config{
		AccessCodeRPS:   cfg.Limits.AccessCodeRPS,
		AccessCodeBurst: cfg.Limits.AccessCodeBurst,
	})
	router := handler.Router()
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting quiz attempt service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if cfg.Sweep.SweepEnabled() {
		reconciler := app.NewReconciler(sessions, attempts, b.locker, reconcilerConfig(cfg), opts)
		g.Go(func() error { return reconciler.Run(ctx) })
	} else {
		logger.Warn("background sweeps disabled")
	}
	if bus != nil {
		g.Go(func() error {
			if err := bus.Relay(ctx, hub); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("event relay stopped", zap.Error(err))
			}
			return nil
		})
	}
	return g.Wait()
}
