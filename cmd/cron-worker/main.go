package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/lms-notifications/internal/cron"
	"github.com/angelmondragon/lms-notifications/internal/enrollments"
	"github.com/angelmondragon/lms-notifications/internal/notifications"
	"github.com/angelmondragon/lms-notifications/internal/realtime"
	"github.com/angelmondragon/lms-notifications/pkg/config"
	"github.com/angelmondragon/lms-notifications/pkg/db"
	"github.com/angelmondragon/lms-notifications/pkg/logger"
	"github.com/angelmondragon/lms-notifications/pkg/metrics"
	"github.com/angelmondragon/lms-notifications/pkg/migrate"
	"github.com/angelmondragon/lms-notifications/pkg/redis"
)

const serviceKind = "cron-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind
	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": serviceKind})

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer dbClient.Close()
	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	jobMetrics := metrics.NewCronJobMetrics(registry)

	// Publish-only: deliveries reach sockets through the api relay.
	bus, err := realtime.NewBus(realtime.BusOptions{
		Publisher:    redisClient,
		RelayChannel: cfg.Realtime.RelayChannel,
		Metrics:      metrics.NewRealtimeMetrics(registry),
		Logger:       logg,
	})
	if err != nil {
		return err
	}

	repo := notifications.NewRepository(dbClient.DB())
	service, err := notifications.NewService(notifications.ServiceParams{
		Repo:        repo,
		Enrollments: enrollments.NewRepository(dbClient.DB()),
		Bus:         bus,
		Logger:      logg,
	})
	if err != nil {
		return err
	}

	dispatch, err := cron.NewScheduledDispatchJob(cron.ScheduledDispatchJobParams{
		Logger:     logg,
		Dispatcher: service,
		Metrics:    jobMetrics,
		BatchSize:  cfg.Notifications.DispatchBatch,
	})
	if err != nil {
		return err
	}
	retention, err := cron.NewRetentionJob(cron.RetentionJobParams{
		Logger:        logg,
		Purger:        repo,
		Metrics:       jobMetrics,
		RetentionDays: cfg.Notifications.RetentionDays,
	})
	if err != nil {
		return err
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		return err
	}
	scheduler, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(dispatch, retention),
		Lock:     lock,
		Metrics:  jobMetrics,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return err
	}

	if err := bus.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := bus.Shutdown(context.Background()); err != nil {
			logg.Error(ctx, "error stopping realtime bus", err)
		}
	}()

	server := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           opsRouter(registry),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "ops listener failed", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Service.ShutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logg.Info(logg.WithField(ctx, "port", cfg.App.Port), "starting cron worker")
	if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// opsRouter exposes liveness and job metrics for the scheduler pod.
func opsRouter(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

// lockName scopes the scheduler lock per environment so staging and prod
// sharing a Redis never block each other.
func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return serviceKind + ":" + env
}
