package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/lms-notifications/api/controllers"
	"github.com/angelmondragon/lms-notifications/api/routes"
	"github.com/angelmondragon/lms-notifications/internal/enrollments"
	"github.com/angelmondragon/lms-notifications/internal/notifications"
	"github.com/angelmondragon/lms-notifications/internal/realtime"
	"github.com/angelmondragon/lms-notifications/pkg/auth/session"
	"github.com/angelmondragon/lms-notifications/pkg/config"
	"github.com/angelmondragon/lms-notifications/pkg/db"
	"github.com/angelmondragon/lms-notifications/pkg/logger"
	"github.com/angelmondragon/lms-notifications/pkg/metrics"
	"github.com/angelmondragon/lms-notifications/pkg/migrate"
	"github.com/angelmondragon/lms-notifications/pkg/pagination"
	"github.com/angelmondragon/lms-notifications/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	sessions, err := session.NewChecker(redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create session checker", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	realtimeMetrics := metrics.NewRealtimeMetrics(registry)

	hub := realtime.NewHub(cfg.Realtime, realtimeMetrics, logg)
	busOpts := realtime.BusOptions{
		Hub:     hub,
		Metrics: realtimeMetrics,
		Logger:  logg,
	}
	if cfg.FeatureFlags.RealtimeRelay {
		busOpts.Publisher = redisClient
		busOpts.RelayChannel = cfg.Realtime.RelayChannel
	}
	bus, err := realtime.NewBus(busOpts)
	if err != nil {
		logg.Error(context.Background(), "failed to create realtime bus", err)
		os.Exit(1)
	}

	enrollmentProvider := enrollments.NewCachedProvider(
		enrollments.NewRepository(dbClient.DB()),
		redisClient,
		cfg.Enrollments.CacheTTL,
		logg,
	)

	notificationsService, err := notifications.NewService(notifications.ServiceParams{
		Repo:        notifications.NewRepository(dbClient.DB()),
		Enrollments: enrollmentProvider,
		Bus:         bus,
		Logger:      logg,
		Limits: pagination.Limits{
			Default: cfg.Notifications.DefaultPageSize,
			Max:     cfg.Notifications.MaxPageSize,
		},
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})

	if err := bus.Start(ctx); err != nil {
		logg.Error(ctx, "failed to start realtime bus", err)
		os.Exit(1)
	}
	if cfg.FeatureFlags.RealtimeRelay {
		relay, err := realtime.NewRelay(redisClient, bus)
		if err != nil {
			logg.Error(ctx, "failed to create realtime relay", err)
			os.Exit(1)
		}
		go func() {
			if err := relay.Run(ctx); err != nil {
				logg.Error(ctx, "realtime relay stopped", err)
			}
		}()
	}

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Params{
			Config:        cfg,
			Logger:        logg,
			Sessions:      sessions,
			Notifications: notificationsService,
			Enrollments:   enrollmentProvider,
			Hubs:          bus,
			Health: map[string]controllers.Pinger{
				"postgres": dbClient,
				"redis":    redisClient,
			},
			Metrics: registry,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			_ = bus.Shutdown(context.Background())
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	logg.Info(ctx, "api server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	// Close sockets first so Shutdown does not wait on hijacked connections.
	err = multierr.Combine(
		bus.Shutdown(shutdownCtx),
		server.Shutdown(shutdownCtx),
	)
	if err != nil {
		logg.Error(shutdownCtx, "api shutdown incomplete", err)
		os.Exit(1)
	}
	logg.Info(shutdownCtx, "api server stopped")
}
