// Package main provides the entrypoint for the GateWarden sync worker. It executes
// device_sync and fleet_sync jobs received from Pub/Sub.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/gatewarden/gatewarden/internal/accesslog"
	"github.com/gatewarden/gatewarden/internal/blob"
	"github.com/gatewarden/gatewarden/internal/database"
	"github.com/gatewarden/gatewarden/internal/device"
	"github.com/gatewarden/gatewarden/internal/devicesync"
	"github.com/gatewarden/gatewarden/internal/identity"
	"github.com/gatewarden/gatewarden/internal/settings"
	"github.com/gatewarden/gatewarden/internal/telemetry"
	"github.com/gatewarden/gatewarden/internal/terminal"
	"github.com/gatewarden/gatewarden/internal/terminal/akuvox"
	"github.com/gatewarden/gatewarden/internal/terminal/hikvision"
	"github.com/gatewarden/gatewarden/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "gatewarden-worker"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().Str("build_time", BuildTime).Msg("starting GateWarden worker")

	// The worker exposes a health endpoint for the platform's liveness probe.
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}
	projectID := os.Getenv("PUBSUB_PROJECT_ID")
	subscription := os.Getenv("PUBSUB_SUBSCRIPTION")
	if projectID == "" || subscription == "" {
		log.Fatal().Msg("PUBSUB_PROJECT_ID and PUBSUB_SUBSCRIPTION are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := telemetry.Init(ctx, telemetry.ConfigFromEnv(serviceName, Version))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown telemetry")
		}
	}()

	syncMetrics, err := devicesync.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize sync metrics")
	}

	dbConfig := database.ConfigFromEnv()
	if os.Getenv("DB_APPLICATION_NAME") == "" {
		dbConfig.ApplicationName = serviceName
	}
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Str("database", dbConfig.Redacted()).Msg("failed to connect to database")
	}
	defer pool.Close()

	deviceRepo := device.NewPostgresRepository(pool)
	deviceService := device.NewService(deviceRepo)
	settingsService := settings.NewService(settings.ServiceConfig{
		Repository: settings.NewPostgresRepository(pool),
		Logger:     log,
		CacheTTL:   time.Minute,
	})

	pageSize, _ := strconv.Atoi(os.Getenv("SYNC_PAGE_SIZE"))
	safetyCap, err := strconv.Atoi(os.Getenv("SYNC_FETCH_SAFETY_CAP"))
	if err != nil || safetyCap <= 0 {
		safetyCap = devicesync.DefaultSafetyCap
	}
	// No pause between items unless SYNC_ITEM_DELAY is set.
	itemDelay, _ := time.ParseDuration(os.Getenv("SYNC_ITEM_DELAY"))

	adapters := terminal.NewRegistry(terminal.RegistryConfig{
		Factories: map[device.Brand]terminal.Factory{
			device.BrandHikvision: hikvision.Factory(hikvision.Options{PageSize: pageSize}),
			device.BrandAkuvox:    akuvox.Factory,
		},
		Logger: log,
	})
	manager := devicesync.NewManager(devicesync.ManagerConfig{
		Devices:  deviceService,
		Adapters: adapters,
		Executor: devicesync.NewExecutor(devicesync.ExecutorConfig{
			Identities: identity.NewPostgresRepository(pool),
			AccessLogs: accesslog.NewPostgresRepository(pool),
			Blobs:      blob.NewPostgresStore(pool),
			Fetcher:    devicesync.NewFetcher(safetyCap, syncMetrics, log),
			ItemDelay:  itemDelay,
			Metrics:    syncMetrics,
			Logger:     log,
		}),
		Locker: devicesync.NewPostgresLocker(pool, log),
		Logger: log,
	})

	job := worker.NewSyncJob(worker.SyncJobConfig{
		Config:  worker.JobConfigFromEnv(),
		Runner:  manager,
		Devices: deviceRepo,
		Policy:  settingsService,
		Logger:  log,
	})

	handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
		ProjectID:        projectID,
		SubscriptionName: subscription,
		Dispatcher:       worker.NewDispatcher(job, log),
		Logger:           log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create pubsub handler")
	}
	defer handler.Close() //nolint:errcheck // best effort on shutdown

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]interface{}{"status": "healthy", "version": Version, "jobs": job.MetricsSnapshot()}
		if err := pool.Ping(r.Context()); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "unhealthy"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	go func() {
		if err := handler.Start(ctx); err != nil {
			log.Error().Err(err).Msg("pubsub receive stopped")
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
