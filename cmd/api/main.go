// Package main provides the entrypoint for the GateWarden API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/gatewarden/gatewarden/internal/accesslog"
	"github.com/gatewarden/gatewarden/internal/api"
	"github.com/gatewarden/gatewarden/internal/api/handler"
	"github.com/gatewarden/gatewarden/internal/api/middleware"
	"github.com/gatewarden/gatewarden/internal/auth"
	"github.com/gatewarden/gatewarden/internal/blob"
	"github.com/gatewarden/gatewarden/internal/database"
	"github.com/gatewarden/gatewarden/internal/device"
	"github.com/gatewarden/gatewarden/internal/devicesync"
	"github.com/gatewarden/gatewarden/internal/event"
	"github.com/gatewarden/gatewarden/internal/identity"
	"github.com/gatewarden/gatewarden/internal/settings"
	"github.com/gatewarden/gatewarden/internal/telemetry"
	"github.com/gatewarden/gatewarden/internal/terminal"
	"github.com/gatewarden/gatewarden/internal/terminal/akuvox"
	"github.com/gatewarden/gatewarden/internal/terminal/hikvision"
	"github.com/gatewarden/gatewarden/internal/webhook"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "gatewarden-api"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting GateWarden API")

	cfg := loadConfig(log)
	ctx := context.Background()

	telemetryConfig := telemetry.ConfigFromEnv(serviceName, Version)
	tp, err := telemetry.Init(ctx, telemetryConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()
	if telemetryConfig.Enabled {
		log.Info().Str("otlp_endpoint", telemetryConfig.OTLPEndpoint).Msg("OpenTelemetry initialized")
	}

	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize HTTP metrics")
	}
	syncMetrics, err := devicesync.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize sync metrics")
	}
	eventMetrics, err := event.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize event metrics")
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
	log.Info().Str("database", dbConfig.Redacted()).Msg("database connected")

	// Device registry, seeded from the fleet file when one is configured.
	deviceRepo := device.NewPostgresRepository(pool)
	if cfg.fleetFile != "" {
		created, err := device.LoadFleet(ctx, deviceRepo, cfg.fleetFile)
		if err != nil {
			log.Fatal().Err(err).Str("file", cfg.fleetFile).Msg("failed to load device fleet")
		}
		log.Info().Str("file", cfg.fleetFile).Int("created", created).Msg("device fleet loaded")
	}
	deviceService := device.NewService(deviceRepo)

	accessLogs := accesslog.NewPostgresRepository(pool)
	blobs := blob.NewPostgresStore(pool)
	settingsService := settings.NewService(settings.ServiceConfig{
		Repository: settings.NewPostgresRepository(pool),
		Logger:     log,
		CacheTTL:   cfg.settingsCacheTTL,
	})

	adapters := terminal.NewRegistry(terminal.RegistryConfig{
		Factories: map[device.Brand]terminal.Factory{
			device.BrandHikvision: hikvision.Factory(hikvision.Options{PageSize: cfg.pageSize}),
			device.BrandAkuvox:    akuvox.Factory,
		},
		Timeout: cfg.deviceTimeout,
		Logger:  log,
	})

	executor := devicesync.NewExecutor(devicesync.ExecutorConfig{
		Identities: identity.NewPostgresRepository(pool),
		AccessLogs: accessLogs,
		Blobs:      blobs,
		Fetcher:    devicesync.NewFetcher(cfg.syncSafetyCap, syncMetrics, log),
		ItemDelay:  cfg.syncItemDelay,
		Metrics:    syncMetrics,
		Logger:     log,
	})
	syncs := devicesync.NewManager(devicesync.ManagerConfig{
		Devices:  deviceService,
		Adapters: adapters,
		Executor: executor,
		Locker:   devicesync.NewPostgresLocker(pool, log),
		Logger:   log,
	})

	checkers := []handler.Checker{handler.CheckFunc{Label: "postgres", Fn: pool.Ping}}

	// Every new event is stored as an access log and, with NATS configured, published to
	// JetStream for other consumers.
	sinks := []event.Sink{event.NewAccessLogSink(accessLogs)}
	if cfg.natsURL != "" {
		nc, err := nats.Connect(cfg.natsURL,
			nats.Name(serviceName),
			nats.MaxReconnects(-1),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				log.Warn().Err(err).Msg("NATS disconnected")
			}),
			nats.ReconnectHandler(func(c *nats.Conn) {
				log.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
			}),
		)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to NATS")
		}
		defer nc.Drain() //nolint:errcheck // best effort on shutdown

		js, err := jetstream.New(nc)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create JetStream context")
		}
		if _, err := event.EnsureStream(ctx, js, cfg.natsStream); err != nil {
			log.Fatal().Err(err).Msg("failed to ensure event stream")
		}
		sinks = append(sinks, event.NewNATSSink(js))
		checkers = append(checkers, handler.CheckFunc{Label: "nats", Fn: func(context.Context) error {
			if !nc.IsConnected() {
				return nats.ErrConnectionClosed
			}
			return nil
		}})
		log.Info().Str("stream", cfg.natsStream).Msg("NATS event sink enabled")
	}

	distributor := event.NewDistributor(event.DistributorConfig{
		Capacity:  cfg.eventCapacity,
		QueueSize: cfg.eventQueueSize,
		Sinks:     sinks,
		Metrics:   eventMetrics,
		Logger:    log,
	})
	ingestor := webhook.NewIngestor(webhook.IngestorConfig{
		Normalizers: []webhook.Normalizer{webhook.HikvisionNormalizer{}, webhook.AkuvoxNormalizer{}},
		Devices:     deviceService,
		Blobs:       blobs,
		Evidence:    adapters,
		Publisher:   distributor,
		Logger:      log,
	})

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go blob.NewSweeper(blob.SweeperConfig{
		Store:    blobs,
		Policy:   settingsService,
		Interval: cfg.blobSweepInterval,
		Logger:   log,
	}).Run(sweepCtx)

	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		Logger:      log,
		ServiceName: serviceName,
		Metrics:     httpMetrics,
		Verifier: auth.NewVerifier(auth.VerifierConfig{
			SigningKey: cfg.jwtSigningKey,
			Issuer:     cfg.jwtIssuer,
			Audience:   cfg.jwtAudience,
		}),
		RequireTLS:     cfg.requireTLS,
		AllowedOrigins: cfg.allowedOrigins,
		Devices:        deviceService,
		AccessLogs:     accessLogs,
		Adapters:       adapters,
		DeviceHealth:   adapters.Health(),
		Syncs:          syncs,
		Settings:       settingsService,
		Distributor:    distributor,
		Ingestor:       ingestor,
		Checkers:       checkers,
	})

	server := &http.Server{
		Addr:         ":" + cfg.port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	stopSweep()

	// Background syncs finish their in-flight item; the device state is rebuilt by re-running.
	done := make(chan struct{})
	go func() {
		syncs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Warn().Msg("sync sessions still running at shutdown")
	}

	log.Info().Msg("server stopped")
}
