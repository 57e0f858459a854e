package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// config is the API server configuration, read from the environment.
type config struct {
	port string

	jwtSigningKey string
	jwtIssuer     string
	jwtAudience   string

	requireTLS     bool
	allowedOrigins []string

	fleetFile     string
	deviceTimeout time.Duration
	pageSize      int

	syncItemDelay  time.Duration
	syncSafetyCap  int
	eventCapacity  int
	eventQueueSize int

	natsURL    string
	natsStream string

	blobSweepInterval time.Duration
	settingsCacheTTL  time.Duration
}

func loadConfig(log zerolog.Logger) config {
	cfg := config{
		port:              envString("APP_PORT", "8080"),
		jwtSigningKey:     os.Getenv("JWT_SIGNING_KEY"),
		jwtIssuer:         os.Getenv("JWT_ISSUER"),
		jwtAudience:       envString("JWT_AUDIENCE", "gatewarden-api"),
		requireTLS:        envString("REQUIRE_TLS", "false") == "true",
		allowedOrigins:    envList("ALLOWED_ORIGINS"),
		fleetFile:         os.Getenv("DEVICE_FLEET_FILE"),
		deviceTimeout:     envDuration("DEVICE_TIMEOUT", 10*time.Second),
		pageSize:          envInt("SYNC_PAGE_SIZE", 0),
		syncItemDelay:     envDuration("SYNC_ITEM_DELAY", 150*time.Millisecond),
		syncSafetyCap:     envInt("SYNC_FETCH_SAFETY_CAP", 15000),
		eventCapacity:     envInt("EVENT_BUFFER_CAPACITY", 500),
		eventQueueSize:    envInt("EVENT_QUEUE_SIZE", 64),
		natsURL:           os.Getenv("NATS_URL"),
		natsStream:        envString("NATS_STREAM", "ACCESS_EVENTS"),
		blobSweepInterval: envDuration("BLOB_SWEEP_INTERVAL", time.Hour),
		settingsCacheTTL:  envDuration("SETTINGS_CACHE_TTL", time.Minute),
	}

	if cfg.jwtSigningKey == "" {
		cfg.jwtSigningKey = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}

	return cfg
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n >= 0 {
		return n
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d >= 0 {
		return d
	}
	return def
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
