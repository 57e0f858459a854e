// Package worker runs queued device sync jobs outside the API process.
package worker

import (
	"os"
	"strconv"
	"time"
)

// Job types carried in the job_type field of a queue message.
const (
	// JobDeviceSync imports into or exports from one device.
	JobDeviceSync = "device_sync"

	// JobFleetSync runs the same mode against every registered device, optionally of one brand.
	JobFleetSync = "fleet_sync"
)

// JobConfig holds configuration for sync jobs.
type JobConfig struct {
	// Concurrency is the number of devices a fleet job syncs at once.
	// Default: 2
	Concurrency int

	// Timeout bounds a single device run.
	// Default: 30 minutes
	Timeout time.Duration

	// MaxDevices caps the devices a fleet job enumerates.
	// Default: 1000
	MaxDevices int
}

// DefaultJobConfig returns the default job configuration.
func DefaultJobConfig() JobConfig {
	return JobConfig{
		Concurrency: 2,
		Timeout:     30 * time.Minute,
		MaxDevices:  1000,
	}
}

// JobConfigFromEnv reads WORKER_CONCURRENCY, WORKER_DEVICE_TIMEOUT and WORKER_MAX_DEVICES,
// keeping defaults for unset or invalid values.
func JobConfigFromEnv() JobConfig {
	cfg := DefaultJobConfig()
	if n, err := strconv.Atoi(os.Getenv("WORKER_CONCURRENCY")); err == nil && n > 0 {
		cfg.Concurrency = n
	}
	if d, err := time.ParseDuration(os.Getenv("WORKER_DEVICE_TIMEOUT")); err == nil && d > 0 {
		cfg.Timeout = d
	}
	if n, err := strconv.Atoi(os.Getenv("WORKER_MAX_DEVICES")); err == nil && n > 0 {
		cfg.MaxDevices = n
	}
	return cfg
}

func (c JobConfig) withDefaults() JobConfig {
	def := DefaultJobConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.MaxDevices <= 0 {
		c.MaxDevices = def.MaxDevices
	}
	return c
}
