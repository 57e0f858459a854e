package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gatewarden/gatewarden/internal/device"
	"github.com/gatewarden/gatewarden/internal/devicesync"
)

// ErrExportsDisabled is returned for export jobs while operators have exports switched off.
var ErrExportsDisabled = errors.New("exports to devices are disabled")

// Runner executes one sync session to completion.
type Runner interface {
	Run(ctx context.Context, deviceID string, mode devicesync.Mode) (devicesync.Snapshot, error)
}

// DeviceLister enumerates registered devices.
type DeviceLister interface {
	List(ctx context.Context, opts device.ListOptions) (*device.ListResult, error)
}

// ExportPolicy reports whether exports are switched off.
type ExportPolicy interface {
	ExportsDisabled(ctx context.Context) bool
}

// SyncJob runs device sync sessions on behalf of queued jobs.
type SyncJob struct {
	config  JobConfig
	runner  Runner
	devices DeviceLister
	policy  ExportPolicy
	logger  zerolog.Logger

	metrics *JobMetrics
}

// JobMetrics tracks sync job statistics.
type JobMetrics struct {
	mu sync.RWMutex

	DeviceRuns int64
	Completed  int64
	Aborted    int64
	Skipped    int64

	LastRunAt       time.Time
	LastRunDuration time.Duration
}

// SyncJobConfig holds the dependencies of a SyncJob.
type SyncJobConfig struct {
	Config  JobConfig
	Runner  Runner
	Devices DeviceLister
	Policy  ExportPolicy
	Logger  zerolog.Logger
}

// NewSyncJob creates a sync job processor.
func NewSyncJob(cfg SyncJobConfig) *SyncJob {
	return &SyncJob{
		config:  cfg.Config.withDefaults(),
		runner:  cfg.Runner,
		devices: cfg.Devices,
		policy:  cfg.Policy,
		logger:  cfg.Logger,
		metrics: &JobMetrics{},
	}
}

// DeviceResult is the outcome of one device run within a job.
type DeviceResult struct {
	DeviceID string
	Snapshot devicesync.Snapshot
	Err      error
}

// FleetResult summarizes a fleet job.
type FleetResult struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Total     int
	Completed int
	Aborted   int
	Skipped   int
	Devices   []DeviceResult
}

// RunDevice runs one session and returns its final snapshot. A device already being synced
// is reported as devicesync.ErrSyncInProgress.
func (j *SyncJob) RunDevice(ctx context.Context, deviceID string, mode devicesync.Mode) (devicesync.Snapshot, error) {
	if !mode.Valid() {
		return devicesync.Snapshot{}, devicesync.ErrInvalidMode
	}
	if mode == devicesync.ModeExport && j.exportsDisabled(ctx) {
		return devicesync.Snapshot{}, ErrExportsDisabled
	}
	return j.run(ctx, deviceID, mode)
}

// RunFleet runs mode against every registered device, brand filtered when brand is set,
// with bounded concurrency. Per-device failures are collected, not returned.
func (j *SyncJob) RunFleet(ctx context.Context, mode devicesync.Mode, brand device.Brand) (*FleetResult, error) {
	if !mode.Valid() {
		return nil, devicesync.ErrInvalidMode
	}
	if mode == devicesync.ModeExport && j.exportsDisabled(ctx) {
		return nil, ErrExportsDisabled
	}

	listed, err := j.devices.List(ctx, device.ListOptions{Limit: j.config.MaxDevices, Brand: brand})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result := &FleetResult{StartTime: start, Total: len(listed.Items)}

	j.logger.Info().
		Str("mode", string(mode)).
		Str("brand", string(brand)).
		Int("devices", result.Total).
		Int("concurrency", j.config.Concurrency).
		Msg("starting fleet sync")

	ids := make(chan string, len(listed.Items))
	for _, d := range listed.Items {
		ids <- d.ID
	}
	close(ids)

	results := make(chan DeviceResult, len(listed.Items))
	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range ids {
				if ctx.Err() != nil {
					results <- DeviceResult{DeviceID: id, Err: ctx.Err()}
					continue
				}
				snap, err := j.run(ctx, id, mode)
				results <- DeviceResult{DeviceID: id, Snapshot: snap, Err: err}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	for dr := range results {
		switch {
		case errors.Is(dr.Err, devicesync.ErrSyncInProgress):
			result.Skipped++
		case dr.Err != nil:
			result.Aborted++
		default:
			result.Completed++
		}
		result.Devices = append(result.Devices, dr)
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(start)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("completed", result.Completed).
		Int("aborted", result.Aborted).
		Int("skipped", result.Skipped).
		Msg("fleet sync completed")

	return result, nil
}

func (j *SyncJob) run(ctx context.Context, deviceID string, mode devicesync.Mode) (devicesync.Snapshot, error) {
	runCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	start := time.Now()
	snap, err := j.runner.Run(runCtx, deviceID, mode)
	j.record(start, err)

	log := j.logger.With().Str("device_id", deviceID).Str("mode", string(mode)).Logger()
	switch {
	case errors.Is(err, devicesync.ErrSyncInProgress):
		log.Info().Msg("device busy, sync skipped")
	case err != nil:
		log.Warn().Err(err).Msg("device sync aborted")
	default:
		log.Info().
			Int("success", snap.Tally.Success).
			Int("failed", snap.Tally.Failed).
			Dur("duration", time.Since(start)).
			Msg("device sync completed")
	}
	return snap, err
}

func (j *SyncJob) exportsDisabled(ctx context.Context) bool {
	return j.policy != nil && j.policy.ExportsDisabled(ctx)
}

func (j *SyncJob) record(start time.Time, err error) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.DeviceRuns++
	switch {
	case errors.Is(err, devicesync.ErrSyncInProgress):
		j.metrics.Skipped++
	case err != nil:
		j.metrics.Aborted++
	default:
		j.metrics.Completed++
	}
	j.metrics.LastRunAt = time.Now()
	j.metrics.LastRunDuration = time.Since(start)
}

// MetricsSnapshot returns the job statistics as a map for the health endpoint.
func (j *SyncJob) MetricsSnapshot() map[string]interface{} {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return map[string]interface{}{
		"device_runs":       j.metrics.DeviceRuns,
		"completed":         j.metrics.Completed,
		"aborted":           j.metrics.Aborted,
		"skipped":           j.metrics.Skipped,
		"last_run_at":       j.metrics.LastRunAt,
		"last_run_duration": j.metrics.LastRunDuration.String(),
	}
}
