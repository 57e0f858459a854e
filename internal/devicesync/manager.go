package devicesync

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/gatewarden/gatewarden/internal/device"
	"github.com/gatewarden/gatewarden/internal/terminal"
)

// Manager errors.
var (
	ErrSyncInProgress = errors.New("a sync is already running for this device")
	ErrNoSession      = errors.New("no sync session for this device")
	ErrInvalidMode    = errors.New("invalid sync mode")
)

// DeviceSource resolves device records.
type DeviceSource interface {
	Lookup(ctx context.Context, id string) (*device.Device, error)
}

// AdapterSource selects the adapter of a device.
type AdapterSource interface {
	ForDevice(d *device.Device) (terminal.Adapter, error)
}

// Locker holds device locks shared by every process that runs syncs. TryLock reports
// false when another holder has the device; unlock releases a lock it granted.
type Locker interface {
	TryLock(ctx context.Context, deviceID string) (unlock func(), ok bool, err error)
}

// ManagerConfig holds the dependencies of a Manager. Without a Locker, devices are only
// locked within this process.
type ManagerConfig struct {
	Devices  DeviceSource
	Adapters AdapterSource
	Executor *Executor
	Locker   Locker
	Logger   zerolog.Logger
}

// Manager owns the sync sessions of the fleet. It admits one running session per device.
type Manager struct {
	devices  DeviceSource
	adapters AdapterSource
	executor *Executor
	locker   Locker
	logger   zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session // latest session per device
	running  map[string]*Session
	wg       sync.WaitGroup
}

// NewManager creates a Manager.
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		devices:  cfg.Devices,
		adapters: cfg.Adapters,
		executor: cfg.Executor,
		locker:   cfg.Locker,
		logger:   cfg.Logger,
		sessions: make(map[string]*Session),
		running:  make(map[string]*Session),
	}
}

// Start launches a session in the background and returns its initial snapshot.
func (m *Manager) Start(ctx context.Context, deviceID string, mode Mode) (Snapshot, error) {
	adapter, s, release, err := m.acquire(ctx, deviceID, mode)
	if err != nil {
		return Snapshot{}, err
	}

	runCtx := context.WithoutCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer release()
		_ = m.executor.Run(runCtx, adapter, s)
	}()

	return s.Snapshot(), nil
}

// Run executes a session synchronously and returns its final snapshot together with the
// error that aborted it, if any.
func (m *Manager) Run(ctx context.Context, deviceID string, mode Mode) (Snapshot, error) {
	adapter, s, release, err := m.acquire(ctx, deviceID, mode)
	if err != nil {
		return Snapshot{}, err
	}
	defer release()

	err = m.executor.Run(ctx, adapter, s)
	return s.Snapshot(), err
}

// Get returns the latest session of a device.
func (m *Manager) Get(deviceID string) (Snapshot, error) {
	m.mu.Lock()
	s, ok := m.sessions[deviceID]
	m.mu.Unlock()
	if !ok {
		return Snapshot{}, ErrNoSession
	}
	return s.Snapshot(), nil
}

// Reset discards the latest session of a device. A running session stops before its next
// item; the device stays locked until the in-flight item completes.
func (m *Manager) Reset(deviceID string) error {
	m.mu.Lock()
	s, ok := m.sessions[deviceID]
	delete(m.sessions, deviceID)
	m.mu.Unlock()

	if !ok {
		return ErrNoSession
	}
	s.Abandon()
	m.logger.Info().Str("device_id", deviceID).Str("session_id", s.ID()).Msg("Sync session reset")
	return nil
}

// Preview reconciles a device against the central store without writing anything. It is
// refused while a session holds the device.
func (m *Manager) Preview(ctx context.Context, deviceID string) (*Reconciliation, error) {
	if m.Running(deviceID) {
		return nil, ErrSyncInProgress
	}
	if m.locker != nil {
		unlock, ok, err := m.locker.TryLock(ctx, deviceID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrSyncInProgress
		}
		unlock()
	}

	d, err := m.devices.Lookup(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	adapter, err := m.adapters.ForDevice(d)
	if err != nil {
		return nil, err
	}
	return m.executor.Preview(ctx, adapter)
}

// Running reports whether a session holds the device lock.
func (m *Manager) Running(deviceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[deviceID]
	return ok
}

// Wait blocks until every background session has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) acquire(ctx context.Context, deviceID string, mode Mode) (terminal.Adapter, *Session, func(), error) {
	if !mode.Valid() {
		return nil, nil, nil, ErrInvalidMode
	}

	d, err := m.devices.Lookup(ctx, deviceID)
	if err != nil {
		return nil, nil, nil, err
	}
	adapter, err := m.adapters.ForDevice(d)
	if err != nil {
		return nil, nil, nil, err
	}

	m.mu.Lock()
	if _, busy := m.running[deviceID]; busy {
		m.mu.Unlock()
		return nil, nil, nil, ErrSyncInProgress
	}
	s := NewSession(deviceID, mode)
	m.running[deviceID] = s
	m.mu.Unlock()

	unlock, err := m.lockFleet(ctx, deviceID)
	if err != nil {
		m.drop(deviceID, s)
		return nil, nil, nil, err
	}

	m.mu.Lock()
	m.sessions[deviceID] = s
	m.mu.Unlock()

	release := func() {
		unlock()
		m.drop(deviceID, s)
	}
	return adapter, s, release, nil
}

// lockFleet takes the cross-process lock of a device.
func (m *Manager) lockFleet(ctx context.Context, deviceID string) (func(), error) {
	if m.locker == nil {
		return func() {}, nil
	}
	unlock, ok, err := m.locker.TryLock(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if !ok {
		m.logger.Info().Str("device_id", deviceID).Msg("Device is being synced by another process")
		return nil, ErrSyncInProgress
	}
	return unlock, nil
}

func (m *Manager) drop(deviceID string, s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running[deviceID] == s {
		delete(m.running, deviceID)
	}
}
