package devicesync_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/internal/device"
	"github.com/gatewarden/gatewarden/internal/devicesync"
	"github.com/gatewarden/gatewarden/internal/identity"
	"github.com/gatewarden/gatewarden/internal/terminal"
)

func newManager(t *testing.T, adapter *fakeAdapter) *devicesync.Manager {
	t.Helper()
	return newLockedManager(t, adapter, nil)
}

func newLockedManager(t *testing.T, adapter *fakeAdapter, locker devicesync.Locker) *devicesync.Manager {
	t.Helper()
	repo := device.NewInMemoryRepository()
	require.NoError(t, repo.Create(context.Background(), adapter.dev))

	return devicesync.NewManager(devicesync.ManagerConfig{
		Devices:  device.NewService(repo),
		Adapters: staticAdapters{adapter: adapter},
		Executor: devicesync.NewExecutor(devicesync.ExecutorConfig{
			Identities: identity.NewInMemoryRepository(),
			Logger:     zerolog.Nop(),
		}),
		Locker: locker,
		Logger: zerolog.Nop(),
	})
}

// sharedLocker stands in for a lock service shared by several processes.
type sharedLocker struct {
	mu   sync.Mutex
	held map[string]bool
	err  error
}

func newSharedLocker() *sharedLocker {
	return &sharedLocker{held: make(map[string]bool)}
}

func (l *sharedLocker) TryLock(_ context.Context, deviceID string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held[deviceID] {
		return nil, false, nil
	}
	l.held[deviceID] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, deviceID)
	}, true, nil
}

func (l *sharedLocker) holding(deviceID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[deviceID]
}

func TestManager_OneSessionPerDevice(t *testing.T) {
	adapter := newFakeAdapter(device.ClassFaceTerminal, terminal.IdentityRecord{UserRef: "u1", CardCode: "C1"})
	adapter.block = make(chan struct{})
	m := newManager(t, adapter)
	ctx := context.Background()

	snap, err := m.Start(ctx, "dev_test", devicesync.ModeImport)
	require.NoError(t, err)
	assert.Equal(t, devicesync.ModeImport, snap.Mode)
	assert.True(t, m.Running("dev_test"))

	_, err = m.Start(ctx, "dev_test", devicesync.ModeExport)
	require.ErrorIs(t, err, devicesync.ErrSyncInProgress)

	_, err = m.Preview(ctx, "dev_test")
	require.ErrorIs(t, err, devicesync.ErrSyncInProgress)

	close(adapter.block)
	m.Wait()

	assert.False(t, m.Running("dev_test"))
	got, err := m.Get("dev_test")
	require.NoError(t, err)
	assert.Equal(t, devicesync.StateCompleted, got.State)
	assert.Equal(t, 1, got.Tally.Success)

	again, err := m.Run(ctx, "dev_test", devicesync.ModeImport)
	require.NoError(t, err)
	assert.Equal(t, devicesync.StateCompleted, again.State)
	assert.Zero(t, again.Tally.Success)
}

func TestManager_Reset(t *testing.T) {
	adapter := newFakeAdapter(device.ClassFaceTerminal, terminal.IdentityRecord{UserRef: "u1", CardCode: "C1"})
	m := newManager(t, adapter)

	require.ErrorIs(t, m.Reset("dev_test"), devicesync.ErrNoSession)

	_, err := m.Run(context.Background(), "dev_test", devicesync.ModeImport)
	require.NoError(t, err)

	require.NoError(t, m.Reset("dev_test"))
	_, err = m.Get("dev_test")
	require.ErrorIs(t, err, devicesync.ErrNoSession)
}

func TestManager_Errors(t *testing.T) {
	adapter := newFakeAdapter(device.ClassFaceTerminal)
	m := newManager(t, adapter)
	ctx := context.Background()

	_, err := m.Start(ctx, "dev_test", devicesync.Mode("mirror"))
	require.ErrorIs(t, err, devicesync.ErrInvalidMode)

	_, err = m.Start(ctx, "dev_missing", devicesync.ModeImport)
	require.ErrorIs(t, err, device.ErrDeviceNotFound)

	plan, err := m.Preview(ctx, "dev_test")
	require.NoError(t, err)
	assert.Empty(t, plan.ToSync)
}

func TestManager_LockSpansManagers(t *testing.T) {
	locker := newSharedLocker()
	adapter := newFakeAdapter(device.ClassFaceTerminal, terminal.IdentityRecord{UserRef: "u1", CardCode: "C1"})
	adapter.block = make(chan struct{})
	api := newLockedManager(t, adapter, locker)
	worker := newLockedManager(t, adapter, locker)
	ctx := context.Background()

	_, err := api.Start(ctx, "dev_test", devicesync.ModeImport)
	require.NoError(t, err)
	assert.True(t, locker.holding("dev_test"))

	_, err = worker.Run(ctx, "dev_test", devicesync.ModeExport)
	require.ErrorIs(t, err, devicesync.ErrSyncInProgress)
	assert.False(t, worker.Running("dev_test"))
	_, err = worker.Get("dev_test")
	require.ErrorIs(t, err, devicesync.ErrNoSession)

	_, err = worker.Preview(ctx, "dev_test")
	require.ErrorIs(t, err, devicesync.ErrSyncInProgress)

	close(adapter.block)
	api.Wait()
	assert.False(t, locker.holding("dev_test"))

	snap, err := worker.Run(ctx, "dev_test", devicesync.ModeImport)
	require.NoError(t, err)
	assert.Equal(t, devicesync.StateCompleted, snap.State)
	assert.False(t, locker.holding("dev_test"))
}

func TestManager_LockerFailure(t *testing.T) {
	locker := newSharedLocker()
	locker.err = errors.New("connection refused")
	m := newLockedManager(t, newFakeAdapter(device.ClassFaceTerminal), locker)

	_, err := m.Start(context.Background(), "dev_test", devicesync.ModeImport)
	require.ErrorIs(t, err, locker.err)
	assert.False(t, m.Running("dev_test"))

	_, err = m.Preview(context.Background(), "dev_test")
	require.ErrorIs(t, err, locker.err)
}
