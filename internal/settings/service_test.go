package settings_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/internal/blob"
	"github.com/gatewarden/gatewarden/internal/settings"
)

func newService(repo settings.Repository) *settings.Service {
	return settings.NewService(settings.ServiceConfig{
		Repository: repo,
		Logger:     zerolog.Nop(),
		CacheTTL:   time.Minute,
	})
}

func TestService_Defaults(t *testing.T) {
	svc := newService(settings.NewInMemoryRepository())
	ctx := context.Background()

	assert.False(t, svc.ExportsDisabled(ctx))
	assert.Equal(t, blob.Retention{
		blob.BucketLPREvidence:  30,
		blob.BucketFaceEvidence: 30,
		blob.BucketFaces:        0,
	}, svc.Retention(ctx))

	all := svc.All(ctx)
	require.Len(t, all, 4)
	assert.Equal(t, settings.KeyFaceEvidenceRetentionDays, all[0].Key)
}

func TestService_Update(t *testing.T) {
	repo := settings.NewInMemoryRepository()
	svc := newService(repo)
	ctx := context.Background()

	err := svc.Update(ctx, []*settings.Setting{
		{Key: settings.KeyExportsDisabled, Value: true},
		{Key: settings.KeyLPREvidenceRetentionDays, Value: float64(7)},
	})
	require.NoError(t, err)

	assert.True(t, svc.ExportsDisabled(ctx))
	assert.Equal(t, 7, svc.Retention(ctx)[blob.BucketLPREvidence])

	stored, err := repo.Get(ctx, settings.KeyExportsDisabled)
	require.NoError(t, err)
	assert.Equal(t, true, stored.Value)
}

func TestService_UpdateRejectsUnknownKeys(t *testing.T) {
	repo := settings.NewInMemoryRepository()
	svc := newService(repo)
	ctx := context.Background()

	err := svc.Update(ctx, []*settings.Setting{
		{Key: settings.KeyExportsDisabled, Value: true},
		{Key: "sync.page_size", Value: true},
	})
	require.ErrorIs(t, err, settings.ErrUnknownSetting)

	_, err = repo.Get(ctx, settings.KeyExportsDisabled)
	assert.ErrorIs(t, err, settings.ErrSettingNotFound)
}

func TestService_UpdateRejectsInvalidValues(t *testing.T) {
	svc := newService(settings.NewInMemoryRepository())
	ctx := context.Background()

	tests := []struct {
		key   string
		value any
	}{
		{settings.KeyExportsDisabled, "yes"},
		{settings.KeyLPREvidenceRetentionDays, float64(-1)},
		{settings.KeyFaceEvidenceRetentionDays, 2.5},
		{settings.KeyFacesRetentionDays, "30"},
	}
	for _, tt := range tests {
		err := svc.Update(ctx, []*settings.Setting{{Key: tt.key, Value: tt.value}})
		assert.ErrorIs(t, err, settings.ErrInvalidSettingValue, tt.key)
	}

	require.NoError(t, svc.Update(ctx, []*settings.Setting{{Key: settings.KeyFacesRetentionDays, Value: float64(0)}}))
}

type brokenRepository struct{}

func (brokenRepository) Get(context.Context, string) (*settings.Setting, error) {
	return nil, errors.New("connection refused")
}

func (brokenRepository) All(context.Context) (map[string]*settings.Setting, error) {
	return nil, errors.New("connection refused")
}

func (brokenRepository) Set(context.Context, []*settings.Setting) error {
	return errors.New("connection refused")
}

func TestService_FallsBackToDefaults(t *testing.T) {
	svc := newService(brokenRepository{})
	ctx := context.Background()

	assert.False(t, svc.ExportsDisabled(ctx))
	assert.Equal(t, 30, svc.Retention(ctx)[blob.BucketFaceEvidence])
	assert.Len(t, svc.All(ctx), 4)
	assert.Error(t, svc.Update(ctx, []*settings.Setting{{Key: settings.KeyExportsDisabled, Value: true}}))
}

func TestService_CacheInvalidation(t *testing.T) {
	repo := settings.NewInMemoryRepository()
	svc := newService(repo)
	ctx := context.Background()

	require.NoError(t, svc.Update(ctx, []*settings.Setting{{Key: settings.KeyExportsDisabled, Value: true}}))

	// Written behind the service's back.
	require.NoError(t, repo.Set(ctx, []*settings.Setting{{Key: settings.KeyExportsDisabled, Value: false}}))
	assert.True(t, svc.ExportsDisabled(ctx))

	svc.InvalidateCache()
	assert.False(t, svc.ExportsDisabled(ctx))
}

func TestSetting_Values(t *testing.T) {
	var missing *settings.Setting
	assert.True(t, missing.BoolValue(true))
	assert.Equal(t, 5, missing.IntValue(5))

	assert.True(t, (&settings.Setting{Value: float64(1)}).BoolValue(false))
	assert.Equal(t, 3, (&settings.Setting{Value: float64(3.9)}).IntValue(0))
	assert.Equal(t, 9, (&settings.Setting{Value: "nine"}).IntValue(9))
}
