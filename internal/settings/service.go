package settings

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gatewarden/gatewarden/internal/blob"
)

// ErrUnknownSetting is returned when updating a key the service does not know.
var ErrUnknownSetting = errors.New("unknown setting")

// ErrInvalidSettingValue is returned when a value has the wrong type or range for its key.
var ErrInvalidSettingValue = errors.New("invalid setting value")

// ServiceConfig holds configuration for the settings service.
type ServiceConfig struct {
	Repository Repository
	Logger     zerolog.Logger
	CacheTTL   time.Duration
}

// Service reads settings through a short-lived cache and falls back to defaults when the
// repository fails.
type Service struct {
	repo     Repository
	logger   zerolog.Logger
	cacheTTL time.Duration
	defaults map[string]*Setting

	mu          sync.RWMutex
	cache       map[string]*Setting
	cacheExpiry time.Time
}

// NewService creates a new settings service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = time.Minute
	}
	return &Service{
		repo:     cfg.Repository,
		logger:   cfg.Logger,
		cacheTTL: cacheTTL,
		defaults: Defaults(),
		cache:    make(map[string]*Setting),
	}
}

// Get returns the setting for key: cached, stored, or default, in that order.
func (s *Service) Get(ctx context.Context, key string) *Setting {
	if v := s.cached(key); v != nil {
		return v
	}

	v, err := s.repo.Get(ctx, key)
	if err == nil {
		s.store(v)
		return v
	}
	if !errors.Is(err, ErrSettingNotFound) {
		s.logger.Warn().Err(err).Str("setting", key).Msg("failed to read setting, using default")
	}
	return s.defaults[key]
}

// All returns every setting, stored values merged over defaults, sorted by key.
func (s *Service) All(ctx context.Context) []Setting {
	merged := make(map[string]*Setting, len(s.defaults))
	for k, v := range s.defaults {
		merged[k] = v
	}

	stored, err := s.repo.All(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read settings, using defaults")
	} else {
		for k, v := range stored {
			merged[k] = v
		}
		s.mu.Lock()
		s.cache = stored
		s.cacheExpiry = time.Now().Add(s.cacheTTL)
		s.mu.Unlock()
	}

	out := make([]Setting, 0, len(merged))
	for _, v := range merged {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Update stores settings atomically. Unknown keys are rejected before anything is written.
func (s *Service) Update(ctx context.Context, updates []*Setting) error {
	for _, u := range updates {
		if !Known(u.Key) {
			return fmt.Errorf("%w: %s", ErrUnknownSetting, u.Key)
		}
		if !validValue(u.Key, u.Value) {
			return fmt.Errorf("%w: %s", ErrInvalidSettingValue, u.Key)
		}
	}
	if err := s.repo.Set(ctx, updates); err != nil {
		return err
	}

	now := time.Now()
	for _, u := range updates {
		u.UpdatedAt = now
		s.store(u)
	}
	s.logger.Info().Int("count", len(updates)).Msg("Settings updated")
	return nil
}

// InvalidateCache forces the next read to hit the repository.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*Setting)
	s.cacheExpiry = time.Time{}
}

// Retention returns the blob lifecycle policy.
func (s *Service) Retention(ctx context.Context) blob.Retention {
	r := make(blob.Retention, len(retentionKeys))
	for bucket, key := range retentionKeys {
		r[bucket] = s.Get(ctx, key).IntValue(0)
	}
	return r
}

// ExportsDisabled reports whether exports are switched off.
func (s *Service) ExportsDisabled(ctx context.Context) bool {
	return s.Get(ctx, KeyExportsDisabled).BoolValue(false)
}

func (s *Service) cached(key string) *Setting {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if time.Now().After(s.cacheExpiry) {
		return nil
	}
	return s.cache[key]
}

func (s *Service) store(v *Setting) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache[v.Key] = v
	if s.cacheExpiry.Before(time.Now()) {
		s.cacheExpiry = time.Now().Add(s.cacheTTL)
	}
}
