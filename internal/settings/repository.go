package settings

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrSettingNotFound is returned when a setting is not stored.
var ErrSettingNotFound = errors.New("setting not found")

// Repository defines the interface for settings storage.
type Repository interface {
	// Get retrieves a single setting by key.
	Get(ctx context.Context, key string) (*Setting, error)

	// All retrieves every stored setting.
	All(ctx context.Context) (map[string]*Setting, error)

	// Set creates or updates settings atomically.
	Set(ctx context.Context, settings []*Setting) error
}

// InMemoryRepository is an in-memory implementation of Repository.
type InMemoryRepository struct {
	mu       sync.RWMutex
	settings map[string]*Setting
}

// NewInMemoryRepository creates a new in-memory settings repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{settings: make(map[string]*Setting)}
}

// Get retrieves a single setting by key.
func (r *InMemoryRepository) Get(_ context.Context, key string) (*Setting, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.settings[key]
	if !ok {
		return nil, ErrSettingNotFound
	}
	c := *s
	return &c, nil
}

// All retrieves every stored setting.
func (r *InMemoryRepository) All(_ context.Context) (map[string]*Setting, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*Setting, len(r.settings))
	for k, v := range r.settings {
		c := *v
		result[k] = &c
	}
	return result, nil
}

// Set creates or updates settings.
func (r *InMemoryRepository) Set(_ context.Context, settings []*Setting) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, s := range settings {
		c := *s
		c.UpdatedAt = now
		r.settings[s.Key] = &c
	}
	return nil
}

var _ Repository = (*InMemoryRepository)(nil)
