package accesslog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for access log persistence.
type Repository interface {
	// InsertBatch stores entries, skipping any already stored. It returns the number inserted.
	InsertBatch(ctx context.Context, entries []Entry) (int, error)

	// List returns entries, most recent first.
	List(ctx context.Context, opts ListOptions) ([]Entry, error)
}

type entryKey struct {
	deviceID   string
	source     Source
	externalID string
}

func newEntryID() string { return "log_" + uuid.New().String()[:22] }

// InMemoryRepository is an in-memory implementation of Repository.
type InMemoryRepository struct {
	mu      sync.RWMutex
	entries map[entryKey]Entry
}

// NewInMemoryRepository creates a new in-memory access log repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{entries: make(map[entryKey]Entry)}
}

// InsertBatch stores entries, skipping duplicates.
func (r *InMemoryRepository) InsertBatch(_ context.Context, entries []Entry) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	inserted := 0
	for _, e := range entries {
		k := entryKey{deviceID: e.DeviceID, source: e.Source, externalID: e.ExternalID}
		if _, ok := r.entries[k]; ok {
			continue
		}
		if e.ID == "" {
			e.ID = newEntryID()
		}
		e.CreatedAt = now
		r.entries[k] = e
		inserted++
	}
	return inserted, nil
}

// List returns entries, most recent first.
func (r *InMemoryRepository) List(_ context.Context, opts ListOptions) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if opts.DeviceID == "" || e.DeviceID == opts.DeviceID {
			items = append(items, e)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].OccurredAt.Equal(items[j].OccurredAt) {
			return items[i].ExternalID > items[j].ExternalID
		}
		return items[i].OccurredAt.After(items[j].OccurredAt)
	})

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

var _ Repository = (*InMemoryRepository)(nil)
