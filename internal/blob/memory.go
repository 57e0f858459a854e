package blob

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[Key]*Object
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[Key]*Object),
		now:     time.Now,
	}
}

// Put stores an object, replacing any existing one.
func (s *MemoryStore) Put(_ context.Context, key Key, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[key] = &Object{
		Key:         key,
		Data:        append([]byte(nil), data...),
		ContentType: contentType,
		CreatedAt:   s.now(),
	}
	return nil
}

// Get retrieves an object.
func (s *MemoryStore) Get(_ context.Context, key Key) (*Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	objCopy := *obj
	objCopy.Data = append([]byte(nil), obj.Data...)
	return &objCopy, nil
}

// Exists reports whether an object exists.
func (s *MemoryStore) Exists(_ context.Context, key Key) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.objects[key]
	return ok, nil
}

// Delete removes an object. Deleting a missing object is not an error.
func (s *MemoryStore) Delete(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.objects, key)
	return nil
}

// Expire deletes objects past their bucket's retention and returns how many were removed.
func (s *MemoryStore) Expire(_ context.Context, now time.Time, retention Retention) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, obj := range s.objects {
		cutoff, ok := retention.Cutoff(key.Bucket, now)
		if ok && obj.CreatedAt.Before(cutoff) {
			delete(s.objects, key)
			removed++
		}
	}
	return removed, nil
}

var (
	_ Store   = (*MemoryStore)(nil)
	_ Expirer = (*MemoryStore)(nil)
)
