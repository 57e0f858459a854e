package blob

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps objects in the blobs table. Evidence images are small enough that a
// separate object store is not needed for a single site.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Put stores an object, replacing any existing one.
func (s *PostgresStore) Put(ctx context.Context, key Key, data []byte, contentType string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO blobs (bucket, path, data, content_type, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (bucket, path) DO UPDATE SET
			data = EXCLUDED.data,
			content_type = EXCLUDED.content_type,
			created_at = EXCLUDED.created_at
	`, string(key.Bucket), key.Path, data, contentType, time.Now())
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Get retrieves an object.
func (s *PostgresStore) Get(ctx context.Context, key Key) (*Object, error) {
	obj := &Object{Key: key}
	err := s.pool.QueryRow(ctx,
		`SELECT data, content_type, created_at FROM blobs WHERE bucket = $1 AND path = $2`,
		string(key.Bucket), key.Path,
	).Scan(&obj.Data, &obj.ContentType, &obj.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return obj, nil
}

// Exists reports whether an object exists.
func (s *PostgresStore) Exists(ctx context.Context, key Key) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM blobs WHERE bucket = $1 AND path = $2)`,
		string(key.Bucket), key.Path,
	).Scan(&exists)
	return exists, err
}

// Delete removes an object. Deleting a missing object is not an error.
func (s *PostgresStore) Delete(ctx context.Context, key Key) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM blobs WHERE bucket = $1 AND path = $2`, string(key.Bucket), key.Path)
	return err
}

// Expire deletes objects past their bucket's retention.
func (s *PostgresStore) Expire(ctx context.Context, now time.Time, retention Retention) (int, error) {
	removed := 0
	for _, bucket := range Buckets {
		cutoff, ok := retention.Cutoff(bucket, now)
		if !ok {
			continue
		}
		tag, err := s.pool.Exec(ctx, `DELETE FROM blobs WHERE bucket = $1 AND created_at < $2`, string(bucket), cutoff)
		if err != nil {
			return removed, fmt.Errorf("expire %s: %w", bucket, err)
		}
		removed += int(tag.RowsAffected())
	}
	return removed, nil
}

var (
	_ Store   = (*PostgresStore)(nil)
	_ Expirer = (*PostgresStore)(nil)
)
