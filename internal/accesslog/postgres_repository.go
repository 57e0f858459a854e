package accesslog

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL access log repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// InsertBatch stores entries in one round trip. Duplicates are skipped by the
// (device_id, source, external_id) unique constraint.
func (r *PostgresRepository) InsertBatch(ctx context.Context, entries []Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO access_logs (
			id, device_id, source, external_id, occurred_at, user_ref, user_name,
			credential, method, decision, evidence_key, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (device_id, source, external_id) DO NOTHING
	`

	now := time.Now()
	batch := &pgx.Batch{}
	for _, e := range entries {
		id := e.ID
		if id == "" {
			id = newEntryID()
		}
		batch.Queue(query,
			id, e.DeviceID, e.Source, e.ExternalID, e.OccurredAt, e.UserRef, e.UserName,
			e.Credential, e.Method, e.Decision, e.EvidenceKey, now,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range entries {
		tag, err := results.Exec()
		if err != nil {
			return inserted, err
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// List returns entries, most recent first.
func (r *PostgresRepository) List(ctx context.Context, opts ListOptions) ([]Entry, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, device_id, source, external_id, occurred_at, user_ref, user_name,
			credential, method, decision, evidence_key, created_at
		FROM access_logs
		WHERE ($1 = '' OR device_id = $1)
		ORDER BY occurred_at DESC, external_id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, opts.DeviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Entry
	for rows.Next() {
		var e Entry
		err := rows.Scan(
			&e.ID, &e.DeviceID, &e.Source, &e.ExternalID, &e.OccurredAt, &e.UserRef, &e.UserName,
			&e.Credential, &e.Method, &e.Decision, &e.EvidenceKey, &e.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
