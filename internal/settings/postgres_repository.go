package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository stores settings as JSONB rows keyed by setting name.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL settings repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Get retrieves a single setting by key.
func (r *PostgresRepository) Get(ctx context.Context, key string) (*Setting, error) {
	query := `SELECT key, value, updated_at FROM settings WHERE key = $1`

	s, err := scanSetting(r.pool.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSettingNotFound
		}
		return nil, err
	}
	return s, nil
}

// All retrieves every stored setting.
func (r *PostgresRepository) All(ctx context.Context) (map[string]*Setting, error) {
	rows, err := r.pool.Query(ctx, `SELECT key, value, updated_at FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]*Setting)
	for rows.Next() {
		s, err := scanSetting(rows)
		if err != nil {
			return nil, err
		}
		result[s.Key] = s
	}
	return result, rows.Err()
}

const upsertSetting = `
	INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, $3)
	ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`

// Set writes all settings in one batch inside a transaction, so an operator update is
// applied whole or not at all.
func (r *PostgresRepository) Set(ctx context.Context, settings []*Setting) error {
	now := time.Now()
	batch := &pgx.Batch{}
	for _, s := range settings {
		value, err := json.Marshal(s.Value)
		if err != nil {
			return fmt.Errorf("encode setting %s: %w", s.Key, err)
		}
		batch.Queue(upsertSetting, s.Key, value, now)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
}

func scanSetting(row pgx.Row) (*Setting, error) {
	var (
		s         Setting
		valueJSON []byte
	)
	if err := row.Scan(&s.Key, &valueJSON, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(valueJSON, &s.Value); err != nil {
		return nil, err
	}
	return &s, nil
}

var _ Repository = (*PostgresRepository)(nil)
