package devicesync

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const unlockTimeout = 5 * time.Second

// PostgresLocker serializes device syncs across processes with session-level advisory
// locks. A held lock pins one pooled connection until it is released.
type PostgresLocker struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresLocker creates a PostgresLocker on the given pool.
func NewPostgresLocker(pool *pgxpool.Pool, logger zerolog.Logger) *PostgresLocker {
	return &PostgresLocker{pool: pool, logger: logger}
}

// TryLock implements Locker.
func (l *PostgresLocker) TryLock(ctx context.Context, deviceID string) (func(), bool, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquiring lock connection: %w", err)
	}

	var locked bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, lockKey(deviceID)).Scan(&locked); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("taking device lock: %w", err)
	}
	if !locked {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
		defer cancel()
		if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, lockKey(deviceID)); err != nil {
			// A session-level lock lives as long as its connection.
			l.logger.Warn().Err(err).Str("device_id", deviceID).Msg("Releasing device lock failed")
			_ = conn.Conn().Close(ctx)
		}
		conn.Release()
	}
	return unlock, true, nil
}

func lockKey(deviceID string) string {
	return "devicesync:" + deviceID
}
