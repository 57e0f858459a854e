package device

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

const deviceColumns = `id, name, brand, class, address, username, password, mac, capacity, created_at, updated_at`

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL device repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Get retrieves a device by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = $1`
	return r.scanDevice(r.pool.QueryRow(ctx, query, id))
}

// GetByMAC retrieves a device by its normalized MAC address.
func (r *PostgresRepository) GetByMAC(ctx context.Context, mac string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE mac_key = $1`
	return r.scanDevice(r.pool.QueryRow(ctx, query, NormalizeMAC(mac)))
}

// scanDevice scans a single device row.
func (r *PostgresRepository) scanDevice(row pgx.Row) (*Device, error) {
	var device Device

	err := row.Scan(
		&device.ID,
		&device.Name,
		&device.Brand,
		&device.Class,
		&device.Address,
		&device.Username,
		&device.Password,
		&device.MAC,
		&device.Capacity,
		&device.CreatedAt,
		&device.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}

	return &device, nil
}

// List retrieves devices ordered by name.
func (r *PostgresRepository) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	fetchLimit := limit + 1

	query := `
		SELECT ` + deviceColumns + `
		FROM devices
		WHERE ($1 = '' OR brand = $1)
		ORDER BY name, id
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, string(opts.Brand), fetchLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []*Device
	for rows.Next() {
		device, err := r.scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := &ListResult{
		Items: devices,
	}

	if len(devices) > limit {
		result.Items = devices[:limit]
		result.NextCursor = devices[limit-1].ID
	}

	return result, nil
}

// Create creates a new device.
func (r *PostgresRepository) Create(ctx context.Context, device *Device) error {
	query := `
		INSERT INTO devices (id, name, brand, class, address, username, password, mac, mac_key, capacity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.pool.Exec(ctx, query,
		device.ID,
		device.Name,
		device.Brand,
		device.Class,
		device.Address,
		device.Username,
		device.Password,
		device.MAC,
		NormalizeMAC(device.MAC),
		device.Capacity,
		device.CreatedAt,
		device.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDeviceExists
		}
		return err
	}
	return nil
}

// Update updates an existing device.
func (r *PostgresRepository) Update(ctx context.Context, device *Device) error {
	query := `
		UPDATE devices SET
			name = $2,
			address = $3,
			username = $4,
			password = $5,
			mac = $6,
			mac_key = $7,
			capacity = $8,
			updated_at = $9
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		device.ID,
		device.Name,
		device.Address,
		device.Username,
		device.Password,
		device.MAC,
		NormalizeMAC(device.MAC),
		device.Capacity,
		device.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

// Upsert creates or updates a device by ID.
// Returns true if a new device was created, false if updated.
func (r *PostgresRepository) Upsert(ctx context.Context, device *Device) (bool, error) {
	query := `
		INSERT INTO devices (id, name, brand, class, address, username, password, mac, mac_key, capacity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			brand = EXCLUDED.brand,
			class = EXCLUDED.class,
			address = EXCLUDED.address,
			username = EXCLUDED.username,
			password = EXCLUDED.password,
			mac = EXCLUDED.mac,
			mac_key = EXCLUDED.mac_key,
			capacity = EXCLUDED.capacity,
			updated_at = EXCLUDED.updated_at
		RETURNING (xmax = 0) AS inserted
	`

	var inserted bool
	err := r.pool.QueryRow(ctx, query,
		device.ID,
		device.Name,
		device.Brand,
		device.Class,
		device.Address,
		device.Username,
		device.Password,
		device.MAC,
		NormalizeMAC(device.MAC),
		device.Capacity,
		device.CreatedAt,
		device.UpdatedAt,
	).Scan(&inserted)

	if err != nil {
		return false, err
	}

	return inserted, nil
}

// Delete deletes a device.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM devices WHERE id = $1`, id)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
