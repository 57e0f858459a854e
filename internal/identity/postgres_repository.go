package identity

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL identity repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetUser retrieves a user by ID.
func (r *PostgresRepository) GetUser(ctx context.Context, id string) (*User, error) {
	query := `
		SELECT id, name, external_ref, source_device_id, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var u User
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&u.ID, &u.Name, &u.ExternalRef, &u.SourceDeviceID, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// UpsertIdentity enrolls a subject idempotently inside one transaction.
// Uniqueness is enforced by the credentials (type, key) and vehicles (plate_key) constraints.
func (r *PostgresRepository) UpsertIdentity(ctx context.Context, e Enrollment) (*UpsertResult, error) {
	p, err := prepare(e)
	if err != nil {
		return nil, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback error is not critical

	now := time.Now()
	result := &UpsertResult{}

	for _, k := range p.creds {
		owner, err := credentialOwner(ctx, tx, k)
		if err != nil {
			return nil, err
		}
		if owner != "" {
			result.UserID = owner
			break
		}
	}

	if result.UserID == "" && p.ExternalRef != "" {
		err := tx.QueryRow(ctx,
			`SELECT id FROM users WHERE external_ref = $1 AND source_device_id = $2 LIMIT 1`,
			p.ExternalRef, p.SourceDeviceID,
		).Scan(&result.UserID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
	}

	if result.UserID == "" {
		result.UserID = newUserID()
		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, name, external_ref, source_device_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)
		`, result.UserID, p.Name, p.ExternalRef, p.SourceDeviceID, now)
		if err != nil {
			return nil, err
		}
		result.UserCreated = true
	}

	for _, k := range p.creds {
		tag, err := tx.Exec(ctx, `
			INSERT INTO credentials (id, type, value, key, user_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (type, key) DO NOTHING
		`, newCredentialID(), k.typ, p.raw[k], k.key, result.UserID, now)
		if err != nil {
			return nil, err
		}
		if tag.RowsAffected() > 0 {
			result.CredentialsCreated++
		}

		if k.typ != CredentialPlate {
			continue
		}
		owner, err := credentialOwner(ctx, tx, k)
		if err != nil {
			return nil, err
		}
		tag, err = tx.Exec(ctx, `
			INSERT INTO vehicles (id, user_id, plate_key, description, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (plate_key) DO NOTHING
		`, newVehicleID(), owner, k.key, p.VehicleDescription, now)
		if err != nil {
			return nil, err
		}
		if tag.RowsAffected() > 0 {
			result.VehiclesCreated++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return result, nil
}

// credentialOwner returns the user owning a credential, or "" if it does not exist.
func credentialOwner(ctx context.Context, tx pgx.Tx, k credentialKey) (string, error) {
	var owner string
	err := tx.QueryRow(ctx,
		`SELECT user_id FROM credentials WHERE type = $1 AND key = $2`, k.typ, k.key,
	).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return owner, err
}

// ListCredentials lists credentials ordered by creation time.
func (r *PostgresRepository) ListCredentials(ctx context.Context, filter CredentialFilter) ([]*Credential, error) {
	query := `
		SELECT id, type, value, key, user_id, created_at
		FROM credentials
		WHERE cardinality($1::text[]) = 0 OR type = ANY($1)
		ORDER BY created_at, type, key
	`

	rows, err := r.pool.Query(ctx, query, typeStrings(filter.Types))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Credential
	for rows.Next() {
		var c Credential
		if err := rows.Scan(&c.ID, &c.Type, &c.Value, &c.Key, &c.UserID, &c.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &c)
	}
	return items, rows.Err()
}

// ListVehicles lists all vehicle profiles.
func (r *PostgresRepository) ListVehicles(ctx context.Context) ([]*Vehicle, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, plate_key, description, created_at
		FROM vehicles
		ORDER BY plate_key
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Vehicle
	for rows.Next() {
		var v Vehicle
		if err := rows.Scan(&v.ID, &v.UserID, &v.PlateKey, &v.Description, &v.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &v)
	}
	return items, rows.Err()
}

// ListIdentities lists users holding credentials of the filtered types.
func (r *PostgresRepository) ListIdentities(ctx context.Context, filter CredentialFilter) ([]*Identity, error) {
	query := `
		SELECT u.id, u.name, u.external_ref, u.source_device_id, u.created_at, u.updated_at,
			c.id, c.type, c.value, c.key, c.created_at
		FROM users u
		JOIN credentials c ON c.user_id = u.id
		WHERE cardinality($1::text[]) = 0 OR c.type = ANY($1)
		ORDER BY u.created_at, u.id, c.created_at, c.type, c.key
	`

	rows, err := r.pool.Query(ctx, query, typeStrings(filter.Types))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Identity
	var current *Identity
	for rows.Next() {
		var u User
		var c Credential
		err := rows.Scan(
			&u.ID, &u.Name, &u.ExternalRef, &u.SourceDeviceID, &u.CreatedAt, &u.UpdatedAt,
			&c.ID, &c.Type, &c.Value, &c.Key, &c.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		c.UserID = u.ID
		if current == nil || current.User.ID != u.ID {
			current = &Identity{User: u}
			items = append(items, current)
		}
		current.Credentials = append(current.Credentials, c)
	}
	return items, rows.Err()
}

func typeStrings(types []CredentialType) []string {
	out := make([]string, 0, len(types))
	for _, t := range types {
		out = append(out, string(t))
	}
	return out
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
