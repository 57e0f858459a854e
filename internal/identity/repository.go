package identity

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository errors.
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrEmptyEnrollment = errors.New("enrollment has no usable credential or reference")
)

// Repository defines the interface for identity persistence.
type Repository interface {
	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, id string) (*User, error)

	// UpsertIdentity enrolls a subject idempotently. A credential whose (type, key) already
	// exists is never re-created; plate keys without a vehicle profile get one.
	UpsertIdentity(ctx context.Context, e Enrollment) (*UpsertResult, error)

	// ListCredentials lists credentials, optionally filtered by type.
	ListCredentials(ctx context.Context, filter CredentialFilter) ([]*Credential, error)

	// ListVehicles lists all vehicle profiles.
	ListVehicles(ctx context.Context) ([]*Vehicle, error)

	// ListIdentities lists users holding at least one credential of the filtered types,
	// ordered by user creation time.
	ListIdentities(ctx context.Context, filter CredentialFilter) ([]*Identity, error)
}

type credentialKey struct {
	typ CredentialType
	key string
}

// prepared is an enrollment with its credentials normalized and deduplicated.
type prepared struct {
	Enrollment
	creds []credentialKey
	raw   map[credentialKey]string
}

func prepare(e Enrollment) (*prepared, error) {
	p := &prepared{Enrollment: e, raw: make(map[credentialKey]string)}
	for _, in := range e.Credentials {
		if !in.Type.Valid() {
			continue
		}
		k := credentialKey{typ: in.Type, key: NormalizeKey(in.Value)}
		if k.key == "" {
			continue
		}
		if _, dup := p.raw[k]; dup {
			continue
		}
		p.raw[k] = in.Value
		p.creds = append(p.creds, k)
	}
	if len(p.creds) == 0 && e.ExternalRef == "" {
		return nil, ErrEmptyEnrollment
	}
	return p, nil
}

func newUserID() string       { return "usr_" + uuid.New().String()[:22] }
func newCredentialID() string { return "crd_" + uuid.New().String()[:22] }
func newVehicleID() string    { return "veh_" + uuid.New().String()[:22] }

// InMemoryRepository is an in-memory implementation of Repository.
type InMemoryRepository struct {
	mu          sync.RWMutex
	users       map[string]*User
	credentials map[credentialKey]*Credential
	vehicles    map[string]*Vehicle // keyed by plate key
}

// NewInMemoryRepository creates a new in-memory identity repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		users:       make(map[string]*User),
		credentials: make(map[credentialKey]*Credential),
		vehicles:    make(map[string]*Vehicle),
	}
}

// GetUser retrieves a user by ID.
func (r *InMemoryRepository) GetUser(_ context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	userCopy := *u
	return &userCopy, nil
}

// UpsertIdentity enrolls a subject idempotently.
func (r *InMemoryRepository) UpsertIdentity(_ context.Context, e Enrollment) (*UpsertResult, error) {
	p, err := prepare(e)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	result := &UpsertResult{}

	for _, k := range p.creds {
		if c, ok := r.credentials[k]; ok {
			result.UserID = c.UserID
			break
		}
	}
	if result.UserID == "" && p.ExternalRef != "" {
		for _, u := range r.users {
			if u.ExternalRef == p.ExternalRef && u.SourceDeviceID == p.SourceDeviceID {
				result.UserID = u.ID
				break
			}
		}
	}
	if result.UserID == "" {
		u := &User{
			ID:             newUserID(),
			Name:           p.Name,
			ExternalRef:    p.ExternalRef,
			SourceDeviceID: p.SourceDeviceID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		r.users[u.ID] = u
		result.UserID = u.ID
		result.UserCreated = true
	}

	for _, k := range p.creds {
		owner := result.UserID
		if c, ok := r.credentials[k]; ok {
			owner = c.UserID
		} else {
			r.credentials[k] = &Credential{
				ID:        newCredentialID(),
				Type:      k.typ,
				Value:     p.raw[k],
				Key:       k.key,
				UserID:    owner,
				CreatedAt: now,
			}
			result.CredentialsCreated++
		}

		if k.typ != CredentialPlate {
			continue
		}
		if _, ok := r.vehicles[k.key]; !ok {
			r.vehicles[k.key] = &Vehicle{
				ID:          newVehicleID(),
				UserID:      owner,
				PlateKey:    k.key,
				Description: p.VehicleDescription,
				CreatedAt:   now,
			}
			result.VehiclesCreated++
		}
	}

	return result, nil
}

// ListCredentials lists credentials ordered by creation time.
func (r *InMemoryRepository) ListCredentials(_ context.Context, filter CredentialFilter) ([]*Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]*Credential, 0, len(r.credentials))
	for _, c := range r.credentials {
		if filter.matches(c.Type) {
			credCopy := *c
			items = append(items, &credCopy)
		}
	}
	sortCredentials(items)
	return items, nil
}

// ListVehicles lists all vehicle profiles.
func (r *InMemoryRepository) ListVehicles(_ context.Context) ([]*Vehicle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]*Vehicle, 0, len(r.vehicles))
	for _, v := range r.vehicles {
		vehicleCopy := *v
		items = append(items, &vehicleCopy)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].PlateKey < items[j].PlateKey })
	return items, nil
}

// ListIdentities lists users holding credentials of the filtered types.
func (r *InMemoryRepository) ListIdentities(_ context.Context, filter CredentialFilter) ([]*Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	creds := make([]*Credential, 0, len(r.credentials))
	for _, c := range r.credentials {
		if filter.matches(c.Type) {
			creds = append(creds, c)
		}
	}
	sortCredentials(creds)

	byUser := make(map[string]*Identity)
	for _, c := range creds {
		ident, ok := byUser[c.UserID]
		if !ok {
			u, exists := r.users[c.UserID]
			if !exists {
				continue
			}
			ident = &Identity{User: *u}
			byUser[c.UserID] = ident
		}
		ident.Credentials = append(ident.Credentials, *c)
	}

	items := make([]*Identity, 0, len(byUser))
	for _, ident := range byUser {
		items = append(items, ident)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].User.CreatedAt.Equal(items[j].User.CreatedAt) {
			return items[i].User.ID < items[j].User.ID
		}
		return items[i].User.CreatedAt.Before(items[j].User.CreatedAt)
	})
	return items, nil
}

func sortCredentials(items []*Credential) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			if items[i].Type == items[j].Type {
				return items[i].Key < items[j].Key
			}
			return items[i].Type < items[j].Type
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}

var _ Repository = (*InMemoryRepository)(nil)
