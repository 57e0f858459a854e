package device

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gatewarden/gatewarden/internal/api/models"
)

// MaxNameLength bounds operator-facing device names.
const MaxNameLength = 80

// Service provides device registry operations.
type Service struct {
	repo Repository
}

// NewService creates a new device service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List retrieves registered devices.
func (s *Service) List(ctx context.Context, brand string, limit int) (*models.PagedDevices, error) {
	result, err := s.repo.List(ctx, ListOptions{Limit: limit, Brand: Brand(strings.ToUpper(brand))})
	if err != nil {
		return nil, err
	}

	items := make([]models.Device, 0, len(result.Items))
	for _, d := range result.Items {
		items = append(items, toAPIDevice(d))
	}

	var nextCursor *string
	if result.NextCursor != "" {
		nextCursor = &result.NextCursor
	}

	return &models.PagedDevices{
		Items: items,
		Meta: models.ListMeta{
			Count:      len(items),
			Limit:      limit,
			NextCursor: nextCursor,
		},
	}, nil
}

// Get retrieves a device by ID.
func (s *Service) Get(ctx context.Context, id string) (*models.Device, error) {
	device, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	result := toAPIDevice(device)
	return &result, nil
}

// Lookup returns the domain record, credentials included, for use by sync and webhook code.
func (s *Service) Lookup(ctx context.Context, id string) (*Device, error) {
	return s.repo.Get(ctx, id)
}

// LookupByMAC returns the device reporting the given MAC address.
func (s *Service) LookupByMAC(ctx context.Context, mac string) (*Device, error) {
	return s.repo.GetByMAC(ctx, mac)
}

// Create registers a new device.
func (s *Service) Create(ctx context.Context, input *models.DeviceCreateRequest) (*models.Device, error) {
	if fieldErrors := validateCreateInput(input); len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	now := time.Now()
	id := input.ID
	if id == "" {
		id = "dev_" + uuid.New().String()[:22]
	}

	device := &Device{
		ID:        id,
		Name:      strings.TrimSpace(input.Name),
		Brand:     Brand(strings.ToUpper(input.Brand)),
		Class:     Class(strings.ToUpper(input.Class)),
		Address:   strings.TrimRight(input.Address, "/"),
		Username:  input.Username,
		Password:  input.Password,
		MAC:       input.MAC,
		Capacity:  input.Capacity,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, device); err != nil {
		return nil, err
	}

	result := toAPIDevice(device)
	return &result, nil
}

// Update updates an existing device. Brand and class are immutable.
func (s *Service) Update(ctx context.Context, id string, input *models.DeviceUpdateRequest) (*models.Device, error) {
	device, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if fieldErrors := validateUpdateInput(input); len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	if input.Name != nil {
		device.Name = strings.TrimSpace(*input.Name)
	}
	if input.Address != nil {
		device.Address = strings.TrimRight(*input.Address, "/")
	}
	if input.Username != nil {
		device.Username = *input.Username
	}
	if input.Password != nil {
		device.Password = *input.Password
	}
	if input.MAC != nil {
		device.MAC = *input.MAC
	}
	if input.Capacity != nil {
		device.Capacity = *input.Capacity
	}
	device.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, device); err != nil {
		return nil, err
	}

	result := toAPIDevice(device)
	return &result, nil
}

// Delete removes a device from the registry.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

func validateCreateInput(input *models.DeviceCreateRequest) []models.FieldError {
	var errs []models.FieldError

	name := strings.TrimSpace(input.Name)
	if name == "" {
		errs = append(errs, models.FieldError{Field: "name", Message: "name is required"})
	} else if len(name) > MaxNameLength {
		errs = append(errs, models.FieldError{Field: "name", Message: "name must be at most 80 characters"})
	}
	if !Brand(strings.ToUpper(input.Brand)).Valid() {
		errs = append(errs, models.FieldError{Field: "brand", Message: "brand must be HIKVISION or AKUVOX"})
	}
	if !Class(strings.ToUpper(input.Class)).Valid() {
		errs = append(errs, models.FieldError{Field: "class", Message: "class must be LPR_CAMERA or FACE_TERMINAL"})
	}
	if Brand(strings.ToUpper(input.Brand)) == BrandAkuvox && Class(strings.ToUpper(input.Class)) == ClassLPRCamera {
		errs = append(errs, models.FieldError{Field: "class", Message: "AKUVOX devices are face terminals"})
	}
	if msg := validateAddress(input.Address); msg != "" {
		errs = append(errs, models.FieldError{Field: "address", Message: msg})
	}
	if input.Capacity < 0 {
		errs = append(errs, models.FieldError{Field: "capacity", Message: "capacity must not be negative"})
	}

	return errs
}

func validateUpdateInput(input *models.DeviceUpdateRequest) []models.FieldError {
	var errs []models.FieldError

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" || len(name) > MaxNameLength {
			errs = append(errs, models.FieldError{Field: "name", Message: "name must be 1-80 characters"})
		}
	}
	if input.Address != nil {
		if msg := validateAddress(*input.Address); msg != "" {
			errs = append(errs, models.FieldError{Field: "address", Message: msg})
		}
	}
	if input.Capacity != nil && *input.Capacity < 0 {
		errs = append(errs, models.FieldError{Field: "capacity", Message: "capacity must not be negative"})
	}

	return errs
}

func validateAddress(address string) string {
	if address == "" {
		return "address is required"
	}
	u, err := url.Parse(address)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "address must be an http(s) base URL"
	}
	return ""
}

// toAPIDevice converts a domain Device to an API Device.
func toAPIDevice(d *Device) models.Device {
	return models.Device{
		ID:        d.ID,
		Name:      d.Name,
		Brand:     string(d.Brand),
		Class:     string(d.Class),
		Address:   d.Address,
		MAC:       d.MAC,
		Capacity:  d.EffectiveCapacity(),
		CreatedAt: models.Timestamp(d.CreatedAt),
		UpdatedAt: models.Timestamp(d.UpdatedAt),
	}
}

// ValidationError represents validation errors.
type ValidationError struct {
	Errors []models.FieldError
}

func (e *ValidationError) Error() string {
	return "validation failed"
}
