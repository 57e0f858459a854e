package device

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FleetFile is the on-disk description of the terminals to register at startup.
//
//	devices:
//	  - id: gate-north
//	    name: North gate LPR
//	    brand: hikvision
//	    class: lpr_camera
//	    address: http://10.0.0.21
//	    username: admin
//	    password: secret
type FleetFile struct {
	Devices []FleetEntry `yaml:"devices"`
}

// FleetEntry is one device in a fleet file.
type FleetEntry struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Brand    string `yaml:"brand"`
	Class    string `yaml:"class"`
	Address  string `yaml:"address"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	MAC      string `yaml:"mac"`
	Capacity int    `yaml:"capacity"`
}

// ParseFleet decodes and validates a fleet document.
func ParseFleet(data []byte) ([]*Device, error) {
	var file FleetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decoding fleet file: %w", err)
	}

	now := time.Now()
	seen := make(map[string]bool, len(file.Devices))
	devices := make([]*Device, 0, len(file.Devices))
	for i, e := range file.Devices {
		d := &Device{
			ID:        e.ID,
			Name:      e.Name,
			Brand:     Brand(strings.ToUpper(e.Brand)),
			Class:     Class(strings.ToUpper(e.Class)),
			Address:   strings.TrimRight(e.Address, "/"),
			Username:  e.Username,
			Password:  e.Password,
			MAC:       e.MAC,
			Capacity:  e.Capacity,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if d.ID == "" {
			return nil, fmt.Errorf("fleet entry %d: id is required", i)
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("fleet entry %d: duplicate id %q", i, d.ID)
		}
		seen[d.ID] = true
		if d.Name == "" {
			d.Name = d.ID
		}
		if !d.Brand.Valid() {
			return nil, fmt.Errorf("fleet entry %q: unsupported brand %q", d.ID, e.Brand)
		}
		if !d.Class.Valid() {
			return nil, fmt.Errorf("fleet entry %q: unsupported class %q", d.ID, e.Class)
		}
		if msg := validateAddress(d.Address); msg != "" {
			return nil, fmt.Errorf("fleet entry %q: %s", d.ID, msg)
		}
		devices = append(devices, d)
	}

	return devices, nil
}

// LoadFleet reads a fleet file and upserts every device into the repository.
// It returns the number of devices newly created.
func LoadFleet(ctx context.Context, repo Repository, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading fleet file: %w", err)
	}

	devices, err := ParseFleet(data)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, d := range devices {
		isNew, err := repo.Upsert(ctx, d)
		if err != nil {
			return created, fmt.Errorf("registering device %q: %w", d.ID, err)
		}
		if isNew {
			created++
		}
	}

	return created, nil
}
