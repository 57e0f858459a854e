// Package settings holds runtime-tunable operator settings: evidence retention and
// maintenance switches. Values are JSON documents, cached by the service.
package settings

import (
	"time"

	"github.com/gatewarden/gatewarden/internal/blob"
)

// Well-known setting keys.
const (
	// KeyLPREvidenceRetentionDays expires plate snapshots after this many days.
	KeyLPREvidenceRetentionDays = "retention.lpr_evidence_days"

	// KeyFaceEvidenceRetentionDays expires face snapshots after this many days.
	KeyFaceEvidenceRetentionDays = "retention.face_evidence_days"

	// KeyFacesRetentionDays expires enrolled face images copied from terminals.
	KeyFacesRetentionDays = "retention.faces_days"

	// KeyExportsDisabled rejects new exports while operators maintain the fleet.
	KeyExportsDisabled = "sync.exports_disabled"
)

// retentionKeys maps buckets to their retention setting.
var retentionKeys = map[blob.Bucket]string{
	blob.BucketLPREvidence:  KeyLPREvidenceRetentionDays,
	blob.BucketFaceEvidence: KeyFaceEvidenceRetentionDays,
	blob.BucketFaces:        KeyFacesRetentionDays,
}

// Setting is one runtime setting.
type Setting struct {
	Key       string    `json:"key"`
	Value     any       `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BoolValue returns the value as a boolean, or defaultValue.
func (s *Setting) BoolValue(defaultValue bool) bool {
	if s == nil {
		return defaultValue
	}
	switch v := s.Value.(type) {
	case bool:
		return v
	case float64:
		// JSON numbers decode as float64
		return v != 0
	default:
		return defaultValue
	}
}

// IntValue returns the value as an integer, or defaultValue.
func (s *Setting) IntValue(defaultValue int) int {
	if s == nil {
		return defaultValue
	}
	switch v := s.Value.(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return defaultValue
	}
}

// Defaults returns the settings in effect when nothing is stored.
func Defaults() map[string]*Setting {
	now := time.Now()
	return map[string]*Setting{
		KeyLPREvidenceRetentionDays:  {Key: KeyLPREvidenceRetentionDays, Value: 30, UpdatedAt: now},
		KeyFaceEvidenceRetentionDays: {Key: KeyFaceEvidenceRetentionDays, Value: 30, UpdatedAt: now},
		KeyFacesRetentionDays:        {Key: KeyFacesRetentionDays, Value: 0, UpdatedAt: now},
		KeyExportsDisabled:           {Key: KeyExportsDisabled, Value: false, UpdatedAt: now},
	}
}

// validValue reports whether v has the type the key expects. Retention periods are whole,
// non-negative day counts.
func validValue(key string, v any) bool {
	switch key {
	case KeyExportsDisabled:
		_, ok := v.(bool)
		return ok
	default:
		switch n := v.(type) {
		case float64:
			return n >= 0 && n == float64(int(n))
		case int:
			return n >= 0
		}
		return false
	}
}

// Known reports whether key is a setting the service understands.
func Known(key string) bool {
	_, ok := Defaults()[key]
	return ok
}
