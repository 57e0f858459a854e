// Package webhook turns vendor webhook requests into canonical events: the vendor is
// identified by route, its payload mapped field by field, and the result handed to the
// event distributor.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gatewarden/gatewarden/internal/blob"
	"github.com/gatewarden/gatewarden/internal/device"
	"github.com/gatewarden/gatewarden/internal/event"
)

// Ingestion errors.
var (
	ErrUnknownVendor    = errors.New("unknown webhook vendor")
	ErrMalformedPayload = errors.New("malformed webhook payload")
	ErrPayloadTooLarge  = errors.New("webhook body exceeds 8 MiB")
)

// MaxBodyBytes bounds a webhook body, images included.
const MaxBodyBytes = 8 << 20

// bodyError classifies a failed body read. Hitting the limit of an http.MaxBytesReader
// yields ErrPayloadTooLarge; other failures are malformed payloads.
func bodyError(what string, err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("%w: %s", ErrPayloadTooLarge, what)
	}
	return fmt.Errorf("%w: %s: %v", ErrMalformedPayload, what, err)
}

// Attachment is a file delivered with an event, such as a plate or face snapshot.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Normalized is the result of mapping one webhook request.
type Normalized struct {
	Event       event.CanonicalEvent
	Attachments []Attachment
}

// Normalizer maps the requests of one vendor.
type Normalizer interface {
	Source() event.Source
	Normalize(r *http.Request) (*Normalized, error)
}

// DeviceResolver finds the registered device behind a MAC address.
type DeviceResolver interface {
	LookupByMAC(ctx context.Context, mac string) (*device.Device, error)
}

// Publisher accepts canonical events.
type Publisher interface {
	Publish(ctx context.Context, e event.CanonicalEvent) bool
}

// EvidenceFetcher downloads a snapshot served by a terminal.
type EvidenceFetcher interface {
	FetchEvidence(ctx context.Context, d *device.Device, url string) ([]byte, string, error)
}

// IngestorConfig holds the dependencies of an Ingestor. Evidence may be nil, in which case
// linked snapshots are kept as references only.
type IngestorConfig struct {
	Normalizers []Normalizer
	Devices     DeviceResolver
	Blobs       blob.Store
	Evidence    EvidenceFetcher
	Publisher   Publisher
	Logger      zerolog.Logger
}

// Ingestor runs the receive, map and emit pipeline.
type Ingestor struct {
	normalizers map[string]Normalizer
	devices     DeviceResolver
	blobs       blob.Store
	evidence    EvidenceFetcher
	publisher   Publisher
	logger      zerolog.Logger
}

// NewIngestor creates an Ingestor.
func NewIngestor(cfg IngestorConfig) *Ingestor {
	byName := make(map[string]Normalizer, len(cfg.Normalizers))
	for _, n := range cfg.Normalizers {
		byName[string(n.Source())] = n
	}
	return &Ingestor{
		normalizers: byName,
		devices:     cfg.Devices,
		blobs:       cfg.Blobs,
		evidence:    cfg.Evidence,
		publisher:   cfg.Publisher,
		logger:      cfg.Logger,
	}
}

// Ingest normalizes a request received on the vendor's route and publishes the event. It
// returns the event and whether it was new.
func (in *Ingestor) Ingest(ctx context.Context, vendor string, r *http.Request) (*event.CanonicalEvent, bool, error) {
	n, ok := in.normalizers[strings.ToLower(vendor)]
	if !ok {
		return nil, false, fmt.Errorf("%w: %q", ErrUnknownVendor, vendor)
	}

	res, err := n.Normalize(r)
	if err != nil {
		return nil, false, err
	}
	e := &res.Event

	d := in.resolveDevice(ctx, e)
	in.storeEvidence(ctx, e, res.Attachments)
	if e.EvidenceKey == "" && e.EvidenceURL != "" {
		in.fetchEvidence(ctx, d, e)
	}

	created := in.publisher.Publish(ctx, *e)
	in.logger.Debug().
		Str("event_id", e.ID).
		Str("source", string(e.Source)).
		Str("category", e.Category).
		Str("decision", string(e.Decision)).
		Bool("new", created).
		Msg("Webhook event ingested")
	return e, created, nil
}

func (in *Ingestor) resolveDevice(ctx context.Context, e *event.CanonicalEvent) *device.Device {
	if in.devices == nil || e.DeviceMAC == "" {
		return nil
	}
	d, err := in.devices.LookupByMAC(ctx, e.DeviceMAC)
	if err != nil {
		if !errors.Is(err, device.ErrDeviceNotFound) {
			in.logger.Warn().Err(err).Str("mac", e.DeviceMAC).Msg("Resolving event device failed")
		}
		return nil
	}
	e.DeviceID = d.ID
	if e.DeviceName == "" {
		e.DeviceName = d.Name
	}
	return d
}

// storeEvidence keeps the first image attachment in the evidence bucket of the category.
func (in *Ingestor) storeEvidence(ctx context.Context, e *event.CanonicalEvent, attachments []Attachment) {
	if in.blobs == nil {
		return
	}
	for _, a := range attachments {
		if !strings.HasPrefix(a.ContentType, "image/") {
			continue
		}
		in.putEvidence(ctx, e, a.Data, a.ContentType)
		return
	}
}

// fetchEvidence downloads the snapshot linked by an event from its registered terminal.
// The link stays on the event when the image cannot be fetched.
func (in *Ingestor) fetchEvidence(ctx context.Context, d *device.Device, e *event.CanonicalEvent) {
	if in.blobs == nil || in.evidence == nil || d == nil {
		return
	}
	data, contentType, err := in.evidence.FetchEvidence(ctx, d, e.EvidenceURL)
	if err != nil {
		in.logger.Warn().Err(err).
			Str("device_id", d.ID).
			Str("url", e.EvidenceURL).
			Msg("Fetching event evidence failed")
		return
	}
	if !strings.HasPrefix(mediaType(contentType), "image/") {
		in.logger.Warn().Str("device_id", d.ID).Str("content_type", contentType).Msg("Event evidence is not an image")
		return
	}
	in.putEvidence(ctx, e, data, mediaType(contentType))
}

func (in *Ingestor) putEvidence(ctx context.Context, e *event.CanonicalEvent, data []byte, contentType string) {
	key := EvidenceKey(e)
	if err := in.blobs.Put(ctx, key, data, contentType); err != nil {
		in.logger.Warn().Err(err).Str("blob", key.String()).Msg("Storing event evidence failed")
		return
	}
	e.EvidenceKey = key.String()
}

// EvidenceKey returns the blob key of an event's snapshot.
func EvidenceKey(e *event.CanonicalEvent) blob.Key {
	bucket := blob.BucketFaceEvidence
	if e.Category == event.CategoryANPR {
		bucket = blob.BucketLPREvidence
	}
	return blob.Key{
		Bucket: bucket,
		Path:   e.Timestamp.UTC().Format("2006/01/02") + "/" + e.ID + ".jpg",
	}
}

func newEventID() string {
	return uuid.New().String()
}

func mediaType(header string) string {
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(header))
	}
	return mt
}

// rawPayload keeps a payload for diagnostics: JSON as is, anything else as a JSON string.
func rawPayload(data []byte) json.RawMessage {
	if json.Valid(data) {
		return json.RawMessage(data)
	}
	quoted, _ := json.Marshal(string(data))
	return quoted
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
