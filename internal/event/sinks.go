package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/gatewarden/gatewarden/internal/accesslog"
)

// AccessLogSink persists events as webhook access log entries.
type AccessLogSink struct {
	repo accesslog.Repository
}

// NewAccessLogSink creates an AccessLogSink.
func NewAccessLogSink(repo accesslog.Repository) *AccessLogSink {
	return &AccessLogSink{repo: repo}
}

// Name implements Sink.
func (*AccessLogSink) Name() string { return "accesslog" }

// Handle implements Sink. Telemetry events without a decision are not persisted.
func (s *AccessLogSink) Handle(ctx context.Context, e CanonicalEvent) error {
	if e.Decision == DecisionNone {
		return nil
	}

	deviceID := e.DeviceID
	if deviceID == "" {
		deviceID = string(e.Source) + ":" + firstNonEmpty(e.DeviceMAC, e.DeviceName)
	}

	_, err := s.repo.InsertBatch(ctx, []accesslog.Entry{{
		DeviceID:    deviceID,
		Source:      accesslog.SourceWebhook,
		ExternalID:  e.ID,
		OccurredAt:  e.Timestamp,
		UserRef:     e.UserID,
		UserName:    e.UserName,
		Credential:  e.Value,
		Method:      e.Category,
		Decision:    string(e.Decision),
		EvidenceKey: e.EvidenceKey,
	}})
	if err != nil {
		return fmt.Errorf("persisting event %s: %w", e.ID, err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return "unknown"
}

// SubjectPrefix prefixes the subjects events are published on.
const SubjectPrefix = "access.events"

// Publisher is the part of a JetStream context the NATS sink uses.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NATSSink publishes events to JetStream on access.events.<source>. The event id is the
// message id, so the server drops re-published events.
type NATSSink struct {
	js Publisher
}

// NewNATSSink creates a NATSSink.
func NewNATSSink(js Publisher) *NATSSink {
	return &NATSSink{js: js}
}

// Name implements Sink.
func (*NATSSink) Name() string { return "nats" }

// Subject returns the subject an event is published on.
func Subject(e CanonicalEvent) string {
	return SubjectPrefix + "." + string(e.Source)
}

// Handle implements Sink.
func (s *NATSSink) Handle(ctx context.Context, e CanonicalEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if _, err := s.js.Publish(ctx, Subject(e), payload, jetstream.WithMsgID(e.ID)); err != nil {
		return fmt.Errorf("publishing event %s: %w", e.ID, err)
	}
	return nil
}

// EnsureStream creates the stream capturing every access event subject if it is missing.
func EnsureStream(ctx context.Context, js jetstream.JetStream, name string) (jetstream.Stream, error) {
	stream, err := js.Stream(ctx, name)
	if errors.Is(err, jetstream.ErrStreamNotFound) {
		stream, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:     name,
			Subjects: []string{SubjectPrefix + ".>"},
		})
		if err != nil {
			return nil, fmt.Errorf("creating stream %s: %w", name, err)
		}
		return stream, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting stream %s: %w", name, err)
	}
	return stream, nil
}
