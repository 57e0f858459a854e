package event_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/internal/accesslog"
	"github.com/gatewarden/gatewarden/internal/event"
)

func ev(id string) event.CanonicalEvent {
	return event.CanonicalEvent{
		ID:        id,
		Timestamp: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		Source:    event.SourceHikvision,
		Category:  event.CategoryANPR,
		Decision:  event.DecisionGranted,
		Value:     "AB12CD",
	}
}

func ids(events []event.CanonicalEvent) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.ID)
	}
	return out
}

func TestBuffer_DedupAndOrder(t *testing.T) {
	b := event.NewBuffer(3)

	assert.True(t, b.Add(ev("a")))
	assert.True(t, b.Add(ev("b")))

	dup := ev("a")
	dup.Value = "OTHER"
	assert.False(t, b.Add(dup))

	snap := b.Snapshot()
	assert.Equal(t, []string{"b", "a"}, ids(snap))
	assert.Equal(t, "AB12CD", snap[1].Value, "a duplicate never overwrites")
}

func TestBuffer_EvictsOldest(t *testing.T) {
	b := event.NewBuffer(0)
	require.Equal(t, 500, b.Capacity())

	for i := 0; i < 501; i++ {
		require.True(t, b.Add(ev(fmt.Sprintf("e%03d", i))))
	}

	snap := b.Snapshot()
	require.Len(t, snap, 500)
	assert.Equal(t, "e500", snap[0].ID)
	assert.Equal(t, "e001", snap[499].ID)
	assert.False(t, b.Contains("e000"))

	// An evicted id is accepted again.
	assert.True(t, b.Add(ev("e000")))
	assert.Equal(t, 500, b.Len())
}

func TestBuffer_Clear(t *testing.T) {
	b := event.NewBuffer(2)
	b.Add(ev("a"))
	b.Add(ev("b"))
	b.Add(ev("c"))

	b.Clear()
	assert.Zero(t, b.Len())
	assert.Empty(t, b.Snapshot())
	assert.True(t, b.Add(ev("a")))
}

type recordingSink struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Handle(_ context.Context, e event.CanonicalEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e.ID)
	return s.err
}

func newDistributor(queueSize int, sinks ...event.Sink) *event.Distributor {
	return event.NewDistributor(event.DistributorConfig{
		QueueSize: queueSize,
		Sinks:     sinks,
		Logger:    zerolog.Nop(),
	})
}

func TestDistributor_HistoryThenLive(t *testing.T) {
	sink := &recordingSink{}
	d := newDistributor(8, sink)
	ctx := context.Background()

	d.Publish(ctx, ev("1"))
	d.Publish(ctx, ev("2"))

	sub, history := d.Subscribe()
	defer sub.Close()
	assert.Equal(t, []string{"2", "1"}, ids(history))

	assert.True(t, d.Publish(ctx, ev("3")))
	assert.False(t, d.Publish(ctx, ev("2")))
	assert.True(t, d.Publish(ctx, ev("4")))

	assert.Equal(t, "3", (<-sub.Events()).ID)
	assert.Equal(t, "4", (<-sub.Events()).ID)
	assert.Equal(t, []string{"1", "2", "3", "4"}, sink.events)
}

func TestDistributor_SlowSubscriberDrops(t *testing.T) {
	d := newDistributor(2)
	ctx := context.Background()

	slow, _ := d.Subscribe()
	defer slow.Close()

	for i := 0; i < 5; i++ {
		d.Publish(ctx, ev(fmt.Sprintf("e%d", i)))
	}

	assert.Equal(t, int64(3), slow.Dropped())
	assert.Equal(t, "e0", (<-slow.Events()).ID)
	assert.Equal(t, "e1", (<-slow.Events()).ID)
	assert.Len(t, d.History(), 5)
}

func TestDistributor_CloseAndClear(t *testing.T) {
	d := newDistributor(4)
	ctx := context.Background()

	sub, _ := d.Subscribe()
	assert.Equal(t, 1, d.Subscribers())

	sub.Close()
	sub.Close()
	assert.Zero(t, d.Subscribers())
	_, open := <-sub.Events()
	assert.False(t, open)

	d.Publish(ctx, ev("a"))
	d.Clear()
	assert.Empty(t, d.History())
	assert.True(t, d.Publish(ctx, ev("a")))
}

func TestDistributor_SinkErrorDoesNotBlock(t *testing.T) {
	sink := &recordingSink{err: errors.New("database down")}
	d := newDistributor(4, sink)

	assert.True(t, d.Publish(context.Background(), ev("a")))
	assert.Len(t, d.History(), 1)
	assert.Equal(t, []string{"a"}, sink.events)
}

func TestAccessLogSink(t *testing.T) {
	repo := accesslog.NewInMemoryRepository()
	sink := event.NewAccessLogSink(repo)
	ctx := context.Background()

	granted := ev("evt-1")
	granted.DeviceMAC = "aabbccddeeff"
	require.NoError(t, sink.Handle(ctx, granted))
	require.NoError(t, sink.Handle(ctx, granted))

	telemetry := ev("evt-2")
	telemetry.Decision = event.DecisionNone
	require.NoError(t, sink.Handle(ctx, telemetry))

	entries, err := repo.List(ctx, accesslog.ListOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "hikvision:aabbccddeeff", entries[0].DeviceID)
	assert.Equal(t, accesslog.SourceWebhook, entries[0].Source)
	assert.Equal(t, "GRANTED", entries[0].Decision)
	assert.Equal(t, "AB12CD", entries[0].Credential)
}

type fakePublisher struct {
	subject string
	payload []byte
	opts    int
}

func (p *fakePublisher) Publish(_ context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	p.subject = subject
	p.payload = payload
	p.opts = len(opts)
	return &jetstream.PubAck{Stream: "ACCESS_EVENTS", Sequence: 1}, nil
}

func TestNATSSink(t *testing.T) {
	pub := &fakePublisher{}
	sink := event.NewNATSSink(pub)

	e := ev("evt-9")
	e.Source = event.SourceAkuvox
	require.NoError(t, sink.Handle(context.Background(), e))

	assert.Equal(t, "access.events.akuvox", pub.subject)
	assert.Equal(t, 1, pub.opts)

	var decoded event.CanonicalEvent
	require.NoError(t, json.Unmarshal(pub.payload, &decoded))
	assert.Equal(t, "evt-9", decoded.ID)
	assert.Equal(t, event.DecisionGranted, decoded.Decision)
}
