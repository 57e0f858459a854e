package event

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// DefaultQueueSize is the per-subscription delivery queue length.
const DefaultQueueSize = 64

// Sink receives every new event once, after it entered the history.
type Sink interface {
	Name() string
	Handle(ctx context.Context, e CanonicalEvent) error
}

// DistributorConfig configures a Distributor.
type DistributorConfig struct {
	Capacity  int
	QueueSize int
	Sinks     []Sink
	Metrics   *Metrics
	Logger    zerolog.Logger
}

// Distributor is the single writer of the event history. Observers subscribe to receive
// the history once followed by live events; a slow observer loses events instead of
// slowing ingestion.
type Distributor struct {
	buffer    *Buffer
	queueSize int
	sinks     []Sink
	metrics   *Metrics
	logger    zerolog.Logger

	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
}

// NewDistributor creates a Distributor.
func NewDistributor(cfg DistributorConfig) *Distributor {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Distributor{
		buffer:    NewBuffer(cfg.Capacity),
		queueSize: queueSize,
		sinks:     cfg.Sinks,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		subs:      make(map[uint64]*Subscription),
	}
}

// Publish records e and delivers it to every observer and sink. An event whose ID is
// already held is dropped; Publish then reports false.
func (d *Distributor) Publish(ctx context.Context, e CanonicalEvent) bool {
	d.mu.Lock()
	if !d.buffer.Add(e) {
		d.mu.Unlock()
		d.metrics.recordDuplicate(ctx, e.Source)
		d.logger.Debug().Str("event_id", e.ID).Msg("Duplicate event dropped")
		return false
	}
	for _, sub := range d.subs {
		select {
		case sub.ch <- e:
		default:
			sub.dropped.Add(1)
			d.metrics.recordDropped(ctx)
		}
	}
	d.mu.Unlock()

	d.metrics.recordPublished(ctx, e.Source, e.Decision)

	for _, sink := range d.sinks {
		if err := sink.Handle(ctx, e); err != nil {
			d.logger.Error().Err(err).
				Str("sink", sink.Name()).
				Str("event_id", e.ID).
				Msg("Event sink failed")
		}
	}
	return true
}

// Subscribe registers an observer. The returned history holds every event published
// before the subscription, most recent first; later events arrive on the subscription.
func (d *Distributor) Subscribe() (*Subscription, []CanonicalEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	sub := &Subscription{
		id: d.nextID,
		ch: make(chan CanonicalEvent, d.queueSize),
		d:  d,
	}
	d.subs[sub.id] = sub
	return sub, d.buffer.Snapshot()
}

// History returns the held events, most recent first.
func (d *Distributor) History() []CanonicalEvent {
	return d.buffer.Snapshot()
}

// Clear drops the history. Subscriptions stay open.
func (d *Distributor) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buffer.Clear()
	d.logger.Info().Msg("Event history cleared")
}

// Capacity returns the number of events the history holds.
func (d *Distributor) Capacity() int {
	return d.buffer.Capacity()
}

// Subscribers returns the number of open subscriptions.
func (d *Distributor) Subscribers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs)
}

func (d *Distributor) unsubscribe(sub *Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subs[sub.id]; ok {
		delete(d.subs, sub.id)
		close(sub.ch)
	}
}

// Subscription is one observer's delivery queue.
type Subscription struct {
	id      uint64
	ch      chan CanonicalEvent
	dropped atomic.Int64
	d       *Distributor
}

// Events returns the delivery channel. It is closed by Close.
func (s *Subscription) Events() <-chan CanonicalEvent {
	return s.ch
}

// Dropped returns the number of events lost because the queue was full.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Close unregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.d.unsubscribe(s)
}
