package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/gatewarden/gatewarden/internal/device"
	"github.com/gatewarden/gatewarden/internal/devicesync"
	"github.com/gatewarden/gatewarden/internal/terminal"
)

// Message is a queued job.
type Message struct {
	JobType  string `json:"job_type"`
	DeviceID string `json:"device_id,omitempty"`
	Mode     string `json:"mode"`
	Brand    string `json:"brand,omitempty"`
}

// Dispatch errors.
var (
	ErrInvalidMessage = errors.New("invalid job message")
	ErrUnknownJob     = errors.New("unknown job type")
)

// Dispatcher executes decoded job messages.
type Dispatcher struct {
	job    *SyncJob
	logger zerolog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(job *SyncJob, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{job: job, logger: logger}
}

// Dispatch decodes and runs one job.
func (d *Dispatcher) Dispatch(ctx context.Context, data []byte) error {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	mode := devicesync.Mode(strings.ToLower(msg.Mode))

	switch msg.JobType {
	case JobDeviceSync:
		if msg.DeviceID == "" {
			return fmt.Errorf("%w: device_id is required", ErrInvalidMessage)
		}
		_, err := d.job.RunDevice(ctx, msg.DeviceID, mode)
		return err
	case JobFleetSync:
		_, err := d.job.RunFleet(ctx, mode, device.Brand(strings.ToUpper(msg.Brand)))
		return err
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, msg.JobType)
	}
}

// Retryable reports whether a failed job should be redelivered: the device was busy or could
// not be reached. Anything else needs an operator and is acknowledged.
func Retryable(err error) bool {
	var ce *terminal.ConnectivityError
	return errors.Is(err, devicesync.ErrSyncInProgress) || errors.As(err, &ce)
}

// PubSubHandler receives jobs from a Pub/Sub subscription.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	dispatcher       *Dispatcher
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Dispatcher       *Dispatcher

	// MaxOutstanding bounds the jobs processed at once. Default: 4
	MaxOutstanding int

	Logger zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	outstanding := cfg.MaxOutstanding
	if outstanding <= 0 {
		outstanding = 4
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)
	subscriber.ReceiveSettings.MaxOutstandingMessages = outstanding
	// Imports of full terminals run for many minutes.
	subscriber.ReceiveSettings.MaxExtension = time.Hour

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		dispatcher:       cfg.Dispatcher,
		logger:           cfg.Logger,
	}, nil
}

// Start processes messages until ctx is done.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if h.handle(ctx, msg.ID, msg.Data) {
			msg.Ack()
		} else {
			msg.Nack()
		}
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

// handle runs one message and reports whether it should be acknowledged.
func (h *PubSubHandler) handle(ctx context.Context, id string, data []byte) bool {
	start := time.Now()
	logger := h.logger.With().Str("message_id", id).Logger()

	err := h.dispatcher.Dispatch(ctx, data)
	switch {
	case err == nil:
		logger.Info().Dur("duration", time.Since(start)).Msg("job completed")
		return true
	case Retryable(err):
		logger.Warn().Err(err).Msg("job failed, will be redelivered")
		return false
	default:
		logger.Error().Err(err).Msg("job failed permanently")
		return true
	}
}
