package ingestion

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"VaultLedger/internal/event"
	"VaultLedger/internal/observability"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	EventStream        = "VAULT_EVENTS"
	EventSubjectPrefix = "vault.events."
)

// StreamPublisher is the publishing half of jetstream.JetStream.
type StreamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// OutboundPublisher publishes emitted events to NATS for downstream consumers.
// Subjects follow the pattern vault.events.{event_type}[.{owner}].
type OutboundPublisher struct {
	js        StreamPublisher
	inputChan <-chan *event.EventEnvelope
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

// OutboundEvent is the JSON body of a published event.
type OutboundEvent struct {
	Sequence       int64           `json:"sequence"`
	EventType      string          `json:"event_type"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Owner          *uuid.UUID      `json:"owner,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	StateHash      string          `json:"state_hash"`
	PrevHash       string          `json:"prev_hash"`
	Timestamp      time.Time       `json:"timestamp"`
}

func NewOutboundPublisher(js StreamPublisher, inputChan <-chan *event.EventEnvelope, metrics *observability.Metrics, logger zerolog.Logger) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		metrics:   metrics,
		logger:    logger.With().Str("component", "publisher").Logger(),
	}
}

// Run publishes until the context is cancelled or the input channel closes.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case env, ok := <-op.inputChan:
			if !ok {
				return nil
			}
			if op.metrics != nil {
				op.metrics.ChannelSize.WithLabelValues("publish").Set(float64(len(op.inputChan)))
			}

			if err := op.publish(ctx, env); err != nil {
				// Non-fatal: downstream consumers can read the event log directly.
				op.logger.Warn().Err(err).Int64("sequence", env.Sequence).Msg("outbound publish failed")
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, env *event.EventEnvelope) error {
	data, err := json.Marshal(ToOutbound(env))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	// The sequence doubles as the JetStream message id so a republished
	// envelope is dropped by the stream's duplicate window.
	_, err = op.js.Publish(ctx, EventSubject(env), data,
		jetstream.WithMsgID(strconv.FormatInt(env.Sequence, 10)))
	if err != nil {
		return err
	}
	if op.metrics != nil {
		op.metrics.EventsPublished.WithLabelValues(env.EventType.String()).Inc()
	}
	return nil
}

// EventSubject builds vault.events.{event_type}[.{owner}].
func EventSubject(env *event.EventEnvelope) string {
	subject := EventSubjectPrefix + env.EventType.Subject()
	if env.Owner != nil {
		subject += "." + env.Owner.String()
	}
	return subject
}

func ToOutbound(env *event.EventEnvelope) OutboundEvent {
	return OutboundEvent{
		Sequence:       env.Sequence,
		EventType:      env.EventType.String(),
		IdempotencyKey: env.IdempotencyKey,
		Owner:          env.Owner,
		Payload:        json.RawMessage(env.Payload),
		StateHash:      hex.EncodeToString(env.StateHash[:]),
		PrevHash:       hex.EncodeToString(env.PrevHash[:]),
		Timestamp:      env.Timestamp,
	}
}
