package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"LendLedger/internal/event"
	"LendLedger/internal/observability"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	// EventSubjectPrefix roots outbound domain events: lend.events.{Name}.
	EventSubjectPrefix = "lend.events"
	EventStream        = "LEND_EVENTS"
)

// StreamPublisher is the slice of jetstream.JetStream the publisher uses.
type StreamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// OutboundPublisher publishes committed domain events for downstream
// consumers. Delivery is best effort; the event log stays authoritative.
type OutboundPublisher struct {
	js        StreamPublisher
	inputChan <-chan event.Emitted
	logger    zerolog.Logger

	// lastSeq and index number events within one command for dedup IDs.
	lastSeq int64
	index   int
}

func NewOutboundPublisher(js StreamPublisher, inputChan <-chan event.Emitted) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		logger:    observability.NewLogger("publisher"),
		lastSeq:   -1,
	}
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-op.inputChan:
			if !ok {
				return nil
			}
			if err := op.publish(ctx, evt); err != nil {
				op.logger.Warn().Int64("sequence", evt.Sequence).Str("event", evt.Name).Err(err).Msg("publish failed")
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, evt event.Emitted) error {
	if evt.Sequence != op.lastSeq {
		op.lastSeq = evt.Sequence
		op.index = 0
	} else {
		op.index++
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = op.js.Publish(ctx, EventSubject(evt.Name), data,
		jetstream.WithMsgID(fmt.Sprintf("%d-%d", evt.Sequence, op.index)))
	return err
}

// EventSubject returns the outbound subject for a domain event name.
func EventSubject(name string) string {
	return EventSubjectPrefix + "." + name
}

// EnsureOutboundStream creates the outbound events stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       EventStream,
		Subjects:   []string{EventSubjectPrefix + ".>"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     72 * time.Hour,
		Replicas:   1,
		Duplicates: 10 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	return nil
}
