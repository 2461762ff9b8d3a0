package ingestion

import (
	"context"
	"errors"

	"LendLedger/internal/core"
	"LendLedger/internal/event"
	"LendLedger/internal/observability"
	"LendLedger/internal/state"

	"github.com/rs/zerolog"
)

// Submitter hands a command to the core and waits for the decision.
// *core.Runner implements it.
type Submitter interface {
	Submit(ctx context.Context, evt event.Event) (*core.Result, error)
}

// Pump moves parsed messages from a subscriber into the core.
//
// A message is acked once the core has decided on it, accepted or
// rejected: rejections are deterministic and redelivery would only repeat
// them. Gap errors are the exception, since an earlier message of the same
// partition may still be in flight; those are nakked for redelivery.
type Pump struct {
	source    string
	in        <-chan RawEvent
	submitter Submitter
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewPump(source string, in <-chan RawEvent, submitter Submitter, metrics *observability.Metrics) *Pump {
	return &Pump{
		source:    source,
		in:        in,
		submitter: submitter,
		metrics:   metrics,
		logger:    observability.NewLogger("ingest").With().Str("source", source).Logger(),
	}
}

// Run drains the input until ctx is cancelled or the input is closed.
func (p *Pump) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-p.in:
			if !ok {
				return nil
			}
			p.handle(ctx, raw)
		}
	}
}

func (p *Pump) handle(ctx context.Context, raw RawEvent) {
	evt, err := ParseRawEvent(raw)
	if err != nil {
		p.errorMetric("parse")
		p.logger.Warn().Str("subject", raw.Subject).Err(err).Msg("dropping unparseable message")
		ack(raw)
		return
	}
	if p.metrics != nil {
		p.metrics.IngestReceived.WithLabelValues(p.source, evt.EventType().String()).Inc()
	}

	res, err := p.submitter.Submit(ctx, evt)
	switch {
	case err == nil:
		ack(raw)
		if res.Duplicate || res.Stale {
			p.logger.Debug().
				Str("event_type", evt.EventType().String()).
				Str("key", evt.IdempotencyKey()).
				Bool("duplicate", res.Duplicate).
				Bool("stale", res.Stale).
				Msg("command ignored")
		}
	case errors.Is(err, context.Canceled), errors.Is(err, core.ErrRunnerStopped):
		nak(raw)
	case errors.Is(err, state.ErrSequenceGap):
		p.errorMetric("sequence")
		nak(raw)
	default:
		p.errorMetric("rejected")
		p.logger.Info().
			Str("event_type", evt.EventType().String()).
			Str("key", evt.IdempotencyKey()).
			Err(err).
			Msg("command rejected")
		ack(raw)
	}
}

func (p *Pump) errorMetric(stage string) {
	if p.metrics != nil {
		p.metrics.IngestErrors.WithLabelValues(p.source, stage).Inc()
	}
}

func ack(raw RawEvent) {
	if raw.AckFunc != nil {
		raw.AckFunc()
	}
}

func nak(raw RawEvent) {
	if raw.NakFunc != nil {
		raw.NakFunc()
	}
}
