package ingestion

import (
	"context"
	"fmt"

	"LendLedger/internal/core"
	"LendLedger/internal/event"
	"LendLedger/internal/observability"
)

// CommandIngestService accepts single commands over RPC. It is meant for
// admin operations and manual injection; bulk traffic goes through NATS.
type CommandIngestService struct {
	submitter Submitter
	metrics   *observability.Metrics
}

func NewCommandIngestService(submitter Submitter, metrics *observability.Metrics) *CommandIngestService {
	return &CommandIngestService{submitter: submitter, metrics: metrics}
}

// Submit parses a JSON command body and waits for the core's decision.
func (s *CommandIngestService) Submit(ctx context.Context, eventType string, payload []byte) (*core.Result, error) {
	et, ok := event.ParseEventType(eventType)
	if !ok {
		s.errorMetric("parse")
		return nil, fmt.Errorf("%w: unknown command %q", ErrInvalidPayload, eventType)
	}
	evt, err := ParseCommand(et, payload)
	if err != nil {
		s.errorMetric("parse")
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IngestReceived.WithLabelValues("rpc", et.String()).Inc()
	}

	res, err := s.submitter.Submit(ctx, evt)
	if err != nil {
		s.errorMetric("rejected")
		return nil, err
	}
	return res, nil
}

func (s *CommandIngestService) errorMetric(stage string) {
	if s.metrics != nil {
		s.metrics.IngestErrors.WithLabelValues("rpc", stage).Inc()
	}
}
