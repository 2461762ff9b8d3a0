package core

import (
	"fmt"
	"strings"

	"LendLedger/internal/observability"
	"LendLedger/internal/state"
)

const oraclePartitionPrefix = "oracle:"

// SequenceValidator validates source sequences per partition. Oracle
// partitions tolerate gaps and drop stale quotes; every other partition is
// strict. Not thread-safe; only accessed from the deterministic core.
type SequenceValidator struct {
	expectedNextSeq map[string]int64 // partition -> next expected sequence
	metrics         *observability.Metrics
}

func NewSequenceValidator(metrics *observability.Metrics) *SequenceValidator {
	return &SequenceValidator{
		expectedNextSeq: make(map[string]int64),
		metrics:         metrics,
	}
}

// Check validates sourceSequence on partition without advancing it. stale
// reports an oracle quote at or below the last accepted sequence, which the
// caller treats as a no-op.
func (sv *SequenceValidator) Check(partition string, sourceSequence int64, isDuplicate bool) (stale bool, err error) {
	if partition == "" {
		return false, nil
	}
	expected := sv.expectedNextSeq[partition]

	if strings.HasPrefix(partition, oraclePartitionPrefix) {
		if sourceSequence < expected {
			return true, nil
		}
		if sourceSequence > expected && expected > 0 && sv.metrics != nil {
			sv.metrics.EventSequenceGap.WithLabelValues(partition).Inc()
		}
		return false, nil
	}

	switch {
	case sourceSequence == expected:
		return false, nil
	case sourceSequence < expected:
		if isDuplicate {
			return false, nil
		}
		if sv.metrics != nil {
			sv.metrics.EventOutOfOrder.WithLabelValues(partition).Inc()
		}
		return false, fmt.Errorf("%w: partition=%s, expected=%d, got=%d",
			state.ErrOutOfOrder, partition, expected, sourceSequence)
	default:
		if sv.metrics != nil {
			sv.metrics.EventSequenceGap.WithLabelValues(partition).Inc()
		}
		return false, fmt.Errorf("%w: partition=%s, expected=%d, got=%d",
			state.ErrSequenceGap, partition, expected, sourceSequence)
	}
}

// Advance records sourceSequence as accepted. Called only after the command
// committed, so a rejected command can be retried with the same sequence.
func (sv *SequenceValidator) Advance(partition string, sourceSequence int64) {
	if partition == "" {
		return
	}
	if sourceSequence+1 > sv.expectedNextSeq[partition] {
		sv.expectedNextSeq[partition] = sourceSequence + 1
	}
}

// GetExpectedSequence returns next expected sequence for a partition
func (sv *SequenceValidator) GetExpectedSequence(partition string) int64 {
	return sv.expectedNextSeq[partition]
}

// Partitions returns a copy of the per-partition state for snapshots.
func (sv *SequenceValidator) Partitions() map[string]int64 {
	out := make(map[string]int64, len(sv.expectedNextSeq))
	for k, v := range sv.expectedNextSeq {
		out[k] = v
	}
	return out
}

// RestorePartition initializes expected sequence (used during recovery)
func (sv *SequenceValidator) RestorePartition(partition string, next int64) {
	sv.expectedNextSeq[partition] = next
}
