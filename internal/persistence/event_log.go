package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"LendLedger/internal/event"

	"github.com/google/uuid"
)

// EventLogReader reads the command log back for recovery.
type EventLogReader struct {
	db *sql.DB
}

func NewEventLogReader(db *sql.DB) *EventLogReader {
	return &EventLogReader{db: db}
}

// LoadEventsFrom loads up to limit envelopes starting at fromSequence.
func (r *EventLogReader) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]*event.EventEnvelope, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, partition_key, caller, payload,
		       state_hash, prev_hash, timestamp, source_sequence
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*event.EventEnvelope
	for rows.Next() {
		var (
			row       EventRow
			partition sql.NullString
			caller    string
		)
		if err := rows.Scan(
			&row.Sequence, &row.EventType, &row.IdempotencyKey, &partition, &caller,
			&row.Payload, &row.StateHash, &row.PrevHash, &row.Timestamp, &row.SourceSequence,
		); err != nil {
			return nil, err
		}
		if partition.Valid {
			row.Partition = &partition.String
		}
		if row.Caller, err = uuid.Parse(caller); err != nil {
			return nil, fmt.Errorf("event %d caller: %w", row.Sequence, err)
		}
		env, err := EnvelopeFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, rows.Err()
}

// GetLatestSequence returns the highest logged sequence, or -1 for an
// empty log.
func (r *EventLogReader) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM event_log.events`).Scan(&seq); err != nil {
		return 0, err
	}
	if !seq.Valid {
		return -1, nil
	}
	return seq.Int64, nil
}

// EnvelopeFromRow is the inverse of EventRowFromEnvelope.
func EnvelopeFromRow(row EventRow) (*event.EventEnvelope, error) {
	et, ok := event.ParseEventType(row.EventType)
	if !ok {
		return nil, fmt.Errorf("event %d: unknown type %q", row.Sequence, row.EventType)
	}
	if len(row.StateHash) != 32 || len(row.PrevHash) != 32 {
		return nil, fmt.Errorf("event %d: malformed hash", row.Sequence)
	}
	env := &event.EventEnvelope{
		Sequence:       row.Sequence,
		IdempotencyKey: row.IdempotencyKey,
		EventType:      et,
		Caller:         row.Caller,
		Timestamp:      row.Timestamp.UTC(),
		SourceSequence: row.SourceSequence,
		Payload:        row.Payload,
	}
	if row.Partition != nil {
		env.Partition = *row.Partition
	}
	copy(env.StateHash[:], row.StateHash)
	copy(env.PrevHash[:], row.PrevHash)
	return env, nil
}
