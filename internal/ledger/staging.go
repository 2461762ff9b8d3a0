package ledger

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// journalNamespace seeds deterministic batch and journal IDs so a replayed
// command produces byte-identical journals.
var journalNamespace = uuid.MustParse("6f1c2a3e-8d4b-5e7f-9a0b-1c2d3e4f5a6b")

// Custody is the atomic transfer capability the lending flows depend on.
// A transfer either succeeds in full or returns an error and has no effect.
type Custody interface {
	Transfer(kind JournalType, from, to AccountKey, amount int64) error
	Balance(key AccountKey) int64
}

// Staging collects the transfers of one command against a BalanceTracker.
// Balances observed through Staging include the pending transfers; nothing
// reaches the tracker until the built batch is applied.
type Staging struct {
	tracker   *BalanceTracker
	eventRef  string
	timestamp int64
	deltas    map[AccountKey]int64
	journals  []Journal
}

func NewStaging(tracker *BalanceTracker, eventRef string, timestamp int64) *Staging {
	return &Staging{
		tracker:   tracker,
		eventRef:  eventRef,
		timestamp: timestamp,
		deltas:    make(map[AccountKey]int64),
	}
}

// Balance returns the committed balance plus staged deltas.
func (s *Staging) Balance(key AccountKey) int64 {
	return s.tracker.GetBalance(key) + s.deltas[key]
}

// Transfer stages amount from -> to. A zero amount is a no-op.
func (s *Staging) Transfer(kind JournalType, from, to AccountKey, amount int64) error {
	if amount == 0 {
		return nil
	}
	if amount < 0 {
		return fmt.Errorf("transfer %s: negative amount %d", kind, amount)
	}
	if from.AssetID != to.AssetID {
		return fmt.Errorf("transfer %s: asset mismatch %s -> %s", kind, from.AccountPath(), to.AccountPath())
	}
	if from == to {
		return fmt.Errorf("transfer %s: self transfer on %s", kind, from.AccountPath())
	}
	if !from.MayGoNegative() && s.Balance(from) < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, from.AccountPath(), s.Balance(from), amount)
	}

	s.deltas[from] -= amount
	s.deltas[to] += amount
	s.journals = append(s.journals, Journal{
		EventRef:      s.eventRef,
		DebitAccount:  to,
		CreditAccount: from,
		AssetID:       from.AssetID,
		Amount:        amount,
		JournalType:   kind,
		Timestamp:     s.timestamp,
	})
	return nil
}

// Len returns the number of staged journals.
func (s *Staging) Len() int {
	return len(s.journals)
}

// Build assigns IDs and the global sequence and returns the batch. Returns
// nil when nothing was staged.
func (s *Staging) Build(sequence int64) *Batch {
	if len(s.journals) == 0 {
		return nil
	}
	batchID := uuid.NewSHA1(journalNamespace, []byte(s.eventRef))
	batch := &Batch{
		BatchID:   batchID,
		EventRef:  s.eventRef,
		Sequence:  sequence,
		Timestamp: s.timestamp,
		Journals:  make([]Journal, len(s.journals)),
	}
	for i, j := range s.journals {
		j.JournalID = uuid.NewSHA1(batchID, []byte(strconv.Itoa(i)))
		j.BatchID = batchID
		j.Sequence = sequence
		batch.Journals[i] = j
	}
	return batch
}
