package projection_test

import (
	"testing"

	"LendLedger/internal/core"
	"LendLedger/internal/event"
	"LendLedger/internal/projection"

	"github.com/google/uuid"
)

func output(seq int64, events ...event.DomainEvent) core.CoreOutput {
	out := core.CoreOutput{Envelope: &event.EventEnvelope{Sequence: seq}}
	for _, e := range events {
		out.Events = append(out.Events, event.Emitted{Sequence: seq, Name: e.Name(), Event: e})
	}
	return out
}

func TestGadHistoryRecordsOnlyGadEvents(t *testing.T) {
	owner := uuid.New()
	p := projection.NewGadHistoryProjection(10)

	p.Apply(output(1, event.Borrowed{}))
	p.Apply(output(2, event.GadExecuted{Owner: owner, Asset: "SOL", LiquidatedAmount: 5, LTVBeforeBps: 8750, LTVAfterBps: 8600}))
	p.Apply(output(3, event.GadExecuted{Owner: owner, Asset: "SOL", LiquidatedAmount: 7}))

	got := p.QueryByOwner(owner, 10)
	if len(got) != 2 {
		t.Fatalf("entries: got %d, want 2", len(got))
	}
	if got[0].Sequence != 3 || got[1].Sequence != 2 {
		t.Errorf("order: got %d,%d, want newest first", got[0].Sequence, got[1].Sequence)
	}
	if got[1].LTVBeforeBps != 8750 || got[1].LTVAfterBps != 8600 {
		t.Errorf("ltv: got %d -> %d", got[1].LTVBeforeBps, got[1].LTVAfterBps)
	}
}

func TestGadHistoryEvictsOldestPerOwner(t *testing.T) {
	owner, other := uuid.New(), uuid.New()
	p := projection.NewGadHistoryProjection(2)

	for seq := int64(1); seq <= 4; seq++ {
		p.AddEntry(projection.GadHistoryEntry{Sequence: seq, Owner: owner})
	}
	p.AddEntry(projection.GadHistoryEntry{Sequence: 5, Owner: other})

	got := p.QueryByOwner(owner, 10)
	if len(got) != 2 || got[0].Sequence != 4 || got[1].Sequence != 3 {
		t.Fatalf("got %+v, want sequences 4,3", got)
	}
	if n := len(p.QueryByOwner(other, 10)); n != 1 {
		t.Errorf("other owner: got %d entries, want 1", n)
	}
	if n := len(p.QueryByOwner(owner, 1)); n != 1 {
		t.Errorf("limit: got %d entries, want 1", n)
	}
}
