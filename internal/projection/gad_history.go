package projection

import (
	"sync"

	"LendLedger/internal/core"
	"LendLedger/internal/event"

	"github.com/google/uuid"
)

// GadHistoryEntry is one deleveraging step applied to a position.
type GadHistoryEntry struct {
	Sequence         int64
	Owner            uuid.UUID
	Cranker          uuid.UUID
	Asset            string
	RateBpsPerDay    int64
	LiquidatedAmount int64
	RewardAmount     int64
	LiquidatedUSD    int64
	DebtReducedUSD   int64
	LTVBeforeBps     int64
	LTVAfterBps      int64
}

// GadHistoryProjection keeps the most recent GAD executions per owner in
// memory for the query API. Safe for concurrent use.
type GadHistoryProjection struct {
	mu       sync.RWMutex
	perOwner int
	entries  map[uuid.UUID][]GadHistoryEntry
}

// NewGadHistoryProjection retains up to perOwner entries for each owner.
func NewGadHistoryProjection(perOwner int) *GadHistoryProjection {
	if perOwner <= 0 {
		perOwner = 256
	}
	return &GadHistoryProjection{
		perOwner: perOwner,
		entries:  make(map[uuid.UUID][]GadHistoryEntry),
	}
}

// Apply records every GadExecuted event of a core output.
func (p *GadHistoryProjection) Apply(out core.CoreOutput) {
	for _, e := range out.Events {
		g, ok := e.Event.(event.GadExecuted)
		if !ok {
			continue
		}
		p.AddEntry(GadHistoryEntry{
			Sequence:         e.Sequence,
			Owner:            g.Owner,
			Cranker:          g.Cranker,
			Asset:            g.Asset,
			RateBpsPerDay:    g.RateBpsPerDay,
			LiquidatedAmount: g.LiquidatedAmount,
			RewardAmount:     g.RewardAmount,
			LiquidatedUSD:    g.LiquidatedUSD,
			DebtReducedUSD:   g.DebtReducedUSD,
			LTVBeforeBps:     g.LTVBeforeBps,
			LTVAfterBps:      g.LTVAfterBps,
		})
	}
}

// AddEntry records one execution, evicting the owner's oldest when full.
func (p *GadHistoryProjection) AddEntry(entry GadHistoryEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	list := append(p.entries[entry.Owner], entry)
	if len(list) > p.perOwner {
		list = append(list[:0:0], list[len(list)-p.perOwner:]...)
	}
	p.entries[entry.Owner] = list
}

// QueryByOwner returns an owner's executions, newest first.
func (p *GadHistoryProjection) QueryByOwner(owner uuid.UUID, limit int) []GadHistoryEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()

	list := p.entries[owner]
	result := make([]GadHistoryEntry, 0, min(limit, len(list)))
	for i := len(list) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, list[i])
	}
	return result
}
