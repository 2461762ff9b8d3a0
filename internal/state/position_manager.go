package state

import (
	"bytes"
	"sort"

	"github.com/google/uuid"
)

// PositionManager owns the committed positions, one per owner.
type PositionManager struct {
	positions map[uuid.UUID]*Position
}

func NewPositionManager() *PositionManager {
	return &PositionManager{
		positions: make(map[uuid.UUID]*Position),
	}
}

// GetPosition returns the committed position or nil.
func (pm *PositionManager) GetPosition(owner uuid.UUID) *Position {
	return pm.positions[owner]
}

// Put replaces the committed position for its owner.
func (pm *PositionManager) Put(pos *Position) {
	pm.positions[pos.Owner] = pos
}

func (pm *PositionManager) Count() int {
	return len(pm.positions)
}

// Owners returns every owner in byte order.
func (pm *PositionManager) Owners() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(pm.positions))
	for id := range pm.positions {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

// AllPositions returns positions ordered by owner.
func (pm *PositionManager) AllPositions() []*Position {
	owners := pm.Owners()
	out := make([]*Position, 0, len(owners))
	for _, id := range owners {
		out = append(out, pm.positions[id])
	}
	return out
}

// Restore replaces every position from a snapshot.
func (pm *PositionManager) Restore(positions []*Position) {
	pm.positions = make(map[uuid.UUID]*Position, len(positions))
	for _, p := range positions {
		pm.positions[p.Owner] = p
	}
}
