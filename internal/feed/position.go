package feed

import (
	"math"

	"krakenfeed/internal/models"
)

// PositionTracker holds the current position for one instrument. Every
// open_positions message fully supersedes the previous state. Not safe for
// concurrent use.
type PositionTracker struct {
	position *models.Position
}

func NewPositionTracker() *PositionTracker {
	return &PositionTracker{}
}

// Replace installs the position derived from a feed payload. A zero balance
// or a missing entry for the instrument means flat, represented as nil. The
// sign of balance encodes the side.
func (p *PositionTracker) Replace(balance, entryPrice float64) {
	if balance == 0 {
		p.position = nil
		return
	}
	side := models.PositionLong
	if balance < 0 {
		side = models.PositionShort
	}
	p.position = &models.Position{
		Side:       side,
		EntryPrice: entryPrice,
		Qty:        math.Abs(balance),
	}
}

// Clear marks the position flat.
func (p *PositionTracker) Clear() {
	p.position = nil
}

// Current returns the position, nil when flat. The returned value is a copy.
func (p *PositionTracker) Current() *models.Position {
	if p.position == nil {
		return nil
	}
	pos := *p.position
	return &pos
}
