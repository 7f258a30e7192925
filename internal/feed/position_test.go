package feed

import (
	"testing"

	"krakenfeed/internal/models"
)

func TestPositionTrackerLong(t *testing.T) {
	p := NewPositionTracker()
	p.Replace(2, 100)
	pos := p.Current()
	if pos == nil {
		t.Fatalf("expected position")
	}
	if pos.Side != models.PositionLong || pos.Qty != 2 || pos.EntryPrice != 100 {
		t.Fatalf("unexpected position: %+v", pos)
	}
	if pnl := pos.PnL(110); pnl != 20 {
		t.Fatalf("expected pnl 20, got %v", pnl)
	}
	if pct := pos.PnLPercent(110); pct != 0.1 {
		t.Fatalf("expected pnl percent 0.1, got %v", pct)
	}
}

func TestPositionTrackerShort(t *testing.T) {
	p := NewPositionTracker()
	p.Replace(-3, 100)
	pos := p.Current()
	if pos == nil || pos.Side != models.PositionShort || pos.Qty != 3 {
		t.Fatalf("unexpected position: %+v", pos)
	}
	if pnl := pos.PnL(90); pnl != 30 {
		t.Fatalf("expected pnl 30, got %v", pnl)
	}
}

func TestPositionTrackerFlat(t *testing.T) {
	p := NewPositionTracker()
	p.Replace(2, 100)
	p.Replace(0, 0)
	if p.Current() != nil {
		t.Fatalf("expected flat position")
	}
}

func TestPositionTrackerCurrentIsCopy(t *testing.T) {
	p := NewPositionTracker()
	p.Replace(1, 100)
	pos := p.Current()
	pos.EntryPrice = 1
	if p.Current().EntryPrice != 100 {
		t.Fatalf("caller mutated tracked position")
	}
}
