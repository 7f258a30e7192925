package models

import (
	"math"
	"testing"
)

func TestSideOpposite(t *testing.T) {
	if SideBuy.Opposite() != SideSell || SideSell.Opposite() != SideBuy {
		t.Fatalf("opposite sides wrong")
	}
}

func TestPositionPnL(t *testing.T) {
	long := Position{Side: PositionLong, EntryPrice: 100, Qty: 2}
	if pnl := long.PnL(110); pnl != 20 {
		t.Errorf("long pnl = %v, want 20", pnl)
	}
	if pct := long.PnLPercent(110); pct != 0.1 {
		t.Errorf("long pnl percent = %v, want 0.1", pct)
	}

	short := Position{Side: PositionShort, EntryPrice: 100, Qty: 2}
	if pnl := short.PnL(110); pnl != -20 {
		t.Errorf("short pnl = %v, want -20", pnl)
	}
	if pnl := short.PnL(90); pnl != 20 {
		t.Errorf("short pnl = %v, want 20", pnl)
	}
}

func TestPositionPnLPercentZeroNotional(t *testing.T) {
	p := Position{Side: PositionLong, EntryPrice: 0, Qty: 0}
	if pct := p.PnLPercent(100); pct != 0 {
		t.Fatalf("expected 0 for zero notional, got %v", pct)
	}
}

func TestOpenOrderRemainingAndLive(t *testing.T) {
	o := OpenOrder{Qty: 10, Filled: 4}
	if o.Remaining() != 6 {
		t.Errorf("remaining = %v, want 6", o.Remaining())
	}
	if !o.Live() {
		t.Errorf("partially filled order should be live")
	}
	o.Filled = 10
	if o.Live() {
		t.Errorf("fully filled order should not be live")
	}
}

func TestImpactPrice(t *testing.T) {
	levels := []PriceLevel{{Price: 100, Qty: 1}, {Price: 99, Qty: 2}}

	price, filled := ImpactPrice(levels, 2)
	if filled != 2 {
		t.Fatalf("filled = %v, want 2", filled)
	}
	if price != 99.5 {
		t.Fatalf("price = %v, want 99.5", price)
	}
}

func TestImpactPricePartial(t *testing.T) {
	levels := []PriceLevel{{Price: 100, Qty: 1}}
	price, filled := ImpactPrice(levels, 5)
	if filled != 1 || price != 100 {
		t.Fatalf("got price=%v filled=%v, want 100/1", price, filled)
	}
}

func TestImpactPriceDegenerate(t *testing.T) {
	if price, filled := ImpactPrice(nil, 2); price != 0 || filled != 0 {
		t.Fatalf("empty book should give zeros")
	}
	if price, filled := ImpactPrice([]PriceLevel{{Price: 100, Qty: 1}}, 0); price != 0 || filled != 0 {
		t.Fatalf("zero size should give zeros")
	}
}

func TestTopOfBookDerived(t *testing.T) {
	top := TopOfBook{Bid: 100, Ask: 102}
	if top.Mid() != 101 {
		t.Errorf("mid = %v, want 101", top.Mid())
	}
	if top.Spread() != 2 {
		t.Errorf("spread = %v, want 2", top.Spread())
	}
	if math.Abs(top.SpreadPercent()-0.02) > 1e-12 {
		t.Errorf("spread percent = %v, want 0.02", top.SpreadPercent())
	}
}
