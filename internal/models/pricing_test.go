package models

import (
	"math"
	"testing"
)

func TestRoundToTick(t *testing.T) {
	cases := []struct {
		price, tick, want float64
	}{
		{100.26, 0.5, 100.5},
		{100.24, 0.5, 100},
		{100.3, 0, 100.3},
		{1234, 10, 1230},
	}
	for _, c := range cases {
		if got := RoundToTick(c.price, c.tick); got != c.want {
			t.Errorf("RoundToTick(%v, %v) = %v, want %v", c.price, c.tick, got, c.want)
		}
	}
}

func TestAdjustedMidClampsInsideTouch(t *testing.T) {
	// Tight market: bid 100, ask 100.5, tick 0.5. The rounded mid lands on
	// one side of the touch; a buy must stay below the ask, a sell above the
	// bid.
	buy := AdjustedMid(100, 100.5, 0.5, SideBuy)
	if buy >= 100.5 {
		t.Errorf("buy price %v crosses the ask", buy)
	}
	sell := AdjustedMid(100, 100.5, 0.5, SideSell)
	if sell <= 100 {
		t.Errorf("sell price %v crosses the bid", sell)
	}
}

func TestAdjustedMidWideMarket(t *testing.T) {
	got := AdjustedMid(100, 110, 0.5, SideBuy)
	if got != 105 {
		t.Errorf("mid = %v, want 105", got)
	}
}

func TestRoundTripFee(t *testing.T) {
	got := RoundTripFee(100, 2)
	want := 100 * 2 * FeeRate * 2
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("fee = %v, want %v", got, want)
	}
}

func TestPremium(t *testing.T) {
	abs, pct := Premium(101, 100)
	if abs != 1 || math.Abs(pct-0.01) > 1e-12 {
		t.Errorf("premium = %v/%v, want 1/0.01", abs, pct)
	}
	if abs, pct := Premium(0, 100); abs != 0 || pct != 0 {
		t.Errorf("premium with zero mid should be zero")
	}
}
