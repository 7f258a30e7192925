package models

import "math"

// PricingMode selects how a limit price is derived when placing an order.
// Carried as ordinary state, fully decoupled from presentation.
type PricingMode string

const (
	PricingBest   PricingMode = "best"   // join the touch on the order's side
	PricingMid    PricingMode = "mid"    // adjusted mid, clamped inside the touch
	PricingMarket PricingMode = "market" // no limit price, take liquidity
	PricingCustom PricingMode = "custom" // user-entered price
)

// FeeRate is the per-side taker fee used for round-trip estimates.
const FeeRate = 0.00015

// RoundToTick rounds price to the nearest multiple of tick. A zero tick
// returns the price unchanged.
func RoundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	return math.Round(price/tick) * tick
}

// AdjustedMid returns the mid price rounded to tick and clamped one tick
// inside the touch so a post-only order on the given side cannot cross.
func AdjustedMid(bid, ask, tick float64, side Side) float64 {
	mid := RoundToTick((bid+ask)/2, tick)
	if tick <= 0 {
		return mid
	}
	switch side {
	case SideBuy:
		if max := ask - tick; mid > max {
			mid = max
		}
	case SideSell:
		if min := bid + tick; mid < min {
			mid = min
		}
	}
	return mid
}

// RoundTripFee estimates the entry+exit fee for a position of the given
// entry value.
func RoundTripFee(entryPrice, qty float64) float64 {
	return entryPrice * qty * FeeRate * 2
}

// Premium returns mid minus mark and that difference as a fraction of mark.
func Premium(mid, mark float64) (abs float64, pct float64) {
	if mid == 0 || mark == 0 {
		return 0, 0
	}
	abs = mid - mark
	return abs, abs / mark
}
