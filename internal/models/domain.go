package models

import "time"

// Side is the taker side of a trade or the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// PositionSide distinguishes long and short exposure.
type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
)

// PriceLevel is a single resting price level of one book side.
type PriceLevel struct {
	Price float64 `json:"price"`
	Qty   float64 `json:"qty"`
}

// Trade is one normalized public trade. Immutable once recorded.
type Trade struct {
	Time  time.Time `json:"time"`
	Side  Side      `json:"side"`
	Price float64   `json:"price"`
	Qty   float64   `json:"qty"`
}

// Notional returns the quote-currency value of the trade.
func (t Trade) Notional() float64 {
	return t.Price * t.Qty
}

// OpenOrder is one of the account's resting orders on the subscribed
// instrument.
type OpenOrder struct {
	ID         string    `json:"order_id"`
	Side       Side      `json:"side"`
	Qty        float64   `json:"qty"`
	LimitPrice float64   `json:"limit_price"`
	Filled     float64   `json:"filled"`
	Type       string    `json:"type"`
	ReduceOnly bool      `json:"reduce_only"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Remaining returns the unfilled quantity.
func (o OpenOrder) Remaining() float64 {
	return o.Qty - o.Filled
}

// Live reports whether the order still belongs in the registry.
func (o OpenOrder) Live() bool {
	return o.Filled < o.Qty
}

// Position is the account's current position on the subscribed instrument.
// The feed always delivers the complete position, so it is replaced wholesale
// and never diffed field by field. A nil *Position means flat.
type Position struct {
	Side       PositionSide `json:"side"`
	EntryPrice float64      `json:"entry_price"`
	Qty        float64      `json:"qty"`
}

// Notional returns the entry value of the position.
func (p Position) Notional() float64 {
	return p.EntryPrice * p.Qty
}

// PnL returns the unrealized profit at the given reference price.
func (p Position) PnL(ref float64) float64 {
	if p.Side == PositionShort {
		return (p.EntryPrice - ref) * p.Qty
	}
	return (ref - p.EntryPrice) * p.Qty
}

// PnLPercent returns the unrealized profit as a fraction of the entry value.
func (p Position) PnLPercent(ref float64) float64 {
	notional := p.Notional()
	if notional == 0 {
		return 0
	}
	return p.PnL(ref) / notional
}

// ImpactPrice walks price levels from best to worst, consuming liquidity
// until size is filled, and returns the size-weighted average price together
// with the quantity the book could absorb. Levels must already be ordered
// best-first for the side being consumed (bids descending, asks ascending).
// A partially absorbed size averages over whatever liquidity was present.
func ImpactPrice(levels []PriceLevel, size float64) (price float64, filled float64) {
	if size <= 0 {
		return 0, 0
	}
	remaining := size
	cost := 0.0
	for _, lvl := range levels {
		if remaining <= 0 {
			break
		}
		take := lvl.Qty
		if take > remaining {
			take = remaining
		}
		cost += take * lvl.Price
		filled += take
		remaining -= take
	}
	if filled == 0 {
		return 0, 0
	}
	return cost / filled, filled
}
