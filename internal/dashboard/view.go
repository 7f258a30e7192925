package dashboard

import (
	"krakenfeed/internal/models"
)

// MarketView is the derived, display-ready projection of a state snapshot.
// All values are computed on demand from the snapshot; nothing here feeds
// back into the core state.
type MarketView struct {
	Instrument    string  `json:"instrument"`
	State         string  `json:"state"`
	Connected     bool    `json:"connected"`
	LastPrice     float64 `json:"last_price"`
	LastDirection int     `json:"last_direction"`
	MarkPrice     float64 `json:"mark_price"`

	Bid           float64 `json:"bid"`
	Ask           float64 `json:"ask"`
	Mid           float64 `json:"mid"`
	Spread        float64 `json:"spread"`
	SpreadPercent float64 `json:"spread_percent"`

	PremiumAbs     float64 `json:"premium_abs"`
	PremiumPercent float64 `json:"premium_percent"`

	Volume models.VolumeStats `json:"volume"`
	Orders []models.OpenOrder `json:"orders"`

	Position *PositionView `json:"position,omitempty"`
}

// PositionView decorates the raw position with PnL estimates at several
// reference prices.
type PositionView struct {
	Side       models.PositionSide `json:"side"`
	EntryPrice float64             `json:"entry_price"`
	Qty        float64             `json:"qty"`
	Notional   float64             `json:"notional"`

	PnLAtMark    float64 `json:"pnl_at_mark"`
	PnLAtMid     float64 `json:"pnl_at_mid"`
	PnLAtBest    float64 `json:"pnl_at_best"`
	PnLAtImpact  float64 `json:"pnl_at_impact"`
	PnLPercent   float64 `json:"pnl_percent"`
	RoundTripFee float64 `json:"round_trip_fee"`
}

// buildView derives the dashboard projection from a snapshot.
func buildView(snap models.Snapshot) MarketView {
	view := MarketView{
		Instrument:    snap.Instrument,
		State:         snap.State,
		Connected:     snap.Connected,
		LastPrice:     snap.LastPrice,
		LastDirection: snap.LastDirection,
		MarkPrice:     snap.MarkPrice,
		Volume:        snap.Volume,
		Orders:        snap.Orders,
	}

	if snap.TopOfBook != nil {
		top := *snap.TopOfBook
		view.Bid = top.Bid
		view.Ask = top.Ask
		view.Mid = top.Mid()
		view.Spread = top.Spread()
		view.SpreadPercent = top.SpreadPercent()
		view.PremiumAbs, view.PremiumPercent = models.Premium(view.Mid, snap.MarkPrice)
	}

	if snap.Position != nil {
		view.Position = buildPositionView(snap)
	}

	return view
}

func buildPositionView(snap models.Snapshot) *PositionView {
	pos := *snap.Position
	pv := &PositionView{
		Side:         pos.Side,
		EntryPrice:   pos.EntryPrice,
		Qty:          pos.Qty,
		Notional:     pos.Notional(),
		PnLAtMark:    pos.PnL(snap.MarkPrice),
		RoundTripFee: models.RoundTripFee(pos.EntryPrice, pos.Qty),
	}

	if snap.TopOfBook != nil {
		top := *snap.TopOfBook
		pv.PnLAtMid = pos.PnL(top.Mid())

		// Closing a long hits the bid, closing a short lifts the ask.
		best := top.Bid
		closing := snap.Bids
		if pos.Side == models.PositionShort {
			best = top.Ask
			closing = snap.Asks
		}
		pv.PnLAtBest = pos.PnL(best)
		if impact, filled := models.ImpactPrice(closing, pos.Qty); filled > 0 {
			pv.PnLAtImpact = pos.PnL(impact)
		}
		pv.PnLPercent = pos.PnLPercent(top.Mid())
	} else if snap.MarkPrice > 0 {
		pv.PnLPercent = pos.PnLPercent(snap.MarkPrice)
	}

	return pv
}
