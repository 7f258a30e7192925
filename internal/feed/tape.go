package feed

import (
	"time"

	"krakenfeed/internal/models"
)

// Tape is a bounded FIFO of the most recent trades. When full, recording a
// trade evicts the oldest. Not safe for concurrent use.
type Tape struct {
	trades []models.Trade
	max    int
}

func NewTape(max int) *Tape {
	if max <= 0 {
		max = 1000
	}
	return &Tape{max: max}
}

// Record appends a trade, evicting the oldest when the tape is full.
func (t *Tape) Record(trade models.Trade) {
	if len(t.trades) == t.max {
		copy(t.trades, t.trades[1:])
		t.trades[len(t.trades)-1] = trade
		return
	}
	t.trades = append(t.trades, trade)
}

// Len returns the number of retained trades.
func (t *Tape) Len() int {
	return len(t.trades)
}

// Last returns the most recent trade, ok false when the tape is empty.
func (t *Tape) Last() (models.Trade, bool) {
	if len(t.trades) == 0 {
		return models.Trade{}, false
	}
	return t.trades[len(t.trades)-1], true
}

// Recent returns up to n trades, newest first. n <= 0 returns all.
func (t *Tape) Recent(n int) []models.Trade {
	if n <= 0 || n > len(t.trades) {
		n = len(t.trades)
	}
	out := make([]models.Trade, n)
	for i := 0; i < n; i++ {
		out[i] = t.trades[len(t.trades)-1-i]
	}
	return out
}

// Stats recomputes rolling volume over trades younger than the window,
// measured back from now. Trades that aged out of the window contribute
// nothing; eviction alone never removes them from view early.
func (t *Tape) Stats(window time.Duration, now time.Time) models.VolumeStats {
	stats := models.VolumeStats{Window: window}
	cutoff := now.Add(-window)
	for i := len(t.trades) - 1; i >= 0; i-- {
		trade := t.trades[i]
		if trade.Time.Before(cutoff) {
			break
		}
		stats.TotalVolume += trade.Qty
		stats.QuoteVolume += trade.Notional()
		if trade.Side == models.SideBuy {
			stats.BuyVolume += trade.Qty
		} else {
			stats.SellVolume += trade.Qty
		}
	}
	return stats
}
