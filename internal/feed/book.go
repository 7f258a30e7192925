package feed

import (
	"sort"

	"krakenfeed/internal/models"
)

// Book is the reconstructed order book for one instrument. Levels live in
// maps keyed by price; ordering is computed on read. Book is not safe for
// concurrent use, all access happens on the feed goroutine.
type Book struct {
	bids   map[float64]float64
	asks   map[float64]float64
	primed bool
}

func NewBook() *Book {
	return &Book{
		bids: make(map[float64]float64),
		asks: make(map[float64]float64),
	}
}

// Primed reports whether a snapshot has been applied since creation or the
// last Reset. Deltas arriving before the first snapshot are discarded.
func (b *Book) Primed() bool {
	return b.primed
}

// Reset drops all levels and the primed flag, as on resubscription.
func (b *Book) Reset() {
	b.bids = make(map[float64]float64)
	b.asks = make(map[float64]float64)
	b.primed = false
}

// Expire drops the primed flag but keeps current levels for display. Used on
// reconnect so deltas from the new session cannot apply before its snapshot.
func (b *Book) Expire() {
	b.primed = false
}

// ApplySnapshot replaces both sides wholesale and primes the book.
func (b *Book) ApplySnapshot(bids, asks []models.PriceLevel) {
	b.bids = make(map[float64]float64, len(bids))
	b.asks = make(map[float64]float64, len(asks))
	for _, lvl := range bids {
		if lvl.Qty > 0 {
			b.bids[lvl.Price] = lvl.Qty
		}
	}
	for _, lvl := range asks {
		if lvl.Qty > 0 {
			b.asks[lvl.Price] = lvl.Qty
		}
	}
	b.primed = true
}

// ApplyDelta updates one price level; qty 0 removes it. Deltas before the
// first snapshot are dropped and reported as unapplied.
func (b *Book) ApplyDelta(side models.Side, price, qty float64) bool {
	if !b.primed {
		return false
	}
	levels := b.bids
	if side == models.SideSell {
		levels = b.asks
	}
	if qty == 0 {
		delete(levels, price)
		return true
	}
	levels[price] = qty
	return true
}

// BestBidAsk returns the highest bid and lowest ask. ok is false when either
// side is empty.
func (b *Book) BestBidAsk() (top models.TopOfBook, ok bool) {
	if len(b.bids) == 0 || len(b.asks) == 0 {
		return models.TopOfBook{}, false
	}
	first := true
	for price := range b.bids {
		if first || price > top.Bid {
			top.Bid = price
		}
		first = false
	}
	first = true
	for price := range b.asks {
		if first || price < top.Ask {
			top.Ask = price
		}
		first = false
	}
	return top, true
}

// Crossed reports whether the best bid is at or above the best ask. A
// transiently crossed book is tolerated and never rejected.
func (b *Book) Crossed() bool {
	top, ok := b.BestBidAsk()
	if !ok {
		return false
	}
	return top.Bid >= top.Ask
}

// Bids returns up to n bid levels ordered best first. n <= 0 returns all.
func (b *Book) Bids(n int) []models.PriceLevel {
	levels := sortLevels(b.bids, true)
	if n > 0 && len(levels) > n {
		levels = levels[:n]
	}
	return levels
}

// Asks returns up to n ask levels ordered best first. n <= 0 returns all.
func (b *Book) Asks(n int) []models.PriceLevel {
	levels := sortLevels(b.asks, false)
	if n > 0 && len(levels) > n {
		levels = levels[:n]
	}
	return levels
}

// ImpactPrice estimates the average execution price of a market order of the
// given size and side against current liquidity. A buy consumes asks, a sell
// consumes bids.
func (b *Book) ImpactPrice(side models.Side, size float64) (price float64, filled float64) {
	if side == models.SideBuy {
		return models.ImpactPrice(b.Asks(0), size)
	}
	return models.ImpactPrice(b.Bids(0), size)
}

func sortLevels(m map[float64]float64, descending bool) []models.PriceLevel {
	levels := make([]models.PriceLevel, 0, len(m))
	for price, qty := range m {
		levels = append(levels, models.PriceLevel{Price: price, Qty: qty})
	}
	sort.Slice(levels, func(i, j int) bool {
		if descending {
			return levels[i].Price > levels[j].Price
		}
		return levels[i].Price < levels[j].Price
	})
	return levels
}
