package feed

import (
	"testing"

	"krakenfeed/internal/models"
)

func primedBook() *Book {
	b := NewBook()
	b.ApplySnapshot(
		[]models.PriceLevel{{Price: 100, Qty: 1}, {Price: 99, Qty: 2}},
		[]models.PriceLevel{{Price: 101, Qty: 1}, {Price: 102, Qty: 3}},
	)
	return b
}

func TestBookDeltaBeforeSnapshotDropped(t *testing.T) {
	b := NewBook()
	if b.ApplyDelta(models.SideBuy, 100, 1) {
		t.Fatalf("delta before snapshot should be dropped")
	}
	if b.Primed() {
		t.Fatalf("book should not be primed")
	}
}

func TestBookSnapshotReplacesState(t *testing.T) {
	b := primedBook()
	b.ApplySnapshot(
		[]models.PriceLevel{{Price: 50, Qty: 5}},
		[]models.PriceLevel{{Price: 51, Qty: 5}},
	)
	top, ok := b.BestBidAsk()
	if !ok {
		t.Fatalf("expected top of book")
	}
	if top.Bid != 50 || top.Ask != 51 {
		t.Fatalf("old levels survived snapshot: %+v", top)
	}
}

func TestBookDeltaZeroQtyRemovesLevel(t *testing.T) {
	b := primedBook()
	if !b.ApplyDelta(models.SideBuy, 100, 0) {
		t.Fatalf("delta should apply")
	}
	top, ok := b.BestBidAsk()
	if !ok {
		t.Fatalf("expected top of book")
	}
	if top.Bid != 99 {
		t.Fatalf("expected best bid 99 after removal, got %v", top.Bid)
	}
	// Removing a price that is not present is a no-op.
	if !b.ApplyDelta(models.SideBuy, 42, 0) {
		t.Fatalf("removal of absent level should still report applied")
	}
}

func TestBookDeltaOverwritesQty(t *testing.T) {
	b := primedBook()
	b.ApplyDelta(models.SideSell, 101, 9)
	asks := b.Asks(1)
	if len(asks) != 1 || asks[0].Price != 101 || asks[0].Qty != 9 {
		t.Fatalf("unexpected best ask: %+v", asks)
	}
}

func TestBookBestBidAskEmptySide(t *testing.T) {
	b := NewBook()
	b.ApplySnapshot([]models.PriceLevel{{Price: 100, Qty: 1}}, nil)
	if _, ok := b.BestBidAsk(); ok {
		t.Fatalf("expected no top of book with empty ask side")
	}
}

func TestBookLevelOrdering(t *testing.T) {
	b := primedBook()
	bids := b.Bids(0)
	if bids[0].Price != 100 || bids[1].Price != 99 {
		t.Fatalf("bids not descending: %+v", bids)
	}
	asks := b.Asks(0)
	if asks[0].Price != 101 || asks[1].Price != 102 {
		t.Fatalf("asks not ascending: %+v", asks)
	}
}

func TestBookImpactPrice(t *testing.T) {
	b := primedBook()
	// Selling 2 consumes 1@100 and 1@99: average 99.5.
	price, filled := b.ImpactPrice(models.SideSell, 2)
	if filled != 2 {
		t.Fatalf("expected fill of 2, got %v", filled)
	}
	if price != 99.5 {
		t.Fatalf("expected impact price 99.5, got %v", price)
	}
}

func TestBookImpactPricePartialLiquidity(t *testing.T) {
	b := primedBook()
	price, filled := b.ImpactPrice(models.SideBuy, 100)
	if filled != 4 {
		t.Fatalf("expected fill of 4, got %v", filled)
	}
	want := (1*101.0 + 3*102.0) / 4
	if price != want {
		t.Fatalf("expected impact price %v, got %v", want, price)
	}
}

func TestBookCrossed(t *testing.T) {
	b := primedBook()
	if b.Crossed() {
		t.Fatalf("book should not be crossed")
	}
	b.ApplyDelta(models.SideBuy, 101, 1)
	if !b.Crossed() {
		t.Fatalf("book should be crossed")
	}
}

func TestBookExpireKeepsLevels(t *testing.T) {
	b := primedBook()
	b.Expire()
	if b.Primed() {
		t.Fatalf("book should not be primed after expire")
	}
	if _, ok := b.BestBidAsk(); !ok {
		t.Fatalf("levels should survive expire")
	}
	if b.ApplyDelta(models.SideBuy, 98, 1) {
		t.Fatalf("delta after expire should be dropped until next snapshot")
	}
}
