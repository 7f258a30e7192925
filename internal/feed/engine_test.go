package feed

import (
	"fmt"
	"testing"
	"time"

	"krakenfeed/internal/models"
)

func newTestEngine(throttle time.Duration) *Engine {
	return NewEngine(EngineOptions{
		Instrument:   "PF_XBTUSD",
		TapeSize:     100,
		VolumeWindow: time.Minute,
		BookThrottle: throttle,
	})
}

func applyBookFixture(t *testing.T, e *Engine, now time.Time) {
	t.Helper()
	snapshot := `{"feed":"book_snapshot","product_id":"PF_XBTUSD","timestamp":1700000000000,` +
		`"bids":[{"price":100,"qty":1},{"price":99,"qty":2}],` +
		`"asks":[{"price":101,"qty":1},{"price":102,"qty":3}]}`
	e.Apply([]byte(snapshot), now)
}

func TestEngineTradeMessage(t *testing.T) {
	e := newTestEngine(0)
	now := time.Now()

	raw := `{"feed":"trade","product_id":"PF_XBTUSD","side":"buy","price":100.5,"qty":2,"time":1700000000000}`
	events := e.Apply([]byte(raw), now)
	if len(events) != 1 || events[0].Type != models.EventTypeTrade {
		t.Fatalf("unexpected events: %+v", events)
	}
	trade := events[0].Trade
	if trade == nil || trade.Price != 100.5 || trade.Qty != 2 || trade.Side != models.SideBuy {
		t.Fatalf("unexpected trade: %+v", trade)
	}
	snap := e.Snapshot(StateSubscribed, now)
	if snap.LastPrice != 100.5 {
		t.Fatalf("last price not updated: %v", snap.LastPrice)
	}
	if e.Tape().Len() != 1 {
		t.Fatalf("trade not recorded")
	}
}

func TestEngineTradeSnapshotSeedsOldestFirst(t *testing.T) {
	e := newTestEngine(0)
	now := time.Now()

	raw := `{"feed":"trade_snapshot","product_id":"PF_XBTUSD","trades":[` +
		`{"feed":"trade","side":"sell","price":102,"qty":1,"time":1700000002000},` +
		`{"feed":"trade","side":"buy","price":101,"qty":1,"time":1700000001000},` +
		`{"feed":"trade","side":"buy","price":100,"qty":1,"time":1700000000000}]}`
	events := e.Apply([]byte(raw), now)
	if len(events) != 0 {
		t.Fatalf("seeding should emit no events, got %+v", events)
	}
	last, ok := e.Tape().Last()
	if !ok || last.Price != 102 {
		t.Fatalf("tape should end with newest trade: %+v", last)
	}
	if e.Snapshot(StateSubscribed, now).LastPrice != 102 {
		t.Fatalf("last price not seeded")
	}
}

func TestEngineBookSnapshotEmitsTop(t *testing.T) {
	e := newTestEngine(0)
	now := time.Now()

	applyBookFixture(t, e, now)
	snap := e.Snapshot(StateSubscribed, now)
	if snap.TopOfBook == nil || snap.TopOfBook.Bid != 100 || snap.TopOfBook.Ask != 101 {
		t.Fatalf("unexpected top of book: %+v", snap.TopOfBook)
	}
}

func TestEngineLastDirectionTracksPrints(t *testing.T) {
	e := newTestEngine(0)
	now := time.Now()

	prints := []struct {
		price float64
		want  int
	}{
		{100, 0},  // first print, no reference
		{101, 1},  // up
		{101, 1},  // unchanged keeps direction
		{100, -1}, // down
	}
	for _, p := range prints {
		raw := fmt.Sprintf(`{"feed":"trade","product_id":"PF_XBTUSD","side":"buy","price":%v,"qty":1,"time":1700000000000}`, p.price)
		e.Apply([]byte(raw), now)
		if got := e.Snapshot(StateSubscribed, now).LastDirection; got != p.want {
			t.Fatalf("direction after print %v = %d, want %d", p.price, got, p.want)
		}
	}
}

func TestEngineBookDeltaMovesTop(t *testing.T) {
	e := newTestEngine(0)
	now := time.Now()
	applyBookFixture(t, e, now)

	raw := `{"feed":"book","product_id":"PF_XBTUSD","side":"buy","price":100.5,"qty":1,"timestamp":1700000001000}`
	events := e.Apply([]byte(raw), now)
	if len(events) != 1 || events[0].Type != models.EventTypeTopOfBook {
		t.Fatalf("expected top of book event, got %+v", events)
	}
	if events[0].TopOfBook.Bid != 100.5 {
		t.Fatalf("unexpected bid: %+v", events[0].TopOfBook)
	}
}

func TestEngineBookDeltaBeforeSnapshotDropped(t *testing.T) {
	e := newTestEngine(0)
	raw := `{"feed":"book","product_id":"PF_XBTUSD","side":"buy","price":100,"qty":1,"timestamp":1700000000000}`
	if events := e.Apply([]byte(raw), time.Now()); len(events) != 0 {
		t.Fatalf("delta before snapshot should produce nothing, got %+v", events)
	}
}

func TestEngineTopOfBookThrottle(t *testing.T) {
	e := newTestEngine(time.Second)
	now := time.Now()
	applyBookFixture(t, e, now)

	// First emission happened with the snapshot; a top change inside the
	// interval is suppressed.
	raw := `{"feed":"book","product_id":"PF_XBTUSD","side":"buy","price":100.5,"qty":1,"timestamp":0}`
	if events := e.Apply([]byte(raw), now.Add(100*time.Millisecond)); len(events) != 0 {
		t.Fatalf("expected suppression inside throttle window, got %+v", events)
	}

	// Once the interval elapses, the latest value is published.
	events := e.Tick(now.Add(2 * time.Second))
	if len(events) != 1 || events[0].TopOfBook.Bid != 100.5 {
		t.Fatalf("expected deferred emission of latest top, got %+v", events)
	}

	// Unchanged top emits nothing even after the interval.
	if events := e.Tick(now.Add(5 * time.Second)); len(events) != 0 {
		t.Fatalf("unchanged top should not re-emit, got %+v", events)
	}
}

func TestEngineThrottleReconfigure(t *testing.T) {
	e := newTestEngine(time.Hour)
	now := time.Now()
	applyBookFixture(t, e, now)

	raw := `{"feed":"book","product_id":"PF_XBTUSD","side":"sell","price":101,"qty":0,"timestamp":0}`
	if events := e.Apply([]byte(raw), now.Add(time.Millisecond)); len(events) != 0 {
		t.Fatalf("expected suppression, got %+v", events)
	}

	e.SetBookThrottle(0)
	events := e.Tick(now.Add(2 * time.Millisecond))
	if len(events) != 1 || events[0].TopOfBook.Ask != 102 {
		t.Fatalf("expected immediate emission after disabling throttle, got %+v", events)
	}
}

func TestEngineMarkPrice(t *testing.T) {
	e := newTestEngine(0)
	now := time.Now()

	raw := `{"feed":"ticker","product_id":"PF_XBTUSD","bid":100,"ask":101,"markPrice":100.25}`
	events := e.Apply([]byte(raw), now)
	if len(events) != 1 || events[0].Type != models.EventTypeMarkPrice || events[0].MarkPrice != 100.25 {
		t.Fatalf("unexpected events: %+v", events)
	}
	// Repeating the same mark price emits nothing.
	if events := e.Apply([]byte(raw), now); len(events) != 0 {
		t.Fatalf("duplicate mark price should not emit, got %+v", events)
	}
}

func TestEngineOpenOrdersLifecycle(t *testing.T) {
	e := newTestEngine(0)
	now := time.Now()

	snapshot := `{"feed":"open_orders_snapshot","orders":[` +
		`{"order_id":"o1","instrument":"PF_XBTUSD","direction":"buy","limit_price":99,"qty":2,"filled":0,"type":"lmt","time":1700000000000},` +
		`{"order_id":"o2","instrument":"PF_ETHUSD","direction":"sell","limit_price":2000,"qty":1,"filled":0,"type":"lmt","time":1700000000000}]}`
	events := e.Apply([]byte(snapshot), now)
	if len(events) != 1 || events[0].Type != models.EventTypeOrders {
		t.Fatalf("unexpected events: %+v", events)
	}
	if len(events[0].Orders) != 1 || events[0].Orders[0].ID != "o1" {
		t.Fatalf("foreign instrument not filtered: %+v", events[0].Orders)
	}

	cancel := `{"feed":"open_orders","order_id":"o1","is_cancel":true,"reason":"cancelled_by_user"}`
	events = e.Apply([]byte(cancel), now)
	if len(events) != 1 || len(events[0].Orders) != 0 {
		t.Fatalf("cancel not applied: %+v", events)
	}
}

func TestEnginePositionReplaceAndFlat(t *testing.T) {
	e := newTestEngine(0)
	now := time.Now()

	raw := `{"feed":"open_positions","account":"acct","positions":[` +
		`{"instrument":"PF_XBTUSD","balance":-2,"entry_price":100,"pnl":0}]}`
	events := e.Apply([]byte(raw), now)
	if len(events) != 1 || events[0].Type != models.EventTypePosition {
		t.Fatalf("unexpected events: %+v", events)
	}
	pos := events[0].Position
	if pos == nil || pos.Side != models.PositionShort || pos.Qty != 2 {
		t.Fatalf("unexpected position: %+v", pos)
	}

	// A message without the instrument means flat.
	flat := `{"feed":"open_positions","account":"acct","positions":[]}`
	events = e.Apply([]byte(flat), now)
	if len(events) != 1 || events[0].Position != nil {
		t.Fatalf("expected flat position event: %+v", events)
	}
}

func TestEngineOnDisconnect(t *testing.T) {
	e := newTestEngine(0)
	now := time.Now()
	applyBookFixture(t, e, now)
	e.Apply([]byte(`{"feed":"trade","side":"buy","price":100,"qty":1,"time":1700000000000}`), now)
	e.SeedOrders([]models.OpenOrder{{ID: "o1", Qty: 1}})
	e.SeedPosition(1, 100)

	e.OnDisconnect()

	snap := e.Snapshot(StateReconnecting, now)
	if len(snap.Orders) != 0 {
		t.Fatalf("orders should clear on disconnect: %+v", snap.Orders)
	}
	if e.Tape().Len() != 1 {
		t.Fatalf("tape should survive disconnect")
	}
	if snap.Position == nil {
		t.Fatalf("position should survive disconnect")
	}
	if e.Book().Primed() {
		t.Fatalf("book should be unprimed after disconnect")
	}
	if len(snap.Bids) == 0 {
		t.Fatalf("book levels should remain for display")
	}
}

func TestEngineMalformedAndUnknown(t *testing.T) {
	e := newTestEngine(0)
	now := time.Now()
	if events := e.Apply([]byte(`{not json`), now); len(events) != 0 {
		t.Fatalf("malformed input should produce nothing")
	}
	if events := e.Apply([]byte(`{"feed":"heartbeat"}`), now); len(events) != 0 {
		t.Fatalf("unknown feed should produce nothing")
	}
}
