package feed

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"krakenfeed/internal/models"
	"krakenfeed/logger"
)

// Engine applies raw feed messages to the market state and derives consumer
// events. It owns the book, tape, order registry and position tracker and is
// driven from a single goroutine; only SetBookThrottle may be called
// concurrently.
type Engine struct {
	instrument   string
	book         *Book
	tape         *Tape
	orders       *OrderRegistry
	position     *PositionTracker
	volumeWindow time.Duration

	lastPrice     float64
	lastDirection int // +1 last trade printed higher, -1 lower, 0 unchanged
	markPrice     float64

	throttleNs  int64 // atomic, top-of-book min emit interval
	lastEmit    time.Time
	lastTop     models.TopOfBook
	emittedOnce bool

	log *logger.Entry
}

type EngineOptions struct {
	Instrument   string
	TapeSize     int
	VolumeWindow time.Duration
	BookThrottle time.Duration
}

func NewEngine(opts EngineOptions) *Engine {
	if opts.VolumeWindow <= 0 {
		opts.VolumeWindow = time.Minute
	}
	e := &Engine{
		instrument:   opts.Instrument,
		book:         NewBook(),
		tape:         NewTape(opts.TapeSize),
		orders:       NewOrderRegistry(),
		position:     NewPositionTracker(),
		volumeWindow: opts.VolumeWindow,
		log:          logger.GetLogger().WithComponent("feed_engine"),
	}
	e.SetBookThrottle(opts.BookThrottle)
	return e
}

// SetBookThrottle changes the minimum interval between top-of-book events.
// Zero disables throttling. Safe to call from any goroutine; takes effect on
// the next book update.
func (e *Engine) SetBookThrottle(d time.Duration) {
	if d < 0 {
		d = 0
	}
	atomic.StoreInt64(&e.throttleNs, int64(d))
}

func (e *Engine) bookThrottle() time.Duration {
	return time.Duration(atomic.LoadInt64(&e.throttleNs))
}

// Apply routes one raw feed message and returns the events it produced.
// Unknown feeds and malformed payloads are logged and skipped; they never
// stop the session.
func (e *Engine) Apply(raw []byte, now time.Time) []models.Event {
	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		e.log.WithError(err).Warn("malformed feed message")
		return nil
	}

	switch env.Feed {
	case models.FeedTrade:
		return e.applyTrade(raw, now)
	case models.FeedTradeSnapshot:
		return e.applyTradeSnapshot(raw, now)
	case models.FeedTicker:
		return e.applyTicker(raw, now)
	case models.FeedBookSnapshot:
		return e.applyBookSnapshot(raw, now)
	case models.FeedBook:
		return e.applyBookDelta(raw, now)
	case models.FeedOpenOrdersSnapshot:
		return e.applyOrdersSnapshot(raw, now)
	case models.FeedOpenOrders:
		return e.applyOrderDelta(raw, now)
	case models.FeedOpenPositions:
		return e.applyPositions(raw, now)
	case "":
		// Handshake traffic handled by the connection layer.
		return nil
	default:
		e.log.WithFields(logger.Fields{"feed": env.Feed}).Debug("ignoring unknown feed")
		return nil
	}
}

// Tick emits a pending throttled top-of-book event once the interval has
// elapsed. Called periodically by the connection layer so a quiet book still
// publishes the last suppressed update.
func (e *Engine) Tick(now time.Time) []models.Event {
	return e.emitTop(now)
}

func (e *Engine) applyTrade(raw []byte, now time.Time) []models.Event {
	var msg models.TradeMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		e.log.WithError(err).Warn("malformed trade message")
		return nil
	}
	logger.IncrementTradeRead()

	trade := tradeFromMessage(msg)
	e.tape.Record(trade)
	if e.lastPrice != 0 && trade.Price != e.lastPrice {
		if trade.Price > e.lastPrice {
			e.lastDirection = 1
		} else {
			e.lastDirection = -1
		}
	}
	e.lastPrice = trade.Price

	return []models.Event{{Type: models.EventTypeTrade, Time: now, Trade: &trade}}
}

func (e *Engine) applyTradeSnapshot(raw []byte, now time.Time) []models.Event {
	var msg models.TradeSnapshotMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		e.log.WithError(err).Warn("malformed trade snapshot")
		return nil
	}
	logger.IncrementTradeRead()

	// Snapshot trades arrive newest first; replay oldest first so the tape
	// ends with the most recent print. Seeding emits no per-trade events.
	for i := len(msg.Trades) - 1; i >= 0; i-- {
		e.tape.Record(tradeFromMessage(msg.Trades[i]))
	}
	if last, ok := e.tape.Last(); ok {
		e.lastPrice = last.Price
	}
	e.log.WithFields(logger.Fields{"trades": len(msg.Trades)}).Debug("trade tape seeded")
	return nil
}

func (e *Engine) applyTicker(raw []byte, now time.Time) []models.Event {
	var msg models.TickerMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		e.log.WithError(err).Warn("malformed ticker message")
		return nil
	}
	if msg.MarkPrice == 0 || msg.MarkPrice == e.markPrice {
		return nil
	}
	e.markPrice = msg.MarkPrice
	return []models.Event{{Type: models.EventTypeMarkPrice, Time: now, MarkPrice: msg.MarkPrice}}
}

func (e *Engine) applyBookSnapshot(raw []byte, now time.Time) []models.Event {
	var msg models.BookSnapshotMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		e.log.WithError(err).Warn("malformed book snapshot")
		return nil
	}
	logger.IncrementBookRead()

	e.book.ApplySnapshot(levelsFromMessages(msg.Bids), levelsFromMessages(msg.Asks))
	if e.book.Crossed() {
		top, _ := e.book.BestBidAsk()
		e.log.WithFields(logger.Fields{"bid": top.Bid, "ask": top.Ask}).Warn("crossed book after snapshot")
	}
	return e.emitTop(now)
}

func (e *Engine) applyBookDelta(raw []byte, now time.Time) []models.Event {
	var msg models.BookDeltaMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		e.log.WithError(err).Warn("malformed book delta")
		return nil
	}
	logger.IncrementBookRead()

	side := models.SideBuy
	if msg.Side == "sell" {
		side = models.SideSell
	}
	if !e.book.ApplyDelta(side, msg.Price, msg.Qty) {
		e.log.Debug("book delta before snapshot dropped")
		return nil
	}
	if e.book.Crossed() {
		top, _ := e.book.BestBidAsk()
		e.log.WithFields(logger.Fields{"bid": top.Bid, "ask": top.Ask}).Warn("crossed book after delta")
	}
	return e.emitTop(now)
}

func (e *Engine) applyOrdersSnapshot(raw []byte, now time.Time) []models.Event {
	var msg models.OpenOrdersSnapshotMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		e.log.WithError(err).Warn("malformed open orders snapshot")
		return nil
	}
	logger.IncrementPrivateRead()

	orders := make([]models.OpenOrder, 0, len(msg.Orders))
	for _, payload := range msg.Orders {
		if payload.Instrument != "" && payload.Instrument != e.instrument {
			continue
		}
		orders = append(orders, orderFromPayload(payload))
	}
	e.orders.ApplySnapshot(orders)
	return []models.Event{{Type: models.EventTypeOrders, Time: now, Orders: e.orders.List()}}
}

func (e *Engine) applyOrderDelta(raw []byte, now time.Time) []models.Event {
	var msg models.OpenOrderDeltaMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		e.log.WithError(err).Warn("malformed open order delta")
		return nil
	}
	logger.IncrementPrivateRead()

	if msg.Order != nil && msg.Order.Instrument != "" && msg.Order.Instrument != e.instrument {
		return nil
	}
	var order *models.OpenOrder
	if msg.Order != nil {
		o := orderFromPayload(*msg.Order)
		order = &o
	}
	e.orders.Apply(msg.OrderID, msg.IsCancel, order)
	return []models.Event{{Type: models.EventTypeOrders, Time: now, Orders: e.orders.List()}}
}

func (e *Engine) applyPositions(raw []byte, now time.Time) []models.Event {
	var msg models.OpenPositionsMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		e.log.WithError(err).Warn("malformed open positions message")
		return nil
	}
	logger.IncrementPrivateRead()

	// The message carries the full position set; absence of the subscribed
	// instrument means flat.
	e.position.Clear()
	for _, payload := range msg.Positions {
		if payload.Instrument == e.instrument {
			e.position.Replace(payload.Balance, payload.EntryPrice)
			break
		}
	}
	return []models.Event{{Type: models.EventTypePosition, Time: now, Position: e.position.Current()}}
}

// SeedOrders installs an initial order set fetched over REST before the
// private feed snapshot arrives.
func (e *Engine) SeedOrders(orders []models.OpenOrder) {
	e.orders.ApplySnapshot(orders)
}

// SeedPosition installs an initial position fetched over REST.
func (e *Engine) SeedPosition(balance, entryPrice float64) {
	e.position.Replace(balance, entryPrice)
}

// OnDisconnect prepares state for a new session. Open orders are cleared
// because the private snapshot will rebuild them; the book keeps its levels
// for display but drops its primed flag so stale deltas cannot apply before
// the next snapshot. The tape and position survive.
func (e *Engine) OnDisconnect() {
	e.orders.Reset()
	e.book.Expire()
}

// emitTop publishes the top of book, subject to the throttle. Only the most
// recent value is ever published; suppressed intermediate updates are
// dropped, not buffered.
func (e *Engine) emitTop(now time.Time) []models.Event {
	top, ok := e.book.BestBidAsk()
	if !ok {
		return nil
	}
	if e.emittedOnce && top == e.lastTop {
		return nil
	}
	if throttle := e.bookThrottle(); throttle > 0 && e.emittedOnce {
		if now.Sub(e.lastEmit) < throttle {
			return nil
		}
	}
	e.lastTop = top
	e.lastEmit = now
	e.emittedOnce = true
	t := top
	return []models.Event{{Type: models.EventTypeTopOfBook, Time: now, TopOfBook: &t}}
}

// Snapshot assembles a read-only copy of all state for publication.
func (e *Engine) Snapshot(state State, now time.Time) models.Snapshot {
	var top *models.TopOfBook
	if t, ok := e.book.BestBidAsk(); ok {
		top = &t
	}
	return models.Snapshot{
		Instrument:    e.instrument,
		State:         state.String(),
		Connected:     state.Connected(),
		Bids:          e.book.Bids(0),
		Asks:          e.book.Asks(0),
		TopOfBook:     top,
		LastPrice:     e.lastPrice,
		LastDirection: e.lastDirection,
		MarkPrice:     e.markPrice,
		Volume:        e.tape.Stats(e.volumeWindow, now),
		Orders:        e.orders.List(),
		Position:      e.position.Current(),
		UpdatedAt:     now,
	}
}

// Book exposes the order book for read access on the feed goroutine.
func (e *Engine) Book() *Book {
	return e.book
}

// Tape exposes the trade tape for read access on the feed goroutine.
func (e *Engine) Tape() *Tape {
	return e.tape
}

func tradeFromMessage(msg models.TradeMessage) models.Trade {
	side := models.SideBuy
	if msg.Side == "sell" {
		side = models.SideSell
	}
	return models.Trade{
		Time:  time.UnixMilli(msg.Time),
		Side:  side,
		Price: msg.Price,
		Qty:   msg.Qty,
	}
}

func levelsFromMessages(levels []models.BookLevelMessage) []models.PriceLevel {
	out := make([]models.PriceLevel, len(levels))
	for i, lvl := range levels {
		out[i] = models.PriceLevel{Price: lvl.Price, Qty: lvl.Qty}
	}
	return out
}

func orderFromPayload(payload models.OpenOrderPayload) models.OpenOrder {
	side := models.SideBuy
	if payload.Direction == "sell" || payload.Direction == "1" {
		side = models.SideSell
	}
	return models.OpenOrder{
		ID:         payload.OrderID,
		Side:       side,
		Qty:        payload.Qty,
		LimitPrice: payload.LimitPrice,
		Filled:     payload.Filled,
		Type:       payload.Type,
		ReduceOnly: payload.ReduceOnly,
		UpdatedAt:  time.UnixMilli(payload.Time),
	}
}
