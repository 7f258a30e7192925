package models

// Wire types for the Kraken Futures websocket (wss://futures.kraken.com/ws/v1).
// Inbound messages carry either an "event" (handshake traffic) or a "feed"
// (data traffic); Envelope is decoded first to route the raw payload.

// Feed names this client consumes.
const (
	FeedTrade              = "trade"
	FeedTradeSnapshot      = "trade_snapshot"
	FeedTicker             = "ticker"
	FeedBook               = "book"
	FeedBookSnapshot       = "book_snapshot"
	FeedOpenOrders         = "open_orders"
	FeedOpenOrdersSnapshot = "open_orders_snapshot"
	FeedOpenPositions      = "open_positions"
)

// Handshake event names.
const (
	EventSubscribe  = "subscribe"
	EventChallenge  = "challenge"
	EventSubscribed = "subscribed"
	EventError      = "error"
	EventInfo       = "info"
)

// Envelope distinguishes handshake events from feed data.
type Envelope struct {
	Event string `json:"event,omitempty"`
	Feed  string `json:"feed,omitempty"`
}

// SubscribeRequest is the outbound subscription message. Public channels use
// ProductIDs; private channels carry the signed challenge instead.
type SubscribeRequest struct {
	Event             string   `json:"event"`
	Feed              string   `json:"feed"`
	ProductIDs        []string `json:"product_ids,omitempty"`
	APIKey            string   `json:"api_key,omitempty"`
	OriginalChallenge string   `json:"original_challenge,omitempty"`
	SignedChallenge   string   `json:"signed_challenge,omitempty"`
}

// ChallengeRequest asks the server for a challenge to sign.
type ChallengeRequest struct {
	Event  string `json:"event"`
	APIKey string `json:"api_key"`
}

// ChallengeMessage is the server's reply to a ChallengeRequest.
type ChallengeMessage struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}

// TradeMessage is one public trade print.
type TradeMessage struct {
	Feed      string  `json:"feed"`
	ProductID string  `json:"product_id"`
	Side      string  `json:"side"`
	Price     float64 `json:"price"`
	Qty       float64 `json:"qty"`
	Time      int64   `json:"time"` // ms since epoch
}

// TradeSnapshotMessage seeds the tape on (re)subscription. Trades arrive
// newest first.
type TradeSnapshotMessage struct {
	Feed      string         `json:"feed"`
	ProductID string         `json:"product_id"`
	Trades    []TradeMessage `json:"trades"`
}

// TickerMessage carries the exchange's own top of book plus the mark price.
// Only markPrice is consumed here; the authoritative top of book is
// reconstructed from the book feed.
type TickerMessage struct {
	Feed      string  `json:"feed"`
	ProductID string  `json:"product_id"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	MarkPrice float64 `json:"markPrice"`
}

// BookLevelMessage is a single price level inside a book snapshot.
type BookLevelMessage struct {
	Price float64 `json:"price"`
	Qty   float64 `json:"qty"`
}

// BookSnapshotMessage replaces both sides of the book wholesale.
type BookSnapshotMessage struct {
	Feed      string             `json:"feed"`
	ProductID string             `json:"product_id"`
	Timestamp int64              `json:"timestamp"`
	Bids      []BookLevelMessage `json:"bids"`
	Asks      []BookLevelMessage `json:"asks"`
}

// BookDeltaMessage updates a single price level; qty 0 removes it.
type BookDeltaMessage struct {
	Feed      string  `json:"feed"`
	ProductID string  `json:"product_id"`
	Side      string  `json:"side"`
	Price     float64 `json:"price"`
	Qty       float64 `json:"qty"`
	Timestamp int64   `json:"timestamp"`
}

// OpenOrderPayload is the order body carried by open-order snapshots and
// deltas.
type OpenOrderPayload struct {
	OrderID    string  `json:"order_id"`
	Instrument string  `json:"instrument"`
	Direction  string  `json:"direction"`
	LimitPrice float64 `json:"limit_price"`
	Qty        float64 `json:"qty"`
	Filled     float64 `json:"filled"`
	Type       string  `json:"type"`
	ReduceOnly bool    `json:"reduce_only"`
	Time       int64   `json:"time"` // ms since epoch, last update
}

// OpenOrdersSnapshotMessage replaces the whole registry.
type OpenOrdersSnapshotMessage struct {
	Feed   string             `json:"feed"`
	Orders []OpenOrderPayload `json:"orders"`
}

// OpenOrderDeltaMessage carries a cancellation flag, an order payload, or
// both.
type OpenOrderDeltaMessage struct {
	Feed     string            `json:"feed"`
	OrderID  string            `json:"order_id"`
	IsCancel bool              `json:"is_cancel"`
	Reason   string            `json:"reason"`
	Order    *OpenOrderPayload `json:"order"`
}

// PositionPayload is one instrument's position inside an open-positions
// message. The sign of Balance encodes the side.
type PositionPayload struct {
	Instrument string  `json:"instrument"`
	Balance    float64 `json:"balance"`
	EntryPrice float64 `json:"entry_price"`
	PnL        float64 `json:"pnl"`
}

// OpenPositionsMessage fully supersedes prior position state.
type OpenPositionsMessage struct {
	Feed      string            `json:"feed"`
	Account   string            `json:"account"`
	Positions []PositionPayload `json:"positions"`
}
