package models

import "time"

// EventType enumerates the consumer-facing events the feed client emits.
type EventType string

const (
	EventTypeTrade        EventType = "trade"
	EventTypeTopOfBook    EventType = "top_of_book"
	EventTypeMarkPrice    EventType = "mark_price"
	EventTypeOrders       EventType = "orders"
	EventTypePosition     EventType = "position"
	EventTypeConnectivity EventType = "connectivity"
	EventTypeConfigError  EventType = "config_error"
)

// TopOfBook is the best resting bid and ask.
type TopOfBook struct {
	Bid float64 `json:"bid"`
	Ask float64 `json:"ask"`
}

// Mid returns the midpoint price.
func (t TopOfBook) Mid() float64 {
	return (t.Bid + t.Ask) / 2
}

// Spread returns the bid/ask spread.
func (t TopOfBook) Spread() float64 {
	return t.Ask - t.Bid
}

// SpreadPercent returns the spread as a fraction of the bid.
func (t TopOfBook) SpreadPercent() float64 {
	if t.Bid == 0 {
		return 0
	}
	return t.Spread() / t.Bid
}

// Event describes one state change derived from a feed message. Exactly the
// fields relevant to Type are populated.
type Event struct {
	Type EventType `json:"type"`
	Time time.Time `json:"time"`

	Trade     *Trade      `json:"trade,omitempty"`
	TopOfBook *TopOfBook  `json:"top_of_book,omitempty"`
	MarkPrice float64     `json:"mark_price,omitempty"`
	Orders    []OpenOrder `json:"orders,omitempty"`
	Position  *Position   `json:"position,omitempty"` // nil on EventTypePosition means flat
	Connected bool        `json:"connected,omitempty"`
	Err       string      `json:"error,omitempty"`
}

// VolumeStats is a rolling-window aggregate over the trade tape.
type VolumeStats struct {
	Window      time.Duration `json:"window"`
	TotalVolume float64       `json:"total_volume"`
	QuoteVolume float64       `json:"quote_volume"`
	BuyVolume   float64       `json:"buy_volume"`
	SellVolume  float64       `json:"sell_volume"`
}

// BuyShare returns the buy fraction of total volume, 0 when empty.
func (v VolumeStats) BuyShare() float64 {
	if v.TotalVolume == 0 {
		return 0
	}
	return v.BuyVolume / v.TotalVolume
}

// SellShare returns the sell fraction of total volume, 0 when empty.
func (v VolumeStats) SellShare() float64 {
	if v.TotalVolume == 0 {
		return 0
	}
	return v.SellVolume / v.TotalVolume
}

// Snapshot is the read-only view of all core state, published atomically at
// the end of each processing step. Slices are copies private to the snapshot.
type Snapshot struct {
	Instrument string       `json:"instrument"`
	State      string       `json:"state"`
	Connected  bool         `json:"connected"`
	Bids       []PriceLevel `json:"bids"`
	Asks       []PriceLevel `json:"asks"`
	TopOfBook  *TopOfBook   `json:"top_of_book,omitempty"`
	LastPrice  float64      `json:"last_price"`
	// LastDirection is +1 when the last trade printed above the one before
	// it, -1 below, 0 when unchanged or unknown.
	LastDirection int         `json:"last_direction"`
	MarkPrice     float64     `json:"mark_price"`
	Volume        VolumeStats `json:"volume"`
	Orders        []OpenOrder `json:"orders"`
	Position      *Position   `json:"position,omitempty"`
	UpdatedAt     time.Time   `json:"updated_at"`
}
