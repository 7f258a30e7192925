package channel

import (
	"context"
	"sync"

	"krakenfeed/internal/models"
	"krakenfeed/logger"
)

type ChannelStats struct {
	EventsSent    int64
	TradesSent    int64
	EventsDropped int64
	TradesDropped int64
}

// Channels carries engine output to consumers. Sends never block the feed
// goroutine; a full buffer drops the message and counts the drop.
type Channels struct {
	Events chan models.Event
	Trades chan models.Trade

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(eventBufferSize, tradeBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Events: make(chan models.Event, eventBufferSize),
		Trades: make(chan models.Trade, tradeBufferSize),
		log:    log,
	}

	log.WithComponent("channels").WithFields(logger.Fields{
		"event_buffer_size": eventBufferSize,
		"trade_buffer_size": tradeBufferSize,
	}).Info("feed channels initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Events)
	close(c.Trades)
	c.log.WithComponent("channels").Info("feed channels closed")
}

func (c *Channels) IncrementEventsSent() {
	c.statsMutex.Lock()
	c.stats.EventsSent++
	c.statsMutex.Unlock()
}

func (c *Channels) IncrementTradesSent() {
	c.statsMutex.Lock()
	c.stats.TradesSent++
	c.statsMutex.Unlock()
}

func (c *Channels) IncrementEventsDropped() {
	c.statsMutex.Lock()
	c.stats.EventsDropped++
	c.statsMutex.Unlock()
	logger.IncrementEmitDrop()
}

func (c *Channels) IncrementTradesDropped() {
	c.statsMutex.Lock()
	c.stats.TradesDropped++
	c.statsMutex.Unlock()
	logger.IncrementEmitDrop()
}

func (c *Channels) SendEvent(ctx context.Context, ev models.Event) bool {
	select {
	case c.Events <- ev:
		c.IncrementEventsSent()
		return true
	case <-ctx.Done():
		return false
	default:
		c.IncrementEventsDropped()
		return false
	}
}

func (c *Channels) SendTrade(ctx context.Context, trade models.Trade) bool {
	select {
	case c.Trades <- trade:
		c.IncrementTradesSent()
		return true
	case <-ctx.Done():
		return false
	default:
		c.IncrementTradesDropped()
		return false
	}
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}
