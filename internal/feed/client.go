package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"krakenfeed/internal/channel"
	"krakenfeed/internal/models"
	"krakenfeed/logger"
)

const (
	defaultPingInterval = 15 * time.Second
	defaultTickInterval = 250 * time.Millisecond
)

// Conn is the subset of the websocket connection the client uses. Satisfied
// by *websocket.Conn and by fakes in tests.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v interface{}) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Dialer opens a connection to the feed endpoint.
type Dialer func(ctx context.Context, url string) (Conn, error)

// GorillaDialer dials with the default gorilla websocket dialer.
func GorillaDialer(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// RetryPolicy is exponential backoff between reconnect attempts.
type RetryPolicy struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

// Delay returns the backoff for the given zero-based attempt, capped at
// MaxDelay.
func (r RetryPolicy) Delay(attempt int) time.Duration {
	base := r.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	mult := r.Multiplier
	if mult < 1 {
		mult = 2
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay = time.Duration(float64(delay) * mult)
		if r.MaxDelay > 0 && delay >= r.MaxDelay {
			return r.MaxDelay
		}
	}
	if r.MaxDelay > 0 && delay > r.MaxDelay {
		delay = r.MaxDelay
	}
	return delay
}

// ClientConfig collects the connection parameters for one feed session.
type ClientConfig struct {
	URL          string
	Instrument   string
	APIKey       string
	APISecret    string
	PingInterval time.Duration
	TickInterval time.Duration
	Retry        RetryPolicy
}

// Client owns the websocket session for one instrument. It dials, subscribes,
// authenticates when credentials are present and feeds every raw message to
// the engine on a single goroutine. Consumers read typed channels and the
// published snapshot; they never touch the connection.
type Client struct {
	config   ClientConfig
	engine   *Engine
	channels *channel.Channels
	dial     Dialer

	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	conn    Conn
	stopCh  chan struct{}

	state    stateVar
	snapMu   sync.RWMutex
	snapshot models.Snapshot

	log *logger.Log
}

func NewClient(cfg ClientConfig, engine *Engine, channels *channel.Channels) *Client {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	return &Client{
		config:   cfg,
		engine:   engine,
		channels: channels,
		dial:     GorillaDialer,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

// SetDialer replaces the transport dialer. Tests use this to inject fake
// connections.
func (c *Client) SetDialer(dial Dialer) {
	c.dial = dial
}

// Start launches the session loop. Returns an error when already running.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("feed client already running")
	}
	c.running = true
	c.ctx = ctx
	c.stopCh = make(chan struct{})
	c.mu.Unlock()

	log := c.log.WithComponent("feed_client").WithFields(logger.Fields{
		"url":        c.config.URL,
		"instrument": c.config.Instrument,
	})
	log.Info("starting feed client")

	c.wg.Add(1)
	go c.run()

	log.Info("feed client started successfully")
	return nil
}

// Stop terminates the session and waits for the loop to exit. The running
// flag is cleared before the connection closes so the resulting read error is
// treated as shutdown, not as a disconnect.
func (c *Client) Stop() {
	c.mu.Lock()
	wasRunning := c.running
	c.running = false
	conn := c.conn
	stopCh := c.stopCh
	c.mu.Unlock()

	if wasRunning && stopCh != nil {
		close(stopCh)
	}

	c.log.WithComponent("feed_client").Info("stopping feed client")
	if conn != nil {
		conn.Close()
	}
	c.wg.Wait()
	c.state.Store(StateStopped)
	c.publishSnapshot(time.Now())
	c.log.WithComponent("feed_client").Info("feed client stopped")
}

// State returns the current connection state.
func (c *Client) State() State {
	return c.state.Load()
}

// Snapshot returns the most recently published state snapshot.
func (c *Client) Snapshot() models.Snapshot {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snapshot
}

func (c *Client) isRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

func (c *Client) setConn(conn Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) run() {
	defer c.wg.Done()
	log := c.log.WithComponent("feed_client").WithFields(logger.Fields{"instrument": c.config.Instrument})

	attempt := 0
	for {
		if !c.isRunning() || c.ctx.Err() != nil {
			return
		}

		c.state.Store(StateConnecting)
		conn, err := c.dial(c.ctx, c.config.URL)
		if err != nil {
			log.WithError(err).Warn("failed to connect to feed websocket")
			c.state.Store(StateReconnecting)
			if c.waitForReconnect(c.config.Retry.Delay(attempt)) {
				return
			}
			attempt++
			continue
		}
		c.setConn(conn)

		if err := c.subscribePublic(conn); err != nil {
			log.WithError(err).Warn("failed to subscribe to public feeds")
			c.setConn(nil)
			conn.Close()
			c.state.Store(StateReconnecting)
			if c.waitForReconnect(c.config.Retry.Delay(attempt)) {
				return
			}
			attempt++
			continue
		}
		c.state.Store(StateSubscribed)
		c.emit(models.Event{Type: models.EventTypeConnectivity, Time: time.Now(), Connected: true})
		log.Info("feed connected and subscribed")
		attempt = 0

		if c.config.APIKey != "" && c.config.APISecret != "" {
			if err := conn.WriteJSON(models.ChallengeRequest{
				Event:  models.EventChallenge,
				APIKey: c.config.APIKey,
			}); err != nil {
				log.WithError(err).Warn("failed to request auth challenge")
			} else {
				c.state.Store(StateAwaitingChallenge)
			}
		}

		pingCancel := c.startPingLoop(conn)
		err = c.session(conn)
		pingCancel()

		c.setConn(nil)
		conn.Close()

		if !c.isRunning() || c.ctx.Err() != nil {
			return
		}

		logger.IncrementReconnect()
		if err != nil {
			log.WithError(err).Warn("feed session ended")
		}
		c.engine.OnDisconnect()
		c.state.Store(StateReconnecting)
		c.emit(models.Event{Type: models.EventTypeConnectivity, Time: time.Now(), Connected: false})
		c.publishSnapshot(time.Now())

		if c.waitForReconnect(c.config.Retry.Delay(attempt)) {
			return
		}
		attempt++
	}
}

// session pumps messages from the connection into the engine until the
// connection fails or the client stops. Engine access stays on this
// goroutine; the read pump only moves bytes.
func (c *Client) session(conn Conn) error {
	msgCh := make(chan []byte, 64)
	errCh := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				select {
				case errCh <- err:
				case <-done:
				}
				return
			}
			select {
			case msgCh <- raw:
			case <-done:
				return
			}
		}
	}()

	ticker := time.NewTicker(c.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return c.ctx.Err()
		case err := <-errCh:
			return err
		case raw := <-msgCh:
			logger.IncrementFeedRead(len(raw))
			c.handleMessage(conn, raw)
		case <-ticker.C:
			now := time.Now()
			c.dispatch(c.engine.Tick(now))
			c.publishSnapshot(now)
		}
	}
}

func (c *Client) handleMessage(conn Conn, raw []byte) {
	now := time.Now()

	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.log.WithComponent("feed_client").WithError(err).Warn("malformed feed frame")
		return
	}

	if env.Event != "" {
		c.handleEvent(conn, env, raw, now)
		c.publishSnapshot(now)
		return
	}

	c.dispatch(c.engine.Apply(raw, now))
	c.publishSnapshot(now)
}

func (c *Client) handleEvent(conn Conn, env models.Envelope, raw []byte, now time.Time) {
	log := c.log.WithComponent("feed_client")
	switch env.Event {
	case models.EventChallenge:
		var msg models.ChallengeMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.WithError(err).Warn("malformed challenge message")
			return
		}
		c.authenticate(conn, msg.Message, now)
	case models.EventSubscribed:
		log.WithFields(logger.Fields{"feed": env.Feed}).Info("feed subscription confirmed")
	case models.EventInfo:
		log.WithFields(logger.Fields{"raw": string(raw)}).Debug("feed info")
	case models.EventError:
		log.WithFields(logger.Fields{"raw": string(raw)}).Error("feed error event")
		c.emit(models.Event{Type: models.EventTypeConfigError, Time: now, Err: string(raw)})
	default:
		log.WithFields(logger.Fields{"event": env.Event}).Debug("ignoring feed event")
	}
}

// authenticate signs the server challenge and subscribes to the private
// feeds. A signing failure downgrades the session to public-only for its
// remainder; it is reported once and not retried.
func (c *Client) authenticate(conn Conn, challenge string, now time.Time) {
	log := c.log.WithComponent("feed_client")

	signed, err := SignChallenge(challenge, c.config.APISecret)
	if err != nil {
		log.WithError(err).Error("failed to sign auth challenge; continuing public only")
		c.emit(models.Event{
			Type: models.EventTypeConfigError,
			Time: now,
			Err:  fmt.Sprintf("challenge signing failed: %v", err),
		})
		return
	}

	for _, feedName := range []string{models.FeedOpenOrders, models.FeedOpenPositions} {
		if err := conn.WriteJSON(models.SubscribeRequest{
			Event:             models.EventSubscribe,
			Feed:              feedName,
			APIKey:            c.config.APIKey,
			OriginalChallenge: challenge,
			SignedChallenge:   signed,
		}); err != nil {
			log.WithError(err).WithFields(logger.Fields{"feed": feedName}).Warn("failed to subscribe to private feed")
			return
		}
	}
	c.state.Store(StateAuthenticated)
	log.Info("private feeds subscribed")
}

func (c *Client) subscribePublic(conn Conn) error {
	for _, feedName := range []string{models.FeedTrade, models.FeedTicker, models.FeedBook} {
		if err := conn.WriteJSON(models.SubscribeRequest{
			Event:      models.EventSubscribe,
			Feed:       feedName,
			ProductIDs: []string{c.config.Instrument},
		}); err != nil {
			return fmt.Errorf("subscribe %s: %w", feedName, err)
		}
	}
	return nil
}

func (c *Client) dispatch(events []models.Event) {
	for _, ev := range events {
		c.emit(ev)
	}
}

func (c *Client) emit(ev models.Event) {
	c.channels.SendEvent(c.ctx, ev)
	if ev.Type == models.EventTypeTrade && ev.Trade != nil {
		c.channels.SendTrade(c.ctx, *ev.Trade)
	}
}

func (c *Client) publishSnapshot(now time.Time) {
	snap := c.engine.Snapshot(c.state.Load(), now)
	c.snapMu.Lock()
	c.snapshot = snap
	c.snapMu.Unlock()
}

func (c *Client) waitForReconnect(delay time.Duration) bool {
	if delay <= 0 {
		delay = time.Second
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-c.ctx.Done():
		return true
	case <-c.stopCh:
		return true
	case <-timer.C:
		return !c.isRunning()
	}
}

func (c *Client) startPingLoop(conn Conn) context.CancelFunc {
	interval := c.config.PingInterval
	pingCtx, cancel := context.WithCancel(c.ctx)
	ticker := time.NewTicker(interval)
	log := c.log.WithComponent("feed_client")
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
					log.WithError(err).Warn("failed to send websocket ping")
					cancel()
					return
				}
			}
		}
	}()
	return cancel
}
