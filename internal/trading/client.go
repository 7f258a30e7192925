package trading

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"krakenfeed/internal/feed"
	"krakenfeed/internal/models"
	"krakenfeed/logger"
)

const apiPrefix = "/derivatives"

// Client talks to the Kraken Futures REST API (/derivatives/api/v3). Requests
// are rate limited and signed with the same key pair as the websocket
// challenge. All methods are safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	instrument string
	tickSize   float64
	httpClient *http.Client
	limiter    *rate.Limiter
	lastNonce  int64
	log        *logger.Log
}

type Options struct {
	BaseURL           string
	APIKey            string
	APISecret         string
	Instrument        string
	TickSize          float64
	RequestsPerSecond int
	BurstSize         int
	Timeout           time.Duration
}

func NewClient(opts Options) *Client {
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 5
	}
	if opts.BurstSize <= 0 {
		opts.BurstSize = opts.RequestsPerSecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		apiSecret:  opts.APISecret,
		instrument: opts.Instrument,
		tickSize:   opts.TickSize,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.BurstSize),
		log:        logger.GetLogger(),
	}
}

// OrderRequest describes one order to submit. CliOrdID is assigned
// automatically when empty.
type OrderRequest struct {
	OrderType  string // "lmt", "post" or "mkt"
	Side       models.Side
	Size       float64
	LimitPrice float64
	ReduceOnly bool
	CliOrdID   string
}

// BuildOrder derives the order request for a pricing mode from the current
// top of book. Market orders carry no limit price; every other mode yields a
// post-only limit order so the request can never cross the spread by
// accident.
func BuildOrder(mode models.PricingMode, side models.Side, size float64, top models.TopOfBook, tick, custom float64) (OrderRequest, error) {
	req := OrderRequest{Side: side, Size: size}

	switch mode {
	case models.PricingMarket:
		req.OrderType = "mkt"
		return req, nil
	case models.PricingCustom:
		if custom <= 0 {
			return OrderRequest{}, fmt.Errorf("custom pricing requires a positive price")
		}
		req.OrderType = "post"
		req.LimitPrice = models.RoundToTick(custom, tick)
		return req, nil
	case models.PricingBest:
		if top.Bid <= 0 || top.Ask <= 0 {
			return OrderRequest{}, fmt.Errorf("pricing mode %q requires a two-sided book", mode)
		}
		req.OrderType = "post"
		if side == models.SideBuy {
			req.LimitPrice = top.Bid
		} else {
			req.LimitPrice = top.Ask
		}
		return req, nil
	case models.PricingMid:
		if top.Bid <= 0 || top.Ask <= 0 {
			return OrderRequest{}, fmt.Errorf("pricing mode %q requires a two-sided book", mode)
		}
		req.OrderType = "post"
		req.LimitPrice = models.AdjustedMid(top.Bid, top.Ask, tick, side)
		return req, nil
	default:
		return OrderRequest{}, fmt.Errorf("unknown pricing mode %q", mode)
	}
}

// SendStatus is the order state reported by sendorder.
type SendStatus struct {
	OrderID  string `json:"order_id"`
	CliOrdID string `json:"cliOrdId"`
	Status   string `json:"status"`
}

type sendOrderResponse struct {
	Result     string `json:"result"`
	Error      string `json:"error"`
	SendStatus struct {
		OrderID  string `json:"order_id"`
		CliOrdID string `json:"cliOrdId"`
		Status   string `json:"status"`
	} `json:"sendStatus"`
}

type openPositionsResponse struct {
	Result        string `json:"result"`
	Error         string `json:"error"`
	OpenPositions []struct {
		Side   string  `json:"side"`
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price"`
		Size   float64 `json:"size"`
	} `json:"openPositions"`
}

type openOrdersResponse struct {
	Result     string `json:"result"`
	Error      string `json:"error"`
	OpenOrders []struct {
		OrderID      string  `json:"order_id"`
		Symbol       string  `json:"symbol"`
		Side         string  `json:"side"`
		OrderType    string  `json:"orderType"`
		LimitPrice   float64 `json:"limitPrice"`
		UnfilledSize float64 `json:"unfilledSize"`
		FilledSize   float64 `json:"filledSize"`
		ReduceOnly   bool    `json:"reduceOnly"`
		ReceivedTime string  `json:"receivedTime"`
	} `json:"openOrders"`
}

type cancelResponse struct {
	Result string `json:"result"`
	Error  string `json:"error"`
}

// AccountBalance is one currency balance from the accounts endpoint.
type AccountBalance struct {
	Currency string
	Quantity float64
}

type accountsResponse struct {
	Result   string `json:"result"`
	Error    string `json:"error"`
	Accounts map[string]struct {
		Balances map[string]float64 `json:"balances"`
	} `json:"accounts"`
}

// Position is the REST view of an open position, used to seed the engine
// before the private feed snapshot arrives. Balance carries the side in its
// sign, matching the feed convention.
type Position struct {
	Instrument string
	Balance    float64
	EntryPrice float64
}

// OpenPositions fetches current positions for all instruments.
func (c *Client) OpenPositions(ctx context.Context) ([]Position, error) {
	body, err := c.get(ctx, "/api/v3/openpositions")
	if err != nil {
		return nil, err
	}
	var resp openPositionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode openpositions: %w", err)
	}
	if resp.Result != "success" {
		return nil, fmt.Errorf("openpositions failed: %s", resp.Error)
	}
	positions := make([]Position, 0, len(resp.OpenPositions))
	for _, p := range resp.OpenPositions {
		balance := p.Size
		if p.Side == "short" {
			balance = -balance
		}
		positions = append(positions, Position{
			Instrument: p.Symbol,
			Balance:    balance,
			EntryPrice: p.Price,
		})
	}
	return positions, nil
}

// OpenOrders fetches the resting orders for the configured instrument.
func (c *Client) OpenOrders(ctx context.Context) ([]models.OpenOrder, error) {
	body, err := c.get(ctx, "/api/v3/openorders")
	if err != nil {
		return nil, err
	}
	var resp openOrdersResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode openorders: %w", err)
	}
	if resp.Result != "success" {
		return nil, fmt.Errorf("openorders failed: %s", resp.Error)
	}
	orders := make([]models.OpenOrder, 0, len(resp.OpenOrders))
	for _, o := range resp.OpenOrders {
		if c.instrument != "" && !strings.EqualFold(o.Symbol, c.instrument) {
			continue
		}
		side := models.SideBuy
		if o.Side == "sell" {
			side = models.SideSell
		}
		updated := time.Now()
		if t, err := time.Parse(time.RFC3339, o.ReceivedTime); err == nil {
			updated = t
		}
		orders = append(orders, models.OpenOrder{
			ID:         o.OrderID,
			Side:       side,
			Qty:        o.UnfilledSize + o.FilledSize,
			LimitPrice: o.LimitPrice,
			Filled:     o.FilledSize,
			Type:       o.OrderType,
			ReduceOnly: o.ReduceOnly,
			UpdatedAt:  updated,
		})
	}
	return orders, nil
}

// SendOrder submits an order for the configured instrument.
// PlaceOrder derives the request for the pricing mode from the current top
// of book, using the configured tick size, and submits it.
func (c *Client) PlaceOrder(ctx context.Context, mode models.PricingMode, side models.Side, size float64, top models.TopOfBook, custom float64) (SendStatus, error) {
	req, err := BuildOrder(mode, side, size, top, c.tickSize, custom)
	if err != nil {
		return SendStatus{}, err
	}
	return c.SendOrder(ctx, req)
}

func (c *Client) SendOrder(ctx context.Context, req OrderRequest) (SendStatus, error) {
	if req.CliOrdID == "" {
		req.CliOrdID = uuid.New().String()
	}
	params := url.Values{}
	params.Set("orderType", req.OrderType)
	params.Set("symbol", c.instrument)
	params.Set("side", string(req.Side))
	params.Set("size", strconv.FormatFloat(req.Size, 'f', -1, 64))
	params.Set("cliOrdId", req.CliOrdID)
	if req.OrderType != "mkt" {
		params.Set("limitPrice", strconv.FormatFloat(req.LimitPrice, 'f', -1, 64))
	}
	if req.ReduceOnly {
		params.Set("reduceOnly", "true")
	}

	body, err := c.post(ctx, "/api/v3/sendorder", params)
	if err != nil {
		return SendStatus{}, err
	}
	var resp sendOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return SendStatus{}, fmt.Errorf("decode sendorder: %w", err)
	}
	if resp.Result != "success" {
		return SendStatus{}, fmt.Errorf("sendorder failed: %s", resp.Error)
	}
	status := SendStatus{
		OrderID:  resp.SendStatus.OrderID,
		CliOrdID: resp.SendStatus.CliOrdID,
		Status:   resp.SendStatus.Status,
	}
	c.log.WithComponent("trading").WithFields(logger.Fields{
		"order_id": status.OrderID,
		"side":     req.Side,
		"size":     req.Size,
		"status":   status.Status,
	}).Info("order submitted")
	return status, nil
}

// CancelOrder cancels one order by exchange id.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	params := url.Values{}
	params.Set("order_id", orderID)
	body, err := c.post(ctx, "/api/v3/cancelorder", params)
	if err != nil {
		return err
	}
	var resp cancelResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decode cancelorder: %w", err)
	}
	if resp.Result != "success" {
		return fmt.Errorf("cancelorder failed: %s", resp.Error)
	}
	return nil
}

// CancelAllOrders cancels every resting order on the configured instrument.
func (c *Client) CancelAllOrders(ctx context.Context) error {
	params := url.Values{}
	params.Set("symbol", c.instrument)
	body, err := c.post(ctx, "/api/v3/cancelallorders", params)
	if err != nil {
		return err
	}
	var resp cancelResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decode cancelallorders: %w", err)
	}
	if resp.Result != "success" {
		return fmt.Errorf("cancelallorders failed: %s", resp.Error)
	}
	return nil
}

// Accounts fetches cash balances across all accounts.
func (c *Client) Accounts(ctx context.Context) ([]AccountBalance, error) {
	body, err := c.get(ctx, "/api/v3/accounts")
	if err != nil {
		return nil, err
	}
	var resp accountsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode accounts: %w", err)
	}
	if resp.Result != "success" {
		return nil, fmt.Errorf("accounts failed: %s", resp.Error)
	}
	var balances []AccountBalance
	for _, account := range resp.Accounts {
		for currency, qty := range account.Balances {
			balances = append(balances, AccountBalance{Currency: currency, Quantity: qty})
		}
	}
	return balances, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, endpoint, url.Values{})
}

func (c *Client) post(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodPost, endpoint, params)
}

// do signs and executes one request. The signature covers the encoded
// parameters, the nonce and the endpoint path without the /derivatives
// prefix.
func (c *Client) do(ctx context.Context, method, endpoint string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	postData := params.Encode()
	nonce := c.nextNonce()

	authent, err := feed.SignChallenge(postData+nonce+endpoint, c.apiSecret)
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}

	fullURL := c.baseURL + apiPrefix + endpoint
	var req *http.Request
	if method == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, method, fullURL, strings.NewReader(postData))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		if postData != "" {
			fullURL += "?" + postData
		}
		req, err = http.NewRequestWithContext(ctx, method, fullURL, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("APIKey", c.apiKey)
	req.Header.Set("Nonce", nonce)
	req.Header.Set("Authent", authent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	logger.LogPerformanceEntry(c.log.WithComponent("trading"), "trading", endpoint, time.Since(start), nil)
	return body, nil
}

// nextNonce returns a strictly increasing millisecond nonce.
func (c *Client) nextNonce() string {
	for {
		now := time.Now().UnixMilli()
		last := atomic.LoadInt64(&c.lastNonce)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&c.lastNonce, last, now) {
			return strconv.FormatInt(now, 10)
		}
	}
}
