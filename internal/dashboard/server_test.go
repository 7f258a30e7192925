package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"krakenfeed/config"
	"krakenfeed/internal/channel"
	"krakenfeed/internal/models"
	"krakenfeed/logger"
)

type stubSource struct {
	snap models.Snapshot
}

func (s *stubSource) Snapshot() models.Snapshot {
	return s.snap
}

func connectedSnapshot() models.Snapshot {
	return models.Snapshot{
		Instrument: "PF_XBTUSD",
		State:      "authenticated",
		Connected:  true,
		Bids:       []models.PriceLevel{{Price: 100, Qty: 1}, {Price: 99, Qty: 2}},
		Asks:       []models.PriceLevel{{Price: 101, Qty: 1}},
		TopOfBook:  &models.TopOfBook{Bid: 100, Ask: 101},
		LastPrice:  100.5,
		MarkPrice:  100.4,
		Position:   &models.Position{Side: models.PositionLong, EntryPrice: 95, Qty: 2},
		UpdatedAt:  time.Now(),
	}
}

func newTestServer(t *testing.T, snap models.Snapshot) *gin.Engine {
	t.Helper()
	server, err := NewServer(config.DashboardConfig{Enabled: true, Address: ":0"},
		&stubSource{snap: snap}, channel.NewChannels(8, 8), logger.GetLogger())
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	router, err := server.buildRouter()
	if err != nil {
		t.Fatalf("buildRouter failed: %v", err)
	}
	return router
}

func TestHealthz(t *testing.T) {
	router := newTestServer(t, connectedSnapshot())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	disconnected := connectedSnapshot()
	disconnected.Connected = false
	router = newTestServer(t, disconnected)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestMarketEndpoint(t *testing.T) {
	router := newTestServer(t, connectedSnapshot())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/market", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var view MarketView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.Mid != 100.5 || view.Spread != 1 {
		t.Fatalf("unexpected derived prices: %+v", view)
	}
	if view.Position == nil {
		t.Fatalf("position missing from view")
	}
}

func TestDisabledDashboardIsNil(t *testing.T) {
	server, err := NewServer(config.DashboardConfig{Enabled: false},
		&stubSource{}, nil, logger.GetLogger())
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	if server != nil {
		t.Fatalf("disabled dashboard should be nil")
	}
	if server.Address() != "" {
		t.Fatalf("nil server address should be empty")
	}
}

func TestBuildViewPositionPnL(t *testing.T) {
	view := buildView(connectedSnapshot())
	pos := view.Position
	// Long 2 from 95: at mid 100.5 the pnl is 11, at best bid 100 it is 10,
	// closing 2 into bids 1@100+1@99 averages 99.5 for a pnl of 9.
	if pos.PnLAtMid != 11 {
		t.Errorf("pnl at mid = %v, want 11", pos.PnLAtMid)
	}
	if pos.PnLAtBest != 10 {
		t.Errorf("pnl at best = %v, want 10", pos.PnLAtBest)
	}
	if pos.PnLAtImpact != 9 {
		t.Errorf("pnl at impact = %v, want 9", pos.PnLAtImpact)
	}
	if pos.RoundTripFee != 95*2*models.FeeRate*2 {
		t.Errorf("unexpected round trip fee: %v", pos.RoundTripFee)
	}
}

func TestNormalizeAddress(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", "0.0.0.0:8080"},
		{":9090", "0.0.0.0:9090"},
		{"localhost:8081", "localhost:8081"},
		{"example.com", "example.com:8080"},
	}
	for _, c := range cases {
		if got := normalizeAddress(c.in); got != c.want {
			t.Errorf("normalizeAddress(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
