package dashboard

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"krakenfeed/config"
	"krakenfeed/internal/channel"
	"krakenfeed/internal/models"
	"krakenfeed/logger"
)

// SnapshotSource provides the current state snapshot. Satisfied by the feed
// client.
type SnapshotSource interface {
	Snapshot() models.Snapshot
}

// Server hosts the Gin-powered monitoring API for the feed terminal.
type Server struct {
	cfg        config.DashboardConfig
	log        *logger.Log
	source     SnapshotSource
	channels   *channel.Channels
	httpServer *http.Server
}

// NewServer constructs a dashboard server when the dashboard feature is
// enabled. When disabled the returned server is nil.
func NewServer(cfg config.DashboardConfig, source SnapshotSource, channels *channel.Channels, log *logger.Log) (*Server, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if source == nil {
		return nil, errors.New("nil snapshot source")
	}

	cfg.Address = normalizeAddress(cfg.Address)

	return &Server{
		cfg:      cfg,
		log:      log,
		source:   source,
		channels: channels,
	}, nil
}

// Run starts the HTTP server and blocks until the context is cancelled or
// the server exits with an error.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return nil
	}

	router, err := s.buildRouter()
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:    s.cfg.Address,
		Handler: router,
	}

	s.log.WithComponent("dashboard").WithFields(logger.Fields{"address": s.cfg.Address}).Info("dashboard listening")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

// Address reports the network address the server listens on.
func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Address
}

func (s *Server) buildRouter() (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	router.GET("/healthz", func(c *gin.Context) {
		snap := s.source.Snapshot()
		status := http.StatusOK
		if !snap.Connected {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"state": snap.State, "connected": snap.Connected})
	})

	router.GET("/api/snapshot", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.source.Snapshot())
	})

	router.GET("/api/market", func(c *gin.Context) {
		c.JSON(http.StatusOK, buildView(s.source.Snapshot()))
	})

	router.GET("/api/channels", func(c *gin.Context) {
		if s.channels == nil {
			c.JSON(http.StatusOK, gin.H{})
			return
		}
		stats := s.channels.GetStats()
		c.JSON(http.StatusOK, gin.H{
			"events_sent":    stats.EventsSent,
			"trades_sent":    stats.TradesSent,
			"events_dropped": stats.EventsDropped,
			"trades_dropped": stats.TradesDropped,
		})
	})

	return router, nil
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)

	if addr == "" {
		return "0.0.0.0:8080"
	}

	if strings.HasPrefix(addr, ":") {
		if len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
			return "0.0.0.0" + addr
		}
	}

	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8080"
		}
		return net.JoinHostPort(host, port)
	}

	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8080")
	}

	return addr
}
