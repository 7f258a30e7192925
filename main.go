package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"krakenfeed/config"
	"krakenfeed/internal/channel"
	"krakenfeed/internal/dashboard"
	"krakenfeed/internal/feed"
	"krakenfeed/internal/models"
	"krakenfeed/internal/recorder"
	"krakenfeed/internal/trading"
	"krakenfeed/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service":    cfg.App.Name,
		"version":    cfg.App.Version,
		"instrument": cfg.Instrument.Symbol,
	}).Info("starting krakenfeed")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Logging.CloudWatch.Enabled {
		logger.InitCloudWatch(
			cfg.Logging.CloudWatch.Region,
			cfg.Logging.CloudWatch.Namespace,
			cfg.Logging.CloudWatch.Dashboard,
		)
	}
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	channels := channel.NewChannels(
		cfg.Channels.EventBuffer,
		cfg.Channels.TradeBuffer,
	)
	defer channels.Close()

	engine := feed.NewEngine(feed.EngineOptions{
		Instrument:   cfg.Instrument.Symbol,
		TapeSize:     cfg.Feed.TapeSize,
		VolumeWindow: cfg.Feed.VolumeWindow(),
		BookThrottle: cfg.Feed.BookThrottle(),
	})

	var trader *trading.Client
	if cfg.Trading.Enabled {
		trader = trading.NewClient(trading.Options{
			BaseURL:           cfg.Trading.BaseURL,
			APIKey:            cfg.Credentials.APIKey,
			APISecret:         cfg.Credentials.APISecret,
			Instrument:        cfg.Instrument.Symbol,
			TickSize:          cfg.Instrument.TickSize,
			RequestsPerSecond: cfg.Trading.RequestsPerSecond,
			BurstSize:         cfg.Trading.BurstSize,
		})
		seedEngine(ctx, log, trader, engine, cfg.Instrument.Symbol)
	}

	client := feed.NewClient(feed.ClientConfig{
		URL:          cfg.Feed.URL,
		Instrument:   cfg.Instrument.Symbol,
		APIKey:       cfg.Credentials.APIKey,
		APISecret:    cfg.Credentials.APISecret,
		PingInterval: cfg.Feed.PingInterval(),
		Retry: feed.RetryPolicy{
			BaseDelay:  cfg.Retry.BaseDelay(),
			MaxDelay:   cfg.Retry.MaxDelay(),
			Multiplier: cfg.Retry.Multiplier,
		},
	}, engine, channels)

	if err := client.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start feed client")
		os.Exit(1)
	}

	var rec *recorder.Recorder
	if cfg.Recorder.Enabled {
		rec, err = recorder.NewRecorder(cfg, channels.Trades)
		if err != nil {
			log.WithError(err).Error("failed to create trade recorder")
			os.Exit(1)
		}
		if err := rec.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start trade recorder")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("trade recorder disabled")
	}

	var wg sync.WaitGroup

	server, err := dashboard.NewServer(cfg.Dashboard, client, channels, log)
	if err != nil {
		log.WithError(err).Error("failed to create dashboard server")
		os.Exit(1)
	}
	if server != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Run(ctx); err != nil {
				log.WithError(err).Warn("dashboard server exited")
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		consumeEvents(ctx, log, channels)
	}()

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	log.Info("stopping feed client")
	client.Stop()

	if rec != nil {
		log.Info("stopping trade recorder")
		rec.Stop()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("krakenfeed stopped")
}

// seedEngine primes the order registry and position tracker from the REST API
// so private state is visible before the websocket snapshots arrive. Failures
// are logged and skipped; the feed snapshots correct the state shortly after.
func seedEngine(ctx context.Context, log *logger.Log, trader *trading.Client, engine *feed.Engine, instrument string) {
	seedCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if orders, err := trader.OpenOrders(seedCtx); err != nil {
		log.WithComponent("main").WithError(err).Warn("failed to seed open orders")
	} else {
		engine.SeedOrders(orders)
		log.WithComponent("main").WithFields(logger.Fields{"count": len(orders)}).Info("seeded open orders")
	}

	positions, err := trader.OpenPositions(seedCtx)
	if err != nil {
		log.WithComponent("main").WithError(err).Warn("failed to seed open positions")
		return
	}
	for _, p := range positions {
		if strings.EqualFold(p.Instrument, instrument) {
			engine.SeedPosition(p.Balance, p.EntryPrice)
			log.WithComponent("main").WithFields(logger.Fields{
				"balance":     p.Balance,
				"entry_price": p.EntryPrice,
			}).Info("seeded open position")
			break
		}
	}
}

// consumeEvents drains the event channel so emission never blocks. Most events
// are logged at debug; the dashboard reads derived state from the snapshot.
func consumeEvents(ctx context.Context, log *logger.Log, channels *channel.Channels) {
	entry := log.WithComponent("events")
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-channels.Events:
			if !ok {
				return
			}
			switch event.Type {
			case models.EventTypeConfigError:
				entry.WithFields(logger.Fields{"error": event.Err}).Error("configuration rejected by exchange")
			case models.EventTypeConnectivity:
				entry.WithFields(logger.Fields{"connected": event.Connected}).Info("connectivity changed")
			default:
				entry.WithFields(logger.Fields{"type": string(event.Type)}).Debug("feed event")
			}
		}
	}
}
