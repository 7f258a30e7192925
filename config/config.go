package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App         AppConfig         `yaml:"app"`
	Instrument  InstrumentConfig  `yaml:"instrument"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Feed        FeedConfig        `yaml:"feed"`
	Retry       RetryConfig       `yaml:"retry"`
	Channels    ChannelsConfig    `yaml:"channels"`
	Trading     TradingConfig     `yaml:"trading"`
	Recorder    RecorderConfig    `yaml:"recorder"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type InstrumentConfig struct {
	Symbol   string  `yaml:"symbol"`
	TickSize float64 `yaml:"tick_size"`
}

// CredentialsConfig holds the Kraken Futures API key pair. The same pair
// signs both the websocket challenge and REST requests. Both fields may be
// left empty, in which case only public feeds are consumed.
type CredentialsConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
}

// Present reports whether a usable key pair is configured.
func (c CredentialsConfig) Present() bool {
	return c.APIKey != "" && c.APISecret != ""
}

type FeedConfig struct {
	URL            string `yaml:"url"`
	PingIntervalMs int    `yaml:"ping_interval_ms"`
	BookThrottleMs int    `yaml:"book_throttle_ms"`
	TapeSize       int    `yaml:"tape_size"`
	VolumeWindowMs int    `yaml:"volume_window_ms"`
}

func (f FeedConfig) PingInterval() time.Duration {
	return time.Duration(f.PingIntervalMs) * time.Millisecond
}

func (f FeedConfig) BookThrottle() time.Duration {
	return time.Duration(f.BookThrottleMs) * time.Millisecond
}

func (f FeedConfig) VolumeWindow() time.Duration {
	return time.Duration(f.VolumeWindowMs) * time.Millisecond
}

type RetryConfig struct {
	BaseDelayMs int     `yaml:"base_delay_ms"`
	MaxDelayMs  int     `yaml:"max_delay_ms"`
	Multiplier  float64 `yaml:"multiplier"`
}

func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMs) * time.Millisecond
}

func (r RetryConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMs) * time.Millisecond
}

type ChannelsConfig struct {
	EventBuffer int `yaml:"event_buffer"`
	TradeBuffer int `yaml:"trade_buffer"`
}

type TradingConfig struct {
	Enabled           bool   `yaml:"enabled"`
	BaseURL           string `yaml:"base_url"`
	RequestsPerSecond int    `yaml:"requests_per_second"`
	BurstSize         int    `yaml:"burst_size"`
}

type RecorderConfig struct {
	Enabled bool     `yaml:"enabled"`
	Dir     string   `yaml:"dir"`
	S3      S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type DashboardConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

type LoggingConfig struct {
	Level      string           `yaml:"level"`
	Format     string           `yaml:"format"`
	Output     string           `yaml:"output"`
	MaxAge     int              `yaml:"max_age"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
	Dashboard string `yaml:"dashboard"`
}

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Feed: FeedConfig{
			URL:            "wss://futures.kraken.com/ws/v1",
			PingIntervalMs: 15000,
			TapeSize:       1000,
			VolumeWindowMs: 60000,
		},
		Retry: RetryConfig{
			BaseDelayMs: 1000,
			MaxDelayMs:  30000,
			Multiplier:  2,
		},
		Channels: ChannelsConfig{
			EventBuffer: 1000,
			TradeBuffer: 1000,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override credentials from environment variables if available
	if v := os.Getenv("KRAKEN_API_KEY"); v != "" {
		config.Credentials.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("KRAKEN_API_SECRET"); v != "" {
		config.Credentials.APISecret = strings.TrimSpace(v)
	}

	// Override S3 settings from environment variables if available
	if config.Recorder.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Recorder.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Recorder.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Recorder.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Recorder.S3.Bucket = strings.TrimSpace(v)
		}
	}

	config.Recorder.S3.Bucket = strings.TrimSpace(config.Recorder.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}

	if cfg.App.Version == "" {
		return fmt.Errorf("app.version is required")
	}

	if cfg.Instrument.Symbol == "" {
		return fmt.Errorf("instrument.symbol is required")
	}
	if cfg.Instrument.TickSize < 0 {
		return fmt.Errorf("instrument.tick_size must not be negative")
	}

	if cfg.Feed.URL == "" {
		return fmt.Errorf("feed.url is required")
	}
	if cfg.Feed.TapeSize <= 0 {
		return fmt.Errorf("feed.tape_size must be greater than 0")
	}
	if cfg.Feed.BookThrottleMs < 0 {
		return fmt.Errorf("feed.book_throttle_ms must not be negative")
	}
	if cfg.Feed.VolumeWindowMs <= 0 {
		return fmt.Errorf("feed.volume_window_ms must be greater than 0")
	}

	if cfg.Retry.BaseDelayMs <= 0 {
		return fmt.Errorf("retry.base_delay_ms must be greater than 0")
	}
	if cfg.Retry.MaxDelayMs < cfg.Retry.BaseDelayMs {
		return fmt.Errorf("retry.max_delay_ms must not be less than retry.base_delay_ms")
	}
	if cfg.Retry.Multiplier < 1 {
		return fmt.Errorf("retry.multiplier must be at least 1")
	}

	if cfg.Channels.EventBuffer <= 0 {
		return fmt.Errorf("channels.event_buffer must be greater than 0")
	}
	if cfg.Channels.TradeBuffer <= 0 {
		return fmt.Errorf("channels.trade_buffer must be greater than 0")
	}

	if cfg.Trading.Enabled {
		if cfg.Trading.BaseURL == "" {
			return fmt.Errorf("trading.base_url is required when trading is enabled")
		}
		if !cfg.Credentials.Present() {
			return fmt.Errorf("credentials.api_key and credentials.api_secret are required when trading is enabled")
		}
		if cfg.Trading.RequestsPerSecond <= 0 {
			return fmt.Errorf("trading.requests_per_second must be greater than 0")
		}
	}

	if cfg.Recorder.Enabled && cfg.Recorder.Dir == "" {
		return fmt.Errorf("recorder.dir is required when the recorder is enabled")
	}

	if cfg.Recorder.S3.Enabled {
		if cfg.Recorder.S3.Bucket == "" {
			return fmt.Errorf("recorder.s3.bucket is required when S3 is enabled")
		}
		if cfg.Recorder.S3.Region == "" {
			return fmt.Errorf("recorder.s3.region is required when S3 is enabled")
		}
		if cfg.Recorder.S3.AccessKeyID == "" || cfg.Recorder.S3.SecretAccessKey == "" {
			return fmt.Errorf("recorder.s3.access_key_id and recorder.s3.secret_access_key are required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Recorder.S3.Bucket) {
			return fmt.Errorf("recorder.s3.bucket '%s' is invalid", cfg.Recorder.S3.Bucket)
		}
	}

	if cfg.Dashboard.Enabled && cfg.Dashboard.Address == "" {
		return fmt.Errorf("dashboard.address is required when the dashboard is enabled")
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
