package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath      = "config.toml"
	DefaultHTTPAddr        = ":3000"
	DefaultTempDir         = "/tmp/grabbit"
	DefaultExtractEndpoint = "https://tikwm.com/api/"
	DefaultGlobalLimit     = 20
	DefaultPGHost          = "127.0.0.1"
	DefaultPGPort          = 5432
	DefaultPGUser          = "postgres"
	DefaultPGDatabase      = "grabbit"
	DefaultPGSSLMode       = "disable"
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Telegram TelegramConfig `toml:"telegram"`
	Public   PublicConfig   `toml:"public"`
	Postgres PostgresConfig `toml:"postgres"`
	Extract  ExtractConfig  `toml:"extract"`
	Download DownloadConfig `toml:"download"`
	Delivery DeliveryConfig `toml:"delivery"`
	Queue    QueueConfig    `toml:"queue"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type TelegramConfig struct {
	BotToken string `toml:"bot_token" validate:"required"`
	// Hosts a message link must match to be treated as a download request.
	Hosts []string `toml:"hosts"`
}

// PublicConfig describes how this process is reachable from outside. The
// base URL serves both the large-file download links and the keep-alive
// self-ping.
type PublicConfig struct {
	BaseURL           string `toml:"base_url" validate:"required,url"`
	KeepAliveInterval string `toml:"keepalive_interval"`
}

type PostgresConfig struct {
	Host     string `toml:"host" validate:"required"`
	Port     int    `toml:"port"`
	User     string `toml:"user" validate:"required"`
	Password string `toml:"password"`
	Database string `toml:"database" validate:"required"`
	SSLMode  string `toml:"sslmode"`
}

type ExtractConfig struct {
	Endpoint      string `toml:"endpoint"`
	Attempts      int    `toml:"attempts"`
	RetryDelayMS  int    `toml:"retry_delay_ms"`
	RetryJitterMS int    `toml:"retry_jitter_ms"`
}

type DownloadConfig struct {
	Dir              string `toml:"dir"`
	Attempts         int    `toml:"attempts"`
	RetryDelayMS     int    `toml:"retry_delay_ms"`
	RetentionMinutes int    `toml:"retention_minutes"`
}

type DeliveryConfig struct {
	InlineLimitBytes     int64  `toml:"inline_limit_bytes"`
	Attempts             int    `toml:"attempts"`
	RetryBackoffMS       int    `toml:"retry_backoff_ms"`
	FrameIntervalMS      int    `toml:"frame_interval_ms"`
	InlineCleanup        string `toml:"inline_cleanup" validate:"oneof=immediate deferred"`
	LinkRetentionMinutes int    `toml:"link_retention_minutes"`
}

type QueueConfig struct {
	GlobalLimit    int `toml:"global_limit"`
	IdleTTLSeconds int `toml:"idle_ttl_seconds"`
}

func (c PublicConfig) KeepAliveSpec() string {
	if c.KeepAliveInterval == "" {
		return "@every 4m"
	}
	return "@every " + c.KeepAliveInterval
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

func (c ExtractConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMS) * time.Millisecond
}

func (c ExtractConfig) RetryJitter() time.Duration {
	return time.Duration(c.RetryJitterMS) * time.Millisecond
}

func (c DownloadConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMS) * time.Millisecond
}

func (c DownloadConfig) Retention() time.Duration {
	return time.Duration(c.RetentionMinutes) * time.Minute
}

func (c DeliveryConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMS) * time.Millisecond
}

func (c DeliveryConfig) FrameInterval() time.Duration {
	return time.Duration(c.FrameIntervalMS) * time.Millisecond
}

func (c DeliveryConfig) LinkRetention() time.Duration {
	return time.Duration(c.LinkRetentionMinutes) * time.Minute
}

func (c QueueConfig) IdleTTL() time.Duration {
	return time.Duration(c.IdleTTLSeconds) * time.Second
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Telegram: TelegramConfig{
			Hosts: []string{"tiktok.com"},
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Extract: ExtractConfig{
			Endpoint:      DefaultExtractEndpoint,
			Attempts:      5,
			RetryDelayMS:  600,
			RetryJitterMS: 400,
		},
		Download: DownloadConfig{
			Dir:              DefaultTempDir,
			Attempts:         5,
			RetryDelayMS:     800,
			RetentionMinutes: 5,
		},
		Delivery: DeliveryConfig{
			InlineLimitBytes:     50 * 1024 * 1024,
			Attempts:             5,
			RetryBackoffMS:       800,
			FrameIntervalMS:      500,
			InlineCleanup:        "immediate",
			LinkRetentionMinutes: 15,
		},
		Queue: QueueConfig{
			GlobalLimit:    DefaultGlobalLimit,
			IdleTTLSeconds: 300,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate reports missing or malformed required values. The process must
// not start without a bot token, a public base URL, and a Postgres target.
func Validate(cfg Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
