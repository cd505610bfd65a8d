package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/park285/cheese-duel/internal/obslog"
)

type AppConfig struct {
	HTTPAddr       string   `env:"DUEL_HTTP_ADDR" envDefault:":8080"`
	AllowedOrigins []string `env:"ORIGIN_ALLOWLIST" envSeparator:","`

	RedisURL    string        `env:"REDIS_URL"`
	SnapshotTTL time.Duration `env:"SNAPSHOT_TTL" envDefault:"24h"`

	OracleURL          string        `env:"ORACLE_URL"`
	OracleTimeout      time.Duration `env:"ORACLE_TIMEOUT" envDefault:"2s"`
	OracleRetry        int           `env:"ORACLE_RETRY" envDefault:"3"`
	ServeRulesEndpoint bool          `env:"SERVE_RULES_ENDPOINT" envDefault:"false"`

	DisconnectGrace time.Duration `env:"DISCONNECT_GRACE" envDefault:"60s"`
	WaitingTimeout  time.Duration `env:"WAITING_TIMEOUT" envDefault:"1h"`
	SweepInterval   time.Duration `env:"SWEEP_INTERVAL" envDefault:"5s"`

	ChatHistoryLimit int `env:"CHAT_HISTORY_LIMIT" envDefault:"200"`
	ChatMaxRunes     int `env:"CHAT_MAX_RUNES" envDefault:"2000"`

	MaxFramesPerSecond int           `env:"MAX_FRAMES_PER_SECOND" envDefault:"20"`
	OutboundBuffer     int           `env:"OUTBOUND_BUFFER" envDefault:"64"`
	PingInterval       time.Duration `env:"PING_INTERVAL" envDefault:"15s"`

	MessagesDir string `env:"MESSAGES_DIR"`

	Log LogConfig `envPrefix:"LOG_"`
}

type LogConfig struct {
	Level     string `env:"LEVEL" envDefault:"info"`
	ToConsole bool   `env:"TO_CONSOLE" envDefault:"true"`
	ToFile    bool   `env:"TO_FILE" envDefault:"false"`
	File      string `env:"FILE" envDefault:"logs/duel.log"`
	Format    string `env:"FORMAT" envDefault:"legacy"`
	Caller    bool   `env:"CALLER" envDefault:"false"`
}

func (l LogConfig) Options() obslog.Options {
	return obslog.Options{Level: l.Level, ToConsole: l.ToConsole, ToFile: l.ToFile, File: l.File, Format: l.Format, Caller: l.Caller}
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges that env tags cannot express.
func (c *AppConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("DUEL_HTTP_ADDR is required"))
	}
	if c.DisconnectGrace <= 0 {
		errs = append(errs, errors.New("DISCONNECT_GRACE must be positive"))
	}
	if c.WaitingTimeout < 0 {
		errs = append(errs, errors.New("WAITING_TIMEOUT must not be negative"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL must be positive"))
	}
	if c.OracleTimeout <= 0 {
		errs = append(errs, errors.New("ORACLE_TIMEOUT must be positive"))
	}
	if c.ChatHistoryLimit <= 0 || c.ChatMaxRunes <= 0 {
		errs = append(errs, errors.New("CHAT_HISTORY_LIMIT and CHAT_MAX_RUNES must be positive"))
	}
	if c.OutboundBuffer <= 0 {
		errs = append(errs, errors.New("OUTBOUND_BUFFER must be positive"))
	}
	for i, o := range c.AllowedOrigins {
		c.AllowedOrigins[i] = strings.TrimSpace(o)
	}
	return errors.Join(errs...)
}
