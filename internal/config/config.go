package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

type Config struct {
	// Server
	Port            string        `env:"PORT" envDefault:"8000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	LogFile   string `env:"LOG_FILE"`

	// CORS origins also gate WebSocket upgrades. "*" allows any origin.
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173"`

	// WebSocket
	WSMaxMessageSize int64 `env:"WS_MAX_MESSAGE_SIZE" envDefault:"4096"`
	WSSendBuffer     int   `env:"WS_SEND_BUFFER" envDefault:"256"`

	// Per-IP upgrade limit on /ws
	UpgradeRate  int `env:"UPGRADE_RATE" envDefault:"10"`
	UpgradeBurst int `env:"UPGRADE_BURST" envDefault:"20"`

	// Hub policy (optional, hot reloaded)
	PolicyFile string `env:"POLICY_FILE"`

	// NATS activity feed. Disabled unless NATS_URL is set or NATS_EMBEDDED
	// starts an in-process server.
	NatsURL      string `env:"NATS_URL"`
	NatsEmbedded bool   `env:"NATS_EMBEDDED" envDefault:"false"`
}

// FeedEnabled reports whether the activity feed should be started.
func (c *Config) FeedEnabled() bool {
	return c.NatsURL != "" || c.NatsEmbedded
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
