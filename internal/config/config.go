// Package config loads the crank's runtime configuration from environment
// variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config carries every knob the crank reads from the environment.
type Config struct {
	L1RPCURL string `env:"L1_RPC_URL,notEmpty"`
	ERRPCURL string `env:"ER_RPC_URL,notEmpty"`

	ProgramID   string `env:"PROGRAM_ID,notEmpty"`
	WalletPath  string `env:"CRANK_WALLET" envDefault:"~/.config/snakepit/id.json"`
	ERValidator string `env:"ER_VALIDATOR,notEmpty"`

	RoundDuration     time.Duration `env:"ROUND_DURATION" envDefault:"45s"`
	MoveInterval      time.Duration `env:"MOVE_INTERVAL" envDefault:"100ms"`
	StuckRoundTimeout time.Duration `env:"STUCK_ROUND_TIMEOUT" envDefault:"10m"`

	MaxStepRetries int `env:"MAX_STEP_RETRIES" envDefault:"5"`
	MaxMoveRetries int `env:"MAX_MOVE_RETRIES" envDefault:"5"`

	Port   int    `env:"PORT" envDefault:"8787"`
	WSPath string `env:"WS_PATH" envDefault:"/ws"`

	MaxSubscriptionsPerSocket int `env:"WS_MAX_SUBSCRIPTIONS_PER_SOCKET" envDefault:"8"`
	MaxConnectionsPerIPPerMin int `env:"WS_MAX_CONNECTIONS_PER_IP_PER_MIN" envDefault:"120"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Round archive backend: "none", "sqlite" or "postgres".
	ArchiveMode string `env:"ARCHIVE_MODE" envDefault:"none"`
	ArchiveDSN  string `env:"ARCHIVE_DSN"`

	SocialAPIKey    string `env:"SOCIAL_API_KEY"`
	SocialNamespace string `env:"SOCIAL_NAMESPACE" envDefault:"snakepit"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.RoundDuration <= 0 {
		return fmt.Errorf("ROUND_DURATION must be positive, got %s", c.RoundDuration)
	}
	if c.MoveInterval <= 0 {
		return fmt.Errorf("MOVE_INTERVAL must be positive, got %s", c.MoveInterval)
	}
	if c.StuckRoundTimeout <= 0 {
		return fmt.Errorf("STUCK_ROUND_TIMEOUT must be positive, got %s", c.StuckRoundTimeout)
	}
	if c.MaxStepRetries < 1 || c.MaxMoveRetries < 1 {
		return fmt.Errorf("retry budgets must be at least 1 (step=%d move=%d)", c.MaxStepRetries, c.MaxMoveRetries)
	}
	if c.MaxSubscriptionsPerSocket < 1 {
		return fmt.Errorf("WS_MAX_SUBSCRIPTIONS_PER_SOCKET must be at least 1, got %d", c.MaxSubscriptionsPerSocket)
	}
	if c.MaxConnectionsPerIPPerMin < 1 {
		return fmt.Errorf("WS_MAX_CONNECTIONS_PER_IP_PER_MIN must be at least 1, got %d", c.MaxConnectionsPerIPPerMin)
	}
	return nil
}
