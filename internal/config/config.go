package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/kiliankoe/quipdash/internal/game"
)

type Config struct {
	Port     string `env:"PORT" envDefault:"3001"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// PromptCap is the pool size at which two prompts are drawn.
	PromptCap    int           `env:"PROMPT_CAP" envDefault:"4"`
	SessionTTL   time.Duration `env:"SESSION_TTL" envDefault:"0s"`
	ReapInterval time.Duration `env:"REAP_INTERVAL" envDefault:"10m"`

	GuardPhases     bool `env:"GUARD_PHASES" envDefault:"false"`
	SingleVote      bool `env:"SINGLE_VOTE" envDefault:"false"`
	RequireVIPStart bool `env:"REQUIRE_VIP_START" envDefault:"false"`
	MinPlayers      int  `env:"MIN_PLAYERS" envDefault:"0"`

	HostUser string `env:"HOST_USER"`
	HostPass string `env:"HOST_PASS"`

	ExportEnabled bool   `env:"EXPORT_ENABLED" envDefault:"false"`
	ExportFile    string `env:"EXPORT_FILE" envDefault:"./quipdash-results.txt"`
	ArchivePath   string `env:"ARCHIVE_PATH"`

	OTelEndpoint string `env:"OTEL_ENDPOINT"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if c.PromptCap < 2 {
		return Config{}, fmt.Errorf("PROMPT_CAP must be at least 2, got %d", c.PromptCap)
	}
	return c, nil
}

func (c Config) Rules() game.Rules {
	return game.Rules{
		GuardPhases:     c.GuardPhases,
		SingleVote:      c.SingleVote,
		RequireVIPStart: c.RequireVIPStart,
		MinPlayers:      c.MinPlayers,
	}
}

func (c Config) HostAuthEnabled() bool {
	return c.HostUser != "" && c.HostPass != ""
}
