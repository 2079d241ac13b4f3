// Package config holds the server configuration, populated from CLI flags
// with QUIZWIRE_-prefixed environment variables as fallback.
package config

import (
	"fmt"
	"net"
	"strconv"

	"github.com/quizwire/trivia-backend/internal/engine"
)

type Config struct {
	Bind      string
	Port      int
	Questions string // path to a question set; empty selects the embedded sample
	Verbose   bool

	BasePoints        int
	MaxSpeedBonus     int
	FirstCorrectBonus int
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	if c.BasePoints < 0 || c.MaxSpeedBonus < 0 || c.FirstCorrectBonus < 0 {
		return fmt.Errorf("scoring values must be non-negative")
	}
	return nil
}

func (c *Config) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// Rules maps the configured scoring constants onto the engine.
func (c *Config) Rules() engine.Rules {
	return engine.Rules{
		BasePoints:        c.BasePoints,
		MaxSpeedBonus:     c.MaxSpeedBonus,
		FirstCorrectBonus: c.FirstCorrectBonus,
	}
}
