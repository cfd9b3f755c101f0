// Package config reads service settings from NDJOBI_* environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"ndjobi.org/internal/realtime"
)

const prefix = "NDJOBI"

type Config struct {
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
	GRPCAddr string `envconfig:"GRPC_ADDR" default:":9090"`
	// PGDSN selects the Postgres context backend; empty keeps contexts in ContextFile.
	PGDSN       string `envconfig:"PG_DSN"`
	ContextFile string `envconfig:"CONTEXT_FILE" default:".ndjobi/context.json"`
	AuthSecret  string `envconfig:"AUTH_SECRET"`

	RateBurst     int `envconfig:"RATE_BURST" default:"20"`
	RatePerSecond int `envconfig:"RATE_PER_SECOND" default:"10"`

	RealtimeURL string `envconfig:"REALTIME_URL" default:"/v1/realtime"`
	Version     string `envconfig:"VERSION" default:"1.0.0"`

	Simulator Simulator `envconfig:"SIM"`
}

// Simulator tunes the demo event generators.
type Simulator struct {
	Autostart bool `envconfig:"AUTOSTART" default:"false"`

	MessageMin         time.Duration `envconfig:"MESSAGE_MIN" default:"8s"`
	MessageMax         time.Duration `envconfig:"MESSAGE_MAX" default:"15s"`
	MessageProbability float64       `envconfig:"MESSAGE_PROBABILITY" default:"0.4"`
	TypingMin          time.Duration `envconfig:"TYPING_MIN" default:"10s"`
	TypingMax          time.Duration `envconfig:"TYPING_MAX" default:"15s"`
	TypingProbability  float64       `envconfig:"TYPING_PROBABILITY" default:"0.3"`
	TypingStopMin      time.Duration `envconfig:"TYPING_STOP_MIN" default:"2s"`
	TypingStopMax      time.Duration `envconfig:"TYPING_STOP_MAX" default:"4s"`
	ThreadMin          time.Duration `envconfig:"THREAD_MIN" default:"15s"`
	ThreadMax          time.Duration `envconfig:"THREAD_MAX" default:"25s"`
	ThreadProbability  float64       `envconfig:"THREAD_PROBABILITY" default:"0.3"`
}

// Load reads the environment. Nested simulator settings use NDJOBI_SIM_<NAME>.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if cfg.RateBurst <= 0 || cfg.RatePerSecond <= 0 {
		return Config{}, fmt.Errorf("load config: rate limit must be positive")
	}
	if err := cfg.SimulatorConfig().Validate(); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// SimulatorConfig maps the settings onto realtime.Config, keeping the demo scope defaults.
func (c Config) SimulatorConfig() realtime.Config {
	rc := realtime.DefaultConfig()
	s := c.Simulator
	rc.MessageInterval = realtime.Range{Min: s.MessageMin, Max: s.MessageMax}
	rc.MessageProbability = s.MessageProbability
	rc.TypingInterval = realtime.Range{Min: s.TypingMin, Max: s.TypingMax}
	rc.TypingProbability = s.TypingProbability
	rc.TypingDuration = realtime.Range{Min: s.TypingStopMin, Max: s.TypingStopMax}
	rc.ThreadInterval = realtime.Range{Min: s.ThreadMin, Max: s.ThreadMax}
	rc.ThreadProbability = s.ThreadProbability
	return rc
}
