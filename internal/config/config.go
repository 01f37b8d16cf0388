// Package config centralizes all application configuration into typed structs.
//
// Defaults come from NewDefaultConfig; Load overlays RIDE_* environment
// variables on top of them.
//
// Go Learning Note — Typed Configuration:
// Using typed structs (not raw strings/maps) gives you compile-time safety
// and IDE autocompletion. Environment variables are parsed once, at startup,
// into those types, so a bad value fails fast instead of surfacing later in
// the middle of a request.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"rideescrow/internal/domain/entities"
)

// Config is the top-level configuration container.
type Config struct {
	Server   ServerConfig
	Escrow   EscrowConfig
	Auth     AuthConfig
	Log      LogConfig
	AMQP     AMQPConfig
	Database DatabaseConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// EscrowConfig controls the contracts. The factory address is derived from
// FactoryDeployer and the run's epoch, so each restart deploys a fresh
// factory. FactoryDeployer cannot deploy standalone rides.
type EscrowConfig struct {
	StartPolicy     entities.StartPolicy
	FactoryDeployer entities.Address
}

// AuthConfig configures bearer token verification. The token subject is the
// caller's address.
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
	Issuer    string
}

type LogConfig struct {
	Level  string // debug | info | warn | error
	Format string // json | text
}

// AMQPConfig enables the broker publisher when URL is set.
type AMQPConfig struct {
	URL         string
	Exchange    string
	DialRetries int
}

func (c AMQPConfig) Enabled() bool { return c.URL != "" }

// DatabaseConfig switches the event store to Postgres when URL is set.
type DatabaseConfig struct {
	URL string
}

func (c DatabaseConfig) Enabled() bool { return c.URL != "" }

// NewDefaultConfig returns a Config populated with sensible defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Escrow: EscrowConfig{
			StartPolicy:     entities.StartPolicyAnyone,
			FactoryDeployer: entities.MustParseAddress("0x00000000000000000000000000000000000000fa"),
		},
		Auth: AuthConfig{
			JWTSecret: "dev-secret-change-me",
			TokenTTL:  24 * time.Hour,
			Issuer:    "rideescrow",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		AMQP: AMQPConfig{
			Exchange:    "ride_events",
			DialRetries: 5,
		},
	}
}

// Load returns the defaults overridden by environment variables.
func Load() (*Config, error) {
	return loadFrom(os.LookupEnv)
}

func loadFrom(lookup func(string) (string, bool)) (*Config, error) {
	cfg := NewDefaultConfig()

	if v, ok := lookup("RIDE_HTTP_ADDR"); ok {
		cfg.Server.Addr = v
	}
	if v, ok := lookup("RIDE_SHUTDOWN_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("RIDE_SHUTDOWN_TIMEOUT: %w", err)
		}
		cfg.Server.ShutdownTimeout = d
	}
	if v, ok := lookup("RIDE_START_POLICY"); ok {
		p, err := entities.ParseStartPolicy(v)
		if err != nil {
			return nil, fmt.Errorf("RIDE_START_POLICY: %w", err)
		}
		cfg.Escrow.StartPolicy = p
	}
	if v, ok := lookup("RIDE_FACTORY_DEPLOYER"); ok {
		a, err := entities.ParseAddress(v)
		if err != nil {
			return nil, fmt.Errorf("RIDE_FACTORY_DEPLOYER: %w", err)
		}
		cfg.Escrow.FactoryDeployer = a
	}
	if v, ok := lookup("RIDE_JWT_SECRET"); ok {
		if v == "" {
			return nil, fmt.Errorf("RIDE_JWT_SECRET: must not be empty")
		}
		cfg.Auth.JWTSecret = v
	}
	if v, ok := lookup("RIDE_TOKEN_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("RIDE_TOKEN_TTL: %w", err)
		}
		cfg.Auth.TokenTTL = d
	}
	if v, ok := lookup("RIDE_LOG_LEVEL"); ok {
		switch strings.ToLower(v) {
		case "debug", "info", "warn", "error":
			cfg.Log.Level = strings.ToLower(v)
		default:
			return nil, fmt.Errorf("RIDE_LOG_LEVEL: unknown level %q", v)
		}
	}
	if v, ok := lookup("RIDE_LOG_FORMAT"); ok {
		switch strings.ToLower(v) {
		case "json", "text":
			cfg.Log.Format = strings.ToLower(v)
		default:
			return nil, fmt.Errorf("RIDE_LOG_FORMAT: unknown format %q", v)
		}
	}
	if v, ok := lookup("RIDE_AMQP_URL"); ok {
		cfg.AMQP.URL = v
	}
	if v, ok := lookup("RIDE_AMQP_EXCHANGE"); ok && v != "" {
		cfg.AMQP.Exchange = v
	}
	if v, ok := lookup("RIDE_DATABASE_URL"); ok {
		cfg.Database.URL = v
	}

	return cfg, nil
}
