package config

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "GIGCHAT"

const envDevelopment = "development"

// DevelopmentSigningKey is used when no signing key is configured in
// development. NewConfig rejects it in any other environment.
const DevelopmentSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

// Env holds the raw settings read from the environment. Flags in cmd/server
// use these values as their defaults.
type Env struct {
	Env                    string        `envconfig:"ENV" default:"development"`
	ServerAddr             string        `envconfig:"ADDR" default:"localhost:8000"`
	DatabaseDSN            string        `envconfig:"DSN" default:"host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"`
	SigningKey             string        `envconfig:"SIGNING_KEY"`
	AllowedOrigins         []string      `envconfig:"ALLOWED_ORIGINS"`
	RedisURL               string        `envconfig:"REDIS_URL"`
	StoreTimeout           time.Duration `envconfig:"STORE_TIMEOUT" default:"10s"`
	LogLevel               string        `envconfig:"LOG_LEVEL" default:"info"`
	Migrate                bool          `envconfig:"MIGRATE" default:"true"`
	EnforceOrderMembership bool          `envconfig:"ENFORCE_ORDER_MEMBERSHIP" default:"false"`
}

// LoadEnv reads an optional .env file and decodes GIGCHAT_* variables.
func LoadEnv(files ...string) (Env, error) {
	// a missing .env file is normal outside development
	_ = godotenv.Load(files...)

	var env Env
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return Env{}, fmt.Errorf("process env: %w", err)
	}

	return env, nil
}

// ApplyDevelopmentDefaults fills in the development signing key when none is
// set and the environment is development. It reports whether it did.
func (e *Env) ApplyDevelopmentDefaults() bool {
	if e.Env != envDevelopment || e.SigningKey != "" {
		return false
	}

	e.SigningKey = DevelopmentSigningKey
	return true
}

type Config struct {
	Env                    string
	DatabaseDSN            string
	ServerAddr             string
	SigningKey             []byte
	AllowedOrigins         []string
	RedisURL               string
	StoreTimeout           time.Duration
	LogLevel               string
	Migrate                bool
	EnforceOrderMembership bool
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("signing secret is empty")
	}

	return key, nil
}

func NewConfig(env Env) (*Config, error) {
	if env.ServerAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if env.DatabaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if env.SigningKey == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	if env.SigningKey == DevelopmentSigningKey && env.Env != envDevelopment {
		return nil, fmt.Errorf("the development signing key cannot be used in %q", env.Env)
	}
	if env.StoreTimeout <= 0 {
		return nil, fmt.Errorf("store timeout must be positive")
	}

	// Decode the base64 encoded signing secret
	signingKey, err := decodeSigningSecret(env.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		Env:                    env.Env,
		DatabaseDSN:            env.DatabaseDSN,
		ServerAddr:             env.ServerAddr,
		SigningKey:             signingKey,
		AllowedOrigins:         env.AllowedOrigins,
		RedisURL:               env.RedisURL,
		StoreTimeout:           env.StoreTimeout,
		LogLevel:               env.LogLevel,
		Migrate:                env.Migrate,
		EnforceOrderMembership: env.EnforceOrderMembership,
	}, nil
}

// IsDevelopment reports whether the process runs with development defaults.
func (c *Config) IsDevelopment() bool {
	return c.Env == envDevelopment
}
