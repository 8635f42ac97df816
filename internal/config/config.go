// Package config loads service settings from the environment.
// Database and logger settings are read by their own packages.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	HTTPAddr        string        `default:"0.0.0.0:8431" split_words:"true"`
	ShutdownTimeout time.Duration `default:"5s" split_words:"true"`

	JWTSecret string        `required:"true" split_words:"true"`
	JWTIssuer string        `default:"service-warranty" split_words:"true"`
	JWTTTL    time.Duration `default:"15m" envconfig:"JWT_TTL"`

	RedisURL      string        `default:"" split_words:"true"`
	NotifyChannel string        `default:"warranty-events" split_words:"true"`
	NotifyTimeout time.Duration `default:"3s" split_words:"true"`

	IDRetryLimit       int `default:"10" split_words:"true"`
	WriteRetryLimit    int `default:"3" split_words:"true"`
	WarrantyTermMonths int `default:"12" split_words:"true"`
	BcryptCost         int `default:"12" split_words:"true"`

	// BootstrapAdmin* create the first admin account on startup when set.
	BootstrapAdminUsername string `default:"" split_words:"true"`
	BootstrapAdminPassword string `default:"" split_words:"true"`
}

// Load reads Config from the environment.
func Load() (Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if c.IDRetryLimit < 1 || c.WriteRetryLimit < 1 {
		return Config{}, fmt.Errorf("load config: retry limits must be positive")
	}
	if c.WarrantyTermMonths < 1 {
		return Config{}, fmt.Errorf("load config: WARRANTY_TERM_MONTHS must be positive")
	}
	return c, nil
}
