/*
Copyright 2023 Avi Zimmerman <avi.zimmerman@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/crypto"
	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/logging"
)

// Environment variables recognized by the scraper.
const (
	ScraperSeedEnvVar           = EnvPrefix + "SCRAPER_SEED"
	ScraperHTTPAddressEnvVar    = EnvPrefix + "SCRAPER_HTTP_ADDRESS"
	ScraperRequestTimeoutEnvVar = EnvPrefix + "SCRAPER_REQUEST_TIMEOUT"
)

// ErrInvalidScraperSeed is returned when the scraper identity cannot be decoded.
var ErrInvalidScraperSeed = fmt.Errorf("%s must be set to a valid key seed", ScraperSeedEnvVar)

// ScraperConfig are the configuration options for a metrics scraper process.
type ScraperConfig struct {
	// LogLevel is the log level.
	LogLevel string `yaml:"log-level,omitempty"`
	// Seed is the encoded ed25519 seed of the scraper identity. Its public
	// key is what clients are configured with.
	Seed string `yaml:"seed,omitempty"`
	// Secret is the encoded shared secret clients register with.
	Secret string `yaml:"secret,omitempty"`
	// HTTPAddress is the address to serve scraped metrics on.
	HTTPAddress string `yaml:"http-address,omitempty"`
	// RequestTimeout bounds every scrape request.
	RequestTimeout time.Duration `yaml:"request-timeout,omitempty"`
	// Swarm are the options for the scraper's libp2p host and DHT.
	Swarm SwarmOptions `yaml:"swarm,omitempty"`
}

// NewScraperConfig returns a new scraper config with the default options.
func NewScraperConfig() *ScraperConfig {
	return &ScraperConfig{
		LogLevel:       "info",
		HTTPAddress:    "[::]:9100",
		RequestTimeout: 10 * time.Second,
		Swarm:          NewSwarmOptions(),
	}
}

// LoadEnv overlays values found in the environment onto the config.
func (c *ScraperConfig) LoadEnv() *ScraperConfig {
	c.LogLevel = GetEnvDefault(LogLevelEnvVar, c.LogLevel)
	c.Seed = GetEnvDefault(ScraperSeedEnvVar, c.Seed)
	c.Secret = GetEnvDefault(PrometheusSecretEnvVar, c.Secret)
	c.HTTPAddress = GetEnvDefault(ScraperHTTPAddressEnvVar, c.HTTPAddress)
	c.RequestTimeout = GetEnvDurationDefault(ScraperRequestTimeoutEnvVar, c.RequestTimeout)
	c.Swarm.LoadEnv()
	return c
}

// BindFlags binds the flags. The options are returned for convenience.
func (c *ScraperConfig) BindFlags(prefix string, fs *pflag.FlagSet) *ScraperConfig {
	fs.StringVar(&c.LogLevel, prefix+"log-level", c.LogLevel, "Log level (debug, info, warn, error, silent)")
	fs.StringVar(&c.Seed, prefix+"seed", c.Seed, "Seed of the scraper identity")
	fs.StringVar(&c.Secret, prefix+"secret", c.Secret, "Shared secret clients register with")
	fs.StringVar(&c.HTTPAddress, prefix+"http-address", c.HTTPAddress, "Address to serve scraped metrics on")
	fs.DurationVar(&c.RequestTimeout, prefix+"request-timeout", c.RequestTimeout, "Timeout for each scrape request")
	c.Swarm.BindFlags(prefix+"swarm.", fs)
	return c
}

// Validate validates the scraper configuration.
func (c *ScraperConfig) Validate() error {
	if !logging.IsValidLevel(c.LogLevel) {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
	}
	if _, err := c.ParseSeed(); err != nil {
		return err
	}
	if _, err := crypto.ParseSecret(c.Secret); err != nil {
		return fmt.Errorf("%w: secret: %w", ErrInvalidMetricsCredentials, err)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be greater than zero")
	}
	if err := c.Swarm.Validate(); err != nil {
		return fmt.Errorf("invalid swarm options: %w", err)
	}
	return nil
}

// ParseSeed returns the decoded identity seed.
func (c *ScraperConfig) ParseSeed() ([]byte, error) {
	seed, err := crypto.DecodeID(c.Seed)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScraperSeed, err)
	}
	return seed, nil
}
