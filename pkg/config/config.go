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

// Package config contains configuration options and parsing for the
// end-to-end server, client and scraper processes.
package config

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/crypto"
	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/logging"
)

// Role is the part a process plays in a replication run.
type Role string

const (
	// RoleServer seeds the payload file to every connecting peer.
	RoleServer Role = "server"
	// RoleClient downloads the payload from exactly one peer.
	RoleClient Role = "client"
)

// IsValid reports whether the role is known.
func (r Role) IsValid() bool {
	return r == RoleServer || r == RoleClient
}

// Fatal configuration errors. The process prints a diagnostic and exits
// when Validate returns one of these.
var (
	ErrInvalidRole               = fmt.Errorf("role must be one of %q or %q", RoleServer, RoleClient)
	ErrInvalidDiscoveryKey       = fmt.Errorf("%s must be set to a valid discovery key", DiscoveryKeyEnvVar)
	ErrMissingPayload            = fmt.Errorf("no file found at expected location")
	ErrInvalidMetricsCredentials = fmt.Errorf("%s and %s must be set to valid keys", PrometheusSecretEnvVar, PrometheusScraperKeyEnvVar)
	ErrInvalidLogLevel           = fmt.Errorf("invalid log level")
)

// Config are the configuration options for a server or client process.
type Config struct {
	// Role is the role of the process.
	Role Role `yaml:"role,omitempty"`
	// LogLevel is the log level.
	LogLevel string `yaml:"log-level,omitempty"`
	// DiscoveryKey is the encoded discovery key shared by server and client.
	DiscoveryKey string `yaml:"discovery-key,omitempty"`
	// FileLoc is the path of the payload to seed. Server only.
	FileLoc string `yaml:"file-loc,omitempty"`
	// Swarm are the swarm options.
	Swarm SwarmOptions `yaml:"swarm,omitempty"`
	// Metrics are the metrics exposure options.
	Metrics MetricsOptions `yaml:"metrics,omitempty"`
	// Transfer are the transfer options.
	Transfer TransferOptions `yaml:"transfer,omitempty"`
}

// NewDefaultConfig returns a new config for the given role with the default options.
func NewDefaultConfig(role Role) *Config {
	return &Config{
		Role:     role,
		LogLevel: "info",
		Swarm:    NewSwarmOptions(),
		Metrics:  NewMetricsOptions(),
		Transfer: NewTransferOptions(),
	}
}

// LoadEnv overlays values found in the environment onto the config.
func (c *Config) LoadEnv() *Config {
	c.LogLevel = GetEnvDefault(LogLevelEnvVar, c.LogLevel)
	c.DiscoveryKey = GetEnvDefault(DiscoveryKeyEnvVar, c.DiscoveryKey)
	c.FileLoc = GetEnvDefault(FileLocEnvVar, c.FileLoc)
	c.Swarm.LoadEnv()
	c.Metrics.LoadEnv()
	c.Transfer.LoadEnv()
	return c
}

// LoadFile overlays the YAML configuration in the given file onto the config.
func (c *Config) LoadFile(filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()
	return c.Unmarshal(f)
}

// Unmarshal overlays the YAML configuration read from r onto the config.
func (c *Config) Unmarshal(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && err != io.EOF {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// Marshal writes the config as YAML to w.
func (c *Config) Marshal(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(c)
}

// BindFlags binds the flags. The options are returned for convenience.
// Flag defaults are the current values, so flags take precedence over
// the environment and configuration files.
func (c *Config) BindFlags(prefix string, fs *pflag.FlagSet) *Config {
	fs.StringVar(&c.LogLevel, prefix+"log-level", c.LogLevel, "Log level (debug, info, warn, error, silent)")
	fs.StringVar(&c.DiscoveryKey, prefix+"discovery-key", c.DiscoveryKey, "Discovery key of the swarm topic (z-base-32 or hex)")
	if c.Role == RoleServer {
		fs.StringVar(&c.FileLoc, prefix+"file", c.FileLoc, "Path of the payload to seed")
	}
	c.Swarm.BindFlags(prefix+"swarm.", fs)
	c.Metrics.BindFlags(prefix+"metrics.", fs)
	c.Transfer.BindFlags(prefix+"transfer.", fs)
	return c
}

// Validate validates the configuration. Checks run in the order a failing
// process would report them: payload, discovery key, then metrics credentials.
func (c *Config) Validate() error {
	if !c.Role.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, c.Role)
	}
	if !logging.IsValidLevel(c.LogLevel) {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
	}
	if c.Role == RoleServer {
		if c.FileLoc == "" {
			return fmt.Errorf("%w: %s is not set", ErrMissingPayload, FileLocEnvVar)
		}
		info, err := os.Stat(c.FileLoc)
		if err != nil || info.IsDir() {
			return fmt.Errorf("%w %s", ErrMissingPayload, c.FileLoc)
		}
	}
	if _, err := c.ParseDiscoveryKey(); err != nil {
		return err
	}
	if err := c.Swarm.Validate(); err != nil {
		return fmt.Errorf("invalid swarm options: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return err
	}
	if err := c.Transfer.Validate(); err != nil {
		return fmt.Errorf("invalid transfer options: %w", err)
	}
	return nil
}

// ParseDiscoveryKey returns the decoded discovery key.
func (c *Config) ParseDiscoveryKey() (crypto.DiscoveryKey, error) {
	key, err := crypto.ParseDiscoveryKey(c.DiscoveryKey)
	if err != nil {
		return key, fmt.Errorf("%w: %w", ErrInvalidDiscoveryKey, err)
	}
	return key, nil
}
