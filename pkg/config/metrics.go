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
	"os"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/spf13/pflag"

	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/crypto"
)

// DefaultServiceName is the service name reported to the metrics scraper.
const DefaultServiceName = "hyperswarm-e2e-tests"

// MetricsOptions are options for exposing metrics to a remote scraper.
type MetricsOptions struct {
	// Disabled skips metrics exposure and the wait for the first scrape.
	Disabled bool `yaml:"disabled,omitempty"`
	// ServiceName is the service name reported to the scraper.
	ServiceName string `yaml:"service-name,omitempty"`
	// Alias is the alias to register with the scraper. Defaults to the hostname.
	Alias string `yaml:"alias,omitempty"`
	// Secret is the encoded shared secret used to register with the scraper.
	Secret string `yaml:"secret,omitempty"`
	// ScraperPublicKey is the encoded ed25519 public key of the scraper.
	ScraperPublicKey string `yaml:"scraper-public-key,omitempty"`
	// ScraperAddrs are optional known multiaddrs of the scraper. When empty
	// the scraper is located through the DHT.
	ScraperAddrs []string `yaml:"scraper-addrs,omitempty"`
	// ReadyTimeout bounds the wait for metrics readiness. Zero waits forever.
	ReadyTimeout time.Duration `yaml:"ready-timeout,omitempty"`
	// RetryInterval is the delay between alias registration attempts.
	RetryInterval time.Duration `yaml:"retry-interval,omitempty"`
	// ListenAddress is an optional address to serve local Prometheus metrics on.
	ListenAddress string `yaml:"listen-address,omitempty"`
}

// NewMetricsOptions returns new metrics options with sensible defaults.
func NewMetricsOptions() MetricsOptions {
	return MetricsOptions{
		ServiceName:   DefaultServiceName,
		RetryInterval: 5 * time.Second,
	}
}

// LoadEnv overlays values found in the environment onto the options.
func (o *MetricsOptions) LoadEnv() {
	o.Disabled = GetEnvBoolDefault(DisableMetricsEnvVar, o.Disabled)
	o.ServiceName = GetEnvDefault(PrometheusServiceNameEnvVar, o.ServiceName)
	o.Alias = GetEnvDefault(PrometheusAliasEnvVar, o.Alias)
	o.Secret = GetEnvDefault(PrometheusSecretEnvVar, o.Secret)
	o.ScraperPublicKey = GetEnvDefault(PrometheusScraperKeyEnvVar, o.ScraperPublicKey)
	o.ScraperAddrs = GetEnvSliceDefault(PrometheusScraperAddrsEnvVar, o.ScraperAddrs)
	o.ReadyTimeout = GetEnvDurationDefault(MetricsReadyTimeoutEnvVar, o.ReadyTimeout)
	o.ListenAddress = GetEnvDefault(MetricsListenAddressEnvVar, o.ListenAddress)
}

// BindFlags binds the flags for the metrics options.
func (o *MetricsOptions) BindFlags(prefix string, fs *pflag.FlagSet) {
	fs.BoolVar(&o.Disabled, prefix+"disabled", o.Disabled, "Disable metrics exposure")
	fs.StringVar(&o.ServiceName, prefix+"service-name", o.ServiceName, "Service name reported to the scraper")
	fs.StringVar(&o.Alias, prefix+"alias", o.Alias, "Alias to register with the scraper (defaults to the hostname)")
	fs.StringVar(&o.Secret, prefix+"secret", o.Secret, "Shared secret for registering with the scraper")
	fs.StringVar(&o.ScraperPublicKey, prefix+"scraper-public-key", o.ScraperPublicKey, "Public key of the scraper")
	fs.StringSliceVar(&o.ScraperAddrs, prefix+"scraper-addrs", o.ScraperAddrs, "Known multiaddrs of the scraper")
	fs.DurationVar(&o.ReadyTimeout, prefix+"ready-timeout", o.ReadyTimeout, "Timeout waiting for the first scrape (0 waits forever)")
	fs.DurationVar(&o.RetryInterval, prefix+"retry-interval", o.RetryInterval, "Delay between registration attempts")
	fs.StringVar(&o.ListenAddress, prefix+"listen-address", o.ListenAddress, "Address to serve local Prometheus metrics on")
}

// Validate validates the metrics options.
func (o *MetricsOptions) Validate() error {
	if o.Disabled {
		return nil
	}
	if _, err := o.ParseSecret(); err != nil {
		return err
	}
	if _, err := o.ParseScraperID(); err != nil {
		return err
	}
	if _, err := ToMultiaddrs(o.ScraperAddrs); err != nil {
		return fmt.Errorf("invalid scraper address: %w", err)
	}
	if o.ServiceName == "" {
		return fmt.Errorf("metrics service name must not be empty")
	}
	if o.ReadyTimeout < 0 {
		return fmt.Errorf("metrics ready timeout must not be negative")
	}
	if o.RetryInterval <= 0 {
		return fmt.Errorf("metrics retry interval must be greater than zero")
	}
	return nil
}

// ParseSecret returns the decoded shared secret.
func (o *MetricsOptions) ParseSecret() (crypto.Secret, error) {
	secret, err := crypto.ParseSecret(o.Secret)
	if err != nil {
		return nil, fmt.Errorf("%w: secret: %w", ErrInvalidMetricsCredentials, err)
	}
	return secret, nil
}

// ParseScraperID returns the peer ID of the scraper.
func (o *MetricsOptions) ParseScraperID() (peer.ID, error) {
	id, err := crypto.ParsePeerID(o.ScraperPublicKey)
	if err != nil {
		return "", fmt.Errorf("%w: scraper public key: %w", ErrInvalidMetricsCredentials, err)
	}
	return id, nil
}

// AliasOrDefault returns the configured alias or the hostname.
func (o *MetricsOptions) AliasOrDefault() string {
	if o.Alias != "" {
		return o.Alias
	}
	hostname, err := os.Hostname()
	if err != nil {
		return o.ServiceName
	}
	return hostname
}
