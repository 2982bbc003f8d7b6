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
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/crypto"
)

type testKeys struct {
	discoveryKey string
	secret       string
	scraperKey   string
}

func newTestKeys(t *testing.T) testKeys {
	t.Helper()
	dkey, err := crypto.GenerateDiscoveryKey()
	if err != nil {
		t.Fatal(err)
	}
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	return testKeys{
		discoveryKey: dkey.String(),
		secret:       crypto.MustGenerateSecret().String(),
		scraperKey:   crypto.EncodeID(kp.PublicKey),
	}
}

func newPayload(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payload")
	if err := os.WriteFile(path, []byte("abc"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	keys := newTestKeys(t)
	payload := newPayload(t)
	valid := func(role Role) *Config {
		c := NewDefaultConfig(role)
		c.DiscoveryKey = keys.discoveryKey
		c.Metrics.Secret = keys.secret
		c.Metrics.ScraperPublicKey = keys.scraperKey
		if role == RoleServer {
			c.FileLoc = payload
		}
		return c
	}
	tc := []struct {
		name    string
		cfg     func() *Config
		wantErr error
	}{
		{
			name: "ValidServer",
			cfg:  func() *Config { return valid(RoleServer) },
		},
		{
			name: "ValidClient",
			cfg:  func() *Config { return valid(RoleClient) },
		},
		{
			name: "InvalidRole",
			cfg: func() *Config {
				c := valid(RoleClient)
				c.Role = "both"
				return c
			},
			wantErr: ErrInvalidRole,
		},
		{
			name: "MissingDiscoveryKey",
			cfg: func() *Config {
				c := valid(RoleClient)
				c.DiscoveryKey = ""
				return c
			},
			wantErr: ErrInvalidDiscoveryKey,
		},
		{
			name: "InvalidDiscoveryKey",
			cfg: func() *Config {
				c := valid(RoleClient)
				c.DiscoveryKey = "not-a-key"
				return c
			},
			wantErr: ErrInvalidDiscoveryKey,
		},
		{
			name: "ServerMissingFileLoc",
			cfg: func() *Config {
				c := valid(RoleServer)
				c.FileLoc = ""
				return c
			},
			wantErr: ErrMissingPayload,
		},
		{
			name: "ServerFileDoesNotExist",
			cfg: func() *Config {
				c := valid(RoleServer)
				c.FileLoc = filepath.Join(os.TempDir(), "hyperswarm-e2e-missing-payload")
				return c
			},
			wantErr: ErrMissingPayload,
		},
		{
			name: "ServerPayloadCheckedBeforeKey",
			cfg: func() *Config {
				c := valid(RoleServer)
				c.FileLoc = ""
				c.DiscoveryKey = ""
				return c
			},
			wantErr: ErrMissingPayload,
		},
		{
			name: "ClientIgnoresFileLoc",
			cfg: func() *Config {
				c := valid(RoleClient)
				c.FileLoc = filepath.Join(os.TempDir(), "hyperswarm-e2e-missing-payload")
				return c
			},
		},
		{
			name: "MissingSecret",
			cfg: func() *Config {
				c := valid(RoleClient)
				c.Metrics.Secret = ""
				return c
			},
			wantErr: ErrInvalidMetricsCredentials,
		},
		{
			name: "InvalidScraperKey",
			cfg: func() *Config {
				c := valid(RoleClient)
				c.Metrics.ScraperPublicKey = "abc"
				return c
			},
			wantErr: ErrInvalidMetricsCredentials,
		},
		{
			name: "MetricsDisabledSkipsCredentials",
			cfg: func() *Config {
				c := valid(RoleClient)
				c.Metrics.Disabled = true
				c.Metrics.Secret = ""
				c.Metrics.ScraperPublicKey = ""
				return c
			},
		},
		{
			name: "InvalidLogLevel",
			cfg: func() *Config {
				c := valid(RoleClient)
				c.LogLevel = "loud"
				return c
			},
			wantErr: ErrInvalidLogLevel,
		},
	}
	for _, tt := range tc {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg().Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSwarmOptionsValidate(t *testing.T) {
	t.Parallel()
	defaults := NewSwarmOptions()
	tc := []struct {
		name    string
		opts    SwarmOptions
		wantErr bool
	}{
		{
			name: "Defaults",
			opts: defaults,
		},
		{
			name: "ValidAddrs",
			opts: SwarmOptions{
				ListenAddrs:    []string{"/ip4/127.0.0.1/tcp/0"},
				BootstrapPeers: []string{"/ip4/127.0.0.1/tcp/4001/p2p/QmaCpDMGvV2BGHeYERUEnRQAwe3N8SzbUtfsmvsqQLuvuJ"},
				ConnectTimeout: time.Second,
				LookupInterval: time.Second,
			},
		},
		{
			name: "InvalidListenAddr",
			opts: SwarmOptions{
				ListenAddrs:    []string{"127.0.0.1:0"},
				ConnectTimeout: time.Second,
				LookupInterval: time.Second,
			},
			wantErr: true,
		},
		{
			name: "NoConnectTimeout",
			opts: SwarmOptions{
				LookupInterval: time.Second,
			},
			wantErr: true,
		},
	}
	for _, tt := range tc {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.opts.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	}
}

func TestLoadEnv(t *testing.T) {
	keys := newTestKeys(t)
	t.Setenv(LogLevelEnvVar, "debug")
	t.Setenv(DiscoveryKeyEnvVar, keys.discoveryKey)
	t.Setenv(FileLocEnvVar, "/tmp/payload")
	t.Setenv(PrometheusSecretEnvVar, keys.secret)
	t.Setenv(PrometheusScraperKeyEnvVar, keys.scraperKey)
	t.Setenv(PrometheusAliasEnvVar, "client-1")
	t.Setenv(BootstrapPeersEnvVar, "/ip4/127.0.0.1/tcp/4001, /ip4/127.0.0.1/tcp/4002")
	t.Setenv(MetricsReadyTimeoutEnvVar, "30s")
	t.Setenv(ProgressEveryEnvVar, "10")

	c := NewDefaultConfig(RoleServer).LoadEnv()
	if c.LogLevel != "debug" {
		t.Errorf("expected log level debug, got %q", c.LogLevel)
	}
	if c.DiscoveryKey != keys.discoveryKey {
		t.Errorf("expected discovery key %q, got %q", keys.discoveryKey, c.DiscoveryKey)
	}
	if c.FileLoc != "/tmp/payload" {
		t.Errorf("expected file loc /tmp/payload, got %q", c.FileLoc)
	}
	if c.Metrics.Alias != "client-1" || c.Metrics.AliasOrDefault() != "client-1" {
		t.Errorf("expected alias client-1, got %q", c.Metrics.Alias)
	}
	if c.Metrics.ServiceName != DefaultServiceName {
		t.Errorf("expected default service name, got %q", c.Metrics.ServiceName)
	}
	if len(c.Swarm.BootstrapPeers) != 2 || c.Swarm.BootstrapPeers[1] != "/ip4/127.0.0.1/tcp/4002" {
		t.Errorf("unexpected bootstrap peers %v", c.Swarm.BootstrapPeers)
	}
	if c.Metrics.ReadyTimeout != 30*time.Second {
		t.Errorf("expected ready timeout 30s, got %s", c.Metrics.ReadyTimeout)
	}
	if c.Transfer.ProgressEvery != 10 {
		t.Errorf("expected progress every 10, got %d", c.Transfer.ProgressEvery)
	}
	if _, err := c.Metrics.ParseScraperID(); err != nil {
		t.Errorf("expected valid scraper id, got %v", err)
	}
}

func TestBindFlagsOverrideEnv(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "debug")
	c := NewDefaultConfig(RoleClient).LoadEnv()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	c.BindFlags("", fs)
	if fs.Lookup("file") != nil {
		t.Fatal("client config should not bind the file flag")
	}
	err := fs.Parse([]string{"--log-level=warn", "--swarm.connect-timeout=2s", "--metrics.disabled"})
	if err != nil {
		t.Fatal(err)
	}
	if c.LogLevel != "warn" {
		t.Errorf("expected log level warn, got %q", c.LogLevel)
	}
	if c.Swarm.ConnectTimeout != 2*time.Second {
		t.Errorf("expected connect timeout 2s, got %s", c.Swarm.ConnectTimeout)
	}
	if !c.Metrics.Disabled {
		t.Error("expected metrics to be disabled")
	}
}

func TestUnmarshalYAML(t *testing.T) {
	t.Parallel()
	in := `
role: client
log-level: error
discovery-key: abc
swarm:
  connect-timeout: 7s
  listen-addrs:
    - /ip4/127.0.0.1/tcp/0
metrics:
  disabled: true
transfer:
  progress-every: 5
`
	c := NewDefaultConfig(RoleServer)
	if err := c.Unmarshal(strings.NewReader(in)); err != nil {
		t.Fatal(err)
	}
	if c.Role != RoleClient {
		t.Errorf("expected role client, got %q", c.Role)
	}
	if c.Swarm.ConnectTimeout != 7*time.Second {
		t.Errorf("expected connect timeout 7s, got %s", c.Swarm.ConnectTimeout)
	}
	if c.Swarm.LookupInterval != NewSwarmOptions().LookupInterval {
		t.Errorf("expected default lookup interval to survive, got %s", c.Swarm.LookupInterval)
	}
	if !c.Metrics.Disabled || c.Transfer.ProgressEvery != 5 {
		t.Errorf("unexpected metrics/transfer options: %+v %+v", c.Metrics, c.Transfer)
	}
	if err := c.Unmarshal(strings.NewReader("unknown-field: true")); err == nil {
		t.Fatal("expected error for unknown field")
	}
}
