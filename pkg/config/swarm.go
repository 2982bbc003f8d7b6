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

	"github.com/multiformats/go-multiaddr"
	"github.com/spf13/pflag"
)

// SwarmOptions are options for joining the swarm.
type SwarmOptions struct {
	// BootstrapPeers is a list of DHT bootstrap peers. If empty the public
	// libp2p bootstrap peers are used.
	BootstrapPeers []string `yaml:"bootstrap-peers,omitempty"`
	// ListenAddrs is a list of multiaddrs to listen on. If empty the libp2p
	// defaults are used.
	ListenAddrs []string `yaml:"listen-addrs,omitempty"`
	// ConnectTimeout is the timeout for dialing peers.
	ConnectTimeout time.Duration `yaml:"connect-timeout,omitempty"`
	// LookupInterval is the delay between peer lookups when acting as a client.
	LookupInterval time.Duration `yaml:"lookup-interval,omitempty"`
}

// NewSwarmOptions returns new swarm options with sensible defaults.
func NewSwarmOptions() SwarmOptions {
	return SwarmOptions{
		ConnectTimeout: 10 * time.Second,
		LookupInterval: 3 * time.Second,
	}
}

// LoadEnv overlays values found in the environment onto the options.
func (o *SwarmOptions) LoadEnv() {
	o.BootstrapPeers = GetEnvSliceDefault(BootstrapPeersEnvVar, o.BootstrapPeers)
	o.ListenAddrs = GetEnvSliceDefault(ListenAddrsEnvVar, o.ListenAddrs)
	o.ConnectTimeout = GetEnvDurationDefault(ConnectTimeoutEnvVar, o.ConnectTimeout)
	o.LookupInterval = GetEnvDurationDefault(LookupIntervalEnvVar, o.LookupInterval)
}

// BindFlags binds the flags for the swarm options.
func (o *SwarmOptions) BindFlags(prefix string, fs *pflag.FlagSet) {
	fs.StringSliceVar(&o.BootstrapPeers, prefix+"bootstrap-peers", o.BootstrapPeers, "DHT bootstrap peers (multiaddrs)")
	fs.StringSliceVar(&o.ListenAddrs, prefix+"listen-addrs", o.ListenAddrs, "Multiaddrs to listen on")
	fs.DurationVar(&o.ConnectTimeout, prefix+"connect-timeout", o.ConnectTimeout, "Timeout for dialing peers")
	fs.DurationVar(&o.LookupInterval, prefix+"lookup-interval", o.LookupInterval, "Delay between peer lookups")
}

// Validate validates the swarm options.
func (o *SwarmOptions) Validate() error {
	if o.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be greater than zero")
	}
	if o.LookupInterval <= 0 {
		return fmt.Errorf("lookup interval must be greater than zero")
	}
	if _, err := ToMultiaddrs(o.BootstrapPeers); err != nil {
		return fmt.Errorf("invalid bootstrap peer: %w", err)
	}
	if _, err := ToMultiaddrs(o.ListenAddrs); err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}
	return nil
}

// ToMultiaddrs parses the given strings into multiaddrs.
func ToMultiaddrs(addrs []string) ([]multiaddr.Multiaddr, error) {
	var out []multiaddr.Multiaddr
	for _, addr := range addrs {
		maddr, err := multiaddr.NewMultiaddr(addr)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", addr, err)
		}
		out = append(out, maddr)
	}
	return out, nil
}
