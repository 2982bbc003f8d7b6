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

package swarm

import (
	"errors"
	"fmt"
	"sync"
	"time"

	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"

	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/context"
)

// ErrNoBootstrapPeers is returned when none of the bootstrap peers could be
// reached.
var ErrNoBootstrapPeers = errors.New("failed to connect to any bootstrap peer")

// NewDHT returns a bootstrapped kademlia DHT for the given host. The public
// IPFS bootstrap peers are used when bootstrapPeers is empty.
func NewDHT(ctx context.Context, h host.Host, bootstrapPeers []multiaddr.Multiaddr, connectTimeout time.Duration) (*dht.IpfsDHT, error) {
	if len(bootstrapPeers) == 0 {
		bootstrapPeers = dht.DefaultBootstrapPeers
	}
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	kaddht, err := dht.New(ctx, h, dht.Mode(dht.ModeAutoServer))
	if err != nil {
		return nil, fmt.Errorf("new dht: %w", err)
	}
	if err := kaddht.Bootstrap(ctx); err != nil {
		defer kaddht.Close()
		return nil, fmt.Errorf("bootstrap dht: %w", err)
	}
	if err := connectBootstrapPeers(ctx, h, bootstrapPeers, connectTimeout); err != nil {
		defer kaddht.Close()
		return nil, fmt.Errorf("bootstrap dht: %w", err)
	}
	return kaddht, nil
}

// connectBootstrapPeers dials every bootstrap peer concurrently and succeeds
// when at least one of them is reached.
func connectBootstrapPeers(ctx context.Context, h host.Host, addrs []multiaddr.Multiaddr, connectTimeout time.Duration) error {
	log := context.LoggerFrom(ctx)
	infos, err := peer.AddrInfosFromP2pAddrs(addrs...)
	if err != nil {
		return fmt.Errorf("parse bootstrap peers: %w", err)
	}
	var wg sync.WaitGroup
	var mu sync.Mutex
	var connected int
	for _, info := range infos {
		info := info
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(ctx, connectTimeout)
			defer cancel()
			if err := h.Connect(ctx, info); err != nil {
				log.Warn("Failed to connect to bootstrap peer", "peer", info.ID.String(), "error", err.Error())
				return
			}
			log.Debug("Connected to bootstrap peer", "peer", info.ID.String())
			mu.Lock()
			connected++
			mu.Unlock()
		}()
	}
	wg.Wait()
	if connected == 0 {
		return ErrNoBootstrapPeers
	}
	return nil
}
