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
	"io"
	"sync"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/discovery"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"

	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/context"
	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/crypto"
)

// memoryDiscovery is an in-process rendezvous shared by the test hosts.
type memoryDiscovery struct {
	mu     sync.Mutex
	topics map[string]map[peer.ID]peer.AddrInfo
}

func newMemoryDiscovery() *memoryDiscovery {
	return &memoryDiscovery{topics: make(map[string]map[peer.ID]peer.AddrInfo)}
}

func (m *memoryDiscovery) For(ctx context.Context, h host.Host) (discovery.Discovery, io.Closer, error) {
	return &memoryPeer{m: m, h: h}, nil, nil
}

type memoryPeer struct {
	m *memoryDiscovery
	h host.Host
}

func (p *memoryPeer) Advertise(ctx context.Context, ns string, opts ...discovery.Option) (time.Duration, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	if p.m.topics[ns] == nil {
		p.m.topics[ns] = make(map[peer.ID]peer.AddrInfo)
	}
	p.m.topics[ns][p.h.ID()] = peer.AddrInfo{ID: p.h.ID(), Addrs: p.h.Addrs()}
	return time.Hour, nil
}

func (p *memoryPeer) FindPeers(ctx context.Context, ns string, opts ...discovery.Option) (<-chan peer.AddrInfo, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	ch := make(chan peer.AddrInfo, len(p.m.topics[ns]))
	for _, info := range p.m.topics[ns] {
		ch <- info
	}
	close(ch)
	return ch, nil
}

func newTestSwarm(t *testing.T, disc *memoryDiscovery) *Swarm {
	t.Helper()
	addr, err := multiaddr.NewMultiaddr("/ip4/127.0.0.1/tcp/0")
	if err != nil {
		t.Fatal(err)
	}
	s, err := New(context.Background(), Options{
		ListenAddrs:    []multiaddr.Multiaddr{addr},
		ConnectTimeout: 5 * time.Second,
		LookupInterval: 50 * time.Millisecond,
		Discovery:      disc.For,
	})
	if err != nil {
		t.Fatalf("new swarm: %v", err)
	}
	t.Cleanup(func() { _ = s.Destroy(context.Background()) })
	return s
}

func newTestKey(t *testing.T) crypto.DiscoveryKey {
	t.Helper()
	key, err := crypto.GenerateDiscoveryKey()
	if err != nil {
		t.Fatal(err)
	}
	return key
}

func recvConn(t *testing.T, s *Swarm) Conn {
	t.Helper()
	select {
	case c := <-s.Connections():
		return c
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for connection")
	}
	return nil
}

func TestJoinAndTransfer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	disc := newMemoryDiscovery()
	server := newTestSwarm(t, disc)
	client := newTestSwarm(t, disc)
	key := newTestKey(t)

	if err := server.Join(ctx, key, JoinOptions{Server: true}); err != nil {
		t.Fatalf("server join: %v", err)
	}
	if err := client.Join(ctx, key, JoinOptions{Client: true}); err != nil {
		t.Fatalf("client join: %v", err)
	}

	clientConn := recvConn(t, client)
	if clientConn.RemotePeer() != server.ID() {
		t.Fatalf("expected connection to %s, got %s", server.ID(), clientConn.RemotePeer())
	}
	if clientConn.Topic() != key {
		t.Fatalf("expected topic %s, got %s", key, clientConn.Topic())
	}
	type result struct {
		data []byte
		err  error
	}
	read := make(chan result, 1)
	go func() {
		data, err := io.ReadAll(clientConn)
		read <- result{data, err}
	}()

	serverConn := recvConn(t, server)
	if serverConn.RemotePeer() != client.ID() {
		t.Fatalf("expected connection from %s, got %s", client.ID(), serverConn.RemotePeer())
	}
	if _, err := serverConn.Write([]byte("abc")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := serverConn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case res := <-read:
		if res.err != nil {
			t.Fatalf("read: %v", res.err)
		}
		if string(res.data) != "abc" {
			t.Fatalf("expected %q, got %q", "abc", res.data)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out reading from server")
	}

	// The server was dialed once and is not dialed again.
	select {
	case c := <-client.Connections():
		t.Fatalf("unexpected second connection to %s", c.RemotePeer())
	case <-time.After(300 * time.Millisecond):
	}
}

func TestLeave(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	disc := newMemoryDiscovery()
	server := newTestSwarm(t, disc)
	client := newTestSwarm(t, disc)
	key := newTestKey(t)

	if err := server.Join(ctx, key, JoinOptions{Server: true}); err != nil {
		t.Fatalf("server join: %v", err)
	}
	if err := server.Leave(ctx, key); err != nil {
		t.Fatalf("leave: %v", err)
	}
	// Leaving twice is a no-op.
	if err := server.Leave(ctx, key); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if err := client.Join(ctx, key, JoinOptions{Client: true}); err != nil {
		t.Fatalf("client join: %v", err)
	}
	select {
	case c := <-client.Connections():
		t.Fatalf("unexpected connection to %s after leave", c.RemotePeer())
	case <-time.After(500 * time.Millisecond):
	}
}

func TestDestroy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestSwarm(t, newMemoryDiscovery())
	key := newTestKey(t)
	if err := s.Join(ctx, key, JoinOptions{Server: true, Client: true}); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := s.Destroy(ctx); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if err := s.Destroy(ctx); err != nil {
		t.Fatalf("second destroy: %v", err)
	}
	if err := s.Join(ctx, key, JoinOptions{Client: true}); !errors.Is(err, ErrDestroyed) {
		t.Fatalf("expected %v joining a destroyed swarm, got %v", ErrDestroyed, err)
	}
}

func TestNewDHTUnreachableBootstrapPeers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestSwarm(t, newMemoryDiscovery())
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	id, err := crypto.PeerIDFromPublicKey(kp.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	addr, err := multiaddr.NewMultiaddr(fmt.Sprintf("/ip4/127.0.0.1/tcp/1/p2p/%s", id))
	if err != nil {
		t.Fatal(err)
	}
	_, err = NewDHT(ctx, s.Host(), []multiaddr.Multiaddr{addr}, 2*time.Second)
	if !errors.Is(err, ErrNoBootstrapPeers) {
		t.Fatalf("expected %v, got %v", ErrNoBootstrapPeers, err)
	}
}
