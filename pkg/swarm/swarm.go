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

// Package swarm joins discovery key topics on a libp2p swarm and hands out
// the resulting transfer connections.
package swarm

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/libp2p/go-libp2p"
	p2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/discovery"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-libp2p/core/routing"
	drouting "github.com/libp2p/go-libp2p/p2p/discovery/routing"
	dutil "github.com/libp2p/go-libp2p/p2p/discovery/util"
	"github.com/multiformats/go-multiaddr"
	"go.uber.org/multierr"

	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/context"
	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/crypto"
)

// TransferProtocolPrefix is the protocol prefix of transfer streams. The
// normalized discovery key is appended to it.
const TransferProtocolPrefix = "/hyperswarm-e2e/transfer/1.0.0/"

// TransferProtocol returns the stream protocol for the given topic.
func TransferProtocol(key crypto.DiscoveryKey) protocol.ID {
	return protocol.ID(TransferProtocolPrefix + key.String())
}

// Default option values.
const (
	DefaultConnectTimeout   = 10 * time.Second
	DefaultLookupInterval   = 3 * time.Second
	DefaultMaxTriedPeers    = 1024
	DefaultConnectionBuffer = 16
)

// ErrDestroyed is returned when joining a swarm that was destroyed.
var ErrDestroyed = errors.New("swarm destroyed")

// Conn is a transfer connection with a peer on a joined topic.
type Conn interface {
	io.ReadWriteCloser
	// Reset destroys the connection.
	Reset() error
	// ID is a unique identifier of the connection.
	ID() string
	// RemotePeer is the ID of the remote peer.
	RemotePeer() peer.ID
	// Topic is the discovery key the connection was made for.
	Topic() crypto.DiscoveryKey
}

// DiscoveryFunc returns the discovery service used to announce and look up
// topics for a host.
type DiscoveryFunc func(ctx context.Context, h host.Host) (discovery.Discovery, io.Closer, error)

// Options are options for creating a swarm.
type Options struct {
	// Key is the identity of the host. An ephemeral key is generated when nil.
	Key p2pcrypto.PrivKey
	// ListenAddrs are the addresses to listen on. The libp2p defaults are
	// used when empty.
	ListenAddrs []multiaddr.Multiaddr
	// BootstrapPeers are the DHT bootstrap peers. The public IPFS bootstrap
	// peers are used when empty.
	BootstrapPeers []multiaddr.Multiaddr
	// ConnectTimeout bounds bootstrapping and every dial to a found peer.
	ConnectTimeout time.Duration
	// LookupInterval is the delay between topic lookups of a client.
	LookupInterval time.Duration
	// MaxTriedPeers is the number of dialed peers remembered per swarm.
	// Remembered peers are not dialed again.
	MaxTriedPeers int
	// ConnectionBuffer is the capacity of the connections channel.
	ConnectionBuffer int
	// Discovery overrides the kademlia DHT used for discovery.
	Discovery DiscoveryFunc
	// HostOptions are additional options for the libp2p host.
	HostOptions []libp2p.Option
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.LookupInterval <= 0 {
		o.LookupInterval = DefaultLookupInterval
	}
	if o.MaxTriedPeers <= 0 {
		o.MaxTriedPeers = DefaultMaxTriedPeers
	}
	if o.ConnectionBuffer <= 0 {
		o.ConnectionBuffer = DefaultConnectionBuffer
	}
	return o
}

// JoinOptions are the roles taken on a topic.
type JoinOptions struct {
	// Server announces the topic and accepts connections for it.
	Server bool
	// Client looks up the topic and connects to the peers announcing it.
	Client bool
}

// Swarm is a libp2p host joined to any number of topics.
type Swarm struct {
	opts      Options
	host      host.Host
	disc      discovery.Discovery
	discClose io.Closer
	tried     *lru.Cache[peer.ID, struct{}]
	conns     chan Conn
	log       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	topics map[crypto.DiscoveryKey]*topic
	wg     sync.WaitGroup

	closec    chan struct{}
	closeOnce sync.Once
}

type topic struct {
	opts   JoinOptions
	cancel context.CancelFunc
}

// New creates a new libp2p host and connects it to the discovery service.
func New(ctx context.Context, opts Options) (*Swarm, error) {
	opts = opts.withDefaults()
	log := context.LoggerFrom(ctx)
	hostOpts := append([]libp2p.Option{}, opts.HostOptions...)
	if opts.Key != nil {
		hostOpts = append(hostOpts, libp2p.Identity(opts.Key))
	}
	if len(opts.ListenAddrs) > 0 {
		hostOpts = append(hostOpts, libp2p.ListenAddrs(opts.ListenAddrs...))
	}
	hostOpts = append(hostOpts, libp2p.WithDialTimeout(opts.ConnectTimeout), libp2p.FallbackDefaults)
	h, err := libp2p.New(hostOpts...)
	if err != nil {
		return nil, fmt.Errorf("new libp2p host: %w", err)
	}
	newDiscovery := opts.Discovery
	if newDiscovery == nil {
		newDiscovery = func(ctx context.Context, h host.Host) (discovery.Discovery, io.Closer, error) {
			kaddht, err := NewDHT(ctx, h, opts.BootstrapPeers, opts.ConnectTimeout)
			if err != nil {
				return nil, nil, err
			}
			return drouting.NewRoutingDiscovery(kaddht), kaddht, nil
		}
	}
	disc, discClose, err := newDiscovery(ctx, h)
	if err != nil {
		defer h.Close()
		return nil, fmt.Errorf("new discovery: %w", err)
	}
	tried, err := lru.New[peer.ID, struct{}](opts.MaxTriedPeers)
	if err != nil {
		defer h.Close()
		return nil, fmt.Errorf("new peer cache: %w", err)
	}
	log = log.With("host-id", h.ID().String())
	sctx, cancel := context.WithCancel(context.WithLogger(context.Background(), log))
	log.Debug("Swarm started", "addrs", h.Addrs())
	return &Swarm{
		opts:      opts,
		host:      h,
		disc:      disc,
		discClose: discClose,
		tried:     tried,
		conns:     make(chan Conn, opts.ConnectionBuffer),
		log:       log,
		ctx:       sctx,
		cancel:    cancel,
		topics:    make(map[crypto.DiscoveryKey]*topic),
		closec:    make(chan struct{}),
	}, nil
}

// ID returns the peer ID of the host.
func (s *Swarm) ID() peer.ID {
	return s.host.ID()
}

// Host returns the underlying libp2p host.
func (s *Swarm) Host() host.Host {
	return s.host
}

// Routing returns the peer routing of the discovery service, or nil when it
// does not provide one.
func (s *Swarm) Routing() routing.PeerRouting {
	r, _ := s.discClose.(routing.PeerRouting)
	return r
}

// AddrInfo returns the peer ID and listen addresses of the host.
func (s *Swarm) AddrInfo() peer.AddrInfo {
	return peer.AddrInfo{ID: s.host.ID(), Addrs: s.host.Addrs()}
}

// Connections returns the channel new connections are delivered on. It is
// never closed.
func (s *Swarm) Connections() <-chan Conn {
	return s.conns
}

// Join joins the topic for the given discovery key. Joining a topic again
// replaces the roles taken on it.
func (s *Swarm) Join(ctx context.Context, key crypto.DiscoveryKey, opts JoinOptions) error {
	select {
	case <-s.closec:
		return ErrDestroyed
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.topics[key]; ok {
		s.leave(key, t)
	}
	tctx, cancel := context.WithCancel(s.ctx)
	s.topics[key] = &topic{opts: opts, cancel: cancel}
	log := s.log.With("topic", key.String())
	if opts.Server {
		proto := TransferProtocol(key)
		s.host.SetStreamHandler(proto, func(stream network.Stream) {
			log.Debug("Accepted transfer stream", "peer", stream.Conn().RemotePeer().String())
			s.deliver(&streamConn{Stream: stream, topic: key})
		})
		log.Debug("Announcing topic", "namespace", key.Namespace())
		dutil.Advertise(tctx, s.disc, key.Namespace())
	}
	if opts.Client {
		s.wg.Add(1)
		go s.lookup(context.WithLogger(tctx, log), key)
	}
	return nil
}

// Leave stops announcing and looking up the topic. Established connections
// are not affected.
func (s *Swarm) Leave(ctx context.Context, key crypto.DiscoveryKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.topics[key]; ok {
		s.leave(key, t)
		s.log.Debug("Left topic", "topic", key.String())
	}
	return nil
}

func (s *Swarm) leave(key crypto.DiscoveryKey, t *topic) {
	t.cancel()
	if t.opts.Server {
		s.host.RemoveStreamHandler(TransferProtocol(key))
	}
	delete(s.topics, key)
}

// Destroy leaves all topics and closes the host, resetting every
// connection. Only the first call has any effect.
func (s *Swarm) Destroy(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closec)
		s.mu.Lock()
		for key, t := range s.topics {
			s.leave(key, t)
		}
		s.mu.Unlock()
		s.cancel()
		s.wg.Wait()
		if s.discClose != nil {
			if cerr := s.discClose.Close(); cerr != nil {
				err = multierr.Append(err, fmt.Errorf("close discovery: %w", cerr))
			}
		}
		if cerr := s.host.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close host: %w", cerr))
		}
	})
	return err
}

func (s *Swarm) deliver(c Conn) {
	select {
	case s.conns <- c:
	case <-s.closec:
		_ = c.Reset()
	}
}

func (s *Swarm) lookup(ctx context.Context, key crypto.DiscoveryKey) {
	defer s.wg.Done()
	t := time.NewTicker(s.opts.LookupInterval)
	defer t.Stop()
	for {
		s.findPeers(ctx, key)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (s *Swarm) findPeers(ctx context.Context, key crypto.DiscoveryKey) {
	log := context.LoggerFrom(ctx)
	peers, err := s.disc.FindPeers(ctx, key.Namespace())
	if err != nil {
		log.Debug("Topic lookup failed", "error", err.Error())
		return
	}
	for info := range peers {
		if info.ID == s.host.ID() || info.ID == "" {
			continue
		}
		if s.tried.Contains(info.ID) {
			continue
		}
		s.tried.Add(info.ID, struct{}{})
		conn, err := s.dial(ctx, key, info)
		if err != nil {
			log.Debug("Failed to connect to peer", "peer", info.ID.String(), "error", err.Error())
			s.tried.Remove(info.ID)
			continue
		}
		log.Debug("Connected to peer", "peer", info.ID.String())
		s.deliver(conn)
	}
}

func (s *Swarm) dial(ctx context.Context, key crypto.DiscoveryKey, info peer.AddrInfo) (Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()
	if err := s.host.Connect(ctx, info); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	stream, err := s.host.NewStream(ctx, info.ID, TransferProtocol(key))
	if err != nil {
		return nil, fmt.Errorf("new stream: %w", err)
	}
	return &streamConn{Stream: stream, topic: key}, nil
}
