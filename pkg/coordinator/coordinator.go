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

// Package coordinator runs the lifecycle of a replication process: wait for
// metrics to be ready, join the swarm, run transfer sessions and shut down.
package coordinator

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/config"
	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/context"
	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/crypto"
	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/metrics"
	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/swarm"
	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/transfer"
)

var (
	// ErrMetricsTimeout is returned by Run when the metrics client did not
	// become ready within the configured timeout.
	ErrMetricsTimeout = errors.New("timed out waiting for metrics to be ready")
	// ErrAlreadyStarted is returned when Run is called more than once.
	ErrAlreadyStarted = errors.New("coordinator already started")
)

// Swarm is the swarm service used to find peers.
type Swarm interface {
	// Join announces and/or looks up the topic.
	Join(ctx context.Context, key crypto.DiscoveryKey, opts swarm.JoinOptions) error
	// Leave stops announcing and looking up the topic.
	Leave(ctx context.Context, key crypto.DiscoveryKey) error
	// Connections delivers new connections for joined topics.
	Connections() <-chan swarm.Conn
	// Destroy closes the swarm and all its connections.
	Destroy(ctx context.Context) error
}

// Metrics is the metrics exposure client.
type Metrics interface {
	// Ready is closed once the client registered with the scraper.
	Ready() <-chan struct{}
	// Scraped is closed once the client was scraped.
	Scraped() <-chan struct{}
	// Errors receives registration failures.
	Errors() <-chan error
	// Close stops the client.
	Close(ctx context.Context) error
}

// Options are options for a coordinator.
type Options struct {
	// Role is the role of the process.
	Role config.Role
	// DiscoveryKey is the topic to join.
	DiscoveryKey crypto.DiscoveryKey
	// Swarm is the swarm to join.
	Swarm Swarm
	// Metrics is the metrics client. Join starts right away when nil.
	Metrics Metrics
	// FileLoc is the payload seeded by a server.
	FileLoc string
	// OpenPayload opens a new read stream of the payload for every server
	// session. Defaults to opening FileLoc.
	OpenPayload func() (io.ReadCloser, error)
	// Transfer are the options for every session.
	Transfer transfer.Options
	// ReadyTimeout bounds the wait for the metrics client. Zero waits
	// forever.
	ReadyTimeout time.Duration
}

// SessionStats are the results of a finished transfer session.
type SessionStats struct {
	ID    string
	Peer  peer.ID
	Stats transfer.Stats
}

// String returns a single line description of the session.
func (s SessionStats) String() string {
	return fmt.Sprintf("session %s with %s: %s", s.ID, s.Peer, s.Stats)
}

// Coordinator owns a process's swarm and metrics client and runs its
// transfer sessions.
type Coordinator struct {
	opts  Options
	state atomic.Int32
	log   *slog.Logger

	// admission is only accessed by the Run loop.
	admission admission

	sessionCtx    context.Context
	sessionCancel context.CancelFunc
	sessions      sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	finished []SessionStats

	closec       chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error
}

// New returns a new coordinator.
func New(ctx context.Context, opts Options) *Coordinator {
	if opts.OpenPayload == nil {
		fileLoc := opts.FileLoc
		opts.OpenPayload = func() (io.ReadCloser, error) {
			return os.Open(fileLoc)
		}
	}
	log := context.LoggerFrom(ctx).With("role", string(opts.Role))
	sessionCtx, cancel := context.WithCancel(context.WithLogger(context.Background(), log))
	return &Coordinator{
		opts:          opts,
		log:           log,
		sessionCtx:    sessionCtx,
		sessionCancel: cancel,
		closec:        make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Sessions returns the stats of the finished sessions.
func (c *Coordinator) Sessions() []SessionStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SessionStats(nil), c.finished...)
}

// transition moves from one state to the next. It fails once shutdown
// started.
func (c *Coordinator) transition(from, to State) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

// Run waits for the metrics client, joins the swarm and handles connections
// until ctx is cancelled or Shutdown is called. It returns nil in both cases.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.transition(StateInit, StateAwaitingMetricsReady) {
		if c.State() >= StateTerminating {
			return nil
		}
		return ErrAlreadyStarted
	}
	ctx = context.WithLogger(ctx, c.log)
	if err := c.awaitMetrics(ctx); err != nil {
		if errors.Is(err, context.Canceled) || c.State() >= StateTerminating {
			return nil
		}
		return err
	}
	if !c.transition(StateAwaitingMetricsReady, StateJoining) {
		return nil
	}
	key := c.opts.DiscoveryKey
	err := c.opts.Swarm.Join(ctx, key, swarm.JoinOptions{
		Server: c.opts.Role == config.RoleServer,
		Client: c.opts.Role == config.RoleClient,
	})
	if err != nil {
		return fmt.Errorf("join swarm: %w", err)
	}
	switch c.opts.Role {
	case config.RoleServer:
		c.log.Info("Replicating file at discovery key", "file", c.opts.FileLoc, "discovery-key", key.String())
	case config.RoleClient:
		c.log.Info("Setup client for discovery key", "discovery-key", key.String())
	}
	if !c.transition(StateJoining, StateActive) {
		return nil
	}
	conns := c.opts.Swarm.Connections()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.closec:
			return nil
		case conn := <-conns:
			c.handleConnection(conn)
		}
	}
}

func (c *Coordinator) awaitMetrics(ctx context.Context) error {
	m := c.opts.Metrics
	if m == nil {
		c.log.Debug("Metrics disabled, joining right away")
		return nil
	}
	ready, scraped, errs := m.Ready(), m.Scraped(), m.Errors()
	var timeout <-chan time.Time
	if c.opts.ReadyTimeout > 0 {
		t := time.NewTimer(c.opts.ReadyTimeout)
		defer t.Stop()
		timeout = t.C
	}
	c.log.Info("Waiting for metrics to be ready")
	for ready != nil || scraped != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closec:
			return nil
		case <-timeout:
			return ErrMetricsTimeout
		case <-ready:
			ready = nil
			c.log.Info("Prom client ready")
		case <-scraped:
			scraped = nil
			c.log.Info("Prom client successfully scraped")
		case err := <-errs:
			c.log.Error("Prom client error", "error", err.Error())
		}
	}
	c.log.Info("Instrumentation setup")
	return nil
}

// handleConnection applies the admission policy of the role. It is only
// called from the Run loop.
func (c *Coordinator) handleConnection(conn swarm.Conn) {
	if c.opts.Role == config.RoleServer {
		c.startSession(conn, c.seed)
		return
	}
	if c.admission == sessionActive {
		c.log.Info("Ignoring connection (already connected before)", "peer", conn.RemotePeer().String())
		metrics.RejectedConnections.Inc()
		_ = conn.Reset()
		return
	}
	c.admission = sessionActive
	c.startSession(conn, c.leech)
}
