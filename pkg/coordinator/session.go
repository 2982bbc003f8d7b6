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

package coordinator

import (
	"time"

	"github.com/google/uuid"

	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/context"
	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/metrics"
	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/swarm"
	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/transfer"
)

type sessionFunc func(ctx context.Context, conn swarm.Conn, started time.Time) transfer.Stats

// startSession runs fn for conn in its own goroutine. Connections arriving
// after shutdown started are destroyed.
func (c *Coordinator) startSession(conn swarm.Conn, fn sessionFunc) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Reset()
		return
	}
	c.sessions.Add(1)
	c.mu.Unlock()

	started := time.Now()
	id := uuid.NewString()
	role := string(c.opts.Role)
	ctx := context.WithSessionID(c.sessionCtx, id)
	metrics.SessionsTotal.WithLabelValues(role).Inc()
	metrics.ActiveSessions.WithLabelValues(role).Inc()
	go func() {
		defer c.sessions.Done()
		defer metrics.ActiveSessions.WithLabelValues(role).Dec()
		stats := fn(ctx, conn, started)
		metrics.SessionDuration.WithLabelValues(role).Observe(stats.Elapsed.Seconds())
		c.mu.Lock()
		c.finished = append(c.finished, SessionStats{
			ID:    id,
			Peer:  conn.RemotePeer(),
			Stats: stats,
		})
		c.mu.Unlock()
	}()
}

func (c *Coordinator) seed(ctx context.Context, conn swarm.Conn, started time.Time) transfer.Stats {
	log := context.LoggerFrom(ctx)
	log.Info("Connection opened", "peer", conn.RemotePeer().String())
	src, err := c.opts.OpenPayload()
	if err != nil {
		log.Error("Failed to open payload", "file", c.opts.FileLoc, "error", err.Error())
		_ = conn.Reset()
		return transfer.Stats{Started: started, Elapsed: time.Since(started)}
	}
	opts := c.opts.Transfer
	opts.Started = started
	opts.Counter = metrics.BytesSent
	return transfer.Seed(ctx, conn, src, opts)
}

func (c *Coordinator) leech(ctx context.Context, conn swarm.Conn, started time.Time) transfer.Stats {
	log := context.LoggerFrom(ctx)
	log.Info("Connection opened", "peer", conn.RemotePeer().String())
	opts := c.opts.Transfer
	opts.Started = started
	opts.Counter = metrics.BytesReceived
	opts.OnClose = func(transfer.Stats) {
		// Errors are irrelevant, the session already ran.
		if err := c.opts.Swarm.Leave(ctx, c.opts.DiscoveryKey); err != nil {
			log.Debug("Failed to leave topic", "error", err.Error())
		}
	}
	return transfer.Leech(ctx, conn, opts)
}
