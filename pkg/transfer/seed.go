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

package transfer

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/context"
)

// Seed writes everything read from src to conn, in order and unmodified.
//
// Termination propagates both ways: once conn closes, locally or remotely,
// src is closed, and once src ends, by EOF or by being closed, conn is
// closed. Cancelling ctx resets conn. Stream errors are logged and
// suppressed. Seed returns after both resources are released.
func Seed(ctx context.Context, conn Conn, src io.ReadCloser, opts Options) Stats {
	opts = opts.withDefaults()
	log := context.LoggerFrom(ctx)
	meter := NewMeter(opts.Started, opts.Counter)

	var srcOnce sync.Once
	stopSource := func(reason string) {
		srcOnce.Do(func() {
			log.Debug("Stopping read stream", "reason", reason)
			if err := src.Close(); err != nil {
				log.Debug("Error closing read stream", "error", err.Error())
			}
		})
	}

	stop := context.AfterFunc(ctx, func() {
		log.Debug("Transfer cancelled, destroying connection")
		_ = conn.Reset()
	})
	defer stop()

	// Peers never write to a seeder, so a read only returns once the
	// connection is closed from either side.
	var closing atomic.Bool
	watchc := make(chan struct{})
	go func() {
		defer close(watchc)
		_, err := io.Copy(io.Discard, conn)
		if !isClosed(err) && !closing.Load() {
			log.Warn("Connection error", "error", err.Error())
		}
		stopSource("connection closed")
	}()

	w := meter.Writer(conn, func(n int, chunk, total uint64) {
		if (chunk-1)%uint64(opts.ProgressEvery) == 0 {
			log.Debug("Sent data", "size", humanize.Bytes(uint64(n)), "total", humanize.Bytes(total))
		}
	})
	_, err := io.Copy(w, src)
	if !isClosed(err) {
		log.Debug("Read stream ended with error", "error", err.Error())
	}
	stopSource("read stream ended")

	closing.Store(true)
	if err := conn.Close(); err != nil {
		log.Debug("Error closing connection", "error", err.Error())
	}
	select {
	case <-watchc:
	case <-time.After(opts.CloseTimeout):
		log.Debug("Connection did not close in time, resetting")
		_ = conn.Reset()
		<-watchc
	}

	stats := meter.Stats()
	log.Info("Finished seeding", "total", humanize.Bytes(stats.Bytes), "bytes", stats.Bytes, "seconds", stats.Elapsed.Seconds())
	if opts.OnClose != nil {
		opts.OnClose(stats)
	}
	return stats
}
