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

// Package transfer implements metered payload transfers over swarm
// connections.
package transfer

import (
	"errors"
	"io"
	"net"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Default option values.
const (
	DefaultProgressEvery = 100
	DefaultChunkSize     = 64 * 1024
	DefaultCloseTimeout  = 10 * time.Second
)

// Conn is the connection a transfer runs over. Close ends the connection
// gracefully, Reset destroys it.
type Conn interface {
	io.ReadWriteCloser
	Reset() error
}

// Options are options for a transfer.
type Options struct {
	// ProgressEvery is the number of chunks between progress logs. The
	// first chunk is always logged.
	ProgressEvery int
	// ChunkSize is the read buffer size when receiving.
	ChunkSize int
	// Started is when the connection was admitted. Defaults to the start
	// of the transfer.
	Started time.Time
	// Counter is incremented with every transferred byte.
	Counter prometheus.Counter
	// CloseTimeout bounds the wait for the peer to observe a graceful
	// close before the connection is reset.
	CloseTimeout time.Duration
	// OnClose is called once with the final stats after the connection
	// closed.
	OnClose func(Stats)
}

func (o Options) withDefaults() Options {
	if o.ProgressEvery <= 0 {
		o.ProgressEvery = DefaultProgressEvery
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Started.IsZero() {
		o.Started = time.Now()
	}
	if o.CloseTimeout <= 0 {
		o.CloseTimeout = DefaultCloseTimeout
	}
	return o
}

// isClosed reports whether err is the expected result of one side of a
// transfer tearing down the other.
func isClosed(err error) bool {
	return err == nil ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, os.ErrClosed)
}
