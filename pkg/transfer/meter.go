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
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
)

// Stats are the counters of a transfer.
type Stats struct {
	// Bytes is the cumulative number of bytes transferred.
	Bytes uint64
	// Chunks is the number of chunks transferred.
	Chunks uint64
	// Started is when the transfer started.
	Started time.Time
	// Elapsed is the wall clock time since Started.
	Elapsed time.Duration
}

// Rate returns the average throughput in bytes per second.
func (s Stats) Rate() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Bytes) / s.Elapsed.Seconds()
}

// String returns a human readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("%s in %.3fs (%s/s)", humanize.Bytes(s.Bytes), s.Elapsed.Seconds(), humanize.Bytes(uint64(s.Rate())))
}

// Meter counts bytes and chunks. Counts only grow. A single goroutine is
// expected to call Add, any goroutine may read Stats.
type Meter struct {
	bytes   atomic.Uint64
	chunks  atomic.Uint64
	started time.Time
	counter prometheus.Counter
}

// NewMeter returns a meter started at the given time. The counter may be nil.
func NewMeter(started time.Time, counter prometheus.Counter) *Meter {
	return &Meter{started: started, counter: counter}
}

// Add records a chunk of n bytes and returns the chunk number (starting at
// one) and the cumulative total.
func (m *Meter) Add(n int) (chunk, total uint64) {
	chunk = m.chunks.Add(1)
	total = m.bytes.Add(uint64(n))
	if m.counter != nil {
		m.counter.Add(float64(n))
	}
	return chunk, total
}

// Stats returns the current counters.
func (m *Meter) Stats() Stats {
	return Stats{
		Bytes:   m.bytes.Load(),
		Chunks:  m.chunks.Load(),
		Started: m.started,
		Elapsed: time.Since(m.started),
	}
}

// Writer returns a writer that records every successful write to w. The
// callback, if not nil, is invoked after each recorded chunk.
func (m *Meter) Writer(w io.Writer, onChunk func(n int, chunk, total uint64)) io.Writer {
	return &meteredWriter{w: w, m: m, onChunk: onChunk}
}

type meteredWriter struct {
	w       io.Writer
	m       *Meter
	onChunk func(n int, chunk, total uint64)
}

func (mw *meteredWriter) Write(p []byte) (int, error) {
	n, err := mw.w.Write(p)
	if n > 0 {
		chunk, total := mw.m.Add(n)
		if mw.onChunk != nil {
			mw.onChunk(n, chunk, total)
		}
	}
	return n, err
}
