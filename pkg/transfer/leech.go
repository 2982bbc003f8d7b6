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
	"github.com/dustin/go-humanize"

	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/context"
)

// Leech reads conn until it closes, counting every chunk received.
//
// A progress line is logged for the first chunk and every ProgressEvery
// chunks after it. When the connection closes a summary with the total and
// the elapsed time since Started is logged and OnClose is called. Stream
// errors are logged and suppressed. Cancelling ctx resets conn.
func Leech(ctx context.Context, conn Conn, opts Options) Stats {
	opts = opts.withDefaults()
	log := context.LoggerFrom(ctx)
	meter := NewMeter(opts.Started, opts.Counter)

	stop := context.AfterFunc(ctx, func() {
		log.Debug("Transfer cancelled, destroying connection")
		_ = conn.Reset()
	})
	defer stop()

	buf := make([]byte, opts.ChunkSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk, total := meter.Add(n)
			if (chunk-1)%uint64(opts.ProgressEvery) == 0 {
				log.Info("Received data", "size", humanize.Bytes(uint64(n)), "total", humanize.Bytes(total))
			}
		}
		if err != nil {
			if !isClosed(err) {
				log.Warn("Connection error", "error", err.Error())
			}
			break
		}
	}
	if err := conn.Close(); err != nil {
		log.Debug("Error closing connection", "error", err.Error())
	}

	stats := meter.Stats()
	log.Info("Finished downloading", "total", humanize.Bytes(stats.Bytes), "bytes", stats.Bytes, "seconds", stats.Elapsed.Seconds())
	if opts.OnClose != nil {
		opts.OnClose(stats)
	}
	return stats
}
