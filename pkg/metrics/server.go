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

package metrics

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/context"
)

// DefaultListenAddress is the default listen address for the metrics server.
const DefaultListenAddress = "[::]:8080"

// DefaultPath is the default path for the metrics server.
const DefaultPath = "/metrics"

// Options contains the configuration for exposing metrics over HTTP.
type Options struct {
	// ListenAddress is the address to start the metrics server on.
	ListenAddress string
	// Path is the path to expose metrics on. It is ignored when Handler is set.
	Path string
	// Handler overrides the default Prometheus handler.
	Handler http.Handler
}

// Server is the metrics server.
type Server struct {
	Options
	log *slog.Logger

	mu  sync.Mutex
	srv *http.Server
	lis net.Listener
}

// NewServer returns a new metrics server.
func NewServer(ctx context.Context, o Options) *Server {
	if o.ListenAddress == "" {
		o.ListenAddress = DefaultListenAddress
	}
	if o.Path == "" {
		o.Path = DefaultPath
	}
	return &Server{
		Options: o,
		log:     context.LoggerFrom(ctx).With("component", "metrics-server"),
	}
}

// Listen binds the listen address. It is called by ListenAndServe if not
// called before.
func (s *Server) Listen() (net.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis != nil {
		return s.lis.Addr(), nil
	}
	lis, err := net.Listen("tcp", s.ListenAddress)
	if err != nil {
		return nil, err
	}
	s.lis = lis
	return lis.Addr(), nil
}

// ListenAndServe starts the server and blocks until the server exits.
func (s *Server) ListenAndServe() error {
	addr, err := s.Listen()
	if err != nil {
		return err
	}
	handler := s.Handler
	if handler == nil {
		handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == s.Path {
				promhttp.Handler().ServeHTTP(w, r)
			} else {
				http.NotFound(w, r)
			}
		})
	}
	s.mu.Lock()
	s.srv = &http.Server{Handler: handler}
	srv, lis := s.srv, s.lis
	s.mu.Unlock()
	s.log.Info("Starting Prometheus metrics server", slog.String("listen_address", addr.String()), slog.String("path", s.Path))
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Error("Metrics server failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// Shutdown attempts to stop the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, lis := s.srv, s.lis
	s.mu.Unlock()
	s.log.Info("Shutting down Prometheus metrics server")
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	if lis != nil {
		return lis.Close()
	}
	return nil
}
