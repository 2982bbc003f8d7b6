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

package promrpc

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/context"
	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/crypto"
)

// DefaultScrapeConcurrency is the number of targets scraped at once by ScrapeAll.
const DefaultScrapeConcurrency = 8

// ScraperOptions are options for a scraper.
type ScraperOptions struct {
	// Host is the libp2p host clients register with.
	Host host.Host
	// Secret authenticates registrations.
	Secret crypto.Secret
	// RequestTimeout bounds a single scrape.
	RequestTimeout time.Duration
	// Concurrency is the number of targets scraped at once by ScrapeAll.
	Concurrency int
}

// Target is a registered client.
type Target struct {
	Alias      string    `json:"alias"`
	Service    string    `json:"service"`
	Hostname   string    `json:"hostname"`
	Peer       peer.ID   `json:"peer"`
	Registered time.Time `json:"registered"`
	LastScrape time.Time `json:"lastScrape,omitempty"`
	LastError  string    `json:"lastError,omitempty"`
}

// Scraper accepts registrations and pulls metrics from registered clients.
type Scraper struct {
	opts ScraperOptions
	log  *slog.Logger

	mu      sync.RWMutex
	targets map[string]*Target

	closeOnce sync.Once
}

// NewScraper starts accepting registrations on the host.
func NewScraper(ctx context.Context, opts ScraperOptions) (*Scraper, error) {
	if opts.Host == nil {
		return nil, errors.New("host must be set")
	}
	if len(opts.Secret) == 0 {
		return nil, errors.New("secret must be set")
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultScrapeConcurrency
	}
	s := &Scraper{
		opts:    opts,
		log:     context.LoggerFrom(ctx).With("component", "prom-rpc-scraper"),
		targets: make(map[string]*Target),
	}
	opts.Host.SetStreamHandler(RegisterProtocol, s.handleRegister)
	return s, nil
}

// Targets returns the registered targets sorted by alias.
func (s *Scraper) Targets() []Target {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Target, 0, len(s.targets))
	for _, t := range s.targets {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out
}

// Scrape pulls the metrics of the target registered under alias.
func (s *Scraper) Scrape(ctx context.Context, alias string) (string, error) {
	s.mu.RLock()
	t, ok := s.targets[alias]
	var id peer.ID
	if ok {
		id = t.Peer
	}
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTarget, alias)
	}
	text, err := s.scrape(ctx, id)
	s.mu.Lock()
	if t, ok := s.targets[alias]; ok && t.Peer == id {
		t.LastScrape = time.Now()
		t.LastError = ""
		if err != nil {
			t.LastError = err.Error()
		}
	}
	s.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("scrape %q: %w", alias, err)
	}
	return text, nil
}

// ScrapeAll scrapes every registered target. Metrics of the targets that
// answered are returned along with the combined errors of those that did not.
func (s *Scraper) ScrapeAll(ctx context.Context) (map[string]string, error) {
	var (
		mu   sync.Mutex
		out  = make(map[string]string)
		errs error
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for _, t := range s.Targets() {
		alias := t.Alias
		g.Go(func() error {
			text, err := s.Scrape(ctx, alias)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierr.Append(errs, err)
				return nil
			}
			out[alias] = text
			return nil
		})
	}
	_ = g.Wait()
	return out, errs
}

// Close stops accepting registrations.
func (s *Scraper) Close() error {
	s.closeOnce.Do(func() {
		s.opts.Host.RemoveStreamHandler(RegisterProtocol)
	})
	return nil
}

func (s *Scraper) scrape(ctx context.Context, id peer.ID) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()
	stream, err := s.opts.Host.NewStream(ctx, id, MetricsProtocol)
	if err != nil {
		return "", fmt.Errorf("open metrics stream: %w", err)
	}
	defer stream.Close()
	var resp MetricsResponse
	if err := roundTrip(stream, s.opts.RequestTimeout, &MetricsRequest{}, &resp); err != nil {
		_ = stream.Reset()
		return "", err
	}
	if !resp.Success {
		return "", fmt.Errorf("%w: %s", ErrScrapeFailed, resp.Error)
	}
	if _, err := ParseMetrics(resp.Metrics); err != nil {
		return "", fmt.Errorf("%w: %w", ErrScrapeFailed, err)
	}
	return resp.Metrics, nil
}

func (s *Scraper) handleRegister(stream network.Stream) {
	remote := stream.Conn().RemotePeer()
	log := s.log.With("peer", remote.String())
	defer stream.Close()
	_ = stream.SetDeadline(time.Now().Add(s.opts.RequestTimeout))
	var req RegisterRequest
	if err := readMsg(stream, &req); err != nil {
		log.Debug("Failed to read registration", "error", err.Error())
		_ = stream.Reset()
		return
	}
	var resp RegisterResponse
	switch err := verifyRegistration(s.opts.Secret, &req, remote); {
	case req.Alias == "":
		resp.Error = "alias must be set"
	case err != nil:
		resp.Error = "invalid secret"
	default:
		resp.Success = true
	}
	if !resp.Success {
		log.Warn("Rejected registration", "alias", req.Alias, "reason", resp.Error)
	} else {
		s.mu.Lock()
		s.targets[req.Alias] = &Target{
			Alias:      req.Alias,
			Service:    req.Service,
			Hostname:   req.Hostname,
			Peer:       remote,
			Registered: time.Now(),
		}
		s.mu.Unlock()
		log.Info("Registered target", "alias", req.Alias, "service", req.Service, "hostname", req.Hostname)
	}
	if err := writeMsg(stream, &resp); err != nil {
		log.Debug("Failed to write registration response", "error", err.Error())
		_ = stream.Reset()
	}
}
