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
	"os"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-libp2p/core/routing"
	"github.com/multiformats/go-multiaddr"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/context"
	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/crypto"
)

// DefaultRetryInterval is the delay between registration attempts.
const DefaultRetryInterval = 5 * time.Second

// ClientOptions are options for a metrics client.
type ClientOptions struct {
	// Host is the libp2p host to serve metrics from.
	Host host.Host
	// Routing locates the scraper when none of its addresses are known.
	Routing routing.PeerRouting
	// ScraperID is the peer ID of the only peer allowed to scrape.
	ScraperID peer.ID
	// ScraperAddrs are known addresses of the scraper.
	ScraperAddrs []multiaddr.Multiaddr
	// Alias is the name the client registers under.
	Alias string
	// Service is the service name reported to the scraper.
	Service string
	// Hostname is reported to the scraper. Defaults to the OS hostname.
	Hostname string
	// Secret authenticates the registration.
	Secret crypto.Secret
	// Gatherer is the source of the metrics. Defaults to the default
	// Prometheus registry.
	Gatherer prometheus.Gatherer
	// RetryInterval is the delay between registration attempts.
	RetryInterval time.Duration
	// RequestTimeout bounds a single registration.
	RequestTimeout time.Duration
}

// Validate validates the options.
func (o ClientOptions) Validate() error {
	if o.Host == nil {
		return errors.New("host must be set")
	}
	if o.ScraperID == "" {
		return errors.New("scraper ID must be set")
	}
	if o.Alias == "" {
		return errors.New("alias must be set")
	}
	if len(o.Secret) == 0 {
		return errors.New("secret must be set")
	}
	return nil
}

// Client registers with a scraper and serves it metrics.
type Client struct {
	opts ClientOptions
	log  *slog.Logger

	ready       chan struct{}
	readyOnce   sync.Once
	scraped     chan struct{}
	scrapedOnce sync.Once
	errs        chan error

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// NewClient starts serving metrics to the scraper and registering with it
// in the background.
func NewClient(ctx context.Context, opts ClientOptions) (*Client, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Hostname == "" {
		opts.Hostname, _ = os.Hostname()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	log := context.LoggerFrom(ctx).With("component", "prom-rpc-client", "alias", opts.Alias)
	if len(opts.ScraperAddrs) > 0 {
		opts.Host.Peerstore().AddAddrs(opts.ScraperID, opts.ScraperAddrs, peerstore.PermanentAddrTTL)
	}
	c := &Client{
		opts:    opts,
		log:     log,
		ready:   make(chan struct{}),
		scraped: make(chan struct{}),
		errs:    make(chan error, 16),
	}
	opts.Host.SetStreamHandler(MetricsProtocol, c.handleMetrics)
	rctx, cancel := context.WithCancel(context.WithLogger(context.Background(), log))
	c.cancel = cancel
	c.wg.Add(1)
	go c.registerLoop(rctx)
	return c, nil
}

// Ready is closed once the alias was registered with the scraper.
func (c *Client) Ready() <-chan struct{} {
	return c.ready
}

// Scraped is closed once the scraper pulled metrics successfully.
func (c *Client) Scraped() <-chan struct{} {
	return c.scraped
}

// Errors receives registration failures. Failures are dropped when the
// channel is full.
func (c *Client) Errors() <-chan error {
	return c.errs
}

// Close stops registering and serving metrics. Only the first call has any
// effect; later calls return its result.
func (c *Client) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.opts.Host.RemoveStreamHandler(MetricsProtocol)
		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			c.closeErr = fmt.Errorf("wait for registration to stop: %w", ctx.Err())
		}
	})
	return c.closeErr
}

func (c *Client) registerLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		err := c.register(ctx)
		if err == nil {
			c.log.Info("Registered with scraper", "scraper", c.opts.ScraperID.String())
			c.readyOnce.Do(func() { close(c.ready) })
			return
		}
		if ctx.Err() != nil {
			return
		}
		c.log.Debug("Registration failed, retrying", "error", err.Error(), "retry-in", c.opts.RetryInterval)
		select {
		case c.errs <- err:
		default:
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.opts.RetryInterval):
		}
	}
}

func (c *Client) register(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()
	if err := c.connect(ctx); err != nil {
		return err
	}
	s, err := c.opts.Host.NewStream(ctx, c.opts.ScraperID, RegisterProtocol)
	if err != nil {
		return fmt.Errorf("open register stream: %w", err)
	}
	defer s.Close()
	req := RegisterRequest{
		Alias:    c.opts.Alias,
		Service:  c.opts.Service,
		Hostname: c.opts.Hostname,
	}
	signRegistration(c.opts.Secret, &req, c.opts.Host.ID())
	var resp RegisterResponse
	if err := roundTrip(s, c.opts.RequestTimeout, &req, &resp); err != nil {
		_ = s.Reset()
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%w: %s", ErrRegistrationRejected, resp.Error)
	}
	return nil
}

func (c *Client) connect(ctx context.Context) error {
	h := c.opts.Host
	if h.Network().Connectedness(c.opts.ScraperID) == network.Connected {
		return nil
	}
	info := peer.AddrInfo{ID: c.opts.ScraperID, Addrs: h.Peerstore().Addrs(c.opts.ScraperID)}
	if len(info.Addrs) == 0 && c.opts.Routing != nil {
		found, err := c.opts.Routing.FindPeer(ctx, c.opts.ScraperID)
		if err != nil {
			return fmt.Errorf("find scraper: %w", err)
		}
		info = found
	}
	if err := h.Connect(ctx, info); err != nil {
		return fmt.Errorf("connect to scraper: %w", err)
	}
	return nil
}

func (c *Client) handleMetrics(s network.Stream) {
	remote := s.Conn().RemotePeer()
	if remote != c.opts.ScraperID {
		c.log.Warn("Rejected metrics request from unknown peer", "peer", remote.String())
		_ = s.Reset()
		return
	}
	defer s.Close()
	_ = s.SetDeadline(time.Now().Add(c.opts.RequestTimeout))
	var req MetricsRequest
	if err := readMsg(s, &req); err != nil {
		c.log.Debug("Failed to read metrics request", "error", err.Error())
		_ = s.Reset()
		return
	}
	var resp MetricsResponse
	text, err := GatherText(c.opts.Gatherer)
	if err != nil {
		c.log.Error("Failed to gather metrics", "error", err.Error())
		resp.Error = err.Error()
	} else {
		resp.Success = true
		resp.Metrics = text
	}
	if err := writeMsg(s, &resp); err != nil {
		c.log.Debug("Failed to write metrics response", "error", err.Error())
		_ = s.Reset()
		return
	}
	if resp.Success {
		c.scrapedOnce.Do(func() {
			c.log.Info("Metrics scraped successfully")
			close(c.scraped)
		})
	}
}
