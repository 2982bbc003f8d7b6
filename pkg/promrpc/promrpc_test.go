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
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/context"
	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/crypto"
)

func newTestHost(t *testing.T) host.Host {
	t.Helper()
	h, err := libp2p.New(libp2p.ListenAddrStrings("/ip4/127.0.0.1/tcp/0"))
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func newTestRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_bytes_total",
		Help: "Test counter.",
	})
	reg.MustRegister(c)
	c.Add(3)
	return reg
}

type testPair struct {
	scraper     *Scraper
	scraperHost host.Host
	client      *Client
	clientHost  host.Host
}

func newTestPair(t *testing.T, scraperSecret, clientSecret crypto.Secret) testPair {
	t.Helper()
	ctx := context.Background()
	scraperHost := newTestHost(t)
	clientHost := newTestHost(t)
	scraper, err := NewScraper(ctx, ScraperOptions{
		Host:           scraperHost,
		Secret:         scraperSecret,
		RequestTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	t.Cleanup(func() { _ = scraper.Close() })
	client, err := NewClient(ctx, ClientOptions{
		Host:           clientHost,
		ScraperID:      scraperHost.ID(),
		ScraperAddrs:   scraperHost.Addrs(),
		Alias:          "client-1",
		Service:        "hyperswarm-e2e-tests",
		Hostname:       "test-host",
		Secret:         clientSecret,
		Gatherer:       newTestRegistry(t),
		RetryInterval:  50 * time.Millisecond,
		RequestTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close(context.Background()) })
	return testPair{scraper, scraperHost, client, clientHost}
}

func waitClosed(t *testing.T, c <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-c:
	case <-time.After(10 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestRegisterAndScrape(t *testing.T) {
	t.Parallel()
	secret := crypto.MustGenerateSecret()
	p := newTestPair(t, secret, secret)

	waitClosed(t, p.client.Ready(), "registration")
	select {
	case <-p.client.Scraped():
		t.Fatal("client reported scraped before any scrape")
	default:
	}

	want := []Target{{
		Alias:    "client-1",
		Service:  "hyperswarm-e2e-tests",
		Hostname: "test-host",
		Peer:     p.clientHost.ID(),
	}}
	ignore := cmpopts.IgnoreFields(Target{}, "Registered", "LastScrape", "LastError")
	if diff := cmp.Diff(want, p.scraper.Targets(), ignore); diff != "" {
		t.Fatalf("unexpected targets (-want +got):\n%s", diff)
	}

	text, err := p.scraper.Scrape(context.Background(), "client-1")
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	families, err := ParseMetrics(text)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	mf, ok := families["test_bytes_total"]
	if !ok {
		t.Fatalf("expected test_bytes_total in scraped metrics:\n%s", text)
	}
	if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 3 {
		t.Fatalf("expected counter value 3, got %v", got)
	}
	waitClosed(t, p.client.Scraped(), "scrape signal")

	all, err := p.scraper.ScrapeAll(context.Background())
	if err != nil {
		t.Fatalf("scrape all: %v", err)
	}
	if _, ok := all["client-1"]; !ok || len(all) != 1 {
		t.Fatalf("unexpected scrape all result: %v", all)
	}
}

func TestRegisterWrongSecret(t *testing.T) {
	t.Parallel()
	p := newTestPair(t, crypto.MustGenerateSecret(), crypto.MustGenerateSecret())

	select {
	case err := <-p.client.Errors():
		if !errors.Is(err, ErrRegistrationRejected) {
			t.Fatalf("expected %v, got %v", ErrRegistrationRejected, err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for registration error")
	}
	select {
	case <-p.client.Ready():
		t.Fatal("client reported ready with the wrong secret")
	default:
	}
	if targets := p.scraper.Targets(); len(targets) != 0 {
		t.Fatalf("expected no targets, got %v", targets)
	}
}

func TestScrapeUnknownTarget(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	scraper, err := NewScraper(ctx, ScraperOptions{Host: newTestHost(t), Secret: crypto.MustGenerateSecret()})
	if err != nil {
		t.Fatal(err)
	}
	defer scraper.Close()
	if _, err := scraper.Scrape(ctx, "nobody"); !errors.Is(err, ErrUnknownTarget) {
		t.Fatalf("expected %v, got %v", ErrUnknownTarget, err)
	}
}

func TestMetricsRefusedToOtherPeers(t *testing.T) {
	t.Parallel()
	secret := crypto.MustGenerateSecret()
	p := newTestPair(t, secret, secret)
	waitClosed(t, p.client.Ready(), "registration")

	// A second scraper sharing the secret is still not the configured scraper.
	intruderHost := newTestHost(t)
	intruder, err := NewScraper(context.Background(), ScraperOptions{Host: intruderHost, Secret: secret})
	if err != nil {
		t.Fatal(err)
	}
	defer intruder.Close()
	if err := intruderHost.Connect(context.Background(), peer.AddrInfo{ID: p.clientHost.ID(), Addrs: p.clientHost.Addrs()}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := intruder.scrape(context.Background(), p.clientHost.ID()); err == nil {
		t.Fatal("expected scrape from an unknown peer to fail")
	}
	select {
	case <-p.client.Scraped():
		t.Fatal("client reported scraped after a refused request")
	default:
	}
}

func TestClientClose(t *testing.T) {
	t.Parallel()
	secret := crypto.MustGenerateSecret()
	p := newTestPair(t, secret, secret)
	waitClosed(t, p.client.Ready(), "registration")
	if err := p.client.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := p.client.Close(context.Background()); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := p.scraper.Scrape(context.Background(), "client-1"); err == nil {
		t.Fatal("expected scrape of a closed client to fail")
	}
}

func TestClientOptionsValidate(t *testing.T) {
	t.Parallel()
	h := newTestHost(t)
	valid := ClientOptions{Host: h, ScraperID: h.ID(), Alias: "a", Secret: crypto.MustGenerateSecret()}
	tc := []struct {
		name    string
		mutate  func(*ClientOptions)
		wantErr string
	}{
		{"Valid", func(*ClientOptions) {}, ""},
		{"NoHost", func(o *ClientOptions) { o.Host = nil }, "host"},
		{"NoScraper", func(o *ClientOptions) { o.ScraperID = "" }, "scraper"},
		{"NoAlias", func(o *ClientOptions) { o.Alias = "" }, "alias"},
		{"NoSecret", func(o *ClientOptions) { o.Secret = nil }, "secret"},
	}
	for _, tt := range tc {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			opts := valid
			tt.mutate(&opts)
			err := opts.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestScraperHandler(t *testing.T) {
	t.Parallel()
	secret := crypto.MustGenerateSecret()
	p := newTestPair(t, secret, secret)
	waitClosed(t, p.client.Ready(), "registration")
	srv := httptest.NewServer(p.scraper.Handler())
	defer srv.Close()

	tc := []struct {
		path     string
		wantCode int
		wantBody string
	}{
		{"/metrics/client-1", http.StatusOK, "test_bytes_total 3"},
		{"/metrics/nobody", http.StatusNotFound, ""},
		{"/metrics/", http.StatusNotFound, ""},
		{"/targets", http.StatusOK, `"alias": "client-1"`},
	}
	for _, tt := range tc {
		resp, err := http.Get(srv.URL + tt.path)
		if err != nil {
			t.Fatalf("get %s: %v", tt.path, err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("read %s: %v", tt.path, err)
		}
		if resp.StatusCode != tt.wantCode {
			t.Fatalf("%s: expected status %d, got %d", tt.path, tt.wantCode, resp.StatusCode)
		}
		if !strings.Contains(string(body), tt.wantBody) {
			t.Fatalf("%s: expected body containing %q, got:\n%s", tt.path, tt.wantBody, body)
		}
	}
}
