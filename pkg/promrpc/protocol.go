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

// Package promrpc exposes Prometheus metrics to a remote scraper over libp2p
// streams. Clients register an alias with the scraper, authenticated by a
// shared secret, and the scraper pulls metrics from registered clients.
package promrpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-msgio"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/crypto"
)

const (
	// RegisterProtocol is the protocol clients register their alias with.
	RegisterProtocol protocol.ID = "/hyperswarm-e2e/prom-rpc/register/1.0.0"
	// MetricsProtocol is the protocol the scraper pulls metrics with.
	MetricsProtocol protocol.ID = "/hyperswarm-e2e/prom-rpc/metrics/1.0.0"
)

// MaxMessageSize is the largest message accepted on either protocol.
const MaxMessageSize = 16 << 20

// DefaultRequestTimeout bounds a single request on either protocol.
const DefaultRequestTimeout = 10 * time.Second

var (
	// ErrRegistrationRejected is returned when the scraper refuses a registration.
	ErrRegistrationRejected = errors.New("registration rejected")
	// ErrScrapeFailed is returned when a client fails to serve its metrics.
	ErrScrapeFailed = errors.New("scrape failed")
	// ErrUnknownTarget is returned when scraping an alias that never registered.
	ErrUnknownTarget = errors.New("unknown target")
)

// RegisterRequest registers an alias with the scraper.
type RegisterRequest struct {
	Alias    string `json:"alias"`
	Service  string `json:"service"`
	Hostname string `json:"hostname"`
	// Signature is the hex encoded HMAC of the registration under the
	// shared secret.
	Signature string `json:"signature"`
}

// RegisterResponse is the scraper's answer to a registration.
type RegisterResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// MetricsRequest asks a client for its metrics.
type MetricsRequest struct{}

// MetricsResponse carries metrics in the Prometheus text exposition format.
type MetricsResponse struct {
	Success bool   `json:"success"`
	Metrics string `json:"metrics,omitempty"`
	Error   string `json:"error,omitempty"`
}

// registrationPayload is the data signed by a registration. Binding the
// signature to the peer ID keeps a captured registration from being
// replayed by another peer.
func registrationPayload(alias, service string, id peer.ID) []byte {
	return []byte(alias + "\n" + service + "\n" + id.String())
}

func signRegistration(secret crypto.Secret, req *RegisterRequest, id peer.ID) {
	req.Signature = hex.EncodeToString(secret.Sign(registrationPayload(req.Alias, req.Service, id)))
}

func verifyRegistration(secret crypto.Secret, req *RegisterRequest, id peer.ID) error {
	sig, err := hex.DecodeString(req.Signature)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	return secret.Verify(registrationPayload(req.Alias, req.Service, id), sig)
}

func writeMsg(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := msgio.NewVarintWriter(w).WriteMsg(data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

func readMsg(r io.Reader, v any) error {
	mr := msgio.NewVarintReaderSize(r, MaxMessageSize)
	data, err := mr.ReadMsg()
	if err != nil {
		return fmt.Errorf("read message: %w", err)
	}
	defer mr.ReleaseMsg(data)
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal message: %w", err)
	}
	return nil
}

// roundTrip writes req on the stream, closes the write side and reads the
// response into resp.
func roundTrip(s network.Stream, timeout time.Duration, req, resp any) error {
	if err := s.SetDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	if err := writeMsg(s, req); err != nil {
		return err
	}
	if err := s.CloseWrite(); err != nil {
		return fmt.Errorf("close write: %w", err)
	}
	return readMsg(s, resp)
}

// GatherText gathers the metrics of g in the Prometheus text format.
func GatherText(g prometheus.Gatherer) (string, error) {
	families, err := g.Gather()
	if err != nil {
		return "", fmt.Errorf("gather metrics: %w", err)
	}
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return "", fmt.Errorf("encode metrics: %w", err)
		}
	}
	return buf.String(), nil
}

// ParseMetrics parses metrics in the Prometheus text format.
func ParseMetrics(text string) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(bytes.NewBufferString(text))
	if err != nil {
		return nil, fmt.Errorf("parse metrics: %w", err)
	}
	return families, nil
}
