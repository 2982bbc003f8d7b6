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

// Package metrics contains the Prometheus collectors for replication runs and
// the HTTP server for exposing them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace is the namespace of all collectors.
const Namespace = "hyperswarm_e2e"

var (
	// BytesSent is the total number of payload bytes written to peers.
	BytesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "bytes_sent_total",
		Help:      "Total number of payload bytes written to peers.",
	})

	// BytesReceived is the total number of payload bytes read from peers.
	BytesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "bytes_received_total",
		Help:      "Total number of payload bytes read from peers.",
	})

	// ActiveSessions is the number of transfer sessions in progress.
	ActiveSessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "active_sessions",
		Help:      "Number of transfer sessions in progress.",
	}, []string{"role"})

	// SessionsTotal is the number of transfer sessions started.
	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "sessions_total",
		Help:      "Total number of transfer sessions started.",
	}, []string{"role"})

	// RejectedConnections is the number of connections destroyed by the
	// admission policy.
	RejectedConnections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "rejected_connections_total",
		Help:      "Total number of connections rejected because a session already ran.",
	})

	// SessionDuration is the wall clock duration of finished sessions.
	SessionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "session_duration_seconds",
		Help:      "Wall clock duration of finished transfer sessions.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 16),
	}, []string{"role"})
)
