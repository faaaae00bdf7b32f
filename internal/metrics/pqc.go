// x0mesh - Post-Quantum Autonomic Mesh Node
// Copyright (C) 2026 x0tta6bl4-ai
//
// This file is part of x0mesh.
//
// x0mesh is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// x0mesh is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with x0mesh. If not, see <https://www.gnu.org/licenses/>.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HybridHandshakes counts hybrid PQC+classical handshakes by outcome.
	HybridHandshakes = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pqc",
			Name:      "handshakes_total",
			Help:      "Total hybrid ML-KEM/X25519 handshakes, by outcome",
		},
		[]string{"outcome"}, // success, failure, fallback
	)

	// KEMEncapsDuration tracks ML-KEM encapsulation latency.
	KEMEncapsDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pqc",
			Name:      "kem_duration_seconds",
			Help:      "Duration of ML-KEM encapsulate/decapsulate operations",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		},
		[]string{"op"}, // encapsulate, decapsulate
	)

	// AlgorithmUnavailable counts fallbacks triggered by a missing algorithm.
	AlgorithmUnavailable = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pqc",
			Name:      "algorithm_unavailable_total",
			Help:      "Times a requested PQC algorithm was unavailable",
		},
		[]string{"algorithm"},
	)

	// SessionsActive tracks live AEAD sessions.
	SessionsActive = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pqc",
			Name:      "sessions_active",
			Help:      "Number of active encrypted sessions",
		},
	)

	// SessionsExpired counts sessions retired by key rotation or teardown.
	SessionsExpired = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pqc",
			Name:      "sessions_expired_total",
			Help:      "Total sessions expired, by reason",
		},
		[]string{"reason"}, // rotation, teardown, key_loss
	)
)
