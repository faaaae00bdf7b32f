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
	// GossipMessagesProcessed counts gossip messages processed by type.
	GossipMessagesProcessed = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gossip",
			Name:      "messages_processed_total",
			Help:      "Gossip messages processed, by message type",
		},
		[]string{"type"},
	)

	// GossipReplaysDetected counts messages rejected by the anti-replay window.
	GossipReplaysDetected = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gossip",
			Name:      "replays_detected_total",
			Help:      "Gossip messages rejected as replays",
		},
	)

	// GossipRateLimited counts messages dropped by the per-peer rate limiter.
	GossipRateLimited = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gossip",
			Name:      "rate_limited_total",
			Help:      "Gossip messages dropped by the per-peer rate limiter",
		},
		[]string{"peer_id"},
	)

	// GossipEpochMismatches counts messages rejected for epoch mismatch.
	GossipEpochMismatches = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gossip",
			Name:      "epoch_mismatches_total",
			Help:      "Gossip messages rejected for epoch mismatch",
		},
	)

	// GossipSignatureFailures counts messages rejected for bad signatures.
	GossipSignatureFailures = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gossip",
			Name:      "signature_failures_total",
			Help:      "Gossip messages rejected for invalid signatures",
		},
	)

	// GossipFanout tracks the number of peers a message was forwarded to.
	GossipFanout = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gossip",
			Name:      "fanout",
			Help:      "Number of peers a gossip message was forwarded to",
			Buckets:   prometheus.LinearBuckets(0, 2, 10),
		},
	)
)
