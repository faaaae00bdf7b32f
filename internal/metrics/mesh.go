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

// Package metrics exposes Prometheus instrumentation for every concern of
// the mesh node, one file per subsystem.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "x0mesh"

// Registry is the Prometheus registry all collectors in this package attach to.
var Registry = prometheus.NewRegistry()

var (
	// PeersKnown tracks the peer table size by state.
	PeersKnown = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "peers",
			Name:      "known",
			Help:      "Number of peers currently tracked, by peer state",
		},
		[]string{"state"}, // unknown, discovered, handshaking, active, degraded, quarantined, gone
	)

	// BeaconsSent counts beacon messages transmitted per slot.
	BeaconsSent = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "beacon",
			Name:      "sent_total",
			Help:      "Total beacon messages transmitted",
		},
		[]string{"node_id"},
	)

	// BeaconsReceived counts beacon messages received from neighbors.
	BeaconsReceived = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "beacon",
			Name:      "received_total",
			Help:      "Total beacon messages received from neighbors",
		},
		[]string{"peer_id"},
	)

	// SlotDriftSeconds tracks corrected slot clock drift magnitude.
	SlotDriftSeconds = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "beacon",
			Name:      "slot_drift_seconds",
			Help:      "Magnitude of slot clock drift correction applied",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		},
	)

	// LinksAffected tracks the number of links affected by the most recent
	// remediation action, labeled per peer.
	LinksAffected = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mesh",
			Name:      "links_affected",
			Help:      "Links affected by the most recent remediation action, per peer",
		},
		[]string{"peer_id", "action"},
	)
)
