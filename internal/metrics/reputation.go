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
	// ReputationScore tracks the current reputation score per peer.
	ReputationScore = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reputation",
			Name:      "score",
			Help:      "Current reputation score for a peer",
		},
		[]string{"peer_id"},
	)

	// ReputationTransitions counts peer state machine transitions.
	ReputationTransitions = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reputation",
			Name:      "transitions_total",
			Help:      "Peer state machine transitions, by from/to state",
		},
		[]string{"from", "to"},
	)

	// QuorumAttestations counts attestations received per quorum vote.
	QuorumAttestations = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quorum",
			Name:      "attestations_total",
			Help:      "Attestations received towards a quorum decision, by outcome",
		},
		[]string{"outcome"}, // accepted, rejected
	)

	// QuorumDecisions counts completed quorum votes by result.
	QuorumDecisions = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quorum",
			Name:      "decisions_total",
			Help:      "Completed quorum votes, by result",
		},
		[]string{"result"}, // accepted, timed_out
	)
)
