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

// Package quorum collects reputation-weighted attestations for critical
// events and decides acceptance within a bounded deadline (component C8).
package quorum

import (
	"math"
	"sync"
	"time"

	"github.com/x0tta6bl4-ai/x0mesh/internal/logger"
	"github.com/x0tta6bl4-ai/x0mesh/internal/meshtypes"
	"github.com/x0tta6bl4-ai/x0mesh/internal/metrics"
)

// DefaultQuorumWindowSlots and DefaultReputationQuorumThreshold are the
// defaults from spec.md §4.8.
const (
	DefaultQuorumWindowSlots        = 3
	DefaultReputationQuorumThreshold = 1.5
	MinAttestersSmallMesh           = 3
	SmallMeshActivePeerCeiling      = 4
)

// Decision is the terminal state of a solicitation.
type Decision int

const (
	DecisionPending Decision = iota
	DecisionAccepted
	DecisionTimedOut
)

func (d Decision) String() string {
	switch d {
	case DecisionAccepted:
		return "accepted"
	case DecisionTimedOut:
		return "timed_out"
	default:
		return "pending"
	}
}

// Attestation is one signed corroboration of a critical event.
type Attestation struct {
	Attester   meshtypes.NodeID
	Reputation float64
	ReceivedAt time.Time
}

// Solicitation tracks one in-flight QuorumAttest round for a critical
// event.
type Solicitation struct {
	EventID     string
	Deadline    time.Time
	attestation map[meshtypes.NodeID]Attestation
}

// Validator runs the Quorum Validator (C8).
type Validator struct {
	mu            sync.Mutex
	solicitations map[string]*Solicitation
	clock         func() time.Time
}

// New constructs a Validator. clock defaults to time.Now if nil.
func New(clock func() time.Time) *Validator {
	if clock == nil {
		clock = time.Now
	}
	return &Validator{
		solicitations: make(map[string]*Solicitation),
		clock:         clock,
	}
}

// RequiredAttesters computes Q = ceil(2/3 * |active_peers|), floored at
// MinAttestersSmallMesh when the active set is small, per spec.md §4.8.
func RequiredAttesters(activePeerCount int) int {
	if activePeerCount <= SmallMeshActivePeerCeiling {
		return MinAttestersSmallMesh
	}
	return int(math.Ceil(2.0 / 3.0 * float64(activePeerCount)))
}

// Open starts a new solicitation for a critical event with a deadline of
// now + quorumWindow.
func (v *Validator) Open(eventID string, quorumWindow time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.solicitations[eventID] = &Solicitation{
		EventID:     eventID,
		Deadline:    v.clock().Add(quorumWindow),
		attestation: make(map[meshtypes.NodeID]Attestation),
	}
}

// Attest records an attestation from a non-quarantined peer. Attestations
// from the same peer overwrite (last-seen-wins); quarantined attesters are
// expected to be filtered by the caller before this is invoked.
func (v *Validator) Attest(eventID string, attester meshtypes.NodeID, reputation float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.solicitations[eventID]
	if !ok {
		return
	}
	s.attestation[attester] = Attestation{
		Attester:   attester,
		Reputation: reputation,
		ReceivedAt: v.clock(),
	}
}

// Evaluate checks whether a solicitation currently satisfies quorum:
// ≥ requiredAttesters distinct attesters AND sum(reputation) ≥ threshold.
// Returns DecisionPending if the deadline has not passed and quorum is not
// yet met, DecisionAccepted if met, DecisionTimedOut if the deadline has
// passed without quorum (in which case the solicitation is dropped).
func (v *Validator) Evaluate(eventID string, requiredAttesters int, reputationThreshold float64) Decision {
	v.mu.Lock()
	defer v.mu.Unlock()

	s, ok := v.solicitations[eventID]
	if !ok {
		return DecisionTimedOut
	}

	count := len(s.attestation)
	var repSum float64
	for _, a := range s.attestation {
		repSum += a.Reputation
	}

	if count >= requiredAttesters && repSum >= reputationThreshold {
		delete(v.solicitations, eventID)
		metrics.QuorumAttestations.WithLabelValues("accepted").Add(float64(count))
		metrics.QuorumDecisions.WithLabelValues("accepted").Inc()
		return DecisionAccepted
	}

	if v.clock().After(s.Deadline) {
		delete(v.solicitations, eventID)
		metrics.QuorumAttestations.WithLabelValues("rejected").Add(float64(count))
		metrics.QuorumDecisions.WithLabelValues("timed_out").Inc()
		logger.Warn("quorum timed out",
			logger.String("event_id", eventID),
			logger.Int("attesters", count),
			logger.Float64("reputation_sum", repSum))
		return DecisionTimedOut
	}

	return DecisionPending
}

// Pending reports whether a solicitation is still open.
func (v *Validator) Pending(eventID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.solicitations[eventID]
	return ok
}
