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

// Package knowledge implements the Knowledge Recorder (component C13): a
// stateless API over a pluggable KnowledgeStore, tracking per
// (cause_class, action_type) outcome counts and serving Wilson-lower-bound
// best-action hints to the Planner.
package knowledge

import (
	"crypto/rand"
	"encoding/binary"
	"math"

	"github.com/x0tta6bl4-ai/x0mesh/internal/meshtypes"
)

// StableObservationCount is the number of observations per pair after
// which the Wilson estimate is considered stable, per spec.md §4.13.
const StableObservationCount = 30

// ExplorationRate is the ε in ε-greedy exploration.
const ExplorationRate = 0.1

// wilsonZ95 is the z-score for a 95% confidence interval, used in the
// Wilson score lower bound.
const wilsonZ95 = 1.96

// Stats is the per-(cause_class, action_type) outcome tally.
type Stats struct {
	NSuccess     int
	NPartial     int
	NIneffective int
	NDegradation int
}

// Observations is the total count backing this Stats.
func (s Stats) Observations() int {
	return s.NSuccess + s.NPartial + s.NIneffective + s.NDegradation
}

// Stable reports whether enough observations exist for the estimate to be
// considered converged.
func (s Stats) Stable() bool {
	return s.Observations() >= StableObservationCount
}

// successRate treats Partial as a half-credit outcome: it moved the
// system in the right direction without fully resolving it.
func (s Stats) successRate() float64 {
	n := s.Observations()
	if n == 0 {
		return 0
	}
	weighted := float64(s.NSuccess) + 0.5*float64(s.NPartial)
	return weighted / float64(n)
}

// wilsonLowerBound computes the Wilson score interval's lower bound for a
// success rate p observed over n trials, at ~95% confidence.
func wilsonLowerBound(p float64, n int) float64 {
	if n == 0 {
		return 0
	}
	nf := float64(n)
	z := wilsonZ95
	denom := 1 + z*z/nf
	center := p + z*z/(2*nf)
	margin := z * math.Sqrt(p*(1-p)/nf+z*z/(4*nf*nf))
	return (center - margin) / denom
}

// KnowledgeStore is the pluggable out-of-core backend, per spec.md §6.
type KnowledgeStore interface {
	Record(outcome meshtypes.PolicyOutcome, causeClass string, actionType meshtypes.ActionKind)
	Stats(causeClass string, actionType meshtypes.ActionKind) Stats
	ActionTypesFor(causeClass string) []meshtypes.ActionKind
}

// ExplorationChooser picks an exploration fallback action, injected so
// tests and production can control its source of randomness
// deterministically; it must not use math/rand directly per the
// corpus's crypto/rand-only convention.
type ExplorationChooser func(candidates []meshtypes.ActionKind) meshtypes.ActionKind

// Recorder is the Knowledge Recorder's in-process façade over a
// KnowledgeStore.
type Recorder struct {
	store   KnowledgeStore
	explore func() float64
	choose  ExplorationChooser
}

// New constructs a Recorder. explore defaults to a uniform [0,1) source
// if nil (tests should inject a deterministic one); choose defaults to
// picking the first candidate.
func New(store KnowledgeStore, explore func() float64, choose ExplorationChooser) *Recorder {
	if explore == nil {
		explore = defaultExplore
	}
	if choose == nil {
		choose = func(candidates []meshtypes.ActionKind) meshtypes.ActionKind {
			if len(candidates) == 0 {
				return ""
			}
			return candidates[0]
		}
	}
	return &Recorder{store: store, explore: explore, choose: choose}
}

// defaultExplore draws a uniform float in [0,1) from crypto/rand. If the
// system source fails it returns 1, which skips exploration for that call.
func defaultExplore() float64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 1
	}
	return float64(binary.BigEndian.Uint64(b[:])>>11) / (1 << 53)
}

// Record hands a completed PolicyOutcome to the store, tagged by the
// cause class (violation kind) it was remediating and the action type
// applied.
func (r *Recorder) Record(outcome meshtypes.PolicyOutcome, causeClass string, actionType meshtypes.ActionKind) {
	r.store.Record(outcome, causeClass, actionType)
}

// BestActionFor returns the action type with the highest Wilson
// lower-bound success rate among candidates for causeClass, with
// probability ExplorationRate (when there are at least two candidates)
// instead returning the chooser's pick from the full candidate list, per
// spec.md §4.13.
func (r *Recorder) BestActionFor(causeClass string, candidates []meshtypes.ActionKind) (meshtypes.ActionKind, bool) {
	if len(candidates) == 0 {
		return "", false
	}

	if r.explore() < ExplorationRate && len(candidates) > 1 {
		return r.choose(candidates), true
	}

	var best meshtypes.ActionKind
	bestScore := -1.0
	found := false
	for _, action := range candidates {
		stats := r.store.Stats(causeClass, action)
		score := wilsonLowerBound(stats.successRate(), stats.Observations())
		if !found || score > bestScore {
			best = action
			bestScore = score
			found = true
		}
	}
	return best, found
}

// SuccessRate implements planner.HistorySource: the raw (non-Wilson)
// success rate for a (cause_class, action_type) pair, used as the
// utility formula's history_success term.
func (r *Recorder) SuccessRate(causeClass string, action meshtypes.ActionKind) float64 {
	stats := r.store.Stats(causeClass, action)
	if stats.Observations() == 0 {
		return 0.5
	}
	return stats.successRate()
}
