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

// Package reputation maintains per-peer scalar reputation scores with
// exponential decay and an append-only event log (component C3).
package reputation

import (
	"sync"
	"time"

	"github.com/x0tta6bl4-ai/x0mesh/internal/meshtypes"
)

// EventKind enumerates reputation-affecting events and their deltas, per
// spec.md §4.3.
type EventKind string

const (
	EventValidBeacon             EventKind = "valid_beacon"
	EventValidHandshake          EventKind = "valid_handshake"
	EventInvalidSignature        EventKind = "invalid_signature"
	EventReplayDetected          EventKind = "replay_detected"
	EventMissedSlotsBeyondThresh EventKind = "missed_slots_beyond_threshold"
	EventByzantineEquivocation   EventKind = "byzantine_equivocation"
	EventRateLimitExceeded       EventKind = "rate_limit_exceeded"
)

var eventDeltas = map[EventKind]float64{
	EventValidBeacon:             0.01,
	EventValidHandshake:          0.05,
	EventInvalidSignature:        -0.2,
	EventReplayDetected:          -0.3,
	EventMissedSlotsBeyondThresh: -0.1,
	EventByzantineEquivocation:   -0.5,
	EventRateLimitExceeded:       -0.01,
}

const (
	// DefaultScore is assigned to a peer on first discovery.
	DefaultScore = 0.5
	// DecayTarget is the neutral value scores decay toward when idle.
	DecayTarget = 0.5
	// DecayPerHour is the exponential decay rate toward DecayTarget.
	DecayPerHour = 0.05
	// QuarantineThreshold is the default score below which a peer is quarantined.
	QuarantineThreshold = 0.2
	// RecoveryThreshold is not referenced by any state transition: the Peer
	// Table has no Quarantined→Active path, and Degraded peers recover at
	// peer.DegradedRecoveryReputation instead.
	RecoveryThreshold = 0.4
)

// Event is one append-only ledger entry.
type Event struct {
	Peer      meshtypes.NodeID
	Kind      EventKind
	Delta     float64
	Timestamp time.Time
	ScoreAfter float64
}

type peerEntry struct {
	score      float64
	lastUpdate time.Time
}

// Ledger tracks reputation scores for every known peer.
type Ledger struct {
	mu      sync.RWMutex
	clock   func() time.Time
	entries map[meshtypes.NodeID]*peerEntry
	events  []Event
}

// New constructs an empty Ledger. clock defaults to time.Now if nil, to
// allow deterministic tests to inject virtual time.
func New(clock func() time.Time) *Ledger {
	if clock == nil {
		clock = time.Now
	}
	return &Ledger{
		clock:   clock,
		entries: make(map[meshtypes.NodeID]*peerEntry),
	}
}

// Score returns the current score for a peer, applying decay lazily,
// registering the peer at DefaultScore if unseen.
func (l *Ledger) Score(peer meshtypes.NodeID) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.scoreLocked(peer)
}

func (l *Ledger) scoreLocked(peer meshtypes.NodeID) float64 {
	e, ok := l.entries[peer]
	if !ok {
		e = &peerEntry{score: DefaultScore, lastUpdate: l.clock()}
		l.entries[peer] = e
		return e.score
	}
	l.applyDecayLocked(e)
	return e.score
}

func (l *Ledger) applyDecayLocked(e *peerEntry) {
	now := l.clock()
	elapsed := now.Sub(e.lastUpdate).Hours()
	if elapsed <= 0 {
		return
	}
	// Exponential decay of the offset from the neutral target.
	offset := e.score - DecayTarget
	decayFactor := decayMultiplier(elapsed)
	e.score = DecayTarget + offset*decayFactor
	e.lastUpdate = now
}

func decayMultiplier(hours float64) float64 {
	// (1 - DecayPerHour)^hours, continuous-ish exponential decay.
	factor := 1.0
	base := 1.0 - DecayPerHour
	remaining := hours
	for remaining >= 1.0 {
		factor *= base
		remaining--
	}
	if remaining > 0 {
		factor *= 1.0 - DecayPerHour*remaining
	}
	return factor
}

// Record applies a reputation event, clamps the result to [0,1], appends
// to the event log, and returns the new score.
func (l *Ledger) Record(peer meshtypes.NodeID, kind EventKind) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	score := l.scoreLocked(peer)
	delta := eventDeltas[kind]
	score += delta
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	e := l.entries[peer]
	e.score = score
	e.lastUpdate = l.clock()

	l.events = append(l.events, Event{
		Peer:       peer,
		Kind:       kind,
		Delta:      delta,
		Timestamp:  e.lastUpdate,
		ScoreAfter: score,
	})
	return score
}

// IsQuarantined reports whether a peer's current score is below threshold.
func (l *Ledger) IsQuarantined(peer meshtypes.NodeID, threshold float64) bool {
	return l.Score(peer) < threshold
}

// Events returns a copy of the append-only event log.
func (l *Ledger) Events() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Snapshot returns a copy-on-read map of every tracked peer's score,
// suitable for handing to the Planner without exposing ledger internals.
func (l *Ledger) Snapshot() map[meshtypes.NodeID]float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[meshtypes.NodeID]float64, len(l.entries))
	for peer, e := range l.entries {
		l.applyDecayLocked(e)
		out[peer] = e.score
	}
	return out
}
