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

// Package peer owns the Peer Table: the set of known mesh neighbors and
// their state machine transitions (component C5). Mutated only by the
// network plane task; the control plane reads via Snapshot.
package peer

import (
	"sync"
	"time"

	"github.com/x0tta6bl4-ai/x0mesh/internal/logger"
	"github.com/x0tta6bl4-ai/x0mesh/internal/meshtypes"
	"github.com/x0tta6bl4-ai/x0mesh/internal/metrics"
)

// DegradedMissedBeaconThreshold and GoneMissedSlotThreshold are the
// consecutive-miss thresholds from the state machine in spec.md §4.5.
const (
	DegradedMissedBeaconThreshold = 3
	GoneMissedSlotThreshold       = 10
	DegradedRecoveryReputation    = 0.5
	DegradedReputationLowerBound  = 0.2
	DegradedReputationUpperBound  = 0.4
	CleanTrafficRecoveryWindow    = 60 * time.Second
)

// Table is the set of known peers, keyed by NodeID.
type Table struct {
	mu    sync.RWMutex
	peers map[meshtypes.NodeID]*meshtypes.Peer
	clock func() time.Time
}

// New constructs an empty Table. clock defaults to time.Now if nil.
func New(clock func() time.Time) *Table {
	if clock == nil {
		clock = time.Now
	}
	return &Table{
		peers: make(map[meshtypes.NodeID]*meshtypes.Peer),
		clock: clock,
	}
}

// Get returns a clone of the peer record, or nil if unknown.
func (t *Table) Get(id meshtypes.NodeID) *meshtypes.Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.peers[id]
	if !ok {
		return nil
	}
	return p.Clone()
}

// SigningPubKey returns the peer's known long-lived signing public key, for
// the Gossip layer's inbound signature verification. Implements
// gossip.PeerLookup.
func (t *Table) SigningPubKey(id meshtypes.NodeID) ([]byte, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.peers[id]
	if !ok || p.SigningPubKey == nil {
		return nil, false
	}
	return p.SigningPubKey, true
}

// RecordedEpoch returns the epoch the Peer Table last observed for a peer.
// Implements gossip.PeerLookup.
func (t *Table) RecordedEpoch(id meshtypes.NodeID) (meshtypes.Epoch, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.peers[id]
	if !ok {
		return 0, false
	}
	return p.EpochSeen, true
}

// Session returns the peer's negotiated session, if any. Implements
// gossip.PeerLookup.
func (t *Table) Session(id meshtypes.NodeID) (*meshtypes.Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.peers[id]
	if !ok || p.Session == nil {
		return nil, false
	}
	return p.Session, true
}

// SetSigningPubKey records a peer's long-lived signing public key, learned
// during the handshake Init message.
func (t *Table) SetSigningPubKey(id meshtypes.NodeID, pub []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.peers[id]; ok {
		p.SigningPubKey = pub
	}
}

// OnValidBeacon transitions Unknown→Discovered on first valid beacon and
// refreshes LastSeenSlot/DriftMS for already-known peers.
func (t *Table) OnValidBeacon(id meshtypes.NodeID, addr string, slot meshtypes.Slot, driftMS int64, epoch meshtypes.Epoch) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.peers[id]
	if !ok {
		p = &meshtypes.Peer{
			ID:         id,
			Addr:       addr,
			State:      meshtypes.PeerDiscovered,
			Reputation: 0.5,
		}
		t.peers[id] = p
		t.transition(p, meshtypes.PeerUnknown, meshtypes.PeerDiscovered)
	}
	p.LastSeenSlot = slot
	p.DriftMS = driftMS
	p.EpochSeen = epoch
	p.ConsecutiveMissedBeacons = 0
}

// BeginHandshake transitions a Discovered peer to Handshaking.
func (t *Table) BeginHandshake(id meshtypes.NodeID) bool {
	return t.transitionIf(id, meshtypes.PeerDiscovered, meshtypes.PeerHandshaking)
}

// CompleteHandshake transitions a Handshaking peer to Active and installs
// the negotiated session.
func (t *Table) CompleteHandshake(id meshtypes.NodeID, session *meshtypes.Session) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[id]
	if !ok || p.State != meshtypes.PeerHandshaking {
		return false
	}
	p.Session = session
	p.CleanTrafficSince = t.clock()
	t.transition(p, meshtypes.PeerHandshaking, meshtypes.PeerActive)
	return true
}

// AbortHandshake reverts a Handshaking peer back to Discovered (timeout or
// signature/MAC failure), per spec.md §4.6.
func (t *Table) AbortHandshake(id meshtypes.NodeID) bool {
	return t.transitionIf(id, meshtypes.PeerHandshaking, meshtypes.PeerDiscovered)
}

// RecordMissedBeacon increments the miss counter and applies Active→Degraded
// or Degraded→Gone transitions per the threshold table.
func (t *Table) RecordMissedBeacon(id meshtypes.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[id]
	if !ok {
		return
	}
	p.ConsecutiveMissedBeacons++

	switch p.State {
	case meshtypes.PeerActive:
		if p.ConsecutiveMissedBeacons >= DegradedMissedBeaconThreshold {
			p.EnteredDegradedAt = t.clock()
			p.CleanTrafficSince = time.Time{}
			t.transition(p, meshtypes.PeerActive, meshtypes.PeerDegraded)
		}
	case meshtypes.PeerDegraded:
		if p.ConsecutiveMissedBeacons >= GoneMissedSlotThreshold {
			t.transition(p, meshtypes.PeerDegraded, meshtypes.PeerGone)
		}
	}
}

// UpdateReputation applies a fresh reputation score and drives the
// reputation-triggered parts of the state machine: quarantine, recovery,
// and degraded-by-low-reputation.
func (t *Table) UpdateReputation(id meshtypes.NodeID, score float64, quarantineThreshold float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[id]
	if !ok {
		return
	}
	p.Reputation = score

	switch p.State {
	case meshtypes.PeerActive:
		if score < quarantineThreshold {
			p.EnteredQuarantinedAt = t.clock()
			t.transition(p, meshtypes.PeerActive, meshtypes.PeerQuarantined)
			return
		}
		if score >= DegradedReputationLowerBound && score <= DegradedReputationUpperBound {
			p.EnteredDegradedAt = t.clock()
			p.CleanTrafficSince = time.Time{}
			t.transition(p, meshtypes.PeerActive, meshtypes.PeerDegraded)
		}
	case meshtypes.PeerDegraded:
		if score < quarantineThreshold {
			p.EnteredQuarantinedAt = t.clock()
			t.transition(p, meshtypes.PeerDegraded, meshtypes.PeerQuarantined)
			return
		}
		if score >= DegradedRecoveryReputation {
			if p.CleanTrafficSince.IsZero() {
				p.CleanTrafficSince = t.clock()
			}
			if t.clock().Sub(p.CleanTrafficSince) >= CleanTrafficRecoveryWindow {
				t.transition(p, meshtypes.PeerDegraded, meshtypes.PeerActive)
			}
		} else {
			p.CleanTrafficSince = time.Time{}
		}
	}
}

// Quarantine forces a peer directly to Quarantined, used for
// quorum-attested malicious behavior.
func (t *Table) Quarantine(id meshtypes.NodeID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[id]
	if !ok {
		return false
	}
	if p.State != meshtypes.PeerActive && p.State != meshtypes.PeerDegraded {
		return false
	}
	from := p.State
	p.EnteredQuarantinedAt = t.clock()
	t.transition(p, from, meshtypes.PeerQuarantined)
	return true
}

// ExpireQuarantines transitions Quarantined peers to Gone after quarantineTTL.
func (t *Table) ExpireQuarantines(quarantineTTL time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock()
	for _, p := range t.peers {
		if p.State == meshtypes.PeerQuarantined && now.Sub(p.EnteredQuarantinedAt) >= quarantineTTL {
			t.transition(p, meshtypes.PeerQuarantined, meshtypes.PeerGone)
		}
	}
}

// PeersNeedingRotation returns the Active peers whose negotiated session has
// reached its scheduled rotation slot. Callers force these peers back to
// Discovered via ForceRotation and re-handshake, well ahead of send_nonce
// overflow.
func (t *Table) PeersNeedingRotation(currentSlot meshtypes.Slot) []meshtypes.NodeID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []meshtypes.NodeID
	for id, p := range t.peers {
		if p.State == meshtypes.PeerActive && p.Session != nil && p.Session.NeedsRotation(currentSlot) {
			out = append(out, id)
		}
	}
	return out
}

// ForceRotation tears down an Active peer's session and reverts it to
// Discovered so a fresh handshake can negotiate a new one.
func (t *Table) ForceRotation(id meshtypes.NodeID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[id]
	if !ok || p.State != meshtypes.PeerActive {
		return false
	}
	if p.Session != nil {
		p.Session.Zeroize()
		p.Session = nil
	}
	t.transition(p, meshtypes.PeerActive, meshtypes.PeerDiscovered)
	return true
}

// RemoveGone deletes peers that have been Gone for at least gracePeriod.
func (t *Table) RemoveGone(gracePeriod time.Duration, goneSince map[meshtypes.NodeID]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock()
	for id, p := range t.peers {
		if p.State != meshtypes.PeerGone {
			continue
		}
		since, ok := goneSince[id]
		if ok && now.Sub(since) >= gracePeriod {
			delete(t.peers, id)
		}
	}
}

// Snapshot returns a copy-on-read map of every known peer, safe for the
// control plane to read without synchronizing with the network plane.
func (t *Table) Snapshot() map[meshtypes.NodeID]*meshtypes.Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[meshtypes.NodeID]*meshtypes.Peer, len(t.peers))
	for id, p := range t.peers {
		out[id] = p.Clone()
	}
	return out
}

// ActivePeerIDs returns the ids of peers currently in the Active state; the
// core uses its length to size the Quorum Validator's required attesters.
func (t *Table) ActivePeerIDs() []meshtypes.NodeID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]meshtypes.NodeID, 0, len(t.peers))
	for id, p := range t.peers {
		if p.State == meshtypes.PeerActive {
			out = append(out, id)
		}
	}
	return out
}

func (t *Table) transitionIf(id meshtypes.NodeID, from, to meshtypes.PeerState) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[id]
	if !ok || p.State != from {
		return false
	}
	t.transition(p, from, to)
	return true
}

// transition must be called with t.mu held.
func (t *Table) transition(p *meshtypes.Peer, from, to meshtypes.PeerState) {
	p.State = to
	metrics.ReputationTransitions.WithLabelValues(from.String(), to.String()).Inc()
	logger.Info("peer state transition",
		logger.String("peer_id", p.ID.String()),
		logger.String("from", from.String()),
		logger.String("to", to.String()))
}
