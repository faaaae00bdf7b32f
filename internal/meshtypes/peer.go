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

package meshtypes

import "time"

// PeerState is the Peer Table state machine's current state for a peer.
type PeerState int

const (
	PeerUnknown PeerState = iota
	PeerDiscovered
	PeerHandshaking
	PeerActive
	PeerDegraded
	PeerQuarantined
	PeerGone
)

func (s PeerState) String() string {
	switch s {
	case PeerUnknown:
		return "unknown"
	case PeerDiscovered:
		return "discovered"
	case PeerHandshaking:
		return "handshaking"
	case PeerActive:
		return "active"
	case PeerDegraded:
		return "degraded"
	case PeerQuarantined:
		return "quarantined"
	case PeerGone:
		return "gone"
	default:
		return "unknown"
	}
}

// Peer is a record of a known mesh neighbor, owned exclusively by the Peer
// Table and mutated only by the network plane task.
type Peer struct {
	ID            NodeID
	Addr          string
	State         PeerState
	LastSeenSlot  Slot
	DriftMS       int64
	Reputation    float64
	Session       *Session
	EpochSeen     Epoch
	SigningPubKey []byte

	ConsecutiveMissedBeacons int
	EnteredDegradedAt        time.Time
	EnteredQuarantinedAt     time.Time
	CleanTrafficSince        time.Time
}

// Clone returns a deep-enough copy suitable for snapshot reads by the
// control plane. Session is copied by value, so the copy's secret and nonce
// counters are detached from the original; the replay-window bitmap it
// points to is still shared.
func (p *Peer) Clone() *Peer {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Session != nil {
		sessCopy := *p.Session
		cp.Session = &sessCopy
	}
	return &cp
}
