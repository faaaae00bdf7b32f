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

// Package meshtypes defines the shared data model of the mesh node: node
// identity, slots, peers, sessions, wire messages, telemetry, and the
// remediation vocabulary used by the autonomic control loop.
package meshtypes

import (
	"encoding/hex"
	"fmt"
)

// NodeID is an opaque 32-byte identifier derived from a node's long-lived
// signing public key. Stable across restarts.
type NodeID [32]byte

// String renders the NodeID as lowercase hex.
func (id NodeID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether id is the zero value (never a valid node).
func (id NodeID) IsZero() bool {
	return id == NodeID{}
}

// Less provides a total order over NodeIDs, used for tie-breaks in slot
// ownership and for canonical ordering of handshake transcripts.
func (id NodeID) Less(other NodeID) bool {
	for i := range id {
		if id[i] != other[i] {
			return id[i] < other[i]
		}
	}
	return false
}

// NodeIDFromHex parses a hex-encoded NodeID.
func NodeIDFromHex(s string) (NodeID, error) {
	var id NodeID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("meshtypes: invalid node id hex: %w", err)
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("meshtypes: node id must be %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

// Epoch is a monotonically increasing identity generation counter, bumped
// on each identity rotation.
type Epoch uint64

// Slot is a tick in the TDMA-like clock.
type Slot uint64
