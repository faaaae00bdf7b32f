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

import (
	"sort"

	"golang.org/x/crypto/blake2b"
)

// MessageKind identifies the wire frame kind byte.
type MessageKind byte

const (
	KindBeacon          MessageKind = 0x01
	KindHandshakeInit    MessageKind = 0x02
	KindHandshakeResp    MessageKind = 0x03
	KindHandshakeFinish  MessageKind = 0x04
	KindGossip           MessageKind = 0x05
	KindQuorumAttest     MessageKind = 0x06
	KindRevoke           MessageKind = 0x07
	KindDataApp          MessageKind = 0x08
)

func (k MessageKind) String() string {
	switch k {
	case KindBeacon:
		return "Beacon"
	case KindHandshakeInit:
		return "HandshakeInit"
	case KindHandshakeResp:
		return "HandshakeResp"
	case KindHandshakeFinish:
		return "HandshakeFinish"
	case KindGossip:
		return "Gossip"
	case KindQuorumAttest:
		return "QuorumAttest"
	case KindRevoke:
		return "Revoke"
	case KindDataApp:
		return "DataApp"
	default:
		return "Unknown"
	}
}

// BeaconMessage is the periodic signed slot announcement.
type BeaconMessage struct {
	Sender         NodeID
	Epoch          Epoch
	Slot           Slot
	NeighborDigest [32]byte // BLAKE2b-256 of sorted neighbor NodeIDs
	Signature      []byte
}

// ControlMessage is the generic signed gossip envelope.
type ControlMessage struct {
	Sender    NodeID
	Epoch     Epoch
	Nonce     uint64
	Kind      MessageKind
	Payload   []byte
	Signature []byte
}

// FrameVersion is the wire format version byte.
const FrameVersion byte = 1

// FrameHeaderSize is the fixed-size prefix before sender/epoch/nonce/payload/sig.
const FrameHeaderSize = 4 // 1 version + 1 kind + 2 reserved

// NeighborDigest computes the BLAKE2b-256 digest of a sorted neighbor set,
// used to populate BeaconMessage.NeighborDigest per spec.md §3. Callers may
// pass peers in any order; the digest is computed over a stable sort.
func NeighborDigest(peers []NodeID) [32]byte {
	sorted := append([]NodeID(nil), peers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only errors on an invalid key length, and we pass
		// none; this path is unreachable.
		panic("meshtypes: blake2b.New256 init failed: " + err.Error())
	}
	for _, id := range sorted {
		h.Write(id[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
