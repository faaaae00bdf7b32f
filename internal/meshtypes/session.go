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
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// ReplayWindowSize is the width of the sliding anti-replay window, per
// spec: "recv_window (bitmap of last 1024 nonces)".
const ReplayWindowSize = 1024

// Session is the short-lived symmetric keying material and nonce state
// negotiated between two peers. Owned by the Peer that negotiated it;
// destroyed wholesale on rotation, peer loss, or explicit teardown.
type Session struct {
	SharedSecret [32]byte

	SendNonce uint64

	// recvHighWater is the highest nonce accepted so far; the bitmap tracks
	// acceptance for the ReplayWindowSize nonces below it.
	recvHighWater uint64
	recvWindow    *bitset.BitSet

	RotateAtSlot Slot
}

// NewSession constructs a Session with a fresh, empty anti-replay window.
func NewSession(sharedSecret [32]byte, rotateAtSlot Slot) *Session {
	return &Session{
		SharedSecret: sharedSecret,
		recvWindow:   bitset.New(ReplayWindowSize),
		RotateAtSlot: rotateAtSlot,
	}
}

// NextSendNonce increments and returns the next outbound nonce. Per
// invariant, send_nonce strictly increases and must never wrap; callers
// are expected to rotate before it can.
func (s *Session) NextSendNonce() (uint64, error) {
	if s.SendNonce == ^uint64(0) {
		return 0, fmt.Errorf("meshtypes: session send nonce exhausted, rotation overdue")
	}
	s.SendNonce++
	return s.SendNonce, nil
}

// AcceptNonce implements the anti-replay check: nonce must be strictly
// greater than the highest nonce accepted so far, or fall within the window
// below it with its bit still clear. On acceptance it marks the bit and slides the
// window forward if nonce extends the high-water mark.
func (s *Session) AcceptNonce(nonce uint64) bool {
	if nonce > s.recvHighWater || (s.recvHighWater == 0 && s.recvWindow.None()) {
		return s.acceptAdvancing(nonce)
	}

	lowerBound := uint64(0)
	if s.recvHighWater >= ReplayWindowSize {
		lowerBound = s.recvHighWater - ReplayWindowSize + 1
	}
	if nonce < lowerBound {
		return false
	}

	offset := uint(s.recvHighWater - nonce)
	if s.recvWindow.Test(offset) {
		return false
	}
	s.recvWindow.Set(offset)
	return true
}

func (s *Session) acceptAdvancing(nonce uint64) bool {
	shift := nonce - s.recvHighWater
	if shift > 0 {
		shifted := bitset.New(ReplayWindowSize)
		for i, e := s.recvWindow.NextSet(0); e; i, e = s.recvWindow.NextSet(i + 1) {
			newPos := i + uint(shift)
			if newPos < ReplayWindowSize {
				shifted.Set(newPos)
			}
		}
		s.recvWindow = shifted
		s.recvHighWater = nonce
	}
	s.recvWindow.Set(0)
	return true
}

// NeedsRotation reports whether currentSlot has reached or passed the slot
// this session was scheduled to rotate at. Callers are expected to tear the
// session down and renegotiate a fresh one strictly before send_nonce can
// wrap; the rotation slot is chosen with enough headroom under normal
// traffic rates that this never races the overflow check in NextSendNonce.
func (s *Session) NeedsRotation(currentSlot Slot) bool {
	return currentSlot >= s.RotateAtSlot
}

// Zeroize overwrites the shared secret in place, used on teardown and
// identity grace-period expiry.
func (s *Session) Zeroize() {
	for i := range s.SharedSecret {
		s.SharedSecret[i] = 0
	}
}
