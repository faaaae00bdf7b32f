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

import "testing"

func TestSessionAcceptNonceMonotonic(t *testing.T) {
	s := NewSession([32]byte{1}, 100)

	for i := uint64(0); i < 10; i++ {
		if !s.AcceptNonce(i) {
			t.Fatalf("expected nonce %d to be accepted", i)
		}
	}

	if s.AcceptNonce(5) {
		t.Fatal("replayed nonce 5 must be rejected")
	}
}

func TestSessionAcceptNonceOutOfOrderWithinWindow(t *testing.T) {
	s := NewSession([32]byte{1}, 100)

	if !s.AcceptNonce(10) {
		t.Fatal("expected nonce 10 to be accepted")
	}
	if !s.AcceptNonce(8) {
		t.Fatal("expected out-of-order nonce 8 within window to be accepted")
	}
	if s.AcceptNonce(8) {
		t.Fatal("replayed nonce 8 must be rejected")
	}
}

func TestSessionAcceptNonceOutsideWindowRejected(t *testing.T) {
	s := NewSession([32]byte{1}, 100)

	if !s.AcceptNonce(ReplayWindowSize * 2) {
		t.Fatal("expected high nonce to be accepted")
	}
	if s.AcceptNonce(0) {
		t.Fatal("nonce far below the window lower bound must be rejected")
	}
}

func TestSessionNextSendNonceStrictlyIncreases(t *testing.T) {
	s := NewSession([32]byte{1}, 100)

	prev := s.SendNonce
	for i := 0; i < 5; i++ {
		n, err := s.NextSendNonce()
		if err != nil {
			t.Fatalf("NextSendNonce: %v", err)
		}
		if n <= prev {
			t.Fatalf("send nonce did not increase: prev=%d next=%d", prev, n)
		}
		prev = n
	}
}

func TestSessionNeedsRotationAtScheduledSlot(t *testing.T) {
	s := NewSession([32]byte{1}, 100)

	if s.NeedsRotation(99) {
		t.Fatal("session must not need rotation before its scheduled slot")
	}
	if !s.NeedsRotation(100) {
		t.Fatal("session must need rotation at its scheduled slot")
	}
	if !s.NeedsRotation(150) {
		t.Fatal("session must still need rotation past its scheduled slot")
	}
}

func TestNodeIDLessTotalOrder(t *testing.T) {
	a := NodeID{1}
	b := NodeID{2}
	if !a.Less(b) {
		t.Fatal("expected a < b")
	}
	if b.Less(a) {
		t.Fatal("expected b not less than a")
	}
	if a.Less(a) {
		t.Fatal("a must not be less than itself")
	}
}
