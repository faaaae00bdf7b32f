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

package pqc

import (
	"bytes"
	"testing"
)

func TestClassicalECDHAgreement(t *testing.T) {
	alice, err := GenerateClassicalKeypair()
	if err != nil {
		t.Fatalf("GenerateClassicalKeypair(alice): %v", err)
	}
	bob, err := GenerateClassicalKeypair()
	if err != nil {
		t.Fatalf("GenerateClassicalKeypair(bob): %v", err)
	}

	aliceSecret, err := ClassicalSharedSecret(alice, bob.Public)
	if err != nil {
		t.Fatalf("ClassicalSharedSecret(alice): %v", err)
	}
	bobSecret, err := ClassicalSharedSecret(bob, alice.Public)
	if err != nil {
		t.Fatalf("ClassicalSharedSecret(bob): %v", err)
	}

	if !bytes.Equal(aliceSecret, bobSecret) {
		t.Fatal("ECDH shared secrets diverge between parties")
	}
}

func TestCombineHybridSecretDeterministic(t *testing.T) {
	classical := bytes.Repeat([]byte{0x11}, 32)
	pq := bytes.Repeat([]byte{0x22}, 32)
	transcript := []byte("transcript-fixture")

	a, err := CombineHybridSecret(classical, pq, transcript)
	if err != nil {
		t.Fatalf("CombineHybridSecret: %v", err)
	}
	b, err := CombineHybridSecret(classical, pq, transcript)
	if err != nil {
		t.Fatalf("CombineHybridSecret: %v", err)
	}
	if a != b {
		t.Fatal("hybrid combiner must be deterministic for identical inputs")
	}
}

func TestCombineHybridSecretDiffersByTranscript(t *testing.T) {
	classical := bytes.Repeat([]byte{0x11}, 32)
	pq := bytes.Repeat([]byte{0x22}, 32)

	a, err := CombineHybridSecret(classical, pq, []byte("transcript-a"))
	if err != nil {
		t.Fatalf("CombineHybridSecret: %v", err)
	}
	b, err := CombineHybridSecret(classical, pq, []byte("transcript-b"))
	if err != nil {
		t.Fatalf("CombineHybridSecret: %v", err)
	}
	if a == b {
		t.Fatal("different transcripts must bind to different session secrets")
	}
}

func TestNewEngineRejectsMockAndProduction(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic for mutually exclusive allow_mock_pqc and production_mode")
		}
	}()
	NewEngine(DefaultKEMAlgorithm, DefaultSigAlgorithm, true, true)
}

func TestMockModeOnlyOutsideProduction(t *testing.T) {
	e := NewEngine(DefaultKEMAlgorithm, DefaultSigAlgorithm, true, false)
	if !e.MockMode() {
		t.Fatal("expected mock mode enabled")
	}

	e2 := NewEngine(DefaultKEMAlgorithm, DefaultSigAlgorithm, false, true)
	if e2.MockMode() {
		t.Fatal("mock mode must never be enabled in production")
	}
}
