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
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// HybridLabel is the domain-separation label for the hybrid key
// combiner, per spec.md §4.1.
const HybridLabel = "x0-hybrid-v1"

// ClassicalKeyPair is the classical ECDH (X25519) side of the hybrid
// handshake.
type ClassicalKeyPair struct {
	Private *ecdh.PrivateKey
	Public  *ecdh.PublicKey
}

// GenerateClassicalKeypair creates a fresh X25519 keypair.
func GenerateClassicalKeypair() (*ClassicalKeyPair, error) {
	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("pqc: generate classical keypair: %w", err)
	}
	return &ClassicalKeyPair{Private: priv, Public: priv.PublicKey()}, nil
}

// ClassicalSharedSecret computes ECDH(ours.Private, theirs) over X25519.
func ClassicalSharedSecret(ours *ClassicalKeyPair, theirs *ecdh.PublicKey) ([]byte, error) {
	secret, err := ours.Private.ECDH(theirs)
	if err != nil {
		return nil, fmt.Errorf("pqc: classical ecdh: %w", err)
	}
	return secret, nil
}

// CombineHybridSecret derives the session secret from a classical ECDH
// shared secret and a post-quantum KEM shared secret via HKDF-SHA256 with
// domain separation, binding in the handshake transcript as HKDF info.
func CombineHybridSecret(classicalSecret, pqSecret, transcript []byte) ([32]byte, error) {
	var out [32]byte

	ikm := make([]byte, 0, len(classicalSecret)+len(pqSecret))
	ikm = append(ikm, classicalSecret...)
	ikm = append(ikm, pqSecret...)

	info := make([]byte, 0, len(HybridLabel)+len(transcript))
	info = append(info, []byte(HybridLabel)...)
	info = append(info, transcript...)

	reader := hkdf.New(sha256.New, ikm, nil, info)
	if _, err := io.ReadFull(reader, out[:]); err != nil {
		return out, fmt.Errorf("pqc: hkdf hybrid combine: %w", err)
	}
	return out, nil
}
