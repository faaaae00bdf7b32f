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
	"crypto/rand"
	"fmt"

	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/sign"

	"github.com/x0tta6bl4-ai/x0mesh/internal/logger"
)

// KEMKeyPair is a generated encapsulation keypair for one algorithm.
type KEMKeyPair struct {
	Algorithm  KEMAlgorithm
	PublicKey  kem.PublicKey
	PrivateKey kem.PrivateKey
}

// SigKeyPair is a generated signature keypair for one algorithm.
type SigKeyPair struct {
	Algorithm  SigAlgorithm
	PublicKey  sign.PublicKey
	PrivateKey sign.PrivateKey
}

// Engine is the node's PQC engine (C1): polymorphic over KEM and signature
// algorithm sets, with hybrid classical+PQ key agreement. The allow_mock_pqc
// flag is recorded and reported by MockMode, but there is no mock backend:
// every operation uses the real circl schemes whether or not it is set.
type Engine struct {
	kemAlgorithm KEMAlgorithm
	sigAlgorithm SigAlgorithm

	allowMockPQC   bool
	productionMode bool
}

// NewEngine constructs a PQC engine. It enforces at construction time that
// allow_mock_pqc and production_mode are mutually exclusive (spec.md §4.1);
// violation is a programming error, not a runtime condition, so it panics.
func NewEngine(kemAlg KEMAlgorithm, sigAlg SigAlgorithm, allowMockPQC, productionMode bool) *Engine {
	if allowMockPQC && productionMode {
		panic("pqc: allow_mock_pqc and production_mode are mutually exclusive")
	}
	return &Engine{
		kemAlgorithm:   kemAlg,
		sigAlgorithm:   sigAlg,
		allowMockPQC:   allowMockPQC,
		productionMode: productionMode,
	}
}

// GenerateKEMKeypair creates a fresh KEM keypair for the engine's configured
// algorithm. Returns AlgorithmUnavailable if the backend is missing; in
// production mode the engine itself logs a fatal error and exits the process
// instead of returning.
func (e *Engine) GenerateKEMKeypair() (*KEMKeyPair, error) {
	scheme, ok := KEMScheme(e.kemAlgorithm)
	if !ok {
		return nil, e.unavailable(string(e.kemAlgorithm))
	}
	pub, priv, err := scheme.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("pqc: generate kem keypair: %w", err)
	}
	return &KEMKeyPair{Algorithm: e.kemAlgorithm, PublicKey: pub, PrivateKey: priv}, nil
}

// Encapsulate derives a fresh shared secret against a peer's KEM public key.
func (e *Engine) Encapsulate(peerPublic kem.PublicKey) (ciphertext, sharedSecret []byte, err error) {
	scheme, ok := KEMScheme(e.kemAlgorithm)
	if !ok {
		return nil, nil, e.unavailable(string(e.kemAlgorithm))
	}
	ct, ss, err := scheme.Encapsulate(peerPublic)
	if err != nil {
		return nil, nil, fmt.Errorf("pqc: encapsulate: %w", err)
	}
	return ct, ss, nil
}

// Decapsulate recovers the shared secret from a ciphertext using our
// private key.
func (e *Engine) Decapsulate(priv kem.PrivateKey, ciphertext []byte) ([]byte, error) {
	scheme, ok := KEMScheme(e.kemAlgorithm)
	if !ok {
		return nil, e.unavailable(string(e.kemAlgorithm))
	}
	ss, err := scheme.Decapsulate(priv, ciphertext)
	if err != nil {
		return nil, logger.NewMeshError(logger.ErrCodeInvalidCiphertext, "decapsulation failed", err)
	}
	return ss, nil
}

// GenerateSigKeypair creates a fresh signature keypair for the engine's
// configured signature algorithm.
func (e *Engine) GenerateSigKeypair() (*SigKeyPair, error) {
	scheme, ok := SigScheme(e.sigAlgorithm)
	if !ok {
		return nil, e.unavailable(string(e.sigAlgorithm))
	}
	pub, priv, err := scheme.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("pqc: generate sig keypair: %w", err)
	}
	return &SigKeyPair{Algorithm: e.sigAlgorithm, PublicKey: pub, PrivateKey: priv}, nil
}

// Sign signs msg with priv using the engine's signature algorithm.
func (e *Engine) Sign(priv sign.PrivateKey, msg []byte) ([]byte, error) {
	scheme, ok := SigScheme(e.sigAlgorithm)
	if !ok {
		return nil, e.unavailable(string(e.sigAlgorithm))
	}
	return scheme.Sign(priv, msg, nil), nil
}

// Verify checks sig over msg against pub.
func (e *Engine) Verify(pub sign.PublicKey, msg, sig []byte) bool {
	scheme, ok := SigScheme(e.sigAlgorithm)
	if !ok {
		return false
	}
	return scheme.Verify(pub, msg, sig, nil)
}

func (e *Engine) unavailable(algorithm string) error {
	err := logger.NewMeshError(logger.ErrCodeAlgorithmUnavailable, "pqc backend unavailable", nil).
		WithDetails("algorithm", algorithm)
	if e.productionMode {
		logger.Fatal("pqc algorithm unavailable in production mode", logger.String("algorithm", algorithm))
	}
	return err
}

// MockMode reports whether allow_mock_pqc is set on this engine (only ever
// true outside production). It does not switch any operation to a mock
// backend.
func (e *Engine) MockMode() bool { return e.allowMockPQC && !e.productionMode }
