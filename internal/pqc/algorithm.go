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

// Package pqc provides the node's hybrid post-quantum + classical key
// encapsulation and signature engine.
package pqc

import (
	"sync"

	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/mlkem/mlkem1024"
	"github.com/cloudflare/circl/kem/mlkem/mlkem512"
	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
	"github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/dilithium/mode2"
	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"github.com/cloudflare/circl/sign/dilithium/mode5"
)

// KEMAlgorithm names the key encapsulation security level.
type KEMAlgorithm string

const (
	KEML1 KEMAlgorithm = "KEM-L1"
	KEML3 KEMAlgorithm = "KEM-L3"
	KEML5 KEMAlgorithm = "KEM-L5"
)

// SigAlgorithm names the signature security level.
type SigAlgorithm string

const (
	SIGL2 SigAlgorithm = "SIG-L2"
	SIGL3 SigAlgorithm = "SIG-L3"
	SIGL5 SigAlgorithm = "SIG-L5"
)

// DefaultKEMAlgorithm and DefaultSigAlgorithm are L3 per spec.md §4.1.
const (
	DefaultKEMAlgorithm = KEML3
	DefaultSigAlgorithm = SIGL3
)

var (
	kemRegistry = map[KEMAlgorithm]kem.Scheme{
		KEML1: mlkem512.Scheme(),
		KEML3: mlkem768.Scheme(),
		KEML5: mlkem1024.Scheme(),
	}

	sigRegistry = map[SigAlgorithm]sign.Scheme{
		SIGL2: mode2.Scheme(),
		SIGL3: mode3.Scheme(),
		SIGL5: mode5.Scheme(),
	}

	registryMu sync.RWMutex
)

// KEMScheme resolves the circl KEM scheme for an algorithm name. Returns
// false if the backend library does not provide it (AlgorithmUnavailable).
func KEMScheme(alg KEMAlgorithm) (kem.Scheme, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	s, ok := kemRegistry[alg]
	return s, ok
}

// SigScheme resolves the circl signature scheme for an algorithm name.
func SigScheme(alg SigAlgorithm) (sign.Scheme, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	s, ok := sigRegistry[alg]
	return s, ok
}
