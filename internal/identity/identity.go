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

// Package identity owns the node's long-lived signing identity and
// short-lived session KEM keypairs, and drives rotation on schedule
// (component C2).
package identity

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/cloudflare/circl/sign"

	"github.com/x0tta6bl4-ai/x0mesh/internal/logger"
	"github.com/x0tta6bl4-ai/x0mesh/internal/meshtypes"
	"github.com/x0tta6bl4-ai/x0mesh/internal/pqc"
)

// MaxNonceBeforeRotation forces rotation once a session's send_nonce usage
// crosses this bound, per spec.md §4.2.
const MaxNonceBeforeRotation = 1 << 60

// DefaultRotationInterval and DefaultGracePeriod are spec.md §4.2 defaults.
const (
	DefaultRotationInterval = 24 * time.Hour
	DefaultGracePeriod      = 10 * time.Minute
)

// EpochChangeFunc is invoked whenever the identity's epoch advances.
type EpochChangeFunc func(newEpoch meshtypes.Epoch)

// Identity is the node's current signing keypair, session KEM keypair, and
// rotation bookkeeping.
type Identity struct {
	mu sync.RWMutex

	nodeID meshtypes.NodeID
	epoch  meshtypes.Epoch

	sigKeyPair *pqc.SigKeyPair
	kemKeyPair *pqc.KEMKeyPair

	previousSig *pqc.SigKeyPair
	graceUntil  time.Time
	gracePeriod time.Duration

	rotationInterval time.Duration
	lastRotatedAt    time.Time
	rotating         bool

	engine    *pqc.Engine
	callbacks []EpochChangeFunc
}

// New constructs an Identity by generating a fresh signing and KEM keypair.
func New(engine *pqc.Engine, rotationInterval, gracePeriod time.Duration) (*Identity, error) {
	sigKP, err := engine.GenerateSigKeypair()
	if err != nil {
		return nil, fmt.Errorf("identity: generate signing keypair: %w", err)
	}
	kemKP, err := engine.GenerateKEMKeypair()
	if err != nil {
		return nil, fmt.Errorf("identity: generate kem keypair: %w", err)
	}

	id := &Identity{
		nodeID:           nodeIDFromSigningKey(sigKP.PublicKey),
		epoch:            0,
		sigKeyPair:       sigKP,
		kemKeyPair:       kemKP,
		rotationInterval: rotationInterval,
		gracePeriod:      gracePeriod,
		lastRotatedAt:    time.Now(),
		engine:           engine,
	}
	return id, nil
}

// nodeIDFromSigningKey derives a NodeId as SHA-256 of the marshaled public
// key, truncated/expanded to 32 bytes (SHA-256 output is already 32 bytes).
func nodeIDFromSigningKey(pub sign.PublicKey) meshtypes.NodeID {
	raw, _ := pub.MarshalBinary()
	return sha256.Sum256(raw)
}

// CurrentIdentity returns the node id, current epoch, and current public
// keys under a read lock.
func (id *Identity) CurrentIdentity() (meshtypes.NodeID, meshtypes.Epoch, *pqc.SigKeyPair, *pqc.KEMKeyPair) {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.nodeID, id.epoch, id.sigKeyPair, id.kemKeyPair
}

// OnEpochChange registers a callback invoked after every successful rotation.
func (id *Identity) OnEpochChange(fn EpochChangeFunc) {
	id.mu.Lock()
	defer id.mu.Unlock()
	id.callbacks = append(id.callbacks, fn)
}

// ShouldRotate reports whether rotation is due: interval elapsed or a
// session's nonce usage exceeded the safety threshold.
func (id *Identity) ShouldRotate(highestSessionNonce uint64) bool {
	id.mu.RLock()
	defer id.mu.RUnlock()
	if time.Since(id.lastRotatedAt) >= id.rotationInterval {
		return true
	}
	return highestSessionNonce >= MaxNonceBeforeRotation
}

// Rotate generates new signing and KEM keypairs, bumps the epoch, keeps the
// previous signing keypair valid for gracePeriod to validate in-flight
// messages, and notifies registered callbacks. Idempotent within an epoch:
// concurrent calls while a rotation is in flight are no-ops.
func (id *Identity) Rotate() error {
	id.mu.Lock()
	if id.rotating {
		id.mu.Unlock()
		return nil
	}
	id.rotating = true
	id.mu.Unlock()

	defer func() {
		id.mu.Lock()
		id.rotating = false
		id.mu.Unlock()
	}()

	newSig, err := id.engine.GenerateSigKeypair()
	if err != nil {
		return fmt.Errorf("identity: rotate signing keypair: %w", err)
	}
	newKEM, err := id.engine.GenerateKEMKeypair()
	if err != nil {
		return fmt.Errorf("identity: rotate kem keypair: %w", err)
	}

	id.mu.Lock()
	id.previousSig = id.sigKeyPair
	id.graceUntil = time.Now().Add(id.gracePeriod)
	id.sigKeyPair = newSig
	id.kemKeyPair = newKEM
	id.nodeID = nodeIDFromSigningKey(newSig.PublicKey)
	id.epoch++
	newEpoch := id.epoch
	id.lastRotatedAt = time.Now()
	callbacks := append([]EpochChangeFunc(nil), id.callbacks...)
	id.mu.Unlock()

	logger.Info("identity rotated", logger.String("node_id", id.nodeID.String()), logger.Int64("epoch", int64(newEpoch)))

	for _, cb := range callbacks {
		cb(newEpoch)
	}
	return nil
}

// ValidatePreviousEpoch reports whether a signature produced under the
// previous signing key is still acceptable (within the grace period).
func (id *Identity) ValidatePreviousEpoch(msg, sig []byte) bool {
	id.mu.RLock()
	prev := id.previousSig
	graceUntil := id.graceUntil
	engine := id.engine
	id.mu.RUnlock()

	if prev == nil || time.Now().After(graceUntil) {
		return false
	}
	return engine.Verify(prev.PublicKey, msg, sig)
}

// ExpireGracePeriod zeroes the previous signing keypair once its grace
// period has elapsed. Intended to be polled by the beacon scheduler tick.
func (id *Identity) ExpireGracePeriod() {
	id.mu.Lock()
	defer id.mu.Unlock()
	if id.previousSig != nil && time.Now().After(id.graceUntil) {
		id.previousSig = nil
	}
}
