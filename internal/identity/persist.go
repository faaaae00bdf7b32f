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

package identity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/x0tta6bl4-ai/x0mesh/internal/keyvault"
	"github.com/x0tta6bl4-ai/x0mesh/internal/logger"
	"github.com/x0tta6bl4-ai/x0mesh/internal/pqc"
)

// VaultKeyID is the record name under which the node's identity keys are
// stored in the configured keyvault.Vault.
const VaultKeyID = "node-identity"

// persistedKeys is the plaintext wire shape encrypted at rest; only the raw
// key material and algorithm tags are stored, never a decrypted passphrase.
type persistedKeys struct {
	SigAlgorithm  pqc.SigAlgorithm `json:"sig_algorithm"`
	KEMAlgorithm  pqc.KEMAlgorithm `json:"kem_algorithm"`
	SigPublic     []byte           `json:"sig_public"`
	SigPrivate    []byte           `json:"sig_private"`
	KEMPublic     []byte           `json:"kem_public"`
	KEMPrivate    []byte           `json:"kem_private"`
	LastRotatedAt time.Time        `json:"last_rotated_at"`
}

// Persist encrypts and stores the current keypair set in vault under
// VaultKeyID, gated by passphrase.
func (id *Identity) Persist(vault keyvault.Vault, passphrase string) error {
	id.mu.RLock()
	sigKP, kemKP, rotatedAt := id.sigKeyPair, id.kemKeyPair, id.lastRotatedAt
	id.mu.RUnlock()

	sigPub, err := sigKP.PublicKey.MarshalBinary()
	if err != nil {
		return fmt.Errorf("identity: marshal sig public key: %w", err)
	}
	sigPriv, err := sigKP.PrivateKey.MarshalBinary()
	if err != nil {
		return fmt.Errorf("identity: marshal sig private key: %w", err)
	}
	kemPub, err := kemKP.PublicKey.MarshalBinary()
	if err != nil {
		return fmt.Errorf("identity: marshal kem public key: %w", err)
	}
	kemPriv, err := kemKP.PrivateKey.MarshalBinary()
	if err != nil {
		return fmt.Errorf("identity: marshal kem private key: %w", err)
	}

	plaintext, err := json.Marshal(persistedKeys{
		SigAlgorithm:  sigKP.Algorithm,
		KEMAlgorithm:  kemKP.Algorithm,
		SigPublic:     sigPub,
		SigPrivate:    sigPriv,
		KEMPublic:     kemPub,
		KEMPrivate:    kemPriv,
		LastRotatedAt: rotatedAt,
	})
	if err != nil {
		return fmt.Errorf("identity: marshal persisted keys: %w", err)
	}

	if err := vault.StoreEncrypted(VaultKeyID, plaintext, passphrase); err != nil {
		return fmt.Errorf("identity: store keys: %w", err)
	}
	return nil
}

// LoadOrCreate loads a previously persisted identity from vault, or
// generates and persists a fresh one if none exists yet.
func LoadOrCreate(engine *pqc.Engine, vault keyvault.Vault, passphrase string, rotationInterval, gracePeriod time.Duration) (*Identity, error) {
	if !vault.Exists(VaultKeyID) {
		id, err := New(engine, rotationInterval, gracePeriod)
		if err != nil {
			return nil, err
		}
		if err := id.Persist(vault, passphrase); err != nil {
			return nil, err
		}
		logger.Info("generated and persisted a new node identity", logger.String("node_id", id.nodeID.String()))
		return id, nil
	}

	plaintext, err := vault.LoadDecrypted(VaultKeyID, passphrase)
	if err != nil {
		return nil, fmt.Errorf("identity: load keys: %w", err)
	}
	var pk persistedKeys
	if err := json.Unmarshal(plaintext, &pk); err != nil {
		return nil, fmt.Errorf("identity: unmarshal persisted keys: %w", err)
	}

	sigScheme, ok := pqc.SigScheme(pk.SigAlgorithm)
	if !ok {
		return nil, fmt.Errorf("identity: unknown persisted sig algorithm %q", pk.SigAlgorithm)
	}
	kemScheme, ok := pqc.KEMScheme(pk.KEMAlgorithm)
	if !ok {
		return nil, fmt.Errorf("identity: unknown persisted kem algorithm %q", pk.KEMAlgorithm)
	}

	sigPub, err := sigScheme.UnmarshalBinaryPublicKey(pk.SigPublic)
	if err != nil {
		return nil, fmt.Errorf("identity: unmarshal sig public key: %w", err)
	}
	sigPriv, err := sigScheme.UnmarshalBinaryPrivateKey(pk.SigPrivate)
	if err != nil {
		return nil, fmt.Errorf("identity: unmarshal sig private key: %w", err)
	}
	kemPub, err := kemScheme.UnmarshalBinaryPublicKey(pk.KEMPublic)
	if err != nil {
		return nil, fmt.Errorf("identity: unmarshal kem public key: %w", err)
	}
	kemPriv, err := kemScheme.UnmarshalBinaryPrivateKey(pk.KEMPrivate)
	if err != nil {
		return nil, fmt.Errorf("identity: unmarshal kem private key: %w", err)
	}

	sigKP := &pqc.SigKeyPair{Algorithm: pk.SigAlgorithm, PublicKey: sigPub, PrivateKey: sigPriv}
	kemKP := &pqc.KEMKeyPair{Algorithm: pk.KEMAlgorithm, PublicKey: kemPub, PrivateKey: kemPriv}

	id := &Identity{
		nodeID:           nodeIDFromSigningKey(sigPub),
		epoch:            0,
		sigKeyPair:       sigKP,
		kemKeyPair:       kemKP,
		rotationInterval: rotationInterval,
		gracePeriod:      gracePeriod,
		lastRotatedAt:    pk.LastRotatedAt,
		engine:           engine,
	}
	logger.Info("loaded persisted node identity", logger.String("node_id", id.nodeID.String()))
	return id, nil
}
