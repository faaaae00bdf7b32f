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

// Package keyvault persists the node's long-lived identity key material
// at rest, encrypted under a passphrase-derived key (component C2's
// persistence layer).
package keyvault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

var (
	ErrKeyNotFound       = errors.New("keyvault: key not found")
	ErrInvalidPassphrase = errors.New("keyvault: invalid passphrase")
	ErrInvalidKeyID      = errors.New("keyvault: invalid key id")
)

const pbkdf2Iterations = 100_000

// Vault is the storage backend for encrypted identity key material, mirroring
// cfg.KeyVault.Type ("encrypted-file" or "memory").
type Vault interface {
	StoreEncrypted(keyID string, plaintext []byte, passphrase string) error
	LoadDecrypted(keyID string, passphrase string) ([]byte, error)
	Exists(keyID string) bool
	Delete(keyID string) error
}

type encryptedRecord struct {
	Salt       string    `json:"salt"`
	Nonce      string    `json:"nonce"`
	Ciphertext string    `json:"ciphertext"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// FileVault implements Vault over the filesystem with AES-256-GCM,
// key-derived via PBKDF2-HMAC-SHA256.
type FileVault struct {
	baseDir string
	mu      sync.RWMutex
}

func NewFileVault(baseDir string) (*FileVault, error) {
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("keyvault: create directory: %w", err)
	}
	return &FileVault{baseDir: baseDir}, nil
}

func (v *FileVault) path(keyID string) string {
	return filepath.Join(v.baseDir, filepath.Base(keyID)+".json")
}

func (v *FileVault) StoreEncrypted(keyID string, plaintext []byte, passphrase string) error {
	if keyID == "" {
		return ErrInvalidKeyID
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("keyvault: generate salt: %w", err)
	}
	derived := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, 32, sha256.New)

	block, err := aes.NewCipher(derived)
	if err != nil {
		return fmt.Errorf("keyvault: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("keyvault: new gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("keyvault: generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	rec := encryptedRecord{
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		UpdatedAt:  time.Now(),
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("keyvault: marshal record: %w", err)
	}
	return os.WriteFile(v.path(keyID), data, 0o600)
}

func (v *FileVault) LoadDecrypted(keyID string, passphrase string) ([]byte, error) {
	if keyID == "" {
		return nil, ErrInvalidKeyID
	}
	v.mu.RLock()
	defer v.mu.RUnlock()

	data, err := os.ReadFile(v.path(keyID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("keyvault: read file: %w", err)
	}
	var rec encryptedRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("keyvault: unmarshal record: %w", err)
	}
	salt, err := base64.StdEncoding.DecodeString(rec.Salt)
	if err != nil {
		return nil, fmt.Errorf("keyvault: decode salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(rec.Nonce)
	if err != nil {
		return nil, fmt.Errorf("keyvault: decode nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(rec.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("keyvault: decode ciphertext: %w", err)
	}

	derived := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, 32, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("keyvault: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("keyvault: new gcm: %w", err)
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrInvalidPassphrase
	}
	return plaintext, nil
}

func (v *FileVault) Exists(keyID string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, err := os.Stat(v.path(keyID))
	return err == nil
}

func (v *FileVault) Delete(keyID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := os.Remove(v.path(keyID)); err != nil {
		if os.IsNotExist(err) {
			return ErrKeyNotFound
		}
		return fmt.Errorf("keyvault: delete: %w", err)
	}
	return nil
}

// MemoryVault is a non-persistent Vault for tests and the "memory"
// cfg.KeyVault.Type, still passphrase-gated via the same AES-GCM/PBKDF2
// path so behavior matches FileVault modulo persistence.
type MemoryVault struct {
	mu   sync.RWMutex
	data map[string]encryptedPayload
}

type encryptedPayload struct {
	salt, nonce, ciphertext []byte
}

func NewMemoryVault() *MemoryVault {
	return &MemoryVault{data: make(map[string]encryptedPayload)}
}

func (m *MemoryVault) StoreEncrypted(keyID string, plaintext []byte, passphrase string) error {
	if keyID == "" {
		return ErrInvalidKeyID
	}
	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("keyvault: generate salt: %w", err)
	}
	derived := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, 32, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return err
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[keyID] = encryptedPayload{salt: salt, nonce: nonce, ciphertext: ciphertext}
	return nil
}

func (m *MemoryVault) LoadDecrypted(keyID string, passphrase string) ([]byte, error) {
	if keyID == "" {
		return nil, ErrInvalidKeyID
	}
	m.mu.RLock()
	payload, ok := m.data[keyID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrKeyNotFound
	}

	derived := pbkdf2.Key([]byte(passphrase), payload.salt, pbkdf2Iterations, 32, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, payload.nonce, payload.ciphertext, nil)
	if err != nil {
		return nil, ErrInvalidPassphrase
	}
	return plaintext, nil
}

func (m *MemoryVault) Exists(keyID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[keyID]
	return ok
}

func (m *MemoryVault) Delete(keyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[keyID]; !ok {
		return ErrKeyNotFound
	}
	delete(m.data, keyID)
	return nil
}

// New builds a Vault from cfg.KeyVault's Type field ("encrypted-file" or
// "memory"); any other value is an error, not a silent fallback.
func New(kind, directory string) (Vault, error) {
	switch kind {
	case "", "encrypted-file":
		return NewFileVault(directory)
	case "memory":
		return NewMemoryVault(), nil
	default:
		return nil, fmt.Errorf("keyvault: unknown vault type %q", kind)
	}
}
