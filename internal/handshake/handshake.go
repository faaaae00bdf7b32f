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

// Package handshake drives the three-message hybrid PQ handshake state
// machine (component C6): Init, Resp, Finish.
package handshake

import (
	"bytes"
	"crypto/ecdh"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/x0tta6bl4-ai/x0mesh/internal/logger"
	"github.com/x0tta6bl4-ai/x0mesh/internal/meshtypes"
	"github.com/x0tta6bl4-ai/x0mesh/internal/metrics"
	"github.com/x0tta6bl4-ai/x0mesh/internal/pqc"
)

// Phase identifies a step of the handshake state machine.
type Phase int

const (
	PhaseInit Phase = iota + 1
	PhaseResp
	PhaseFinish
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseResp:
		return "resp"
	case PhaseFinish:
		return "finish"
	default:
		return "unknown"
	}
}

// TimeoutSlots is the number of beacon slots allowed for each reply, per
// spec.md §4.6.
const TimeoutSlots meshtypes.Slot = 2

// DefaultSessionTTLSlots approximates one hour of 100ms slots.
const DefaultSessionTTLSlots = meshtypes.Slot(36000)

// InitMessage is the first handshake message, A→B.
type InitMessage struct {
	SenderID     meshtypes.NodeID
	Epoch        meshtypes.Epoch
	ClassicalPub []byte
	PQPub        []byte
	Nonce        uint64
	Signature    []byte
}

// RespMessage is the second handshake message, B→A.
type RespMessage struct {
	SenderID     meshtypes.NodeID
	Epoch        meshtypes.Epoch
	ClassicalPub []byte
	PQCiphertext []byte
	Nonce        uint64
	Signature    []byte
}

// FinishMessage is the third handshake message, A→B: a MAC of the
// transcript under the negotiated session secret.
type FinishMessage struct {
	SenderID meshtypes.NodeID
	MAC      []byte
}

// Outcome classifies how a handshake attempt ended, for reputation feedback.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeSignatureInvalid
	OutcomeDecapsulationFailed
	OutcomeMACMismatch
	OutcomeTimeout
)

// Signer is the minimal contract the handshake needs from Identity: sign
// with the long-lived signing keypair. Verification goes through Verifier.
type Signer interface {
	Sign(msg []byte) ([]byte, error)
}

// Verifier checks a signature against a (possibly remote) signing public key.
type Verifier func(peerPub, msg, sig []byte) bool

// pending tracks a handshake we initiated, keyed by the target peer.
type pending struct {
	classicalPriv *pqc.ClassicalKeyPair
	pqPriv        *pqc.KEMKeyPair
	transcript    []byte
	startedSlot   meshtypes.Slot
	self          meshtypes.NodeID
}

// Machine drives handshakes for a single node, both as initiator and
// responder. Owned by the network plane task; per spec.md §5, all per-peer
// state mutations happen on that single task.
type Machine struct {
	mu sync.Mutex

	engine        *pqc.Engine
	pendingByPeer map[meshtypes.NodeID]*pending
	sessionTTL    meshtypes.Slot
}

// New constructs a handshake Machine.
func New(engine *pqc.Engine, sessionTTL meshtypes.Slot) *Machine {
	if sessionTTL == 0 {
		sessionTTL = DefaultSessionTTLSlots
	}
	return &Machine{
		engine:        engine,
		pendingByPeer: make(map[meshtypes.NodeID]*pending),
		sessionTTL:    sessionTTL,
	}
}

// BeginInit starts a handshake as initiator A against peer B, returning the
// Init message to send.
func (m *Machine) BeginInit(self meshtypes.NodeID, epoch meshtypes.Epoch, peer meshtypes.NodeID, currentSlot meshtypes.Slot, signer Signer) (*InitMessage, error) {
	classical, err := pqc.GenerateClassicalKeypair()
	if err != nil {
		return nil, fmt.Errorf("handshake: generate classical keypair: %w", err)
	}
	pqPair, err := m.engine.GenerateKEMKeypair()
	if err != nil {
		return nil, fmt.Errorf("handshake: generate pq keypair: %w", err)
	}
	pqPubBytes, err := pqPair.PublicKey.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("handshake: marshal pq public key: %w", err)
	}
	classicalPubBytes := classical.Public.Bytes()

	transcript := transcriptPrefix(self, epoch, classicalPubBytes, pqPubBytes)
	sig, err := signer.Sign(transcript)
	if err != nil {
		return nil, fmt.Errorf("handshake: sign init: %w", err)
	}

	m.mu.Lock()
	m.pendingByPeer[peer] = &pending{
		classicalPriv: classical,
		pqPriv:        pqPair,
		transcript:    transcript,
		startedSlot:   currentSlot,
		self:          self,
	}
	m.mu.Unlock()

	return &InitMessage{
		SenderID:     self,
		Epoch:        epoch,
		ClassicalPub: classicalPubBytes,
		PQPub:        pqPubBytes,
		Nonce:        uint64(currentSlot),
		Signature:    sig,
	}, nil
}

func transcriptPrefix(id meshtypes.NodeID, epoch meshtypes.Epoch, classicalPub, pqPub []byte) []byte {
	var buf bytes.Buffer
	buf.Write(id[:])
	writeUint64(&buf, uint64(epoch))
	buf.Write(classicalPub)
	buf.Write(pqPub)
	return buf.Bytes()
}

// respTranscript binds a Resp's signature to the specific Init it answers,
// so a Resp signed for one exchange cannot be replayed into another.
func respTranscript(initTranscript []byte, resp *RespMessage) []byte {
	var buf bytes.Buffer
	buf.Write(initTranscript)
	buf.Write(resp.SenderID[:])
	writeUint64(&buf, uint64(resp.Epoch))
	buf.Write(resp.ClassicalPub)
	buf.Write(resp.PQCiphertext)
	return buf.Bytes()
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	for i := 0; i < 8; i++ {
		tmp[i] = byte(v >> (8 * i))
	}
	buf.Write(tmp[:])
}

// HandleInit processes an Init message as responder B and produces the Resp
// message plus the negotiated Session. senderSigningPub is the peer's known
// long-lived signing public key, looked up from the Peer Table. The Resp is
// signed with signer over the Init transcript plus B's own contribution, so
// A can authenticate B before trusting ClassicalPub/PQCiphertext.
func (m *Machine) HandleInit(self meshtypes.NodeID, selfEpoch meshtypes.Epoch, currentSlot meshtypes.Slot, init *InitMessage, senderSigningPub []byte, verify Verifier, signer Signer) (*RespMessage, *meshtypes.Session, Outcome, error) {
	transcript := transcriptPrefix(init.SenderID, init.Epoch, init.ClassicalPub, init.PQPub)
	if !verify(senderSigningPub, transcript, init.Signature) {
		metrics.GossipSignatureFailures.Inc()
		return nil, nil, OutcomeSignatureInvalid, fmt.Errorf("handshake: invalid signature on Init from %s", init.SenderID)
	}

	scheme, ok := pqc.KEMScheme(pqc.DefaultKEMAlgorithm)
	if !ok {
		return nil, nil, OutcomeDecapsulationFailed, logger.NewMeshError(logger.ErrCodeAlgorithmUnavailable, "kem scheme unavailable", nil)
	}
	initiatorPQPub, err := scheme.UnmarshalBinaryPublicKey(init.PQPub)
	if err != nil {
		return nil, nil, OutcomeDecapsulationFailed, logger.NewMeshError(logger.ErrCodeInvalidCiphertext, "handshake: unmarshal initiator pq public key", err)
	}
	initiatorClassicalPub, err := ecdh.X25519().NewPublicKey(init.ClassicalPub)
	if err != nil {
		return nil, nil, OutcomeDecapsulationFailed, fmt.Errorf("handshake: unmarshal initiator classical public key: %w", err)
	}

	classical, err := pqc.GenerateClassicalKeypair()
	if err != nil {
		return nil, nil, OutcomeDecapsulationFailed, fmt.Errorf("handshake: generate classical keypair: %w", err)
	}
	classicalShared, err := pqc.ClassicalSharedSecret(classical, initiatorClassicalPub)
	if err != nil {
		return nil, nil, OutcomeDecapsulationFailed, fmt.Errorf("handshake: classical ecdh: %w", err)
	}

	pqCiphertext, pqShared, err := m.engine.Encapsulate(initiatorPQPub)
	if err != nil {
		return nil, nil, OutcomeDecapsulationFailed, logger.NewMeshError(logger.ErrCodeInvalidCiphertext, "handshake: encapsulate to initiator failed", err)
	}

	sessionSecret, err := pqc.CombineHybridSecret(classicalShared, pqShared, transcript)
	if err != nil {
		return nil, nil, OutcomeDecapsulationFailed, fmt.Errorf("handshake: combine hybrid secret: %w", err)
	}

	resp := &RespMessage{
		SenderID:     self,
		Epoch:        selfEpoch,
		ClassicalPub: classical.Public.Bytes(),
		PQCiphertext: pqCiphertext,
		Nonce:        uint64(currentSlot),
	}
	respSig, err := signer.Sign(respTranscript(transcript, resp))
	if err != nil {
		return nil, nil, OutcomeSignatureInvalid, fmt.Errorf("handshake: sign resp: %w", err)
	}
	resp.Signature = respSig

	session := meshtypes.NewSession(sessionSecret, currentSlot+m.sessionTTL)
	metrics.HybridHandshakes.WithLabelValues("success").Inc()
	logger.Info("handshake resp prepared", logger.String("peer_id", init.SenderID.String()))

	return resp, session, OutcomeSuccess, nil
}

// CompleteInit processes a Resp message as initiator A: authenticates B's
// signature over the transcript before trusting anything B sent, then
// recomputes the hybrid secret and produces the Finish MAC plus the
// negotiated Session. responderSigningPub is B's known long-lived signing
// public key, looked up from the Peer Table — without this check an
// attacker could answer A's Init with its own keys and A would complete a
// "successful" handshake with the attacker instead of B.
func (m *Machine) CompleteInit(peer meshtypes.NodeID, resp *RespMessage, responderSigningPub []byte, verify Verifier) (*FinishMessage, *meshtypes.Session, Outcome, error) {
	m.mu.Lock()
	p, ok := m.pendingByPeer[peer]
	m.mu.Unlock()
	if !ok {
		return nil, nil, OutcomeTimeout, fmt.Errorf("handshake: no pending init for peer %s", peer)
	}

	if !verify(responderSigningPub, respTranscript(p.transcript, resp), resp.Signature) {
		metrics.GossipSignatureFailures.Inc()
		return nil, nil, OutcomeSignatureInvalid, fmt.Errorf("handshake: invalid signature on Resp from %s", peer)
	}

	pqShared, err := m.engine.Decapsulate(p.pqPriv.PrivateKey, resp.PQCiphertext)
	if err != nil {
		metrics.HybridHandshakes.WithLabelValues("failure").Inc()
		return nil, nil, OutcomeDecapsulationFailed, err
	}

	peerClassicalPub, err := ecdh.X25519().NewPublicKey(resp.ClassicalPub)
	if err != nil {
		return nil, nil, OutcomeDecapsulationFailed, fmt.Errorf("handshake: unmarshal responder classical public key: %w", err)
	}
	classicalShared, err := pqc.ClassicalSharedSecret(p.classicalPriv, peerClassicalPub)
	if err != nil {
		return nil, nil, OutcomeDecapsulationFailed, fmt.Errorf("handshake: classical ecdh: %w", err)
	}

	sessionSecret, err := pqc.CombineHybridSecret(classicalShared, pqShared, p.transcript)
	if err != nil {
		return nil, nil, OutcomeDecapsulationFailed, fmt.Errorf("handshake: combine hybrid secret: %w", err)
	}

	tag := transcriptMAC(sessionSecret, p.transcript)
	session := meshtypes.NewSession(sessionSecret, p.startedSlot+m.sessionTTL)

	m.mu.Lock()
	delete(m.pendingByPeer, peer)
	m.mu.Unlock()

	metrics.HybridHandshakes.WithLabelValues("success").Inc()
	return &FinishMessage{SenderID: p.self, MAC: tag}, session, OutcomeSuccess, nil
}

func transcriptMAC(sessionSecret [32]byte, transcript []byte) []byte {
	mac := hmac.New(sha256.New, sessionSecret[:])
	mac.Write(transcript)
	mac.Write([]byte("finish"))
	return mac.Sum(nil)
}

// VerifyFinish checks a Finish MAC on the responder side against the
// session it just installed and reports whether it matches. It records no
// reputation change and does not tear down the session on a mismatch.
func VerifyFinish(session *meshtypes.Session, transcript []byte, finish *FinishMessage) bool {
	expected := transcriptMAC(session.SharedSecret, transcript)
	return hmac.Equal(expected, finish.MAC)
}

// AbortPending drops a pending initiator handshake (timeout or failure),
// leaving the Peer Table to revert the peer to Discovered.
func (m *Machine) AbortPending(peer meshtypes.NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pendingByPeer, peer)
}

// ExpirePending aborts any pending initiator handshakes older than
// TimeoutSlots, returning the peers that timed out so callers can revert
// their Peer Table entry to Discovered.
func (m *Machine) ExpirePending(currentSlot meshtypes.Slot) []meshtypes.NodeID {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expired []meshtypes.NodeID
	for peer, p := range m.pendingByPeer {
		if currentSlot-p.startedSlot > TimeoutSlots {
			expired = append(expired, peer)
			delete(m.pendingByPeer, peer)
		}
	}
	return expired
}
