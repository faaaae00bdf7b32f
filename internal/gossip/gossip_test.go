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

package gossip

import (
	"reflect"
	"testing"

	"github.com/x0tta6bl4-ai/x0mesh/internal/meshtypes"
	"github.com/x0tta6bl4-ai/x0mesh/internal/pqc"
	"github.com/x0tta6bl4-ai/x0mesh/internal/reputation"
)

type fakeLookup struct {
	pub     []byte
	epoch   meshtypes.Epoch
	session *meshtypes.Session
}

func (f *fakeLookup) SigningPubKey(id meshtypes.NodeID) ([]byte, bool) {
	if f.pub == nil {
		return nil, false
	}
	return f.pub, true
}
func (f *fakeLookup) RecordedEpoch(id meshtypes.NodeID) (meshtypes.Epoch, bool) { return f.epoch, true }
func (f *fakeLookup) Session(id meshtypes.NodeID) (*meshtypes.Session, bool) {
	if f.session == nil {
		return nil, false
	}
	return f.session, true
}

type stubSigner struct{}

func (stubSigner) Sign(msg []byte) ([]byte, error) { return []byte("sig"), nil }

func TestVerifyInboundAcceptsValidMessage(t *testing.T) {
	sender := meshtypes.NodeID{1}
	lookup := &fakeLookup{pub: []byte("pub"), epoch: 0, session: meshtypes.NewSession([32]byte{1}, 100)}
	rep := reputation.New(nil)
	layer := New(lookup, rep, func(pub, msg, sig []byte) bool { return true }, 0)

	msg, err := Sign(stubSigner{}, sender, 0, 1, meshtypes.KindGossip, []byte("payload"))
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	if got := layer.VerifyInbound(msg, 0); got != VerifyAccepted {
		t.Fatalf("VerifyInbound() = %v, want Accepted", got)
	}
}

func TestVerifyInboundRejectsBadSignature(t *testing.T) {
	sender := meshtypes.NodeID{1}
	lookup := &fakeLookup{pub: []byte("pub"), epoch: 0}
	rep := reputation.New(nil)
	layer := New(lookup, rep, func(pub, msg, sig []byte) bool { return false }, 0)

	msg, _ := Sign(stubSigner{}, sender, 0, 1, meshtypes.KindGossip, nil)
	if got := layer.VerifyInbound(msg, 0); got != VerifyRejectedSignature {
		t.Fatalf("VerifyInbound() = %v, want RejectedSignature", got)
	}
	if rep.Score(sender) >= reputation.DefaultScore {
		t.Fatal("expected reputation penalty for invalid signature")
	}
}

func TestVerifyInboundRejectsEpochMismatch(t *testing.T) {
	sender := meshtypes.NodeID{1}
	lookup := &fakeLookup{pub: []byte("pub"), epoch: 5}
	rep := reputation.New(nil)
	layer := New(lookup, rep, func(pub, msg, sig []byte) bool { return true }, 0)

	msg, _ := Sign(stubSigner{}, sender, 10, 1, meshtypes.KindGossip, nil)
	if got := layer.VerifyInbound(msg, 0); got != VerifyRejectedEpoch {
		t.Fatalf("VerifyInbound() = %v, want RejectedEpoch", got)
	}
}

func TestVerifyInboundRejectsReplay(t *testing.T) {
	sender := meshtypes.NodeID{1}
	session := meshtypes.NewSession([32]byte{1}, 100)
	lookup := &fakeLookup{pub: []byte("pub"), epoch: 0, session: session}
	rep := reputation.New(nil)
	layer := New(lookup, rep, func(pub, msg, sig []byte) bool { return true }, 0)

	msg, _ := Sign(stubSigner{}, sender, 0, 5, meshtypes.KindGossip, nil)
	if got := layer.VerifyInbound(msg, 0); got != VerifyAccepted {
		t.Fatalf("first delivery: VerifyInbound() = %v, want Accepted", got)
	}
	if got := layer.VerifyInbound(msg, 0); got != VerifyRejectedReplay {
		t.Fatalf("replayed delivery: VerifyInbound() = %v, want RejectedReplay", got)
	}
}

func TestVerifyInboundEnforcesRateLimit(t *testing.T) {
	sender := meshtypes.NodeID{1}
	lookup := &fakeLookup{pub: []byte("pub"), epoch: 0}
	rep := reputation.New(nil)
	layer := New(lookup, rep, func(pub, msg, sig []byte) bool { return true }, 2)

	var last VerifyResult
	for i := 0; i < 5; i++ {
		msg, _ := Sign(stubSigner{}, sender, 0, uint64(i+1), meshtypes.KindGossip, nil)
		last = layer.VerifyInbound(msg, 3)
	}
	if last != VerifyRejectedRateLimit {
		t.Fatalf("final VerifyInbound() = %v, want RejectedRateLimit", last)
	}
}

// engineVerifier adapts a pqc.Engine into a Verifier over raw marshaled
// public keys, the same shape as internal/core's handshakeVerifier, so
// these tests exercise real signature math rather than the always-true stub
// verifier used above.
func engineVerifier(engine *pqc.Engine, sigAlg pqc.SigAlgorithm) Verifier {
	return func(pub, msg, sig []byte) bool {
		scheme, ok := pqc.SigScheme(sigAlg)
		if !ok {
			return false
		}
		pk, err := scheme.UnmarshalBinaryPublicKey(pub)
		if err != nil {
			return false
		}
		return engine.Verify(pk, msg, sig)
	}
}

func TestControlMessageWireRoundTripThenVerifyAcceptsUntamperedFrame(t *testing.T) {
	engine := pqc.NewEngine(pqc.DefaultKEMAlgorithm, pqc.DefaultSigAlgorithm, false, false)
	kp, err := engine.GenerateSigKeypair()
	if err != nil {
		t.Fatalf("generate sig keypair: %v", err)
	}
	pub, err := kp.PublicKey.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}

	sender := meshtypes.NodeID{1}
	signer := signerFunc(func(msg []byte) ([]byte, error) { return engine.Sign(kp.PrivateKey, msg) })
	msg, err := Sign(signer, sender, 0, 1, meshtypes.KindGossip, []byte("payload"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	wire := meshtypes.EncodeControlMessage(msg)
	decoded, err := meshtypes.DecodeControlMessage(wire)
	if err != nil {
		t.Fatalf("DecodeControlMessage: %v", err)
	}
	if !reflect.DeepEqual(msg, decoded) {
		t.Fatalf("round-tripped message = %+v, want %+v", decoded, msg)
	}

	lookup := &fakeLookup{pub: pub, epoch: 0, session: meshtypes.NewSession([32]byte{1}, 100)}
	rep := reputation.New(nil)
	layer := New(lookup, rep, engineVerifier(engine, pqc.DefaultSigAlgorithm), 0)

	if got := layer.VerifyInbound(decoded, 0); got != VerifyAccepted {
		t.Fatalf("VerifyInbound(decoded) = %v, want Accepted", got)
	}
}

func TestDecodeControlMessageRejectsTruncatedFrame(t *testing.T) {
	msg, err := Sign(stubSigner{}, meshtypes.NodeID{1}, 0, 1, meshtypes.KindGossip, []byte("payload"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	wire := meshtypes.EncodeControlMessage(msg)
	if _, err := meshtypes.DecodeControlMessage(wire[:len(wire)-1]); err == nil {
		t.Fatal("expected DecodeControlMessage to reject a truncated frame")
	}
}

func TestFrameTamperedPayloadFailsVerificationNotSilentlyAccepted(t *testing.T) {
	engine := pqc.NewEngine(pqc.DefaultKEMAlgorithm, pqc.DefaultSigAlgorithm, false, false)
	kp, err := engine.GenerateSigKeypair()
	if err != nil {
		t.Fatalf("generate sig keypair: %v", err)
	}
	pub, err := kp.PublicKey.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}

	sender := meshtypes.NodeID{1}
	signer := signerFunc(func(msg []byte) ([]byte, error) { return engine.Sign(kp.PrivateKey, msg) })
	msg, err := Sign(signer, sender, 0, 1, meshtypes.KindGossip, []byte("payload"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	wire := meshtypes.EncodeControlMessage(msg)
	// Payload begins right after the fixed header (version, kind, reserved,
	// sender, epoch, nonce) and its own 4-byte length prefix.
	payloadOffset := 4 + 32 + 8 + 8 + 4
	wire[payloadOffset] ^= 0xFF

	tampered, err := meshtypes.DecodeControlMessage(wire)
	if err != nil {
		t.Fatalf("DecodeControlMessage of a flipped payload byte should still parse, got: %v", err)
	}

	lookup := &fakeLookup{pub: pub, epoch: 0, session: meshtypes.NewSession([32]byte{1}, 100)}
	rep := reputation.New(nil)
	layer := New(lookup, rep, engineVerifier(engine, pqc.DefaultSigAlgorithm), 0)

	if got := layer.VerifyInbound(tampered, 0); got != VerifyRejectedSignature {
		t.Fatalf("VerifyInbound(tampered) = %v, want RejectedSignature — tamper must never be silently accepted", got)
	}
}

type signerFunc func(msg []byte) ([]byte, error)

func (f signerFunc) Sign(msg []byte) ([]byte, error) { return f(msg) }

func TestVerifyInboundRejectsUnknownSender(t *testing.T) {
	lookup := &fakeLookup{}
	rep := reputation.New(nil)
	layer := New(lookup, rep, func(pub, msg, sig []byte) bool { return true }, 0)

	msg, _ := Sign(stubSigner{}, meshtypes.NodeID{9}, 0, 1, meshtypes.KindGossip, nil)
	if got := layer.VerifyInbound(msg, 0); got != VerifyRejectedUnknownSender {
		t.Fatalf("VerifyInbound() = %v, want RejectedUnknownSender", got)
	}
}
