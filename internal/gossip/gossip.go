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

// Package gossip signs outbound control messages and verifies inbound ones:
// signature, epoch window, anti-replay, and per-peer rate limiting
// (component C7).
package gossip

import (
	"fmt"
	"sync"

	"github.com/x0tta6bl4-ai/x0mesh/internal/logger"
	"github.com/x0tta6bl4-ai/x0mesh/internal/meshtypes"
	"github.com/x0tta6bl4-ai/x0mesh/internal/metrics"
	"github.com/x0tta6bl4-ai/x0mesh/internal/reputation"
)

// DefaultMaxMsgsPerPeerPerSlot is the per-peer rate limit, per spec.md §4.7.
const DefaultMaxMsgsPerPeerPerSlot = 50

// ExcessRatePenalty is the reputation delta applied per dropped excess
// message, capped by MaxExcessPenaltyPerSlot.
const (
	ExcessRatePenalty       = -0.01
	MaxExcessPenaltyPerSlot = -0.1
)

// PeerLookup resolves the state the Gossip layer needs about a sender from
// the Peer Table without coupling to its concrete type.
type PeerLookup interface {
	SigningPubKey(id meshtypes.NodeID) ([]byte, bool)
	RecordedEpoch(id meshtypes.NodeID) (meshtypes.Epoch, bool)
	Session(id meshtypes.NodeID) (*meshtypes.Session, bool)
}

// Signer signs outbound control message payloads with the node's current
// long-lived signing keypair.
type Signer interface {
	Sign(msg []byte) ([]byte, error)
}

// Verifier checks sig over msg against a raw signing public key.
type Verifier func(pub, msg, sig []byte) bool

// rateState tracks one peer's per-slot message budget.
type rateState struct {
	slot           meshtypes.Slot
	count          int
	penaltyApplied float64
}

// Layer is the per-node Gossip Layer.
type Layer struct {
	mu sync.Mutex

	peers   PeerLookup
	rep     *reputation.Ledger
	verify  Verifier
	maxMsgs int

	rateByPeer map[meshtypes.NodeID]*rateState
}

// New constructs a Gossip Layer.
func New(peers PeerLookup, rep *reputation.Ledger, verify Verifier, maxMsgsPerPeerPerSlot int) *Layer {
	if maxMsgsPerPeerPerSlot <= 0 {
		maxMsgsPerPeerPerSlot = DefaultMaxMsgsPerPeerPerSlot
	}
	return &Layer{
		peers:      peers,
		rep:        rep,
		verify:     verify,
		maxMsgs:    maxMsgsPerPeerPerSlot,
		rateByPeer: make(map[meshtypes.NodeID]*rateState),
	}
}

// Sign produces a signed ControlMessage ready for transmission.
func Sign(signer Signer, sender meshtypes.NodeID, epoch meshtypes.Epoch, nonce uint64, kind meshtypes.MessageKind, payload []byte) (*meshtypes.ControlMessage, error) {
	msg := &meshtypes.ControlMessage{
		Sender:  sender,
		Epoch:   epoch,
		Nonce:   nonce,
		Kind:    kind,
		Payload: payload,
	}
	sig, err := signer.Sign(signingBytes(msg))
	if err != nil {
		return nil, fmt.Errorf("gossip: sign control message: %w", err)
	}
	msg.Signature = sig
	return msg, nil
}

func signingBytes(msg *meshtypes.ControlMessage) []byte {
	out := make([]byte, 0, 32+8+8+1+len(msg.Payload))
	out = append(out, msg.Sender[:]...)
	out = appendUint64(out, uint64(msg.Epoch))
	out = appendUint64(out, msg.Nonce)
	out = append(out, byte(msg.Kind))
	out = append(out, msg.Payload...)
	return out
}

func appendUint64(out []byte, v uint64) []byte {
	var tmp [8]byte
	for i := 0; i < 8; i++ {
		tmp[i] = byte(v >> (8 * i))
	}
	return append(out, tmp[:]...)
}

// VerifyResult classifies the outcome of inbound verification.
type VerifyResult int

const (
	VerifyAccepted VerifyResult = iota
	VerifyRejectedSignature
	VerifyRejectedEpoch
	VerifyRejectedReplay
	VerifyRejectedRateLimit
	VerifyRejectedUnknownSender
)

// VerifyInbound runs the full inbound pipeline from spec.md §4.7: signature,
// epoch window, anti-replay, then rate limit.
func (l *Layer) VerifyInbound(msg *meshtypes.ControlMessage, currentSlot meshtypes.Slot) VerifyResult {
	pub, ok := l.peers.SigningPubKey(msg.Sender)
	if !ok {
		return VerifyRejectedUnknownSender
	}

	if !l.verify(pub, signingBytes(msg), msg.Signature) {
		metrics.GossipSignatureFailures.Inc()
		l.rep.Record(msg.Sender, reputation.EventInvalidSignature)
		return VerifyRejectedSignature
	}

	recordedEpoch, ok := l.peers.RecordedEpoch(msg.Sender)
	if ok && msg.Epoch != recordedEpoch && msg.Epoch != recordedEpoch+1 {
		metrics.GossipEpochMismatches.Inc()
		return VerifyRejectedEpoch
	}

	session, ok := l.peers.Session(msg.Sender)
	if ok {
		if !session.AcceptNonce(msg.Nonce) {
			metrics.GossipReplaysDetected.Inc()
			l.rep.Record(msg.Sender, reputation.EventReplayDetected)
			return VerifyRejectedReplay
		}
	}

	if !l.admitRate(msg.Sender, currentSlot) {
		metrics.GossipRateLimited.WithLabelValues(msg.Sender.String()).Inc()
		return VerifyRejectedRateLimit
	}

	metrics.GossipMessagesProcessed.WithLabelValues(msg.Kind.String()).Inc()
	return VerifyAccepted
}

// admitRate enforces max_msgs_per_peer_per_slot, resetting the budget on
// slot rollover and applying a capped reputation penalty for overflow.
func (l *Layer) admitRate(peer meshtypes.NodeID, currentSlot meshtypes.Slot) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.rateByPeer[peer]
	if !ok {
		st = &rateState{}
		l.rateByPeer[peer] = st
	}
	if st.slot != currentSlot {
		st.slot = currentSlot
		st.count = 0
		st.penaltyApplied = 0
	}

	st.count++
	if st.count <= l.maxMsgs {
		return true
	}

	if st.penaltyApplied > MaxExcessPenaltyPerSlot {
		st.penaltyApplied += ExcessRatePenalty
		if st.penaltyApplied < MaxExcessPenaltyPerSlot {
			st.penaltyApplied = MaxExcessPenaltyPerSlot
		}
		l.rep.Record(peer, reputation.EventRateLimitExceeded)
	}
	logger.Warn("gossip rate limit exceeded", logger.String("peer_id", peer.String()), logger.Int("count", st.count))
	return false
}

// RecordDigest computes the BLAKE2b-style neighbor digest used in
// BeaconMessage.NeighborDigest. Delegated to meshtypes to keep the hashing
// scheme in one place.
func RecordDigest(sortedPeers []meshtypes.NodeID) [32]byte {
	return meshtypes.NeighborDigest(sortedPeers)
}
