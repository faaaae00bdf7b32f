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

package core

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/cloudflare/circl/sign"

	"github.com/x0tta6bl4-ai/x0mesh/config"
	"github.com/x0tta6bl4-ai/x0mesh/internal/analyzer"
	"github.com/x0tta6bl4-ai/x0mesh/internal/gossip"
	"github.com/x0tta6bl4-ai/x0mesh/internal/handshake"
	"github.com/x0tta6bl4-ai/x0mesh/internal/logger"
	"github.com/x0tta6bl4-ai/x0mesh/internal/meshtypes"
	"github.com/x0tta6bl4-ai/x0mesh/internal/peer"
	"github.com/x0tta6bl4-ai/x0mesh/internal/pqc"
	"github.com/x0tta6bl4-ai/x0mesh/internal/reputation"
)

// identitySigner adapts a node's long-lived signing keypair into both
// gossip.Signer and handshake.Signer, neither of which Identity implements
// directly since it exposes keypairs, not a signing method.
type identitySigner struct {
	engine *pqc.Engine
	priv   sign.PrivateKey
}

func (s identitySigner) Sign(msg []byte) ([]byte, error) {
	return s.engine.Sign(s.priv, msg)
}

// connectPeers drives a full hybrid handshake between two CoreHandles as
// initiator (a) and responder (b), then installs the resulting session on
// both sides' Peer Tables the way the network plane would after a
// successful Finish exchange.
func connectPeers(t *testing.T, cfg *config.Config, a, b *CoreHandle, slot meshtypes.Slot) {
	t.Helper()

	idA, epochA, sigA, _ := a.Identity().CurrentIdentity()
	idB, epochB, sigB, _ := b.Identity().CurrentIdentity()

	pubA, err := sigA.PublicKey.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal A's signing public key: %v", err)
	}
	pubB, err := sigB.PublicKey.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal B's signing public key: %v", err)
	}

	signerA := identitySigner{engine: a.PQC(), priv: sigA.PrivateKey}
	signerB := identitySigner{engine: b.PQC(), priv: sigB.PrivateKey}
	verifierB := handshake.Verifier(handshakeVerifier(b.PQC(), pqc.SigAlgorithm(cfg.PQC.SigAlgorithm)))
	verifierA := handshake.Verifier(handshakeVerifier(a.PQC(), pqc.SigAlgorithm(cfg.PQC.SigAlgorithm)))

	initMsg, err := a.Handshake().BeginInit(idA, epochA, idB, slot, signerA)
	if err != nil {
		t.Fatalf("BeginInit: %v", err)
	}

	respMsg, sessionB, outcome, err := b.Handshake().HandleInit(idB, epochB, slot, initMsg, pubA, verifierB, signerB)
	if err != nil {
		t.Fatalf("HandleInit: %v", err)
	}
	if outcome != handshake.OutcomeSuccess {
		t.Fatalf("HandleInit outcome = %v, want Success", outcome)
	}

	_, sessionA, outcome, err := a.Handshake().CompleteInit(idB, respMsg, pubB, verifierA)
	if err != nil {
		t.Fatalf("CompleteInit: %v", err)
	}
	if outcome != handshake.OutcomeSuccess {
		t.Fatalf("CompleteInit outcome = %v, want Success", outcome)
	}

	if sessionA.SharedSecret != sessionB.SharedSecret {
		t.Fatal("initiator and responder derived different shared secrets")
	}

	a.Peers().OnValidBeacon(idB, "peer-b", slot, 0, epochB)
	a.Peers().SetSigningPubKey(idB, pubB)
	if !a.Peers().BeginHandshake(idB) {
		t.Fatal("expected A's table to accept BeginHandshake for B")
	}
	if !a.Peers().CompleteHandshake(idB, sessionA) {
		t.Fatal("expected A's table to activate B after CompleteHandshake")
	}

	b.Peers().OnValidBeacon(idA, "peer-a", slot, 0, epochA)
	b.Peers().SetSigningPubKey(idA, pubA)
	if !b.Peers().BeginHandshake(idA) {
		t.Fatal("expected B's table to accept BeginHandshake for A")
	}
	if !b.Peers().CompleteHandshake(idA, sessionB) {
		t.Fatal("expected B's table to activate A after CompleteHandshake")
	}
}

// Scenario 1: three fresh nodes join and pairwise handshake into a full
// mesh, each ending up with the other two as Active peers over matching
// negotiated sessions.
func TestScenarioFreshJoinEstablishesFullMesh(t *testing.T) {
	cfg := testConfig()
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New(a): %v", err)
	}
	b, err := New(cfg)
	if err != nil {
		t.Fatalf("New(b): %v", err)
	}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New(c): %v", err)
	}

	connectPeers(t, cfg, a, b, meshtypes.Slot(1))
	connectPeers(t, cfg, a, c, meshtypes.Slot(2))
	connectPeers(t, cfg, b, c, meshtypes.Slot(3))

	for name, node := range map[string]*CoreHandle{"a": a, "b": b, "c": c} {
		if got := len(node.Peers().ActivePeerIDs()); got != 2 {
			t.Fatalf("node %s: ActivePeerIDs() = %d, want 2", name, got)
		}
	}
}

// Scenario 2: a peer misses enough beacons to degrade, generating no
// reputation penalty (missed_slots_beyond_threshold is defined but never
// wired to a caller), then heals back to Active once clean traffic has
// been observed for the full recovery window.
func TestScenarioPartitionHealsWithoutReputationPenalty(t *testing.T) {
	now := time.Unix(0, 0)
	clock := now
	tbl := peer.New(func() time.Time { return clock })
	rep := reputation.New(func() time.Time { return clock })

	var target meshtypes.NodeID
	target[0] = 0x2a

	tbl.OnValidBeacon(target, "10.0.0.5:9000", meshtypes.Slot(1), 0, meshtypes.Epoch(0))
	tbl.SetSigningPubKey(target, []byte("pub"))
	if !tbl.BeginHandshake(target) {
		t.Fatal("expected BeginHandshake to succeed for a freshly discovered peer")
	}
	if !tbl.CompleteHandshake(target, meshtypes.NewSession([32]byte{}, 1000)) {
		t.Fatal("expected CompleteHandshake to activate the peer")
	}

	for i := 0; i < peer.DegradedMissedBeaconThreshold; i++ {
		tbl.RecordMissedBeacon(target)
	}
	if p := tbl.Get(target); p.State != meshtypes.PeerDegraded {
		t.Fatalf("peer state = %v, want Degraded after %d missed beacons", p.State, peer.DegradedMissedBeaconThreshold)
	}
	if events := rep.Events(); len(events) != 0 {
		t.Fatalf("expected a pure missed-beacon partition to leave no reputation events, got %d", len(events))
	}

	// Link recovers: beacons resume and a valid_beacon event lifts the
	// peer's score comfortably above the recovery threshold.
	clock = clock.Add(time.Second)
	tbl.OnValidBeacon(target, "10.0.0.5:9000", meshtypes.Slot(10), 0, meshtypes.Epoch(0))
	rep.Record(target, reputation.EventValidBeacon)

	tbl.UpdateReputation(target, rep.Score(target), reputation.QuarantineThreshold)
	if p := tbl.Get(target); p.State != meshtypes.PeerDegraded {
		t.Fatalf("peer state = %v, want still Degraded before the clean-traffic window elapses", p.State)
	}

	clock = clock.Add(peer.CleanTrafficRecoveryWindow)
	tbl.UpdateReputation(target, rep.Score(target), reputation.QuarantineThreshold)
	p := tbl.Get(target)
	if p.State != meshtypes.PeerActive {
		t.Fatalf("peer state = %v, want Active after the clean-traffic window elapses", p.State)
	}

	events := rep.Events()
	if len(events) != 1 || events[0].Kind != reputation.EventValidBeacon {
		t.Fatalf("expected exactly one valid_beacon reputation event, got %+v", events)
	}
}

// Scenario 3: a byzantine peer replays a previously accepted signed
// message. The first delivery is accepted; the identical replay is
// rejected and the sender's reputation is penalized.
func TestScenarioByzantineReplayIsRejectedAndPenalized(t *testing.T) {
	c, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var attacker meshtypes.NodeID
	attacker[0] = 0xaa

	attackerSig, err := c.PQC().GenerateSigKeypair()
	if err != nil {
		t.Fatalf("generate attacker signing keypair: %v", err)
	}
	attackerPub, err := attackerSig.PublicKey.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal attacker public key: %v", err)
	}

	c.Peers().OnValidBeacon(attacker, "10.0.0.9:9000", meshtypes.Slot(1), 0, meshtypes.Epoch(0))
	c.Peers().SetSigningPubKey(attacker, attackerPub)
	if !c.Peers().BeginHandshake(attacker) {
		t.Fatal("expected BeginHandshake to succeed for the attacker peer")
	}
	if !c.Peers().CompleteHandshake(attacker, meshtypes.NewSession([32]byte{7, 7, 7}, 1000)) {
		t.Fatal("expected CompleteHandshake to activate the attacker peer")
	}

	signer := identitySigner{engine: c.PQC(), priv: attackerSig.PrivateKey}
	msg, err := gossip.Sign(signer, attacker, meshtypes.Epoch(0), 42, meshtypes.KindGossip, []byte("payload"))
	if err != nil {
		t.Fatalf("sign control message: %v", err)
	}

	if got := c.Gossip().VerifyInbound(msg, meshtypes.Slot(1)); got != gossip.VerifyAccepted {
		t.Fatalf("first delivery VerifyInbound = %v, want VerifyAccepted", got)
	}

	before := c.Reputation().Score(attacker)
	if got := c.Gossip().VerifyInbound(msg, meshtypes.Slot(1)); got != gossip.VerifyRejectedReplay {
		t.Fatalf("replayed delivery VerifyInbound = %v, want VerifyRejectedReplay", got)
	}
	after := c.Reputation().Score(attacker)

	const wantDelta = 0.3
	if got := before - after; math.Abs(got-wantDelta) > 1e-9 {
		t.Fatalf("reputation drop = %v, want %v (replay_detected penalty)", got, wantDelta)
	}
}

// Scenario 4: a burst of same-kind telemetry from one peer is classified
// as a temporal_burst violation and remediated by throttling that peer,
// with no quorum step since ThrottleRequests never requires approval.
func TestScenarioTemporalBurstTriggersThrottle(t *testing.T) {
	c, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var noisy meshtypes.NodeID
	noisy[0] = 0x4d

	for i := 0; i < 5; i++ {
		c.Telemetry().IngestPeerEvent(meshtypes.TelemetryEvent{
			Timestamp:  time.Now(),
			SourcePeer: noisy,
			Kind:       "high_latency",
			Magnitude:  1,
		}, meshtypes.Slot(i))
	}

	snapshot := c.Telemetry().Snapshot()
	violations := c.Analyzer().Analyze(snapshot)
	if len(violations) == 0 || violations[0].Kind != "temporal_burst" {
		t.Fatalf("expected a temporal_burst violation to rank first, got %+v", violations)
	}
	if violations[0].Confidence != analyzer.TemporalBurstConfidence {
		t.Fatalf("violation confidence = %v, want %v", violations[0].Confidence, analyzer.TemporalBurstConfidence)
	}
	if violations[0].Severity != meshtypes.SeverityWarn {
		t.Fatalf("violation severity = %v, want Warn at confidence %v", violations[0].Severity, analyzer.TemporalBurstConfidence)
	}

	c.Orchestrator().Tick(context.Background())

	rate, ok := c.Throttled(noisy)
	if !ok || rate != 0.5 {
		t.Fatalf("Throttled(noisy) = (%v, %v), want (0.5, true)", rate, ok)
	}
}

// Scenario 5: a two-action policy fails on its second action; the
// Executor rolls back the first action in reverse order and reports
// Ineffective.
func TestScenarioActionFailureTriggersRollback(t *testing.T) {
	c, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var target meshtypes.NodeID
	target[0] = 0x37

	policy := meshtypes.RemediationPolicy{
		ID:                "rollback-scenario",
		TargetViolationID: "rollback-scenario-violation",
		Actions: []meshtypes.RemediationAction{
			{Kind: meshtypes.ActionThrottleRequests, Params: map[string]interface{}{"target": target, "rate": 0.4}, EstimatedLatencyMS: 10},
			// target was never registered in the Peer Table, so Quarantine
			// is not in a quarantinable state and this action fails.
			{Kind: meshtypes.ActionQuarantine, Params: map[string]interface{}{"peer": target}, EstimatedLatencyMS: 10},
		},
		RollbackStrategy: meshtypes.RollbackReverse,
	}

	outcome := c.Executor().Execute(context.Background(), policy, meshtypes.SeverityWarn, nil, nil)

	if outcome.Result != meshtypes.ResultIneffective {
		t.Fatalf("outcome.Result = %v, want Ineffective", outcome.Result)
	}
	if len(outcome.ActionsApplied) != 1 || outcome.ActionsApplied[0] != meshtypes.ActionThrottleRequests {
		t.Fatalf("ActionsApplied = %v, want [ThrottleRequests]", outcome.ActionsApplied)
	}
	if len(outcome.RollbackApplied) != 1 || outcome.RollbackApplied[0] != meshtypes.ActionThrottleRequests {
		t.Fatalf("RollbackApplied = %v, want [ThrottleRequests]", outcome.RollbackApplied)
	}
	if _, ok := c.Throttled(target); ok {
		t.Fatal("expected the throttle to be rolled back, but it is still active")
	}
}

// Scenario 6: a node cannot safely be driven through the literal
// "PQC unavailable in production mode" path in-process, since
// pqc.Engine.unavailable calls logger.Fatal -> os.Exit(1) with no override
// hook, which would kill the whole test binary. This instead exercises
// the two halves of that contract that are safe to assert directly: the
// AlgorithmUnavailable classification outside production mode, and the
// allow_mock_pqc/production_mode mutual-exclusivity guard at construction.
func TestScenarioPQCUnavailableClassificationOutsideProductionMode(t *testing.T) {
	engine := pqc.NewEngine(pqc.KEMAlgorithm("KEM-BOGUS"), pqc.DefaultSigAlgorithm, true, false)

	if _, err := engine.GenerateKEMKeypair(); err == nil {
		t.Fatal("expected an error for an unregistered kem algorithm")
	} else {
		var meshErr *logger.MeshError
		if !errors.As(err, &meshErr) {
			t.Fatalf("expected a *logger.MeshError, got %T: %v", err, err)
		}
		if meshErr.Code != logger.ErrCodeAlgorithmUnavailable {
			t.Fatalf("error code = %q, want %q", meshErr.Code, logger.ErrCodeAlgorithmUnavailable)
		}
	}
}

func TestScenarioPQCMutualExclusivityPanicsAtConstruction(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected NewEngine to panic when allow_mock_pqc and production_mode are both set")
		}
	}()
	pqc.NewEngine(pqc.DefaultKEMAlgorithm, pqc.DefaultSigAlgorithm, true, true)
}
