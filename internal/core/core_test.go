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
	"testing"
	"time"

	"github.com/x0tta6bl4-ai/x0mesh/config"
	"github.com/x0tta6bl4-ai/x0mesh/internal/meshtypes"
)

func testConfig() *config.Config {
	cfg := &config.Config{
		PQC: &config.PQCConfig{
			KEMAlgorithm: "KEM-L3",
			SigAlgorithm: "SIG-L3",
			AllowMockPQC: true,
		},
		Mesh: &config.MeshConfig{
			SlotMS:                   50,
			SessionTTLSlots:          100,
			RotationInterval:         time.Hour,
			QuarantineTTL:            time.Minute,
			VerificationWindow:       time.Millisecond,
			GracefulShutdownDeadline: 200 * time.Millisecond,
			QuorumWindowSlots:        3,
			DriftThresholdMS:         50,
			DriftDamping:             0.3,
			FallbackTTL:              time.Hour,
		},
		MAPEK:    &config.MAPEKConfig{TickInterval: 20 * time.Millisecond},
		Gossip:   &config.GossipConfig{MaxMsgsPerPeerPerSlot: 50},
		KeyVault: &config.KeyVaultConfig{Type: "memory"},
	}
	return cfg
}

func TestNewWiresEveryComponent(t *testing.T) {
	c, err := New(testConfig())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if c.PQC() == nil || c.Identity() == nil || c.Reputation() == nil || c.Beacon() == nil ||
		c.Peers() == nil || c.Handshake() == nil || c.Gossip() == nil || c.Quorum() == nil ||
		c.Telemetry() == nil || c.Analyzer() == nil || c.Planner() == nil || c.Executor() == nil ||
		c.Knowledge() == nil || c.Orchestrator() == nil {
		t.Fatal("expected every component accessor to return a non-nil value")
	}
}

func TestNewRejectsNilConfig(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected an error constructing with a nil config")
	}
}

func TestStartAndShutdownRoundTrip(t *testing.T) {
	c, err := New(testConfig())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	c.Start(context.Background())
	time.Sleep(50 * time.Millisecond) // let at least one tick run

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}
	if c.orchestrator.Running() {
		t.Fatal("expected the orchestrator loop to have stopped")
	}
}

func TestShutdownWithoutStartIsNoOp(t *testing.T) {
	c, err := New(testConfig())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}
}

func TestQuarantineHandlerMovesPeerAndPenalizesReputation(t *testing.T) {
	c, err := New(testConfig())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	var target meshtypes.NodeID
	target[0] = 7
	c.Peers().OnValidBeacon(target, "10.0.0.1:9000", meshtypes.Slot(1), 0, meshtypes.Epoch(0))
	c.Peers().SetSigningPubKey(target, []byte("pub"))
	if !c.Peers().BeginHandshake(target) {
		t.Fatal("expected BeginHandshake to succeed for a newly seen peer")
	}
	if !c.Peers().CompleteHandshake(target, &meshtypes.Session{}) {
		t.Fatal("expected CompleteHandshake to activate the peer")
	}

	before := c.Reputation().Score(target)

	handler := &quarantineHandler{table: c.Peers(), rep: c.Reputation()}
	action := meshtypes.RemediationAction{Kind: meshtypes.ActionQuarantine, Params: map[string]interface{}{"peer": target}}
	result, err := handler.Apply(context.Background(), action)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if !result.Success {
		t.Fatal("expected quarantine to succeed for an Active peer")
	}

	after := c.Reputation().Score(target)
	if after >= before {
		t.Fatalf("expected reputation to drop after quarantine: before=%v after=%v", before, after)
	}

	p := c.Peers().Get(target)
	if p == nil || p.State != meshtypes.PeerQuarantined {
		t.Fatalf("expected peer to be Quarantined, got %+v", p)
	}
}

func TestThrottleAndFallbackHandlersRecordState(t *testing.T) {
	c, err := New(testConfig())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	var target meshtypes.NodeID
	target[0] = 9

	th := &throttleHandler{store: c.throttles}
	if _, err := th.Apply(context.Background(), meshtypes.RemediationAction{
		Params: map[string]interface{}{"peer": target, "rate": 0.25},
	}); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	rate, ok := c.Throttled(target)
	if !ok || rate != 0.25 {
		t.Fatalf("Throttled(target) = (%v, %v), want (0.25, true)", rate, ok)
	}

	fb := &fallbackHandler{store: c.fallbacks}
	if _, err := fb.Apply(context.Background(), meshtypes.RemediationAction{
		Params: map[string]interface{}{"scope": "region-a", "ttl_seconds": 60},
	}); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if !c.FallbackActive("region-a") {
		t.Fatal("expected region-a fallback to be active")
	}
	if c.FallbackActive("region-b") {
		t.Fatal("expected an unrelated scope to have no active fallback")
	}
}
