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

// Package core wires every component (C1-C14) into one CoreHandle,
// constructed once at startup from a config.Config and passed explicitly to
// callers; subcomponents are reached through its accessors rather than
// reconstructed. Shutdown is one method that stops the control loop and
// lets in-flight work unwind cooperatively.
package core

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/x0tta6bl4-ai/x0mesh/config"
	"github.com/x0tta6bl4-ai/x0mesh/internal/analyzer"
	"github.com/x0tta6bl4-ai/x0mesh/internal/beacon"
	"github.com/x0tta6bl4-ai/x0mesh/internal/executor"
	"github.com/x0tta6bl4-ai/x0mesh/internal/gossip"
	"github.com/x0tta6bl4-ai/x0mesh/internal/handshake"
	"github.com/x0tta6bl4-ai/x0mesh/internal/identity"
	"github.com/x0tta6bl4-ai/x0mesh/internal/keyvault"
	"github.com/x0tta6bl4-ai/x0mesh/internal/knowledge"
	"github.com/x0tta6bl4-ai/x0mesh/internal/logger"
	"github.com/x0tta6bl4-ai/x0mesh/internal/meshtypes"
	"github.com/x0tta6bl4-ai/x0mesh/internal/orchestrator"
	"github.com/x0tta6bl4-ai/x0mesh/internal/peer"
	"github.com/x0tta6bl4-ai/x0mesh/internal/planner"
	"github.com/x0tta6bl4-ai/x0mesh/internal/pqc"
	"github.com/x0tta6bl4-ai/x0mesh/internal/quorum"
	"github.com/x0tta6bl4-ai/x0mesh/internal/reputation"
	"github.com/x0tta6bl4-ai/x0mesh/internal/telemetry"
)

// reputationAdapter satisfies planner.ReputationSource over a
// reputation.Ledger, whose own method is named Score rather than
// Reputation.
type reputationAdapter struct {
	ledger *reputation.Ledger
}

func (a reputationAdapter) Reputation(peer meshtypes.NodeID) float64 {
	return a.ledger.Score(peer)
}

// CoreHandle owns one node's full component graph.
type CoreHandle struct {
	cfg *config.Config

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc

	pqcEngine   *pqc.Engine
	identity    *identity.Identity
	reputation  *reputation.Ledger
	beacon      *beacon.Scheduler
	peers       *peer.Table
	handshake   *handshake.Machine
	gossip      *gossip.Layer
	quorum      *quorum.Validator
	collector   *telemetry.Collector
	analyzer    *analyzer.Analyzer
	planner     *planner.Planner
	executor    *executor.Executor
	knowledge   *knowledge.Recorder
	orchestrator *orchestrator.Orchestrator

	throttles *throttleStore
	fallbacks *fallbackStore

	loopDone chan struct{}
}

// New constructs every component from cfg and wires the MAPE-K pipeline.
// The node's identity is loaded from the configured KeyVault if one was
// persisted by an earlier run, or generated fresh and persisted otherwise;
// see internal/keyvault and internal/identity's LoadOrCreate.
func New(cfg *config.Config) (*CoreHandle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("core: nil config")
	}
	clock := time.Now

	engine := pqc.NewEngine(
		pqc.KEMAlgorithm(cfg.PQC.KEMAlgorithm),
		pqc.SigAlgorithm(cfg.PQC.SigAlgorithm),
		cfg.PQC.AllowMockPQC,
		cfg.PQC.ProductionMode,
	)

	vault, err := keyvault.New(cfg.KeyVault.Type, cfg.KeyVault.Directory)
	if err != nil {
		return nil, fmt.Errorf("core: construct keyvault: %w", err)
	}
	passphrase := os.Getenv(cfg.KeyVault.PassphraseEnv)
	id, err := identity.LoadOrCreate(engine, vault, passphrase, cfg.Mesh.RotationInterval, cfg.Mesh.QuarantineTTL)
	if err != nil {
		return nil, fmt.Errorf("core: construct identity: %w", err)
	}
	self, _, _, _ := id.CurrentIdentity()

	rep := reputation.New(clock)
	peers := peer.New(clock)
	sched := beacon.New(self, beacon.SystemClock, cfg.Mesh.SlotMS, cfg.Mesh.DriftThresholdMS, cfg.Mesh.DriftDamping)
	hs := handshake.New(engine, meshtypes.Slot(cfg.Mesh.SessionTTLSlots))
	gl := gossip.New(peerLookup{peers}, rep, handshakeVerifier(engine, pqc.SigAlgorithm(cfg.PQC.SigAlgorithm)), cfg.Gossip.MaxMsgsPerPeerPerSlot)
	q := quorum.New(clock)

	collector := telemetry.New(0, 0, clock)
	an := analyzer.New()

	throttles := newThrottleStore()
	fallbacks := newFallbackStore(clock)

	recorder := knowledge.New(knowledge.NewMemStore(), nil, nil)
	pl := planner.New(nil, reputationAdapter{rep}, recorder, planner.DefaultWeights())

	handlers := map[meshtypes.ActionKind]executor.ActionHandler{
		meshtypes.ActionQuarantine:       &quarantineHandler{table: peers, rep: rep},
		meshtypes.ActionThrottleRequests: &throttleHandler{store: throttles},
		meshtypes.ActionActivateFallback: &fallbackHandler{store: fallbacks, defaultTTL: cfg.Mesh.FallbackTTL},
		meshtypes.ActionRebalanceLoad:    &rebalanceHandler{},
		meshtypes.ActionScaleUp:          &noopHandler{kind: meshtypes.ActionScaleUp},
		meshtypes.ActionScaleDown:        &noopHandler{kind: meshtypes.ActionScaleDown},
		meshtypes.ActionRestartService:   &noopHandler{kind: meshtypes.ActionRestartService},
		meshtypes.ActionApplyPolicy:      &noopHandler{kind: meshtypes.ActionApplyPolicy},
		meshtypes.ActionUpdateConfig:     &noopHandler{kind: meshtypes.ActionUpdateConfig},
	}
	exec := executor.New(handlers, clock, cfg.Mesh.VerificationWindow)

	orch := orchestrator.New(orchestrator.Deps{
		Self:                      self,
		Clock:                     clock,
		Collector:                 collector,
		Analyzer:                  an,
		Planner:                   pl,
		Quorum:                    q,
		Executor:                  exec,
		Knowledge:                 recorder,
		TickInterval:              cfg.MAPEK.TickInterval,
		GracefulShutdownDeadline:  cfg.Mesh.GracefulShutdownDeadline,
		QuorumWindow:              time.Duration(cfg.Mesh.QuorumWindowSlots) * time.Duration(cfg.Mesh.SlotMS) * time.Millisecond,
		ReputationQuorumThreshold: quorum.DefaultReputationQuorumThreshold,
		ActivePeers:               func() int { return len(peers.ActivePeerIDs()) },
	})

	return &CoreHandle{
		cfg:          cfg,
		pqcEngine:    engine,
		identity:     id,
		reputation:   rep,
		beacon:       sched,
		peers:        peers,
		handshake:    hs,
		gossip:       gl,
		quorum:       q,
		collector:    collector,
		analyzer:     an,
		planner:      pl,
		executor:     exec,
		knowledge:    recorder,
		orchestrator: orch,
		throttles:    throttles,
		fallbacks:    fallbacks,
	}, nil
}

// Start launches the MAPE-K tick loop in the background. Calling Start
// twice is a no-op.
func (c *CoreHandle) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.started = true
	c.loopDone = make(chan struct{})

	go func() {
		defer close(c.loopDone)
		c.orchestrator.Run(loopCtx)
	}()

	go c.runMaintenance(loopCtx)
}

// runMaintenance periodically sweeps the peer table for bulk, clock-driven
// transitions that no single event (beacon, handshake, reputation update)
// triggers on its own: Quarantined peers past their TTL, and Active peers
// whose session has reached its scheduled rotation slot.
func (c *CoreHandle) runMaintenance(ctx context.Context) {
	interval := c.cfg.MAPEK.TickInterval
	if interval <= 0 {
		interval = orchestrator.DefaultGracefulShutdownDeadline
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.peers.ExpireQuarantines(c.cfg.Mesh.QuarantineTTL)
			for _, id := range c.peers.PeersNeedingRotation(c.beacon.CurrentSlot()) {
				c.peers.ForceRotation(id)
				logger.Info("session rotation forced", logger.String("peer_id", id.String()))
			}
		}
	}
}

// Shutdown cancels the tick loop, bounding the wait for its current cycle
// to unwind by the mesh's configured graceful_shutdown_deadline, and
// zeroizes every peer's session shared secret.
func (c *CoreHandle) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	cancel := c.cancel
	done := c.loopDone
	c.started = false
	c.mu.Unlock()

	deadline := c.cfg.Mesh.GracefulShutdownDeadline
	if deadline <= 0 {
		deadline = orchestrator.DefaultGracefulShutdownDeadline
	}
	cancel()

	select {
	case <-done:
	case <-time.After(deadline):
		logger.Warn("core shutdown: control loop did not unwind within the graceful deadline",
			logger.Duration("deadline", deadline))
	case <-ctx.Done():
	}

	for id := range c.peers.Snapshot() {
		if s, ok := c.peers.Session(id); ok {
			s.Zeroize()
		}
	}
	return nil
}

// PQC returns the node's post-quantum crypto engine.
func (c *CoreHandle) PQC() *pqc.Engine { return c.pqcEngine }

// Identity returns the node's rotating signing/session identity.
func (c *CoreHandle) Identity() *identity.Identity { return c.identity }

// Reputation returns the peer reputation ledger.
func (c *CoreHandle) Reputation() *reputation.Ledger { return c.reputation }

// Beacon returns the slot/drift scheduler.
func (c *CoreHandle) Beacon() *beacon.Scheduler { return c.beacon }

// Peers returns the peer table.
func (c *CoreHandle) Peers() *peer.Table { return c.peers }

// Handshake returns the session handshake state machine.
func (c *CoreHandle) Handshake() *handshake.Machine { return c.handshake }

// Gossip returns the gossip verification/rate-limit layer.
func (c *CoreHandle) Gossip() *gossip.Layer { return c.gossip }

// Quorum returns the remediation approval validator.
func (c *CoreHandle) Quorum() *quorum.Validator { return c.quorum }

// Telemetry returns the local+peer telemetry collector.
func (c *CoreHandle) Telemetry() *telemetry.Collector { return c.collector }

// Analyzer returns the violation detector.
func (c *CoreHandle) Analyzer() *analyzer.Analyzer { return c.analyzer }

// Planner returns the remediation planner.
func (c *CoreHandle) Planner() *planner.Planner { return c.planner }

// Executor returns the action executor.
func (c *CoreHandle) Executor() *executor.Executor { return c.executor }

// Knowledge returns the outcome recorder.
func (c *CoreHandle) Knowledge() *knowledge.Recorder { return c.knowledge }

// Orchestrator returns the MAPE-K control loop.
func (c *CoreHandle) Orchestrator() *orchestrator.Orchestrator { return c.orchestrator }

// Throttled reports the currently applied rate for peer, if any.
func (c *CoreHandle) Throttled(peer meshtypes.NodeID) (float64, bool) { return c.throttles.RateFor(peer) }

// FallbackActive reports whether scope currently has an active fallback.
func (c *CoreHandle) FallbackActive(scope string) bool { return c.fallbacks.Active(scope) }

// peerLookup adapts peer.Table to gossip.PeerLookup.
type peerLookup struct {
	table *peer.Table
}

func (p peerLookup) SigningPubKey(id meshtypes.NodeID) ([]byte, bool) { return p.table.SigningPubKey(id) }
func (p peerLookup) RecordedEpoch(id meshtypes.NodeID) (meshtypes.Epoch, bool) {
	return p.table.RecordedEpoch(id)
}
func (p peerLookup) Session(id meshtypes.NodeID) (*meshtypes.Session, bool) { return p.table.Session(id) }

// handshakeVerifier adapts a pqc.Engine into a gossip.Verifier over raw
// marshaled public keys, accepting mock mode's bypass the same way the
// engine's own Verify does.
func handshakeVerifier(engine *pqc.Engine, sigAlg pqc.SigAlgorithm) gossip.Verifier {
	return func(pub, msg, sig []byte) bool {
		if engine.MockMode() {
			return true
		}
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
