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
	"fmt"
	"sync"
	"time"

	"github.com/x0tta6bl4-ai/x0mesh/internal/logger"
	"github.com/x0tta6bl4-ai/x0mesh/internal/meshtypes"
	"github.com/x0tta6bl4-ai/x0mesh/internal/peer"
	"github.com/x0tta6bl4-ai/x0mesh/internal/reputation"
)

// quarantineHandler applies ActionQuarantine by moving the peer to the
// quarantined state and recording the byzantine-equivocation penalty that
// justified it.
type quarantineHandler struct {
	table *peer.Table
	rep   *reputation.Ledger
}

func targetPeerParam(action meshtypes.RemediationAction) (meshtypes.NodeID, bool) {
	for _, key := range []string{"peer", "target", "to"} {
		if v, ok := action.Params[key]; ok {
			if id, ok := v.(meshtypes.NodeID); ok {
				return id, true
			}
		}
	}
	return meshtypes.NodeID{}, false
}

func (h *quarantineHandler) Apply(ctx context.Context, action meshtypes.RemediationAction) (meshtypes.ActionResult, error) {
	target, ok := targetPeerParam(action)
	if !ok {
		return meshtypes.ActionResult{}, fmt.Errorf("quarantine: action has no target peer")
	}
	h.rep.Record(target, reputation.EventByzantineEquivocation)
	if !h.table.Quarantine(target) {
		return meshtypes.ActionResult{Success: false, Detail: "peer was not in a quarantinable state"}, nil
	}
	return meshtypes.ActionResult{Success: true, Detail: "peer quarantined"}, nil
}

// Rollback cannot directly un-quarantine: the peer table exposes
// ExpireQuarantines only as a bulk TTL sweep over every quarantined peer,
// not a per-peer reversal, so reversing one quarantine here would also
// evict unrelated peers whose TTL happens to have elapsed. The quarantine
// stands until its own TTL expires; this logs the rollback request so an
// operator can intervene sooner if needed.
func (h *quarantineHandler) Rollback(ctx context.Context, action meshtypes.RemediationAction, result meshtypes.ActionResult) error {
	target, ok := targetPeerParam(action)
	if !ok {
		return nil
	}
	logger.Warn("quarantine rollback requested; no per-peer reversal available, relying on quarantine TTL expiry",
		logger.String("peer", fmt.Sprintf("%x", target[:4])))
	return nil
}

// throttleStore tracks applied rate limits per peer. The mesh has no
// dedicated rate-limiter primitive outside gossip.Layer's unexported
// per-slot counters, so ActionThrottleRequests records its effect here;
// see DESIGN.md for why this, and not gossip.Layer, owns the state.
type throttleStore struct {
	mu    sync.Mutex
	rates map[meshtypes.NodeID]float64
}

func newThrottleStore() *throttleStore {
	return &throttleStore{rates: make(map[meshtypes.NodeID]float64)}
}

func (s *throttleStore) set(peer meshtypes.NodeID, rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[peer] = rate
}

func (s *throttleStore) clear(peer meshtypes.NodeID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rates, peer)
}

func (s *throttleStore) RateFor(peer meshtypes.NodeID) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rate, ok := s.rates[peer]
	return rate, ok
}

type throttleHandler struct {
	store *throttleStore
}

func (h *throttleHandler) Apply(ctx context.Context, action meshtypes.RemediationAction) (meshtypes.ActionResult, error) {
	target, ok := targetPeerParam(action)
	if !ok {
		return meshtypes.ActionResult{}, fmt.Errorf("throttle: action has no target peer")
	}
	rate, _ := action.Params["rate"].(float64)
	if rate <= 0 {
		rate = 0.5
	}
	h.store.set(target, rate)
	return meshtypes.ActionResult{Success: true, Detail: "rate limit applied", State: map[string]interface{}{"rate": rate}}, nil
}

func (h *throttleHandler) Rollback(ctx context.Context, action meshtypes.RemediationAction, result meshtypes.ActionResult) error {
	if target, ok := targetPeerParam(action); ok {
		h.store.clear(target)
	}
	return nil
}

// fallbackStore tracks which degraded paths have an active fallback and
// until when, mirroring peer.Table's TTL-bounded state idiom.
type fallbackStore struct {
	mu      sync.Mutex
	active  map[string]time.Time
	clock   func() time.Time
}

func newFallbackStore(clock func() time.Time) *fallbackStore {
	if clock == nil {
		clock = time.Now
	}
	return &fallbackStore{active: make(map[string]time.Time), clock: clock}
}

func (s *fallbackStore) activate(scope string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[scope] = s.clock().Add(ttl)
}

func (s *fallbackStore) deactivate(scope string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, scope)
}

// Active reports whether scope currently has a live fallback.
func (s *fallbackStore) Active(scope string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.active[scope]
	if !ok {
		return false
	}
	return s.clock().Before(until)
}

type fallbackHandler struct {
	store      *fallbackStore
	defaultTTL time.Duration
}

func (h *fallbackHandler) Apply(ctx context.Context, action meshtypes.RemediationAction) (meshtypes.ActionResult, error) {
	scope, _ := action.Params["scope"].(string)
	if scope == "" {
		scope = "default"
	}
	ttl := h.defaultTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	if ttlSeconds, ok := action.Params["ttl_seconds"].(int); ok && ttlSeconds > 0 {
		ttl = time.Duration(ttlSeconds) * time.Second
	}
	h.store.activate(scope, ttl)
	return meshtypes.ActionResult{Success: true, Detail: "fallback activated"}, nil
}

func (h *fallbackHandler) Rollback(ctx context.Context, action meshtypes.RemediationAction, result meshtypes.ActionResult) error {
	scope, _ := action.Params["scope"].(string)
	if scope == "" {
		scope = "default"
	}
	h.store.deactivate(scope)
	return nil
}

// rebalanceHandler logs a load-shift between two peers. The mesh has no
// transport-layer load balancer; this records the intent so an operator
// or an external scheduler can act on it, per DESIGN.md.
type rebalanceHandler struct{}

func (h *rebalanceHandler) Apply(ctx context.Context, action meshtypes.RemediationAction) (meshtypes.ActionResult, error) {
	from, _ := action.Params["from"].(meshtypes.NodeID)
	to, _ := action.Params["to"].(meshtypes.NodeID)
	share, _ := action.Params["share"].(float64)
	logger.Info("rebalance recorded",
		logger.String("from", fmt.Sprintf("%x", from[:4])),
		logger.String("to", fmt.Sprintf("%x", to[:4])),
		logger.Float64("share", share))
	return meshtypes.ActionResult{Success: true, Detail: "rebalance recorded"}, nil
}

func (h *rebalanceHandler) Rollback(ctx context.Context, action meshtypes.RemediationAction, result meshtypes.ActionResult) error {
	return nil
}

// noopHandler logs and succeeds for action kinds the built-in catalog
// never emits (ScaleUp, ScaleDown, RestartService, ApplyPolicy,
// UpdateConfiguration). They exist in the type vocabulary for operators
// or external schedulers composing custom policies; see DESIGN.md.
type noopHandler struct {
	kind meshtypes.ActionKind
}

func (h *noopHandler) Apply(ctx context.Context, action meshtypes.RemediationAction) (meshtypes.ActionResult, error) {
	logger.Info("action kind has no built-in effector, recording only", logger.String("kind", string(h.kind)))
	return meshtypes.ActionResult{Success: true, Detail: "no built-in effector"}, nil
}

func (h *noopHandler) Rollback(ctx context.Context, action meshtypes.RemediationAction, result meshtypes.ActionResult) error {
	return nil
}
