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

// Package planner implements the Plan-phase Planner (component C11): it
// turns ranked violations into scored, ranked remediation policies drawn
// from a typed action catalog.
package planner

import (
	"sort"

	"github.com/google/uuid"
	"github.com/x0tta6bl4-ai/x0mesh/internal/meshtypes"
)

// Default weights and limits from spec.md §4.11.
const (
	DefaultBenefitWeight  = 1.0
	DefaultCostWeight     = 0.5
	DefaultPeerRiskWeight = 0.8
	DefaultHistoryWeight  = 0.6

	TopKViolations = 5
	TopNPolicies   = 3

	// TrustedPeerReputationThreshold marks the reputation above which an
	// action targeting that peer requires Quorum Validator approval.
	TrustedPeerReputationThreshold = 0.5
)

// ReputationSource supplies the current reputation snapshot so the
// Planner can compute peer_risk and approval_required.
type ReputationSource interface {
	Reputation(peer meshtypes.NodeID) float64
}

// HistorySource supplies the Knowledge Recorder's historical success rate
// for a (cause_class, action_type) pair, used as history_success.
type HistorySource interface {
	SuccessRate(causeClass string, action meshtypes.ActionKind) float64
}

// Weights holds the utility function's coefficients.
type Weights struct {
	Benefit  float64
	Cost     float64
	PeerRisk float64
	History  float64
}

// DefaultWeights returns the spec.md §4.11 defaults.
func DefaultWeights() Weights {
	return Weights{
		Benefit:  DefaultBenefitWeight,
		Cost:     DefaultCostWeight,
		PeerRisk: DefaultPeerRiskWeight,
		History:  DefaultHistoryWeight,
	}
}

// CatalogEntry is one action template in the catalog: AppliesTo filters by
// violation kind, Instantiate fills parameters from the violation's
// evidence.
type CatalogEntry struct {
	Kind        meshtypes.ActionKind
	AppliesTo   func(v meshtypes.Violation) bool
	Instantiate func(v meshtypes.Violation) meshtypes.RemediationAction
}

// DefaultCatalog returns the built-in action templates, one per violation
// kind the Analyzer is known to emit.
func DefaultCatalog() []CatalogEntry {
	return []CatalogEntry{
		{
			Kind:      meshtypes.ActionThrottleRequests,
			AppliesTo: func(v meshtypes.Violation) bool { return v.Kind == "temporal_burst" && len(v.InvolvedPeers) > 0 },
			Instantiate: func(v meshtypes.Violation) meshtypes.RemediationAction {
				target := v.InvolvedPeers[0]
				return meshtypes.RemediationAction{
					Kind:               meshtypes.ActionThrottleRequests,
					Params:             map[string]interface{}{"target": target, "rate": 0.5},
					EstimatedBenefit:   0.8,
					EstimatedCost:      0.2,
					EstimatedLatencyMS: 500,
					Idempotent:         true,
				}
			},
		},
		{
			Kind:      meshtypes.ActionQuarantine,
			AppliesTo: func(v meshtypes.Violation) bool { return v.Kind == "spatial_co_occurrence" && len(v.InvolvedPeers) > 0 },
			Instantiate: func(v meshtypes.Violation) meshtypes.RemediationAction {
				target := v.InvolvedPeers[0]
				return meshtypes.RemediationAction{
					Kind:               meshtypes.ActionQuarantine,
					Params:             map[string]interface{}{"peer": target},
					EstimatedBenefit:   0.9,
					EstimatedCost:      0.4,
					EstimatedLatencyMS: 200,
					Idempotent:         true,
				}
			},
		},
		{
			Kind:      meshtypes.ActionRebalanceLoad,
			AppliesTo: func(v meshtypes.Violation) bool { return v.Kind == "causal_correlation" && len(v.InvolvedPeers) >= 2 },
			Instantiate: func(v meshtypes.Violation) meshtypes.RemediationAction {
				return meshtypes.RemediationAction{
					Kind: meshtypes.ActionRebalanceLoad,
					Params: map[string]interface{}{
						"from":  v.InvolvedPeers[0],
						"to":    v.InvolvedPeers[1],
						"share": 0.5,
					},
					EstimatedBenefit:   0.6,
					EstimatedCost:      0.3,
					EstimatedLatencyMS: 1000,
					Idempotent:         false,
				}
			},
		},
		{
			Kind:      meshtypes.ActionActivateFallback,
			AppliesTo: func(v meshtypes.Violation) bool { return v.Kind == "frequency_anomaly" },
			Instantiate: func(v meshtypes.Violation) meshtypes.RemediationAction {
				return meshtypes.RemediationAction{
					Kind:               meshtypes.ActionActivateFallback,
					Params:             map[string]interface{}{"ttl_seconds": 3600},
					EstimatedBenefit:   0.5,
					EstimatedCost:      0.1,
					EstimatedLatencyMS: 100,
					Idempotent:         true,
				}
			},
		},
	}
}

// Planner scores and ranks remediation policies from a violation list.
type Planner struct {
	catalog    []CatalogEntry
	reputation ReputationSource
	history    HistorySource
	weights    Weights
}

// New constructs a Planner. catalog defaults to DefaultCatalog, weights to
// DefaultWeights if zero-valued.
func New(catalog []CatalogEntry, reputation ReputationSource, history HistorySource, weights Weights) *Planner {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}
	return &Planner{catalog: catalog, reputation: reputation, history: history, weights: weights}
}

// Plan consumes a ranked violation list (as produced by the Analyzer) and
// emits up to TopNPolicies ranked RemediationPolicy candidates, per
// spec.md §4.11.
func (p *Planner) Plan(violations []meshtypes.Violation) []meshtypes.RemediationPolicy {
	top := violations
	if len(top) > TopKViolations {
		top = top[:TopKViolations]
	}

	var candidates []meshtypes.RemediationPolicy
	for _, v := range top {
		for _, entry := range p.catalog {
			if !entry.AppliesTo(v) {
				continue
			}
			action := entry.Instantiate(v)
			peerRisk := p.peerRiskFor(action)
			historySuccess := 0.5
			if p.history != nil {
				historySuccess = p.history.SuccessRate(v.Kind, action.Kind)
			}
			utility := p.weights.Benefit*action.EstimatedBenefit -
				p.weights.Cost*action.EstimatedCost -
				p.weights.PeerRisk*peerRisk +
				p.weights.History*historySuccess

			candidates = append(candidates, meshtypes.RemediationPolicy{
				ID:                newPolicyID(),
				TargetViolationID: v.ID,
				Actions:           []meshtypes.RemediationAction{action},
				ApprovalRequired:  requiresApproval(action, peerRisk),
				RollbackStrategy:  meshtypes.RollbackReverse,
				TotalUtility:      utility,
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].TotalUtility > candidates[j].TotalUtility
	})
	if len(candidates) > TopNPolicies {
		candidates = candidates[:TopNPolicies]
	}
	return candidates
}

// peerRiskFor reports the reputation of the action's targeted peer, used
// as the peer_risk term: acting against a highly trusted peer is riskier.
func (p *Planner) peerRiskFor(action meshtypes.RemediationAction) float64 {
	if p.reputation == nil {
		return 0
	}
	target, ok := targetPeer(action)
	if !ok {
		return 0
	}
	return p.reputation.Reputation(target)
}

func targetPeer(action meshtypes.RemediationAction) (meshtypes.NodeID, bool) {
	for _, key := range []string{"peer", "target", "to"} {
		if v, ok := action.Params[key]; ok {
			if id, ok := v.(meshtypes.NodeID); ok {
				return id, true
			}
		}
	}
	return meshtypes.NodeID{}, false
}

// requiresApproval marks actions that mutate trust or policy state against
// a trusted peer, per spec.md §4.11's example (Quarantine, ApplyPolicy).
func requiresApproval(action meshtypes.RemediationAction, peerRisk float64) bool {
	if action.Kind != meshtypes.ActionQuarantine && action.Kind != meshtypes.ActionApplyPolicy {
		return false
	}
	return peerRisk > TrustedPeerReputationThreshold
}

func newPolicyID() string {
	return uuid.NewString()
}
