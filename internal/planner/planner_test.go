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

package planner

import (
	"testing"

	"github.com/x0tta6bl4-ai/x0mesh/internal/meshtypes"
)

type fakeReputation struct{ scores map[meshtypes.NodeID]float64 }

func (f fakeReputation) Reputation(peer meshtypes.NodeID) float64 { return f.scores[peer] }

type fakeHistory struct{ rate float64 }

func (f fakeHistory) SuccessRate(causeClass string, action meshtypes.ActionKind) float64 {
	return f.rate
}

func TestPlanEmitsThrottleForTemporalBurst(t *testing.T) {
	v := meshtypes.Violation{
		ID: "v1", Kind: "temporal_burst", Severity: meshtypes.SeverityWarn, Confidence: 0.85,
		InvolvedPeers: []meshtypes.NodeID{{3}},
	}
	p := New(nil, fakeReputation{scores: map[meshtypes.NodeID]float64{{3}: 0.5}}, fakeHistory{rate: 0.5}, Weights{})

	policies := p.Plan([]meshtypes.Violation{v})
	if len(policies) != 1 {
		t.Fatalf("len(policies) = %d, want 1", len(policies))
	}
	if policies[0].Actions[0].Kind != meshtypes.ActionThrottleRequests {
		t.Fatalf("action kind = %v, want ThrottleRequests", policies[0].Actions[0].Kind)
	}
	if policies[0].TargetViolationID != "v1" {
		t.Fatalf("TargetViolationID = %q, want v1", policies[0].TargetViolationID)
	}
}

func TestPlanMarksQuarantineApprovalRequiredForTrustedPeer(t *testing.T) {
	v := meshtypes.Violation{
		ID: "v2", Kind: "spatial_co_occurrence", InvolvedPeers: []meshtypes.NodeID{{1}, {2}, {3}},
	}
	p := New(nil, fakeReputation{scores: map[meshtypes.NodeID]float64{{1}: 0.9}}, fakeHistory{rate: 0.5}, Weights{})

	policies := p.Plan([]meshtypes.Violation{v})
	if len(policies) != 1 {
		t.Fatalf("len(policies) = %d, want 1", len(policies))
	}
	if !policies[0].ApprovalRequired {
		t.Fatal("expected ApprovalRequired for Quarantine targeting a high-reputation peer")
	}
}

func TestPlanDoesNotRequireApprovalForLowReputationPeer(t *testing.T) {
	v := meshtypes.Violation{
		ID: "v3", Kind: "spatial_co_occurrence", InvolvedPeers: []meshtypes.NodeID{{1}, {2}, {3}},
	}
	p := New(nil, fakeReputation{scores: map[meshtypes.NodeID]float64{{1}: 0.1}}, fakeHistory{rate: 0.5}, Weights{})

	policies := p.Plan([]meshtypes.Violation{v})
	if len(policies) != 1 {
		t.Fatalf("len(policies) = %d, want 1", len(policies))
	}
	if policies[0].ApprovalRequired {
		t.Fatal("expected no approval requirement for a low-reputation target")
	}
}

func TestPlanRanksByUtilityDescending(t *testing.T) {
	highBenefit := meshtypes.Violation{ID: "hi", Kind: "spatial_co_occurrence", InvolvedPeers: []meshtypes.NodeID{{1}, {2}, {3}}}
	lowBenefit := meshtypes.Violation{ID: "lo", Kind: "frequency_anomaly", InvolvedPeers: []meshtypes.NodeID{{4}}}

	p := New(nil, fakeReputation{}, fakeHistory{rate: 0.5}, Weights{})
	policies := p.Plan([]meshtypes.Violation{lowBenefit, highBenefit})

	if len(policies) != 2 {
		t.Fatalf("len(policies) = %d, want 2", len(policies))
	}
	if policies[0].TotalUtility < policies[1].TotalUtility {
		t.Fatal("policies not ranked by descending utility")
	}
	if policies[0].TargetViolationID != "hi" {
		t.Fatalf("highest-utility policy targets %q, want hi (Quarantine has higher benefit than ActivateFallback)", policies[0].TargetViolationID)
	}
}

func TestPlanTruncatesToTopN(t *testing.T) {
	var violations []meshtypes.Violation
	for i := 0; i < 5; i++ {
		violations = append(violations, meshtypes.Violation{
			ID: string(rune('a' + i)), Kind: "spatial_co_occurrence",
			InvolvedPeers: []meshtypes.NodeID{{byte(i)}, {byte(i + 10)}, {byte(i + 20)}},
		})
	}
	p := New(nil, fakeReputation{}, fakeHistory{rate: 0.5}, Weights{})
	policies := p.Plan(violations)
	if len(policies) != TopNPolicies {
		t.Fatalf("len(policies) = %d, want %d", len(policies), TopNPolicies)
	}
}

func TestPlanIgnoresViolationsBeyondTopK(t *testing.T) {
	var violations []meshtypes.Violation
	for i := 0; i < 7; i++ {
		violations = append(violations, meshtypes.Violation{
			ID: string(rune('a' + i)), Kind: "temporal_burst",
			InvolvedPeers: []meshtypes.NodeID{{byte(i)}},
		})
	}
	p := New(nil, fakeReputation{}, fakeHistory{rate: 0.5}, Weights{})
	policies := p.Plan(violations)

	seen := make(map[string]bool)
	for _, pol := range policies {
		seen[pol.TargetViolationID] = true
	}
	if seen["f"] || seen["g"] {
		t.Fatal("planner considered violations beyond TopKViolations=5")
	}
}

func TestPlanSkipsInapplicableActions(t *testing.T) {
	v := meshtypes.Violation{ID: "v4", Kind: "unknown_kind", InvolvedPeers: []meshtypes.NodeID{{1}}}
	p := New(nil, fakeReputation{}, fakeHistory{rate: 0.5}, Weights{})
	if got := p.Plan([]meshtypes.Violation{v}); len(got) != 0 {
		t.Fatalf("len(policies) = %d, want 0 for a kind no catalog entry matches", len(got))
	}
}
