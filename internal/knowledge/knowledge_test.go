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

package knowledge

import (
	"testing"

	"github.com/x0tta6bl4-ai/x0mesh/internal/meshtypes"
)

func recordN(store *MemStore, causeClass string, action meshtypes.ActionKind, result meshtypes.PolicyResult, n int) {
	for i := 0; i < n; i++ {
		store.Record(meshtypes.PolicyOutcome{Result: result}, causeClass, action)
	}
}

func TestBestActionForPrefersHigherWilsonLowerBound(t *testing.T) {
	store := NewMemStore()
	recordN(store, "temporal_burst", meshtypes.ActionThrottleRequests, meshtypes.ResultSuccess, 28)
	recordN(store, "temporal_burst", meshtypes.ActionThrottleRequests, meshtypes.ResultIneffective, 2)
	recordN(store, "temporal_burst", meshtypes.ActionQuarantine, meshtypes.ResultSuccess, 16)
	recordN(store, "temporal_burst", meshtypes.ActionQuarantine, meshtypes.ResultIneffective, 14)

	r := New(store, func() float64 { return 1 }, nil)
	best, ok := r.BestActionFor("temporal_burst", []meshtypes.ActionKind{meshtypes.ActionThrottleRequests, meshtypes.ActionQuarantine})
	if !ok {
		t.Fatal("expected a best action")
	}
	if best != meshtypes.ActionThrottleRequests {
		t.Fatalf("best = %v, want ThrottleRequests (higher success rate)", best)
	}
}

func TestBestActionForExploresWithProbabilityEpsilon(t *testing.T) {
	store := NewMemStore()
	recordN(store, "temporal_burst", meshtypes.ActionThrottleRequests, meshtypes.ResultSuccess, 30)
	recordN(store, "temporal_burst", meshtypes.ActionQuarantine, meshtypes.ResultIneffective, 30)

	chosen := meshtypes.ActionKind("")
	r := New(store, func() float64 { return 0.05 }, func(candidates []meshtypes.ActionKind) meshtypes.ActionKind {
		chosen = meshtypes.ActionQuarantine
		return chosen
	})

	best, ok := r.BestActionFor("temporal_burst", []meshtypes.ActionKind{meshtypes.ActionThrottleRequests, meshtypes.ActionQuarantine})
	if !ok {
		t.Fatal("expected a best action")
	}
	if best != meshtypes.ActionQuarantine {
		t.Fatalf("best = %v, want ActionQuarantine (exploration triggered)", best)
	}
}

func TestStatsStableAfterThirtyObservations(t *testing.T) {
	store := NewMemStore()
	recordN(store, "frequency_anomaly", meshtypes.ActionActivateFallback, meshtypes.ResultSuccess, 29)
	stats := store.Stats("frequency_anomaly", meshtypes.ActionActivateFallback)
	if stats.Stable() {
		t.Fatal("expected 29 observations to not yet be stable")
	}

	store.Record(meshtypes.PolicyOutcome{Result: meshtypes.ResultSuccess}, "frequency_anomaly", meshtypes.ActionActivateFallback)
	stats = store.Stats("frequency_anomaly", meshtypes.ActionActivateFallback)
	if !stats.Stable() {
		t.Fatal("expected 30 observations to be stable")
	}
}

func TestSuccessRateDefaultsToNeutralWhenUnobserved(t *testing.T) {
	store := NewMemStore()
	r := New(store, nil, nil)
	if got := r.SuccessRate("unknown_cause", meshtypes.ActionThrottleRequests); got != 0.5 {
		t.Fatalf("SuccessRate = %v, want 0.5 for an unobserved pair", got)
	}
}

func TestBestActionForNoCandidatesReturnsFalse(t *testing.T) {
	store := NewMemStore()
	r := New(store, nil, nil)
	if _, ok := r.BestActionFor("temporal_burst", nil); ok {
		t.Fatal("expected ok=false with no candidates")
	}
}

func TestMemStoreActionTypesForReturnsSortedDistinctActions(t *testing.T) {
	store := NewMemStore()
	recordN(store, "temporal_burst", meshtypes.ActionThrottleRequests, meshtypes.ResultSuccess, 1)
	recordN(store, "temporal_burst", meshtypes.ActionQuarantine, meshtypes.ResultSuccess, 1)
	recordN(store, "frequency_anomaly", meshtypes.ActionActivateFallback, meshtypes.ResultSuccess, 1)

	got := store.ActionTypesFor("temporal_burst")
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	if got[0] != meshtypes.ActionQuarantine || got[1] != meshtypes.ActionThrottleRequests {
		t.Fatalf("got = %v, want sorted [Quarantine, ThrottleRequests]", got)
	}
}

func TestWilsonLowerBoundIsBelowRawRateAndIncreasesWithN(t *testing.T) {
	small := wilsonLowerBound(0.8, 10)
	large := wilsonLowerBound(0.8, 1000)
	if small >= 0.8 {
		t.Fatalf("wilsonLowerBound(0.8, 10) = %v, want < 0.8", small)
	}
	if large <= small {
		t.Fatalf("wilsonLowerBound should tighten toward the raw rate as n grows: n=10 -> %v, n=1000 -> %v", small, large)
	}
}
