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

package meshtypes

import "time"

// ActionKind enumerates the RemediationAction variants from the catalog.
type ActionKind string

const (
	ActionScaleUp           ActionKind = "ScaleUp"
	ActionScaleDown         ActionKind = "ScaleDown"
	ActionRestartService    ActionKind = "RestartService"
	ActionApplyPolicy       ActionKind = "ApplyPolicy"
	ActionThrottleRequests  ActionKind = "ThrottleRequests"
	ActionActivateFallback  ActionKind = "ActivateFallback"
	ActionRebalanceLoad     ActionKind = "RebalanceLoad"
	ActionUpdateConfig      ActionKind = "UpdateConfiguration"
	ActionQuarantine        ActionKind = "Quarantine"
)

// RemediationAction is a single typed step in a policy. Params carries the
// kind-specific fields (component, delta, target, rate, ttl, from/to/share,
// key/value/scope, peer) as a flat map so the catalog can stay data-driven
// without one Go type per variant's parameter shape.
type RemediationAction struct {
	Kind   ActionKind
	Params map[string]interface{}

	EstimatedCost       float64
	EstimatedBenefit    float64
	EstimatedLatencyMS  int64
	Idempotent          bool
}

// RollbackStrategy selects how the Executor undoes a partially applied policy.
type RollbackStrategy int

const (
	RollbackReverse RollbackStrategy = iota
	RollbackSnapshot
	RollbackNone
)

// RemediationPolicy is an ordered list of actions aimed at resolving one
// violation, applied transactionally.
type RemediationPolicy struct {
	ID                string
	TargetViolationID string
	Actions           []RemediationAction
	ApprovalRequired  bool
	RollbackStrategy  RollbackStrategy
	TotalUtility       float64
}

// PolicyResult classifies the outcome of executing a RemediationPolicy.
type PolicyResult string

const (
	ResultSuccess     PolicyResult = "success"
	ResultPartial     PolicyResult = "partial"
	ResultIneffective PolicyResult = "ineffective"
	ResultDegradation PolicyResult = "degradation"
	ResultUnknown     PolicyResult = "unknown"
)

// PolicyOutcome records what happened when a policy ran.
type PolicyOutcome struct {
	PolicyID            string
	Result              PolicyResult
	StabilizationMS     int64
	ObservedSideEffects []string

	Start            time.Time
	End              time.Time
	ActionsApplied   []ActionKind
	RollbackApplied  []ActionKind
}

// ActionResult is the return value of an ActionHandler.Apply call.
type ActionResult struct {
	Success bool
	Detail  string
	State   map[string]interface{}
}
