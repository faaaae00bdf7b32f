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

// Package executor implements the Execute-phase Executor (component C12):
// it applies a RemediationPolicy's actions in order, rolls back on
// failure, and classifies the outcome against a post-hoc verification
// window.
package executor

import (
	"context"
	"sync"
	"time"

	"github.com/x0tta6bl4-ai/x0mesh/internal/logger"
	"github.com/x0tta6bl4-ai/x0mesh/internal/meshtypes"
	"github.com/x0tta6bl4-ai/x0mesh/internal/metrics"
)

// DefaultVerificationWindow is the wait before re-sampling the target
// violation, per spec.md §4.12.
const DefaultVerificationWindow = 30 * time.Second

// ActionHandler is the pluggable contract that actually performs (and can
// undo) one RemediationAction, per spec.md §6.
type ActionHandler interface {
	Apply(ctx context.Context, action meshtypes.RemediationAction) (meshtypes.ActionResult, error)
	Rollback(ctx context.Context, action meshtypes.RemediationAction, result meshtypes.ActionResult) error
}

// Preflight re-checks a policy's preconditions immediately before
// execution (e.g. the targeted peer still exists, reputation snapshot is
// consistent). Returning an error aborts the policy as Ineffective.
type Preflight func(policy meshtypes.RemediationPolicy) error

// ProbeResult is a post-verification-window re-sample of the condition a
// policy targeted.
type ProbeResult struct {
	StillPresent             bool
	CurrentSeverity          meshtypes.Severity
	NewHigherSeverityAppeared bool
}

// ViolationProbe re-samples state after the verification window for the
// violation a policy targeted.
type ViolationProbe func(targetViolationID string) ProbeResult

type inFlightEntry struct {
	policyID string
}

// Executor runs RemediationPolicy executions one at a time per target
// violation, per spec.md §4.12's "at most one policy in flight per
// target_violation_id" invariant.
type Executor struct {
	mu           sync.Mutex
	handlers     map[meshtypes.ActionKind]ActionHandler
	clock        func() time.Time
	verifyWindow time.Duration
	inFlight     map[string]inFlightEntry
}

// New constructs an Executor. clock defaults to time.Now, verifyWindow to
// DefaultVerificationWindow, when zero.
func New(handlers map[meshtypes.ActionKind]ActionHandler, clock func() time.Time, verifyWindow time.Duration) *Executor {
	if clock == nil {
		clock = time.Now
	}
	if verifyWindow <= 0 {
		verifyWindow = DefaultVerificationWindow
	}
	return &Executor{
		handlers:     handlers,
		clock:        clock,
		verifyWindow: verifyWindow,
		inFlight:     make(map[string]inFlightEntry),
	}
}

// TryBeginExecution reserves the target_violation_id for this policy. It
// returns false if another policy is already in flight for that target,
// implementing the queue-of-one invariant.
func (e *Executor) TryBeginExecution(policy meshtypes.RemediationPolicy) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.inFlight[policy.TargetViolationID]; ok && existing.policyID != policy.ID {
		return false
	}
	e.inFlight[policy.TargetViolationID] = inFlightEntry{policyID: policy.ID}
	return true
}

func (e *Executor) endExecution(targetViolationID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, targetViolationID)
}

// InFlight reports whether a policy is currently executing against
// targetViolationID.
func (e *Executor) InFlight(targetViolationID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.inFlight[targetViolationID]
	return ok
}

// Execute applies policy's actions in order, rolling back on failure, then
// classifies the outcome after waiting up to the verification window. ctx
// cancellation is honored between action boundaries and during the
// verification wait; an in-flight action itself runs to its own timeout.
func (e *Executor) Execute(ctx context.Context, policy meshtypes.RemediationPolicy, priorSeverity meshtypes.Severity, preflight Preflight, probe ViolationProbe) meshtypes.PolicyOutcome {
	defer e.endExecution(policy.TargetViolationID)
	start := e.clock()

	outcome := meshtypes.PolicyOutcome{PolicyID: policy.ID, Start: start}

	if preflight != nil {
		if err := preflight(policy); err != nil {
			logger.Warn("executor preflight failed, marking ineffective",
				logger.String("policy_id", policy.ID), logger.Error(err))
			outcome.Result = meshtypes.ResultIneffective
			outcome.End = e.clock()
			return outcome
		}
	}

	applied, results, failedAt := e.applyActions(ctx, policy)
	outcome.ActionsApplied = applied

	if failedAt >= 0 {
		rolledBack := e.rollback(ctx, policy, results, failedAt)
		outcome.RollbackApplied = rolledBack
		metrics.RollbacksTriggered.Inc()
		outcome.Result = meshtypes.ResultIneffective
		outcome.End = e.clock()
		recordActionMetrics(applied, "rolled_back")
		metrics.ActionsExecuted.WithLabelValues(string(policy.Actions[failedAt].Kind), "failed").Inc()
		return outcome
	}

	recordActionMetrics(applied, "applied")

	select {
	case <-ctx.Done():
	case <-time.After(e.verifyWindow):
	}

	outcome.Result = classify(probe, policy.TargetViolationID, priorSeverity)
	outcome.End = e.clock()
	outcome.StabilizationMS = outcome.End.Sub(start).Milliseconds()
	return outcome
}

// applyActions calls each action's handler with a timeout of
// estimated_latency_ms*3, stopping at the first failure.
func (e *Executor) applyActions(ctx context.Context, policy meshtypes.RemediationPolicy) (applied []meshtypes.ActionKind, results []meshtypes.ActionResult, failedAt int) {
	failedAt = -1
	for i, action := range policy.Actions {
		if ctx.Err() != nil {
			logger.Warn("execution cancelled at action boundary, rolling back",
				logger.String("action", string(action.Kind)))
			failedAt = i
			break
		}
		handler, ok := e.handlers[action.Kind]
		if !ok {
			logger.Warn("no action handler registered, treating as failure",
				logger.String("action", string(action.Kind)))
			failedAt = i
			break
		}

		actionCtx, cancel := context.WithTimeout(ctx, time.Duration(action.EstimatedLatencyMS)*3*time.Millisecond)
		result, err := handler.Apply(actionCtx, action)
		cancel()

		if err != nil || !result.Success {
			logger.Warn("action application failed",
				logger.String("action", string(action.Kind)), logger.Error(err))
			failedAt = i
			results = append(results, result)
			break
		}

		applied = append(applied, action.Kind)
		results = append(results, result)
	}
	return applied, results, failedAt
}

// rollback undoes already-applied actions in reverse order, per
// spec.md §4.12 step 3.
func (e *Executor) rollback(ctx context.Context, policy meshtypes.RemediationPolicy, results []meshtypes.ActionResult, failedAt int) []meshtypes.ActionKind {
	var rolledBack []meshtypes.ActionKind
	for i := failedAt - 1; i >= 0; i-- {
		action := policy.Actions[i]
		handler, ok := e.handlers[action.Kind]
		if !ok {
			continue
		}
		if err := handler.Rollback(ctx, action, results[i]); err != nil {
			logger.ErrorMsg("rollback failed",
				logger.String("action", string(action.Kind)), logger.Error(err))
			continue
		}
		rolledBack = append(rolledBack, action.Kind)
	}
	return rolledBack
}

// classify assigns Success/Partial/Ineffective/Degradation per
// spec.md §4.12 step 4. A nil probe is treated as Success, since there is
// nothing left to verify against.
func classify(probe ViolationProbe, targetViolationID string, priorSeverity meshtypes.Severity) meshtypes.PolicyResult {
	if probe == nil {
		return meshtypes.ResultSuccess
	}
	result := probe(targetViolationID)

	switch {
	case result.NewHigherSeverityAppeared:
		return meshtypes.ResultDegradation
	case !result.StillPresent:
		return meshtypes.ResultSuccess
	case result.CurrentSeverity < priorSeverity:
		return meshtypes.ResultPartial
	default:
		return meshtypes.ResultIneffective
	}
}

func recordActionMetrics(actions []meshtypes.ActionKind, outcome string) {
	for _, kind := range actions {
		metrics.ActionsExecuted.WithLabelValues(string(kind), outcome).Inc()
	}
}
