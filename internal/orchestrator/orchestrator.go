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

// Package orchestrator drives the MAPE-K control loop (component C14): a
// single cooperative tick that chains Monitor, Analyze, Plan, an optional
// Quorum approval, Execute, and Knowledge recording, skipping ticks while
// a cycle is already in flight.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/x0tta6bl4-ai/x0mesh/internal/analyzer"
	"github.com/x0tta6bl4-ai/x0mesh/internal/executor"
	"github.com/x0tta6bl4-ai/x0mesh/internal/knowledge"
	"github.com/x0tta6bl4-ai/x0mesh/internal/logger"
	"github.com/x0tta6bl4-ai/x0mesh/internal/meshtypes"
	"github.com/x0tta6bl4-ai/x0mesh/internal/metrics"
	"github.com/x0tta6bl4-ai/x0mesh/internal/planner"
	"github.com/x0tta6bl4-ai/x0mesh/internal/quorum"
	"github.com/x0tta6bl4-ai/x0mesh/internal/telemetry"
)

// DefaultTickInterval and DefaultGracefulShutdownDeadline are the
// spec.md §4.14 defaults.
const (
	DefaultTickInterval             = 30 * time.Second
	DefaultGracefulShutdownDeadline = 10 * time.Second
	quorumPollInterval              = 250 * time.Millisecond
)

// MetricSource is re-exported so callers don't need to import
// internal/telemetry solely to satisfy New's signature.
type MetricSource = telemetry.MetricSource

// ActivePeerCounter reports the current number of Active peers, used to
// size the quorum requirement.
type ActivePeerCounter func() int

// Orchestrator owns the tick state machine described in spec.md §4.14.
type Orchestrator struct {
	mu                  sync.Mutex
	running             bool
	inFlightCycle       bool
	lastTickCompletedAt time.Time

	self             meshtypes.NodeID
	clock            func() time.Time
	tickInterval     time.Duration
	shutdownDeadline time.Duration

	collector *telemetry.Collector
	source    MetricSource
	analyzer  *analyzer.Analyzer
	planner   *planner.Planner
	quorum    *quorum.Validator
	executor  *executor.Executor
	knowledge *knowledge.Recorder

	activePeers         ActivePeerCounter
	quorumWindow        time.Duration
	reputationThreshold float64

	preflight executor.Preflight
}

// Deps bundles the Orchestrator's collaborators, grouped to keep New's
// signature manageable.
type Deps struct {
	Self      meshtypes.NodeID
	Clock     func() time.Time
	Collector *telemetry.Collector
	Source    MetricSource
	Analyzer  *analyzer.Analyzer
	Planner   *planner.Planner
	Quorum    *quorum.Validator
	Executor  *executor.Executor
	Knowledge *knowledge.Recorder

	TickInterval              time.Duration
	GracefulShutdownDeadline  time.Duration
	QuorumWindow              time.Duration
	ReputationQuorumThreshold float64

	ActivePeers ActivePeerCounter
	Preflight   executor.Preflight
}

// New constructs an Orchestrator from deps, filling defaults for any
// zero-valued durations/weights.
func New(deps Deps) *Orchestrator {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	tickInterval := deps.TickInterval
	if tickInterval <= 0 {
		tickInterval = DefaultTickInterval
	}
	shutdownDeadline := deps.GracefulShutdownDeadline
	if shutdownDeadline <= 0 {
		shutdownDeadline = DefaultGracefulShutdownDeadline
	}
	quorumWindow := deps.QuorumWindow
	if quorumWindow <= 0 {
		quorumWindow = quorum.DefaultQuorumWindowSlots * time.Second
	}
	reputationThreshold := deps.ReputationQuorumThreshold
	if reputationThreshold <= 0 {
		reputationThreshold = quorum.DefaultReputationQuorumThreshold
	}

	return &Orchestrator{
		self:                deps.Self,
		clock:               clock,
		tickInterval:        tickInterval,
		shutdownDeadline:    shutdownDeadline,
		collector:           deps.Collector,
		source:              deps.Source,
		analyzer:            deps.Analyzer,
		planner:             deps.Planner,
		quorum:              deps.Quorum,
		executor:            deps.Executor,
		knowledge:           deps.Knowledge,
		activePeers:         deps.ActivePeers,
		quorumWindow:        quorumWindow,
		reputationThreshold: reputationThreshold,
		preflight:           deps.Preflight,
	}
}

// Run starts the tick loop and blocks until ctx is canceled. Cancellation
// propagates into an in-flight cycle's verification wait and quorum poll,
// which both select on ctx.Done(), so a cycle unwinds at its next
// cooperative boundary rather than running to completion; callers that
// want a hard upper bound on that unwind should derive ctx with
// shutdownDeadline via context.WithTimeout before canceling it.
func (o *Orchestrator) Run(ctx context.Context) {
	o.mu.Lock()
	o.running = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	ticker := time.NewTicker(o.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.Tick(ctx)
		}
	}
}

// Running reports whether Run's loop is active.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// LastTickCompletedAt reports when the most recent tick finished.
func (o *Orchestrator) LastTickCompletedAt() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastTickCompletedAt
}

// InFlightCycle reports whether a cycle is currently executing.
func (o *Orchestrator) InFlightCycle() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inFlightCycle
}

// Tick runs one Monitor→Analyze→Plan→(Quorum)→Execute→Record cycle,
// skipping entirely if a prior cycle is still in flight, per spec.md
// §4.14.
func (o *Orchestrator) Tick(ctx context.Context) {
	o.mu.Lock()
	if o.inFlightCycle {
		o.mu.Unlock()
		metrics.CycleSkipped.Inc()
		logger.Warn("mape-k tick skipped: previous cycle still in flight")
		return
	}
	o.inFlightCycle = true
	o.mu.Unlock()

	metrics.CyclesStarted.Inc()
	result := o.runCycle(ctx)

	o.mu.Lock()
	o.inFlightCycle = false
	o.lastTickCompletedAt = o.clock()
	o.mu.Unlock()

	metrics.CyclesCompleted.WithLabelValues(result).Inc()
}

func (o *Orchestrator) runCycle(ctx context.Context) (result string) {
	snapshot := timeStage("monitor", o.monitor)

	violations := timeStage("analyze", func() []meshtypes.Violation { return o.analyze(snapshot) })
	for _, v := range violations {
		metrics.ViolationsDetected.WithLabelValues(v.Kind).Inc()
	}
	if len(violations) == 0 {
		return "no_action"
	}
	if ctx.Err() != nil {
		return "failed"
	}

	policies := timeStage("plan", func() []meshtypes.RemediationPolicy { return o.planner.Plan(violations) })
	if len(policies) == 0 {
		return "no_action"
	}
	top := policies[0]
	violation := findViolation(violations, top.TargetViolationID)
	if violation == nil {
		return "no_action"
	}

	if top.ApprovalRequired {
		if !o.awaitQuorum(ctx, top) {
			return "failed"
		}
	}

	if !o.executor.TryBeginExecution(top) {
		logger.Warn("mape-k skipping policy: another policy already in flight for this target",
			logger.String("target_violation_id", top.TargetViolationID))
		return "no_action"
	}

	outcome := timeStage("execute", func() meshtypes.PolicyOutcome {
		return o.executor.Execute(ctx, top, violation.Severity, o.preflight, o.probeFor(violation.Kind, violation.Severity))
	})

	timeStageVoid("knowledge", func() {
		if len(top.Actions) > 0 {
			o.knowledge.Record(outcome, violation.Kind, top.Actions[0].Kind)
		}
	})

	if outcome.Result == meshtypes.ResultSuccess {
		return "remediated"
	}
	return "failed"
}

func (o *Orchestrator) monitor() telemetry.Snapshot {
	if o.source != nil {
		o.collector.PullLocal(o.self, o.source)
	}
	return o.collector.Snapshot()
}

func (o *Orchestrator) analyze(snapshot telemetry.Snapshot) []meshtypes.Violation {
	return o.analyzer.Analyze(snapshot)
}

// probeFor builds a ViolationProbe that re-runs Monitor+Analyze and
// reports the state of causeKind relative to priorSeverity.
func (o *Orchestrator) probeFor(causeKind string, priorSeverity meshtypes.Severity) executor.ViolationProbe {
	return func(targetViolationID string) executor.ProbeResult {
		snapshot := o.collector.Snapshot()
		violations := o.analyzer.Analyze(snapshot)

		result := executor.ProbeResult{}
		for _, v := range violations {
			if v.Kind != causeKind {
				continue
			}
			result.StillPresent = true
			if v.Severity > result.CurrentSeverity {
				result.CurrentSeverity = v.Severity
			}
			if v.Severity > priorSeverity {
				result.NewHigherSeverityAppeared = true
			}
		}
		return result
	}
}

func findViolation(violations []meshtypes.Violation, id string) *meshtypes.Violation {
	for i := range violations {
		if violations[i].ID == id {
			return &violations[i]
		}
	}
	return nil
}

// awaitQuorum solicits attestations for a policy requiring approval and
// blocks (honoring ctx) until accepted, timed out, or the quorum window
// elapses.
func (o *Orchestrator) awaitQuorum(ctx context.Context, policy meshtypes.RemediationPolicy) bool {
	if o.quorum == nil {
		return false
	}
	eventID := policy.ID
	o.quorum.Open(eventID, o.quorumWindow)

	required := quorum.MinAttestersSmallMesh
	if o.activePeers != nil {
		required = quorum.RequiredAttesters(o.activePeers())
	}

	ticker := time.NewTicker(quorumPollInterval)
	defer ticker.Stop()

	for {
		switch o.quorum.Evaluate(eventID, required, o.reputationThreshold) {
		case quorum.DecisionAccepted:
			return true
		case quorum.DecisionTimedOut:
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// timeStage runs fn, recording its wall-clock duration under the named
// MAPE-K stage histogram.
func timeStage[T any](stage string, fn func() T) T {
	start := time.Now()
	out := fn()
	metrics.CycleDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	return out
}

func timeStageVoid(stage string, fn func()) {
	start := time.Now()
	fn()
	metrics.CycleDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
