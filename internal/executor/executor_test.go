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

package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/x0tta6bl4-ai/x0mesh/internal/meshtypes"
)

type fakeHandler struct {
	applyErr    error
	applySucc   bool
	rollbackErr error
	rolledBack  bool
}

func (f *fakeHandler) Apply(ctx context.Context, action meshtypes.RemediationAction) (meshtypes.ActionResult, error) {
	if f.applyErr != nil {
		return meshtypes.ActionResult{}, f.applyErr
	}
	return meshtypes.ActionResult{Success: f.applySucc}, nil
}

func (f *fakeHandler) Rollback(ctx context.Context, action meshtypes.RemediationAction, result meshtypes.ActionResult) error {
	f.rolledBack = true
	return f.rollbackErr
}

func policyWith(actions ...meshtypes.RemediationAction) meshtypes.RemediationPolicy {
	return meshtypes.RemediationPolicy{ID: "p1", TargetViolationID: "v1", Actions: actions}
}

func TestExecuteSuccessClassifiesViolationGone(t *testing.T) {
	h := &fakeHandler{applySucc: true}
	ex := New(map[meshtypes.ActionKind]ActionHandler{meshtypes.ActionThrottleRequests: h}, func() time.Time { return time.Unix(0, 0) }, time.Millisecond)

	policy := policyWith(meshtypes.RemediationAction{Kind: meshtypes.ActionThrottleRequests, EstimatedLatencyMS: 10})
	probe := func(id string) ProbeResult { return ProbeResult{StillPresent: false} }

	outcome := ex.Execute(context.Background(), policy, meshtypes.SeverityWarn, nil, probe)
	if outcome.Result != meshtypes.ResultSuccess {
		t.Fatalf("Result = %v, want Success", outcome.Result)
	}
	if len(outcome.ActionsApplied) != 1 {
		t.Fatalf("ActionsApplied = %v, want 1 entry", outcome.ActionsApplied)
	}
}

func TestExecuteRollsBackOnActionFailure(t *testing.T) {
	good := &fakeHandler{applySucc: true}
	bad := &fakeHandler{applyErr: errors.New("boom")}
	ex := New(map[meshtypes.ActionKind]ActionHandler{
		meshtypes.ActionThrottleRequests: good,
		meshtypes.ActionQuarantine:       bad,
	}, func() time.Time { return time.Unix(0, 0) }, time.Millisecond)

	policy := policyWith(
		meshtypes.RemediationAction{Kind: meshtypes.ActionThrottleRequests, EstimatedLatencyMS: 10},
		meshtypes.RemediationAction{Kind: meshtypes.ActionQuarantine, EstimatedLatencyMS: 10},
	)

	outcome := ex.Execute(context.Background(), policy, meshtypes.SeverityWarn, nil, nil)
	if outcome.Result != meshtypes.ResultIneffective {
		t.Fatalf("Result = %v, want Ineffective", outcome.Result)
	}
	if !good.rolledBack {
		t.Fatal("expected the first, already-applied action to be rolled back")
	}
	if len(outcome.RollbackApplied) != 1 {
		t.Fatalf("RollbackApplied = %v, want 1 entry", outcome.RollbackApplied)
	}
}

func TestExecutePreflightFailureAbortsWithoutApplying(t *testing.T) {
	h := &fakeHandler{applySucc: true}
	ex := New(map[meshtypes.ActionKind]ActionHandler{meshtypes.ActionThrottleRequests: h}, func() time.Time { return time.Unix(0, 0) }, time.Millisecond)

	policy := policyWith(meshtypes.RemediationAction{Kind: meshtypes.ActionThrottleRequests, EstimatedLatencyMS: 10})
	preflight := func(p meshtypes.RemediationPolicy) error { return errors.New("target gone") }

	outcome := ex.Execute(context.Background(), policy, meshtypes.SeverityWarn, preflight, nil)
	if outcome.Result != meshtypes.ResultIneffective {
		t.Fatalf("Result = %v, want Ineffective", outcome.Result)
	}
	if len(outcome.ActionsApplied) != 0 {
		t.Fatal("expected no actions applied after preflight failure")
	}
}

func TestExecuteClassifiesDegradationOnNewHigherSeverity(t *testing.T) {
	h := &fakeHandler{applySucc: true}
	ex := New(map[meshtypes.ActionKind]ActionHandler{meshtypes.ActionThrottleRequests: h}, func() time.Time { return time.Unix(0, 0) }, time.Millisecond)

	policy := policyWith(meshtypes.RemediationAction{Kind: meshtypes.ActionThrottleRequests, EstimatedLatencyMS: 10})
	probe := func(id string) ProbeResult { return ProbeResult{NewHigherSeverityAppeared: true} }

	outcome := ex.Execute(context.Background(), policy, meshtypes.SeverityWarn, nil, probe)
	if outcome.Result != meshtypes.ResultDegradation {
		t.Fatalf("Result = %v, want Degradation", outcome.Result)
	}
}

func TestExecuteClassifiesPartialWhenSeverityDrops(t *testing.T) {
	h := &fakeHandler{applySucc: true}
	ex := New(map[meshtypes.ActionKind]ActionHandler{meshtypes.ActionThrottleRequests: h}, func() time.Time { return time.Unix(0, 0) }, time.Millisecond)

	policy := policyWith(meshtypes.RemediationAction{Kind: meshtypes.ActionThrottleRequests, EstimatedLatencyMS: 10})
	probe := func(id string) ProbeResult { return ProbeResult{StillPresent: true, CurrentSeverity: meshtypes.SeverityInfo} }

	outcome := ex.Execute(context.Background(), policy, meshtypes.SeverityCritical, nil, probe)
	if outcome.Result != meshtypes.ResultPartial {
		t.Fatalf("Result = %v, want Partial", outcome.Result)
	}
}

func TestExecuteClassifiesIneffectiveWhenUnchanged(t *testing.T) {
	h := &fakeHandler{applySucc: true}
	ex := New(map[meshtypes.ActionKind]ActionHandler{meshtypes.ActionThrottleRequests: h}, func() time.Time { return time.Unix(0, 0) }, time.Millisecond)

	policy := policyWith(meshtypes.RemediationAction{Kind: meshtypes.ActionThrottleRequests, EstimatedLatencyMS: 10})
	probe := func(id string) ProbeResult { return ProbeResult{StillPresent: true, CurrentSeverity: meshtypes.SeverityWarn} }

	outcome := ex.Execute(context.Background(), policy, meshtypes.SeverityWarn, nil, probe)
	if outcome.Result != meshtypes.ResultIneffective {
		t.Fatalf("Result = %v, want Ineffective", outcome.Result)
	}
}

func TestTryBeginExecutionEnforcesQueueOfOne(t *testing.T) {
	ex := New(nil, nil, 0)
	p1 := meshtypes.RemediationPolicy{ID: "p1", TargetViolationID: "v1"}
	p2 := meshtypes.RemediationPolicy{ID: "p2", TargetViolationID: "v1"}

	if !ex.TryBeginExecution(p1) {
		t.Fatal("expected first policy to reserve the target")
	}
	if ex.TryBeginExecution(p2) {
		t.Fatal("expected second policy targeting the same violation to be rejected")
	}
	ex.endExecution("v1")
	if !ex.TryBeginExecution(p2) {
		t.Fatal("expected reservation to succeed after the first execution ended")
	}
}

func TestMissingHandlerFailsAction(t *testing.T) {
	ex := New(map[meshtypes.ActionKind]ActionHandler{}, func() time.Time { return time.Unix(0, 0) }, time.Millisecond)
	policy := policyWith(meshtypes.RemediationAction{Kind: meshtypes.ActionQuarantine, EstimatedLatencyMS: 10})

	outcome := ex.Execute(context.Background(), policy, meshtypes.SeverityWarn, nil, nil)
	if outcome.Result != meshtypes.ResultIneffective {
		t.Fatalf("Result = %v, want Ineffective", outcome.Result)
	}
	if len(outcome.ActionsApplied) != 0 {
		t.Fatal("expected no actions applied when handler is missing")
	}
}
