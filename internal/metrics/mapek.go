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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CyclesStarted counts MAPE-K control loop cycles started.
	CyclesStarted = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mapek",
			Name:      "cycles_started_total",
			Help:      "Total MAPE-K cycles started",
		},
	)

	// CyclesCompleted counts completed cycles by result.
	CyclesCompleted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mapek",
			Name:      "cycles_completed_total",
			Help:      "Total MAPE-K cycles completed, by result",
		},
		[]string{"result"}, // no_action, remediated, failed
	)

	// CycleSkipped counts cycles skipped because one was already in flight.
	CycleSkipped = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mapek",
			Name:      "cycles_skipped_total",
			Help:      "Cycles skipped because a prior cycle was still in flight",
		},
	)

	// CycleDuration tracks the duration of each MAPE-K stage, by stage.
	CycleDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mapek",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each MAPE-K stage",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"stage"}, // monitor, analyze, plan, execute, knowledge
	)

	// ViolationsDetected counts invariant violations found by the analyzer.
	ViolationsDetected = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mapek",
			Name:      "violations_detected_total",
			Help:      "Invariant violations detected by the analyzer, by kind",
		},
		[]string{"kind"},
	)

	// ActionsExecuted counts remediation actions applied, by type and outcome.
	ActionsExecuted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mapek",
			Name:      "actions_executed_total",
			Help:      "Remediation actions executed, by type and outcome",
		},
		[]string{"action", "outcome"}, // outcome: applied, rolled_back, failed
	)

	// RollbacksTriggered counts rollback operations.
	RollbacksTriggered = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mapek",
			Name:      "rollbacks_total",
			Help:      "Total rollbacks triggered after a failed remediation",
		},
	)
)
