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

// TelemetryEventKind classifies a telemetry sample.
type TelemetryEventKind string

// DefaultTelemetryWindowSize is the default ring buffer capacity.
const DefaultTelemetryWindowSize = 4096

// TelemetryEvent is a single sample ingested by the Telemetry Collector,
// either pulled locally via a MetricSource or reported by a peer.
type TelemetryEvent struct {
	Timestamp  time.Time
	SourcePeer NodeID
	Kind       TelemetryEventKind
	Magnitude  float64
	Labels     map[string]string
}

// Severity ranks a Violation's urgency.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warn"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Violation is the output of the Pattern Analyzer: an anomaly with
// evidence and severity, subject to merge-by-(kind, involved_peers).
type Violation struct {
	ID             string
	Kind           string
	Severity       Severity
	Confidence     float64
	EvidenceRefs   []int
	FirstSeen      time.Time
	LastSeen       time.Time
	InvolvedPeers  []NodeID
}
