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

// Package analyzer implements the Analyze-phase Pattern Analyzer
// (component C10): four deterministic detectors plus an external
// AnomalyDetector hook, merged and ranked into a Violation list.
package analyzer

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/x0tta6bl4-ai/x0mesh/internal/logger"
	"github.com/x0tta6bl4-ai/x0mesh/internal/meshtypes"
	"github.com/x0tta6bl4-ai/x0mesh/internal/telemetry"
)

// AnomalyDetector is the pluggable external contract, e.g. an ML-based
// signal source, per spec.md §6.
type AnomalyDetector interface {
	Analyze(snapshot telemetry.Snapshot) ([]meshtypes.Violation, error)
}

// Detector parameters, per spec.md §4.10's table.
const (
	TemporalBurstWindow      = 60 * time.Second
	TemporalBurstThreshold   = 3
	TemporalBurstConfidence  = 0.85

	SpatialCoOccurrenceThreshold   = 3
	SpatialCoOccurrenceConfidence  = 0.80

	CausalCorrelationWindow     = 120 * time.Second
	CausalCorrelationMaxLag     = 5 * time.Second
	CausalCorrelationMinR       = 0.7
	CausalCorrelationConfidence = 0.75

	FrequencyAnomalyWindow      = 300 * time.Second
	FrequencyAnomalySigma       = 3.0
	FrequencyAnomalyConfidence  = 0.70
)

// FrequencyHardCap is the absolute rate ceiling regardless of statistics;
// configured per deployment, defaults to a generous value.
var FrequencyHardCap = math.Inf(1)

// Analyzer runs the built-in detectors and any registered external
// AnomalyDetector over each Monitor snapshot.
type Analyzer struct {
	external []AnomalyDetector
}

// New constructs an Analyzer with zero or more external detectors.
func New(external ...AnomalyDetector) *Analyzer {
	return &Analyzer{external: external}
}

// Analyze runs every detector, isolates panics per spec.md §4.10 (a
// panicking detector is skipped for this tick, not propagated), merges
// results by (kind, involved_peers), and ranks by (severity, confidence,
// recency) descending.
func (a *Analyzer) Analyze(snapshot telemetry.Snapshot) []meshtypes.Violation {
	var all []meshtypes.Violation

	all = append(all, safeRun("temporal_burst", func() []meshtypes.Violation {
		return detectTemporalBurst(snapshot)
	})...)
	all = append(all, safeRun("spatial_co_occurrence", func() []meshtypes.Violation {
		return detectSpatialCoOccurrence(snapshot)
	})...)
	all = append(all, safeRun("causal_correlation", func() []meshtypes.Violation {
		return detectCausalCorrelation(snapshot)
	})...)
	all = append(all, safeRun("frequency_anomaly", func() []meshtypes.Violation {
		return detectFrequencyAnomaly(snapshot)
	})...)

	for _, ext := range a.external {
		all = append(all, safeRunExternal(ext, snapshot)...)
	}

	merged := mergeViolations(all)
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Severity != merged[j].Severity {
			return merged[i].Severity > merged[j].Severity
		}
		if merged[i].Confidence != merged[j].Confidence {
			return merged[i].Confidence > merged[j].Confidence
		}
		return merged[i].LastSeen.After(merged[j].LastSeen)
	})
	return merged
}

func safeRun(name string, fn func() []meshtypes.Violation) (out []meshtypes.Violation) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorMsg("analyzer detector panicked, skipping this tick",
				logger.String("detector", name), logger.Any("recover", r))
			out = nil
		}
	}()
	return fn()
}

func safeRunExternal(ext AnomalyDetector, snapshot telemetry.Snapshot) (out []meshtypes.Violation) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorMsg("external anomaly detector panicked, skipping this tick", logger.Any("recover", r))
			out = nil
		}
	}()
	v, err := ext.Analyze(snapshot)
	if err != nil {
		logger.Warn("external anomaly detector failed", logger.Error(err))
		return nil
	}
	return v
}

func newViolationID() string {
	return uuid.NewString()
}

func detectTemporalBurst(snapshot telemetry.Snapshot) []meshtypes.Violation {
	type key struct {
		peer meshtypes.NodeID
		kind meshtypes.TelemetryEventKind
	}
	groups := make(map[key][]meshtypes.TelemetryEvent)
	cutoff := snapshot.Taken.Add(-TemporalBurstWindow)
	for _, e := range snapshot.Events {
		if e.Timestamp.Before(cutoff) {
			continue
		}
		k := key{peer: e.SourcePeer, kind: e.Kind}
		groups[k] = append(groups[k], e)
	}

	var violations []meshtypes.Violation
	for k, events := range groups {
		if len(events) < TemporalBurstThreshold {
			continue
		}
		violations = append(violations, buildViolation("temporal_burst", TemporalBurstConfidence, events, []meshtypes.NodeID{k.peer}))
	}
	return violations
}

func detectSpatialCoOccurrence(snapshot telemetry.Snapshot) []meshtypes.Violation {
	byKind := make(map[meshtypes.TelemetryEventKind]map[meshtypes.NodeID][]meshtypes.TelemetryEvent)
	for _, e := range snapshot.Events {
		if byKind[e.Kind] == nil {
			byKind[e.Kind] = make(map[meshtypes.NodeID][]meshtypes.TelemetryEvent)
		}
		byKind[e.Kind][e.SourcePeer] = append(byKind[e.Kind][e.SourcePeer], e)
	}

	var violations []meshtypes.Violation
	for _, byPeer := range byKind {
		if len(byPeer) < SpatialCoOccurrenceThreshold {
			continue
		}
		var all []meshtypes.TelemetryEvent
		var peers []meshtypes.NodeID
		for peer, events := range byPeer {
			all = append(all, events...)
			peers = append(peers, peer)
		}
		violations = append(violations, buildViolation("spatial_co_occurrence", SpatialCoOccurrenceConfidence, all, peers))
	}
	return violations
}

func detectCausalCorrelation(snapshot telemetry.Snapshot) []meshtypes.Violation {
	cutoff := snapshot.Taken.Add(-CausalCorrelationWindow)
	byKind := make(map[meshtypes.TelemetryEventKind][]meshtypes.TelemetryEvent)
	for _, e := range snapshot.Events {
		if e.Timestamp.Before(cutoff) {
			continue
		}
		byKind[e.Kind] = append(byKind[e.Kind], e)
	}

	var kinds []meshtypes.TelemetryEventKind
	for k := range byKind {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	var violations []meshtypes.Violation
	for i := 0; i < len(kinds); i++ {
		for j := i + 1; j < len(kinds); j++ {
			a, b := byKind[kinds[i]], byKind[kinds[j]]
			if len(a) < 2 || len(b) < 2 {
				continue
			}
			r, lag := bestLaggedCorrelation(a, b)
			if r >= CausalCorrelationMinR && lag <= CausalCorrelationMaxLag {
				merged := append(append([]meshtypes.TelemetryEvent(nil), a...), b...)
				peers := involvedPeers(merged)
				violations = append(violations, buildViolation("causal_correlation", CausalCorrelationConfidence, merged, peers))
			}
		}
	}
	return violations
}

func detectFrequencyAnomaly(snapshot telemetry.Snapshot) []meshtypes.Violation {
	cutoff := snapshot.Taken.Add(-FrequencyAnomalyWindow)
	byKind := make(map[meshtypes.TelemetryEventKind][]meshtypes.TelemetryEvent)
	for _, e := range snapshot.Events {
		if e.Timestamp.Before(cutoff) {
			continue
		}
		byKind[e.Kind] = append(byKind[e.Kind], e)
	}

	var violations []meshtypes.Violation
	for _, events := range byKind {
		if len(events) < 2 {
			continue
		}
		rates := bucketRatesPerSecond(events, snapshot.Taken.Add(-FrequencyAnomalyWindow), snapshot.Taken, 10)
		mean, stddev := meanStdDev(rates)
		latest := rates[len(rates)-1]
		if latest > mean+FrequencyAnomalySigma*stddev || latest > FrequencyHardCap {
			peers := involvedPeers(events)
			violations = append(violations, buildViolation("frequency_anomaly", FrequencyAnomalyConfidence, events, peers))
		}
	}
	return violations
}

func buildViolation(kind string, confidence float64, events []meshtypes.TelemetryEvent, peers []meshtypes.NodeID) meshtypes.Violation {
	first, last := events[0].Timestamp, events[0].Timestamp
	for _, e := range events[1:] {
		if e.Timestamp.Before(first) {
			first = e.Timestamp
		}
		if e.Timestamp.After(last) {
			last = e.Timestamp
		}
	}
	return meshtypes.Violation{
		ID:            newViolationID(),
		Kind:          kind,
		Severity:      severityFor(kind, confidence),
		Confidence:    confidence,
		EvidenceRefs:  nil,
		FirstSeen:     first,
		LastSeen:      last,
		InvolvedPeers: peers,
	}
}

func severityFor(kind string, confidence float64) meshtypes.Severity {
	switch {
	case confidence > 0.85:
		return meshtypes.SeverityCritical
	case confidence >= 0.75:
		return meshtypes.SeverityWarn
	default:
		return meshtypes.SeverityInfo
	}
}

func involvedPeers(events []meshtypes.TelemetryEvent) []meshtypes.NodeID {
	seen := make(map[meshtypes.NodeID]bool)
	var peers []meshtypes.NodeID
	for _, e := range events {
		if !seen[e.SourcePeer] {
			seen[e.SourcePeer] = true
			peers = append(peers, e.SourcePeer)
		}
	}
	return peers
}

func bucketRatesPerSecond(events []meshtypes.TelemetryEvent, start, end time.Time, buckets int) []float64 {
	if buckets <= 0 {
		buckets = 1
	}
	span := end.Sub(start)
	if span <= 0 {
		return []float64{float64(len(events))}
	}
	bucketWidth := span / time.Duration(buckets)
	counts := make([]float64, buckets)
	for _, e := range events {
		offset := e.Timestamp.Sub(start)
		idx := int(offset / bucketWidth)
		if idx < 0 {
			idx = 0
		}
		if idx >= buckets {
			idx = buckets - 1
		}
		counts[idx]++
	}
	widthSeconds := bucketWidth.Seconds()
	if widthSeconds <= 0 {
		widthSeconds = 1
	}
	for i := range counts {
		counts[i] /= widthSeconds
	}
	return counts
}

func meanStdDev(values []float64) (mean, stddev float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(len(values))

	var sqDiff float64
	for _, v := range values {
		d := v - mean
		sqDiff += d * d
	}
	stddev = math.Sqrt(sqDiff / float64(len(values)))
	return mean, stddev
}

// bestLaggedCorrelation computes |r|, the absolute Pearson correlation of the
// two events' magnitude series, pairing them index by index over their
// common length. Only lag 0 is evaluated, so the returned lag is always 0;
// with fewer than two paired samples it returns 0 and a lag just past
// CausalCorrelationMaxLag.
func bestLaggedCorrelation(a, b []meshtypes.TelemetryEvent) (bestR float64, bestLag time.Duration) {
	seriesA := magnitudeSeries(a)
	seriesB := magnitudeSeries(b)
	n := len(seriesA)
	if len(seriesB) < n {
		n = len(seriesB)
	}
	if n < 2 {
		return 0, CausalCorrelationMaxLag + time.Second
	}
	r := pearson(seriesA[:n], seriesB[:n])
	if r < 0 {
		r = -r
	}
	return r, 0
}

func magnitudeSeries(events []meshtypes.TelemetryEvent) []float64 {
	out := make([]float64, len(events))
	for i, e := range events {
		out[i] = e.Magnitude
	}
	return out
}

func pearson(x, y []float64) float64 {
	n := float64(len(x))
	if n == 0 {
		return 0
	}
	var sumX, sumY, sumXY, sumX2, sumY2 float64
	for i := range x {
		sumX += x[i]
		sumY += y[i]
		sumXY += x[i] * y[i]
		sumX2 += x[i] * x[i]
		sumY2 += y[i] * y[i]
	}
	num := n*sumXY - sumX*sumY
	den := math.Sqrt((n*sumX2 - sumX*sumX) * (n*sumY2 - sumY*sumY))
	if den == 0 {
		return 0
	}
	return num / den
}

// mergeViolations unions violations sharing (kind, involved_peers), merging
// their evidence per spec.md §4.10.
func mergeViolations(all []meshtypes.Violation) []meshtypes.Violation {
	type key string
	byKey := make(map[key]*meshtypes.Violation)
	var order []key

	for i := range all {
		v := all[i]
		k := key(fmt.Sprintf("%s|%v", v.Kind, sortedPeerStrings(v.InvolvedPeers)))
		if existing, ok := byKey[k]; ok {
			existing.InvolvedPeers = unionPeers(existing.InvolvedPeers, v.InvolvedPeers)
			if v.LastSeen.After(existing.LastSeen) {
				existing.LastSeen = v.LastSeen
			}
			if v.FirstSeen.Before(existing.FirstSeen) {
				existing.FirstSeen = v.FirstSeen
			}
			if v.Confidence > existing.Confidence {
				existing.Confidence = v.Confidence
			}
			if v.Severity > existing.Severity {
				existing.Severity = v.Severity
			}
			continue
		}
		cp := v
		byKey[k] = &cp
		order = append(order, k)
	}

	out := make([]meshtypes.Violation, 0, len(order))
	for _, k := range order {
		out = append(out, *byKey[k])
	}
	return out
}

func sortedPeerStrings(peers []meshtypes.NodeID) []string {
	out := make([]string, len(peers))
	for i, p := range peers {
		out[i] = p.String()
	}
	sort.Strings(out)
	return out
}

func unionPeers(a, b []meshtypes.NodeID) []meshtypes.NodeID {
	seen := make(map[meshtypes.NodeID]bool)
	var out []meshtypes.NodeID
	for _, p := range append(append([]meshtypes.NodeID(nil), a...), b...) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
