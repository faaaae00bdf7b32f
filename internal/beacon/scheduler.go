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

// Package beacon implements the single-threaded cooperative TDMA-like slot
// clock that drives beacon emission and drift correction (component C4).
package beacon

import (
	"sort"
	"sync"
	"time"

	"github.com/x0tta6bl4-ai/x0mesh/internal/meshtypes"
	"github.com/x0tta6bl4-ai/x0mesh/internal/metrics"
)

// ClockSource abstracts wall time so tests can inject a virtual clock,
// per spec.md §6.
type ClockSource interface {
	Now() time.Time
}

// systemClock is the production ClockSource.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the default ClockSource backed by wall time.
var SystemClock ClockSource = systemClock{}

// DriftReport is one neighbor's reported slot number at the moment we
// heard their beacon, used to compute the median drift correction.
type DriftReport struct {
	Peer         meshtypes.NodeID
	ReportedSlot meshtypes.Slot
}

// Scheduler is the per-node slot clock (C4).
type Scheduler struct {
	mu sync.Mutex

	self      meshtypes.NodeID
	clock     ClockSource
	slotMS    int
	epoch     meshtypes.Epoch
	startedAt time.Time

	driftThresholdMS int64
	damping          float64

	currentSlot   meshtypes.Slot
	clockOffsetMS int64

	pendingReports []DriftReport
}

// New constructs a Scheduler anchored at the clock's current time.
func New(self meshtypes.NodeID, clock ClockSource, slotMS, driftThresholdMS int, damping float64) *Scheduler {
	return &Scheduler{
		self:             self,
		clock:            clock,
		slotMS:           slotMS,
		startedAt:        clock.Now(),
		driftThresholdMS: int64(driftThresholdMS),
		damping:          damping,
	}
}

// CurrentSlot computes the slot index for the current (drift-corrected)
// wall time.
func (s *Scheduler) CurrentSlot() meshtypes.Slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentSlotLocked()
}

func (s *Scheduler) currentSlotLocked() meshtypes.Slot {
	elapsedMS := s.clock.Now().Sub(s.startedAt).Milliseconds() + s.clockOffsetMS
	if elapsedMS < 0 {
		elapsedMS = 0
	}
	return meshtypes.Slot(elapsedMS / int64(s.slotMS))
}

// Owner computes the deterministic owner of a slot given the active peer
// set (including self), via lowest-NodeID-wins round robin over the
// sorted member set.
func Owner(slot meshtypes.Slot, members []meshtypes.NodeID) meshtypes.NodeID {
	if len(members) == 0 {
		var zero meshtypes.NodeID
		return zero
	}
	sorted := append([]meshtypes.NodeID(nil), members...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })
	idx := int(uint64(slot) % uint64(len(sorted)))
	return sorted[idx]
}

// IsMySlot reports whether self owns the current slot among members.
func (s *Scheduler) IsMySlot(members []meshtypes.NodeID) bool {
	return Owner(s.CurrentSlot(), members) == s.self
}

// RecordDriftReport queues a neighbor's reported slot for the next
// correction pass. Called by the Gossip layer as beacons are received.
func (s *Scheduler) RecordDriftReport(r DriftReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingReports = append(s.pendingReports, r)
}

// CorrectDrift computes the median offset of queued neighbor reports
// against the local slot and, if it exceeds driftThresholdMS, applies a
// damped correction to the local clock. Returns the applied correction in
// milliseconds (0 if no correction was needed).
func (s *Scheduler) CorrectDrift() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pendingReports) == 0 {
		return 0
	}

	local := s.currentSlotLocked()
	deltas := make([]int64, 0, len(s.pendingReports))
	for _, r := range s.pendingReports {
		deltas = append(deltas, (int64(r.ReportedSlot)-int64(local))*int64(s.slotMS))
	}
	s.pendingReports = s.pendingReports[:0]

	median := medianInt64(deltas)
	if abs64(median) <= s.driftThresholdMS {
		return 0
	}

	correction := int64(float64(median) * s.damping)
	s.clockOffsetMS += correction
	metrics.SlotDriftSeconds.Observe(float64(correction) / 1000.0)
	return correction
}

func medianInt64(vals []int64) int64 {
	sorted := append([]int64(nil), vals...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
