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

// Package telemetry implements the Monitor-phase Telemetry Collector
// (component C9): a bounded ring buffer fed by a local MetricSource and
// peer-reported events, serving a copy-on-read snapshot to the Analyzer.
package telemetry

import (
	"sync"
	"time"

	"github.com/x0tta6bl4-ai/x0mesh/internal/meshtypes"
)

// DefaultWindowSeconds is the staleness eviction horizon, per spec.md §4.9.
const DefaultWindowSeconds = 300

// DefaultPeerTelemetryRate bounds peer-reported events ingested per peer
// per slot.
const DefaultPeerTelemetryRate = 20

// MetricSource is the pluggable contract for local counters/gauges,
// per spec.md §6.
type MetricSource interface {
	Collect() map[string]float64
}

// Snapshot is a consistent, copy-on-read view of the telemetry window.
type Snapshot struct {
	Events []meshtypes.TelemetryEvent
	Taken  time.Time
}

// Collector maintains the bounded telemetry ring buffer. Single-producer
// (this collector) / single-consumer (the Analyzer) per spec.md §5.
type Collector struct {
	mu sync.Mutex

	capacity      int
	windowSeconds int
	clock         func() time.Time

	events []meshtypes.TelemetryEvent

	peerRateLimit int
	peerSlotCount map[meshtypes.NodeID]peerBudget
}

type peerBudget struct {
	slot  meshtypes.Slot
	count int
}

// New constructs a Collector. capacity defaults to
// meshtypes.DefaultTelemetryWindowSize, windowSeconds to
// DefaultWindowSeconds, and clock to time.Now if zero/nil.
func New(capacity, windowSeconds int, clock func() time.Time) *Collector {
	if capacity <= 0 {
		capacity = meshtypes.DefaultTelemetryWindowSize
	}
	if windowSeconds <= 0 {
		windowSeconds = DefaultWindowSeconds
	}
	if clock == nil {
		clock = time.Now
	}
	return &Collector{
		capacity:      capacity,
		windowSeconds: windowSeconds,
		clock:         clock,
		peerRateLimit: DefaultPeerTelemetryRate,
		peerSlotCount: make(map[meshtypes.NodeID]peerBudget),
	}
}

// PullLocal ingests every metric returned by source as a single telemetry
// event tagged with the local node as source.
func (c *Collector) PullLocal(self meshtypes.NodeID, source MetricSource) {
	now := c.clock()
	for name, value := range source.Collect() {
		c.append(meshtypes.TelemetryEvent{
			Timestamp:  now,
			SourcePeer: self,
			Kind:       meshtypes.TelemetryEventKind(name),
			Magnitude:  value,
			Labels:     nil,
		})
	}
}

// IngestPeerEvent records a signed, opt-in peer-reported event, bounded by
// peer_telemetry_rate per peer per slot. Returns false if the event was
// dropped for exceeding the peer's budget.
func (c *Collector) IngestPeerEvent(event meshtypes.TelemetryEvent, currentSlot meshtypes.Slot) bool {
	c.mu.Lock()
	budget := c.peerSlotCount[event.SourcePeer]
	if budget.slot != currentSlot {
		budget = peerBudget{slot: currentSlot, count: 0}
	}
	budget.count++
	c.peerSlotCount[event.SourcePeer] = budget
	admitted := budget.count <= c.peerRateLimit
	c.mu.Unlock()

	if !admitted {
		return false
	}
	c.append(event)
	return true
}

func (c *Collector) append(event meshtypes.TelemetryEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = append(c.events, event)
	if len(c.events) > c.capacity {
		c.events = c.events[len(c.events)-c.capacity:]
	}
	c.evictStaleLocked()
}

// evictStaleLocked drops events older than windowSeconds. Must be called
// with c.mu held.
func (c *Collector) evictStaleLocked() {
	if len(c.events) == 0 {
		return
	}
	cutoff := c.clock().Add(-time.Duration(c.windowSeconds) * time.Second)
	i := 0
	for i < len(c.events) && c.events[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		c.events = append([]meshtypes.TelemetryEvent(nil), c.events[i:]...)
	}
}

// Snapshot returns a consistent, copy-on-read view of the window, evicting
// stale events first so the Analyzer never sees torn or expired data.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictStaleLocked()

	out := make([]meshtypes.TelemetryEvent, len(c.events))
	copy(out, c.events)
	return Snapshot{Events: out, Taken: c.clock()}
}

// Len reports the current number of retained events.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}
