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
	"sort"
	"sync"

	"github.com/x0tta6bl4-ai/x0mesh/internal/meshtypes"
)

type pairKey struct {
	causeClass string
	action     meshtypes.ActionKind
}

// MemStore is a process-local KnowledgeStore, the in-core default used
// when no external store is configured. Knowledge persistence across
// restarts is the caller's concern (spec.md §1 names KnowledgeStore
// persistence as out of core scope).
type MemStore struct {
	mu    sync.Mutex
	stats map[pairKey]Stats
}

// NewMemStore constructs an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{stats: make(map[pairKey]Stats)}
}

// Record updates the (cause_class, action_type) tally for outcome.Result.
func (m *MemStore) Record(outcome meshtypes.PolicyOutcome, causeClass string, actionType meshtypes.ActionKind) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey{causeClass: causeClass, action: actionType}
	s := m.stats[key]
	switch outcome.Result {
	case meshtypes.ResultSuccess:
		s.NSuccess++
	case meshtypes.ResultPartial:
		s.NPartial++
	case meshtypes.ResultIneffective:
		s.NIneffective++
	case meshtypes.ResultDegradation:
		s.NDegradation++
	}
	m.stats[key] = s
}

// Stats returns the current tally for (causeClass, actionType).
func (m *MemStore) Stats(causeClass string, actionType meshtypes.ActionKind) Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats[pairKey{causeClass: causeClass, action: actionType}]
}

// ActionTypesFor returns every action type ever recorded against
// causeClass, sorted for deterministic iteration.
func (m *MemStore) ActionTypesFor(causeClass string) []meshtypes.ActionKind {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []meshtypes.ActionKind
	for key := range m.stats {
		if key.causeClass == causeClass {
			out = append(out, key.action)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
