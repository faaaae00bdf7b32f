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

package health

import (
	"time"

	"github.com/x0tta6bl4-ai/x0mesh/internal/core"
)

// Checker combines mesh and system checks into one health snapshot.
type Checker struct {
	core         *core.CoreHandle
	tickInterval time.Duration
}

func NewChecker(c *core.CoreHandle, tickInterval time.Duration) *Checker {
	return &Checker{core: c, tickInterval: tickInterval}
}

// CheckAll runs every check and folds the results into an overall status:
// unhealthy if any component is unhealthy, degraded if any is degraded,
// healthy otherwise.
func (c *Checker) CheckAll() *HealthStatus {
	status := &HealthStatus{Timestamp: time.Now(), Status: StatusHealthy}

	mesh := CheckMesh(c.core, c.tickInterval)
	status.Mesh = mesh
	if mesh.Error != "" {
		status.Errors = append(status.Errors, mesh.Error)
	}

	sys := CheckSystem()
	status.System = sys
	if sys.Error != "" {
		status.Errors = append(status.Errors, sys.Error)
	}

	status.Status = worseOf(mesh.Status, sys.Status)
	return status
}

func worseOf(a, b Status) Status {
	rank := map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
