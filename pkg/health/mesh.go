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
	"fmt"
	"time"

	"github.com/x0tta6bl4-ai/x0mesh/internal/core"
	"github.com/x0tta6bl4-ai/x0mesh/internal/meshtypes"
)

// staleTickFactor bounds how many tick intervals may elapse without a
// completed cycle before the control loop is considered degraded.
const staleTickFactor = 5

// CheckMesh reports the MAPE-K control loop's liveness and the peer
// table's composition.
func CheckMesh(c *core.CoreHandle, tickInterval time.Duration) *MeshHealth {
	mesh := &MeshHealth{Status: StatusHealthy}

	running := c.Orchestrator().Running()
	mesh.OrchestratorRunning = running
	mesh.PQCMockMode = c.PQC().MockMode()

	last := c.Orchestrator().LastTickCompletedAt()
	if !last.IsZero() {
		mesh.LastTickAgo = time.Since(last).Round(time.Millisecond).String()
	}

	for _, p := range c.Peers().Snapshot() {
		mesh.TotalPeers++
		switch p.State {
		case meshtypes.PeerActive:
			mesh.ActivePeers++
		case meshtypes.PeerQuarantined:
			mesh.QuarantinedPeers++
		}
	}

	switch {
	case running && tickInterval > 0 && !last.IsZero() && time.Since(last) > tickInterval*staleTickFactor:
		mesh.Status = StatusDegraded
		mesh.Error = fmt.Sprintf("no completed tick in over %s", mesh.LastTickAgo)
	case !running:
		mesh.Status = StatusUnhealthy
		mesh.Error = "control loop is not running"
	}

	return mesh
}
