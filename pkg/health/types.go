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

// Package health aggregates a node's self-reported health: the MAPE-K
// control loop's liveness, the peer mesh's composition, and process
// resource usage.
package health

import "time"

// Status is the overall health verdict.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// HealthStatus is the complete health snapshot returned by the /health
// endpoint.
type HealthStatus struct {
	Status    Status       `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
	Mesh      *MeshHealth  `json:"mesh,omitempty"`
	System    *SystemHealth `json:"system,omitempty"`
	Errors    []string     `json:"errors,omitempty"`
}

// MeshHealth reports the control loop and peer mesh's condition.
type MeshHealth struct {
	Status             Status `json:"status"`
	OrchestratorRunning bool  `json:"orchestrator_running"`
	LastTickAgo         string `json:"last_tick_ago,omitempty"`
	ActivePeers         int    `json:"active_peers"`
	QuarantinedPeers    int    `json:"quarantined_peers"`
	TotalPeers          int    `json:"total_peers"`
	PQCMockMode         bool   `json:"pqc_mock_mode"`
	Error               string `json:"error,omitempty"`
}

// SystemHealth reports process-level resource usage.
type SystemHealth struct {
	Status        Status  `json:"status"`
	MemoryUsedMB  uint64  `json:"memory_used_mb"`
	MemoryTotalMB uint64  `json:"memory_total_mb"`
	MemoryPercent float64 `json:"memory_percent"`
	DiskUsedGB    uint64  `json:"disk_used_gb"`
	DiskTotalGB   uint64  `json:"disk_total_gb"`
	DiskPercent   float64 `json:"disk_percent"`
	GoRoutines    int     `json:"goroutines"`
	Error         string  `json:"error,omitempty"`
}
