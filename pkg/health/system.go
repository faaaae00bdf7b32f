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
	"runtime"
	"syscall"
)

const (
	MemoryThresholdHealthy  = 70.0
	MemoryThresholdDegraded = 85.0
	DiskThresholdHealthy    = 70.0
	DiskThresholdDegraded   = 85.0
)

// CheckSystem reports the node process's memory, goroutine, and disk
// usage against the thresholds above.
func CheckSystem() *SystemHealth {
	sys := &SystemHealth{Status: StatusHealthy}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	sys.MemoryUsedMB = m.Alloc / 1024 / 1024
	sys.MemoryTotalMB = m.Sys / 1024 / 1024
	if sys.MemoryTotalMB > 0 {
		sys.MemoryPercent = float64(sys.MemoryUsedMB) / float64(sys.MemoryTotalMB) * 100
	}
	sys.GoRoutines = runtime.NumGoroutine()

	var stat syscall.Statfs_t
	if err := syscall.Statfs(".", &stat); err == nil {
		totalBytes := stat.Blocks * uint64(stat.Bsize)
		freeBytes := stat.Bfree * uint64(stat.Bsize)
		usedBytes := totalBytes - freeBytes

		sys.DiskTotalGB = totalBytes / 1024 / 1024 / 1024
		sys.DiskUsedGB = usedBytes / 1024 / 1024 / 1024
		if totalBytes > 0 {
			sys.DiskPercent = float64(usedBytes) / float64(totalBytes) * 100
		}
	} else {
		sys.Error = err.Error()
	}

	switch {
	case sys.MemoryPercent >= MemoryThresholdDegraded || sys.DiskPercent >= DiskThresholdDegraded:
		sys.Status = StatusUnhealthy
	case sys.MemoryPercent >= MemoryThresholdHealthy || sys.DiskPercent >= DiskThresholdHealthy:
		sys.Status = StatusDegraded
	}

	return sys
}
