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

package pqc

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// WorkerPool bounds CPU-heavy PQC operations (keygen/encapsulate/sign) to
// `pqc_workers` concurrent goroutines so the network plane's cooperative
// loop is never blocked by crypto work (spec.md §5).
type WorkerPool struct {
	sem *semaphore.Weighted
}

// NewWorkerPool creates a pool with the given worker count.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	return &WorkerPool{sem: semaphore.NewWeighted(int64(workers))}
}

// Submit runs fn on the pool, blocking until a worker slot is free or ctx
// is cancelled.
func (p *WorkerPool) Submit(ctx context.Context, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}

// SubmitAll runs each fn concurrently, bounded by the pool's capacity,
// returning the first error encountered (if any) after all complete.
func (p *WorkerPool) SubmitAll(ctx context.Context, fns ...func() error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, fn := range fns {
		fn := fn
		g.Go(func() error {
			return p.Submit(gctx, fn)
		})
	}
	return g.Wait()
}
