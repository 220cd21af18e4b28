// Package workrun is the concurrency & resource model of spec.md §5: a
// parallel-for and a feeder-queue parallel-for, built on goroutines and
// github.com/sourcegraph/conc's panic-safe pool (the AMBIENT STACK choice
// recorded in SPEC_FULL.md — Manu343726-cucaracha's own dependency graph
// already pulls conc in). CPU-count detection and static work-splitting
// are adapted from flapc's parallel.go (GetNumCPUCores,
// CalculateWorkDistribution, GetThreadWorkRange); flapc's raw clone(2)/
// futex thread-creation code is deliberately not ported here — that code
// spawns threads inside a *compiled* flap program, not inside this
// process, and is simply the wrong layer for a multi-stage host-side
// pipeline (see DESIGN.md's dropped-files table).
package workrun

import (
	"os"
	"runtime"
	"strconv"
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// NumWorkers returns the configured parallelism: runtime.NumCPU() unless
// LDCORE_JOBS overrides it, following the same "read an explicit override,
// else ask the runtime" shape as flapc's GetNumCPUCores (which parsed
// /proc/cpuinfo as its runtime probe; here runtime.NumCPU is the Go-idiomatic
// equivalent of that probe).
func NumWorkers() int {
	if v := os.Getenv("LDCORE_JOBS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	n := runtime.NumCPU()
	if n < 1 {
		return 1
	}
	return n
}

// WorkRange splits [0, total) across numWorkers contiguous chunks, the
// last chunk absorbing the remainder — a direct generalization of flapc's
// CalculateWorkDistribution/GetThreadWorkRange pair from a fixed two-value
// return into a reusable range type.
type WorkRange struct {
	Start, End int
}

func Split(total, numWorkers int) []WorkRange {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	chunk := total / numWorkers
	remainder := total % numWorkers
	ranges := make([]WorkRange, numWorkers)
	start := 0
	for i := 0; i < numWorkers; i++ {
		end := start + chunk
		if i == numWorkers-1 {
			end += remainder
		}
		ranges[i] = WorkRange{Start: start, End: end}
		start = end
	}
	return ranges
}

// ParallelFor runs fn(i) for every i in [0, n) across NumWorkers() workers,
// via a conc pool so a panic in any worker is recovered and re-raised on
// Wait rather than crashing the process silently — spec.md §5's "a barrier
// per stage; no cooperative suspension, no cancellation" model, where a
// worker failure must still surface as a fatal diagnostic rather than a
// hung pipeline.
func ParallelFor(n int, fn func(i int)) {
	if n == 0 {
		return
	}
	ranges := Split(n, NumWorkers())
	p := pool.New().WithMaxGoroutines(len(ranges))
	for _, r := range ranges {
		r := r
		p.Go(func() {
			for i := r.Start; i < r.End; i++ {
				fn(i)
			}
		})
	}
	p.Wait()
}

// FeederQueue is the work-stealing queue spec.md §4.3's mark-live pass
// needs ("walks relocations transitively (work-stealing queue)"): any
// worker may push newly discovered work, and Drain returns once the queue
// is empty and no worker is mid-processing (tracked by a pending counter
// rather than by closing the channel, since producers and consumers are
// the same goroutines and closing early would race with in-flight Push
// calls).
type FeederQueue[T any] struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []T
	pending int
}

func NewFeederQueue[T any](roots []T, bufferHint int) *FeederQueue[T] {
	q := &FeederQueue[T]{items: append([]T(nil), roots...)}
	q.cond = sync.NewCond(&q.mu)
	_ = bufferHint
	return q
}

// Push adds newly discovered work (e.g. a section reached via a
// relocation during mark-live).
func (q *FeederQueue[T]) Push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Drain runs numWorkers goroutines popping from the queue and calling fn,
// which may itself call push (aliased to Push) to enqueue more work.
// Returns once the queue is empty and every worker is idle.
func (q *FeederQueue[T]) Drain(numWorkers int, fn func(v T, push func(T))) {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	p := pool.New().WithMaxGoroutines(numWorkers)
	for w := 0; w < numWorkers; w++ {
		p.Go(func() {
			for {
				q.mu.Lock()
				for len(q.items) == 0 && q.pending > 0 {
					q.cond.Wait()
				}
				if len(q.items) == 0 && q.pending == 0 {
					q.cond.Broadcast()
					q.mu.Unlock()
					return
				}
				v := q.items[len(q.items)-1]
				q.items = q.items[:len(q.items)-1]
				q.pending++
				q.mu.Unlock()

				fn(v, q.Push)

				q.mu.Lock()
				q.pending--
				q.mu.Unlock()
				q.cond.Broadcast()
			}
		})
	}
	p.Wait()
}
