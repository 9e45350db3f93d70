package main

import (
	"math/rand"
	"sync"
	"time"
	"unsafe"

	"github.com/flier/corral/internal/debug"
	"github.com/flier/corral/internal/xsync"
	"github.com/flier/corral/pkg/arena"
	"github.com/flier/corral/pkg/arena/swiss"
	"github.com/flier/corral/pkg/tuple"
)

// batchSize mirrors the original harness's LOOP constant: the number of
// blocks allocated before any of them are released.
const batchSize = 10

// harness drives a population of worker goroutines against a single
// [arena.Allocator], tracking outstanding allocations in a side ledger so
// that double-frees and leaks surface as test failures rather than silent
// corruption.
type harness struct {
	target workload

	alloc *arena.Allocator

	ledgerArena *arena.Allocator
	ledgerMu    sync.Mutex
	ledger      *swiss.Map[uintptr, int]

	batchPool xsync.Pool[[batchSize]*byte]

	totalOps      xsync.AtomicFloat64
	totalDuration xsync.AtomicFloat64
}

// tierResult summarizes the work one worker performed within a single size
// tier, reported as a [tuple.Tuple3] the way other packages in this module
// package up heterogeneous return values.
type tierResult = tuple.Tuple3[int, int, int]

func newHarness(w workload, cfg arena.Config) *harness {
	ledgerArena := arena.New()

	h := &harness{
		target:      w,
		alloc:       arena.NewWithConfig(cfg),
		ledgerArena: ledgerArena,
		ledger:      swiss.NewMap[uintptr, int](ledgerArena, 4096),
	}

	h.batchPool.New = func() *[batchSize]*byte { return new([batchSize]*byte) }

	return h
}

// run spawns w.workers goroutines, each cycling through every size tier
// until deadline, then waits for them all to finish and returns one
// [tierResult] per batch run, so a (worker, tier) pair appears once for
// every pass a worker made over the tiers.
func (h *harness) run(deadline time.Time, seed int64) []tierResult {
	var (
		mu      sync.Mutex
		results []tierResult
		wg      sync.WaitGroup
	)

	wg.Add(h.target.workers)

	for id := 0; id < h.target.workers; id++ {
		go func(id int) {
			defer wg.Done()

			rng := rand.New(rand.NewSource(seed + int64(id)))

			for time.Now().Before(deadline) {
				for _, tier := range h.target.tiers {
					n := h.runBatch(rng, tier)

					mu.Lock()
					results = append(results, tuple.New3(id, tier, n))
					mu.Unlock()
				}
			}
		}(id)
	}

	wg.Wait()

	debug.Log(nil, "run", "%d workers, %d tiers, %d results", h.target.workers, len(h.target.tiers), len(results))

	return results
}

// runBatch allocates batchSize blocks sized within [10, tier+10), sleeps for a
// short jittered interval (as the original harness does between phases),
// then releases them, recording every pointer in the ledger so double-frees
// panic loudly instead of corrupting the allocator silently.
func (h *harness) runBatch(rng *rand.Rand, tier int) int {
	batch := h.batchPool.Get()
	defer h.batchPool.Put(batch)

	start := time.Now()

	for i := range batch {
		size := 10 + rng.Intn(tier)
		p := h.alloc.Allocate(size)
		batch[i] = p

		if p != nil {
			h.record(p, size)
		}
	}

	time.Sleep(time.Duration(rng.Int63n(2_000_000)) * time.Nanosecond)

	for _, p := range batch {
		if p == nil {
			continue
		}
		h.release(p)
		h.alloc.Release(p)
	}

	elapsed := time.Since(start)
	h.totalOps.Add(batchSize)
	h.totalDuration.Add(float64(elapsed))

	return batchSize
}

func (h *harness) record(p *byte, size int) {
	key := uintptr(unsafe.Pointer(p))

	h.ledgerMu.Lock()
	defer h.ledgerMu.Unlock()

	if h.ledger.Has(key) {
		panic("corralbench: allocator returned a pointer that is already live")
	}

	h.ledger.Put(key, size)
}

func (h *harness) release(p *byte) {
	key := uintptr(unsafe.Pointer(p))

	h.ledgerMu.Lock()
	defer h.ledgerMu.Unlock()

	if !h.ledger.Has(key) {
		panic("corralbench: releasing a pointer the ledger never saw")
	}

	h.ledger.Delete(key)
}

// finish tears down the allocator under test, which panics if it has not
// reached quiescence, and returns throughput in allocations per second.
func (h *harness) finish() float64 {
	h.alloc.Finalize()

	seconds := h.totalDuration.Load() / float64(time.Second)
	if seconds == 0 {
		return 0
	}

	return h.totalOps.Load() / seconds
}
