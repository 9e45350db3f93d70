// Command corralbench is a load-generation harness for [arena.Allocator],
// modeled on the original allocator's multithreaded stress test: a pool of
// workers repeatedly allocates and releases batches of randomly sized blocks
// across a few size tiers, then the harness checks that the allocator
// reaches quiescence.
package main

import (
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/flier/corral/internal/xflag"
	"github.com/flier/corral/pkg/arena"
	"github.com/flier/corral/pkg/opt"
	"github.com/flier/corral/pkg/xerrors"
)

var (
	workersFlag  = flag.Int("workers", 0, "number of worker goroutines (overrides the workload file)")
	secondsFlag  = flag.Int("seconds", 0, "how long to run, in seconds (overrides the workload file)")
	seedFlag     = flag.Int64("seed", 1, "seed for each worker's size generator")
	reserveFlag  = flag.Int("reserve", 0, "bytes to reserve for the arena (0 uses the allocator's default)")
	chunkFlag    = flag.Int("chunk", 0, "bytes to commit per arena growth (0 uses the allocator's default)")
	workloadFlag = xflag.Func("workload", "path to a workload descriptor file", func(path string) (workload, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			if pe, ok := xerrors.AsA[*fs.PathError](err); ok {
				return workload{}, fmt.Errorf("corralbench: cannot read workload file %q: %w", pe.Path, pe.Err)
			}
			return workload{}, err
		}
		return parseWorkload(data)
	})
)

func main() {
	flag.Parse()

	w := defaultWorkload()
	if xflag.Parsed("workload") {
		w = *workloadFlag
	}
	if *workersFlag > 0 {
		w.workers = *workersFlag
	}
	if *secondsFlag > 0 {
		w.seconds = *secondsFlag
	}

	cfg := arena.Config{}
	if *reserveFlag > 0 {
		cfg.ReserveSize = opt.Some(*reserveFlag)
	}
	if *chunkFlag > 0 {
		cfg.ChunkSize = opt.Some(*chunkFlag)
	}

	h := newHarness(w, cfg)

	fmt.Printf("corralbench: %d workers, %d tiers, %ds\n", w.workers, len(w.tiers), w.seconds)

	deadline := time.Now().Add(time.Duration(w.seconds) * time.Second)
	results := h.run(deadline, *seedFlag)

	byTier := make(map[int]int)
	for _, r := range results {
		_, tier, n := r.Unpack()
		byTier[tier] += n
	}
	for tier, n := range byTier {
		fmt.Printf("  tier %d bytes: %d allocations serviced\n", tier, n)
	}

	rate := h.finish()
	fmt.Printf("throughput: %.0f ops/sec\n", rate)
	fmt.Println(h.alloc.Stats().String())
}
