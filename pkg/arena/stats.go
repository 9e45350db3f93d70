//go:build go1.22

package arena

import "fmt"

// classStat holds the running counters for one size class.
type classStat struct {
	Allocs    uint64
	Releases  uint64
	Scans     uint64 // allocations that fell through to the last-class scan, including those a grow then served
	Coalesces uint64 // coalesces that happened while filing a release into this class
}

// Stats is a snapshot of an Allocator's per-size-class activity, returned
// by [Allocator.Stats]. It has no effect on allocation decisions; it exists
// so callers (and corralbench) can report on fragmentation and class
// pressure, the Go analogue of the reference allocator's STATISTICS-gated
// showstat counters.
type Stats struct {
	Classes [numClasses]classStat
}

func (s *Stats) record(idx int, fromLastClass bool) {
	s.Classes[idx].Allocs++
	if fromLastClass {
		s.Classes[idx].Scans++
	}
}

func (s *Stats) recordRelease(idx int, coalesced int) {
	s.Classes[idx].Releases++
	s.Classes[idx].Coalesces += uint64(coalesced)
}

// String renders a one-line-per-class summary, smallest class first.
func (s Stats) String() string {
	out := ""
	for i, c := range s.Classes {
		if c.Allocs == 0 && c.Releases == 0 {
			continue
		}
		out += fmt.Sprintf("class[%2d] floor=%-7d allocs=%-6d releases=%-6d scans=%-6d coalesces=%-6d\n",
			i, classFloor[i], c.Allocs, c.Releases, c.Scans, c.Coalesces)
	}
	if out == "" {
		return "(no activity)"
	}
	return out
}
