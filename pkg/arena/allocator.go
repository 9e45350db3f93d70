//go:build go1.22

package arena

import (
	"fmt"
	"sync"

	"github.com/flier/corral/internal/debug"
	"github.com/flier/corral/pkg/opt"
	"github.com/flier/corral/pkg/xunsafe"
)

// Allocator is the concurrency-safe, segregated-free-list arena allocator.
//
// Allocator services variable-sized allocation and release requests from an
// unbounded arena obtained incrementally from the operating system, via an
// array of size-class free lists and a descending-address heap list used to
// coalesce physically adjacent free segments in O(1). A single [sync.Mutex]
// wraps every public method; there are no internal goroutines, per-thread
// caches, or lock-free paths.
//
// A zero Allocator is empty and ready to use; bootstrap happens lazily on
// the first call into it.
type Allocator struct {
	mu sync.Mutex

	grower grower

	heapSentinel *segment
	free         [numClasses]*segment

	bootstrapped bool

	stats Stats
}

// Config overrides the allocator's compile-time tunables; used by tests and
// by callers who want smaller reservations than the 64 GiB default. Both
// fields are optional — an unset [opt.Option] keeps the built-in default.
type Config struct {
	ReserveSize opt.Option[int]
	ChunkSize   opt.Option[int]
}

// New returns a ready-to-use Allocator with default tunables.
func New() *Allocator { return new(Allocator) }

// NewWithConfig returns a ready-to-use Allocator with the given overrides
// applied.
func NewWithConfig(cfg Config) *Allocator {
	a := new(Allocator)
	a.grower.reserveSize = cfg.ReserveSize.UnwrapOr(0)
	a.grower.chunk = cfg.ChunkSize.UnwrapOr(0)
	return a
}

// Allocator provides the Allocate/Release pair that the generic [Alloc] and
// [Release] helpers in doc.go are built on.
var _ interface {
	Allocate(int) *byte
	Release(*byte)
} = (*Allocator)(nil)

// bootstrap performs the one-time setup described in the spec: extend the
// arena by (K+1) segment-sized sentinels, and wire each into a
// self-referencing circular list — K free-list heads plus one heap-list
// head. Must be called with mu held.
//
// extend rounds every request up to the grower's chunk size, so the grant
// backing the sentinels is almost always larger than the
// (numClasses+1)*headerSize they occupy. Whatever is left over is carved
// into one FREE segment and linked into the heap list and its free list,
// exactly as the allocation path does with its own grants — otherwise those
// bytes would be committed, OS-backed memory that never belongs to any
// segment, violating the invariant that every extension is fully accounted
// for in the heap list.
func (a *Allocator) bootstrap() bool {
	if a.bootstrapped {
		return true
	}

	sentinelBytes := (numClasses + 1) * headerSize

	addr, granted, err := a.grower.extend(sentinelBytes)
	if err != nil {
		debug.Log(nil, "bootstrap", "failed to extend arena: %v", err)
		return false
	}
	debug.Assert(granted >= sentinelBytes, "grower under-granted bootstrap request")

	base := addr.AssertValid()
	for i := 0; i <= numClasses; i++ {
		s := xunsafe.ByteAdd[segment](base, i*headerSize)
		newSentinel(s)
		if i < numClasses {
			a.free[i] = s
		} else {
			a.heapSentinel = s
		}
	}

	a.bootstrapped = true

	if remainder := granted - sentinelBytes; remainder > 0 {
		debug.Assert(remainder >= freeMin, "bootstrap remainder too small to be a valid segment")

		rest := xunsafe.ByteAdd[segment](base, sentinelBytes)
		rest.size = remainder
		rest.setState(stateFree)
		listInsertAfter(a.heapSentinel, rest, heapLink)
		a.pushFree(destIndex(remainder), rest)

		debug.Log(nil, "bootstrap", "%v: sentinels=%d remainder=%d", xunsafe.AddrOf(rest), sentinelBytes, remainder)
	}

	return true
}

// Allocate reserves size bytes and returns the address of the payload, or
// nil if size <= 0 or the arena could not be grown to satisfy the request.
func (a *Allocator) Allocate(size int) *byte {
	a.mu.Lock()
	defer a.mu.Unlock()

	if size <= 0 {
		return nil
	}
	if !a.bootstrap() {
		return nil
	}

	need := max(size+headerSize, freeMin)
	src := sourceIndex(need)

	var candidate *segment
	fromLastClass := false

	if src < numClasses-1 {
		if c := listFront(a.free[src], freeLink); c != nil {
			listRemove(c, freeLink)
			candidate = c
		}
	}

	if candidate == nil {
		fromLastClass = true
		candidate = a.findFit(need)
	}

	if candidate == nil {
		addr, granted, err := a.grower.extend(need)
		if err != nil {
			debug.Log(nil, "allocate", "extend(%d) failed: %v", need, err)
			return nil
		}

		fresh := addr.AssertValid()
		fresh.size = granted
		fresh.setState(stateFree)
		listInsertAfter(a.heapSentinel, fresh, heapLink)
		candidate = fresh
	}

	a.splitAndMark(candidate, need)

	a.stats.record(destIndex(candidate.size), fromLastClass)

	debug.Log(nil, "allocate", "%v: requested=%d need=%d granted=%d", xunsafe.AddrOf(candidate), size, need, candidate.size)

	return candidate.payload()
}

// splitAndMark implements the spec's split decision: if the candidate has
// at least freeMin bytes left over after satisfying need, it is split into
// a right-sized allocation and a free remainder filed at the remainder's
// destination index; otherwise the whole candidate is handed out as-is.
func (a *Allocator) splitAndMark(candidate *segment, need int) {
	remainder := candidate.size - need
	if remainder < freeMin {
		candidate.setState(stateAllocated)
		return
	}

	remainderSeg := xunsafe.ByteAdd[segment](candidate, need)
	remainderSeg.size = remainder
	remainderSeg.setState(stateFree)

	// The remainder starts at a higher address than the shrunk candidate, so
	// inserting it immediately before candidate in the descending-address
	// heap list preserves ordering in O(1).
	listInsertAfter(listPrev(candidate, heapLink), remainderSeg, heapLink)

	idx := destIndex(remainder)
	a.pushFree(idx, remainderSeg)

	candidate.size = need
	candidate.setState(stateAllocated)
}

// findFit performs the allocator's only non-constant-time operation: a
// linear scan of the last (open-ended) free list for the first segment
// that is at least minSize bytes, detaching it if found.
func (a *Allocator) findFit(minSize int) *segment {
	sentinel := a.free[numClasses-1]
	for n := listNext(sentinel, freeLink); n != sentinel; n = listNext(n, freeLink) {
		if n.size >= minSize {
			listRemove(n, freeLink)
			return n
		}
	}
	return nil
}

func (a *Allocator) pushFree(idx int, s *segment) {
	listInsertAfter(a.free[idx], s, freeLink)
}

// Release returns a payload address previously obtained from Allocate back
// to the allocator. Releasing nil is a no-op. Releasing an address not
// obtained from Allocate, or one already released, is undefined behavior,
// detected with a panic when the header's magic tag doesn't match what a
// live allocation should look like.
func (a *Allocator) Release(p *byte) {
	if p == nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	curr := segmentOf(p)
	if curr.state != stateAllocated || curr.magic != allocMagic {
		panic(fmt.Sprintf("arena: Release called on invalid or already-freed pointer %v", xunsafe.AddrOf(curr)))
	}

	coalesced := 0

	// Coalesce with the higher physical neighbor, which is curr's
	// predecessor in the descending-address heap list.
	if hi := listPrev(curr, heapLink); hi != a.heapSentinel && hi.state == stateFree {
		debug.Assert(uintptr(xunsafe.AddrOf(hi)) == uintptr(xunsafe.AddrOf(curr))+uintptr(curr.size),
			"heap list adjacency broken: hi is not physically above curr")

		listRemove(hi, heapLink)
		listRemove(hi, freeLink)
		curr.size += hi.size
		coalesced++
	}

	// Coalesce with the lower physical neighbor, which is curr's successor
	// in the descending-address heap list. The surviving node becomes lo,
	// since curr is detached from the heap list in favor of lo's linkage.
	surviving := curr
	if lo := listNext(curr, heapLink); lo != a.heapSentinel && lo.state == stateFree {
		debug.Assert(uintptr(xunsafe.AddrOf(curr)) == uintptr(xunsafe.AddrOf(lo))+uintptr(lo.size),
			"heap list adjacency broken: curr is not physically above lo")

		listRemove(curr, heapLink)
		listRemove(lo, freeLink)
		lo.size += curr.size
		surviving = lo
		coalesced++
	}

	surviving.setState(stateFree)
	idx := destIndex(surviving.size)
	a.pushFree(idx, surviving)

	a.stats.recordRelease(idx, coalesced)

	debug.Log(nil, "release", "%v: size=%d coalesced=%d -> class %d", xunsafe.AddrOf(surviving), surviving.size, coalesced, idx)
}

// Finalize verifies the quiescence invariants: every free list but the last
// is empty, the last free list holds exactly one segment, and the heap list
// holds exactly one non-sentinel segment — the state the allocator should
// be in once every outstanding allocation has been released. It is a
// debug/test-shutdown check, not part of the allocation fast path, and
// panics on violation.
func (a *Allocator) Finalize() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.bootstrapped {
		return
	}

	for i := 0; i < numClasses-1; i++ {
		if !listEmpty(a.free[i], freeLink) {
			panic(fmt.Sprintf("arena: Finalize: free list %d is not empty (memory leak)", i))
		}
	}

	last := a.free[numClasses-1]
	front := listFront(last, freeLink)
	if front == nil || listNext(front, freeLink) != last {
		panic("arena: Finalize: last free list does not contain exactly one segment")
	}
	if front.magic != freeMagic {
		panic("arena: Finalize: last free list's segment has a corrupted magic tag")
	}

	heapFront := listFront(a.heapSentinel, heapLink)
	if heapFront == nil || listNext(heapFront, heapLink) != a.heapSentinel {
		panic("arena: Finalize: heap list does not contain exactly one segment")
	}
	if heapFront.magic != freeMagic {
		panic("arena: Finalize: heap list's segment has a corrupted magic tag")
	}

	debug.Log(nil, "finalize", "quiescent: %s", a.stats.String())
}

// Stats returns a snapshot of the allocator's per-size-class counters.
func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.stats
}
