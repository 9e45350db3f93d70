//go:build go1.22

// Package arena provides a general-purpose, thread-safe dynamic memory
// allocator that grows its backing storage from the operating system
// incrementally, rather than allocating one large block up front.
//
// # Key Concepts
//
// Segment: the in-band header that precedes every block of memory the
// allocator hands out or holds free, carrying enough bookkeeping (size,
// lifecycle state, two list linkages) to reconstruct the allocator's state
// from the memory itself.
//
// Heap list: a doubly-linked list threading every segment ever carved from
// the arena, kept in descending address order so that a segment's physical
// neighbors are always its list neighbors — the basis for O(1) coalescing
// on release.
//
// Free lists: an array of segregated free lists, one per size class, so
// that a request of a given size only ever searches segments known to be
// big enough.
//
// # Design
//
// See [Cheating the Reaper in Go] for the arena-pointer-keeps-arena-alive
// idea this package's predecessor used; this package instead keeps all of
// its bookkeeping off the Go heap, inside memory obtained directly from the
// operating system via [Allocator.Allocate]'s backing grower, so none of
// that GC interaction applies here.
//
// # Usage
//
//	a := arena.New()
//	defer a.Finalize()
//
//	p := a.Allocate(128)
//	// use p...
//	a.Release(p)
//
// Generic Allocation with Alloc/Release
//
//	type Point struct{ X, Y float64 }
//
//	a := arena.New()
//	p := arena.Alloc(a, Point{X: 1, Y: 2})
//	arena.Release(a, p)
//
// # Thread Safety
//
// Every exported [Allocator] method is safe to call concurrently; the
// allocator serializes access internally and does not require external
// synchronization.
//
// [Cheating the Reaper in Go]: https://mcyoung.xyz/2025/04/21/go-arenas/
package arena

import (
	"github.com/flier/corral/pkg/xunsafe"
	"github.com/flier/corral/pkg/xunsafe/layout"
)

// Alloc allocates and initializes a new value of type T from the given
// allocator, returning a pointer to it.
//
// T must not exceed the allocator's alignment guarantee; types whose
// required alignment exceeds a machine word will panic.
func Alloc[T any](a *Allocator, value T) *T {
	l := layout.Of[T]()
	if l.Align > align {
		panic("arena: over-aligned object")
	}

	p := xunsafe.Cast[T](a.Allocate(l.Size))
	*p = value
	return p
}

// Release returns a value of type T previously obtained from [Alloc] back
// to the allocator.
func Release[T any](a *Allocator, p *T) {
	a.Release(xunsafe.Cast[byte](p))
}
