//go:build go1.22

package arena

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/flier/corral/internal/debug"
	"github.com/flier/corral/pkg/xunsafe"
)

// chunkSize is the granularity arena extensions are rounded up to, matching
// the reference allocator's SBRK_CHUNK.
const chunkSize = 256 * 1024

// reserveSize is how much virtual address space grower reserves up front.
// The reservation costs no physical memory (it is mapped PROT_NONE); it only
// bounds how far the arena can grow before extend starts failing, the
// virtual-memory analogue of a process running out of data-segment room.
const reserveSize = 64 << 30 // 64 GiB

// ErrExhausted is returned by extend when the grower's virtual reservation
// has been fully committed.
type ErrExhausted struct{ Requested int }

func (e *ErrExhausted) Error() string {
	return fmt.Sprintf("arena: cannot grow by %d bytes: reservation exhausted", e.Requested)
}

// grower is the arena-growth component: it reserves a contiguous range of
// virtual address space once, then commits pages from it monotonically,
// never unmapping or reusing committed pages. This is the Go-native
// equivalent of the classical sbrk-based data-segment grower the reference
// allocator uses: extend's contract (give me N more bytes, tell me where
// the previous end was) is identical, only the OS primitive differs.
type grower struct {
	mapping []byte // keeps the mmap'd reservation alive
	base    uintptr
	end     uintptr
	next    uintptr

	reserveSize int // overridable by tests; 0 means reserveSize constant
	chunk       int // overridable by tests; 0 means chunkSize constant
}

// reserve maps the virtual address range grower will commit pages from.
// Reservation is lazy: it happens on the first call to extend, not at
// construction, so a zero-value Allocator costs nothing until first use.
func (g *grower) reserve() error {
	size := g.reserveSize
	if size == 0 {
		size = reserveSize
	}

	b, err := unix.Mmap(-1, 0, size, unix.PROT_NONE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return fmt.Errorf("arena: reserving %d bytes of address space: %w", size, err)
	}

	g.mapping = b
	g.base = uintptr(unsafe.Pointer(unsafe.SliceData(b)))
	g.next = g.base
	g.end = g.base + uintptr(size)

	return nil
}

// extend rounds requested up to a multiple of the chunk size (g.chunk, or
// chunkSize when that is 0), commits that many
// fresh bytes at the end of the previously committed range, and returns the
// address of the start of the new region along with its granted size.
//
// extend never shrinks or reuses memory: every successful call hands back
// bytes strictly above every address any previous call returned.
func (g *grower) extend(requested int) (xunsafe.Addr[byte], int, error) {
	if g.base == 0 {
		if err := g.reserve(); err != nil {
			return 0, 0, err
		}
	}

	chunk := g.chunk
	if chunk == 0 {
		chunk = chunkSize
	}
	granted := roundUp(requested, chunk)

	if g.next+uintptr(granted) > g.end {
		return 0, 0, &ErrExhausted{Requested: requested}
	}

	start := g.next
	region := unsafe.Slice((*byte)(unsafe.Pointer(start)), granted)
	if err := unix.Mprotect(region, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return 0, 0, fmt.Errorf("arena: committing %d bytes at %#x: %w", granted, start, err)
	}

	g.next += uintptr(granted)

	debug.Log(nil, "grow", "%#x:%#x, requested=%d granted=%d", start, g.next, requested, granted)

	return xunsafe.Addr[byte](start), granted, nil
}

func roundUp(n, mult int) int {
	return (n + mult - 1) / mult * mult
}
