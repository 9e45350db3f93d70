//go:build go1.22

package arena

import (
	"unsafe"

	"github.com/flier/corral/pkg/xunsafe"
)

// state is the lifecycle state of a segment.
type state uint8

const (
	stateFree state = iota
	stateAllocated
	stateSentinel
)

// Magic tags, one per state. A cheap corruption probe: a header whose magic
// doesn't match its state has been stomped on, or the pointer handed to
// Release never came from Allocate.
const (
	allocMagic    uint32 = 0x1357
	freeMagic     uint32 = 0x2468
	sentinelMagic uint32 = 0x5a5a
)

func magicFor(s state) uint32 {
	switch s {
	case stateAllocated:
		return allocMagic
	case stateFree:
		return freeMagic
	default:
		return sentinelMagic
	}
}

// link is one doubly-linked list linkage embedded in a segment header.
//
// It is the Go expression of the C original's "LIST" node. Unlike the C
// node, prev and next hold the addresses of the neighboring segments
// themselves rather than of their linkages, so no owner-recovery offset is
// needed; heapLink/freeLink below select which of a segment's two linkages
// the list primitives follow.
type link struct {
	prev, next xunsafe.Addr[segment]
}

// segment is the in-band header that precedes every payload handed out by
// Allocate. It is the allocator's unit of accounting: every byte obtained
// from the grower belongs to exactly one segment, reachable from the heap
// list.
type segment struct {
	heap  link // heap-list linkage, always valid
	free  link // free-list linkage, valid only while state != stateAllocated
	size  int  // total segment size, header included
	state state
	magic uint32
}

// headerSize is the fixed offset between a segment header and its payload.
const headerSize = int(unsafe.Sizeof(segment{}))

// align is the alignment every payload address is guaranteed to satisfy.
const align = int(unsafe.Sizeof(uintptr(0)))

// Align is align, exported for callers (such as package slice) that need to
// reason about the allocator's alignment guarantee without reaching into
// its internals.
const Align = align

func heapLink(s *segment) *link { return &s.heap }
func freeLink(s *segment) *link { return &s.free }

// payload returns the address handed to callers for this segment.
func (s *segment) payload() *byte {
	return xunsafe.ByteAdd[byte](s, headerSize)
}

// segmentOf recovers a segment's header from a payload pointer previously
// returned by Allocate.
func segmentOf(p *byte) *segment {
	return xunsafe.ByteAdd[segment](p, -headerSize)
}

// valid reports whether this segment's magic is consistent with its state.
func (s *segment) valid() bool {
	return s.magic == magicFor(s.state)
}

func (s *segment) setState(st state) {
	s.state = st
	s.magic = magicFor(st)
}
