//go:build go1.22

package arena

import "github.com/flier/corral/pkg/xunsafe"

// linkOf selects one of a segment's two linkages (heap or free), so the list
// primitives below can operate uniformly over either without duplicating
// their bodies — the Go analogue of parameterizing the C original's
// LIST_INSERT_AFTER/LIST_REMOVE macros over a struct member.
type linkOf func(*segment) *link

// newSentinel turns a freshly carved segment into a circular list head that
// points at itself, for both of its linkages.
func newSentinel(s *segment) {
	s.setState(stateSentinel)
	addr := xunsafe.AddrOf(s)
	s.heap = link{addr, addr}
	s.free = link{addr, addr}
}

// listEmpty reports whether sentinel's list has no other members.
func listEmpty(sentinel *segment, at linkOf) bool {
	l := at(sentinel)
	return l.next == xunsafe.AddrOf(sentinel)
}

// listInsertAfter splices node into the list immediately after anchor.
func listInsertAfter(anchor, node *segment, at linkOf) {
	a := at(anchor)
	n := at(node)
	next := a.next.AssertValid()

	n.next = a.next
	n.prev = xunsafe.AddrOf(anchor)
	a.next = xunsafe.AddrOf(node)
	at(next).prev = xunsafe.AddrOf(node)
}

// listRemove detaches node from whichever list it is currently threaded
// into, under the given linkage.
func listRemove(node *segment, at linkOf) {
	n := at(node)
	prev := n.prev.AssertValid()
	next := n.next.AssertValid()

	at(prev).next = n.next
	at(next).prev = n.prev
	n.prev = 0
	n.next = 0
}

// listPrev and listNext walk one step in the given direction. Callers are
// responsible for checking the result against the sentinel.
func listPrev(node *segment, at linkOf) *segment { return at(node).prev.AssertValid() }
func listNext(node *segment, at linkOf) *segment { return at(node).next.AssertValid() }

// listFront returns the first non-sentinel member of the list, or nil.
func listFront(sentinel *segment, at linkOf) *segment {
	if listEmpty(sentinel, at) {
		return nil
	}
	return listNext(sentinel, at)
}
