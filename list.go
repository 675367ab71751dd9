package c11httpd

// listMembership tags which of the acceptor's three connection lists a
// Conn currently belongs to. Spec.md §3 requires a connection be a
// member of at most one of {used-list, free-list, aio-wait-list} at any
// time (testable property #4 in spec.md §8).
//
// This replaces c11httpd/link.h's intrusive link_t<T>, which computes the
// owning object from a node pointer via a hard-coded byte offset — a
// trick with no safe Go equivalent. Per spec.md design note §9 option
// (a), membership is instead tracked directly on the owning object and
// enforced by connList, an explicit doubly-linked list of *Conn.
type listMembership int

const (
	membershipNone listMembership = iota
	membershipUsed
	membershipFree
	membershipAIOWait
)

// connList is a doubly-linked list of *Conn, used for the acceptor's
// used-list, free-list and aio-wait-list. It is not safe for concurrent
// use; the acceptor's event loop is single-goroutine by design (spec.md
// §5), so no locking is needed here.
type connList struct {
	head *Conn // sentinel; head.listNext is the first real element
	size int
}

func newConnList() *connList {
	l := &connList{}
	l.head = &Conn{}
	l.head.listPrev = l.head
	l.head.listNext = l.head
	return l
}

func (l *connList) Len() int {
	return l.size
}

func (l *connList) PushBack(c *Conn) {
	last := l.head.listPrev
	last.listNext = c
	c.listPrev = last
	c.listNext = l.head
	l.head.listPrev = c
	l.size++
}

func (l *connList) Remove(c *Conn) {
	if c.listPrev == nil || c.listNext == nil {
		return
	}
	c.listPrev.listNext = c.listNext
	c.listNext.listPrev = c.listPrev
	c.listPrev = nil
	c.listNext = nil
	l.size--
}

// PopFront removes and returns the first element, or nil if empty.
func (l *connList) PopFront() *Conn {
	if l.size == 0 {
		return nil
	}
	c := l.head.listNext
	l.Remove(c)
	return c
}

// Each calls fn for every element, front to back. fn must not mutate the
// list itself (use ForEachSafe for that).
func (l *connList) Each(fn func(*Conn)) {
	for c := l.head.listNext; c != l.head; c = c.listNext {
		fn(c)
	}
}

// ForEachSafe calls fn for every element, front to back, tolerating fn
// removing the current element from this (or any) list.
func (l *connList) ForEachSafe(fn func(*Conn)) {
	c := l.head.listNext
	for c != l.head {
		next := c.listNext
		fn(c)
		c = next
	}
}
