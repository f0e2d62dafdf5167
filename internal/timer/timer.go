// Package timer keeps per-connection idle deadlines in an ascending list.
//
// Entries live in an index arena (a slice of nodes plus a free list) linked
// in both directions, so handles never dangle: a handle carries the generation
// of the node it was issued for, and operations on a recycled node are
// ignored. A Registry is owned by one goroutine and does no locking.
package timer

import (
	"time"
)

const NIL int32 = -1

// ClientData identifies the connection an entry belongs to. The registry
// never dereferences it.
type ClientData struct {
	Slot int32
	Gen  uint32
	Fd   int
	Addr string
}

type Callback func(data ClientData)

type Entry struct {
	Expire   time.Time
	Callback Callback
	Data     ClientData
}

// Handle refers to one entry. The zero Handle refers to nothing.
type Handle struct {
	index int32
	gen   uint32
}

func (h Handle) Valid() bool {
	return h.gen != 0
}

type node struct {
	entry Entry
	prev  int32
	next  int32
	gen   uint32
	live  bool
}

type Registry struct {
	nodes []node
	free  []int32
	head  int32
	tail  int32
	count int
}

func New(capacity int) *Registry {
	if capacity < 0 {
		capacity = 0
	}
	return &Registry{
		nodes: make([]node, 0, capacity),
		free:  make([]int32, 0, capacity),
		head:  NIL,
		tail:  NIL,
	}
}

func (r *Registry) Len() int {
	return r.count
}

// Add inserts e in expiry order. Entries with equal expiry keep insertion
// order.
func (r *Registry) Add(e Entry) Handle {
	var idx = r.alloc()
	r.nodes[idx].entry = e
	if r.head == NIL || e.Expire.Before(r.nodes[r.head].entry.Expire) {
		r.pushFront(idx)
	} else {
		r.insertFrom(idx, r.head)
	}
	r.count++
	return Handle{index: idx, gen: r.nodes[idx].gen}
}

// Adjust moves the entry to expire. A later expiry is placed by scanning
// forward from the entry's current position; an earlier one is reinserted
// from the head. It reports false for a stale handle.
func (r *Registry) Adjust(h Handle, expire time.Time) bool {
	if !r.valid(h) {
		return false
	}
	var idx = h.index
	var n = &r.nodes[idx]
	var old = n.entry.Expire
	n.entry.Expire = expire

	if expire.Before(old) {
		r.unlink(idx)
		if r.head == NIL || expire.Before(r.nodes[r.head].entry.Expire) {
			r.pushFront(idx)
		} else {
			r.insertFrom(idx, r.head)
		}
		return true
	}

	var next = n.next
	if next == NIL || !expire.After(r.nodes[next].entry.Expire) {
		return true
	}
	r.unlink(idx)
	r.insertFrom(idx, next)
	return true
}

// Delete removes the entry in O(1). It reports false for a stale handle.
func (r *Registry) Delete(h Handle) bool {
	if !r.valid(h) {
		return false
	}
	r.unlink(h.index)
	r.release(h.index)
	r.count--
	return true
}

func (r *Registry) Get(h Handle) (Entry, bool) {
	if !r.valid(h) {
		return Entry{}, false
	}
	return r.nodes[h.index].entry, true
}

// Tick pops every entry whose expiry is not after now and runs its callback,
// stopping at the first entry still in the future. Callbacks may call back
// into the registry. It returns the number of entries expired.
func (r *Registry) Tick(now time.Time) int {
	var expired = 0
	for r.head != NIL {
		var idx = r.head
		if r.nodes[idx].entry.Expire.After(now) {
			break
		}
		var e = r.nodes[idx].entry
		r.unlink(idx)
		r.release(idx)
		r.count--
		expired++
		if e.Callback != nil {
			e.Callback(e.Data)
		}
	}
	return expired
}

// Each walks the entries head to tail until fn returns false.
func (r *Registry) Each(fn func(e Entry) bool) {
	for idx := r.head; idx != NIL; idx = r.nodes[idx].next {
		if !fn(r.nodes[idx].entry) {
			return
		}
	}
}

// Next reports the earliest expiry.
func (r *Registry) Next() (time.Time, bool) {
	if r.head == NIL {
		return time.Time{}, false
	}
	return r.nodes[r.head].entry.Expire, true
}

func (r *Registry) valid(h Handle) bool {
	if h.gen == 0 || h.index < 0 || int(h.index) >= len(r.nodes) {
		return false
	}
	var n = &r.nodes[h.index]
	return n.live && n.gen == h.gen
}

func (r *Registry) alloc() int32 {
	var idx int32
	if l := len(r.free); l > 0 {
		idx = r.free[l-1]
		r.free = r.free[:l-1]
	} else {
		r.nodes = append(r.nodes, node{})
		idx = int32(len(r.nodes) - 1)
	}
	var n = &r.nodes[idx]
	n.gen++
	if n.gen == 0 {
		n.gen = 1
	}
	n.live = true
	n.prev, n.next = NIL, NIL
	return idx
}

func (r *Registry) release(idx int32) {
	var n = &r.nodes[idx]
	n.live = false
	n.entry = Entry{}
	n.prev, n.next = NIL, NIL
	r.free = append(r.free, idx)
}

func (r *Registry) pushFront(idx int32) {
	var n = &r.nodes[idx]
	n.prev = NIL
	n.next = r.head
	if r.head != NIL {
		r.nodes[r.head].prev = idx
	} else {
		r.tail = idx
	}
	r.head = idx
}

// insertFrom places idx before the first node at or after from whose expiry
// is strictly later, or at the tail. The caller guarantees every node before
// from expires no later than idx.
func (r *Registry) insertFrom(idx int32, from int32) {
	var expire = r.nodes[idx].entry.Expire
	var cur = from
	for cur != NIL && !r.nodes[cur].entry.Expire.After(expire) {
		cur = r.nodes[cur].next
	}

	var n = &r.nodes[idx]
	if cur == NIL {
		n.prev = r.tail
		n.next = NIL
		if r.tail != NIL {
			r.nodes[r.tail].next = idx
		} else {
			r.head = idx
		}
		r.tail = idx
		return
	}

	var prev = r.nodes[cur].prev
	n.prev = prev
	n.next = cur
	r.nodes[cur].prev = idx
	if prev != NIL {
		r.nodes[prev].next = idx
	} else {
		r.head = idx
	}
}

func (r *Registry) unlink(idx int32) {
	var n = &r.nodes[idx]
	if n.prev != NIL {
		r.nodes[n.prev].next = n.next
	} else {
		r.head = n.next
	}
	if n.next != NIL {
		r.nodes[n.next].prev = n.prev
	} else {
		r.tail = n.prev
	}
	n.prev, n.next = NIL, NIL
}
