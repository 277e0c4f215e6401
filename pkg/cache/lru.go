package cache

import (
	"container/list"
	"sync/atomic"

	"github.com/marmos91/relaystream/pkg/chunk"
)

// Entry is one indexed chunk.
type Entry struct {
	Key  chunk.Key
	Size int64
}

// Index tracks recency and byte usage for a set of chunks. The front of the
// list is the most recently used entry.
//
// Index is not safe for concurrent use; implementations guard it with their
// own mutex and keep storage I/O outside that lock.
type Index struct {
	capacity int64
	bytes    int64
	ll       *list.List
	items    map[chunk.Key]*list.Element
}

// NewIndex returns an empty index bounded to capacity bytes.
func NewIndex(capacity int64) *Index {
	return &Index{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[chunk.Key]*list.Element),
	}
}

// Touch marks key as most recently used. It reports whether key is indexed.
func (x *Index) Touch(key chunk.Key) bool {
	el, ok := x.items[key]
	if !ok {
		return false
	}
	x.ll.MoveToFront(el)
	return true
}

// Contains reports membership without changing recency.
func (x *Index) Contains(key chunk.Key) bool {
	_, ok := x.items[key]
	return ok
}

// Size returns the indexed size of key.
func (x *Index) Size(key chunk.Key) (int64, bool) {
	el, ok := x.items[key]
	if !ok {
		return 0, false
	}
	return el.Value.(*Entry).Size, true
}

// Add indexes key with the given size as the most recently used entry and
// evicts from the tail until the index fits its capacity. The new entry is
// never among the evicted. Add returns false, changing nothing, when size
// alone exceeds the capacity.
func (x *Index) Add(key chunk.Key, size int64) (evicted []Entry, ok bool) {
	if size > x.capacity {
		return nil, false
	}

	if el, exists := x.items[key]; exists {
		e := el.Value.(*Entry)
		x.bytes += size - e.Size
		e.Size = size
		x.ll.MoveToFront(el)
	} else {
		x.items[key] = x.ll.PushFront(&Entry{Key: key, Size: size})
		x.bytes += size
	}

	for x.bytes > x.capacity {
		tail := x.ll.Back()
		e := tail.Value.(*Entry)
		x.removeElement(tail)
		evicted = append(evicted, *e)
	}
	return evicted, true
}

// Remove drops key from the index.
func (x *Index) Remove(key chunk.Key) bool {
	el, ok := x.items[key]
	if !ok {
		return false
	}
	x.removeElement(el)
	return true
}

func (x *Index) removeElement(el *list.Element) {
	e := x.ll.Remove(el).(*Entry)
	delete(x.items, e.Key)
	x.bytes -= e.Size
}

// Oldest returns entries from least to most recently used.
func (x *Index) Oldest() []Entry {
	out := make([]Entry, 0, x.ll.Len())
	for el := x.ll.Back(); el != nil; el = el.Prev() {
		out = append(out, *el.Value.(*Entry))
	}
	return out
}

// Reset empties the index.
func (x *Index) Reset() {
	x.ll.Init()
	x.items = make(map[chunk.Key]*list.Element)
	x.bytes = 0
}

func (x *Index) Len() int        { return x.ll.Len() }
func (x *Index) Bytes() int64    { return x.bytes }
func (x *Index) Capacity() int64 { return x.capacity }

// Counters holds hit/miss/eviction totals shared by implementations.
type Counters struct {
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

func (c *Counters) Hit()  { c.hits.Add(1) }
func (c *Counters) Miss() { c.misses.Add(1) }

func (c *Counters) Evicted(n int) {
	if n > 0 {
		c.evictions.Add(uint64(n))
	}
}

// Fill copies the counters into s.
func (c *Counters) Fill(s *Stats) {
	s.Hits = c.hits.Load()
	s.Misses = c.misses.Load()
	s.Evictions = c.evictions.Load()
}
