package clock

import (
	"container/heap"
	"sort"
)

// Bucket names the per-cycle sets the kernel drains on every Tick, plus
// the Demand bucket the management plane and policy use to track
// reservations awaiting a decision.
type Bucket int

const (
	BucketPending Bucket = iota
	BucketRenewing
	BucketClosing
	BucketRedeeming
	BucketDemand
	numBuckets
)

// Calendar is the per-actor structure mapping cycle -> set(reservation)
// for each simple bucket, plus interval indices for holdings (resources
// held by this actor) and outlays (resources this actor has extended to
// others, indexed per source/peer).
type Calendar struct {
	simple   [numBuckets]map[int64]map[string]struct{}
	location [numBuckets]map[string]int64 // id -> cycle, for O(1) Remove

	holdings *IntervalIndex
	outlays  map[string]*IntervalIndex // keyed by source/peer id

	cursor int64
}

// NewCalendar returns an empty Calendar.
func NewCalendar() *Calendar {
	c := &Calendar{
		holdings: NewIntervalIndex(),
		outlays:  make(map[string]*IntervalIndex),
	}
	for b := Bucket(0); b < numBuckets; b++ {
		c.simple[b] = make(map[int64]map[string]struct{})
		c.location[b] = make(map[string]int64)
	}
	return c
}

// Add places a reservation (or delegation) id into a simple bucket at
// the given cycle, replacing any previous placement of that id in the
// same bucket.
func (c *Calendar) Add(bucket Bucket, id string, cycle int64) {
	c.removeFromBucket(bucket, id)
	set, ok := c.simple[bucket][cycle]
	if !ok {
		set = make(map[string]struct{})
		c.simple[bucket][cycle] = set
	}
	set[id] = struct{}{}
	c.location[bucket][id] = cycle
}

// Get returns every id placed in bucket at exactly this cycle.
func (c *Calendar) Get(bucket Bucket, cycle int64) []string {
	set := c.simple[bucket][cycle]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// removeFromBucket clears id from one simple bucket, if present.
func (c *Calendar) removeFromBucket(bucket Bucket, id string) {
	if cycle, ok := c.location[bucket][id]; ok {
		delete(c.simple[bucket][cycle], id)
		if len(c.simple[bucket][cycle]) == 0 {
			delete(c.simple[bucket], cycle)
		}
		delete(c.location[bucket], id)
	}
}

// Remove sweeps id out of every bucket and interval index — used when a
// reservation or delegation is closed/removed.
func (c *Calendar) Remove(id string) {
	for b := Bucket(0); b < numBuckets; b++ {
		c.removeFromBucket(b, id)
	}
	c.holdings.Remove(id)
	for _, idx := range c.outlays {
		idx.Remove(id)
	}
}

// Tick advances the calendar's internal cursor, freeing past interval
// entries from holdings/outlays. Simple buckets are left untouched: the
// kernel reads them with Get and clears entries with Remove.
func (c *Calendar) Tick(cycle int64) {
	c.cursor = cycle
	c.holdings.Expire(cycle)
	for _, idx := range c.outlays {
		idx.Expire(cycle)
	}
}

// AddHolding indexes a concrete resource bundle this actor holds over
// [start, end).
func (c *Calendar) AddHolding(id string, start, end int64) {
	c.holdings.Add(id, start, end)
}

// ActiveHoldings returns every holding active at the given cycle.
func (c *Calendar) ActiveHoldings(when int64) []string {
	return c.holdings.ActiveAt(when)
}

// Outlay returns (creating if absent) the interval index for resources
// extended to the named source/peer.
func (c *Calendar) Outlay(source string) *IntervalIndex {
	idx, ok := c.outlays[source]
	if !ok {
		idx = NewIntervalIndex()
		c.outlays[source] = idx
	}
	return idx
}

// --- Interval index: sorted-by-end heap for expiry + sorted-by-start
// slice for ActiveAt, which binary-searches the starts and then scans
// only the entries starting at or before the queried cycle.

type interval struct {
	id         string
	start, end int64
	heapIndex  int
}

// endHeap is a min-heap of *interval ordered by End, used to cheaply
// find and drop expired entries on Tick.
type endHeap []*interval

func (h endHeap) Len() int            { return len(h) }
func (h endHeap) Less(i, j int) bool  { return h[i].end < h[j].end }
func (h endHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex, h[j].heapIndex = i, j
}
func (h *endHeap) Push(x any) {
	it := x.(*interval)
	it.heapIndex = len(*h)
	*h = append(*h, it)
}
func (h *endHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.heapIndex = -1
	*h = old[:n-1]
	return it
}

// IntervalIndex answers active_at(when) faster than a full scan: starts
// are kept sorted for binary search, ends are kept in a min-heap so
// Expire only visits entries that actually left the window.
type IntervalIndex struct {
	byID    map[string]*interval
	byStart []*interval // kept sorted by start
	byEnd   endHeap
}

func NewIntervalIndex() *IntervalIndex {
	return &IntervalIndex{byID: make(map[string]*interval)}
}

// Add indexes id over [start, end). Re-adding an id replaces its entry.
func (idx *IntervalIndex) Add(id string, start, end int64) {
	idx.Remove(id)
	it := &interval{id: id, start: start, end: end}
	idx.byID[id] = it

	pos := sort.Search(len(idx.byStart), func(i int) bool { return idx.byStart[i].start >= start })
	idx.byStart = append(idx.byStart, nil)
	copy(idx.byStart[pos+1:], idx.byStart[pos:])
	idx.byStart[pos] = it

	heap.Push(&idx.byEnd, it)
}

// Remove drops id from the index, if present.
func (idx *IntervalIndex) Remove(id string) {
	it, ok := idx.byID[id]
	if !ok {
		return
	}
	delete(idx.byID, id)
	idx.removeFromByStart(it)
	if it.heapIndex >= 0 {
		heap.Remove(&idx.byEnd, it.heapIndex)
	}
}

func (idx *IntervalIndex) removeFromByStart(it *interval) {
	pos := sort.Search(len(idx.byStart), func(i int) bool { return idx.byStart[i].start >= it.start })
	for pos < len(idx.byStart) && idx.byStart[pos] != it {
		pos++
	}
	if pos < len(idx.byStart) {
		idx.byStart = append(idx.byStart[:pos], idx.byStart[pos+1:]...)
	}
}

// Expire drops every entry whose end has passed `cycle`.
func (idx *IntervalIndex) Expire(cycle int64) {
	for len(idx.byEnd) > 0 && idx.byEnd[0].end <= cycle {
		it := heap.Pop(&idx.byEnd).(*interval)
		delete(idx.byID, it.id)
		idx.removeFromByStart(it)
	}
}

// ActiveAt returns every id whose [start, end) interval covers `when`.
func (idx *IntervalIndex) ActiveAt(when int64) []string {
	pos := sort.Search(len(idx.byStart), func(i int) bool { return idx.byStart[i].start > when })
	out := make([]string, 0, pos)
	for i := 0; i < pos; i++ {
		it := idx.byStart[i]
		if it.end > when {
			out = append(out, it.id)
		}
	}
	sort.Strings(out)
	return out
}

// Len reports how many intervals are currently indexed.
func (idx *IntervalIndex) Len() int { return len(idx.byID) }
