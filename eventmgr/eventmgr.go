// Package eventmgr implements the comm core's monotonically-ordered
// timer queue: a min-heap of (timestamp, callback) pairs keyed by a
// caller-supplied clock, used by the datalink to schedule retransmits
// and reset retries.
//
// It is grounded on the teacher's sorted intrusive timer list in
// core/scheduler.go (insertTimer/TimerDispatch, with its wrap-safe
// signed comparison), generalized from a 32-bit hardware tick counter to
// the spec's int64 fixed-point clock and from caller-owned list nodes to
// a slice-backed free list of small integer ids — container/heap
// replaces the hand-rolled linked-list insertion sort since Go's
// standard library already gives an idiomatic, allocation-light
// priority queue.
package eventmgr

import (
	"container/heap"

	"github.com/fitterbap/fitterbap-go/internal/xsync"
)

// EventID identifies a scheduled event for later cancellation.
type EventID uint32

// EventFn is invoked when its deadline is reached. It runs with the
// manager's mutex released; it must not assume it holds the lock.
type EventFn func(userData any)

// ScheduleCallback is invoked whenever a newly scheduled event becomes
// the earliest pending deadline — and only then — so an integrating
// runtime knows it may need to wake its wait earlier.
type ScheduleCallback func(nextDeadline int64)

type item struct {
	id        EventID
	timestamp int64
	seq       uint64
	fn        EventFn
	userData  any
	index     int
}

type itemHeap []*item

func (h itemHeap) Len() int { return len(h) }
func (h itemHeap) Less(i, j int) bool {
	if h[i].timestamp != h[j].timestamp {
		return h[i].timestamp < h[j].timestamp
	}
	return h[i].seq < h[j].seq
}
func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *itemHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// Manager is a min-ordered collection of timed callbacks. The zero value
// is not usable; construct with New.
type Manager struct {
	mu xsync.Mutex

	h       itemHeap
	byID    map[EventID]*item
	nextID  EventID
	nextSeq uint64

	// free holds *item allocations released by Cancel/Process for reuse
	// by Schedule, so steady-state scheduling allocates nothing once the
	// pool has grown to cover the manager's working set — it only grows
	// on demand and never shrinks, mirroring the caller-owned, reused
	// Timer nodes of the teacher's core/scheduler.go.
	free []*item

	onSchedule ScheduleCallback
}

// New returns an empty Manager.
func New() *Manager {
	return &Manager{
		mu:   xsync.NoOp,
		byID: make(map[EventID]*item),
	}
}

// SetMutex registers the mutex other threads must contend for when
// calling into the manager concurrently with the driver task. Passing
// nil restores the no-op default (pure single-threaded use).
func (m *Manager) SetMutex(mu xsync.Mutex) {
	if mu == nil {
		mu = xsync.NoOp
	}
	m.mu = mu
}

// RegisterScheduleCallback sets the callback invoked when a newly
// scheduled event becomes the earliest deadline.
func (m *Manager) RegisterScheduleCallback(cb ScheduleCallback) {
	m.mu.Lock()
	m.onSchedule = cb
	m.mu.Unlock()
}

// Schedule inserts a new event at timestamp and returns its id.
func (m *Manager) Schedule(timestamp int64, fn EventFn, userData any) EventID {
	m.mu.Lock()

	wasEarliest := m.h.Len() == 0 || timestamp < m.h[0].timestamp

	m.nextID++
	id := m.nextID
	it := m.alloc()
	it.id = id
	it.timestamp = timestamp
	it.seq = m.nextSeq
	it.fn = fn
	it.userData = userData
	m.nextSeq++
	heap.Push(&m.h, it)
	m.byID[id] = it

	cb := m.onSchedule
	m.mu.Unlock()

	if wasEarliest && cb != nil {
		cb(timestamp)
	}
	return id
}

// alloc returns a zeroed *item from the free list, allocating a new one
// only when the pool is empty.
func (m *Manager) alloc() *item {
	n := len(m.free)
	if n == 0 {
		return &item{}
	}
	it := m.free[n-1]
	m.free[n-1] = nil
	m.free = m.free[:n-1]
	return it
}

// release clears it and returns it to the free list for Schedule to
// reuse.
func (m *Manager) release(it *item) {
	*it = item{index: -1}
	m.free = append(m.free, it)
}

// Cancel removes a pending event. It is idempotent: canceling an id that
// was already canceled or has already fired is a harmless no-op.
func (m *Manager) Cancel(id EventID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.byID[id]
	if !ok {
		return
	}
	delete(m.byID, id)
	heap.Remove(&m.h, it.index)
	m.release(it)
}

// TimeNext returns the timestamp of the earliest pending event and true,
// or (0, false) if nothing is scheduled.
func (m *Manager) TimeNext() (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.h.Len() == 0 {
		return 0, false
	}
	return m.h[0].timestamp, true
}

// IntervalNext returns the duration (in the clock's units) until the
// earliest pending event, relative to now. A past-due event yields a
// value <= 0. Returns false if nothing is scheduled.
func (m *Manager) IntervalNext(now int64) (int64, bool) {
	t, ok := m.TimeNext()
	if !ok {
		return 0, false
	}
	return t - now, true
}

// Process dispatches every event whose timestamp is <= now, in
// nondecreasing timestamp order with insertion order breaking ties.
// Callbacks run with the manager's mutex released.
func (m *Manager) Process(now int64) {
	for {
		m.mu.Lock()
		if m.h.Len() == 0 || m.h[0].timestamp > now {
			m.mu.Unlock()
			return
		}
		it := heap.Pop(&m.h).(*item)
		delete(m.byID, it.id)
		fn, userData := it.fn, it.userData
		m.release(it)
		m.mu.Unlock()

		if fn != nil {
			fn(userData)
		}
	}
}

// Len reports the number of pending events, for tests and diagnostics.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.h.Len()
}
