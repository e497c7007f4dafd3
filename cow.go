// Package cow provides a thread-safe clone-on-write container with
// lock-free reading.
//
// Container is intended as a faster alternative to sync.RWMutex for
// workloads dominated by reads. Reading never blocks and returns
// immediately; writing is blocked only by other writers, never by any
// reader. A container with a single writer and arbitrarily many readers
// never blocks at all.
//
// The container keeps two copies of its value, so the memory footprint
// is higher than an RWMutex-guarded value. Readers may observe a value
// that is stale relative to an in-flight or freshly finished Edit; if
// that is undesirable, use sync.RWMutex instead.
package cow

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// The two slots alternate between active and draining roles for the
// container's whole lifetime.
const (
	slotRed uint32 = iota
	slotGreen
)

// slot is one of the two storage locations: an owned snapshot pointer
// plus a hazard counter of readers currently cloning a handle from it.
type slot[T any] struct {
	ptr     atomic.Pointer[Snapshot[T]]
	readers atomic.Int64
}

// Container is a clone-on-write cell holding a value of type T.
//
// Read returns a consistent immutable snapshot without locking. Edit
// clones the current value, lets a caller-supplied mutator change the
// clone, and atomically publishes the result. Writers serialize on an
// internal mutex; readers never touch it.
//
// T must be duplicable: the clone function given to New is invoked on
// every Edit (and twice at construction) and must return a copy that
// shares no mutable state with its argument.
type Container[T any] struct {
	writeLock sync.Mutex
	active    atomic.Uint32
	red       slot[T]
	green     slot[T]
	clone     func(T) T
}

// New creates a Container seeded with initial. The value is cloned once
// per slot, so the caller keeps ownership of initial.
//
// clone must duplicate a T deeply enough that mutating the copy never
// affects the source; passing nil panics.
func New[T any](initial T, clone func(T) T) *Container[T] {
	if clone == nil {
		panic("cow: nil clone function")
	}
	c := &Container[T]{clone: clone}
	c.red.ptr.Store(newSnapshot(clone(initial), 0))
	c.green.ptr.Store(newSnapshot(clone(initial), 0))
	c.active.Store(slotRed)
	return c
}

// slotOf maps a selector value to its slot. Any value outside the two
// known selectors means the container's memory has been corrupted; that
// is an unrecoverable internal fault, not an error to hand back.
func (c *Container[T]) slotOf(sel uint32) *slot[T] {
	switch sel {
	case slotRed:
		return &c.red
	case slotGreen:
		return &c.green
	default:
		panic("cow: active slot selector out of range")
	}
}

func otherSlot(sel uint32) uint32 {
	return (sel + 1) % 2
}

// Read returns the latest published snapshot of the container's value.
//
// Read is lock-free: it completes in a bounded number of steps and never
// waits on a writer. The returned snapshot is immutable; call Read again
// to observe a later Edit. A snapshot stays valid for as long as the
// caller retains it, regardless of how many edits happen meanwhile.
func (c *Container[T]) Read() *Snapshot[T] {
	s := c.slotOf(c.active.Load())

	// Announce presence so an in-flight Edit waits before recycling
	// this slot, then take the handle and retract the announcement.
	s.readers.Add(1)
	snap := s.ptr.Load()
	s.readers.Add(-1)
	return snap
}

// Value is shorthand for Read().Value().
func (c *Container[T]) Value() T {
	return c.Read().Value()
}

// Edit applies fn to a private clone of the current value and publishes
// the mutated clone as the new active value.
//
// Edit blocks until any concurrent Edit has finished; it never blocks
// readers. fn receives exclusive access to the clone and must not retain
// the pointer past its return. If fn returns an error, the container's
// visible state is unchanged and the error is returned to the caller; a
// panicking fn likewise publishes nothing and the panic propagates.
//
// Once Edit returns, every subsequent Read observes the new value or a
// later one. A Read concurrent with Edit observes either the old or the
// new value, never a partial mutation.
//
// Before flipping the active slot, Edit spin-waits for readers still
// announced on the inactive slot to finish taking their handles. The
// wait yields the processor on each turn and has no timeout: it is
// bounded by reader progress through Read's very short critical section,
// a deliberate liveness tradeoff that keeps the read path free of any
// blocking primitive.
func (c *Container[T]) Edit(fn func(*T) error) error {
	// The write lock serializes writers but does not inhibit readers.
	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	sel := c.active.Load()
	cur := c.slotOf(sel).ptr.Load()
	inactive := c.slotOf(otherSlot(sel))

	// Mutate a private clone. Nothing is installed until fn succeeds,
	// so an error or panic here leaves the container untouched.
	val := c.clone(cur.val)
	if err := fn(&val); err != nil {
		return err
	}

	// Install into the inactive slot. Readers still route through the
	// active slot, so this displaces only the value that was active
	// before the previous edit.
	next := newSnapshot(val, cur.gen+1)
	old := inactive.ptr.Swap(next)

	// Wait for late readers that announced on the inactive slot before
	// the swap to finish cloning their handles.
	for inactive.readers.Load() != 0 {
		runtime.Gosched()
	}

	// Guide all new readers to the freshly installed snapshot.
	c.active.Store(otherSlot(sel))

	// The container's reference to the displaced snapshot ends here;
	// the GC frees it once the last reader-held handle is dropped.
	_ = old
	return nil
}
