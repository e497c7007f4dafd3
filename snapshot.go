package cow

// Snapshot is an immutable point-in-time view of a Container's value.
//
// Snapshots are shared: many readers may hold the same snapshot
// concurrently, and a snapshot outlives any number of later edits for as
// long as someone retains it. Holders must treat the value as read-only;
// if T contains reference types (maps, slices, pointers), mutating them
// through a snapshot races with every other reader.
type Snapshot[T any] struct {
	val T
	gen uint64
}

func newSnapshot[T any](val T, gen uint64) *Snapshot[T] {
	return &Snapshot[T]{val: val, gen: gen}
}

// Value returns the captured value.
func (s *Snapshot[T]) Value() T {
	return s.val
}

// Generation reports how many edits preceded this snapshot. It grows by
// one per Edit, starting at zero for the initial value, and can be used
// to cheaply detect that the container has changed between two reads.
func (s *Snapshot[T]) Generation() uint64 {
	return s.gen
}
