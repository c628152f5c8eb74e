package storage

import "sync/atomic"

// Allocator hands out locally unique, monotonically increasing identifiers.
//
// The counter starts at 0 and is incremented atomically, so the first ID is
// convert(1) and no two callers ever see the same counter value. The
// conversion function must be pure and total over positive integers.
type Allocator[ID any] struct {
	counter atomic.Int64
	convert func(int64) ID
}

// NewAllocator returns an allocator that passes each counter value through convert.
func NewAllocator[ID any](convert func(int64) ID) *Allocator[ID] {
	return &Allocator[ID]{convert: convert}
}

// NextID returns the next identifier.
func (a *Allocator[ID]) NextID() ID {
	return a.convert(a.counter.Add(1))
}

// Last returns the most recently issued counter value (0 if none).
func (a *Allocator[ID]) Last() int64 {
	return a.counter.Load()
}
