package videoslot

import "sync/atomic"

// Slot is a single value, latest wins hand-off between one or more
// publishers and one or more takers. Publish always replaces, nothing
// is ever queued and neither side blocks.
type Slot[T any] struct {
	v          atomic.Pointer[T]
	published  atomic.Uint64
	overwrites atomic.Uint64
}

func New[T any]() *Slot[T] {
	return &Slot[T]{}
}

// Publish hands v over to the taking side. The value must be fully built
// before the call and must not be mutated afterwards. Publishing nil is
// ignored.
func (s *Slot[T]) Publish(v *T) {
	if v == nil {
		return
	}
	s.published.Add(1)
	if old := s.v.Swap(v); old != nil {
		s.overwrites.Add(1)
	}
}

// TakeIfPresent removes and returns the most recently published value.
func (s *Slot[T]) TakeIfPresent() (*T, bool) {
	v := s.v.Swap(nil)
	return v, v != nil
}

// Published is the total number of values handed to Publish.
func (s *Slot[T]) Published() uint64 {
	return s.published.Load()
}

// Overwrites counts values replaced before anyone took them.
func (s *Slot[T]) Overwrites() uint64 {
	return s.overwrites.Load()
}
