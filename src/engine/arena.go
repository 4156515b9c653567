package engine

// handle addresses a slot in an arena. Handles stay valid until released;
// pointers returned by at are only valid until the next alloc.
type handle int32

const nilHandle handle = -1

type arena[T any] struct {
	slots []T
	free  []handle
	live  int
}

func (a *arena[T]) alloc(v T) handle {
	a.live++
	if n := len(a.free); n > 0 {
		h := a.free[n-1]
		a.free = a.free[:n-1]
		a.slots[h] = v
		return h
	}
	a.slots = append(a.slots, v)
	return handle(len(a.slots) - 1)
}

func (a *arena[T]) at(h handle) *T {
	return &a.slots[h]
}

func (a *arena[T]) release(h handle) {
	var zero T
	a.slots[h] = zero
	a.free = append(a.free, h)
	a.live--
}

func (a *arena[T]) len() int {
	return a.live
}
