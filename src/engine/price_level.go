package engine

import "fmt"

type orderNode struct {
	order Order
	level handle
	prev  handle
	next  handle
}

// PriceLevel holds every resting order at one price on one side as an intrusive
// FIFO list of order handles. TotalQuantity and OrderCount are kept in step
// with the queue on every mutation.
type PriceLevel struct {
	Price         int64
	TotalQuantity int64
	OrderCount    int

	head handle
	tail handle
}

func newPriceLevel(price int64) PriceLevel {
	return PriceLevel{Price: price, head: nilHandle, tail: nilHandle}
}

func (l *PriceLevel) enqueue(nodes *arena[orderNode], h handle) {
	n := nodes.at(h)
	n.prev = l.tail
	n.next = nilHandle
	if l.tail != nilHandle {
		nodes.at(l.tail).next = h
	} else {
		l.head = h
	}
	l.tail = h

	l.TotalQuantity += n.order.Remaining()
	l.OrderCount++
}

func (l *PriceLevel) peekHead() handle {
	return l.head
}

func (l *PriceLevel) applyFill(nodes *arena[orderNode], h handle, qty int64) error {
	o := &nodes.at(h).order
	if qty <= 0 || qty > o.Remaining() {
		return fmt.Errorf("%w: fill of %d against order %d with %d remaining", ErrInvariantViolation, qty, o.ID, o.Remaining())
	}
	o.Filled += qty
	l.TotalQuantity -= qty
	return nil
}

func (l *PriceLevel) remove(nodes *arena[orderNode], h handle) {
	n := nodes.at(h)
	if n.prev != nilHandle {
		nodes.at(n.prev).next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nilHandle {
		nodes.at(n.next).prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev = nilHandle
	n.next = nilHandle

	l.TotalQuantity -= n.order.Remaining()
	l.OrderCount--
}

func (l *PriceLevel) IsEmpty() bool {
	return l.OrderCount == 0
}

// each walks the queue oldest first until fn returns false.
func (l *PriceLevel) each(nodes *arena[orderNode], fn func(h handle, n *orderNode) bool) {
	for h := l.head; h != nilHandle; {
		n := nodes.at(h)
		next := n.next
		if !fn(h, n) {
			return
		}
		h = next
	}
}
