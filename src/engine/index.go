package engine

// orderIndex maps a resting order id straight to its arena handle.
// Duplicate ids are rejected by PlaceOrder before register is reached.
type orderIndex struct {
	handles map[uint64]handle
}

func newOrderIndex() orderIndex {
	return orderIndex{handles: make(map[uint64]handle)}
}

func (x *orderIndex) register(id uint64, h handle) {
	x.handles[id] = h
}

func (x *orderIndex) lookup(id uint64) (handle, bool) {
	h, ok := x.handles[id]
	return h, ok
}

func (x *orderIndex) unregister(id uint64) {
	delete(x.handles, id)
}

func (x *orderIndex) len() int {
	return len(x.handles)
}
