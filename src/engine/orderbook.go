package engine

import (
	"fmt"
)

// OrderBook is the matching engine for one instrument. It is not safe for
// concurrent use: the owner must serialize every call (see package market).
type OrderBook struct {
	Code string

	bids   *ladder
	asks   *ladder
	index  orderIndex
	orders arena[orderNode]
	levels arena[PriceLevel]

	sequence uint64
	tradeID  uint64
	nextID   uint64
}

func NewOrderBook(code string) *OrderBook {
	return &OrderBook{
		Code:  code,
		bids:  newLadder(SideBid),
		asks:  newLadder(SideAsk),
		index: newOrderIndex(),
	}
}

func (ob *OrderBook) ladderFor(side Side) *ladder {
	if side == SideBid {
		return ob.bids
	}
	return ob.asks
}

func (ob *OrderBook) best(l *ladder) (price int64, quantity int64, ok bool) {
	ref, ok := l.best()
	if !ok {
		return 0, 0, false
	}
	return ref.price, ob.levels.at(ref.level).TotalQuantity, true
}

func (ob *OrderBook) BestBid() (price int64, quantity int64, ok bool) {
	return ob.best(ob.bids)
}

func (ob *OrderBook) BestAsk() (price int64, quantity int64, ok bool) {
	return ob.best(ob.asks)
}

// Order returns a copy of a resting order.
func (ob *OrderBook) Order(id uint64) (Order, bool) {
	h, ok := ob.index.lookup(id)
	if !ok {
		return Order{}, false
	}
	return ob.orders.at(h).order, true
}

// Len is the number of resting orders.
func (ob *OrderBook) Len() int {
	return ob.index.len()
}

func (ob *OrderBook) LastSequence() uint64 {
	return ob.sequence
}

type LevelView struct {
	Price      int64
	Quantity   int64
	OrderCount int
}

// Depth returns up to depth levels per side, best first, from the cached level totals.
func (ob *OrderBook) Depth(depth int) (bids []LevelView, asks []LevelView) {
	return ob.depth(ob.bids, depth), ob.depth(ob.asks, depth)
}

func (ob *OrderBook) depth(l *ladder, depth int) []LevelView {
	if depth <= 0 {
		return []LevelView{}
	}
	out := make([]LevelView, 0, min(depth, l.len()))
	l.ascend(func(ref levelRef) bool {
		lvl := ob.levels.at(ref.level)
		out = append(out, LevelView{
			Price:      lvl.Price,
			Quantity:   lvl.TotalQuantity,
			OrderCount: lvl.OrderCount,
		})
		return len(out) < depth
	})
	return out
}

type LevelSnapshot struct {
	Price    int64
	Quantity int64
	Orders   []Order
}

type Snapshot struct {
	Code     string
	Sequence uint64
	Trades   uint64
	Bids     []LevelSnapshot
	Asks     []LevelSnapshot
}

// Snapshot copies every resting order in priority order.
func (ob *OrderBook) Snapshot() Snapshot {
	return Snapshot{
		Code:     ob.Code,
		Sequence: ob.sequence,
		Trades:   ob.tradeID,
		Bids:     ob.snapshotSide(ob.bids),
		Asks:     ob.snapshotSide(ob.asks),
	}
}

func (ob *OrderBook) snapshotSide(l *ladder) []LevelSnapshot {
	out := make([]LevelSnapshot, 0, l.len())
	l.ascend(func(ref levelRef) bool {
		lvl := ob.levels.at(ref.level)
		snap := LevelSnapshot{
			Price:    lvl.Price,
			Quantity: lvl.TotalQuantity,
			Orders:   make([]Order, 0, lvl.OrderCount),
		}
		lvl.each(&ob.orders, func(_ handle, n *orderNode) bool {
			snap.Orders = append(snap.Orders, n.order)
			return true
		})
		out = append(out, snap)
		return true
	})
	return out
}

// CheckInvariants walks the whole book and verifies the cached aggregates,
// FIFO ordering, index consistency and that the book is not crossed.
func (ob *OrderBook) CheckInvariants() error {
	indexed := 0
	for _, l := range []*ladder{ob.bids, ob.asks} {
		var err error
		l.ascend(func(ref levelRef) bool {
			lvl := ob.levels.at(ref.level)
			if lvl.Price != ref.price {
				err = fmt.Errorf("%w: level keyed %d holds price %d", ErrInvariantViolation, ref.price, lvl.Price)
				return false
			}
			if lvl.IsEmpty() {
				err = fmt.Errorf("%w: empty level %d left on %s ladder", ErrInvariantViolation, ref.price, l.side)
				return false
			}

			var total int64
			var count int
			var lastSeq uint64
			lvl.each(&ob.orders, func(h handle, n *orderNode) bool {
				o := n.order
				switch {
				case o.Side != l.side || o.Price != ref.price || n.level != ref.level:
					err = fmt.Errorf("%w: order %d misplaced at %s %d", ErrInvariantViolation, o.ID, l.side, ref.price)
				case o.Remaining() <= 0:
					err = fmt.Errorf("%w: order %d resting with nothing remaining", ErrInvariantViolation, o.ID)
				case count > 0 && o.Sequence <= lastSeq:
					err = fmt.Errorf("%w: level %d out of time priority at order %d", ErrInvariantViolation, ref.price, o.ID)
				}
				if idx, ok := ob.index.lookup(o.ID); err == nil && (!ok || idx != h) {
					err = fmt.Errorf("%w: order %d not indexed", ErrInvariantViolation, o.ID)
				}
				if err != nil {
					return false
				}
				total += o.Remaining()
				count++
				lastSeq = o.Sequence
				return true
			})
			if err != nil {
				return false
			}
			if total != lvl.TotalQuantity || count != lvl.OrderCount {
				err = fmt.Errorf("%w: level %d caches %d/%d, queue holds %d/%d",
					ErrInvariantViolation, ref.price, lvl.TotalQuantity, lvl.OrderCount, total, count)
				return false
			}
			indexed += count
			return true
		})
		if err != nil {
			return err
		}
	}

	if indexed != ob.index.len() || indexed != ob.orders.len() {
		return fmt.Errorf("%w: %d queued orders, %d indexed, %d allocated",
			ErrInvariantViolation, indexed, ob.index.len(), ob.orders.len())
	}
	if ob.bids.len()+ob.asks.len() != ob.levels.len() {
		return fmt.Errorf("%w: %d levels on ladders, %d allocated",
			ErrInvariantViolation, ob.bids.len()+ob.asks.len(), ob.levels.len())
	}

	bid, _, hasBid := ob.BestBid()
	ask, _, hasAsk := ob.BestAsk()
	if hasBid && hasAsk && bid >= ask {
		return fmt.Errorf("%w: crossed book, bid %d >= ask %d", ErrInvariantViolation, bid, ask)
	}
	return nil
}
