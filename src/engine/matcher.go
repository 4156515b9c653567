package engine

import (
	"fmt"
	"math"
)

// PlaceOrder matches order against the opposite ladder under price-time
// priority and disposes of the remainder by time in force. A zero ID is
// replaced by a book-assigned one. Rejected orders leave the book untouched.
func (ob *OrderBook) PlaceOrder(order Order) (outcome MatchOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = MatchOutcome{OrderID: order.ID}
			err = fmt.Errorf("%w: %v", ErrInvariantViolation, r)
		}
	}()

	if err := ob.validate(&order); err != nil {
		return MatchOutcome{OrderID: order.ID}, err
	}
	order.Filled = 0

	opposite := ob.ladderFor(order.Side.Opposite())

	// edge case: FOK is decided on a read-only walk so a rejection has no side effects
	if order.TimeInForce == FOK {
		if available := ob.fillable(opposite, &order); available < order.Quantity {
			return MatchOutcome{OrderID: order.ID}, &NoFillError{
				OrderID:   order.ID,
				Requested: order.Quantity,
				Available: available,
			}
		}
	}

	if order.ID == 0 {
		order.ID = ob.assignID()
	}
	ob.sequence++
	order.Sequence = ob.sequence

	outcome = MatchOutcome{
		OrderID:  order.ID,
		Sequence: order.Sequence,
		Trades:   make([]Trade, 0),
	}

	if err := ob.match(&order, opposite, &outcome); err != nil {
		return outcome, err
	}

	outcome.Filled = order.Filled
	outcome.Remaining = order.Remaining()

	switch {
	case order.IsFilled():
		outcome.Status = StatusFilled
	case order.TimeInForce == FOK:
		return outcome, fmt.Errorf("%w: fill-or-kill order %d left %d unfilled", ErrInvariantViolation, order.ID, order.Remaining())
	case order.TimeInForce == GTC && !order.IsMarket():
		ob.rest(order)
		if order.Filled == 0 {
			outcome.Status = StatusAccepted
		} else {
			outcome.Status = StatusPartialFill
		}
	default:
		// IOC, and market orders of any kind, never rest
		outcome.Status = StatusExpired
	}

	return outcome, nil
}

func (ob *OrderBook) validate(o *Order) error {
	if !o.Side.valid() {
		return fmt.Errorf("%w: order %d has side %s", ErrInvalidOrder, o.ID, o.Side)
	}
	if !o.TimeInForce.valid() {
		return fmt.Errorf("%w: order %d has time in force %s", ErrInvalidOrder, o.ID, o.TimeInForce)
	}
	if o.Quantity <= 0 {
		return fmt.Errorf("%w: order %d quantity %d must be positive", ErrInvalidQuantity, o.ID, o.Quantity)
	}
	if o.Price < 0 && !o.IsMarket() {
		return fmt.Errorf("%w: order %d price %d is negative", ErrInvalidPrice, o.ID, o.Price)
	}
	if o.ID != 0 {
		if _, exists := ob.index.lookup(o.ID); exists {
			return fmt.Errorf("%w: %d is already resting", ErrDuplicateOrderID, o.ID)
		}
	}
	// edge case: a level total must stay representable once the remainder rests
	if o.TimeInForce == GTC && !o.IsMarket() {
		if ref, ok := ob.ladderFor(o.Side).get(o.Price); ok {
			if total := ob.levels.at(ref.level).TotalQuantity; total > math.MaxInt64-o.Quantity {
				return fmt.Errorf("%w: order %d quantity %d would overflow level %d holding %d", ErrInvalidQuantity, o.ID, o.Quantity, o.Price, total)
			}
		}
	}
	return nil
}

func (ob *OrderBook) assignID() uint64 {
	for {
		ob.nextID++
		if _, exists := ob.index.lookup(ob.nextID); !exists {
			return ob.nextID
		}
	}
}

// fillable sums resting quantity at marketable prices, stopping as soon as the
// order would be covered.
func (ob *OrderBook) fillable(opposite *ladder, o *Order) int64 {
	var available int64
	opposite.ascend(func(ref levelRef) bool {
		if !opposite.marketable(ref.price, o.Price) {
			return false
		}
		total := ob.levels.at(ref.level).TotalQuantity
		if total >= o.Quantity-available {
			available = o.Quantity
			return false
		}
		available += total
		return true
	})
	return available
}

func (ob *OrderBook) match(taker *Order, opposite *ladder, out *MatchOutcome) error {
	for taker.Remaining() > 0 && opposite.crosses(taker.Price, taker.Side) {
		ref, _ := opposite.best()
		level := ob.levels.at(ref.level)

		h := level.peekHead()
		if h == nilHandle {
			// edge case: drop the stray level so later calls see a consistent ladder
			opposite.removeLevelIfEmpty(ref.price, &ob.levels)
			return fmt.Errorf("%w: empty level %d on %s ladder", ErrInvariantViolation, ref.price, opposite.side)
		}
		maker := &ob.orders.at(h).order

		qty := min(taker.Remaining(), maker.Remaining())
		if err := level.applyFill(&ob.orders, h, qty); err != nil {
			return err
		}
		taker.Filled += qty

		ob.tradeID++
		out.Trades = append(out.Trades, Trade{
			ID:           ob.tradeID,
			MakerOrderID: maker.ID,
			TakerOrderID: taker.ID,
			TakerSide:    taker.Side,
			Price:        ref.price,
			Quantity:     qty,
			Sequence:     taker.Sequence,
		})

		if maker.Remaining() == 0 {
			makerID := maker.ID
			level.remove(&ob.orders, h)
			ob.index.unregister(makerID)
			ob.orders.release(h)
			opposite.removeLevelIfEmpty(ref.price, &ob.levels)
		}
	}
	return nil
}

func (ob *OrderBook) rest(o Order) {
	lh := ob.ladderFor(o.Side).getOrCreateLevel(o.Price, &ob.levels)
	h := ob.orders.alloc(orderNode{
		order: o,
		level: lh,
		prev:  nilHandle,
		next:  nilHandle,
	})
	ob.levels.at(lh).enqueue(&ob.orders, h)
	ob.index.register(o.ID, h)
}

// CancelOrder removes a resting order. Cancelling an id that is not resting,
// including one already cancelled or filled, returns ErrOrderNotFound.
func (ob *OrderBook) CancelOrder(id uint64) (outcome CancelOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = CancelOutcome{OrderID: id}
			err = fmt.Errorf("%w: %v", ErrInvariantViolation, r)
		}
	}()

	h, ok := ob.index.lookup(id)
	if !ok {
		return CancelOutcome{OrderID: id}, fmt.Errorf("%w: %d", ErrOrderNotFound, id)
	}

	n := ob.orders.at(h)
	o := n.order
	lh := n.level

	ob.levels.at(lh).remove(&ob.orders, h)
	ob.index.unregister(id)
	ob.orders.release(h)
	ob.ladderFor(o.Side).removeLevelIfEmpty(o.Price, &ob.levels)

	return CancelOutcome{
		OrderID:   id,
		Side:      o.Side,
		Price:     o.Price,
		Cancelled: o.Remaining(),
		Filled:    o.Filled,
	}, nil
}
