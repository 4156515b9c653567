package engine

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidOrder     = errors.New("invalid order")
	ErrInvalidQuantity  = errors.New("invalid quantity")
	ErrInvalidPrice     = errors.New("invalid price")
	ErrDuplicateOrderID = errors.New("duplicate order id")
	ErrOrderNotFound    = errors.New("order not found")
	ErrNoFill           = errors.New("order cannot be fully filled")

	// ErrInvariantViolation marks a bug inside the book rather than a bad request.
	ErrInvariantViolation = errors.New("order book invariant violation")
)

type NoFillError struct {
	OrderID   uint64
	Requested int64
	Available int64
}

func (e *NoFillError) Error() string {
	return fmt.Sprintf("order %d cannot be fully filled: requested %d, available %d", e.OrderID, e.Requested, e.Available)
}

func (e *NoFillError) Is(target error) bool {
	return target == ErrNoFill
}

// Reason maps an engine error to a short stable label for logs and metrics.
func Reason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, ErrInvalidPrice):
		return "invalid_price"
	case errors.Is(err, ErrDuplicateOrderID):
		return "duplicate_order_id"
	case errors.Is(err, ErrOrderNotFound):
		return "order_not_found"
	case errors.Is(err, ErrNoFill):
		return "no_fill"
	case errors.Is(err, ErrInvalidOrder):
		return "invalid_order"
	case errors.Is(err, ErrInvariantViolation):
		return "invariant_violation"
	default:
		return "other"
	}
}
