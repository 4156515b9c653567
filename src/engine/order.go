package engine

import (
	"fmt"
	"math"
	"strings"
)

type Side uint8

const (
	SideBid Side = iota
	SideAsk
)

func (s Side) String() string {
	switch s {
	case SideBid:
		return "BID"
	case SideAsk:
		return "ASK"
	default:
		return fmt.Sprintf("Side(%d)", uint8(s))
	}
}

func (s Side) Opposite() Side {
	if s == SideBid {
		return SideAsk
	}
	return SideBid
}

func (s Side) valid() bool {
	return s == SideBid || s == SideAsk
}

// ParseSide accepts BID/ASK as well as the BUY/SELL spelling used by most clients.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(s) {
	case "BID", "BUY":
		return SideBid, nil
	case "ASK", "SELL":
		return SideAsk, nil
	default:
		return 0, fmt.Errorf("%w: unknown side %q", ErrInvalidOrder, s)
	}
}

type TimeInForce uint8

const (
	GTC TimeInForce = iota
	IOC
	FOK
)

func (t TimeInForce) String() string {
	switch t {
	case GTC:
		return "GTC"
	case IOC:
		return "IOC"
	case FOK:
		return "FOK"
	default:
		return fmt.Sprintf("TimeInForce(%d)", uint8(t))
	}
}

func (t TimeInForce) valid() bool {
	return t <= FOK
}

func ParseTimeInForce(s string) (TimeInForce, error) {
	switch strings.ToUpper(s) {
	case "", "GTC":
		return GTC, nil
	case "IOC":
		return IOC, nil
	case "FOK":
		return FOK, nil
	default:
		return 0, fmt.Errorf("%w: unknown time in force %q", ErrInvalidOrder, s)
	}
}

// edge case: a market order is a limit order at the worst possible price, so it
// crosses every level on the opposite ladder and never rests
const (
	MarketBidPrice int64 = math.MaxInt64
	MarketAskPrice int64 = math.MinInt64
)

// Order prices are integer ticks and quantities integer lots.
type Order struct {
	ID          uint64
	Side        Side
	Price       int64
	Quantity    int64
	Filled      int64
	Sequence    uint64
	TimeInForce TimeInForce
}

func NewLimitOrder(id uint64, side Side, price, quantity int64, tif TimeInForce) Order {
	return Order{
		ID:          id,
		Side:        side,
		Price:       price,
		Quantity:    quantity,
		TimeInForce: tif,
	}
}

func NewMarketOrder(id uint64, side Side, quantity int64, tif TimeInForce) Order {
	price := MarketBidPrice
	if side == SideAsk {
		price = MarketAskPrice
	}
	return NewLimitOrder(id, side, price, quantity, tif)
}

func (o *Order) Remaining() int64 {
	return o.Quantity - o.Filled
}

func (o *Order) IsFilled() bool {
	return o.Filled >= o.Quantity
}

func (o *Order) IsMarket() bool {
	return (o.Side == SideBid && o.Price == MarketBidPrice) ||
		(o.Side == SideAsk && o.Price == MarketAskPrice)
}

type Status uint8

const (
	// StatusAccepted: nothing traded, the whole order rests.
	StatusAccepted Status = iota
	// StatusPartialFill: some quantity traded, the remainder rests.
	StatusPartialFill
	StatusFilled
	// StatusExpired: the untraded remainder was discarded (IOC and market orders).
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusAccepted:
		return "ACCEPTED"
	case StatusPartialFill:
		return "PARTIAL_FILL"
	case StatusFilled:
		return "FILLED"
	case StatusExpired:
		return "EXPIRED"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// Trade executes at the maker's price. Sequence is the taker's sequence and ID
// counts trades within one book.
type Trade struct {
	ID           uint64
	MakerOrderID uint64
	TakerOrderID uint64
	TakerSide    Side
	Price        int64
	Quantity     int64
	Sequence     uint64
}

type MatchOutcome struct {
	OrderID  uint64
	Sequence uint64
	Status   Status
	Filled   int64
	// Remaining is what rests on the book, or what was discarded for StatusExpired.
	Remaining int64
	Trades    []Trade
}

func (m MatchOutcome) Rested() bool {
	return m.Status == StatusAccepted || m.Status == StatusPartialFill
}

type CancelOutcome struct {
	OrderID   uint64
	Side      Side
	Price     int64
	Cancelled int64
	Filled    int64
}
