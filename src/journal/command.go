package journal

import (
	"fmt"

	"matchcore/src/engine"
)

type Kind string

const (
	KindPlace  Kind = "place"
	KindCancel Kind = "cancel"
)

// Command is one journaled input to a market. Place commands carry the order
// exactly as submitted, so replaying them reproduces ids and sequences.
type Command struct {
	Seq         uint64 `json:"seq"`
	Kind        Kind   `json:"kind"`
	Market      string `json:"market"`
	OrderID     uint64 `json:"order_id"`
	Side        string `json:"side,omitempty"`
	Price       int64  `json:"price,omitempty"`
	Quantity    int64  `json:"quantity,omitempty"`
	TimeInForce string `json:"tif,omitempty"`
	MarketOrder bool   `json:"market_order,omitempty"`
}

func PlaceCommand(market string, o engine.Order) Command {
	return Command{
		Kind:        KindPlace,
		Market:      market,
		OrderID:     o.ID,
		Side:        o.Side.String(),
		Price:       o.Price,
		Quantity:    o.Quantity,
		TimeInForce: o.TimeInForce.String(),
		MarketOrder: o.IsMarket(),
	}
}

func CancelCommand(market string, id uint64) Command {
	return Command{Kind: KindCancel, Market: market, OrderID: id}
}

// Order rebuilds the submitted order of a place command.
func (c Command) Order() (engine.Order, error) {
	if c.Kind != KindPlace {
		return engine.Order{}, fmt.Errorf("journal: %s command %d has no order", c.Kind, c.Seq)
	}
	side, err := engine.ParseSide(c.Side)
	if err != nil {
		return engine.Order{}, err
	}
	tif, err := engine.ParseTimeInForce(c.TimeInForce)
	if err != nil {
		return engine.Order{}, err
	}
	if c.MarketOrder {
		return engine.NewMarketOrder(c.OrderID, side, c.Quantity, tif), nil
	}
	return engine.NewLimitOrder(c.OrderID, side, c.Price, c.Quantity, tif), nil
}
