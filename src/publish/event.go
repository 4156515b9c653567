package publish

import (
	"strconv"

	"github.com/google/uuid"

	"matchcore/src/engine"
)

var tradeNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("matchcore/trades"))

// TradeEvent is the wire form of a trade handed to downstream consumers.
type TradeEvent struct {
	ID           string `json:"id"`
	Market       string `json:"market"`
	TradeNumber  uint64 `json:"trade_number"`
	MakerOrderID uint64 `json:"maker_order_id"`
	TakerOrderID uint64 `json:"taker_order_id"`
	TakerSide    string `json:"taker_side"`
	Price        int64  `json:"price"`    // ticks
	Quantity     int64  `json:"quantity"` // lots
	Sequence     uint64 `json:"sequence"`
}

// TradeID is stable for a (market, trade number) pair, so a replayed book
// produces the same ids and consumers can deduplicate.
func TradeID(market string, number uint64) uuid.UUID {
	return uuid.NewSHA1(tradeNamespace, []byte(market+"/"+strconv.FormatUint(number, 10)))
}

func NewTradeEvent(market string, t engine.Trade) TradeEvent {
	return TradeEvent{
		ID:           TradeID(market, t.ID).String(),
		Market:       market,
		TradeNumber:  t.ID,
		MakerOrderID: t.MakerOrderID,
		TakerOrderID: t.TakerOrderID,
		TakerSide:    t.TakerSide.String(),
		Price:        t.Price,
		Quantity:     t.Quantity,
		Sequence:     t.Sequence,
	}
}

func NewTradeEvents(market string, trades []engine.Trade) []TradeEvent {
	events := make([]TradeEvent, 0, len(trades))
	for _, t := range trades {
		events = append(events, NewTradeEvent(market, t))
	}
	return events
}
