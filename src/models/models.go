package models

type ErrorResponse struct {
	Error string `json:"error"`
}

type OrderBookResponse struct {
	Market    string           `json:"market"`
	Sequence  uint64           `json:"sequence"`
	Timestamp int64            `json:"timestamp"` // unix timestamp in milliseconds
	Bids      []PriceLevelInfo `json:"bids"`      // sorted descending (highest first)
	Asks      []PriceLevelInfo `json:"asks"`      // sorted ascending (lowest first)
}

type PriceLevelInfo struct {
	Price        int64  `json:"price"`    // ticks
	Quantity     int64  `json:"quantity"` // aggregated lots at this price
	Orders       int    `json:"orders"`
	DisplayPrice string `json:"display_price,omitempty"`
	DisplaySize  string `json:"display_size,omitempty"`
}

type OrderStatusResponse struct {
	OrderID           uint64 `json:"order_id"`
	Market            string `json:"market"`
	Side              string `json:"side"`
	TimeInForce       string `json:"time_in_force"`
	Price             int64  `json:"price"` // ticks
	Quantity          int64  `json:"quantity"`
	FilledQuantity    int64  `json:"filled_quantity"`
	RemainingQuantity int64  `json:"remaining_quantity"`
	Sequence          uint64 `json:"sequence"`
	Status            string `json:"status"`
}

type MarketInfo struct {
	Market        string `json:"market"`
	TickSize      string `json:"tick_size,omitempty"`
	LotSize       string `json:"lot_size,omitempty"`
	RestingOrders int    `json:"resting_orders"`
	LastSequence  uint64 `json:"last_sequence"`
	BestBid       *int64 `json:"best_bid"`
	BestAsk       *int64 `json:"best_ask"`
}

type MarketsResponse struct {
	Markets []MarketInfo `json:"markets"`
}

type HealthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Markets       int    `json:"markets"`
	RestingOrders int    `json:"resting_orders"`
}
