package config

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Instrument defines the increments used to turn human prices and sizes into
// the integer ticks and lots the engine works in.
type Instrument struct {
	Code     string
	TickSize decimal.Decimal
	LotSize  decimal.Decimal
}

// ToTicks rejects the two extreme tick values, which the engine reserves for
// market orders.
func (i Instrument) ToTicks(price decimal.Decimal) (int64, error) {
	ticks, err := toUnits(price, i.TickSize, "price", i.Code)
	if err != nil {
		return 0, err
	}
	if ticks == math.MaxInt64 || ticks == math.MinInt64 {
		return 0, fmt.Errorf("price %s is reserved for market orders on %s", price, i.Code)
	}
	return ticks, nil
}

func (i Instrument) ToLots(quantity decimal.Decimal) (int64, error) {
	return toUnits(quantity, i.LotSize, "quantity", i.Code)
}

func (i Instrument) FromTicks(ticks int64) decimal.Decimal {
	return decimal.NewFromInt(ticks).Mul(i.TickSize)
}

func (i Instrument) FromLots(lots int64) decimal.Decimal {
	return decimal.NewFromInt(lots).Mul(i.LotSize)
}

func toUnits(v, increment decimal.Decimal, what, code string) (int64, error) {
	if !v.Mod(increment).IsZero() {
		return 0, fmt.Errorf("%s %s is not a multiple of %s for %s", what, v, increment, code)
	}
	units := v.Div(increment)
	if !units.BigInt().IsInt64() {
		return 0, fmt.Errorf("%s %s is out of range for %s", what, v, code)
	}
	return units.IntPart(), nil
}
