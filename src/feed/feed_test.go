package feed_test

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchcore/src/config"
	"matchcore/src/engine"
	"matchcore/src/feed"
	"matchcore/src/market"
)

func setup(t *testing.T) (*market.Registry, *feed.Runner) {
	t.Helper()
	cfg := &config.Config{Instruments: []config.Instrument{{
		Code:     "BTC-USD",
		TickSize: decimal.RequireFromString("0.5"),
		LotSize:  decimal.RequireFromString("0.01"),
	}}}

	r := market.NewRegistry(market.Options{})
	t.Cleanup(r.Close)
	require.NoError(t, r.CreateBook("BTC-USD"))
	return r, feed.NewRunner(r, cfg)
}

func TestRunFile(t *testing.T) {
	r, runner := setup(t)
	ctx := context.Background()

	sum, err := runner.RunFile(ctx, "testdata/orders.ndjson")
	require.NoError(t, err)

	// order 4 has an off-tick price, order 5 cannot be filled, order 6 has no
	// instrument and order 42 never existed
	assert.Equal(t, feed.Summary{Lines: 8, Placed: 3, Cancelled: 1, Rejected: 4, Trades: 2}, sum)

	d, err := r.Depth(ctx, "BTC-USD", 10)
	require.NoError(t, err)
	assert.Empty(t, d.Bids)
	assert.Empty(t, d.Asks)
	assert.Equal(t, uint64(3), d.Sequence)
}

func TestRunConvertsDecimals(t *testing.T) {
	r, runner := setup(t)
	ctx := context.Background()

	in := strings.NewReader(`{"market":"BTC-USD","id":9,"side":"BID","price":100.5,"quantity":"1.25"}`)
	sum, err := runner.Run(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Placed)

	o, ok, err := r.Order(ctx, "BTC-USD", 9)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(201), o.Price)
	assert.Equal(t, int64(125), o.Quantity)
	assert.Equal(t, engine.GTC, o.TimeInForce)

	sum, err = runner.Run(ctx, strings.NewReader(`{"market":"BTC-USD","action":"cancel","id":9}`))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Cancelled)
}

func TestRunStopsOnMalformedLine(t *testing.T) {
	_, runner := setup(t)

	in := strings.NewReader("{\"market\":\"BTC-USD\",\"id\":1,\"side\":\"BUY\",\"price\":\"1\",\"quantity\":\"1\"}\n{not json\n")
	sum, err := runner.Run(context.Background(), in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
	assert.Equal(t, 1, sum.Placed)

	_, err = runner.Run(context.Background(), strings.NewReader(`{"market":"BTC-USD","action":"amend","id":1}`))
	assert.Error(t, err)
}

func TestRunRejectsBadFields(t *testing.T) {
	_, runner := setup(t)

	in := strings.NewReader(strings.Join([]string{
		`{"market":"BTC-USD","id":1,"side":"LONG","price":"1","quantity":"1"}`,
		`{"market":"BTC-USD","id":2,"side":"BUY","price":"1","quantity":"1","tif":"DAY"}`,
		`{"market":"BTC-USD","id":3,"side":"BUY","type":"STOP","price":"1","quantity":"1"}`,
		`{"market":"BTC-USD","id":4,"side":"BUY","price":"1","quantity":"0"}`,
	}, "\n"))
	sum, err := runner.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Rejected)
}

func TestRunHonoursCancelledContext(t *testing.T) {
	_, runner := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runner.Run(ctx, strings.NewReader(`{"market":"BTC-USD","id":1,"side":"BUY","price":"1","quantity":"1"}`))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunStopsWhenRegistryClosed(t *testing.T) {
	r, runner := setup(t)
	r.Close()

	in := strings.NewReader(`{"market":"BTC-USD","id":1,"side":"BUY","price":"1","quantity":"1"}
{"market":"BTC-USD","id":2,"side":"SELL","price":"1","quantity":"1"}
{"action":"cancel","market":"BTC-USD","id":1}`)
	sum, err := runner.Run(context.Background(), in)
	require.Error(t, err)
	assert.ErrorIs(t, err, market.ErrClosed)
	assert.Equal(t, feed.Summary{Lines: 1}, sum)
}
