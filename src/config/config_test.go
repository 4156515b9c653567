package config

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvironment(t *testing.T) {
	env, err := Load("testdata", nil)
	require.NoError(t, err)

	cfg, err := FromEnvironment(env)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 500, cfg.Server.MaxDepth)
	assert.Equal(t, 200, cfg.Server.RateLimitMax)
	assert.True(t, cfg.Server.Enabled)
	assert.True(t, cfg.Server.RequestLogging)
	assert.Equal(t, 256, cfg.Market.QueueSize)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Publish.Kafka.Brokers)
	assert.Equal(t, "trades.v1", cfg.Publish.Kafka.Topic)

	require.Len(t, cfg.Instruments, 2)
	btc, ok := cfg.Instrument("BTC-USD")
	require.True(t, ok)
	assert.True(t, btc.TickSize.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, btc.LotSize.Equal(decimal.RequireFromString("0.0001")))

	_, ok = cfg.Instrument("ETH-USD")
	assert.False(t, ok)
}

func TestFromEnvironmentDefaults(t *testing.T) {
	cfg, err := FromEnvironment(NewEnvironment())
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 10, cfg.Server.DefaultDepth)
	assert.Equal(t, 1000, cfg.Server.MaxDepth)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "log", cfg.Publish.Driver)
	assert.False(t, cfg.Journal.Enabled)
	assert.Empty(t, cfg.Instruments)
}

func TestEnvVariablesOverrideFiles(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("RATE_LIMIT_DISABLED", "1")
	t.Setenv("ORDERBOOK_MAX_DEPTH", "50")
	t.Setenv("SHUTDOWN_TIMEOUT", "nonsense")

	env := NewEnvironment()
	env.Set("server.port", "8081")

	cfg, err := FromEnvironment(env)
	require.NoError(t, err)
	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.True(t, cfg.Server.RateLimitDisabled)
	assert.Equal(t, 50, cfg.Server.MaxDepth)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
}

func TestFromEnvironmentRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		props map[string]string
		field string
	}{
		{"bad int", map[string]string{"server.max_depth": "lots"}, "server.max_depth"},
		{"bad bool", map[string]string{"journal.enabled": "maybe"}, "journal.enabled"},
		{"bad duration", map[string]string{"server.shutdown_timeout": "-1s"}, "server.shutdown_timeout"},
		{"bad tick", map[string]string{"engine.instruments[0].code": "X", "engine.instruments[0].tick_size": "abc"}, "engine.instruments[0].tick_size"},
		{"zero lot", map[string]string{"engine.instruments[0].code": "X", "engine.instruments[0].lot_size": "0"}, "engine.instruments[0].lot_size"},
		{"empty code", map[string]string{"engine.instruments[0].code": ""}, "engine.instruments[0].code"},
		{"duplicate code", map[string]string{"engine.instruments[0].code": "X", "engine.instruments[1].code": "X"}, "engine.instruments[1].code"},
		{"unknown driver", map[string]string{"publish.driver": "carrier-pigeon"}, "publish.driver"},
		{"kafka without brokers", map[string]string{"publish.driver": "kafka"}, "publish.kafka.brokers"},
		{"depth inverted", map[string]string{"server.default_depth": "20", "server.max_depth": "10"}, "server.max_depth"},
		{"queue size", map[string]string{"market.queue_size": "0"}, "market.queue_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := NewEnvironment()
			for k, v := range tt.props {
				env.Set(k, v)
			}
			_, err := FromEnvironment(env)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestInstrumentConversions(t *testing.T) {
	inst := Instrument{
		Code:     "BTC-USD",
		TickSize: decimal.RequireFromString("0.5"),
		LotSize:  decimal.RequireFromString("0.0001"),
	}

	ticks, err := inst.ToTicks(decimal.RequireFromString("30000.5"))
	require.NoError(t, err)
	assert.Equal(t, int64(60001), ticks)

	lots, err := inst.ToLots(decimal.RequireFromString("0.25"))
	require.NoError(t, err)
	assert.Equal(t, int64(2500), lots)

	_, err = inst.ToTicks(decimal.RequireFromString("30000.25"))
	assert.Error(t, err)

	_, err = inst.ToLots(decimal.RequireFromString("0.00005"))
	assert.Error(t, err)

	_, err = inst.ToLots(decimal.RequireFromString("1e30"))
	assert.Error(t, err)

	// the extreme tick values are reserved for market orders
	whole := Instrument{Code: "X", TickSize: decimal.NewFromInt(1), LotSize: decimal.NewFromInt(1)}
	_, err = whole.ToTicks(decimal.NewFromInt(math.MaxInt64))
	assert.ErrorContains(t, err, "reserved for market orders")
	_, err = whole.ToTicks(decimal.NewFromInt(math.MinInt64))
	assert.ErrorContains(t, err, "reserved for market orders")
	ticks, err = whole.ToTicks(decimal.NewFromInt(math.MaxInt64 - 1))
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64-1), ticks)

	assert.True(t, inst.FromTicks(60001).Equal(decimal.RequireFromString("30000.5")))
	assert.True(t, inst.FromLots(2500).Equal(decimal.RequireFromString("0.25")))
}
