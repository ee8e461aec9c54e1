package pricing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/abdoElHodaky/btcxchange/internal/engine/pricing"
	"github.com/abdoElHodaky/btcxchange/internal/engine/types"
)

func TestFormatPrice(t *testing.T) {
	cases := []struct {
		millis int64
		want   string
	}{
		{58_000_000, "58,000"},
		{999_000, "999"},
		{1_234_567_000, "1,234,567"},
		{0, "0"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, pricing.FormatPrice(tc.millis))
	}
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "1.000", pricing.FormatSize(1000))
	assert.Equal(t, "0.005", pricing.FormatSize(5))
	assert.Equal(t, "12.340", pricing.FormatSize(12340))
}

func TestIsValidStopPrice(t *testing.T) {
	assert.True(t, pricing.IsValidStopPrice(types.Bid, 51_000_000, 50_000_000))
	assert.False(t, pricing.IsValidStopPrice(types.Bid, 50_000_000, 50_000_000), "bid stop must be strictly above reference")
	assert.True(t, pricing.IsValidStopPrice(types.Ask, 49_000_000, 50_000_000))
	assert.False(t, pricing.IsValidStopPrice(types.Ask, 50_000_000, 50_000_000), "ask stop must be strictly below reference")
}

func TestStopTriggered(t *testing.T) {
	// Non-strict at trigger time: equality fires, unlike at submit time.
	assert.True(t, pricing.StopTriggered(types.Bid, 50_000_000, 50_000_000))
	assert.True(t, pricing.StopTriggered(types.Bid, 50_000_000, 51_000_000))
	assert.False(t, pricing.StopTriggered(types.Bid, 50_000_000, 49_000_000))

	assert.True(t, pricing.StopTriggered(types.Ask, 50_000_000, 50_000_000))
	assert.True(t, pricing.StopTriggered(types.Ask, 50_000_000, 49_000_000))
	assert.False(t, pricing.StopTriggered(types.Ask, 50_000_000, 51_000_000))
}

func TestComputeOHLC(t *testing.T) {
	trades := []types.Trade{
		{Price: 100, Size: 10, Timestamp: 1},
		{Price: 120, Size: 5, Timestamp: 2},
		{Price: 90, Size: 7, Timestamp: 3},
		{Price: 110, Size: 3, Timestamp: 4},
	}
	day := pricing.ComputeOHLC(trades, "2026-01-15")
	assert.Equal(t, "2026-01-15", day.Date)
	assert.Equal(t, int64(100), day.Open)
	assert.Equal(t, int64(110), day.Close)
	assert.Equal(t, int64(120), day.High)
	assert.Equal(t, int64(90), day.Low)
	assert.Equal(t, int64(25), day.Volume)
	assert.Equal(t, 4, day.Count)
}

func TestComputeOHLCEmpty(t *testing.T) {
	day := pricing.ComputeOHLC(nil, "2026-01-15")
	assert.Equal(t, "2026-01-15", day.Date)
	assert.Equal(t, int64(0), day.Volume)
	assert.Equal(t, 0, day.Count)
}
