package pricehistory_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdoElHodaky/btcxchange/internal/engine/pricehistory"
	"github.com/abdoElHodaky/btcxchange/internal/engine/types"
)

type fakeTrades struct {
	trades []types.Trade
}

func (f fakeTrades) LoadAll() []types.Trade { return f.trades }

func unixAt(year int, month time.Month, day int) int64 {
	return time.Date(year, month, day, 12, 0, 0, 0, time.UTC).Unix()
}

func TestHistoryGroupsByDayWithinMonth(t *testing.T) {
	src := fakeTrades{trades: []types.Trade{
		{Price: 100, Size: 1, Timestamp: unixAt(2026, time.March, 1)},
		{Price: 110, Size: 2, Timestamp: unixAt(2026, time.March, 1)},
		{Price: 90, Size: 3, Timestamp: unixAt(2026, time.March, 2)},
		{Price: 95, Size: 1, Timestamp: unixAt(2026, time.April, 1)}, // outside requested month
	}}
	svc := pricehistory.New(src, 0, nil)

	days, err := svc.History("032026")
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, "2026-03-01", days[0].Date)
	assert.Equal(t, int64(100), days[0].Open)
	assert.Equal(t, int64(110), days[0].Close)
	assert.Equal(t, int64(3), days[0].Volume)
	assert.Equal(t, "2026-03-02", days[1].Date)
}

func TestHistoryRejectsMalformedMonth(t *testing.T) {
	svc := pricehistory.New(fakeTrades{}, 0, nil)

	_, err := svc.History("132026") // invalid month component
	assert.Error(t, err)

	_, err = svc.History("2026") // wrong length
	assert.Error(t, err)
}

func TestTotalDaysLeapYearAware(t *testing.T) {
	days, err := pricehistory.TotalDays("022024") // 2024 is a leap year
	require.NoError(t, err)
	assert.Equal(t, 29, days)

	days, err = pricehistory.TotalDays("022026")
	require.NoError(t, err)
	assert.Equal(t, 28, days)
}

func TestFormatDateDDMMYYYY(t *testing.T) {
	out, err := pricehistory.FormatDateDDMMYYYY("2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, "02/03/2026", out)
}

func TestHistoryCachesResult(t *testing.T) {
	src := fakeTrades{trades: []types.Trade{{Price: 100, Size: 1, Timestamp: unixAt(2026, time.March, 1)}}}
	svc := pricehistory.New(&src, time.Minute, nil)

	first, err := svc.History("032026")
	require.NoError(t, err)

	// Mutate the source after the first call; a cached result must not see it.
	src.trades = append(src.trades, types.Trade{Price: 999, Size: 1, Timestamp: unixAt(2026, time.March, 3)})
	second, err := svc.History("032026")
	require.NoError(t, err)
	assert.Equal(t, first, second, "cached history must be stable within the TTL")
}
