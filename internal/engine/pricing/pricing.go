// Package pricing holds the engine's pure, stateless calculations: fixed
// point formatting, stop-price validity, and OHLC reduction.
package pricing

import (
	"fmt"
	"strconv"

	"github.com/abdoElHodaky/btcxchange/internal/engine/types"
)

// FormatPrice renders a millis price as whole quote-currency units,
// thousands-separated, zero decimals. price 58_000_000 -> "58,000".
func FormatPrice(millis int64) string {
	whole := millis / 1000
	return groupThousands(whole)
}

// FormatSize renders a millis size as base-currency units with three
// decimal places. size 1000 -> "1.000".
func FormatSize(millis int64) string {
	whole := millis / 1000
	frac := millis % 1000
	if frac < 0 {
		frac = -frac
	}
	return fmt.Sprintf("%d.%03d", whole, frac)
}

func groupThousands(n int64) string {
	neg := n < 0
	if neg {
		n = -n
	}
	s := strconv.FormatInt(n, 10)
	out := make([]byte, 0, len(s)+len(s)/3)
	for i, c := range s {
		if i != 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, byte(c))
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}

// IsValidStopPrice implements the strict-at-submit rule: a bid stop must be
// strictly above the reference price, an ask stop strictly below it.
func IsValidStopPrice(side types.Side, stopPrice, referencePrice int64) bool {
	switch side {
	case types.Bid:
		return stopPrice > referencePrice
	case types.Ask:
		return stopPrice < referencePrice
	default:
		return false
	}
}

// StopTriggered implements the non-strict-at-trigger rule: a resting bid
// stop fires once the reference price rises to or through it; a resting ask
// stop fires once it falls to or through it.
func StopTriggered(side types.Side, stopPrice, referencePrice int64) bool {
	switch side {
	case types.Bid:
		return stopPrice <= referencePrice
	case types.Ask:
		return stopPrice >= referencePrice
	default:
		return false
	}
}

// ComputeOHLC reduces a set of same-day trades (assumed already
// chronologically ordered by the caller) into an OhlcDay record. An empty
// set yields zero-filled numeric fields under the given date label.
func ComputeOHLC(trades []types.Trade, dateLabel string) types.OhlcDay {
	if len(trades) == 0 {
		return types.OhlcDay{Date: dateLabel}
	}

	day := types.OhlcDay{
		Date:  dateLabel,
		Open:  trades[0].Price,
		Close: trades[len(trades)-1].Price,
		High:  trades[0].Price,
		Low:   trades[0].Price,
		Count: len(trades),
	}
	for _, t := range trades {
		if t.Price > day.High {
			day.High = t.Price
		}
		if t.Price < day.Low {
			day.Low = t.Price
		}
		day.Volume += t.Size
	}
	return day
}
