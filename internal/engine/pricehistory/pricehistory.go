// Package pricehistory implements the OHLC price-history service: it reads
// the trade log, groups trades by UTC day within a requested month, and
// reduces each day to an OHLC record via the pricing package.
package pricehistory

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/btcxchange/internal/engine/pricing"
	"github.com/abdoElHodaky/btcxchange/internal/engine/types"
	"github.com/abdoElHodaky/btcxchange/internal/engineerr"
)

// TradeSource supplies the full trade history; tradelog.Store satisfies
// this with its LoadAll method.
type TradeSource interface {
	LoadAll() []types.Trade
}

// Service computes OHLC day-series for a requested month, caching results
// for a configured TTL since the underlying trade log rewrite is O(n) and
// history queries are read-heavy relative to how often a month's data
// changes (only "the current month" ever mutates).
type Service struct {
	trades TradeSource
	cache  *cache.Cache
	logger *zap.Logger
}

// New builds a Service reading from trades, caching computed months for
// ttl (0 disables caching).
func New(trades TradeSource, ttl time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	var c *cache.Cache
	if ttl > 0 {
		c = cache.New(ttl, 2*ttl)
	}
	return &Service{trades: trades, cache: c, logger: logger}
}

// parseMonth accepts the wire "MMYYYY" format and returns (month 1-12,
// year). Any other shape is rejected.
func parseMonth(month string) (int, int, error) {
	if len(month) != 6 {
		return 0, 0, engineerr.New(engineerr.CodeInvalidMonth, "month must be MMYYYY")
	}
	mm, err := strconv.Atoi(month[0:2])
	if err != nil || mm < 1 || mm > 12 {
		return 0, 0, engineerr.New(engineerr.CodeInvalidMonth, "invalid month component")
	}
	yyyy, err := strconv.Atoi(month[2:6])
	if err != nil || yyyy < 1 {
		return 0, 0, engineerr.New(engineerr.CodeInvalidMonth, "invalid year component")
	}
	return mm, yyyy, nil
}

// daysInMonth applies the Gregorian leap-year rule via Go's time package:
// the zeroth day of month+1 is the last day of month. Century years not
// divisible by 400 (e.g. 2100) are not leap years.
func daysInMonth(month, year int) int {
	return time.Date(year, time.Month(month+1), 0, 0, 0, 0, 0, time.UTC).Day()
}

// History computes the OHLC series for the given "MMYYYY" month, one entry
// per calendar day that has at least one trade, in ascending date order.
func (s *Service) History(month string) ([]types.OhlcDay, error) {
	mm, yyyy, err := parseMonth(month)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if cached, ok := s.cache.Get(month); ok {
			return cached.([]types.OhlcDay), nil
		}
	}

	trades := s.trades.LoadAll()
	byDay := make(map[string][]types.Trade)

	for _, t := range trades {
		ts := time.Unix(t.Timestamp, 0).UTC()
		if int(ts.Month()) != mm || ts.Year() != yyyy {
			continue
		}
		key := ts.Format("2006-01-02")
		byDay[key] = append(byDay[key], t)
	}

	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)

	result := make([]types.OhlcDay, 0, len(days))
	for _, day := range days {
		dayTrades := byDay[day]
		sort.Slice(dayTrades, func(i, j int) bool { return dayTrades[i].Timestamp < dayTrades[j].Timestamp })
		result = append(result, pricing.ComputeOHLC(dayTrades, day))
	}

	if s.cache != nil {
		s.cache.SetDefault(month, result)
	}
	return result, nil
}

// TotalDays returns the number of calendar days in the requested month, for
// the wire response's totalDays field.
func TotalDays(month string) (int, error) {
	mm, yyyy, err := parseMonth(month)
	if err != nil {
		return 0, err
	}
	return daysInMonth(mm, yyyy), nil
}

// FormatDateDDMMYYYY converts an internal "YYYY-MM-DD" key to the wire
// format's "DD/MM/YYYY".
func FormatDateDDMMYYYY(isoDate string) (string, error) {
	t, err := time.Parse("2006-01-02", isoDate)
	if err != nil {
		return "", fmt.Errorf("pricehistory: parsing date %s: %w", isoDate, err)
	}
	return t.Format("02/01/2006"), nil
}
