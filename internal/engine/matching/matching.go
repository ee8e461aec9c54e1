// Package matching implements the price/time-priority continuous matcher:
// limit-order crossing, market-order sweeps, and the stop-order activation
// cascade. Every entry point assumes the caller already holds the order
// book's lock for the entire submit -> match -> executor -> cascade
// sequence, per the engine's single-critical-section concurrency design.
package matching

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/btcxchange/internal/engine/orderbook"
	"github.com/abdoElHodaky/btcxchange/internal/engine/stopbook"
	"github.com/abdoElHodaky/btcxchange/internal/engine/types"
)

// Executor is invoked once per fill, with the resting/aggressing orders
// assigned to their bid/ask sides, the fill size and the execution price.
// It is the single extension point between the matcher and the rest of the
// engine (trade log append, reference price update, notifications).
type Executor func(bidOrder, askOrder *types.Order, fillSize, execPrice int64)

// RefPriceFunc returns the engine's current reference price, read after
// the prior fill in the same critical section has already updated it.
type RefPriceFunc func() int64

// Engine is the matching engine. It holds no mutable state of its own
// beyond configuration; all mutable state lives in the order book and stop
// book it is given.
type Engine struct {
	book            *orderbook.Book
	stopBook        *stopbook.Book
	maxCascadeIters int
	cascadeIters    prometheus.Counter
	logger          *zap.Logger
}

// New builds a matching engine over book and stopBook. maxCascadeIters
// bounds the stop-activation cascade (default 1024).
func New(book *orderbook.Book, stopBook *stopbook.Book, maxCascadeIters int, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxCascadeIters <= 0 {
		maxCascadeIters = 1024
	}
	return &Engine{book: book, stopBook: stopBook, maxCascadeIters: maxCascadeIters, logger: logger}
}

// WithCascadeCounter attaches a Prometheus counter incremented once per
// productive cascade iteration, and returns e for chaining at construction.
func (e *Engine) WithCascadeCounter(c prometheus.Counter) *Engine {
	e.cascadeIters = c
	return e
}

// MatchAfterLimitInsert runs the crossing loop following a limit-order
// insert, then the stop cascade. Caller must hold the book lock.
func (e *Engine) MatchAfterLimitInsert(executor Executor, refPrice RefPriceFunc) {
	e.crossLocked(executor)
	e.cascadeLocked(executor, refPrice)
}

// ExecuteMarket sweeps the opposite book against order. It returns false
// without any side effect if the book lacks sufficient liquidity. Caller
// must hold the book lock.
func (e *Engine) ExecuteMarket(order *types.Order, executor Executor, refPrice RefPriceFunc) bool {
	filled := e.sweepLocked(order, executor)
	e.cascadeLocked(executor, refPrice)
	return filled
}

// crossLocked implements the continuous limit-order crossing loop: while
// the book is crossed, the earliest order at each side's best price trades
// at the resting ask's price (price-improvement for the aggressor is
// inherent since the resting ask is the older quote).
func (e *Engine) crossLocked(executor Executor) {
	for {
		bestBid, okBid := e.book.BestBid()
		bestAsk, okAsk := e.book.BestAsk()
		if !okBid || !okAsk || bestBid < bestAsk {
			return
		}

		bidOrder, ok := e.book.PeekTop(types.Bid)
		if !ok {
			return
		}
		askOrder, ok := e.book.PeekTop(types.Ask)
		if !ok {
			return
		}

		fill := min(bidOrder.Remaining, askOrder.Remaining)
		execPrice := askOrder.LimitPrice

		bidOrder.Remaining -= fill
		askOrder.Remaining -= fill
		executor(bidOrder, askOrder, fill, execPrice)

		if bidOrder.Remaining == 0 {
			e.book.Remove(bidOrder)
		}
		if askOrder.Remaining == 0 {
			e.book.Remove(askOrder)
		}
	}
}

// sweepLocked sweeps the book opposite order.Side, in ascending price order
// for a bid aggressor and descending for an ask aggressor, filling at each
// resting order's own limit price. It returns whether order was fully
// filled. The liquidity pre-check means a false return leaves no side
// effect under the single book lock.
func (e *Engine) sweepLocked(order *types.Order, executor Executor) bool {
	ok, _ := e.book.HasLiquidity(order.Side, order.Remaining)
	if !ok {
		return false
	}

	opposite := order.Side.Opposite()
	for _, lvl := range e.book.SweepLevels(opposite) {
		// Snapshot: resting orders are removed from the level as they fill,
		// which would otherwise shift indices mid-iteration.
		resting := append([]*types.Order(nil), lvl.Orders...)
		for _, r := range resting {
			if order.Remaining == 0 {
				break
			}
			if r.Terminal() {
				continue
			}

			fill := min(order.Remaining, r.Remaining)
			execPrice := r.LimitPrice

			order.Remaining -= fill
			r.Remaining -= fill

			var bidOrder, askOrder *types.Order
			if order.Side == types.Bid {
				bidOrder, askOrder = order, r
			} else {
				bidOrder, askOrder = r, order
			}
			executor(bidOrder, askOrder, fill, execPrice)

			if r.Remaining == 0 {
				e.book.Remove(r)
			}
		}
		if order.Remaining == 0 {
			break
		}
	}
	return order.Remaining == 0
}

// cascadeLocked scans the stop book against the current reference price,
// re-submitting every triggered order as a market sweep, and repeats until
// a scan yields nothing or the safety bound is reached.
func (e *Engine) cascadeLocked(executor Executor, refPrice RefPriceFunc) {
	for i := 0; i < e.maxCascadeIters; i++ {
		triggered := e.stopBook.Activate(refPrice())
		if len(triggered) == 0 {
			return
		}
		if e.cascadeIters != nil {
			e.cascadeIters.Inc()
		}
		for _, stopOrder := range triggered {
			if !e.sweepLocked(stopOrder, executor) {
				e.logger.Warn("triggered stop order could not be filled, discarding",
					zap.Int64("order_id", stopOrder.OrderID),
					zap.String("owner", stopOrder.Owner))
			}
		}
	}
	e.logger.Warn("stop cascade hit safety bound, breaking",
		zap.Int("max_iterations", e.maxCascadeIters))
}
