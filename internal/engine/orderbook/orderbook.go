// Package orderbook implements the in-memory, two-sided limit order book:
// price levels, each a FIFO queue of resting orders, plus an id index for
// O(1) cancel and ownership checks. A single exclusive lock guards the
// whole structure — the workload does not warrant finer-grained locking.
package orderbook

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/abdoElHodaky/btcxchange/internal/engine/types"
)

// PriceLevel is a FIFO queue of resting orders at a single price.
type PriceLevel struct {
	Price  int64
	Orders []*types.Order
}

type level = PriceLevel

// Book is the two-sided limit order book for the single traded instrument.
type Book struct {
	mu        sync.Mutex
	bidLevels map[int64]*level
	askLevels map[int64]*level
	index     map[int64]*types.Order
	logger    *zap.Logger
}

// New returns an empty order book.
func New(logger *zap.Logger) *Book {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Book{
		bidLevels: make(map[int64]*level),
		askLevels: make(map[int64]*level),
		index:     make(map[int64]*types.Order),
		logger:    logger,
	}
}

func (b *Book) levels(side types.Side) map[int64]*level {
	if side == types.Bid {
		return b.bidLevels
	}
	return b.askLevels
}

// Lock/Unlock expose the book's single critical section so the matching
// engine can hold it across submit -> match -> executor -> stop-cascade, as
// required by the concurrency design.
func (b *Book) Lock()   { b.mu.Lock() }
func (b *Book) Unlock() { b.mu.Unlock() }

// InsertLimit appends order to the tail of its price level. Caller must
// hold the book lock.
func (b *Book) InsertLimit(order *types.Order) {
	levels := b.levels(order.Side)
	lvl, ok := levels[order.LimitPrice]
	if !ok {
		lvl = &level{Price: order.LimitPrice}
		levels[order.LimitPrice] = lvl
	}
	lvl.Orders = append(lvl.Orders, order)
	b.index[order.OrderID] = order
}

// Remove unlinks order from its level, removing the level if it becomes
// empty. Reports whether removal occurred. Caller must hold the book lock.
func (b *Book) Remove(order *types.Order) bool {
	levels := b.levels(order.Side)
	lvl, ok := levels[order.LimitPrice]
	if !ok {
		return false
	}
	for i, o := range lvl.Orders {
		if o.OrderID == order.OrderID {
			lvl.Orders = append(lvl.Orders[:i], lvl.Orders[i+1:]...)
			if len(lvl.Orders) == 0 {
				delete(levels, lvl.Price)
			}
			delete(b.index, order.OrderID)
			return true
		}
	}
	return false
}

// RemoveByID removes whichever resting order owns orderID, if any. Caller
// must hold the book lock.
func (b *Book) RemoveByID(orderID int64) bool {
	order, ok := b.index[orderID]
	if !ok {
		return false
	}
	return b.Remove(order)
}

// Lookup returns the resting order for orderID, if present. Caller must
// hold the book lock.
func (b *Book) Lookup(orderID int64) (*types.Order, bool) {
	o, ok := b.index[orderID]
	return o, ok
}

// BestBid returns the highest bid price resting in the book.
func (b *Book) BestBid() (int64, bool) {
	return bestPrice(b.bidLevels, true)
}

// BestAsk returns the lowest ask price resting in the book.
func (b *Book) BestAsk() (int64, bool) {
	return bestPrice(b.askLevels, false)
}

func bestPrice(levels map[int64]*level, max bool) (int64, bool) {
	if len(levels) == 0 {
		return 0, false
	}
	first := true
	var best int64
	for price := range levels {
		if first {
			best = price
			first = false
			continue
		}
		if max && price > best {
			best = price
		}
		if !max && price < best {
			best = price
		}
	}
	return best, true
}

// PeekTop returns the earliest order at the best price of side, the next to
// fill against the opposite side. Caller must hold the book lock.
func (b *Book) PeekTop(side types.Side) (*types.Order, bool) {
	var price int64
	var ok bool
	if side == types.Bid {
		price, ok = b.BestBid()
	} else {
		price, ok = b.BestAsk()
	}
	if !ok {
		return nil, false
	}
	lvl := b.levels(side)[price]
	if lvl == nil || len(lvl.Orders) == 0 {
		return nil, false
	}
	return lvl.Orders[0], true
}

// sortedLevels returns the levels on side ordered best-price-first:
// ascending for asks, descending for bids.
func (b *Book) sortedLevels(side types.Side) []*level {
	levels := b.levels(side)
	out := make([]*level, 0, len(levels))
	for _, lvl := range levels {
		out = append(out, lvl)
	}
	sort.Slice(out, func(i, j int) bool {
		if side == types.Bid {
			return out[i].Price > out[j].Price
		}
		return out[i].Price < out[j].Price
	})
	return out
}

// SweepLevels exposes the price-ordered levels on side, for the matching
// engine's market-order sweep. Caller must hold the book lock.
func (b *Book) SweepLevels(side types.Side) []*PriceLevel {
	return b.sortedLevels(side)
}

// HasLiquidity probes whether an aggressor on side could fill requiredSize
// against the opposite book: it sums remaining size across the opposite
// side in price-sorted order until requiredSize is reached, returning
// whether it was (and how much depth was actually found, for diagnostics).
// Caller must hold the book lock.
func (b *Book) HasLiquidity(side types.Side, requiredSize int64) (bool, int64) {
	var total int64
	for _, lvl := range b.sortedLevels(side.Opposite()) {
		for _, o := range lvl.Orders {
			total += o.Remaining
			if total >= requiredSize {
				return true, total
			}
		}
	}
	return false, total
}
