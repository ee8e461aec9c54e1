// Package stopbook implements the set of resting stop orders and the
// activation scan that fires when a new reference price crosses a trigger.
//
// Book is not internally synchronized: per the engine's concurrency design,
// the stop book, the order book and the reference price form one logical
// critical section guarded by the order book's single lock, so callers
// (the matching engine, the order manager) are expected to hold that lock
// for the duration of any Book call.
package stopbook

import (
	"go.uber.org/zap"

	"github.com/abdoElHodaky/btcxchange/internal/engine/pricing"
	"github.com/abdoElHodaky/btcxchange/internal/engine/types"
)

// Book holds resting stop orders keyed by order id.
type Book struct {
	orders map[int64]*types.Order
	logger *zap.Logger
}

// New returns an empty stop book.
func New(logger *zap.Logger) *Book {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Book{orders: make(map[int64]*types.Order), logger: logger}
}

// Insert stores a resting stop order. order.Kind must be KindStop.
func (b *Book) Insert(order *types.Order) {
	b.orders[order.OrderID] = order
}

// Remove deletes orderID from the book, reporting whether it was present.
func (b *Book) Remove(orderID int64) bool {
	if _, ok := b.orders[orderID]; !ok {
		return false
	}
	delete(b.orders, orderID)
	return true
}

// Lookup returns the resting stop order for orderID, if present.
func (b *Book) Lookup(orderID int64) (*types.Order, bool) {
	o, ok := b.orders[orderID]
	return o, ok
}

// Activate returns, and removes, every resting stop order whose trigger
// condition is met against referencePrice. Order among the returned slice
// is unspecified.
func (b *Book) Activate(referencePrice int64) []*types.Order {
	var triggered []*types.Order
	for id, order := range b.orders {
		if pricing.StopTriggered(order.Side, order.StopPrice, referencePrice) {
			triggered = append(triggered, order)
			delete(b.orders, id)
		}
	}
	if len(triggered) > 0 {
		b.logger.Debug("stop orders activated",
			zap.Int64("reference_price", referencePrice),
			zap.Int("count", len(triggered)))
	}
	return triggered
}
