// Package ordermanager is the engine's front door: it validates and
// dispatches submit/cancel/history/threshold requests, owns the reference
// price, and wires the matching engine's fills to trade-log persistence
// and the notification producers. Every public method that touches the
// order book takes the book's lock for its whole duration, implementing
// the single-critical-section design spanning book mutation, reference
// price update and stop cascade.
package ordermanager

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/abdoElHodaky/btcxchange/internal/engine/idgen"
	"github.com/abdoElHodaky/btcxchange/internal/engine/matching"
	"github.com/abdoElHodaky/btcxchange/internal/engine/notify"
	"github.com/abdoElHodaky/btcxchange/internal/engine/orderbook"
	"github.com/abdoElHodaky/btcxchange/internal/engine/pricehistory"
	"github.com/abdoElHodaky/btcxchange/internal/engine/pricing"
	"github.com/abdoElHodaky/btcxchange/internal/engine/stopbook"
	"github.com/abdoElHodaky/btcxchange/internal/engine/tradelog"
	"github.com/abdoElHodaky/btcxchange/internal/engine/types"
	"github.com/abdoElHodaky/btcxchange/internal/engineerr"
)

// Manager is the exchange engine's single entry point. It owns no locking
// of its own beyond the order book's: refPrice is read/written only while
// that lock is held, so it never needs its own synchronization.
type Manager struct {
	book     *orderbook.Book
	stopBook *stopbook.Book
	matcher  *matching.Engine
	ids      *idgen.Allocator
	log      *tradelog.Store
	history  *pricehistory.Service
	thresh   *notify.ThresholdNotifier
	trades   *notify.TradeNotifier
	onTrade  func(types.Trade)
	refPrice int64 // millis, accessed only while book lock is held
	logger   *zap.Logger
}

// Config bundles the collaborators a Manager is built from.
type Config struct {
	Book              *orderbook.Book
	StopBook          *stopbook.Book
	Matcher           *matching.Engine
	IDs               *idgen.Allocator
	TradeLog          *tradelog.Store
	History           *pricehistory.Service
	ThresholdNotify   *notify.ThresholdNotifier
	TradeNotify       *notify.TradeNotifier
	BootstrapRefPrice int64

	// OnTrade, when set, observes every executed trade. It runs inside the
	// book's critical section and must not block.
	OnTrade func(types.Trade)

	Logger *zap.Logger
}

// New builds a Manager. BootstrapRefPrice seeds the reference price before
// any trade has ever executed (default 50,000,000 millis = $50,000).
func New(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	refPrice := cfg.BootstrapRefPrice
	if refPrice == 0 {
		refPrice = 50_000_000
	}
	return &Manager{
		book:     cfg.Book,
		stopBook: cfg.StopBook,
		matcher:  cfg.Matcher,
		ids:      cfg.IDs,
		log:      cfg.TradeLog,
		history:  cfg.History,
		thresh:   cfg.ThresholdNotify,
		trades:   cfg.TradeNotify,
		onTrade:  cfg.OnTrade,
		refPrice: refPrice,
		logger:   logger,
	}
}

// ReferencePrice returns the current reference price in millis.
func (m *Manager) ReferencePrice() int64 {
	m.book.Lock()
	defer m.book.Unlock()
	return m.refPrice
}

func validateSize(size int64) error {
	if size <= 0 {
		return engineerr.New(engineerr.CodeInvalidSize, "size must be positive")
	}
	return nil
}

func validateSide(side types.Side) error {
	if side != types.Bid && side != types.Ask {
		return engineerr.New(engineerr.CodeInvalidSide, "side must be bid or ask")
	}
	return nil
}

// SubmitLimit places a resting limit order, runs the crossing loop and
// the stop cascade, and returns the assigned order id.
func (m *Manager) SubmitLimit(owner string, side types.Side, size, price int64) (int64, error) {
	if err := validateSide(side); err != nil {
		return 0, err
	}
	if err := validateSize(size); err != nil {
		return 0, err
	}
	if price <= 0 {
		return 0, engineerr.New(engineerr.CodeInvalidPrice, "price must be positive")
	}

	order := &types.Order{
		OrderID:    m.ids.NextOrderID(),
		Owner:      owner,
		Side:       side,
		Kind:       types.KindLimit,
		Size:       size,
		LimitPrice: price,
		CreatedAt:  time.Now().UnixMilli(),
		Remaining:  size,
	}

	m.book.Lock()
	defer m.book.Unlock()

	m.book.InsertLimit(order)
	m.matcher.MatchAfterLimitInsert(m.executor(), m.readRefPrice)
	return order.OrderID, nil
}

// SubmitMarket sweeps the opposite book immediately. It returns
// engineerr.CodeInsufficientDepth without any side effect if the book
// cannot fill the full requested size.
func (m *Manager) SubmitMarket(owner string, side types.Side, size int64) (int64, error) {
	if err := validateSide(side); err != nil {
		return 0, err
	}
	if err := validateSize(size); err != nil {
		return 0, err
	}

	order := &types.Order{
		OrderID:   m.ids.NextOrderID(),
		Owner:     owner,
		Side:      side,
		Kind:      types.KindMarket,
		Size:      size,
		CreatedAt: time.Now().UnixMilli(),
		Remaining: size,
	}

	m.book.Lock()
	defer m.book.Unlock()

	filled := m.matcher.ExecuteMarket(order, m.executor(), m.readRefPrice)
	if !filled {
		_, depth := m.book.HasLiquidity(side, size)
		m.logger.Debug("market order rejected for insufficient liquidity",
			zap.String("owner", owner), zap.Int64("requested", size), zap.Int64("depth_found", depth))
		return 0, engineerr.New(engineerr.CodeInsufficientDepth, "insufficient liquidity to fill market order")
	}
	return order.OrderID, nil
}

// SubmitStop places a resting stop order. The trigger price must be
// strictly beyond the current reference price on the order's side.
func (m *Manager) SubmitStop(owner string, side types.Side, size, stopPrice int64) (int64, error) {
	if err := validateSide(side); err != nil {
		return 0, err
	}
	if err := validateSize(size); err != nil {
		return 0, err
	}

	m.book.Lock()
	defer m.book.Unlock()

	if !pricing.IsValidStopPrice(side, stopPrice, m.refPrice) {
		return 0, engineerr.New(engineerr.CodeInvalidStopPrice, "stop price must be beyond the current reference price")
	}

	order := &types.Order{
		OrderID:   m.ids.NextOrderID(),
		Owner:     owner,
		Side:      side,
		Kind:      types.KindStop,
		Size:      size,
		StopPrice: stopPrice,
		CreatedAt: time.Now().UnixMilli(),
		Remaining: size,
	}
	m.stopBook.Insert(order)
	return order.OrderID, nil
}

// Cancel removes a resting order (book or stop book) owned by owner.
// Canceling an order owned by someone else returns
// engineerr.CodeForeignOrder. Canceling an order that is not resting or
// already filled is idempotent: it returns engineerr.CodeOrderNotFound
// rather than distinguishing "never existed" from "already gone", since
// both leave the caller in the same observable state.
func (m *Manager) Cancel(owner string, orderID int64) error {
	m.book.Lock()
	defer m.book.Unlock()

	if order, ok := m.book.Lookup(orderID); ok {
		if order.Owner != owner {
			return engineerr.New(engineerr.CodeForeignOrder, "order belongs to a different owner")
		}
		m.book.Remove(order)
		return nil
	}
	if order, ok := m.stopBook.Lookup(orderID); ok {
		if order.Owner != owner {
			return engineerr.New(engineerr.CodeForeignOrder, "order belongs to a different owner")
		}
		m.stopBook.Remove(orderID)
		return nil
	}
	return engineerr.New(engineerr.CodeOrderNotFound, "order not found or already settled")
}

// PriceHistory returns the OHLC day-series for the given "MMYYYY" month.
func (m *Manager) PriceHistory(month string) ([]types.OhlcDay, error) {
	return m.history.History(month)
}

// RegisterThreshold installs a one-shot price alert for owner, replacing
// any previously registered threshold (last-write-wins).
func (m *Manager) RegisterThreshold(owner string, threshold int64) error {
	if threshold <= 0 {
		return engineerr.New(engineerr.CodeInvalidThreshold, "threshold must be positive")
	}
	m.thresh.Register(owner, threshold)
	return nil
}

// readRefPrice is the matching engine's RefPriceFunc, reading refPrice
// under the book lock the caller already holds.
func (m *Manager) readRefPrice() int64 {
	return atomic.LoadInt64(&m.refPrice)
}

// executor builds the matching.Executor closure invoked once per fill: it
// updates the reference price, persists the trade, and fires both
// notification channels. Built fresh per call so it closes over the
// current *Manager without any extra allocation beyond the closure.
func (m *Manager) executor() matching.Executor {
	return func(bidOrder, askOrder *types.Order, fillSize, execPrice int64) {
		oldPrice := atomic.LoadInt64(&m.refPrice)
		atomic.StoreInt64(&m.refPrice, execPrice)

		now := time.Now()
		trade := types.Trade{
			TradeID:    m.ids.NextTradeID(),
			BidOrderID: bidOrder.OrderID,
			AskOrderID: askOrder.OrderID,
			BidOwner:   bidOrder.Owner,
			AskOwner:   askOrder.Owner,
			Size:       fillSize,
			Price:      execPrice,
			Timestamp:  now.Unix(),
		}
		if err := m.log.Append(trade); err != nil {
			m.logger.Error("trade log append failed, fill stands", zap.Int64("trade_id", trade.TradeID), zap.Error(err))
		}

		tsMillis := now.UnixMilli()
		m.trades.Notify(bidOrder, askOrder.Owner, fillSize, execPrice, tsMillis)
		m.trades.Notify(askOrder, bidOrder.Owner, fillSize, execPrice, tsMillis)
		if oldPrice != execPrice {
			m.thresh.OnPrice(execPrice)
		}

		if m.onTrade != nil {
			m.onTrade(trade)
		}
	}
}
