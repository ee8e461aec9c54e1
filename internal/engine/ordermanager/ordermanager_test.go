package ordermanager_test

import (
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdoElHodaky/btcxchange/internal/engine/idgen"
	"github.com/abdoElHodaky/btcxchange/internal/engine/matching"
	"github.com/abdoElHodaky/btcxchange/internal/engine/notify"
	"github.com/abdoElHodaky/btcxchange/internal/engine/orderbook"
	"github.com/abdoElHodaky/btcxchange/internal/engine/ordermanager"
	"github.com/abdoElHodaky/btcxchange/internal/engine/pricehistory"
	"github.com/abdoElHodaky/btcxchange/internal/engine/stopbook"
	"github.com/abdoElHodaky/btcxchange/internal/engine/tradelog"
	"github.com/abdoElHodaky/btcxchange/internal/engine/types"
	"github.com/abdoElHodaky/btcxchange/internal/engineerr"
)

type recordingSink struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (s *recordingSink) Publish(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, payload)
	return nil
}

func (s *recordingSink) alerts() []notify.ThresholdAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]notify.ThresholdAlert, 0, len(s.payloads))
	for _, p := range s.payloads {
		var a notify.ThresholdAlert
		if json.Unmarshal(p, &a) == nil {
			out = append(out, a)
		}
	}
	return out
}

type recordingSender struct {
	mu    sync.Mutex
	sends []string
}

func (s *recordingSender) SendTo(addr string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, string(payload))
	return nil
}

type harness struct {
	manager *ordermanager.Manager
	book    *orderbook.Book
	stops   *stopbook.Book
	log     *tradelog.Store
	sink    *recordingSink
	sender  *recordingSender
	tn      *notify.TradeNotifier
	trades  []types.Trade
	mu      sync.Mutex
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logPath := filepath.Join(t.TempDir(), "StoricoOrdini.json")
	store, err := tradelog.New(logPath, 0, nil)
	require.NoError(t, err)

	sink := &recordingSink{}
	sender := &recordingSender{}

	threshold, err := notify.NewThresholdNotifier(sink, 4, nil)
	require.NoError(t, err)
	tradeNotify, err := notify.NewTradeNotifier(sender, 4, nil)
	require.NoError(t, err)

	book := orderbook.New(nil)
	stops := stopbook.New(nil)
	h := &harness{book: book, stops: stops, log: store, sink: sink, sender: sender, tn: tradeNotify}

	h.manager = ordermanager.New(ordermanager.Config{
		Book:              book,
		StopBook:          stops,
		Matcher:           matching.New(book, stops, 0, nil),
		IDs:               idgen.New(),
		TradeLog:          store,
		History:           pricehistory.New(store, 0, nil),
		ThresholdNotify:   threshold,
		TradeNotify:       tradeNotify,
		BootstrapRefPrice: 58_000_000,
		OnTrade: func(trade types.Trade) {
			h.mu.Lock()
			h.trades = append(h.trades, trade)
			h.mu.Unlock()
		},
	})
	return h
}

func (h *harness) executed() []types.Trade {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]types.Trade(nil), h.trades...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestLimitCrossWithPriceImprovement(t *testing.T) {
	h := newHarness(t)

	askID, err := h.manager.SubmitLimit("alice", types.Ask, 1000, 58_000_000)
	require.NoError(t, err)
	bidID, err := h.manager.SubmitLimit("bob", types.Bid, 1000, 58_100_000)
	require.NoError(t, err)

	trades := h.executed()
	require.Len(t, trades, 1)
	assert.Equal(t, int64(1000), trades[0].Size)
	assert.Equal(t, int64(58_000_000), trades[0].Price, "execution at the resting ask's price")
	assert.Equal(t, bidID, trades[0].BidOrderID)
	assert.Equal(t, askID, trades[0].AskOrderID)
	assert.Equal(t, "bob", trades[0].BidOwner)
	assert.Equal(t, "alice", trades[0].AskOwner)
	assert.Equal(t, int64(58_000_000), h.manager.ReferencePrice())

	_, bidRests := h.book.BestBid()
	_, askRests := h.book.BestAsk()
	assert.False(t, bidRests)
	assert.False(t, askRests)
}

func TestMarketSweepAcrossLevels(t *testing.T) {
	h := newHarness(t)

	_, err := h.manager.SubmitLimit("a1", types.Ask, 500, 58_000_000)
	require.NoError(t, err)
	a2, err := h.manager.SubmitLimit("a2", types.Ask, 500, 58_100_000)
	require.NoError(t, err)

	_, err = h.manager.SubmitMarket("carol", types.Bid, 800)
	require.NoError(t, err)

	trades := h.executed()
	require.Len(t, trades, 2)
	assert.Equal(t, int64(500), trades[0].Size)
	assert.Equal(t, int64(58_000_000), trades[0].Price)
	assert.Equal(t, int64(300), trades[1].Size)
	assert.Equal(t, int64(58_100_000), trades[1].Price)
	assert.Equal(t, int64(58_100_000), h.manager.ReferencePrice())

	h.book.Lock()
	rest, ok := h.book.Lookup(a2)
	h.book.Unlock()
	require.True(t, ok)
	assert.Equal(t, int64(200), rest.Remaining)
}

func TestMarketRejectedOnInsufficientLiquidity(t *testing.T) {
	h := newHarness(t)

	_, err := h.manager.SubmitLimit("alice", types.Ask, 100, 58_000_000)
	require.NoError(t, err)
	before := h.manager.ReferencePrice()

	_, err = h.manager.SubmitMarket("bob", types.Bid, 500)
	require.Error(t, err)
	assert.ErrorIs(t, err, engineerr.New(engineerr.CodeInsufficientDepth, ""))

	assert.Empty(t, h.executed(), "no partial execution")
	assert.Equal(t, before, h.manager.ReferencePrice())

	bestAsk, ok := h.book.BestAsk()
	require.True(t, ok)
	assert.Equal(t, int64(58_000_000), bestAsk, "book unchanged")
}

func TestStopBuyTriggersAfterCrossAndSweepsNextAsk(t *testing.T) {
	h := newHarness(t)

	stopID, err := h.manager.SubmitStop("dave", types.Bid, 300, 58_500_000)
	require.NoError(t, err)
	h.book.Lock()
	_, resting := h.stops.Lookup(stopID)
	h.book.Unlock()
	require.True(t, resting)

	// The ask the triggered stop will sweep must already rest: the cascade
	// runs inside the same critical section as the cross that moves the
	// reference price.
	_, err = h.manager.SubmitLimit("erin", types.Ask, 300, 58_700_000)
	require.NoError(t, err)

	_, err = h.manager.SubmitLimit("frank", types.Bid, 300, 58_600_000)
	require.NoError(t, err)
	_, err = h.manager.SubmitLimit("grace", types.Ask, 300, 58_600_000)
	require.NoError(t, err)

	trades := h.executed()
	require.Len(t, trades, 2)
	assert.Equal(t, int64(58_600_000), trades[0].Price, "the limit cross")
	assert.Equal(t, int64(58_700_000), trades[1].Price, "the triggered stop sweeping the next ask")
	assert.Equal(t, "dave", trades[1].BidOwner)
	assert.Equal(t, int64(58_700_000), h.manager.ReferencePrice())

	h.book.Lock()
	_, stillResting := h.stops.Lookup(stopID)
	h.book.Unlock()
	assert.False(t, stillResting, "triggered stop never returns to the stop book")
}

func TestFIFOAtSamePrice(t *testing.T) {
	h := newHarness(t)

	b1, err := h.manager.SubmitLimit("u1", types.Bid, 100, 58_000_000)
	require.NoError(t, err)
	b2, err := h.manager.SubmitLimit("u2", types.Bid, 100, 58_000_000)
	require.NoError(t, err)

	_, err = h.manager.SubmitMarket("seller", types.Ask, 100)
	require.NoError(t, err)

	trades := h.executed()
	require.Len(t, trades, 1)
	assert.Equal(t, b1, trades[0].BidOrderID, "earlier order at the level fills first")

	h.book.Lock()
	rest, ok := h.book.Lookup(b2)
	h.book.Unlock()
	require.True(t, ok)
	assert.Equal(t, int64(100), rest.Remaining)
}

func TestThresholdFiresOnce(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.manager.RegisterThreshold("eve", 58_500_000))

	_, err := h.manager.SubmitLimit("a", types.Ask, 100, 58_600_000)
	require.NoError(t, err)
	_, err = h.manager.SubmitLimit("b", types.Bid, 100, 58_600_000)
	require.NoError(t, err)

	_, err = h.manager.SubmitLimit("a", types.Ask, 100, 58_700_000)
	require.NoError(t, err)
	_, err = h.manager.SubmitLimit("b", types.Bid, 100, 58_700_000)
	require.NoError(t, err)

	waitFor(t, func() bool { return len(h.sink.alerts()) >= 1 })
	time.Sleep(50 * time.Millisecond)

	alerts := h.sink.alerts()
	require.Len(t, alerts, 1, "one-shot threshold must not fire twice")
	assert.Equal(t, "eve", alerts[0].Username)
	assert.Equal(t, int64(58_600_000), alerts[0].CurrentPrice)
	assert.Equal(t, int64(58_500_000), alerts[0].ThresholdPrice)
}

func TestCancelIdempotence(t *testing.T) {
	h := newHarness(t)

	id, err := h.manager.SubmitLimit("alice", types.Bid, 100, 50_000_000)
	require.NoError(t, err)

	require.NoError(t, h.manager.Cancel("alice", id))
	err = h.manager.Cancel("alice", id)
	assert.ErrorIs(t, err, engineerr.New(engineerr.CodeOrderNotFound, ""))
}

func TestCancelForeignOrderRejected(t *testing.T) {
	h := newHarness(t)

	id, err := h.manager.SubmitLimit("alice", types.Bid, 100, 50_000_000)
	require.NoError(t, err)

	err = h.manager.Cancel("mallory", id)
	require.Error(t, err)

	require.NoError(t, h.manager.Cancel("alice", id), "owner can still cancel afterwards")
}

func TestCancelRestingStopOrder(t *testing.T) {
	h := newHarness(t)

	id, err := h.manager.SubmitStop("alice", types.Bid, 100, 60_000_000)
	require.NoError(t, err)
	require.NoError(t, h.manager.Cancel("alice", id))

	h.book.Lock()
	_, resting := h.stops.Lookup(id)
	h.book.Unlock()
	assert.False(t, resting)
}

func TestStopSubmitValidatedAgainstReferencePrice(t *testing.T) {
	h := newHarness(t)

	// Reference price bootstraps to 58,000,000 in this harness.
	_, err := h.manager.SubmitStop("alice", types.Bid, 100, 58_000_000)
	assert.Error(t, err, "bid stop at the reference price is rejected (strict at submit)")

	_, err = h.manager.SubmitStop("alice", types.Ask, 100, 58_000_000)
	assert.Error(t, err)

	_, err = h.manager.SubmitStop("alice", types.Bid, 100, 58_000_001)
	assert.NoError(t, err)
	_, err = h.manager.SubmitStop("bob", types.Ask, 100, 57_999_999)
	assert.NoError(t, err)
}

func TestSubmitValidation(t *testing.T) {
	h := newHarness(t)

	_, err := h.manager.SubmitLimit("alice", types.Side("hold"), 100, 50_000_000)
	assert.Error(t, err)
	_, err = h.manager.SubmitLimit("alice", types.Bid, 0, 50_000_000)
	assert.Error(t, err)
	_, err = h.manager.SubmitLimit("alice", types.Bid, 100, 0)
	assert.Error(t, err)
	_, err = h.manager.SubmitMarket("alice", types.Bid, -5)
	assert.Error(t, err)
	err = h.manager.RegisterThreshold("alice", 0)
	assert.Error(t, err)
}

func TestTradeNotificationsSentToBothCounterparties(t *testing.T) {
	h := newHarness(t)
	h.tn.RegisterEndpoint("alice", "127.0.0.1:19001")
	h.tn.RegisterEndpoint("bob", "127.0.0.1:19002")

	_, err := h.manager.SubmitLimit("alice", types.Ask, 1000, 58_000_000)
	require.NoError(t, err)
	_, err = h.manager.SubmitLimit("bob", types.Bid, 1000, 58_100_000)
	require.NoError(t, err)

	waitFor(t, func() bool {
		h.sender.mu.Lock()
		defer h.sender.mu.Unlock()
		return len(h.sender.sends) == 2
	})
}

func TestReferencePriceTracksLastFill(t *testing.T) {
	h := newHarness(t)

	prices := []int64{58_200_000, 58_050_000, 58_300_000}
	for _, p := range prices {
		_, err := h.manager.SubmitLimit("a", types.Ask, 100, p)
		require.NoError(t, err)
		_, err = h.manager.SubmitLimit("b", types.Bid, 100, p)
		require.NoError(t, err)
		assert.Equal(t, p, h.manager.ReferencePrice())
	}
}

func TestTradesPersistedToLog(t *testing.T) {
	h := newHarness(t)

	_, err := h.manager.SubmitLimit("alice", types.Ask, 1000, 58_000_000)
	require.NoError(t, err)
	_, err = h.manager.SubmitLimit("bob", types.Bid, 1000, 58_000_000)
	require.NoError(t, err)

	persisted := h.log.LoadAll()
	require.Len(t, persisted, 1)
	assert.Equal(t, int64(1000), persisted[0].Size)
	assert.Equal(t, int64(58_000_000), persisted[0].Price)
	assert.Equal(t, "bob", persisted[0].BidOwner)
	assert.Equal(t, "alice", persisted[0].AskOwner)
}
