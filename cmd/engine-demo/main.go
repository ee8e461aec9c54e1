// Command engine-demo is an illustrative bootstrap exposing the exchange
// engine over HTTP: a gin endpoint carrying the client operation
// envelope, a JWT login stub, Prometheus metrics, a websocket price feed
// and per-IP rate limiting, all wired together with fx the way the
// original gateway binary wires its own modules.
package main

import (
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/btcxchange/internal/engine/idgen"
	"github.com/abdoElHodaky/btcxchange/internal/engine/matching"
	"github.com/abdoElHodaky/btcxchange/internal/engine/notify"
	"github.com/abdoElHodaky/btcxchange/internal/engine/orderbook"
	"github.com/abdoElHodaky/btcxchange/internal/engine/ordermanager"
	"github.com/abdoElHodaky/btcxchange/internal/engine/pricehistory"
	"github.com/abdoElHodaky/btcxchange/internal/engine/stopbook"
	"github.com/abdoElHodaky/btcxchange/internal/engine/tradelog"
	"github.com/abdoElHodaky/btcxchange/internal/engine/types"

	engineconfig "github.com/abdoElHodaky/btcxchange/internal/config"
)

func main() {
	app := fx.New(
		fx.Provide(
			loadConfig,
			newLogger,
			newAuthMiddleware,
			NewEngineMetrics,
			NewPriceFeed,
			newOrderBook,
			newStopBook,
			newTradeLog,
			newThresholdNotifier,
			newTradeNotifier,
			newMatchingEngine,
			newPriceHistoryService,
			newOrderManager,
			NewRouter,
			NewServer,
		),
		fx.Invoke(func(*Server) {}),
	)
	app.Run()
}

func loadConfig() (*engineconfig.EngineConfig, error) {
	return engineconfig.Load("")
}

func newLogger(cfg *engineconfig.EngineConfig) (*zap.Logger, error) {
	return engineconfig.InitLogger(cfg)
}

func newAuthMiddleware() *AuthMiddleware {
	return NewAuthMiddleware("")
}

func newOrderBook(logger *zap.Logger) *orderbook.Book {
	return orderbook.New(logger)
}

func newStopBook(logger *zap.Logger) *stopbook.Book {
	return stopbook.New(logger)
}

func newTradeLog(cfg *engineconfig.EngineConfig, logger *zap.Logger) (*tradelog.Store, error) {
	path := cfg.DataDir + "/" + cfg.TradeLogFile
	return tradelog.New(path, cfg.TradeLogCompactBytes, logger)
}

func newThresholdNotifier(cfg *engineconfig.EngineConfig, logger *zap.Logger) (*notify.ThresholdNotifier, error) {
	sink, err := notify.NewUDPMulticastSink(cfg.MulticastAddr)
	if err != nil {
		return nil, err
	}
	return notify.NewThresholdNotifier(sink, cfg.NotifyWorkerPoolSize, logger)
}

func newTradeNotifier(cfg *engineconfig.EngineConfig, logger *zap.Logger) (*notify.TradeNotifier, error) {
	return notify.NewTradeNotifier(notify.NewUDPUnicastSender(), cfg.NotifyWorkerPoolSize, logger)
}

func newMatchingEngine(book *orderbook.Book, stops *stopbook.Book, cfg *engineconfig.EngineConfig, metrics *EngineMetrics, logger *zap.Logger) *matching.Engine {
	return matching.New(book, stops, cfg.StopCascadeMaxIters, logger).WithCascadeCounter(metrics.CascadeIterations)
}

func newPriceHistoryService(log *tradelog.Store, cfg *engineconfig.EngineConfig, logger *zap.Logger) *pricehistory.Service {
	ttl := cfg.OHLCCacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return pricehistory.New(log, ttl, logger)
}

func newOrderManager(
	book *orderbook.Book,
	stops *stopbook.Book,
	matcher *matching.Engine,
	log *tradelog.Store,
	history *pricehistory.Service,
	threshold *notify.ThresholdNotifier,
	trades *notify.TradeNotifier,
	cfg *engineconfig.EngineConfig,
	metrics *EngineMetrics,
	logger *zap.Logger,
) *ordermanager.Manager {
	return ordermanager.New(ordermanager.Config{
		Book:              book,
		StopBook:          stops,
		Matcher:           matcher,
		IDs:               idgen.New(),
		TradeLog:          log,
		History:           history,
		ThresholdNotify:   threshold,
		TradeNotify:       trades,
		BootstrapRefPrice: cfg.BootstrapRefPrice,
		OnTrade: func(types.Trade) {
			metrics.TradesExecuted.Inc()
		},
		Logger: logger,
	})
}
