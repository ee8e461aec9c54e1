// Package tradelog implements the append-only, crash-consistent persistence
// of executed trades to a single JSON document (`StoricoOrdini.json`).
// Whole-file rewrite on append is acceptable at this scale and keeps
// atomicity simple: readers always observe either the pre- or post-append
// state, never a partial one.
package tradelog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/btcxchange/internal/engine/types"
)

// wireTrade is the persisted JSON shape, distinct from the engine-internal
// types.Trade so the two can evolve independently.
type wireTrade struct {
	OrderID     int64  `json:"orderId"`
	Type        string `json:"type"`
	OrderType   string `json:"orderType"`
	Size        int64  `json:"size"`
	Price       int64  `json:"price"`
	Timestamp   int64  `json:"timestamp"`
	BidOrderID  int64  `json:"bidOrderId"`
	AskOrderID  int64  `json:"askOrderId"`
	BidUsername string `json:"bidUsername"`
	AskUsername string `json:"askUsername"`
}

type envelope struct {
	Trades []wireTrade `json:"trades"`
}

func toWire(t types.Trade) wireTrade {
	return wireTrade{
		OrderID:     t.TradeID,
		Type:        "executed",
		OrderType:   "completed",
		Size:        t.Size,
		Price:       t.Price,
		Timestamp:   t.Timestamp,
		BidOrderID:  t.BidOrderID,
		AskOrderID:  t.AskOrderID,
		BidUsername: t.BidOwner,
		AskUsername: t.AskOwner,
	}
}

func fromWire(w wireTrade) types.Trade {
	return types.Trade{
		TradeID:    w.OrderID,
		BidOrderID: w.BidOrderID,
		AskOrderID: w.AskOrderID,
		BidOwner:   w.BidUsername,
		AskOwner:   w.AskUsername,
		Size:       w.Size,
		Price:      w.Price,
		Timestamp:  w.Timestamp,
	}
}

// Stats summarizes the current trade log.
type Stats struct {
	Count         int
	TotalVolume   int64
	FileSizeBytes int64
}

// Store is the append-only trade log. It is safe for concurrent use: reads
// take an RWMutex read lock, appends take the write lock.
type Store struct {
	path         string
	mu           sync.RWMutex
	logger       *zap.Logger
	breaker      *gobreaker.CircuitBreaker
	compactBytes int64
}

// New builds a Store backed by path, ensuring its parent directory and the
// file itself exist (writing an empty `{"trades": []}` envelope if absent).
// compactBytes is the size threshold past which Compact archives the file;
// 0 disables archival.
func New(path string, compactBytes int64, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{path: path, logger: logger, compactBytes: compactBytes}

	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "tradelog-append",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("trade log breaker state change",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("tradelog: creating data dir %s: %w", dir, err)
	}
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		empty := envelope{Trades: []wireTrade{}}
		data, _ := json.Marshal(empty)
		if err := os.WriteFile(s.path, data, 0o644); err != nil {
			return fmt.Errorf("tradelog: initializing %s: %w", s.path, err)
		}
	} else if err != nil {
		return fmt.Errorf("tradelog: stat %s: %w", s.path, err)
	}
	return nil
}

// LoadAll returns every persisted trade in file order. On a parse failure
// it logs and returns an empty slice rather than propagating — a readable
// history is best-effort, not load-bearing for matching correctness.
func (s *Store) LoadAll() []types.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()

	env, err := s.readLocked()
	if err != nil {
		s.logger.Error("tradelog: failed to load, returning empty history", zap.Error(err))
		return nil
	}

	trades := make([]types.Trade, 0, len(env.Trades))
	for _, w := range env.Trades {
		trades = append(trades, fromWire(w))
	}
	return trades
}

// Append persists a single trade, serialized through a circuit breaker so
// repeated disk failures fail fast instead of blocking callers. Any error
// is the caller's to log and swallow: a persistence failure must never
// unwind a completed fill.
func (s *Store) Append(trade types.Trade) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		env, err := s.readLocked()
		if err != nil {
			return nil, err
		}
		env.Trades = append(env.Trades, toWire(trade))
		if err := s.writeLocked(env); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("tradelog: append trade %d: %w", trade.TradeID, err)
	}

	if s.compactBytes > 0 {
		if info, statErr := os.Stat(s.path); statErr == nil && info.Size() >= s.compactBytes {
			if err := s.Compact(); err != nil {
				s.logger.Warn("tradelog: compaction failed, continuing with uncompacted log", zap.Error(err))
			}
		}
	}
	return nil
}

// Stats reports the current size of the log, for telemetry. The Compact
// size trigger in Append checks the file size directly and does not call
// Stats.
func (s *Store) Stats() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	env, err := s.readLocked()
	if err != nil {
		return Stats{}, err
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return Stats{}, err
	}

	st := Stats{Count: len(env.Trades), FileSizeBytes: info.Size()}
	for _, w := range env.Trades {
		st.TotalVolume += w.Size
	}
	return st, nil
}

// Compact moves the current log content into a gzip-compressed, timestamped
// sibling file and starts a fresh empty envelope, keeping whole-file
// rewrites cheap as the log grows without changing append/load semantics.
func (s *Store) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("tradelog: reading for compaction: %w", err)
	}

	archivePath := fmt.Sprintf("%s.%d.gz", s.path, time.Now().UnixNano())
	f, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("tradelog: creating archive %s: %w", archivePath, err)
	}
	defer f.Close()

	gw := gzip.NewWriter(f)
	if _, err := gw.Write(data); err != nil {
		gw.Close()
		return fmt.Errorf("tradelog: writing archive %s: %w", archivePath, err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("tradelog: closing archive %s: %w", archivePath, err)
	}

	empty := envelope{Trades: []wireTrade{}}
	if err := s.writeLocked(empty); err != nil {
		return fmt.Errorf("tradelog: resetting log after compaction: %w", err)
	}

	s.logger.Info("tradelog: compacted", zap.String("archive", archivePath), zap.Int("bytes", len(data)))
	return nil
}

func (s *Store) readLocked() (envelope, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return envelope{}, fmt.Errorf("reading %s: %w", s.path, err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope{}, fmt.Errorf("parsing %s: %w", s.path, err)
	}
	return env, nil
}

func (s *Store) writeLocked(env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshaling trade log: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing temp file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("renaming %s to %s: %w", tmp, s.path, err)
	}
	return nil
}
