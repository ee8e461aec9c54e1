// Package notify implements the engine's two notification producers: the
// per-user one-shot price threshold alert (multicast) and the
// per-counterparty trade execution notice (unicast).
package notify

import (
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
)

// ThresholdAlert is the multicast datagram payload for a fired price alert.
type ThresholdAlert struct {
	Type           string `json:"type"`
	Username       string `json:"username"`
	ThresholdPrice int64  `json:"thresholdPrice"`
	CurrentPrice   int64  `json:"currentPrice"`
	Message        string `json:"message"`
	Timestamp      int64  `json:"timestamp"`
}

// MulticastSink publishes a single datagram to the shared multicast group.
// Production code backs this with a *net.UDPConn; tests can substitute a
// recording fake.
type MulticastSink interface {
	Publish(payload []byte) error
}

// udpMulticastSink sends datagrams to a joined multicast group address.
type udpMulticastSink struct {
	conn *net.UDPConn
}

// NewUDPMulticastSink dials a UDP connection to groupAddr (e.g.
// "239.0.0.1:9999") suitable for best-effort multicast publication.
func NewUDPMulticastSink(groupAddr string) (MulticastSink, error) {
	addr, err := net.ResolveUDPAddr("udp", groupAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, err
	}
	return &udpMulticastSink{conn: conn}, nil
}

func (s *udpMulticastSink) Publish(payload []byte) error {
	_, err := s.conn.Write(payload)
	return err
}

// ThresholdNotifier tracks at most one active price threshold per actor and
// fires a one-shot alert the first time the market price crosses it.
// Register/OnPrice/Unregister are all safe for concurrent use; OnPrice
// finds and removes every crossed entry while holding the notifier's
// mutex, so two concurrent price updates cannot fire the same threshold
// twice.
type ThresholdNotifier struct {
	mu         sync.Mutex
	thresholds map[string]int64
	sink       MulticastSink
	pool       *ants.Pool
	logger     *zap.Logger
}

// NewThresholdNotifier builds a notifier publishing through sink, dispatching
// fires through a bounded worker pool of the given size.
func NewThresholdNotifier(sink MulticastSink, poolSize int, logger *zap.Logger) (*ThresholdNotifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if poolSize <= 0 {
		poolSize = 16
	}
	pool, err := ants.NewPool(poolSize, ants.WithNonblocking(true))
	if err != nil {
		return nil, err
	}
	return &ThresholdNotifier{
		thresholds: make(map[string]int64),
		sink:       sink,
		pool:       pool,
		logger:     logger,
	}, nil
}

// Register installs threshold for actor, replacing any prior value
// (last write wins).
func (n *ThresholdNotifier) Register(actor string, threshold int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.thresholds[actor] = threshold
}

// Unregister removes any threshold registered for actor.
func (n *ThresholdNotifier) Unregister(actor string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.thresholds, actor)
}

// OnPrice fires (and removes) every threshold crossed by newPrice. The
// crossed entries are removed under the mutex first and their alerts are
// dispatched afterwards, so an alert is published after its entry is
// gone; a failed publish is logged and the threshold is not restored.
func (n *ThresholdNotifier) OnPrice(newPrice int64) {
	n.mu.Lock()
	type hit struct {
		actor     string
		threshold int64
	}
	var hits []hit
	for actor, threshold := range n.thresholds {
		if newPrice >= threshold {
			hits = append(hits, hit{actor, threshold})
		}
	}
	for _, h := range hits {
		delete(n.thresholds, h.actor)
	}
	n.mu.Unlock()

	for _, h := range hits {
		h := h
		jobID := ksuid.New().String()
		err := n.pool.Submit(func() {
			n.publish(jobID, h.actor, h.threshold, newPrice)
		})
		if err != nil {
			n.logger.Warn("threshold dispatch pool saturated, publishing inline",
				zap.String("job_id", jobID), zap.Error(err))
			n.publish(jobID, h.actor, h.threshold, newPrice)
		}
	}
}

func (n *ThresholdNotifier) publish(jobID, actor string, threshold, currentPrice int64) {
	alert := ThresholdAlert{
		Type:           "priceThreshold",
		Username:       actor,
		ThresholdPrice: threshold,
		CurrentPrice:   currentPrice,
		Message:        "price threshold crossed",
		Timestamp:      time.Now().UnixMilli(),
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		n.logger.Error("threshold alert marshal failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	if err := n.sink.Publish(payload); err != nil {
		n.logger.Warn("threshold alert publish failed, dropping",
			zap.String("job_id", jobID), zap.String("actor", actor), zap.Error(err))
	}
}

// Close releases the dispatch pool.
func (n *ThresholdNotifier) Close() {
	n.pool.Release()
}
