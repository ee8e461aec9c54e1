package notify

import (
	"encoding/json"
	"net"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/btcxchange/internal/engine/types"
)

// ClosedTrade is one fill entry in the unicast trade-execution datagram.
type ClosedTrade struct {
	OrderID      int64  `json:"orderId"`
	Type         string `json:"type"`
	OrderType    string `json:"orderType"`
	Size         int64  `json:"size"`
	Price        int64  `json:"price"`
	Counterparty string `json:"counterparty"`
	Timestamp    int64  `json:"timestamp"`
}

// ClosedTradesNotification is the full datagram envelope.
type ClosedTradesNotification struct {
	Notification string        `json:"notification"`
	Trades       []ClosedTrade `json:"trades"`
}

// UnicastSender delivers a single datagram to a specific network address.
// Production code backs this with a *net.UDPConn per send; tests can
// substitute a recording fake.
type UnicastSender interface {
	SendTo(addr string, payload []byte) error
}

type udpUnicastSender struct{}

// NewUDPUnicastSender returns a UnicastSender that dials a fresh UDP socket
// per send — simple and adequate at this engine's scale, where sends are
// infrequent relative to matching throughput.
func NewUDPUnicastSender() UnicastSender {
	return udpUnicastSender{}
}

func (udpUnicastSender) SendTo(addr string, payload []byte) error {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Write(payload)
	return err
}

// TradeNotifier delivers best-effort, per-counterparty trade execution
// datagrams. Endpoint registration is populated/cleared by the session
// layer at login/logout; this component only ever reads it.
type TradeNotifier struct {
	mu        sync.RWMutex
	endpoints map[string]string // actor -> "host:port"
	sender    UnicastSender
	pool      *ants.Pool
	logger    *zap.Logger
}

// NewTradeNotifier builds a notifier sending through sender, with a bounded
// dispatch pool of the given size.
func NewTradeNotifier(sender UnicastSender, poolSize int, logger *zap.Logger) (*TradeNotifier, error) {
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
	return &TradeNotifier{
		endpoints: make(map[string]string),
		sender:    sender,
		pool:      pool,
		logger:    logger,
	}, nil
}

// RegisterEndpoint records actor's notification address, called by the
// session layer at login.
func (n *TradeNotifier) RegisterEndpoint(actor, addr string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.endpoints[actor] = addr
}

// UnregisterEndpoint drops actor's notification address, called by the
// session layer at logout/disconnect.
func (n *TradeNotifier) UnregisterEndpoint(actor string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.endpoints, actor)
}

// Notify delivers a single-fill datagram to order.Owner describing a trade
// against counterparty. If order.Owner has no registered endpoint, the
// notification is dropped silently — this is a best-effort channel with no
// acknowledgment or retry.
func (n *TradeNotifier) Notify(order *types.Order, counterparty string, size, price, timestamp int64) {
	n.mu.RLock()
	addr, ok := n.endpoints[order.Owner]
	n.mu.RUnlock()
	if !ok {
		return
	}

	jobID := ksuid.New().String()
	err := n.pool.Submit(func() {
		n.send(jobID, addr, order, counterparty, size, price, timestamp)
	})
	if err != nil {
		n.logger.Warn("trade notify dispatch pool saturated, sending inline",
			zap.String("job_id", jobID), zap.Error(err))
		n.send(jobID, addr, order, counterparty, size, price, timestamp)
	}
}

func (n *TradeNotifier) send(jobID, addr string, order *types.Order, counterparty string, size, price, timestamp int64) {
	notification := ClosedTradesNotification{
		Notification: "closedTrades",
		Trades: []ClosedTrade{{
			OrderID:      order.OrderID,
			Type:         string(order.Side),
			OrderType:    string(order.Kind),
			Size:         size,
			Price:        price,
			Counterparty: counterparty,
			Timestamp:    timestamp,
		}},
	}
	payload, err := json.Marshal(notification)
	if err != nil {
		n.logger.Error("trade notification marshal failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	if err := n.sender.SendTo(addr, payload); err != nil {
		n.logger.Warn("trade notification send failed, dropping",
			zap.String("job_id", jobID), zap.String("owner", order.Owner), zap.Error(err))
	}
}

// Close releases the dispatch pool.
func (n *TradeNotifier) Close() {
	n.pool.Release()
}
