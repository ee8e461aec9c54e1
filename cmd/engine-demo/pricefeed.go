package main

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// PriceFeed is a best-effort websocket broadcaster of reference price
// ticks, a stand-in for the session layer's live-quote channel. Broadcast
// writes to each client in turn under the feed's lock and drops a client
// whose write fails; writes have no deadline, so a slow reader delays the
// broadcast.
type PriceFeed struct {
	upgrader websocket.Upgrader
	mu       sync.Mutex
	clients  map[*websocket.Conn]struct{}
	logger   *zap.Logger
}

// NewPriceFeed builds an empty feed.
func NewPriceFeed(logger *zap.Logger) *PriceFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PriceFeed{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
		logger:  logger,
	}
}

// Handle upgrades an HTTP request to a websocket connection and registers
// it as a tick subscriber until it disconnects.
func (f *PriceFeed) Handle(c *gin.Context) {
	conn, err := f.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		f.logger.Warn("price feed upgrade failed", zap.Error(err))
		return
	}

	f.mu.Lock()
	f.clients[conn] = struct{}{}
	f.mu.Unlock()

	go f.readUntilClose(conn)
}

// readUntilClose drains and discards inbound frames until the client
// disconnects, at which point the connection is deregistered and closed.
func (f *PriceFeed) readUntilClose(conn *websocket.Conn) {
	defer func() {
		f.mu.Lock()
		delete(f.clients, conn)
		f.mu.Unlock()
		conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast pushes a reference price tick to every connected client,
// dropping any client whose write fails.
func (f *PriceFeed) Broadcast(refPrice int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for conn := range f.clients {
		if err := conn.WriteJSON(gin.H{"referencePrice": refPrice}); err != nil {
			conn.Close()
			delete(f.clients, conn)
		}
	}
}
