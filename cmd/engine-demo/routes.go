package main

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/btcxchange/internal/engine/ordermanager"
	"github.com/abdoElHodaky/btcxchange/internal/wire"
)

// Router exposes the engine's operation envelope over HTTP: one exchange
// endpoint accepting the {operation, values} JSON lines the session layer
// would otherwise carry over a stream socket, plus the login stub and the
// websocket price feed.
type Router struct {
	dispatcher *wire.Dispatcher
	manager    *ordermanager.Manager
	auth       *AuthMiddleware
	metrics    *EngineMetrics
	priceFeed  *PriceFeed
	logger     *zap.Logger
}

// NewRouter builds a Router over the given collaborators.
func NewRouter(manager *ordermanager.Manager, auth *AuthMiddleware, metrics *EngineMetrics, priceFeed *PriceFeed, logger *zap.Logger) *Router {
	return &Router{
		dispatcher: wire.NewDispatcher(manager, logger),
		manager:    manager,
		auth:       auth,
		metrics:    metrics,
		priceFeed:  priceFeed,
		logger:     logger,
	}
}

func (r *Router) register(engine *gin.Engine) {
	engine.POST("/auth/login", r.auth.LoginHandler())

	api := engine.Group("/api")
	api.Use(r.auth.RequireAuth())
	api.Use(newRateLimiter(50, 50))
	{
		api.POST("/exchange", r.exchange)
	}
}

func (r *Router) owner(c *gin.Context) string {
	v, _ := c.Get("owner")
	owner, _ := v.(string)
	return owner
}

// exchange handles one request envelope on behalf of the authenticated
// actor. Failures are in-band per the wire protocol (orderId -1, response
// 101, errorMessage), so the HTTP status is 200 whenever the envelope
// itself was readable.
func (r *Router) exchange(c *gin.Context) {
	start := time.Now()

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, wire.ErrorResponse{ErrorMessage: "unreadable request body"})
		return
	}

	result := r.dispatcher.Handle(r.owner(c), body)

	op := "unknown"
	var req wire.Request
	if json.Unmarshal(body, &req) == nil && req.Operation != "" {
		op = req.Operation
	}
	r.metrics.RequestLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	r.observe(op, result)

	c.JSON(http.StatusOK, result)
}

// observe updates the Prometheus counters and the price feed from a
// dispatch result.
func (r *Router) observe(op string, result interface{}) {
	switch resp := result.(type) {
	case wire.OrderIDResponse:
		if resp.OrderID == wire.RejectedOrderID {
			r.metrics.OrdersRejected.WithLabelValues(op).Inc()
			return
		}
		r.metrics.OrdersSubmitted.WithLabelValues(op).Inc()
		r.priceFeed.Broadcast(r.manager.ReferencePrice())
	case wire.StatusResponse:
		if resp.Response != wire.CodeOK {
			r.metrics.OrdersRejected.WithLabelValues(op).Inc()
		}
	}
}
