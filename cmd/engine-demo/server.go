package main

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/gin-gonic/gin"

	engineconfig "github.com/abdoElHodaky/btcxchange/internal/config"
)

// ServerParams are the fx-injected dependencies for the demo HTTP server.
type ServerParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Logger    *zap.Logger
	Config    *engineconfig.EngineConfig
	Router    *Router
}

// Server is the illustrative HTTP bootstrap for the exchange engine: a
// gin server exposing health, metrics and the JSON order operations,
// started and stopped through fx's lifecycle hooks.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer builds the gin engine, registers routes and wraps it in an
// *http.Server managed by fx.Lifecycle.
func NewServer(p ServerParams) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestID())
	engine.Use(requestLogger(p.Logger))

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/ws/prices", p.Router.priceFeed.Handle)

	p.Router.register(engine)

	srv := &Server{
		httpServer: &http.Server{Addr: ":8080", Handler: engine},
		logger:     p.Logger,
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				p.Logger.Info("starting engine-demo server", zap.String("addr", srv.httpServer.Addr))
				if err := srv.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					p.Logger.Error("engine-demo server stopped unexpectedly", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			p.Logger.Info("stopping engine-demo server")
			return srv.httpServer.Shutdown(ctx)
		},
	})

	return srv
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("request_id", c.GetString("request_id")),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// requestID stamps every request with a UUID, echoed back in the
// response header so a client-reported issue can be traced to a single
// log line.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.New().String()
		c.Set("request_id", id)
		c.Header("X-Request-Id", id)
		c.Next()
	}
}
