// Package api exposes the engine over HTTP and a websocket event stream.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tradepilot/internal/analyzer"
	"tradepilot/internal/balance"
	"tradepilot/internal/engine"
	"tradepilot/internal/events"
	"tradepilot/internal/ledger"
	"tradepilot/internal/persistence"
	"tradepilot/internal/store"
)

// Server wires HTTP endpoints around the engine and the event bus.
type Server struct {
	Router   *gin.Engine
	BaseCtx  context.Context
	Engine   *engine.Engine
	Analyzer *analyzer.Analyzer
	Ledger   *ledger.Ledger
	Balances *balance.Manager
	Store    store.Store
	Queue    *persistence.RetryQueue
	Bus      *events.Bus
	Meta     SystemMeta
}

// SystemMeta describes runtime configuration exposed to clients.
type SystemMeta struct {
	Symbols     []string
	UseMockFeed bool
	Version     string
	StartedAt   time.Time
}

// NewServer builds the router with the full middleware stack and routes.
func NewServer(
	eng *engine.Engine,
	an *analyzer.Analyzer,
	lg *ledger.Ledger,
	balances *balance.Manager,
	st store.Store,
	queue *persistence.RetryQueue,
	bus *events.Bus,
	meta SystemMeta,
) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware())
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:   r,
		Engine:   eng,
		Analyzer: an,
		Ledger:   lg,
		Balances: balances,
		Store:    st,
		Queue:    queue,
		Bus:      bus,
		Meta:     meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/status", s.getStatus)
		api.GET("/positions", s.getPositions)
		api.GET("/trades", s.getTrades)
		api.GET("/analyses", s.getAnalyses)
		api.GET("/balance", s.getBalance)

		api.GET("/settings", s.getSettings)
		api.PUT("/settings", s.updateSettings)

		api.POST("/engine/start", s.startEngine)
		api.POST("/engine/stop", s.stopEngine)
		api.POST("/positions/:id/close", s.closePosition)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// baseCtx is the context long-running work started from a request runs
// under.
func (s *Server) baseCtx() context.Context {
	if s.BaseCtx != nil {
		return s.BaseCtx
	}
	return context.Background()
}

// Start blocks serving HTTP on addr.
func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
