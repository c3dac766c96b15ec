// Package api exposes the execution core over HTTP: auth, order routing,
// mode control, swarm rounds and a websocket event stream.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"execution-core/internal/breaker"
	"execution-core/internal/events"
	"execution-core/internal/mode"
	"execution-core/internal/paper"
	"execution-core/internal/risk"
	"execution-core/internal/swarm"
	"execution-core/pkg/cache"
	"execution-core/pkg/crypto"
	"execution-core/pkg/db"
	"execution-core/pkg/exchanges/common"
)

// Server wires HTTP endpoints around the mode manager and its collaborators.
type Server struct {
	Router    *gin.Engine
	Bus       *events.Bus
	DB        *db.Database
	Modes     *mode.Manager
	Paper     *paper.Engine
	Swarm     *swarm.Coordinator
	Risk      *risk.Advisor
	Keys      *crypto.Keyring
	Prices    *cache.Prices
	JWTSecret string
	Meta      SystemMeta

	// LiveFactory builds a live venue adapter from decrypted credentials.
	LiveFactory func(apiKey, apiSecret string, testnet bool) common.Adapter
}

// SystemMeta describes runtime status exposed to clients.
type SystemMeta struct {
	Venue   string
	Version string
}

// Deps bundles the server's collaborators.
type Deps struct {
	Bus       *events.Bus
	DB        *db.Database
	Modes     *mode.Manager
	Paper     *paper.Engine
	Swarm     *swarm.Coordinator
	Risk      *risk.Advisor
	Keys      *crypto.Keyring
	Prices    *cache.Prices
	JWTSecret string
	Meta      SystemMeta

	LiveFactory func(apiKey, apiSecret string, testnet bool) common.Adapter
}

func NewServer(d Deps) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware())
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:    r,
		Bus:       d.Bus,
		DB:        d.DB,
		Modes:     d.Modes,
		Paper:     d.Paper,
		Swarm:     d.Swarm,
		Risk:      d.Risk,
		Keys:      d.Keys,
		Prices:    d.Prices,
		JWTSecret: d.JWTSecret,
		Meta:      d.Meta,

		LiveFactory: d.LiveFactory,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		// Auth endpoints (no auth required)
		auth := api.Group("/auth")
		{
			auth.POST("/register", s.registerUser)
			auth.POST("/login", s.loginUser)
		}

		// Protected API
		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/mode", s.getModeStatus)
			protected.POST("/mode/switch", s.switchMode)
			protected.GET("/mode/audit", s.getAuditLog)

			protected.POST("/orders", s.createOrder)
			protected.GET("/orders", s.listOrders)
			protected.DELETE("/orders/:id", s.cancelOrder)

			protected.GET("/prices", s.getPrices)
			protected.GET("/balances", s.getBalances)
			protected.GET("/positions", s.getPositions)
			protected.GET("/trades", s.listTrades)
			protected.POST("/paper/reset", s.resetPaperAccount)

			protected.POST("/swarm/coordinate", s.coordinateSwarm)
			protected.GET("/swarm/agents", s.listSwarmAgents)

			protected.GET("/breakers", s.getBreakers)
			protected.GET("/risk/profile", s.getRiskProfile)
			protected.PUT("/risk/profile", s.setRiskProfile)

			protected.GET("/connections", s.listConnections)
			protected.POST("/connections", s.createConnection)
			protected.DELETE("/connections/:id", s.deactivateConnection)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"venue":   s.Meta.Venue,
		"version": s.Meta.Version,
	})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}

// breakerSummary is exposed at /api/breakers.
type breakerSummary struct {
	Breakers []breaker.Stats `json:"breakers"`
}

func (s *Server) getBreakers(c *gin.Context) {
	c.JSON(http.StatusOK, breakerSummary{Breakers: s.Modes.BreakerStats()})
}
