package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"execution-core/internal/breaker"
	"execution-core/internal/mode"
	"execution-core/internal/paper"
	"execution-core/internal/risk"
	"execution-core/internal/swarm"
	"execution-core/pkg/db"
	"execution-core/pkg/exchanges/common"
)

// --- Mode ---

func (s *Server) getModeStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Modes.GetModeStatus(CurrentUserID(c)))
}

func (s *Server) switchMode(c *gin.Context) {
	var req struct {
		Mode         string             `json:"mode"`
		Confirmation *mode.Confirmation `json:"confirmation"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_PAYLOAD", "error": "invalid request payload"})
		return
	}

	userID := CurrentUserID(c)
	err := s.Modes.SwitchMode(c.Request.Context(), userID, mode.Mode(req.Mode), req.Confirmation)
	if err != nil {
		status, code := switchErrorCode(err)
		c.JSON(status, gin.H{"code": code, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.Modes.GetModeStatus(userID))
}

func switchErrorCode(err error) (int, string) {
	switch {
	case errors.Is(err, mode.ErrNoLiveAdapter):
		return http.StatusConflict, "NO_LIVE_EXCHANGE"
	case errors.Is(err, mode.ErrSimulatedVenue):
		return http.StatusConflict, "SIMULATED_VENUE"
	case errors.Is(err, mode.ErrConfirmationRequired):
		return http.StatusBadRequest, "CONFIRMATION_REQUIRED"
	case errors.Is(err, mode.ErrPasswordRequired):
		return http.StatusBadRequest, "PASSWORD_REQUIRED"
	case errors.Is(err, mode.ErrAcknowledgementRequired):
		return http.StatusBadRequest, "RISK_ACK_REQUIRED"
	case errors.Is(err, mode.ErrInvalidMode):
		return http.StatusBadRequest, "INVALID_MODE"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

func (s *Server) getAuditLog(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	entries, err := s.Modes.AuditLog(c.Request.Context(), CurrentUserID(c), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL_ERROR", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// --- Orders ---

func (s *Server) createOrder(c *gin.Context) {
	var req struct {
		Symbol string  `json:"symbol"`
		Side   string  `json:"side"`
		Type   string  `json:"type"`
		Qty    float64 `json:"qty"`
		Price  float64 `json:"price"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_PAYLOAD", "error": "invalid request payload"})
		return
	}

	params := common.OrderParams{
		Symbol: strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Side:   common.Side(strings.ToUpper(req.Side)),
		Type:   common.OrderType(strings.ToUpper(req.Type)),
		Qty:    req.Qty,
		Price:  req.Price,
	}
	if params.Type == "" {
		params.Type = common.OrderTypeMarket
	}

	userID := CurrentUserID(c)
	ctx := c.Request.Context()

	res, err := s.Modes.CreateOrder(ctx, userID, params)
	if res != nil && res.Order != nil {
		s.persistOrder(c, userID, res)
	}
	if err != nil {
		var openErr *breaker.OpenError
		switch {
		case errors.As(err, &openErr):
			c.JSON(http.StatusServiceUnavailable, gin.H{"code": "CIRCUIT_OPEN", "error": err.Error()})
		case errors.Is(err, paper.ErrInsufficientBalance):
			body := gin.H{"code": "INSUFFICIENT_BALANCE", "error": err.Error()}
			if res != nil {
				body["order"] = res.Order
			}
			c.JSON(http.StatusUnprocessableEntity, body)
		case errors.Is(err, mode.ErrNoExchangeConfigured):
			c.JSON(http.StatusConflict, gin.H{"code": "NO_EXCHANGE", "error": err.Error()})
		case errors.Is(err, common.ErrSymbolNotFound):
			c.JSON(http.StatusNotFound, gin.H{"code": "SYMBOL_NOT_FOUND", "error": err.Error()})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"code": "ORDER_REJECTED", "error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusCreated, res)
}

// persistOrder mirrors a routed order (and its fill) into sqlite so history
// survives restarts. Persistence failures are logged, not surfaced.
func (s *Server) persistOrder(c *gin.Context, userID string, res *mode.OrderResult) {
	if s.DB == nil {
		return
	}
	o := res.Order
	rec := db.Order{
		ID:        o.ID,
		UserID:    userID,
		Mode:      string(res.Mode),
		Symbol:    o.Symbol,
		Side:      string(o.Side),
		Type:      string(o.Type),
		Price:     o.Price,
		Qty:       o.Qty,
		FilledQty: o.FilledQty,
		AvgPrice:  o.AvgPrice,
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt,
	}
	if err := s.DB.RecordOrder(c.Request.Context(), rec); err != nil {
		log.Printf("api: persist order %s: %v", o.ID, err)
		return
	}
	if o.Status == common.StatusFilled && s.Paper != nil && res.Mode == mode.ModePaper {
		for _, t := range s.Paper.Trades(userID) {
			if t.OrderID != o.ID {
				continue
			}
			err := s.DB.RecordTrade(c.Request.Context(), db.Trade{
				ID: t.ID, OrderID: t.OrderID, UserID: userID, Symbol: t.Symbol,
				Side: string(t.Side), Price: t.Price, Qty: t.Qty, Fee: t.Fee, CreatedAt: t.Timestamp,
			})
			if err != nil {
				log.Printf("api: persist trade %s: %v", t.ID, err)
			}
		}
	}
}

func (s *Server) listOrders(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	orders, err := s.DB.ListOrdersByUser(c.Request.Context(), CurrentUserID(c), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL_ERROR", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (s *Server) cancelOrder(c *gin.Context) {
	orderID := c.Param("id")
	symbol := c.Query("symbol")
	userID := CurrentUserID(c)
	ctx := c.Request.Context()

	if err := s.Modes.CancelOrder(ctx, userID, symbol, orderID); err != nil {
		switch {
		case errors.Is(err, common.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{"code": "ORDER_NOT_FOUND", "error": err.Error()})
		case errors.Is(err, paper.ErrOrderNotCancellable):
			c.JSON(http.StatusConflict, gin.H{"code": "NOT_CANCELLABLE", "error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL_ERROR", "error": err.Error()})
		}
		return
	}

	if s.DB != nil {
		if err := s.DB.UpdateOrderStatus(ctx, userID, orderID, string(common.StatusCancelled), 0, 0); err != nil && !errors.Is(err, db.ErrNotFound) {
			log.Printf("api: update cancelled order %s: %v", orderID, err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"order_id": orderID, "status": common.StatusCancelled})
}

// --- Account views ---

func (s *Server) getPrices(c *gin.Context) {
	if s.Prices == nil {
		c.JSON(http.StatusOK, gin.H{"prices": gin.H{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"prices": s.Prices.Snapshot()})
}

func (s *Server) getBalances(c *gin.Context) {
	adapter, current, err := s.Modes.AdapterForUser(CurrentUserID(c))
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"code": "NO_EXCHANGE", "error": err.Error()})
		return
	}
	balances, err := adapter.GetBalances(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"code": "VENUE_ERROR", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": current, "balances": balances})
}

func (s *Server) getPositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"positions": s.Paper.Positions(CurrentUserID(c))})
}

func (s *Server) listTrades(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	trades, err := s.DB.ListTradesByUser(c.Request.Context(), CurrentUserID(c), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL_ERROR", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) resetPaperAccount(c *gin.Context) {
	userID := CurrentUserID(c)
	s.Paper.ResetAccount(userID)
	c.JSON(http.StatusOK, gin.H{"balances": s.Paper.Balances(userID)})
}

// --- Swarm ---

func (s *Server) coordinateSwarm(c *gin.Context) {
	var req struct {
		Prices map[string]float64 `json:"prices"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_PAYLOAD", "error": "invalid request payload"})
		return
	}

	// Cached marks are the baseline; request prices override per symbol.
	prices := make(map[string]float64)
	if s.Prices != nil {
		prices = s.Prices.Snapshot()
	}
	for sym, p := range req.Prices {
		prices[sym] = p
	}

	sc := swarm.Context{
		Prices:   prices,
		Balances: s.Paper.Balances(CurrentUserID(c)),
	}
	res, err := s.Swarm.Coordinate(c.Request.Context(), sc)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL_ERROR", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) listSwarmAgents(c *gin.Context) {
	type agentInfo struct {
		ID   string `json:"id"`
		Role string `json:"role"`
	}
	agents := s.Swarm.Agents()
	out := make([]agentInfo, 0, len(agents))
	for _, a := range agents {
		out = append(out, agentInfo{ID: a.ID(), Role: a.Role()})
	}
	c.JSON(http.StatusOK, gin.H{"agents": out})
}

// --- Risk ---

func (s *Server) getRiskProfile(c *gin.Context) {
	c.JSON(http.StatusOK, s.Risk.GetUserProfile(CurrentUserID(c)))
}

func (s *Server) setRiskProfile(c *gin.Context) {
	var p risk.Profile
	if err := c.BindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_PAYLOAD", "error": "invalid request payload"})
		return
	}
	s.Risk.SetUserProfile(CurrentUserID(c), p)
	c.JSON(http.StatusOK, p)
}

// --- Connections ---

// connectionView never exposes key material, encrypted or otherwise.
type connectionView struct {
	ID           string    `json:"id"`
	ExchangeType string    `json:"exchange_type"`
	Name         string    `json:"name"`
	Testnet      bool      `json:"testnet"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

func (s *Server) listConnections(c *gin.Context) {
	conns, err := s.DB.ListConnectionsByUser(c.Request.Context(), CurrentUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL_ERROR", "error": err.Error()})
		return
	}
	out := make([]connectionView, 0, len(conns))
	for _, cn := range conns {
		out = append(out, connectionView{
			ID: cn.ID, ExchangeType: cn.ExchangeType, Name: cn.Name,
			Testnet: cn.Testnet, IsActive: cn.IsActive, CreatedAt: cn.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"connections": out})
}

func (s *Server) createConnection(c *gin.Context) {
	var req struct {
		ExchangeType string `json:"exchange_type"`
		Name         string `json:"name"`
		APIKey       string `json:"api_key"`
		APISecret    string `json:"api_secret"`
		Testnet      bool   `json:"testnet"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_PAYLOAD", "error": "invalid request payload"})
		return
	}
	if req.APIKey == "" || req.APISecret == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": "MISSING_CREDENTIALS", "error": "api_key and api_secret are required"})
		return
	}
	if s.Keys == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": "ENCRYPTION_UNAVAILABLE", "error": "credential encryption is not configured"})
		return
	}

	keyEnc, err := s.Keys.Encrypt(req.APIKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL_ERROR", "error": "failed to protect credentials"})
		return
	}
	secretEnc, err := s.Keys.Encrypt(req.APISecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL_ERROR", "error": "failed to protect credentials"})
		return
	}

	userID := CurrentUserID(c)
	now := time.Now()
	conn := db.Connection{
		ID:                 uuid.NewString(),
		UserID:             userID,
		ExchangeType:       strings.ToLower(req.ExchangeType),
		Name:               req.Name,
		APIKeyEncrypted:    keyEnc,
		APISecretEncrypted: secretEnc,
		Testnet:            req.Testnet,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.DB.CreateConnection(c.Request.Context(), conn); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL_ERROR", "error": err.Error()})
		return
	}

	// Materialize the live adapter for routing right away.
	if s.LiveFactory != nil {
		s.Modes.SetLiveAdapter(userID, s.LiveFactory(req.APIKey, req.APISecret, req.Testnet))
	}

	c.JSON(http.StatusCreated, connectionView{
		ID: conn.ID, ExchangeType: conn.ExchangeType, Name: conn.Name,
		Testnet: conn.Testnet, IsActive: conn.IsActive, CreatedAt: conn.CreatedAt,
	})
}

func (s *Server) deactivateConnection(c *gin.Context) {
	userID := CurrentUserID(c)
	if err := s.DB.DeactivateConnection(c.Request.Context(), c.Param("id"), userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL_ERROR", "error": err.Error()})
		return
	}
	s.Modes.RemoveLiveAdapter(userID)
	c.JSON(http.StatusOK, gin.H{"status": "deactivated"})
}
