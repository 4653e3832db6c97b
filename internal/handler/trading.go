package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"banknifty/internal/client/upstox"
	"banknifty/internal/engine"
	"banknifty/internal/models"
	"banknifty/internal/service"
)

type TradingHandler struct {
	Engine *engine.Engine
	Trades *service.TradeService
	Feed   *upstox.Feed
}

func (h *TradingHandler) Register(r *gin.Engine) {
	trading := r.Group("/api/trading")
	trading.POST("/start", h.start)
	trading.POST("/stop", h.stop)
	trading.GET("/status", h.status)
	trading.GET("/price", h.price)

	trades := r.Group("/api/trades")
	trades.GET("/history", h.history)
	trades.GET("/pnl", h.pnl)
}

func (h *TradingHandler) start(c *gin.Context) {
	if h.Engine == nil {
		Error(c, http.StatusInternalServerError, "engine unavailable", nil)
		return
	}
	// An empty body means "use configured defaults".
	var settings engine.Settings
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&settings); err != nil {
			Error(c, http.StatusBadRequest, "invalid body", nil)
			return
		}
	}
	if err := h.Engine.StartTradingWithSettings(c.Request.Context(), settings); err != nil {
		if errors.Is(err, engine.ErrTradingInProgress) {
			Error(c, http.StatusConflict, "trading already in progress", nil)
			return
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"started": true}, nil)
}

func (h *TradingHandler) stop(c *gin.Context) {
	if h.Engine == nil {
		Error(c, http.StatusInternalServerError, "engine unavailable", nil)
		return
	}
	err := h.Engine.SquareOffAllPositions(c.Request.Context(), models.ExitReasonManualStop)
	if err != nil {
		if errors.Is(err, engine.ErrNoOpenPositions) {
			Error(c, http.StatusConflict, "no open positions", nil)
			return
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"stopped": true}, nil)
}

func (h *TradingHandler) status(c *gin.Context) {
	if h.Engine == nil {
		Error(c, http.StatusInternalServerError, "engine unavailable", nil)
		return
	}
	status, err := h.Engine.CurrentStatus(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, status, nil)
}

func (h *TradingHandler) price(c *gin.Context) {
	if h.Feed != nil {
		if tick := h.Feed.LastTick(); tick != nil {
			Ok(c, gin.H{
				"instrument": tick.Instrument,
				"price":      tick.Price,
				"change":     tick.Change,
				"at":         tick.At,
			}, nil)
			return
		}
	}
	if h.Engine != nil {
		if last := h.Engine.LastPrice(); !last.IsZero() {
			Ok(c, gin.H{"price": last}, nil)
			return
		}
	}
	Error(c, http.StatusServiceUnavailable, "no price received yet", nil)
}

func (h *TradingHandler) history(c *gin.Context) {
	if h.Trades == nil {
		Error(c, http.StatusInternalServerError, "trade service unavailable", nil)
		return
	}
	status := strings.TrimSpace(c.Query("status"))
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	items, err := h.Trades.History(c.Request.Context(), status, limit, offset)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

func (h *TradingHandler) pnl(c *gin.Context) {
	if h.Trades == nil {
		Error(c, http.StatusInternalServerError, "trade service unavailable", nil)
		return
	}
	daily, err := h.Trades.DailyPnL(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Trades.TotalPnL(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{
		"daily":       daily,
		"totalProfit": total.TotalProfit,
		"totalLoss":   total.TotalLoss,
		"netPnL":      total.NetPnL,
	}, nil)
}

func intQuery(c *gin.Context, key string, def int) int {
	if val := c.Query(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return def
}
