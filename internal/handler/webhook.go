package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"banknifty/internal/reconciler"
)

// WebhookHandler receives the broker's order-status pushes. It always
// responds 200 on accepted payloads; the broker does not retry, so a
// reconciliation failure is logged rather than surfaced as an error status.
type WebhookHandler struct {
	Reconciler *reconciler.Reconciler
	Logger     *zap.Logger
}

func (h *WebhookHandler) Register(r *gin.Engine) {
	r.POST("/api/webhook/order-update", h.orderUpdate)
}

func (h *WebhookHandler) orderUpdate(c *gin.Context) {
	if h.Reconciler == nil {
		Error(c, http.StatusInternalServerError, "reconciler unavailable", nil)
		return
	}
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		Error(c, http.StatusBadRequest, "unreadable body", nil)
		return
	}
	if len(raw) == 0 {
		Error(c, http.StatusBadRequest, "empty body", nil)
		return
	}
	if err := h.Reconciler.Apply(c.Request.Context(), raw); err != nil {
		if h.Logger != nil {
			h.Logger.Error("order update reconciliation failed", zap.Error(err))
		}
	}
	Ok(c, gin.H{"received": true}, nil)
}
