package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"banknifty/internal/engine"
	"banknifty/internal/models"
	"banknifty/internal/repository"
)

// Update is one broker order-status push, as delivered on the webhook. The
// broker's payload carries more fields; these are the ones reconciliation
// acts on.
type Update struct {
	OrderID         string          `json:"order_id"`
	Status          string          `json:"status"`
	StatusMessage   string          `json:"status_message"`
	AveragePrice    decimal.Decimal `json:"average_price"`
	FilledQuantity  int             `json:"filled_quantity"`
	InstrumentToken string          `json:"instrument_token"`
}

// Reconciler applies broker order updates to the trade store. Pushes for
// unknown orders or with unknown statuses are recorded and ignored; the
// webhook must never bounce a delivery the broker will not retry.
type Reconciler struct {
	repo     repository.Repository
	notifier *engine.Notifier
	log      *zap.Logger
}

func New(repo repository.Repository, notifier *engine.Notifier, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{repo: repo, notifier: notifier, log: log}
}

// Apply records the raw push and transitions the matching trade:
//
//	complete                     -> OPEN, stamped with fill price and quantity
//	cancelled / rejected         -> FAILED, so the stop-loss loop skips it
//	open / pending variants      -> stays PENDING
//
// Everything else is logged and left alone.
func (r *Reconciler) Apply(ctx context.Context, raw []byte) error {
	var update Update
	if err := json.Unmarshal(raw, &update); err != nil {
		return fmt.Errorf("decode order update: %w", err)
	}
	if update.OrderID == "" {
		return fmt.Errorf("order update missing order_id")
	}

	if err := r.repo.InsertOrderEvent(ctx, &models.OrderEvent{
		OrderID: update.OrderID,
		Status:  update.Status,
		Payload: raw,
	}); err != nil {
		r.log.Error("order event audit insert failed",
			zap.String("order_id", update.OrderID),
			zap.Error(err),
		)
	}

	trade, err := r.repo.GetTradeByOrderID(ctx, update.OrderID)
	if err != nil {
		return fmt.Errorf("lookup trade by order id: %w", err)
	}
	if trade == nil {
		r.log.Warn("order update for unknown order",
			zap.String("order_id", update.OrderID),
			zap.String("status", update.Status),
		)
		return nil
	}

	status := strings.ToLower(strings.TrimSpace(update.Status))
	switch {
	case status == "complete":
		if err := r.repo.MarkTradeOpen(ctx, trade.ID, update.AveragePrice, update.FilledQuantity); err != nil {
			return fmt.Errorf("mark trade open: %w", err)
		}
		r.log.Info("order filled",
			zap.Uint64("trade_id", trade.ID),
			zap.String("order_id", update.OrderID),
			zap.String("average_price", update.AveragePrice.String()),
			zap.Int("filled_quantity", update.FilledQuantity),
		)
		r.publish("ORDER_FILLED", trade, update.AveragePrice, "")

	case status == "cancelled" || status == "rejected" ||
		strings.Contains(status, "cancelled after market order"):
		reason := update.StatusMessage
		if reason == "" {
			reason = update.Status
		}
		if err := r.repo.MarkTradeFailed(ctx, trade.ID, reason); err != nil {
			return fmt.Errorf("mark trade failed: %w", err)
		}
		r.log.Warn("order failed",
			zap.Uint64("trade_id", trade.ID),
			zap.String("order_id", update.OrderID),
			zap.String("status", update.Status),
			zap.String("reason", reason),
		)
		r.publish("ORDER_FAILED", trade, trade.EntryPrice, reason)

	case status == "open" || status == "pending" ||
		status == "trigger pending" || status == "after market order req received":
		if err := r.repo.MarkTradePending(ctx, trade.ID); err != nil {
			return fmt.Errorf("mark trade pending: %w", err)
		}

	default:
		r.log.Warn("order update with unhandled status",
			zap.String("order_id", update.OrderID),
			zap.String("status", update.Status),
		)
	}
	return nil
}

func (r *Reconciler) publish(event string, trade *models.Trade, price decimal.Decimal, reason string) {
	if r.notifier == nil {
		return
	}
	r.notifier.Publish(engine.OrderUpdate{
		Status:     event,
		Instrument: trade.InstrumentToken,
		Price:      price,
		LegType:    trade.TradeType,
		Reason:     reason,
	})
}
