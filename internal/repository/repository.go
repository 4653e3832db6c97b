package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"banknifty/internal/models"
)

// CloseParams carries the terminal fields stamped onto a trade when it leaves
// OPEN through the square-off path.
type CloseParams struct {
	Status     string
	ExitPrice  decimal.Decimal
	ExitReason string
	ExitTime   time.Time
	ProfitLoss decimal.Decimal
}

// ListTradesParams filters the trade history listing.
type ListTradesParams struct {
	Status string
	Limit  int
	Offset int
}

// PnLSummary aggregates realized profit and loss over closed trades.
type PnLSummary struct {
	TotalProfit decimal.Decimal
	TotalLoss   decimal.Decimal
	NetPnL      decimal.Decimal
}

// Repository is the single guarded access path to the trade store and the
// daily execution quota. Every component that mutates a trade's status goes
// through it, so status transitions never interleave into a corrupted row.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Trades.
	CreateTrade(ctx context.Context, item *models.Trade) error
	GetTradeByID(ctx context.Context, id uint64) (*models.Trade, error)
	GetTradeByOrderID(ctx context.Context, orderID string) (*models.Trade, error)
	ListOpenTrades(ctx context.Context) ([]models.Trade, error)
	ListTrades(ctx context.Context, params ListTradesParams) ([]models.Trade, error)
	CountOpenTrades(ctx context.Context) (int64, error)
	HasActiveTrade(ctx context.Context, tradeType string) (bool, error)

	// CloseTrade transitions an OPEN trade to its terminal status. It reports
	// false without error when the trade was not OPEN, which makes repeated
	// square-offs of the same row a no-op.
	CloseTrade(ctx context.Context, id uint64, params CloseParams) (bool, error)

	// Reconciler transitions, keyed by broker order id.
	MarkTradeOpen(ctx context.Context, id uint64, avgPrice decimal.Decimal, filledQty int) error
	MarkTradeFailed(ctx context.Context, id uint64, reason string) error
	MarkTradePending(ctx context.Context, id uint64) error

	// PnL aggregates over closed trades.
	DailyPnL(ctx context.Context, since time.Time) (decimal.Decimal, error)
	TotalPnL(ctx context.Context) (PnLSummary, error)

	// Daily execution quota. Increment is atomic at the database: concurrent
	// calls for the same (date, trade_type) never lose an update.
	GetExecutionCount(ctx context.Context, date string, tradeType string) (int, error)
	IncrementExecutionCount(ctx context.Context, date string, tradeType string) (int, error)

	// Webhook audit.
	InsertOrderEvent(ctx context.Context, item *models.OrderEvent) error
}
