package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade leg types. CALL is the bullish leg, PUT the bearish one.
const (
	TradeTypeCall = "CALL"
	TradeTypePut  = "PUT"
)

// Trade lifecycle statuses. PENDING and FAILED are only ever set by the
// order reconciler; the price-driven path moves OPEN to CLOSED.
const (
	TradeStatusPending    = "PENDING"
	TradeStatusOpen       = "OPEN"
	TradeStatusClosed     = "CLOSED"
	TradeStatusFailed     = "FAILED"
	TradeStatusSquaredOff = "SQUARED_OFF"
)

// Exit reasons recorded when a trade leaves OPEN.
const (
	ExitReasonStopLoss   = "SL_HIT"
	ExitReasonManualStop = "MANUAL_STOP"
	ExitReasonTargetHit  = "TARGET_HIT"
)

// Trade is one opened leg of the two-directional strategy. Re-entries link
// back to the stopped-out trade through ParentTradeID, forming a tree per
// (day, leg type).
type Trade struct {
	ID      uint64  `gorm:"primaryKey;autoIncrement"`
	OrderID *string `gorm:"type:varchar(50);index"` // broker order id; absent until placement acks

	InstrumentToken string `gorm:"type:varchar(100);not null;index"`
	TradeType       string `gorm:"type:varchar(10);not null;index"`
	EntryStrike     int    `gorm:"not null"`

	EntryPrice decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	StopLoss   decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	Quantity   int             `gorm:"not null"`

	Status         string           `gorm:"type:varchar(20);not null;index"`
	AveragePrice   *decimal.Decimal `gorm:"type:numeric(10,2)"`
	FilledQuantity *int
	ProfitLoss     *decimal.Decimal `gorm:"type:numeric(10,2)"`

	EntryTime  time.Time        `gorm:"type:timestamptz;not null"`
	ExitTime   *time.Time       `gorm:"type:timestamptz"`
	ExitPrice  *decimal.Decimal `gorm:"type:numeric(10,2)"`
	ExitReason *string          `gorm:"type:varchar(20)"`

	ExecutionCount int     `gorm:"not null;default:1"`
	ParentTradeID  *uint64 `gorm:"index"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Trade) TableName() string {
	return "trades"
}

// Direction returns +1 for CALL and -1 for PUT, the sign applied to
// (exit - entry) when computing realized PnL.
func (t Trade) Direction() int64 {
	if t.TradeType == TradeTypePut {
		return -1
	}
	return 1
}
