package models

import (
	"time"
)

// DailyExecutionCount tracks how many times a leg type has been executed on an
// exchange-local calendar day. Rows are created lazily on first execution and
// never reset; a new day is simply a new (date, trade_type) key.
type DailyExecutionCount struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	Date      string    `gorm:"type:date;not null;uniqueIndex:idx_daily_execution_counts_date_type"`
	TradeType string    `gorm:"type:varchar(10);not null;uniqueIndex:idx_daily_execution_counts_date_type"`
	Count     int       `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (DailyExecutionCount) TableName() string {
	return "daily_execution_counts"
}
