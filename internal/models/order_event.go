package models

import (
	"time"

	"gorm.io/datatypes"
)

// OrderEvent is an audit row for every broker order-status push received on
// the webhook, kept verbatim so reconciliation decisions can be replayed.
type OrderEvent struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement"`
	OrderID   string         `gorm:"type:varchar(50);not null;index"`
	Status    string         `gorm:"type:varchar(40);not null"`
	Payload   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"type:timestamptz;autoCreateTime"`
}

func (OrderEvent) TableName() string {
	return "order_events"
}
