package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceHistoryEntry is one point in a listing's drift timeline. Append-only;
// rows are never updated once written.
type PriceHistoryEntry struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	Marketplace string `gorm:"type:varchar(50);not null;index:idx_history_identity,priority:1"`
	ExternalID  string `gorm:"type:varchar(200);not null;index:idx_history_identity,priority:2"`

	Price        decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	ShippingCost decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	Currency     string          `gorm:"type:varchar(10);not null"`
	StockLevel   *int            `gorm:"type:integer"`

	ObservedAt time.Time `gorm:"type:timestamptz;not null;index"`
	CreatedAt  time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (PriceHistoryEntry) TableName() string {
	return "price_history"
}
