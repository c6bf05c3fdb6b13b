package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	DriftPriceDrop     = "price_drop"
	DriftPriceRise     = "price_rise"
	DriftStockDepleted = "stock_depleted"
	DriftRestocked     = "restocked"
)

// DriftEvent records a meaningful change between two consecutive observations
// of the same listing identity. Price jitter below the configured noise
// threshold never produces one.
type DriftEvent struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	Marketplace string `gorm:"type:varchar(50);not null;index:idx_drift_identity,priority:1"`
	ExternalID  string `gorm:"type:varchar(200);not null;index:idx_drift_identity,priority:2"`

	Kind string `gorm:"type:varchar(20);not null;index"`
	// Magnitude is the absolute price delta for price events and the stock
	// delta for stock events.
	Magnitude decimal.Decimal `gorm:"type:numeric(20,6);not null"`

	PriorPrice decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	NewPrice   decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	PriorStock *int            `gorm:"type:integer"`
	NewStock   *int            `gorm:"type:integer"`

	ObservedAt time.Time `gorm:"type:timestamptz;not null;index"`
	CreatedAt  time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (DriftEvent) TableName() string {
	return "drift_events"
}
