package models

import (
	"time"

	"gorm.io/datatypes"
)

// RateSnapshot is one pinned exchange-rate table. A detection pass loads
// exactly one snapshot up front; rates are never refreshed mid-pass.
type RateSnapshot struct {
	ID        string         `gorm:"primaryKey;type:uuid"`
	Base      string         `gorm:"type:varchar(10);not null"`
	Rates     datatypes.JSON `gorm:"type:jsonb;not null"`
	FetchedAt time.Time      `gorm:"type:timestamptz;not null;index"`
	CreatedAt time.Time      `gorm:"type:timestamptz;autoCreateTime"`
}

func (RateSnapshot) TableName() string {
	return "rate_snapshots"
}
