package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	OpportunityCandidate = "candidate"
	OpportunityActive    = "active"
	OpportunityExpired   = "expired"
	OpportunityRejected  = "rejected"
)

// Opportunity is a buy/sell pairing between a source (buy) listing and a
// target (sell) listing. The pair identity is the dedup key: re-detections of
// the same pair merge into the existing row.
type Opportunity struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	SourceMarketplace string `gorm:"type:varchar(50);not null;uniqueIndex:uq_opportunity_pair,priority:1"`
	SourceExternalID  string `gorm:"type:varchar(200);not null;uniqueIndex:uq_opportunity_pair,priority:2"`
	TargetMarketplace string `gorm:"type:varchar(50);not null;uniqueIndex:uq_opportunity_pair,priority:3"`
	TargetExternalID  string `gorm:"type:varchar(200);not null;uniqueIndex:uq_opportunity_pair,priority:4"`

	Status string `gorm:"type:varchar(20);not null;index;default:'candidate'"`

	// Margins are denominated in the target marketplace currency.
	Currency    string          `gorm:"type:varchar(10);not null"`
	GrossMargin decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	NetMargin   decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	MarginRatio decimal.Decimal `gorm:"type:numeric(20,10);not null"`

	SourcePrice decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	TargetPrice decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	Confidence  float64         `gorm:"not null"`

	// Breakdown carries the fee components and landed cost that produced
	// NetMargin, for display and audit.
	Breakdown datatypes.JSON `gorm:"type:jsonb"`

	DetectionRunID *string    `gorm:"type:uuid;index"`
	EvaluatedAt    time.Time  `gorm:"type:timestamptz;not null"`
	ExpiredAt      *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Opportunity) TableName() string {
	return "opportunities"
}

// PairKey is the dedup key for upserts and per-pair locking.
func (o Opportunity) PairKey() OpportunityPair {
	return OpportunityPair{
		Source: ListingIdentity{Marketplace: o.SourceMarketplace, ExternalID: o.SourceExternalID},
		Target: ListingIdentity{Marketplace: o.TargetMarketplace, ExternalID: o.TargetExternalID},
	}
}

type OpportunityPair struct {
	Source ListingIdentity
	Target ListingIdentity
}

func (p OpportunityPair) String() string {
	return p.Source.String() + "->" + p.Target.String()
}
