package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Listing is the most recent observation of one marketplace product. Identity
// is (marketplace, external_id); every accepted observation rewrites this row
// and appends a PriceHistoryEntry, so the row always mirrors the newest known
// state.
type Listing struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	Marketplace string `gorm:"type:varchar(50);not null;uniqueIndex:uq_listing_identity,priority:1"`
	ExternalID  string `gorm:"type:varchar(200);not null;uniqueIndex:uq_listing_identity,priority:2"`

	Title        string          `gorm:"type:text;not null"`
	Price        decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	ShippingCost decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	Currency     string          `gorm:"type:varchar(10);not null"`
	// StockLevel is nil when the marketplace does not expose stock.
	StockLevel *int   `gorm:"type:integer"`
	URL        string `gorm:"type:text"`

	ObservedAt time.Time `gorm:"type:timestamptz;not null;index"`
	CreatedAt  time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Listing) TableName() string {
	return "listings"
}

// Identity returns the immutable listing identity pair.
func (l Listing) Identity() ListingIdentity {
	return ListingIdentity{Marketplace: l.Marketplace, ExternalID: l.ExternalID}
}

// StockKnownZero reports whether stock is known and exhausted.
func (l Listing) StockKnownZero() bool {
	return l.StockLevel != nil && *l.StockLevel == 0
}

// ListingIdentity keys a listing across observations.
type ListingIdentity struct {
	Marketplace string
	ExternalID  string
}

func (id ListingIdentity) String() string {
	return id.Marketplace + ":" + id.ExternalID
}
