package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"arbtrack/internal/models"
)

// Repository is the single persistence surface for the engine. The gorm
// implementation lives in repository/gorm; tests use in-memory stubs.
type Repository interface {
	// InTx runs fn against a transaction-scoped repository. Read-then-write
	// sequences that must stay consistent across processes go through here.
	InTx(ctx context.Context, fn func(tx Repository) error) error

	// Listings (latest observation per identity).
	GetListing(ctx context.Context, id models.ListingIdentity) (*models.Listing, error)
	UpsertListing(ctx context.Context, item *models.Listing) error
	ListListings(ctx context.Context, params ListListingsParams) ([]models.Listing, error)
	CountListings(ctx context.Context, params ListListingsParams) (int64, error)
	ListListingsByMarketplaces(ctx context.Context, marketplaces []string, limit int) ([]models.Listing, error)

	// Price history (append-only).
	InsertPriceHistory(ctx context.Context, item *models.PriceHistoryEntry) error
	ListPriceHistory(ctx context.Context, params ListHistoryParams) ([]models.PriceHistoryEntry, error)
	DeletePriceHistoryBefore(ctx context.Context, before time.Time) (int64, error)

	// Drift events.
	InsertDriftEvent(ctx context.Context, item *models.DriftEvent) error
	ListDriftEvents(ctx context.Context, params ListDriftEventsParams) ([]models.DriftEvent, error)

	// Opportunities.
	GetOpportunityByID(ctx context.Context, id uint64) (*models.Opportunity, error)
	GetOpportunityByPair(ctx context.Context, pair models.OpportunityPair) (*models.Opportunity, error)
	InsertOpportunity(ctx context.Context, item *models.Opportunity) error
	UpdateOpportunity(ctx context.Context, id uint64, updates map[string]any) error
	UpdateOpportunityStatus(ctx context.Context, id uint64, status string) error
	ListOpportunities(ctx context.Context, params ListOpportunitiesParams) ([]models.Opportunity, error)
	CountOpportunities(ctx context.Context, params ListOpportunitiesParams) (int64, error)
	ListOpenOpportunitiesByListing(ctx context.Context, id models.ListingIdentity) ([]models.Opportunity, error)
	ExpireOpportunitiesEvaluatedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Exchange-rate snapshots.
	InsertRateSnapshot(ctx context.Context, item *models.RateSnapshot) error
	GetLatestRateSnapshot(ctx context.Context) (*models.RateSnapshot, error)

	// Detection run accounting.
	InsertDetectionRun(ctx context.Context, item *models.DetectionRun) error
	UpdateDetectionRun(ctx context.Context, id string, updates map[string]any) error
	ListDetectionRuns(ctx context.Context, params ListDetectionRunsParams) ([]models.DetectionRun, error)
}

type ListListingsParams struct {
	Limit       int
	Offset      int
	Marketplace *string
	OrderBy     string
	Asc         *bool
}

type ListHistoryParams struct {
	Marketplace string
	ExternalID  string
	Since       *time.Time
	Limit       int
	Offset      int
}

type ListDriftEventsParams struct {
	Limit       int
	Offset      int
	Kind        *string
	Marketplace *string
	Since       *time.Time
}

type ListOpportunitiesParams struct {
	Limit             int
	Offset            int
	Status            *string
	SourceMarketplace *string
	TargetMarketplace *string
	MinNetMargin      *decimal.Decimal
	MinConfidence     *float64
	OrderBy           string
	Asc               *bool
}

type ListDetectionRunsParams struct {
	Limit  int
	Offset int
	Status *string
}
