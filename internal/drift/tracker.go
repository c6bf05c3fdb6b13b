package drift

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"arbtrack/internal/config"
	"arbtrack/internal/models"
)

// Repo is the slice of the persistence surface the tracker needs.
type Repo interface {
	GetListing(ctx context.Context, id models.ListingIdentity) (*models.Listing, error)
	UpsertListing(ctx context.Context, item *models.Listing) error
	InsertPriceHistory(ctx context.Context, item *models.PriceHistoryEntry) error
	InsertDriftEvent(ctx context.Context, item *models.DriftEvent) error
}

// Tracker applies accepted observations to the listing table, appends the
// drift timeline and emits events for meaningful changes.
type Tracker struct {
	repo Repo
	cfg  config.DriftConfig
	log  *zap.Logger
}

func New(repo Repo, cfg config.DriftConfig, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{repo: repo, cfg: cfg, log: log}
}

// RecordObservation folds one observation into the listing's state. The
// returned event is nil when the change was first-sight, pure noise or only a
// metadata refresh. accepted reports whether the observation advanced the
// listing at all: anything not newer than the stored observation is discarded,
// which makes replays and out-of-order delivery harmless.
func (t *Tracker) RecordObservation(ctx context.Context, obs models.Listing) (event *models.DriftEvent, accepted bool, err error) {
	current, err := t.repo.GetListing(ctx, obs.Identity())
	if err != nil {
		return nil, false, err
	}

	if current != nil && !obs.ObservedAt.After(current.ObservedAt) {
		t.log.Debug("discarding stale observation",
			zap.String("listing", obs.Identity().String()),
			zap.Time("observed_at", obs.ObservedAt),
			zap.Time("latest", current.ObservedAt))
		return nil, false, nil
	}

	if current != nil {
		event = t.classify(*current, obs)
	}

	if err := t.repo.UpsertListing(ctx, &obs); err != nil {
		return nil, false, err
	}
	if err := t.repo.InsertPriceHistory(ctx, &models.PriceHistoryEntry{
		Marketplace:  obs.Marketplace,
		ExternalID:   obs.ExternalID,
		Price:        obs.Price,
		ShippingCost: obs.ShippingCost,
		Currency:     obs.Currency,
		StockLevel:   obs.StockLevel,
		ObservedAt:   obs.ObservedAt,
	}); err != nil {
		return nil, false, err
	}
	if event != nil {
		if err := t.repo.InsertDriftEvent(ctx, event); err != nil {
			return nil, false, err
		}
	}
	return event, true, nil
}

// classify compares two consecutive observations. Stock exhaustion and
// restock outrank price movement; at most one event comes out of a single
// observation.
func (t *Tracker) classify(prior, next models.Listing) *models.DriftEvent {
	base := models.DriftEvent{
		Marketplace: next.Marketplace,
		ExternalID:  next.ExternalID,
		PriorPrice:  prior.Price,
		NewPrice:    next.Price,
		PriorStock:  prior.StockLevel,
		NewStock:    next.StockLevel,
		ObservedAt:  next.ObservedAt,
	}

	if !prior.StockKnownZero() && next.StockKnownZero() {
		base.Kind = models.DriftStockDepleted
		base.Magnitude = stockDelta(prior.StockLevel, next.StockLevel)
		return &base
	}
	if prior.StockKnownZero() && next.StockLevel != nil && *next.StockLevel > 0 {
		base.Kind = models.DriftRestocked
		base.Magnitude = stockDelta(prior.StockLevel, next.StockLevel)
		return &base
	}

	delta := next.Price.Sub(prior.Price)
	if delta.IsZero() || !t.significant(prior.Price, delta) {
		return nil
	}
	base.Magnitude = delta.Abs()
	if delta.IsNegative() {
		base.Kind = models.DriftPriceDrop
	} else {
		base.Kind = models.DriftPriceRise
	}
	return &base
}

// significant filters jitter: a move counts only when it clears both the
// absolute floor and the ratio of the prior price.
func (t *Tracker) significant(prior, delta decimal.Decimal) bool {
	abs := delta.Abs()
	if abs.LessThan(decimal.NewFromFloat(t.cfg.MinAbsDelta)) {
		return false
	}
	floor := prior.Abs().Mul(decimal.NewFromFloat(t.cfg.NoiseRatio))
	return abs.GreaterThanOrEqual(floor)
}

func stockDelta(prior, next *int) decimal.Decimal {
	p, n := 0, 0
	if prior != nil {
		p = *prior
	}
	if next != nil {
		n = *next
	}
	d := n - p
	if d < 0 {
		d = -d
	}
	return decimal.NewFromInt(int64(d))
}
