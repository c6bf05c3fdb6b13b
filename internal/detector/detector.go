package detector

import (
	"encoding/json"
	"errors"
	"iter"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"arbtrack/internal/config"
	"arbtrack/internal/fees"
	"arbtrack/internal/models"
)

// Stats is the accounting for one pass over a candidate set. StaleRates
// counts pairs dropped because the pinned snapshot could not convert their
// currencies.
type Stats struct {
	Considered int
	Qualified  int
	Skipped    int
	StaleRates int
}

// breakdown is the audit payload stored alongside each opportunity.
type breakdown struct {
	LandedCost      decimal.Decimal `json:"landed_cost"`
	FeeTotal        decimal.Decimal `json:"fee_total"`
	FeeLines        []fees.FeeLine  `json:"fee_lines"`
	ScheduleVersion string          `json:"schedule_version"`
	RateSnapshotID  string          `json:"rate_snapshot_id,omitempty"`
}

// Detector pairs source (buy) listings with target (sell) listings and keeps
// the pairings whose net margin clears both configured thresholds.
type Detector struct {
	fees *fees.Model
	cfg  config.DetectorConfig
}

func New(model *fees.Model, cfg config.DetectorConfig) *Detector {
	return &Detector{fees: model, cfg: cfg}
}

// Detect evaluates every source/target pairing against the pinned snapshot.
// The result sequence is sorted best-first (net margin, then confidence, then
// cheaper source) and can be ranged over any number of times; re-running the
// same inputs yields the same sequence. A pair that fails to evaluate is
// skipped and counted, it never aborts the pass.
func (d *Detector) Detect(sources, targets []models.Listing, snapshot fees.RateSnapshot, now time.Time) (iter.Seq[models.Opportunity], Stats) {
	var stats Stats
	var out []models.Opportunity

	for _, src := range sources {
		for _, tgt := range targets {
			if !d.eligible(src, tgt) {
				continue
			}
			stats.Considered++
			opp, ok, err := d.evaluate(src, tgt, snapshot, now)
			if err != nil {
				var stale *fees.StaleRateError
				if errors.As(err, &stale) {
					stats.StaleRates++
				}
				stats.Skipped++
				continue
			}
			if !ok {
				stats.Skipped++
				continue
			}
			stats.Qualified++
			out = append(out, opp)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.NetMargin.Equal(b.NetMargin) {
			return a.NetMargin.GreaterThan(b.NetMargin)
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if !a.SourcePrice.Equal(b.SourcePrice) {
			return a.SourcePrice.LessThan(b.SourcePrice)
		}
		return a.PairKey().String() < b.PairKey().String()
	})

	seq := func(yield func(models.Opportunity) bool) {
		for _, opp := range out {
			if !yield(opp) {
				return
			}
		}
	}
	return seq, stats
}

// EvaluatePair re-scores one pairing outside a full pass, with the same
// eligibility and threshold rules. ok is false when the pair no longer
// qualifies.
func (d *Detector) EvaluatePair(src, tgt models.Listing, snapshot fees.RateSnapshot, now time.Time) (models.Opportunity, bool, error) {
	if !d.eligible(src, tgt) {
		return models.Opportunity{}, false, nil
	}
	return d.evaluate(src, tgt, snapshot, now)
}

// eligible is the cheap pre-filter applied before any margin math.
func (d *Detector) eligible(src, tgt models.Listing) bool {
	// Self-pairing is forbidden; two distinct listings on the same
	// marketplace are a valid pairing.
	if src.Identity() == tgt.Identity() {
		return false
	}
	if src.StockKnownZero() || tgt.StockKnownZero() {
		return false
	}
	if d.cfg.MaxSourcePrice > 0 {
		maxPrice := decimal.NewFromFloat(d.cfg.MaxSourcePrice)
		if src.Price.Add(src.ShippingCost).GreaterThan(maxPrice) {
			return false
		}
	}
	return true
}

func (d *Detector) evaluate(src, tgt models.Listing, snapshot fees.RateSnapshot, now time.Time) (models.Opportunity, bool, error) {
	confidence := d.confidence(src, now) * d.confidence(tgt, now)
	if confidence <= 0 {
		return models.Opportunity{}, false, nil
	}

	// A zero-cost source listing is valid; a non-positive sale price is not.
	if !tgt.Price.IsPositive() {
		return models.Opportunity{}, false, nil
	}

	landed, err := fees.LandedCost(src, tgt.Currency, snapshot)
	if err != nil {
		return models.Opportunity{}, false, err
	}

	feeTotal, feeLines, err := d.fees.MarketplaceFee(tgt.Marketplace, tgt.Price)
	if err != nil {
		return models.Opportunity{}, false, err
	}

	gross := tgt.Price.Sub(landed)
	net := gross.Sub(feeTotal)
	// Margin ratio is the seller's take as a share of the sale price.
	ratio := net.Div(tgt.Price)

	// Both thresholds are inclusive: a margin exactly at the bound qualifies.
	if net.LessThan(decimal.NewFromFloat(d.cfg.MinMarginAbsolute)) {
		return models.Opportunity{}, false, nil
	}
	if ratio.LessThan(decimal.NewFromFloat(d.cfg.MinMarginRatio)) {
		return models.Opportunity{}, false, nil
	}

	schedule, err := d.fees.ScheduleFor(tgt.Marketplace)
	if err != nil {
		return models.Opportunity{}, false, err
	}
	audit, err := json.Marshal(breakdown{
		LandedCost:      landed,
		FeeTotal:        feeTotal,
		FeeLines:        feeLines,
		ScheduleVersion: schedule.Version,
		RateSnapshotID:  snapshot.ID,
	})
	if err != nil {
		return models.Opportunity{}, false, err
	}

	return models.Opportunity{
		SourceMarketplace: src.Marketplace,
		SourceExternalID:  src.ExternalID,
		TargetMarketplace: tgt.Marketplace,
		TargetExternalID:  tgt.ExternalID,
		Status:            models.OpportunityCandidate,
		Currency:          tgt.Currency,
		GrossMargin:       gross,
		NetMargin:         net,
		MarginRatio:       ratio,
		SourcePrice:       src.Price,
		TargetPrice:       tgt.Price,
		Confidence:        confidence,
		Breakdown:         datatypes.JSON(audit),
		EvaluatedAt:       now.UTC(),
	}, true, nil
}

// confidence scores one listing: freshness decays linearly to zero across the
// staleness window, and unknown stock discounts by the configured factor.
func (d *Detector) confidence(l models.Listing, now time.Time) float64 {
	fresh := 1.0
	if d.cfg.StalenessWindow > 0 {
		age := now.Sub(l.ObservedAt)
		fresh = 1 - float64(age)/float64(d.cfg.StalenessWindow)
		if fresh < 0 {
			fresh = 0
		} else if fresh > 1 {
			fresh = 1
		}
	}
	if l.StockLevel == nil && d.cfg.UnknownStockFactor > 0 {
		fresh *= d.cfg.UnknownStockFactor
	}
	return fresh
}
