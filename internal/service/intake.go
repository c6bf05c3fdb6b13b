package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"arbtrack/internal/detector"
	"arbtrack/internal/drift"
	"arbtrack/internal/marketplace"
	"arbtrack/internal/models"
	"arbtrack/internal/opportunity"
	"arbtrack/internal/publisher"
	"arbtrack/internal/repository"
)

// IntakeService is the write path for observations: normalize, fold into the
// drift tracker, and re-score any open opportunity the change touches.
type IntakeService struct {
	Repo          repository.Repository
	Normalizer    *marketplace.Normalizer
	Tracker       *drift.Tracker
	Rates         *RateSyncService
	Detector      *detector.Detector
	Opportunities *opportunity.Store
	Publisher     *publisher.Publisher
	Logger        *zap.Logger
}

// IntakeResult accounts for one observation batch.
type IntakeResult struct {
	Accepted  int `json:"accepted"`
	Discarded int `json:"discarded"`
	Rejected  int `json:"rejected"`
	Events    int `json:"events"`
	Expired   int `json:"expired"`
	Refreshed int `json:"refreshed"`
}

// IngestBatch processes one batch of raw payloads for a marketplace. Items
// are independent: a malformed payload is counted and skipped, never failing
// the batch. Observations older than the stored state are discarded, so a
// replayed batch converges to the same final state.
func (s *IntakeService) IngestBatch(ctx context.Context, marketplaceCode string, payloads []json.RawMessage) (IntakeResult, error) {
	var result IntakeResult
	now := time.Now()

	for _, raw := range payloads {
		obs, err := s.Normalizer.Normalize(raw, marketplaceCode, now)
		if err != nil {
			result.Rejected++
			s.Logger.Warn("observation rejected",
				zap.String("marketplace", marketplaceCode),
				zap.Error(err))
			continue
		}

		event, accepted, err := s.Tracker.RecordObservation(ctx, obs)
		if err != nil {
			result.Rejected++
			s.Logger.Warn("observation write failed",
				zap.String("listing", obs.Identity().String()),
				zap.Error(err))
			continue
		}
		if !accepted {
			result.Discarded++
			continue
		}
		result.Accepted++

		if event == nil {
			continue
		}
		result.Events++
		s.Publisher.PublishDrift(ctx, event)

		expired, refreshed, err := s.reevaluate(ctx, obs.Identity(), now)
		if err != nil {
			s.Logger.Warn("re-evaluation skipped",
				zap.String("listing", obs.Identity().String()),
				zap.Error(err))
			continue
		}
		result.Expired += expired
		result.Refreshed += refreshed
	}
	return result, nil
}

// reevaluate re-scores the open opportunities touching one listing identity
// against current listing state and the pinned snapshot.
func (s *IntakeService) reevaluate(ctx context.Context, id models.ListingIdentity, now time.Time) (int, int, error) {
	snapshot, _, err := s.Rates.PinnedSnapshot(ctx, now)
	if err != nil {
		return 0, 0, err
	}

	evaluate := func(ctx context.Context, opp models.Opportunity) (models.Opportunity, bool, error) {
		pair := opp.PairKey()
		src, err := s.Repo.GetListing(ctx, pair.Source)
		if err != nil {
			return models.Opportunity{}, false, err
		}
		tgt, err := s.Repo.GetListing(ctx, pair.Target)
		if err != nil {
			return models.Opportunity{}, false, err
		}
		if src == nil || tgt == nil {
			return models.Opportunity{}, false, nil
		}
		return s.Detector.EvaluatePair(*src, *tgt, snapshot, now)
	}

	return s.Opportunities.Reevaluate(ctx, id, evaluate, now)
}
