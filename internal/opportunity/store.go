package opportunity

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"arbtrack/internal/models"
	"arbtrack/internal/repository"
)

const lockStripes = 64

// Repo is the slice of the persistence surface the store needs.
type Repo interface {
	InTx(ctx context.Context, fn func(tx repository.Repository) error) error
	GetOpportunityByID(ctx context.Context, id uint64) (*models.Opportunity, error)
	GetOpportunityByPair(ctx context.Context, pair models.OpportunityPair) (*models.Opportunity, error)
	InsertOpportunity(ctx context.Context, item *models.Opportunity) error
	UpdateOpportunity(ctx context.Context, id uint64, updates map[string]any) error
	ListOpenOpportunitiesByListing(ctx context.Context, id models.ListingIdentity) ([]models.Opportunity, error)
	ExpireOpportunitiesEvaluatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// InvalidTransitionError rejects a status change the lifecycle does not allow.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid opportunity transition %s -> %s", e.From, e.To)
}

// NotFoundError marks a lookup of an opportunity id that does not exist.
type NotFoundError struct {
	ID uint64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("opportunity %d not found", e.ID)
}

// Store owns the opportunity lifecycle. All writes for one pair serialize
// through a striped mutex so concurrent detection passes and re-evaluations
// can not interleave on the same row.
type Store struct {
	repo  Repo
	log   *zap.Logger
	locks [lockStripes]sync.Mutex
}

func New(repo Repo, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{repo: repo, log: log}
}

func (s *Store) lockFor(pair models.OpportunityPair) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(pair.String()))
	return &s.locks[h.Sum32()%lockStripes]
}

// Upsert folds one detection result into the table, keyed by the pair
// identity. Re-detections refresh the metrics in place; a second detection
// promotes a candidate to active; expired and rejected rows keep their status
// and only pick up fresh numbers. created reports whether a new row was
// inserted. The same detection applied twice leaves exactly one row.
//
// The read-then-write runs inside one transaction so concurrent passes from
// another process can not race it; the striped mutex serializes writers
// within this process.
func (s *Store) Upsert(ctx context.Context, opp models.Opportunity) (models.Opportunity, bool, error) {
	mu := s.lockFor(opp.PairKey())
	mu.Lock()
	defer mu.Unlock()

	var (
		merged  models.Opportunity
		created bool
	)
	err := s.repo.InTx(ctx, func(tx repository.Repository) error {
		existing, err := tx.GetOpportunityByPair(ctx, opp.PairKey())
		if err != nil {
			return err
		}

		if existing == nil {
			opp.Status = models.OpportunityCandidate
			if err := tx.InsertOpportunity(ctx, &opp); err != nil {
				return err
			}
			merged, created = opp, true
			return nil
		}

		status := existing.Status
		if status == models.OpportunityCandidate {
			status = models.OpportunityActive
		}

		updates := map[string]any{
			"status":           status,
			"currency":         opp.Currency,
			"gross_margin":     opp.GrossMargin,
			"net_margin":       opp.NetMargin,
			"margin_ratio":     opp.MarginRatio,
			"source_price":     opp.SourcePrice,
			"target_price":     opp.TargetPrice,
			"confidence":       opp.Confidence,
			"breakdown":        opp.Breakdown,
			"detection_run_id": opp.DetectionRunID,
			"evaluated_at":     opp.EvaluatedAt,
		}
		if err := tx.UpdateOpportunity(ctx, existing.ID, updates); err != nil {
			return err
		}

		merged = *existing
		merged.Status = status
		merged.Currency = opp.Currency
		merged.GrossMargin = opp.GrossMargin
		merged.NetMargin = opp.NetMargin
		merged.MarginRatio = opp.MarginRatio
		merged.SourcePrice = opp.SourcePrice
		merged.TargetPrice = opp.TargetPrice
		merged.Confidence = opp.Confidence
		merged.Breakdown = opp.Breakdown
		merged.DetectionRunID = opp.DetectionRunID
		merged.EvaluatedAt = opp.EvaluatedAt
		return nil
	})
	if err != nil {
		return models.Opportunity{}, false, err
	}
	return merged, created, nil
}

// Reject is the manual kill switch. A rejected pair never comes back through
// detection, only through Reactivate.
func (s *Store) Reject(ctx context.Context, id uint64) (*models.Opportunity, error) {
	return s.transition(ctx, id, models.OpportunityRejected, func(from string) bool {
		return from != models.OpportunityRejected
	})
}

// Reactivate is the manual override back to candidate, allowed from rejected
// and expired rows.
func (s *Store) Reactivate(ctx context.Context, id uint64) (*models.Opportunity, error) {
	return s.transition(ctx, id, models.OpportunityCandidate, func(from string) bool {
		return from == models.OpportunityRejected || from == models.OpportunityExpired
	})
}

func (s *Store) transition(ctx context.Context, id uint64, to string, allowed func(from string) bool) (*models.Opportunity, error) {
	existing, err := s.repo.GetOpportunityByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, &NotFoundError{ID: id}
	}

	mu := s.lockFor(existing.PairKey())
	mu.Lock()
	defer mu.Unlock()

	err = s.repo.InTx(ctx, func(tx repository.Repository) error {
		// Re-read inside the transaction; the row may have moved.
		existing, err = tx.GetOpportunityByID(ctx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return &NotFoundError{ID: id}
		}
		if !allowed(existing.Status) {
			return &InvalidTransitionError{From: existing.Status, To: to}
		}

		updates := map[string]any{"status": to}
		if to == models.OpportunityCandidate {
			updates["expired_at"] = nil
		}
		return tx.UpdateOpportunity(ctx, id, updates)
	})
	if err != nil {
		return nil, err
	}
	existing.Status = to
	if to == models.OpportunityCandidate {
		existing.ExpiredAt = nil
	}
	return existing, nil
}

// Evaluator re-scores one stored opportunity against current listing state.
// ok is false when the pair no longer qualifies.
type Evaluator func(ctx context.Context, opp models.Opportunity) (models.Opportunity, bool, error)

// Reevaluate re-scores every open opportunity touching a listing identity,
// typically right after a drift event on that listing. Pairs that stopped
// qualifying expire; pairs that still qualify get fresh metrics. One failing
// pair is logged and skipped, the rest proceed.
func (s *Store) Reevaluate(ctx context.Context, id models.ListingIdentity, evaluate Evaluator, now time.Time) (expired, refreshed int, err error) {
	open, err := s.repo.ListOpenOpportunitiesByListing(ctx, id)
	if err != nil {
		return 0, 0, err
	}

	for _, opp := range open {
		mu := s.lockFor(opp.PairKey())
		mu.Lock()

		updated, ok, evalErr := evaluate(ctx, opp)
		if evalErr != nil {
			mu.Unlock()
			s.log.Warn("re-evaluation failed",
				zap.String("pair", opp.PairKey().String()),
				zap.Error(evalErr))
			continue
		}

		if !ok {
			at := now.UTC()
			evalErr = s.repo.UpdateOpportunity(ctx, opp.ID, map[string]any{
				"status":       models.OpportunityExpired,
				"expired_at":   &at,
				"evaluated_at": at,
			})
			if evalErr == nil {
				expired++
			}
		} else {
			evalErr = s.repo.UpdateOpportunity(ctx, opp.ID, map[string]any{
				"gross_margin": updated.GrossMargin,
				"net_margin":   updated.NetMargin,
				"margin_ratio": updated.MarginRatio,
				"source_price": updated.SourcePrice,
				"target_price": updated.TargetPrice,
				"confidence":   updated.Confidence,
				"breakdown":    updated.Breakdown,
				"evaluated_at": now.UTC(),
			})
			if evalErr == nil {
				refreshed++
			}
		}
		mu.Unlock()
		if evalErr != nil {
			s.log.Warn("re-evaluation write failed",
				zap.String("pair", opp.PairKey().String()),
				zap.Error(evalErr))
		}
	}
	return expired, refreshed, nil
}

// ExpireStale expires every open opportunity not re-confirmed since cutoff.
func (s *Store) ExpireStale(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.repo.ExpireOpportunitiesEvaluatedBefore(ctx, cutoff)
}
