package opportunity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"arbtrack/internal/models"
	"arbtrack/internal/repository"
)

type stubRepo struct {
	repository.Repository
	nextID uint64
	rows   map[uint64]*models.Opportunity
	txs    int
}

func newStubRepo() *stubRepo {
	return &stubRepo{rows: make(map[uint64]*models.Opportunity)}
}

func (s *stubRepo) InTx(_ context.Context, fn func(tx repository.Repository) error) error {
	s.txs++
	return fn(s)
}

func (s *stubRepo) GetOpportunityByID(_ context.Context, id uint64) (*models.Opportunity, error) {
	row, ok := s.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (s *stubRepo) GetOpportunityByPair(_ context.Context, pair models.OpportunityPair) (*models.Opportunity, error) {
	for _, row := range s.rows {
		if row.PairKey() == pair {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) InsertOpportunity(_ context.Context, item *models.Opportunity) error {
	s.nextID++
	item.ID = s.nextID
	cp := *item
	s.rows[item.ID] = &cp
	return nil
}

func (s *stubRepo) UpdateOpportunity(_ context.Context, id uint64, updates map[string]any) error {
	row, ok := s.rows[id]
	if !ok {
		return errors.New("no such row")
	}
	for col, val := range updates {
		switch col {
		case "status":
			row.Status = val.(string)
		case "net_margin":
			row.NetMargin = val.(decimal.Decimal)
		case "gross_margin":
			row.GrossMargin = val.(decimal.Decimal)
		case "margin_ratio":
			row.MarginRatio = val.(decimal.Decimal)
		case "source_price":
			row.SourcePrice = val.(decimal.Decimal)
		case "target_price":
			row.TargetPrice = val.(decimal.Decimal)
		case "confidence":
			row.Confidence = val.(float64)
		case "evaluated_at":
			row.EvaluatedAt = val.(time.Time)
		case "expired_at":
			if val == nil {
				row.ExpiredAt = nil
			} else {
				row.ExpiredAt = val.(*time.Time)
			}
		}
	}
	return nil
}

func (s *stubRepo) ListOpenOpportunitiesByListing(_ context.Context, id models.ListingIdentity) ([]models.Opportunity, error) {
	var out []models.Opportunity
	for _, row := range s.rows {
		if row.Status != models.OpportunityCandidate && row.Status != models.OpportunityActive {
			continue
		}
		pair := row.PairKey()
		if pair.Source == id || pair.Target == id {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (s *stubRepo) ExpireOpportunitiesEvaluatedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for _, row := range s.rows {
		if row.Status != models.OpportunityCandidate && row.Status != models.OpportunityActive {
			continue
		}
		if row.EvaluatedAt.Before(cutoff) {
			row.Status = models.OpportunityExpired
			n++
		}
	}
	return n, nil
}

func detection(net float64, at time.Time) models.Opportunity {
	return models.Opportunity{
		SourceMarketplace: "aliexpress",
		SourceExternalID:  "X1",
		TargetMarketplace: "ebay",
		TargetExternalID:  "Y1",
		Status:            models.OpportunityCandidate,
		Currency:          "USD",
		NetMargin:         decimal.NewFromFloat(net),
		MarginRatio:       decimal.NewFromFloat(0.5),
		Confidence:        1,
		EvaluatedAt:       at,
	}
}

func TestUpsertDeduplicatesByPair(t *testing.T) {
	repo := newStubRepo()
	store := New(repo, nil)
	now := time.Now()

	first, created, err := store.Upsert(context.Background(), detection(10.5, now))
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if !created || first.Status != models.OpportunityCandidate {
		t.Fatalf("created=%v status=%s", created, first.Status)
	}

	// The same pair again merges into the existing row and confirms it.
	second, created, err := store.Upsert(context.Background(), detection(11.0, now.Add(time.Minute)))
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if created {
		t.Fatal("re-detection created a second row")
	}
	if second.ID != first.ID {
		t.Fatalf("merged into id %d, want %d", second.ID, first.ID)
	}
	if second.Status != models.OpportunityActive {
		t.Fatalf("status = %s, want active", second.Status)
	}
	if len(repo.rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(repo.rows))
	}
	if !repo.rows[first.ID].NetMargin.Equal(decimal.NewFromFloat(11.0)) {
		t.Fatalf("net margin = %s, want 11", repo.rows[first.ID].NetMargin)
	}
	// Each upsert reads and writes inside one repository transaction.
	if repo.txs != 2 {
		t.Fatalf("transactions = %d, want 2", repo.txs)
	}
}

func TestRejectedPairStaysRejectedThroughDetection(t *testing.T) {
	repo := newStubRepo()
	store := New(repo, nil)
	now := time.Now()

	first, _, err := store.Upsert(context.Background(), detection(10.5, now))
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := store.Reject(context.Background(), first.ID); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	merged, _, err := store.Upsert(context.Background(), detection(20, now.Add(time.Minute)))
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if merged.Status != models.OpportunityRejected {
		t.Fatalf("status = %s, detection resurrected a rejected pair", merged.Status)
	}
	if !merged.NetMargin.Equal(decimal.NewFromFloat(20)) {
		t.Fatalf("net margin = %s, metrics should still refresh", merged.NetMargin)
	}
}

func TestManualTransitions(t *testing.T) {
	repo := newStubRepo()
	store := New(repo, nil)
	now := time.Now()

	first, _, err := store.Upsert(context.Background(), detection(10.5, now))
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	rejected, err := store.Reject(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if rejected.Status != models.OpportunityRejected {
		t.Fatalf("status = %s", rejected.Status)
	}

	// Rejecting twice is invalid.
	_, err = store.Reject(context.Background(), first.ID)
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want InvalidTransitionError", err)
	}

	back, err := store.Reactivate(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("Reactivate: %v", err)
	}
	if back.Status != models.OpportunityCandidate {
		t.Fatalf("status = %s, want candidate", back.Status)
	}

	// Reactivating an open row is invalid.
	_, err = store.Reactivate(context.Background(), first.ID)
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want InvalidTransitionError", err)
	}

	_, err = store.Reject(context.Background(), 999)
	var missing *NotFoundError
	if !errors.As(err, &missing) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
}

func TestReevaluateExpiresDisqualifiedPairs(t *testing.T) {
	repo := newStubRepo()
	store := New(repo, nil)
	now := time.Now()

	first, _, err := store.Upsert(context.Background(), detection(10.5, now))
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	id := models.ListingIdentity{Marketplace: "ebay", ExternalID: "Y1"}
	evaluate := func(_ context.Context, _ models.Opportunity) (models.Opportunity, bool, error) {
		return models.Opportunity{}, false, nil
	}
	expired, refreshed, err := store.Reevaluate(context.Background(), id, evaluate, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Reevaluate: %v", err)
	}
	if expired != 1 || refreshed != 0 {
		t.Fatalf("expired=%d refreshed=%d", expired, refreshed)
	}
	row := repo.rows[first.ID]
	if row.Status != models.OpportunityExpired || row.ExpiredAt == nil {
		t.Fatalf("row = %+v", row)
	}

	// Expired rows are no longer open, so a second sweep touches nothing.
	expired, refreshed, err = store.Reevaluate(context.Background(), id, evaluate, now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("Reevaluate: %v", err)
	}
	if expired != 0 || refreshed != 0 {
		t.Fatalf("expired=%d refreshed=%d", expired, refreshed)
	}
}

func TestReevaluateRefreshesQualifiedPairs(t *testing.T) {
	repo := newStubRepo()
	store := New(repo, nil)
	now := time.Now()

	first, _, err := store.Upsert(context.Background(), detection(10.5, now))
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	evaluate := func(_ context.Context, opp models.Opportunity) (models.Opportunity, bool, error) {
		opp.NetMargin = decimal.NewFromFloat(7.25)
		return opp, true, nil
	}
	id := models.ListingIdentity{Marketplace: "aliexpress", ExternalID: "X1"}
	expired, refreshed, err := store.Reevaluate(context.Background(), id, evaluate, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Reevaluate: %v", err)
	}
	if expired != 0 || refreshed != 1 {
		t.Fatalf("expired=%d refreshed=%d", expired, refreshed)
	}
	row := repo.rows[first.ID]
	if !row.NetMargin.Equal(decimal.NewFromFloat(7.25)) {
		t.Fatalf("net margin = %s, want 7.25", row.NetMargin)
	}
	if row.Status != models.OpportunityCandidate {
		t.Fatalf("status = %s, refresh must not change status", row.Status)
	}
}

func TestExpireStale(t *testing.T) {
	repo := newStubRepo()
	store := New(repo, nil)
	now := time.Now()

	if _, _, err := store.Upsert(context.Background(), detection(10.5, now.Add(-2*time.Hour))); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	n, err := store.ExpireStale(context.Background(), now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("ExpireStale: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired %d, want 1", n)
	}
}
