package drift

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"arbtrack/internal/config"
	"arbtrack/internal/models"
)

type stubRepo struct {
	listings map[models.ListingIdentity]models.Listing
	history  []models.PriceHistoryEntry
	events   []models.DriftEvent
}

func newStubRepo() *stubRepo {
	return &stubRepo{listings: make(map[models.ListingIdentity]models.Listing)}
}

func (s *stubRepo) GetListing(_ context.Context, id models.ListingIdentity) (*models.Listing, error) {
	l, ok := s.listings[id]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (s *stubRepo) UpsertListing(_ context.Context, item *models.Listing) error {
	s.listings[item.Identity()] = *item
	return nil
}

func (s *stubRepo) InsertPriceHistory(_ context.Context, item *models.PriceHistoryEntry) error {
	s.history = append(s.history, *item)
	return nil
}

func (s *stubRepo) InsertDriftEvent(_ context.Context, item *models.DriftEvent) error {
	s.events = append(s.events, *item)
	return nil
}

func testTracker(repo *stubRepo) *Tracker {
	return New(repo, config.DriftConfig{NoiseRatio: 0.005, MinAbsDelta: 0.01}, nil)
}

func observation(price float64, stock *int, observedAt time.Time) models.Listing {
	return models.Listing{
		Marketplace: "aliexpress",
		ExternalID:  "X1",
		Price:       decimal.NewFromFloat(price),
		Currency:    "USD",
		StockLevel:  stock,
		ObservedAt:  observedAt,
	}
}

func intPtr(v int) *int { return &v }

func TestFirstObservationEmitsNoEvent(t *testing.T) {
	repo := newStubRepo()
	tr := testTracker(repo)
	now := time.Now()

	event, accepted, err := tr.RecordObservation(context.Background(), observation(10, intPtr(5), now))
	if err != nil {
		t.Fatalf("RecordObservation: %v", err)
	}
	if !accepted || event != nil {
		t.Fatalf("accepted=%v event=%+v", accepted, event)
	}
	if len(repo.history) != 1 || len(repo.listings) != 1 {
		t.Fatalf("history=%d listings=%d", len(repo.history), len(repo.listings))
	}
}

func TestOutOfOrderObservationIsNoOp(t *testing.T) {
	repo := newStubRepo()
	tr := testTracker(repo)
	now := time.Now()

	if _, _, err := tr.RecordObservation(context.Background(), observation(10, intPtr(5), now)); err != nil {
		t.Fatalf("RecordObservation: %v", err)
	}

	// Older and equal timestamps change nothing, so a replayed batch lands
	// in the same final state.
	for _, ts := range []time.Time{now.Add(-time.Minute), now} {
		event, accepted, err := tr.RecordObservation(context.Background(), observation(99, intPtr(1), ts))
		if err != nil {
			t.Fatalf("RecordObservation: %v", err)
		}
		if accepted || event != nil {
			t.Fatalf("stale observation accepted=%v event=%+v", accepted, event)
		}
	}

	stored := repo.listings[models.ListingIdentity{Marketplace: "aliexpress", ExternalID: "X1"}]
	if !stored.Price.Equal(decimal.NewFromFloat(10)) {
		t.Fatalf("price = %s, want 10", stored.Price)
	}
	if len(repo.history) != 1 || len(repo.events) != 0 {
		t.Fatalf("history=%d events=%d", len(repo.history), len(repo.events))
	}
}

func TestPriceDropEmitsEvent(t *testing.T) {
	repo := newStubRepo()
	tr := testTracker(repo)
	now := time.Now()

	mustRecord(t, tr, observation(10, intPtr(5), now))
	event, accepted, err := tr.RecordObservation(context.Background(), observation(8.5, intPtr(5), now.Add(time.Minute)))
	if err != nil {
		t.Fatalf("RecordObservation: %v", err)
	}
	if !accepted || event == nil {
		t.Fatalf("accepted=%v event=%+v", accepted, event)
	}
	if event.Kind != models.DriftPriceDrop {
		t.Fatalf("kind = %s", event.Kind)
	}
	if want := decimal.NewFromFloat(1.5); !event.Magnitude.Equal(want) {
		t.Fatalf("magnitude = %s, want %s", event.Magnitude, want)
	}
}

func TestJitterBelowNoiseFloorIsSuppressed(t *testing.T) {
	repo := newStubRepo()
	tr := testTracker(repo)
	now := time.Now()

	mustRecord(t, tr, observation(10, intPtr(5), now))

	// A fraction of a cent moves the listing but emits nothing.
	event, accepted, err := tr.RecordObservation(context.Background(), observation(10.005, intPtr(5), now.Add(time.Minute)))
	if err != nil {
		t.Fatalf("RecordObservation: %v", err)
	}
	if !accepted {
		t.Fatal("in-order observation discarded")
	}
	if event != nil {
		t.Fatalf("noise emitted event %+v", event)
	}
	if len(repo.history) != 2 {
		t.Fatalf("history=%d, want 2", len(repo.history))
	}
}

func TestStockEventsOutrankPriceMoves(t *testing.T) {
	repo := newStubRepo()
	tr := testTracker(repo)
	now := time.Now()

	mustRecord(t, tr, observation(10, intPtr(5), now))

	// Price and stock both move; the depletion wins and only one event
	// comes out.
	event, _, err := tr.RecordObservation(context.Background(), observation(7, intPtr(0), now.Add(time.Minute)))
	if err != nil {
		t.Fatalf("RecordObservation: %v", err)
	}
	if event == nil || event.Kind != models.DriftStockDepleted {
		t.Fatalf("event = %+v", event)
	}
	if len(repo.events) != 1 {
		t.Fatalf("events=%d, want 1", len(repo.events))
	}

	event, _, err = tr.RecordObservation(context.Background(), observation(7, intPtr(12), now.Add(2*time.Minute)))
	if err != nil {
		t.Fatalf("RecordObservation: %v", err)
	}
	if event == nil || event.Kind != models.DriftRestocked {
		t.Fatalf("event = %+v", event)
	}
	if want := decimal.NewFromInt(12); !event.Magnitude.Equal(want) {
		t.Fatalf("magnitude = %s, want %s", event.Magnitude, want)
	}
}

func mustRecord(t *testing.T, tr *Tracker, obs models.Listing) {
	t.Helper()
	if _, _, err := tr.RecordObservation(context.Background(), obs); err != nil {
		t.Fatalf("RecordObservation: %v", err)
	}
}
