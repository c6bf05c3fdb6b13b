package fees

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"arbtrack/internal/config"
	"arbtrack/internal/marketplace"
)

func testModel() *Model {
	return NewModel(map[string]config.MarketplaceConfig{
		"ebay": {
			Currency: "USD",
			FeeSchedule: config.FeeScheduleConfig{
				Version: "2025-01",
				Components: []config.FeeComponentConfig{
					{Name: "final_value", Kind: "percent", Rate: 0.10},
				},
			},
		},
		"amazon": {
			Currency: "USD",
			FeeSchedule: config.FeeScheduleConfig{
				Version: "2025-01",
				Components: []config.FeeComponentConfig{
					{Name: "referral", Kind: "percent", Rate: 0.15},
					{Name: "payment", Kind: "percent", Rate: 0.029},
					{Name: "payment_fixed", Kind: "flat", Amount: 0.30},
				},
			},
		},
		"tiered": {
			Currency: "USD",
			FeeSchedule: config.FeeScheduleConfig{
				Version: "2025-01",
				Components: []config.FeeComponentConfig{
					{Name: "graduated", Kind: "tiered", Bands: []config.FeeBandConfig{
						{UpTo: 100, Rate: 0.10},
						{UpTo: 0, Rate: 0.05},
					}},
				},
			},
		},
	})
}

func TestMarketplaceFeePercent(t *testing.T) {
	m := testModel()

	fee, lines, err := m.MarketplaceFee("ebay", decimal.NewFromFloat(25))
	if err != nil {
		t.Fatalf("MarketplaceFee: %v", err)
	}
	if want := decimal.NewFromFloat(2.5); !fee.Equal(want) {
		t.Fatalf("fee = %s, want %s", fee, want)
	}
	if len(lines) != 1 || lines[0].Name != "final_value" {
		t.Fatalf("breakdown = %+v", lines)
	}
}

func TestMarketplaceFeeDeclaredOrder(t *testing.T) {
	m := testModel()

	fee, lines, err := m.MarketplaceFee("amazon", decimal.NewFromFloat(20))
	if err != nil {
		t.Fatalf("MarketplaceFee: %v", err)
	}
	// 20*0.15 + 20*0.029 + 0.30
	if want := decimal.NewFromFloat(3.88); !fee.Equal(want) {
		t.Fatalf("fee = %s, want %s", fee, want)
	}
	names := []string{"referral", "payment", "payment_fixed"}
	if len(lines) != len(names) {
		t.Fatalf("breakdown has %d lines, want %d", len(lines), len(names))
	}
	for i, want := range names {
		if lines[i].Name != want {
			t.Fatalf("line %d = %s, want %s", i, lines[i].Name, want)
		}
	}
}

func TestMarketplaceFeeTiered(t *testing.T) {
	m := testModel()

	// 100 at 10% plus the 50 above the band at 5%.
	fee, _, err := m.MarketplaceFee("tiered", decimal.NewFromFloat(150))
	if err != nil {
		t.Fatalf("MarketplaceFee: %v", err)
	}
	if want := decimal.NewFromFloat(12.5); !fee.Equal(want) {
		t.Fatalf("fee = %s, want %s", fee, want)
	}

	// Entirely inside the first band.
	fee, _, err = m.MarketplaceFee("tiered", decimal.NewFromFloat(40))
	if err != nil {
		t.Fatalf("MarketplaceFee: %v", err)
	}
	if want := decimal.NewFromFloat(4); !fee.Equal(want) {
		t.Fatalf("fee = %s, want %s", fee, want)
	}
}

func TestMarketplaceFeeUnknownMarketplace(t *testing.T) {
	m := testModel()

	_, _, err := m.MarketplaceFee("etsy", decimal.NewFromFloat(10))
	var unsupported *marketplace.UnsupportedMarketplaceError
	if !errors.As(err, &unsupported) {
		t.Fatalf("err = %v, want UnsupportedMarketplaceError", err)
	}
}

func TestConvert(t *testing.T) {
	snap := RateSnapshot{
		Base:      "USD",
		FetchedAt: time.Now(),
		Rates: map[string]decimal.Decimal{
			"USD": decimal.NewFromInt(1),
			"EUR": decimal.NewFromFloat(0.5),
		},
	}

	got, err := snap.Convert(decimal.NewFromFloat(10), "USD", "EUR")
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if want := decimal.NewFromFloat(5); !got.Equal(want) {
		t.Fatalf("converted = %s, want %s", got, want)
	}

	// Same currency never consults the rate table.
	got, err = snap.Convert(decimal.NewFromFloat(7), "GBP", "GBP")
	if err != nil {
		t.Fatalf("Convert same currency: %v", err)
	}
	if want := decimal.NewFromFloat(7); !got.Equal(want) {
		t.Fatalf("converted = %s, want %s", got, want)
	}

	_, err = snap.Convert(decimal.NewFromFloat(10), "USD", "GBP")
	var stale *StaleRateError
	if !errors.As(err, &stale) {
		t.Fatalf("err = %v, want StaleRateError", err)
	}
}

func TestConvertStaleSnapshot(t *testing.T) {
	snap := RateSnapshot{
		Base:      "USD",
		FetchedAt: time.Now().Add(-48 * time.Hour),
		Stale:     true,
		Rates: map[string]decimal.Decimal{
			"USD": decimal.NewFromInt(1),
			"EUR": decimal.NewFromFloat(0.5),
		},
	}

	// Outdated rates are never used, even when the pair is present.
	_, err := snap.Convert(decimal.NewFromFloat(10), "USD", "EUR")
	var stale *StaleRateError
	if !errors.As(err, &stale) {
		t.Fatalf("err = %v, want StaleRateError", err)
	}

	// Same-currency amounts need no rate and keep flowing.
	got, err := snap.Convert(decimal.NewFromFloat(7), "USD", "USD")
	if err != nil {
		t.Fatalf("Convert same currency: %v", err)
	}
	if want := decimal.NewFromFloat(7); !got.Equal(want) {
		t.Fatalf("converted = %s, want %s", got, want)
	}
}

func TestSnapshotFresh(t *testing.T) {
	now := time.Now()
	snap := RateSnapshot{FetchedAt: now.Add(-2 * time.Hour)}
	if snap.Fresh(now, time.Hour) {
		t.Fatal("snapshot older than max age reported fresh")
	}
	if !snap.Fresh(now, 3*time.Hour) {
		t.Fatal("snapshot inside max age reported stale")
	}
	if !snap.Fresh(now, 0) {
		t.Fatal("disabled max age reported stale")
	}
}
