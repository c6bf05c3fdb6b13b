package marketplace

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"arbtrack/internal/config"
)

func testNormalizer() *Normalizer {
	return &Normalizer{Registry: NewRegistry(map[string]config.MarketplaceConfig{
		"aliexpress": {Currency: "USD"},
		"ebay":       {Currency: "usd"},
	})}
}

func TestNormalizeHappyPath(t *testing.T) {
	n := testNormalizer()
	now := time.Now()

	raw := json.RawMessage(`{
		"external_id": "X1",
		"title": "  Wireless Earbuds  ",
		"price": 10,
		"shipping_cost": "2.00",
		"stock": 5,
		"observed_at": "2026-08-30T12:00:00Z"
	}`)
	got, err := n.Normalize(raw, "aliexpress", now)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got.Marketplace != "aliexpress" || got.ExternalID != "X1" {
		t.Fatalf("identity = %s", got.Identity())
	}
	if got.Title != "Wireless Earbuds" {
		t.Fatalf("title = %q", got.Title)
	}
	if !got.Price.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("price = %s", got.Price)
	}
	if !got.ShippingCost.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("shipping = %s", got.ShippingCost)
	}
	if got.Currency != "USD" {
		t.Fatalf("currency = %s", got.Currency)
	}
	if got.StockLevel == nil || *got.StockLevel != 5 {
		t.Fatalf("stock = %v", got.StockLevel)
	}
	if want := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC); !got.ObservedAt.Equal(want) {
		t.Fatalf("observed_at = %s", got.ObservedAt)
	}
}

func TestNormalizeIsDeterministic(t *testing.T) {
	n := testNormalizer()
	now := time.Now()
	raw := json.RawMessage(`{"id":"Y1","price":"25.00","observed_at":"2026-08-30T12:00:00Z"}`)

	first, err := n.Normalize(raw, "ebay", now)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	second, err := n.Normalize(raw, "ebay", now)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if first.ExternalID != second.ExternalID ||
		!first.Price.Equal(second.Price) ||
		!first.ObservedAt.Equal(second.ObservedAt) {
		t.Fatalf("normalization diverged: %+v vs %+v", first, second)
	}
	// The id alias maps into external_id and shipping defaults to zero.
	if first.ExternalID != "Y1" || !first.ShippingCost.IsZero() {
		t.Fatalf("listing = %+v", first)
	}
	if first.StockLevel != nil {
		t.Fatal("absent stock should stay unknown")
	}
}

func TestNormalizeDefaultsObservedAt(t *testing.T) {
	n := testNormalizer()
	now := time.Date(2026, 8, 31, 9, 30, 0, 0, time.FixedZone("CET", 3600))

	got, err := n.Normalize(json.RawMessage(`{"external_id":"X1","price":1}`), "aliexpress", now)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !got.ObservedAt.Equal(now) || got.ObservedAt.Location() != time.UTC {
		t.Fatalf("observed_at = %s", got.ObservedAt)
	}
}

func TestNormalizeSchemaErrors(t *testing.T) {
	n := testNormalizer()
	now := time.Now()

	cases := []struct {
		name  string
		raw   string
		field string
	}{
		{"missing external id", `{"price": 10}`, "external_id"},
		{"missing price", `{"external_id":"X1"}`, "price"},
		{"non numeric price", `{"external_id":"X1","price":"oops"}`, "price"},
		{"negative price", `{"external_id":"X1","price":-1}`, "price"},
		{"negative shipping", `{"external_id":"X1","price":1,"shipping_cost":-2}`, "shipping_cost"},
		{"negative stock", `{"external_id":"X1","price":1,"stock":-1}`, "stock_level"},
		{"bad timestamp", `{"external_id":"X1","price":1,"observed_at":"yesterday"}`, "observed_at"},
		{"not json", `nonsense{`, "payload"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := n.Normalize(json.RawMessage(tc.raw), "aliexpress", now)
			var schemaErr *SchemaError
			if !errors.As(err, &schemaErr) {
				t.Fatalf("err = %v, want SchemaError", err)
			}
			if schemaErr.Field != tc.field {
				t.Fatalf("field = %s, want %s", schemaErr.Field, tc.field)
			}
		})
	}
}

func TestNormalizeUnknownMarketplace(t *testing.T) {
	n := testNormalizer()

	_, err := n.Normalize(json.RawMessage(`{"external_id":"X1","price":1}`), "etsy", time.Now())
	var unsupported *UnsupportedMarketplaceError
	if !errors.As(err, &unsupported) {
		t.Fatalf("err = %v, want UnsupportedMarketplaceError", err)
	}
}
