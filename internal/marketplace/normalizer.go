package marketplace

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"arbtrack/internal/models"
)

// SchemaError marks one malformed raw payload. The observation is dropped and
// the batch continues.
type SchemaError struct {
	Marketplace string
	Field       string
	Reason      string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error (%s): field %q %s", e.Marketplace, e.Field, e.Reason)
}

// rawListing is the payload envelope the poll/scrape collaborators deliver.
// Field aliases accommodate the per-platform scraper output shapes; numeric
// fields arrive either as numbers or numeric strings.
type rawListing struct {
	ExternalID   string          `json:"external_id"`
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Price        json.RawMessage `json:"price"`
	ShippingCost json.RawMessage `json:"shipping_cost"`
	Stock        *int            `json:"stock"`
	StockLevel   *int            `json:"stock_level"`
	URL          string          `json:"url"`
	ObservedAt   string          `json:"observed_at"`
}

// Normalizer is a pure transform from raw marketplace payloads to canonical
// listings. It persists nothing.
type Normalizer struct {
	Registry *Registry
}

// Normalize converts one raw payload into a Listing. Identical input always
// yields an identical Listing; an absent observed_at defaults to the caller's
// clock via now.
func (n *Normalizer) Normalize(raw json.RawMessage, marketplaceCode string, now time.Time) (models.Listing, error) {
	mkt, err := n.Registry.Get(marketplaceCode)
	if err != nil {
		return models.Listing{}, err
	}

	var payload rawListing
	if err := json.Unmarshal(raw, &payload); err != nil {
		return models.Listing{}, &SchemaError{Marketplace: mkt.Code, Field: "payload", Reason: "is not valid JSON"}
	}

	externalID := strings.TrimSpace(payload.ExternalID)
	if externalID == "" {
		externalID = strings.TrimSpace(payload.ID)
	}
	if externalID == "" {
		return models.Listing{}, &SchemaError{Marketplace: mkt.Code, Field: "external_id", Reason: "is required"}
	}

	price, err := requireDecimal(payload.Price, mkt.Code, "price")
	if err != nil {
		return models.Listing{}, err
	}
	if price.IsNegative() {
		return models.Listing{}, &SchemaError{Marketplace: mkt.Code, Field: "price", Reason: "must not be negative"}
	}

	shipping := decimal.Zero
	if len(payload.ShippingCost) > 0 && string(payload.ShippingCost) != "null" {
		shipping, err = requireDecimal(payload.ShippingCost, mkt.Code, "shipping_cost")
		if err != nil {
			return models.Listing{}, err
		}
		if shipping.IsNegative() {
			return models.Listing{}, &SchemaError{Marketplace: mkt.Code, Field: "shipping_cost", Reason: "must not be negative"}
		}
	}

	stock := payload.StockLevel
	if stock == nil {
		stock = payload.Stock
	}
	if stock != nil && *stock < 0 {
		return models.Listing{}, &SchemaError{Marketplace: mkt.Code, Field: "stock_level", Reason: "must not be negative"}
	}

	observedAt := now.UTC()
	if strings.TrimSpace(payload.ObservedAt) != "" {
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(payload.ObservedAt))
		if err != nil {
			return models.Listing{}, &SchemaError{Marketplace: mkt.Code, Field: "observed_at", Reason: "is not RFC3339"}
		}
		observedAt = t.UTC()
	}

	return models.Listing{
		Marketplace:  mkt.Code,
		ExternalID:   externalID,
		Title:        strings.TrimSpace(payload.Title),
		Price:        price,
		ShippingCost: shipping,
		Currency:     mkt.Currency,
		StockLevel:   stock,
		URL:          strings.TrimSpace(payload.URL),
		ObservedAt:   observedAt,
	}, nil
}

func requireDecimal(raw json.RawMessage, marketplace, field string) (decimal.Decimal, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return decimal.Zero, &SchemaError{Marketplace: marketplace, Field: field, Reason: "is required"}
	}
	text = strings.Trim(text, `"`)
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, &SchemaError{Marketplace: marketplace, Field: field, Reason: "is not numeric"}
	}
	return d, nil
}
