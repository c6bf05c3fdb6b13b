package fees

import (
	"github.com/shopspring/decimal"

	"arbtrack/internal/models"
)

// LandedCost is what one unit of a source listing costs, re-expressed in the
// destination currency: item price plus shipping, converted via the pinned
// snapshot.
func LandedCost(listing models.Listing, destCurrency string, snapshot RateSnapshot) (decimal.Decimal, error) {
	total := listing.Price.Add(listing.ShippingCost)
	return snapshot.Convert(total, listing.Currency, destCurrency)
}
