package fees

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"arbtrack/internal/models"
)

// StaleRateError indicates the pinned rate snapshot cannot convert between two
// currencies, either because the pair is missing or the snapshot is too old.
// There is no fallback rate; affected pairs are skipped.
type StaleRateError struct {
	From      string
	To        string
	FetchedAt time.Time
	Reason    string
}

func (e *StaleRateError) Error() string {
	return fmt.Sprintf("stale rates: %s->%s %s (fetched %s)", e.From, e.To, e.Reason, e.FetchedAt.Format(time.RFC3339))
}

// RateSnapshot is an immutable set of exchange rates, quoted against Base.
// A detection pass pins exactly one snapshot so every pair in the pass sees
// identical rates.
type RateSnapshot struct {
	ID        string
	Base      string
	Rates     map[string]decimal.Decimal
	FetchedAt time.Time
	// Stale marks a snapshot past its max age. A stale snapshot still
	// handles same-currency amounts but refuses cross-currency conversion.
	Stale bool
}

// SnapshotFromModel decodes a persisted snapshot row into its usable form.
func SnapshotFromModel(m *models.RateSnapshot) (RateSnapshot, error) {
	var raw map[string]string
	if err := json.Unmarshal(m.Rates, &raw); err != nil {
		return RateSnapshot{}, fmt.Errorf("decode rate snapshot %s: %w", m.ID, err)
	}
	rates := make(map[string]decimal.Decimal, len(raw)+1)
	for code, val := range raw {
		d, err := decimal.NewFromString(val)
		if err != nil {
			return RateSnapshot{}, fmt.Errorf("decode rate snapshot %s: rate %s: %w", m.ID, code, err)
		}
		rates[strings.ToUpper(code)] = d
	}
	base := strings.ToUpper(m.Base)
	rates[base] = decimal.NewFromInt(1)
	return RateSnapshot{
		ID:        m.ID,
		Base:      base,
		Rates:     rates,
		FetchedAt: m.FetchedAt,
	}, nil
}

// Fresh reports whether the snapshot is younger than maxAge at the given
// instant. maxAge <= 0 disables the check.
func (s RateSnapshot) Fresh(now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return true
	}
	return now.Sub(s.FetchedAt) <= maxAge
}

// Convert re-expresses amount from one currency in another via the snapshot's
// base. Same-currency conversion is the identity and never fails.
func (s RateSnapshot) Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	from = strings.ToUpper(from)
	to = strings.ToUpper(to)
	if from == to {
		return amount, nil
	}
	if s.Stale {
		return decimal.Zero, &StaleRateError{From: from, To: to, FetchedAt: s.FetchedAt, Reason: "snapshot past max age"}
	}
	fromRate, ok := s.Rates[from]
	if !ok || fromRate.IsZero() {
		return decimal.Zero, &StaleRateError{From: from, To: to, FetchedAt: s.FetchedAt, Reason: "missing rate for " + from}
	}
	toRate, ok := s.Rates[to]
	if !ok {
		return decimal.Zero, &StaleRateError{From: from, To: to, FetchedAt: s.FetchedAt, Reason: "missing rate for " + to}
	}
	return amount.Div(fromRate).Mul(toRate), nil
}
