package marketplace

import (
	"fmt"
	"strings"

	"arbtrack/internal/config"
)

// Marketplace is one configured marketplace. Currency always comes from
// configuration, never from listing text, so locale formatting can not leak
// into margin math.
type Marketplace struct {
	Code     string
	Currency string
}

// Registry resolves marketplace codes once at configuration load. All lookups
// after construction are read-only.
type Registry struct {
	byCode map[string]Marketplace
}

func NewRegistry(cfg map[string]config.MarketplaceConfig) *Registry {
	byCode := make(map[string]Marketplace, len(cfg))
	for code, mc := range cfg {
		code = strings.ToLower(strings.TrimSpace(code))
		if code == "" {
			continue
		}
		currency := strings.ToUpper(strings.TrimSpace(mc.Currency))
		if currency == "" {
			currency = "USD"
		}
		byCode[code] = Marketplace{Code: code, Currency: currency}
	}
	return &Registry{byCode: byCode}
}

func (r *Registry) Get(code string) (Marketplace, error) {
	if r == nil {
		return Marketplace{}, &UnsupportedMarketplaceError{Code: code}
	}
	m, ok := r.byCode[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return Marketplace{}, &UnsupportedMarketplaceError{Code: code}
	}
	return m, nil
}

func (r *Registry) Codes() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.byCode))
	for code := range r.byCode {
		out = append(out, code)
	}
	return out
}

// UnsupportedMarketplaceError marks a configuration gap: jobs for the unknown
// marketplace fail, everything else keeps running.
type UnsupportedMarketplaceError struct {
	Code string
}

func (e *UnsupportedMarketplaceError) Error() string {
	return fmt.Sprintf("unsupported marketplace %q", e.Code)
}
