package fees

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"arbtrack/internal/config"
	"arbtrack/internal/marketplace"
)

// ComponentKind selects how a fee component is computed.
type ComponentKind string

const (
	KindPercent ComponentKind = "percent"
	KindFlat    ComponentKind = "flat"
	KindTiered  ComponentKind = "tiered"
)

// Component is one compiled fee component. Tiered components apply marginal
// bands: each band's rate covers only the slice of the price inside the band.
type Component struct {
	Name  string
	Kind  ComponentKind
	Rate  decimal.Decimal
	Flat  decimal.Decimal
	Bands []Band
}

// Band is one marginal tier. UpTo zero on the last band means unbounded.
type Band struct {
	UpTo decimal.Decimal
	Rate decimal.Decimal
}

// Schedule is one marketplace's versioned fee schedule. Components are applied
// in declared order so the breakdown is stable across passes.
type Schedule struct {
	Version    string
	Components []Component
}

// FeeLine is one component's contribution to a fee total.
type FeeLine struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// Model holds every compiled fee schedule, keyed by marketplace code.
type Model struct {
	schedules map[string]Schedule
}

// NewModel compiles the configured fee schedules. Band order is normalized at
// compile time so configuration order can not change the math.
func NewModel(cfg map[string]config.MarketplaceConfig) *Model {
	schedules := make(map[string]Schedule, len(cfg))
	for code, mc := range cfg {
		code = strings.ToLower(strings.TrimSpace(code))
		if code == "" {
			continue
		}
		schedules[code] = compileSchedule(mc.FeeSchedule)
	}
	return &Model{schedules: schedules}
}

func compileSchedule(cfg config.FeeScheduleConfig) Schedule {
	s := Schedule{Version: cfg.Version}
	for _, cc := range cfg.Components {
		c := Component{
			Name: cc.Name,
			Kind: ComponentKind(cc.Kind),
			Rate: decimal.NewFromFloat(cc.Rate),
			Flat: decimal.NewFromFloat(cc.Amount),
		}
		for _, bc := range cc.Bands {
			c.Bands = append(c.Bands, Band{
				UpTo: decimal.NewFromFloat(bc.UpTo),
				Rate: decimal.NewFromFloat(bc.Rate),
			})
		}
		// Bounded bands ascending, the unbounded band last.
		sort.SliceStable(c.Bands, func(i, j int) bool {
			bi, bj := c.Bands[i], c.Bands[j]
			if bi.UpTo.IsZero() {
				return false
			}
			if bj.UpTo.IsZero() {
				return true
			}
			return bi.UpTo.LessThan(bj.UpTo)
		})
		s.Components = append(s.Components, c)
	}
	return s
}

// ScheduleFor returns the compiled schedule for a marketplace code.
func (m *Model) ScheduleFor(code string) (Schedule, error) {
	s, ok := m.schedules[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return Schedule{}, &marketplace.UnsupportedMarketplaceError{Code: code}
	}
	return s, nil
}

// MarketplaceFee computes the total selling fee for salePrice on the given
// marketplace, plus the per-component breakdown in declared order. The same
// schedule version and price always produce the same result.
func (m *Model) MarketplaceFee(code string, salePrice decimal.Decimal) (decimal.Decimal, []FeeLine, error) {
	s, err := m.ScheduleFor(code)
	if err != nil {
		return decimal.Zero, nil, err
	}
	total := decimal.Zero
	lines := make([]FeeLine, 0, len(s.Components))
	for _, c := range s.Components {
		amount := c.apply(salePrice)
		total = total.Add(amount)
		lines = append(lines, FeeLine{Name: c.Name, Amount: amount})
	}
	return total, lines, nil
}

func (c Component) apply(salePrice decimal.Decimal) decimal.Decimal {
	switch c.Kind {
	case KindPercent:
		return salePrice.Mul(c.Rate)
	case KindFlat:
		return c.Flat
	case KindTiered:
		return c.applyTiers(salePrice)
	default:
		return decimal.Zero
	}
}

func (c Component) applyTiers(salePrice decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	lower := decimal.Zero
	for _, b := range c.Bands {
		upper := b.UpTo
		if upper.IsZero() || upper.GreaterThan(salePrice) {
			upper = salePrice
		}
		if upper.LessThanOrEqual(lower) {
			continue
		}
		total = total.Add(upper.Sub(lower).Mul(b.Rate))
		if b.UpTo.IsZero() || b.UpTo.GreaterThanOrEqual(salePrice) {
			break
		}
		lower = b.UpTo
	}
	return total
}
