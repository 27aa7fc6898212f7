package tax

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/roach88/facets/internal/ir"
)

// Settings are the shop tax options that affect price filtering.
type Settings struct {
	Enabled          bool
	PricesIncludeTax bool
	// DisplayShop is how catalog prices are shown: ir.TaxDisplayIncl or ir.TaxDisplayExcl.
	DisplayShop string
	// AdjustNonBaseLocationPrices removes tax at base-location rates when
	// converting displayed inclusive prices back to stored prices.
	AdjustNonBaseLocationPrices bool
	BaseCountry                 string
	CustomerCountry             string
}

// StorageMode returns how prices are stored: incl or excl.
func (s Settings) StorageMode() string {
	if s.Enabled && s.PricesIncludeTax {
		return ir.TaxDisplayIncl
	}
	return ir.TaxDisplayExcl
}

// AdjustFilters reports whether price bounds must be converted per tax
// class, which is the case when display mode and storage mode differ.
func (s Settings) AdjustFilters() bool {
	if !s.Enabled {
		return false
	}
	display := s.DisplayShop
	if display == "" {
		display = ir.TaxDisplayExcl
	}
	return display != s.StorageMode()
}

// RateSource provides tax classes and tax rates.
type RateSource interface {
	// TaxClasses returns registered tax class slugs, excluding the standard class.
	TaxClasses(ctx context.Context) ([]string, error)
	// TaxRates returns every rate of a tax class ("" is the standard class).
	TaxRates(ctx context.Context, class string) ([]ir.TaxRate, error)
}

// Calculator converts displayed price bounds to stored price bounds.
type Calculator struct {
	settings Settings
	rates    RateSource
}

// NewCalculator creates a Calculator.
func NewCalculator(settings Settings, rates RateSource) *Calculator {
	return &Calculator{settings: settings, rates: rates}
}

// Settings returns the calculator's settings.
func (c *Calculator) Settings() Settings {
	return c.settings
}

// Classes returns the standard class ("") followed by every registered class.
func (c *Calculator) Classes(ctx context.Context) ([]string, error) {
	classes, err := c.rates.TaxClasses(ctx)
	if err != nil {
		return nil, fmt.Errorf("tax classes: %w", err)
	}
	out := make([]string, 0, len(classes)+1)
	out = append(out, "")
	for _, class := range classes {
		if class != "" {
			out = append(out, class)
		}
	}
	return out, nil
}

// AdjustBound converts a displayed price bound for products of tax class
// into the stored price space.
//
// Inclusive display over exclusive storage removes the tax the displayed
// bound contains, at base-location rates when AdjustNonBaseLocationPrices
// is set and at customer-location rates otherwise. Exclusive display over
// inclusive storage adds customer-location tax. When no adjustment applies
// the bound is returned unchanged.
func (c *Calculator) AdjustBound(ctx context.Context, price decimal.Decimal, class string) (decimal.Decimal, error) {
	if !c.settings.AdjustFilters() {
		return price, nil
	}

	all, err := c.rates.TaxRates(ctx, class)
	if err != nil {
		return decimal.Zero, fmt.Errorf("tax rates for class %q: %w", class, err)
	}

	if c.settings.DisplayShop == ir.TaxDisplayIncl {
		country := c.settings.CustomerCountry
		if c.settings.AdjustNonBaseLocationPrices {
			country = c.settings.BaseCountry
		}
		taxes := Calc(price, MatchRates(all, class, country), true)
		return price.Sub(taxes.Sum()), nil
	}

	taxes := Calc(price, MatchRates(all, class, c.settings.CustomerCountry), false)
	return price.Add(taxes.Sum()), nil
}
