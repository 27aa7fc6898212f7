package tax

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/roach88/facets/internal/ir"
)

// RoundingPrecision is the number of decimal places each computed tax amount
// is rounded to.
const RoundingPrecision = 6

var hundred = decimal.NewFromInt(100)

// Taxes maps tax rate ID to the tax amount for that rate.
type Taxes map[int64]decimal.Decimal

// Sum returns the total of all tax amounts.
func (t Taxes) Sum() decimal.Decimal {
	total := decimal.Zero
	for _, amount := range t {
		total = total.Add(amount)
	}
	return total
}

// Calc computes the taxes contained in (inclusive) or added to (exclusive)
// price for the given rates.
func Calc(price decimal.Decimal, rates []ir.TaxRate, inclusive bool) Taxes {
	var taxes Taxes
	if inclusive {
		taxes = CalcInclusive(price, rates)
	} else {
		taxes = CalcExclusive(price, rates)
	}
	for id, amount := range taxes {
		taxes[id] = amount.Round(RoundingPrecision)
	}
	return taxes
}

// CalcInclusive splits the tax out of a tax-inclusive price.
//
// Compound rates are removed first, in reverse order, each from the price
// left by the previous step. Regular rates then share what remains in
// proportion to their rate: rate/100 / (1 + sum(regular)/100).
func CalcInclusive(price decimal.Decimal, rates []ir.TaxRate) Taxes {
	taxes := make(Taxes, len(rates))
	var regular, compound []ir.TaxRate
	for _, r := range rates {
		if r.Compound {
			compound = append(compound, r)
		} else {
			regular = append(regular, r)
		}
	}

	nonCompound := price
	for _, r := range slices.Backward(compound) {
		theRate := r.Rate.Div(hundred)
		amount := nonCompound.Sub(nonCompound.Div(decimal.NewFromInt(1).Add(theRate)))
		taxes[r.ID] = taxes[r.ID].Add(amount)
		nonCompound = nonCompound.Sub(amount)
	}

	regularSum := decimal.Zero
	for _, r := range regular {
		regularSum = regularSum.Add(r.Rate)
	}
	regularFactor := decimal.NewFromInt(1).Add(regularSum.Div(hundred))
	for _, r := range regular {
		theRate := r.Rate.Div(hundred).Div(regularFactor)
		taxes[r.ID] = taxes[r.ID].Add(theRate.Mul(nonCompound))
	}
	return taxes
}

// CalcExclusive computes the tax to add to a tax-exclusive price.
//
// Regular rates apply to the price. Each compound rate then applies to the
// price plus every tax computed so far.
func CalcExclusive(price decimal.Decimal, rates []ir.TaxRate) Taxes {
	taxes := make(Taxes, len(rates))
	for _, r := range rates {
		if r.Compound {
			continue
		}
		taxes[r.ID] = taxes[r.ID].Add(price.Mul(r.Rate).Div(hundred))
	}

	for _, r := range rates {
		if !r.Compound {
			continue
		}
		withTax := price.Add(taxes.Sum())
		taxes[r.ID] = taxes[r.ID].Add(withTax.Mul(r.Rate).Div(hundred))
	}
	return taxes
}

// MatchRates selects the rates that apply to class in country.
//
// A rate with an empty country applies everywhere. Only one rate applies per
// priority: a rate for the exact country wins over a wildcard one, then the
// lower ID wins. The result is ordered by priority.
func MatchRates(all []ir.TaxRate, class, country string) []ir.TaxRate {
	var candidates []ir.TaxRate
	for _, r := range all {
		if r.Class != class {
			continue
		}
		if r.Country != "" && r.Country != country {
			continue
		}
		candidates = append(candidates, r)
	}

	slices.SortStableFunc(candidates, func(a, b ir.TaxRate) int {
		if a.Priority != b.Priority {
			return a.Priority - b.Priority
		}
		if (a.Country == "") != (b.Country == "") {
			if a.Country == "" {
				return 1
			}
			return -1
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	matched := make([]ir.TaxRate, 0, len(candidates))
	for i, r := range candidates {
		if i > 0 && candidates[i-1].Priority == r.Priority {
			continue
		}
		matched = append(matched, r)
	}
	return matched
}
