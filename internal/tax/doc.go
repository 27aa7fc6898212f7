// Package tax converts price filter bounds between tax-inclusive and
// tax-exclusive amounts.
//
// Prices in the lookup table are stored the way the shop enters them
// (inclusive or exclusive of tax). When the shop displays prices the other
// way, a bound typed by a shopper must be converted per tax class before it
// is compared with stored prices, otherwise the filtered grid disagrees with
// the prices shown on it.
//
// All arithmetic uses shopspring/decimal. Individual tax amounts are rounded
// to RoundingPrecision decimal places before they are summed.
package tax
