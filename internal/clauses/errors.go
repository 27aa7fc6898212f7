package clauses

import (
	"errors"
	"fmt"
)

// Error represents a collaborator failure while building one dimension's
// clauses.
//
// Errors include:
//   - Term lookup: Slugs could not be resolved to terms
//   - Tax rates: Tax classes or rates could not be read
//   - Hierarchy: Descendants of a selected term could not be read
//   - Params: The parameter vocabulary could not be loaded
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Dimension is the filter dimension affected (stock, price, attribute,
	// taxonomy, rating).
	Dimension string

	// Message is a human-readable description.
	Message string

	// Err is the underlying error.
	Err error
}

// ErrorCode categorizes clause errors.
type ErrorCode string

const (
	// ErrCodeTermLookup indicates the term lookup service failed.
	ErrCodeTermLookup ErrorCode = "TERM_LOOKUP"

	// ErrCodeTaxRates indicates tax classes or rates could not be read.
	ErrCodeTaxRates ErrorCode = "TAX_RATES"

	// ErrCodeHierarchy indicates a hierarchy map could not be built.
	ErrCodeHierarchy ErrorCode = "HIERARCHY"

	// ErrCodeParams indicates the parameter vocabulary could not be loaded.
	ErrCodeParams ErrorCode = "PARAMS"
)

// Filter dimensions.
const (
	DimensionStock     = "stock"
	DimensionPrice     = "price"
	DimensionAttribute = "attribute"
	DimensionTaxonomy  = "taxonomy"
	DimensionRating    = "rating"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (dimension=%s): %v", e.Code, e.Message, e.Dimension, e.Err)
	}
	return fmt.Sprintf("%s: %s (dimension=%s)", e.Code, e.Message, e.Dimension)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, dimension, message string, err error) *Error {
	return &Error{Code: code, Dimension: dimension, Message: message, Err: err}
}

// IsLookupError returns true if err is a term, hierarchy or tax-rate
// lookup failure. Uses errors.As to handle wrapped errors.
func IsLookupError(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Code {
	case ErrCodeTermLookup, ErrCodeTaxRates, ErrCodeHierarchy:
		return true
	}
	return false
}
