package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for cache-key hashing.
// Version suffix enables future algorithm migration.
const (
	DomainFilterData = "facets/filter-data/v1"
	DomainProductIDs = "facets/product-ids/v1"
)

// FilterDataKeyPrefix prefixes every facet cache key.
const FilterDataKeyPrefix = "filter_data_"

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// FilterDataKey computes the facet cache key for (query vars, filter type, extra).
// extra may be nil.
func FilterDataKey(vars QueryVars, filterType string, extra IRObject) (string, error) {
	if extra == nil {
		extra = IRObject{}
	}
	obj := IRObject{
		"query_vars":  vars.IRObject(),
		"filter_type": IRString(filterType),
		"extra":       extra,
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("FilterDataKey: failed to marshal: %w", err)
	}
	return FilterDataKeyPrefix + hashWithDomain(DomainFilterData, canonical), nil
}

// ProductIDsKey computes the key of the product-ID working set for vars.
func ProductIDsKey(vars QueryVars) (string, error) {
	canonical, err := MarshalCanonical(vars.IRObject())
	if err != nil {
		return "", fmt.Errorf("ProductIDsKey: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainProductIDs, canonical), nil
}
