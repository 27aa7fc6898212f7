package ir

import (
	"net/url"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// QueryVars holds request query variables in URL form. A single value may
// carry a comma-separated list ("red,blue").
type QueryVars map[string][]string

// QueryVarsFromURL copies url.Values into QueryVars.
func QueryVarsFromURL(values url.Values) QueryVars {
	vars := make(QueryVars, len(values))
	for k, v := range values {
		vars[k] = slices.Clone(v)
	}
	return vars
}

// ParseQueryVars parses a raw query string ("filter_color=red&min_price=10").
func ParseQueryVars(raw string) (QueryVars, error) {
	values, err := url.ParseQuery(strings.TrimPrefix(raw, "?"))
	if err != nil {
		return nil, err
	}
	return QueryVarsFromURL(values), nil
}

// Get returns the first non-empty value for key.
func (v QueryVars) Get(key string) string {
	for _, s := range v[key] {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// List splits every value for key on commas, trimming and dropping empties.
func (v QueryVars) List(key string) []string {
	var out []string
	for _, raw := range v[key] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Has reports whether key has at least one non-empty value.
func (v QueryVars) Has(key string) bool {
	return len(v.List(key)) > 0
}

// Clone returns a deep copy.
func (v QueryVars) Clone() QueryVars {
	out := make(QueryVars, len(v))
	for k, vals := range v {
		out[k] = slices.Clone(vals)
	}
	return out
}

// Without returns a copy of v with keys removed.
func (v QueryVars) Without(keys ...string) QueryVars {
	out := v.Clone()
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// Restrict returns a copy of v holding only the given keys.
func (v QueryVars) Restrict(keys []string) QueryVars {
	out := make(QueryVars)
	for _, k := range keys {
		if vals, ok := v[k]; ok {
			out[k] = slices.Clone(vals)
		}
	}
	return out
}

// IsScalarVar reports whether key is read with Get, so only its first
// non-empty value takes effect: the price bounds and the query_type_
// companions of attribute filters.
func IsScalarVar(key string) bool {
	return key == "min_price" || key == "max_price" || strings.HasPrefix(key, "query_type_")
}

// IRObject converts v to an IRObject for canonical hashing. List values
// are split, sorted and de-duplicated so "red,blue" and "blue,red" hash
// equally; scalar keys (IsScalarVar) hash only the value Get returns.
// Keys with no values are dropped.
func (v QueryVars) IRObject() IRObject {
	obj := make(IRObject, len(v))
	for k := range v {
		if IsScalarVar(k) {
			if val := v.Get(k); val != "" {
				obj[k] = IRString(val)
			}
			continue
		}
		vals := v.List(k)
		if len(vals) == 0 {
			continue
		}
		slices.Sort(vals)
		obj[k] = StringArray(slices.Compact(vals)...)
	}
	return obj
}

var lower = cases.Lower(language.Und)

// SanitizeSlug normalizes a user-supplied term slug: NFC, lower case,
// whitespace runs collapsed to a single hyphen.
func SanitizeSlug(s string) string {
	s = lower.String(norm.NFC.String(strings.TrimSpace(s)))
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), "-")
}
