// Package country normalizes free-text country values to ISO 3166-1
// alpha-2 codes. Lookup is case-insensitive against full names, alpha-2
// and alpha-3 codes, and a table of common non-ISO spellings.
package country

import (
	"fmt"
	"strings"
)

type entry struct {
	Alpha2 string
	Alpha3 string
	Name   string
}

var (
	byAlpha2 = make(map[string]string, len(iso3166))
	byAlpha3 = make(map[string]string, len(iso3166))
	byName   = make(map[string]string, len(iso3166)+len(aliases))
)

func init() {
	for _, e := range iso3166 {
		byAlpha2[e.Alpha2] = e.Alpha2
		byAlpha3[e.Alpha3] = e.Alpha2
		byName[strings.ToLower(e.Name)] = e.Alpha2
	}
	for name, code := range aliases {
		byName[name] = code
	}
}

// UnresolvedError indicates that a country value matched neither a
// country name nor an ISO code.
type UnresolvedError struct {
	Value string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("could not find a country code for %q", e.Value)
}

// Resolve normalizes a free-text country value to its alpha-2 code.
func Resolve(value string) (string, error) {
	v := strings.TrimSpace(value)
	upper := strings.ToUpper(v)

	switch len(upper) {
	case 2:
		if code, ok := byAlpha2[upper]; ok {
			return code, nil
		}
	case 3:
		if code, ok := byAlpha3[upper]; ok {
			return code, nil
		}
	}
	if code, ok := byName[strings.ToLower(v)]; ok {
		return code, nil
	}
	return "", &UnresolvedError{Value: value}
}

// Name returns the English short name for an alpha-2 code, or the code
// itself when unknown.
func Name(alpha2 string) string {
	for _, e := range iso3166 {
		if e.Alpha2 == alpha2 {
			return e.Name
		}
	}
	return alpha2
}
