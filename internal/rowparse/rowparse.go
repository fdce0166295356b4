// Package rowparse extracts structured facility fields from raw
// delimited rows using a declared header schema. Header and rows share
// CSV quoting rules, so fields may contain the delimiter when quoted.
package rowparse

import (
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/open-supply/facility-registry/internal/country"
)

// Recognized header field names. Fields outside this set are carried in
// the schema but ignored during extraction.
const (
	FieldCountry = "country"
	FieldName    = "name"
	FieldAddress = "address"
)

// MalformedRowError indicates a row whose token count does not align
// with the header schema.
type MalformedRowError struct {
	Want int
	Got  int
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("malformed row: expected %d fields, got %d", e.Want, e.Got)
}

// Schema is a parsed header: an ordered list of lowercase field names
// with their positions.
type Schema struct {
	fields []string
	pos    map[string]int
}

// Fields splits one raw CSV line into tokens.
func Fields(line string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	tokens, err := r.Read()
	if err != nil {
		return nil, eris.Wrap(err, "rowparse: read line")
	}
	return tokens, nil
}

// ParseHeader parses a raw header line into a Schema. Field names are
// lowercased; order is preserved.
func ParseHeader(header string) (*Schema, error) {
	tokens, err := Fields(header)
	if err != nil {
		return nil, eris.Wrap(err, "rowparse: parse header")
	}

	s := &Schema{
		fields: make([]string, len(tokens)),
		pos:    make(map[string]int, len(tokens)),
	}
	for i, tok := range tokens {
		name := strings.ToLower(strings.TrimSpace(tok))
		s.fields[i] = name
		s.pos[name] = i
	}
	return s, nil
}

// ValidateHeader rejects a header that is missing any of the required
// field names. Called at list submission, before any items are created.
func ValidateHeader(header string) error {
	s, err := ParseHeader(header)
	if err != nil {
		return err
	}
	for _, required := range []string{FieldCountry, FieldName, FieldAddress} {
		if _, ok := s.pos[required]; !ok {
			return eris.Errorf("rowparse: header is missing required field %q", required)
		}
	}
	return nil
}

// Row holds the fields extracted from one raw row. The Has flags
// distinguish an absent schema field from an empty value.
type Row struct {
	CountryCode string
	Name        string
	Address     string
	HasCountry  bool
	HasName     bool
	HasAddress  bool
}

// Parse extracts the recognized fields from one raw row. The country
// value is normalized through the country resolver; a resolution
// failure carries the offending raw value.
func (s *Schema) Parse(raw string) (*Row, error) {
	values, err := Fields(raw)
	if err != nil {
		return nil, err
	}
	if len(values) != len(s.fields) {
		return nil, &MalformedRowError{Want: len(s.fields), Got: len(values)}
	}

	var row Row
	if i, ok := s.pos[FieldCountry]; ok {
		code, err := country.Resolve(values[i])
		if err != nil {
			return nil, err
		}
		row.CountryCode = code
		row.HasCountry = true
	}
	if i, ok := s.pos[FieldName]; ok {
		row.Name = values[i]
		row.HasName = true
	}
	if i, ok := s.pos[FieldAddress]; ok {
		row.Address = values[i]
		row.HasAddress = true
	}
	return &row, nil
}
