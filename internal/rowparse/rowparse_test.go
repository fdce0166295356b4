package rowparse

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-supply/facility-registry/internal/country"
)

func TestSchemaParse(t *testing.T) {
	schema, err := ParseHeader("country,name,address")
	require.NoError(t, err)

	row, err := schema.Parse("US,Acme Factory,123 Main St")
	require.NoError(t, err)
	assert.Equal(t, "US", row.CountryCode)
	assert.Equal(t, "Acme Factory", row.Name)
	assert.Equal(t, "123 Main St", row.Address)
	assert.True(t, row.HasCountry)
	assert.True(t, row.HasName)
	assert.True(t, row.HasAddress)
}

func TestSchemaParse_QuotedDelimiter(t *testing.T) {
	schema, err := ParseHeader("country,name,address")
	require.NoError(t, err)

	row, err := schema.Parse(`BD,"Acme, Inc.","1 Factory Rd, Dhaka"`)
	require.NoError(t, err)
	assert.Equal(t, "BD", row.CountryCode)
	assert.Equal(t, "Acme, Inc.", row.Name)
	assert.Equal(t, "1 Factory Rd, Dhaka", row.Address)
}

func TestSchemaParse_HeaderOrderAndExtraFields(t *testing.T) {
	// Unrecognized fields are carried in the schema but never extracted.
	schema, err := ParseHeader("sector,ADDRESS,Name,country")
	require.NoError(t, err)

	row, err := schema.Parse("apparel,45 Mill Ln,Acme,Canada")
	require.NoError(t, err)
	assert.Equal(t, "CA", row.CountryCode)
	assert.Equal(t, "Acme", row.Name)
	assert.Equal(t, "45 Mill Ln", row.Address)
}

func TestSchemaParse_MissingFieldsLeftUnset(t *testing.T) {
	schema, err := ParseHeader("name,address")
	require.NoError(t, err)

	row, err := schema.Parse("Acme,123 Main St")
	require.NoError(t, err)
	assert.False(t, row.HasCountry)
	assert.Empty(t, row.CountryCode)
	assert.True(t, row.HasName)
}

func TestSchemaParse_TokenCountMismatch(t *testing.T) {
	schema, err := ParseHeader("country,name,address")
	require.NoError(t, err)

	_, err = schema.Parse("US,Acme")
	require.Error(t, err)

	var mr *MalformedRowError
	require.True(t, errors.As(err, &mr))
	assert.Equal(t, 3, mr.Want)
	assert.Equal(t, 2, mr.Got)
}

func TestSchemaParse_UnresolvedCountry(t *testing.T) {
	schema, err := ParseHeader("country,name,address")
	require.NoError(t, err)

	_, err = schema.Parse("Atlantis,Acme,123 Main St")
	require.Error(t, err)

	var ue *country.UnresolvedError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "Atlantis", ue.Value)
}

func TestSchemaParse_Deterministic(t *testing.T) {
	schema, err := ParseHeader("country,name,address")
	require.NoError(t, err)

	first, err := schema.Parse("US,Acme Factory,123 Main St")
	require.NoError(t, err)
	second, err := schema.Parse("US,Acme Factory,123 Main St")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestValidateHeader(t *testing.T) {
	assert.NoError(t, ValidateHeader("country,name,address"))
	assert.NoError(t, ValidateHeader("Country,NAME,address,sector"))

	err := ValidateHeader("name,address")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing required field "country"`)

	err = ValidateHeader("country,name")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing required field "address"`)
}
