package filters

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caresearch/medrank/internal/corpus"
	rankerr "github.com/caresearch/medrank/internal/errors"
)

func TestOutcode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SW1A 1AA", "SW1A"},
		{"sw1a1aa", "SW1A"},
		{"M1 1AA", "M1"},
		{"M11AA", "M1"},
		{"B111AA", "B11"},
		{"EC1V", "EC1V"},
		{"m1", "M1"},
		{" SW1A 1AA ", "SW1A"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Outcode(tt.in))
		})
	}
}

func TestHaversineMiles(t *testing.T) {
	// Westminster to central Manchester is roughly 163 miles
	london := Coordinate{Lat: 51.5010, Lon: -0.1419}
	manchester := Coordinate{Lat: 53.4780, Lon: -2.2420}

	d := haversineMiles(london, manchester)

	assert.InDelta(t, 163, d, 5)
	assert.Zero(t, haversineMiles(london, london))
}

func TestLocatorFilter_PostcodeRadius(t *testing.T) {
	// Given: candidates on Harley Street, in Manchester, and without a
	// resolvable location
	loc := NewLocator()
	harley := &corpus.Practitioner{ID: "harley", Name: "Dr H", PostalCode: "W1G 6AZ"}
	manc := &corpus.Practitioner{ID: "manc", Name: "Dr M", PostalCode: "M1 1AA"}
	noPostcode := &corpus.Practitioner{ID: "none", Name: "Dr N"}
	unknown := &corpus.Practitioner{ID: "unknown", Name: "Dr U", PostalCode: "ZZ9 9ZZ"}

	// When: searching around Westminster with the default radius
	got := loc.Filter(
		[]*corpus.Practitioner{harley, manc, noPostcode, unknown},
		LocationQuery{Postcode: "SW1A 1AA"})

	// Then: only the Harley Street candidate is near enough, annotated
	// with its distance on a copy
	require.Equal(t, []string{"harley"}, ids(got))
	require.NotNil(t, got[0].Distance)
	assert.InDelta(t, 1.17, *got[0].Distance, 0.1)
	assert.Nil(t, harley.Distance)
}

func TestLocatorFilter_ExplicitCenterWideRadius(t *testing.T) {
	// Given: an explicit center and a radius covering Manchester
	loc := NewLocator()
	harley := &corpus.Practitioner{ID: "harley", Name: "Dr H", PostalCode: "W1G 6AZ"}
	manc := &corpus.Practitioner{ID: "manc", Name: "Dr M", PostalCode: "M1 1AA"}

	got := loc.Filter(
		[]*corpus.Practitioner{harley, manc},
		LocationQuery{
			RadiusCenter: &Coordinate{Lat: 51.5010, Lon: -0.1419},
			RadiusMiles:  200,
		})

	require.Equal(t, []string{"harley", "manc"}, ids(got))
	require.NotNil(t, got[1].Distance)
	assert.InDelta(t, 163, *got[1].Distance, 5)
}

func TestLocatorFilter_CityMatch(t *testing.T) {
	loc := NewLocator()
	candidates := []*corpus.Practitioner{
		{ID: "a", Name: "Dr A", AddressLocality: "London"},
		{ID: "b", Name: "Dr B", AddressLocality: "Greater London"},
		{ID: "c", Name: "Dr C", AddressLocality: "Manchester"},
		{ID: "d", Name: "Dr D"},
	}

	got := loc.Filter(candidates, LocationQuery{City: "london"})

	assert.Equal(t, []string{"a", "b"}, ids(got))
}

func TestLocatorFilter_UnresolvablePostcode(t *testing.T) {
	loc := NewLocator()
	candidates := []*corpus.Practitioner{
		{ID: "a", Name: "Dr A", AddressLocality: "London", PostalCode: "W1G 6AZ"},
	}

	// Without a city the constraint cannot be satisfied
	assert.Empty(t, loc.Filter(candidates, LocationQuery{Postcode: "ZZ1 1ZZ"}))

	// With a city the filter falls back to the locality match
	got := loc.Filter(candidates, LocationQuery{Postcode: "ZZ1 1ZZ", City: "London"})
	assert.Equal(t, []string{"a"}, ids(got))
}

func TestLocatorFilter_PostcodeTakesPrecedenceOverCity(t *testing.T) {
	loc := NewLocator()
	candidates := []*corpus.Practitioner{
		{ID: "harley", Name: "Dr H", PostalCode: "W1G 6AZ", AddressLocality: "London"},
		{ID: "manc", Name: "Dr M", PostalCode: "M1 1AA", AddressLocality: "Manchester"},
	}

	// The city names Manchester but the postcode is in Westminster
	got := loc.Filter(candidates, LocationQuery{City: "Manchester", Postcode: "SW1A 1AA"})

	assert.Equal(t, []string{"harley"}, ids(got))
}

func TestLocatorFilter_ZeroQueryPassesThrough(t *testing.T) {
	loc := NewLocator()
	candidates := []*corpus.Practitioner{{ID: "a", Name: "Dr A"}}

	got := loc.Filter(candidates, LocationQuery{})

	assert.Equal(t, candidates, got)
}

func TestWithOutcodeTable(t *testing.T) {
	// Given: a locator extended with a custom outcode
	loc := NewLocator(WithOutcodeTable(map[string]Coordinate{
		"zz1": {Lat: 50.0, Lon: -1.0},
	}))

	// When/Then: the new outcode resolves, keys uppercased
	c, ok := loc.Centroid("ZZ1 4AB")
	require.True(t, ok)
	assert.Equal(t, Coordinate{Lat: 50.0, Lon: -1.0}, c)
}

func TestLoadOutcodeTable(t *testing.T) {
	// Given: a table file with a lowercase key
	dir := t.TempDir()
	path := filepath.Join(dir, "outcodes.json")
	content := `{"sw1a": {"lat": 51.5, "lon": -0.14}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	// When: loading it
	table, err := LoadOutcodeTable(path)

	// Then: keys are uppercased and coordinates preserved
	require.NoError(t, err)
	assert.Equal(t, Coordinate{Lat: 51.5, Lon: -0.14}, table["SW1A"])
}

func TestLoadOutcodeTable_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadOutcodeTable(filepath.Join(dir, "missing.json"))
	assert.Equal(t, rankerr.ErrCodeCorpusNotFound, rankerr.GetCode(err))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("not json"), 0o644))
	_, err = LoadOutcodeTable(bad)
	assert.Equal(t, rankerr.ErrCodeCorpusParse, rankerr.GetCode(err))
}
