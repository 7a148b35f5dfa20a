package scorer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultProfileValid(t *testing.T) {
	t.Parallel()

	p := DefaultProfile()
	require.NoError(t, ValidateProfile(p))
	assert.Equal(t, CurrentProfileVersion, p.Version)
	assert.InDelta(t, 1.0, p.Weights.Sum(), 1e-12)

	score, err := p.AccessScore(AccessUntil1900)
	require.NoError(t, err)
	assert.InDelta(t, 38, score, 1e-9)
}

func TestValidateProfile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Profile)
	}{
		{"weights do not sum to one", func(p *Profile) { p.Weights.POIs = 0.5 }},
		{"negative weight", func(p *Profile) { p.Weights.Placement = -0.1; p.Weights.Population = 0.7 }},
		{"zero population factor", func(p *Profile) { p.PopulationFactor = 0 }},
		{"zero poi factor", func(p *Profile) { p.POIFactor = 0 }},
		{"zero cap", func(p *Profile) { p.Cap = 0 }},
		{"no access modes", func(p *Profile) { p.AccessModes = nil }},
		{"access above cap", func(p *Profile) { p.AccessModes[AccessAllDay] = 101 }},
		{"missing version", func(p *Profile) { p.Version = "" }},
		{"deprecated version v1", func(p *Profile) { p.Version = "v1" }},
		{"deprecated version v2", func(p *Profile) { p.Version = "v2" }},
		{"cap above max score", func(p *Profile) { p.Cap = 250 }},
		{"bad tier", func(p *Profile) { p.Tiers[0].Key = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := DefaultProfile()
			tt.mutate(&p)
			assert.Error(t, ValidateProfile(p))
		})
	}
}

func TestLoadProfile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")
	doc := `
version: v3
poi_factor: 2.5
access_modes:
  24h: 100
  until-23:00: 80
tiers:
  - {key: shop, value: mall, tier: 100}
  - {key: amenity, value: bank, tier: 70}
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	p, err := LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, CurrentProfileVersion, p.Version)
	assert.InDelta(t, 2.5, p.POIFactor, 1e-9)
	assert.InDelta(t, 0.007, p.PopulationFactor, 1e-12, "unset fields keep defaults")
	assert.InDelta(t, 80, p.AccessModes[AccessUntil2300], 1e-9)
	require.Len(t, p.Tiers, 2)
	assert.Equal(t, "amenity", p.Tiers[1].Key)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("weights: {placement: 0.9}\n"), 0o644))
	_, err = LoadProfile(bad)
	assert.Error(t, err)

	_, err = LoadProfile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadProfile_RejectsLegacyVersionAndOversizedCap(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	legacy := filepath.Join(dir, "legacy.yaml")
	require.NoError(t, os.WriteFile(legacy, []byte("version: v1\n"), 0o644))
	_, err := LoadProfile(legacy)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version v1 is not supported")

	wide := filepath.Join(dir, "wide.yaml")
	require.NoError(t, os.WriteFile(wide, []byte("version: v3\ncap: 250\n"), 0o644))
	_, err = LoadProfile(wide)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cap must be within")
}

func TestProfileHash(t *testing.T) {
	t.Parallel()

	a := DefaultProfile()
	b := DefaultProfile()
	assert.Equal(t, a.Hash(), b.Hash())
	assert.Len(t, a.Hash(), 16)

	b.POIFactor = 2
	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestParseAccessMode(t *testing.T) {
	t.Parallel()

	tests := map[string]AccessMode{
		"24h":             AccessAllDay,
		"Round-The-Clock": AccessAllDay,
		" until-23:00 ":   AccessUntil2300,
		"23":              AccessUntil2300,
		"19:00":           AccessUntil1900,
	}
	for in, want := range tests {
		got, err := ParseAccessMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseAccessMode("weekends")
	assert.Error(t, err)
}
