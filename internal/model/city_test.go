package model

import (
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCities(t *testing.T) {
	t.Parallel()

	cities := DefaultCities()
	require.Len(t, cities, 4)

	k, ok := FindCity(cities, "Krasnodar")
	require.True(t, ok)
	assert.Equal(t, "r7373058", k.OSMID)
	assert.Equal(t, "south", k.Region)
	assert.True(t, k.HasRegistry())

	r, ok := FindCity(cities, "rostov")
	require.True(t, ok)
	assert.False(t, r.HasRegistry())

	_, ok = FindCity(cities, "moscow")
	assert.False(t, ok)
}

func TestStageValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		stage Stage
		want  string
	}{
		{StageFetchSource, "fetch_source"},
		{StageExtractCity, "extract_city"},
		{StageFilterTags, "filter_tags"},
		{StagePopulation, "population"},
		{StagePOI, "poi"},
		{StageMerge, "merge"},
		{StageScore, "score"},
		{StagePersist, "persist"},
		{StageDone, "done"},
		{StageFailed, "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.stage))
		})
	}
}

func TestBatchStatus(t *testing.T) {
	t.Parallel()

	ok := CityResult{Stage: StageDone}
	bad := CityResult{Stage: StageFailed, Err: errors.New("boom")}

	assert.Equal(t, RunStatusComplete, BatchStatus(nil))
	assert.Equal(t, RunStatusComplete, BatchStatus([]CityResult{ok, ok}))
	assert.Equal(t, RunStatusPartial, BatchStatus([]CityResult{ok, bad}))
	assert.Equal(t, RunStatusFailed, BatchStatus([]CityResult{bad}))
}

func TestMalformedInputError(t *testing.T) {
	t.Parallel()

	base := NewMalformedInput("registry.geojson", 3, "RMC", errors.New("bad number"))
	assert.Equal(t, "malformed input in registry.geojson record 3 field RMC: bad number", base.Error())

	wrapped := eris.Wrap(base, "population: load registry")
	assert.True(t, IsMalformedInput(wrapped))

	var me *MalformedInputError
	require.ErrorAs(t, wrapped, &me)
	assert.Equal(t, "registry.geojson", me.Dataset)

	assert.False(t, IsMalformedInput(errors.New("other")))

	noRecord := NewMalformedInput("pois", -1, "", nil)
	assert.Equal(t, "malformed input in pois", noRecord.Error())
}
