package scorer

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/atm-scoring/internal/hexagg"
)

func cellAt(t *testing.T, lon, lat float64) hexagg.Cell {
	t.Helper()
	c, err := hexagg.CellOf(orb.Point{lon, lat}, 8)
	require.NoError(t, err)
	return c
}

func TestComposeScenario(t *testing.T) {
	t.Parallel()

	c := cellAt(t, 38.9769, 45.0355)
	sig := Signals{
		Placement:  map[hexagg.Cell]float64{c: 90},
		Population: map[hexagg.Cell]float64{c: 10000},
		POIs:       map[hexagg.Cell]float64{c: 50},
	}

	got, err := Compose(sig, AccessUntil2300, DefaultProfile())
	require.NoError(t, err)
	require.Len(t, got, 1)

	sc := got[0]
	assert.InDelta(t, 27.00, sc.Placement, 1e-9)
	assert.InDelta(t, 18.00, sc.Access, 1e-9)
	assert.InDelta(t, 21.00, sc.Population, 1e-9)
	assert.InDelta(t, 12.50, sc.POIs, 1e-9)
	assert.InDelta(t, 78.50, sc.LocationScore, 1e-9)
	assert.Equal(t, AccessUntil2300, sc.AccessMode)
	assert.Len(t, sc.Boundary[0], 7)
}

func TestComposeCaps(t *testing.T) {
	t.Parallel()

	c := cellAt(t, 38.9769, 45.0355)
	p := DefaultProfile()

	tests := []struct {
		name    string
		pop     float64
		pois    float64
		wantPop float64
		wantPOI float64
	}{
		{"below caps", 10000, 40, 21, 10},
		{"population cap", 14286, 0, 30, 0},
		{"far above caps", 1e9, 1e6, 30, 20},
		{"poi cap", 0, 80, 0, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Compose(Signals{
				Population: map[hexagg.Cell]float64{c: tt.pop},
				POIs:       map[hexagg.Cell]float64{c: tt.pois},
			}, AccessAllDay, p)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.InDelta(t, tt.wantPop, got[0].Population, 1e-6)
			assert.InDelta(t, tt.wantPOI, got[0].POIs, 1e-6)
		})
	}
}

func TestComposeBounds(t *testing.T) {
	t.Parallel()

	c := cellAt(t, 38.9769, 45.0355)
	p := DefaultProfile()

	for mode := range p.AccessModes {
		got, err := Compose(Signals{
			Placement:  map[hexagg.Cell]float64{c: 1000},
			Population: map[hexagg.Cell]float64{c: 1e12},
			POIs:       map[hexagg.Cell]float64{c: -4},
		}, mode, p)
		require.NoError(t, err)
		sc := got[0]

		assert.GreaterOrEqual(t, sc.Placement, 0.0)
		assert.LessOrEqual(t, sc.Placement, 30.0)
		assert.LessOrEqual(t, sc.Access, 20.0)
		assert.LessOrEqual(t, sc.Population, 30.0)
		assert.InDelta(t, 0, sc.POIs, 1e-9, "negative counts clamp to zero")
		assert.GreaterOrEqual(t, sc.LocationScore, 0.0)
		assert.LessOrEqual(t, sc.LocationScore, 100.0)
	}
}

func TestComposeOuterJoin(t *testing.T) {
	t.Parallel()

	a := cellAt(t, 38.9769, 45.0355)
	b := cellAt(t, 39.7015, 47.2357)
	c := cellAt(t, 37.7700, 44.7230)

	got, err := Compose(Signals{
		Placement:  map[hexagg.Cell]float64{a: 100},
		Population: map[hexagg.Cell]float64{b: 5000},
		POIs:       map[hexagg.Cell]float64{c: 3, a: 1},
	}, AccessUntil1900, DefaultProfile())
	require.NoError(t, err)
	require.Len(t, got, 3)

	seen := map[hexagg.Cell]ScoredCell{}
	for i, sc := range got {
		if i > 0 {
			assert.Less(t, string(got[i-1].Cell), string(sc.Cell), "sorted, each cell once")
		}
		seen[sc.Cell] = sc
	}

	// b has only population: placement and pois default to zero
	assert.InDelta(t, 0, seen[b].Placement, 1e-9)
	assert.InDelta(t, 0, seen[b].POIs, 1e-9)
	assert.InDelta(t, 10.5, seen[b].Population, 1e-9)
	assert.InDelta(t, 7.6, seen[b].Access, 1e-9)
	assert.InDelta(t, 18.1, seen[b].LocationScore, 1e-9)

	assert.InDelta(t, 30, seen[a].Placement, 1e-9)
	assert.InDelta(t, 0.25, seen[a].POIs, 1e-9)
}

func TestComposePure(t *testing.T) {
	t.Parallel()

	c := cellAt(t, 38.9769, 45.0355)
	sig := Signals{
		Placement:  map[hexagg.Cell]float64{c: 90},
		Population: map[hexagg.Cell]float64{c: 1234},
	}
	first, err := Compose(sig, AccessAllDay, DefaultProfile())
	require.NoError(t, err)
	second, err := Compose(sig, AccessAllDay, DefaultProfile())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, sig.Placement, 1, "inputs are not modified")
	assert.Nil(t, sig.POIs)
}

func TestComposeEmpty(t *testing.T) {
	t.Parallel()

	got, err := Compose(Signals{}, AccessAllDay, DefaultProfile())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestComposeRejectsMixedResolutions(t *testing.T) {
	t.Parallel()

	r8 := cellAt(t, 38.9769, 45.0355)
	r7, err := hexagg.CellOf(orb.Point{38.9769, 45.0355}, 7)
	require.NoError(t, err)

	_, err = Compose(Signals{
		Placement:  map[hexagg.Cell]float64{r8: 90},
		Population: map[hexagg.Cell]float64{r7: 10},
	}, AccessAllDay, DefaultProfile())
	assert.Error(t, err)
}

func TestComposeUnknownAccessMode(t *testing.T) {
	t.Parallel()

	_, err := Compose(Signals{}, AccessMode("weekends"), DefaultProfile())
	assert.Error(t, err)
}

func TestRescore(t *testing.T) {
	t.Parallel()

	c := cellAt(t, 38.9769, 45.0355)
	scored, err := Compose(Signals{
		Placement:  map[hexagg.Cell]float64{c: 90},
		Population: map[hexagg.Cell]float64{c: 10000},
		POIs:       map[hexagg.Cell]float64{c: 50},
	}, AccessUntil2300, DefaultProfile())
	require.NoError(t, err)

	allDay, err := Rescore(scored[0], AccessAllDay, DefaultProfile())
	require.NoError(t, err)
	assert.InDelta(t, 20, allDay.Access, 1e-9)
	assert.InDelta(t, 80.5, allDay.LocationScore, 1e-9)
	assert.Equal(t, AccessAllDay, allDay.AccessMode)

	evening, err := Rescore(scored[0], AccessUntil1900, DefaultProfile())
	require.NoError(t, err)
	assert.InDelta(t, 68.1, evening.LocationScore, 1e-9)

	_, err = Rescore(scored[0], AccessMode("never"), DefaultProfile())
	assert.Error(t, err)
}
