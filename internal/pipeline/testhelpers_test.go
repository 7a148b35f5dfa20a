package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/atm-scoring/internal/artifact"
	"github.com/sells-group/atm-scoring/internal/model"
	"github.com/sells-group/atm-scoring/internal/objstore"
	"github.com/sells-group/atm-scoring/internal/osmread"
	"github.com/sells-group/atm-scoring/internal/population"
	"github.com/sells-group/atm-scoring/internal/resilience"
	"github.com/sells-group/atm-scoring/internal/scorer"
	"github.com/sells-group/atm-scoring/internal/source"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const testTagFilter = `{"shop": ["mall", "supermarket"], "amenity": ["cafe"]}`

// centre of Krasnodar
var testPoint = orb.Point{38.9769, 45.0355}

type testEnv struct {
	acq      *mockAcquirer
	objects  *objstore.DirStore
	features *fakeFeatures
	layout   source.Layout
	runner   *Runner
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	root := t.TempDir()
	objects, err := objstore.NewDirStore(filepath.Join(root, "bucket"))
	require.NoError(t, err)
	putObject(t, objects, DefaultTagFilterKey, testTagFilter)

	layout := source.Layout{DataDir: filepath.Join(root, "data")}
	env := &testEnv{
		acq:      &mockAcquirer{},
		objects:  objects,
		features: &fakeFeatures{byPath: map[string][]osmread.Feature{}, errs: map[string]error{}},
		layout:   layout,
	}
	env.runner = New(env.acq, objects, env.features, Options{
		Resolution:           8,
		AccessMode:           scorer.AccessUntil2300,
		Profile:              scorer.DefaultProfile(),
		Population:           population.DefaultRegistryOptions(),
		ResidentsPerBuilding: population.DefaultPerBuilding,
		Retry: resilience.RetryConfig{
			MaxAttempts: 3,
			Schedule:    []time.Duration{time.Millisecond},
		},
		Layout: layout,
	})
	return env
}

// expectAcquisition wires the happy path of the three acquisition stages.
func (e *testEnv) expectAcquisition(city model.City) {
	dump := e.layout.RegionDump(city.Region)
	e.acq.On("FetchRegion", mock.Anything, city.Region).Return(dump, nil).Maybe()
	e.acq.On("ExtractCity", mock.Anything, dump, city.Name).Return(e.layout.CityExtract(city.Name), nil)
	e.acq.On("FilterByTags", mock.Anything, e.layout.CityExtract(city.Name), city.Name).Return(e.layout.POIExtract(city.Name), nil)
}

func (e *testEnv) cityFeatures(city string, feats ...osmread.Feature) {
	e.features.byPath[e.layout.CityExtract(city)] = feats
}

func (e *testEnv) poiFeatures(city string, feats ...osmread.Feature) {
	e.features.byPath[e.layout.POIExtract(city)] = feats
}

func (e *testEnv) readArtifact(t *testing.T, city string) []scorer.ScoredCell {
	t.Helper()
	dest := filepath.Join(t.TempDir(), "artifact.geojson")
	require.NoError(t, e.objects.Download(context.Background(), artifact.Key(city), dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	cells, err := artifact.Decode(data)
	require.NoError(t, err)
	return cells
}

func putObject(t *testing.T, st *objstore.DirStore, key, body string) {
	t.Helper()
	src := filepath.Join(t.TempDir(), filepath.Base(key))
	require.NoError(t, os.WriteFile(src, []byte(body), 0o644))
	f, err := os.Open(src)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	require.NoError(t, st.Upload(context.Background(), key, f, int64(len(body)), "application/json"))
}

func feature(id string, p orb.Point, kv ...string) osmread.Feature {
	tags := make(osm.Tags, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		tags = append(tags, osm.Tag{Key: kv[i], Value: kv[i+1]})
	}
	return osmread.Feature{ID: id, Tags: tags, Point: p}
}

func stageNames(res *model.CityResult) []model.Stage {
	out := make([]model.Stage, len(res.Stages))
	for i, s := range res.Stages {
		out[i] = s.Stage
	}
	return out
}
