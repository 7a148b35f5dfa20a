package pipeline

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/atm-scoring/internal/geospatial"
	"github.com/sells-group/atm-scoring/internal/model"
	"github.com/sells-group/atm-scoring/internal/osmread"
)

// --- Acquirer Mock ---

type mockAcquirer struct {
	mock.Mock
}

func (m *mockAcquirer) FetchRegion(ctx context.Context, region string) (string, error) {
	args := m.Called(ctx, region)
	return args.String(0), args.Error(1)
}

func (m *mockAcquirer) ExtractCity(ctx context.Context, dump string, city model.City) (string, error) {
	args := m.Called(ctx, dump, city.Name)
	return args.String(0), args.Error(1)
}

func (m *mockAcquirer) FilterByTags(ctx context.Context, extract string, city model.City) (string, error) {
	args := m.Called(ctx, extract, city.Name)
	return args.String(0), args.Error(1)
}

// --- Feature source fake ---

// fakeFeatures serves canned features per extract path and applies the
// matcher like the PBF reader does.
type fakeFeatures struct {
	byPath map[string][]osmread.Feature
	errs   map[string]error
}

func (f *fakeFeatures) Features(_ context.Context, path string, match osmread.Matcher) ([]osmread.Feature, error) {
	if err := f.errs[path]; err != nil {
		return nil, err
	}
	var out []osmread.Feature
	for _, feat := range f.byPath[path] {
		if match(feat.Tags) {
			out = append(out, feat)
		}
	}
	return out, nil
}

// --- Exporter fake ---

type fakeExporter struct {
	geospatial.Store

	mu      sync.Mutex
	exports []geospatial.Export
	err     error
}

func (f *fakeExporter) Export(_ context.Context, e geospatial.Export) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.exports = append(f.exports, e)
	return nil
}
