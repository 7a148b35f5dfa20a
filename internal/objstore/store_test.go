package objstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeMinIO struct {
	buckets map[string]bool
	objects map[string][]byte
	puts    []minio.PutObjectOptions
	statErr error
}

func newFakeMinIO() *fakeMinIO {
	return &fakeMinIO{buckets: map[string]bool{}, objects: map[string][]byte{}}
}

func (f *fakeMinIO) BucketExists(_ context.Context, b string) (bool, error) { return f.buckets[b], nil }

func (f *fakeMinIO) MakeBucket(_ context.Context, b string, _ minio.MakeBucketOptions) error {
	f.buckets[b] = true
	return nil
}

func (f *fakeMinIO) FGetObject(_ context.Context, b, key, path string, _ minio.GetObjectOptions) error {
	data, ok := f.objects[b+"/"+key]
	if !ok {
		return minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}
	}
	return os.WriteFile(path, data, 0o644)
}

func (f *fakeMinIO) PutObject(_ context.Context, b, key string, r io.Reader, _ int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.objects[b+"/"+key] = data
	f.puts = append(f.puts, opts)
	return minio.UploadInfo{Size: int64(len(data))}, nil
}

func (f *fakeMinIO) StatObject(_ context.Context, b, key string, _ minio.StatObjectOptions) (minio.ObjectInfo, error) {
	if f.statErr != nil {
		return minio.ObjectInfo{}, f.statErr
	}
	if _, ok := f.objects[b+"/"+key]; !ok {
		return minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}
	}
	return minio.ObjectInfo{Key: key}, nil
}

func newTestMinIOStore(t *testing.T) (*MinIOStore, *fakeMinIO) {
	t.Helper()
	fake := newFakeMinIO()
	cfg := MinIOConfig{Endpoint: "localhost:9000"}
	applyDefaults(&cfg)
	s := &MinIOStore{client: fake, cfg: cfg}
	require.NoError(t, s.ensureBucket(context.Background()))
	return s, fake
}

func TestMinIOStoreDefaults(t *testing.T) {
	_, fake := newTestMinIOStore(t)
	assert.True(t, fake.buckets["atm-location-assessment"])
}

func TestMinIOStoreRoundTrip(t *testing.T) {
	s, fake := newTestMinIOStore(t)
	ctx := context.Background()

	payload := []byte(`{"type":"FeatureCollection","features":[]}`)
	require.NoError(t, s.Upload(ctx, "krasnodar-h3-atm-score.geojson", bytes.NewReader(payload), int64(len(payload)), "application/geo+json"))

	require.Len(t, fake.puts, 1)
	assert.Equal(t, "application/geo+json", fake.puts[0].ContentType)
	assert.Equal(t, uint64(DefaultPartSize), fake.puts[0].PartSize)

	ok, err := s.Exists(ctx, "krasnodar-h3-atm-score.geojson")
	require.NoError(t, err)
	assert.True(t, ok)

	dest := filepath.Join(t.TempDir(), "out.geojson")
	require.NoError(t, s.Download(ctx, "krasnodar-h3-atm-score.geojson", dest))
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestMinIOStoreMissing(t *testing.T) {
	s, fake := newTestMinIOStore(t)
	ctx := context.Background()

	ok, err := s.Exists(ctx, "osm_tags_filter.json")
	require.NoError(t, err)
	assert.False(t, ok)

	err = s.Download(ctx, "osm_tags_filter.json", filepath.Join(t.TempDir(), "f.json"))
	assert.Error(t, err)

	fake.statErr = errors.New("connection refused")
	_, err = s.Exists(ctx, "osm_tags_filter.json")
	assert.Error(t, err)
}

func TestNewMinIOStoreRequiresEndpoint(t *testing.T) {
	_, err := NewMinIOStore(context.Background(), MinIOConfig{})
	assert.Error(t, err)
}

func TestDirStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewDirStore(filepath.Join(t.TempDir(), "bucket"))
	require.NoError(t, err)

	ok, err := s.Exists(ctx, "osm_tags_filter.json")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Upload(ctx, "osm_tags_filter.json", bytes.NewReader([]byte(`{"shop":true}`)), -1, "application/json"))

	ok, err = s.Exists(ctx, "osm_tags_filter.json")
	require.NoError(t, err)
	assert.True(t, ok)

	dest := filepath.Join(t.TempDir(), "city", "filter.json")
	require.NoError(t, s.Download(ctx, "osm_tags_filter.json", dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, `{"shop":true}`, string(data))

	assert.Error(t, s.Download(ctx, "missing.json", dest))
	assert.Error(t, s.Upload(ctx, "../escape", bytes.NewReader(nil), 0, ""))
	_, err = s.Exists(ctx, "")
	assert.Error(t, err)
}

func TestDirStoreKeys(t *testing.T) {
	s, err := NewDirStore(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"a..b.geojson", "rostov..v2-h3-atm-score.geojson", "nested/x..y.json"} {
		p, err := s.path(key)
		require.NoError(t, err, key)
		assert.Equal(t, filepath.Base(key), filepath.Base(p))
	}
	for _, key := range []string{"..", "../escape", "a/../../b", `a\..\b`, "/"} {
		_, err := s.path(key)
		assert.Error(t, err, key)
	}

	ctx := context.Background()
	require.NoError(t, s.Upload(ctx, "a..b.geojson", bytes.NewReader([]byte("{}")), 2, "application/geo+json"))
	ok, err := s.Exists(ctx, "a..b.geojson")
	require.NoError(t, err)
	assert.True(t, ok)
}
