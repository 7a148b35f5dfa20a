package source

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/atm-scoring/internal/fetcher"
	"github.com/sells-group/atm-scoring/internal/resilience"
)

// HTTPRegionFetcher downloads regional dumps from a mirror, skipping the
// transfer when the mirror reports the local copy as current.
type HTTPRegionFetcher struct {
	Fetcher   fetcher.Fetcher
	MirrorURL string
	Layout    Layout

	// Breaker, when set, fails fast once the mirror keeps failing.
	Breaker *resilience.CircuitBreaker
}

// URL returns the mirror URL of a region's dump.
func (h *HTTPRegionFetcher) URL(region string) string {
	return strings.TrimRight(h.MirrorURL, "/") + "/" + region + "-fed-district-latest.osm.pbf"
}

// FetchRegion downloads the dump of region if it changed.
func (h *HTTPRegionFetcher) FetchRegion(ctx context.Context, region string) (string, error) {
	path := h.Layout.RegionDump(region)
	etagPath := path + ".etag"

	etag := ""
	if _, err := os.Stat(path); err == nil {
		if b, err := os.ReadFile(etagPath); err == nil {
			etag = strings.TrimSpace(string(b))
		}
	}

	type result struct {
		etag    string
		changed bool
	}
	download := func(ctx context.Context) (result, error) {
		tag, changed, err := h.Fetcher.DownloadIfChanged(ctx, h.URL(region), path, etag)
		return result{tag, changed}, err
	}
	var (
		res result
		err error
	)
	if h.Breaker != nil {
		res, err = resilience.ExecuteVal(ctx, h.Breaker, download)
	} else {
		res, err = download(ctx)
	}
	newTag, changed := res.etag, res.changed
	if err != nil {
		return "", eris.Wrapf(err, "source: download region %s", region)
	}
	if changed {
		if newTag == "" {
			if err := os.Remove(etagPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return "", eris.Wrap(err, "source: clear etag")
			}
		} else if err := os.WriteFile(etagPath, []byte(newTag), 0o644); err != nil {
			return "", eris.Wrap(err, "source: store etag")
		}
	}
	zap.L().Info("source: region dump ready",
		zap.String("region", region),
		zap.Bool("downloaded", changed),
	)
	return path, nil
}
