// Package source acquires the OSM inputs of a city: the regional dump, the
// city extract clipped from it and the tag-filtered POI extract.
package source

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sells-group/atm-scoring/internal/model"
)

// RegionFetcher makes a regional OSM dump available locally.
type RegionFetcher interface {
	FetchRegion(ctx context.Context, region string) (string, error)
}

// Acquirer produces the per-city OSM files.
type Acquirer interface {
	RegionFetcher
	// ExtractCity clips the city boundary relation out of dump.
	ExtractCity(ctx context.Context, dump string, city model.City) (string, error)
	// FilterByTags reduces a city extract to features matching the tag filter.
	FilterByTags(ctx context.Context, extract string, city model.City) (string, error)
}

// Layout names the files of the data directory.
type Layout struct {
	DataDir string
}

// RegionDump is the path of a region's dump.
func (l Layout) RegionDump(region string) string {
	return filepath.Join(l.DataDir, fmt.Sprintf("%s-fed-district-latest.osm.pbf", region))
}

// CityDir is the working directory of a city.
func (l Layout) CityDir(city string) string {
	return filepath.Join(l.DataDir, city)
}

// CityExtract is the path of the clipped city extract.
func (l Layout) CityExtract(city string) string {
	return filepath.Join(l.CityDir(city), city+".osm.pbf")
}

// POIExtract is the path of the tag-filtered extract.
func (l Layout) POIExtract(city string) string {
	return filepath.Join(l.CityDir(city), fmt.Sprintf("pois-in-%s.osm.pbf", city))
}
