package population

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"

	"github.com/sells-group/atm-scoring/internal/fetcher"
	"github.com/sells-group/atm-scoring/internal/model"
)

// LoadRegistry reads a housing registry from path. GeoJSON (.geojson, .json),
// ESRI shapefiles (.shp), point tables (.csv, .tsv, .xlsx) and ZIP archives
// holding one of those are supported. dataset identifies the registry in
// errors. Any unparseable count or missing geometry fails the whole load.
func LoadRegistry(ctx context.Context, path, dataset string) ([]Parcel, error) {
	if dataset == "" {
		dataset = filepath.Base(path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "population: read registry %s", path)
		}
		return ParseGeoJSON(data, dataset)
	case ".shp":
		return readShapefile(path, dataset)
	case ".csv", ".tsv", ".txt", ".xlsx":
		tbl, err := fetcher.ReadTable(ctx, path, fetcher.TableOptions{})
		if err != nil {
			return nil, model.NewMalformedInput(dataset, -1, "", err)
		}
		return ParseTable(tbl, dataset)
	case ".zip":
		dir := strings.TrimSuffix(path, filepath.Ext(path))
		member, err := fetcher.ExtractMember(path, dir, registryMembers...)
		if err != nil {
			return nil, model.NewMalformedInput(dataset, -1, "", err)
		}
		return LoadRegistry(ctx, member, dataset)
	default:
		return nil, model.NewMalformedInput(dataset, -1, "", eris.Errorf("unsupported registry format %q", filepath.Ext(path)))
	}
}

// registryMembers are the archive members LoadRegistry looks for, in order.
var registryMembers = []string{".geojson", ".json", ".shp", ".csv", ".tsv", ".xlsx"}

// ParseGeoJSON decodes a registry FeatureCollection.
func ParseGeoJSON(data []byte, dataset string) ([]Parcel, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, model.NewMalformedInput(dataset, -1, "", err)
	}

	parcels := make([]Parcel, 0, len(fc.Features))
	for i, f := range fc.Features {
		if f.Geometry == nil {
			return nil, model.NewMalformedInput(dataset, i, "geometry", eris.New("missing geometry"))
		}
		p := Parcel{Geometry: f.Geometry}
		for _, col := range p.columns() {
			field, dst := col.name, col.dst
			v, err := numberOf(f.Properties[field])
			if err != nil {
				return nil, model.NewMalformedInput(dataset, i, field, err)
			}
			*dst = v
		}
		parcels = append(parcels, p)
	}
	return parcels, nil
}
