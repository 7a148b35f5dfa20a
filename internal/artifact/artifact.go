// Package artifact encodes scored cells as the GeoJSON layer consumed by the
// dashboard and decodes it back for rescoring.
package artifact

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"

	"github.com/sells-group/atm-scoring/internal/hexagg"
	"github.com/sells-group/atm-scoring/internal/scorer"
)

// ContentType is the media type of the artifact.
const ContentType = "application/geo+json"

// Feature property names.
const (
	PropCell           = "cell"
	PropPlacement      = "placement"
	PropAccessMode     = "access_mode"
	PropAccessModeName = "access_mode_name"
	PropPopulation     = "population"
	PropPOIs           = "pois"
	PropLocationScore  = "location_score"
	PropRawPlacement   = "raw_placement"
	PropRawPopulation  = "raw_population"
	PropRawPOIs        = "raw_pois"
	PropProfile        = "profile"
)

// Key returns the object key of a city's artifact.
func Key(city string) string {
	return fmt.Sprintf("%s-h3-atm-score.geojson", city)
}

// Encode renders scored cells as a FeatureCollection of hex polygons.
func Encode(cells []scorer.ScoredCell, profileVersion string) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	for _, c := range cells {
		boundary := c.Boundary
		if len(boundary) == 0 {
			b, err := hexagg.BoundaryOf(c.Cell)
			if err != nil {
				return nil, eris.Wrap(err, "artifact: cell boundary")
			}
			boundary = b
		}
		f := geojson.NewFeature(boundary)
		f.Properties[PropCell] = c.Cell.String()
		f.Properties[PropPlacement] = c.Placement
		f.Properties[PropAccessMode] = c.Access
		f.Properties[PropAccessModeName] = string(c.AccessMode)
		f.Properties[PropPopulation] = c.Population
		f.Properties[PropPOIs] = c.POIs
		f.Properties[PropLocationScore] = c.LocationScore
		f.Properties[PropRawPlacement] = c.RawPlacement
		f.Properties[PropRawPopulation] = c.RawPopulation
		f.Properties[PropRawPOIs] = c.RawPOIs
		if profileVersion != "" {
			f.Properties[PropProfile] = profileVersion
		}
		fc.Append(f)
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return nil, eris.Wrap(err, "artifact: marshal")
	}
	return data, nil
}

// Decode parses an artifact back into scored cells.
func Decode(data []byte) ([]scorer.ScoredCell, error) {
	cells, _, err := DecodeProfile(data)
	return cells, err
}

// DecodeProfile is Decode that also returns the profile version recorded on
// the features, empty when the artifact carries none.
func DecodeProfile(data []byte) ([]scorer.ScoredCell, string, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, "", eris.Wrap(err, "artifact: unmarshal")
	}

	var version string
	out := make([]scorer.ScoredCell, 0, len(fc.Features))
	for i, f := range fc.Features {
		raw, ok := f.Properties[PropCell].(string)
		if !ok {
			return nil, "", eris.Errorf("artifact: feature %d has no %s property", i, PropCell)
		}
		cell, err := hexagg.ParseCell(raw)
		if err != nil {
			return nil, "", eris.Wrapf(err, "artifact: feature %d", i)
		}
		poly, _ := f.Geometry.(orb.Polygon)
		p := f.Properties
		if version == "" {
			version = p.MustString(PropProfile, "")
		}
		out = append(out, scorer.ScoredCell{
			Cell:          cell,
			Boundary:      poly,
			AccessMode:    scorer.AccessMode(p.MustString(PropAccessModeName, "")),
			Placement:     p.MustFloat64(PropPlacement, 0),
			Access:        p.MustFloat64(PropAccessMode, 0),
			Population:    p.MustFloat64(PropPopulation, 0),
			POIs:          p.MustFloat64(PropPOIs, 0),
			LocationScore: p.MustFloat64(PropLocationScore, 0),
			RawPlacement:  p.MustFloat64(PropRawPlacement, 0),
			RawPopulation: p.MustFloat64(PropRawPopulation, 0),
			RawPOIs:       p.MustFloat64(PropRawPOIs, 0),
		})
	}
	return out, version, nil
}
