package pipeline

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/atm-scoring/internal/artifact"
	"github.com/sells-group/atm-scoring/internal/geospatial"
	"github.com/sells-group/atm-scoring/internal/hexagg"
	"github.com/sells-group/atm-scoring/internal/model"
	"github.com/sells-group/atm-scoring/internal/poi"
	"github.com/sells-group/atm-scoring/internal/population"
	"github.com/sells-group/atm-scoring/internal/scorer"
)

// shapefileSidecars are downloaded next to a .shp registry.
var shapefileSidecars = []string{".shx", ".dbf"}

func (r *Runner) tagFilterPath(city model.City) string {
	return filepath.Join(r.opts.Layout.CityDir(city.Name), filepath.Base(r.opts.TagFilterKey))
}

// estimatePopulation uses the housing registry when the city has one and
// falls back to counting apartment buildings in the city extract.
func (r *Runner) estimatePopulation(ctx context.Context, city model.City, extract string) (map[hexagg.Cell]float64, error) {
	if !city.HasRegistry() {
		features, err := r.features.Features(ctx, extract, poi.IsApartmentBuilding)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: read buildings of %s", city.Name)
		}
		buildings := poi.Buildings(features)
		zap.L().Debug("pipeline: fallback population",
			zap.String("city", city.Name),
			zap.Int("buildings", len(buildings)),
		)
		return population.EstimateFallback(buildings, r.opts.ResidentsPerBuilding, r.opts.Resolution)
	}

	path, err := r.downloadRegistry(ctx, city)
	if err != nil {
		return nil, err
	}
	parcels, err := population.LoadRegistry(ctx, path, city.Registry)
	if err != nil {
		return nil, err
	}
	opts := r.opts.Population
	opts.Dataset = city.Registry
	return population.EstimateRegistry(parcels, opts, r.opts.Resolution)
}

func (r *Runner) downloadRegistry(ctx context.Context, city model.City) (string, error) {
	dir := r.opts.Layout.CityDir(city.Name)
	dest := filepath.Join(dir, filepath.Base(city.Registry))
	if err := r.objects.Download(ctx, city.Registry, dest); err != nil {
		return "", eris.Wrapf(err, "pipeline: download registry %s", city.Registry)
	}

	ext := filepath.Ext(city.Registry)
	if strings.EqualFold(ext, ".shp") {
		base := strings.TrimSuffix(city.Registry, ext)
		for _, side := range shapefileSidecars {
			key := base + side
			if err := r.objects.Download(ctx, key, filepath.Join(dir, filepath.Base(key))); err != nil {
				return "", eris.Wrapf(err, "pipeline: download registry %s", key)
			}
		}
	}
	return dest, nil
}

// extractPOIs reads the tag-filtered extract and reduces it to the placement
// and density signals.
func (r *Runner) extractPOIs(ctx context.Context, city model.City, poiExtract string) ([]poi.POI, map[hexagg.Cell]float64, map[hexagg.Cell]float64, error) {
	filter, err := poi.LoadTagFilter(r.tagFilterPath(city))
	if err != nil {
		return nil, nil, nil, err
	}
	features, err := r.features.Features(ctx, poiExtract, filter.Match)
	if err != nil {
		return nil, nil, nil, eris.Wrapf(err, "pipeline: read pois of %s", city.Name)
	}
	pois := poi.Extract(features, filter)

	placement, err := poi.Placement(pois, r.opts.Profile.Tiers, r.opts.Resolution)
	if err != nil {
		return nil, nil, nil, err
	}
	density, err := poi.Density(pois, r.opts.Resolution)
	if err != nil {
		return nil, nil, nil, err
	}
	return pois, placement, density, nil
}

// persist uploads the artifact and, when configured, exports the city to
// PostGIS. It returns the artifact key.
func (r *Runner) persist(ctx context.Context, runID string, city model.City, cells []scorer.ScoredCell, pois []poi.POI) (string, error) {
	data, err := artifact.Encode(cells, r.opts.Profile.Version)
	if err != nil {
		return "", err
	}
	key := artifact.Key(city.Name)
	if err := r.objects.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), artifact.ContentType); err != nil {
		return "", eris.Wrapf(err, "pipeline: upload %s", key)
	}

	if r.metrics != nil {
		scores := make([]float64, len(cells))
		for i, c := range cells {
			scores[i] = c.LocationScore
		}
		r.metrics.ObserveScores(city.Name, scores)
	}

	if r.exporter != nil {
		err := r.exporter.Export(ctx, geospatial.Export{
			RunID:          runID,
			City:           city.Name,
			AccessMode:     r.opts.AccessMode,
			ProfileVersion: r.opts.Profile.Version,
			ProfileHash:    r.opts.Profile.Hash(),
			ArtifactKey:    key,
			Cells:          cells,
			POIs:           pois,
		})
		if err != nil {
			return key, eris.Wrapf(err, "pipeline: export %s", city.Name)
		}
	}
	return key, nil
}
