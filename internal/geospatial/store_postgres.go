package geospatial

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/atm-scoring/internal/db"
	"github.com/sells-group/atm-scoring/internal/hexagg"
)

var cellColumns = []string{
	"city", "cell", "resolution", "access_mode",
	"placement", "access", "population", "pois",
	"raw_placement", "raw_population", "raw_pois", "location_score",
	"profile_version", "profile_hash", "run_id", "geom",
}

var (
	poiColumns       = []string{"city", "osm_id", "category", "cell", "name", "geom"}
	poiUpdateColumns = []string{"category", "cell", "name", "geom", "updated_at"}
)

// PostgresStore implements Store using a Postgres connection pool with PostGIS.
type PostgresStore struct {
	pool       db.Pool
	resolution int
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgresStore. POIs are indexed to cells
// at the given resolution.
func NewPostgresStore(pool db.Pool, resolution int) *PostgresStore {
	return &PostgresStore{pool: pool, resolution: resolution}
}

// Export implements Store. Cells, POIs and the publication record are
// written in one transaction, so a failed export leaves the previous
// snapshot in place.
func (s *PostgresStore) Export(ctx context.Context, e Export) error {
	log := zap.L().With(zap.String("component", "geo.export"), zap.String("city", e.City))

	cellRows, err := cellRows(e)
	if err != nil {
		return err
	}
	poiRows, err := s.poiRows(e)
	if err != nil {
		return err
	}

	var cells, pois int64
	err = db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		cells, err = db.Replace(ctx, tx, db.ReplaceConfig{
			Table:   "atm.cell_scores",
			Columns: cellColumns,
			Where:   map[string]any{"city": e.City, "access_mode": string(e.AccessMode)},
		}, cellRows)
		if err != nil {
			return eris.Wrapf(err, "geo: export cells for %s", e.City)
		}

		pois, err = db.Upsert(ctx, tx, db.UpsertConfig{
			Table:        "atm.pois",
			Columns:      poiColumns,
			ConflictKeys: []string{"city", "osm_id"},
			UpdateCols:   poiUpdateColumns,
		}, poiRows)
		if err != nil {
			return eris.Wrapf(err, "geo: export pois for %s", e.City)
		}
		// now() is the transaction start, which every upserted row carries.
		if _, err := tx.Exec(ctx, "DELETE FROM atm.pois WHERE city = $1 AND updated_at < now()", e.City); err != nil {
			return eris.Wrapf(err, "geo: prune pois for %s", e.City)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO atm.publications (run_id, city, access_mode, artifact_key, cells, profile_version, profile_hash)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			e.RunID, e.City, string(e.AccessMode), e.ArtifactKey, len(e.Cells), e.ProfileVersion, e.ProfileHash,
		)
		if err != nil {
			return eris.Wrapf(err, "geo: record publication for %s", e.City)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info("exported to postgis", zap.Int64("cells", cells), zap.Int64("pois", pois))
	return nil
}

func cellRows(e Export) ([][]any, error) {
	rows := make([][]any, 0, len(e.Cells))
	for _, c := range e.Cells {
		wkb, err := EncodePolygon(c.Boundary)
		if err != nil {
			return nil, eris.Wrapf(err, "geo: cell %s", c.Cell)
		}
		rows = append(rows, []any{
			e.City, c.Cell.String(), int16(c.Cell.Resolution()), string(e.AccessMode),
			c.Placement, c.Access, c.Population, c.POIs,
			c.RawPlacement, c.RawPopulation, c.RawPOIs, c.LocationScore,
			e.ProfileVersion, e.ProfileHash, e.RunID, wkb,
		})
	}
	return rows, nil
}

func (s *PostgresStore) poiRows(e Export) ([][]any, error) {
	rows := make([][]any, 0, len(e.POIs))
	for _, p := range e.POIs {
		cell, err := hexagg.CellOf(p.Point, s.resolution)
		if err != nil {
			zap.L().Debug("geo: skipping poi outside grid", zap.String("id", p.ID), zap.Error(err))
			continue
		}
		wkb, err := EncodePoint(p.Point)
		if err != nil {
			return nil, eris.Wrapf(err, "geo: poi %s", p.ID)
		}
		var name any
		if v := p.Tags.Find("name"); v != "" {
			name = v
		}
		rows = append(rows, []any{e.City, p.ID, p.Category, cell.String(), name, wkb})
	}
	return rows, nil
}

// ListPublications implements Store.
func (s *PostgresStore) ListPublications(ctx context.Context, city string, limit int) ([]Publication, error) {
	if limit <= 0 {
		limit = 20
	}
	sql := `
		SELECT id, run_id, city, access_mode, artifact_key, cells, profile_version, profile_hash, published_at
		FROM atm.publications
		WHERE ($1 = '' OR city = $1)
		ORDER BY published_at DESC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, sql, city, limit)
	if err != nil {
		return nil, eris.Wrap(err, "geo: list publications")
	}
	defer rows.Close()

	var pubs []Publication
	for rows.Next() {
		var p Publication
		if err := rows.Scan(&p.ID, &p.RunID, &p.City, &p.AccessMode, &p.ArtifactKey,
			&p.Cells, &p.ProfileVersion, &p.ProfileHash, &p.PublishedAt); err != nil {
			return nil, eris.Wrap(err, "geo: scan publication")
		}
		pubs = append(pubs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "geo: iterate publications")
	}
	return pubs, nil
}
