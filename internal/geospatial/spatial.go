package geospatial

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

const cellScoreSelect = `
		SELECT cell, access_mode, placement, access, population, pois, location_score
		FROM atm.cell_scores`

// TopCells implements Store.
func (s *PostgresStore) TopCells(ctx context.Context, city, accessMode string, limit int) ([]CellScore, error) {
	if limit <= 0 {
		limit = 10
	}
	sql := cellScoreSelect + `
		WHERE city = $1 AND access_mode = $2
		ORDER BY location_score DESC, cell
		LIMIT $3
	`
	rows, err := s.pool.Query(ctx, sql, city, accessMode, limit)
	if err != nil {
		return nil, eris.Wrap(err, "geo: top cells")
	}
	defer rows.Close()

	var cells []CellScore
	for rows.Next() {
		c, err := scanCellScore(rows)
		if err != nil {
			return nil, err
		}
		cells = append(cells, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "geo: iterate top cells")
	}
	return cells, nil
}

// CellAt implements Store.
func (s *PostgresStore) CellAt(ctx context.Context, city, accessMode string, lng, lat float64) (*CellScore, error) {
	sql := cellScoreSelect + `
		WHERE city = $1 AND access_mode = $2
		  AND ST_Contains(geom, ST_SetSRID(ST_MakePoint($3, $4), 4326))
		LIMIT 1
	`
	c, err := scanCellScore(s.pool.QueryRow(ctx, sql, city, accessMode, lng, lat))
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

func scanCellScore(row pgx.Row) (*CellScore, error) {
	var c CellScore
	err := row.Scan(&c.Cell, &c.AccessMode, &c.Placement, &c.Access, &c.Population, &c.POIs, &c.LocationScore)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "geo: scan cell score")
	}
	return &c, nil
}
