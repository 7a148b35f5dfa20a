package geospatial

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/atm-scoring/internal/db"
)

// TableStats holds size and tuple counts for an atm table.
type TableStats struct {
	TableName  string     `json:"table_name"`
	LiveRows   int64      `json:"live_rows"`
	DeadRows   int64      `json:"dead_rows"`
	TotalSize  string     `json:"total_size"`
	HasSpatial bool       `json:"has_spatial"`
	LastVacuum *time.Time `json:"last_vacuum,omitempty"`
}

// DeadRatio is the share of dead tuples, 0 for an empty table.
func (s TableStats) DeadRatio() float64 {
	total := s.LiveRows + s.DeadRows
	if total == 0 {
		return 0
	}
	return float64(s.DeadRows) / float64(total)
}

// atmTables lists the tables maintenance commands operate on.
var atmTables = []string{
	"atm.cell_scores",
	"atm.pois",
	"atm.publications",
}

// VacuumAnalyze runs VACUUM ANALYZE on the given atm tables, or on all of
// them when none are given. Every export replaces a city's cells, so dead
// tuples pile up between runs.
func VacuumAnalyze(ctx context.Context, pool db.Pool, tables ...string) error {
	if len(tables) == 0 {
		tables = atmTables
	}
	for _, table := range tables {
		ident := pgx.Identifier{"atm", strings.TrimPrefix(table, "atm.")}
		zap.L().Info("geo: vacuum analyze", zap.String("table", table))
		if _, err := pool.Exec(ctx, "VACUUM ANALYZE "+ident.Sanitize()); err != nil {
			return eris.Wrapf(err, "geo: vacuum analyze %s", table)
		}
	}
	return nil
}

// PrunePublications keeps the newest keep publication records per city and
// access mode and deletes the rest. It returns the number deleted.
func PrunePublications(ctx context.Context, pool db.Pool, keep int) (int64, error) {
	if keep < 1 {
		return 0, eris.Errorf("geo: prune publications: keep must be >= 1, got %d", keep)
	}
	tag, err := pool.Exec(ctx, `
		DELETE FROM atm.publications
		WHERE id IN (
			SELECT id FROM (
				SELECT id, row_number() OVER (PARTITION BY city, access_mode ORDER BY published_at DESC, id DESC) AS rn
				FROM atm.publications
			) ranked
			WHERE rn > $1
		)`, keep)
	if err != nil {
		return 0, eris.Wrap(err, "geo: prune publications")
	}
	return tag.RowsAffected(), nil
}

// GetTableStats returns tuple counts and sizes for all atm.* tables.
func GetTableStats(ctx context.Context, pool db.Pool) ([]TableStats, error) {
	sql := `
		SELECT
			schemaname || '.' || relname AS table_name,
			n_live_tup,
			n_dead_tup,
			pg_size_pretty(pg_total_relation_size(relid)) AS total_size,
			EXISTS (
				SELECT 1 FROM pg_indexes
				WHERE schemaname = s.schemaname AND tablename = s.relname
				AND indexdef LIKE '%USING gist%'
			) AS has_spatial,
			GREATEST(last_vacuum, last_autovacuum) AS last_vacuum
		FROM pg_stat_user_tables s
		WHERE schemaname = 'atm'
		ORDER BY pg_total_relation_size(relid) DESC
	`
	rows, err := pool.Query(ctx, sql)
	if err != nil {
		return nil, eris.Wrap(err, "geo: query table stats")
	}
	defer rows.Close()

	var stats []TableStats
	for rows.Next() {
		var s TableStats
		if err := rows.Scan(&s.TableName, &s.LiveRows, &s.DeadRows, &s.TotalSize, &s.HasSpatial, &s.LastVacuum); err != nil {
			return nil, eris.Wrap(err, "geo: scan table stats row")
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "geo: iterate table stats rows")
	}
	return stats, nil
}
