package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/atm-scoring/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'running',
	access_mode TEXT NOT NULL,
	profile     TEXT NOT NULL,
	cities      TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS city_results (
	id           TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL REFERENCES runs(id),
	city         TEXT NOT NULL,
	stage        TEXT NOT NULL,
	failed_stage TEXT NOT NULL DEFAULT '',
	cells        INTEGER NOT NULL DEFAULT 0,
	artifact_key TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	stages       TEXT,
	duration_ms  INTEGER NOT NULL DEFAULT 0,
	recorded_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_city_results_run_id ON city_results(run_id);
CREATE INDEX IF NOT EXISTS idx_city_results_recorded_at ON city_results(recorded_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run model.Run) (*model.Run, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = model.RunStatusRunning
	}

	citiesJSON, err := json.Marshal(run.Cities)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal cities")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, access_mode, profile, cities, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Status), run.AccessMode, run.Profile, string(citiesJSON), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return &run, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, access_mode, profile, cities, started_at, finished_at FROM runs WHERE id = ?`,
		runID,
	)
	run, err := scanRun(row)
	if err != nil {
		return nil, err
	}
	recs, err := s.ListCityRecords(ctx, runID)
	if err != nil {
		return nil, err
	}
	run.CityResults = recs
	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, access_mode, profile, cities, started_at, finished_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.City != "" {
		query += ` AND id IN (SELECT run_id FROM city_results WHERE city = ?)`
		args = append(args, filter.City)
	}
	query += ` ORDER BY started_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

func (s *SQLiteStore) RecordCity(ctx context.Context, rec model.CityRecord) error {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	stagesJSON, err := json.Marshal(rec.Stages)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stages")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO city_results (id, run_id, city, stage, failed_stage, cells, artifact_key, error, stages, duration_ms, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), rec.RunID, rec.City, string(rec.Stage), string(rec.FailedStage),
		rec.Cells, rec.ArtifactKey, rec.Error, string(stagesJSON), rec.Duration.Milliseconds(), rec.RecordedAt,
	)
	return eris.Wrapf(err, "sqlite: record city %s", rec.City)
}

func (s *SQLiteStore) ListCityRecords(ctx context.Context, runID string) ([]model.CityRecord, error) {
	return s.queryCityRecords(ctx,
		`SELECT run_id, city, stage, failed_stage, cells, artifact_key, error, stages, duration_ms, recorded_at
		 FROM city_results WHERE run_id = ? ORDER BY recorded_at, city`,
		runID,
	)
}

func (s *SQLiteStore) RecentCityRecords(ctx context.Context, lookbackHours int) ([]model.CityRecord, error) {
	since := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)
	return s.queryCityRecords(ctx,
		`SELECT run_id, city, stage, failed_stage, cells, artifact_key, error, stages, duration_ms, recorded_at
		 FROM city_results WHERE recorded_at >= ? ORDER BY recorded_at, city`,
		since,
	)
}

func (s *SQLiteStore) queryCityRecords(ctx context.Context, query string, args ...any) ([]model.CityRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list city results")
	}
	defer rows.Close() //nolint:errcheck

	var recs []model.CityRecord
	for rows.Next() {
		var (
			rec        model.CityRecord
			stagesJSON sql.NullString
			durationMS int64
		)
		if err := rows.Scan(&rec.RunID, &rec.City, &rec.Stage, &rec.FailedStage, &rec.Cells,
			&rec.ArtifactKey, &rec.Error, &stagesJSON, &durationMS, &rec.RecordedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan city result")
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		if stagesJSON.Valid && stagesJSON.String != "" && stagesJSON.String != "null" {
			if err := json.Unmarshal([]byte(stagesJSON.String), &rec.Stages); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal stages")
			}
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: iterate city results")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var (
		r          model.Run
		citiesJSON string
		finished   sql.NullTime
	)
	err := row.Scan(&r.ID, &r.Status, &r.AccessMode, &r.Profile, &citiesJSON, &r.StartedAt, &finished)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	if err := json.Unmarshal([]byte(citiesJSON), &r.Cities); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal cities")
	}
	return &r, nil
}
