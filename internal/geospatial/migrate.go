package geospatial

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"io/fs"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/atm-scoring/internal/db"
)

// migrationLockID keys the advisory lock held while migrating.
const migrationLockID = 7373058

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migration is one embedded schema file.
type Migration struct {
	Name     string
	SQL      string
	Checksum string // hex sha256 of SQL
}

// MigrationStatus pairs a migration with whether it has been applied.
type MigrationStatus struct {
	Name    string
	Applied bool
}

// Migrations returns the embedded migrations in apply order.
func Migrations() ([]Migration, error) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, eris.Wrap(err, "geo: read migration dir")
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	out := make([]Migration, 0, len(entries))
	for _, e := range entries {
		data, err := migrationFS.ReadFile("migrations/" + e.Name())
		if err != nil {
			return nil, eris.Wrapf(err, "geo: read migration %s", e.Name())
		}
		sum := sha256.Sum256(data)
		out = append(out, Migration{Name: e.Name(), SQL: string(data), Checksum: hex.EncodeToString(sum[:])})
	}
	return out, nil
}

// Migrate applies pending migrations under an advisory lock and returns how
// many ran. Each file and its bookkeeping row commit together. A recorded
// migration whose file has since changed aborts the run.
func Migrate(ctx context.Context, pool db.Pool) (int, error) {
	log := zap.L().With(zap.String("component", "geo.migrate"))

	if _, err := pool.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return 0, eris.Wrap(err, "geo: acquire migration advisory lock")
	}
	defer func() {
		if _, err := pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			log.Warn("geo: failed to release migration advisory lock", zap.Error(err))
		}
	}()

	if err := ensureMigrationTable(ctx, pool); err != nil {
		return 0, err
	}
	migrations, err := Migrations()
	if err != nil {
		return 0, err
	}
	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, m := range migrations {
		if sum, ok := applied[m.Name]; ok {
			if sum != "" && sum != m.Checksum {
				return n, eris.Errorf("geo: migration %s changed after it was applied", m.Name)
			}
			continue
		}

		err := db.InTx(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return eris.Wrapf(err, "geo: apply migration %s", m.Name)
			}
			if _, err := tx.Exec(ctx,
				"INSERT INTO atm.schema_migrations (filename, checksum) VALUES ($1, $2)",
				m.Name, m.Checksum,
			); err != nil {
				return eris.Wrapf(err, "geo: record migration %s", m.Name)
			}
			return nil
		})
		if err != nil {
			return n, err
		}
		n++
		log.Info("migration applied", zap.String("file", m.Name))
	}
	return n, nil
}

// Status lists every embedded migration and whether it has been applied.
func Status(ctx context.Context, pool db.Pool) ([]MigrationStatus, error) {
	if err := ensureMigrationTable(ctx, pool); err != nil {
		return nil, err
	}
	migrations, err := Migrations()
	if err != nil {
		return nil, err
	}
	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		return nil, err
	}
	out := make([]MigrationStatus, len(migrations))
	for i, m := range migrations {
		_, ok := applied[m.Name]
		out[i] = MigrationStatus{Name: m.Name, Applied: ok}
	}
	return out, nil
}

func ensureMigrationTable(ctx context.Context, pool db.Pool) error {
	sql := `
		CREATE SCHEMA IF NOT EXISTS atm;
		CREATE TABLE IF NOT EXISTS atm.schema_migrations (
			filename   TEXT PRIMARY KEY,
			checksum   TEXT NOT NULL DEFAULT '',
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`
	if _, err := pool.Exec(ctx, sql); err != nil {
		return eris.Wrap(err, "geo: ensure migration table")
	}
	return nil
}

// appliedMigrations maps recorded filenames to their checksums.
func appliedMigrations(ctx context.Context, pool db.Pool) (map[string]string, error) {
	rows, err := pool.Query(ctx, "SELECT filename, checksum FROM atm.schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "geo: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]string)
	for rows.Next() {
		var name, sum string
		if err := rows.Scan(&name, &sum); err != nil {
			return nil, eris.Wrap(err, "geo: scan migration row")
		}
		applied[name] = sum
	}
	return applied, rows.Err()
}
