package db

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// ReplaceConfig scopes a snapshot replacement to the rows matching Where.
type ReplaceConfig struct {
	Table   string         // schema-qualified, e.g. "atm.cell_scores"
	Columns []string       // columns of each row
	Where   map[string]any // column = value filters selecting the snapshot
}

// Replace deletes the rows selected by cfg.Where and COPYs rows in their
// place. Run it inside InTx so readers see either snapshot, never a mix.
func Replace(ctx context.Context, w Writer, cfg ReplaceConfig, rows [][]any) (int64, error) {
	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: replace: no columns specified")
	}
	if len(cfg.Where) == 0 {
		return 0, eris.New("db: replace: no scope specified")
	}

	keys := sortedKeys(cfg.Where)
	conds := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		conds[i] = fmt.Sprintf("%s = $%d", pgx.Identifier{k}.Sanitize(), i+1)
		args[i] = cfg.Where[k]
	}
	deleteSQL := fmt.Sprintf("DELETE FROM %s WHERE %s", tableIdent(cfg.Table).Sanitize(), strings.Join(conds, " AND "))
	if _, err := w.Exec(ctx, deleteSQL, args...); err != nil {
		return 0, eris.Wrapf(err, "db: replace: delete from %s", cfg.Table)
	}

	if len(rows) == 0 {
		return 0, nil
	}
	n, err := w.CopyFrom(ctx, tableIdent(cfg.Table), cfg.Columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: replace: COPY INTO %s", cfg.Table)
	}
	return n, nil
}

// UpsertConfig defines the parameters for a bulk upsert.
type UpsertConfig struct {
	Table        string   // schema-qualified, e.g. "atm.pois"
	Columns      []string // all columns being inserted
	ConflictKeys []string // columns forming the unique constraint
	UpdateCols   []string // columns to update on conflict; nil = all non-conflict columns
}

// Upsert COPYs rows into a transaction-scoped staging table and merges them
// with INSERT ... ON CONFLICT DO UPDATE. w must be a transaction: the
// staging table is dropped on commit.
func Upsert(ctx context.Context, w Writer, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return 0, eris.New("db: upsert: no conflict keys specified")
	}
	if len(rows) == 0 {
		return 0, nil
	}

	updateCols := cfg.UpdateCols
	if updateCols == nil {
		updateCols = without(cfg.Columns, cfg.ConflictKeys)
	}

	stage := pgx.Identifier{"_stage_" + strings.ReplaceAll(cfg.Table, ".", "_")}
	createSQL := fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		stage.Sanitize(), tableIdent(cfg.Table).Sanitize())
	if _, err := w.Exec(ctx, createSQL); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: create staging table for %s", cfg.Table)
	}
	if _, err := w.CopyFrom(ctx, stage, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: COPY into staging table for %s", cfg.Table)
	}

	action := "DO NOTHING"
	if len(updateCols) > 0 {
		sets := make([]string, len(updateCols))
		for i, col := range updateCols {
			c := pgx.Identifier{col}.Sanitize()
			sets[i] = c + " = EXCLUDED." + c
		}
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	cols := quoteAndJoin(cfg.Columns)
	upsertSQL := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		tableIdent(cfg.Table).Sanitize(), cols, cols, stage.Sanitize(), quoteAndJoin(cfg.ConflictKeys), action)

	tag, err := w.Exec(ctx, upsertSQL)
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: merge into %s", cfg.Table)
	}
	return tag.RowsAffected(), nil
}

// tableIdent splits a schema-qualified table name into an identifier.
func tableIdent(table string) pgx.Identifier {
	return pgx.Identifier(strings.SplitN(table, ".", 2))
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}

func without(cols, drop []string) []string {
	skip := make(map[string]bool, len(drop))
	for _, d := range drop {
		skip[d] = true
	}
	var out []string
	for _, c := range cols {
		if !skip[c] {
			out = append(out, c)
		}
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
