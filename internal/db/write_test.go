package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplace(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`DELETE FROM "atm"."cell_scores" WHERE "access_mode" = \$1 AND "city" = \$2`).
		WithArgs("24h", "rostov").
		WillReturnResult(pgxmock.NewResult("DELETE", 7))
	mock.ExpectCopyFrom(pgx.Identifier{"atm", "cell_scores"}, []string{"city", "cell"}).WillReturnResult(2)

	n, err := Replace(context.Background(), mock, ReplaceConfig{
		Table:   "atm.cell_scores",
		Columns: []string{"city", "cell"},
		Where:   map[string]any{"city": "rostov", "access_mode": "24h"},
	}, [][]any{{"rostov", "a"}, {"rostov", "b"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplace_EmptyRowsStillDeletes(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`DELETE FROM "atm"."cell_scores"`).
		WithArgs("rostov").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := Replace(context.Background(), mock, ReplaceConfig{
		Table:   "atm.cell_scores",
		Columns: []string{"city"},
		Where:   map[string]any{"city": "rostov"},
	}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplace_Validation(t *testing.T) {
	_, err := Replace(context.TODO(), nil, ReplaceConfig{Table: "atm.cells", Where: map[string]any{"city": "x"}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")

	_, err = Replace(context.TODO(), nil, ReplaceConfig{Table: "atm.cells", Columns: []string{"city"}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scope specified")
}

func TestUpsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`CREATE TEMP TABLE "_stage_atm_pois" \(LIKE "atm"."pois" INCLUDING DEFAULTS\) ON COMMIT DROP`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_atm_pois"}, []string{"city", "osm_id", "category"}).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "atm"."pois" .* ON CONFLICT \("city", "osm_id"\) DO UPDATE SET "category" = EXCLUDED."category"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	n, err := Upsert(context.Background(), mock, UpsertConfig{
		Table:        "atm.pois",
		Columns:      []string{"city", "osm_id", "category"},
		ConflictKeys: []string{"city", "osm_id"},
	}, [][]any{{"rostov", "node/1", "shop=mall"}, {"rostov", "way/2", "amenity=bank"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_OnlyKeysDoesNothing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_atm_pois"}, []string{"city", "osm_id"}).WillReturnResult(1)
	mock.ExpectExec(`ON CONFLICT \("city", "osm_id"\) DO NOTHING`).WillReturnResult(pgxmock.NewResult("INSERT", 0))

	_, err = Upsert(context.Background(), mock, UpsertConfig{
		Table:        "atm.pois",
		Columns:      []string{"city", "osm_id"},
		ConflictKeys: []string{"city", "osm_id"},
	}, [][]any{{"rostov", "node/1"}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_Validation(t *testing.T) {
	n, err := Upsert(context.TODO(), nil, UpsertConfig{
		Table:        "atm.pois",
		Columns:      []string{"id"},
		ConflictKeys: []string{"id"},
	}, nil)
	assert.NoError(t, err)
	assert.Zero(t, n)

	_, err = Upsert(context.TODO(), nil, UpsertConfig{Table: "atm.pois", ConflictKeys: []string{"id"}}, [][]any{{1}})
	assert.ErrorContains(t, err, "no columns specified")

	_, err = Upsert(context.TODO(), nil, UpsertConfig{Table: "atm.pois", Columns: []string{"id"}}, [][]any{{1}})
	assert.ErrorContains(t, err, "no conflict keys specified")
}

func TestInTx_CommitsAndRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectRollback()

	err = InTx(context.Background(), mock, func(tx pgx.Tx) error {
		_, err := tx.Exec(context.Background(), "DELETE FROM atm.pois")
		return err
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = InTx(context.Background(), mock, func(pgx.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTableIdent(t *testing.T) {
	assert.Equal(t, `"atm"."pois"`, tableIdent("atm.pois").Sanitize())
	assert.Equal(t, `"pois"`, tableIdent("pois").Sanitize())
	assert.Equal(t, `"id", "name"`, quoteAndJoin([]string{"id", "name"}))
	assert.Equal(t, []string{"b"}, without([]string{"a", "b"}, []string{"a"}))
}
