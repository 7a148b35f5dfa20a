package geospatial

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func testMigrations(t *testing.T) []Migration {
	t.Helper()
	ms, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, ms)
	return ms
}

func expectPrelude(mock pgxmock.PgxPoolIface, applied *pgxmock.Rows) {
	mock.ExpectExec("SELECT pg_advisory_lock").WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT filename, checksum FROM atm.schema_migrations").WillReturnRows(applied)
}

func expectUnlock(mock pgxmock.PgxPoolIface) {
	mock.ExpectExec("SELECT pg_advisory_unlock").WillReturnResult(pgxmock.NewResult("SELECT", 1))
}

func appliedRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{"filename", "checksum"})
}

func TestMigrations_SortedWithChecksums(t *testing.T) {
	ms := testMigrations(t)
	assert.Equal(t, "001_atm_schema.sql", ms[0].Name)
	for i, m := range ms {
		assert.Len(t, m.Checksum, 64)
		assert.NotEmpty(t, strings.TrimSpace(m.SQL))
		if i > 0 {
			assert.Less(t, ms[i-1].Name, m.Name)
		}
	}
}

func TestMigrate_FreshDB(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ms := testMigrations(t)
	expectPrelude(mock, appliedRows())
	for _, m := range ms {
		mock.ExpectBegin()
		mock.ExpectExec(".*").WillReturnResult(pgxmock.NewResult("EXEC", 0))
		mock.ExpectExec("INSERT INTO atm.schema_migrations").
			WithArgs(m.Name, m.Checksum).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()
	}
	expectUnlock(mock)

	n, err := Migrate(context.Background(), mock)
	require.NoError(t, err)
	assert.Equal(t, len(ms), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_AllAlreadyApplied(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := appliedRows()
	for _, m := range testMigrations(t) {
		rows.AddRow(m.Name, m.Checksum)
	}
	expectPrelude(mock, rows)
	expectUnlock(mock)

	n, err := Migrate(context.Background(), mock)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_ChangedMigrationAborts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ms := testMigrations(t)
	expectPrelude(mock, appliedRows().AddRow(ms[0].Name, "deadbeef"))
	expectUnlock(mock)

	_, err = Migrate(context.Background(), mock)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "changed after it was applied")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_EnsureTableError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("SELECT pg_advisory_lock").WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS").WillReturnError(fmt.Errorf("permission denied"))
	expectUnlock(mock)

	_, err = Migrate(context.Background(), mock)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ensure migration table")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_ExecMigrationErrorRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectPrelude(mock, appliedRows())
	mock.ExpectBegin()
	mock.ExpectExec(".*").WillReturnError(fmt.Errorf("syntax error"))
	mock.ExpectRollback()
	expectUnlock(mock)

	n, err := Migrate(context.Background(), mock)
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Contains(t, err.Error(), "apply migration 001_atm_schema.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_RecordMigrationError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ms := testMigrations(t)
	expectPrelude(mock, appliedRows())
	mock.ExpectBegin()
	mock.ExpectExec(".*").WillReturnResult(pgxmock.NewResult("EXEC", 0))
	mock.ExpectExec("INSERT INTO atm.schema_migrations").
		WithArgs(ms[0].Name, ms[0].Checksum).
		WillReturnError(fmt.Errorf("disk full"))
	mock.ExpectRollback()
	expectUnlock(mock)

	_, err = Migrate(context.Background(), mock)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record migration")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_AdvisoryLockError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("SELECT pg_advisory_lock").WillReturnError(fmt.Errorf("could not obtain lock"))

	_, err = Migrate(context.Background(), mock)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acquire migration advisory lock")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ms := testMigrations(t)
	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT filename, checksum FROM atm.schema_migrations").
		WillReturnRows(appliedRows().AddRow(ms[0].Name, ms[0].Checksum))

	st, err := Status(context.Background(), mock)
	require.NoError(t, err)
	require.Len(t, st, len(ms))
	assert.True(t, st[0].Applied)
	if len(st) > 1 {
		assert.False(t, st[1].Applied)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}
