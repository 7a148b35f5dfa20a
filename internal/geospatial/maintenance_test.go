package geospatial

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
)

var errTest = errors.New("test error")

func TestVacuumAnalyze_AllTables(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	for _, table := range []string{"cell_scores", "pois", "publications"} {
		mock.ExpectExec(`VACUUM ANALYZE "atm"."` + table + `"`).WillReturnResult(pgxmock.NewResult("VACUUM", 0))
	}

	if err := VacuumAnalyze(context.Background(), mock); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestVacuumAnalyze_SelectedTableError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectExec(`VACUUM ANALYZE "atm"."cell_scores"`).WillReturnError(errTest)

	if err := VacuumAnalyze(context.Background(), mock, "atm.cell_scores", "atm.pois"); err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPrunePublications(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectExec("DELETE FROM atm.publications").WithArgs(5).WillReturnResult(pgxmock.NewResult("DELETE", 12))

	n, err := PrunePublications(context.Background(), mock, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 12 {
		t.Errorf("expected 12 deleted, got %d", n)
	}
	if _, err := PrunePublications(context.Background(), mock, 0); err == nil {
		t.Error("expected error for keep=0")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetTableStats_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	vacuumed := time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"table_name", "n_live_tup", "n_dead_tup", "total_size", "has_spatial", "last_vacuum"}).
		AddRow("atm.cell_scores", int64(1600), int64(400), "2 MB", true, &vacuumed).
		AddRow("atm.publications", int64(12), int64(0), "16 kB", false, (*time.Time)(nil))
	mock.ExpectQuery("FROM pg_stat_user_tables").WillReturnRows(rows)

	stats, err := GetTableStats(context.Background(), mock)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 stats, got %d", len(stats))
	}
	if stats[0].TableName != "atm.cell_scores" || stats[0].LiveRows != 1600 || !stats[0].HasSpatial {
		t.Errorf("unexpected first row: %+v", stats[0])
	}
	if got := stats[0].DeadRatio(); got != 0.2 {
		t.Errorf("expected dead ratio 0.2, got %v", got)
	}
	if stats[0].LastVacuum == nil || !stats[0].LastVacuum.Equal(vacuumed) {
		t.Errorf("unexpected last vacuum: %v", stats[0].LastVacuum)
	}
	if stats[1].HasSpatial || stats[1].LastVacuum != nil {
		t.Errorf("unexpected second row: %+v", stats[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetTableStats_QueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectQuery("FROM pg_stat_user_tables").WillReturnError(errTest)

	if _, err := GetTableStats(context.Background(), mock); err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestTableStats_DeadRatioEmpty(t *testing.T) {
	if r := (TableStats{}).DeadRatio(); r != 0 {
		t.Errorf("expected 0, got %v", r)
	}
}
