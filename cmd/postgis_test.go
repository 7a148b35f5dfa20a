package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/atm-scoring/internal/geospatial"
)

func TestFormatTableStats(t *testing.T) {
	vacuumed := time.Date(2025, 6, 15, 3, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	formatTableStats(&buf, []geospatial.TableStats{
		{TableName: "atm.cell_scores", LiveRows: 1500, DeadRows: 500, TotalSize: "2 MB", HasSpatial: true, LastVacuum: &vacuumed},
		{TableName: "atm.publications", LiveRows: 12, TotalSize: "16 kB"},
	})

	out := buf.String()
	assert.Contains(t, out, "LAST_VACUUM")
	assert.Contains(t, out, "500 (25%)")
	assert.Contains(t, out, "2025-06-15 03:00")
	assert.Contains(t, out, "never")
}

func TestFormatMigrationStatus(t *testing.T) {
	var buf bytes.Buffer
	formatMigrationStatus(&buf, []geospatial.MigrationStatus{
		{Name: "001_atm_schema.sql", Applied: true},
		{Name: "002_cell_scores.sql"},
	})
	assert.Equal(t, "applied  001_atm_schema.sql\npending  002_cell_scores.sql\n", buf.String())
}

func TestPostGISMaintenance_Flags(t *testing.T) {
	for _, name := range []string{"vacuum", "stats", "prune-publications"} {
		assert.NotNil(t, postgisMaintenanceCmd.Flags().Lookup(name), name)
	}
	assert.NotNil(t, postgisMigrateCmd.Flags().Lookup("status"))
}

func TestFormatCellScoresAndPublications(t *testing.T) {
	var buf bytes.Buffer
	formatCellScores(&buf, []geospatial.CellScore{{Cell: "8811aa", LocationScore: 78.5, Placement: 30, Access: 18, Population: 20, POIs: 10.5}})
	assert.Contains(t, buf.String(), "8811aa")
	assert.Contains(t, buf.String(), "78.50")

	buf.Reset()
	formatPublications(&buf, []geospatial.Publication{{
		City: "rostov", AccessMode: "24h", Cells: 512, ProfileVersion: "v3",
		RunID: "abc12345-6789", PublishedAt: time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC),
	}})
	assert.Contains(t, buf.String(), "abc12345 ")
	assert.Contains(t, buf.String(), "2025-06-15 10:30")
}
