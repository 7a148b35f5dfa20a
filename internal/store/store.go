package store

import (
	"context"

	"github.com/sells-group/atm-scoring/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	City   string          `json:"city,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the batch run log.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run model.Run) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, status model.RunStatus) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Cities
	RecordCity(ctx context.Context, rec model.CityRecord) error
	ListCityRecords(ctx context.Context, runID string) ([]model.CityRecord, error)
	RecentCityRecords(ctx context.Context, lookbackHours int) ([]model.CityRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
