package model

import "time"

// Stage is a step of the per-city scoring workflow.
type Stage string

const (
	StageFetchSource Stage = "fetch_source"
	StageExtractCity Stage = "extract_city"
	StageFilterTags  Stage = "filter_tags"
	StagePopulation  Stage = "population"
	StagePOI         Stage = "poi"
	StageMerge       Stage = "merge"
	StageScore       Stage = "score"
	StagePersist     Stage = "persist"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// RunStatus represents the state of a batch run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusPartial  RunStatus = "partial"
	RunStatusFailed   RunStatus = "failed"
)

// StageResult records one completed (or failed) stage of a city run.
type StageResult struct {
	Stage    Stage         `json:"stage"`
	Duration time.Duration `json:"duration_ms"`
	Attempts int           `json:"attempts,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// CityResult is the outcome of scoring one city.
type CityResult struct {
	City        City          `json:"city"`
	Stage       Stage         `json:"stage"`                  // terminal stage reached
	FailedStage Stage         `json:"failed_stage,omitempty"` // stage that failed, if any
	Stages      []StageResult `json:"stages"`
	Cells       int           `json:"cells"`
	ArtifactKey string        `json:"artifact_key,omitempty"`
	Warnings    []string      `json:"warnings,omitempty"`
	Err         error         `json:"-"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration_ms"`
}

// OK reports whether the city reached the done stage.
func (r *CityResult) OK() bool {
	return r != nil && r.Err == nil && r.Stage == StageDone
}

// BatchStatus derives a run status from per-city results.
func BatchStatus(results []CityResult) RunStatus {
	if len(results) == 0 {
		return RunStatusComplete
	}
	failed := 0
	for i := range results {
		if !results[i].OK() {
			failed++
		}
	}
	switch {
	case failed == 0:
		return RunStatusComplete
	case failed == len(results):
		return RunStatusFailed
	default:
		return RunStatusPartial
	}
}

// Run is one invocation of the batch workflow as recorded in the run log.
type Run struct {
	ID          string       `json:"id"`
	Status      RunStatus    `json:"status"`
	AccessMode  string       `json:"access_mode"`
	Profile     string       `json:"profile"`
	Cities      []string     `json:"cities"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  *time.Time   `json:"finished_at,omitempty"`
	CityResults []CityRecord `json:"city_results,omitempty"`
}

// CityRecord is the persisted form of a CityResult.
type CityRecord struct {
	RunID       string        `json:"run_id"`
	City        string        `json:"city"`
	Stage       Stage         `json:"stage"`
	FailedStage Stage         `json:"failed_stage,omitempty"`
	Cells       int           `json:"cells"`
	ArtifactKey string        `json:"artifact_key,omitempty"`
	Error       string        `json:"error,omitempty"`
	Stages      []StageResult `json:"stages,omitempty"`
	Duration    time.Duration `json:"duration_ms"`
	RecordedAt  time.Time     `json:"recorded_at"`
}

// Record converts a result into its persisted form.
func (r *CityResult) Record(runID string) CityRecord {
	rec := CityRecord{
		RunID:       runID,
		City:        r.City.Name,
		Stage:       r.Stage,
		FailedStage: r.FailedStage,
		Cells:       r.Cells,
		ArtifactKey: r.ArtifactKey,
		Stages:      r.Stages,
		Duration:    r.Duration,
		RecordedAt:  time.Now().UTC(),
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	return rec
}
