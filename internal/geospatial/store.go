// Package geospatial exports scored cells and POIs to PostGIS.
package geospatial

import (
	"context"
	"time"

	"github.com/sells-group/atm-scoring/internal/poi"
	"github.com/sells-group/atm-scoring/internal/scorer"
)

// Export is one city's scoring output bound for PostGIS.
type Export struct {
	RunID          string
	City           string
	AccessMode     scorer.AccessMode
	ProfileVersion string
	ProfileHash    string
	ArtifactKey    string
	Cells          []scorer.ScoredCell
	POIs           []poi.POI
}

// Publication records one exported artifact.
type Publication struct {
	ID             int64     `json:"id"`
	RunID          string    `json:"run_id"`
	City           string    `json:"city"`
	AccessMode     string    `json:"access_mode"`
	ArtifactKey    string    `json:"artifact_key"`
	Cells          int       `json:"cells"`
	ProfileVersion string    `json:"profile_version"`
	ProfileHash    string    `json:"profile_hash"`
	PublishedAt    time.Time `json:"published_at"`
}

// CellScore is a scored cell as read back from PostGIS.
type CellScore struct {
	Cell          string  `json:"cell"`
	AccessMode    string  `json:"access_mode"`
	Placement     float64 `json:"placement"`
	Access        float64 `json:"access"`
	Population    float64 `json:"population"`
	POIs          float64 `json:"pois"`
	LocationScore float64 `json:"location_score"`
}

// Store defines the PostGIS operations on the atm.* schema.
type Store interface {
	// Export replaces the city's cell snapshot for the access mode, upserts
	// its POIs, and records a publication.
	Export(ctx context.Context, e Export) error

	// ListPublications returns the most recent publications, newest first.
	// An empty city lists all cities.
	ListPublications(ctx context.Context, city string, limit int) ([]Publication, error)

	// TopCells returns the best-scoring cells of a city.
	TopCells(ctx context.Context, city, accessMode string, limit int) ([]CellScore, error)

	// CellAt returns the scored cell containing the point, or nil.
	CellAt(ctx context.Context, city, accessMode string, lng, lat float64) (*CellScore, error)
}
