package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("progress record not found")

// RunStatus mirrors the inspection_runs status column.
type RunStatus string

// Run statuses persisted in inspection_runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// InspectionRun models the inspection_runs table for API responses.
type InspectionRun struct {
	// ID is the primary key of inspection_runs.
	ID string
	// InspectionID is the logical inspection identifier shared with workers.
	InspectionID string
	// StartedAt captures when the run was first marked running.
	StartedAt time.Time
	// FinishedAt is nil until the run is marked success/error.
	FinishedAt *time.Time
	// Status is running/success/error.
	Status RunStatus
	// ErrorMessage optionally stores the final failure reason.
	ErrorMessage *string
}

// SiteStats captures per-host fetch aggregation for an inspection. An
// inspection touches multiple hosts when its stylesheets are served by
// third-party font providers.
type SiteStats struct {
	// InspectionID is the owning inspection.
	InspectionID string
	// Site is the normalized host label (e.g., fonts.googleapis.com).
	Site string
	// LastUpdate captures the timestamp of the most recent aggregate.
	LastUpdate time.Time
	// Visits counts completed fetches for the site.
	Visits int64
	// BytesTotal accumulates response bytes.
	BytesTotal int64
	// Fetch2xx-5xx hold per-status counts for diagnostics.
	Fetch2xx int64
	Fetch3xx int64
	Fetch4xx int64
	Fetch5xx int64
}

// ProgressRepository persists incremental inspection progress.
type ProgressRepository interface {
	// UpsertRunStart inserts (or idempotently updates) the started_at timestamp.
	UpsertRunStart(ctx context.Context, inspectionID string, startedAt time.Time) error
	// CompleteRun marks the run finished with the provided status and error.
	CompleteRun(ctx context.Context, inspectionID string, finishedAt time.Time, status RunStatus, errMsg *string) error
	// UpsertSiteStats applies visit/byte deltas per (inspection, site, statusClass).
	UpsertSiteStats(
		ctx context.Context,
		inspectionID string,
		site string,
		deltaVisits int64,
		deltaBytes int64,
		statusClass string,
		at time.Time,
	) error

	// GetRun loads a single inspection run or returns ErrNotFound.
	GetRun(ctx context.Context, inspectionID string) (InspectionRun, error)
	// ListRuns returns inspection runs filtered by optional status plus limit/offset.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]InspectionRun, error)
	// ListRunSites returns aggregated site stats for one inspection.
	ListRunSites(ctx context.Context, inspectionID string, limit, offset int) ([]SiteStats, error)
}
