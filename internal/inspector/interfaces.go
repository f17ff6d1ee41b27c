package inspector

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound signals that the requested document does not exist.
var ErrNotFound = errors.New("document not found")

// ErrAlreadyExists signals a conflicting create.
var ErrAlreadyExists = errors.New("document already exists")

// ProjectStore persists project documents. AddInspection and RemoveInspection
// mirror the set-insert/pull updates the original system applied to the
// project's inspection array; both stamp UpdatedAt.
type ProjectStore interface {
	CreateProject(ctx context.Context, project Project) error
	GetProject(ctx context.Context, projectID string) (Project, error)
	ListProjects(ctx context.Context) ([]Project, error)
	DeleteProject(ctx context.Context, projectID string) error

	// AddInspection inserts the ID into the project's set if absent.
	AddInspection(ctx context.Context, projectID, inspectionID string, at time.Time) error
	// RemoveInspection removes the ID from the project's set if present.
	RemoveInspection(ctx context.Context, projectID, inspectionID string, at time.Time) error
	// ReplaceInspections overwrites the project's set wholesale.
	ReplaceInspections(ctx context.Context, projectID string, inspectionIDs []string, at time.Time) error
}

// InspectionStore persists inspection documents and their results.
type InspectionStore interface {
	CreateInspection(ctx context.Context, inspection Inspection) error
	GetInspection(ctx context.Context, inspectionID string) (Inspection, error)
	ListInspections(ctx context.Context) ([]Inspection, error)
	ListProjectInspections(ctx context.Context, projectID string) ([]Inspection, error)
	DeleteInspection(ctx context.Context, inspectionID string) error

	// SetProjectRef sets the inspection's back-reference and stamps UpdatedAt.
	SetProjectRef(ctx context.Context, inspectionID, projectID string, at time.Time) error
	// ClearProjectRef clears the back-reference only when it currently equals
	// projectID; a stale reference is left untouched.
	ClearProjectRef(ctx context.Context, inspectionID, projectID string, at time.Time) error

	UpdateStatus(ctx context.Context, inspectionID string, status Status, progress int, errText string) error
	SaveResult(ctx context.Context, result InspectionResult) error
	GetResult(ctx context.Context, inspectionID string) (InspectionResult, error)
}

// BlobStore writes raw artifacts (page snapshots) and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// RenderDetector decides whether a headless re-fetch is warranted because the
// probe response looks JS-rendered and its CSS is likely incomplete.
type RenderDetector interface {
	ShouldPromote(probe FetchResponse) bool
}

// Queue provides enqueue/dequeue semantics for inspection work items.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Policy encapsulates admission control and rate limiting.
type Policy interface {
	AllowFetch(inspectionID string, url string) bool
	AllowHeadless(inspectionID string, url string) bool
}

// RetryPolicy decides whether and when a failed fetch is retried.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Hasher computes digests for deduplication/integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces document IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
