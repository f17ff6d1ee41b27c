package inspector

import (
	"net/http"
	"time"
)

// Status represents the lifecycle state of an inspection.
type Status string

// Inspection status values persisted in the inspection store.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether the status is final. Failed inspections are
// terminal for the worker but still keep the queue visible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Project groups a set of inspections submitted together. InspectionIDs has
// set semantics: order is irrelevant and duplicates are never stored.
type Project struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	InspectionIDs []string  `json:"inspection_ids"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// HasInspection reports whether the project's set contains the given ID.
func (p Project) HasInspection(inspectionID string) bool {
	for _, id := range p.InspectionIDs {
		if id == inspectionID {
			return true
		}
	}
	return false
}

// Inspection is a single URL's analysis record. ProjectID is the optional
// back-reference to the owning project; the links package keeps it and the
// project's set mutually consistent.
type Inspection struct {
	ID              string     `json:"id"`
	URL             string     `json:"url"`
	ProjectID       string     `json:"project_id,omitempty"`
	Status          Status     `json:"status"`
	Progress        int        `json:"progress"`
	Error           string     `json:"error,omitempty"`
	HeadlessAllowed bool       `json:"headless_allowed"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Started         *time.Time `json:"started_at,omitempty"`
	Finished        *time.Time `json:"finished_at,omitempty"`
}

// QueueVisible implements the queue display rule: the queue disappears only
// when every inspection reached completed. Failed items keep it visible so
// the user can see what went wrong.
func QueueVisible(inspections []Inspection) bool {
	for _, ins := range inspections {
		if ins.Status != StatusCompleted {
			return true
		}
	}
	return false
}

// FontSource is one src entry of a @font-face rule.
type FontSource struct {
	URL    string `json:"url,omitempty"`
	Local  string `json:"local,omitempty"`
	Format string `json:"format,omitempty"`
}

// FontFace is a declared @font-face rule extracted from CSS.
type FontFace struct {
	Family       string       `json:"family"`
	Style        string       `json:"style,omitempty"`
	Weight       string       `json:"weight,omitempty"`
	Display      string       `json:"display,omitempty"`
	UnicodeRange string       `json:"unicode_range,omitempty"`
	Sources      []FontSource `json:"sources,omitempty"`
	Provider     string       `json:"provider,omitempty"`
}

// FamilyUsage counts how often a font family is requested by style rules and
// inline styles in the document.
type FamilyUsage struct {
	Family       string `json:"family"`
	Declarations int    `json:"declarations"`
	Generic      bool   `json:"generic"`
}

// ActiveFont is a font the headless browser actually loaded, observed via
// document.fonts after rendering.
type ActiveFont struct {
	Family string `json:"family"`
	Style  string `json:"style,omitempty"`
	Weight string `json:"weight,omitempty"`
	Status string `json:"status,omitempty"`
}

// StylesheetRef records a stylesheet the page referenced.
type StylesheetRef struct {
	URL      string `json:"url,omitempty"`
	Inline   bool   `json:"inline"`
	Fetched  bool   `json:"fetched"`
	Bytes    int    `json:"bytes,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// FontReport aggregates everything the analyzer extracted from one page.
type FontReport struct {
	Stylesheets []StylesheetRef `json:"stylesheets"`
	Faces       []FontFace      `json:"faces"`
	Usage       []FamilyUsage   `json:"usage"`
	Active      []ActiveFont    `json:"active,omitempty"`
}

// InspectionResult is persisted once an inspection completes.
type InspectionResult struct {
	InspectionID string     `json:"inspection_id"`
	URL          string     `json:"url"`
	StatusCode   int        `json:"status_code"`
	UsedHeadless bool       `json:"used_headless"`
	FetchedAt    time.Time  `json:"fetched_at"`
	DurationMs   int64      `json:"duration_ms"`
	ContentHash  string     `json:"content_hash"`
	SnapshotURI  string     `json:"snapshot_uri,omitempty"`
	Report       FontReport `json:"report"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	InspectionID          string
	URL                   string
	UseHeadless           bool
	Headers               http.Header
	RespectRobots         bool
	RespectRobotsProvided bool
}

// RobotsStatus describes the outcome of the robots.txt probe.
type RobotsStatus string

// Robots probe outcomes.
const (
	RobotsStatusUnknown       RobotsStatus = ""
	RobotsStatusIndeterminate RobotsStatus = "indeterminate"
)

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
	RobotsStatus RobotsStatus
	RobotsReason string
	// ActiveFonts is only populated by headless fetchers, which can observe
	// document.fonts after rendering.
	ActiveFonts []ActiveFont
}

// QueueItem wraps an inspection ready to run.
type QueueItem struct {
	InspectionID string
	URL          string
	Headless     bool
	Attempt      int
	Submitted    int64
}
