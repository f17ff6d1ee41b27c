package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"go.uber.org/zap"

	"github.com/typetrace/fontinspector/internal/store"
)

type exampleProgressRepo struct {
	runs []store.InspectionRun
}

func (e *exampleProgressRepo) UpsertRunStart(context.Context, string, time.Time) error {
	return nil
}

func (e *exampleProgressRepo) CompleteRun(context.Context, string, time.Time, store.RunStatus, *string) error {
	return nil
}

func (e *exampleProgressRepo) UpsertSiteStats(
	context.Context,
	string,
	string,
	int64,
	int64,
	string,
	time.Time,
) error {
	return nil
}

func (e *exampleProgressRepo) GetRun(context.Context, string) (store.InspectionRun, error) {
	return e.runs[0], nil
}

func (e *exampleProgressRepo) ListRuns(context.Context, *store.RunStatus, int, int) ([]store.InspectionRun, error) {
	return e.runs, nil
}

func (e *exampleProgressRepo) ListRunSites(context.Context, string, int, int) ([]store.SiteStats, error) {
	return nil, nil
}

// ExampleProgressHandler_ListRuns shows how to serve the /v1/runs endpoint.
func ExampleProgressHandler_ListRuns() {
	runID := "00000000-0000-0000-0000-0000000000aa"
	repo := &exampleProgressRepo{
		runs: []store.InspectionRun{{
			ID:           runID,
			InspectionID: runID,
			Status:       store.RunSuccess,
			StartedAt:    time.Unix(0, 0),
		}},
	}
	handler := NewProgressHandler(repo, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/v1/runs?limit=1", nil)
	rec := httptest.NewRecorder()
	handler.ListRuns(rec, req)

	var payload struct {
		Runs []map[string]any `json:"runs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		panic(err)
	}
	fmt.Printf("returned runs: %d\n", len(payload.Runs))
	// Output:
	// returned runs: 1
}
