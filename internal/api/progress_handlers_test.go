package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/typetrace/fontinspector/internal/store"
)

func TestProgressHandlerListRuns(t *testing.T) {
	t.Parallel()

	repo := &mockProgressRepo{
		runs: []store.InspectionRun{
			{
				ID:           uuid.NewString(),
				InspectionID: uuid.NewString(),
				Status:       store.RunSuccess,
				StartedAt:    time.Now().Add(-time.Hour),
			},
		},
	}
	handler := NewProgressHandler(repo, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/v1/runs?status=success&limit=10", nil)
	rec := httptest.NewRecorder()

	handler.ListRuns(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body, "runs")
}

func TestProgressHandlerGetRunNotFound(t *testing.T) {
	t.Parallel()

	repo := &mockProgressRepo{err: store.ErrNotFound}
	handler := NewProgressHandler(repo, zap.NewNop())

	runID := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/v1/runs/"+runID, nil)
	req = withRunIDParam(req, runID)
	rec := httptest.NewRecorder()

	handler.GetRun(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProgressHandlerGetRunRejectsMalformedID(t *testing.T) {
	t.Parallel()

	handler := NewProgressHandler(&mockProgressRepo{}, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/v1/runs/not-a-uuid", nil)
	req = withRunIDParam(req, "not-a-uuid")
	rec := httptest.NewRecorder()

	handler.GetRun(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProgressHandlerListRunSitesInvalidLimit(t *testing.T) {
	t.Parallel()

	handler := NewProgressHandler(&mockProgressRepo{}, zap.NewNop())
	runID := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/v1/runs/"+runID+"/sites?limit=-1", nil)
	req = withRunIDParam(req, runID)
	rec := httptest.NewRecorder()

	handler.ListRunSites(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

type mockProgressRepo struct {
	runs  []store.InspectionRun
	sites []store.SiteStats
	err   error
}

func (m *mockProgressRepo) UpsertRunStart(context.Context, string, time.Time) error {
	return m.err
}

func (m *mockProgressRepo) CompleteRun(context.Context, string, time.Time, store.RunStatus, *string) error {
	return m.err
}

func (m *mockProgressRepo) UpsertSiteStats(context.Context, string, string, int64, int64, string, time.Time) error {
	return m.err
}

func (m *mockProgressRepo) GetRun(context.Context, string) (store.InspectionRun, error) {
	if len(m.runs) > 0 {
		return m.runs[0], nil
	}
	return store.InspectionRun{}, m.err
}

func (m *mockProgressRepo) ListRuns(context.Context, *store.RunStatus, int, int) ([]store.InspectionRun, error) {
	return m.runs, m.err
}

func (m *mockProgressRepo) ListRunSites(context.Context, string, int, int) ([]store.SiteStats, error) {
	return m.sites, m.err
}

func withRunIDParam(r *http.Request, runID string) *http.Request {
	ctx := chi.NewRouteContext()
	ctx.URLParams.Add("run_id", runID)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, ctx))
}
