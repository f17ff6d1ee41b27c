package sinks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/typetrace/fontinspector/internal/progress"
	"github.com/typetrace/fontinspector/internal/store"
)

// TestStoreSinkPersistsEvents ensures visits/bytes are collapsed per site before persisting.
func TestStoreSinkPersistsEvents(t *testing.T) {
	t.Parallel()

	repo := &fakeProgressRepo{}
	sink := NewStoreSink(repo, nil)
	inspectionUUID := uuid.New()
	inspectionID := progress.UUIDToBytes(inspectionUUID)
	now := time.Now()

	batch := []progress.Event{
		{InspectionID: inspectionID, Stage: progress.StageInspectStart, TS: now},
		{
			InspectionID: inspectionID,
			Stage:        progress.StageFetchDone,
			Site:         "fonts.example.com",
			Bytes:        100,
			Visits:       1,
			StatusClass:  progress.Status2xx,
			TS:           now.Add(1 * time.Second),
		},
		{
			InspectionID: inspectionID,
			Stage:        progress.StageFetchDone,
			Site:         "fonts.example.com",
			Bytes:        50,
			Visits:       2,
			StatusClass:  progress.Status2xx,
			TS:           now.Add(2 * time.Second),
		},
		{InspectionID: inspectionID, Stage: progress.StageInspectDone, TS: now.Add(3 * time.Second), Dur: 3 * time.Second},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, []string{inspectionUUID.String()}, repo.starts)
	require.Len(t, repo.completes, 1)
	require.Equal(t, store.RunSuccess, repo.completes[0].status)
	require.Len(t, repo.siteStats, 1)
	stats := repo.siteStats[0]
	require.Equal(t, inspectionUUID.String(), stats.inspectionID)
	require.Equal(t, "fonts.example.com", stats.site)
	require.Equal(t, int64(3), stats.deltaVisits)
	require.Equal(t, int64(150), stats.deltaBytes)
	require.Equal(t, "2xx", stats.statusClass)
}

// TestStoreSinkRecordsErrorNote verifies a failed inspection carries its note.
func TestStoreSinkRecordsErrorNote(t *testing.T) {
	t.Parallel()

	repo := &fakeProgressRepo{}
	sink := NewStoreSink(repo, nil)
	inspectionID := progress.UUIDToBytes(uuid.New())

	batch := []progress.Event{
		{
			InspectionID: inspectionID,
			Stage:        progress.StageInspectError,
			TS:           time.Now(),
			Note:         "fetch timed out",
		},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))
	require.Len(t, repo.completes, 1)
	require.Equal(t, store.RunError, repo.completes[0].status)
	require.NotNil(t, repo.completes[0].errMsg)
	require.Equal(t, "fetch timed out", *repo.completes[0].errMsg)
}

// TestStoreSinkSurfacesRepoErrors returns repository failures to the hub.
func TestStoreSinkSurfacesRepoErrors(t *testing.T) {
	t.Parallel()

	repo := &fakeProgressRepo{fail: errors.New("connection reset")}
	sink := NewStoreSink(repo, nil)
	inspectionID := progress.UUIDToBytes(uuid.New())

	err := sink.Consume(context.Background(), []progress.Event{
		{InspectionID: inspectionID, Stage: progress.StageInspectStart, TS: time.Now()},
	})
	require.Error(t, err)
}

type fakeProgressRepo struct {
	fail      error
	starts    []string
	completes []completeCall
	siteStats []siteCall
}

type completeCall struct {
	inspectionID string
	status       store.RunStatus
	errMsg       *string
}

type siteCall struct {
	inspectionID string
	site         string
	deltaVisits  int64
	deltaBytes   int64
	statusClass  string
}

func (f *fakeProgressRepo) UpsertRunStart(_ context.Context, inspectionID string, _ time.Time) error {
	if f.fail != nil {
		return f.fail
	}
	f.starts = append(f.starts, inspectionID)
	return nil
}

func (f *fakeProgressRepo) CompleteRun(
	_ context.Context,
	inspectionID string,
	_ time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	if f.fail != nil {
		return f.fail
	}
	f.completes = append(f.completes, completeCall{inspectionID: inspectionID, status: status, errMsg: errMsg})
	return nil
}

func (f *fakeProgressRepo) UpsertSiteStats(
	_ context.Context,
	inspectionID string,
	site string,
	deltaVisits int64,
	deltaBytes int64,
	statusClass string,
	_ time.Time,
) error {
	if f.fail != nil {
		return f.fail
	}
	f.siteStats = append(f.siteStats, siteCall{
		inspectionID: inspectionID,
		site:         site,
		deltaVisits:  deltaVisits,
		deltaBytes:   deltaBytes,
		statusClass:  statusClass,
	})
	return nil
}

func (f *fakeProgressRepo) GetRun(context.Context, string) (store.InspectionRun, error) {
	return store.InspectionRun{}, store.ErrNotFound
}

func (f *fakeProgressRepo) ListRuns(context.Context, *store.RunStatus, int, int) ([]store.InspectionRun, error) {
	return nil, nil
}

func (f *fakeProgressRepo) ListRunSites(context.Context, string, int, int) ([]store.SiteStats, error) {
	return nil, nil
}
