package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/typetrace/fontinspector/internal/store"
)

func TestUpsertRunStartInsertsRunning(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewProgressStoreWithPool(mock)

	startedAt := time.Unix(1700000000, 0).UTC()
	mock.ExpectExec("INSERT INTO inspection_runs").
		WithArgs("insp-1", "insp-1", startedAt, store.RunRunning).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.UpsertRunStart(context.Background(), "insp-1", startedAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteRunStoresErrorMessage(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewProgressStoreWithPool(mock)

	finishedAt := time.Unix(1700000100, 0).UTC()
	errMsg := "fetch timed out"
	mock.ExpectExec("UPDATE inspection_runs").
		WithArgs(finishedAt, store.RunError, &errMsg, "insp-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.CompleteRun(context.Background(), "insp-1", finishedAt, store.RunError, &errMsg))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSiteStatsFallsBackToInsert(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewProgressStoreWithPool(mock)

	at := time.Unix(1700000200, 0).UTC()
	mock.ExpectExec("UPDATE site_stats").
		WithArgs(int64(2), int64(512), at, "insp-1", "fonts.example.com").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec("INSERT INTO site_stats").
		WithArgs("insp-1", "fonts.example.com", at, int64(2), int64(512), int64(2), int64(0), int64(0), int64(0)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.UpsertSiteStats(context.Background(), "insp-1", "fonts.example.com", 2, 512, "2xx", at)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSiteStatsRejectsUnknownClass(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewProgressStoreWithPool(mock)

	err = repo.UpsertSiteStats(context.Background(), "insp-1", "fonts.example.com", 1, 10, "teapot", time.Now())
	require.Error(t, err)
}

func TestGetRunMapsNoRowsToNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewProgressStoreWithPool(mock)

	mock.ExpectQuery("SELECT id, inspection_id, started_at").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"id", "inspection_id", "started_at", "finished_at", "status", "error_message"}))

	_, err = repo.GetRun(context.Background(), "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRunsScansRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewProgressStoreWithPool(mock)

	startedAt := time.Unix(1700000000, 0).UTC()
	status := store.RunSuccess
	rows := pgxmock.NewRows([]string{"id", "inspection_id", "started_at", "finished_at", "status", "error_message"}).
		AddRow("insp-1", "insp-1", startedAt, (*time.Time)(nil), store.RunSuccess, (*string)(nil))
	mock.ExpectQuery("SELECT id, inspection_id, started_at").
		WithArgs(&status, 10, 0).
		WillReturnRows(rows)

	runs, err := repo.ListRuns(context.Background(), &status, 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, "insp-1", runs[0].InspectionID)
	require.Equal(t, store.RunSuccess, runs[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}
