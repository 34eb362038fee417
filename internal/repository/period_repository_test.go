package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestPeriodRepositoryFindActive(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPeriodRepository(db)

	start := time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 3, 0)
	rows := sqlmock.NewRows([]string{"id", "name", "school_year", "start_date", "end_date", "accepts_new",
		"accepts_returning", "active", "created_at", "updated_at"}).
		AddRow("per-1", "SY 2026-2027 Regular", "2026-2027", start, end, true, true, true, start, start)
	mock.ExpectQuery("SELECT .+ FROM enrollment_periods WHERE active = TRUE").
		WillReturnRows(rows)

	period, err := repo.FindActive(context.Background())
	require.NoError(t, err)
	require.Equal(t, "2026-2027", period.SchoolYear)
	require.True(t, period.Open(start.AddDate(0, 1, 0)))
	require.False(t, period.Open(end.AddDate(0, 0, 1)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPeriodRepositorySetActive(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPeriodRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE enrollment_periods SET active = FALSE").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE enrollment_periods SET active = TRUE").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.SetActive(context.Background(), "per-2"))
	require.NoError(t, mock.ExpectationsWereMet())
}
