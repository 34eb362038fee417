package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sis-billing-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestEnrollmentRepositoryExistsActive(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE student_id = $1 AND school_year = $2 AND status IN ($3, $4) LIMIT 1")).
		WithArgs("stu-1", "2026-2027", models.EnrollmentStatusPending, models.EnrollmentStatusEnrolled).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsActive(context.Background(), "stu-1", "2026-2027")
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryExistsActiveNoRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery("SELECT 1 FROM enrollments").
		WithArgs("stu-2", "2026-2027", models.EnrollmentStatusPending, models.EnrollmentStatusEnrolled).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	exists, err := repo.ExistsActive(context.Background(), "stu-2", "2026-2027")
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateLocksPeriodForCodeMinting(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	enrollment := &models.Enrollment{
		StudentID:  "stu-1",
		PeriodID:   "per-1",
		SchoolYear: "2026-2027",
		GradeLevel: 4,
		Status:     models.EnrollmentStatusPending,
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT id FROM enrollment_periods WHERE id = $1 FOR UPDATE")).
		WithArgs("per-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) + 1 FROM enrollments WHERE period_id = $1")).
		WithArgs("per-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(4))
	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), enrollment))
	require.Equal(t, "ENR-2026-000004", enrollment.ReferenceCode)
	require.NotEmpty(t, enrollment.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListCountsWithFilterArgsOnly(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM enrollments`).
		WithArgs("2026-2027").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT e.id, e.reference_code").
		WithArgs("2026-2027").
		WillReturnRows(sqlmock.NewRows([]string{"id", "reference_code", "school_year", "balance", "student_name"}).
			AddRow("enr-1", "ENR-2026-000001", "2026-2027", int64(2000000), "Maria Santos"))

	list, total, err := repo.List(context.Background(), models.EnrollmentFilter{
		SchoolYear: "2026-2027",
		SortBy:     "balance",
		SortOrder:  "asc",
		Page:       2,
		PageSize:   10,
	})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, list, 1)
	require.Equal(t, "ENR-2026-000001", list[0].ReferenceCode)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryApproveCommitsBothWrites(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now().UTC()
	enrollment := &models.Enrollment{ID: "enr-1", StudentID: "stu-1", GradeLevel: 4}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE enrollments SET status").
		WithArgs("enr-1", models.EnrollmentStatusEnrolled, "user-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE students SET current_grade_level").
		WithArgs("stu-1", 4, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Approve(context.Background(), enrollment, "user-1", now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryApproveRollsBackOnFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now().UTC()
	enrollment := &models.Enrollment{ID: "enr-1", StudentID: "stu-1", GradeLevel: 4}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE enrollments SET status").
		WithArgs("enr-1", models.EnrollmentStatusEnrolled, "user-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE students SET current_grade_level").
		WithArgs("stu-1", 4, now).
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	require.Error(t, repo.Approve(context.Background(), enrollment, "user-1", now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryBulkApproveSkipsNonPending(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE enrollments SET status").
		WithArgs("enr-1", models.EnrollmentStatusEnrolled, "user-1", now, models.EnrollmentStatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "grade_level"}).AddRow("stu-1", 3))
	mock.ExpectExec("UPDATE students SET current_grade_level").
		WithArgs("stu-1", 3, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("UPDATE enrollments SET status").
		WithArgs("enr-2", models.EnrollmentStatusEnrolled, "user-1", now, models.EnrollmentStatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "grade_level"}))
	mock.ExpectCommit()

	count, err := repo.BulkApprove(context.Background(), []string{"enr-1", "enr-2"}, "user-1", now)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCollectionsSummary(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"school_year", "enrollment_count", "total_billed", "total_collected", "total_outstanding"}).
		AddRow("2026-2027", 12, int64(30000000), int64(18000000), int64(12000000))
	mock.ExpectQuery("SELECT .+ FROM enrollments WHERE school_year").
		WithArgs("2026-2027", models.EnrollmentStatusRejected).
		WillReturnRows(rows)

	summary, err := repo.CollectionsSummary(context.Background(), "2026-2027")
	require.NoError(t, err)
	require.Equal(t, int64(12000000), summary.TotalOutstanding)
	require.NoError(t, mock.ExpectationsWereMet())
}
