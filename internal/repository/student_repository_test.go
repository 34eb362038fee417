package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sis-billing-api/internal/models"
)

func TestStudentRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	born := time.Date(2014, time.March, 9, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "lrn", "full_name", "gender", "birth_date", "address", "phone",
		"current_grade_level", "highest_completed_grade", "active", "created_at", "updated_at"}).
		AddRow("stu-1", "136742090021", "Maria Santos", "F", born, "Quezon City", "09171234567", 6, 5, true, now, now)
	mock.ExpectQuery("SELECT .+ FROM students WHERE id = \\$1").
		WithArgs("stu-1").
		WillReturnRows(rows)

	student, err := repo.FindByID(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Equal(t, "136742090021", student.LRN)
	require.Equal(t, 6, student.CurrentGradeLevel)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryExistsByLRN(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery("SELECT 1 FROM students WHERE lrn = \\$1 LIMIT 1").
		WithArgs("136742090021").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsByLRN(context.Background(), "136742090021", "")
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryExistsByLRNExcludesSelf(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery("SELECT 1 FROM students WHERE lrn = \\$1 AND id <> \\$2 LIMIT 1").
		WithArgs("136742090021", "stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	exists, err := repo.ExistsByLRN(context.Background(), "136742090021", "stu-1")
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCreateAssignsID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec("INSERT INTO students").
		WillReturnResult(sqlmock.NewResult(0, 1))

	student := &models.Student{
		LRN:               "136742090021",
		FullName:          "Maria Santos",
		Gender:            "F",
		BirthDate:         time.Date(2014, time.March, 9, 0, 0, 0, 0, time.UTC),
		CurrentGradeLevel: 6,
		Active:            true,
	}
	require.NoError(t, repo.Create(context.Background(), student))
	require.NotEmpty(t, student.ID)
	require.False(t, student.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}
