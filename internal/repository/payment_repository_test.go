package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sis-billing-api/internal/models"
)

func TestPaymentRepositoryRecord(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	enrollment := &models.Enrollment{ID: "enr-1", AmountPaid: 500000, Balance: 2000000, PaymentStatus: models.PaymentStatusPartial}
	payment := &models.Payment{EnrollmentID: "enr-1", Amount: 500000, Method: models.PaymentMethodCash, ProcessedBy: "user-1"}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO payments").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE enrollments SET amount_paid").
		WithArgs("enr-1", int64(500000), int64(2000000), models.PaymentStatusPartial, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Record(context.Background(), enrollment, payment))
	require.NotEmpty(t, payment.ID)
	require.False(t, payment.ReceivedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryRecordRollsBackOnFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	enrollment := &models.Enrollment{ID: "enr-1"}
	payment := &models.Payment{EnrollmentID: "enr-1", Amount: 100}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO payments").WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	require.Error(t, repo.Record(context.Background(), enrollment, payment))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryListByEnrollment(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "enrollment_id", "amount", "method", "reference_no", "processed_by", "refund_of", "received_at", "created_at"}).
		AddRow("pay-1", "enr-1", int64(500000), models.PaymentMethodCash, "OR-1001", "user-1", nil, time.Now(), time.Now()).
		AddRow("pay-2", "enr-1", int64(-500000), models.PaymentMethodCash, "OR-1002", "user-1", "pay-1", time.Now(), time.Now())
	mock.ExpectQuery("SELECT .+ FROM payments WHERE enrollment_id").
		WithArgs("enr-1").
		WillReturnRows(rows)

	payments, err := repo.ListByEnrollment(context.Background(), "enr-1")
	require.NoError(t, err)
	require.Len(t, payments, 2)
	require.Equal(t, "pay-1", *payments[1].RefundOf)
	require.NoError(t, mock.ExpectationsWereMet())
}
