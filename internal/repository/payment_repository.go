package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sis-billing-api/internal/models"
)

// PaymentRepository handles the append-only payment ledger and the coupled
// enrollment monetary snapshot.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, enrollment_id, amount, method, reference_no, processed_by, refund_of, received_at, created_at`

// Record appends a payment row and updates the enrollment's paid/balance
// snapshot in one transaction. Payment rows are never mutated afterwards.
func (r *PaymentRepository) Record(ctx context.Context, enrollment *models.Enrollment, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if payment.ReceivedAt.IsZero() {
		payment.ReceivedAt = now
	}
	payment.CreatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record payment tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insert = `INSERT INTO payments (id, enrollment_id, amount, method, reference_no, processed_by, refund_of, received_at, created_at)
        VALUES (:id, :enrollment_id, :amount, :method, :reference_no, :processed_by, :refund_of, :received_at, :created_at)`
	if _, err = tx.NamedExecContext(ctx, insert, payment); err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE enrollments SET amount_paid = $2, balance = $3, payment_status = $4, updated_at = $5 WHERE id = $1`,
		enrollment.ID, enrollment.AmountPaid, enrollment.Balance, enrollment.PaymentStatus, now); err != nil {
		return fmt.Errorf("update enrollment balance: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit record payment tx: %w", err)
	}
	return nil
}

// FindByID returns a single payment row.
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE id = $1`, paymentColumns)
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, id); err != nil {
		return nil, err
	}
	return &payment, nil
}

// ListByEnrollment returns the payment history for an enrollment, oldest first.
func (r *PaymentRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE enrollment_id = $1 ORDER BY received_at ASC`, paymentColumns)
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}
