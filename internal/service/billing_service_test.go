package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sis-billing-api/internal/models"
	appErrors "github.com/noah-isme/sis-billing-api/pkg/errors"
)

type mockBillingRepo struct {
	enrollments map[string]*models.Enrollment
	summary     *models.CollectionsSummary
	updateErr   error
}

func (m *mockBillingRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		copy := *e
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockBillingRepo) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if e, ok := m.enrollments[id]; ok {
		return &models.EnrollmentDetail{Enrollment: *e}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockBillingRepo) UpdateDiscount(ctx context.Context, enrollment *models.Enrollment) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	copy := *enrollment
	m.enrollments[enrollment.ID] = &copy
	return nil
}

func (m *mockBillingRepo) CollectionsSummary(ctx context.Context, schoolYear string) (*models.CollectionsSummary, error) {
	if m.summary == nil {
		return &models.CollectionsSummary{SchoolYear: schoolYear}, nil
	}
	return m.summary, nil
}

type mockPaymentLedger struct {
	repo      *mockBillingRepo
	payments  map[string]*models.Payment
	recorded  []*models.Payment
	recordErr error
}

func (m *mockPaymentLedger) Record(ctx context.Context, enrollment *models.Enrollment, payment *models.Payment) error {
	if m.recordErr != nil {
		return m.recordErr
	}
	if m.payments == nil {
		m.payments = make(map[string]*models.Payment)
	}
	payment.ID = fmt.Sprintf("pay-%d", len(m.payments)+1)
	copy := *payment
	m.payments[payment.ID] = &copy
	m.recorded = append(m.recorded, &copy)
	stored := *enrollment
	m.repo.enrollments[enrollment.ID] = &stored
	return nil
}

func (m *mockPaymentLedger) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	if p, ok := m.payments[id]; ok {
		copy := *p
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockPaymentLedger) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Payment, error) {
	var out []models.Payment
	for _, p := range m.recorded {
		if p.EnrollmentID == enrollmentID {
			out = append(out, *p)
		}
	}
	return out, nil
}

type billingFixture struct {
	repo    *mockBillingRepo
	ledger  *mockPaymentLedger
	fees    *mockFeeReader
	service *BillingService
}

func newBillingFixture() *billingFixture {
	repo := &mockBillingRepo{enrollments: map[string]*models.Enrollment{
		"enr-1": {
			ID:            "enr-1",
			Status:        models.EnrollmentStatusEnrolled,
			PaymentStatus: models.PaymentStatusPending,
			TotalAmount:   2500000,
			DiscountType:  models.DiscountTypeNone,
			NetAmount:     2500000,
			AmountPaid:    0,
			Balance:       2500000,
		},
	}}
	f := &billingFixture{
		repo:   repo,
		ledger: &mockPaymentLedger{repo: repo},
		fees: &mockFeeReader{fee: &models.GradeLevelFee{
			GradeLevel: 1,
			PeriodID:   "per-1",
			TuitionFee: 2000000,
			MiscFee:    500000,
			Active:     true,
		}},
	}
	f.service = NewBillingService(f.repo, f.ledger, f.fees, nil, nil, nil, nil)
	return f
}

func TestBillingServiceRecordPayment(t *testing.T) {
	f := newBillingFixture()

	detail, err := f.service.RecordPayment(context.Background(), "enr-1", "user-1", RecordPaymentRequest{
		Amount: 1000000,
		Method: models.PaymentMethodCash,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1000000), detail.AmountPaid)
	assert.Equal(t, int64(1500000), detail.Balance)
	assert.Equal(t, models.PaymentStatusPartial, detail.PaymentStatus)
	require.Len(t, f.ledger.recorded, 1)
	assert.Equal(t, "user-1", f.ledger.recorded[0].ProcessedBy)
}

func TestBillingServiceRecordPaymentSettlesBalance(t *testing.T) {
	f := newBillingFixture()

	_, err := f.service.RecordPayment(context.Background(), "enr-1", "user-1", RecordPaymentRequest{
		Amount: 1000000,
		Method: models.PaymentMethodCash,
	})
	require.NoError(t, err)

	detail, err := f.service.RecordPayment(context.Background(), "enr-1", "user-1", RecordPaymentRequest{
		Amount: 1500000,
		Method: models.PaymentMethodBankTransfer,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), detail.Balance)
	assert.Equal(t, models.PaymentStatusPaid, detail.PaymentStatus)
}

func TestBillingServiceRecordPaymentRejectsOverpayment(t *testing.T) {
	f := newBillingFixture()

	_, err := f.service.RecordPayment(context.Background(), "enr-1", "user-1", RecordPaymentRequest{
		Amount: 2500001,
		Method: models.PaymentMethodCash,
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrOverpaymentRejected))
	assert.Empty(t, f.ledger.recorded)
}

func TestBillingServiceRecordPaymentRejectsClosedEnrollment(t *testing.T) {
	f := newBillingFixture()
	f.repo.enrollments["enr-1"].Status = models.EnrollmentStatusWithdrawn

	_, err := f.service.RecordPayment(context.Background(), "enr-1", "user-1", RecordPaymentRequest{
		Amount: 100,
		Method: models.PaymentMethodCash,
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrPreconditionFailed))
}

func TestBillingServiceRecordPaymentValidatesAmount(t *testing.T) {
	f := newBillingFixture()

	_, err := f.service.RecordPayment(context.Background(), "enr-1", "user-1", RecordPaymentRequest{
		Amount: -500,
		Method: models.PaymentMethodCash,
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestBillingServiceRefund(t *testing.T) {
	f := newBillingFixture()

	_, err := f.service.RecordPayment(context.Background(), "enr-1", "user-1", RecordPaymentRequest{
		Amount:      1000000,
		Method:      models.PaymentMethodGCash,
		ReferenceNo: "OR-1001",
	})
	require.NoError(t, err)

	detail, err := f.service.Refund(context.Background(), "pay-1", "user-2")
	require.NoError(t, err)
	assert.Equal(t, int64(0), detail.AmountPaid)
	assert.Equal(t, int64(2500000), detail.Balance)
	assert.Equal(t, models.PaymentStatusPending, detail.PaymentStatus)

	require.Len(t, f.ledger.recorded, 2)
	refund := f.ledger.recorded[1]
	assert.Equal(t, int64(-1000000), refund.Amount)
	require.NotNil(t, refund.RefundOf)
	assert.Equal(t, "pay-1", *refund.RefundOf)
}

func TestBillingServiceRefundTwiceRejected(t *testing.T) {
	f := newBillingFixture()

	_, err := f.service.RecordPayment(context.Background(), "enr-1", "user-1", RecordPaymentRequest{
		Amount: 1000000,
		Method: models.PaymentMethodCash,
	})
	require.NoError(t, err)

	detail, err := f.service.Refund(context.Background(), "pay-1", "user-2")
	require.NoError(t, err)
	assert.Equal(t, int64(0), detail.AmountPaid)

	_, err = f.service.Refund(context.Background(), "pay-1", "user-2")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrPreconditionFailed))

	stored := f.repo.enrollments["enr-1"]
	assert.Equal(t, int64(0), stored.AmountPaid)
	assert.Equal(t, int64(2500000), stored.Balance)
	require.Len(t, f.ledger.recorded, 2)
}

func TestBillingServiceRefundOfRefundRejected(t *testing.T) {
	f := newBillingFixture()

	_, err := f.service.RecordPayment(context.Background(), "enr-1", "user-1", RecordPaymentRequest{
		Amount: 500000,
		Method: models.PaymentMethodCash,
	})
	require.NoError(t, err)
	_, err = f.service.Refund(context.Background(), "pay-1", "user-2")
	require.NoError(t, err)

	_, err = f.service.Refund(context.Background(), "pay-2", "user-2")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrPreconditionFailed))
}

func TestBillingServiceApplyDiscountPercentage(t *testing.T) {
	f := newBillingFixture()

	detail, err := f.service.ApplyDiscount(context.Background(), "enr-1", ApplyDiscountRequest{
		Kind:  models.DiscountTypePercentage,
		Value: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2250000), detail.NetAmount)
	assert.Equal(t, int64(2250000), detail.Balance)
	assert.Equal(t, models.PaymentStatusPending, detail.PaymentStatus)
}

func TestBillingServiceApplyDiscountAfterPayment(t *testing.T) {
	f := newBillingFixture()

	_, err := f.service.RecordPayment(context.Background(), "enr-1", "user-1", RecordPaymentRequest{
		Amount: 2250000,
		Method: models.PaymentMethodCash,
	})
	require.NoError(t, err)

	detail, err := f.service.ApplyDiscount(context.Background(), "enr-1", ApplyDiscountRequest{
		Kind:  models.DiscountTypePercentage,
		Value: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2250000), detail.NetAmount)
	assert.Equal(t, int64(0), detail.Balance)
	assert.Equal(t, models.PaymentStatusPaid, detail.PaymentStatus)
}

func TestBillingServiceApplyDiscountFixedExceedingTotal(t *testing.T) {
	f := newBillingFixture()

	detail, err := f.service.ApplyDiscount(context.Background(), "enr-1", ApplyDiscountRequest{
		Kind:  models.DiscountTypeFixed,
		Value: 3000000,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), detail.NetAmount)
	assert.Equal(t, int64(0), detail.Balance)
	assert.Equal(t, models.PaymentStatusPaid, detail.PaymentStatus)
}

func TestBillingServiceApplyDiscountInvalid(t *testing.T) {
	f := newBillingFixture()

	_, err := f.service.ApplyDiscount(context.Background(), "enr-1", ApplyDiscountRequest{
		Kind:  models.DiscountTypePercentage,
		Value: 150,
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidDiscount))
}

func TestBillingServiceCalculateFees(t *testing.T) {
	f := newBillingFixture()

	breakdown, cached, err := f.service.CalculateFees(context.Background(), 1, "per-1", 0)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, int64(2000000), breakdown.Tuition)
	assert.Equal(t, int64(500000), breakdown.Miscellaneous)
	assert.Equal(t, int64(2500000), breakdown.Total)
}

func TestBillingServiceCalculateFeesMissingSchedule(t *testing.T) {
	f := newBillingFixture()
	f.fees.fee = nil

	breakdown, _, err := f.service.CalculateFees(context.Background(), 9, "per-1", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), breakdown.Total)
}

func TestBillingServicePayments(t *testing.T) {
	f := newBillingFixture()

	_, err := f.service.RecordPayment(context.Background(), "enr-1", "user-1", RecordPaymentRequest{
		Amount: 500000,
		Method: models.PaymentMethodCash,
	})
	require.NoError(t, err)
	_, err = f.service.Refund(context.Background(), "pay-1", "user-1")
	require.NoError(t, err)

	payments, err := f.service.Payments(context.Background(), "enr-1")
	require.NoError(t, err)
	require.Len(t, payments, 2)
}

func TestBillingServiceCollectionsSummary(t *testing.T) {
	f := newBillingFixture()
	f.repo.summary = &models.CollectionsSummary{
		SchoolYear:       "2026-2027",
		EnrollmentCount:  42,
		TotalBilled:      105000000,
		TotalCollected:   63000000,
		TotalOutstanding: 42000000,
	}

	summary, err := f.service.CollectionsSummary(context.Background(), "2026-2027")
	require.NoError(t, err)
	assert.Equal(t, 42, summary.EnrollmentCount)
	assert.Equal(t, int64(42000000), summary.TotalOutstanding)

	_, err = f.service.CollectionsSummary(context.Background(), "")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}
