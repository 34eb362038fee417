package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sis-billing-api/internal/models"
	appErrors "github.com/noah-isme/sis-billing-api/pkg/errors"
)

type billingEnrollmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	UpdateDiscount(ctx context.Context, enrollment *models.Enrollment) error
	CollectionsSummary(ctx context.Context, schoolYear string) (*models.CollectionsSummary, error)
}

type paymentLedger interface {
	Record(ctx context.Context, enrollment *models.Enrollment, payment *models.Payment) error
	FindByID(ctx context.Context, id string) (*models.Payment, error)
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Payment, error)
}

// RecordPaymentRequest describes an incoming payment in minor currency units.
type RecordPaymentRequest struct {
	Amount      int64                `json:"amount" validate:"required,gt=0"`
	Method      models.PaymentMethod `json:"method" validate:"required,oneof=CASH BANK_TRANSFER GCASH CARD"`
	ReferenceNo string               `json:"reference_no"`
}

// ApplyDiscountRequest changes the discount on an enrollment.
type ApplyDiscountRequest struct {
	Kind  models.DiscountType `json:"kind" validate:"required"`
	Value int64               `json:"value"`
}

// BillingService owns fee computation, payment application and discounts.
// Payment status is only ever derived here; no other component writes it.
type BillingService struct {
	enrollments billingEnrollmentRepository
	payments    paymentLedger
	fees        feeScheduleReader
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewBillingService constructs BillingService.
func NewBillingService(enrollments billingEnrollmentRepository, payments paymentLedger, fees feeScheduleReader, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *BillingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BillingService{enrollments: enrollments, payments: payments, fees: fees, cache: cache, metrics: metrics, validator: validate, logger: logger}
}

// CalculateFees looks up the active fee schedule for a grade level and period
// and returns the computed breakdown plus whether the schedule came from
// cache. A missing schedule yields an all-zero breakdown; pilot grade levels
// without published fees are a valid state.
func (s *BillingService) CalculateFees(ctx context.Context, gradeLevel int, periodID string, discountPercent int64) (models.FeeBreakdown, bool, error) {
	if discountPercent < 0 || discountPercent > 100 {
		return models.FeeBreakdown{}, false, appErrors.Clone(appErrors.ErrInvalidDiscount, "discount percent out of range")
	}

	cacheKey := fmt.Sprintf("fees:%s:%d", periodID, gradeLevel)
	var fee models.GradeLevelFee
	if s.cache.Enabled() {
		if hit, _ := s.cache.Get(ctx, cacheKey, &fee); hit {
			return ComputeFeeBreakdown(&fee, discountPercent), true, nil
		}
	}

	found, err := s.fees.FindActive(ctx, gradeLevel, periodID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ComputeFeeBreakdown(nil, discountPercent), false, nil
		}
		return models.FeeBreakdown{}, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee schedule")
	}

	if s.cache.Enabled() {
		if err := s.cache.Set(ctx, cacheKey, found, 0); err != nil {
			s.logger.Warn("failed to cache fee schedule", zap.Error(err))
		}
	}
	return ComputeFeeBreakdown(found, discountPercent), false, nil
}

// PaymentPlan generates the installment schedule for an amount and plan kind
// anchored at the current time.
func (s *BillingService) PaymentPlan(totalAmount int64, kind models.PaymentPlanKind) models.PaymentPlan {
	return BuildPaymentPlan(totalAmount, kind, time.Now().UTC())
}

// RecordPayment applies a payment to an enrollment, appending a ledger row and
// updating the paid/balance snapshot in one transaction. A payment that would
// drive the balance negative is rejected rather than clamped, so cashier
// typos surface immediately.
func (s *BillingService) RecordPayment(ctx context.Context, enrollmentID, actorID string, req RecordPaymentRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}

	enrollment, err := s.loadEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if enrollment.Status == models.EnrollmentStatusRejected || enrollment.Status == models.EnrollmentStatusWithdrawn {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment is not payable")
	}
	if req.Amount > enrollment.Balance {
		return nil, appErrors.Clone(appErrors.ErrOverpaymentRejected, "")
	}

	enrollment.AmountPaid, enrollment.Balance, enrollment.PaymentStatus = applyPaymentAmounts(enrollment.NetAmount, enrollment.AmountPaid, req.Amount)

	payment := &models.Payment{
		EnrollmentID: enrollmentID,
		Amount:       req.Amount,
		Method:       req.Method,
		ReferenceNo:  req.ReferenceNo,
		ProcessedBy:  actorID,
	}
	if err := s.payments.Record(ctx, enrollment, payment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment")
	}

	if s.metrics != nil {
		s.metrics.RecordPayment(req.Amount)
	}
	s.logger.Info("payment recorded",
		zap.String("enrollment_id", enrollmentID),
		zap.String("payment_id", payment.ID),
		zap.Int64("amount", req.Amount),
		zap.String("processed_by", actorID))

	detail, err := s.enrollments.FindDetailByID(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// Refund reverses an earlier payment by appending a negative-amount ledger
// row linked to the original. The original row is never mutated.
func (s *BillingService) Refund(ctx context.Context, paymentID, actorID string) (*models.EnrollmentDetail, error) {
	original, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	if original.Amount <= 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "cannot refund a refund")
	}

	// Each payment may be reversed at most once.
	ledger, err := s.payments.ListByEnrollment(ctx, original.EnrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payments")
	}
	for _, p := range ledger {
		if p.RefundOf != nil && *p.RefundOf == original.ID {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "payment has already been refunded")
		}
	}

	enrollment, err := s.loadEnrollment(ctx, original.EnrollmentID)
	if err != nil {
		return nil, err
	}

	enrollment.AmountPaid, enrollment.Balance, enrollment.PaymentStatus = applyPaymentAmounts(enrollment.NetAmount, enrollment.AmountPaid, -original.Amount)

	refund := &models.Payment{
		EnrollmentID: original.EnrollmentID,
		Amount:       -original.Amount,
		Method:       original.Method,
		ReferenceNo:  original.ReferenceNo,
		ProcessedBy:  actorID,
		RefundOf:     &original.ID,
	}
	if err := s.payments.Record(ctx, enrollment, refund); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record refund")
	}

	s.logger.Info("payment refunded",
		zap.String("enrollment_id", original.EnrollmentID),
		zap.String("payment_id", original.ID),
		zap.Int64("amount", original.Amount),
		zap.String("processed_by", actorID))

	detail, err := s.enrollments.FindDetailByID(ctx, original.EnrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// ApplyDiscount recomputes the net amount and balance for a new discount and
// re-derives the payment status.
func (s *BillingService) ApplyDiscount(ctx context.Context, enrollmentID string, req ApplyDiscountRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid discount payload")
	}

	enrollment, err := s.loadEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if enrollment.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment is closed")
	}

	discountAmount, err := ComputeDiscount(enrollment.TotalAmount, req.Kind, req.Value)
	if err != nil {
		return nil, err
	}

	net := enrollment.TotalAmount - discountAmount
	if net < 0 {
		net = 0
	}
	balance := net - enrollment.AmountPaid
	if balance < 0 {
		balance = 0
	}

	enrollment.DiscountType = req.Kind
	enrollment.DiscountValue = req.Value
	enrollment.NetAmount = net
	enrollment.Balance = balance
	enrollment.PaymentStatus = DerivePaymentStatus(net, enrollment.AmountPaid)

	if err := s.enrollments.UpdateDiscount(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply discount")
	}

	detail, err := s.enrollments.FindDetailByID(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// Payments returns the full ledger for an enrollment, refunds included.
func (s *BillingService) Payments(ctx context.Context, enrollmentID string) ([]models.Payment, error) {
	if _, err := s.loadEnrollment(ctx, enrollmentID); err != nil {
		return nil, err
	}
	payments, err := s.payments.ListByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	return payments, nil
}

// CollectionsSummary aggregates billed and collected totals for a school year.
func (s *BillingService) CollectionsSummary(ctx context.Context, schoolYear string) (*models.CollectionsSummary, error) {
	if schoolYear == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "school year is required")
	}
	summary, err := s.enrollments.CollectionsSummary(ctx, schoolYear)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute collections summary")
	}
	return summary, nil
}

func (s *BillingService) loadEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}
