package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/sis-billing-api/internal/models"
	appErrors "github.com/noah-isme/sis-billing-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	ExistsActive(ctx context.Context, studentID, schoolYear string) (bool, error)
	HasHistory(ctx context.Context, studentID string) (bool, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	Approve(ctx context.Context, enrollment *models.Enrollment, approvedBy string, approvedAt time.Time) error
	Reject(ctx context.Context, id, reason, rejectedBy string, rejectedAt time.Time) error
	BulkApprove(ctx context.Context, ids []string, approvedBy string, approvedAt time.Time) (int, error)
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, remarks *string) error
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type guardianReader interface {
	FindByID(ctx context.Context, id string) (*models.Guardian, error)
}

type activePeriodResolver interface {
	FindActive(ctx context.Context) (*models.EnrollmentPeriod, error)
}

type feeScheduleReader interface {
	FindActive(ctx context.Context, gradeLevel int, periodID string) (*models.GradeLevelFee, error)
}

// CreateEnrollmentRequest describes an enrollment application. Any school year
// the client supplies is ignored; applications always land in the active
// period.
type CreateEnrollmentRequest struct {
	StudentID  string         `json:"student_id" validate:"required"`
	GuardianID string         `json:"guardian_id" validate:"required"`
	GradeLevel int            `json:"grade_level" validate:"required,min=1,max=12"`
	Quarter    models.Quarter `json:"quarter" validate:"omitempty,oneof=Q1 Q2 Q3 Q4"`
}

// RejectEnrollmentRequest carries the rejection reason.
type RejectEnrollmentRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// BulkApproveRequest lists the enrollments to approve in one batch.
type BulkApproveRequest struct {
	EnrollmentIDs []string `json:"enrollment_ids" validate:"required,min=1,dive,required"`
}

// EnrollmentService owns the enrollment lifecycle: application intake,
// eligibility checks, approval and rejection, completion and withdrawal.
type EnrollmentService struct {
	repo      enrollmentRepository
	students  studentReader
	guardians guardianReader
	periods   activePeriodResolver
	fees      feeScheduleReader
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, students studentReader, guardians guardianReader, periods activePeriodResolver, fees feeScheduleReader, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, students: students, guardians: guardians, periods: periods, fees: fees, metrics: metrics, validator: validate, logger: logger}
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return enrollments, pagination, nil
}

// Get returns a single enrollment with contextual info.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

// Create applies a student for enrollment in the active period. Eligibility
// checks run in a fixed order and the first failure wins; the fee snapshot is
// taken from the active grade-level schedule at creation time.
func (s *EnrollmentService) Create(ctx context.Context, req CreateEnrollmentRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	now := time.Now().UTC()

	period, err := s.periods.FindActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrEnrollmentClosed, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve active period")
	}
	if !period.Open(now) {
		return nil, appErrors.Clone(appErrors.ErrEnrollmentClosed, "")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student inactive")
	}
	if _, err := s.guardians.FindByID(ctx, req.GuardianID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "guardian not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load guardian")
	}

	returning, err := s.repo.HasHistory(ctx, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment history")
	}

	quarter := req.Quarter
	if quarter == "" {
		quarter = models.QuarterFirst
	}
	if !returning {
		if !period.AcceptsNew {
			return nil, appErrors.Clone(appErrors.ErrNewStudentsNotAccepted, "")
		}
	} else {
		if !period.AcceptsReturning {
			return nil, appErrors.Clone(appErrors.ErrReturningStudentsNotAccepted, "")
		}
		// Returning students always start at the period's first quarter.
		quarter = models.QuarterFirst
		if req.GradeLevel < student.HighestCompletedGrade {
			return nil, appErrors.Clone(appErrors.ErrGradeLevelRegression, "")
		}
	}

	exists, err := s.repo.ExistsActive(ctx, req.StudentID, period.SchoolYear)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate enrollment")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicateEnrollment, "")
	}

	fee, err := s.fees.FindActive(ctx, req.GradeLevel, period.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee schedule")
	}
	breakdown := ComputeFeeBreakdown(fee, 0)

	enrollment := &models.Enrollment{
		StudentID:     req.StudentID,
		GuardianID:    req.GuardianID,
		PeriodID:      period.ID,
		SchoolYear:    period.SchoolYear,
		GradeLevel:    req.GradeLevel,
		Quarter:       quarter,
		Status:        models.EnrollmentStatusPending,
		PaymentStatus: models.PaymentStatusPending,
		TuitionFee:    breakdown.Tuition,
		MiscFee:       breakdown.Miscellaneous,
		LaboratoryFee: breakdown.Laboratory,
		TotalAmount:   breakdown.Total,
		DiscountType:  models.DiscountTypeNone,
		NetAmount:     breakdown.Total,
		AmountPaid:    0,
		Balance:       breakdown.Total,
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, appErrors.Clone(appErrors.ErrDuplicateEnrollment, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	if s.metrics != nil {
		s.metrics.RecordEnrollmentCreated()
	}
	s.logger.Info("enrollment created",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("reference_code", enrollment.ReferenceCode),
		zap.String("student_id", enrollment.StudentID),
		zap.String("school_year", enrollment.SchoolYear))

	detail, err := s.repo.FindDetailByID(ctx, enrollment.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// Approve transitions a pending enrollment to ENROLLED and propagates the
// approved grade level to the student, stamping the approver identity.
func (s *EnrollmentService) Approve(ctx context.Context, id, actorID string) (*models.EnrollmentDetail, error) {
	enrollment, err := s.loadEnrollment(ctx, id)
	if err != nil {
		return nil, err
	}
	if enrollment.Status != models.EnrollmentStatusPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only pending enrollments can be approved")
	}

	now := time.Now().UTC()
	if err := s.repo.Approve(ctx, enrollment, actorID, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve enrollment")
	}
	if s.metrics != nil {
		s.metrics.RecordEnrollmentApproved()
	}

	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// Reject transitions a pending enrollment to the terminal REJECTED status,
// storing the reason in remarks. There is no un-reject operation.
func (s *EnrollmentService) Reject(ctx context.Context, id, actorID string, req RejectEnrollmentRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rejection payload")
	}
	enrollment, err := s.loadEnrollment(ctx, id)
	if err != nil {
		return nil, err
	}
	if enrollment.Status != models.EnrollmentStatusPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only pending enrollments can be rejected")
	}

	if err := s.repo.Reject(ctx, id, req.Reason, actorID, time.Now().UTC()); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject enrollment")
	}

	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// BulkApprove approves every referenced enrollment still pending inside one
// transaction; non-pending ids are skipped silently. Returns the count
// actually transitioned.
func (s *EnrollmentService) BulkApprove(ctx context.Context, actorID string, req BulkApproveRequest) (int, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk approve payload")
	}
	count, err := s.repo.BulkApprove(ctx, req.EnrollmentIDs, actorID, time.Now().UTC())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to bulk approve enrollments")
	}
	if s.metrics != nil {
		for i := 0; i < count; i++ {
			s.metrics.RecordEnrollmentApproved()
		}
	}
	return count, nil
}

// Complete closes out an enrolled student's school year.
func (s *EnrollmentService) Complete(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	return s.closeOut(ctx, id, models.EnrollmentStatusCompleted, nil)
}

// Withdraw marks an enrolled student as withdrawn, keeping the payment trail.
func (s *EnrollmentService) Withdraw(ctx context.Context, id, reason string) (*models.EnrollmentDetail, error) {
	var remarks *string
	if reason != "" {
		remarks = &reason
	}
	return s.closeOut(ctx, id, models.EnrollmentStatusWithdrawn, remarks)
}

func (s *EnrollmentService) closeOut(ctx context.Context, id string, status models.EnrollmentStatus, remarks *string) (*models.EnrollmentDetail, error) {
	enrollment, err := s.loadEnrollment(ctx, id)
	if err != nil {
		return nil, err
	}
	if enrollment.Status != models.EnrollmentStatusEnrolled {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only enrolled students can be completed or withdrawn")
	}
	if err := s.repo.UpdateStatus(ctx, id, status, remarks); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment status")
	}
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// CanEnroll is a pure eligibility check used by the intake flow and for UI
// gating: false while a pending or enrolled application exists for the year.
func (s *EnrollmentService) CanEnroll(ctx context.Context, studentID, schoolYear string) (bool, error) {
	exists, err := s.repo.ExistsActive(ctx, studentID, schoolYear)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check eligibility")
	}
	return !exists, nil
}

func (s *EnrollmentService) loadEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}
