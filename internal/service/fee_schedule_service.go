package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sis-billing-api/internal/models"
	appErrors "github.com/noah-isme/sis-billing-api/pkg/errors"
)

type feeScheduleRepository interface {
	List(ctx context.Context, filter models.GradeLevelFeeFilter) ([]models.GradeLevelFee, int, error)
	FindByID(ctx context.Context, id string) (*models.GradeLevelFee, error)
	FindActive(ctx context.Context, gradeLevel int, periodID string) (*models.GradeLevelFee, error)
	Create(ctx context.Context, fee *models.GradeLevelFee) error
	Update(ctx context.Context, fee *models.GradeLevelFee) error
	Delete(ctx context.Context, id string) error
}

// UpsertFeeScheduleRequest carries a fee schedule for a grade level, amounts
// in minor currency units.
type UpsertFeeScheduleRequest struct {
	GradeLevel      int    `json:"grade_level" validate:"required,min=1,max=12"`
	PeriodID        string `json:"period_id" validate:"required"`
	SchoolYear      string `json:"school_year" validate:"required"`
	TuitionFee      int64  `json:"tuition_fee" validate:"min=0"`
	MiscFee         int64  `json:"misc_fee" validate:"min=0"`
	LaboratoryFee   int64  `json:"laboratory_fee" validate:"min=0"`
	RegistrationFee int64  `json:"registration_fee" validate:"min=0"`
}

// FeeScheduleService manages the per-grade fee schedules billing snapshots
// are taken from. Creating a schedule supersedes the previous active one for
// the same grade and period.
type FeeScheduleService struct {
	repo      feeScheduleRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewFeeScheduleService constructs FeeScheduleService.
func NewFeeScheduleService(repo feeScheduleRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *FeeScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeeScheduleService{repo: repo, cache: cache, validator: validate, logger: logger}
}

// List returns fee schedules matching the filter with pagination metadata.
func (s *FeeScheduleService) List(ctx context.Context, filter models.GradeLevelFeeFilter) ([]models.GradeLevelFee, *models.Pagination, error) {
	fees, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list fee schedules")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return fees, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a single fee schedule.
func (s *FeeScheduleService) Get(ctx context.Context, id string) (*models.GradeLevelFee, error) {
	fee, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "fee schedule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee schedule")
	}
	return fee, nil
}

// Create publishes a new active schedule for a grade level and period,
// deactivating any previous one in the same transaction.
func (s *FeeScheduleService) Create(ctx context.Context, req UpsertFeeScheduleRequest) (*models.GradeLevelFee, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid fee schedule payload")
	}

	fee := &models.GradeLevelFee{
		GradeLevel:      req.GradeLevel,
		PeriodID:        req.PeriodID,
		SchoolYear:      req.SchoolYear,
		TuitionFee:      req.TuitionFee,
		MiscFee:         req.MiscFee,
		LaboratoryFee:   req.LaboratoryFee,
		RegistrationFee: req.RegistrationFee,
		Active:          true,
	}
	if err := s.repo.Create(ctx, fee); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create fee schedule")
	}

	s.invalidate(ctx, fee.PeriodID, fee.GradeLevel)
	s.logger.Info("fee schedule published",
		zap.String("fee_id", fee.ID),
		zap.Int("grade_level", fee.GradeLevel),
		zap.String("period_id", fee.PeriodID))
	return fee, nil
}

// Update modifies an existing schedule's amounts. Snapshots already taken by
// enrollments are not touched.
func (s *FeeScheduleService) Update(ctx context.Context, id string, req UpsertFeeScheduleRequest) (*models.GradeLevelFee, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid fee schedule payload")
	}

	fee, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	fee.TuitionFee = req.TuitionFee
	fee.MiscFee = req.MiscFee
	fee.LaboratoryFee = req.LaboratoryFee
	fee.RegistrationFee = req.RegistrationFee

	if err := s.repo.Update(ctx, fee); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update fee schedule")
	}

	s.invalidate(ctx, fee.PeriodID, fee.GradeLevel)
	return fee, nil
}

// Delete removes a schedule.
func (s *FeeScheduleService) Delete(ctx context.Context, id string) error {
	fee, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete fee schedule")
	}
	s.invalidate(ctx, fee.PeriodID, fee.GradeLevel)
	return nil
}

func (s *FeeScheduleService) invalidate(ctx context.Context, periodID string, gradeLevel int) {
	if !s.cache.Enabled() {
		return
	}
	pattern := fmt.Sprintf("fees:%s:%d", periodID, gradeLevel)
	if err := s.cache.Invalidate(ctx, pattern); err != nil {
		s.logger.Warn("failed to invalidate fee cache", zap.String("pattern", pattern), zap.Error(err))
	}
}
