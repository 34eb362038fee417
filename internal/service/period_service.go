package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sis-billing-api/internal/models"
	appErrors "github.com/noah-isme/sis-billing-api/pkg/errors"
)

type periodRepository interface {
	List(ctx context.Context, filter models.EnrollmentPeriodFilter) ([]models.EnrollmentPeriod, int, error)
	FindByID(ctx context.Context, id string) (*models.EnrollmentPeriod, error)
	FindActive(ctx context.Context) (*models.EnrollmentPeriod, error)
	Create(ctx context.Context, period *models.EnrollmentPeriod) error
	Update(ctx context.Context, period *models.EnrollmentPeriod) error
	SetActive(ctx context.Context, id string) error
}

// UpsertPeriodRequest describes an enrollment period window.
type UpsertPeriodRequest struct {
	Name             string    `json:"name" validate:"required"`
	SchoolYear       string    `json:"school_year" validate:"required"`
	StartDate        time.Time `json:"start_date" validate:"required"`
	EndDate          time.Time `json:"end_date" validate:"required,gtfield=StartDate"`
	AcceptsNew       bool      `json:"accepts_new"`
	AcceptsReturning bool      `json:"accepts_returning"`
}

// PeriodService manages enrollment period windows. At most one period is
// active at a time; activation deactivates the rest.
type PeriodService struct {
	repo      periodRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPeriodService constructs PeriodService.
func NewPeriodService(repo periodRepository, validate *validator.Validate, logger *zap.Logger) *PeriodService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PeriodService{repo: repo, validator: validate, logger: logger}
}

// List returns periods matching the filter with pagination metadata.
func (s *PeriodService) List(ctx context.Context, filter models.EnrollmentPeriodFilter) ([]models.EnrollmentPeriod, *models.Pagination, error) {
	periods, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollment periods")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return periods, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a single period.
func (s *PeriodService) Get(ctx context.Context, id string) (*models.EnrollmentPeriod, error) {
	period, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment period not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment period")
	}
	return period, nil
}

// Active resolves the currently active period, whether or not its window is
// open right now.
func (s *PeriodService) Active(ctx context.Context) (*models.EnrollmentPeriod, error) {
	period, err := s.repo.FindActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no active enrollment period")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve active period")
	}
	return period, nil
}

// Create registers a new period. Periods start inactive; activation is a
// separate explicit step.
func (s *PeriodService) Create(ctx context.Context, req UpsertPeriodRequest) (*models.EnrollmentPeriod, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid period payload")
	}

	period := &models.EnrollmentPeriod{
		Name:             req.Name,
		SchoolYear:       req.SchoolYear,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
		AcceptsNew:       req.AcceptsNew,
		AcceptsReturning: req.AcceptsReturning,
	}
	if err := s.repo.Create(ctx, period); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment period")
	}

	s.logger.Info("enrollment period created",
		zap.String("period_id", period.ID),
		zap.String("school_year", period.SchoolYear))
	return period, nil
}

// Update modifies a period's window and admission flags.
func (s *PeriodService) Update(ctx context.Context, id string, req UpsertPeriodRequest) (*models.EnrollmentPeriod, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid period payload")
	}

	period, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	period.Name = req.Name
	period.SchoolYear = req.SchoolYear
	period.StartDate = req.StartDate
	period.EndDate = req.EndDate
	period.AcceptsNew = req.AcceptsNew
	period.AcceptsReturning = req.AcceptsReturning

	if err := s.repo.Update(ctx, period); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment period")
	}
	return period, nil
}

// Activate makes the period the single active one.
func (s *PeriodService) Activate(ctx context.Context, id string) (*models.EnrollmentPeriod, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repo.SetActive(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate enrollment period")
	}
	s.logger.Info("enrollment period activated", zap.String("period_id", id))
	return s.Get(ctx, id)
}
