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

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ExistsByLRN(ctx context.Context, lrn, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
}

type guardianRepository interface {
	FindByID(ctx context.Context, id string) (*models.Guardian, error)
	Create(ctx context.Context, guardian *models.Guardian) error
	Update(ctx context.Context, guardian *models.Guardian) error
}

// UpsertStudentRequest carries the registrar-managed student record.
type UpsertStudentRequest struct {
	LRN                   string    `json:"lrn" validate:"required"`
	FullName              string    `json:"full_name" validate:"required"`
	Gender                string    `json:"gender" validate:"omitempty,oneof=M F"`
	BirthDate             time.Time `json:"birth_date" validate:"required"`
	Address               string    `json:"address"`
	Phone                 string    `json:"phone"`
	CurrentGradeLevel     int       `json:"current_grade_level" validate:"min=0,max=12"`
	HighestCompletedGrade int       `json:"highest_completed_grade" validate:"min=0,max=12"`
	Active                bool      `json:"active"`
}

// UpsertGuardianRequest carries guardian contact details.
type UpsertGuardianRequest struct {
	FullName     string `json:"full_name" validate:"required"`
	Email        string `json:"email" validate:"omitempty,email"`
	Phone        string `json:"phone"`
	Address      string `json:"address"`
	Relationship string `json:"relationship"`
}

// StudentService manages student and guardian master data.
type StudentService struct {
	students  studentRepository
	guardians guardianRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs StudentService.
func NewStudentService(students studentRepository, guardians guardianRepository, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{students: students, guardians: guardians, validator: validate, logger: logger}
}

// List returns students matching the filter with pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.students.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a single student.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create registers a student. The LRN must be unique across the institution.
func (s *StudentService) Create(ctx context.Context, req UpsertStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	exists, err := s.students.ExistsByLRN(ctx, req.LRN, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate student")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a student with this LRN already exists")
	}

	student := &models.Student{
		LRN:                   req.LRN,
		FullName:              req.FullName,
		Gender:                req.Gender,
		BirthDate:             req.BirthDate,
		Address:               req.Address,
		Phone:                 req.Phone,
		CurrentGradeLevel:     req.CurrentGradeLevel,
		HighestCompletedGrade: req.HighestCompletedGrade,
		Active:                req.Active,
	}
	if err := s.students.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}

	s.logger.Info("student registered", zap.String("student_id", student.ID), zap.String("lrn", student.LRN))
	return student, nil
}

// Update modifies a student record.
func (s *StudentService) Update(ctx context.Context, id string, req UpsertStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	student, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.LRN != student.LRN {
		exists, err := s.students.ExistsByLRN(ctx, req.LRN, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate student")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a student with this LRN already exists")
		}
	}

	student.LRN = req.LRN
	student.FullName = req.FullName
	student.Gender = req.Gender
	student.BirthDate = req.BirthDate
	student.Address = req.Address
	student.Phone = req.Phone
	student.CurrentGradeLevel = req.CurrentGradeLevel
	student.HighestCompletedGrade = req.HighestCompletedGrade
	student.Active = req.Active

	if err := s.students.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return student, nil
}

// GetGuardian returns a single guardian.
func (s *StudentService) GetGuardian(ctx context.Context, id string) (*models.Guardian, error) {
	guardian, err := s.guardians.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "guardian not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load guardian")
	}
	return guardian, nil
}

// CreateGuardian registers a guardian.
func (s *StudentService) CreateGuardian(ctx context.Context, req UpsertGuardianRequest) (*models.Guardian, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid guardian payload")
	}
	guardian := &models.Guardian{
		FullName:     req.FullName,
		Email:        req.Email,
		Phone:        req.Phone,
		Address:      req.Address,
		Relationship: req.Relationship,
	}
	if err := s.guardians.Create(ctx, guardian); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create guardian")
	}
	return guardian, nil
}

// UpdateGuardian modifies guardian contact details.
func (s *StudentService) UpdateGuardian(ctx context.Context, id string, req UpsertGuardianRequest) (*models.Guardian, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid guardian payload")
	}
	guardian, err := s.GetGuardian(ctx, id)
	if err != nil {
		return nil, err
	}
	guardian.FullName = req.FullName
	guardian.Email = req.Email
	guardian.Phone = req.Phone
	guardian.Address = req.Address
	guardian.Relationship = req.Relationship

	if err := s.guardians.Update(ctx, guardian); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update guardian")
	}
	return guardian, nil
}
