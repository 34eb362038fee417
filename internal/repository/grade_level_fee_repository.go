package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sis-billing-api/internal/models"
)

// GradeLevelFeeRepository handles persistence of grade-level fee schedules.
type GradeLevelFeeRepository struct {
	db *sqlx.DB
}

// NewGradeLevelFeeRepository constructs the repository.
func NewGradeLevelFeeRepository(db *sqlx.DB) *GradeLevelFeeRepository {
	return &GradeLevelFeeRepository{db: db}
}

const feeColumns = `id, grade_level, period_id, school_year, tuition_fee, misc_fee, laboratory_fee,
        registration_fee, active, created_at, updated_at`

// List returns fee schedules matching the filter.
func (r *GradeLevelFeeRepository) List(ctx context.Context, filter models.GradeLevelFeeFilter) ([]models.GradeLevelFee, int, error) {
	var conditions []string
	var args []interface{}

	if filter.GradeLevel > 0 {
		conditions = append(conditions, fmt.Sprintf("grade_level = $%d", len(args)+1))
		args = append(args, filter.GradeLevel)
	}
	if filter.PeriodID != "" {
		conditions = append(conditions, fmt.Sprintf("period_id = $%d", len(args)+1))
		args = append(args, filter.PeriodID)
	}
	if filter.SchoolYear != "" {
		conditions = append(conditions, fmt.Sprintf("school_year = $%d", len(args)+1))
		args = append(args, filter.SchoolYear)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM grade_level_fees%s ORDER BY grade_level ASC LIMIT %d OFFSET %d`,
		feeColumns, clause, size, offset)

	var fees []models.GradeLevelFee
	if err := r.db.SelectContext(ctx, &fees, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list fee schedules: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM grade_level_fees%s", clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count fee schedules: %w", err)
	}
	return fees, total, nil
}

// FindByID returns a fee schedule by its ID.
func (r *GradeLevelFeeRepository) FindByID(ctx context.Context, id string) (*models.GradeLevelFee, error) {
	query := fmt.Sprintf(`SELECT %s FROM grade_level_fees WHERE id = $1`, feeColumns)
	var fee models.GradeLevelFee
	if err := r.db.GetContext(ctx, &fee, query, id); err != nil {
		return nil, err
	}
	return &fee, nil
}

// FindActive returns the single active fee schedule for a grade level and
// period, or sql.ErrNoRows when no schedule has been published yet.
func (r *GradeLevelFeeRepository) FindActive(ctx context.Context, gradeLevel int, periodID string) (*models.GradeLevelFee, error) {
	query := fmt.Sprintf(`SELECT %s FROM grade_level_fees WHERE grade_level = $1 AND period_id = $2 AND active = TRUE`, feeColumns)
	var fee models.GradeLevelFee
	if err := r.db.GetContext(ctx, &fee, query, gradeLevel, periodID); err != nil {
		return nil, err
	}
	return &fee, nil
}

// Create persists a fee schedule. When the new record is active, any previous
// active schedule for the same (grade level, period) is deactivated in the
// same transaction to preserve the at-most-one-active invariant.
func (r *GradeLevelFeeRepository) Create(ctx context.Context, fee *models.GradeLevelFee) error {
	if fee.ID == "" {
		fee.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	fee.CreatedAt = now
	fee.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create fee tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if fee.Active {
		if _, err = tx.ExecContext(ctx,
			`UPDATE grade_level_fees SET active = FALSE, updated_at = $3 WHERE grade_level = $1 AND period_id = $2 AND active = TRUE`,
			fee.GradeLevel, fee.PeriodID, now); err != nil {
			return fmt.Errorf("deactivate previous fee schedule: %w", err)
		}
	}

	const query = `INSERT INTO grade_level_fees (id, grade_level, period_id, school_year, tuition_fee, misc_fee,
        laboratory_fee, registration_fee, active, created_at, updated_at)
        VALUES (:id, :grade_level, :period_id, :school_year, :tuition_fee, :misc_fee,
        :laboratory_fee, :registration_fee, :active, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, query, fee); err != nil {
		return fmt.Errorf("create fee schedule: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create fee tx: %w", err)
	}
	return nil
}

// Update rewrites an existing fee schedule's amounts and active flag.
func (r *GradeLevelFeeRepository) Update(ctx context.Context, fee *models.GradeLevelFee) error {
	fee.UpdatedAt = time.Now().UTC()
	const query = `UPDATE grade_level_fees SET tuition_fee = :tuition_fee, misc_fee = :misc_fee,
        laboratory_fee = :laboratory_fee, registration_fee = :registration_fee, active = :active,
        updated_at = :updated_at WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, fee)
	if err != nil {
		return fmt.Errorf("update fee schedule: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a fee schedule permanently.
func (r *GradeLevelFeeRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM grade_level_fees WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete fee schedule: %w", err)
	}
	return nil
}
