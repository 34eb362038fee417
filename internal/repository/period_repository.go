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

// PeriodRepository handles persistence of enrollment periods.
type PeriodRepository struct {
	db *sqlx.DB
}

// NewPeriodRepository constructs the repository.
func NewPeriodRepository(db *sqlx.DB) *PeriodRepository {
	return &PeriodRepository{db: db}
}

const periodColumns = `id, name, school_year, start_date, end_date, accepts_new, accepts_returning, active, created_at, updated_at`

// List returns enrollment periods matching the filter.
func (r *PeriodRepository) List(ctx context.Context, filter models.EnrollmentPeriodFilter) ([]models.EnrollmentPeriod, int, error) {
	var conditions []string
	var args []interface{}

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

	query := fmt.Sprintf(`SELECT %s FROM enrollment_periods%s ORDER BY start_date DESC LIMIT %d OFFSET %d`,
		periodColumns, clause, size, offset)

	var periods []models.EnrollmentPeriod
	if err := r.db.SelectContext(ctx, &periods, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list periods: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM enrollment_periods%s", clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count periods: %w", err)
	}
	return periods, total, nil
}

// FindByID returns a period by its ID.
func (r *PeriodRepository) FindByID(ctx context.Context, id string) (*models.EnrollmentPeriod, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollment_periods WHERE id = $1`, periodColumns)
	var period models.EnrollmentPeriod
	if err := r.db.GetContext(ctx, &period, query, id); err != nil {
		return nil, err
	}
	return &period, nil
}

// FindActive returns the currently active period, or sql.ErrNoRows when
// registration is closed everywhere.
func (r *PeriodRepository) FindActive(ctx context.Context) (*models.EnrollmentPeriod, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollment_periods WHERE active = TRUE LIMIT 1`, periodColumns)
	var period models.EnrollmentPeriod
	if err := r.db.GetContext(ctx, &period, query); err != nil {
		return nil, err
	}
	return &period, nil
}

// Create persists a new enrollment period.
func (r *PeriodRepository) Create(ctx context.Context, period *models.EnrollmentPeriod) error {
	if period.ID == "" {
		period.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	period.CreatedAt = now
	period.UpdatedAt = now

	const query = `INSERT INTO enrollment_periods (id, name, school_year, start_date, end_date, accepts_new,
        accepts_returning, active, created_at, updated_at)
        VALUES (:id, :name, :school_year, :start_date, :end_date, :accepts_new,
        :accepts_returning, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, period); err != nil {
		return fmt.Errorf("create period: %w", err)
	}
	return nil
}

// Update rewrites a period's window and policy flags.
func (r *PeriodRepository) Update(ctx context.Context, period *models.EnrollmentPeriod) error {
	period.UpdatedAt = time.Now().UTC()
	const query = `UPDATE enrollment_periods SET name = :name, start_date = :start_date, end_date = :end_date,
        accepts_new = :accepts_new, accepts_returning = :accepts_returning, updated_at = :updated_at
        WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, period)
	if err != nil {
		return fmt.Errorf("update period: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetActive activates one period and deactivates every other in a single
// transaction, keeping at most one active period.
func (r *PeriodRepository) SetActive(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set active tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	if _, err = tx.ExecContext(ctx, `UPDATE enrollment_periods SET active = FALSE, updated_at = $1 WHERE active = TRUE AND id <> $2`, now, id); err != nil {
		return fmt.Errorf("deactivate other periods: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `UPDATE enrollment_periods SET active = TRUE, updated_at = $2 WHERE id = $1`, id, now); err != nil {
		return fmt.Errorf("activate period: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit set active tx: %w", err)
	}
	return nil
}
