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

// EnrollmentRepository handles persistence of enrollment applications.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `e.id, e.reference_code, e.student_id, e.guardian_id, e.period_id, e.school_year,
        e.grade_level, e.quarter, e.status, e.payment_status, e.tuition_fee, e.misc_fee, e.laboratory_fee,
        e.total_amount, e.discount_type, e.discount_value, e.net_amount, e.amount_paid, e.balance,
        e.remarks, e.approved_by, e.approved_at, e.created_at, e.updated_at`

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
LEFT JOIN students s ON s.id = e.student_id
LEFT JOIN guardians g ON g.id = e.guardian_id
LEFT JOIN enrollment_periods p ON p.id = e.period_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.GuardianID != "" {
		conditions = append(conditions, fmt.Sprintf("e.guardian_id = $%d", len(args)+1))
		args = append(args, filter.GuardianID)
	}
	if filter.PeriodID != "" {
		conditions = append(conditions, fmt.Sprintf("e.period_id = $%d", len(args)+1))
		args = append(args, filter.PeriodID)
	}
	if filter.SchoolYear != "" {
		conditions = append(conditions, fmt.Sprintf("e.school_year = $%d", len(args)+1))
		args = append(args, filter.SchoolYear)
	}
	if filter.GradeLevel > 0 {
		conditions = append(conditions, fmt.Sprintf("e.grade_level = $%d", len(args)+1))
		args = append(args, filter.GradeLevel)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.PaymentStatus != "" {
		conditions = append(conditions, fmt.Sprintf("e.payment_status = $%d", len(args)+1))
		args = append(args, filter.PaymentStatus)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	// Count with the filter args only, before sort and pagination are
	// resolved, so the two queries cannot drift apart.
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}

	allowedSorts := map[string]string{
		"created_at":     "e.created_at",
		"reference_code": "e.reference_code",
		"student_name":   "s.full_name",
		"balance":        "e.balance",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "e.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
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

	query := fmt.Sprintf(`SELECT %s,
        s.full_name AS student_name, s.lrn AS student_lrn, g.full_name AS guardian_name, p.name AS period_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, enrollmentColumns, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments e WHERE e.id = $1`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with contextual info.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	query := fmt.Sprintf(`SELECT %s,
        s.full_name AS student_name, s.lrn AS student_lrn, g.full_name AS guardian_name, p.name AS period_name
        FROM enrollments e
        LEFT JOIN students s ON s.id = e.student_id
        LEFT JOIN guardians g ON g.id = e.guardian_id
        LEFT JOIN enrollment_periods p ON p.id = e.period_id
        WHERE e.id = $1`, enrollmentColumns)
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsActive checks whether the student already has a PENDING or ENROLLED
// enrollment for the school year. The partial unique index on
// (student_id, school_year) is the authoritative guard; this is the fast path.
func (r *EnrollmentRepository) ExistsActive(ctx context.Context, studentID, schoolYear string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND school_year = $2 AND status IN ($3, $4) LIMIT 1`
	var exists int
	err := r.db.GetContext(ctx, &exists, query, studentID, schoolYear,
		models.EnrollmentStatusPending, models.EnrollmentStatusEnrolled)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check active enrollment: %w", err)
	}
	return true, nil
}

// HasHistory reports whether the student was ever enrolled or completed a
// grade before, i.e. counts as a returning student.
func (r *EnrollmentRepository) HasHistory(ctx context.Context, studentID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND status IN ($2, $3) LIMIT 1`
	var exists int
	err := r.db.GetContext(ctx, &exists, query, studentID,
		models.EnrollmentStatusEnrolled, models.EnrollmentStatusCompleted)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment history: %w", err)
	}
	return true, nil
}

// Create persists a new enrollment inside a transaction, assigning the
// sequential reference code for its period. Minting takes a row lock on the
// enrollment period so concurrent creates get distinct codes; the unique
// index on active (student_id, school_year) pairs rejects concurrent
// duplicates at commit.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = now
	}
	enrollment.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create enrollment tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if enrollment.ReferenceCode == "" {
		// The COUNT below is only safe while holding the period row lock;
		// without it two read-committed transactions mint the same code.
		if _, err = tx.ExecContext(ctx, `SELECT id FROM enrollment_periods WHERE id = $1 FOR UPDATE`, enrollment.PeriodID); err != nil {
			return fmt.Errorf("lock enrollment period: %w", err)
		}
		var seq int
		if err = tx.GetContext(ctx, &seq, `SELECT COUNT(*) + 1 FROM enrollments WHERE period_id = $1`, enrollment.PeriodID); err != nil {
			return fmt.Errorf("next enrollment sequence: %w", err)
		}
		year := strings.SplitN(enrollment.SchoolYear, "-", 2)[0]
		enrollment.ReferenceCode = fmt.Sprintf("ENR-%s-%06d", year, seq)
	}

	const query = `INSERT INTO enrollments (id, reference_code, student_id, guardian_id, period_id, school_year,
        grade_level, quarter, status, payment_status, tuition_fee, misc_fee, laboratory_fee, total_amount,
        discount_type, discount_value, net_amount, amount_paid, balance, remarks, approved_by, approved_at,
        created_at, updated_at)
        VALUES (:id, :reference_code, :student_id, :guardian_id, :period_id, :school_year,
        :grade_level, :quarter, :status, :payment_status, :tuition_fee, :misc_fee, :laboratory_fee, :total_amount,
        :discount_type, :discount_value, :net_amount, :amount_paid, :balance, :remarks, :approved_by, :approved_at,
        :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create enrollment tx: %w", err)
	}
	return nil
}

// Approve transitions the enrollment to ENROLLED and propagates the approved
// grade level onto the student record. Both writes share one transaction.
func (r *EnrollmentRepository) Approve(ctx context.Context, enrollment *models.Enrollment, approvedBy string, approvedAt time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin approve tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `UPDATE enrollments SET status = $2, approved_by = $3, approved_at = $4, updated_at = $4 WHERE id = $1`,
		enrollment.ID, models.EnrollmentStatusEnrolled, approvedBy, approvedAt); err != nil {
		return fmt.Errorf("approve enrollment: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `UPDATE students SET current_grade_level = $2, updated_at = $3 WHERE id = $1`,
		enrollment.StudentID, enrollment.GradeLevel, approvedAt); err != nil {
		return fmt.Errorf("propagate grade level: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit approve tx: %w", err)
	}
	return nil
}

// Reject marks a pending enrollment as rejected, storing the reason.
func (r *EnrollmentRepository) Reject(ctx context.Context, id, reason, rejectedBy string, rejectedAt time.Time) error {
	const query = `UPDATE enrollments SET status = $2, remarks = $3, approved_by = $4, approved_at = $5, updated_at = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.EnrollmentStatusRejected, reason, rejectedBy, rejectedAt); err != nil {
		return fmt.Errorf("reject enrollment: %w", err)
	}
	return nil
}

// BulkApprove approves every referenced enrollment still in PENDING within a
// single transaction and returns the count transitioned. Non-pending ids are
// skipped; any storage failure rolls back the whole batch.
func (r *EnrollmentRepository) BulkApprove(ctx context.Context, ids []string, approvedBy string, approvedAt time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin bulk approve tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	count := 0
	for _, id := range ids {
		var studentID string
		var gradeLevel int
		err = tx.QueryRowxContext(ctx,
			`UPDATE enrollments SET status = $2, approved_by = $3, approved_at = $4, updated_at = $4
             WHERE id = $1 AND status = $5 RETURNING student_id, grade_level`,
			id, models.EnrollmentStatusEnrolled, approvedBy, approvedAt, models.EnrollmentStatusPending,
		).Scan(&studentID, &gradeLevel)
		if err == sql.ErrNoRows {
			err = nil
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("bulk approve enrollment %s: %w", id, err)
		}
		if _, err = tx.ExecContext(ctx, `UPDATE students SET current_grade_level = $2, updated_at = $3 WHERE id = $1`,
			studentID, gradeLevel, approvedAt); err != nil {
			return 0, fmt.Errorf("propagate grade level for %s: %w", id, err)
		}
		count++
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit bulk approve tx: %w", err)
	}
	return count, nil
}

// UpdateStatus moves an enrollment to a new lifecycle status with remarks.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, remarks *string) error {
	const query = `UPDATE enrollments SET status = $2, remarks = COALESCE($3, remarks), updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, remarks, time.Now().UTC()); err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return nil
}

// UpdateDiscount rewrites the monetary snapshot after a discount change.
func (r *EnrollmentRepository) UpdateDiscount(ctx context.Context, enrollment *models.Enrollment) error {
	const query = `UPDATE enrollments SET discount_type = $2, discount_value = $3, net_amount = $4,
        balance = $5, payment_status = $6, updated_at = $7 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, enrollment.ID, enrollment.DiscountType, enrollment.DiscountValue,
		enrollment.NetAmount, enrollment.Balance, enrollment.PaymentStatus, time.Now().UTC()); err != nil {
		return fmt.Errorf("update enrollment discount: %w", err)
	}
	return nil
}

// CollectionsSummary aggregates billed/collected/outstanding totals for a
// school year across non-rejected enrollments.
func (r *EnrollmentRepository) CollectionsSummary(ctx context.Context, schoolYear string) (*models.CollectionsSummary, error) {
	const query = `SELECT $1 AS school_year, COUNT(*) AS enrollment_count,
        COALESCE(SUM(net_amount), 0) AS total_billed,
        COALESCE(SUM(amount_paid), 0) AS total_collected,
        COALESCE(SUM(balance), 0) AS total_outstanding
        FROM enrollments WHERE school_year = $1 AND status <> $2`
	var summary models.CollectionsSummary
	if err := r.db.GetContext(ctx, &summary, query, schoolYear, models.EnrollmentStatusRejected); err != nil {
		return nil, fmt.Errorf("collections summary: %w", err)
	}
	return &summary, nil
}
