package models

import "time"

// EnrollmentStatus represents the lifecycle state of an enrollment application.
type EnrollmentStatus string

// Possible enrollment statuses. REJECTED, COMPLETED and WITHDRAWN are terminal.
const (
	EnrollmentStatusPending   EnrollmentStatus = "PENDING"
	EnrollmentStatusEnrolled  EnrollmentStatus = "ENROLLED"
	EnrollmentStatusRejected  EnrollmentStatus = "REJECTED"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentStatusWithdrawn EnrollmentStatus = "WITHDRAWN"
)

// Terminal reports whether no further status transition is permitted.
func (s EnrollmentStatus) Terminal() bool {
	switch s {
	case EnrollmentStatusRejected, EnrollmentStatusCompleted, EnrollmentStatusWithdrawn:
		return true
	default:
		return false
	}
}

// Active reports whether the enrollment counts against the one-per-year rule.
func (s EnrollmentStatus) Active() bool {
	return s == EnrollmentStatusPending || s == EnrollmentStatusEnrolled
}

// PaymentStatus is derived from amount paid versus net amount. It is never set
// directly outside the billing calculator.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPartial PaymentStatus = "PARTIAL"
	PaymentStatusPaid    PaymentStatus = "PAID"
)

// DiscountType distinguishes percentage discounts from fixed deductions.
type DiscountType string

const (
	DiscountTypeNone       DiscountType = "NONE"
	DiscountTypePercentage DiscountType = "PERCENTAGE"
	DiscountTypeFixed      DiscountType = "FIXED"
)

// Quarter identifies the academic quarter an application targets.
type Quarter string

const (
	QuarterFirst  Quarter = "Q1"
	QuarterSecond Quarter = "Q2"
	QuarterThird  Quarter = "Q3"
	QuarterFourth Quarter = "Q4"
)

// Enrollment captures a student's application to attend a grade level within a
// school year. Monetary fields are snapshots taken at creation or discount time
// and are stored as integer minor currency units (centavos).
type Enrollment struct {
	ID            string           `db:"id" json:"id"`
	ReferenceCode string           `db:"reference_code" json:"reference_code"`
	StudentID     string           `db:"student_id" json:"student_id"`
	GuardianID    string           `db:"guardian_id" json:"guardian_id"`
	PeriodID      string           `db:"period_id" json:"period_id"`
	SchoolYear    string           `db:"school_year" json:"school_year"`
	GradeLevel    int              `db:"grade_level" json:"grade_level"`
	Quarter       Quarter          `db:"quarter" json:"quarter"`
	Status        EnrollmentStatus `db:"status" json:"status"`
	PaymentStatus PaymentStatus    `db:"payment_status" json:"payment_status"`
	TuitionFee    int64            `db:"tuition_fee" json:"tuition_fee"`
	MiscFee       int64            `db:"misc_fee" json:"misc_fee"`
	LaboratoryFee int64            `db:"laboratory_fee" json:"laboratory_fee"`
	TotalAmount   int64            `db:"total_amount" json:"total_amount"`
	DiscountType  DiscountType     `db:"discount_type" json:"discount_type"`
	DiscountValue int64            `db:"discount_value" json:"discount_value"`
	NetAmount     int64            `db:"net_amount" json:"net_amount"`
	AmountPaid    int64            `db:"amount_paid" json:"amount_paid"`
	Balance       int64            `db:"balance" json:"balance"`
	Remarks       *string          `db:"remarks" json:"remarks,omitempty"`
	ApprovedBy    *string          `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt    *time.Time       `db:"approved_at" json:"approved_at,omitempty"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with student, guardian and period info.
type EnrollmentDetail struct {
	Enrollment
	StudentName  string `db:"student_name" json:"student_name"`
	StudentLRN   string `db:"student_lrn" json:"student_lrn"`
	GuardianName string `db:"guardian_name" json:"guardian_name"`
	PeriodName   string `db:"period_name" json:"period_name"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID     string
	GuardianID    string
	PeriodID      string
	SchoolYear    string
	GradeLevel    int
	Status        EnrollmentStatus
	PaymentStatus PaymentStatus
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}

// CollectionsSummary aggregates billing totals across enrollments.
type CollectionsSummary struct {
	SchoolYear       string `db:"school_year" json:"school_year"`
	EnrollmentCount  int    `db:"enrollment_count" json:"enrollment_count"`
	TotalBilled      int64  `db:"total_billed" json:"total_billed"`
	TotalCollected   int64  `db:"total_collected" json:"total_collected"`
	TotalOutstanding int64  `db:"total_outstanding" json:"total_outstanding"`
}
