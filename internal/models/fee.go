package models

import "time"

// GradeLevelFee is the fee schedule for a grade level within an enrollment
// period. At most one active record exists per (grade level, period). The
// billing calculator only ever reads these rows.
type GradeLevelFee struct {
	ID              string    `db:"id" json:"id"`
	GradeLevel      int       `db:"grade_level" json:"grade_level"`
	PeriodID        string    `db:"period_id" json:"period_id"`
	SchoolYear      string    `db:"school_year" json:"school_year"`
	TuitionFee      int64     `db:"tuition_fee" json:"tuition_fee"`
	MiscFee         int64     `db:"misc_fee" json:"misc_fee"`
	LaboratoryFee   int64     `db:"laboratory_fee" json:"laboratory_fee"`
	RegistrationFee int64     `db:"registration_fee" json:"registration_fee"`
	Active          bool      `db:"active" json:"active"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// GradeLevelFeeFilter defines filters for listing fee schedules.
type GradeLevelFeeFilter struct {
	GradeLevel int
	PeriodID   string
	SchoolYear string
	Active     *bool
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// FeeBreakdown is the result of a fee computation. All amounts are integer
// minor currency units.
type FeeBreakdown struct {
	Tuition       int64 `json:"tuition"`
	Miscellaneous int64 `json:"miscellaneous"`
	Laboratory    int64 `json:"laboratory"`
	Discount      int64 `json:"discount"`
	Total         int64 `json:"total"`
}

// PaymentPlanKind names an installment schedule.
type PaymentPlanKind string

const (
	PlanFull      PaymentPlanKind = "FULL"
	PlanSemestral PaymentPlanKind = "SEMESTRAL"
	PlanQuarterly PaymentPlanKind = "QUARTERLY"
	PlanMonthly   PaymentPlanKind = "MONTHLY"
)

// Installment is a single due entry within a payment plan schedule.
type Installment struct {
	Sequence int       `json:"sequence"`
	DueDate  time.Time `json:"due_date"`
	Amount   int64     `json:"amount"`
}

// PaymentPlan is a computed installment schedule. It is a value object and is
// never persisted; the schedule amounts sum to the discounted total.
type PaymentPlan struct {
	Kind         PaymentPlanKind `json:"kind"`
	Installments int             `json:"installments"`
	DiscountRate float64         `json:"discount_rate"`
	TotalDue     int64           `json:"total_due"`
	Schedule     []Installment   `json:"schedule"`
}
