package models

import "time"

// EnrollmentPeriod is an administrative registration window for a school year.
// At most one period is active at a time; applications always land in the
// active period regardless of what the caller supplies.
type EnrollmentPeriod struct {
	ID               string    `db:"id" json:"id"`
	Name             string    `db:"name" json:"name"`
	SchoolYear       string    `db:"school_year" json:"school_year"`
	StartDate        time.Time `db:"start_date" json:"start_date"`
	EndDate          time.Time `db:"end_date" json:"end_date"`
	AcceptsNew       bool      `db:"accepts_new" json:"accepts_new"`
	AcceptsReturning bool      `db:"accepts_returning" json:"accepts_returning"`
	Active           bool      `db:"active" json:"active"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Open reports whether the registration window covers the given instant.
func (p *EnrollmentPeriod) Open(at time.Time) bool {
	return !at.Before(p.StartDate) && !at.After(p.EndDate)
}

// EnrollmentPeriodFilter defines filters supported by period listings.
type EnrollmentPeriodFilter struct {
	SchoolYear string
	Active     *bool
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
