package models

import "time"

// Student represents a learner registered in the institution. CurrentGradeLevel
// tracks the approved grade; HighestCompletedGrade guards against regression
// when a returning student re-enrolls.
type Student struct {
	ID                    string    `db:"id" json:"id"`
	LRN                   string    `db:"lrn" json:"lrn"`
	FullName              string    `db:"full_name" json:"full_name"`
	Gender                string    `db:"gender" json:"gender"`
	BirthDate             time.Time `db:"birth_date" json:"birth_date"`
	Address               string    `db:"address" json:"address"`
	Phone                 string    `db:"phone" json:"phone"`
	CurrentGradeLevel     int       `db:"current_grade_level" json:"current_grade_level"`
	HighestCompletedGrade int       `db:"highest_completed_grade" json:"highest_completed_grade"`
	Active                bool      `db:"active" json:"active"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search     string
	GradeLevel int
	Active     *bool
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// Guardian is the parent or legal guardian responsible for a student's
// applications and bills.
type Guardian struct {
	ID           string    `db:"id" json:"id"`
	FullName     string    `db:"full_name" json:"full_name"`
	Email        string    `db:"email" json:"email"`
	Phone        string    `db:"phone" json:"phone"`
	Address      string    `db:"address" json:"address"`
	Relationship string    `db:"relationship" json:"relationship"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
