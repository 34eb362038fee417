package models

import "time"

// PaymentMethod enumerates accepted tender types.
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "CASH"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodGCash        PaymentMethod = "GCASH"
	PaymentMethodCard         PaymentMethod = "CARD"
)

// Payment is an immutable record of funds applied to an enrollment. A refund
// is stored as a new negative-amount row referencing the original via
// RefundOf; existing rows are never mutated.
type Payment struct {
	ID           string        `db:"id" json:"id"`
	EnrollmentID string        `db:"enrollment_id" json:"enrollment_id"`
	Amount       int64         `db:"amount" json:"amount"`
	Method       PaymentMethod `db:"method" json:"method"`
	ReferenceNo  string        `db:"reference_no" json:"reference_no"`
	ProcessedBy  string        `db:"processed_by" json:"processed_by"`
	RefundOf     *string       `db:"refund_of" json:"refund_of,omitempty"`
	ReceivedAt   time.Time     `db:"received_at" json:"received_at"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
}
