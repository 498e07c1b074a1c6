package models

import (
	"database/sql"
	"time"
)

// Transaction kinds
const (
	KindTopUp         = "topup"
	KindDebit         = "debit"
	KindRefundRequest = "refund_request"
)

// Transaction statuses. Transitions are forward-only:
// pending -> completed or pending -> failed, never backward.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Transaction represents a single balance movement or movement request.
// Amounts are whole currency units: positive for credits, negative for
// debits. A refund_request is stored positive (the amount to be credited
// upon approval).
type Transaction struct {
	TransactionID string         `json:"transaction_id" db:"transaction_id"`
	UserID        string         `json:"user_id" db:"user_id"`
	CompanyID     sql.NullString `json:"company_id,omitempty" db:"company_id"` // null = personal pocket
	Kind          string         `json:"kind" db:"kind"`
	Amount        int64          `json:"amount" db:"amount"`
	OrderID       sql.NullString `json:"order_id,omitempty" db:"order_id"`
	PaymentRef    sql.NullString `json:"payment_ref,omitempty" db:"payment_ref"`
	Status        string         `json:"status" db:"status"`
	Note          string         `json:"note" db:"note"`
	ApprovedBy    sql.NullString `json:"approved_by,omitempty" db:"approved_by"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
}
