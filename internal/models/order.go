package models

import "time"

// Order statuses. The ledger core only writes the payment-driven
// transitions (paid, cancelled) and the sweeper's expired transition;
// the fulfillment pipeline owns the rest.
const (
	OrderPending    = "pending"
	OrderPaid       = "paid"
	OrderUploaded   = "uploaded"
	OrderProcessing = "processing"
	OrderComplete   = "complete"
	OrderExpired    = "expired"
	OrderCancelled  = "cancelled"
)

// Order is a sheet-upgrade order. The ledger core reads price and
// ownership and drives the payment-related status transitions.
type Order struct {
	OrderID    string    `json:"order_id" db:"order_id"`
	UserID     string    `json:"user_id" db:"user_id"`
	TotalPrice int64     `json:"total_price" db:"total_price"`
	Status     string    `json:"status" db:"status"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
