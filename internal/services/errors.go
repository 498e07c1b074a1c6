package services

import "errors"

// Typed failures surfaced by the ledger core. Handlers map these onto
// HTTP statuses; the text is safe to show to users.
var (
	ErrInvalidAmount          = errors.New("amount must be a positive whole number")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrUnauthorized           = errors.New("not authorized for this company")
	ErrNotFound               = errors.New("not found")
	ErrPocketNotFound         = errors.New("balance pocket not found")
	ErrOrderNotPayable        = errors.New("order is not awaiting payment")
	ErrOrderNotPaid           = errors.New("order has not been paid")
	ErrInvalidRefundRequest   = errors.New("refund request does not exist or is not pending")
	ErrDuplicateRefundRequest = errors.New("a refund request for this order is already pending")
	ErrAlreadyFinal           = errors.New("transaction already finalized")
	ErrPaymentRefMismatch     = errors.New("payment reference does not match the initiated top-up")
	ErrLastAdmin              = errors.New("cannot remove the last admin of a company")
)
