package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/planlift/backend/internal/models"
)

// Pocket identifies the balance a transaction credits or debits: either a
// user's personal pocket or a company's shared pocket.
type Pocket struct {
	UserID    string
	CompanyID string
}

func PersonalPocket(userID string) Pocket {
	return Pocket{UserID: userID}
}

func CompanyPocket(companyID string) Pocket {
	return Pocket{CompanyID: companyID}
}

func (p Pocket) IsCompany() bool {
	return p.CompanyID != ""
}

func (p Pocket) String() string {
	if p.IsCompany() {
		return "company:" + p.CompanyID
	}
	return "user:" + p.UserID
}

// table returns the balance table and key column for the pocket.
func (p Pocket) table() (string, string, string) {
	if p.IsCompany() {
		return "company_balances", "company_id", p.CompanyID
	}
	return "balances", "user_id", p.UserID
}

// LedgerService is the durable store for balances and the transaction log.
// Mutating primitives operate on a caller-owned *sql.Tx so the balance
// service can group a balance movement, its transaction record, and any
// order transition into one atomic unit of work.
type LedgerService struct {
	db *sql.DB
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{db: db}
}

// GetBalance returns the pocket's current amount. A pocket with no row has
// never been credited; callers that treat that as zero should use
// GetBalanceOrZero.
func (s *LedgerService) GetBalance(ctx context.Context, pocket Pocket) (int64, error) {
	table, key, id := pocket.table()

	var amount int64
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT amount FROM %s WHERE %s = $1`, table, key), id).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrPocketNotFound
	}
	if err != nil {
		return 0, err
	}

	return amount, nil
}

// GetBalanceOrZero is GetBalance with lazy-creation semantics: an absent
// row reads as zero.
func (s *LedgerService) GetBalanceOrZero(ctx context.Context, pocket Pocket) (int64, error) {
	amount, err := s.GetBalance(ctx, pocket)
	if errors.Is(err, ErrPocketNotFound) {
		return 0, nil
	}
	return amount, err
}

// CreditTx adds amount to the pocket, creating the row if absent. The
// increment happens inside the upsert so concurrent credits to the same
// pocket never lose updates.
func (s *LedgerService) CreditTx(ctx context.Context, tx *sql.Tx, pocket Pocket, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	table, key, id := pocket.table()
	_, err := tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (%s, amount) VALUES ($1, $2)
		ON CONFLICT (%s) DO UPDATE SET amount = %s.amount + EXCLUDED.amount`,
		table, key, key, table), id, amount)
	return err
}

// DebitTx subtracts amount from the pocket. The balance check and the
// decrement are a single conditional update, which closes the race window
// between two concurrent debits against the same pocket. Failure is
// reported as ErrInsufficientFunds or ErrPocketNotFound, never as a
// partial state.
func (s *LedgerService) DebitTx(ctx context.Context, tx *sql.Tx, pocket Pocket, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	table, key, id := pocket.table()
	result, err := tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET amount = amount - $1 WHERE %s = $2 AND amount >= $1`,
		table, key), amount, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected > 0 {
		return nil
	}

	// Zero rows: distinguish a missing pocket from a real shortfall so
	// callers can produce accurate user-facing messages.
	var exists bool
	err = tx.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT EXISTS(SELECT 1 FROM %s WHERE %s = $1)`, table, key), id).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return ErrPocketNotFound
	}
	return ErrInsufficientFunds
}

// AppendTransactionTx inserts a transaction record. It is the terminal
// step of whatever unit of work the record represents.
func (s *LedgerService) AppendTransactionTx(ctx context.Context, tx *sql.Tx, rec *models.Transaction) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions
		(transaction_id, user_id, company_id, kind, amount, order_id, payment_ref, status, note, approved_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.TransactionID, rec.UserID, rec.CompanyID, rec.Kind, rec.Amount,
		rec.OrderID, rec.PaymentRef, rec.Status, rec.Note, rec.ApprovedBy, rec.CreatedAt)
	return err
}

// CompleteTransactionTx moves a pending transaction to completed. The
// previous-status guard keeps transitions forward-only: a transaction
// already terminal reports ErrAlreadyFinal and is otherwise untouched.
func (s *LedgerService) CompleteTransactionTx(ctx context.Context, tx *sql.Tx, transactionID string, approvedBy string) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE transactions SET status = $1, approved_by = COALESCE(NULLIF($2, ''), approved_by)
		WHERE transaction_id = $3 AND status = $4`,
		models.StatusCompleted, approvedBy, transactionID, models.StatusPending)
	if err != nil {
		return err
	}
	return s.checkGuarded(result)
}

// FailTransactionTx moves a pending transaction to failed, recording an
// optional rationale for audit.
func (s *LedgerService) FailTransactionTx(ctx context.Context, tx *sql.Tx, transactionID, note, approvedBy string) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $1,
		    note = CASE WHEN $2 = '' THEN note ELSE $2 END,
		    approved_by = COALESCE(NULLIF($3, ''), approved_by)
		WHERE transaction_id = $4 AND status = $5`,
		models.StatusFailed, note, approvedBy, transactionID, models.StatusPending)
	if err != nil {
		return err
	}
	return s.checkGuarded(result)
}

func (s *LedgerService) checkGuarded(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrAlreadyFinal
	}
	return nil
}

const transactionColumns = `transaction_id, user_id, company_id, kind, amount, order_id, payment_ref, status, note, approved_by, created_at`

func scanTransaction(row *sql.Row) (*models.Transaction, error) {
	rec := &models.Transaction{}
	err := row.Scan(&rec.TransactionID, &rec.UserID, &rec.CompanyID, &rec.Kind,
		&rec.Amount, &rec.OrderID, &rec.PaymentRef, &rec.Status, &rec.Note,
		&rec.ApprovedBy, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetTransaction fetches a transaction by id.
func (s *LedgerService) GetTransaction(ctx context.Context, transactionID string) (*models.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE transaction_id = $1`,
		transactionID)
	return scanTransaction(row)
}

// GetTransactionForUpdateTx fetches a transaction by id with a row lock so
// concurrent completions of the same transaction serialize.
func (s *LedgerService) GetTransactionForUpdateTx(ctx context.Context, tx *sql.Tx, transactionID string) (*models.Transaction, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE transaction_id = $1 FOR UPDATE`,
		transactionID)
	return scanTransaction(row)
}

// FindLatestDebitForOrderTx locates the most recent completed debit
// recorded against an order. Refunds return money to the pocket it was
// taken from; when an order carries several debits the most recent one
// wins the tie-break.
func (s *LedgerService) FindLatestDebitForOrderTx(ctx context.Context, tx *sql.Tx, orderID string) (*models.Transaction, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE order_id = $1 AND kind = $2 AND status = $3
		ORDER BY created_at DESC LIMIT 1`,
		orderID, models.KindDebit, models.StatusCompleted)
	return scanTransaction(row)
}

// HasPendingRefundRequest reports whether an order already has an
// outstanding refund request awaiting admin action.
func (s *LedgerService) HasPendingRefundRequest(ctx context.Context, orderID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM transactions
			WHERE order_id = $1 AND kind = $2 AND status = $3
		)`, orderID, models.KindRefundRequest, models.StatusPending).Scan(&exists)
	return exists, err
}

// ScopeTransactionTx reattributes a transaction to the given pocket. A
// refund can settle against a different pocket than the one it was
// requested from; the completed row must carry the credited pocket's
// scope so every pocket's balance stays the sum of its completed
// transactions. For a company pocket the requester stays on user_id.
func (s *LedgerService) ScopeTransactionTx(ctx context.Context, tx *sql.Tx, transactionID string, pocket Pocket) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET company_id = NULLIF($1, ''),
		    user_id = COALESCE(NULLIF($2, ''), user_id)
		WHERE transaction_id = $3`,
		pocket.CompanyID, pocket.UserID, transactionID)
	return err
}

// RecordPaymentRef attaches the gateway's payment reference to a pending
// top-up at initiation time.
func (s *LedgerService) RecordPaymentRef(ctx context.Context, transactionID, paymentRef string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET payment_ref = $1 WHERE transaction_id = $2`,
		paymentRef, transactionID)
	return err
}

// ListTransactions returns a user's transactions, most recent first.
func (s *LedgerService) ListTransactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectTransactions(rows)
}

// ListPendingRefundRequests returns every refund request awaiting admin
// action. Served by the (status, kind) index.
func (s *LedgerService) ListPendingRefundRequests(ctx context.Context) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE status = $1 AND kind = $2 ORDER BY created_at ASC`,
		models.StatusPending, models.KindRefundRequest)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectTransactions(rows)
}

func collectTransactions(rows *sql.Rows) ([]models.Transaction, error) {
	var records []models.Transaction
	for rows.Next() {
		var rec models.Transaction
		if err := rows.Scan(&rec.TransactionID, &rec.UserID, &rec.CompanyID, &rec.Kind,
			&rec.Amount, &rec.OrderID, &rec.PaymentRef, &rec.Status, &rec.Note,
			&rec.ApprovedBy, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
