package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/planlift/backend/internal/gateway"
	"github.com/planlift/backend/internal/models"
)

// BalanceService orchestrates top-ups, order payments and refunds against
// the ledger store. Every operation that moves money runs inside one
// database transaction spanning the balance mutation and the transaction/
// order rows it accompanies, so no partial credit/debit state is ever
// observable.
type BalanceService struct {
	db          *sql.DB
	ledger      *LedgerService
	companies   *CompanyService
	gateway     gateway.PaymentGateway
	validator   *ValidationHelper
	currency    string
	callbackURL string
}

func NewBalanceService(db *sql.DB, ledger *LedgerService, companies *CompanyService, gw gateway.PaymentGateway, currency, callbackURL string) *BalanceService {
	return &BalanceService{
		db:          db,
		ledger:      ledger,
		companies:   companies,
		gateway:     gw,
		validator:   NewValidationHelper(),
		currency:    currency,
		callbackURL: callbackURL,
	}
}

// TopUpInitiation is what initiateTopUp hands back to the client: the
// ledger-side transaction id plus the gateway's reference and redirect.
type TopUpInitiation struct {
	TransactionID string `json:"transaction_id"`
	PaymentRef    string `json:"payment_ref"`
	RedirectURL   string `json:"redirect_url,omitempty"`
}

// GetBalances joins the user's personal pocket with every company pocket
// they belong to. Read-only.
func (s *BalanceService) GetBalances(ctx context.Context, userID string) (*models.BalanceSummary, error) {
	personal, err := s.ledger.GetBalanceOrZero(ctx, PersonalPocket(userID))
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.company_id, c.name, COALESCE(cb.amount, 0), m.role
		FROM company_members m
		JOIN companies c ON c.company_id = m.company_id
		LEFT JOIN company_balances cb ON cb.company_id = m.company_id
		WHERE m.user_id = $1
		ORDER BY c.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summary := &models.BalanceSummary{Personal: personal, Companies: []models.CompanyBalanceView{}}
	for rows.Next() {
		var v models.CompanyBalanceView
		if err := rows.Scan(&v.CompanyID, &v.Name, &v.Balance, &v.Role); err != nil {
			return nil, err
		}
		summary.Companies = append(summary.Companies, v)
	}
	return summary, rows.Err()
}

// InitiateTopUp opens a pending top-up for the given pocket and a matching
// payment intent at the gateway. No balance is credited here; crediting
// happens only on confirmed completion.
func (s *BalanceService) InitiateTopUp(ctx context.Context, userID string, amount int64, companyID string) (*TopUpInitiation, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	if companyID != "" {
		if _, err := s.companies.MemberRole(ctx, companyID, userID); err != nil {
			return nil, err
		}
	}

	rec := &models.Transaction{
		TransactionID: uuid.NewString(),
		UserID:        userID,
		CompanyID:     nullString(companyID),
		Kind:          models.KindTopUp,
		Amount:        amount,
		Status:        models.StatusPending,
		CreatedAt:     time.Now(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.ledger.AppendTransactionTx(ctx, tx, rec); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	// The gateway round trip happens after commit so a slow provider does
	// not pin a pool connection for the duration of the call.
	intent, err := s.gateway.CreatePaymentIntent(ctx, gateway.IntentRequest{
		Amount:      amount,
		Currency:    s.currency,
		Description: fmt.Sprintf("PlanLift balance top-up (%s)", PocketOf(rec)),
		CallbackURL: s.callbackURL,
		Metadata:    map[string]string{gateway.MetaTopUpTransactionID: rec.TransactionID},
	})
	if err != nil {
		// A top-up the gateway never heard of is not reconcilable.
		s.failTopUp(ctx, rec.TransactionID, "payment intent creation failed")
		return nil, fmt.Errorf("creating payment intent: %w", err)
	}

	if err := s.ledger.RecordPaymentRef(ctx, rec.TransactionID, intent.ID); err != nil {
		return nil, err
	}

	log.Printf("[BALANCE] Top-up %s initiated for %s, amount %d, intent %s",
		rec.TransactionID, PocketOf(rec), amount, intent.ID)

	return &TopUpInitiation{
		TransactionID: rec.TransactionID,
		PaymentRef:    intent.ID,
		RedirectURL:   intent.RedirectURL,
	}, nil
}

// failTopUp closes out a pending top-up whose gateway intent never came to
// be. Best effort: a row left pending can still only complete against a
// matching payment reference, which it will never have.
func (s *BalanceService) failTopUp(ctx context.Context, transactionID, note string) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("[BALANCE] Failed to open tx to fail top-up %s: %v", transactionID, err)
		return
	}
	defer tx.Rollback()

	if err := s.ledger.FailTransactionTx(ctx, tx, transactionID, note, ""); err != nil {
		log.Printf("[BALANCE] Failed to mark top-up %s failed: %v", transactionID, err)
		return
	}
	if err := tx.Commit(); err != nil {
		log.Printf("[BALANCE] Failed to commit failure of top-up %s: %v", transactionID, err)
	}
}

// CompleteTopUp finalizes a confirmed top-up: marks the transaction
// completed and credits the target pocket, atomically. Safe to re-run: a
// transaction already completed is a no-op. The supplied payment reference
// must exactly match the one recorded at initiation; a mismatch fails
// closed rather than completing a possibly wrong transaction.
func (s *BalanceService) CompleteTopUp(ctx context.Context, transactionID, paymentRef string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rec, err := s.ledger.GetTransactionForUpdateTx(ctx, tx, transactionID)
	if err != nil {
		return err
	}
	if rec.Kind != models.KindTopUp {
		return ErrNotFound
	}

	if rec.Status == models.StatusCompleted {
		return nil // already credited, absorb the retry
	}
	if rec.Status == models.StatusFailed {
		return ErrAlreadyFinal
	}

	if !rec.PaymentRef.Valid || rec.PaymentRef.String != paymentRef {
		log.Printf("[BALANCE] Payment reference mismatch on top-up %s: recorded %q, got %q",
			transactionID, rec.PaymentRef.String, paymentRef)
		return ErrPaymentRefMismatch
	}

	if err := s.ledger.CompleteTransactionTx(ctx, tx, transactionID, ""); err != nil {
		return err
	}
	if err := s.ledger.CreditTx(ctx, tx, PocketOf(rec), rec.Amount); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	log.Printf("[BALANCE] Top-up %s completed, credited %d to %s",
		transactionID, rec.Amount, PocketOf(rec))
	return nil
}

// PayOrderWithBalance pays a pending order from the caller's personal
// pocket, or from a shared company pocket when companyID is given and the
// caller is a member. Fully synchronous: the money moves between the
// platform's own ledgers, so there is no gateway leg.
func (s *BalanceService) PayOrderWithBalance(ctx context.Context, userID, orderID, companyID string) error {
	pocket := PersonalPocket(userID)
	if companyID != "" {
		if _, err := s.companies.MemberRole(ctx, companyID, userID); err != nil {
			return err
		}
		pocket = CompanyPocket(companyID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	order, err := s.getOrderForUpdateTx(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if order.Status != models.OrderPending {
		return ErrOrderNotPayable
	}

	if err := s.ledger.DebitTx(ctx, tx, pocket, order.TotalPrice); err != nil {
		// Rollback leaves no trace: the order stays pending and no
		// transaction row is recorded.
		return err
	}

	if err := s.markOrderTx(ctx, tx, orderID, models.OrderPending, models.OrderPaid); err != nil {
		return err
	}

	rec := &models.Transaction{
		TransactionID: uuid.NewString(),
		UserID:        userID,
		CompanyID:     nullString(companyID),
		Kind:          models.KindDebit,
		Amount:        -order.TotalPrice,
		OrderID:       nullString(orderID),
		Status:        models.StatusCompleted,
		Note:          "order payment",
		CreatedAt:     time.Now(),
	}
	if err := s.ledger.AppendTransactionTx(ctx, tx, rec); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	log.Printf("[BALANCE] Order %s paid from %s, amount %d", orderID, pocket, order.TotalPrice)
	return nil
}

// PayOrderWithCard opens a gateway payment intent for a pending order. The
// order advances to paid only when the gateway's notification arrives.
func (s *BalanceService) PayOrderWithCard(ctx context.Context, userID, orderID string) (*gateway.PaymentIntent, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrUnauthorized
	}
	if order.Status != models.OrderPending {
		return nil, ErrOrderNotPayable
	}

	intent, err := s.gateway.CreatePaymentIntent(ctx, gateway.IntentRequest{
		Amount:      order.TotalPrice,
		Currency:    s.currency,
		Description: fmt.Sprintf("PlanLift order %s", orderID),
		CallbackURL: s.callbackURL,
		Metadata:    map[string]string{gateway.MetaOrderID: orderID},
	})
	if err != nil {
		return nil, fmt.Errorf("creating payment intent: %w", err)
	}

	log.Printf("[BALANCE] Card payment intent %s opened for order %s", intent.ID, orderID)
	return intent, nil
}

// RequestRefund records a pending refund request for a paid order. No
// balance or order state changes until an admin decides. At most one
// pending request may exist per order; the partial unique index backs the
// service-level check against races.
func (s *BalanceService) RequestRefund(ctx context.Context, userID, orderID, note string) (*models.Transaction, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrUnauthorized
	}
	switch order.Status {
	case models.OrderPending, models.OrderExpired, models.OrderCancelled:
		return nil, ErrOrderNotPaid
	}

	pending, err := s.ledger.HasPendingRefundRequest(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, ErrDuplicateRefundRequest
	}

	rec := &models.Transaction{
		TransactionID: uuid.NewString(),
		UserID:        userID,
		Kind:          models.KindRefundRequest,
		Amount:        order.TotalPrice,
		OrderID:       nullString(orderID),
		Status:        models.StatusPending,
		Note:          note,
		CreatedAt:     time.Now(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.ledger.AppendTransactionTx(ctx, tx, rec); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrDuplicateRefundRequest
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Printf("[BALANCE] Refund requested for order %s by %s, amount %d",
		orderID, userID, order.TotalPrice)
	return rec, nil
}

// ApproveRefund credits the refund amount back to the pocket the original
// debit came from, completes the request, and cancels the order in one
// unit of work. The target pocket is resolved from the most recent
// completed debit for the order, falling back to the requester's personal
// pocket when the order was never balance-paid.
func (s *BalanceService) ApproveRefund(ctx context.Context, adminID, transactionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rec, err := s.ledger.GetTransactionForUpdateTx(ctx, tx, transactionID)
	if errors.Is(err, ErrNotFound) {
		return ErrInvalidRefundRequest
	}
	if err != nil {
		return err
	}
	if rec.Kind != models.KindRefundRequest || rec.Status != models.StatusPending {
		return ErrInvalidRefundRequest
	}

	pocket := PersonalPocket(rec.UserID)
	if rec.OrderID.Valid {
		debit, err := s.ledger.FindLatestDebitForOrderTx(ctx, tx, rec.OrderID.String)
		switch {
		case err == nil:
			pocket = PocketOf(debit)
		case errors.Is(err, ErrNotFound):
			// no balance debit on record: card-paid order, refund to the
			// requester's personal pocket
		default:
			return err
		}
	}

	// The completed refund row must be attributed to the pocket it
	// credits, or that pocket's balance drifts from the sum of its
	// completed transactions.
	if err := s.ledger.ScopeTransactionTx(ctx, tx, transactionID, pocket); err != nil {
		return err
	}
	if err := s.ledger.CreditTx(ctx, tx, pocket, rec.Amount); err != nil {
		return err
	}
	if err := s.ledger.CompleteTransactionTx(ctx, tx, transactionID, adminID); err != nil {
		return err
	}
	if rec.OrderID.Valid {
		if err := s.cancelOrderTx(ctx, tx, rec.OrderID.String); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	log.Printf("[BALANCE] Refund %s approved by %s, credited %d to %s",
		transactionID, adminID, rec.Amount, pocket)
	return nil
}

// RejectRefund fails the request with an optional rationale. No balance
// effect. A second rejection of the same request is an error, not a no-op:
// direct duplicate admin actions are surfaced, unlike gateway retries.
func (s *BalanceService) RejectRefund(ctx context.Context, adminID, transactionID, note string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rec, err := s.ledger.GetTransactionForUpdateTx(ctx, tx, transactionID)
	if errors.Is(err, ErrNotFound) {
		return ErrInvalidRefundRequest
	}
	if err != nil {
		return err
	}
	if rec.Kind != models.KindRefundRequest || rec.Status != models.StatusPending {
		return ErrInvalidRefundRequest
	}

	if err := s.ledger.FailTransactionTx(ctx, tx, transactionID, note, adminID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	log.Printf("[BALANCE] Refund %s rejected by %s", transactionID, adminID)
	return nil
}

// MarkOrderPaid idempotently advances an order from pending to paid on a
// confirmed card payment. Already paid or beyond is a silent no-op;
// ErrNotFound signals a notification for an order this platform does not
// know.
func (s *BalanceService) MarkOrderPaid(ctx context.Context, orderID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = $1 WHERE order_id = $2 AND status = $3`,
		models.OrderPaid, orderID, models.OrderPending)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected > 0 {
		log.Printf("[BALANCE] Order %s marked paid", orderID)
		return nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM orders WHERE order_id = $1)`, orderID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return nil // already paid or further along
}

// GetOrder fetches an order by id.
func (s *BalanceService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order := &models.Order{}
	err := s.db.QueryRowContext(ctx,
		`SELECT order_id, user_id, total_price, status, created_at FROM orders WHERE order_id = $1`,
		orderID).Scan(&order.OrderID, &order.UserID, &order.TotalPrice, &order.Status, &order.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ListTransactions returns the caller's transaction history.
func (s *BalanceService) ListTransactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	return s.ledger.ListTransactions(ctx, userID, limit)
}

// ListPendingRefunds returns refund requests awaiting admin action.
func (s *BalanceService) ListPendingRefunds(ctx context.Context) ([]models.Transaction, error) {
	return s.ledger.ListPendingRefundRequests(ctx)
}

func (s *BalanceService) getOrderForUpdateTx(ctx context.Context, tx *sql.Tx, orderID string) (*models.Order, error) {
	order := &models.Order{}
	err := tx.QueryRowContext(ctx,
		`SELECT order_id, user_id, total_price, status, created_at FROM orders WHERE order_id = $1 FOR UPDATE`,
		orderID).Scan(&order.OrderID, &order.UserID, &order.TotalPrice, &order.Status, &order.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *BalanceService) markOrderTx(ctx context.Context, tx *sql.Tx, orderID, from, to string) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = $1 WHERE order_id = $2 AND status = $3`,
		to, orderID, from)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrOrderNotPayable
	}
	return nil
}

func (s *BalanceService) cancelOrderTx(ctx context.Context, tx *sql.Tx, orderID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = $1
		WHERE order_id = $2 AND status NOT IN ($1, $3)`,
		models.OrderCancelled, orderID, models.OrderExpired)
	return err
}

// PocketOf resolves the pocket a transaction credits or debits.
func PocketOf(rec *models.Transaction) Pocket {
	if rec.CompanyID.Valid {
		return CompanyPocket(rec.CompanyID.String)
	}
	return PersonalPocket(rec.UserID)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
