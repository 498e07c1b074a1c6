package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/planlift/backend/internal/gateway"
	"github.com/planlift/backend/internal/models"
	"github.com/stretchr/testify/assert"
	tmock "github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newBalanceServiceTest(t *testing.T) (*BalanceService, sqlmock.Sqlmock, *MockPaymentGateway) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gw := &MockPaymentGateway{}
	ledger := NewLedgerService(db)
	companies := NewCompanyService(db)
	service := NewBalanceService(db, ledger, companies, gw, "EUR",
		"http://localhost:8080/api/v1/webhooks/gateway")
	return service, mock, gw
}

func expectMembership(mock sqlmock.Sqlmock, companyID, userID, role string) {
	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM companies WHERE company_id = \\$1\\)").
		WithArgs(companyID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT role FROM company_members WHERE company_id = \\$1 AND user_id = \\$2").
		WithArgs(companyID, userID).
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow(role))
}

func expectOrderForUpdate(mock sqlmock.Sqlmock, orderID, userID string, price int64, status string) {
	mock.ExpectQuery("SELECT order_id, user_id, total_price, status, created_at FROM orders WHERE order_id = \\$1 FOR UPDATE").
		WithArgs(orderID).
		WillReturnRows(sqlmock.NewRows([]string{"order_id", "user_id", "total_price", "status", "created_at"}).
			AddRow(orderID, userID, price, status, time.Now()))
}

func expectOrder(mock sqlmock.Sqlmock, orderID, userID string, price int64, status string) {
	mock.ExpectQuery("SELECT order_id, user_id, total_price, status, created_at FROM orders WHERE order_id = \\$1").
		WithArgs(orderID).
		WillReturnRows(sqlmock.NewRows([]string{"order_id", "user_id", "total_price", "status", "created_at"}).
			AddRow(orderID, userID, price, status, time.Now()))
}

func TestBalanceService_InitiateTopUp(t *testing.T) {
	ctx := context.Background()

	t.Run("personal top-up records intent reference", func(t *testing.T) {
		service, mock, gw := newBalanceServiceTest(t)

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO transactions").
			WithArgs(sqlmock.AnyArg(), "user1", nil, models.KindTopUp, int64(500),
				nil, nil, models.StatusPending, "", nil, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		gw.On("CreatePaymentIntent", ctx, tmock.AnythingOfType("gateway.IntentRequest")).
			Return(&gateway.PaymentIntent{ID: "pi_123", Status: "requires_action",
				RedirectURL: "https://gw.example.com/pay/pi_123"}, nil)

		mock.ExpectExec("UPDATE transactions SET payment_ref = \\$1 WHERE transaction_id = \\$2").
			WithArgs("pi_123", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		initiation, err := service.InitiateTopUp(ctx, "user1", 500, "")
		require.NoError(t, err)
		assert.Equal(t, "pi_123", initiation.PaymentRef)
		assert.NotEmpty(t, initiation.TransactionID)
		assert.Equal(t, "https://gw.example.com/pay/pi_123", initiation.RedirectURL)
		assert.NoError(t, mock.ExpectationsWereMet())

		// crediting happens only on confirmed completion
		intentReq := gw.Calls[0].Arguments.Get(1).(gateway.IntentRequest)
		assert.Equal(t, int64(500), intentReq.Amount)
		assert.NotEmpty(t, intentReq.Metadata[gateway.MetaTopUpTransactionID])
	})

	t.Run("zero and negative amounts rejected with no transaction row", func(t *testing.T) {
		service, mock, gw := newBalanceServiceTest(t)

		_, err := service.InitiateTopUp(ctx, "user1", 0, "")
		assert.ErrorIs(t, err, ErrInvalidAmount)

		_, err = service.InitiateTopUp(ctx, "user1", -10, "")
		assert.ErrorIs(t, err, ErrInvalidAmount)

		assert.NoError(t, mock.ExpectationsWereMet())
		gw.AssertNotCalled(t, "CreatePaymentIntent")
	})

	t.Run("gateway failure marks the pending row failed", func(t *testing.T) {
		service, mock, gw := newBalanceServiceTest(t)

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO transactions").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		gw.On("CreatePaymentIntent", ctx, tmock.AnythingOfType("gateway.IntentRequest")).
			Return(nil, assert.AnError)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE transactions").
			WithArgs(models.StatusFailed, "payment intent creation failed", "",
				sqlmock.AnyArg(), models.StatusPending).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		_, err := service.InitiateTopUp(ctx, "user1", 500, "")
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("company top-up requires membership", func(t *testing.T) {
		service, mock, gw := newBalanceServiceTest(t)

		mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM companies WHERE company_id = \\$1\\)").
			WithArgs("comp1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery("SELECT role FROM company_members").
			WithArgs("comp1", "outsider").
			WillReturnRows(sqlmock.NewRows([]string{"role"}))

		_, err := service.InitiateTopUp(ctx, "outsider", 500, "comp1")
		assert.ErrorIs(t, err, ErrUnauthorized)
		gw.AssertNotCalled(t, "CreatePaymentIntent")
	})
}

func TestBalanceService_CompleteTopUp(t *testing.T) {
	ctx := context.Background()

	pendingTopUp := func(paymentRef string) *sqlmock.Rows {
		return transactionRows().AddRow(
			"txn1", "user1", nil, models.KindTopUp, int64(500),
			nil, paymentRef, models.StatusPending, "", nil, time.Now())
	}

	t.Run("credits the pocket exactly once", func(t *testing.T) {
		service, mock, _ := newBalanceServiceTest(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM transactions WHERE transaction_id = \\$1 FOR UPDATE").
			WithArgs("txn1").
			WillReturnRows(pendingTopUp("pi_123"))
		mock.ExpectExec("UPDATE transactions SET status = \\$1, approved_by = COALESCE").
			WithArgs(models.StatusCompleted, "", "txn1", models.StatusPending).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO balances").
			WithArgs("user1", int64(500)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := service.CompleteTopUp(ctx, "txn1", "pi_123")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("second completion is a no-op", func(t *testing.T) {
		service, mock, _ := newBalanceServiceTest(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM transactions WHERE transaction_id = \\$1 FOR UPDATE").
			WithArgs("txn1").
			WillReturnRows(transactionRows().AddRow(
				"txn1", "user1", nil, models.KindTopUp, int64(500),
				nil, "pi_123", models.StatusCompleted, "", nil, time.Now()))
		mock.ExpectRollback()

		err := service.CompleteTopUp(ctx, "txn1", "pi_123")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet()) // no credit, no status write
	})

	t.Run("payment reference mismatch fails closed", func(t *testing.T) {
		service, mock, _ := newBalanceServiceTest(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM transactions WHERE transaction_id = \\$1 FOR UPDATE").
			WithArgs("txn1").
			WillReturnRows(pendingTopUp("pi_123"))
		mock.ExpectRollback()

		err := service.CompleteTopUp(ctx, "txn1", "pi_forged")
		assert.ErrorIs(t, err, ErrPaymentRefMismatch)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("company-scoped top-up credits the company pocket", func(t *testing.T) {
		service, mock, _ := newBalanceServiceTest(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM transactions WHERE transaction_id = \\$1 FOR UPDATE").
			WithArgs("txn2").
			WillReturnRows(transactionRows().AddRow(
				"txn2", "user1", "comp1", models.KindTopUp, int64(1000),
				nil, "pi_456", models.StatusPending, "", nil, time.Now()))
		mock.ExpectExec("UPDATE transactions SET status = \\$1, approved_by = COALESCE").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO company_balances").
			WithArgs("comp1", int64(1000)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := service.CompleteTopUp(ctx, "txn2", "pi_456")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBalanceService_PayOrderWithBalance(t *testing.T) {
	ctx := context.Background()

	t.Run("personal pocket pays and order advances", func(t *testing.T) {
		service, mock, _ := newBalanceServiceTest(t)

		mock.ExpectBegin()
		expectOrderForUpdate(mock, "order1", "user1", 100, models.OrderPending)
		mock.ExpectExec("UPDATE balances SET amount = amount - \\$1").
			WithArgs(int64(100), "user1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE orders SET status = \\$1 WHERE order_id = \\$2 AND status = \\$3").
			WithArgs(models.OrderPaid, "order1", models.OrderPending).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO transactions").
			WithArgs(sqlmock.AnyArg(), "user1", nil, models.KindDebit, int64(-100),
				"order1", nil, models.StatusCompleted, "order payment", nil, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := service.PayOrderWithBalance(ctx, "user1", "order1", "")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("company member spends the shared pocket", func(t *testing.T) {
		service, mock, _ := newBalanceServiceTest(t)

		expectMembership(mock, "comp1", "user1", models.RoleMember)
		mock.ExpectBegin()
		expectOrderForUpdate(mock, "order1", "user1", 100, models.OrderPending)
		mock.ExpectExec("UPDATE company_balances SET amount = amount - \\$1").
			WithArgs(int64(100), "comp1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE orders SET status").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO transactions").
			WithArgs(sqlmock.AnyArg(), "user1", "comp1", models.KindDebit, int64(-100),
				"order1", nil, models.StatusCompleted, "order payment", nil, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := service.PayOrderWithBalance(ctx, "user1", "order1", "comp1")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient funds leaves no partial effects", func(t *testing.T) {
		service, mock, _ := newBalanceServiceTest(t)

		mock.ExpectBegin()
		expectOrderForUpdate(mock, "order1", "user1", 100, models.OrderPending)
		mock.ExpectExec("UPDATE balances SET amount = amount - \\$1").
			WithArgs(int64(100), "user1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM balances").
			WithArgs("user1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectRollback()

		err := service.PayOrderWithBalance(ctx, "user1", "order1", "")
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		// no order update, no transaction insert
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non-member cannot spend a company pocket", func(t *testing.T) {
		service, mock, _ := newBalanceServiceTest(t)

		mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM companies WHERE company_id = \\$1\\)").
			WithArgs("comp1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery("SELECT role FROM company_members").
			WithArgs("comp1", "stranger").
			WillReturnRows(sqlmock.NewRows([]string{"role"}))

		err := service.PayOrderWithBalance(ctx, "stranger", "order1", "comp1")
		assert.ErrorIs(t, err, ErrUnauthorized)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already paid order is not payable again", func(t *testing.T) {
		service, mock, _ := newBalanceServiceTest(t)

		mock.ExpectBegin()
		expectOrderForUpdate(mock, "order1", "user1", 100, models.OrderPaid)
		mock.ExpectRollback()

		err := service.PayOrderWithBalance(ctx, "user1", "order1", "")
		assert.ErrorIs(t, err, ErrOrderNotPayable)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("contending payments: exactly one debit succeeds", func(t *testing.T) {
		service, mock, _ := newBalanceServiceTest(t)

		// First payment drains the pocket.
		mock.ExpectBegin()
		expectOrderForUpdate(mock, "orderA", "user1", 100, models.OrderPending)
		mock.ExpectExec("UPDATE balances SET amount = amount - \\$1").
			WithArgs(int64(100), "user1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE orders SET status").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO transactions").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		// The contender hits the conditional update after the balance is gone.
		mock.ExpectBegin()
		expectOrderForUpdate(mock, "orderB", "user1", 100, models.OrderPending)
		mock.ExpectExec("UPDATE balances SET amount = amount - \\$1").
			WithArgs(int64(100), "user1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM balances").
			WithArgs("user1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectRollback()

		assert.NoError(t, service.PayOrderWithBalance(ctx, "user1", "orderA", ""))
		assert.ErrorIs(t, service.PayOrderWithBalance(ctx, "user1", "orderB", ""), ErrInsufficientFunds)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBalanceService_Refunds(t *testing.T) {
	ctx := context.Background()

	t.Run("request refund for a paid order", func(t *testing.T) {
		service, mock, _ := newBalanceServiceTest(t)

		expectOrder(mock, "order1", "user1", 100, models.OrderPaid)
		mock.ExpectQuery("SELECT EXISTS\\(\\s*SELECT 1 FROM transactions").
			WithArgs("order1", models.KindRefundRequest, models.StatusPending).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO transactions").
			WithArgs(sqlmock.AnyArg(), "user1", nil, models.KindRefundRequest, int64(100),
				"order1", nil, models.StatusPending, "damaged sheets", nil, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		rec, err := service.RequestRefund(ctx, "user1", "order1", "damaged sheets")
		require.NoError(t, err)
		assert.Equal(t, int64(100), rec.Amount)
		assert.Equal(t, models.StatusPending, rec.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unpaid order cannot be refunded", func(t *testing.T) {
		service, mock, _ := newBalanceServiceTest(t)

		expectOrder(mock, "order1", "user1", 100, models.OrderPending)

		_, err := service.RequestRefund(ctx, "user1", "order1", "")
		assert.ErrorIs(t, err, ErrOrderNotPaid)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("one outstanding request per order", func(t *testing.T) {
		service, mock, _ := newBalanceServiceTest(t)

		expectOrder(mock, "order1", "user1", 100, models.OrderPaid)
		mock.ExpectQuery("SELECT EXISTS\\(\\s*SELECT 1 FROM transactions").
			WithArgs("order1", models.KindRefundRequest, models.StatusPending).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		_, err := service.RequestRefund(ctx, "user1", "order1", "")
		assert.ErrorIs(t, err, ErrDuplicateRefundRequest)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("approval credits and scopes to the pocket the debit came from", func(t *testing.T) {
		service, mock, _ := newBalanceServiceTest(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM transactions WHERE transaction_id = \\$1 FOR UPDATE").
			WithArgs("refund1").
			WillReturnRows(transactionRows().AddRow(
				"refund1", "user1", nil, models.KindRefundRequest, int64(100),
				"order1", nil, models.StatusPending, "", nil, time.Now()))
		mock.ExpectQuery("SELECT (.+) FROM transactions\\s+WHERE order_id = \\$1 AND kind = \\$2 AND status = \\$3").
			WithArgs("order1", models.KindDebit, models.StatusCompleted).
			WillReturnRows(transactionRows().AddRow(
				"debit1", "user1", "comp1", models.KindDebit, int64(-100),
				"order1", nil, models.StatusCompleted, "order payment", nil, time.Now()))
		// completed refund row must carry the credited pocket so the
		// pocket's balance stays the sum of its completed transactions
		mock.ExpectExec("UPDATE transactions SET company_id = NULLIF\\(\\$1, ''\\), user_id = COALESCE").
			WithArgs("comp1", "", "refund1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO company_balances").
			WithArgs("comp1", int64(100)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE transactions SET status = \\$1, approved_by = COALESCE").
			WithArgs(models.StatusCompleted, "admin1", "refund1", models.StatusPending).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE orders SET status = \\$1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := service.ApproveRefund(ctx, "admin1", "refund1")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("approval falls back to the requester's personal pocket", func(t *testing.T) {
		service, mock, _ := newBalanceServiceTest(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM transactions WHERE transaction_id = \\$1 FOR UPDATE").
			WithArgs("refund2").
			WillReturnRows(transactionRows().AddRow(
				"refund2", "user1", nil, models.KindRefundRequest, int64(100),
				"order2", nil, models.StatusPending, "", nil, time.Now()))
		mock.ExpectQuery("SELECT (.+) FROM transactions\\s+WHERE order_id = \\$1 AND kind = \\$2 AND status = \\$3").
			WithArgs("order2", models.KindDebit, models.StatusCompleted).
			WillReturnRows(transactionRows()) // card-paid, no balance debit on record
		mock.ExpectExec("UPDATE transactions SET company_id = NULLIF\\(\\$1, ''\\), user_id = COALESCE").
			WithArgs("", "user1", "refund2").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO balances").
			WithArgs("user1", int64(100)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE transactions SET status = \\$1, approved_by = COALESCE").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE orders SET status = \\$1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := service.ApproveRefund(ctx, "admin1", "refund2")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("approving a settled request is an error", func(t *testing.T) {
		service, mock, _ := newBalanceServiceTest(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM transactions WHERE transaction_id = \\$1 FOR UPDATE").
			WithArgs("refund1").
			WillReturnRows(transactionRows().AddRow(
				"refund1", "user1", nil, models.KindRefundRequest, int64(100),
				"order1", nil, models.StatusCompleted, "", "admin1", time.Now()))
		mock.ExpectRollback()

		err := service.ApproveRefund(ctx, "admin1", "refund1")
		assert.ErrorIs(t, err, ErrInvalidRefundRequest)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejection records the rationale and moves no money", func(t *testing.T) {
		service, mock, _ := newBalanceServiceTest(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM transactions WHERE transaction_id = \\$1 FOR UPDATE").
			WithArgs("refund1").
			WillReturnRows(transactionRows().AddRow(
				"refund1", "user1", nil, models.KindRefundRequest, int64(100),
				"order1", nil, models.StatusPending, "", nil, time.Now()))
		mock.ExpectExec("UPDATE transactions").
			WithArgs(models.StatusFailed, "outside policy window", "admin1", "refund1", models.StatusPending).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := service.RejectRefund(ctx, "admin1", "refund1", "outside policy window")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBalanceService_GetBalances(t *testing.T) {
	service, mock, _ := newBalanceServiceTest(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT amount FROM balances WHERE user_id = \\$1").
		WithArgs("user1").
		WillReturnRows(sqlmock.NewRows([]string{"amount"}).AddRow(500))
	mock.ExpectQuery("SELECT c.company_id, c.name, COALESCE\\(cb.amount, 0\\), m.role").
		WithArgs("user1").
		WillReturnRows(sqlmock.NewRows([]string{"company_id", "name", "amount", "role"}).
			AddRow("comp1", "Acme Architects", 1000, models.RoleMember))

	summary, err := service.GetBalances(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), summary.Personal)
	require.Len(t, summary.Companies, 1)
	assert.Equal(t, int64(1000), summary.Companies[0].Balance)
	assert.Equal(t, models.RoleMember, summary.Companies[0].Role)
}

func TestBalanceService_MarkOrderPaid(t *testing.T) {
	ctx := context.Background()

	t.Run("advances a pending order", func(t *testing.T) {
		service, mock, _ := newBalanceServiceTest(t)

		mock.ExpectExec("UPDATE orders SET status = \\$1 WHERE order_id = \\$2 AND status = \\$3").
			WithArgs(models.OrderPaid, "order1", models.OrderPending).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, service.MarkOrderPaid(ctx, "order1"))
	})

	t.Run("already paid is a silent no-op", func(t *testing.T) {
		service, mock, _ := newBalanceServiceTest(t)

		mock.ExpectExec("UPDATE orders SET status = \\$1 WHERE order_id = \\$2 AND status = \\$3").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM orders WHERE order_id = \\$1\\)").
			WithArgs("order1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		assert.NoError(t, service.MarkOrderPaid(ctx, "order1"))
	})

	t.Run("unknown order is reported", func(t *testing.T) {
		service, mock, _ := newBalanceServiceTest(t)

		mock.ExpectExec("UPDATE orders SET status = \\$1 WHERE order_id = \\$2 AND status = \\$3").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM orders WHERE order_id = \\$1\\)").
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		assert.ErrorIs(t, service.MarkOrderPaid(ctx, "ghost"), ErrNotFound)
	})
}
