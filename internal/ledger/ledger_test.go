package ledger

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otpmarket/internal/model"
)

func newTestLedger(t *testing.T) (*Ledger, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestDebit(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		l, mock := newTestLedger(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT balance FROM users WHERE id = \$1 FOR UPDATE`).
			WithArgs("user-1").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("50"))
		mock.ExpectExec(`INSERT INTO ledger_entries`).
			WithArgs(sqlmock.AnyArg(), "user-1", "debit", sqlmock.AnyArg(), "number purchase",
				"order", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE users SET balance = \$1 WHERE id = \$2`).
			WithArgs(sqlmock.AnyArg(), "user-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		entry, err := l.Debit(context.Background(), "user-1", decimal.NewFromInt(10), model.SourceOrder, "number purchase")
		require.NoError(t, err)
		assert.Equal(t, model.EntryDebit, entry.Type)
		assert.Equal(t, "50", entry.BalanceBefore.String())
		assert.Equal(t, "40", entry.BalanceAfter.String())
		assert.NotEmpty(t, entry.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient funds", func(t *testing.T) {
		l, mock := newTestLedger(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT balance FROM users WHERE id = \$1 FOR UPDATE`).
			WithArgs("user-1").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("5"))
		mock.ExpectRollback()

		_, err := l.Debit(context.Background(), "user-1", decimal.NewFromInt(10), model.SourceOrder, "number purchase")
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.NoError(t, mock.ExpectationsWereMet(), "no entry may be written on a failed debit")
	})

	t.Run("unknown user", func(t *testing.T) {
		l, mock := newTestLedger(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT balance FROM users WHERE id = \$1 FOR UPDATE`).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}))
		mock.ExpectRollback()

		_, err := l.Debit(context.Background(), "missing", decimal.NewFromInt(10), model.SourceAdmin, "x")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("non-positive amount", func(t *testing.T) {
		l, mock := newTestLedger(t)

		mock.ExpectBegin()
		mock.ExpectRollback()

		_, err := l.Debit(context.Background(), "user-1", decimal.Zero, model.SourceAdmin, "x")
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})
}

func TestCredit(t *testing.T) {
	l, mock := newTestLedger(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT balance FROM users WHERE id = \$1 FOR UPDATE`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("12.3"))
	mock.ExpectExec(`INSERT INTO ledger_entries`).
		WithArgs(sqlmock.AnyArg(), "user-1", "credit", sqlmock.AnyArg(), "manual top-up",
			"admin", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE users SET balance = \$1 WHERE id = \$2`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	entry, err := l.Credit(context.Background(), "user-1", decimal.RequireFromString("100.5"), model.SourceAdmin, "manual top-up")
	require.NoError(t, err)
	assert.Equal(t, model.EntryCredit, entry.Type)
	assert.Equal(t, "112.8", entry.BalanceAfter.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBalance(t *testing.T) {
	l, mock := newTestLedger(t)

	mock.ExpectQuery(`SELECT balance FROM users WHERE id = \$1`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("77.25"))

	balance, err := l.Balance(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "77.25", balance.String())

	mock.ExpectQuery(`SELECT balance FROM users WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}))

	_, err = l.Balance(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestVerify(t *testing.T) {
	t.Run("matches within tolerance", func(t *testing.T) {
		l, mock := newTestLedger(t)

		mock.ExpectQuery(`SELECT balance FROM users WHERE id = \$1`).
			WithArgs("user-1").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("40"))
		mock.ExpectQuery(`SELECT COALESCE\(SUM\(CASE WHEN type = 'credit' THEN amount ELSE -amount END\), 0\)`).
			WithArgs("user-1").
			WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow("40.01"))

		result, err := l.Verify(context.Background(), "user-1")
		require.NoError(t, err)
		assert.True(t, result.Matches)
		assert.Equal(t, "40", result.Balance.String())
		assert.Equal(t, "40.01", result.Calculated.String())
	})

	t.Run("mismatch", func(t *testing.T) {
		l, mock := newTestLedger(t)

		mock.ExpectQuery(`SELECT balance FROM users WHERE id = \$1`).
			WithArgs("user-1").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("40"))
		mock.ExpectQuery(`SELECT COALESCE\(SUM\(CASE WHEN type = 'credit' THEN amount ELSE -amount END\), 0\)`).
			WithArgs("user-1").
			WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow("25"))

		result, err := l.Verify(context.Background(), "user-1")
		require.NoError(t, err)
		assert.False(t, result.Matches)
	})
}
