package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"otpmarket/internal/model"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrUserNotFound      = errors.New("user not found")
)

// balanceTolerance absorbs float rounding accumulated by older entries when
// reconciling the cached balance against the entry sum.
var balanceTolerance = decimal.NewFromFloat(0.01)

// Ledger is the only component that mutates user balances. Every mutation
// appends exactly one immutable entry and updates the cached balance in the
// same transaction.
type Ledger struct {
	db *sql.DB
}

func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

type VerifyResult struct {
	Balance    decimal.Decimal `json:"balance"`
	Calculated decimal.Decimal `json:"calculated_balance"`
	Matches    bool            `json:"matches"`
}

func (l *Ledger) Debit(ctx context.Context, userID string, amount decimal.Decimal, source model.EntrySource, description string) (*model.LedgerEntry, error) {
	return l.apply(ctx, userID, model.EntryDebit, amount, source, description)
}

func (l *Ledger) Credit(ctx context.Context, userID string, amount decimal.Decimal, source model.EntrySource, description string) (*model.LedgerEntry, error) {
	return l.apply(ctx, userID, model.EntryCredit, amount, source, description)
}

func (l *Ledger) apply(ctx context.Context, userID string, entryType model.EntryType, amount decimal.Decimal, source model.EntrySource, description string) (*model.LedgerEntry, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	entry, err := l.applyTx(ctx, tx, userID, entryType, amount, source, description)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return entry, nil
}

// DebitTx runs the debit inside a caller-owned transaction so the caller can
// couple it with other writes (the coordinator pairs it with the order
// insert). The caller commits or rolls back.
func (l *Ledger) DebitTx(ctx context.Context, tx *sql.Tx, userID string, amount decimal.Decimal, source model.EntrySource, description string) (*model.LedgerEntry, error) {
	return l.applyTx(ctx, tx, userID, model.EntryDebit, amount, source, description)
}

func (l *Ledger) applyTx(ctx context.Context, tx *sql.Tx, userID string, entryType model.EntryType, amount decimal.Decimal, source model.EntrySource, description string) (*model.LedgerEntry, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%s: %w", amount, ErrInvalidAmount)
	}

	var before decimal.Decimal
	err := tx.QueryRowContext(ctx, `SELECT balance FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&before)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", userID, ErrUserNotFound)
		}
		return nil, fmt.Errorf("get balance: %w", err)
	}

	var after decimal.Decimal
	switch entryType {
	case model.EntryDebit:
		if amount.GreaterThan(before) {
			return nil, fmt.Errorf("debit %s exceeds balance %s: %w", amount, before, ErrInsufficientFunds)
		}
		after = before.Sub(amount)
	case model.EntryCredit:
		after = before.Add(amount)
	default:
		return nil, fmt.Errorf("unknown entry type %q", entryType)
	}

	entry := &model.LedgerEntry{
		ID:            uuid.NewString(),
		UserID:        userID,
		Type:          entryType,
		Amount:        amount,
		Description:   description,
		Source:        source,
		BalanceBefore: before,
		BalanceAfter:  after,
		CreatedAt:     time.Now(),
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, user_id, type, amount, description, source, balance_before, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.UserID, entry.Type, entry.Amount, entry.Description,
		entry.Source, entry.BalanceBefore, entry.BalanceAfter, entry.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}

	_, err = tx.ExecContext(ctx, `UPDATE users SET balance = $1 WHERE id = $2`, after, userID)
	if err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}

	return entry, nil
}

func (l *Ledger) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := l.db.QueryRowContext(ctx, `SELECT balance FROM users WHERE id = $1`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("user %s: %w", userID, ErrUserNotFound)
		}
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

// Verify recomputes the balance from the entry log and compares it with the
// cached value. Diagnostics only, not part of the hot path.
func (l *Ledger) Verify(ctx context.Context, userID string) (*VerifyResult, error) {
	balance, err := l.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}

	var calculated decimal.Decimal
	err = l.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN type = 'credit' THEN amount ELSE -amount END), 0)
		FROM ledger_entries WHERE user_id = $1`, userID).Scan(&calculated)
	if err != nil {
		return nil, fmt.Errorf("sum ledger entries: %w", err)
	}

	return &VerifyResult{
		Balance:    balance,
		Calculated: calculated,
		Matches:    balance.Sub(calculated).Abs().LessThanOrEqual(balanceTolerance),
	}, nil
}
