package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type EntryType string

const (
	EntryCredit EntryType = "credit"
	EntryDebit  EntryType = "debit"
)

type EntrySource string

const (
	SourceAdmin     EntrySource = "admin"
	SourceOrder     EntrySource = "order"
	SourcePromo     EntrySource = "promo"
	SourceBot       EntrySource = "bot"
	SourceQRPayment EntrySource = "qr_payment"
	SourceSystem    EntrySource = "system"
)

// LedgerEntry is one immutable line of the balance log. Entries are only
// ever appended; the cached user balance is derived from their sum.
type LedgerEntry struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Type          EntryType       `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	Source        EntrySource     `json:"source"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	CreatedAt     time.Time       `json:"created_at"`
}

type Statistics struct {
	Total     int                 `json:"total"`
	ByStatus  map[OrderStatus]int `json:"by_status"`
	TotalCost decimal.Decimal     `json:"total_cost"`
}
