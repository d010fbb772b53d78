package model

import (
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

type Provider string

const (
	ProviderFiveSim     Provider = "5sim"
	ProviderSMSHub      Provider = "smshub"
	ProviderSMSActivate Provider = "smsactivate"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"   // number bought, not polled yet
	StatusWaiting   OrderStatus = "waiting"   // polled at least once, no SMS so far
	StatusReceived  OrderStatus = "received"  // SMS arrived, code extracted
	StatusCompleted OrderStatus = "completed" // finished explicitly
	StatusCancelled OrderStatus = "cancelled" // cancelled explicitly
	StatusExpired   OrderStatus = "expired"   // provider-side timeout
)

// Terminal reports whether no further transition is permitted from s.
func (s OrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusExpired
}

type Order struct {
	ID          string          `json:"id"`
	Provider    Provider        `json:"provider"`
	UserID      string          `json:"user_id"`
	Phone       string          `json:"phone"`
	Country     string          `json:"country"`
	Product     string          `json:"product"`
	Operator    string          `json:"operator"`
	Cost        decimal.Decimal `json:"cost"`
	Status      OrderStatus     `json:"status"`
	SMS         []SMS           `json:"sms,omitempty"`
	Code        string          `json:"code,omitempty"`
	ExpiresAt   time.Time       `json:"expires_at"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	ReceivedAt  *time.Time      `json:"received_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	CancelledAt *time.Time      `json:"cancelled_at,omitempty"`
}

type SMS struct {
	Text       string    `json:"text"`
	Sender     string    `json:"sender"`
	ReceivedAt time.Time `json:"received_at"`
}

var codePattern = regexp.MustCompile(`\b\d{4,6}\b`)

// ExtractCode scans messages in order and returns the first run of 4-6 digits
// found in a message body. Empty means no code yet; the caller keeps waiting.
func ExtractCode(messages []SMS) string {
	for _, m := range messages {
		if code := codePattern.FindString(m.Text); code != "" {
			return code
		}
	}
	return ""
}
