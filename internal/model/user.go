package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID           string          `json:"id"`
	Login        string          `json:"login"`
	PasswordHash []byte          `json:"-"`
	Balance      decimal.Decimal `json:"balance"`
	CreatedAt    time.Time       `json:"created_at"`
}
