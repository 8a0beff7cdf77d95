package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// WalletStatusActive is the only status in which a wallet can send or
	// receive money.
	WalletStatusActive    = "active"
	WalletStatusInactive  = "inactive"
	WalletStatusSuspended = "suspended"
)

type Wallet struct {
	ID           int64                  `json:"-"`
	WalletID     string                 `json:"wallet_id"`
	AccountNo    string                 `json:"account_no"`
	CustomerID   string                 `json:"customer_id"`
	CustomerName string                 `json:"customer_name"`
	Email        string                 `json:"email"`
	Status       string                 `json:"status"`
	Balance      decimal.Decimal        `json:"balance"`
	CreatedAt    time.Time              `json:"created_at"`
	MetaData     map[string]interface{} `json:"meta_data,omitempty"`
}

// CanTransact reports whether the wallet may participate in money movement.
// Inactive and suspended wallets are frozen on both the debit and credit side.
func (wallet *Wallet) CanTransact() bool {
	return wallet.Status == WalletStatusActive
}
