package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Entry types. The set is closed; callers never invent new type tags.
const (
	TypeDeposit           = "DEPOSIT"
	TypeWithdrawalRequest = "WITHDRAWAL_REQUEST"
	TypeWithdrawal        = "WITHDRAWAL"
	TypePayment           = "PAYMENT"
	TypeReceived          = "RECEIVED"
	TypeRefund            = "REFUND"
	TypeBookingPayment    = "BOOKING_PAYMENT"
	TypeSessionPayment    = "SESSION_PAYMENT"
	TypeWalletCreation    = "WALLET_CREATION"
)

// Entry statuses. Once an entry reaches completed, approved or rejected it is
// immutable; corrections append new entries.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
)

// Escrow stages for the typed escrow state carried by booking-payment holds.
const (
	EscrowStagePosted   = "posted"
	EscrowStageEscrowed = "escrowed"
	EscrowStageResolved = "resolved"
)

// EscrowState records where an escrow hold stands. A hold in the escrowed
// stage names the beneficiary and the reserved amount; resolving it writes the
// deferred credit and moves the stage to resolved exactly once.
type EscrowState struct {
	Stage          string          `json:"stage"`
	PayeeAccountNo string          `json:"payee_account_no,omitempty"`
	Amount         decimal.Decimal `json:"amount,omitempty"`
	BookingRef     string          `json:"booking_ref,omitempty"`
	CreditEntryID  string          `json:"credit_entry_id,omitempty"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty"`
}

// Pending reports whether the hold still owes its credit leg.
func (es *EscrowState) Pending() bool {
	return es != nil && es.Stage == EscrowStageEscrowed
}

type Entry struct {
	ID        int64                  `json:"-"`
	EntryID   string                 `json:"entry_id"`
	TransNo   string                 `json:"trans_no"`
	Reference string                 `json:"reference"`
	AccountNo string                 `json:"account_no"`
	Debit     decimal.Decimal        `json:"debit"`
	Credit    decimal.Decimal        `json:"credit"`
	Type      string                 `json:"type"`
	Status    string                 `json:"status"`
	Narration string                 `json:"narration"`
	Escrow    *EscrowState           `json:"escrow,omitempty"`
	MetaData  map[string]interface{} `json:"meta_data,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// EntryFilter narrows ListEntries queries. Zero values mean "no constraint".
type EntryFilter struct {
	Type   string    `json:"type"`
	Status string    `json:"status"`
	From   time.Time `json:"from"`
	To     time.Time `json:"to"`
}

func (entry *Entry) ToJSON() ([]byte, error) {
	return json.Marshal(entry)
}

// Validate enforces the single-sided entry rule: exactly one of debit and
// credit is non-zero, and the non-zero side is positive. Wallet-creation audit
// entries are the one exception and carry no amount at all.
func (entry *Entry) Validate() error {
	if entry.AccountNo == "" {
		return errors.New("entry requires an account number")
	}
	if entry.Type == "" {
		return errors.New("entry requires a type")
	}
	hasDebit := !entry.Debit.IsZero()
	hasCredit := !entry.Credit.IsZero()
	if entry.Type == TypeWalletCreation {
		if hasDebit || hasCredit {
			return errors.New("wallet creation entry cannot move money")
		}
		return nil
	}
	if hasDebit && hasCredit {
		return errors.New("entry cannot have both debit and credit amounts")
	}
	if !hasDebit && !hasCredit {
		return errors.New("entry must have either a debit or a credit amount")
	}
	if entry.Debit.IsNegative() || entry.Credit.IsNegative() {
		return fmt.Errorf("entry amount must be positive")
	}
	return nil
}

// Amount returns the signed effect of the entry on its account balance:
// credits are positive, debits negative.
func (entry *Entry) Amount() decimal.Decimal {
	return entry.Credit.Sub(entry.Debit)
}

// FoldBalance computes an account balance from its entry history. Only
// completed entries move money: pending, failed and rejected entries are
// excluded, and so is an approved withdrawal request, whose companion
// completed WITHDRAWAL entry carries the actual debit.
func FoldBalance(entries []*Entry) decimal.Decimal {
	balance := decimal.Zero
	for _, entry := range entries {
		if entry.Status != StatusCompleted {
			continue
		}
		balance = balance.Add(entry.Amount())
	}
	return balance
}
