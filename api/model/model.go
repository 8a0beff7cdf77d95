/*
Copyright 2024 EduBridge Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package model

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/shopspring/decimal"
)

// CreateWallet is the request body for opening a customer wallet.
type CreateWallet struct {
	CustomerID   string `json:"customer_id"`
	CustomerName string `json:"customer_name"`
	Email        string `json:"email"`
}

// FundWallet is the privileged manual-funding request body.
type FundWallet struct {
	AccountNo string          `json:"account_no"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
	Method    string          `json:"method"`
}

// RecordPayment is the request body for a wallet-to-wallet transfer.
type RecordPayment struct {
	FromAccountNo string          `json:"from_account_no"`
	ToAccountNo   string          `json:"to_account_no"`
	Amount        decimal.Decimal `json:"amount"`
	Reference     string          `json:"reference"`
	Narration     string          `json:"narration"`
}

// RequestWithdrawal is the request body for filing a withdrawal request.
type RequestWithdrawal struct {
	AccountNo   string                 `json:"account_no"`
	Amount      decimal.Decimal        `json:"amount"`
	BankDetails map[string]interface{} `json:"bank_details"`
	Reason      string                 `json:"reason"`
}

// RejectWithdrawal carries the operator's reason for turning a request down.
type RejectWithdrawal struct {
	Reason string `json:"reason"`
}

// HoldBooking is the request body for escrowing a booking's funds.
type HoldBooking struct {
	PayerAccountNo string          `json:"payer_account_no"`
	PayeeAccountNo string          `json:"payee_account_no"`
	Amount         decimal.Decimal `json:"amount"`
}

// CompleteSession schedules the deferred settlement of a completed session.
type CompleteSession struct {
	BookingRef string `json:"booking_ref"`
	// DelayMinutes overrides the configured grace window when positive.
	DelayMinutes int `json:"delay_minutes"`
}

// RefundBooking voids an unresolved escrow hold.
type RefundBooking struct {
	Reason string `json:"reason"`
}

// GatewayDeposit is the payment gateway's signed deposit confirmation.
type GatewayDeposit struct {
	AccountNo string          `json:"account_no"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
	Method    string          `json:"method"`
}

func positiveAmount(value interface{}) error {
	amount, ok := value.(decimal.Decimal)
	if !ok {
		return errors.New("invalid amount")
	}
	if !amount.IsPositive() {
		return errors.New("amount must be greater than zero")
	}
	return nil
}

func (w *CreateWallet) ValidateCreateWallet() error {
	return validation.ValidateStruct(w,
		validation.Field(&w.CustomerID, validation.Required),
		validation.Field(&w.CustomerName, validation.Required),
		validation.Field(&w.Email, validation.Required, is.Email),
	)
}

func (f *FundWallet) ValidateFundWallet() error {
	return validation.ValidateStruct(f,
		validation.Field(&f.AccountNo, validation.Required),
		validation.Field(&f.Amount, validation.Required, validation.By(positiveAmount)),
		validation.Field(&f.Reference, validation.Required),
	)
}

func (p *RecordPayment) ValidateRecordPayment() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.FromAccountNo, validation.Required),
		validation.Field(&p.ToAccountNo, validation.Required),
		validation.Field(&p.Amount, validation.Required, validation.By(positiveAmount)),
	)
}

func (r *RequestWithdrawal) ValidateRequestWithdrawal() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.AccountNo, validation.Required),
		validation.Field(&r.Amount, validation.Required, validation.By(positiveAmount)),
		validation.Field(&r.BankDetails, validation.Required),
	)
}

func (h *HoldBooking) ValidateHoldBooking() error {
	return validation.ValidateStruct(h,
		validation.Field(&h.PayerAccountNo, validation.Required),
		validation.Field(&h.PayeeAccountNo, validation.Required),
		validation.Field(&h.Amount, validation.Required, validation.By(positiveAmount)),
	)
}

func (s *CompleteSession) ValidateCompleteSession() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.BookingRef, validation.Required),
	)
}

func (g *GatewayDeposit) ValidateGatewayDeposit() error {
	return validation.ValidateStruct(g,
		validation.Field(&g.AccountNo, validation.Required),
		validation.Field(&g.Amount, validation.Required, validation.By(positiveAmount)),
		validation.Field(&g.Reference, validation.Required),
	)
}
