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

package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/edubridge/ledger/database"
	"github.com/edubridge/ledger/internal/apierror"
	redlock "github.com/edubridge/ledger/internal/lock"
	"github.com/edubridge/ledger/model"
)

var (
	tracer = otel.Tracer("Ledger engine")
)

func logAndRecordError(span trace.Span, msg string, err error) error {
	span.RecordError(err)
	logrus.Error(msg, err)
	return err
}

// acquireLock takes the per-wallet Redis lock held around check-and-debit
// sections. Contending debits wait with backoff rather than failing fast, so
// each one reaches the row-lock guard in turn and a loser gets
// InsufficientFunds, not a lock error. The DB row lock is the correctness
// guarantee; this serializes engine-level debits across instances before
// they contend on the row.
func (l *Ledger) acquireLock(ctx context.Context, accountNo string) (*redlock.Locker, error) {
	locker := redlock.NewLocker(l.redis, accountNo, model.GenerateUUIDWithSuffix("loc"))
	if err := locker.WaitLock(ctx, time.Minute*30, time.Minute); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Wallet '%s' is locked by another operation", accountNo), err)
	}
	return locker, nil
}

func (l *Ledger) releaseLock(ctx context.Context, locker *redlock.Locker) {
	if err := locker.Unlock(ctx); err != nil {
		logrus.Error("lock error", err)
	}
}

// checkTransactable loads a wallet and verifies it can move money.
func (l *Ledger) checkTransactable(ctx context.Context, accountNo string) (*model.Wallet, error) {
	wallet, err := l.datasource.GetWallet(ctx, accountNo)
	if err != nil {
		return nil, err
	}
	if !wallet.CanTransact() {
		return nil, apierror.NewAPIError(apierror.ErrWalletInactive, fmt.Sprintf("Wallet '%s' cannot transact in status '%s'", accountNo, wallet.Status), nil)
	}
	return wallet, nil
}

// Transfer moves money between two wallets as one atomic unit: a PAYMENT
// debit on the source and a RECEIVED credit on the destination sharing one
// reference, both status completed. The source balance is checked inside the
// posting transaction; on any failure neither leg is visible.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - from string: The source account number.
// - to string: The destination account number.
// - amount decimal.Decimal: The amount to move; must be positive.
// - reference string: Correlation reference shared by both legs; generated when empty.
// - narration string: Free-text description carried on the debit leg.
//
// Returns:
// - *model.Entry: The debit leg; the credit leg shares its reference.
// - error: NotFound, WalletInactive, InsufficientFunds, Conflict on reference reuse.
func (l *Ledger) Transfer(ctx context.Context, from, to string, amount decimal.Decimal, reference, narration string) (*model.Entry, error) {
	ctx, span := tracer.Start(ctx, "Recording transfer")
	defer span.End()

	if !amount.IsPositive() {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Transfer amount must be greater than zero", nil)
	}
	if from == to {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Source and destination wallets must differ", nil)
	}
	if reference == "" {
		reference = model.GenerateReference()
	}

	source, err := l.checkTransactable(ctx, from)
	if err != nil {
		return nil, err
	}
	if _, err := l.checkTransactable(ctx, to); err != nil {
		return nil, err
	}

	exists, err := l.datasource.EntryExistsByRef(ctx, reference)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Transaction with reference '%s' has already been processed", reference), nil)
	}

	locker, err := l.acquireLock(ctx, source.AccountNo)
	if err != nil {
		return nil, logAndRecordError(span, "lock acquisition error: ", err)
	}
	defer l.releaseLock(ctx, locker)

	if narration == "" {
		narration = fmt.Sprintf("Transfer to wallet %s", to)
	}
	now := time.Now()
	transNo := model.GenerateUUIDWithSuffix("trn")
	debit := &model.Entry{
		EntryID:   model.GenerateUUIDWithSuffix("ent"),
		TransNo:   transNo,
		Reference: reference,
		AccountNo: from,
		Debit:     amount,
		Type:      model.TypePayment,
		Status:    model.StatusCompleted,
		Narration: narration,
		CreatedAt: now,
	}
	credit := &model.Entry{
		EntryID:   model.GenerateUUIDWithSuffix("ent"),
		TransNo:   transNo,
		Reference: reference,
		AccountNo: to,
		Credit:    amount,
		Type:      model.TypeReceived,
		Status:    model.StatusCompleted,
		Narration: fmt.Sprintf("Transfer from wallet %s", from),
		CreatedAt: now,
	}

	guard := &database.DebitGuard{AccountNo: from, Amount: amount}
	if err := l.datasource.PostEntries(ctx, guard, debit, credit); err != nil {
		return nil, logAndRecordError(span, "transfer error: ", err)
	}

	l.invalidateWallets(ctx, from, to)
	l.emitEvent(ctx, EventTransferApplied, debit)
	return debit, nil
}

// Deposit posts a gateway-confirmed credit to a wallet. Reference reuse is
// rejected so a redelivered gateway confirmation cannot fund the wallet twice.
func (l *Ledger) Deposit(ctx context.Context, accountNo string, amount decimal.Decimal, reference, method string) (*model.Entry, error) {
	ctx, span := tracer.Start(ctx, "Applying deposit")
	defer span.End()

	if !amount.IsPositive() {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Deposit amount must be greater than zero", nil)
	}
	if reference == "" {
		reference = model.GenerateReference()
	}

	if _, err := l.checkTransactable(ctx, accountNo); err != nil {
		return nil, err
	}

	exists, err := l.datasource.EntryExistsByRef(ctx, reference)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Deposit with reference '%s' has already been processed", reference), nil)
	}

	entry := &model.Entry{
		EntryID:   model.GenerateUUIDWithSuffix("ent"),
		TransNo:   model.GenerateUUIDWithSuffix("trn"),
		Reference: reference,
		AccountNo: accountNo,
		Credit:    amount,
		Type:      model.TypeDeposit,
		Status:    model.StatusCompleted,
		Narration: "Wallet funding",
		MetaData: map[string]interface{}{
			"fundingDetails": map[string]interface{}{"method": method, "reference": reference},
		},
		CreatedAt: time.Now(),
	}

	if err := l.datasource.PostEntries(ctx, nil, entry); err != nil {
		return nil, logAndRecordError(span, "deposit error: ", err)
	}

	l.invalidateWallets(ctx, accountNo)
	l.emitEvent(ctx, EventDepositApplied, entry)
	return entry, nil
}

// HoldEscrow reserves booking funds on the payer's wallet without paying the
// mentor yet: a single BOOKING_PAYMENT debit carrying an escrowed state that
// names the intended payee and amount. The credit leg is deferred until the
// session actually completes. The payee account is a hint validated at
// settlement time, not here.
func (l *Ledger) HoldEscrow(ctx context.Context, payer, payee string, amount decimal.Decimal, bookingID string) (*model.Entry, error) {
	ctx, span := tracer.Start(ctx, "Holding escrow")
	defer span.End()

	if !amount.IsPositive() {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Escrow amount must be greater than zero", nil)
	}
	if bookingID == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Booking ID is required", nil)
	}
	if payee == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Payee account number is required", nil)
	}

	if _, err := l.checkTransactable(ctx, payer); err != nil {
		return nil, err
	}

	reference := BookingReference(bookingID)
	exists, err := l.datasource.EntryExistsByRef(ctx, reference)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Escrow hold for booking '%s' already exists", bookingID), nil)
	}

	locker, err := l.acquireLock(ctx, payer)
	if err != nil {
		return nil, logAndRecordError(span, "lock acquisition error: ", err)
	}
	defer l.releaseLock(ctx, locker)

	hold := &model.Entry{
		EntryID:   model.GenerateUUIDWithSuffix("ent"),
		TransNo:   model.GenerateUUIDWithSuffix("trn"),
		Reference: reference,
		AccountNo: payer,
		Debit:     amount,
		Type:      model.TypeBookingPayment,
		Status:    model.StatusCompleted,
		Narration: fmt.Sprintf("Escrow hold for booking #%s", bookingID),
		Escrow: &model.EscrowState{
			Stage:          model.EscrowStageEscrowed,
			PayeeAccountNo: payee,
			Amount:         amount,
			BookingRef:     reference,
		},
		CreatedAt: time.Now(),
	}

	guard := &database.DebitGuard{AccountNo: payer, Amount: amount}
	if err := l.datasource.PostEntries(ctx, guard, hold); err != nil {
		return nil, logAndRecordError(span, "escrow hold error: ", err)
	}

	l.invalidateWallets(ctx, payer)
	l.emitEvent(ctx, EventEscrowHeld, hold)
	return hold, nil
}

// ResolveEscrow writes the deferred SESSION_PAYMENT credit to the payee named
// by the hold and flips the hold's escrow stage to resolved, atomically.
// Idempotent: resolving an already-resolved hold returns the existing credit
// leg with no balance change, so a redelivered settlement job cannot pay the
// mentor twice.
func (l *Ledger) ResolveEscrow(ctx context.Context, bookingRef, sessionID string) (*model.Entry, error) {
	ctx, span := tracer.Start(ctx, "Resolving escrow")
	defer span.End()

	hold, err := l.datasource.GetHoldByRef(ctx, bookingRef)
	if err != nil {
		return nil, err
	}
	if hold.Escrow == nil {
		return nil, apierror.NewAPIError(apierror.ErrEscrowNotFound, fmt.Sprintf("Entry '%s' carries no escrow state", hold.EntryID), nil)
	}
	if !hold.Escrow.Pending() {
		return l.settledEscrowCredit(ctx, hold)
	}

	now := time.Now()
	credit := &model.Entry{
		EntryID:   model.GenerateUUIDWithSuffix("ent"),
		TransNo:   model.GenerateUUIDWithSuffix("trn"),
		Reference: SessionReference(sessionID),
		AccountNo: hold.Escrow.PayeeAccountNo,
		Credit:    hold.Escrow.Amount,
		Type:      model.TypeSessionPayment,
		Status:    model.StatusCompleted,
		Narration: fmt.Sprintf("Payment for completed session #%s", sessionID),
		CreatedAt: now,
	}
	resolved := &model.EscrowState{
		Stage:          model.EscrowStageResolved,
		PayeeAccountNo: hold.Escrow.PayeeAccountNo,
		Amount:         hold.Escrow.Amount,
		BookingRef:     hold.Escrow.BookingRef,
		CreditEntryID:  credit.EntryID,
		ResolvedAt:     &now,
	}

	if err := l.datasource.ResolveEscrow(ctx, hold.EntryID, resolved, credit); err != nil {
		if apiErr, ok := err.(apierror.APIError); ok && apiErr.Code == apierror.ErrEscrowAlreadyResolved {
			// Lost the race to a concurrent resolution; return the winner's
			// credit leg.
			hold, err := l.datasource.GetHoldByRef(ctx, bookingRef)
			if err != nil {
				return nil, err
			}
			return l.settledEscrowCredit(ctx, hold)
		}
		return nil, logAndRecordError(span, "escrow resolution error: ", err)
	}

	l.invalidateWallets(ctx, credit.AccountNo)
	l.emitEvent(ctx, EventEscrowResolved, credit)
	return credit, nil
}

// settledEscrowCredit returns the credit leg recorded on an already-resolved
// hold.
func (l *Ledger) settledEscrowCredit(ctx context.Context, hold *model.Entry) (*model.Entry, error) {
	if hold.Escrow == nil || hold.Escrow.CreditEntryID == "" {
		return nil, apierror.NewAPIError(apierror.ErrEscrowAlreadyResolved, fmt.Sprintf("Escrow hold '%s' has already been resolved", hold.EntryID), nil)
	}
	return l.datasource.GetEntry(ctx, hold.Escrow.CreditEntryID)
}

// Refund voids an unresolved escrow hold: the reserved amount is credited back
// to the payer and the hold's stage moves to resolved, so the same hold can
// never also pay the mentor. A hold that has already settled fails with
// EscrowAlreadyResolved; settled funds are not clawed back by this path.
func (l *Ledger) Refund(ctx context.Context, bookingRef, reason string) (*model.Entry, error) {
	ctx, span := tracer.Start(ctx, "Refunding escrow hold")
	defer span.End()

	hold, err := l.datasource.GetHoldByRef(ctx, bookingRef)
	if err != nil {
		return nil, err
	}
	if hold.Escrow == nil || !hold.Escrow.Pending() {
		return nil, apierror.NewAPIError(apierror.ErrEscrowAlreadyResolved, fmt.Sprintf("Escrow hold for '%s' has already been resolved", bookingRef), nil)
	}

	now := time.Now()
	credit := &model.Entry{
		EntryID:   model.GenerateUUIDWithSuffix("ent"),
		TransNo:   model.GenerateUUIDWithSuffix("trn"),
		Reference: fmt.Sprintf("REFUND-%s", bookingRef),
		AccountNo: hold.AccountNo,
		Credit:    hold.Escrow.Amount,
		Type:      model.TypeRefund,
		Status:    model.StatusCompleted,
		Narration: fmt.Sprintf("Refund for booking %s", hold.Escrow.BookingRef),
		MetaData:  map[string]interface{}{"reason": reason},
		CreatedAt: now,
	}
	resolved := &model.EscrowState{
		Stage:          model.EscrowStageResolved,
		PayeeAccountNo: hold.Escrow.PayeeAccountNo,
		Amount:         hold.Escrow.Amount,
		BookingRef:     hold.Escrow.BookingRef,
		CreditEntryID:  credit.EntryID,
		ResolvedAt:     &now,
	}

	if err := l.datasource.ResolveEscrow(ctx, hold.EntryID, resolved, credit); err != nil {
		return nil, logAndRecordError(span, "escrow refund error: ", err)
	}

	l.invalidateWallets(ctx, hold.AccountNo)
	l.emitEvent(ctx, EventEscrowRefunded, credit)
	return credit, nil
}
