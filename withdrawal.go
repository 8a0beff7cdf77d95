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

	"github.com/edubridge/ledger/internal/apierror"
	"github.com/edubridge/ledger/model"
)

// RequestWithdrawal files a withdrawal request against a wallet. The request
// is a pending WITHDRAWAL_REQUEST entry: it carries the amount but moves no
// money, since pending entries are excluded from the balance fold. The balance
// is checked here so obviously-unfunded requests fail fast, and re-validated
// at approval time because time passes between the two.
func (l *Ledger) RequestWithdrawal(ctx context.Context, accountNo string, amount decimal.Decimal, bankDetails map[string]interface{}, reason string) (*model.Entry, error) {
	ctx, span := tracer.Start(ctx, "Requesting withdrawal")
	defer span.End()

	if !amount.IsPositive() {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Withdrawal amount must be greater than zero", nil)
	}

	if _, err := l.checkTransactable(ctx, accountNo); err != nil {
		return nil, err
	}

	available, err := l.datasource.SumEntries(ctx, accountNo)
	if err != nil {
		return nil, err
	}
	if available.LessThan(amount) {
		return nil, apierror.NewInsufficientFundsError(amount, available)
	}

	request := &model.Entry{
		EntryID:   model.GenerateUUIDWithSuffix("ent"),
		TransNo:   model.GenerateUUIDWithSuffix("trn"),
		Reference: model.GenerateReference(),
		AccountNo: accountNo,
		Debit:     amount,
		Type:      model.TypeWithdrawalRequest,
		Status:    model.StatusPending,
		Narration: "Withdrawal request",
		MetaData: map[string]interface{}{
			"withdrawalDetails": bankDetails,
			"reason":            reason,
		},
		CreatedAt: time.Now(),
	}

	if err := l.datasource.PostEntries(ctx, nil, request); err != nil {
		return nil, logAndRecordError(span, "withdrawal request error: ", err)
	}

	l.emitEvent(ctx, EventWithdrawalRequested, request)
	return request, nil
}

// ApproveWithdrawal moves a pending request to approved and writes the
// companion completed WITHDRAWAL debit for the actual amount in one atomic
// unit. The balance is re-validated under the wallet row lock at approval
// time; on InsufficientFunds the request stays pending so the operator can
// retry later. A request that already reached a terminal status fails with
// AlreadyProcessed.
func (l *Ledger) ApproveWithdrawal(ctx context.Context, requestID, adminID string) (*model.Entry, error) {
	ctx, span := tracer.Start(ctx, "Approving withdrawal")
	defer span.End()

	request, err := l.pendingWithdrawalRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	locker, err := l.acquireLock(ctx, request.AccountNo)
	if err != nil {
		return nil, logAndRecordError(span, "lock acquisition error: ", err)
	}
	defer l.releaseLock(ctx, locker)

	now := time.Now()
	debit := &model.Entry{
		EntryID:   model.GenerateUUIDWithSuffix("ent"),
		TransNo:   model.GenerateUUIDWithSuffix("trn"),
		Reference: fmt.Sprintf("WD-%s", request.Reference),
		AccountNo: request.AccountNo,
		Debit:     request.Debit,
		Type:      model.TypeWithdrawal,
		Status:    model.StatusCompleted,
		Narration: fmt.Sprintf("Withdrawal - Approved request #%s", requestID),
		CreatedAt: now,
	}
	metaData := mergeMetaData(request.MetaData, map[string]interface{}{
		"approvedAt": now.Format(time.RFC3339),
		"approvedBy": adminID,
	})

	if err := l.datasource.ProcessWithdrawal(ctx, requestID, model.StatusApproved, metaData, debit); err != nil {
		return nil, logAndRecordError(span, "withdrawal approval error: ", err)
	}

	l.invalidateWallets(ctx, request.AccountNo)
	l.emitEvent(ctx, EventWithdrawalApproved, debit)
	return debit, nil
}

// RejectWithdrawal moves a pending request to rejected, recording the reason
// in its metadata. No debit is ever written on this path.
func (l *Ledger) RejectWithdrawal(ctx context.Context, requestID, adminID, reason string) (*model.Entry, error) {
	ctx, span := tracer.Start(ctx, "Rejecting withdrawal")
	defer span.End()

	request, err := l.pendingWithdrawalRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	metaData := mergeMetaData(request.MetaData, map[string]interface{}{
		"rejectionReason": reason,
		"rejectedBy":      adminID,
	})

	if err := l.datasource.ProcessWithdrawal(ctx, requestID, model.StatusRejected, metaData, nil); err != nil {
		return nil, logAndRecordError(span, "withdrawal rejection error: ", err)
	}

	request.Status = model.StatusRejected
	request.MetaData = metaData
	l.emitEvent(ctx, EventWithdrawalRejected, request)
	return request, nil
}

// ListPendingWithdrawals returns withdrawal requests awaiting review, oldest
// first.
func (l *Ledger) ListPendingWithdrawals(ctx context.Context) ([]*model.Entry, error) {
	return l.datasource.GetPendingWithdrawals(ctx)
}

// pendingWithdrawalRequest loads a request and checks it is still actionable.
// The pending-status predicate inside ProcessWithdrawal remains the
// authoritative guard against concurrent approvals; this check just answers
// fast.
func (l *Ledger) pendingWithdrawalRequest(ctx context.Context, requestID string) (*model.Entry, error) {
	request, err := l.datasource.GetEntry(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Type != model.TypeWithdrawalRequest {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("Entry '%s' is not a withdrawal request", requestID), nil)
	}
	if request.Status != model.StatusPending {
		return nil, apierror.NewAPIError(apierror.ErrAlreadyProcessed, fmt.Sprintf("Withdrawal request '%s' has already been processed", requestID), nil)
	}
	return request, nil
}

func mergeMetaData(existing, updates map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(existing)+len(updates))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range updates {
		merged[k] = v
	}
	return merged
}
