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

	"github.com/edubridge/ledger/internal/apierror"
	"github.com/edubridge/ledger/model"
)

const walletCacheTTL = 5 * time.Minute

func walletCacheKey(accountNo string) string {
	return fmt.Sprintf("wallet:%s", accountNo)
}

// CreateWallet creates a wallet for a customer together with its zero-amount
// audit entry in one atomic unit. A second creation attempt for the same
// customer or email fails with DuplicateWallet instead of duplicating the
// wallet.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - customerID string: The owning customer's identity.
// - customerName string: The display name shown on statements.
// - email string: The customer's contact email.
//
// Returns:
// - *model.Wallet: The created wallet.
// - error: An error if the wallet could not be created.
func (l *Ledger) CreateWallet(ctx context.Context, customerID, customerName, email string) (*model.Wallet, error) {
	ctx, span := tracer.Start(ctx, "Creating wallet")
	defer span.End()

	if customerID == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Customer ID is required", nil)
	}

	exists, err := l.datasource.ActiveWalletExists(ctx, customerID, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apierror.NewAPIError(apierror.ErrDuplicateWallet, fmt.Sprintf("An active wallet already exists for customer '%s'", customerID), nil)
	}

	now := time.Now()
	wallet := &model.Wallet{
		WalletID:     model.GenerateUUIDWithSuffix("wal"),
		AccountNo:    model.GenerateAccountNumber(),
		CustomerID:   customerID,
		CustomerName: customerName,
		Email:        email,
		Status:       model.WalletStatusActive,
		Balance:      decimal.Zero,
		CreatedAt:    now,
	}
	audit := &model.Entry{
		EntryID:   model.GenerateUUIDWithSuffix("ent"),
		TransNo:   model.GenerateUUIDWithSuffix("trn"),
		Reference: model.GenerateReference(),
		AccountNo: wallet.AccountNo,
		Type:      model.TypeWalletCreation,
		Status:    model.StatusCompleted,
		Narration: "Wallet created",
		CreatedAt: now,
	}

	created, err := l.datasource.CreateWallet(ctx, wallet, audit)
	if err != nil {
		return nil, logAndRecordError(span, "create wallet error: ", err)
	}

	l.emitEvent(ctx, EventWalletCreated, created)
	return created, nil
}

// GetWallet retrieves a wallet by account number, serving repeated reads from
// the wallet cache.
func (l *Ledger) GetWallet(ctx context.Context, accountNo string) (*model.Wallet, error) {
	var cached model.Wallet
	if err := l.cache.Get(ctx, walletCacheKey(accountNo), &cached); err == nil && cached.AccountNo != "" {
		return &cached, nil
	}

	wallet, err := l.datasource.GetWallet(ctx, accountNo)
	if err != nil {
		return nil, err
	}

	if err := l.cache.Set(ctx, walletCacheKey(accountNo), wallet, walletCacheTTL); err != nil {
		logrus.Errorf("failed to cache wallet %s: %v", accountNo, err)
	}
	return wallet, nil
}

// GetWalletByCustomerID retrieves a wallet by its owning customer.
func (l *Ledger) GetWalletByCustomerID(ctx context.Context, customerID string) (*model.Wallet, error) {
	return l.datasource.GetWalletByCustomerID(ctx, customerID)
}

// GetWalletByEmail retrieves a wallet by customer email.
func (l *Ledger) GetWalletByEmail(ctx context.Context, email string) (*model.Wallet, error) {
	return l.datasource.GetWalletByEmail(ctx, email)
}

// UpdateWalletStatus transitions a wallet between active, inactive and
// suspended. Frozen wallets reject debits and credits at the engine level.
func (l *Ledger) UpdateWalletStatus(ctx context.Context, accountNo, status string) error {
	switch status {
	case model.WalletStatusActive, model.WalletStatusInactive, model.WalletStatusSuspended:
	default:
		return apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("Invalid wallet status '%s'", status), nil)
	}
	if err := l.datasource.UpdateWalletStatus(ctx, accountNo, status); err != nil {
		return err
	}
	l.invalidateWallets(ctx, accountNo)
	return nil
}

// GetEntry retrieves a single ledger entry by ID.
func (l *Ledger) GetEntry(ctx context.Context, entryID string) (*model.Entry, error) {
	return l.datasource.GetEntry(ctx, entryID)
}

// GetEntriesByRef returns every leg sharing a transaction reference.
func (l *Ledger) GetEntriesByRef(ctx context.Context, reference string) ([]*model.Entry, error) {
	return l.datasource.GetEntriesByRef(ctx, reference)
}

// ListEntries returns a wallet's entry history, transaction-date descending,
// narrowed by the optional type/status/date-range filter.
func (l *Ledger) ListEntries(ctx context.Context, accountNo string, filter model.EntryFilter, limit, offset int) ([]*model.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return l.datasource.ListEntries(ctx, accountNo, filter, limit, offset)
}

// invalidateWallets drops cached wallet records after a mutation so the next
// read sees the committed state.
func (l *Ledger) invalidateWallets(ctx context.Context, accountNos ...string) {
	for _, accountNo := range accountNos {
		if err := l.cache.Delete(ctx, walletCacheKey(accountNo)); err != nil {
			logrus.Errorf("failed to invalidate cached wallet %s: %v", accountNo, err)
		}
	}
}
