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

package database

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/edubridge/ledger/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	wallet // Interface for wallet-related operations
	entry  // Interface for ledger-entry operations
}

// wallet defines methods for handling wallets.
type wallet interface {
	CreateWallet(ctx context.Context, wallet *model.Wallet, audit *model.Entry) (*model.Wallet, error) // Creates a wallet together with its audit entry
	GetWallet(ctx context.Context, accountNo string) (*model.Wallet, error)                           // Retrieves a wallet by account number
	GetWalletByCustomerID(ctx context.Context, customerID string) (*model.Wallet, error)              // Retrieves a wallet by owning customer
	GetWalletByEmail(ctx context.Context, email string) (*model.Wallet, error)                        // Retrieves a wallet by customer email
	ActiveWalletExists(ctx context.Context, customerID, email string) (bool, error)                   // Checks for an existing active wallet
	UpdateWalletStatus(ctx context.Context, accountNo, status string) error                           // Updates a wallet's status
	UpdateCachedBalance(ctx context.Context, accountNo string, balance decimal.Decimal) error         // Rewrites the cached balance
}

// entry defines methods for handling ledger entries.
type entry interface {
	PostEntries(ctx context.Context, guard *DebitGuard, entries ...*model.Entry) error                                              // Writes entries atomically with an optional balance guard
	GetEntry(ctx context.Context, entryID string) (*model.Entry, error)                                                            // Retrieves an entry by ID
	GetEntriesByRef(ctx context.Context, reference string) ([]*model.Entry, error)                                                 // Retrieves all legs sharing a reference
	GetHoldByRef(ctx context.Context, reference string) (*model.Entry, error)                                                      // Retrieves an escrow hold by its booking reference
	EntryExistsByRef(ctx context.Context, reference string) (bool, error)                                                          // Checks if an entry exists by reference
	ListEntries(ctx context.Context, accountNo string, filter model.EntryFilter, limit, offset int) ([]*model.Entry, error)        // Paginated entry history
	SumEntries(ctx context.Context, accountNo string) (decimal.Decimal, error)                                                     // Authoritative balance fold
	ResolveEscrow(ctx context.Context, holdEntryID string, resolved *model.EscrowState, credit *model.Entry) error                  // Flips an escrow hold and writes its credit leg atomically
	ProcessWithdrawal(ctx context.Context, requestID, status string, metaData map[string]interface{}, debit *model.Entry) error    // Moves a withdrawal request to a terminal status
	GetPendingWithdrawals(ctx context.Context) ([]*model.Entry, error)                                                             // Lists withdrawal requests awaiting review
}
