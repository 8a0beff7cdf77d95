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

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ComputeBalance folds every completed entry for the account into its
// authoritative balance. The cached wallet balance exists only to avoid this
// recomputation on every read: when the two disagree the cache is corrected
// as a side effect and the drift is logged, so a reconciled read is
// self-healing. The fold is the definition of balance; nothing else in the
// system treats the cache as an independent source of truth.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - accountNo string: The wallet to reconcile.
//
// Returns:
// - decimal.Decimal: The authoritative balance.
// - error: NotFound when the wallet is absent.
func (l *Ledger) ComputeBalance(ctx context.Context, accountNo string) (decimal.Decimal, error) {
	ctx, span := tracer.Start(ctx, "Reconciling wallet balance")
	defer span.End()

	wallet, err := l.datasource.GetWallet(ctx, accountNo)
	if err != nil {
		return decimal.Zero, err
	}

	computed, err := l.datasource.SumEntries(ctx, accountNo)
	if err != nil {
		return decimal.Zero, err
	}

	if !computed.Equal(wallet.Balance) {
		logrus.Warnf("balance drift on wallet %s: cached %s, computed %s", accountNo, wallet.Balance, computed)
		if err := l.datasource.UpdateCachedBalance(ctx, accountNo, computed); err != nil {
			return decimal.Zero, logAndRecordError(span, "balance heal error: ", err)
		}
		l.invalidateWallets(ctx, accountNo)
	}

	return computed, nil
}
