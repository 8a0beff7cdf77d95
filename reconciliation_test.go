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
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/edubridge/ledger/internal/apierror"
	"github.com/edubridge/ledger/model"
)

func TestComputeBalance_NoDrift(t *testing.T) {
	l, mock := newTestLedger(t)

	expectWalletRow(mock, "WAL_A", model.WalletStatusActive, "3200.00")
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("WAL_A", model.StatusCompleted).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow("3200.00"))

	balance, err := l.ComputeBalance(context.Background(), "WAL_A")
	assert.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(3200)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestComputeBalance_HealsDrift(t *testing.T) {
	l, mock := newTestLedger(t)

	// The cached column disagrees with the fold; the fold wins and the cache
	// is rewritten.
	expectWalletRow(mock, "WAL_A", model.WalletStatusActive, "3000.00")
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("WAL_A", model.StatusCompleted).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow("3200.00"))
	mock.ExpectExec("UPDATE wallets").
		WillReturnResult(sqlmock.NewResult(0, 1))

	balance, err := l.ComputeBalance(context.Background(), "WAL_A")
	assert.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(3200)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestComputeBalance_WalletMissing(t *testing.T) {
	l, mock := newTestLedger(t)

	mock.ExpectQuery("SELECT (.+) FROM wallets WHERE account_no =").
		WithArgs("WAL_GONE").
		WillReturnRows(sqlmock.NewRows(walletColumns))

	_, err := l.ComputeBalance(context.Background(), "WAL_GONE")
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
}
