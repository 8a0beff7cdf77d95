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
package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edubridge/ledger"
	"github.com/edubridge/ledger/cache"
	"github.com/edubridge/ledger/config"
	"github.com/edubridge/ledger/database"
	"github.com/edubridge/ledger/model"
)

const testSecretKey = "test-secret"

const testGatewaySecret = "gateway-secret"

var walletColumns = []string{"wallet_id", "account_no", "customer_id", "customer_name", "email", "status", "balance", "created_at", "meta_data"}

var entryColumns = []string{"entry_id", "trans_no", "reference", "account_no", "debit", "credit", "type", "status", "narration", "escrow", "meta_data", "created_at"}

func newTestRouter(t *testing.T) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	conf := &config.Configuration{
		Redis:   config.RedisConfig{Dns: mr.Addr()},
		Server:  config.ServerConfig{SecretKey: testSecretKey},
		Gateway: config.GatewayConfig{WebhookSecret: testGatewaySecret},
	}
	config.MockConfig(conf)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	newCache, err := cache.NewCache()
	require.NoError(t, err)

	datasource := &database.Datasource{Conn: db, Cache: newCache}
	l, err := ledger.NewLedger(datasource)
	require.NoError(t, err)

	return NewAPI(l).Router(), mock
}

func expectWalletRow(mock sqlmock.Sqlmock, accountNo, customerID, status, balance string) {
	mock.ExpectQuery("SELECT (.+) FROM wallets WHERE account_no =").
		WithArgs(accountNo).
		WillReturnRows(sqlmock.NewRows(walletColumns).
			AddRow("wal_1", accountNo, customerID, "Test Customer", "test@edubridge.io", status, balance, time.Now(), []byte(`{}`)))
}

func performRequest(router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateWalletEndpoint(t *testing.T) {
	router, mock := newTestRouter(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("cust_1", "mentee@edubridge.io").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO wallets").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO entries").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	w := performRequest(router, "POST", "/wallets", map[string]string{
		"customer_id":   "cust_1",
		"customer_name": "Ada Mentee",
		"email":         "mentee@edubridge.io",
	}, nil)

	assert.Equal(t, http.StatusCreated, w.Code)
	var wallet model.Wallet
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &wallet))
	assert.Equal(t, "cust_1", wallet.CustomerID)
	assert.NotEmpty(t, wallet.AccountNo)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWalletEndpoint_MissingEmail(t *testing.T) {
	router, _ := newTestRouter(t)

	w := performRequest(router, "POST", "/wallets", map[string]string{
		"customer_id":   "cust_1",
		"customer_name": "Ada Mentee",
	}, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetWalletEndpoint(t *testing.T) {
	router, mock := newTestRouter(t)

	expectWalletRow(mock, "WAL_A", "cust_1", model.WalletStatusActive, "2500.00")

	w := performRequest(router, "GET", "/wallets/WAL_A", nil, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var wallet model.Wallet
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &wallet))
	assert.Equal(t, "WAL_A", wallet.AccountNo)
}

func TestGetWalletEndpoint_NotFound(t *testing.T) {
	router, mock := newTestRouter(t)

	mock.ExpectQuery("SELECT (.+) FROM wallets WHERE account_no =").
		WithArgs("WAL_GONE").
		WillReturnRows(sqlmock.NewRows(walletColumns))

	w := performRequest(router, "GET", "/wallets/WAL_GONE", nil, nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecordPaymentEndpoint(t *testing.T) {
	router, mock := newTestRouter(t)

	// Ownership check reads the source wallet, then the transfer re-checks
	// both wallets uncached.
	expectWalletRow(mock, "WAL_A", "cust_1", model.WalletStatusActive, "10000.00")
	expectWalletRow(mock, "WAL_A", "cust_1", model.WalletStatusActive, "10000.00")
	expectWalletRow(mock, "WAL_B", "cust_2", model.WalletStatusActive, "0")
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("ref_pay_1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM wallets WHERE account_no = (.+) FOR UPDATE").
		WithArgs("WAL_A").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery("SELECT id FROM wallets WHERE account_no = (.+) FOR UPDATE").
		WithArgs("WAL_B").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("WAL_A", model.StatusCompleted).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow("10000.00"))
	mock.ExpectExec("INSERT INTO entries").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO entries").WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec("UPDATE wallets").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE wallets").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w := performRequest(router, "POST", "/payments", map[string]interface{}{
		"from_account_no": "WAL_A",
		"to_account_no":   "WAL_B",
		"amount":          500,
		"reference":       "ref_pay_1",
		"narration":       "Session booking",
	}, map[string]string{"X-Customer-ID": "cust_1"})

	assert.Equal(t, http.StatusCreated, w.Code)
	var debit model.Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &debit))
	assert.Equal(t, model.TypePayment, debit.Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordPaymentEndpoint_WrongOwner(t *testing.T) {
	router, mock := newTestRouter(t)

	expectWalletRow(mock, "WAL_A", "cust_1", model.WalletStatusActive, "10000.00")

	w := performRequest(router, "POST", "/payments", map[string]interface{}{
		"from_account_no": "WAL_A",
		"to_account_no":   "WAL_B",
		"amount":          500,
	}, map[string]string{"X-Customer-ID": "cust_intruder"})

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRecordPaymentEndpoint_MissingCallerHeader(t *testing.T) {
	router, _ := newTestRouter(t)

	w := performRequest(router, "POST", "/payments", map[string]interface{}{
		"from_account_no": "WAL_A",
		"to_account_no":   "WAL_B",
		"amount":          500,
	}, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApproveWithdrawalEndpoint_RequiresSecretKey(t *testing.T) {
	router, _ := newTestRouter(t)

	w := performRequest(router, "PUT", "/withdrawals/ent_req/approve", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = performRequest(router, "PUT", "/withdrawals/ent_req/approve", nil, map[string]string{"X-Ledger-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestApproveWithdrawalEndpoint(t *testing.T) {
	router, mock := newTestRouter(t)

	requestRows := sqlmock.NewRows(entryColumns).
		AddRow("ent_req", "trn_req", "ref_req_1", "WAL_A", "2000.00", "0", model.TypeWithdrawalRequest, model.StatusPending, "Withdrawal request", nil, []byte(`{}`), time.Now())
	mock.ExpectQuery("SELECT (.+) FROM entries WHERE entry_id =").
		WithArgs("ent_req").
		WillReturnRows(requestRows)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM wallets WHERE account_no = (.+) FOR UPDATE").
		WithArgs("WAL_A").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("WAL_A", model.StatusCompleted).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow("5000.00"))
	mock.ExpectExec("UPDATE entries").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO entries").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE wallets").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w := performRequest(router, "PUT", "/withdrawals/ent_req/approve", nil, map[string]string{
		"X-Ledger-Key":  testSecretKey,
		"X-Customer-ID": "admin_1",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	var debit model.Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &debit))
	assert.Equal(t, "WD-ref_req_1", debit.Reference)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteSessionEndpoint(t *testing.T) {
	router, mock := newTestRouter(t)

	holdRows := sqlmock.NewRows(entryColumns).
		AddRow("ent_hold", "trn_hold", "BOOKING-bk_1", "WAL_A", "1200.00", "0", model.TypeBookingPayment, model.StatusCompleted, "Escrow hold for booking #bk_1",
			[]byte(`{"stage":"escrowed","payee_account_no":"WAL_MENTOR","amount":"1200","booking_ref":"BOOKING-bk_1"}`), []byte(`{}`), time.Now())
	mock.ExpectQuery("SELECT (.+) FROM entries WHERE reference = (.+) AND type =").
		WithArgs("BOOKING-bk_1", model.TypeBookingPayment).
		WillReturnRows(holdRows)

	w := performRequest(router, "POST", "/sessions/sess_1/complete", map[string]interface{}{
		"booking_ref":   "BOOKING-bk_1",
		"delay_minutes": 120,
	}, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelSettlementEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	// Never scheduled: still a no-op success.
	w := performRequest(router, "DELETE", "/sessions/sess_1/settlement", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGatewayDepositEndpoint(t *testing.T) {
	router, mock := newTestRouter(t)

	expectWalletRow(mock, "WAL_A", "cust_1", model.WalletStatusActive, "0")
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("gw_ref_1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM wallets WHERE account_no = (.+) FOR UPDATE").
		WithArgs("WAL_A").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec("INSERT INTO entries").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE wallets").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	body, _ := json.Marshal(map[string]interface{}{
		"account_no": "WAL_A",
		"amount":     5000,
		"reference":  "gw_ref_1",
		"method":     "card",
	})
	mac := hmac.New(sha512.New, []byte(testGatewaySecret))
	mac.Write(body)
	signature := hex.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest("POST", "/webhooks/gateway", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var credit model.Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &credit))
	assert.Equal(t, model.TypeDeposit, credit.Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGatewayDepositEndpoint_BadSignature(t *testing.T) {
	router, _ := newTestRouter(t)

	body, _ := json.Marshal(map[string]interface{}{
		"account_no": "WAL_A",
		"amount":     5000,
		"reference":  "gw_ref_1",
	})

	req := httptest.NewRequest("POST", "/webhooks/gateway", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, "deadbeef")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
