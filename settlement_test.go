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
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edubridge/ledger/internal/apierror"
	"github.com/edubridge/ledger/model"
)

func TestSettlementTaskID(t *testing.T) {
	assert.Equal(t, "settle:sess_42", SettlementTaskID("sess_42"))
}

func TestReferenceHelpers(t *testing.T) {
	assert.Equal(t, "BOOKING-bk_1", BookingReference("bk_1"))
	assert.Equal(t, "SESSION-sess_1", SessionReference("sess_1"))
}

func TestScheduleSettlement(t *testing.T) {
	l, mock, mr := newTestLedgerWithRedis(t)

	escrowJSON := []byte(`{"stage":"escrowed","payee_account_no":"WAL_MENTOR","amount":"1200","booking_ref":"BOOKING-bk_1"}`)
	expectHoldRow(mock, "BOOKING-bk_1", escrowJSON)

	err := l.ScheduleSettlement(context.Background(), "sess_1", "BOOKING-bk_1", 2*time.Hour)
	require.NoError(t, err)

	assert.NotEmpty(t, mr.Keys(), "settlement task should be enqueued in redis")
	assert.NoError(t, mock.ExpectationsWereMet())

	payload, err := l.queue.GetScheduledSettlement("sess_1")
	require.NoError(t, err)
	require.NotNil(t, payload)
	assert.Equal(t, "sess_1", payload.SessionID)
	assert.Equal(t, "BOOKING-bk_1", payload.BookingRef)
}

func TestScheduleSettlement_HoldMissing(t *testing.T) {
	l, mock, _ := newTestLedgerWithRedis(t)

	mock.ExpectQuery("SELECT (.+) FROM entries WHERE reference = (.+) AND type =").
		WithArgs("BOOKING-missing", model.TypeBookingPayment).
		WillReturnRows(sqlmock.NewRows(entryColumns))

	err := l.ScheduleSettlement(context.Background(), "sess_1", "BOOKING-missing", time.Hour)
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrEscrowNotFound, apiErr.Code)
}

func TestScheduleSettlement_AlreadyResolved(t *testing.T) {
	l, mock, _ := newTestLedgerWithRedis(t)

	escrowJSON := []byte(`{"stage":"resolved","payee_account_no":"WAL_MENTOR","amount":"1200","booking_ref":"BOOKING-bk_1","credit_entry_id":"ent_credit"}`)
	expectHoldRow(mock, "BOOKING-bk_1", escrowJSON)

	err := l.ScheduleSettlement(context.Background(), "sess_1", "BOOKING-bk_1", time.Hour)
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrEscrowAlreadyResolved, apiErr.Code)
}

func TestCancelSettlement_Scheduled(t *testing.T) {
	l, mock, _ := newTestLedgerWithRedis(t)

	escrowJSON := []byte(`{"stage":"escrowed","payee_account_no":"WAL_MENTOR","amount":"1200","booking_ref":"BOOKING-bk_1"}`)
	expectHoldRow(mock, "BOOKING-bk_1", escrowJSON)

	require.NoError(t, l.ScheduleSettlement(context.Background(), "sess_1", "BOOKING-bk_1", 2*time.Hour))

	err := l.CancelSettlement(context.Background(), "sess_1")
	assert.NoError(t, err)

	payload, err := l.queue.GetScheduledSettlement("sess_1")
	assert.NoError(t, err)
	assert.Nil(t, payload)
}

func TestCancelSettlement_NeverScheduled(t *testing.T) {
	l, _, _ := newTestLedgerWithRedis(t)

	// Cancelling a settlement that never existed is a no-op success.
	err := l.CancelSettlement(context.Background(), "sess_unknown")
	assert.NoError(t, err)
}

func TestProcessSettlement(t *testing.T) {
	l, mock, _ := newTestLedgerWithRedis(t)

	escrowJSON := []byte(`{"stage":"escrowed","payee_account_no":"WAL_MENTOR","amount":"1200","booking_ref":"BOOKING-bk_1"}`)
	expectHoldRow(mock, "BOOKING-bk_1", escrowJSON)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM wallets WHERE account_no = (.+) FOR UPDATE").
		WithArgs("WAL_MENTOR").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
	mock.ExpectExec("UPDATE entries").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO entries").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE wallets").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	payload, _ := json.Marshal(SettlementPayload{
		SessionID:    "sess_9",
		BookingRef:   "BOOKING-bk_1",
		ScheduledFor: time.Now(),
	})
	task := asynq.NewTask("settlement", payload)

	err := l.ProcessSettlement(context.Background(), task)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessSettlement_AlreadyResolved(t *testing.T) {
	l, mock, _ := newTestLedgerWithRedis(t)

	escrowJSON := []byte(`{"stage":"resolved","payee_account_no":"WAL_MENTOR","amount":"1200","booking_ref":"BOOKING-bk_1","credit_entry_id":"ent_credit"}`)
	expectHoldRow(mock, "BOOKING-bk_1", escrowJSON)

	creditRows := sqlmock.NewRows(entryColumns).
		AddRow("ent_credit", "trn_credit", "SESSION-sess_9", "WAL_MENTOR", "0", "1200", model.TypeSessionPayment, model.StatusCompleted, "Payment for completed session #sess_9", nil, []byte(`{}`), time.Now())
	mock.ExpectQuery("SELECT (.+) FROM entries WHERE entry_id =").
		WithArgs("ent_credit").
		WillReturnRows(creditRows)

	payload, _ := json.Marshal(SettlementPayload{
		SessionID:  "sess_9",
		BookingRef: "BOOKING-bk_1",
	})
	task := asynq.NewTask("settlement", payload)

	// Redelivery of a settled task is swallowed, not retried.
	err := l.ProcessSettlement(context.Background(), task)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
