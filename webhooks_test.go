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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edubridge/ledger/config"
)

func webhookConfig(t *testing.T, url string) *miniredis.Miniredis {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	conf := &config.Configuration{
		Redis: config.RedisConfig{Dns: mr.Addr()},
	}
	conf.Notification.Webhook.Url = url
	config.MockConfig(conf)
	return mr
}

func TestSendWebhook(t *testing.T) {
	mr := webhookConfig(t, "https://localhost:5001/webhook")

	err := SendWebhook(NewWebhook{
		Event:   EventWalletCreated,
		Payload: map[string]interface{}{"account_no": "WAL_1"},
	})
	assert.NoError(t, err)

	// Verify that the task was enqueued
	tasks := mr.Keys()
	t.Log(tasks)
	assert.NotEmpty(t, tasks)
}

func TestSendWebhook_NoURLConfigured(t *testing.T) {
	mr := webhookConfig(t, "")

	err := SendWebhook(NewWebhook{Event: EventDepositApplied})
	assert.NoError(t, err)
	assert.Empty(t, mr.Keys())
}

func TestProcessWebhook_Delivers(t *testing.T) {
	received := make(chan NewWebhook, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload NewWebhook
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		received <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	webhookConfig(t, server.URL)

	data, err := json.Marshal(NewWebhook{
		Event:   EventEscrowResolved,
		Payload: map[string]interface{}{"reference": "SESSION-sess_1"},
	})
	require.NoError(t, err)

	task := asynq.NewTask(config.WEBHOOK_QUEUE, data)
	err = ProcessWebhook(context.Background(), task)
	assert.NoError(t, err)

	select {
	case payload := <-received:
		assert.Equal(t, EventEscrowResolved, payload.Event)
	default:
		t.Fatal("webhook endpoint was never called")
	}
}

func TestProcessWebhook_RejectedNotRetried(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	webhookConfig(t, server.URL)

	data, err := json.Marshal(NewWebhook{Event: EventWithdrawalApproved})
	require.NoError(t, err)

	task := asynq.NewTask(config.WEBHOOK_QUEUE, data)
	err = ProcessWebhook(context.Background(), task)
	assert.NoError(t, err)
	assert.Equal(t, 1, calls, "a 4xx response is delivered-and-rejected, not retried")
}
