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
	"errors"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/edubridge/ledger/config"
	redis_db "github.com/edubridge/ledger/internal/redis-db"
)

// Queue represents a queue for handling deferred tasks: settlement releases
// and outbound webhooks.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// NewQueue initializes a new Queue instance with the provided configuration.
//
// Parameters:
// - conf *config.Configuration: The configuration for the queue.
//
// Returns:
// - *Queue: A pointer to the newly created Queue instance.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, false)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// queueSettlement enqueues a deferred settlement task. The task ID is derived
// deterministically from the session ID so a later cancellation can locate the
// task directly instead of scanning the queue.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - payload SettlementPayload: The session and booking reference to settle.
// - delay time.Duration: How long to wait before the task becomes runnable.
//
// Returns:
// - error: An error if the task could not be enqueued.
func (q *Queue) queueSettlement(ctx context.Context, payload SettlementPayload, delay time.Duration) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	taskOptions := []asynq.Option{
		asynq.TaskID(SettlementTaskID(payload.SessionID)),
		asynq.Queue(config.SETTLEMENT_QUEUE),
		asynq.ProcessIn(delay),
	}
	task := asynq.NewTask(config.SETTLEMENT_QUEUE, data, taskOptions...)
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued settlement for session: %s", payload.SessionID)
	return nil
}

// cancelSettlement removes a scheduled settlement task by its deterministic
// task ID. A task that has already fired or was never scheduled is not an
// error: the cancellation path is a best-effort no-op once funds have moved.
func (q *Queue) cancelSettlement(sessionID string) (bool, error) {
	err := q.Inspector.DeleteTask(config.SETTLEMENT_QUEUE, SettlementTaskID(sessionID))
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetScheduledSettlement retrieves a scheduled settlement payload by session
// ID, or nil if no task is waiting.
func (q *Queue) GetScheduledSettlement(sessionID string) (*SettlementPayload, error) {
	task, err := q.Inspector.GetTaskInfo(config.SETTLEMENT_QUEUE, SettlementTaskID(sessionID))
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var payload SettlementPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
