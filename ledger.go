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
	"embed"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/edubridge/ledger/cache"
	"github.com/edubridge/ledger/config"
	"github.com/edubridge/ledger/database"
	"github.com/edubridge/ledger/internal/notification"
	redis_db "github.com/edubridge/ledger/internal/redis-db"
)

// Ledger is the main service struct for the wallet ledger and settlement
// engine.
type Ledger struct {
	queue      *Queue
	redis      redis.UniversalClient
	datasource database.IDataSource
	cache      cache.Cache
	events     *eventRegistry
}

//go:embed sql/*.sql
var SQLFiles embed.FS

// NewLedger initializes a new Ledger instance with the provided database datasource.
// It fetches the configuration and initializes the Redis client, wallet cache
// and task queue, and registers the outbound webhook sender with the
// notification package so system errors reach the configured webhook.
//
// Parameters:
// - db database.IDataSource: The datasource for database operations.
//
// Returns:
// - *Ledger: A pointer to the newly created Ledger instance.
// - error: An error if any of the initialization steps fail.
func NewLedger(db database.IDataSource) (*Ledger, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", configuration.Redis.Dns)}, false)
	if err != nil {
		return nil, err
	}
	newCache, err := cache.NewCache()
	if err != nil {
		return nil, err
	}
	newQueue := NewQueue(configuration)

	newLedger := &Ledger{
		datasource: db,
		queue:      newQueue,
		redis:      redisClient.Client(),
		cache:      newCache,
		events:     newEventRegistry(),
	}
	notification.RegisterWebhookSender(func(event string, payload interface{}) error {
		return SendWebhook(NewWebhook{Event: event, Payload: payload})
	})
	return newLedger, nil
}
