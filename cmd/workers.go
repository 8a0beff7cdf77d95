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

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/spf13/cobra"

	"github.com/edubridge/ledger"
	"github.com/edubridge/ledger/config"
	redis_db "github.com/edubridge/ledger/internal/redis-db"
)

const defaultMonitoringPort = "5004"

// processSettlement releases a session's escrowed funds when its deferred
// task fires. Redelivery is safe because escrow resolution is idempotent.
func (l *ledgerInstance) processSettlement(ctx context.Context, t *asynq.Task) error {
	return l.ledger.ProcessSettlement(ctx, t)
}

func initializeQueues() map[string]int {
	queues := make(map[string]int)
	queues[config.SETTLEMENT_QUEUE] = 3
	queues[config.WEBHOOK_QUEUE] = 1
	return queues
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, false)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:      redisOption.Addr,
			Password:  redisOption.Password,
			DB:        redisOption.DB,
			TLSConfig: redisOption.TLSConfig,
		},
		asynq.Config{
			Concurrency: 1,
			Queues:      queues,
		},
	), nil
}

func initializeTaskHandlers(l *ledgerInstance, mux *asynq.ServeMux) {
	mux.HandleFunc(config.SETTLEMENT_QUEUE, l.processSettlement)
	mux.HandleFunc(config.WEBHOOK_QUEUE, ledger.ProcessWebhook)
}

// workerCommands starts the settlement and webhook workers plus the asynqmon
// monitoring surface.
func workerCommands(l *ledgerInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start settlement and webhook workers",
		Run: func(cmd *cobra.Command, args []string) {
			conf, err := config.Fetch()
			if err != nil {
				log.Fatal("Error fetching config:", err)
			}

			queues := initializeQueues()

			srv, err := initializeWorkerServer(conf, queues)
			if err != nil {
				log.Fatal(err)
			}

			mux := asynq.NewServeMux()
			initializeTaskHandlers(l, mux)

			redisOption, _ := redis_db.ParseRedisURL(conf.Redis.Dns, false)
			h := asynqmon.New(asynqmon.Options{
				RootPath: "/monitoring",
				RedisConnOpt: asynq.RedisClientOpt{
					Addr:      redisOption.Addr,
					Password:  redisOption.Password,
					DB:        redisOption.DB,
					TLSConfig: redisOption.TLSConfig,
				},
			})

			go func() {
				port := conf.Settlement.MonitoringPort
				if port == "" {
					port = defaultMonitoringPort
				}
				monitoringAddr := fmt.Sprintf(":%s", port)
				log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
				if err := http.ListenAndServe(monitoringAddr, h); err != nil {
					log.Fatalf("could not start asynqmon server: %v", err)
				}
			}()

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
