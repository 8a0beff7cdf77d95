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
	"sync"

	"github.com/sirupsen/logrus"
)

// Domain event names emitted after each committed ledger mutation.
const (
	EventWalletCreated       = "wallet.created"
	EventDepositApplied      = "deposit.applied"
	EventTransferApplied     = "transfer.applied"
	EventEscrowHeld          = "escrow.held"
	EventEscrowResolved      = "escrow.resolved"
	EventEscrowRefunded      = "escrow.refunded"
	EventWithdrawalRequested = "withdrawal.requested"
	EventWithdrawalApproved  = "withdrawal.approved"
	EventWithdrawalRejected  = "withdrawal.rejected"
)

// EventHandler receives a domain event after the mutation that produced it has
// committed. Handlers run synchronously on the calling goroutine, so a slow
// handler slows the caller; keep them cheap and hand real work to the queue.
type EventHandler func(ctx context.Context, event string, payload interface{})

type eventRegistry struct {
	mu       sync.RWMutex
	handlers []EventHandler
}

func newEventRegistry() *eventRegistry {
	return &eventRegistry{}
}

// RegisterEventHandler appends a handler to the dispatch list. Registration is
// explicit and ordered; there is no global subscription state.
func (l *Ledger) RegisterEventHandler(handler EventHandler) {
	l.events.mu.Lock()
	defer l.events.mu.Unlock()
	l.events.handlers = append(l.events.handlers, handler)
}

// emitEvent notifies every registered handler, then fans the event out to the
// outbound webhook queue. Webhook delivery failures are logged, never
// propagated: the ledger mutation has already committed.
func (l *Ledger) emitEvent(ctx context.Context, event string, payload interface{}) {
	l.events.mu.RLock()
	handlers := make([]EventHandler, len(l.events.handlers))
	copy(handlers, l.events.handlers)
	l.events.mu.RUnlock()

	for _, handler := range handlers {
		handler(ctx, event, payload)
	}

	if err := SendWebhook(NewWebhook{Event: event, Payload: payload}); err != nil {
		logrus.Errorf("failed to enqueue %s webhook: %v", event, err)
	}
}
