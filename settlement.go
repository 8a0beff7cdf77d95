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
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/edubridge/ledger/config"
	"github.com/edubridge/ledger/internal/apierror"
	"github.com/edubridge/ledger/internal/notification"
)

// SettlementPayload is the task body carried by a deferred settlement.
type SettlementPayload struct {
	SessionID    string    `json:"session_id"`
	BookingRef   string    `json:"booking_ref"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// SettlementTaskID derives the deterministic task ID for a session's
// settlement so cancellation is a direct lookup rather than a queue scan.
func SettlementTaskID(sessionID string) string {
	return fmt.Sprintf("settle:%s", sessionID)
}

// BookingReference builds the ledger reference carried by a booking's escrow
// hold.
func BookingReference(bookingID string) string {
	return fmt.Sprintf("BOOKING-%s", bookingID)
}

// SessionReference builds the ledger reference carried by a session's
// settlement credit.
func SessionReference(sessionID string) string {
	return fmt.Sprintf("SESSION-%s", sessionID)
}

// ScheduleSettlement enqueues the deferred release of a booking's escrowed
// funds, to fire after the cooling-off window. The hold must exist; holding
// the window open for a booking that never reserved money is a caller bug
// surfaced as EscrowNotFound. Redelivery of the task is tolerated because
// settlement is idempotent.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - sessionID string: The completed session; keys the task for cancellation.
// - bookingRef string: The escrow hold's ledger reference.
// - delay time.Duration: The cooling-off window; the configured grace window when zero.
//
// Returns:
// - error: An error if the hold is missing or the task could not be enqueued.
func (l *Ledger) ScheduleSettlement(ctx context.Context, sessionID, bookingRef string, delay time.Duration) error {
	ctx, span := tracer.Start(ctx, "Scheduling settlement")
	defer span.End()

	hold, err := l.datasource.GetHoldByRef(ctx, bookingRef)
	if err != nil {
		return err
	}
	if hold.Escrow != nil && !hold.Escrow.Pending() {
		return apierror.NewAPIError(apierror.ErrEscrowAlreadyResolved, fmt.Sprintf("Escrow hold for '%s' has already been resolved", bookingRef), nil)
	}

	if delay <= 0 {
		conf, err := config.Fetch()
		if err != nil {
			return err
		}
		delay = conf.Settlement.GraceWindow()
	}

	payload := SettlementPayload{
		SessionID:    sessionID,
		BookingRef:   bookingRef,
		ScheduledFor: time.Now().Add(delay),
	}
	if err := l.queue.queueSettlement(ctx, payload, delay); err != nil {
		return logAndRecordError(span, "settlement scheduling error: ", err)
	}
	return nil
}

// CancelSettlement removes a scheduled settlement before it fires, used when
// a low session rating withdraws the payout during the cooling-off window.
// If the task has already fired or was never scheduled the cancellation is a
// no-op success; funds that have settled are not clawed back by this path.
func (l *Ledger) CancelSettlement(ctx context.Context, sessionID string) error {
	_, span := tracer.Start(ctx, "Cancelling settlement")
	defer span.End()

	deleted, err := l.queue.cancelSettlement(sessionID)
	if err != nil {
		return logAndRecordError(span, "settlement cancellation error: ", err)
	}
	if !deleted {
		log.Printf("settlement for session %s already fired or was never scheduled", sessionID)
	}
	return nil
}

// ProcessSettlement is the asynq handler that releases escrowed funds when a
// settlement task fires. Failures are logged and notified, never silently
// dropped, and never propagate to the session-completion flow that scheduled
// them; returning the error lets the queue redeliver, which is safe because
// resolution is idempotent.
func (l *Ledger) ProcessSettlement(ctx context.Context, task *asynq.Task) error {
	var payload SettlementPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logrus.Errorf("Error unmarshaling settlement payload: %v", err)
		return err
	}

	if _, err := l.ResolveEscrow(ctx, payload.BookingRef, payload.SessionID); err != nil {
		if apiErr, ok := err.(apierror.APIError); ok && apiErr.Code == apierror.ErrEscrowAlreadyResolved {
			return nil
		}
		logrus.Errorf("settlement for session %s failed: %v", payload.SessionID, err)
		notification.NotifyError(err)
		return err
	}

	log.Printf(" [*] Settled escrow for session: %s", payload.SessionID)
	return nil
}
