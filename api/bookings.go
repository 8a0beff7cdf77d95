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
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edubridge/ledger"
	model2 "github.com/edubridge/ledger/api/model"
)

// HoldBooking escrows the booking amount out of the payer's wallet. The
// money leaves the mentee immediately; the mentor is credited only when the
// session settles.
//
// Responses:
// - 400 Bad Request: If validation fails or the balance does not cover the amount.
// - 409 Conflict: If the booking already holds funds.
// - 201 Created: If the hold is successfully written.
func (a Api) HoldBooking(c *gin.Context) {
	bookingID, passed := c.Params.Get("ref")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ref is required. pass the booking reference in the route /:ref"})
		return
	}

	var hold model2.HoldBooking
	if err := c.ShouldBindJSON(&hold); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := hold.ValidateHoldBooking(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.ledger.HoldEscrow(c.Request.Context(), hold.PayerAccountNo, hold.PayeeAccountNo, hold.Amount, bookingID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// CompleteSession schedules the deferred settlement of a completed session's
// escrowed funds after the cooling-off window.
//
// Responses:
// - 404 Not Found: If no hold exists for the booking reference.
// - 409 Conflict: If the hold has already been resolved.
// - 200 OK: If settlement is scheduled.
func (a Api) CompleteSession(c *gin.Context) {
	sessionID, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass the session id in the route /:id"})
		return
	}

	var session model2.CompleteSession
	if err := c.ShouldBindJSON(&session); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := session.ValidateCompleteSession(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	delay := time.Duration(session.DelayMinutes) * time.Minute
	if err := a.ledger.ScheduleSettlement(c.Request.Context(), sessionID, session.BookingRef, delay); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "booking_ref": session.BookingRef, "status": "settlement scheduled"})
}

// CancelSettlement withdraws a scheduled settlement before it fires. Funds
// that have already settled are not clawed back here.
func (a Api) CancelSettlement(c *gin.Context) {
	sessionID, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass the session id in the route /:id"})
		return
	}

	if err := a.ledger.CancelSettlement(c.Request.Context(), sessionID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "status": "settlement cancelled"})
}

// RefundBooking voids an unresolved hold and credits the payer back.
// Operator-only. The route parameter is the booking id, as on the hold route.
func (a Api) RefundBooking(c *gin.Context) {
	bookingID, passed := c.Params.Get("ref")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ref is required. pass the booking reference in the route /:ref"})
		return
	}

	var refund model2.RefundBooking
	if err := c.ShouldBindJSON(&refund); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := a.ledger.Refund(c.Request.Context(), ledger.BookingReference(bookingID), refund.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}
