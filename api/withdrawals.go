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

	"github.com/gin-gonic/gin"

	model2 "github.com/edubridge/ledger/api/model"
	"github.com/edubridge/ledger/api/middleware"
)

// RequestWithdrawal files a withdrawal request for later operator review.
//
// Responses:
// - 400 Bad Request: If validation fails or the balance does not cover the amount.
// - 201 Created: If the request is successfully filed.
func (a Api) RequestWithdrawal(c *gin.Context) {
	var withdrawal model2.RequestWithdrawal
	if err := c.ShouldBindJSON(&withdrawal); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := withdrawal.ValidateRequestWithdrawal(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.ledger.RequestWithdrawal(c.Request.Context(), withdrawal.AccountNo, withdrawal.Amount, withdrawal.BankDetails, withdrawal.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// ApproveWithdrawal approves a pending request and writes the companion
// debit. The approving operator is recorded from the X-Customer-ID header.
//
// Responses:
// - 400 Bad Request: If the balance no longer covers the amount; the request stays pending.
// - 409 Conflict: If the request already reached a terminal status.
// - 200 OK: If the withdrawal is approved.
func (a Api) ApproveWithdrawal(c *gin.Context) {
	requestID, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := a.ledger.ApproveWithdrawal(c.Request.Context(), requestID, c.GetHeader(middleware.CustomerHeader))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// RejectWithdrawal turns a pending request down, recording the reason.
func (a Api) RejectWithdrawal(c *gin.Context) {
	requestID, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	var rejection model2.RejectWithdrawal
	if err := c.ShouldBindJSON(&rejection); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := a.ledger.RejectWithdrawal(c.Request.Context(), requestID, c.GetHeader(middleware.CustomerHeader), rejection.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ListPendingWithdrawals returns the requests awaiting review, oldest first.
func (a Api) ListPendingWithdrawals(c *gin.Context) {
	resp, err := a.ledger.ListPendingWithdrawals(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
