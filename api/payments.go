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
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	model2 "github.com/edubridge/ledger/api/model"
	"github.com/edubridge/ledger/api/middleware"
	"github.com/edubridge/ledger/internal/apierror"
)

// RecordPayment moves money between two wallets. The calling customer,
// identified by the X-Customer-ID header, must own the source wallet.
//
// Responses:
// - 400 Bad Request: If there's an error in binding JSON or validating the payment.
// - 403 Forbidden: If the caller does not own the source wallet.
// - 201 Created: If the payment is successfully recorded.
func (a Api) RecordPayment(c *gin.Context) {
	var payment model2.RecordPayment
	if err := c.ShouldBindJSON(&payment); err != nil {
		logrus.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	if err := payment.ValidateRecordPayment(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	callerID := c.GetHeader(middleware.CustomerHeader)
	if callerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s header is required", middleware.CustomerHeader)})
		return
	}

	source, err := a.ledger.GetWallet(c.Request.Context(), payment.FromAccountNo)
	if err != nil {
		respondError(c, err)
		return
	}
	if source.CustomerID != callerID {
		respondError(c, apierror.NewAPIError(apierror.ErrUnauthorized, "Caller does not own the source wallet", nil))
		return
	}

	resp, err := a.ledger.Transfer(c.Request.Context(), payment.FromAccountNo, payment.ToAccountNo, payment.Amount, payment.Reference, payment.Narration)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// FundWallet credits a wallet outside the gateway flow. Operator-only.
func (a Api) FundWallet(c *gin.Context) {
	var funding model2.FundWallet
	if err := c.ShouldBindJSON(&funding); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := funding.ValidateFundWallet(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	method := funding.Method
	if method == "" {
		method = "manual"
	}

	resp, err := a.ledger.Deposit(c.Request.Context(), funding.AccountNo, funding.Amount, funding.Reference, method)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}
