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
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	model2 "github.com/edubridge/ledger/api/model"
	"github.com/edubridge/ledger/model"
)

// CreateWallet opens a wallet for a customer.
//
// Responses:
// - 400 Bad Request: If there's an error in binding JSON or validating the request.
// - 409 Conflict: If an active wallet already exists for the customer.
// - 201 Created: If the wallet is successfully created.
func (a Api) CreateWallet(c *gin.Context) {
	var newWallet model2.CreateWallet
	if err := c.ShouldBindJSON(&newWallet); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := newWallet.ValidateCreateWallet(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.ledger.CreateWallet(c.Request.Context(), newWallet.CustomerID, newWallet.CustomerName, newWallet.Email)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// GetWallet retrieves a wallet by its account number.
func (a Api) GetWallet(c *gin.Context) {
	accountNo, passed := c.Params.Get("account_no")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account_no is required. pass account_no in the route /:account_no"})
		return
	}

	resp, err := a.ledger.GetWallet(c.Request.Context(), accountNo)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetWalletByCustomerID looks a wallet up by customer_id or email query
// parameter.
func (a Api) GetWalletByCustomerID(c *gin.Context) {
	if customerID := c.Query("customer_id"); customerID != "" {
		resp, err := a.ledger.GetWalletByCustomerID(c.Request.Context(), customerID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
		return
	}

	if email := c.Query("email"); email != "" {
		resp, err := a.ledger.GetWalletByEmail(c.Request.Context(), email)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
		return
	}

	c.JSON(http.StatusBadRequest, gin.H{"error": "customer_id or email query parameter is required"})
}

// GetWalletEntries returns a wallet's transaction history, newest first,
// narrowed by the optional type/status/start/end query parameters.
func (a Api) GetWalletEntries(c *gin.Context) {
	accountNo, passed := c.Params.Get("account_no")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account_no is required. pass account_no in the route /:account_no"})
		return
	}

	filter := model.EntryFilter{
		Type:   c.Query("type"),
		Status: c.Query("status"),
	}
	if start := c.Query("start"); start != "" {
		from, err := time.Parse(time.RFC3339, start)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "start must be an RFC3339 timestamp"})
			return
		}
		filter.From = from
	}
	if end := c.Query("end"); end != "" {
		to, err := time.Parse(time.RFC3339, end)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "end must be an RFC3339 timestamp"})
			return
		}
		filter.To = to
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	resp, err := a.ledger.ListEntries(c.Request.Context(), accountNo, filter, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetWalletBalance returns the authoritative balance recomputed from the
// entry log, healing the cached column if it drifted.
func (a Api) GetWalletBalance(c *gin.Context) {
	accountNo, passed := c.Params.Get("account_no")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account_no is required. pass account_no in the route /:account_no"})
		return
	}

	balance, err := a.ledger.ComputeBalance(c.Request.Context(), accountNo)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"account_no": accountNo, "balance": balance})
}
