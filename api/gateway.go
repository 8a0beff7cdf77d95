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
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	model2 "github.com/edubridge/ledger/api/model"
	"github.com/edubridge/ledger/config"
)

// SignatureHeader carries the gateway's HMAC over the raw request body.
const SignatureHeader = "X-Gateway-Signature"

// GatewayDeposit is the payment gateway's deposit confirmation callback. The
// body is authenticated with an HMAC-SHA512 signature over the raw payload
// before any money moves; an unsigned or tampered request never reaches the
// ledger.
//
// Responses:
// - 401 Unauthorized: If the signature is missing or does not verify.
// - 409 Conflict: If the deposit reference was already applied.
// - 201 Created: If the deposit is recorded.
func (a Api) GatewayDeposit(c *gin.Context) {
	conf, err := config.Fetch()
	if err != nil || conf.Gateway.WebhookSecret == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Gateway webhook secret is not configured"})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	if !verifySignature(conf.Gateway.WebhookSecret, body, c.GetHeader(SignatureHeader)) {
		logrus.Warn("gateway webhook rejected: bad signature")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	var deposit model2.GatewayDeposit
	if err := json.Unmarshal(body, &deposit); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := deposit.ValidateGatewayDeposit(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	method := deposit.Method
	if method == "" {
		method = "gateway"
	}

	resp, err := a.ledger.Deposit(c.Request.Context(), deposit.AccountNo, deposit.Amount, deposit.Reference, method)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func verifySignature(secret string, body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
