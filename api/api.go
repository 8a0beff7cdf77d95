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
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/edubridge/ledger"
	"github.com/edubridge/ledger/api/middleware"
	"github.com/edubridge/ledger/config"
	"github.com/edubridge/ledger/internal/apierror"
)

type Api struct {
	ledger *ledger.Ledger
	router *gin.Engine
}

// Router wires the wallet, payment, withdrawal and booking routes. The
// withdrawal review surface and manual funding sit behind the operator secret
// key regardless of the server's secure mode.
func (a Api) Router() *gin.Engine {
	router := a.router

	router.POST("/wallets", a.CreateWallet)
	router.GET("/wallets", a.GetWalletByCustomerID)
	router.GET("/wallets/:account_no", a.GetWallet)
	router.GET("/wallets/:account_no/transactions", a.GetWalletEntries)
	router.GET("/wallets/:account_no/balance", a.GetWalletBalance)

	router.POST("/payments", a.RecordPayment)
	router.POST("/withdrawals", a.RequestWithdrawal)

	router.POST("/bookings/:ref/hold", a.HoldBooking)
	router.POST("/sessions/:id/complete", a.CompleteSession)
	router.DELETE("/sessions/:id/settlement", a.CancelSettlement)

	router.POST("/webhooks/gateway", a.GatewayDeposit)

	admin := router.Group("/", middleware.SecretKeyAuthMiddleware())
	admin.POST("/wallets/fund", a.FundWallet)
	admin.GET("/withdrawals", a.ListPendingWithdrawals)
	admin.PUT("/withdrawals/:id/approve", a.ApproveWithdrawal)
	admin.PUT("/withdrawals/:id/reject", a.RejectWithdrawal)
	admin.POST("/bookings/:ref/refund", a.RefundBooking)

	return a.router
}

func NewAPI(l *ledger.Ledger) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(otelgin.Middleware("edubridge-ledger"))
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{ledger: l, router: r}
}

// respondError translates a service error into its HTTP shape. Typed errors
// keep their code and details; anything else is an opaque 500.
func respondError(c *gin.Context, err error) {
	status := apierror.MapErrorToHTTPStatus(err)
	if apiErr, ok := err.(apierror.APIError); ok {
		c.JSON(status, gin.H{"error": apiErr.Message, "code": apiErr.Code, "details": apiErr.Details})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
