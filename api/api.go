/*
Copyright 2024 Blnk Finance Authors.

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
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/blnkfinance/paysync"
	"github.com/blnkfinance/paysync/api/middleware"
	"github.com/blnkfinance/paysync/config"
	"github.com/blnkfinance/paysync/internal/apierror"
	"github.com/blnkfinance/paysync/model"
)

// NotificationQueue accepts gateway notifications for asynchronous reconciliation.
type NotificationQueue interface {
	EnqueueNotification(ctx context.Context, n *model.Notification) error
}

// HealthCheck reports whether a backing service is reachable.
type HealthCheck func(ctx context.Context) error

type Api struct {
	paysync *paysync.PaySync
	queue   NotificationQueue
	health  HealthCheck
	conf    *config.Configuration
	router  *gin.Engine
	now     func() time.Time
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.GET("/health", a.Health)

	// The gateway cannot send the server secret key; notifications are
	// authenticated with the tenant's webhook signature instead.
	router.POST("/notifications/:tenant_id", middleware.WebhookSignatureMiddleware(a.conf), a.ReceiveNotification)

	protected := router.Group("/")
	if a.conf.Server.Secure {
		protected.Use(middleware.SecretKeyAuthMiddleware())
	}
	protected.GET("/transactions/:id", a.GetTransaction)
	protected.GET("/payments/:id/transactions", a.GetPaymentTransactions)

	protected.POST("/payments/authorize", a.Authorize)
	protected.POST("/payments/purchase", a.Purchase)
	protected.POST("/payments/credit", a.Credit)
	protected.POST("/payments/:id/capture", a.Capture)
	protected.POST("/payments/:id/void", a.Void)
	protected.POST("/payments/:id/refund", a.Refund)
	protected.POST("/tokens", a.CreateToken)

	return a.router
}

func NewAPI(p *paysync.PaySync, queue NotificationQueue, health HealthCheck) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(otelgin.Middleware(conf.ProjectName))
	r.Use(middleware.RateLimitMiddleware(conf))

	return &Api{paysync: p, queue: queue, health: health, conf: conf, router: r, now: time.Now}
}

func (a Api) Health(c *gin.Context) {
	if a.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := a.health(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func respondError(c *gin.Context, err error) {
	c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
}
