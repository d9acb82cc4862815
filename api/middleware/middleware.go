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
package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"io"
	"net/http"
	"time"

	"github.com/didip/tollbooth/v7"
	"github.com/didip/tollbooth/v7/limiter"
	"github.com/gin-gonic/gin"

	"github.com/blnkfinance/paysync/config"
)

const (
	KeyHeader = "X-Paysync-Key"

	// Headers the gateway signs its webhook deliveries with.
	SignatureHeader = "X-GCS-Signature"
	KeyIDHeader     = "X-GCS-KeyId"
)

func passThrough(c *gin.Context) { c.Next() }

// newLimiter returns nil when rate limiting is not configured.
func newLimiter(rl config.RateLimitConfig) *limiter.Limiter {
	if rl.RequestsPerSecond == nil || rl.Burst == nil {
		return nil
	}
	opts := &limiter.ExpirableOptions{}
	if rl.CleanupIntervalSec != nil {
		opts.DefaultExpirationTTL = time.Duration(*rl.CleanupIntervalSec) * time.Second
	}
	return tollbooth.NewLimiter(*rl.RequestsPerSecond, opts).SetBurst(*rl.Burst)
}

// RateLimitMiddleware throttles each client IP. Routes with a :tenant_id
// parameter are throttled per tenant as well, so one noisy tenant's webhook
// deliveries do not starve the others.
func RateLimitMiddleware(conf *config.Configuration) gin.HandlerFunc {
	lmt := newLimiter(conf.RateLimit)
	if lmt == nil {
		return passThrough
	}

	return func(c *gin.Context) {
		keys := []string{c.ClientIP()}
		if tenant := c.Param("tenant_id"); tenant != "" {
			keys = append(keys, tenant)
		}
		if httpError := tollbooth.LimitByKeys(lmt, keys); httpError != nil {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(httpError.StatusCode, gin.H{"error": httpError.Message})
			return
		}
		c.Next()
	}
}

// checkSecretKey returns the status to abort with, or 0 when presented matches the server key.
func checkSecretKey(presented string) (int, string) {
	conf, err := config.Fetch()
	if err != nil || conf.Server.SecretKey == "" {
		return http.StatusInternalServerError, "Secret key is not configured"
	}
	switch {
	case presented == "":
		return http.StatusUnauthorized, "Missing secret key"
	case !secureCompare(conf.Server.SecretKey, presented):
		return http.StatusUnauthorized, "Invalid secret key"
	}
	return 0, ""
}

// SecretKeyAuthMiddleware requires the server secret key in the KeyHeader header.
func SecretKeyAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if status, msg := checkSecretKey(c.GetHeader(KeyHeader)); status != 0 {
			c.AbortWithStatusJSON(status, gin.H{"error": msg})
			return
		}
		c.Next()
	}
}

func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// WebhookSignature returns the signature the gateway sends for body: the
// base64 HMAC-SHA256 of the raw body keyed with the tenant's webhook secret.
func WebhookSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// WebhookSignatureMiddleware authenticates gateway notifications posted to a
// route with a :tenant_id parameter. Tenants without a webhook secret are not checked.
func WebhookSignatureMiddleware(conf *config.Configuration) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, ok := conf.Tenant(c.Param("tenant_id"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Unknown tenant"})
			return
		}
		if tenant.WebhookSecret == "" {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Unreadable body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		if tenant.WebhookKeyID != "" && !secureCompare(tenant.WebhookKeyID, c.GetHeader(KeyIDHeader)) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid webhook key id"})
			return
		}
		signature := c.GetHeader(SignatureHeader)
		if signature == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing webhook signature"})
			return
		}
		if !secureCompare(WebhookSignature(tenant.WebhookSecret, body), signature) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid webhook signature"})
			return
		}

		c.Next()
	}
}
