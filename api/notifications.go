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
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/paysync/api/model"
)

// ReceiveNotification validates a gateway notification and queues it for the
// workers. The gateway only needs to know the event was accepted, so the
// response carries no reconciliation result.
func (a Api) ReceiveNotification(c *gin.Context) {
	tenantID := c.Param("tenant_id")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id is required. pass it in the route /notifications/:tenant_id"})
		return
	}

	var body model.GatewayNotification
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := body.ValidateGatewayNotification(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	n := body.ToNotification(tenantID, a.now().UTC())
	if err := a.queue.EnqueueNotification(c.Request.Context(), n); err != nil {
		logrus.WithError(err).WithField("tenant_id", tenantID).Error("failed to queue notification")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "notification could not be queued"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"notification_id": n.NotificationID})
}
