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

	"github.com/gin-gonic/gin"

	"github.com/blnkfinance/paysync"
	"github.com/blnkfinance/paysync/api/model"
	"github.com/blnkfinance/paysync/gateway"
	pmodel "github.com/blnkfinance/paysync/model"
)

type paymentFunc func(ctx context.Context, req paysync.PaymentRequest) (*pmodel.TransactionInfo, error)

func toPaymentRequest(op *model.PaymentOperation) paysync.PaymentRequest {
	req := paysync.PaymentRequest{
		TenantID:          op.TenantID,
		AccountID:         op.AccountID,
		PaymentID:         op.PaymentID,
		TransactionID:     op.TransactionID,
		Amount:            op.Amount,
		Currency:          op.Currency,
		Token:             op.Token,
		PaymentProductID:  op.PaymentProductID,
		MerchantReference: op.MerchantReference,
		ReturnURL:         op.ReturnURL,
	}
	if op.Card != nil {
		req.Card = toGatewayCard(op.Card)
	}
	return req
}

func toGatewayCard(c *model.Card) *gateway.Card {
	return &gateway.Card{
		CardNumber:     c.CardNumber,
		Cvv:            c.Cvv,
		ExpiryDate:     c.ExpiryDate,
		CardholderName: c.CardholderName,
	}
}

// newPayment handles operations that open a payment (authorize, purchase, credit).
func (a Api) newPayment(c *gin.Context, run paymentFunc) {
	var op model.PaymentOperation
	if err := c.ShouldBindJSON(&op); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := op.ValidateNewPayment(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a.respondPayment(c, run, &op)
}

// followUp handles operations on an authorized payment (capture, void, refund).
func (a Api) followUp(c *gin.Context, run paymentFunc) {
	var op model.PaymentOperation
	if err := c.ShouldBindJSON(&op); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	op.PaymentID = c.Param("id")
	if err := op.ValidateFollowUp(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a.respondPayment(c, run, &op)
}

// respondPayment answers 201 whenever a ledger row was written, whatever the
// gateway decided; the status field carries the outcome.
func (a Api) respondPayment(c *gin.Context, run paymentFunc, op *model.PaymentOperation) {
	resp, err := run(c.Request.Context(), toPaymentRequest(op))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (a Api) Authorize(c *gin.Context) { a.newPayment(c, a.paysync.Authorize) }
func (a Api) Purchase(c *gin.Context)  { a.newPayment(c, a.paysync.Purchase) }
func (a Api) Credit(c *gin.Context)    { a.newPayment(c, a.paysync.Credit) }
func (a Api) Capture(c *gin.Context)   { a.followUp(c, a.paysync.Capture) }
func (a Api) Void(c *gin.Context)      { a.followUp(c, a.paysync.Void) }
func (a Api) Refund(c *gin.Context)    { a.followUp(c, a.paysync.Refund) }

func (a Api) CreateToken(c *gin.Context) {
	var body model.CreateToken
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := body.ValidateCreateToken(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := a.paysync.CreateToken(c.Request.Context(), body.TenantID, body.PaymentProductID, toGatewayCard(body.Card))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"token": token})
}
