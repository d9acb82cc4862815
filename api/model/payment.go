package model

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/shopspring/decimal"
)

type Card struct {
	CardNumber     string `json:"card_number"`
	Cvv            string `json:"cvv"`
	ExpiryDate     string `json:"expiry_date"`
	CardholderName string `json:"cardholder_name"`
}

func (c Card) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.CardNumber, validation.Required, is.Digit, validation.Length(12, 19)),
		validation.Field(&c.Cvv, is.Digit, validation.Length(3, 4)),
		validation.Field(&c.ExpiryDate, validation.Required, is.Digit, validation.Length(4, 4)),
	)
}

// PaymentOperation is the body of every synchronous payment endpoint. Follow
// up operations (capture, void, refund) take the payment id from the route
// and inherit amount and currency from the authorization when they are omitted.
type PaymentOperation struct {
	TenantID          string          `json:"tenant_id"`
	AccountID         string          `json:"account_id"`
	PaymentID         string          `json:"payment_id"`
	TransactionID     string          `json:"transaction_id"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Token             string          `json:"token"`
	PaymentProductID  int             `json:"payment_product_id"`
	Card              *Card           `json:"card"`
	MerchantReference string          `json:"merchant_reference"`
	ReturnURL         string          `json:"return_url"`
}

func positive(value interface{}) error {
	if amount, ok := value.(decimal.Decimal); ok && !amount.IsPositive() {
		return errors.New("must be greater than zero")
	}
	return nil
}

func (p *PaymentOperation) ValidateNewPayment() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.TenantID, validation.Required),
		validation.Field(&p.AccountID, validation.Required),
		validation.Field(&p.PaymentID, validation.Required),
		validation.Field(&p.Amount, validation.By(positive)),
		validation.Field(&p.Currency, validation.Required, validation.Length(3, 3)),
		validation.Field(&p.Token, validation.When(p.Card == nil, validation.Required.Error("is required without card"))),
		validation.Field(&p.Card),
		validation.Field(&p.ReturnURL, is.URL),
	)
}

func (p *PaymentOperation) ValidateFollowUp() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.TenantID, validation.Required),
		validation.Field(&p.PaymentID, validation.Required),
		validation.Field(&p.Amount, validation.By(func(value interface{}) error {
			if p.Amount.IsZero() {
				return nil
			}
			return positive(value)
		})),
		validation.Field(&p.Currency, validation.Length(3, 3)),
	)
}

type CreateToken struct {
	TenantID         string `json:"tenant_id"`
	PaymentProductID int    `json:"payment_product_id"`
	Card             *Card  `json:"card"`
}

func (t *CreateToken) ValidateCreateToken() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.TenantID, validation.Required),
		validation.Field(&t.PaymentProductID, validation.Required),
		validation.Field(&t.Card, validation.Required),
	)
}
