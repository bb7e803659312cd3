// Package gateway charges cards for online EMI payments through Stripe.
package gateway

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/charge"
	"github.com/stripe/stripe-go/v72/token"
)

// Card is the raw card input for a one-off charge. It is tokenized before
// the charge and never stored.
type Card struct {
	Number   string `json:"number"`
	ExpMonth string `json:"exp_month"`
	ExpYear  string `json:"exp_year"`
	CVC      string `json:"cvc"`
}

type ChargeRequest struct {
	Amount      decimal.Decimal
	Currency    string
	Card        Card
	Description string
}

// Service performs one-off card charges. Returns the gateway's charge
// reference on success.
type Service interface {
	Charge(ctx context.Context, req ChargeRequest) (string, error)
}

type stripeGateway struct{}

func NewStripeGateway(secretKey string) Service {
	stripe.Key = secretKey
	return &stripeGateway{}
}

func (g *stripeGateway) Charge(ctx context.Context, req ChargeRequest) (string, error) {
	tok, err := token.New(&stripe.TokenParams{
		Card: &stripe.CardParams{
			Number:   stripe.String(req.Card.Number),
			ExpMonth: stripe.String(req.Card.ExpMonth),
			ExpYear:  stripe.String(req.Card.ExpYear),
			CVC:      stripe.String(req.Card.CVC),
		},
	})
	if err != nil {
		return "", fmt.Errorf("card tokenization failed: %w", err)
	}

	currency := req.Currency
	if currency == "" {
		currency = "inr"
	}
	params := &stripe.ChargeParams{
		Amount:      stripe.Int64(req.Amount.Shift(2).Round(0).IntPart()),
		Currency:    stripe.String(currency),
		Description: stripe.String(req.Description),
	}
	if err := params.SetSource(tok.ID); err != nil {
		return "", fmt.Errorf("failed to set charge source: %w", err)
	}

	ch, err := charge.New(params)
	if err != nil {
		return "", fmt.Errorf("charge failed: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"charge_id": ch.ID,
		"amount":    req.Amount,
		"currency":  currency,
	}).Info("gateway charge succeeded")
	return ch.ID, nil
}
