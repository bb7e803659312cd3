package loan

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"kosh/internal/models"
	"kosh/internal/services/gateway"
	"kosh/internal/services/schedule"
)

// Config carries the tunables of the loan engine.
type Config struct {
	// SystemUserID owns the operator wallet that principal leaves from and
	// EMI payments arrive into.
	SystemUserID uint
	// CooldownDays is the minimum gap between one disbursal and the next
	// application. Defaults to 15.
	CooldownDays int
	// KYCTokenTTL bounds the lifetime of a one-time KYC submission token.
	// Defaults to 24h.
	KYCTokenTTL time.Duration
	// InstantAmount is the fast-path cap for plans that do not set their
	// own. Zero disables the fallback.
	InstantAmount decimal.Decimal
	// ReferralBonus, when positive, is credited to the referrer's wallet
	// after the referred user's first disbursal.
	ReferralBonus decimal.Decimal
}

func (c Config) withDefaults() Config {
	if c.CooldownDays == 0 {
		c.CooldownDays = 15
	}
	if c.KYCTokenTTL == 0 {
		c.KYCTokenTTL = 24 * time.Hour
	}
	return c
}

// ApplyRequest is one loan application. A zero Amount borrows the plan's
// full principal. KYCData may arrive with the application or later through
// the KYC submission flow; Confirm requires it to be present.
type ApplyRequest struct {
	UserID     uint
	PlanID     uint
	Amount     decimal.Decimal
	TenureDays int
	Frequency  string
	KYCData    models.JSON
}

// Quote is the priced preview returned alongside the application.
type Quote struct {
	Principal      decimal.Decimal       `json:"principal"`
	FeeAmount      decimal.Decimal       `json:"fee_amount"`
	InterestAmount decimal.Decimal       `json:"interest_amount"`
	GSTAmount      decimal.Decimal       `json:"gst_amount"`
	TotalPayable   decimal.Decimal       `json:"total_payable"`
	Installments   []schedule.Installment `json:"installments"`
}

// TokenStore issues and redeems one-time KYC submission tokens. Redeeming
// is destructive so a token can only ever be used once.
type TokenStore interface {
	StoreKYCToken(ctx context.Context, token string, loanID uint, ttl time.Duration) error
	ConsumeKYCToken(ctx context.Context, token string) (uint, error)
}

// PaymentGateway is the card charging surface used by online repayment.
type PaymentGateway interface {
	Charge(ctx context.Context, req gateway.ChargeRequest) (string, error)
}
