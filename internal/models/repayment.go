package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Repayment statuses. MANUAL_VERIFICATION is the first phase of an
// off-ledger collection; a separate approval moves it to PAID.
const (
	RepaymentPending            = "PENDING"
	RepaymentPaid               = "PAID"
	RepaymentManualVerification = "MANUAL_VERIFICATION"
)

// Payment modes recorded on a repayment.
const (
	PaymentModeWallet  = "WALLET"
	PaymentModeGateway = "GATEWAY"
	PaymentModeManual  = "MANUAL"
)

// LoanRepayment is one EMI of a loan's schedule, created in a batch at
// disbursal. Immutable once PAID.
type LoanRepayment struct {
	ID          uint            `gorm:"primarykey"`
	LoanID      uint            `gorm:"index;not null"`
	Amount      decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	DueDate     time.Time       `gorm:"not null"`
	Status      string          `gorm:"index;not null;default:'PENDING'"`
	PaymentMode string
	PaidAt      *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
