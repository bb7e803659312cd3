package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Loan lifecycle statuses. The flow is linear; CANCELLED and REJECTED are
// the only exits before DISBURSED.
const (
	LoanPreview       = "PREVIEW"
	LoanPending       = "PENDING"
	LoanProceeded     = "PROCEEDED"
	LoanKYCSent       = "KYC_SENT"
	LoanFormSubmitted = "FORM_SUBMITTED"
	LoanApproved      = "APPROVED"
	LoanDisbursed     = "DISBURSED"
	LoanClosed        = "CLOSED"
	LoanCancelled     = "CANCELLED"
	LoanRejected      = "REJECTED"
)

// Payout frequency tokens. A numeric "<N>_DAYS" form is also accepted.
const (
	FrequencyDaily   = "DAILY"
	FrequencyWeekly  = "WEEKLY"
	FrequencyMonthly = "MONTHLY"
)

type Loan struct {
	ID         uint            `gorm:"primarykey"`
	UserID     uint            `gorm:"index;not null"`
	PlanID     *uint           `gorm:"index"`
	Amount     decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	TenureDays int             `gorm:"not null"`
	Frequency  string          `gorm:"not null"`
	Status     string          `gorm:"index;not null;default:'PREVIEW'"`
	KYCData    JSON            `gorm:"type:jsonb"`

	// Fee breakdown, fixed at disbursal by the schedule generator.
	FeeAmount      decimal.Decimal `gorm:"type:numeric(14,2);default:0"`
	InterestAmount decimal.Decimal `gorm:"type:numeric(14,2);default:0"`
	GSTAmount      decimal.Decimal `gorm:"type:numeric(14,2);default:0"`
	TotalPayable   decimal.Decimal `gorm:"type:numeric(14,2);default:0"`
	PaidAmount     decimal.Decimal `gorm:"type:numeric(14,2);default:0"`

	// Ledger entry holding the PENDING principal lock, once placed.
	LockTransactionID *uint

	AppliedAt   time.Time
	ApprovedAt  *time.Time
	DisbursedAt *time.Time
	ClosedAt    *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Active reports whether the loan still occupies the user's single loan
// slot (any non-terminal state).
func (l *Loan) Active() bool {
	switch l.Status {
	case LoanClosed, LoanCancelled, LoanRejected:
		return false
	}
	return true
}

// FullyRepaid reports whether everything payable has been collected.
func (l *Loan) FullyRepaid() bool {
	return l.TotalPayable.GreaterThan(decimal.Zero) && l.PaidAmount.GreaterThanOrEqual(l.TotalPayable)
}
