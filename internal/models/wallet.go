package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Wallet carries no balance column. The balance is always derived from the
// wallet_transactions ledger so a partial write can never leave a stale
// counter behind.
type Wallet struct {
	ID        uint      `gorm:"primarykey"`
	UserID    uint      `gorm:"uniqueIndex;not null"`
	Reference uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	Status    string    `gorm:"default:'active'"`
	PinHash   string    `json:"-"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (w *Wallet) BeforeCreate(tx *gorm.DB) error {
	if w.Reference == uuid.Nil {
		w.Reference = uuid.New()
	}
	return nil
}

func (w *Wallet) HasPin() bool {
	return w.PinHash != ""
}

// Wallet statuses
const (
	WalletStatusActive = "active"
	WalletStatusLocked = "locked"
)

// Ledger entry directions
const (
	DirectionCredit = "CREDIT"
	DirectionDebit  = "DEBIT"
)

// Ledger entry lifecycle statuses. COMPLETED entries count toward the
// balance; PENDING credits are locked funds, not yet spendable.
const (
	TxStatusPending   = "PENDING"
	TxStatusCompleted = "COMPLETED"
	TxStatusFailed    = "FAILED"
	TxStatusRejected  = "REJECTED"
)

// Source tags. The ledger stores these for statements only and never
// interprets them, except LOAN_LOCK which marks reserved loan principal.
const (
	SourceLoanLock      = "LOAN_LOCK"
	SourceLoanDisbursal = "LOAN_DISBURSAL"
	SourceEMIPayment    = "EMI_PAYMENT"
	SourceTransfer      = "TRANSFER"
	SourceGatewayTopup  = "GATEWAY_TOPUP"
	SourceSignupBonus   = "SIGNUP_BONUS"
	SourceReferralBonus = "REFERRAL_BONUS"
	SourceCashback      = "CASHBACK"
)

// WalletTransaction is one immutable ledger entry. Entries in COMPLETED or
// REJECTED state are never mutated again.
type WalletTransaction struct {
	ID          uint            `gorm:"primarykey"`
	WalletID    uint            `gorm:"index;not null"`
	Direction   string          `gorm:"not null"`
	Amount      decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	Status      string          `gorm:"not null;default:'COMPLETED'"`
	SourceTag   string          `gorm:"index"`
	SourceID    *uint           // counterparty or originating record id
	Description string
	Metadata    JSON `gorm:"type:jsonb"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
