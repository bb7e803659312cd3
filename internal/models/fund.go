package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FundPool is the operator's lendable capital. A single row exists.
// Invariant: Available = TotalCapital - reserved allocations - Disbursed.
type FundPool struct {
	ID           uint            `gorm:"primarykey"`
	TotalCapital decimal.Decimal `gorm:"type:numeric(16,2);not null"`
	Available    decimal.Decimal `gorm:"type:numeric(16,2);not null"`
	Disbursed    decimal.Decimal `gorm:"type:numeric(16,2);not null;default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Allocation statuses
const (
	AllocationReserved  = "RESERVED"
	AllocationDisbursed = "DISBURSED"
	AllocationAdjusted  = "ADJUSTED"
	AllocationCancelled = "CANCELLED"
)

// LoanAllocation reserves pool capital against one loan at approval time.
// ActualDisbursed is set exactly once, at release.
type LoanAllocation struct {
	ID              uint            `gorm:"primarykey"`
	LoanID          uint            `gorm:"uniqueIndex;not null"`
	UserID          uint            `gorm:"index;not null"`
	AllocatedAmount decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	ActualDisbursed decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0"`
	Status          string          `gorm:"not null;default:'RESERVED'"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
