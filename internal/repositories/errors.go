package repositories

import "errors"

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrDuplicateEmail      = errors.New("email already registered")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrTransactionNotFound = errors.New("wallet transaction not found")
	ErrLoanNotFound        = errors.New("loan not found")
	ErrRepaymentNotFound   = errors.New("loan repayment not found")
	ErrAllocationNotFound  = errors.New("loan allocation not found")
	ErrPlanNotFound        = errors.New("loan plan not found")
	ErrPoolNotFound        = errors.New("fund pool not configured")
	ErrInsufficientFunds   = errors.New("insufficient wallet balance")
	ErrStatusConflict      = errors.New("record not in expected status")
)
