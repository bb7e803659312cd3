package errors

import "net/http"

var (
	ErrInsufficientFunds = &DomainError{
		Code:    "INSUFFICIENT_FUNDS",
		Message: "insufficient wallet balance",
		Status:  http.StatusUnprocessableEntity,
	}
	ErrInvalidAmount = &DomainError{
		Code:    "INVALID_AMOUNT",
		Message: "amount must be positive",
		Status:  http.StatusBadRequest,
	}
	ErrWalletNotFound = &DomainError{
		Code:    "WALLET_NOT_FOUND",
		Message: "wallet not found",
		Status:  http.StatusNotFound,
	}
	ErrPinNotSet = &DomainError{
		Code:    "PIN_NOT_SET",
		Message: "transaction PIN has not been set",
		Status:  http.StatusBadRequest,
	}
	ErrPinMismatch = &DomainError{
		Code:    "PIN_MISMATCH",
		Message: "incorrect transaction PIN",
		Status:  http.StatusForbidden,
	}
)
