package errors

import "net/http"

var (
	ErrLoanNotFound = &DomainError{
		Code:    "LOAN_NOT_FOUND",
		Message: "loan not found",
		Status:  http.StatusNotFound,
	}
	ErrInvalidStateTransition = &DomainError{
		Code:    "INVALID_STATE_TRANSITION",
		Message: "loan is not in the required state for this action",
		Status:  http.StatusConflict,
	}
	ErrActiveLoanExists = &DomainError{
		Code:    "ACTIVE_LOAN_EXISTS",
		Message: "an active loan already exists for this user",
		Status:  http.StatusConflict,
	}
	ErrLoanCooldown = &DomainError{
		Code:    "LOAN_COOLDOWN",
		Message: "previous loan was disbursed too recently",
		Status:  http.StatusConflict,
	}
	ErrPlanNotEligible = &DomainError{
		Code:    "PLAN_NOT_ELIGIBLE",
		Message: "repay the lower plan fully before applying for this one",
		Status:  http.StatusForbidden,
	}
	ErrInsufficientPoolFunds = &DomainError{
		Code:    "INSUFFICIENT_POOL_FUNDS",
		Message: "lending pool has insufficient available capital",
		Status:  http.StatusUnprocessableEntity,
	}
	ErrAllocationNotFound = &DomainError{
		Code:    "ALLOCATION_NOT_FOUND",
		Message: "loan allocation not found",
		Status:  http.StatusNotFound,
	}
	ErrNoPendingInstallment = &DomainError{
		Code:    "NO_PENDING_INSTALLMENT",
		Message: "loan has no pending installment",
		Status:  http.StatusConflict,
	}
)
