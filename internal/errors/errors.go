// Package errors defines the domain error taxonomy shared across services
// and mapped to HTTP statuses at the handler layer.
package errors

import "net/http"

type DomainError struct {
	Code    string
	Message string
	Status  int
}

func (e *DomainError) Error() string {
	return e.Message
}

// HTTPStatus returns the status for the error, defaulting to 500.
func (e *DomainError) HTTPStatus() int {
	if e.Status == 0 {
		return http.StatusInternalServerError
	}
	return e.Status
}

// Validation builds a 400 error carrying the verbatim message.
func Validation(message string) *DomainError {
	return &DomainError{Code: "VALIDATION_ERROR", Message: message, Status: http.StatusBadRequest}
}

// NotFound builds a 404 error for a missing entity.
func NotFound(entity string) *DomainError {
	return &DomainError{Code: "NOT_FOUND", Message: entity + " not found", Status: http.StatusNotFound}
}

var (
	ErrUnauthorized = &DomainError{
		Code:    "UNAUTHORIZED",
		Message: "authentication required",
		Status:  http.StatusUnauthorized,
	}
	ErrForbidden = &DomainError{
		Code:    "FORBIDDEN",
		Message: "not allowed to perform this action",
		Status:  http.StatusForbidden,
	}
	ErrAlreadyProcessed = &DomainError{
		Code:    "ALREADY_PROCESSED",
		Message: "record already processed",
		Status:  http.StatusConflict,
	}
)
