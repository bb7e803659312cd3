package loan

import (
	domainErrors "kosh/internal/errors"
	"kosh/internal/models"
)

// transitions is the loan state machine. The happy path is linear;
// CANCELLED is reachable from every state before DISBURSED, REJECTED only
// up to FORM_SUBMITTED (administrative review ends at approval; unwinding
// an approved loan goes through Cancel). FORM_SUBMITTED can fall back to
// KYC_SENT when the KYC link is resent. Instant-eligible loans are
// created directly in APPROVED and never transition through the early
// states.
var transitions = map[string][]string{
	models.LoanPreview:       {models.LoanPending, models.LoanCancelled, models.LoanRejected},
	models.LoanPending:       {models.LoanProceeded, models.LoanCancelled, models.LoanRejected},
	models.LoanProceeded:     {models.LoanKYCSent, models.LoanCancelled, models.LoanRejected},
	models.LoanKYCSent:       {models.LoanFormSubmitted, models.LoanCancelled, models.LoanRejected},
	models.LoanFormSubmitted: {models.LoanApproved, models.LoanKYCSent, models.LoanCancelled, models.LoanRejected},
	models.LoanApproved:      {models.LoanDisbursed, models.LoanCancelled},
	models.LoanDisbursed:     {models.LoanClosed},
	models.LoanClosed:        {},
	models.LoanCancelled:     {},
	models.LoanRejected:      {},
}

// CanTransition reports whether the state machine permits from -> to.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func transition(l *models.Loan, to string) error {
	if !CanTransition(l.Status, to) {
		return domainErrors.ErrInvalidStateTransition
	}
	l.Status = to
	return nil
}
