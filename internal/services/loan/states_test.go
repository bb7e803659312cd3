package loan

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"kosh/internal/models"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to string }{
		{models.LoanPreview, models.LoanPending},
		{models.LoanPending, models.LoanProceeded},
		{models.LoanProceeded, models.LoanKYCSent},
		{models.LoanKYCSent, models.LoanFormSubmitted},
		{models.LoanFormSubmitted, models.LoanApproved},
		{models.LoanFormSubmitted, models.LoanKYCSent},
		{models.LoanApproved, models.LoanDisbursed},
		{models.LoanDisbursed, models.LoanClosed},
		{models.LoanPreview, models.LoanCancelled},
		{models.LoanApproved, models.LoanCancelled},
		{models.LoanFormSubmitted, models.LoanRejected},
	}
	for _, tt := range allowed {
		assert.True(t, CanTransition(tt.from, tt.to), "%s -> %s should be allowed", tt.from, tt.to)
	}

	denied := []struct{ from, to string }{
		{models.LoanPreview, models.LoanProceeded},
		{models.LoanPreview, models.LoanApproved},
		{models.LoanPending, models.LoanKYCSent},
		{models.LoanKYCSent, models.LoanApproved},
		{models.LoanApproved, models.LoanRejected},
		{models.LoanDisbursed, models.LoanCancelled},
		{models.LoanDisbursed, models.LoanRejected},
		{models.LoanClosed, models.LoanDisbursed},
		{models.LoanCancelled, models.LoanPending},
		{models.LoanRejected, models.LoanPreview},
		{models.LoanApproved, models.LoanPreview},
	}
	for _, tt := range denied {
		assert.False(t, CanTransition(tt.from, tt.to), "%s -> %s should be denied", tt.from, tt.to)
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, terminal := range []string{models.LoanClosed, models.LoanCancelled, models.LoanRejected} {
		assert.Empty(t, transitions[terminal], "%s must be terminal", terminal)
	}
}
