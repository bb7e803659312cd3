package loan

import (
	"context"

	"kosh/internal/models"
	"kosh/internal/repositories"
	"kosh/internal/services/pool"
)

// Thin adapters over the pool primitives so every call site passes the
// tx-bound repository and the loan's identity consistently.

func poolReserve(ctx context.Context, st repositories.Store, l *models.Loan) (*models.LoanAllocation, error) {
	return pool.Reserve(ctx, st.Pool(), l.ID, l.UserID, l.Amount)
}

func poolDisburse(ctx context.Context, st repositories.Store, l *models.Loan) (*models.LoanAllocation, error) {
	return pool.Disburse(ctx, st.Pool(), l.ID, l.UserID, l.Amount)
}

func poolCancel(ctx context.Context, st repositories.Store, loanID uint) error {
	return pool.Cancel(ctx, st.Pool(), loanID)
}
