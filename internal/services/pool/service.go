// Package pool manages the operator's finite lendable capital and the
// per-loan allocations reserved against it.
//
// The tx-scoped functions (Reserve, Disburse, Adjust, Cancel) expect a
// PoolRepository bound to an open transaction; the loan engine calls them
// inside Store.Atomic so a reservation and the loan transition it belongs
// to commit or roll back together. The available figure is only ever
// updated under the pool row lock.
package pool

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	domainErrors "kosh/internal/errors"
	"kosh/internal/models"
	"kosh/internal/repositories"
)

// Reserve sets capital aside for an approved loan. Fails with
// ErrInsufficientPoolFunds when the pool cannot cover the amount, leaving
// the pool untouched.
func Reserve(ctx context.Context, repo repositories.PoolRepository, loanID, userID uint, amount decimal.Decimal) (*models.LoanAllocation, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, domainErrors.ErrInvalidAmount
	}
	p, err := repo.GetPoolForUpdate(ctx)
	if err != nil {
		return nil, err
	}
	if p.Available.LessThan(amount) {
		return nil, domainErrors.ErrInsufficientPoolFunds
	}

	allocation := &models.LoanAllocation{
		LoanID:          loanID,
		UserID:          userID,
		AllocatedAmount: amount,
		Status:          models.AllocationReserved,
	}
	if err := repo.CreateAllocation(allocation); err != nil {
		return nil, err
	}

	p.Available = p.Available.Sub(amount)
	if err := repo.UpdatePool(p); err != nil {
		return nil, err
	}
	return allocation, nil
}

// Disburse moves a reservation to DISBURSED and fixes actual_disbursed
// once and for all. When no allocation exists (loans predating the
// allocation ledger) one is synthesized in DISBURSED state so the audit
// trail stays continuous.
func Disburse(ctx context.Context, repo repositories.PoolRepository, loanID, userID uint, principal decimal.Decimal) (*models.LoanAllocation, error) {
	p, err := repo.GetPoolForUpdate(ctx)
	if err != nil {
		return nil, err
	}

	allocation, err := repo.GetAllocationByLoan(loanID)
	if errors.Is(err, repositories.ErrAllocationNotFound) {
		return synthesize(repo, p, loanID, userID, principal)
	}
	if err != nil {
		return nil, err
	}

	switch allocation.Status {
	case models.AllocationReserved, models.AllocationAdjusted:
	case models.AllocationDisbursed:
		return nil, domainErrors.ErrAlreadyProcessed
	default:
		return nil, domainErrors.ErrInvalidStateTransition
	}

	actual := allocation.AllocatedAmount
	allocation.ActualDisbursed = actual
	allocation.Status = models.AllocationDisbursed
	if err := repo.UpdateAllocation(allocation); err != nil {
		return nil, err
	}

	// The reserved amount already left Available at reservation time;
	// moving it to Disbursed keeps available = total - reserved - disbursed.
	p.Disbursed = p.Disbursed.Add(actual)
	if err := repo.UpdatePool(p); err != nil {
		return nil, err
	}
	return allocation, nil
}

func synthesize(repo repositories.PoolRepository, p *models.FundPool, loanID, userID uint, principal decimal.Decimal) (*models.LoanAllocation, error) {
	allocation := &models.LoanAllocation{
		LoanID:          loanID,
		UserID:          userID,
		AllocatedAmount: principal,
		ActualDisbursed: principal,
		Status:          models.AllocationDisbursed,
	}
	if err := repo.CreateAllocation(allocation); err != nil {
		return nil, err
	}
	p.Available = p.Available.Sub(principal)
	p.Disbursed = p.Disbursed.Add(principal)
	if err := repo.UpdatePool(p); err != nil {
		return nil, err
	}
	logrus.WithField("loan_id", loanID).Warn("synthesized allocation for loan without reservation")
	return allocation, nil
}

// Adjust changes a reservation before release. Raising it requires
// available capital; lowering it returns the difference to the pool. The
// loan principal is clamped to the adjusted amount at release.
func Adjust(ctx context.Context, repo repositories.PoolRepository, allocationID uint, newAmount decimal.Decimal) (*models.LoanAllocation, error) {
	if newAmount.LessThanOrEqual(decimal.Zero) {
		return nil, domainErrors.ErrInvalidAmount
	}
	allocation, err := repo.GetAllocation(allocationID)
	if err != nil {
		if errors.Is(err, repositories.ErrAllocationNotFound) {
			return nil, domainErrors.ErrAllocationNotFound
		}
		return nil, err
	}
	if allocation.Status != models.AllocationReserved && allocation.Status != models.AllocationAdjusted {
		return nil, domainErrors.ErrInvalidStateTransition
	}

	p, err := repo.GetPoolForUpdate(ctx)
	if err != nil {
		return nil, err
	}
	delta := newAmount.Sub(allocation.AllocatedAmount)
	if delta.GreaterThan(p.Available) {
		return nil, domainErrors.ErrInsufficientPoolFunds
	}

	allocation.AllocatedAmount = newAmount
	allocation.Status = models.AllocationAdjusted
	if err := repo.UpdateAllocation(allocation); err != nil {
		return nil, err
	}
	p.Available = p.Available.Sub(delta)
	if err := repo.UpdatePool(p); err != nil {
		return nil, err
	}
	return allocation, nil
}

// Cancel releases a reservation back to the pool when a loan is cancelled
// or rejected after approval. A loan without an allocation is a no-op.
func Cancel(ctx context.Context, repo repositories.PoolRepository, loanID uint) error {
	allocation, err := repo.GetAllocationByLoan(loanID)
	if errors.Is(err, repositories.ErrAllocationNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if allocation.Status != models.AllocationReserved && allocation.Status != models.AllocationAdjusted {
		return nil
	}

	p, err := repo.GetPoolForUpdate(ctx)
	if err != nil {
		return err
	}
	allocation.Status = models.AllocationCancelled
	if err := repo.UpdateAllocation(allocation); err != nil {
		return err
	}
	p.Available = p.Available.Add(allocation.AllocatedAmount)
	return repo.UpdatePool(p)
}

// Service is the admin-facing surface over the pool.
type Service interface {
	Status(ctx context.Context) (*models.FundPool, error)
	SetCapital(ctx context.Context, total decimal.Decimal) (*models.FundPool, error)
	AdjustAllocation(ctx context.Context, allocationID uint, newAmount decimal.Decimal) (*models.LoanAllocation, error)
	AllocationForLoan(ctx context.Context, loanID uint) (*models.LoanAllocation, error)
}

type service struct {
	store repositories.Store
}

func NewService(store repositories.Store) Service {
	return &service{store: store}
}

func (s *service) Status(ctx context.Context) (*models.FundPool, error) {
	p, err := s.store.Pool().GetPool()
	if err != nil {
		if errors.Is(err, repositories.ErrPoolNotFound) {
			return nil, domainErrors.NotFound("fund pool")
		}
		return nil, err
	}
	return p, nil
}

// SetCapital raises or lowers the operator's committed capital. The new
// total must still cover everything reserved or disbursed.
func (s *service) SetCapital(ctx context.Context, total decimal.Decimal) (*models.FundPool, error) {
	if total.LessThan(decimal.Zero) {
		return nil, domainErrors.ErrInvalidAmount
	}
	var updated *models.FundPool
	err := s.store.Atomic(ctx, func(st repositories.Store) error {
		p, err := st.Pool().GetPoolForUpdate(ctx)
		if err != nil {
			return fmt.Errorf("fund pool missing, seed it first: %w", err)
		}
		committed := p.TotalCapital.Sub(p.Available) // reserved + disbursed
		if total.LessThan(committed) {
			return domainErrors.Validation("total capital cannot drop below committed funds")
		}
		p.Available = p.Available.Add(total.Sub(p.TotalCapital))
		p.TotalCapital = total
		updated = p
		return st.Pool().UpdatePool(p)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) AdjustAllocation(ctx context.Context, allocationID uint, newAmount decimal.Decimal) (*models.LoanAllocation, error) {
	var allocation *models.LoanAllocation
	err := s.store.Atomic(ctx, func(st repositories.Store) error {
		var err error
		allocation, err = Adjust(ctx, st.Pool(), allocationID, newAmount)
		return err
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"allocation_id": allocationID,
		"new_amount":    newAmount,
	}).Info("allocation adjusted")
	return allocation, nil
}

func (s *service) AllocationForLoan(ctx context.Context, loanID uint) (*models.LoanAllocation, error) {
	allocation, err := s.store.Pool().GetAllocationByLoan(loanID)
	if err != nil {
		if errors.Is(err, repositories.ErrAllocationNotFound) {
			return nil, domainErrors.ErrAllocationNotFound
		}
		return nil, err
	}
	return allocation, nil
}
