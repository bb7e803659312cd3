package loan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	domainErrors "kosh/internal/errors"
	"kosh/internal/models"
	"kosh/internal/repositories"
	"kosh/internal/services/gateway"
)

// Repay collects the earliest pending installment from the borrower's
// wallet. Wallet-mode collection requires the transaction PIN.
func (s *service) Repay(ctx context.Context, loanID, userID uint, pin string) (*models.LoanRepayment, error) {
	if err := s.wallets.VerifyPin(ctx, userID, pin); err != nil {
		return nil, err
	}
	return s.collectFromWallet(ctx, loanID, userID, models.PaymentModeWallet, "")
}

// RepayOnline charges the card for the installment amount, credits the
// proceeds into the borrower's wallet and settles the installment from
// there, so the ledger shows the full money trail.
func (s *service) RepayOnline(ctx context.Context, loanID, userID uint, card gateway.Card) (*models.LoanRepayment, error) {
	if s.gateway == nil {
		return nil, domainErrors.Validation("online payment is not configured")
	}
	l, err := s.Get(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if l.UserID != userID {
		return nil, domainErrors.ErrForbidden
	}
	if l.Status != models.LoanDisbursed {
		return nil, domainErrors.ErrInvalidStateTransition
	}
	inst, err := s.store.Loans().EarliestPendingRepayment(ctx, loanID)
	if err != nil {
		if errors.Is(err, repositories.ErrRepaymentNotFound) {
			return nil, domainErrors.ErrNoPendingInstallment
		}
		return nil, err
	}

	chargeRef, err := s.gateway.Charge(ctx, gateway.ChargeRequest{
		Amount:      inst.Amount,
		Card:        card,
		Description: fmt.Sprintf("EMI for loan %d", loanID),
	})
	if err != nil {
		return nil, domainErrors.Validation("card charge failed")
	}

	w, err := s.wallets.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	topup := &models.WalletTransaction{
		WalletID:    w.ID,
		Amount:      inst.Amount,
		Status:      models.TxStatusCompleted,
		SourceTag:   models.SourceGatewayTopup,
		SourceID:    &inst.ID,
		Description: "card payment " + chargeRef,
	}
	if err := s.store.Wallets().AppendCredit(ctx, topup); err != nil {
		logrus.WithFields(logrus.Fields{
			"loan_id":    loanID,
			"charge_ref": chargeRef,
			"error":      err.Error(),
		}).Error("charge succeeded but wallet topup failed")
		return nil, err
	}

	return s.collectFromWallet(ctx, loanID, userID, models.PaymentModeGateway, chargeRef)
}

func (s *service) collectFromWallet(ctx context.Context, loanID, userID uint, mode, chargeRef string) (*models.LoanRepayment, error) {
	var paid *models.LoanRepayment
	err := s.store.Atomic(ctx, func(st repositories.Store) error {
		l, err := st.Loans().GetByIDForUpdate(ctx, loanID)
		if err != nil {
			if errors.Is(err, repositories.ErrLoanNotFound) {
				return domainErrors.ErrLoanNotFound
			}
			return err
		}
		if l.UserID != userID {
			return domainErrors.ErrForbidden
		}
		if l.Status != models.LoanDisbursed {
			return domainErrors.ErrInvalidStateTransition
		}

		inst, err := st.Loans().EarliestPendingRepayment(ctx, l.ID)
		if err != nil {
			if errors.Is(err, repositories.ErrRepaymentNotFound) {
				return domainErrors.ErrNoPendingInstallment
			}
			return err
		}

		borrower, err := st.Wallets().GetByUserID(userID)
		if err != nil {
			return err
		}
		operator, err := st.Wallets().GetByUserID(s.cfg.SystemUserID)
		if err != nil {
			return fmt.Errorf("operator wallet missing: %w", err)
		}

		description := fmt.Sprintf("EMI for loan %d", l.ID)
		if chargeRef != "" {
			description += " via " + chargeRef
		}
		debit := &models.WalletTransaction{
			WalletID:    borrower.ID,
			Amount:      inst.Amount,
			Status:      models.TxStatusCompleted,
			SourceTag:   models.SourceEMIPayment,
			SourceID:    &inst.ID,
			Description: description,
		}
		credit := &models.WalletTransaction{
			WalletID:    operator.ID,
			Amount:      inst.Amount,
			Status:      models.TxStatusCompleted,
			SourceTag:   models.SourceEMIPayment,
			SourceID:    &inst.ID,
			Description: description,
		}
		if err := st.Wallets().Transfer(ctx, debit, credit); err != nil {
			if errors.Is(err, repositories.ErrInsufficientFunds) {
				return domainErrors.ErrInsufficientFunds
			}
			return err
		}

		if err := s.settleInstallment(st, l, inst, mode); err != nil {
			return err
		}
		paid = inst
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"loan_id":      loanID,
		"repayment_id": paid.ID,
		"amount":       paid.Amount,
		"mode":         mode,
	}).Info("installment collected")
	return paid, nil
}

// ManualCollect records a field collection awaiting verification. No
// money moves on the ledger; the cash was taken off-platform.
func (s *service) ManualCollect(ctx context.Context, loanID, agentID uint) (*models.LoanRepayment, error) {
	var marked *models.LoanRepayment
	err := s.store.Atomic(ctx, func(st repositories.Store) error {
		l, err := st.Loans().GetByIDForUpdate(ctx, loanID)
		if err != nil {
			if errors.Is(err, repositories.ErrLoanNotFound) {
				return domainErrors.ErrLoanNotFound
			}
			return err
		}
		if l.Status != models.LoanDisbursed {
			return domainErrors.ErrInvalidStateTransition
		}
		inst, err := st.Loans().EarliestPendingRepayment(ctx, l.ID)
		if err != nil {
			if errors.Is(err, repositories.ErrRepaymentNotFound) {
				return domainErrors.ErrNoPendingInstallment
			}
			return err
		}
		inst.Status = models.RepaymentManualVerification
		inst.PaymentMode = models.PaymentModeManual
		if err := st.Loans().UpdateRepayment(inst); err != nil {
			return err
		}
		marked = inst
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(agentID, "MANUAL_COLLECT", fmt.Sprintf("installment %d of loan %d collected in the field", marked.ID, loanID))
	return marked, nil
}

// SettleManualCollect is the second phase of a manual collection: approve
// marks the installment PAID, decline returns it to PENDING.
func (s *service) SettleManualCollect(ctx context.Context, repaymentID, adminID uint, approve bool) (*models.LoanRepayment, error) {
	var settled *models.LoanRepayment
	err := s.store.Atomic(ctx, func(st repositories.Store) error {
		inst, err := st.Loans().GetRepayment(repaymentID)
		if err != nil {
			if errors.Is(err, repositories.ErrRepaymentNotFound) {
				return domainErrors.NotFound("loan repayment")
			}
			return err
		}
		if inst.Status != models.RepaymentManualVerification {
			return domainErrors.ErrAlreadyProcessed
		}

		if !approve {
			inst.Status = models.RepaymentPending
			inst.PaymentMode = ""
			if err := st.Loans().UpdateRepayment(inst); err != nil {
				return err
			}
			settled = inst
			return nil
		}

		l, err := st.Loans().GetByIDForUpdate(ctx, inst.LoanID)
		if err != nil {
			return err
		}
		if err := s.settleInstallment(st, l, inst, models.PaymentModeManual); err != nil {
			return err
		}
		settled = inst
		return nil
	})
	if err != nil {
		return nil, err
	}

	verdict := "declined"
	if approve {
		verdict = "approved"
	}
	s.record(adminID, "MANUAL_COLLECT_SETTLE", fmt.Sprintf("manual collection %d %s", repaymentID, verdict))
	return settled, nil
}

// settleInstallment marks the installment PAID, rolls the amount into the
// loan's paid total and closes the loan once everything is collected.
func (s *service) settleInstallment(st repositories.Store, l *models.Loan, inst *models.LoanRepayment, mode string) error {
	now := time.Now()
	inst.Status = models.RepaymentPaid
	inst.PaymentMode = mode
	inst.PaidAt = &now
	if err := st.Loans().UpdateRepayment(inst); err != nil {
		return err
	}

	l.PaidAmount = l.PaidAmount.Add(inst.Amount)
	if l.FullyRepaid() {
		if err := transition(l, models.LoanClosed); err != nil {
			return err
		}
		l.ClosedAt = &now
		logrus.WithField("loan_id", l.ID).Info("loan fully repaid and closed")
	}
	return st.Loans().Update(l)
}
