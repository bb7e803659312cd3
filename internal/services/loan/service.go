// Package loan implements the loan lifecycle: application, approval with
// pool reservation, disbursal into the wallet ledger, and repayment
// collection. Every money-moving step runs in one Store.Atomic
// transaction with the loan row locked.
package loan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	domainErrors "kosh/internal/errors"
	"kosh/internal/models"
	"kosh/internal/repositories"
	"kosh/internal/services/audit"
	"kosh/internal/services/gateway"
	"kosh/internal/services/plan"
	"kosh/internal/services/schedule"
	"kosh/internal/services/wallet"
	"kosh/internal/utils"
)

type Service interface {
	Apply(ctx context.Context, req ApplyRequest) (*models.Loan, *Quote, error)
	Get(ctx context.Context, loanID uint) (*models.Loan, error)
	List(ctx context.Context, status string, limit, offset int) ([]models.Loan, int64, error)
	Schedule(ctx context.Context, loanID uint) ([]models.LoanRepayment, error)

	Confirm(ctx context.Context, loanID, userID uint) (*models.Loan, error)
	Cancel(ctx context.Context, loanID, userID uint) (*models.Loan, error)
	SubmitKYC(ctx context.Context, loanID, userID uint, data models.JSON) (*models.Loan, error)
	SubmitKYCByToken(ctx context.Context, token string, data models.JSON) (*models.Loan, error)

	Proceed(ctx context.Context, loanID, adminID uint) (*models.Loan, error)
	SendKYC(ctx context.Context, loanID, adminID uint) (string, error)
	Approve(ctx context.Context, loanID, adminID uint) (*models.Loan, error)
	Release(ctx context.Context, loanID, adminID uint) (*models.Loan, error)
	Reject(ctx context.Context, loanID, adminID uint, reason string) (*models.Loan, error)

	Repay(ctx context.Context, loanID, userID uint, pin string) (*models.LoanRepayment, error)
	RepayOnline(ctx context.Context, loanID, userID uint, card gateway.Card) (*models.LoanRepayment, error)
	ManualCollect(ctx context.Context, loanID, agentID uint) (*models.LoanRepayment, error)
	SettleManualCollect(ctx context.Context, repaymentID, adminID uint, approve bool) (*models.LoanRepayment, error)
}

type service struct {
	store   repositories.Store
	wallets wallet.Service
	tokens  TokenStore
	gateway PaymentGateway
	audit   audit.Service
	cfg     Config
}

func NewService(store repositories.Store, wallets wallet.Service, tokens TokenStore, gw PaymentGateway, auditSvc audit.Service, cfg Config) Service {
	if store == nil {
		panic("store is required")
	}
	if wallets == nil {
		panic("wallet service is required")
	}
	if tokens == nil {
		panic("token store is required")
	}
	return &service{
		store:   store,
		wallets: wallets,
		tokens:  tokens,
		gateway: gw,
		audit:   auditSvc,
		cfg:     cfg.withDefaults(),
	}
}

func (s *service) Apply(ctx context.Context, req ApplyRequest) (*models.Loan, *Quote, error) {
	lp, err := s.activePlan(req.PlanID)
	if err != nil {
		return nil, nil, err
	}

	principal := req.Amount
	if principal.IsZero() {
		principal = lp.Amount
	}
	if principal.LessThanOrEqual(decimal.Zero) {
		return nil, nil, domainErrors.ErrInvalidAmount
	}
	if principal.GreaterThan(lp.Amount) {
		return nil, nil, domainErrors.Validation("amount exceeds the plan principal")
	}

	bucket, err := plan.ResolveBucket(lp, req.TenureDays, req.Frequency)
	if err != nil {
		return nil, nil, err
	}

	if err := s.checkGuards(req.UserID, lp); err != nil {
		return nil, nil, err
	}

	quote, err := buildQuote(principal, bucket, req.Frequency)
	if err != nil {
		return nil, nil, err
	}

	l := &models.Loan{
		UserID:         req.UserID,
		PlanID:         &lp.ID,
		Amount:         principal,
		TenureDays:     bucket.TenureDays,
		Frequency:      req.Frequency,
		Status:         models.LoanPreview,
		KYCData:        req.KYCData,
		FeeAmount:      quote.FeeAmount,
		InterestAmount: quote.InterestAmount,
		GSTAmount:      quote.GSTAmount,
		TotalPayable:   quote.TotalPayable,
		AppliedAt:      time.Now(),
	}

	if s.instantEligible(lp, principal) {
		// Fast path: the loan is born APPROVED with its capital reserved
		// and the principal locked in the wallet, skipping the manual
		// review states. KYC falls back to the user's profile.
		if len(l.KYCData) == 0 {
			l.KYCData = s.profileKYC(req.UserID)
		}
		err = s.store.Atomic(ctx, func(st repositories.Store) error {
			now := time.Now()
			l.Status = models.LoanApproved
			l.ApprovedAt = &now
			if err := st.Loans().Create(l); err != nil {
				return err
			}
			if _, err := poolReserve(ctx, st, l); err != nil {
				return err
			}
			return s.lockPrincipal(ctx, st, l)
		})
	} else {
		err = s.store.Loans().Create(l)
	}
	if err != nil {
		return nil, nil, err
	}

	logrus.WithFields(logrus.Fields{
		"loan_id":   l.ID,
		"user_id":   l.UserID,
		"plan_id":   lp.ID,
		"principal": principal,
		"status":    l.Status,
	}).Info("loan application created")
	return l, quote, nil
}

func (s *service) Get(ctx context.Context, loanID uint) (*models.Loan, error) {
	l, err := s.store.Loans().GetByID(loanID)
	if err != nil {
		if errors.Is(err, repositories.ErrLoanNotFound) {
			return nil, domainErrors.ErrLoanNotFound
		}
		return nil, err
	}
	return l, nil
}

func (s *service) List(ctx context.Context, status string, limit, offset int) ([]models.Loan, int64, error) {
	return s.store.Loans().List(status, limit, offset)
}

func (s *service) Schedule(ctx context.Context, loanID uint) ([]models.LoanRepayment, error) {
	if _, err := s.Get(ctx, loanID); err != nil {
		return nil, err
	}
	return s.store.Loans().ListRepayments(loanID)
}

func (s *service) Confirm(ctx context.Context, loanID, userID uint) (*models.Loan, error) {
	return s.ownerTransition(ctx, loanID, userID, models.LoanPending, func(l *models.Loan) error {
		if len(l.KYCData) == 0 {
			return domainErrors.Validation("KYC form data is required before confirming")
		}
		return nil
	})
}

func (s *service) Proceed(ctx context.Context, loanID, adminID uint) (*models.Loan, error) {
	l, err := s.adminTransition(ctx, loanID, models.LoanProceeded, nil)
	if err != nil {
		return nil, err
	}
	s.record(adminID, "LOAN_PROCEED", fmt.Sprintf("loan %d taken up for review", loanID))
	return l, nil
}

// SendKYC moves the loan to KYC_SENT, locks the principal as a PENDING
// ledger credit, and issues a one-time submission token. Resending is
// allowed on a KYC_SENT or FORM_SUBMITTED loan and reissues a token
// without placing a second lock.
func (s *service) SendKYC(ctx context.Context, loanID, adminID uint) (string, error) {
	l, err := s.Get(ctx, loanID)
	if err != nil {
		return "", err
	}

	if l.Status != models.LoanKYCSent {
		err = s.store.Atomic(ctx, func(st repositories.Store) error {
			locked, err := st.Loans().GetByIDForUpdate(ctx, loanID)
			if err != nil {
				return err
			}
			if err := transition(locked, models.LoanKYCSent); err != nil {
				return err
			}
			// A resend after form submission must not stack a second
			// principal lock.
			if locked.LockTransactionID == nil {
				return s.lockPrincipal(ctx, st, locked)
			}
			return st.Loans().Update(locked)
		})
		if err != nil {
			return "", err
		}
	}

	token, err := utils.GenerateSecureCode()
	if err != nil {
		return "", fmt.Errorf("failed to generate kyc token: %w", err)
	}
	if err := s.tokens.StoreKYCToken(ctx, token, loanID, s.cfg.KYCTokenTTL); err != nil {
		return "", fmt.Errorf("failed to store kyc token: %w", err)
	}

	s.record(adminID, "LOAN_KYC_SENT", fmt.Sprintf("kyc link issued for loan %d", loanID))
	return token, nil
}

func (s *service) SubmitKYC(ctx context.Context, loanID, userID uint, data models.JSON) (*models.Loan, error) {
	return s.ownerTransition(ctx, loanID, userID, models.LoanFormSubmitted, func(l *models.Loan) error {
		l.KYCData = data
		return nil
	})
}

// SubmitKYCByToken redeems a one-time token. The token itself proves
// possession of the KYC link, so no authenticated user is required.
func (s *service) SubmitKYCByToken(ctx context.Context, token string, data models.JSON) (*models.Loan, error) {
	loanID, err := s.tokens.ConsumeKYCToken(ctx, token)
	if err != nil {
		return nil, domainErrors.ErrUnauthorized
	}
	return s.adminTransition(ctx, loanID, models.LoanFormSubmitted, func(l *models.Loan) error {
		l.KYCData = data
		return nil
	})
}

func (s *service) Approve(ctx context.Context, loanID, adminID uint) (*models.Loan, error) {
	var approved *models.Loan
	err := s.store.Atomic(ctx, func(st repositories.Store) error {
		l, err := st.Loans().GetByIDForUpdate(ctx, loanID)
		if err != nil {
			if errors.Is(err, repositories.ErrLoanNotFound) {
				return domainErrors.ErrLoanNotFound
			}
			return err
		}
		if err := transition(l, models.LoanApproved); err != nil {
			return err
		}
		if _, err := poolReserve(ctx, st, l); err != nil {
			return err
		}
		now := time.Now()
		l.ApprovedAt = &now
		if err := st.Loans().Update(l); err != nil {
			return err
		}
		approved = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(adminID, "LOAN_APPROVE", fmt.Sprintf("loan %d approved, %s reserved", loanID, approved.Amount))
	return approved, nil
}

// Release disburses an approved loan: the allocation is fixed, the
// principal lock becomes spendable, the operator wallet is debited and the
// repayment schedule is generated, all in one transaction. When the
// allocation was adjusted below the nominal principal the loan is clamped
// down to the allocated amount.
func (s *service) Release(ctx context.Context, loanID, adminID uint) (*models.Loan, error) {
	var released *models.Loan
	err := s.store.Atomic(ctx, func(st repositories.Store) error {
		l, err := st.Loans().GetByIDForUpdate(ctx, loanID)
		if err != nil {
			if errors.Is(err, repositories.ErrLoanNotFound) {
				return domainErrors.ErrLoanNotFound
			}
			return err
		}
		if l.Status != models.LoanApproved {
			return domainErrors.ErrInvalidStateTransition
		}

		allocation, err := poolDisburse(ctx, st, l)
		if err != nil {
			return err
		}
		if allocation.ActualDisbursed.LessThan(l.Amount) {
			l.Amount = allocation.ActualDisbursed
		}

		bucket, err := s.bucketFor(st, l)
		if err != nil {
			return err
		}
		now := time.Now()
		sched, err := schedule.Generate(schedule.Input{
			Principal:   l.Amount,
			TenureDays:  l.TenureDays,
			Frequency:   l.Frequency,
			Fees:        bucket.Fees,
			MonthlyRate: bucket.RateFor(l.Frequency),
			GSTRate:     bucket.GSTRate,
			DisbursedAt: now,
		})
		if err != nil {
			return err
		}

		if err := s.settlePrincipal(ctx, st, l); err != nil {
			return err
		}

		repayments := make([]models.LoanRepayment, len(sched.Installments))
		for i, inst := range sched.Installments {
			repayments[i] = models.LoanRepayment{
				LoanID:  l.ID,
				Amount:  inst.Amount,
				DueDate: inst.DueDate,
				Status:  models.RepaymentPending,
			}
		}
		if err := st.Loans().CreateRepayments(repayments); err != nil {
			return err
		}

		l.FeeAmount = sched.FeeAmount
		l.InterestAmount = sched.InterestAmount
		l.GSTAmount = sched.GSTAmount
		l.TotalPayable = sched.TotalPayable
		l.DisbursedAt = &now
		if err := transition(l, models.LoanDisbursed); err != nil {
			return err
		}
		if err := st.Loans().Update(l); err != nil {
			return err
		}
		released = l
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.payReferralBonus(ctx, released)
	s.record(adminID, "LOAN_RELEASE", fmt.Sprintf("loan %d disbursed, principal %s", loanID, released.Amount))
	logrus.WithFields(logrus.Fields{
		"loan_id":       released.ID,
		"user_id":       released.UserID,
		"principal":     released.Amount,
		"total_payable": released.TotalPayable,
	}).Info("loan disbursed")
	return released, nil
}

// settlePrincipal makes the principal spendable in the borrower's wallet
// and debits it from the operator wallet. A matching PENDING lock is
// completed in place; a clamped principal rejects the stale lock and
// credits the reduced amount fresh.
func (s *service) settlePrincipal(ctx context.Context, st repositories.Store, l *models.Loan) error {
	w, err := st.Wallets().GetByUserID(l.UserID)
	if err != nil {
		return err
	}

	credited := false
	if l.LockTransactionID != nil {
		lock, err := st.Wallets().GetTransactionByID(*l.LockTransactionID)
		if err != nil {
			return err
		}
		if lock.Amount.Equal(l.Amount) {
			if err := st.Wallets().UpdateTransactionStatus(ctx, lock.ID, models.TxStatusPending, models.TxStatusCompleted); err != nil {
				return err
			}
			credited = true
		} else {
			if err := st.Wallets().UpdateTransactionStatus(ctx, lock.ID, models.TxStatusPending, models.TxStatusRejected); err != nil {
				return err
			}
		}
	}
	if !credited {
		entry := &models.WalletTransaction{
			WalletID:    w.ID,
			Amount:      l.Amount,
			Status:      models.TxStatusCompleted,
			SourceTag:   models.SourceLoanDisbursal,
			SourceID:    &l.ID,
			Description: "loan principal",
		}
		if err := st.Wallets().AppendCredit(ctx, entry); err != nil {
			return err
		}
	}

	sysWallet, err := st.Wallets().GetByUserID(s.cfg.SystemUserID)
	if err != nil {
		return fmt.Errorf("operator wallet missing: %w", err)
	}
	debit := &models.WalletTransaction{
		WalletID:    sysWallet.ID,
		Amount:      l.Amount,
		Status:      models.TxStatusCompleted,
		SourceTag:   models.SourceLoanDisbursal,
		SourceID:    &l.ID,
		Description: "loan principal payout",
	}
	if err := st.Wallets().AppendDebit(ctx, debit); err != nil {
		if errors.Is(err, repositories.ErrInsufficientFunds) {
			return domainErrors.ErrInsufficientPoolFunds
		}
		return err
	}
	return nil
}

func (s *service) Cancel(ctx context.Context, loanID, userID uint) (*models.Loan, error) {
	var cancelled *models.Loan
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
		if err := s.exit(ctx, st, l, models.LoanCancelled); err != nil {
			return err
		}
		cancelled = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"loan_id": loanID, "user_id": userID}).Info("loan cancelled")
	return cancelled, nil
}

func (s *service) Reject(ctx context.Context, loanID, adminID uint, reason string) (*models.Loan, error) {
	var rejected *models.Loan
	err := s.store.Atomic(ctx, func(st repositories.Store) error {
		l, err := st.Loans().GetByIDForUpdate(ctx, loanID)
		if err != nil {
			if errors.Is(err, repositories.ErrLoanNotFound) {
				return domainErrors.ErrLoanNotFound
			}
			return err
		}
		if err := s.exit(ctx, st, l, models.LoanRejected); err != nil {
			return err
		}
		rejected = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(adminID, "LOAN_REJECT", fmt.Sprintf("loan %d rejected: %s", loanID, reason))
	return rejected, nil
}

// exit moves a pre-disbursal loan to a terminal state and unwinds
// whatever holds it placed: the pool reservation and the principal lock.
func (s *service) exit(ctx context.Context, st repositories.Store, l *models.Loan, to string) error {
	if err := transition(l, to); err != nil {
		return err
	}
	if err := poolCancel(ctx, st, l.ID); err != nil {
		return err
	}
	if l.LockTransactionID != nil {
		err := st.Wallets().UpdateTransactionStatus(ctx, *l.LockTransactionID, models.TxStatusPending, models.TxStatusRejected)
		if err != nil && !errors.Is(err, repositories.ErrStatusConflict) {
			return err
		}
	}
	return st.Loans().Update(l)
}

// lockPrincipal parks the principal in the borrower's wallet as a PENDING
// credit and records the entry on the loan. The lock is completed at
// release and rejected on cancellation.
func (s *service) lockPrincipal(ctx context.Context, st repositories.Store, l *models.Loan) error {
	w, err := st.Wallets().GetByUserID(l.UserID)
	if err != nil {
		return err
	}
	lock := &models.WalletTransaction{
		WalletID:    w.ID,
		Amount:      l.Amount,
		Status:      models.TxStatusPending,
		SourceTag:   models.SourceLoanLock,
		SourceID:    &l.ID,
		Description: "loan principal lock",
	}
	if err := st.Wallets().AppendCredit(ctx, lock); err != nil {
		return err
	}
	l.LockTransactionID = &lock.ID
	return st.Loans().Update(l)
}

// profileKYC snapshots the applicant's profile as the KYC payload for
// fast-path loans that skip the form.
func (s *service) profileKYC(userID uint) models.JSON {
	user, err := s.store.Users().GetByID(userID)
	if err != nil {
		return nil
	}
	return models.JSON{
		"name":    user.Name,
		"email":   user.Email,
		"phone":   user.Phone,
		"address": user.Address,
		"source":  "profile",
	}
}

// --- guards ---

func (s *service) activePlan(planID uint) (*models.LoanPlan, error) {
	lp, err := s.store.Plans().GetByID(planID)
	if err != nil {
		if errors.Is(err, repositories.ErrPlanNotFound) {
			return nil, domainErrors.NotFound("loan plan")
		}
		return nil, err
	}
	if !lp.Active {
		return nil, domainErrors.Validation("plan is no longer offered")
	}
	return lp, nil
}

func (s *service) checkGuards(userID uint, lp *models.LoanPlan) error {
	if _, err := s.store.Loans().ActiveLoanForUser(userID); err == nil {
		return domainErrors.ErrActiveLoanExists
	} else if !errors.Is(err, repositories.ErrLoanNotFound) {
		return err
	}

	// The cooldown only holds back users whose last disbursal was not
	// fully repaid; clearing the loan clears the waiting period.
	last, err := s.store.Loans().LatestDisbursedForUser(userID)
	if err == nil && !last.FullyRepaid() {
		cooldown := time.Duration(s.cfg.CooldownDays) * 24 * time.Hour
		if time.Since(*last.DisbursedAt) < cooldown {
			return domainErrors.ErrLoanCooldown
		}
	} else if err != nil && !errors.Is(err, repositories.ErrLoanNotFound) {
		return err
	}

	return s.checkPlanEligibility(userID, lp)
}

// checkPlanEligibility enforces the progressive ladder: a plan is open
// only to users who fully repaid a loan on the next lower plan. The
// lowest plan is open to everyone.
func (s *service) checkPlanEligibility(userID uint, lp *models.LoanPlan) error {
	lower, err := s.store.Plans().NextLowerPlan(lp.Amount)
	if errors.Is(err, repositories.ErrPlanNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	closed, err := s.store.Loans().HasClosedLoanWithPlan(userID, lower.ID)
	if err != nil {
		return err
	}
	if !closed {
		return domainErrors.ErrPlanNotEligible
	}
	return nil
}

func (s *service) instantEligible(lp *models.LoanPlan, principal decimal.Decimal) bool {
	cap := s.cfg.InstantAmount
	if lp.InstantAmount != nil {
		cap = *lp.InstantAmount
	}
	return cap.GreaterThan(decimal.Zero) && principal.LessThanOrEqual(cap)
}

// --- helpers ---

func (s *service) ownerTransition(ctx context.Context, loanID, userID uint, to string, mutate func(*models.Loan) error) (*models.Loan, error) {
	return s.lockedTransition(ctx, loanID, to, func(l *models.Loan) error {
		if l.UserID != userID {
			return domainErrors.ErrForbidden
		}
		if mutate != nil {
			return mutate(l)
		}
		return nil
	})
}

func (s *service) adminTransition(ctx context.Context, loanID uint, to string, mutate func(*models.Loan) error) (*models.Loan, error) {
	return s.lockedTransition(ctx, loanID, to, mutate)
}

func (s *service) lockedTransition(ctx context.Context, loanID uint, to string, mutate func(*models.Loan) error) (*models.Loan, error) {
	var out *models.Loan
	err := s.store.Atomic(ctx, func(st repositories.Store) error {
		l, err := st.Loans().GetByIDForUpdate(ctx, loanID)
		if err != nil {
			if errors.Is(err, repositories.ErrLoanNotFound) {
				return domainErrors.ErrLoanNotFound
			}
			return err
		}
		if mutate != nil {
			if err := mutate(l); err != nil {
				return err
			}
		}
		if err := transition(l, to); err != nil {
			return err
		}
		if err := st.Loans().Update(l); err != nil {
			return err
		}
		out = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) bucketFor(st repositories.Store, l *models.Loan) (*models.TenureConfig, error) {
	if l.PlanID == nil {
		return nil, domainErrors.Validation("loan has no plan")
	}
	lp, err := st.Plans().GetByID(*l.PlanID)
	if err != nil {
		return nil, err
	}
	return plan.ResolveBucket(lp, l.TenureDays, l.Frequency)
}

func buildQuote(principal decimal.Decimal, bucket *models.TenureConfig, frequency string) (*Quote, error) {
	sched, err := schedule.Generate(schedule.Input{
		Principal:   principal,
		TenureDays:  bucket.TenureDays,
		Frequency:   frequency,
		Fees:        bucket.Fees,
		MonthlyRate: bucket.RateFor(frequency),
		GSTRate:     bucket.GSTRate,
		DisbursedAt: time.Now(),
	})
	if err != nil {
		return nil, err
	}
	return &Quote{
		Principal:      principal,
		FeeAmount:      sched.FeeAmount,
		InterestAmount: sched.InterestAmount,
		GSTAmount:      sched.GSTAmount,
		TotalPayable:   sched.TotalPayable,
		Installments:   sched.Installments,
	}, nil
}

// payReferralBonus credits the referrer after the referred user's first
// disbursal. Best effort: failures are logged, never surfaced.
func (s *service) payReferralBonus(ctx context.Context, l *models.Loan) {
	if s.cfg.ReferralBonus.LessThanOrEqual(decimal.Zero) {
		return
	}
	borrower, err := s.store.Users().GetByID(l.UserID)
	if err != nil || borrower.ReferredBy == nil || borrower.ReferralBonusPaid {
		return
	}
	refWallet, err := s.store.Wallets().GetByUserID(*borrower.ReferredBy)
	if err != nil {
		logrus.WithError(err).Warn("referral bonus skipped, referrer wallet missing")
		return
	}
	entry := &models.WalletTransaction{
		WalletID:    refWallet.ID,
		Amount:      s.cfg.ReferralBonus,
		Status:      models.TxStatusCompleted,
		SourceTag:   models.SourceReferralBonus,
		SourceID:    &l.UserID,
		Description: "referral bonus",
	}
	if err := s.store.Wallets().AppendCredit(ctx, entry); err != nil {
		logrus.WithError(err).Warn("referral bonus credit failed")
		return
	}
	borrower.ReferralBonusPaid = true
	if err := s.store.Users().Update(borrower); err != nil {
		logrus.WithError(err).Warn("failed to mark referral bonus as paid")
	}
}

func (s *service) record(actorID uint, action, description string) {
	if s.audit != nil {
		s.audit.Record(actorID, action, description)
	}
}
