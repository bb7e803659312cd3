// Package repositories provides the data access layer. All money-moving
// primitives (debit, transfer, pool reserve) run their balance checks and
// writes inside one database transaction with the relevant rows locked.
package repositories

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"kosh/internal/models"
)

type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	Update(user *models.User) error
}

type WalletRepository interface {
	Create(wallet *models.Wallet) error
	GetByID(id uint) (*models.Wallet, error)
	GetByUserID(userID uint) (*models.Wallet, error)
	Update(wallet *models.Wallet) error

	// Balance is always derived from COMPLETED ledger entries, never cached.
	Balance(ctx context.Context, walletID uint) (decimal.Decimal, error)
	// LockedBalance sums PENDING loan-lock credits.
	LockedBalance(ctx context.Context, walletID uint) (decimal.Decimal, error)

	AppendCredit(ctx context.Context, entry *models.WalletTransaction) error
	// AppendDebit recomputes the balance under a wallet row lock and only
	// then appends, all in one transaction. Returns ErrInsufficientFunds
	// when the balance does not cover the amount.
	AppendDebit(ctx context.Context, entry *models.WalletTransaction) error
	// Transfer appends a debit (balance-checked) and a credit atomically.
	Transfer(ctx context.Context, debit, credit *models.WalletTransaction) error

	GetTransactionByID(id uint) (*models.WalletTransaction, error)
	// UpdateTransactionStatus moves an entry out of `from` exactly once;
	// returns ErrStatusConflict if the entry is no longer in `from`.
	UpdateTransactionStatus(ctx context.Context, id uint, from, to string) error
	ListTransactions(ctx context.Context, walletID uint, limit, offset int) ([]models.WalletTransaction, int64, error)
}

type LoanRepository interface {
	Create(loan *models.Loan) error
	GetByID(id uint) (*models.Loan, error)
	// GetByIDForUpdate locks the loan row; call inside Store.Atomic.
	GetByIDForUpdate(ctx context.Context, id uint) (*models.Loan, error)
	Update(loan *models.Loan) error
	ActiveLoanForUser(userID uint) (*models.Loan, error)
	LatestDisbursedForUser(userID uint) (*models.Loan, error)
	HasClosedLoanWithPlan(userID, planID uint) (bool, error)
	List(status string, limit, offset int) ([]models.Loan, int64, error)

	CreateRepayments(repayments []models.LoanRepayment) error
	GetRepayment(id uint) (*models.LoanRepayment, error)
	// EarliestPendingRepayment locks the row; call inside Store.Atomic.
	EarliestPendingRepayment(ctx context.Context, loanID uint) (*models.LoanRepayment, error)
	UpdateRepayment(repayment *models.LoanRepayment) error
	UnpaidRepaymentCount(loanID uint) (int64, error)
	ListRepayments(loanID uint) ([]models.LoanRepayment, error)
}

type PoolRepository interface {
	GetPool() (*models.FundPool, error)
	// GetPoolForUpdate locks the singleton row; call inside Store.Atomic.
	GetPoolForUpdate(ctx context.Context) (*models.FundPool, error)
	UpdatePool(pool *models.FundPool) error

	CreateAllocation(allocation *models.LoanAllocation) error
	GetAllocation(id uint) (*models.LoanAllocation, error)
	GetAllocationByLoan(loanID uint) (*models.LoanAllocation, error)
	UpdateAllocation(allocation *models.LoanAllocation) error
}

type PlanRepository interface {
	Create(plan *models.LoanPlan) error
	GetByID(id uint) (*models.LoanPlan, error)
	Update(plan *models.LoanPlan) error
	List(activeOnly bool) ([]models.LoanPlan, error)
	// NextLowerPlan returns the active plan with the greatest principal
	// strictly below amount, for progressive eligibility checks.
	NextLowerPlan(amount decimal.Decimal) (*models.LoanPlan, error)
}

type AuditRepository interface {
	Append(entry *models.AuditLog) error
}

// Store bundles the repositories and lets a caller run several of them
// inside one database transaction. Within Atomic, the callback receives a
// Store bound to the transaction; the transaction commits only if the
// callback returns nil.
type Store interface {
	Users() UserRepository
	Wallets() WalletRepository
	Loans() LoanRepository
	Pool() PoolRepository
	Plans() PlanRepository
	Audit() AuditRepository
	Atomic(ctx context.Context, fn func(Store) error) error
}

type gormStore struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Users() UserRepository   { return &userRepository{db: s.db} }
func (s *gormStore) Wallets() WalletRepository { return &walletRepository{db: s.db} }
func (s *gormStore) Loans() LoanRepository   { return &loanRepository{db: s.db} }
func (s *gormStore) Pool() PoolRepository    { return &poolRepository{db: s.db} }
func (s *gormStore) Plans() PlanRepository   { return &planRepository{db: s.db} }
func (s *gormStore) Audit() AuditRepository  { return &auditRepository{db: s.db} }

func (s *gormStore) Atomic(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}
