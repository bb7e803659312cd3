// Package repotest provides an in-memory Store for service tests. Money
// primitives behave like the Postgres implementation: debits recompute the
// derived balance under a lock before appending, and Atomic restores the
// previous state when the callback fails.
package repotest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"kosh/internal/models"
	"kosh/internal/repositories"
)

type Store struct {
	mu sync.Mutex

	users       map[uint]models.User
	wallets     map[uint]models.Wallet
	txns        map[uint]models.WalletTransaction
	loans       map[uint]models.Loan
	repayments  map[uint]models.LoanRepayment
	allocations map[uint]models.LoanAllocation
	plans       map[uint]models.LoanPlan
	pool        *models.FundPool
	audits      []models.AuditLog

	seq uint
}

func NewStore() *Store {
	return &Store{
		users:       make(map[uint]models.User),
		wallets:     make(map[uint]models.Wallet),
		txns:        make(map[uint]models.WalletTransaction),
		loans:       make(map[uint]models.Loan),
		repayments:  make(map[uint]models.LoanRepayment),
		allocations: make(map[uint]models.LoanAllocation),
		plans:       make(map[uint]models.LoanPlan),
	}
}

func (s *Store) nextID() uint {
	s.seq++
	return s.seq
}

func (s *Store) Users() repositories.UserRepository     { return (*userRepo)(s) }
func (s *Store) Wallets() repositories.WalletRepository { return (*walletRepo)(s) }
func (s *Store) Loans() repositories.LoanRepository     { return (*loanRepo)(s) }
func (s *Store) Pool() repositories.PoolRepository      { return (*poolRepo)(s) }
func (s *Store) Plans() repositories.PlanRepository     { return (*planRepo)(s) }
func (s *Store) Audit() repositories.AuditRepository    { return (*auditRepo)(s) }

// Atomic snapshots the store and rolls back if fn fails. Callbacks run
// single-threaded in tests, so no outer lock is held across fn.
func (s *Store) Atomic(ctx context.Context, fn func(repositories.Store) error) error {
	snap := s.snapshot()
	if err := fn(s); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	users       map[uint]models.User
	wallets     map[uint]models.Wallet
	txns        map[uint]models.WalletTransaction
	loans       map[uint]models.Loan
	repayments  map[uint]models.LoanRepayment
	allocations map[uint]models.LoanAllocation
	plans       map[uint]models.LoanPlan
	pool        *models.FundPool
	audits      []models.AuditLog
	seq         uint
}

func (s *Store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := snapshot{
		users:       make(map[uint]models.User, len(s.users)),
		wallets:     make(map[uint]models.Wallet, len(s.wallets)),
		txns:        make(map[uint]models.WalletTransaction, len(s.txns)),
		loans:       make(map[uint]models.Loan, len(s.loans)),
		repayments:  make(map[uint]models.LoanRepayment, len(s.repayments)),
		allocations: make(map[uint]models.LoanAllocation, len(s.allocations)),
		plans:       make(map[uint]models.LoanPlan, len(s.plans)),
		audits:      append([]models.AuditLog(nil), s.audits...),
		seq:         s.seq,
	}
	for k, v := range s.users {
		snap.users[k] = v
	}
	for k, v := range s.wallets {
		snap.wallets[k] = v
	}
	for k, v := range s.txns {
		snap.txns[k] = v
	}
	for k, v := range s.loans {
		snap.loans[k] = v
	}
	for k, v := range s.repayments {
		snap.repayments[k] = v
	}
	for k, v := range s.allocations {
		snap.allocations[k] = v
	}
	for k, v := range s.plans {
		snap.plans[k] = v
	}
	if s.pool != nil {
		p := *s.pool
		snap.pool = &p
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = snap.users
	s.wallets = snap.wallets
	s.txns = snap.txns
	s.loans = snap.loans
	s.repayments = snap.repayments
	s.allocations = snap.allocations
	s.plans = snap.plans
	s.pool = snap.pool
	s.audits = snap.audits
	s.seq = snap.seq
}

// SeedPool installs the singleton fund pool row.
func (s *Store) SeedPool(total decimal.Decimal) *models.FundPool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pool = &models.FundPool{ID: 1, TotalCapital: total, Available: total, Disbursed: decimal.Zero}
	return s.pool
}

// --- users ---

type userRepo Store

func (r *userRepo) Create(user *models.User) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == user.Email {
			return repositories.ErrDuplicateEmail
		}
	}
	user.ID = s.nextID()
	user.CreatedAt = time.Now()
	s.users[user.ID] = *user
	return nil
}

func (r *userRepo) GetByID(id uint) (*models.User, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	return &u, nil
}

func (r *userRepo) GetByEmail(email string) (*models.User, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := u
			return &cp, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

func (r *userRepo) Update(user *models.User) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return repositories.ErrUserNotFound
	}
	s.users[user.ID] = *user
	return nil
}

// --- wallets ---

type walletRepo Store

func (r *walletRepo) Create(wallet *models.Wallet) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	wallet.ID = s.nextID()
	if wallet.Reference == uuid.Nil {
		wallet.Reference = uuid.New()
	}
	if wallet.Status == "" {
		wallet.Status = models.WalletStatusActive
	}
	wallet.CreatedAt = time.Now()
	s.wallets[wallet.ID] = *wallet
	return nil
}

func (r *walletRepo) GetByID(id uint) (*models.Wallet, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[id]
	if !ok {
		return nil, repositories.ErrWalletNotFound
	}
	return &w, nil
}

func (r *walletRepo) GetByUserID(userID uint) (*models.Wallet, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.wallets {
		if w.UserID == userID {
			cp := w
			return &cp, nil
		}
	}
	return nil, repositories.ErrWalletNotFound
}

func (r *walletRepo) Update(wallet *models.Wallet) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.wallets[wallet.ID]; !ok {
		return repositories.ErrWalletNotFound
	}
	s.wallets[wallet.ID] = *wallet
	return nil
}

func (r *walletRepo) Balance(ctx context.Context, walletID uint) (decimal.Decimal, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balanceLocked(walletID), nil
}

func (s *Store) balanceLocked(walletID uint) decimal.Decimal {
	balance := decimal.Zero
	for _, t := range s.txns {
		if t.WalletID != walletID || t.Status != models.TxStatusCompleted {
			continue
		}
		if t.Direction == models.DirectionCredit {
			balance = balance.Add(t.Amount)
		} else {
			balance = balance.Sub(t.Amount)
		}
	}
	return balance
}

func (r *walletRepo) LockedBalance(ctx context.Context, walletID uint) (decimal.Decimal, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	locked := decimal.Zero
	for _, t := range s.txns {
		if t.WalletID == walletID && t.Status == models.TxStatusPending &&
			t.Direction == models.DirectionCredit && t.SourceTag == models.SourceLoanLock {
			locked = locked.Add(t.Amount)
		}
	}
	return locked, nil
}

func (r *walletRepo) AppendCredit(ctx context.Context, entry *models.WalletTransaction) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.wallets[entry.WalletID]; !ok {
		return repositories.ErrWalletNotFound
	}
	entry.Direction = models.DirectionCredit
	s.appendLocked(entry)
	return nil
}

func (r *walletRepo) AppendDebit(ctx context.Context, entry *models.WalletTransaction) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.wallets[entry.WalletID]; !ok {
		return repositories.ErrWalletNotFound
	}
	if s.balanceLocked(entry.WalletID).LessThan(entry.Amount) {
		return repositories.ErrInsufficientFunds
	}
	entry.Direction = models.DirectionDebit
	s.appendLocked(entry)
	return nil
}

func (r *walletRepo) Transfer(ctx context.Context, debit, credit *models.WalletTransaction) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.wallets[debit.WalletID]; !ok {
		return repositories.ErrWalletNotFound
	}
	if _, ok := s.wallets[credit.WalletID]; !ok {
		return repositories.ErrWalletNotFound
	}
	if s.balanceLocked(debit.WalletID).LessThan(debit.Amount) {
		return repositories.ErrInsufficientFunds
	}
	debit.Direction = models.DirectionDebit
	credit.Direction = models.DirectionCredit
	s.appendLocked(debit)
	s.appendLocked(credit)
	return nil
}

func (s *Store) appendLocked(entry *models.WalletTransaction) {
	entry.ID = s.nextID()
	if entry.Status == "" {
		entry.Status = models.TxStatusCompleted
	}
	entry.CreatedAt = time.Now()
	s.txns[entry.ID] = *entry
}

func (r *walletRepo) GetTransactionByID(id uint) (*models.WalletTransaction, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txns[id]
	if !ok {
		return nil, repositories.ErrTransactionNotFound
	}
	return &t, nil
}

func (r *walletRepo) UpdateTransactionStatus(ctx context.Context, id uint, from, to string) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txns[id]
	if !ok {
		return repositories.ErrTransactionNotFound
	}
	if t.Status != from {
		return repositories.ErrStatusConflict
	}
	t.Status = to
	s.txns[id] = t
	return nil
}

func (r *walletRepo) ListTransactions(ctx context.Context, walletID uint, limit, offset int) ([]models.WalletTransaction, int64, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []models.WalletTransaction
	for _, t := range s.txns {
		if t.WalletID == walletID {
			all = append(all, t)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

// --- loans ---

type loanRepo Store

func (r *loanRepo) Create(loan *models.Loan) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	loan.ID = s.nextID()
	loan.CreatedAt = time.Now()
	s.loans[loan.ID] = *loan
	return nil
}

func (r *loanRepo) GetByID(id uint) (*models.Loan, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.loans[id]
	if !ok {
		return nil, repositories.ErrLoanNotFound
	}
	return &l, nil
}

func (r *loanRepo) GetByIDForUpdate(ctx context.Context, id uint) (*models.Loan, error) {
	return r.GetByID(id)
}

func (r *loanRepo) Update(loan *models.Loan) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.loans[loan.ID]; !ok {
		return repositories.ErrLoanNotFound
	}
	s.loans[loan.ID] = *loan
	return nil
}

func (r *loanRepo) ActiveLoanForUser(userID uint) (*models.Loan, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.loans {
		if l.UserID == userID && l.Active() {
			cp := l
			return &cp, nil
		}
	}
	return nil, repositories.ErrLoanNotFound
}

func (r *loanRepo) LatestDisbursedForUser(userID uint) (*models.Loan, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *models.Loan
	for _, l := range s.loans {
		if l.UserID != userID || l.DisbursedAt == nil {
			continue
		}
		cp := l
		if best == nil || cp.DisbursedAt.After(*best.DisbursedAt) {
			best = &cp
		}
	}
	if best == nil {
		return nil, repositories.ErrLoanNotFound
	}
	return best, nil
}

func (r *loanRepo) HasClosedLoanWithPlan(userID, planID uint) (bool, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.loans {
		if l.UserID == userID && l.Status == models.LoanClosed &&
			l.PlanID != nil && *l.PlanID == planID {
			return true, nil
		}
	}
	return false, nil
}

func (r *loanRepo) List(status string, limit, offset int) ([]models.Loan, int64, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []models.Loan
	for _, l := range s.loans {
		if status == "" || l.Status == status {
			all = append(all, l)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

func (r *loanRepo) CreateRepayments(repayments []models.LoanRepayment) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range repayments {
		repayments[i].ID = s.nextID()
		if repayments[i].Status == "" {
			repayments[i].Status = models.RepaymentPending
		}
		s.repayments[repayments[i].ID] = repayments[i]
	}
	return nil
}

func (r *loanRepo) GetRepayment(id uint) (*models.LoanRepayment, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	rp, ok := s.repayments[id]
	if !ok {
		return nil, repositories.ErrRepaymentNotFound
	}
	return &rp, nil
}

func (r *loanRepo) EarliestPendingRepayment(ctx context.Context, loanID uint) (*models.LoanRepayment, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *models.LoanRepayment
	for _, rp := range s.repayments {
		if rp.LoanID != loanID || rp.Status != models.RepaymentPending {
			continue
		}
		cp := rp
		if best == nil || cp.DueDate.Before(best.DueDate) {
			best = &cp
		}
	}
	if best == nil {
		return nil, repositories.ErrRepaymentNotFound
	}
	return best, nil
}

func (r *loanRepo) UpdateRepayment(repayment *models.LoanRepayment) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.repayments[repayment.ID]; !ok {
		return repositories.ErrRepaymentNotFound
	}
	s.repayments[repayment.ID] = *repayment
	return nil
}

func (r *loanRepo) UnpaidRepaymentCount(loanID uint) (int64, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, rp := range s.repayments {
		if rp.LoanID == loanID && rp.Status != models.RepaymentPaid {
			n++
		}
	}
	return n, nil
}

func (r *loanRepo) ListRepayments(loanID uint) ([]models.LoanRepayment, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.LoanRepayment
	for _, rp := range s.repayments {
		if rp.LoanID == loanID {
			out = append(out, rp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

// --- pool ---

type poolRepo Store

func (r *poolRepo) GetPool() (*models.FundPool, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool == nil {
		return nil, repositories.ErrPoolNotFound
	}
	p := *s.pool
	return &p, nil
}

func (r *poolRepo) GetPoolForUpdate(ctx context.Context) (*models.FundPool, error) {
	return r.GetPool()
}

func (r *poolRepo) UpdatePool(pool *models.FundPool) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool == nil {
		return repositories.ErrPoolNotFound
	}
	p := *pool
	s.pool = &p
	return nil
}

func (r *poolRepo) CreateAllocation(allocation *models.LoanAllocation) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	allocation.ID = s.nextID()
	allocation.CreatedAt = time.Now()
	s.allocations[allocation.ID] = *allocation
	return nil
}

func (r *poolRepo) GetAllocation(id uint) (*models.LoanAllocation, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.allocations[id]
	if !ok {
		return nil, repositories.ErrAllocationNotFound
	}
	return &a, nil
}

func (r *poolRepo) GetAllocationByLoan(loanID uint) (*models.LoanAllocation, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.allocations {
		if a.LoanID == loanID {
			cp := a
			return &cp, nil
		}
	}
	return nil, repositories.ErrAllocationNotFound
}

func (r *poolRepo) UpdateAllocation(allocation *models.LoanAllocation) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.allocations[allocation.ID]; !ok {
		return repositories.ErrAllocationNotFound
	}
	s.allocations[allocation.ID] = *allocation
	return nil
}

// --- plans ---

type planRepo Store

func (r *planRepo) Create(plan *models.LoanPlan) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	plan.ID = s.nextID()
	s.plans[plan.ID] = *plan
	return nil
}

func (r *planRepo) GetByID(id uint) (*models.LoanPlan, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[id]
	if !ok {
		return nil, repositories.ErrPlanNotFound
	}
	return &p, nil
}

func (r *planRepo) Update(plan *models.LoanPlan) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[plan.ID]; !ok {
		return repositories.ErrPlanNotFound
	}
	s.plans[plan.ID] = *plan
	return nil
}

func (r *planRepo) List(activeOnly bool) ([]models.LoanPlan, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.LoanPlan
	for _, p := range s.plans {
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Amount.LessThan(out[j].Amount) })
	return out, nil
}

func (r *planRepo) NextLowerPlan(amount decimal.Decimal) (*models.LoanPlan, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *models.LoanPlan
	for _, p := range s.plans {
		if !p.Active || !p.Amount.LessThan(amount) {
			continue
		}
		cp := p
		if best == nil || cp.Amount.GreaterThan(best.Amount) {
			best = &cp
		}
	}
	if best == nil {
		return nil, repositories.ErrPlanNotFound
	}
	return best, nil
}

// --- audit ---

type auditRepo Store

func (r *auditRepo) Append(entry *models.AuditLog) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = s.nextID()
	entry.CreatedAt = time.Now()
	s.audits = append(s.audits, *entry)
	return nil
}

// AuditEntries returns a copy of everything recorded so far.
func (s *Store) AuditEntries() []models.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AuditLog(nil), s.audits...)
}
