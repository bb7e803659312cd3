package loan

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErrors "kosh/internal/errors"
	"kosh/internal/models"
	"kosh/internal/repositories/repotest"
	"kosh/internal/services/audit"
	"kosh/internal/services/gateway"
	"kosh/internal/services/pool"
	"kosh/internal/services/wallet"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

type noopCache struct{}

func (noopCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	return false, nil
}
func (noopCache) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return nil
}
func (noopCache) Delete(ctx context.Context, keys ...string) error { return nil }
func (noopCache) GenerateKey(entityType, keyType string, value interface{}) string {
	return fmt.Sprintf("%s:%s:%v", entityType, keyType, value)
}

type fakeTokens struct {
	issued map[string]uint
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{issued: make(map[string]uint)}
}

func (f *fakeTokens) StoreKYCToken(ctx context.Context, token string, loanID uint, ttl time.Duration) error {
	f.issued[token] = loanID
	return nil
}

func (f *fakeTokens) ConsumeKYCToken(ctx context.Context, token string) (uint, error) {
	id, ok := f.issued[token]
	if !ok {
		return 0, errors.New("kyc token not found or already used")
	}
	delete(f.issued, token)
	return id, nil
}

type fakeGateway struct {
	fail    bool
	charges []gateway.ChargeRequest
}

func (f *fakeGateway) Charge(ctx context.Context, req gateway.ChargeRequest) (string, error) {
	if f.fail {
		return "", errors.New("card declined")
	}
	f.charges = append(f.charges, req)
	return fmt.Sprintf("ch_test_%d", len(f.charges)), nil
}

type env struct {
	store    *repotest.Store
	svc      Service
	wallets  wallet.Service
	tokens   *fakeTokens
	gateway  *fakeGateway
	sysUser  *models.User
	borrower *models.User
	plan     *models.LoanPlan
}

func newTestEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	store := repotest.NewStore()
	store.SeedPool(d("100000"))

	sysUser := &models.User{Email: "ops@kosh.test", Name: "operator", Role: models.RoleAdmin}
	require.NoError(t, store.Users().Create(sysUser))
	borrower := &models.User{Email: "asha@kosh.test", Name: "Asha"}
	require.NoError(t, store.Users().Create(borrower))

	wallets := wallet.NewService(store.Wallets(), noopCache{})
	sysWallet, err := wallets.CreateWallet(ctx, sysUser.ID)
	require.NoError(t, err)
	_, err = wallets.CreateWallet(ctx, borrower.ID)
	require.NoError(t, err)

	// Fund the operator wallet so disbursals have something to pay from.
	_, err = wallets.Credit(ctx, wallet.EntryRequest{
		WalletID:  sysWallet.ID,
		Amount:    d("50000"),
		SourceTag: models.SourceGatewayTopup,
	})
	require.NoError(t, err)

	lp := &models.LoanPlan{
		Name:   "starter",
		Amount: d("10000"),
		Configurations: models.TenureConfigs{{
			TenureDays:         30,
			InterestRate:       d("2"),
			Fees:               []models.PlanFee{{Name: models.FeeProcessing, Amount: d("500")}},
			AllowedFrequencies: []string{models.FrequencyWeekly, models.FrequencyDaily},
		}},
		Active: true,
	}
	require.NoError(t, store.Plans().Create(lp))

	tokens := newFakeTokens()
	gw := &fakeGateway{}
	svc := NewService(store, wallets, tokens, gw, audit.NewService(store.Audit()), Config{
		SystemUserID:  sysUser.ID,
		ReferralBonus: d("100"),
	})

	return &env{
		store:    store,
		svc:      svc,
		wallets:  wallets,
		tokens:   tokens,
		gateway:  gw,
		sysUser:  sysUser,
		borrower: borrower,
		plan:     lp,
	}
}

func (e *env) apply(t *testing.T) *models.Loan {
	t.Helper()
	l, _, err := e.svc.Apply(context.Background(), ApplyRequest{
		UserID:     e.borrower.ID,
		PlanID:     e.plan.ID,
		TenureDays: 30,
		Frequency:  models.FrequencyWeekly,
		KYCData:    models.JSON{"pan": "ABCDE1234F"},
	})
	require.NoError(t, err)
	return l
}

// advanceToApproved walks a fresh application through the manual review
// states up to APPROVED and returns the loan plus the issued KYC token.
func (e *env) advanceToApproved(t *testing.T) *models.Loan {
	t.Helper()
	ctx := context.Background()
	l := e.apply(t)

	_, err := e.svc.Confirm(ctx, l.ID, e.borrower.ID)
	require.NoError(t, err)
	_, err = e.svc.Proceed(ctx, l.ID, e.sysUser.ID)
	require.NoError(t, err)
	token, err := e.svc.SendKYC(ctx, l.ID, e.sysUser.ID)
	require.NoError(t, err)
	_, err = e.svc.SubmitKYCByToken(ctx, token, models.JSON{"pan": "ABCDE1234F"})
	require.NoError(t, err)
	approved, err := e.svc.Approve(ctx, l.ID, e.sysUser.ID)
	require.NoError(t, err)
	return approved
}

func (e *env) balance(t *testing.T, userID uint) decimal.Decimal {
	t.Helper()
	ctx := context.Background()
	w, err := e.wallets.GetWallet(ctx, userID)
	require.NoError(t, err)
	b, err := e.wallets.GetBalance(ctx, w.ID)
	require.NoError(t, err)
	return b
}

func TestApplyCreatesPreviewWithQuote(t *testing.T) {
	e := newTestEnv(t)
	l, quote, err := e.svc.Apply(context.Background(), ApplyRequest{
		UserID:     e.borrower.ID,
		PlanID:     e.plan.ID,
		TenureDays: 30,
		Frequency:  models.FrequencyWeekly,
	})
	require.NoError(t, err)

	assert.Equal(t, models.LoanPreview, l.Status)
	assert.True(t, l.Amount.Equal(d("10000")))
	assert.Equal(t, 30, l.TenureDays)

	// fees 500, GST 18% of 500 = 90, interest 10000*2%*30/30 = 200.
	assert.True(t, quote.FeeAmount.Equal(d("500")))
	assert.True(t, quote.GSTAmount.Equal(d("90")))
	assert.True(t, quote.InterestAmount.Equal(d("200")))
	assert.True(t, quote.TotalPayable.Equal(d("10790")))
	assert.Len(t, quote.Installments, 5)
}

func TestApplyRejectsSecondActiveLoan(t *testing.T) {
	e := newTestEnv(t)
	e.apply(t)

	_, _, err := e.svc.Apply(context.Background(), ApplyRequest{
		UserID:     e.borrower.ID,
		PlanID:     e.plan.ID,
		TenureDays: 30,
		Frequency:  models.FrequencyWeekly,
	})
	assert.ErrorIs(t, err, domainErrors.ErrActiveLoanExists)
}

func TestApplyEnforcesCooldown(t *testing.T) {
	e := newTestEnv(t)
	recent := time.Now().AddDate(0, 0, -5)
	// Closed short of the total payable, e.g. written off.
	require.NoError(t, e.store.Loans().Create(&models.Loan{
		UserID:       e.borrower.ID,
		PlanID:       &e.plan.ID,
		Amount:       d("10000"),
		TenureDays:   30,
		Frequency:    models.FrequencyWeekly,
		Status:       models.LoanClosed,
		TotalPayable: d("10790"),
		PaidAmount:   d("5000"),
		DisbursedAt:  &recent,
	}))

	_, _, err := e.svc.Apply(context.Background(), ApplyRequest{
		UserID:     e.borrower.ID,
		PlanID:     e.plan.ID,
		TenureDays: 30,
		Frequency:  models.FrequencyWeekly,
	})
	assert.ErrorIs(t, err, domainErrors.ErrLoanCooldown)
}

func TestApplyCooldownExemptsFullyRepaidLoan(t *testing.T) {
	e := newTestEnv(t)
	recent := time.Now().AddDate(0, 0, -5)
	require.NoError(t, e.store.Loans().Create(&models.Loan{
		UserID:       e.borrower.ID,
		PlanID:       &e.plan.ID,
		Amount:       d("10000"),
		TenureDays:   30,
		Frequency:    models.FrequencyWeekly,
		Status:       models.LoanClosed,
		TotalPayable: d("10790"),
		PaidAmount:   d("10790"),
		DisbursedAt:  &recent,
	}))

	l, _, err := e.svc.Apply(context.Background(), ApplyRequest{
		UserID:     e.borrower.ID,
		PlanID:     e.plan.ID,
		TenureDays: 30,
		Frequency:  models.FrequencyWeekly,
	})
	require.NoError(t, err)
	assert.Equal(t, models.LoanPreview, l.Status)
}

func TestApplyEnforcesProgressiveLadder(t *testing.T) {
	e := newTestEnv(t)
	premium := &models.LoanPlan{
		Name:   "premium",
		Amount: d("20000"),
		Configurations: models.TenureConfigs{{
			TenureDays:         30,
			InterestRate:       d("2"),
			AllowedFrequencies: []string{models.FrequencyWeekly},
		}},
		Active: true,
	}
	require.NoError(t, e.store.Plans().Create(premium))

	_, _, err := e.svc.Apply(context.Background(), ApplyRequest{
		UserID:     e.borrower.ID,
		PlanID:     premium.ID,
		TenureDays: 30,
		Frequency:  models.FrequencyWeekly,
	})
	assert.ErrorIs(t, err, domainErrors.ErrPlanNotEligible)

	// A closed loan on the lower plan unlocks the premium plan.
	require.NoError(t, e.store.Loans().Create(&models.Loan{
		UserID:     e.borrower.ID,
		PlanID:     &e.plan.ID,
		Amount:     d("10000"),
		TenureDays: 30,
		Frequency:  models.FrequencyWeekly,
		Status:     models.LoanClosed,
	}))
	_, _, err = e.svc.Apply(context.Background(), ApplyRequest{
		UserID:     e.borrower.ID,
		PlanID:     premium.ID,
		TenureDays: 30,
		Frequency:  models.FrequencyWeekly,
	})
	assert.NoError(t, err)
}

func TestInstantFastPath(t *testing.T) {
	e := newTestEnv(t)
	instant := d("5000")
	e.plan.InstantAmount = &instant
	require.NoError(t, e.store.Plans().Update(e.plan))

	l, _, err := e.svc.Apply(context.Background(), ApplyRequest{
		UserID:     e.borrower.ID,
		PlanID:     e.plan.ID,
		Amount:     d("4000"),
		TenureDays: 30,
		Frequency:  models.FrequencyWeekly,
	})
	require.NoError(t, err)
	assert.Equal(t, models.LoanApproved, l.Status)
	require.NotNil(t, l.ApprovedAt)

	allocation, err := e.store.Pool().GetAllocationByLoan(l.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AllocationReserved, allocation.Status)

	p, err := e.store.Pool().GetPool()
	require.NoError(t, err)
	assert.True(t, p.Available.Equal(d("96000")), "available: %s", p.Available)

	// The principal is parked in the wallet pending release and KYC is
	// filled from the profile.
	w, err := e.wallets.GetWallet(context.Background(), e.borrower.ID)
	require.NoError(t, err)
	locked, err := e.wallets.GetLockedBalance(context.Background(), w.ID)
	require.NoError(t, err)
	assert.True(t, locked.Equal(d("4000")), "locked: %s", locked)
	require.NotNil(t, l.LockTransactionID)
	assert.Equal(t, e.borrower.Email, l.KYCData["email"])
}

func TestConfirmRequiresKYCData(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	l, _, err := e.svc.Apply(ctx, ApplyRequest{
		UserID:     e.borrower.ID,
		PlanID:     e.plan.ID,
		TenureDays: 30,
		Frequency:  models.FrequencyWeekly,
	})
	require.NoError(t, err)

	_, err = e.svc.Confirm(ctx, l.ID, e.borrower.ID)
	require.Error(t, err)

	_, err = e.svc.SubmitKYC(ctx, l.ID, e.borrower.ID, models.JSON{"pan": "ABCDE1234F"})
	assert.Error(t, err, "form submission is only legal from KYC_SENT")
}

func TestIllegalTransitionsRejected(t *testing.T) {
	e := newTestEnv(t)
	l := e.apply(t)
	ctx := context.Background()

	// PREVIEW cannot jump past PENDING.
	_, err := e.svc.Proceed(ctx, l.ID, e.sysUser.ID)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)
	_, err = e.svc.Approve(ctx, l.ID, e.sysUser.ID)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)
	_, err = e.svc.Release(ctx, l.ID, e.sysUser.ID)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)
}

func TestSendKYCLocksPrincipalOnce(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	l := e.apply(t)
	_, err := e.svc.Confirm(ctx, l.ID, e.borrower.ID)
	require.NoError(t, err)
	_, err = e.svc.Proceed(ctx, l.ID, e.sysUser.ID)
	require.NoError(t, err)

	token1, err := e.svc.SendKYC(ctx, l.ID, e.sysUser.ID)
	require.NoError(t, err)
	token2, err := e.svc.SendKYC(ctx, l.ID, e.sysUser.ID)
	require.NoError(t, err)
	assert.NotEqual(t, token1, token2)

	w, err := e.wallets.GetWallet(ctx, e.borrower.ID)
	require.NoError(t, err)

	// The locked principal is visible but not spendable.
	locked, err := e.wallets.GetLockedBalance(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, locked.Equal(d("10000")), "locked: %s", locked)
	assert.True(t, e.balance(t, e.borrower.ID).IsZero())
}

func TestKYCTokenIsSingleUse(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	l := e.apply(t)
	_, err := e.svc.Confirm(ctx, l.ID, e.borrower.ID)
	require.NoError(t, err)
	_, err = e.svc.Proceed(ctx, l.ID, e.sysUser.ID)
	require.NoError(t, err)
	token, err := e.svc.SendKYC(ctx, l.ID, e.sysUser.ID)
	require.NoError(t, err)

	_, err = e.svc.SubmitKYCByToken(ctx, token, models.JSON{"pan": "ABCDE1234F"})
	require.NoError(t, err)
	_, err = e.svc.SubmitKYCByToken(ctx, token, models.JSON{"pan": "ABCDE1234F"})
	assert.ErrorIs(t, err, domainErrors.ErrUnauthorized)
}

func TestSendKYCResendableAfterFormSubmission(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	l := e.apply(t)
	_, err := e.svc.Confirm(ctx, l.ID, e.borrower.ID)
	require.NoError(t, err)
	_, err = e.svc.Proceed(ctx, l.ID, e.sysUser.ID)
	require.NoError(t, err)
	token1, err := e.svc.SendKYC(ctx, l.ID, e.sysUser.ID)
	require.NoError(t, err)
	_, err = e.svc.SubmitKYCByToken(ctx, token1, models.JSON{"pan": "WRONG0000X"})
	require.NoError(t, err)

	// The submitted form was unusable; send the link again.
	token2, err := e.svc.SendKYC(ctx, l.ID, e.sysUser.ID)
	require.NoError(t, err)
	assert.NotEqual(t, token1, token2)

	got, err := e.svc.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanKYCSent, got.Status)

	// Still exactly one principal lock.
	w, err := e.wallets.GetWallet(ctx, e.borrower.ID)
	require.NoError(t, err)
	locked, err := e.wallets.GetLockedBalance(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, locked.Equal(d("10000")), "locked: %s", locked)

	_, err = e.svc.SubmitKYCByToken(ctx, token2, models.JSON{"pan": "ABCDE1234F"})
	require.NoError(t, err)
	_, err = e.svc.Approve(ctx, l.ID, e.sysUser.ID)
	assert.NoError(t, err)
}

func TestRejectApprovedLoanNotAllowed(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	l := e.advanceToApproved(t)

	_, err := e.svc.Reject(ctx, l.ID, e.sysUser.ID, "changed our mind")
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)

	// The reservation and the lock survive untouched.
	got, err := e.svc.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanApproved, got.Status)
	p, err := e.store.Pool().GetPool()
	require.NoError(t, err)
	assert.True(t, p.Available.Equal(d("90000")), "available: %s", p.Available)
}

func TestApproveFailsOnInsufficientPool(t *testing.T) {
	e := newTestEnv(t)
	e.store.SeedPool(d("4000"))
	ctx := context.Background()

	l := e.apply(t)
	_, err := e.svc.Confirm(ctx, l.ID, e.borrower.ID)
	require.NoError(t, err)
	_, err = e.svc.Proceed(ctx, l.ID, e.sysUser.ID)
	require.NoError(t, err)
	token, err := e.svc.SendKYC(ctx, l.ID, e.sysUser.ID)
	require.NoError(t, err)
	_, err = e.svc.SubmitKYCByToken(ctx, token, models.JSON{})
	require.NoError(t, err)

	_, err = e.svc.Approve(ctx, l.ID, e.sysUser.ID)
	assert.ErrorIs(t, err, domainErrors.ErrInsufficientPoolFunds)

	// The failed approval must leave no trace.
	got, err := e.svc.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanFormSubmitted, got.Status)
	p, err := e.store.Pool().GetPool()
	require.NoError(t, err)
	assert.True(t, p.Available.Equal(d("4000")))
}

func TestReleaseDisbursesAndGeneratesSchedule(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	l := e.advanceToApproved(t)

	released, err := e.svc.Release(ctx, l.ID, e.sysUser.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanDisbursed, released.Status)
	require.NotNil(t, released.DisbursedAt)
	assert.True(t, released.TotalPayable.Equal(d("10790")))

	// Principal is spendable, the lock is gone.
	assert.True(t, e.balance(t, e.borrower.ID).Equal(d("10000")))
	w, err := e.wallets.GetWallet(ctx, e.borrower.ID)
	require.NoError(t, err)
	locked, err := e.wallets.GetLockedBalance(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, locked.IsZero())

	// Operator wallet funded the principal.
	assert.True(t, e.balance(t, e.sysUser.ID).Equal(d("40000")))

	// Pool moved the reservation to disbursed.
	p, err := e.store.Pool().GetPool()
	require.NoError(t, err)
	assert.True(t, p.Available.Equal(d("90000")))
	assert.True(t, p.Disbursed.Equal(d("10000")))

	// Schedule sums exactly to the payable amount.
	repayments, err := e.svc.Schedule(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, repayments, 5)
	sum := decimal.Zero
	for _, r := range repayments {
		assert.Equal(t, models.RepaymentPending, r.Status)
		sum = sum.Add(r.Amount)
	}
	assert.True(t, sum.Equal(released.TotalPayable), "schedule sum: %s", sum)

	// Releasing twice cannot double-disburse.
	_, err = e.svc.Release(ctx, l.ID, e.sysUser.ID)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)
}

func TestReleaseClampsToAdjustedAllocation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	l := e.advanceToApproved(t)

	allocation, err := e.store.Pool().GetAllocationByLoan(l.ID)
	require.NoError(t, err)
	_, err = pool.Adjust(ctx, e.store.Pool(), allocation.ID, d("6000"))
	require.NoError(t, err)

	released, err := e.svc.Release(ctx, l.ID, e.sysUser.ID)
	require.NoError(t, err)
	assert.True(t, released.Amount.Equal(d("6000")), "principal: %s", released.Amount)

	// The stale 10000 lock was rejected and 6000 credited fresh.
	assert.True(t, e.balance(t, e.borrower.ID).Equal(d("6000")))
	w, err := e.wallets.GetWallet(ctx, e.borrower.ID)
	require.NoError(t, err)
	locked, err := e.wallets.GetLockedBalance(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, locked.IsZero())
}

func TestCancelAfterApproveReleasesHolds(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	l := e.advanceToApproved(t)

	cancelled, err := e.svc.Cancel(ctx, l.ID, e.borrower.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanCancelled, cancelled.Status)

	p, err := e.store.Pool().GetPool()
	require.NoError(t, err)
	assert.True(t, p.Available.Equal(d("100000")), "available: %s", p.Available)

	w, err := e.wallets.GetWallet(ctx, e.borrower.ID)
	require.NoError(t, err)
	locked, err := e.wallets.GetLockedBalance(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, locked.IsZero())
	assert.True(t, e.balance(t, e.borrower.ID).IsZero())
}

func TestCancelByStrangerForbidden(t *testing.T) {
	e := newTestEnv(t)
	l := e.apply(t)

	stranger := &models.User{Email: "someone@kosh.test"}
	require.NoError(t, e.store.Users().Create(stranger))

	_, err := e.svc.Cancel(context.Background(), l.ID, stranger.ID)
	assert.ErrorIs(t, err, domainErrors.ErrForbidden)
}

func TestReferralBonusPaidOnceAfterDisbursal(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	referrer := &models.User{Email: "ravi@kosh.test", Name: "Ravi"}
	require.NoError(t, e.store.Users().Create(referrer))
	_, err := e.wallets.CreateWallet(ctx, referrer.ID)
	require.NoError(t, err)

	e.borrower.ReferredBy = &referrer.ID
	require.NoError(t, e.store.Users().Update(e.borrower))

	l := e.advanceToApproved(t)
	_, err = e.svc.Release(ctx, l.ID, e.sysUser.ID)
	require.NoError(t, err)

	assert.True(t, e.balance(t, referrer.ID).Equal(d("100")))
	updated, err := e.store.Users().GetByID(e.borrower.ID)
	require.NoError(t, err)
	assert.True(t, updated.ReferralBonusPaid)
}
