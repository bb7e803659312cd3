package loan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErrors "kosh/internal/errors"
	"kosh/internal/models"
	"kosh/internal/services/gateway"
	"kosh/internal/services/wallet"
)

const testPin = "4321"

// disburse walks a loan to DISBURSED and sets the borrower's PIN.
func (e *env) disburse(t *testing.T) *models.Loan {
	t.Helper()
	ctx := context.Background()
	l := e.advanceToApproved(t)
	released, err := e.svc.Release(ctx, l.ID, e.sysUser.ID)
	require.NoError(t, err)
	require.NoError(t, e.wallets.SetPin(ctx, e.borrower.ID, testPin))
	return released
}

func TestRepayCollectsEarliestInstallment(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	l := e.disburse(t)

	paid, err := e.svc.Repay(ctx, l.ID, e.borrower.ID, testPin)
	require.NoError(t, err)
	assert.Equal(t, models.RepaymentPaid, paid.Status)
	assert.Equal(t, models.PaymentModeWallet, paid.PaymentMode)
	require.NotNil(t, paid.PaidAt)

	// 10790 over 5 installments is 2158 each.
	assert.True(t, paid.Amount.Equal(d("2158")), "amount: %s", paid.Amount)
	assert.True(t, e.balance(t, e.borrower.ID).Equal(d("7842")))
	assert.True(t, e.balance(t, e.sysUser.ID).Equal(d("42158")))

	got, err := e.svc.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, got.PaidAmount.Equal(d("2158")))
	assert.Equal(t, models.LoanDisbursed, got.Status)
}

func TestRepayRequiresPin(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	l := e.disburse(t)

	_, err := e.svc.Repay(ctx, l.ID, e.borrower.ID, "0000")
	assert.ErrorIs(t, err, domainErrors.ErrPinMismatch)

	// No money moved, nothing settled.
	assert.True(t, e.balance(t, e.borrower.ID).Equal(d("10000")))
	got, err := e.svc.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, got.PaidAmount.IsZero())
}

func TestRepayInsufficientFunds(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	l := e.disburse(t)

	// Drain the wallet below one installment.
	w, err := e.wallets.GetWallet(ctx, e.borrower.ID)
	require.NoError(t, err)
	_, err = e.wallets.Debit(ctx, wallet.EntryRequest{
		WalletID:  w.ID,
		Amount:    d("9000"),
		SourceTag: models.SourceTransfer,
	})
	require.NoError(t, err)

	_, err = e.svc.Repay(ctx, l.ID, e.borrower.ID, testPin)
	assert.ErrorIs(t, err, domainErrors.ErrInsufficientFunds)

	got, err := e.svc.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, got.PaidAmount.IsZero())
}

func TestRepayToClosure(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	l := e.disburse(t)

	// Top the wallet up so all five installments clear.
	w, err := e.wallets.GetWallet(ctx, e.borrower.ID)
	require.NoError(t, err)
	_, err = e.wallets.Credit(ctx, wallet.EntryRequest{
		WalletID:  w.ID,
		Amount:    d("1000"),
		SourceTag: models.SourceSignupBonus,
	})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := e.svc.Repay(ctx, l.ID, e.borrower.ID, testPin)
		require.NoError(t, err, "installment %d", i+1)
	}

	got, err := e.svc.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanClosed, got.Status)
	require.NotNil(t, got.ClosedAt)
	assert.True(t, got.PaidAmount.Equal(got.TotalPayable))

	// 11000 in, 10790 repaid.
	assert.True(t, e.balance(t, e.borrower.ID).Equal(d("210")))

	_, err = e.svc.Repay(ctx, l.ID, e.borrower.ID, testPin)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)
}

func TestRepayOnlineRunsThroughGateway(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	l := e.disburse(t)

	card := gateway.Card{Number: "4242424242424242", ExpMonth: "12", ExpYear: "2030", CVC: "123"}
	paid, err := e.svc.RepayOnline(ctx, l.ID, e.borrower.ID, card)
	require.NoError(t, err)
	assert.Equal(t, models.RepaymentPaid, paid.Status)
	assert.Equal(t, models.PaymentModeGateway, paid.PaymentMode)
	require.Len(t, e.gateway.charges, 1)
	assert.True(t, e.gateway.charges[0].Amount.Equal(paid.Amount))

	// Topup and debit cancel out: the card funded the installment.
	assert.True(t, e.balance(t, e.borrower.ID).Equal(d("10000")))
	assert.True(t, e.balance(t, e.sysUser.ID).Equal(d("42158")))
}

func TestRepayOnlineDeclinedCard(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	l := e.disburse(t)
	e.gateway.fail = true

	card := gateway.Card{Number: "4000000000000002", ExpMonth: "12", ExpYear: "2030", CVC: "123"}
	_, err := e.svc.RepayOnline(ctx, l.ID, e.borrower.ID, card)
	assert.Error(t, err)

	got, err := e.svc.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, got.PaidAmount.IsZero())
	assert.True(t, e.balance(t, e.borrower.ID).Equal(d("10000")))
}

func TestManualCollectTwoPhase(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	l := e.disburse(t)

	marked, err := e.svc.ManualCollect(ctx, l.ID, e.sysUser.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RepaymentManualVerification, marked.Status)
	assert.Equal(t, models.PaymentModeManual, marked.PaymentMode)

	// Not yet paid: the loan total is untouched.
	got, err := e.svc.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, got.PaidAmount.IsZero())

	settled, err := e.svc.SettleManualCollect(ctx, marked.ID, e.sysUser.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.RepaymentPaid, settled.Status)
	require.NotNil(t, settled.PaidAt)

	got, err = e.svc.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, got.PaidAmount.Equal(settled.Amount))

	// No ledger movement for an off-platform cash collection.
	assert.True(t, e.balance(t, e.borrower.ID).Equal(d("10000")))

	// Settling again is a no-op conflict.
	_, err = e.svc.SettleManualCollect(ctx, marked.ID, e.sysUser.ID, true)
	assert.ErrorIs(t, err, domainErrors.ErrAlreadyProcessed)
}

func TestManualCollectDecline(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	l := e.disburse(t)

	marked, err := e.svc.ManualCollect(ctx, l.ID, e.sysUser.ID)
	require.NoError(t, err)

	declined, err := e.svc.SettleManualCollect(ctx, marked.ID, e.sysUser.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.RepaymentPending, declined.Status)
	assert.Empty(t, declined.PaymentMode)

	// The installment is collectable again.
	paid, err := e.svc.Repay(ctx, l.ID, e.borrower.ID, testPin)
	require.NoError(t, err)
	assert.Equal(t, marked.ID, paid.ID)
}

func TestManualCollectSkipsVerifyingInstallment(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	l := e.disburse(t)

	first, err := e.svc.ManualCollect(ctx, l.ID, e.sysUser.ID)
	require.NoError(t, err)

	// Wallet repayment picks the next pending installment, not the one
	// sitting in verification.
	paid, err := e.svc.Repay(ctx, l.ID, e.borrower.ID, testPin)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, paid.ID)
	assert.True(t, paid.DueDate.After(first.DueDate))
}

func TestRepayNoPendingInstallment(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	l := e.disburse(t)

	// Park every installment in verification.
	for i := 0; i < 5; i++ {
		_, err := e.svc.ManualCollect(ctx, l.ID, e.sysUser.ID)
		require.NoError(t, err)
	}

	_, err := e.svc.Repay(ctx, l.ID, e.borrower.ID, testPin)
	assert.ErrorIs(t, err, domainErrors.ErrNoPendingInstallment)
}
