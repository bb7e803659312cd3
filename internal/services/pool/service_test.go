package pool

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErrors "kosh/internal/errors"
	"kosh/internal/models"
	"kosh/internal/repositories/repotest"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestReserveMovesAvailable(t *testing.T) {
	store := repotest.NewStore()
	store.SeedPool(d("50000"))
	ctx := context.Background()

	allocation, err := Reserve(ctx, store.Pool(), 1, 7, d("10000"))
	require.NoError(t, err)
	assert.Equal(t, models.AllocationReserved, allocation.Status)
	assert.True(t, allocation.AllocatedAmount.Equal(d("10000")))

	p, err := store.Pool().GetPool()
	require.NoError(t, err)
	assert.True(t, p.Available.Equal(d("40000")))
	assert.True(t, p.Disbursed.IsZero())
}

func TestReserveInsufficientCapital(t *testing.T) {
	store := repotest.NewStore()
	store.SeedPool(d("5000"))
	ctx := context.Background()

	_, err := Reserve(ctx, store.Pool(), 1, 7, d("10000"))
	assert.ErrorIs(t, err, domainErrors.ErrInsufficientPoolFunds)

	p, err := store.Pool().GetPool()
	require.NoError(t, err)
	assert.True(t, p.Available.Equal(d("5000")))
}

func TestDisburseFixesActualAmount(t *testing.T) {
	store := repotest.NewStore()
	store.SeedPool(d("50000"))
	ctx := context.Background()

	_, err := Reserve(ctx, store.Pool(), 1, 7, d("10000"))
	require.NoError(t, err)

	allocation, err := Disburse(ctx, store.Pool(), 1, 7, d("10000"))
	require.NoError(t, err)
	assert.Equal(t, models.AllocationDisbursed, allocation.Status)
	assert.True(t, allocation.ActualDisbursed.Equal(d("10000")))

	p, err := store.Pool().GetPool()
	require.NoError(t, err)
	assert.True(t, p.Available.Equal(d("40000")))
	assert.True(t, p.Disbursed.Equal(d("10000")))

	// Disbursing the same loan twice must not move money again.
	_, err = Disburse(ctx, store.Pool(), 1, 7, d("10000"))
	assert.ErrorIs(t, err, domainErrors.ErrAlreadyProcessed)
}

func TestDisburseSynthesizesMissingAllocation(t *testing.T) {
	store := repotest.NewStore()
	store.SeedPool(d("50000"))
	ctx := context.Background()

	allocation, err := Disburse(ctx, store.Pool(), 42, 7, d("8000"))
	require.NoError(t, err)
	assert.Equal(t, models.AllocationDisbursed, allocation.Status)
	assert.True(t, allocation.ActualDisbursed.Equal(d("8000")))

	p, err := store.Pool().GetPool()
	require.NoError(t, err)
	assert.True(t, p.Available.Equal(d("42000")))
	assert.True(t, p.Disbursed.Equal(d("8000")))
}

func TestAdjustReservation(t *testing.T) {
	store := repotest.NewStore()
	store.SeedPool(d("20000"))
	ctx := context.Background()

	allocation, err := Reserve(ctx, store.Pool(), 1, 7, d("10000"))
	require.NoError(t, err)

	// Lowering returns capital to the pool.
	adjusted, err := Adjust(ctx, store.Pool(), allocation.ID, d("6000"))
	require.NoError(t, err)
	assert.Equal(t, models.AllocationAdjusted, adjusted.Status)
	p, _ := store.Pool().GetPool()
	assert.True(t, p.Available.Equal(d("14000")))

	// Raising needs available capital.
	_, err = Adjust(ctx, store.Pool(), allocation.ID, d("25000"))
	assert.ErrorIs(t, err, domainErrors.ErrInsufficientPoolFunds)

	_, err = Adjust(ctx, store.Pool(), allocation.ID, d("12000"))
	require.NoError(t, err)
	p, _ = store.Pool().GetPool()
	assert.True(t, p.Available.Equal(d("8000")))
}

func TestCancelReturnsReservation(t *testing.T) {
	store := repotest.NewStore()
	store.SeedPool(d("20000"))
	ctx := context.Background()

	_, err := Reserve(ctx, store.Pool(), 1, 7, d("10000"))
	require.NoError(t, err)
	require.NoError(t, Cancel(ctx, store.Pool(), 1))

	p, err := store.Pool().GetPool()
	require.NoError(t, err)
	assert.True(t, p.Available.Equal(d("20000")))

	// Cancelling a loan without an allocation is a no-op.
	assert.NoError(t, Cancel(ctx, store.Pool(), 99))
}

func TestSetCapital(t *testing.T) {
	store := repotest.NewStore()
	store.SeedPool(d("20000"))
	ctx := context.Background()
	svc := NewService(store)

	_, err := Reserve(ctx, store.Pool(), 1, 7, d("15000"))
	require.NoError(t, err)

	// Cannot shrink below committed funds.
	_, err = svc.SetCapital(ctx, d("10000"))
	assert.Error(t, err)

	p, err := svc.SetCapital(ctx, d("40000"))
	require.NoError(t, err)
	assert.True(t, p.TotalCapital.Equal(d("40000")))
	assert.True(t, p.Available.Equal(d("25000")))
}
