package schedule

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kosh/internal/models"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestIntervalDays(t *testing.T) {
	tests := []struct {
		frequency string
		want      int
		wantErr   bool
	}{
		{frequency: models.FrequencyDaily, want: 1},
		{frequency: models.FrequencyWeekly, want: 7},
		{frequency: models.FrequencyMonthly, want: 30},
		{frequency: "10_DAYS", want: 10},
		{frequency: "0_DAYS", wantErr: true},
		{frequency: "FORTNIGHTLY", wantErr: true},
		{frequency: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.frequency, func(t *testing.T) {
			got, err := IntervalDays(tt.frequency)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGenerateWeeklyWithStub(t *testing.T) {
	disbursed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	out, err := Generate(Input{
		Principal:  d("10000"),
		TenureDays: 30,
		Frequency:  models.FrequencyWeekly,
		Fees: []models.PlanFee{
			{Name: models.FeeProcessing, Amount: d("500")},
			{Name: models.FeeLogin, Amount: d("100")},
		},
		MonthlyRate: d("2"),
		DisbursedAt: disbursed,
	})
	require.NoError(t, err)

	// interest = 10000 * 2% * 30/30 = 200, GST = 18% of 500 = 90.
	assert.True(t, out.FeeAmount.Equal(d("600")), "fees: %s", out.FeeAmount)
	assert.True(t, out.InterestAmount.Equal(d("200")), "interest: %s", out.InterestAmount)
	assert.True(t, out.GSTAmount.Equal(d("90")), "gst: %s", out.GSTAmount)
	assert.True(t, out.TotalPayable.Equal(d("10890")), "total: %s", out.TotalPayable)

	// 4 weekly installments plus a 2-day stub on day 30.
	require.Len(t, out.Installments, 5)

	sum := decimal.Zero
	for _, inst := range out.Installments {
		sum = sum.Add(inst.Amount)
	}
	assert.True(t, sum.Equal(out.TotalPayable), "installments must sum to total, got %s", sum)

	assert.Equal(t, disbursed.AddDate(0, 0, 7), out.Installments[0].DueDate)
	assert.Equal(t, disbursed.AddDate(0, 0, 28), out.Installments[3].DueDate)
	assert.Equal(t, disbursed.AddDate(0, 0, 30), out.Installments[4].DueDate)
}

func TestGenerateExactDistribution(t *testing.T) {
	// 100.01 over 3 lines: 33.34, 33.34, 33.33 in paise-exact split.
	out, err := Generate(Input{
		Principal:   d("100.01"),
		TenureDays:  3,
		Frequency:   models.FrequencyDaily,
		MonthlyRate: decimal.Zero,
		GSTRate:     d("18"),
		DisbursedAt: time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, out.Installments, 3)
	assert.True(t, out.Installments[0].Amount.Equal(d("33.34")))
	assert.True(t, out.Installments[1].Amount.Equal(d("33.34")))
	assert.True(t, out.Installments[2].Amount.Equal(d("33.33")))
}

func TestGenerateNoStubWhenTenureDivides(t *testing.T) {
	out, err := Generate(Input{
		Principal:   d("7000"),
		TenureDays:  28,
		Frequency:   models.FrequencyWeekly,
		MonthlyRate: decimal.Zero,
		DisbursedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Len(t, out.Installments, 4)

	sum := decimal.Zero
	for _, inst := range out.Installments {
		sum = sum.Add(inst.Amount)
	}
	assert.True(t, sum.Equal(out.TotalPayable))
}

func TestGenerateTenureShorterThanInterval(t *testing.T) {
	disbursed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	out, err := Generate(Input{
		Principal:   d("5000"),
		TenureDays:  5,
		Frequency:   models.FrequencyWeekly,
		MonthlyRate: decimal.Zero,
		DisbursedAt: disbursed,
	})
	require.NoError(t, err)
	require.Len(t, out.Installments, 1)
	assert.True(t, out.Installments[0].Amount.Equal(out.TotalPayable))
	assert.Equal(t, disbursed.AddDate(0, 0, 5), out.Installments[0].DueDate)
}

func TestGenerateGSTOnProcessingFeeOnly(t *testing.T) {
	out, err := Generate(Input{
		Principal:  d("1000"),
		TenureDays: 10,
		Frequency:  models.FrequencyDaily,
		Fees: []models.PlanFee{
			{Name: models.FeeProcessing, Amount: d("100")},
			{Name: models.FeeFieldVerification, Amount: d("250")},
		},
		MonthlyRate: decimal.Zero,
		DisbursedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.True(t, out.GSTAmount.Equal(d("18")), "gst: %s", out.GSTAmount)
	assert.True(t, out.FeeAmount.Equal(d("350")))
}

func TestGenerateRejectsBadInput(t *testing.T) {
	_, err := Generate(Input{Principal: decimal.Zero, TenureDays: 30, Frequency: models.FrequencyWeekly})
	assert.Error(t, err)

	_, err = Generate(Input{Principal: d("1000"), TenureDays: 0, Frequency: models.FrequencyWeekly})
	assert.Error(t, err)

	_, err = Generate(Input{Principal: d("1000"), TenureDays: 30, Frequency: "YEARLY"})
	assert.Error(t, err)
}
