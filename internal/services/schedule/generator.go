// Package schedule derives the repayment schedule for a disbursed loan.
// The generator is pure: it takes the priced inputs and returns the fee
// breakdown plus the installment lines, without touching storage.
package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	domainErrors "kosh/internal/errors"
	"kosh/internal/models"
)

// DefaultGSTRate applies when the plan bucket does not set its own rate.
var DefaultGSTRate = decimal.NewFromInt(18)

var daysFrequency = regexp.MustCompile(`^([0-9]+)_DAYS$`)

// IntervalDays maps a payout frequency token to its interval in days.
func IntervalDays(frequency string) (int, error) {
	switch frequency {
	case models.FrequencyDaily:
		return 1, nil
	case models.FrequencyWeekly:
		return 7, nil
	case models.FrequencyMonthly:
		return 30, nil
	}
	if m := daysFrequency.FindStringSubmatch(frequency); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 {
			return n, nil
		}
	}
	return 0, domainErrors.Validation(fmt.Sprintf("unsupported payout frequency %q", frequency))
}

// Input carries everything the generator needs to price one loan.
type Input struct {
	Principal   decimal.Decimal
	TenureDays  int
	Frequency   string
	Fees        []models.PlanFee
	MonthlyRate decimal.Decimal // flat % per 30 days
	GSTRate     decimal.Decimal // %, zero falls back to DefaultGSTRate
	DisbursedAt time.Time
}

// Installment is one line of the repayment schedule.
type Installment struct {
	Amount  decimal.Decimal
	DueDate time.Time
}

// Schedule is the priced outcome: the charge breakdown and the
// installments that sum exactly to TotalPayable.
type Schedule struct {
	FeeAmount      decimal.Decimal
	InterestAmount decimal.Decimal
	GSTAmount      decimal.Decimal
	TotalPayable   decimal.Decimal
	Installments   []Installment
}

// Generate prices the loan and splits the total payable across
// installments. Distribution is exact to the paisa: the base installment
// is the floor of the even split, the leftover paise go one each to the
// earliest regular installments, and any tenure remainder shorter than a
// full interval becomes a final stub due on the last tenure day.
func Generate(in Input) (*Schedule, error) {
	if in.Principal.LessThanOrEqual(decimal.Zero) {
		return nil, domainErrors.ErrInvalidAmount
	}
	if in.TenureDays <= 0 {
		return nil, domainErrors.Validation("tenure must be positive")
	}
	interval, err := IntervalDays(in.Frequency)
	if err != nil {
		return nil, err
	}

	fees := decimal.Zero
	processingFees := decimal.Zero
	for _, f := range in.Fees {
		fees = fees.Add(f.Amount)
		if f.Name == models.FeeProcessing {
			processingFees = processingFees.Add(f.Amount)
		}
	}

	gstRate := in.GSTRate
	if gstRate.IsZero() {
		gstRate = DefaultGSTRate
	}
	gst := processingFees.Mul(gstRate).Div(decimal.NewFromInt(100)).Round(2)

	// interest = principal * monthly rate * tenure/30, flat.
	interest := in.Principal.
		Mul(in.MonthlyRate).
		Mul(decimal.NewFromInt(int64(in.TenureDays))).
		Div(decimal.NewFromInt(3000)).
		Round(2)

	total := in.Principal.Add(fees).Add(gst).Add(interest)

	regular := in.TenureDays / interval
	stubDays := in.TenureDays % interval

	lines := regular
	if stubDays > 0 {
		lines++
	}

	totalPaise := toPaise(total)
	basePaise := totalPaise / int64(lines)
	extraPaise := totalPaise % int64(lines)

	installments := make([]Installment, 0, lines)
	distributed := int64(0)
	for i := 1; i <= regular; i++ {
		amount := basePaise
		if int64(i) <= extraPaise {
			amount++
		}
		distributed += amount
		installments = append(installments, Installment{
			Amount:  fromPaise(amount),
			DueDate: in.DisbursedAt.AddDate(0, 0, i*interval),
		})
	}
	if stubDays > 0 {
		if leftover := totalPaise - distributed; leftover > 0 {
			installments = append(installments, Installment{
				Amount:  fromPaise(leftover),
				DueDate: in.DisbursedAt.AddDate(0, 0, in.TenureDays),
			})
		}
	}

	return &Schedule{
		FeeAmount:      fees,
		InterestAmount: interest,
		GSTAmount:      gst,
		TotalPayable:   total,
		Installments:   installments,
	}, nil
}

func toPaise(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

func fromPaise(p int64) decimal.Decimal {
	return decimal.New(p, -2)
}
