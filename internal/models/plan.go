package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Fee categories. GST applies to the processing fee only.
const (
	FeeProcessing        = "PROCESSING"
	FeeLogin             = "LOGIN"
	FeeFieldVerification = "FIELD_VERIFICATION"
	FeeOther             = "OTHER"
)

type PlanFee struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// TenureConfig is one tenure bucket of a plan: the fee, interest and
// frequency rules for one supported loan duration.
type TenureConfig struct {
	TenureDays         int                        `json:"tenure_days"`
	InterestRate       decimal.Decimal            `json:"interest_rate"` // monthly %, flat
	InterestRates      map[string]decimal.Decimal `json:"interest_rates,omitempty"`
	Fees               []PlanFee                  `json:"fees"`
	AllowedFrequencies []string                   `json:"allowed_frequencies"`
	GSTRate            decimal.Decimal            `json:"gst_rate"` // %, 0 means default
}

// RateFor returns the interest rate for a payout frequency, falling back
// to the bucket-wide rate when no per-frequency override exists.
func (c TenureConfig) RateFor(frequency string) decimal.Decimal {
	if r, ok := c.InterestRates[frequency]; ok {
		return r
	}
	return c.InterestRate
}

// FrequencyAllowed reports whether the bucket permits the payout frequency.
func (c TenureConfig) FrequencyAllowed(frequency string) bool {
	for _, f := range c.AllowedFrequencies {
		if f == frequency {
			return true
		}
	}
	return false
}

// TenureConfigs is stored as a jsonb column.
type TenureConfigs []TenureConfig

func (t TenureConfigs) Value() (driver.Value, error) {
	return json.Marshal(t)
}

func (t *TenureConfigs) Scan(value interface{}) error {
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("tenure configs: expected []byte")
	}
	return json.Unmarshal(bytes, t)
}

// LoanPlan governs the fee/interest schedule for one principal amount.
// InstantAmount, when set, marks the principal that qualifies for the
// instant fast-path.
type LoanPlan struct {
	ID             uint            `gorm:"primarykey"`
	Name           string          `gorm:"uniqueIndex;not null"`
	Amount         decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	InstantAmount  *decimal.Decimal `gorm:"type:numeric(14,2)"`
	Configurations TenureConfigs   `gorm:"type:jsonb;not null"`
	Active         bool            `gorm:"default:true"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
