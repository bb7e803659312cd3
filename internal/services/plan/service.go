// Package plan manages loan plans and resolves a requested tenure to the
// plan's closest configured bucket.
package plan

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	domainErrors "kosh/internal/errors"
	"kosh/internal/models"
	"kosh/internal/repositories"
	"kosh/internal/services/schedule"
)

// tenureTolerance is how far (in days) a requested tenure may sit from a
// configured bucket and still match it.
const tenureTolerance = 5

// FindBucket resolves the requested tenure to the nearest configured
// bucket within the tolerance. Ties go to the earlier bucket.
func FindBucket(configs models.TenureConfigs, tenureDays int) (*models.TenureConfig, error) {
	var best *models.TenureConfig
	bestDiff := tenureTolerance + 1
	for i := range configs {
		diff := configs[i].TenureDays - tenureDays
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff {
			best = &configs[i]
			bestDiff = diff
		}
	}
	if best == nil {
		return nil, domainErrors.Validation(fmt.Sprintf("no tenure option within %d days of %d", tenureTolerance, tenureDays))
	}
	return best, nil
}

// ResolveBucket matches tenure and validates the payout frequency against
// the matched bucket in one step.
func ResolveBucket(p *models.LoanPlan, tenureDays int, frequency string) (*models.TenureConfig, error) {
	bucket, err := FindBucket(p.Configurations, tenureDays)
	if err != nil {
		return nil, err
	}
	if !bucket.FrequencyAllowed(frequency) {
		return nil, domainErrors.Validation(fmt.Sprintf("frequency %s not allowed for %d-day tenure", frequency, bucket.TenureDays))
	}
	return bucket, nil
}

// Service is the plan catalogue API.
type Service interface {
	Create(ctx context.Context, p *models.LoanPlan) error
	Update(ctx context.Context, p *models.LoanPlan) error
	Get(ctx context.Context, id uint) (*models.LoanPlan, error)
	List(ctx context.Context, activeOnly bool) ([]models.LoanPlan, error)
}

type service struct {
	repo repositories.PlanRepository
}

func NewService(repo repositories.PlanRepository) Service {
	if repo == nil {
		panic("repo is required")
	}
	return &service{repo: repo}
}

func (s *service) Create(ctx context.Context, p *models.LoanPlan) error {
	if err := validate(p); err != nil {
		return err
	}
	if err := s.repo.Create(p); err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"plan_id": p.ID,
		"name":    p.Name,
		"amount":  p.Amount,
	}).Info("loan plan created")
	return nil
}

func (s *service) Update(ctx context.Context, p *models.LoanPlan) error {
	if err := validate(p); err != nil {
		return err
	}
	if _, err := s.Get(ctx, p.ID); err != nil {
		return err
	}
	if err := s.repo.Update(p); err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	return nil
}

func (s *service) Get(ctx context.Context, id uint) (*models.LoanPlan, error) {
	p, err := s.repo.GetByID(id)
	if err != nil {
		if errors.Is(err, repositories.ErrPlanNotFound) {
			return nil, domainErrors.NotFound("loan plan")
		}
		return nil, err
	}
	return p, nil
}

func (s *service) List(ctx context.Context, activeOnly bool) ([]models.LoanPlan, error) {
	return s.repo.List(activeOnly)
}

func validate(p *models.LoanPlan) error {
	if p.Name == "" {
		return domainErrors.Validation("plan name is required")
	}
	if p.Amount.LessThanOrEqual(decimal.Zero) {
		return domainErrors.ErrInvalidAmount
	}
	if p.InstantAmount != nil {
		if p.InstantAmount.LessThanOrEqual(decimal.Zero) {
			return domainErrors.Validation("instant amount must be positive")
		}
		if p.InstantAmount.GreaterThan(p.Amount) {
			return domainErrors.Validation("instant amount cannot exceed plan amount")
		}
	}
	if len(p.Configurations) == 0 {
		return domainErrors.Validation("plan needs at least one tenure option")
	}
	for _, cfg := range p.Configurations {
		if cfg.TenureDays <= 0 {
			return domainErrors.Validation("tenure days must be positive")
		}
		if cfg.InterestRate.LessThan(decimal.Zero) {
			return domainErrors.Validation("interest rate cannot be negative")
		}
		if len(cfg.AllowedFrequencies) == 0 {
			return domainErrors.Validation("tenure option needs at least one payout frequency")
		}
		for _, f := range cfg.AllowedFrequencies {
			if _, err := schedule.IntervalDays(f); err != nil {
				return err
			}
		}
		for _, fee := range cfg.Fees {
			if fee.Amount.LessThan(decimal.Zero) {
				return domainErrors.Validation("fee amounts cannot be negative")
			}
		}
	}
	return nil
}
