package repositories

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"kosh/internal/models"
)

type planRepository struct {
	db *gorm.DB
}

func NewPlanRepository(db *gorm.DB) PlanRepository {
	return &planRepository{db: db}
}

func (r *planRepository) Create(plan *models.LoanPlan) error {
	if err := r.db.Create(plan).Error; err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}
	return nil
}

func (r *planRepository) GetByID(id uint) (*models.LoanPlan, error) {
	var plan models.LoanPlan
	if err := r.db.First(&plan, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return &plan, nil
}

func (r *planRepository) Update(plan *models.LoanPlan) error {
	if err := r.db.Save(plan).Error; err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	return nil
}

func (r *planRepository) List(activeOnly bool) ([]models.LoanPlan, error) {
	query := r.db.Model(&models.LoanPlan{})
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	var plans []models.LoanPlan
	if err := query.Order("amount ASC").Find(&plans).Error; err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	return plans, nil
}

func (r *planRepository) NextLowerPlan(amount decimal.Decimal) (*models.LoanPlan, error) {
	var plan models.LoanPlan
	err := r.db.Where("active = ? AND amount < ?", true, amount).
		Order("amount DESC").
		First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("failed to find lower plan: %w", err)
	}
	return &plan, nil
}
