package repositories

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"kosh/internal/models"
)

type poolRepository struct {
	db *gorm.DB
}

func NewPoolRepository(db *gorm.DB) PoolRepository {
	return &poolRepository{db: db}
}

func (r *poolRepository) GetPool() (*models.FundPool, error) {
	var pool models.FundPool
	if err := r.db.First(&pool).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPoolNotFound
		}
		return nil, fmt.Errorf("failed to get fund pool: %w", err)
	}
	return &pool, nil
}

func (r *poolRepository) GetPoolForUpdate(ctx context.Context) (*models.FundPool, error) {
	var pool models.FundPool
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&pool).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPoolNotFound
		}
		return nil, fmt.Errorf("failed to lock fund pool: %w", err)
	}
	return &pool, nil
}

func (r *poolRepository) UpdatePool(pool *models.FundPool) error {
	if err := r.db.Save(pool).Error; err != nil {
		return fmt.Errorf("failed to update fund pool: %w", err)
	}
	return nil
}

func (r *poolRepository) CreateAllocation(allocation *models.LoanAllocation) error {
	if err := r.db.Create(allocation).Error; err != nil {
		return fmt.Errorf("failed to create allocation: %w", err)
	}
	return nil
}

func (r *poolRepository) GetAllocation(id uint) (*models.LoanAllocation, error) {
	var allocation models.LoanAllocation
	if err := r.db.First(&allocation, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAllocationNotFound
		}
		return nil, fmt.Errorf("failed to get allocation: %w", err)
	}
	return &allocation, nil
}

func (r *poolRepository) GetAllocationByLoan(loanID uint) (*models.LoanAllocation, error) {
	var allocation models.LoanAllocation
	if err := r.db.Where("loan_id = ?", loanID).First(&allocation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAllocationNotFound
		}
		return nil, fmt.Errorf("failed to get allocation: %w", err)
	}
	return &allocation, nil
}

func (r *poolRepository) UpdateAllocation(allocation *models.LoanAllocation) error {
	if err := r.db.Save(allocation).Error; err != nil {
		return fmt.Errorf("failed to update allocation: %w", err)
	}
	return nil
}
