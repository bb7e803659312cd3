package repositories

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"kosh/internal/models"
)

type loanRepository struct {
	db *gorm.DB
}

func NewLoanRepository(db *gorm.DB) LoanRepository {
	return &loanRepository{db: db}
}

func (r *loanRepository) Create(loan *models.Loan) error {
	if err := r.db.Create(loan).Error; err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

func (r *loanRepository) GetByID(id uint) (*models.Loan, error) {
	var loan models.Loan
	if err := r.db.First(&loan, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLoanNotFound
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return &loan, nil
}

func (r *loanRepository) GetByIDForUpdate(ctx context.Context, id uint) (*models.Loan, error) {
	var loan models.Loan
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&loan, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLoanNotFound
		}
		return nil, fmt.Errorf("failed to lock loan: %w", err)
	}
	return &loan, nil
}

func (r *loanRepository) Update(loan *models.Loan) error {
	if err := r.db.Save(loan).Error; err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	return nil
}

func (r *loanRepository) ActiveLoanForUser(userID uint) (*models.Loan, error) {
	var loan models.Loan
	err := r.db.Where("user_id = ? AND status NOT IN ?", userID,
		[]string{models.LoanClosed, models.LoanCancelled, models.LoanRejected}).
		Order("created_at DESC").
		First(&loan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLoanNotFound
		}
		return nil, fmt.Errorf("failed to find active loan: %w", err)
	}
	return &loan, nil
}

func (r *loanRepository) LatestDisbursedForUser(userID uint) (*models.Loan, error) {
	var loan models.Loan
	err := r.db.Where("user_id = ? AND disbursed_at IS NOT NULL", userID).
		Order("disbursed_at DESC").
		First(&loan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLoanNotFound
		}
		return nil, fmt.Errorf("failed to find disbursed loan: %w", err)
	}
	return &loan, nil
}

func (r *loanRepository) HasClosedLoanWithPlan(userID, planID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.Loan{}).
		Where("user_id = ? AND plan_id = ? AND status = ?", userID, planID, models.LoanClosed).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check closed loans: %w", err)
	}
	return count > 0, nil
}

func (r *loanRepository) List(status string, limit, offset int) ([]models.Loan, int64, error) {
	query := r.db.Model(&models.Loan{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count loans: %w", err)
	}
	var loans []models.Loan
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&loans).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list loans: %w", err)
	}
	return loans, total, nil
}

func (r *loanRepository) CreateRepayments(repayments []models.LoanRepayment) error {
	if err := r.db.Create(&repayments).Error; err != nil {
		return fmt.Errorf("failed to create repayments: %w", err)
	}
	return nil
}

func (r *loanRepository) GetRepayment(id uint) (*models.LoanRepayment, error) {
	var repayment models.LoanRepayment
	if err := r.db.First(&repayment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRepaymentNotFound
		}
		return nil, fmt.Errorf("failed to get repayment: %w", err)
	}
	return &repayment, nil
}

func (r *loanRepository) EarliestPendingRepayment(ctx context.Context, loanID uint) (*models.LoanRepayment, error) {
	var repayment models.LoanRepayment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("loan_id = ? AND status = ?", loanID, models.RepaymentPending).
		Order("due_date ASC").
		First(&repayment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRepaymentNotFound
		}
		return nil, fmt.Errorf("failed to find pending repayment: %w", err)
	}
	return &repayment, nil
}

func (r *loanRepository) UpdateRepayment(repayment *models.LoanRepayment) error {
	if err := r.db.Save(repayment).Error; err != nil {
		return fmt.Errorf("failed to update repayment: %w", err)
	}
	return nil
}

func (r *loanRepository) UnpaidRepaymentCount(loanID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.LoanRepayment{}).
		Where("loan_id = ? AND status <> ?", loanID, models.RepaymentPaid).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count unpaid repayments: %w", err)
	}
	return count, nil
}

func (r *loanRepository) ListRepayments(loanID uint) ([]models.LoanRepayment, error) {
	var repayments []models.LoanRepayment
	err := r.db.Where("loan_id = ?", loanID).Order("due_date ASC").Find(&repayments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list repayments: %w", err)
	}
	return repayments, nil
}
