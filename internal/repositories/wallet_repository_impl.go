package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"kosh/internal/models"
)

type walletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) WalletRepository {
	return &walletRepository{db: db}
}

func (r *walletRepository) Create(wallet *models.Wallet) error {
	if err := r.db.Create(wallet).Error; err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

func (r *walletRepository) GetByID(id uint) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.First(&wallet, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &wallet, nil
}

func (r *walletRepository) GetByUserID(userID uint) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.Where("user_id = ?", userID).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &wallet, nil
}

func (r *walletRepository) Update(wallet *models.Wallet) error {
	if err := r.db.Save(wallet).Error; err != nil {
		return fmt.Errorf("failed to update wallet: %w", err)
	}
	return nil
}

func (r *walletRepository) Balance(ctx context.Context, walletID uint) (decimal.Decimal, error) {
	return r.balance(r.db.WithContext(ctx), walletID)
}

// balance recomputes the derived balance from COMPLETED entries using
// whatever connection it is given, so the same query runs both for plain
// reads and under a row lock inside a debit.
func (r *walletRepository) balance(db *gorm.DB, walletID uint) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := db.Model(&models.WalletTransaction{}).
		Where("wallet_id = ? AND status = ?", walletID, models.TxStatusCompleted).
		Select("COALESCE(SUM(CASE WHEN direction = 'CREDIT' THEN amount ELSE -amount END), 0)").
		Scan(&balance).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to compute balance: %w", err)
	}
	return balance, nil
}

func (r *walletRepository) LockedBalance(ctx context.Context, walletID uint) (decimal.Decimal, error) {
	var locked decimal.Decimal
	err := r.db.WithContext(ctx).Model(&models.WalletTransaction{}).
		Where("wallet_id = ? AND status = ? AND direction = ? AND source_tag = ?",
			walletID, models.TxStatusPending, models.DirectionCredit, models.SourceLoanLock).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&locked).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to compute locked balance: %w", err)
	}
	return locked, nil
}

func (r *walletRepository) AppendCredit(ctx context.Context, entry *models.WalletTransaction) error {
	entry.Direction = models.DirectionCredit
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append credit entry: %w", err)
	}
	return nil
}

func (r *walletRepository) AppendDebit(ctx context.Context, entry *models.WalletTransaction) error {
	entry.Direction = models.DirectionDebit
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockWallet(tx, entry.WalletID); err != nil {
			return err
		}
		balance, err := r.balance(tx, entry.WalletID)
		if err != nil {
			return err
		}
		if balance.LessThan(entry.Amount) {
			return ErrInsufficientFunds
		}
		return tx.Create(entry).Error
	})
}

func (r *walletRepository) Transfer(ctx context.Context, debit, credit *models.WalletTransaction) error {
	debit.Direction = models.DirectionDebit
	credit.Direction = models.DirectionCredit
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock both wallet rows in id order so two opposing transfers
		// cannot deadlock.
		first, second := debit.WalletID, credit.WalletID
		if second < first {
			first, second = second, first
		}
		if err := lockWallet(tx, first); err != nil {
			return err
		}
		if err := lockWallet(tx, second); err != nil {
			return err
		}
		balance, err := r.balance(tx, debit.WalletID)
		if err != nil {
			return err
		}
		if balance.LessThan(debit.Amount) {
			return ErrInsufficientFunds
		}
		if err := tx.Create(debit).Error; err != nil {
			return err
		}
		return tx.Create(credit).Error
	})
}

// lockWallet takes a FOR UPDATE lock on the wallet row, serializing every
// balance-check-then-append against the same wallet.
func lockWallet(tx *gorm.DB, walletID uint) error {
	var wallet models.Wallet
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&wallet, walletID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrWalletNotFound
	}
	return err
}

func (r *walletRepository) GetTransactionByID(id uint) (*models.WalletTransaction, error) {
	var entry models.WalletTransaction
	if err := r.db.First(&entry, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &entry, nil
}

func (r *walletRepository) UpdateTransactionStatus(ctx context.Context, id uint, from, to string) error {
	result := r.db.WithContext(ctx).Model(&models.WalletTransaction{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if result.Error != nil {
		return fmt.Errorf("failed to update transaction status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *walletRepository) ListTransactions(ctx context.Context, walletID uint, limit, offset int) ([]models.WalletTransaction, int64, error) {
	var total int64
	query := r.db.WithContext(ctx).Model(&models.WalletTransaction{}).Where("wallet_id = ?", walletID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	var entries []models.WalletTransaction
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&entries).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	return entries, total, nil
}
