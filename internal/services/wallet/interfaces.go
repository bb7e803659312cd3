package wallet

import (
	"context"

	"github.com/shopspring/decimal"

	"kosh/internal/models"
)

// Service is the wallet ledger API consumed by the loan engine and by
// external collaborators (bonus crediting, cashback, transfers).
type Service interface {
	// CreateWallet is idempotent: it returns the existing wallet when one
	// is already present for the user.
	CreateWallet(ctx context.Context, userID uint) (*models.Wallet, error)
	GetWallet(ctx context.Context, userID uint) (*models.Wallet, error)

	GetBalance(ctx context.Context, walletID uint) (decimal.Decimal, error)
	GetLockedBalance(ctx context.Context, walletID uint) (decimal.Decimal, error)

	Credit(ctx context.Context, req EntryRequest) (*models.WalletTransaction, error)
	Debit(ctx context.Context, req EntryRequest) (*models.WalletTransaction, error)
	Transfer(ctx context.Context, payerUserID, payeeUserID uint, amount decimal.Decimal, reference string) error

	SetPin(ctx context.Context, userID uint, pin string) error
	VerifyPin(ctx context.Context, userID uint, pin string) error

	ApproveTransaction(ctx context.Context, id uint) error
	RejectTransaction(ctx context.Context, id uint) error

	Statement(ctx context.Context, userID uint, limit, offset int) ([]models.WalletTransaction, int64, error)
}
