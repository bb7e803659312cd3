package wallet

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	domainErrors "kosh/internal/errors"
	"kosh/internal/models"
	"kosh/internal/repositories"
	"kosh/internal/utils"
)

type service struct {
	repo  repositories.WalletRepository
	cache Cache
}

// NewService creates a new wallet service.
func NewService(repo repositories.WalletRepository, cache Cache) Service {
	if repo == nil {
		panic("repo is required")
	}
	if cache == nil {
		panic("cache is required")
	}
	return &service{repo: repo, cache: cache}
}

func (s *service) CreateWallet(ctx context.Context, userID uint) (*models.Wallet, error) {
	existing, err := s.repo.GetByUserID(userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repositories.ErrWalletNotFound) {
		return nil, fmt.Errorf("failed to look up wallet: %w", err)
	}

	w := &models.Wallet{UserID: userID, Status: models.WalletStatusActive}
	if err := s.repo.Create(w); err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"user_id":   userID,
		"wallet_id": w.ID,
		"reference": w.Reference,
	}).Info("wallet created")
	return w, nil
}

func (s *service) GetWallet(ctx context.Context, userID uint) (*models.Wallet, error) {
	key := s.cache.GenerateKey("wallet", "user", userID)
	var cached models.Wallet
	if found, err := s.cache.Get(ctx, key, &cached); err == nil && found {
		return &cached, nil
	}

	w, err := s.repo.GetByUserID(userID)
	if err != nil {
		if errors.Is(err, repositories.ErrWalletNotFound) {
			return nil, domainErrors.ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	if err := s.cache.SetWithTTL(ctx, key, w, walletCacheTTL); err != nil {
		logrus.WithError(err).Debug("wallet cache set failed")
	}
	return w, nil
}

func (s *service) GetBalance(ctx context.Context, walletID uint) (decimal.Decimal, error) {
	if _, err := s.getWalletByID(walletID); err != nil {
		return decimal.Zero, err
	}
	return s.repo.Balance(ctx, walletID)
}

func (s *service) GetLockedBalance(ctx context.Context, walletID uint) (decimal.Decimal, error) {
	if _, err := s.getWalletByID(walletID); err != nil {
		return decimal.Zero, err
	}
	return s.repo.LockedBalance(ctx, walletID)
}

func (s *service) Credit(ctx context.Context, req EntryRequest) (*models.WalletTransaction, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, domainErrors.ErrInvalidAmount
	}
	w, err := s.getWalletByID(req.WalletID)
	if err != nil {
		return nil, err
	}

	entry := entryFromRequest(req)
	if err := s.repo.AppendCredit(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to credit wallet: %w", err)
	}

	s.invalidate(ctx, w.UserID)
	logrus.WithFields(logrus.Fields{
		"wallet_id": req.WalletID,
		"amount":    req.Amount,
		"source":    req.SourceTag,
		"status":    entry.Status,
	}).Info("wallet credited")
	return entry, nil
}

func (s *service) Debit(ctx context.Context, req EntryRequest) (*models.WalletTransaction, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, domainErrors.ErrInvalidAmount
	}
	w, err := s.getWalletByID(req.WalletID)
	if err != nil {
		return nil, err
	}

	entry := entryFromRequest(req)
	if err := s.repo.AppendDebit(ctx, entry); err != nil {
		if errors.Is(err, repositories.ErrInsufficientFunds) {
			return nil, domainErrors.ErrInsufficientFunds
		}
		return nil, fmt.Errorf("failed to debit wallet: %w", err)
	}

	s.invalidate(ctx, w.UserID)
	logrus.WithFields(logrus.Fields{
		"wallet_id": req.WalletID,
		"amount":    req.Amount,
		"source":    req.SourceTag,
	}).Info("wallet debited")
	return entry, nil
}

func (s *service) Transfer(ctx context.Context, payerUserID, payeeUserID uint, amount decimal.Decimal, reference string) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return domainErrors.ErrInvalidAmount
	}
	if payerUserID == payeeUserID {
		return domainErrors.Validation("cannot transfer to yourself")
	}

	payer, err := s.GetWallet(ctx, payerUserID)
	if err != nil {
		return err
	}
	payee, err := s.GetWallet(ctx, payeeUserID)
	if err != nil {
		return err
	}

	// Each side's entry references the counterparty wallet so both
	// statements can show who was on the other end.
	debit := &models.WalletTransaction{
		WalletID:    payer.ID,
		Amount:      amount,
		Status:      models.TxStatusCompleted,
		SourceTag:   models.SourceTransfer,
		SourceID:    &payee.ID,
		Description: reference,
	}
	credit := &models.WalletTransaction{
		WalletID:    payee.ID,
		Amount:      amount,
		Status:      models.TxStatusCompleted,
		SourceTag:   models.SourceTransfer,
		SourceID:    &payer.ID,
		Description: reference,
	}

	if err := s.repo.Transfer(ctx, debit, credit); err != nil {
		if errors.Is(err, repositories.ErrInsufficientFunds) {
			return domainErrors.ErrInsufficientFunds
		}
		return fmt.Errorf("transfer failed: %w", err)
	}

	s.invalidate(ctx, payerUserID)
	s.invalidate(ctx, payeeUserID)
	logrus.WithFields(logrus.Fields{
		"payer_wallet": payer.ID,
		"payee_wallet": payee.ID,
		"amount":       amount,
		"reference":    reference,
	}).Info("wallet transfer completed")
	return nil
}

var pinPattern = regexp.MustCompile(`^[0-9]+$`)

func (s *service) SetPin(ctx context.Context, userID uint, pin string) error {
	if len(pin) < pinMinLen || len(pin) > pinMaxLen || !pinPattern.MatchString(pin) {
		return domainErrors.Validation("PIN must be 4-6 digits")
	}
	w, err := s.GetWallet(ctx, userID)
	if err != nil {
		return err
	}
	hash, err := utils.HashSecret(pin)
	if err != nil {
		return fmt.Errorf("failed to hash PIN: %w", err)
	}
	w.PinHash = hash
	if err := s.repo.Update(w); err != nil {
		return fmt.Errorf("failed to store PIN: %w", err)
	}
	s.invalidate(ctx, userID)
	return nil
}

func (s *service) VerifyPin(ctx context.Context, userID uint, pin string) error {
	w, err := s.GetWallet(ctx, userID)
	if err != nil {
		return err
	}
	if !w.HasPin() {
		return domainErrors.ErrPinNotSet
	}
	if !utils.CheckSecret(w.PinHash, pin) {
		return domainErrors.ErrPinMismatch
	}
	return nil
}

func (s *service) ApproveTransaction(ctx context.Context, id uint) error {
	return s.settleTransaction(ctx, id, models.TxStatusCompleted)
}

func (s *service) RejectTransaction(ctx context.Context, id uint) error {
	return s.settleTransaction(ctx, id, models.TxStatusRejected)
}

func (s *service) settleTransaction(ctx context.Context, id uint, to string) error {
	entry, err := s.repo.GetTransactionByID(id)
	if err != nil {
		if errors.Is(err, repositories.ErrTransactionNotFound) {
			return domainErrors.NotFound("wallet transaction")
		}
		return err
	}

	err = s.repo.UpdateTransactionStatus(ctx, id, models.TxStatusPending, to)
	if err != nil {
		if errors.Is(err, repositories.ErrStatusConflict) {
			return domainErrors.ErrAlreadyProcessed
		}
		return err
	}

	if w, werr := s.repo.GetByID(entry.WalletID); werr == nil {
		s.invalidate(ctx, w.UserID)
	}
	logrus.WithFields(logrus.Fields{
		"transaction_id": id,
		"status":         to,
	}).Info("pending ledger entry settled")
	return nil
}

func (s *service) Statement(ctx context.Context, userID uint, limit, offset int) ([]models.WalletTransaction, int64, error) {
	w, err := s.GetWallet(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return s.repo.ListTransactions(ctx, w.ID, limit, offset)
}

func (s *service) getWalletByID(walletID uint) (*models.Wallet, error) {
	w, err := s.repo.GetByID(walletID)
	if err != nil {
		if errors.Is(err, repositories.ErrWalletNotFound) {
			return nil, domainErrors.ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return w, nil
}

func (s *service) invalidate(ctx context.Context, userID uint) {
	key := s.cache.GenerateKey("wallet", "user", userID)
	if err := s.cache.Delete(ctx, key); err != nil {
		logrus.WithError(err).Debug("wallet cache invalidation failed")
	}
}

func entryFromRequest(req EntryRequest) *models.WalletTransaction {
	status := req.Status
	if status == "" {
		status = models.TxStatusCompleted
	}
	return &models.WalletTransaction{
		WalletID:    req.WalletID,
		Amount:      req.Amount,
		Status:      status,
		SourceTag:   req.SourceTag,
		SourceID:    req.SourceID,
		Description: req.Description,
	}
}
