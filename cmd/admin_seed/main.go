// Command seed bootstraps a fresh database: the system operator account,
// its wallet with an opening float, the fund pool row and a default loan
// plan. Safe to re-run; existing records are left alone.
package main

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"kosh/internal/config"
	"kosh/internal/models"
	"kosh/internal/repositories"
	"kosh/internal/services/wallet"
	"kosh/internal/utils"
)

func main() {
	config.LoadEnv()

	if err := repositories.InitDB(); err != nil {
		logrus.WithError(err).Fatal("database initialization failed")
	}

	ctx := context.Background()
	store := repositories.NewStore(repositories.DB)
	wallets := wallet.NewService(store.Wallets(), repositories.CacheService)

	operator := seedOperator(store)
	seedOperatorWallet(ctx, wallets, operator)
	seedPool(store)
	seedDefaultPlan(store)

	logrus.Info("seed complete")
}

func seedOperator(store repositories.Store) *models.User {
	email := config.GetEnv("SYSTEM_USER_EMAIL", "ops@kosh.local")

	existing, err := store.Users().GetByEmail(email)
	if err == nil {
		logrus.WithField("user_id", existing.ID).Info("operator account already present")
		return existing
	}
	if !errors.Is(err, repositories.ErrUserNotFound) {
		logrus.WithError(err).Fatal("operator lookup failed")
	}

	password := config.GetEnv("SYSTEM_USER_PASSWORD", "")
	if password == "" {
		generated, err := utils.GenerateSecureCode()
		if err != nil {
			logrus.WithError(err).Fatal("password generation failed")
		}
		password = generated
		logrus.WithField("password", password).Warn("SYSTEM_USER_PASSWORD not set, generated one")
	}
	hash, err := utils.HashSecret(password)
	if err != nil {
		logrus.WithError(err).Fatal("password hash failed")
	}

	operator := &models.User{
		Email:    email,
		Password: hash,
		Name:     "Kosh Operations",
		Phone:    config.GetEnv("SYSTEM_USER_PHONE", "0000000000"),
		Role:     models.RoleAdmin,
		Status:   "active",
	}
	if err := store.Users().Create(operator); err != nil {
		logrus.WithError(err).Fatal("operator create failed")
	}
	logrus.WithFields(logrus.Fields{"user_id": operator.ID, "email": email}).Info("operator account created")
	return operator
}

func seedOperatorWallet(ctx context.Context, wallets wallet.Service, operator *models.User) {
	w, err := wallets.CreateWallet(ctx, operator.ID)
	if err != nil {
		logrus.WithError(err).Fatal("operator wallet create failed")
	}

	balance, err := wallets.GetBalance(ctx, w.ID)
	if err != nil {
		logrus.WithError(err).Fatal("operator balance check failed")
	}
	if balance.IsPositive() {
		return
	}

	float := config.GetDecimalEnv("OPERATOR_FLOAT", "0")
	if float.LessThanOrEqual(decimal.Zero) {
		return
	}
	_, err = wallets.Credit(ctx, wallet.EntryRequest{
		WalletID:    w.ID,
		Amount:      float,
		SourceTag:   models.SourceGatewayTopup,
		Description: "opening float",
	})
	if err != nil {
		logrus.WithError(err).Fatal("operator float credit failed")
	}
	logrus.WithField("amount", float).Info("operator wallet funded")
}

func seedPool(store repositories.Store) {
	if _, err := store.Pool().GetPool(); err == nil {
		logrus.Info("fund pool already present")
		return
	} else if !errors.Is(err, repositories.ErrPoolNotFound) {
		logrus.WithError(err).Fatal("fund pool lookup failed")
	}

	capital := config.GetDecimalEnv("POOL_CAPITAL", "0")
	pool := &models.FundPool{
		TotalCapital: capital,
		Available:    capital,
		Disbursed:    decimal.Zero,
	}
	if err := store.Pool().UpdatePool(pool); err != nil {
		logrus.WithError(err).Fatal("fund pool create failed")
	}
	logrus.WithField("capital", capital).Info("fund pool created")
}

func seedDefaultPlan(store repositories.Store) {
	plans, err := store.Plans().List(false)
	if err != nil {
		logrus.WithError(err).Fatal("plan list failed")
	}
	if len(plans) > 0 {
		logrus.Info("plan catalogue already present")
		return
	}

	instant := decimal.NewFromInt(5000)
	plan := &models.LoanPlan{
		Name:          "starter",
		Amount:        decimal.NewFromInt(10000),
		InstantAmount: &instant,
		Active:        true,
		Configurations: models.TenureConfigs{
			{
				TenureDays:         30,
				InterestRate:       decimal.NewFromInt(2),
				AllowedFrequencies: []string{"DAILY", "WEEKLY"},
				Fees: []models.PlanFee{
					{Name: models.FeeProcessing, Amount: decimal.NewFromInt(500)},
				},
			},
			{
				TenureDays:         60,
				InterestRate:       decimal.NewFromInt(2),
				AllowedFrequencies: []string{"WEEKLY", "15_DAYS"},
				Fees: []models.PlanFee{
					{Name: models.FeeProcessing, Amount: decimal.NewFromInt(500)},
					{Name: models.FeeLogin, Amount: decimal.NewFromInt(100)},
				},
			},
		},
	}
	if err := store.Plans().Create(plan); err != nil {
		logrus.WithError(err).Fatal("default plan create failed")
	}
	logrus.WithField("plan_id", plan.ID).Info("default plan created")
}
