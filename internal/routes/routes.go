// Package routes wires the services together and maps them onto the HTTP
// API.
package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"kosh/internal/config"
	"kosh/internal/handlers"
	"kosh/internal/middleware"
	"kosh/internal/repositories"
	"kosh/internal/services/audit"
	"kosh/internal/services/auth"
	"kosh/internal/services/gateway"
	"kosh/internal/services/loan"
	"kosh/internal/services/plan"
	"kosh/internal/services/pool"
	"kosh/internal/services/wallet"
)

func SetupRoutes(app *fiber.App) {
	store := repositories.NewStore(repositories.DB)

	walletService := wallet.NewService(store.Wallets(), repositories.CacheService)
	auditService := audit.NewService(store.Audit())
	planService := plan.NewService(store.Plans())
	poolService := pool.NewService(store)

	jwtSecret := config.GetEnv("JWT_SECRET", "kosh-dev-secret")
	tokenTTL, err := time.ParseDuration(config.GetEnv("JWT_TTL", "24h"))
	if err != nil {
		tokenTTL = 24 * time.Hour
	}
	authService := auth.NewService(store.Users(), walletService, auth.Config{
		JWTSecret:   jwtSecret,
		TokenTTL:    tokenTTL,
		SignupBonus: config.GetDecimalEnv("SIGNUP_BONUS", "0"),
	})

	var paymentGateway loan.PaymentGateway
	if key := config.GetEnv("STRIPE_SECRET_KEY", ""); key != "" {
		paymentGateway = gateway.NewStripeGateway(key)
	}

	kycTTL, err := time.ParseDuration(config.GetEnv("KYC_TOKEN_TTL", "24h"))
	if err != nil {
		kycTTL = 24 * time.Hour
	}
	loanService := loan.NewService(store, walletService, repositories.CacheService, paymentGateway, auditService, loan.Config{
		SystemUserID:  uint(config.GetIntEnv("SYSTEM_USER_ID", 1)),
		CooldownDays:  config.GetIntEnv("LOAN_COOLDOWN_DAYS", 15),
		KYCTokenTTL:   kycTTL,
		InstantAmount: config.GetDecimalEnv("INSTANT_LOAN_AMOUNT", "0"),
		ReferralBonus: config.GetDecimalEnv("REFERRAL_BONUS", "0"),
	})

	authHandler := handlers.NewAuthHandler(authService)
	walletHandler := handlers.NewWalletHandler(walletService)
	loanHandler := handlers.NewLoanHandler(loanService)
	planHandler := handlers.NewPlanHandler(planService)
	adminHandler := handlers.NewAdminHandler(loanService, poolService)
	healthHandler := handlers.NewHealthHandler(repositories.CacheService)

	app.Get("/health", healthHandler.Check)

	api := app.Group("/api")

	// Public
	api.Post("/register", authHandler.Register)
	api.Post("/login", authHandler.Login)
	api.Get("/plans", planHandler.List)
	api.Get("/plans/:id", planHandler.Get)
	api.Post("/kyc/submit", loanHandler.SubmitKYCByToken)

	// Authenticated
	authed := api.Group("", middleware.Auth(jwtSecret))

	authed.Get("/wallet", walletHandler.GetWallet)
	authed.Get("/wallet/statement", walletHandler.Statement)
	authed.Post("/wallet/pin", walletHandler.SetPin)
	authed.Post("/wallet/transfer", walletHandler.Transfer)

	authed.Post("/loans", loanHandler.Apply)
	authed.Get("/loans/:id", loanHandler.Get)
	authed.Get("/loans/:id/schedule", loanHandler.Schedule)
	authed.Post("/loans/:id/confirm", loanHandler.Confirm)
	authed.Post("/loans/:id/cancel", loanHandler.Cancel)
	authed.Post("/loans/:id/kyc", loanHandler.SubmitKYC)
	authed.Post("/loans/:id/repay", loanHandler.Repay)
	authed.Post("/loans/:id/repay/online", loanHandler.RepayOnline)

	// Admin
	admin := authed.Group("/admin", middleware.RequireAdmin())

	admin.Get("/loans", adminHandler.ListLoans)
	admin.Post("/loans/:id/proceed", adminHandler.Proceed)
	admin.Post("/loans/:id/send-kyc", adminHandler.SendKYC)
	admin.Post("/loans/:id/approve", adminHandler.Approve)
	admin.Post("/loans/:id/release", adminHandler.Release)
	admin.Post("/loans/:id/reject", adminHandler.Reject)
	admin.Get("/loans/:id/allocation", adminHandler.LoanAllocation)
	admin.Post("/loans/:id/collect", adminHandler.ManualCollect)
	admin.Post("/repayments/:id/settle", adminHandler.SettleManualCollect)

	admin.Get("/pool", adminHandler.PoolStatus)
	admin.Put("/pool/capital", adminHandler.SetPoolCapital)
	admin.Put("/allocations/:id", adminHandler.AdjustAllocation)

	admin.Post("/plans", planHandler.Create)
	admin.Put("/plans/:id", planHandler.Update)
}
