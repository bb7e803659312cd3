package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	domainErrors "kosh/internal/errors"
	"kosh/internal/middleware"
	"kosh/internal/models"
	"kosh/internal/services/gateway"
	"kosh/internal/services/loan"
	"kosh/internal/utils"
)

type LoanHandler struct {
	loanService loan.Service
}

func NewLoanHandler(loanService loan.Service) *LoanHandler {
	return &LoanHandler{loanService: loanService}
}

func (h *LoanHandler) Apply(c *fiber.Ctx) error {
	claims := middleware.Claims(c)
	if claims == nil {
		return utils.Unauthorized(c)
	}

	var req struct {
		PlanID     uint            `json:"plan_id"`
		Amount     decimal.Decimal `json:"amount"`
		TenureDays int             `json:"tenure_days"`
		Frequency  string          `json:"frequency"`
		KYCData    models.JSON     `json:"kyc_data"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequest(c, "invalid request body")
	}

	l, quote, err := h.loanService.Apply(c.Context(), loan.ApplyRequest{
		UserID:     claims.UserID,
		PlanID:     req.PlanID,
		Amount:     req.Amount,
		TenureDays: req.TenureDays,
		Frequency:  req.Frequency,
		KYCData:    req.KYCData,
	})
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Created(c, fiber.Map{"loan": l, "quote": quote})
}

func (h *LoanHandler) Get(c *fiber.Ctx) error {
	claims := middleware.Claims(c)
	if claims == nil {
		return utils.Unauthorized(c)
	}
	l, err := h.ownedLoan(c, claims)
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{"loan": l})
}

func (h *LoanHandler) Schedule(c *fiber.Ctx) error {
	claims := middleware.Claims(c)
	if claims == nil {
		return utils.Unauthorized(c)
	}
	l, err := h.ownedLoan(c, claims)
	if err != nil {
		return utils.Error(c, err)
	}
	repayments, err := h.loanService.Schedule(c.Context(), l.ID)
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{"schedule": repayments})
}

func (h *LoanHandler) Confirm(c *fiber.Ctx) error {
	return h.ownerAction(c, h.loanService.Confirm)
}

func (h *LoanHandler) Cancel(c *fiber.Ctx) error {
	return h.ownerAction(c, h.loanService.Cancel)
}

func (h *LoanHandler) SubmitKYC(c *fiber.Ctx) error {
	claims := middleware.Claims(c)
	if claims == nil {
		return utils.Unauthorized(c)
	}
	id, err := c.ParamsInt("id")
	if err != nil {
		return utils.BadRequest(c, "invalid loan id")
	}

	var data models.JSON
	if err := c.BodyParser(&data); err != nil {
		return utils.BadRequest(c, "invalid request body")
	}
	l, err := h.loanService.SubmitKYC(c.Context(), uint(id), claims.UserID, data)
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{"loan": l})
}

// SubmitKYCByToken is the public endpoint behind the one-time KYC link.
func (h *LoanHandler) SubmitKYCByToken(c *fiber.Ctx) error {
	var req struct {
		Token string      `json:"token"`
		Data  models.JSON `json:"data"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequest(c, "invalid request body")
	}
	if req.Token == "" {
		return utils.BadRequest(c, "token is required")
	}
	l, err := h.loanService.SubmitKYCByToken(c.Context(), req.Token, req.Data)
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{"loan": l})
}

func (h *LoanHandler) Repay(c *fiber.Ctx) error {
	claims := middleware.Claims(c)
	if claims == nil {
		return utils.Unauthorized(c)
	}
	id, err := c.ParamsInt("id")
	if err != nil {
		return utils.BadRequest(c, "invalid loan id")
	}

	var req struct {
		Pin string `json:"pin"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequest(c, "invalid request body")
	}
	paid, err := h.loanService.Repay(c.Context(), uint(id), claims.UserID, req.Pin)
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{"repayment": paid})
}

func (h *LoanHandler) RepayOnline(c *fiber.Ctx) error {
	claims := middleware.Claims(c)
	if claims == nil {
		return utils.Unauthorized(c)
	}
	id, err := c.ParamsInt("id")
	if err != nil {
		return utils.BadRequest(c, "invalid loan id")
	}

	var req struct {
		Card gateway.Card `json:"card"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequest(c, "invalid request body")
	}
	paid, err := h.loanService.RepayOnline(c.Context(), uint(id), claims.UserID, req.Card)
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{"repayment": paid})
}

func (h *LoanHandler) ownedLoan(c *fiber.Ctx, claims *models.UserClaims) (*models.Loan, error) {
	id, err := c.ParamsInt("id")
	if err != nil {
		return nil, domainErrors.Validation("invalid loan id")
	}
	l, err := h.loanService.Get(c.Context(), uint(id))
	if err != nil {
		return nil, err
	}
	if l.UserID != claims.UserID && claims.Role != models.RoleAdmin {
		return nil, domainErrors.ErrForbidden
	}
	return l, nil
}

func (h *LoanHandler) ownerAction(c *fiber.Ctx, action func(ctx context.Context, loanID, userID uint) (*models.Loan, error)) error {
	claims := middleware.Claims(c)
	if claims == nil {
		return utils.Unauthorized(c)
	}
	id, err := c.ParamsInt("id")
	if err != nil {
		return utils.BadRequest(c, "invalid loan id")
	}
	l, err := action(c.Context(), uint(id), claims.UserID)
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{"loan": l})
}
