package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"kosh/internal/middleware"
	"kosh/internal/models"
	"kosh/internal/services/loan"
	"kosh/internal/services/pool"
	"kosh/internal/utils"
)

// AdminHandler drives the review pipeline and the fund pool.
type AdminHandler struct {
	loanService loan.Service
	poolService pool.Service
}

func NewAdminHandler(loanService loan.Service, poolService pool.Service) *AdminHandler {
	return &AdminHandler{loanService: loanService, poolService: poolService}
}

func (h *AdminHandler) ListLoans(c *fiber.Ctx) error {
	status := c.Query("status")
	limit := c.QueryInt("limit", 20)
	offset := c.QueryInt("offset", 0)

	loans, total, err := h.loanService.List(c.Context(), status, limit, offset)
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{
		"loans":  loans,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *AdminHandler) Proceed(c *fiber.Ctx) error {
	return h.adminAction(c, h.loanService.Proceed)
}

func (h *AdminHandler) Approve(c *fiber.Ctx) error {
	return h.adminAction(c, h.loanService.Approve)
}

func (h *AdminHandler) Release(c *fiber.Ctx) error {
	return h.adminAction(c, h.loanService.Release)
}

func (h *AdminHandler) SendKYC(c *fiber.Ctx) error {
	claims := middleware.Claims(c)
	id, err := c.ParamsInt("id")
	if err != nil {
		return utils.BadRequest(c, "invalid loan id")
	}

	token, err := h.loanService.SendKYC(c.Context(), uint(id), claims.UserID)
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{"kyc_token": token})
}

func (h *AdminHandler) Reject(c *fiber.Ctx) error {
	claims := middleware.Claims(c)
	id, err := c.ParamsInt("id")
	if err != nil {
		return utils.BadRequest(c, "invalid loan id")
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequest(c, "invalid request body")
	}
	l, err := h.loanService.Reject(c.Context(), uint(id), claims.UserID, req.Reason)
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{"loan": l})
}

func (h *AdminHandler) ManualCollect(c *fiber.Ctx) error {
	claims := middleware.Claims(c)
	id, err := c.ParamsInt("id")
	if err != nil {
		return utils.BadRequest(c, "invalid loan id")
	}

	marked, err := h.loanService.ManualCollect(c.Context(), uint(id), claims.UserID)
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{"repayment": marked})
}

func (h *AdminHandler) SettleManualCollect(c *fiber.Ctx) error {
	claims := middleware.Claims(c)
	id, err := c.ParamsInt("id")
	if err != nil {
		return utils.BadRequest(c, "invalid repayment id")
	}

	var req struct {
		Approve bool `json:"approve"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequest(c, "invalid request body")
	}
	settled, err := h.loanService.SettleManualCollect(c.Context(), uint(id), claims.UserID, req.Approve)
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{"repayment": settled})
}

func (h *AdminHandler) PoolStatus(c *fiber.Ctx) error {
	p, err := h.poolService.Status(c.Context())
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{"pool": p})
}

func (h *AdminHandler) SetPoolCapital(c *fiber.Ctx) error {
	var req struct {
		TotalCapital decimal.Decimal `json:"total_capital"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequest(c, "invalid request body")
	}
	p, err := h.poolService.SetCapital(c.Context(), req.TotalCapital)
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{"pool": p})
}

func (h *AdminHandler) LoanAllocation(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return utils.BadRequest(c, "invalid loan id")
	}
	allocation, err := h.poolService.AllocationForLoan(c.Context(), uint(id))
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{"allocation": allocation})
}

func (h *AdminHandler) AdjustAllocation(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return utils.BadRequest(c, "invalid allocation id")
	}

	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequest(c, "invalid request body")
	}
	allocation, err := h.poolService.AdjustAllocation(c.Context(), uint(id), req.Amount)
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{"allocation": allocation})
}

func (h *AdminHandler) adminAction(c *fiber.Ctx, action func(ctx context.Context, loanID, adminID uint) (*models.Loan, error)) error {
	claims := middleware.Claims(c)
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
