package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"kosh/internal/middleware"
	"kosh/internal/services/wallet"
	"kosh/internal/utils"
)

type WalletHandler struct {
	walletService wallet.Service
}

func NewWalletHandler(walletService wallet.Service) *WalletHandler {
	return &WalletHandler{walletService: walletService}
}

// GetWallet returns the wallet with its derived balances.
func (h *WalletHandler) GetWallet(c *fiber.Ctx) error {
	claims := middleware.Claims(c)
	if claims == nil {
		return utils.Unauthorized(c)
	}

	w, err := h.walletService.GetWallet(c.Context(), claims.UserID)
	if err != nil {
		return utils.Error(c, err)
	}
	balance, err := h.walletService.GetBalance(c.Context(), w.ID)
	if err != nil {
		return utils.Error(c, err)
	}
	locked, err := h.walletService.GetLockedBalance(c.Context(), w.ID)
	if err != nil {
		return utils.Error(c, err)
	}

	return utils.Success(c, fiber.Map{
		"wallet":         w,
		"balance":        balance,
		"locked_balance": locked,
	})
}

func (h *WalletHandler) Statement(c *fiber.Ctx) error {
	claims := middleware.Claims(c)
	if claims == nil {
		return utils.Unauthorized(c)
	}

	limit := c.QueryInt("limit", 20)
	offset := c.QueryInt("offset", 0)
	entries, total, err := h.walletService.Statement(c.Context(), claims.UserID, limit, offset)
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{
		"transactions": entries,
		"total":        total,
		"limit":        limit,
		"offset":       offset,
	})
}

func (h *WalletHandler) SetPin(c *fiber.Ctx) error {
	claims := middleware.Claims(c)
	if claims == nil {
		return utils.Unauthorized(c)
	}

	var req struct {
		Pin string `json:"pin"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequest(c, "invalid request body")
	}
	if err := h.walletService.SetPin(c.Context(), claims.UserID, req.Pin); err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{"message": "PIN updated"})
}

func (h *WalletHandler) Transfer(c *fiber.Ctx) error {
	claims := middleware.Claims(c)
	if claims == nil {
		return utils.Unauthorized(c)
	}

	var req struct {
		PayeeUserID uint            `json:"payee_user_id"`
		Amount      decimal.Decimal `json:"amount"`
		Pin         string          `json:"pin"`
		Reference   string          `json:"reference"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequest(c, "invalid request body")
	}

	if err := h.walletService.VerifyPin(c.Context(), claims.UserID, req.Pin); err != nil {
		return utils.Error(c, err)
	}
	if err := h.walletService.Transfer(c.Context(), claims.UserID, req.PayeeUserID, req.Amount, req.Reference); err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{
		"message": "transfer completed",
		"amount":  req.Amount,
	})
}
