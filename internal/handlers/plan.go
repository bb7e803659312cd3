package handlers

import (
	"github.com/gofiber/fiber/v2"

	"kosh/internal/models"
	"kosh/internal/services/plan"
	"kosh/internal/utils"
)

type PlanHandler struct {
	planService plan.Service
}

func NewPlanHandler(planService plan.Service) *PlanHandler {
	return &PlanHandler{planService: planService}
}

// List returns the active catalogue for borrowers; admins can pass
// ?all=true to include retired plans.
func (h *PlanHandler) List(c *fiber.Ctx) error {
	activeOnly := !c.QueryBool("all", false)
	plans, err := h.planService.List(c.Context(), activeOnly)
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{"plans": plans})
}

func (h *PlanHandler) Get(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return utils.BadRequest(c, "invalid plan id")
	}
	p, err := h.planService.Get(c.Context(), uint(id))
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{"plan": p})
}

func (h *PlanHandler) Create(c *fiber.Ctx) error {
	var p models.LoanPlan
	if err := c.BodyParser(&p); err != nil {
		return utils.BadRequest(c, "invalid request body")
	}
	if err := h.planService.Create(c.Context(), &p); err != nil {
		return utils.Error(c, err)
	}
	return utils.Created(c, fiber.Map{"plan": p})
}

func (h *PlanHandler) Update(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return utils.BadRequest(c, "invalid plan id")
	}

	var p models.LoanPlan
	if err := c.BodyParser(&p); err != nil {
		return utils.BadRequest(c, "invalid request body")
	}
	p.ID = uint(id)
	if err := h.planService.Update(c.Context(), &p); err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{"plan": p})
}
