package handlers

import (
	"match-escrow-system/middleware"
	"match-escrow-system/models"
	"match-escrow-system/services"

	"github.com/gofiber/fiber/v2"
)

type claimBody struct {
	Asset string `json:"asset"`
}

// SetupAccountRoutes serves stats, history and the credit vault.
func SetupAccountRoutes(r fiber.Router, stats *services.StatsService, payouts *services.PayoutService) {
	r.Get("/stats/:account", func(c *fiber.Ctx) error {
		v, err := stats.Get(c.UserContext(), c.Params("account"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(v)
	})

	r.Get("/penalties", func(c *fiber.Ctx) error {
		list, err := stats.Penalized(c.UserContext())
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(fiber.Map{"accounts": list})
	})

	r.Get("/history", func(c *fiber.Ctx) error {
		list, err := stats.History(c.UserContext(), queryLimit(c, 20, 100))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(fiber.Map{"matches": list})
	})

	r.Get("/s/credits", func(c *fiber.Ctx) error {
		account := middleware.UserID(c)
		credits, err := payouts.ListCredits(c.UserContext(), account)
		if err != nil {
			return writeError(c, err)
		}
		recent, err := payouts.ListPayouts(c.UserContext(), account, queryLimit(c, 20, 100))
		if err != nil {
			return writeError(c, err)
		}
		if credits == nil {
			credits = []models.Credit{}
		}
		return c.JSON(fiber.Map{"credits": credits, "payouts": recent})
	})

	r.Post("/s/credits/claim", func(c *fiber.Ctx) error {
		var body claimBody
		if err := c.BodyParser(&body); err != nil || body.Asset == "" {
			return badRequest(c, "asset is required")
		}
		p, err := payouts.ClaimCredits(c.UserContext(), middleware.UserID(c), body.Asset)
		if err != nil {
			return writeError(c, err)
		}
		return c.Status(fiber.StatusAccepted).JSON(p)
	})
}
