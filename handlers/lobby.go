package handlers

import (
	"time"

	"match-escrow-system/middleware"
	"match-escrow-system/services"

	"github.com/gofiber/fiber/v2"
)

type declareBody struct {
	Asset        string `json:"asset"`
	Amount       uint64 `json:"amount"`
	Opponent     string `json:"opponent"`
	Referrer     string `json:"referrer"`
	AvailableFor string `json:"available_for"` // Go duration, empty for the longest window
}

type pairBody struct {
	Opponent string `json:"opponent"`
}

func SetupLobbyRoutes(r fiber.Router, lobby *services.LobbyService) {
	r.Get("/lobby", func(c *fiber.Ctx) error {
		entries, err := lobby.List(c.UserContext())
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(fiber.Map{"entries": entries})
	})

	r.Post("/s/lobby", func(c *fiber.Ctx) error {
		var body declareBody
		if err := c.BodyParser(&body); err != nil {
			return badRequest(c, "invalid request body")
		}
		var window time.Duration
		if body.AvailableFor != "" {
			d, err := time.ParseDuration(body.AvailableFor)
			if err != nil {
				return badRequest(c, "available_for must be a duration such as 30m")
			}
			window = d
		}
		entry, err := lobby.DeclareAvailable(c.UserContext(), services.DeclareRequest{
			Account:      middleware.UserID(c),
			Stake:        services.Stake{Asset: body.Asset, Amount: body.Amount},
			Opponent:     body.Opponent,
			Referrer:     body.Referrer,
			AvailableFor: window,
		})
		if err != nil {
			return writeError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(entry)
	})

	r.Delete("/s/lobby", func(c *fiber.Ctx) error {
		refund, err := lobby.Withdraw(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(fiber.Map{"refund": refund})
	})

	r.Post("/s/lobby/pair", func(c *fiber.Ctx) error {
		var body pairBody
		if err := c.BodyParser(&body); err != nil || body.Opponent == "" {
			return badRequest(c, "opponent is required")
		}
		m, err := lobby.Pair(c.UserContext(), middleware.UserID(c), body.Opponent)
		if err != nil {
			return writeError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(services.NewView(m))
	})
}
