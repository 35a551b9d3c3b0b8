package handlers

import (
	"match-escrow-system/game"
	"match-escrow-system/middleware"
	"match-escrow-system/services"

	"github.com/gofiber/fiber/v2"
)

type moveBody struct {
	X *uint `json:"x"`
	Y *uint `json:"y"`
}

func SetupMatchRoutes(r fiber.Router, matches *services.MatchService, stream *services.EventStream) {
	r.Get("/matches", func(c *fiber.Ctx) error {
		list, err := matches.List(c.UserContext())
		if err != nil {
			return writeError(c, err)
		}
		views := make([]services.View, 0, len(list))
		for _, m := range list {
			views = append(views, services.NewView(m))
		}
		return c.JSON(fiber.Map{"matches": views})
	})

	r.Get("/matches/:id", func(c *fiber.Ctx) error {
		m, err := matches.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(services.NewView(m))
	})

	if stream != nil {
		r.Get("/matches/:id/events", stream.StreamMatchEvents)
	}

	r.Post("/s/matches/:id/moves", func(c *fiber.Ctx) error {
		var body moveBody
		if err := c.BodyParser(&body); err != nil || body.X == nil || body.Y == nil {
			return badRequest(c, "x and y are required")
		}
		res, err := matches.MakeMove(c.UserContext(), middleware.UserID(c), c.Params("id"),
			game.Coordinate{X: *body.X, Y: *body.Y})
		if err != nil {
			return writeError(c, err)
		}
		resp := fiber.Map{"result": res}
		if !res.Turn.Ended {
			resp["match"] = services.NewView(res.Match)
		}
		return c.JSON(resp)
	})

	r.Post("/s/matches/:id/claim-timeout", func(c *fiber.Ctx) error {
		caller := middleware.UserID(c)
		res, err := matches.ClaimTimeoutWin(c.UserContext(), caller, c.Params("id"))
		if err != nil {
			return writeError(c, err)
		}
		if res == nil {
			return c.JSON(fiber.Map{"claimed": false})
		}
		// An overdue match may have been settled against the caller instead.
		return c.JSON(fiber.Map{"claimed": res.Outcome.Winner == caller, "settlement": res})
	})

	r.Post("/s/matches/:id/give-up", func(c *fiber.Ctx) error {
		res, err := matches.GiveUp(c.UserContext(), middleware.UserID(c), c.Params("id"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(fiber.Map{"settlement": res})
	})
}
