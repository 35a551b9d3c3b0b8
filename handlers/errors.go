package handlers

import (
	"errors"
	"log"
	"strconv"

	"match-escrow-system/game"
	"match-escrow-system/services"

	"github.com/gofiber/fiber/v2"
)

// statusFor maps engine errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidRequest),
		errors.Is(err, services.ErrStakeTooLow),
		errors.Is(err, services.ErrAvailabilityWindow),
		errors.Is(err, services.ErrOpponentRestricted),
		errors.Is(err, services.ErrStakeMismatch),
		errors.Is(err, services.ErrAssetMismatch),
		errors.Is(err, game.ErrInvalidPosition),
		errors.Is(err, game.ErrTileFilled),
		errors.Is(err, game.ErrNotYourTurn),
		errors.Is(err, game.ErrSelfPlay),
		errors.Is(err, game.ErrCurrentPlayer):
		return fiber.StatusBadRequest
	case errors.Is(err, game.ErrNotParticipant):
		return fiber.StatusForbidden
	case errors.Is(err, services.ErrMatchNotFound),
		errors.Is(err, services.ErrNotInLobby):
		return fiber.StatusNotFound
	case errors.Is(err, game.ErrNotActive),
		errors.Is(err, game.ErrGameOver),
		errors.Is(err, services.ErrAlreadyInLobby),
		errors.Is(err, services.ErrInActiveMatch),
		errors.Is(err, services.ErrPayoutSettled),
		errors.Is(err, services.ErrNoCredit):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func writeError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		log.Printf("[API] ❌ %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(status).JSON(fiber.Map{"error": "internal error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

// queryLimit reads ?limit=, falling back to def and capping at max.
func queryLimit(c *fiber.Ctx, def, max int) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
