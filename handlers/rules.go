package handlers

import (
	"log"

	"match-escrow-system/config"
	"match-escrow-system/events"
	"match-escrow-system/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type rulesView struct {
	ServiceFeePercent    string `json:"service_fee_percent"`
	ReferrerSharePercent string `json:"referrer_share_percent"`
	MinStake             uint64 `json:"min_stake"`
	BoardSize            uint   `json:"board_size"`
	WinLength            uint   `json:"win_length"`
	MaxMatchDuration     string `json:"max_match_duration"`
	MaxTurnDuration      string `json:"max_turn_duration"`
	ClaimTimeout         string `json:"claim_timeout"`
	MinAvailableFor      string `json:"min_available_for"`
	MaxAvailableFor      string `json:"max_available_for"`
	SweepInterval        string `json:"sweep_interval"`
	MaxStoredMatches     int    `json:"max_stored_matches"`
}

func percent(bp uint64) string {
	return decimal.New(int64(bp), -2).String()
}

func newRulesView(r config.Rules) rulesView {
	return rulesView{
		ServiceFeePercent:    percent(r.ServiceFeeBP),
		ReferrerSharePercent: percent(r.ReferrerShareBP),
		MinStake:             r.MinStake,
		BoardSize:            r.BoardSize,
		WinLength:            r.WinLength,
		MaxMatchDuration:     r.MaxMatchDuration.String(),
		MaxTurnDuration:      r.MaxTurnDuration.String(),
		ClaimTimeout:         r.ClaimTimeout.String(),
		MinAvailableFor:      r.MinAvailableFor.String(),
		MaxAvailableFor:      r.MaxAvailableFor.String(),
		SweepInterval:        r.SweepInterval.String(),
		MaxStoredMatches:     r.MaxStoredMatches,
	}
}

// SetupRulesRoutes exposes the current rules and lets admins replace them.
// The body of PUT is a rules document in the rules file format (YAML or
// JSON); fields left out take their defaults.
func SetupRulesRoutes(r fiber.Router, holder *config.RulesHolder, emitter *events.Emitter) {
	r.Get("/rules", func(c *fiber.Ctx) error {
		return c.JSON(newRulesView(holder.Get()))
	})

	admin := r.Group("/s/admin", middleware.RequireRole("admin"))
	admin.Put("/rules", func(c *fiber.Ctx) error {
		rules, err := config.ParseRules(c.Body())
		if err != nil {
			return badRequest(c, err.Error())
		}
		if err := holder.Replace(rules); err != nil {
			return badRequest(c, err.Error())
		}
		by := middleware.UserID(c)
		log.Printf("[Rules] ✅ rules replaced by %s: fee %s%%, board %d, win %d",
			by, percent(rules.ServiceFeeBP), rules.BoardSize, rules.WinLength)
		emitter.RulesUpdated(by)
		return c.JSON(newRulesView(rules))
	})
}
