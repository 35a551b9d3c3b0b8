// Package events records domain events as JSON log lines and fans them out
// to live subscribers.
package events

import (
	"encoding/json"
	"log"
	"strconv"
	"time"

	"match-escrow-system/game"
)

// Event is one domain event.
type Event struct {
	Type       string            `json:"type"`
	MatchID    string            `json:"match_id,omitempty"`
	Attributes map[string]string `json:"attributes"`
	At         time.Time         `json:"at"`
}

// Emitter logs every event and publishes it to the broker, if any.
type Emitter struct {
	broker *Broker
	now    func() time.Time
}

func NewEmitter(b *Broker, now func() time.Time) *Emitter {
	if now == nil {
		now = time.Now
	}
	return &Emitter{broker: b, now: now}
}

func (e *Emitter) emit(matchID, eventType string, attributes map[string]string) {
	if e == nil {
		return
	}
	ev := Event{Type: eventType, MatchID: matchID, Attributes: attributes, At: e.now().UTC()}
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[Event] ❌ failed to encode %s event: %v", eventType, err)
		return
	}
	log.Printf("[Event] %s", payload)
	if e.broker != nil {
		e.broker.Publish(ev)
	}
}

func amount(a uint64) string { return strconv.FormatUint(a, 10) }

func (e *Emitter) PlayerAvailable(account, asset string, stake uint64, until time.Time) {
	e.emit("", "playerAvailable", map[string]string{
		"account": account,
		"asset":   asset,
		"stake":   amount(stake),
		"until":   until.UTC().Format(time.RFC3339),
	})
}

func (e *Emitter) PlayerWithdrew(account string) {
	e.emit("", "playerWithdrew", map[string]string{"account": account})
}

func (e *Emitter) LobbyExpired(account string) {
	e.emit("", "lobbyExpired", map[string]string{"account": account})
}

func (e *Emitter) MatchStarted(m *game.Match) {
	e.emit(m.ID, "matchStarted", map[string]string{
		"id":     m.ID,
		"a":      m.Players[0],
		"b":      m.Players[1],
		"asset":  m.Pool.Asset,
		"pool":   amount(m.Pool.Amount),
		"opener": m.CurrentPlayer(),
	})
}

func (e *Emitter) MoveMade(matchID, by string, c game.Coordinate, piece game.Piece) {
	e.emit(matchID, "moveMade", map[string]string{
		"id":    matchID,
		"by":    by,
		"x":     strconv.FormatUint(uint64(c.X), 10),
		"y":     strconv.FormatUint(uint64(c.Y), 10),
		"piece": piece.String(),
	})
}

func (e *Emitter) MatchWon(matchID, winner string, reason game.Reason, reward uint64) {
	e.emit(matchID, "matchWon", map[string]string{
		"id":     matchID,
		"winner": winner,
		"reason": string(reason),
		"reward": amount(reward),
	})
}

func (e *Emitter) MatchTied(matchID string, perPlayer uint64) {
	e.emit(matchID, "matchTied", map[string]string{
		"id":     matchID,
		"refund": amount(perPlayer),
	})
}

func (e *Emitter) PlayerForfeited(matchID, defaulter string, reason game.Reason) {
	e.emit(matchID, "playerForfeited", map[string]string{
		"id":        matchID,
		"defaulter": defaulter,
		"reason":    string(reason),
	})
}

func (e *Emitter) TimeoutClaimed(matchID, by string) {
	e.emit(matchID, "timeoutClaimed", map[string]string{"id": matchID, "by": by})
}

func (e *Emitter) PayoutFailed(payoutID, account, kind, reason string) {
	e.emit("", "payoutFailed", map[string]string{
		"payout":  payoutID,
		"account": account,
		"kind":    kind,
		"reason":  reason,
	})
}

func (e *Emitter) PayoutConfirmed(payoutID, account, kind string) {
	e.emit("", "payoutConfirmed", map[string]string{
		"payout":  payoutID,
		"account": account,
		"kind":    kind,
	})
}

func (e *Emitter) CreditClaimed(account, asset string, amt uint64) {
	e.emit("", "creditClaimed", map[string]string{
		"account": account,
		"asset":   asset,
		"amount":  amount(amt),
	})
}

func (e *Emitter) RulesUpdated(by string) {
	e.emit("", "rulesUpdated", map[string]string{"by": by})
}
