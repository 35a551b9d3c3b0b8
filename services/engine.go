// Package services holds the match engine: lobby, matches, settlement,
// expiry and payouts.
package services

import (
	"context"
	"errors"
	"log"

	"match-escrow-system/config"
	"match-escrow-system/events"
	"match-escrow-system/game"
	"match-escrow-system/repository"
	"match-escrow-system/utils"

	"github.com/google/uuid"
)

// Notifier is poked after a commit that queued payouts.
type Notifier interface {
	Notify()
}

// Archiver stores finished match transcripts and returns the object key.
type Archiver interface {
	Put(ctx context.Context, key string, body []byte) (string, error)
}

// Deps are the collaborators shared by every service.
type Deps struct {
	Store    repository.Store
	Rules    *config.RulesHolder
	Clock    utils.Clock
	Coin     game.Coin
	Locks    *utils.KeyLocker
	Events   *events.Emitter
	Notifier Notifier
	Archive  Archiver
	NewID    func() string
}

func (d *Deps) fill() {
	if d.Clock == nil {
		d.Clock = utils.SystemClock{}
	}
	if d.Coin == nil {
		d.Coin = utils.CryptoCoin{}
	}
	if d.Locks == nil {
		d.Locks = utils.NewKeyLocker()
	}
	if d.Rules == nil {
		d.Rules = config.NewRulesHolder(config.DefaultRules())
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
}

func (d *Deps) notify() {
	if d.Notifier != nil {
		d.Notifier.Notify()
	}
}

// Engine wires the services together.
type Engine struct {
	Lobby      *LobbyService
	Matches    *MatchService
	Settlement *SettlementService
	Expiry     *ExpiryMonitor
	Stats      *StatsService
	Payouts    *PayoutService
}

func NewEngine(d Deps) *Engine {
	d.fill()
	deps := &d

	payouts := &PayoutService{deps: deps}
	settle := &SettlementService{deps: deps, payouts: payouts}
	expiry := &ExpiryMonitor{deps: deps, settlement: settle, payouts: payouts}
	return &Engine{
		Lobby:      &LobbyService{deps: deps, expiry: expiry, payouts: payouts},
		Matches:    &MatchService{deps: deps, expiry: expiry, settlement: settle},
		Settlement: settle,
		Expiry:     expiry,
		Stats:      &StatsService{deps: deps},
		Payouts:    payouts,
	}
}

// Wait blocks until background archive uploads finish.
func (e *Engine) Wait() {
	e.Settlement.archives.Wait()
}

func loadMatch(ctx context.Context, tx repository.Tx, id string) (*game.Match, error) {
	rec, err := tx.GetMatch(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	return rec.ToMatch()
}

func logSweepErr(tag string, err error) {
	if err != nil {
		log.Printf("[%s] ⚠️ expiry sweep: %v", tag, err)
	}
}
