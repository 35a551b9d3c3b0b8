package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"match-escrow-system/game"
	"match-escrow-system/models"
	"match-escrow-system/repository"
	"match-escrow-system/utils"
)

// ExpiryMonitor retires stale lobby entries and overdue matches. Every
// mutating lobby and match operation sweeps first; the scheduler sweeps
// when traffic is idle.
type ExpiryMonitor struct {
	deps       *Deps
	settlement *SettlementService
	payouts    *PayoutService
}

// Sweep runs both sweeps at the current time.
func (e *ExpiryMonitor) Sweep(ctx context.Context) error {
	return e.sweep(ctx, "")
}

// sweep leaves skipMatch alone; the caller resolves it under its own locks.
func (e *ExpiryMonitor) sweep(ctx context.Context, skipMatch string) error {
	now := e.deps.Clock.Now()
	_, lobbyErr := e.SweepLobby(ctx, now)
	_, matchErr := e.sweepMatches(ctx, now, skipMatch)
	return errors.Join(lobbyErr, matchErr)
}

// SweepLobby evicts every entry whose window closed before now and refunds
// its stake. Eviction is not a forfeit, so nobody is penalized.
func (e *ExpiryMonitor) SweepLobby(ctx context.Context, now time.Time) (int, error) {
	var expired []models.LobbyEntry
	err := e.deps.Store.View(ctx, func(tx repository.Tx) error {
		var err error
		expired, err = tx.ListExpiredLobbyEntries(ctx, now)
		return err
	})
	if err != nil {
		return 0, err
	}

	evicted := 0
	var errs []error
	for _, candidate := range expired {
		ok, err := e.evict(ctx, candidate.AccountID, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("evict %s: %w", candidate.AccountID, err))
			continue
		}
		if ok {
			evicted++
		}
	}
	if evicted > 0 {
		log.Printf("[Expiry] 🧹 evicted %d expired lobby entr(ies)", evicted)
		e.deps.notify()
	}
	return evicted, errors.Join(errs...)
}

func (e *ExpiryMonitor) evict(ctx context.Context, account string, now time.Time) (bool, error) {
	unlock := e.deps.Locks.Lock(utils.AccountKey(account))
	defer unlock()

	evicted := false
	err := e.deps.Store.Transaction(ctx, func(tx repository.Tx) error {
		entry, err := tx.GetLobbyEntry(ctx, account)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !entry.AvailableTo.Before(now) {
			return nil
		}
		if err := tx.DeleteLobbyEntry(ctx, account); err != nil {
			return err
		}
		if _, err := e.payouts.queueLobbyRefund(ctx, tx, entry); err != nil {
			return err
		}
		evicted = true
		return nil
	})
	if err == nil && evicted {
		e.deps.Events.LobbyExpired(account)
	}
	return evicted, err
}

// SweepMatches force-resolves every active match whose total time budget
// ran out. The player to move is at fault.
func (e *ExpiryMonitor) SweepMatches(ctx context.Context, now time.Time) (int, error) {
	return e.sweepMatches(ctx, now, "")
}

func (e *ExpiryMonitor) sweepMatches(ctx context.Context, now time.Time, skip string) (int, error) {
	var active []models.MatchRecord
	err := e.deps.Store.View(ctx, func(tx repository.Tx) error {
		var err error
		active, err = tx.ListActiveMatches(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}

	resolved := 0
	var errs []error
	for i := range active {
		rec := &active[i]
		if rec.ID == skip {
			continue
		}
		m, err := rec.ToMatch()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !m.IsMatchExpired(now) {
			continue
		}
		ok, err := e.expireMatch(ctx, rec, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("expire match %s: %w", rec.ID, err))
			continue
		}
		if ok {
			resolved++
		}
	}
	if resolved > 0 {
		log.Printf("[Expiry] ⏰ force-resolved %d overdue match(es)", resolved)
	}
	return resolved, errors.Join(errs...)
}

func (e *ExpiryMonitor) expireMatch(ctx context.Context, rec *models.MatchRecord, now time.Time) (bool, error) {
	unlock := e.deps.Locks.Lock(utils.AccountKey(rec.PlayerA), utils.AccountKey(rec.PlayerB), utils.MatchKey(rec.ID))
	defer unlock()

	var m *game.Match
	err := e.deps.Store.View(ctx, func(tx repository.Tx) error {
		var err error
		m, err = loadMatch(ctx, tx, rec.ID)
		return err
	})
	if errors.Is(err, ErrMatchNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if m.State != game.Active || !m.IsMatchExpired(now) {
		return false, nil
	}
	if _, err := e.settlement.ForceResolve(ctx, m, m.CurrentPlayer(), game.ReasonMatchTimeout); err != nil {
		return false, err
	}
	return true, nil
}
