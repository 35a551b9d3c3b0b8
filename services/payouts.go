package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"match-escrow-system/models"
	"match-escrow-system/repository"
	"match-escrow-system/utils"

	"gorm.io/datatypes"
)

// PayoutService owns the payout outbox. Payouts are committed as pending in
// the same transaction as the state change that owes them; the dispatcher
// sends them to the ledger later. A payout that ends up failed is
// compensated exactly once.
type PayoutService struct {
	deps *Deps
}

func (s *PayoutService) queue(ctx context.Context, tx repository.Tx, kind models.PayoutKind,
	account, asset string, amount uint64, matchID string, snapshot []byte) (*models.Payout, error) {
	if amount == 0 {
		return nil, nil
	}
	p := &models.Payout{
		ID:        s.deps.NewID(),
		Kind:      kind,
		Status:    models.PayoutPending,
		AccountID: account,
		Asset:     asset,
		Amount:    amount,
	}
	if matchID != "" {
		id := matchID
		p.MatchID = &id
	}
	if snapshot != nil {
		p.LobbySnapshot = datatypes.JSON(snapshot)
	}
	if err := tx.CreatePayout(ctx, p); err != nil {
		return nil, fmt.Errorf("queue %s payout for %s: %w", kind, account, err)
	}
	return p, nil
}

// queueLobbyRefund returns an evicted entry's stake. The entry travels with
// the payout so a failed transfer can put it back.
func (s *PayoutService) queueLobbyRefund(ctx context.Context, tx repository.Tx, e *models.LobbyEntry) (*models.Payout, error) {
	snapshot, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return s.queue(ctx, tx, models.PayoutLobbyRefund, e.AccountID, e.Asset, e.Amount, "", snapshot)
}

// ClaimCredits empties the account's credit in asset into a payout.
func (s *PayoutService) ClaimCredits(ctx context.Context, account, asset string) (*models.Payout, error) {
	if account == "" || asset == "" {
		return nil, fmt.Errorf("%w: account and asset are required", ErrInvalidRequest)
	}
	unlock := s.deps.Locks.Lock(utils.AccountKey(account))
	defer unlock()

	var p *models.Payout
	err := s.deps.Store.Transaction(ctx, func(tx repository.Tx) error {
		amount, err := tx.TakeCredit(ctx, account, asset)
		if errors.Is(err, repository.ErrNotFound) || (err == nil && amount == 0) {
			return ErrNoCredit
		}
		if err != nil {
			return err
		}
		p, err = s.queue(ctx, tx, models.PayoutCreditClaim, account, asset, amount, "", nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[Payouts] 💳 %s claimed credit of %s", account, utils.FormatAmount(p.Amount, asset))
	s.deps.Events.CreditClaimed(account, asset, p.Amount)
	s.deps.notify()
	return p, nil
}

func (s *PayoutService) ListCredits(ctx context.Context, account string) ([]models.Credit, error) {
	var out []models.Credit
	err := s.deps.Store.View(ctx, func(tx repository.Tx) error {
		var err error
		out, err = tx.ListCredits(ctx, account)
		return err
	})
	return out, err
}

func (s *PayoutService) ListPayouts(ctx context.Context, account string, limit int) ([]models.Payout, error) {
	var out []models.Payout
	err := s.deps.Store.View(ctx, func(tx repository.Tx) error {
		var err error
		out, err = tx.ListPayoutsByAccount(ctx, account, limit)
		return err
	})
	return out, err
}

// Pending returns up to limit payouts waiting for submission, oldest first.
func (s *PayoutService) Pending(ctx context.Context, limit int) ([]models.Payout, error) {
	return s.byStatus(ctx, models.PayoutPending, limit)
}

// Submitted returns up to limit payouts awaiting a ledger result.
func (s *PayoutService) Submitted(ctx context.Context, limit int) ([]models.Payout, error) {
	return s.byStatus(ctx, models.PayoutSubmitted, limit)
}

func (s *PayoutService) byStatus(ctx context.Context, status models.PayoutStatus, limit int) ([]models.Payout, error) {
	var out []models.Payout
	err := s.deps.Store.View(ctx, func(tx repository.Tx) error {
		var err error
		out, err = tx.ListPayoutsByStatus(ctx, status, limit)
		return err
	})
	return out, err
}

// RecordAttempt counts a submission that never reached the ledger and
// returns the new attempt count.
func (s *PayoutService) RecordAttempt(ctx context.Context, id string, cause error) (int, error) {
	var attempts int
	err := s.deps.Store.Transaction(ctx, func(tx repository.Tx) error {
		p, err := tx.GetPayout(ctx, id)
		if err != nil {
			return err
		}
		p.Attempts++
		p.FailureReason = cause.Error()
		attempts = p.Attempts
		return tx.SavePayout(ctx, p)
	})
	return attempts, err
}

// MarkSubmitted records the ledger's transfer id for a pending payout.
func (s *PayoutService) MarkSubmitted(ctx context.Context, id, transferID string) error {
	return s.deps.Store.Transaction(ctx, func(tx repository.Tx) error {
		p, err := tx.GetPayout(ctx, id)
		if err != nil {
			return err
		}
		if p.Status != models.PayoutPending {
			return nil
		}
		now := s.deps.Clock.Now()
		p.Status = models.PayoutSubmitted
		p.TransferID = transferID
		p.Attempts++
		p.FailureReason = ""
		p.SubmittedAt = &now
		return tx.SavePayout(ctx, p)
	})
}

// Confirm settles a payout as delivered. Confirming twice is a no-op.
func (s *PayoutService) Confirm(ctx context.Context, id string) error {
	var p *models.Payout
	changed := false
	err := s.deps.Store.Transaction(ctx, func(tx repository.Tx) error {
		var err error
		p, err = tx.GetPayout(ctx, id)
		if err != nil {
			return err
		}
		switch p.Status {
		case models.PayoutConfirmed:
			return nil
		case models.PayoutFailed:
			return fmt.Errorf("confirm payout %s: %w", id, ErrPayoutSettled)
		}
		now := s.deps.Clock.Now()
		p.Status = models.PayoutConfirmed
		p.SettledAt = &now
		changed = true
		return tx.SavePayout(ctx, p)
	})
	if err == nil && changed {
		s.deps.Events.PayoutConfirmed(p.ID, p.AccountID, string(p.Kind))
	}
	return err
}

// Fail settles a payout as undeliverable and applies its compensation in
// the same transaction. Failing an already failed payout does nothing.
func (s *PayoutService) Fail(ctx context.Context, id, reason string) error {
	var account string
	err := s.deps.Store.View(ctx, func(tx repository.Tx) error {
		p, err := tx.GetPayout(ctx, id)
		if err != nil {
			return err
		}
		account = p.AccountID
		return nil
	})
	if err != nil {
		return err
	}

	unlock := s.deps.Locks.Lock(utils.AccountKey(account))
	defer unlock()

	var p *models.Payout
	changed := false
	err = s.deps.Store.Transaction(ctx, func(tx repository.Tx) error {
		var err error
		p, err = tx.GetPayout(ctx, id)
		if err != nil {
			return err
		}
		switch p.Status {
		case models.PayoutFailed:
			return nil
		case models.PayoutConfirmed:
			return fmt.Errorf("fail payout %s: %w", id, ErrPayoutSettled)
		}
		now := s.deps.Clock.Now()
		p.Status = models.PayoutFailed
		p.FailureReason = reason
		p.SettledAt = &now
		if err := tx.SavePayout(ctx, p); err != nil {
			return err
		}
		changed = true
		return s.compensate(ctx, tx, p, now)
	})
	if err != nil {
		return err
	}
	if changed {
		log.Printf("[Payouts] ❌ %s payout %s to %s failed: %s", p.Kind, p.ID, p.AccountID, reason)
		s.deps.Events.PayoutFailed(p.ID, p.AccountID, string(p.Kind), reason)
	}
	return nil
}

// compensate restores what a failed payout took away.
func (s *PayoutService) compensate(ctx context.Context, tx repository.Tx, p *models.Payout, now time.Time) error {
	switch p.Kind {
	case models.PayoutLobbyRefund:
		return s.restoreLobbyEntry(ctx, tx, p, now)
	case models.PayoutWinnerShare, models.PayoutReferrerShare, models.PayoutTieRefund, models.PayoutCreditClaim:
		return tx.AddCredit(ctx, p.AccountID, p.Asset, p.Amount)
	default:
		return fmt.Errorf("payout %s: unknown kind %q", p.ID, p.Kind)
	}
}

// restoreLobbyEntry puts an evicted entry back with a fresh window of the
// same length. An account that has moved on since gets a credit instead.
func (s *PayoutService) restoreLobbyEntry(ctx context.Context, tx repository.Tx, p *models.Payout, now time.Time) error {
	var e models.LobbyEntry
	if len(p.LobbySnapshot) == 0 || json.Unmarshal(p.LobbySnapshot, &e) != nil || e.AccountID != p.AccountID {
		log.Printf("[Payouts] ⚠️ lobby refund %s has no usable snapshot, crediting instead", p.ID)
		return tx.AddCredit(ctx, p.AccountID, p.Asset, p.Amount)
	}

	if _, err := tx.GetLobbyEntry(ctx, p.AccountID); err == nil {
		return tx.AddCredit(ctx, p.AccountID, p.Asset, p.Amount)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	if _, err := tx.FindActiveMatchByAccount(ctx, p.AccountID); err == nil {
		return tx.AddCredit(ctx, p.AccountID, p.Asset, p.Amount)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	window := e.AvailableTo.Sub(e.AvailableFrom)
	if window <= 0 {
		window = s.deps.Rules.Get().MinAvailableFor
	}
	e.AvailableFrom = now
	e.AvailableTo = now.Add(window)
	e.Amount = p.Amount
	if err := tx.CreateLobbyEntry(ctx, &e); err != nil {
		return fmt.Errorf("restore lobby entry for %s: %w", p.AccountID, err)
	}
	log.Printf("[Payouts] ↩️ restored lobby entry for %s", p.AccountID)
	return nil
}
