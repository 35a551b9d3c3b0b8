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
	"match-escrow-system/settlement"
	"match-escrow-system/utils"
)

// LobbyService holds staked offers to play and pairs them into matches.
type LobbyService struct {
	deps    *Deps
	expiry  *ExpiryMonitor
	payouts *PayoutService
}

type Stake struct {
	Asset  string `json:"asset"`
	Amount uint64 `json:"amount"`
}

// DeclareRequest is an offer to play. Opponent and Referrer are optional;
// a zero AvailableFor uses the longest allowed window.
type DeclareRequest struct {
	Account      string        `json:"account"`
	Stake        Stake         `json:"stake"`
	Opponent     string        `json:"opponent,omitempty"`
	Referrer     string        `json:"referrer,omitempty"`
	AvailableFor time.Duration `json:"available_for"`
}

// DeclareAvailable places an entry in the lobby.
func (s *LobbyService) DeclareAvailable(ctx context.Context, req DeclareRequest) (*models.LobbyEntry, error) {
	if req.Account == "" || req.Stake.Asset == "" {
		return nil, fmt.Errorf("%w: account and stake asset are required", ErrInvalidRequest)
	}
	if req.Opponent == req.Account {
		return nil, game.ErrSelfPlay
	}
	rules := s.deps.Rules.Get()
	if req.Stake.Amount < rules.MinStake {
		return nil, fmt.Errorf("%w: %s < %s", ErrStakeTooLow,
			utils.FormatAmount(req.Stake.Amount, req.Stake.Asset), utils.FormatAmount(rules.MinStake, req.Stake.Asset))
	}
	window := req.AvailableFor
	if window == 0 {
		window = rules.MaxAvailableFor
	}
	if window < rules.MinAvailableFor || window > rules.MaxAvailableFor {
		return nil, fmt.Errorf("%w: %s not within [%s, %s]", ErrAvailabilityWindow,
			window, rules.MinAvailableFor, rules.MaxAvailableFor)
	}

	logSweepErr("Lobby", s.expiry.Sweep(ctx))

	unlock := s.deps.Locks.Lock(utils.AccountKey(req.Account))
	defer unlock()

	now := s.deps.Clock.Now()
	entry := &models.LobbyEntry{
		AccountID:     req.Account,
		Asset:         req.Stake.Asset,
		Amount:        req.Stake.Amount,
		AvailableFrom: now,
		AvailableTo:   now.Add(window),
	}
	if req.Opponent != "" {
		opp := req.Opponent
		entry.OpponentID = &opp
	}

	bound := false
	err := s.deps.Store.Transaction(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetLobbyEntry(ctx, req.Account); err == nil {
			return ErrAlreadyInLobby
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if _, err := tx.FindActiveMatchByAccount(ctx, req.Account); err == nil {
			return ErrInActiveMatch
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		if req.Referrer != "" && req.Referrer != req.Account {
			var err error
			if bound, err = s.bindReferrer(ctx, tx, req.Account, req.Referrer, now); err != nil {
				return err
			}
			if bound {
				ref := req.Referrer
				entry.ReferrerID = &ref
			}
		}

		if err := tx.CreateLobbyEntry(ctx, entry); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrAlreadyInLobby
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if bound {
		log.Printf("[Lobby] 🤝 %s referred by %s", req.Account, req.Referrer)
	}
	log.Printf("[Lobby] ✅ %s available with %s until %s",
		req.Account, utils.FormatAmount(entry.Amount, entry.Asset), entry.AvailableTo.Format(time.RFC3339))
	s.deps.Events.PlayerAvailable(entry.AccountID, entry.Asset, entry.Amount, entry.AvailableTo)
	return entry, nil
}

// bindReferrer links account to referrer once. Only a newcomer can be
// referred, and only by an account that has played before.
func (s *LobbyService) bindReferrer(ctx context.Context, tx repository.Tx, account, referrer string, now time.Time) (bool, error) {
	if _, err := tx.GetStats(ctx, account); err == nil {
		return false, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return false, err
	}
	if _, err := tx.GetStats(ctx, referrer); errors.Is(err, repository.ErrNotFound) {
		return false, nil
	} else if err != nil {
		return false, err
	}

	ref := referrer
	st := &models.PlayerStats{AccountID: account, ReferrerID: &ref}
	st.CreatedAt = now
	st.UpdatedAt = now
	if err := tx.SaveStats(ctx, st); err != nil {
		return false, err
	}
	if err := tx.AddAffiliate(ctx, &models.Affiliate{AccountID: account, ReferrerID: referrer, CreatedAt: now}); err != nil {
		return false, err
	}
	return true, nil
}

// Withdraw removes the account's entry and queues the refund of its stake.
func (s *LobbyService) Withdraw(ctx context.Context, account string) (*models.Payout, error) {
	logSweepErr("Lobby", s.expiry.Sweep(ctx))

	unlock := s.deps.Locks.Lock(utils.AccountKey(account))
	defer unlock()

	var p *models.Payout
	err := s.deps.Store.Transaction(ctx, func(tx repository.Tx) error {
		e, err := tx.GetLobbyEntry(ctx, account)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotInLobby
		}
		if err != nil {
			return err
		}
		if err := tx.DeleteLobbyEntry(ctx, account); err != nil {
			return err
		}
		p, err = s.payouts.queueLobbyRefund(ctx, tx, e)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[Lobby] 👋 %s withdrew", account)
	s.deps.Events.PlayerWithdrew(account)
	s.deps.notify()
	return p, nil
}

// Pair starts a match between initiator and target from their entries.
func (s *LobbyService) Pair(ctx context.Context, initiator, target string) (*game.Match, error) {
	if initiator == "" || target == "" {
		return nil, fmt.Errorf("%w: both accounts are required", ErrInvalidRequest)
	}
	if initiator == target {
		return nil, game.ErrSelfPlay
	}

	logSweepErr("Lobby", s.expiry.Sweep(ctx))

	unlock := s.deps.Locks.Lock(utils.AccountKey(initiator), utils.AccountKey(target))
	defer unlock()

	now := s.deps.Clock.Now()
	rules := s.deps.Rules.Get()
	var m *game.Match
	err := s.deps.Store.Transaction(ctx, func(tx repository.Tx) error {
		mine, err := s.entry(ctx, tx, initiator)
		if err != nil {
			return err
		}
		theirs, err := s.entry(ctx, tx, target)
		if err != nil {
			return err
		}
		if theirs.OpponentID != nil && *theirs.OpponentID != initiator {
			return fmt.Errorf("%w: %s only plays %s", ErrOpponentRestricted, target, *theirs.OpponentID)
		}
		if mine.OpponentID != nil && *mine.OpponentID != target {
			return fmt.Errorf("%w: %s only plays %s", ErrOpponentRestricted, initiator, *mine.OpponentID)
		}
		if mine.Asset != theirs.Asset {
			return fmt.Errorf("%w: %s vs %s", ErrAssetMismatch, mine.Asset, theirs.Asset)
		}
		if mine.Amount != theirs.Amount {
			return fmt.Errorf("%w: %d vs %d", ErrStakeMismatch, mine.Amount, theirs.Amount)
		}

		pool, err := settlement.DoublePool(mine.Amount)
		if err != nil {
			return fmt.Errorf("pool for %s vs %s: %w", initiator, target, err)
		}

		m, err = game.NewMatch(s.deps.NewID(), initiator, target,
			game.Deposit{Asset: mine.Asset, Amount: pool}, rules.MatchRules(), s.deps.Coin, now)
		if err != nil {
			return err
		}

		if err := tx.DeleteLobbyEntry(ctx, initiator); err != nil {
			return err
		}
		if err := tx.DeleteLobbyEntry(ctx, target); err != nil {
			return err
		}
		if err := tx.SaveMatch(ctx, models.NewMatchRecord(m)); err != nil {
			return err
		}
		for _, account := range m.Players {
			if err := recordPlayed(ctx, tx, account, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[Lobby] 🎮 match %s started: %s vs %s for %s, %s opens",
		m.ID, m.Players[0], m.Players[1], utils.FormatAmount(m.Pool.Amount, m.Pool.Asset), m.CurrentPlayer())
	s.deps.Events.MatchStarted(m)
	return m, nil
}

func (s *LobbyService) entry(ctx context.Context, tx repository.Tx, account string) (*models.LobbyEntry, error) {
	e, err := tx.GetLobbyEntry(ctx, account)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotInLobby, account)
	}
	return e, err
}

// List returns the open entries, oldest first.
func (s *LobbyService) List(ctx context.Context) ([]models.LobbyEntry, error) {
	var out []models.LobbyEntry
	err := s.deps.Store.View(ctx, func(tx repository.Tx) error {
		var err error
		out, err = tx.ListLobbyEntries(ctx)
		return err
	})
	return out, err
}

func (s *LobbyService) Get(ctx context.Context, account string) (*models.LobbyEntry, error) {
	var e *models.LobbyEntry
	err := s.deps.Store.View(ctx, func(tx repository.Tx) error {
		var err error
		e, err = tx.GetLobbyEntry(ctx, account)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotInLobby
		}
		return err
	})
	return e, err
}
