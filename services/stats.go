package services

import (
	"context"
	"errors"
	"time"

	"match-escrow-system/models"
	"match-escrow-system/repository"
)

// ensureStats loads the account's stats row, creating it in memory when the
// account has none yet. The caller saves it.
func ensureStats(ctx context.Context, tx repository.Tx, account string, now time.Time) (*models.PlayerStats, error) {
	st, err := tx.GetStats(ctx, account)
	if errors.Is(err, repository.ErrNotFound) {
		st = &models.PlayerStats{AccountID: account}
		st.CreatedAt = now
		return st, nil
	}
	return st, err
}

func recordPlayed(ctx context.Context, tx repository.Tx, account string, now time.Time) error {
	st, err := ensureStats(ctx, tx, account, now)
	if err != nil {
		return err
	}
	st.GamesPlayed++
	st.UpdatedAt = now
	return tx.SaveStats(ctx, st)
}

func recordWin(ctx context.Context, tx repository.Tx, account string, now time.Time) (*models.PlayerStats, error) {
	st, err := ensureStats(ctx, tx, account, now)
	if err != nil {
		return nil, err
	}
	st.Wins++
	st.UpdatedAt = now
	return st, tx.SaveStats(ctx, st)
}

func recordPenalty(ctx context.Context, tx repository.Tx, account string, now time.Time) error {
	st, err := ensureStats(ctx, tx, account, now)
	if err != nil {
		return err
	}
	st.Penalties++
	st.UpdatedAt = now
	return tx.SaveStats(ctx, st)
}

// StatsService serves the read side of per-account records.
type StatsService struct {
	deps *Deps
}

// StatsView is everything known about one account.
type StatsView struct {
	AccountID   string               `json:"account_id"`
	ReferrerID  *string              `json:"referrer_id,omitempty"`
	GamesPlayed uint64               `json:"games_played"`
	Wins        uint64               `json:"wins"`
	Penalties   uint64               `json:"penalties"`
	Rewards     []models.RewardTotal `json:"rewards"`
	Affiliates  []string             `json:"affiliates"`
}

// Get reports an account's stats. Accounts that never played return zeros.
func (s *StatsService) Get(ctx context.Context, account string) (*StatsView, error) {
	v := &StatsView{AccountID: account, Rewards: []models.RewardTotal{}, Affiliates: []string{}}
	err := s.deps.Store.View(ctx, func(tx repository.Tx) error {
		st, err := tx.GetStats(ctx, account)
		switch {
		case err == nil:
			v.ReferrerID = st.ReferrerID
			v.GamesPlayed = st.GamesPlayed
			v.Wins = st.Wins
			v.Penalties = st.Penalties
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}
		rewards, err := tx.ListRewardTotals(ctx, account)
		if err != nil {
			return err
		}
		if len(rewards) > 0 {
			v.Rewards = rewards
		}
		affiliates, err := tx.ListAffiliates(ctx, account)
		if err != nil {
			return err
		}
		if len(affiliates) > 0 {
			v.Affiliates = affiliates
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Penalized lists accounts with at least one penalty, most penalized first.
func (s *StatsService) Penalized(ctx context.Context) ([]models.PlayerStats, error) {
	var out []models.PlayerStats
	err := s.deps.Store.View(ctx, func(tx repository.Tx) error {
		var err error
		out, err = tx.ListPenalized(ctx)
		return err
	})
	return out, err
}

// History returns recent finished matches, newest first.
func (s *StatsService) History(ctx context.Context, limit int) ([]models.FinishedMatch, error) {
	var out []models.FinishedMatch
	err := s.deps.Store.View(ctx, func(tx repository.Tx) error {
		var err error
		out, err = tx.ListFinishedMatches(ctx, limit)
		return err
	})
	return out, err
}
