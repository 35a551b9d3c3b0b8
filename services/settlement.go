package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"match-escrow-system/game"
	"match-escrow-system/models"
	"match-escrow-system/repository"
	"match-escrow-system/settlement"
	"match-escrow-system/utils"
)

const archiveTimeout = 30 * time.Second

// SettlementService turns a finished match into stats, history and payouts.
// Callers hold the locks of both players and the match.
type SettlementService struct {
	deps     *Deps
	payouts  *PayoutService
	archives sync.WaitGroup
}

// Result describes one settled match.
type Result struct {
	MatchID  string               `json:"match_id"`
	Outcome  game.Outcome         `json:"outcome"`
	Win      *settlement.WinSplit `json:"win,omitempty"`
	Tie      *settlement.TieSplit `json:"tie,omitempty"`
	Referrer string               `json:"referrer,omitempty"`
	Payouts  []models.Payout      `json:"payouts"`
}

// ForceResolve ends m against defaulter and settles it. The defaulter is
// penalized.
func (s *SettlementService) ForceResolve(ctx context.Context, m *game.Match, defaulter string, reason game.Reason) (*Result, error) {
	if m.State != game.Active {
		return nil, game.ErrNotActive
	}
	if !m.IsParticipant(defaulter) {
		return nil, game.ErrNotParticipant
	}
	m.Forfeit(defaulter, reason)
	return s.Settle(ctx, m)
}

// Settle commits the outcome of a finished match in one transaction:
// the match is retired, history and stats are written and payouts are
// queued. Any overflow aborts the whole transaction.
func (s *SettlementService) Settle(ctx context.Context, m *game.Match) (*Result, error) {
	if m.State != game.Finished || m.Outcome == nil {
		return nil, fmt.Errorf("settle match %s: %w", m.ID, game.ErrNotActive)
	}
	out := *m.Outcome
	now := s.deps.Clock.Now()
	rules := s.deps.Rules.Get()
	res := &Result{MatchID: m.ID, Outcome: out}

	var record *models.FinishedMatch
	err := s.deps.Store.Transaction(ctx, func(tx repository.Tx) error {
		res.Payouts = res.Payouts[:0]
		res.Referrer = ""
		if err := tx.DeleteMatch(ctx, m.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrMatchNotFound
			}
			return err
		}

		record = &models.FinishedMatch{
			MatchID:    m.ID,
			PlayerA:    m.Players[0],
			PlayerB:    m.Players[1],
			Reason:     string(out.Reason),
			Asset:      m.Pool.Asset,
			Pool:       m.Pool.Amount,
			Tiles:      models.TilesOf(m.Board),
			Moves:      append([]game.Coordinate(nil), m.Moves...),
			FinishedAt: now,
		}

		queue := func(kind models.PayoutKind, account string, amount uint64) error {
			p, err := s.payouts.queue(ctx, tx, kind, account, m.Pool.Asset, amount, m.ID, nil)
			if err != nil {
				return err
			}
			if p != nil {
				res.Payouts = append(res.Payouts, *p)
			}
			return nil
		}

		switch out.Kind {
		case game.OutcomeWin:
			st, err := recordWin(ctx, tx, out.Winner, now)
			if err != nil {
				return err
			}
			withReferrer := st.ReferrerID != nil && *st.ReferrerID != ""
			split, err := settlement.SplitWin(m.Pool.Amount, rules.Rates(), withReferrer)
			if err != nil {
				return fmt.Errorf("split pool of match %s: %w", m.ID, err)
			}
			res.Win = &split

			if err := tx.AddRewardTotal(ctx, out.Winner, m.Pool.Asset, models.RewardKindPrize, split.WinnerShare); err != nil {
				return err
			}
			if err := queue(models.PayoutWinnerShare, out.Winner, split.WinnerShare); err != nil {
				return err
			}
			if withReferrer && split.ReferrerShare > 0 {
				res.Referrer = *st.ReferrerID
				if err := tx.AddRewardTotal(ctx, res.Referrer, m.Pool.Asset, models.RewardKindAffiliate, split.ReferrerShare); err != nil {
					return err
				}
				if err := queue(models.PayoutReferrerShare, res.Referrer, split.ReferrerShare); err != nil {
					return err
				}
			}

			winner := out.Winner
			record.Result = game.OutcomeWin.String()
			record.WinnerID = &winner
			record.Fee = split.Fee
			record.RewardOrRefund = split.WinnerShare
			record.ReferrerShare = split.ReferrerShare

		case game.OutcomeTie:
			split := settlement.SplitTie(m.Pool.Amount)
			res.Tie = &split
			for _, account := range m.Players {
				if err := queue(models.PayoutTieRefund, account, split.PerPlayer); err != nil {
					return err
				}
			}
			record.Result = game.OutcomeTie.String()
			record.RewardOrRefund = split.PerPlayer

		default:
			panic(fmt.Sprintf("settlement: match %s has unknown outcome kind %v", m.ID, out.Kind))
		}

		if out.Defaulter != "" {
			if err := recordPenalty(ctx, tx, out.Defaulter, now); err != nil {
				return err
			}
			defaulter := out.Defaulter
			record.DefaulterID = &defaulter
		}

		return tx.AppendFinishedMatch(ctx, record, rules.MaxStoredMatches)
	})
	if err != nil {
		return nil, err
	}

	s.report(m, res)
	s.deps.notify()
	s.archive(m, res, record)
	return res, nil
}

func (s *SettlementService) report(m *game.Match, res *Result) {
	out := res.Outcome
	if out.Defaulter != "" {
		log.Printf("[Settlement] ⏱️ %s forfeited match %s (%s)", out.Defaulter, m.ID, out.Reason)
		s.deps.Events.PlayerForfeited(m.ID, out.Defaulter, out.Reason)
	}
	switch {
	case res.Win != nil:
		log.Printf("[Settlement] 🏆 match %s won by %s: reward %s, fee %s, referrer %s",
			m.ID, out.Winner,
			utils.FormatAmount(res.Win.WinnerShare, m.Pool.Asset),
			utils.FormatAmount(res.Win.Fee, m.Pool.Asset),
			utils.FormatAmount(res.Win.ReferrerShare, m.Pool.Asset))
		s.deps.Events.MatchWon(m.ID, out.Winner, out.Reason, res.Win.WinnerShare)
	case res.Tie != nil:
		log.Printf("[Settlement] 🤝 match %s tied: %s back to each player",
			m.ID, utils.FormatAmount(res.Tie.PerPlayer, m.Pool.Asset))
		s.deps.Events.MatchTied(m.ID, res.Tie.PerPlayer)
	}
}

type transcript struct {
	ID          string               `json:"id"`
	Players     [2]string            `json:"players"`
	Pool        game.Deposit         `json:"pool"`
	Rules       game.Rules           `json:"rules"`
	Moves       []game.Coordinate    `json:"moves"`
	Tiles       []models.Tile        `json:"tiles"`
	Outcome     game.Outcome         `json:"outcome"`
	Win         *settlement.WinSplit `json:"win,omitempty"`
	Tie         *settlement.TieSplit `json:"tie,omitempty"`
	InitiatedAt time.Time            `json:"initiated_at"`
	FinishedAt  time.Time            `json:"finished_at"`
}

// archive uploads the transcript in the background. Failures are logged
// and leave the history record without an archive key.
func (s *SettlementService) archive(m *game.Match, res *Result, record *models.FinishedMatch) {
	if s.deps.Archive == nil {
		return
	}
	body, err := json.Marshal(transcript{
		ID:          m.ID,
		Players:     m.Players,
		Pool:        m.Pool,
		Rules:       m.Rules,
		Moves:       record.Moves,
		Tiles:       record.Tiles,
		Outcome:     res.Outcome,
		Win:         res.Win,
		Tie:         res.Tie,
		InitiatedAt: m.InitiatedAt,
		FinishedAt:  record.FinishedAt,
	})
	if err != nil {
		log.Printf("[Archive] ❌ encode transcript %s: %v", m.ID, err)
		return
	}

	s.archives.Add(1)
	go func() {
		defer s.archives.Done()
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()

		key, err := s.deps.Archive.Put(ctx, "matches/"+m.ID+".json", body)
		if err != nil {
			log.Printf("[Archive] ⚠️ upload transcript %s: %v", m.ID, err)
			return
		}
		err = s.deps.Store.Transaction(ctx, func(tx repository.Tx) error {
			return tx.SetArchiveKey(ctx, m.ID, key)
		})
		if err != nil {
			log.Printf("[Archive] ⚠️ record archive key for %s: %v", m.ID, err)
			return
		}
		log.Printf("[Archive] 📦 %s stored as %s", m.ID, key)
	}()
}
