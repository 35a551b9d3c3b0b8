package services

import (
	"context"
	"errors"
	"log"
	"time"

	"match-escrow-system/game"
	"match-escrow-system/models"
	"match-escrow-system/repository"
	"match-escrow-system/utils"
)

// MatchService applies player actions to active matches.
type MatchService struct {
	deps       *Deps
	expiry     *ExpiryMonitor
	settlement *SettlementService
}

// MoveResult is returned for every accepted move, including one that lost
// the match on time.
type MoveResult struct {
	MatchID    string           `json:"match_id"`
	Turn       game.TurnResult  `json:"turn"`
	Settlement *Result          `json:"settlement,omitempty"`
	Match      *game.Match      `json:"-"`
	Applied    bool             `json:"applied"`
	At         *game.Coordinate `json:"at,omitempty"`
}

// acquire loads the match, locks both players and the match, then loads it
// again so the caller works on the state protected by the locks.
func (s *MatchService) acquire(ctx context.Context, id string) (*game.Match, func(), error) {
	var rec *models.MatchRecord
	err := s.deps.Store.View(ctx, func(tx repository.Tx) error {
		var err error
		rec, err = tx.GetMatch(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrMatchNotFound
		}
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	unlock := s.deps.Locks.Lock(utils.AccountKey(rec.PlayerA), utils.AccountKey(rec.PlayerB), utils.MatchKey(id))
	var m *game.Match
	err = s.deps.Store.View(ctx, func(tx repository.Tx) error {
		var err error
		m, err = loadMatch(ctx, tx, id)
		return err
	})
	if err != nil {
		unlock()
		return nil, nil, err
	}
	return m, unlock, nil
}

// MakeMove places caller's piece at c. A mover whose turn or match clock ran
// out forfeits instead and the move is not applied.
func (s *MatchService) MakeMove(ctx context.Context, caller, id string, c game.Coordinate) (*MoveResult, error) {
	logSweepErr("Matches", s.expiry.sweep(ctx, id))

	m, unlock, err := s.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := s.deps.Clock.Now()
	if m.State != game.Active {
		return nil, game.ErrNotActive
	}
	if !m.IsParticipant(caller) {
		return nil, game.ErrNotParticipant
	}
	if caller != m.CurrentPlayer() {
		res, err := s.resolveOverdue(ctx, m, now)
		if err != nil {
			return nil, err
		}
		if res == nil {
			return nil, game.ErrNotYourTurn
		}
		return &MoveResult{
			MatchID:    m.ID,
			Turn:       game.TurnResult{Ended: true, Outcome: &res.Outcome},
			Settlement: res,
			Match:      m,
		}, nil
	}

	// Clocks are checked before the move so a late move cannot win.
	var reason game.Reason
	switch {
	case m.IsTurnExpired(now):
		reason = game.ReasonTurnTimeout
	case m.IsMatchExpired(now):
		reason = game.ReasonMatchTimeout
	}
	if reason != "" {
		res, err := s.settlement.ForceResolve(ctx, m, caller, reason)
		if err != nil {
			return nil, err
		}
		return &MoveResult{
			MatchID:    m.ID,
			Turn:       game.TurnResult{Ended: true, Outcome: &res.Outcome},
			Settlement: res,
			Match:      m,
		}, nil
	}

	piece := m.Board.Turn
	turn, err := m.ApplyTurn(caller, c, now)
	if err != nil {
		return nil, err
	}
	at := c
	result := &MoveResult{MatchID: m.ID, Turn: turn, Match: m, Applied: true, At: &at}
	s.deps.Events.MoveMade(m.ID, caller, c, piece)

	if turn.Ended {
		res, err := s.settlement.Settle(ctx, m)
		if err != nil {
			return nil, err
		}
		result.Settlement = res
		return result, nil
	}

	err = s.deps.Store.Transaction(ctx, func(tx repository.Tx) error {
		return tx.SaveMatch(ctx, models.NewMatchRecord(m))
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ClaimTimeoutWin lets the waiting player take a stalled match. It returns
// nil while the claim window is still open. A match past its total budget is
// settled against the player to move, whoever calls.
func (s *MatchService) ClaimTimeoutWin(ctx context.Context, caller, id string) (*Result, error) {
	logSweepErr("Matches", s.expiry.sweep(ctx, id))

	m, unlock, err := s.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := s.deps.Clock.Now()
	if res, err := s.resolveParticipantOverdue(ctx, m, caller, now); err != nil || res != nil {
		return res, err
	}

	out, err := m.ClaimTimeoutWin(caller, now)
	if err != nil || out == nil {
		return nil, err
	}
	res, err := s.settlement.Settle(ctx, m)
	if err != nil {
		return nil, err
	}
	log.Printf("[Matches] ⏱️ %s claimed match %s on timeout", caller, m.ID)
	s.deps.Events.TimeoutClaimed(m.ID, caller)
	return res, nil
}

// GiveUp concedes the match to the opponent. Conceding is not penalized.
func (s *MatchService) GiveUp(ctx context.Context, caller, id string) (*Result, error) {
	logSweepErr("Matches", s.expiry.sweep(ctx, id))

	m, unlock, err := s.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if res, err := s.resolveParticipantOverdue(ctx, m, caller, s.deps.Clock.Now()); err != nil || res != nil {
		return res, err
	}

	if _, err := m.GiveUp(caller); err != nil {
		return nil, err
	}
	log.Printf("[Matches] 🏳️ %s gave up match %s", caller, m.ID)
	return s.settlement.Settle(ctx, m)
}

// resolveOverdue force-resolves m against the player to move once the match
// clock ran out, as the expiry sweep would. It returns nil when m is in time.
// The caller must hold the match locks.
func (s *MatchService) resolveOverdue(ctx context.Context, m *game.Match, now time.Time) (*Result, error) {
	if m.State != game.Active || !m.IsMatchExpired(now) {
		return nil, nil
	}
	log.Printf("[Matches] ⏰ match %s ran out of time with %s to move", m.ID, m.CurrentPlayer())
	return s.settlement.ForceResolve(ctx, m, m.CurrentPlayer(), game.ReasonMatchTimeout)
}

// resolveParticipantOverdue is resolveOverdue for actions only participants
// may take. Outsiders get the participant error from the action itself.
func (s *MatchService) resolveParticipantOverdue(ctx context.Context, m *game.Match, caller string, now time.Time) (*Result, error) {
	if !m.IsParticipant(caller) {
		return nil, nil
	}
	return s.resolveOverdue(ctx, m, now)
}

func (s *MatchService) Get(ctx context.Context, id string) (*game.Match, error) {
	var m *game.Match
	err := s.deps.Store.View(ctx, func(tx repository.Tx) error {
		var err error
		m, err = loadMatch(ctx, tx, id)
		return err
	})
	return m, err
}

// List returns the active matches, oldest first.
func (s *MatchService) List(ctx context.Context) ([]*game.Match, error) {
	var out []*game.Match
	err := s.deps.Store.View(ctx, func(tx repository.Tx) error {
		records, err := tx.ListActiveMatches(ctx)
		if err != nil {
			return err
		}
		out = make([]*game.Match, 0, len(records))
		for i := range records {
			m, err := records[i].ToMatch()
			if err != nil {
				return err
			}
			out = append(out, m)
		}
		return nil
	})
	return out, err
}

// View is the public state of a match.
type View struct {
	ID            string            `json:"id"`
	Players       [2]string         `json:"players"`
	Pool          game.Deposit      `json:"pool"`
	State         string            `json:"state"`
	CurrentPlayer string            `json:"current_player"`
	NextPlayer    string            `json:"next_player"`
	LastMove      *game.Coordinate  `json:"last_move,omitempty"`
	TurnCount     uint64            `json:"turn_count"`
	BoardSize     uint              `json:"board_size"`
	WinLength     uint              `json:"win_length"`
	Tiles         []models.Tile     `json:"tiles"`
	Moves         []game.Coordinate `json:"moves"`
	InitiatedAt   string            `json:"initiated_at"`
	LastMoveAt    string            `json:"last_move_at"`
	Outcome       *game.Outcome     `json:"outcome,omitempty"`
}

func NewView(m *game.Match) View {
	moves := m.Moves
	if moves == nil {
		moves = []game.Coordinate{}
	}
	return View{
		ID:            m.ID,
		Players:       m.Players,
		Pool:          m.Pool,
		State:         m.State.String(),
		CurrentPlayer: m.CurrentPlayer(),
		NextPlayer:    m.NextPlayer(),
		LastMove:      m.LastMove(),
		TurnCount:     m.TurnCount,
		BoardSize:     m.Rules.BoardSize,
		WinLength:     m.Rules.WinLength,
		Tiles:         models.TilesOf(m.Board),
		Moves:         moves,
		InitiatedAt:   m.InitiatedAt.UTC().Format(time.RFC3339),
		LastMoveAt:    m.LastMoveAt.UTC().Format(time.RFC3339),
		Outcome:       m.Outcome,
	}
}
