package game

import (
	"fmt"
	"time"
)

type MatchState uint8

const (
	NotStarted MatchState = iota
	Active
	Finished
)

func (s MatchState) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Active:
		return "active"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("MatchState(%d)", uint8(s))
	}
}

// Rules are the per-match limits copied from configuration at creation.
type Rules struct {
	BoardSize        uint          `json:"board_size"`
	WinLength        uint          `json:"win_length"`
	MaxTurnDuration  time.Duration `json:"max_turn_duration"`
	MaxMatchDuration time.Duration `json:"max_match_duration"`
	ClaimTimeout     time.Duration `json:"claim_timeout"`
}

// Deposit is an amount of one asset held in escrow.
type Deposit struct {
	Asset  string `json:"asset"`
	Amount uint64 `json:"amount"`
}

// Match binds a board to two accounts. Players[0] opens and plays A.
type Match struct {
	ID          string
	Players     [2]string
	Turn        int
	Board       *Board
	Pool        Deposit
	TurnCount   uint64
	InitiatedAt time.Time
	LastMoveAt  time.Time
	Duration    time.Duration
	State       MatchState
	Rules       Rules
	Moves       []Coordinate
	Outcome     *Outcome
}

// NewMatch creates an active match. The coin decides which of the two
// accounts opens play.
func NewMatch(id, a, b string, pool Deposit, rules Rules, coin Coin, now time.Time) (*Match, error) {
	if a == b {
		return nil, ErrSelfPlay
	}
	m := &Match{
		ID:      id,
		Players: [2]string{a, b},
		Board:   NewBoard(rules.BoardSize, rules.WinLength),
		Pool:    pool,
		Rules:   rules,
		State:   NotStarted,
	}
	if RandomPiece(coin) == PieceB {
		m.Players = [2]string{b, a}
	}
	m.InitiatedAt = now
	m.LastMoveAt = now
	m.State = Active
	return m, nil
}

// RestoreMatch rebuilds a stored match by replaying its moves.
func RestoreMatch(id string, players [2]string, pool Deposit, rules Rules, moves []Coordinate,
	initiatedAt, lastMoveAt time.Time, duration time.Duration, state MatchState) (*Match, error) {
	board, err := RestoreBoard(rules.BoardSize, rules.WinLength, moves)
	if err != nil {
		return nil, err
	}
	m := &Match{
		ID:          id,
		Players:     players,
		Board:       board,
		Pool:        pool,
		Rules:       rules,
		Moves:       append([]Coordinate(nil), moves...),
		TurnCount:   uint64(len(moves)),
		InitiatedAt: initiatedAt,
		LastMoveAt:  lastMoveAt,
		Duration:    duration,
		State:       state,
	}
	if board.Turn == PieceB {
		m.Turn = 1
	}
	return m, nil
}

func (m *Match) CurrentPlayer() string {
	return m.Players[m.Turn]
}

func (m *Match) NextPlayer() string {
	return m.Players[1-m.Turn]
}

func (m *Match) LastMove() *Coordinate {
	return m.Board.LastMove
}

func (m *Match) IsParticipant(account string) bool {
	return account == m.Players[0] || account == m.Players[1]
}

// Opponent returns the other participant.
func (m *Match) Opponent(account string) string {
	if account == m.Players[0] {
		return m.Players[1]
	}
	return m.Players[0]
}

// PieceOf returns the piece bound to a participant.
func (m *Match) PieceOf(account string) Piece {
	if account == m.Players[0] {
		return PieceA
	}
	return PieceB
}

// ApplyTurn validates and applies a move by caller.
func (m *Match) ApplyTurn(caller string, c Coordinate, now time.Time) (TurnResult, error) {
	if m.State != Active {
		return TurnResult{}, ErrNotActive
	}
	if !m.IsParticipant(caller) {
		return TurnResult{}, ErrNotParticipant
	}
	if caller != m.CurrentPlayer() {
		return TurnResult{}, ErrNotYourTurn
	}
	if err := m.Board.CheckMove(c); err != nil {
		return TurnResult{}, err
	}

	piece := m.Board.Turn
	m.Board.ApplyMove(c, piece)
	m.Moves = append(m.Moves, c)
	m.TurnCount++
	m.Duration += now.Sub(m.LastMoveAt)
	m.LastMoveAt = now

	switch m.Board.DetectOutcome(c) {
	case ResultWinA, ResultWinB:
		out := Win(caller, ReasonLine)
		m.finish(out)
		return TurnResult{Ended: true, Outcome: &out}, nil
	case ResultTie:
		out := Tie()
		m.finish(out)
		return TurnResult{Ended: true, Outcome: &out}, nil
	}

	m.Board.Turn = piece.Other()
	m.Turn = 1 - m.Turn
	return TurnResult{}, nil
}

// Elapsed is the accumulated play time including the turn in progress.
func (m *Match) Elapsed(now time.Time) time.Duration {
	running := now.Sub(m.LastMoveAt)
	if running < 0 {
		running = 0
	}
	return m.Duration + running
}

func (m *Match) IsTurnExpired(now time.Time) bool {
	return now.Sub(m.LastMoveAt) > m.Rules.MaxTurnDuration
}

func (m *Match) IsMatchExpired(now time.Time) bool {
	return m.Elapsed(now) > m.Rules.MaxMatchDuration
}

// ClaimTimeoutWin lets the waiting player end a stalled match. It returns
// nil without touching the match while the claim window is still open.
func (m *Match) ClaimTimeoutWin(caller string, now time.Time) (*Outcome, error) {
	if m.State != Active {
		return nil, ErrNotActive
	}
	if !m.IsParticipant(caller) {
		return nil, ErrNotParticipant
	}
	if caller == m.CurrentPlayer() {
		return nil, ErrCurrentPlayer
	}
	if now.Sub(m.LastMoveAt) <= m.Rules.ClaimTimeout {
		return nil, nil
	}
	out := m.Forfeit(m.CurrentPlayer(), ReasonTimeoutClaim)
	return &out, nil
}

// GiveUp resolves the match for the opponent of caller.
func (m *Match) GiveUp(caller string) (Outcome, error) {
	if m.State != Active {
		return Outcome{}, ErrNotActive
	}
	if !m.IsParticipant(caller) {
		return Outcome{}, ErrNotParticipant
	}
	out := Win(m.Opponent(caller), ReasonGiveUp)
	m.finish(out)
	return out, nil
}

// Forfeit finishes an active match against defaulter.
func (m *Match) Forfeit(defaulter string, reason Reason) Outcome {
	out := Win(m.Opponent(defaulter), reason)
	out.Defaulter = defaulter
	m.finish(out)
	return out
}

func (m *Match) finish(out Outcome) {
	m.State = Finished
	m.Outcome = &out
}
