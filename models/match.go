package models

import (
	"fmt"
	"time"

	"match-escrow-system/game"

	"gorm.io/datatypes"
)

const (
	MatchStateActive   = "active"
	MatchStateFinished = "finished"
)

// MatchRecord is the stored form of an active match. The board is rebuilt
// from Moves on load.
type MatchRecord struct {
	ID         string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	PlayerA    string `gorm:"type:varchar(128);index;not null" json:"player_a"` // opens, plays A
	PlayerB    string `gorm:"type:varchar(128);index;not null" json:"player_b"`
	Asset      string `gorm:"type:varchar(128);not null" json:"asset"`
	PoolAmount uint64 `gorm:"type:numeric(20,0);not null" json:"pool_amount"`

	BoardSize        uint          `gorm:"not null" json:"board_size"`
	WinLength        uint          `gorm:"not null" json:"win_length"`
	MaxTurnDuration  time.Duration `gorm:"not null" json:"max_turn_duration"`
	MaxMatchDuration time.Duration `gorm:"not null" json:"max_match_duration"`
	ClaimTimeout     time.Duration `gorm:"not null" json:"claim_timeout"`

	Moves       datatypes.JSONSlice[game.Coordinate] `json:"moves"`
	InitiatedAt time.Time                            `gorm:"not null" json:"initiated_at"`
	LastMoveAt  time.Time                            `gorm:"not null" json:"last_move_at"`
	Duration    time.Duration                        `gorm:"not null;default:0" json:"duration"`
	State       string                               `gorm:"type:varchar(16);not null;index" json:"state"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (MatchRecord) TableName() string { return "active_matches" }

// NewMatchRecord snapshots a match for storage.
func NewMatchRecord(m *game.Match) *MatchRecord {
	state := MatchStateActive
	if m.State == game.Finished {
		state = MatchStateFinished
	}
	return &MatchRecord{
		ID:               m.ID,
		PlayerA:          m.Players[0],
		PlayerB:          m.Players[1],
		Asset:            m.Pool.Asset,
		PoolAmount:       m.Pool.Amount,
		BoardSize:        m.Rules.BoardSize,
		WinLength:        m.Rules.WinLength,
		MaxTurnDuration:  m.Rules.MaxTurnDuration,
		MaxMatchDuration: m.Rules.MaxMatchDuration,
		ClaimTimeout:     m.Rules.ClaimTimeout,
		Moves:            append(datatypes.JSONSlice[game.Coordinate]{}, m.Moves...),
		InitiatedAt:      m.InitiatedAt,
		LastMoveAt:       m.LastMoveAt,
		Duration:         m.Duration,
		State:            state,
	}
}

// ToMatch replays the stored moves into a live match.
func (r *MatchRecord) ToMatch() (*game.Match, error) {
	state := game.Active
	if r.State == MatchStateFinished {
		state = game.Finished
	}
	m, err := game.RestoreMatch(
		r.ID,
		[2]string{r.PlayerA, r.PlayerB},
		game.Deposit{Asset: r.Asset, Amount: r.PoolAmount},
		game.Rules{
			BoardSize:        r.BoardSize,
			WinLength:        r.WinLength,
			MaxTurnDuration:  r.MaxTurnDuration,
			MaxMatchDuration: r.MaxMatchDuration,
			ClaimTimeout:     r.ClaimTimeout,
		},
		r.Moves,
		r.InitiatedAt, r.LastMoveAt, r.Duration, state,
	)
	if err != nil {
		return nil, fmt.Errorf("restore match %s: %w", r.ID, err)
	}
	return m, nil
}
