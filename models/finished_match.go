package models

import (
	"time"

	"match-escrow-system/game"

	"gorm.io/datatypes"
)

// Tile is one occupied cell of a finished board.
type Tile struct {
	X     uint   `json:"x"`
	Y     uint   `json:"y"`
	Piece string `json:"piece"`
}

// FinishedMatch is kept in a bounded history of recent results.
type FinishedMatch struct {
	Seq         uint64  `gorm:"primaryKey;autoIncrement" json:"seq"`
	MatchID     string  `gorm:"type:varchar(36);uniqueIndex;not null" json:"match_id"`
	PlayerA     string  `gorm:"type:varchar(128);index;not null" json:"player_a"`
	PlayerB     string  `gorm:"type:varchar(128);index;not null" json:"player_b"`
	Result      string  `gorm:"type:varchar(8);not null" json:"result"` // win / tie
	WinnerID    *string `gorm:"type:varchar(128)" json:"winner_id,omitempty"`
	DefaulterID *string `gorm:"type:varchar(128)" json:"defaulter_id,omitempty"`
	Reason      string  `gorm:"type:varchar(32);not null" json:"reason"`

	Asset string `gorm:"type:varchar(128);not null" json:"asset"`
	Pool  uint64 `gorm:"type:numeric(20,0);not null" json:"pool"`
	Fee   uint64 `gorm:"type:numeric(20,0);not null" json:"fee"`
	// RewardOrRefund is the winner share, or the per-player refund on a tie.
	RewardOrRefund uint64 `gorm:"type:numeric(20,0);not null" json:"reward_or_refund"`
	ReferrerShare  uint64 `gorm:"type:numeric(20,0);not null;default:0" json:"referrer_share"`

	Tiles      datatypes.JSONSlice[Tile]            `json:"tiles"`
	Moves      datatypes.JSONSlice[game.Coordinate] `json:"moves"`
	ArchiveKey string                               `gorm:"type:varchar(256)" json:"archive_key,omitempty"`
	FinishedAt time.Time                            `gorm:"not null;index" json:"finished_at"`
}

// TilesOf lists the occupied cells of b in row-major order.
func TilesOf(b *game.Board) []Tile {
	tiles := make([]Tile, 0, len(b.Cells))
	for y := uint(0); y < b.Size; y++ {
		for x := uint(0); x < b.Size; x++ {
			if p, ok := b.Cells[game.Coordinate{X: x, Y: y}]; ok {
				tiles = append(tiles, Tile{X: x, Y: y, Piece: p.String()})
			}
		}
	}
	return tiles
}
