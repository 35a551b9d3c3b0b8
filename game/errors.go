package game

import (
	"errors"
	"fmt"
)

var (
	ErrGameOver        = errors.New("game is over")
	ErrInvalidPosition = errors.New("position is outside the board")
	ErrTileFilled      = errors.New("tile already filled")
	ErrNotYourTurn     = errors.New("not your turn")
	ErrNotActive       = errors.New("match is not active")
	ErrNotParticipant  = errors.New("account is not a participant of this match")
	ErrSelfPlay        = errors.New("cannot play against yourself")
	ErrCurrentPlayer   = errors.New("the current player cannot claim a timeout win")
)

// TileFilledError reports the piece that already occupies a cell.
type TileFilledError struct {
	At       Coordinate
	Occupant Piece
}

func (e *TileFilledError) Error() string {
	return fmt.Sprintf("tile %s already contains piece %s", e.At, e.Occupant)
}

func (e *TileFilledError) Is(target error) bool {
	return target == ErrTileFilled
}
