package game

import "fmt"

// Piece identifies a player's marks on the board.
type Piece uint8

const (
	PieceA Piece = iota + 1
	PieceB
)

// Other returns the opposing piece.
func (p Piece) Other() Piece {
	if p == PieceA {
		return PieceB
	}
	return PieceA
}

func (p Piece) String() string {
	switch p {
	case PieceA:
		return "A"
	case PieceB:
		return "B"
	default:
		return fmt.Sprintf("Piece(%d)", uint8(p))
	}
}

// Coin is the randomness source used to decide who opens a match.
type Coin interface {
	Flip() bool
}

// RandomPiece draws one of the two pieces with equal probability.
func RandomPiece(coin Coin) Piece {
	if coin.Flip() {
		return PieceB
	}
	return PieceA
}

// Coordinate is a 0-based cell address.
type Coordinate struct {
	X uint `json:"x"`
	Y uint `json:"y"`
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}
