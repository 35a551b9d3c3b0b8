package game

import "fmt"

// Result is the terminal state recorded on a board.
type Result uint8

const (
	ResultNone Result = iota
	ResultWinA
	ResultWinB
	ResultTie
)

func (r Result) String() string {
	switch r {
	case ResultNone:
		return "none"
	case ResultWinA:
		return "win_a"
	case ResultWinB:
		return "win_b"
	case ResultTie:
		return "tie"
	default:
		return fmt.Sprintf("Result(%d)", uint8(r))
	}
}

func winFor(p Piece) Result {
	if p == PieceA {
		return ResultWinA
	}
	return ResultWinB
}

// axes are walked forward and backward from the placed cell:
// horizontal, vertical, diagonal down-right, diagonal up-right.
var axes = [4][2]int{{1, 0}, {0, 1}, {1, 1}, {1, -1}}

// Board is a sparse grid: only occupied cells are stored.
type Board struct {
	Size      uint
	WinLength uint
	Cells     map[Coordinate]Piece
	Turn      Piece
	Result    Result
	LastMove  *Coordinate
}

// NewBoard returns an empty board where A moves first.
func NewBoard(size, winLength uint) *Board {
	return &Board{
		Size:      size,
		WinLength: winLength,
		Cells:     make(map[Coordinate]Piece),
		Turn:      PieceA,
	}
}

// RestoreBoard rebuilds a board from an ordered move list. Moves alternate
// starting with A. The outcome is re-detected after every move, so a stored
// list that ends on a winning move yields a finished board.
func RestoreBoard(size, winLength uint, moves []Coordinate) (*Board, error) {
	b := NewBoard(size, winLength)
	for i, c := range moves {
		if err := b.CheckMove(c); err != nil {
			return nil, fmt.Errorf("replay move %d %s: %w", i+1, c, err)
		}
		b.ApplyMove(c, b.Turn)
		if b.DetectOutcome(c) == ResultNone {
			b.Turn = b.Turn.Other()
		}
	}
	return b, nil
}

// CheckMove reports whether a piece may be placed at c. It never mutates.
func (b *Board) CheckMove(c Coordinate) error {
	if b.Result != ResultNone {
		return ErrGameOver
	}
	if c.X >= b.Size || c.Y >= b.Size {
		return fmt.Errorf("%w: %s on a %dx%d board", ErrInvalidPosition, c, b.Size, b.Size)
	}
	if occupant, ok := b.Cells[c]; ok {
		return &TileFilledError{At: c, Occupant: occupant}
	}
	return nil
}

// ApplyMove places p at c. Callers must have run CheckMove first.
func (b *Board) ApplyMove(c Coordinate, p Piece) {
	if b.Result != ResultNone {
		panic("game: ApplyMove on a finished board")
	}
	b.Cells[c] = p
	last := c
	b.LastMove = &last
}

// DetectOutcome looks for a line through the just-placed cell and records
// the result. A tie is only reported once the board is full.
func (b *Board) DetectOutcome(c Coordinate) Result {
	p, ok := b.Cells[c]
	if !ok {
		return ResultNone
	}
	for _, axis := range axes {
		run := 1 + b.count(c, p, axis[0], axis[1]) + b.count(c, p, -axis[0], -axis[1])
		if run >= b.WinLength {
			b.Result = winFor(p)
			return b.Result
		}
	}
	if uint(len(b.Cells)) == b.Size*b.Size {
		b.Result = ResultTie
	}
	return b.Result
}

// count walks from c (exclusive) in direction (dx, dy) and returns how many
// consecutive cells hold p. The walk stops at the board edge.
func (b *Board) count(c Coordinate, p Piece, dx, dy int) uint {
	var n uint
	cur := c
	for n < b.WinLength {
		next, ok := b.step(cur, dx, dy)
		if !ok || b.Cells[next] != p {
			break
		}
		n++
		cur = next
	}
	return n
}

func (b *Board) step(c Coordinate, dx, dy int) (Coordinate, bool) {
	x, ok := shift(c.X, dx, b.Size)
	if !ok {
		return c, false
	}
	y, ok := shift(c.Y, dy, b.Size)
	if !ok {
		return c, false
	}
	return Coordinate{X: x, Y: y}, true
}

func shift(v uint, d int, size uint) (uint, bool) {
	switch {
	case d < 0:
		if v == 0 {
			return 0, false
		}
		return v - 1, true
	case d > 0:
		if v+1 >= size {
			return v, false
		}
		return v + 1, true
	default:
		return v, true
	}
}

// Tiles returns a copy of the occupied cells.
func (b *Board) Tiles() map[Coordinate]Piece {
	out := make(map[Coordinate]Piece, len(b.Cells))
	for c, p := range b.Cells {
		out[c] = p
	}
	return out
}
