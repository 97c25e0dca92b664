package reversi

import "errors"

// Size is the board edge length.
const Size = 8

var (
	ErrInvalidMove = errors.New("invalid move")
	ErrBadColor    = errors.New("unknown color")
)

// Cell is the content of one board square.
type Cell uint8

const (
	Empty Cell = iota
	Black
	White
)

// Color identifies a side. Only Black and White are valid colors.
type Color = Cell

// Opponent returns the other side. Empty maps to Empty.
func (c Cell) Opponent() Cell {
	switch c {
	case Black:
		return White
	case White:
		return Black
	default:
		return Empty
	}
}

// Char is the wire/board character: 'B', 'W' or '-'.
func (c Cell) Char() byte {
	switch c {
	case Black:
		return 'B'
	case White:
		return 'W'
	default:
		return '-'
	}
}

func (c Cell) String() string {
	switch c {
	case Black:
		return "black"
	case White:
		return "white"
	default:
		return "empty"
	}
}

// ParseColor accepts the wire characters B and W.
func ParseColor(s string) (Color, error) {
	switch s {
	case "B":
		return Black, nil
	case "W":
		return White, nil
	default:
		return Empty, ErrBadColor
	}
}

// Pos is a zero-indexed (row, col) board coordinate.
type Pos struct {
	Row int
	Col int
}

func (p Pos) inBounds() bool {
	return p.Row >= 0 && p.Row < Size && p.Col >= 0 && p.Col < Size
}

// Score is the piece count per side.
type Score struct {
	Black int
	White int
}

func (s Score) Total() int { return s.Black + s.White }

// directions are the 8 unit rays around a square.
var directions = [8]Pos{
	{-1, -1}, {-1, 0}, {-1, 1},
	{0, -1}, {0, 1},
	{1, -1}, {1, 0}, {1, 1},
}
