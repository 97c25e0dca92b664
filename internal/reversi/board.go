package reversi

import (
	"fmt"
	"strings"
)

// Board is the 8x8 Reversi grid. The zero value is an empty board; call
// Initialize (or use NewBoard) to get the opening position.
type Board struct {
	cells [Size][Size]Cell
}

// NewBoard returns a board in the standard opening position.
func NewBoard() *Board {
	b := &Board{}
	b.Initialize()
	return b
}

// Initialize clears the grid and places the four center pieces.
func (b *Board) Initialize() {
	b.cells = [Size][Size]Cell{}
	b.cells[3][3] = White
	b.cells[4][4] = White
	b.cells[3][4] = Black
	b.cells[4][3] = Black
}

// Cell returns the content at (row, col), Empty when out of range.
func (b *Board) Cell(row, col int) Cell {
	p := Pos{Row: row, Col: col}
	if !p.inBounds() {
		return Empty
	}
	return b.cells[row][col]
}

// IsValidMove reports whether color may place a piece at (row, col).
// Out-of-range and occupied cells are never valid.
func (b *Board) IsValidMove(row, col int, color Color) bool {
	origin := Pos{Row: row, Col: col}
	if !origin.inBounds() || b.cells[row][col] != Empty {
		return false
	}
	if color != Black && color != White {
		return false
	}
	for _, d := range directions {
		if b.rayLength(origin, d, color) > 0 {
			return true
		}
	}
	return false
}

// ApplyMove places a piece for color at (row, col) and flips every captured
// opponent piece. Each ray is resolved independently. It returns the cells
// that changed color, or ErrInvalidMove without touching the board.
func (b *Board) ApplyMove(row, col int, color Color) ([]Pos, error) {
	if !b.IsValidMove(row, col, color) {
		return nil, fmt.Errorf("%w: %c at (%d,%d)", ErrInvalidMove, color.Char(), row, col)
	}
	origin := Pos{Row: row, Col: col}

	// lengths are computed before any flip so rays cannot influence each other
	var runs [len(directions)]int
	for i, d := range directions {
		runs[i] = b.rayLength(origin, d, color)
	}

	b.cells[row][col] = color
	var flipped []Pos
	for i, d := range directions {
		p := origin
		for n := 0; n < runs[i]; n++ {
			p = Pos{Row: p.Row + d.Row, Col: p.Col + d.Col}
			b.cells[p.Row][p.Col] = color
			flipped = append(flipped, p)
		}
	}
	return flipped, nil
}

// rayLength returns how many opponent pieces would be captured along d, or 0
// when the ray hits an empty cell or the edge before an own piece.
func (b *Board) rayLength(origin, d Pos, color Color) int {
	opp := color.Opponent()
	n := 0
	p := Pos{Row: origin.Row + d.Row, Col: origin.Col + d.Col}
	for p.inBounds() {
		switch b.cells[p.Row][p.Col] {
		case opp:
			n++
		case color:
			return n
		default:
			return 0
		}
		p = Pos{Row: p.Row + d.Row, Col: p.Col + d.Col}
	}
	return 0
}

// CountPieces counts the cells holding color.
func (b *Board) CountPieces(color Color) int {
	n := 0
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			if b.cells[r][c] == color {
				n++
			}
		}
	}
	return n
}

func (b *Board) Score() Score {
	return Score{Black: b.CountPieces(Black), White: b.CountPieces(White)}
}

// ValidMoves lists every legal placement for color in row-major order.
func (b *Board) ValidMoves(color Color) []Pos {
	var out []Pos
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			if b.IsValidMove(r, c, color) {
				out = append(out, Pos{Row: r, Col: c})
			}
		}
	}
	return out
}

func (b *Board) HasAnyValidMove(color Color) bool {
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			if b.IsValidMove(r, c, color) {
				return true
			}
		}
	}
	return false
}

// IsGameOver is true when no empty cell admits a move for either side.
func (b *Board) IsGameOver() bool {
	return !b.HasAnyValidMove(Black) && !b.HasAnyValidMove(White)
}

// Winner returns the side with more pieces. ok is false on a draw.
func (b *Board) Winner() (Color, bool) {
	s := b.Score()
	switch {
	case s.Black > s.White:
		return Black, true
	case s.White > s.Black:
		return White, true
	default:
		return Empty, false
	}
}

// String renders the grid as 8 lines of '-', 'B' and 'W'.
func (b *Board) String() string {
	var sb strings.Builder
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			sb.WriteByte(b.cells[r][c].Char())
		}
		if r < Size-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// ParseBoard reads the String format back. Blank lines and spaces are ignored.
func ParseBoard(s string) (*Board, error) {
	var rows []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.ReplaceAll(strings.TrimSpace(line), " ", "")
		if line != "" {
			rows = append(rows, line)
		}
	}
	if len(rows) != Size {
		return nil, fmt.Errorf("parse board: want %d rows, got %d", Size, len(rows))
	}
	b := &Board{}
	for r, line := range rows {
		if len(line) != Size {
			return nil, fmt.Errorf("parse board: row %d has %d cells", r, len(line))
		}
		for c := 0; c < Size; c++ {
			switch line[c] {
			case 'B':
				b.cells[r][c] = Black
			case 'W':
				b.cells[r][c] = White
			case '-', '.':
				b.cells[r][c] = Empty
			default:
				return nil, fmt.Errorf("parse board: bad cell %q at (%d,%d)", line[c], r, c)
			}
		}
	}
	return b, nil
}

// Clone returns an independent copy.
func (b *Board) Clone() *Board {
	cp := *b
	return &cp
}
