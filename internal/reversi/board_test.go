package reversi

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewBoardOpeningPosition(t *testing.T) {
	b := NewBoard()
	require.Equal(t, 2, b.CountPieces(Black))
	require.Equal(t, 2, b.CountPieces(White))
	require.Equal(t, White, b.Cell(3, 3))
	require.Equal(t, White, b.Cell(4, 4))
	require.Equal(t, Black, b.Cell(3, 4))
	require.Equal(t, Black, b.Cell(4, 3))
	require.Equal(t, 60, b.CountPieces(Empty))
}

func TestInitializeResetsBoard(t *testing.T) {
	b := NewBoard()
	_, err := b.ApplyMove(2, 3, Black)
	require.NoError(t, err)
	b.Initialize()
	require.Equal(t, NewBoard().String(), b.String())
}

func TestBlackOpensAtTwoThree(t *testing.T) {
	b := NewBoard()
	flipped, err := b.ApplyMove(2, 3, Black)
	require.NoError(t, err)
	require.Equal(t, []Pos{{3, 3}}, flipped)

	for _, p := range []Pos{{2, 3}, {3, 3}, {3, 4}, {4, 3}} {
		require.Equal(t, Black, b.Cell(p.Row, p.Col), "cell %v", p)
	}
	require.Equal(t, White, b.Cell(4, 4))
	require.Equal(t, 4, b.CountPieces(Black))
	require.Equal(t, 1, b.CountPieces(White))
}

func TestIsValidMove(t *testing.T) {
	cases := []struct {
		name  string
		row   int
		col   int
		color Color
		want  bool
	}{
		{"black north of white", 2, 3, Black, true},
		{"black west of white", 3, 2, Black, true},
		{"black south", 5, 4, Black, true},
		{"black east", 4, 5, Black, true},
		{"white opening", 2, 4, White, true},
		{"corner has no capture", 0, 0, Black, false},
		{"adjacent without bracket", 2, 2, Black, false},
		{"occupied", 3, 3, Black, false},
		{"occupied by own", 3, 4, Black, false},
		{"row out of range", -1, 3, Black, false},
		{"col out of range", 3, 8, Black, false},
		{"empty is not a color", 2, 3, Empty, false},
	}
	b := NewBoard()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, b.IsValidMove(tc.row, tc.col, tc.color))
		})
	}
}

func TestApplyMoveRejectsInvalidWithoutMutation(t *testing.T) {
	b := NewBoard()
	before := b.String()
	_, err := b.ApplyMove(0, 0, Black)
	require.True(t, errors.Is(err, ErrInvalidMove))
	require.Equal(t, before, b.String())
}

func TestApplyMoveCapturesInSeveralRays(t *testing.T) {
	b, err := ParseBoard(`
		--------
		-B-B-B--
		--WWW---
		-BW-WB--
		--WWW---
		-B-B-B--
		--------
		--------`)
	require.NoError(t, err)

	flipped, err := b.ApplyMove(3, 3, Black)
	require.NoError(t, err)
	require.Len(t, flipped, 8)
	require.Equal(t, 0, b.CountPieces(White))
	require.Equal(t, 8+8+1, b.CountPieces(Black))
}

func TestApplyMoveStopsAtFirstOwnPiece(t *testing.T) {
	b, err := ParseBoard(`
		B-------
		W-------
		B-------
		W-------
		--------
		--------
		--------
		--------`)
	require.NoError(t, err)

	flipped, err := b.ApplyMove(4, 0, Black)
	require.NoError(t, err)
	require.Equal(t, []Pos{{3, 0}}, flipped)
	require.Equal(t, White, b.Cell(1, 0))
}

func TestRayBrokenByGapOrEdge(t *testing.T) {
	b, err := ParseBoard(`
		WW-WW---
		--------
		--------
		--------
		--------
		--------
		--------
		--------`)
	require.NoError(t, err)
	// west ray runs into the edge, east ray ends on an empty cell
	require.False(t, b.IsValidMove(0, 2, Black))
	require.False(t, b.IsValidMove(0, 2, White))
}

func TestGameOverDetection(t *testing.T) {
	full, err := ParseBoard(`
		BBBBBBBB
		BBBBBBBB
		BBBBBBBB
		BBBBBBBB
		WWWWWWWW
		WWWWWWWW
		WWWWWWWW
		WWWWWWWW`)
	require.NoError(t, err)
	require.True(t, full.IsGameOver())

	wiped, err := ParseBoard(`
		--------
		--------
		---BB---
		---BB---
		--------
		--------
		--------
		--------`)
	require.NoError(t, err)
	require.True(t, wiped.IsGameOver())
	winner, ok := wiped.Winner()
	require.True(t, ok)
	require.Equal(t, Black, winner)

	require.False(t, NewBoard().IsGameOver())
}

func TestOnlyOneSideBlocked(t *testing.T) {
	b, err := ParseBoard(`
		WWWWWWWW
		WWWWWWWW
		WWWWWWWW
		WWWWWWWW
		WWWWWWWW
		WWWWWWWW
		WWWWWWWB
		WWWWWW--`)
	require.NoError(t, err)
	require.True(t, b.HasAnyValidMove(White))
	require.False(t, b.HasAnyValidMove(Black))
	require.False(t, b.IsGameOver())
}

// Random playouts check the engine invariants on many reachable positions.
func TestRandomPlayoutInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for game := 0; game < 50; game++ {
		b := NewBoard()
		mover := Black
		for !b.IsGameOver() {
			requireGameOverMatchesBruteForce(t, b)
			moves := b.ValidMoves(mover)
			if len(moves) == 0 {
				mover = mover.Opponent()
				continue
			}
			mv := moves[rng.Intn(len(moves))]
			before := b.Clone()
			flipped, err := b.ApplyMove(mv.Row, mv.Col, mover)
			require.NoError(t, err)
			require.NotEmpty(t, flipped)
			require.Equal(t, before.Score().Total()+1, b.Score().Total())
			require.Equal(t, before.CountPieces(mover)+len(flipped)+1, b.CountPieces(mover))
			for r := 0; r < Size; r++ {
				for c := 0; c < Size; c++ {
					if before.Cell(r, c) != Empty {
						require.NotEqual(t, Empty, b.Cell(r, c), "cell (%d,%d) emptied", r, c)
					}
				}
			}
			mover = mover.Opponent()
		}
		requireGameOverMatchesBruteForce(t, b)
	}
}

func requireGameOverMatchesBruteForce(t *testing.T, b *Board) {
	t.Helper()
	found := false
	for r := 0; r < Size && !found; r++ {
		for c := 0; c < Size && !found; c++ {
			if b.Cell(r, c) == Empty && (b.IsValidMove(r, c, Black) || b.IsValidMove(r, c, White)) {
				found = true
			}
		}
	}
	require.Equal(t, !found, b.IsGameOver())
}

func TestParseBoardRoundTrip(t *testing.T) {
	b := NewBoard()
	parsed, err := ParseBoard(b.String())
	require.NoError(t, err)
	require.Equal(t, b.String(), parsed.String())

	_, err = ParseBoard("BW")
	require.Error(t, err)
}

func TestParseColor(t *testing.T) {
	c, err := ParseColor("B")
	require.NoError(t, err)
	require.Equal(t, Black, c)
	c, err = ParseColor("W")
	require.NoError(t, err)
	require.Equal(t, White, c)
	_, err = ParseColor("X")
	require.ErrorIs(t, err, ErrBadColor)
}
