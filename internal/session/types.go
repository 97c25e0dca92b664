package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/reversi-server/internal/reversi"
)

var (
	// ErrPlayerQuit marks a player who sent SAIR.
	ErrPlayerQuit = errors.New("player quit")
	ErrNameWait   = errors.New("player left before sending a name")
)

// Phase of a session.
type Phase int

const (
	PhaseAwaitingPlayers Phase = iota
	PhaseAnnouncing
	PhaseAwaitingMove
	PhaseResolving
	PhaseGameOver
	PhaseAborted
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingPlayers:
		return "awaiting_players"
	case PhaseAnnouncing:
		return "announcing"
	case PhaseAwaitingMove:
		return "awaiting_move"
	case PhaseResolving:
		return "resolving"
	case PhaseGameOver:
		return "game_over"
	case PhaseAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Reason explains why a session ended.
type Reason string

const (
	ReasonFinished   Reason = "finished"
	ReasonQuit       Reason = "quit"
	ReasonDisconnect Reason = "disconnect"
	ReasonShutdown   Reason = "shutdown"
)

// PassRule decides who moves after a turn ends.
type PassRule int

const (
	// PassConditional hands the turn to the opponent only if the opponent
	// has a legal move; otherwise the same player moves again.
	PassConditional PassRule = iota
	// PassAlways flips the turn unconditionally.
	PassAlways
)

func (r PassRule) String() string {
	if r == PassAlways {
		return "always"
	}
	return "conditional"
}

func ParsePassRule(s string) (PassRule, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "conditional":
		return PassConditional, nil
	case "always":
		return PassAlways, nil
	default:
		return PassConditional, fmt.Errorf("unknown pass rule %q", s)
	}
}

type Config struct {
	TurnTimeout  time.Duration
	WriteTimeout time.Duration
	PassRule     PassRule
}

func (c Config) withDefaults() Config {
	if c.TurnTimeout <= 0 {
		c.TurnTimeout = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	return c
}

// Snapshot is the externally visible state of a running session.
type Snapshot struct {
	ID        string        `json:"id"`
	Phase     string        `json:"phase"`
	Black     string        `json:"black"`
	White     string        `json:"white"`
	ToMove    string        `json:"to_move"`
	Score     reversi.Score `json:"score"`
	Moves     int           `json:"moves"`
	Board     string        `json:"board"`
	StartedAt time.Time     `json:"started_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Result is what Run returns once the session is over.
type Result struct {
	ID     string
	Phase  Phase
	Reason Reason
	Score  reversi.Score
	Winner reversi.Color // Empty on a draw or abort
	Moves  int
	// LeftSeat is the seat that quit or dropped, -1 otherwise.
	LeftSeat int
}

// Observer receives lifecycle notifications. Started and Updated arrive in
// order on a per-session delivery goroutine, so a slow observer never holds
// up a turn. Ended is called once all earlier snapshots have been delivered.
type Observer interface {
	SessionStarted(ctx context.Context, snap Snapshot)
	SessionUpdated(ctx context.Context, snap Snapshot)
	SessionEnded(ctx context.Context, snap Snapshot, res Result)
}

type nopObserver struct{}

func (nopObserver) SessionStarted(context.Context, Snapshot)       {}
func (nopObserver) SessionUpdated(context.Context, Snapshot)       {}
func (nopObserver) SessionEnded(context.Context, Snapshot, Result) {}
