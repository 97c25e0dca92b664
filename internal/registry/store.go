package registry

import (
	"context"
	"errors"

	"github.com/park285/reversi-server/internal/session"
)

var ErrNotFound = errors.New("session not found")

// Store keeps live session snapshots and aggregate counters.
type Store interface {
	Put(ctx context.Context, snap session.Snapshot) error
	Get(ctx context.Context, id string) (session.Snapshot, error)
	Remove(ctx context.Context, id string) error
	List(ctx context.Context) ([]session.Snapshot, error)
	Incr(ctx context.Context, counters map[string]int64) error
	Counters(ctx context.Context) (map[string]int64, error)
	Close() error
}

// Counter names.
const (
	CounterStarted  = "started"
	CounterFinished = "finished"
	CounterAborted  = "aborted"
	CounterMoves    = "moves"
	CounterWinBlack = "wins_black"
	CounterWinWhite = "wins_white"
	CounterDraw     = "draws"
)
