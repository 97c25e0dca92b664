package registry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/park285/reversi-server/internal/obslog"
	"github.com/park285/reversi-server/internal/reversi"
	"github.com/park285/reversi-server/internal/session"
)

// Registry records session lifecycle events into a Store. Store errors are
// logged and never reach the game.
type Registry struct {
	store   Store
	timeout time.Duration
}

var _ session.Observer = (*Registry)(nil)

func New(store Store) *Registry {
	return &Registry{store: store, timeout: 2 * time.Second}
}

func (r *Registry) SessionStarted(ctx context.Context, snap session.Snapshot) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.store.Put(ctx, snap); err != nil {
		obslog.L().Warn("registry_put_error", zap.String("session_id", snap.ID), zap.Error(err))
	}
	if err := r.store.Incr(ctx, map[string]int64{CounterStarted: 1}); err != nil {
		obslog.L().Warn("registry_incr_error", zap.Error(err))
	}
}

func (r *Registry) SessionUpdated(ctx context.Context, snap session.Snapshot) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.store.Put(ctx, snap); err != nil {
		obslog.L().Warn("registry_put_error", zap.String("session_id", snap.ID), zap.Error(err))
	}
}

func (r *Registry) SessionEnded(ctx context.Context, snap session.Snapshot, res session.Result) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.store.Remove(ctx, snap.ID); err != nil {
		obslog.L().Warn("registry_remove_error", zap.String("session_id", snap.ID), zap.Error(err))
	}
	if err := r.store.Incr(ctx, endCounters(res)); err != nil {
		obslog.L().Warn("registry_incr_error", zap.Error(err))
	}
}

func endCounters(res session.Result) map[string]int64 {
	c := map[string]int64{CounterMoves: int64(res.Moves)}
	c["reason_"+string(res.Reason)] = 1
	if res.Phase != session.PhaseGameOver {
		c[CounterAborted] = 1
		return c
	}
	c[CounterFinished] = 1
	switch res.Winner {
	case reversi.Black:
		c[CounterWinBlack] = 1
	case reversi.White:
		c[CounterWinWhite] = 1
	default:
		c[CounterDraw] = 1
	}
	return c
}

// Sessions lists the live sessions.
func (r *Registry) Sessions(ctx context.Context) ([]session.Snapshot, error) {
	return r.store.List(ctx)
}

func (r *Registry) Session(ctx context.Context, id string) (session.Snapshot, error) {
	return r.store.Get(ctx, id)
}

func (r *Registry) Counters(ctx context.Context) (map[string]int64, error) {
	return r.store.Counters(ctx)
}

func (r *Registry) Close() error { return r.store.Close() }
