package registry

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/park285/reversi-server/internal/reversi"
	"github.com/park285/reversi-server/internal/session"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(rdb, ttl)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func snap(id string, started time.Time) session.Snapshot {
	return session.Snapshot{
		ID:        id,
		Phase:     session.PhaseAwaitingMove.String(),
		Black:     "Ana",
		White:     "Bruno",
		ToMove:    "black",
		Score:     reversi.Score{Black: 2, White: 2},
		Board:     reversi.NewBoard().String(),
		StartedAt: started,
		UpdatedAt: started,
	}
}

func TestRedisStorePutListRemove(t *testing.T) {
	s, mr := newRedisStore(t, time.Hour)
	ctx := context.Background()
	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, s.Put(ctx, snap("b", t0.Add(time.Minute))))
	require.NoError(t, s.Put(ctx, snap("a", t0)))
	require.True(t, mr.Exists("rv:session:a"))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "a", list[0].ID)
	require.Equal(t, "b", list[1].ID)
	require.Equal(t, reversi.NewBoard().String(), list[0].Board)

	got, err := s.Get(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, "Bruno", got.White)

	require.NoError(t, s.Remove(ctx, "a"))
	_, err = s.Get(ctx, "a")
	require.ErrorIs(t, err, ErrNotFound)
	members, err := mr.Members("rv:active")
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, members)
}

func TestRedisStorePrunesExpired(t *testing.T) {
	s, mr := newRedisStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, snap("old", time.Now())))
	mr.FastForward(2 * time.Minute)
	require.NoError(t, s.Put(ctx, snap("new", time.Now())))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "new", list[0].ID)

	members, err := mr.Members("rv:active")
	require.NoError(t, err)
	require.Equal(t, []string{"new"}, members)
}

func TestRedisStoreCounters(t *testing.T) {
	s, _ := newRedisStore(t, 0)
	ctx := context.Background()

	require.NoError(t, s.Incr(ctx, map[string]int64{CounterStarted: 1, CounterMoves: 10}))
	require.NoError(t, s.Incr(ctx, map[string]int64{CounterStarted: 1}))
	c, err := s.Counters(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), c[CounterStarted])
	require.Equal(t, int64(10), c[CounterMoves])
}

func TestOpenRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	s, err := OpenRedis(context.Background(), "redis://"+mr.Addr()+"/0", 0)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = OpenRedis(context.Background(), "http://example", 0)
	require.Error(t, err)
	_, err = OpenRedis(context.Background(), " ", 0)
	require.Error(t, err)
}

func TestMemoryStoreExpiry(t *testing.T) {
	m := NewMemoryStore(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, snap("x", now)))
	list, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	now = now.Add(2 * time.Minute)
	_, err = m.Get(ctx, "x")
	require.ErrorIs(t, err, ErrNotFound)
	list, err = m.List(ctx)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestRegistryObserverLifecycle(t *testing.T) {
	for name, store := range map[string]func(t *testing.T) Store{
		"memory": func(*testing.T) Store { return NewMemoryStore(0) },
		"redis": func(t *testing.T) Store {
			s, _ := newRedisStore(t, 0)
			return s
		},
	} {
		t.Run(name, func(t *testing.T) {
			r := New(store(t))
			ctx := context.Background()
			s1 := snap("s1", time.Now())
			s2 := snap("s2", time.Now())

			r.SessionStarted(ctx, s1)
			r.SessionStarted(ctx, s2)
			s1.Moves = 3
			r.SessionUpdated(ctx, s1)

			live, err := r.Sessions(ctx)
			require.NoError(t, err)
			require.Len(t, live, 2)
			got, err := r.Session(ctx, "s1")
			require.NoError(t, err)
			require.Equal(t, 3, got.Moves)

			r.SessionEnded(ctx, s1, session.Result{ID: "s1", Phase: session.PhaseGameOver, Reason: session.ReasonFinished, Winner: reversi.White, Moves: 60, LeftSeat: -1})
			r.SessionEnded(ctx, s2, session.Result{ID: "s2", Phase: session.PhaseAborted, Reason: session.ReasonQuit, Moves: 4, LeftSeat: 0})

			live, err = r.Sessions(ctx)
			require.NoError(t, err)
			require.Empty(t, live)

			c, err := r.Counters(ctx)
			require.NoError(t, err)
			require.Equal(t, int64(2), c[CounterStarted])
			require.Equal(t, int64(1), c[CounterFinished])
			require.Equal(t, int64(1), c[CounterAborted])
			require.Equal(t, int64(1), c[CounterWinWhite])
			require.Equal(t, int64(64), c[CounterMoves])
			require.Equal(t, int64(1), c["reason_quit"])
			require.Zero(t, c[CounterDraw])
			require.NoError(t, r.Close())
		})
	}
}
