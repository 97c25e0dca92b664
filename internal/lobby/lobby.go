package lobby

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/park285/reversi-server/internal/msgcat"
	"github.com/park285/reversi-server/internal/obslog"
	"github.com/park285/reversi-server/internal/protocol"
	"github.com/park285/reversi-server/internal/reversi"
	"github.com/park285/reversi-server/internal/session"
)

// ErrClosed is returned by Admit once Close has started.
var ErrClosed = errors.New("lobby closed")

type Config struct {
	NameTimeout  time.Duration
	WriteTimeout time.Duration
	ChatBuffer   int
	MaxSessions  int
	Session      session.Config
}

// Lobby pairs connections in arrival order. The first of a pair plays
// Black, the second White, and each pair gets its own session goroutine.
type Lobby struct {
	cfg Config
	cat *msgcat.Catalog
	obs session.Observer
	sem *semaphore.Weighted

	mu      sync.Mutex
	waiting *session.Player
	closed  bool

	wg      sync.WaitGroup
	active  atomic.Int64
	pending atomic.Int64
	paired  atomic.Int64
}

func New(cfg Config, cat *msgcat.Catalog, obs session.Observer) *Lobby {
	if cfg.NameTimeout <= 0 {
		cfg.NameTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 200
	}
	if cfg.Session.WriteTimeout <= 0 {
		cfg.Session.WriteTimeout = cfg.WriteTimeout
	}
	if cat == nil {
		cat = msgcat.Default()
	}
	return &Lobby{
		cfg: cfg,
		cat: cat,
		obs: obs,
		sem: semaphore.NewWeighted(int64(cfg.MaxSessions)),
	}
}

// Admit reads the name line from conn and queues or pairs the player.
// Sessions started from here inherit ctx, so it should be the server's
// lifetime context rather than a per-request one.
func (l *Lobby) Admit(ctx context.Context, conn net.Conn) error {
	p := session.NewPlayer(conn, l.cfg.ChatBuffer)
	raw, ok, err := p.AwaitName(ctx, l.cfg.NameTimeout)
	if err != nil {
		_ = p.Close()
		obslog.L().Debug("lobby_admit_dropped", zap.String("remote", p.RemoteAddr()), zap.Error(err))
		return err
	}
	if !ok {
		obslog.L().Info("lobby_name_timeout", zap.String("remote", p.RemoteAddr()), zap.Duration("timeout", l.cfg.NameTimeout))
	}
	name := protocol.SanitizeName(raw)

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		_ = p.Close()
		return ErrClosed
	}
	if w := l.waiting; w != nil && isDone(w) {
		l.waiting = nil
		_ = w.Close()
	}
	if l.waiting == nil {
		err := l.enqueue(p, name)
		l.mu.Unlock()
		return err
	}
	black := l.waiting
	l.waiting = nil
	l.mu.Unlock()

	return l.pair(ctx, black, p, name)
}

// enqueue seats p as Black and waits for an opponent. Called with mu held
// so the color line is written before any pairing can touch p.
func (l *Lobby) enqueue(p *session.Player, name string) error {
	p.Assign(1, l.displayName(name, 1), reversi.Black)
	if err := p.Send(protocol.ColorAssigned(reversi.Black), l.cfg.WriteTimeout); err != nil {
		_ = p.Close()
		return err
	}
	l.waiting = p
	l.pending.Store(1)
	obslog.L().Info("lobby_waiting", zap.String("name", p.Name()), zap.String("remote", p.RemoteAddr()))
	go l.watchWaiting(p)
	return nil
}

func (l *Lobby) pair(ctx context.Context, black, white *session.Player, name string) error {
	l.pending.Store(0)
	white.Assign(2, l.displayName(name, 2), reversi.White)

	// Black hears nothing until White has its color and Black's name.
	err := white.Send(protocol.ColorAssigned(reversi.White), l.cfg.WriteTimeout)
	if err == nil {
		err = white.Send(protocol.OpponentName(black.Name()), l.cfg.WriteTimeout)
	}
	if err != nil {
		_ = white.Close()
		l.requeue(black)
		return err
	}
	// A failed write to Black surfaces as a disconnect once the session starts.
	_ = black.Send(protocol.OpponentName(white.Name()), l.cfg.WriteTimeout)

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		_ = black.Send(protocol.OpponentLeft(), l.cfg.WriteTimeout)
		_ = white.Send(protocol.OpponentLeft(), l.cfg.WriteTimeout)
		_ = black.Close()
		_ = white.Close()
		return ErrClosed
	}
	l.wg.Add(1)
	l.mu.Unlock()

	l.paired.Add(1)
	obslog.L().Info("lobby_paired", zap.String("black", black.Name()), zap.String("white", white.Name()))

	go func() {
		defer l.wg.Done()
		if err := l.sem.Acquire(ctx, 1); err != nil {
			_ = black.Send(protocol.OpponentLeft(), l.cfg.WriteTimeout)
			_ = white.Send(protocol.OpponentLeft(), l.cfg.WriteTimeout)
			_ = black.Close()
			_ = white.Close()
			return
		}
		defer l.sem.Release(1)
		l.active.Add(1)
		defer l.active.Add(-1)
		session.New(black, white, l.cfg.Session, l.obs).Run(ctx)
	}()
	return nil
}

// requeue puts a still-connected Black back at the head of the queue.
func (l *Lobby) requeue(p *session.Player) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || isDone(p) || l.waiting != nil {
		_ = p.Close()
		return
	}
	l.waiting = p
	l.pending.Store(1)
}

// watchWaiting drops a queued player whose connection ends before pairing.
func (l *Lobby) watchWaiting(p *session.Player) {
	<-p.Done()
	l.mu.Lock()
	dropped := l.waiting == p
	if dropped {
		l.waiting = nil
		l.pending.Store(0)
	}
	l.mu.Unlock()
	if dropped {
		_ = p.Close()
		obslog.L().Info("lobby_waiting_left", zap.String("name", p.Name()), zap.Error(p.Err()))
	}
}

func (l *Lobby) displayName(name string, seat int) string {
	if name != "" {
		return name
	}
	return l.cat.RenderOr(msgcat.KeyDefaultName, map[string]any{"Seat": seat}, "Jogador")
}

// Serve accepts connections until ctx is cancelled or ln fails for good.
// Accept errors back off up to one second.
func (l *Lobby) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else {
				delay *= 2
			}
			if delay > time.Second {
				delay = time.Second
			}
			obslog.L().Warn("lobby_accept_error", zap.Error(err), zap.Duration("retry_in", delay))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		delay = 0
		go func() {
			_ = l.Admit(ctx, conn)
		}()
	}
}

// Close refuses further players, drops the queued one, if any, and waits
// for running sessions. Sessions stop once the context passed to Admit is
// cancelled.
func (l *Lobby) Close() {
	l.mu.Lock()
	l.closed = true
	w := l.waiting
	l.waiting = nil
	l.pending.Store(0)
	l.mu.Unlock()
	if w != nil {
		_ = w.Send(protocol.OpponentLeft(), l.cfg.WriteTimeout)
		_ = w.Close()
	}
	l.wg.Wait()
}

// Stats is a point-in-time view of the lobby.
type Stats struct {
	Waiting     int   `json:"waiting"`
	Active      int   `json:"active"`
	Paired      int64 `json:"paired_total"`
	MaxSessions int   `json:"max_sessions"`
}

func (l *Lobby) Stats() Stats {
	return Stats{
		Waiting:     int(l.pending.Load()),
		Active:      int(l.active.Load()),
		Paired:      l.paired.Load(),
		MaxSessions: l.cfg.MaxSessions,
	}
}

func isDone(p *session.Player) bool {
	select {
	case <-p.Done():
		return true
	default:
		return false
	}
}
