package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/reversi-server/internal/obslog"
	"github.com/park285/reversi-server/internal/protocol"
	"github.com/park285/reversi-server/internal/reversi"
)

const controlBuffer = 8

// Player is one connected participant. A single pump goroutine reads the
// connection; the first line is the declared name, later lines are decoded
// into the control (moves, clock) and chat channels.
type Player struct {
	conn net.Conn
	lr   *protocol.LineReader
	addr string

	seat  int
	name  string
	color reversi.Color

	nameCh  chan string
	control chan protocol.Message
	chat    chan string

	done      chan struct{}
	err       error
	closeOnce sync.Once
	doneOnce  sync.Once
}

// NewPlayer wraps conn and starts reading from it.
func NewPlayer(conn net.Conn, chatBuffer int) *Player {
	if chatBuffer <= 0 {
		chatBuffer = 32
	}
	p := &Player{
		conn:    conn,
		lr:      protocol.NewLineReader(conn),
		nameCh:  make(chan string, 1),
		control: make(chan protocol.Message, controlBuffer),
		chat:    make(chan string, chatBuffer),
		done:    make(chan struct{}),
	}
	if ra := conn.RemoteAddr(); ra != nil {
		p.addr = ra.String()
	}
	go p.pump()
	return p
}

func (p *Player) pump() {
	named := false
	for {
		line, err := p.lr.ReadLine()
		if errors.Is(err, protocol.ErrLineTooLong) {
			obslog.L().Debug("protocol_error", zap.String("remote", p.addr), zap.Error(err))
			continue
		}
		if err != nil {
			p.finish(err)
			return
		}
		if !named {
			named = true
			p.nameCh <- line
			continue
		}
		msg, err := protocol.Decode(line)
		if err != nil {
			obslog.L().Debug("protocol_error", zap.String("remote", p.addr), zap.Error(err))
			continue
		}
		switch msg.Kind {
		case protocol.KindQuit:
			p.finish(ErrPlayerQuit)
			return
		case protocol.KindChat:
			select {
			case p.chat <- msg.Text:
			default:
				obslog.L().Warn("chat_dropped", zap.String("remote", p.addr), zap.Int("buffer", cap(p.chat)))
			}
		case protocol.KindMove, protocol.KindTimeUp:
			select {
			case p.control <- msg:
			default:
				obslog.L().Warn("control_dropped", zap.String("remote", p.addr), zap.String("kind", msg.Kind.String()))
			}
		default:
			obslog.L().Debug("unexpected_client_message", zap.String("remote", p.addr), zap.String("kind", msg.Kind.String()))
		}
	}
}

func (p *Player) finish(err error) {
	p.doneOnce.Do(func() {
		p.err = err
		close(p.done)
	})
}

// AwaitName waits for the first line. ok is false when timeout elapsed
// first; the connection stays usable and a late name line is discarded.
func (p *Player) AwaitName(ctx context.Context, timeout time.Duration) (name string, ok bool, err error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case name = <-p.nameCh:
		return name, true, nil
	case <-timer.C:
		return "", false, nil
	case <-p.done:
		return "", false, fmt.Errorf("%w: %w", ErrNameWait, p.err)
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}

// Assign fixes seat, name and color. Call before handing the player to a session.
func (p *Player) Assign(seat int, name string, color reversi.Color) {
	p.seat, p.name, p.color = seat, name, color
}

func (p *Player) Seat() int             { return p.seat }
func (p *Player) Name() string          { return p.name }
func (p *Player) Color() reversi.Color  { return p.color }
func (p *Player) RemoteAddr() string    { return p.addr }
func (p *Player) Done() <-chan struct{} { return p.done }

// Err reports why the player left. Valid once Done is closed.
func (p *Player) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Send writes one message under a write deadline.
func (p *Player) Send(m protocol.Message, timeout time.Duration) error {
	if timeout > 0 {
		_ = p.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	return protocol.WriteLine(p.conn, m)
}

// Close closes the connection, which also ends the pump. Safe to call twice.
func (p *Player) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = p.conn.Close()
	})
	return err
}

// discardPending drops moves queued before the game started.
func (p *Player) discardPending() int {
	n := 0
	for {
		select {
		case <-p.control:
			n++
		default:
			return n
		}
	}
}
