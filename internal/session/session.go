package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/park285/reversi-server/internal/obslog"
	"github.com/park285/reversi-server/internal/protocol"
	"github.com/park285/reversi-server/internal/reversi"
)

// Session runs one game between two players. Index 0 plays Black and
// index 1 plays White. Only the Run goroutine touches the board and writes
// to the connections.
type Session struct {
	id      string
	cfg     Config
	players [2]*Player
	board   *reversi.Board
	obs     Observer
	notify  *notifier
	log     *zap.Logger

	phase     Phase
	mover     int
	moves     int
	lost      int
	startedAt time.Time
}

func New(black, white *Player, cfg Config, obs Observer) *Session {
	if obs == nil {
		obs = nopObserver{}
	}
	id := uuid.NewString()
	return &Session{
		id:      id,
		cfg:     cfg.withDefaults(),
		players: [2]*Player{black, white},
		board:   reversi.NewBoard(),
		obs:     obs,
		log:     obslog.L().With(zap.String("session_id", id)),
		phase:   PhaseAwaitingPlayers,
		lost:    -1,
	}
}

func (s *Session) ID() string { return s.id }

// Run plays the game to completion and closes both connections.
// Cancelling ctx aborts the game and tells both players.
func (s *Session) Run(ctx context.Context) Result {
	s.startedAt = time.Now()
	s.log.Info("session_start",
		zap.String("black", s.players[0].Name()),
		zap.String("white", s.players[1].Name()),
		zap.String("pass_rule", s.cfg.PassRule.String()),
		zap.Duration("turn_timeout", s.cfg.TurnTimeout))

	s.notify = startNotifier(context.WithoutCancel(ctx), s.obs, s.log)
	res := s.play(ctx)

	if err := s.closePlayers(); err != nil {
		s.log.Debug("session_close_error", zap.Error(err))
	}
	s.notify.close()
	s.obs.SessionEnded(context.WithoutCancel(ctx), s.snapshot(), res)
	s.log.Info("session_end",
		zap.String("phase", res.Phase.String()),
		zap.String("reason", string(res.Reason)),
		zap.Int("black", res.Score.Black),
		zap.Int("white", res.Score.White),
		zap.Int("moves", res.Moves),
		zap.Duration("elapsed", time.Since(s.startedAt)))
	return res
}

func (s *Session) play(ctx context.Context) Result {
	s.phase = PhaseAnnouncing
	for i, p := range s.players {
		if n := p.discardPending(); n > 0 {
			s.log.Debug("stale_moves_discarded", zap.Int("seat", i), zap.Int("count", n))
		}
	}
	s.broadcast(protocol.Start())
	s.mover = 0
	s.send(s.mover, protocol.YourTurn())
	s.notify.push(snapStarted, s.snapshot())

	for {
		if res := s.turn(ctx); res != nil {
			return *res
		}
	}
}

// turn runs one AwaitingMove phase. It returns nil when the turn passed to
// the next mover and a result when the session is over.
func (s *Session) turn(ctx context.Context) *Result {
	s.phase = PhaseAwaitingMove
	deadline := time.Now().Add(s.cfg.TurnTimeout)
	s.send(s.mover, protocol.Clock(clockSeconds(s.cfg.TurnTimeout)))

	timer := time.NewTimer(s.cfg.TurnTimeout)
	defer timer.Stop()

	for {
		if s.lost >= 0 {
			return s.abort(ReasonDisconnect, s.lost)
		}

		var (
			seat int
			msg  protocol.Message
		)
		select {
		case <-ctx.Done():
			return s.abort(ReasonShutdown, -1)
		case <-s.players[0].Done():
			return s.left(0)
		case <-s.players[1].Done():
			return s.left(1)
		case text := <-s.players[0].chat:
			s.relayChat(0, text)
			continue
		case text := <-s.players[1].chat:
			s.relayChat(1, text)
			continue
		case <-timer.C:
			s.forcedPass("timer")
			return nil
		case msg = <-s.players[0].control:
			seat = 0
		case msg = <-s.players[1].control:
			seat = 1
		}

		if seat != s.mover {
			s.log.Debug("out_of_turn", zap.Int("seat", seat), zap.String("kind", msg.Kind.String()))
			continue
		}

		switch msg.Kind {
		case protocol.KindTimeUp:
			s.forcedPass("client")
			return nil
		case protocol.KindMove:
			s.phase = PhaseResolving
			over, accepted := s.resolve(msg.Row, msg.Col)
			if over {
				return s.finished()
			}
			if accepted {
				return nil
			}
			s.phase = PhaseAwaitingMove
			s.send(s.mover, protocol.Clock(clockSeconds(time.Until(deadline))))
		}
	}
}

// resolve applies the mover's move. accepted is false for an illegal move,
// which leaves the board, the mover and the running clock unchanged.
func (s *Session) resolve(row, col int) (over, accepted bool) {
	color := colorAt(s.mover)
	flipped, err := s.board.ApplyMove(row, col, color)
	if err != nil {
		s.log.Debug("move_rejected", zap.Int("seat", s.mover), zap.Int("row", row), zap.Int("col", col), zap.Error(err))
		s.send(s.mover, protocol.MoveInvalid())
		return false, false
	}
	s.moves++
	s.log.Debug("move_applied",
		zap.String("color", color.String()),
		zap.Int("row", row), zap.Int("col", col),
		zap.Int("flipped", len(flipped)))

	s.broadcast(protocol.MovePlayed(row, col, color))
	s.send(s.mover, protocol.MoveConfirmed())

	if s.board.IsGameOver() {
		return true, true
	}
	s.mover = s.nextMover(s.mover)
	s.send(s.mover, protocol.YourTurn())
	s.notify.push(snapUpdated, s.snapshot())
	return false, true
}

func (s *Session) forcedPass(source string) {
	s.phase = PhaseResolving
	from := s.mover
	s.mover = s.nextMover(from)
	s.log.Info("turn_forced_pass",
		zap.Int("seat", from),
		zap.String("source", source),
		zap.Int("next", s.mover))
	s.send(s.mover, protocol.YourTurn())
	s.notify.push(snapUpdated, s.snapshot())
}

// nextMover picks who moves after seat from finished a turn.
func (s *Session) nextMover(from int) int {
	opp := 1 - from
	if s.cfg.PassRule == PassAlways {
		return opp
	}
	if s.board.HasAnyValidMove(colorAt(opp)) {
		return opp
	}
	s.log.Info("turn_skipped", zap.Int("seat", opp), zap.String("color", colorAt(opp).String()))
	return from
}

func (s *Session) relayChat(from int, text string) {
	s.log.Debug("chat_relay", zap.Int("seat", from), zap.Int("len", len(text)))
	s.broadcast(protocol.Chat(text))
}

func (s *Session) finished() *Result {
	s.phase = PhaseGameOver
	s.broadcast(protocol.GameOver())
	winner, _ := s.board.Winner()
	return &Result{
		ID:       s.id,
		Phase:    PhaseGameOver,
		Reason:   ReasonFinished,
		Score:    s.board.Score(),
		Winner:   winner,
		Moves:    s.moves,
		LeftSeat: -1,
	}
}

func (s *Session) left(seat int) *Result {
	p := s.players[seat]
	reason := ReasonDisconnect
	if errors.Is(p.Err(), ErrPlayerQuit) {
		reason = ReasonQuit
	}
	s.log.Info("player_left",
		zap.Int("seat", p.Seat()),
		zap.String("color", p.Color().String()),
		zap.String("remote", p.RemoteAddr()),
		zap.Error(p.Err()))
	return s.abort(reason, seat)
}

// abort ends the session early. seat is the player who left, or -1 when
// the server is shutting the session down.
func (s *Session) abort(reason Reason, seat int) *Result {
	s.phase = PhaseAborted
	s.log.Info("session_aborted", zap.String("reason", string(reason)), zap.Int("seat", seat))
	if seat >= 0 {
		s.lost = seat
		s.send(1-seat, protocol.OpponentLeft())
	} else {
		s.broadcast(protocol.OpponentLeft())
	}
	return &Result{
		ID:       s.id,
		Phase:    PhaseAborted,
		Reason:   reason,
		Score:    s.board.Score(),
		Winner:   reversi.Empty,
		Moves:    s.moves,
		LeftSeat: seat,
	}
}

func (s *Session) broadcast(m protocol.Message) {
	s.send(0, m)
	s.send(1, m)
}

// send writes to one seat. A failed write marks that seat as lost; the
// turn loop turns that into an abort.
func (s *Session) send(seat int, m protocol.Message) {
	if s.lost == seat {
		return
	}
	p := s.players[seat]
	if err := p.Send(m, s.cfg.WriteTimeout); err != nil {
		s.log.Warn("write_failed",
			zap.Int("seat", p.Seat()),
			zap.String("color", p.Color().String()),
			zap.String("kind", m.Kind.String()),
			zap.Error(err))
		if s.lost < 0 {
			s.lost = seat
		}
	}
}

func (s *Session) closePlayers() error {
	var result error
	for _, p := range s.players {
		if err := p.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		ID:        s.id,
		Phase:     s.phase.String(),
		Black:     s.players[0].Name(),
		White:     s.players[1].Name(),
		Score:     s.board.Score(),
		Moves:     s.moves,
		Board:     s.board.String(),
		StartedAt: s.startedAt,
		UpdatedAt: time.Now(),
	}
	if s.phase == PhaseAwaitingMove || s.phase == PhaseResolving || s.phase == PhaseAnnouncing {
		snap.ToMove = colorAt(s.mover).String()
	}
	return snap
}

func colorAt(seat int) reversi.Color {
	if seat == 0 {
		return reversi.Black
	}
	return reversi.White
}

// clockSeconds rounds d up to whole seconds, minimum 1.
func clockSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
