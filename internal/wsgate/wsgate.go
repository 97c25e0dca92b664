package wsgate

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/park285/reversi-server/internal/obslog"
)

// Admitter takes ownership of a line-oriented connection.
type Admitter interface {
	Admit(ctx context.Context, conn net.Conn) error
}

type Options struct {
	// OriginPatterns is passed to websocket.Accept. Empty means same origin only.
	OriginPatterns []string
}

// NewRouter serves GET /ws and GET /healthz. Every accepted socket is
// handed to a as a net.Conn carrying text frames; sessions run under base.
func NewRouter(base context.Context, a Admitter, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/ws", Handler(base, a, opts))
	return r
}

func Handler(base context.Context, a Admitter, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			obslog.L().Debug("ws_accept_error", zap.String("remote", r.RemoteAddr), zap.Error(err))
			return
		}
		conn := newConn(base, c, r.RemoteAddr)
		obslog.L().Debug("ws_connected", zap.String("remote", r.RemoteAddr))

		if err := a.Admit(base, conn); err != nil {
			_ = conn.Close()
			return
		}
		// The handler holds the request until the game side closes the socket.
		select {
		case <-conn.closed:
		case <-base.Done():
			_ = conn.Close()
		}
	}
}

// conn carries the line protocol over one websocket. Every inbound message
// is read as whole lines, with a newline added when the client left it off.
// Writes send one text message per call. RemoteAddr reports the HTTP peer.
type conn struct {
	net.Conn
	ws     *websocket.Conn
	ctx    context.Context
	remote addr

	msg  io.Reader
	last byte
	eol  bool

	once   sync.Once
	closed chan struct{}
}

func newConn(ctx context.Context, ws *websocket.Conn, remote string) *conn {
	return &conn{
		Conn:   websocket.NetConn(ctx, ws, websocket.MessageText),
		ws:     ws,
		ctx:    ctx,
		remote: addr(remote),
		closed: make(chan struct{}),
	}
}

// Read is only called from one goroutine, the player's pump.
func (c *conn) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		if c.eol {
			c.eol = false
			p[0] = '\n'
			return 1, nil
		}
		if c.msg == nil {
			_, r, err := c.ws.Reader(c.ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return 0, io.EOF
				}
				return 0, err
			}
			c.msg, c.last = r, '\n'
		}
		n, err := c.msg.Read(p)
		if n > 0 {
			c.last = p[n-1]
		}
		if errors.Is(err, io.EOF) {
			c.msg = nil
			c.eol = c.last != '\n'
			err = nil
		}
		if n > 0 || err != nil {
			return n, err
		}
	}
}

func (c *conn) RemoteAddr() net.Addr { return c.remote }

func (c *conn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return c.Conn.Close()
}

type addr string

func (a addr) Network() string { return "websocket" }
func (a addr) String() string  { return string(a) }
