package adminhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/reversi-server/internal/lobby"
	"github.com/park285/reversi-server/internal/msgcat"
	"github.com/park285/reversi-server/internal/obslog"
	"github.com/park285/reversi-server/internal/registry"
	"github.com/park285/reversi-server/internal/session"
)

// SessionSource is the read side of the session registry.
type SessionSource interface {
	Sessions(ctx context.Context) ([]session.Snapshot, error)
	Session(ctx context.Context, id string) (session.Snapshot, error)
	Counters(ctx context.Context) (map[string]int64, error)
}

type LobbySource interface {
	Stats() lobby.Stats
}

// StatsResponse is the /stats payload.
type StatsResponse struct {
	Lobby    lobby.Stats      `json:"lobby"`
	Counters map[string]int64 `json:"counters"`
}

// Server exposes read-only status over fasthttp.
type Server struct {
	sessions SessionSource
	lobby    LobbySource
	cat      *msgcat.Catalog
	timeout  time.Duration
	draining atomic.Bool
	srv      *fasthttp.Server
}

func New(sessions SessionSource, lb LobbySource, cat *msgcat.Catalog) *Server {
	if cat == nil {
		cat = msgcat.Default()
	}
	s := &Server{sessions: sessions, lobby: lb, cat: cat, timeout: 3 * time.Second}
	s.srv = &fasthttp.Server{
		Handler:      s.Handler,
		Name:         "reversi-admin",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// SetDraining makes /healthz report 503 so load balancers stop routing.
func (s *Server) SetDraining(v bool) { s.draining.Store(v) }

func (s *Server) ListenAndServe(addr string) error {
	obslog.L().Info("admin_listen", zap.String("addr", addr))
	return s.srv.ListenAndServe(addr)
}

func (s *Server) Serve(ln net.Listener) error { return s.srv.Serve(ln) }

func (s *Server) Shutdown(ctx context.Context) error { return s.srv.ShutdownWithContext(ctx) }

// Handler routes admin requests.
func (s *Server) Handler(ctx *fasthttp.RequestCtx) {
	if !ctx.IsGet() {
		ctx.Error("method not allowed", fasthttp.StatusMethodNotAllowed)
		return
	}
	path := string(ctx.Path())
	switch {
	case path == "/healthz":
		s.healthz(ctx)
	case path == "/sessions":
		s.listSessions(ctx)
	case strings.HasPrefix(path, "/sessions/"):
		s.getSession(ctx, strings.TrimPrefix(path, "/sessions/"))
	case path == "/stats":
		s.stats(ctx)
	default:
		ctx.Error("not found", fasthttp.StatusNotFound)
	}
}

func (s *Server) healthz(ctx *fasthttp.RequestCtx) {
	ctx.SetContentType("text/plain; charset=utf-8")
	if s.draining.Load() {
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
		ctx.SetBodyString(s.cat.RenderOr(msgcat.KeyAdminDraining, nil, "draining"))
		return
	}
	ctx.SetBodyString(s.cat.RenderOr(msgcat.KeyAdminHealthy, nil, "ok"))
}

func (s *Server) listSessions(ctx *fasthttp.RequestCtx) {
	c, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	list, err := s.sessions.Sessions(c)
	if err != nil {
		s.fail(ctx, "sessions", err)
		return
	}
	if list == nil {
		list = []session.Snapshot{}
	}
	writeJSON(ctx, fasthttp.StatusOK, list)
}

func (s *Server) getSession(ctx *fasthttp.RequestCtx, id string) {
	c, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	snap, err := s.sessions.Session(c, id)
	if errors.Is(err, registry.ErrNotFound) {
		ctx.Error("session not found", fasthttp.StatusNotFound)
		return
	}
	if err != nil {
		s.fail(ctx, "session", err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, snap)
}

func (s *Server) stats(ctx *fasthttp.RequestCtx) {
	c, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	counters, err := s.sessions.Counters(c)
	if err != nil {
		s.fail(ctx, "stats", err)
		return
	}
	resp := StatsResponse{Counters: counters}
	if s.lobby != nil {
		resp.Lobby = s.lobby.Stats()
	}
	writeJSON(ctx, fasthttp.StatusOK, resp)
}

func (s *Server) fail(ctx *fasthttp.RequestCtx, what string, err error) {
	obslog.L().Warn("admin_error", zap.String("endpoint", what), zap.Error(err))
	ctx.Error("internal error", fasthttp.StatusInternalServerError)
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		ctx.Error("encode error", fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBody(raw)
}
