package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/park285/reversi-server/internal/adminhttp"
	appcfg "github.com/park285/reversi-server/internal/config"
	"github.com/park285/reversi-server/internal/lobby"
	"github.com/park285/reversi-server/internal/msgcat"
	"github.com/park285/reversi-server/internal/obslog"
	"github.com/park285/reversi-server/internal/registry"
	"github.com/park285/reversi-server/internal/session"
	"github.com/park285/reversi-server/internal/wsgate"
)

const shutdownGrace = 5 * time.Second

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.Init(cfg.Log); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()

	if err := run(cfg); err != nil {
		obslog.L().Error("server_exit", zap.Error(err))
		obslog.Sync()
		log.Fatalf("server error: %v", err)
	}
}

func run(cfg *appcfg.AppConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	reg := registry.New(store)

	rule, err := session.ParsePassRule(cfg.PassRule)
	if err != nil {
		return err
	}
	lb := lobby.New(lobby.Config{
		NameTimeout:  cfg.NameTimeout,
		WriteTimeout: cfg.WriteTimeout,
		ChatBuffer:   cfg.ChatBuffer,
		MaxSessions:  cfg.MaxConcurrentSessions,
		Session: session.Config{
			TurnTimeout:  cfg.TurnTimeout,
			WriteTimeout: cfg.WriteTimeout,
			PassRule:     rule,
		},
	}, cat, reg)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return err
	}
	obslog.L().Info("server_listen",
		zap.String("addr", ln.Addr().String()),
		zap.Duration("turn_timeout", cfg.TurnTimeout),
		zap.String("pass_rule", rule.String()),
		zap.Int("max_sessions", cfg.MaxConcurrentSessions))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return lb.Serve(gctx, ln) })

	var wsSrv *http.Server
	if cfg.WSAddr != "" {
		wsSrv = &http.Server{
			Addr:              cfg.WSAddr,
			Handler:           wsgate.NewRouter(gctx, lb, wsgate.Options{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			obslog.L().Info("ws_listen", zap.String("addr", cfg.WSAddr))
			if err := wsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	var admin *adminhttp.Server
	if cfg.AdminAddr != "" {
		admin = adminhttp.New(reg, lb, cat)
		g.Go(func() error { return admin.ListenAndServe(cfg.AdminAddr) })
	}

	g.Go(func() error {
		<-gctx.Done()
		obslog.L().Info("server_shutdown")
		if admin != nil {
			admin.SetDraining(true)
		}
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		var result error
		if wsSrv != nil {
			if err := wsSrv.Shutdown(sctx); err != nil {
				result = multierror.Append(result, err)
			}
		}
		lb.Close()
		if admin != nil {
			if err := admin.Shutdown(sctx); err != nil {
				result = multierror.Append(result, err)
			}
		}
		if err := reg.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		return result
	})

	return g.Wait()
}

func openStore(ctx context.Context, cfg *appcfg.AppConfig) (registry.Store, error) {
	if cfg.RedisURL == "" {
		obslog.L().Info("registry_memory")
		return registry.NewMemoryStore(cfg.SessionTTL), nil
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	s, err := registry.OpenRedis(pctx, cfg.RedisURL, cfg.SessionTTL)
	if err != nil {
		return nil, err
	}
	obslog.L().Info("registry_redis")
	return s, nil
}
