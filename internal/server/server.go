package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chatrelay/internal/relay"
	"chatrelay/internal/server/middleware"
	"chatrelay/pkg/config"
	"chatrelay/pkg/state"
	"chatrelay/pkg/state/statemanager"
	"chatrelay/pkg/transport"
)

type App struct {
	logger   *slog.Logger
	registry state.Registry
	relay    *relay.Relay
	wg       sync.WaitGroup
	http     *http.Server
	config   *config.Config

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config) *App {
	registry := statemanager.NewInMemoryRegistry(logger)

	app := &App{
		logger:   logger,
		registry: registry,
		relay:    relay.New(logger, registry),
		config:   cfg,
		ctx:      rootCtx,
	}

	mux := http.NewServeMux()
	upgradeHandler := http.HandlerFunc(app.upgradeHandler)
	connCounter := middleware.UserConnectionCounter(registry.UserConnectionCount)
	// Cycling closes the user's oldest connection to make room for the new one.
	connCycler := func(userID string) {
		oldest, found := registry.OldestUserConnection(userID)
		if found {
			logger.Info("cycling connection: closing oldest", slog.String("userID", userID), slog.String("connID", oldest.ID.String()))
			oldest.Transport.Close(errors.New("connection cycled by new connection"))
		}
	}

	mux.Handle("/ws",
		middleware.Chain(upgradeHandler,
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(app.logger),
			middleware.NewAuthMiddleware(logger, cfg.Server.Auth.JWTSecret),
			middleware.NewConnectionLimiter(
				logger,
				connCounter,
				connCycler,
				cfg.Server.ConnectionLimit,
			),
		),
	)
	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, promhttp.Handler())
	}

	app.http = &http.Server{Addr: cfg.Server.Address, Handler: mux, BaseContext: func(l net.Listener) context.Context {
		return app.ctx
	}}

	return app
}

func (a *App) Run() error {
	go a.relay.Run(a.ctx)
	go func() {
		a.logger.Info("server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	connLogger := a.logger.With(
		slog.String("remoteAddr", reqMeta.IP),
		slog.String("userID", reqMeta.UserID),
	)

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig{
			ReadTimeout: a.config.Transport.ReadTimeout,
			SendBuffer:  a.config.Transport.SendBuffer,
		},
		a.logger,
	)
	sess, err := a.registry.RegisterConnection(conn, reqMeta.IP)
	if err != nil {
		connLogger.Error("failed to register connection", slog.Any("error", err))
		conn.Close(err)
		return
	}
	// Bind the verified identity. This also joins the personal inbox room,
	// so call signaling reaches the user before any explicit join arrives.
	if _, err := a.registry.Announce(sess.ID, reqMeta.UserID); err != nil {
		connLogger.Error("failed to announce session", slog.Any("error", err))
		conn.Close(err)
		return
	}
	conn.SetOnMessageHandler(a.relay.HandleMessage)
	conn.SetOnCloseHandler(func(id uuid.UUID, err error) {
		connLogger.Info("connection closed, retracting memberships", slog.String("connID", sess.ID.String()))
		a.relay.HandleDisconnect(sess.ID)
	})
	a.relay.SyncGauges()

	connLogger.Info("user connection fully established")
	conn.Run()
	<-conn.Done()
}

// Shutdown runs the graceful shutdown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// close all active WebSocket connections.
	a.logger.Info("closing all active connections...")
	for _, sess := range a.registry.AllSessions() {
		sess.Transport.Close(errors.New("graceful shutdown"))
	}

	// wait for all connection goroutines to finish their cleanup.
	a.wg.Wait()
	a.logger.Info("server shut down gracefully")
	return nil
}
