// Package server wires the bridge together and manages its lifecycle: the
// IRC listeners, the shared admission components, the admin HTTP control
// plane, and coordinated shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/justachat/irc-bridge/internal/ban"
	"github.com/justachat/irc-bridge/internal/bridge"
	"github.com/justachat/irc-bridge/internal/config"
	"github.com/justachat/irc-bridge/internal/constants"
	"github.com/justachat/irc-bridge/internal/geoip"
	"github.com/justachat/irc-bridge/internal/handlers"
	"github.com/justachat/irc-bridge/internal/ratelimit"
)

// Server represents the whole bridge: IRC listeners, admission components
// and the admin HTTP server.
type Server struct {
	cfg *config.AppConfig

	bans     *ban.Manager
	geo      *geoip.Resolver
	rates    *ratelimit.Tracker
	registry *bridge.Registry

	listeners *bridge.ListenerSet
	admin     *handlers.AdminHandler
	router    http.Handler
	httpSrv   *http.Server

	cancel context.CancelFunc
}

// NewServer assembles the bridge from its configuration. The ban table is
// loaded here; a corrupt or missing file degrades to an empty table rather
// than failing startup.
func NewServer(cfg *config.AppConfig) (*Server, error) {
	store, err := ban.NewStore(cfg.Storage.BanFilePath())
	if err != nil {
		return nil, fmt.Errorf("preparing ban storage: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		bans:     ban.NewManager(store),
		geo:      geoip.NewResolver(&cfg.Geo),
		rates:    ratelimit.NewTracker(&cfg.RateLimit),
		registry: bridge.NewRegistry(),
	}

	// New bans disconnect live connections from the banned IP.
	s.bans.SetKicker(s.registry)

	handler := bridge.NewHandler(cfg, s.bans, s.geo, s.rates, s.registry)
	s.listeners, err = bridge.NewListenerSet(cfg, handler)
	if err != nil {
		return nil, err
	}

	s.admin = handlers.NewAdminHandler(cfg, s.registry, s.bans, s.rates, s.geo, s.listeners.TLSEnabled)
	s.SetupRoutes()

	s.httpSrv = &http.Server{
		Addr:         cfg.Admin.AdminAddress(),
		Handler:      s.router,
		ReadTimeout:  constants.AdminReadTimeout,
		WriteTimeout: constants.AdminWriteTimeout,
		IdleTimeout:  constants.AdminIdleTimeout,
	}

	return s, nil
}

// Start runs the bridge until a termination signal arrives, then shuts down.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	defer cancel()

	// Background sweeps stop when ctx is cancelled.
	s.bans.Start(ctx)
	s.rates.Start(ctx)
	s.geo.Start(ctx)

	s.listeners.Start(ctx)

	httpErr := make(chan error, 1)
	go func() {
		log.Info().Str("address", s.httpSrv.Addr).Msg("Admin API listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-httpErr:
		log.Error().Err(err).Msg("Admin API server failed")
	}

	return s.Shutdown()
}

// Shutdown stops accepting connections, notifies and closes every client,
// flushes the ban table and stops the admin server. A watchdog force-exits
// the process if teardown stalls past the grace period.
func (s *Server) Shutdown() error {
	log.Info().Msg("Shutting down")

	forceExit := time.AfterFunc(constants.DefaultShutdownGrace, func() {
		log.Warn().Msg("Shutdown grace period expired, forcing exit")
		os.Exit(1)
	})
	defer forceExit.Stop()

	s.listeners.Close()
	s.registry.CloseAll(bridge.ShutdownNotice())

	if err := s.bans.Flush(); err != nil {
		log.Error().Err(err).Msg("Failed to persist ban table during shutdown")
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultShutdownGrace)
	defer cancel()
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Admin API shutdown failed")
	}

	if s.cancel != nil {
		s.cancel()
	}

	log.Info().Uint64("connections_served", s.registry.Total()).Msg("Shutdown complete")
	return nil
}

// Router exposes the admin HTTP handler, primarily for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
