package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/scriptd/scriptd/internal/config"
	"github.com/scriptd/scriptd/internal/database"
	"github.com/scriptd/scriptd/internal/engine"
	"github.com/scriptd/scriptd/internal/hosted"
)

// Server is the HTTP front of scriptd: it exposes ad-hoc executions, hosted
// script endpoints, health, and metrics.
type Server struct {
	cfg        *config.Config
	db         *database.DB
	manager    *engine.Manager
	hostedSvc  *hosted.Service
	httpServer *http.Server
	router     *Router
}

func New(cfg *config.Config, db *database.DB, manager *engine.Manager, hostedSvc *hosted.Service) *Server {
	srv := &Server{
		cfg:       cfg,
		db:        db,
		manager:   manager,
		hostedSvc: hostedSvc,
	}

	srv.router = NewRouter(srv)
	srv.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      srv.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return srv
}

func (s *Server) Start(ctx context.Context) error {
	log.Info().
		Str("addr", s.cfg.Server.Address()).
		Msg("Starting server")

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) DB() *database.DB {
	return s.db
}

func (s *Server) Config() *config.Config {
	return s.cfg
}

func (s *Server) Manager() *engine.Manager {
	return s.manager
}

func (s *Server) Hosted() *hosted.Service {
	return s.hostedSvc
}

// Handler returns the fully wired handler chain, used directly in tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
