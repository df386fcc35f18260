// Package handlers implements the HTTP API surface of scriptd.
package handlers

import (
	"github.com/scriptd/scriptd/internal/config"
	"github.com/scriptd/scriptd/internal/database"
	"github.com/scriptd/scriptd/internal/engine"
	"github.com/scriptd/scriptd/internal/hosted"
)

// Handlers bundles the dependencies shared by all route handlers.
type Handlers struct {
	db        *database.DB
	manager   *engine.Manager
	hostedSvc *hosted.Service
	execStore *engine.Store
	cfg       *config.Config
}

func New(db *database.DB, manager *engine.Manager, hostedSvc *hosted.Service, cfg *config.Config) *Handlers {
	return &Handlers{
		db:        db,
		manager:   manager,
		hostedSvc: hostedSvc,
		execStore: engine.NewStore(db),
		cfg:       cfg,
	}
}
