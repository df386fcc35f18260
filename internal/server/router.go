package server

import (
	"net/http"

	"github.com/scriptd/scriptd/internal/metrics"
	"github.com/scriptd/scriptd/internal/server/handlers"
)

type Router struct {
	server      *Server
	mux         *http.ServeMux
	middlewares []Middleware
}

type Middleware func(http.Handler) http.Handler

func NewRouter(srv *Server) *Router {
	r := &Router{
		server: srv,
		mux:    http.NewServeMux(),
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

func (r *Router) setupMiddleware() {
	r.Use(RecoveryMiddleware)
	r.Use(RequestIDMiddleware)
	r.Use(OwnerMiddleware)
	r.Use(LoggingMiddleware)

	if r.server.cfg.Metrics.Enabled {
		r.Use(MetricsMiddleware)
	}

	if r.server.cfg.Server.CORS.Enabled {
		r.Use(CORSMiddleware(r.server.cfg.Server.CORS))
	}

	if r.server.cfg.Server.MaxBodySize > 0 {
		r.Use(MaxBodySizeMiddleware(r.server.cfg.Server.MaxBodySize))
	}
}

func (r *Router) Use(mw Middleware) {
	r.middlewares = append(r.middlewares, mw)
}

func (r *Router) setupRoutes() {
	h := handlers.New(r.server.DB(), r.server.Manager(), r.server.Hosted(), r.server.Config())

	r.mux.HandleFunc("GET /", h.HealthCheck)
	r.mux.HandleFunc("GET /health", h.HealthCheck)

	r.mux.HandleFunc("POST /api/executions", h.SubmitExecution)
	r.mux.HandleFunc("GET /api/executions", h.ListExecutions)
	r.mux.HandleFunc("GET /api/executions/{id}", h.GetExecution)
	r.mux.HandleFunc("POST /api/executions/{id}/stop", h.StopExecution)
	r.mux.HandleFunc("GET /api/executions/{id}/stream", h.StreamExecution)
	r.mux.HandleFunc("GET /api/executions/{id}/stats", h.ExecutionStats)

	r.mux.HandleFunc("POST /api/hosted-scripts", h.CreateHostedScript)
	r.mux.HandleFunc("GET /api/hosted-scripts", h.ListHostedScripts)
	r.mux.HandleFunc("GET /api/hosted-scripts/run/{endpoint}", h.RunHostedScript)
	r.mux.HandleFunc("POST /api/hosted-scripts/run/{endpoint}", h.RunHostedScript)
	r.mux.HandleFunc("POST /api/hosted-scripts/{id}/toggle", h.ToggleHostedScript)
	r.mux.HandleFunc("PATCH /api/hosted-scripts/{id}", h.UpdateHostedScript)
	r.mux.HandleFunc("DELETE /api/hosted-scripts/{id}", h.DeleteHostedScript)

	if r.server.cfg.Metrics.Enabled {
		r.mux.Handle("GET /metrics", metrics.Handler())
	}
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	handler := http.Handler(r.mux)

	for i := len(r.middlewares) - 1; i >= 0; i-- {
		handler = r.middlewares[i](handler)
	}

	handler.ServeHTTP(w, req)
}
