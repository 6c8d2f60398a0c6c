package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/event"
	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/session"
	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/store"
	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/strategy"
)

type HandlerOptions struct {
	Engine   *strategy.Engine
	Bus      *event.Bus
	Registry *session.Registry
	Store    *store.Store
	Metrics  *prometheus.Registry
}

// Handler routes the reconstruction API. All collaborators are injected;
// the handler keeps no state of its own beyond the mux.
type Handler struct {
	engine   *strategy.Engine
	bus      *event.Bus
	registry *session.Registry
	store    *store.Store
	mux      *http.ServeMux
}

func NewHandler(opts HandlerOptions) *Handler {
	h := &Handler{
		engine:   opts.Engine,
		bus:      opts.Bus,
		registry: opts.Registry,
		store:    opts.Store,
		mux:      http.NewServeMux(),
	}

	h.mux.HandleFunc("POST /api/reconstruct", h.handleReconstruct)
	h.mux.HandleFunc("POST /api/sessions/{id}/abort", h.handleAbort)
	h.mux.HandleFunc("POST /api/sessions/{id}/resume", h.handleResume)
	h.mux.HandleFunc("GET /api/sessions/{id}", h.handleGetSession)
	h.mux.HandleFunc("GET /api/sessions", h.handleListSessions)
	h.mux.HandleFunc("GET /healthz", h.handleHealth)

	if opts.Metrics != nil {
		h.mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Metrics, promhttp.HandlerOpts{}))
	}

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type Server struct {
	handler *Handler
	server  *http.Server
	port    int
}

func NewServer(opts HandlerOptions, port int) *Server {
	return &Server{
		handler: NewHandler(opts),
		port:    port,
	}
}

func (s *Server) ListenAndServe() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.handler,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
