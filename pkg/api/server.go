// Package api implements the REST control surface and event-stream
// transport described for the Flow Runtime: a thin HTTP layer that
// shapes requests into calls against the Runtime Registry, the Property
// & Pad Service, and the Element Registry, and republishes broker
// events as Server-Sent Events. Routing follows the teacher pack's
// gorilla/mux convention (HandleFunc + Methods), generalized from
// health/info/ready endpoints to the full flow/element/block resource
// set.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/flowforge/runtime/pkg/events"
	"github.com/flowforge/runtime/pkg/flowregistry"
	"github.com/flowforge/runtime/pkg/log"
	"github.com/flowforge/runtime/pkg/mcptools"
	"github.com/flowforge/runtime/pkg/metrics"
	"github.com/flowforge/runtime/pkg/propsvc"
	"github.com/flowforge/runtime/pkg/registry"
)

// Server is the HTTP surface in front of the Flow Runtime core.
type Server struct {
	router   *mux.Router
	runtime  *flowregistry.Registry
	elements *registry.Registry
	props    *propsvc.Service
	broker   *events.Broker
	tools    *mcptools.Registry
	http     *http.Server
}

// NewServer builds a Server with every route registered.
func NewServer(addr string, runtime *flowregistry.Registry, elements *registry.Registry, props *propsvc.Service, broker *events.Broker) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		runtime:  runtime,
		elements: elements,
		props:    props,
		broker:   broker,
		tools:    mcptools.New(runtime, elements, props),
	}
	s.registerRoutes()
	s.http = &http.Server{
		Addr:              addr,
		Handler:           withLogging(withMetrics(s.router)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	r := s.router

	r.HandleFunc("/flows", s.handleListFlows).Methods(http.MethodGet)
	r.HandleFunc("/flows", s.handleCreateFlow).Methods(http.MethodPost)
	r.HandleFunc("/flows/{id}", s.handleGetFlow).Methods(http.MethodGet)
	r.HandleFunc("/flows/{id}", s.handleReplaceFlow).Methods(http.MethodPut)
	r.HandleFunc("/flows/{id}", s.handleDeleteFlow).Methods(http.MethodDelete)
	r.HandleFunc("/flows/{id}/start", s.handleStartFlow).Methods(http.MethodPost)
	r.HandleFunc("/flows/{id}/stop", s.handleStopFlow).Methods(http.MethodPost)
	r.HandleFunc("/flows/{id}/debug-graph", s.handleDebugGraph).Methods(http.MethodGet)
	r.HandleFunc("/flows/{id}/elements/{element_id}/properties", s.handleReadElementProperties).Methods(http.MethodGet)
	r.HandleFunc("/flows/{id}/elements/{element_id}/properties/{name}", s.handleWriteElementProperty).Methods(http.MethodPatch)
	r.HandleFunc("/flows/{id}/elements/{element_id}/pads/{pad_name}/properties", s.handleReadPadProperties).Methods(http.MethodGet)
	r.HandleFunc("/flows/{id}/elements/{element_id}/pads/{pad_name}/properties/{name}", s.handleWritePadProperty).Methods(http.MethodPatch)
	r.HandleFunc("/flows/{id}/events", s.handleFlowEvents).Methods(http.MethodGet)

	r.HandleFunc("/events", s.handleGlobalEvents).Methods(http.MethodGet)

	r.HandleFunc("/elements", s.handleListElements).Methods(http.MethodGet)
	r.HandleFunc("/elements/{factory}", s.handleGetElement).Methods(http.MethodGet)

	r.HandleFunc("/blocks", s.handleListBlocks).Methods(http.MethodGet)

	r.HandleFunc("/mcp/tools", s.handleListTools).Methods(http.MethodGet)
	r.HandleFunc("/mcp/tools/{name}", s.handleCallTool).Methods(http.MethodPost)

	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReadyz).Methods(http.MethodGet)
}

// ListenAndServe starts serving. It blocks until the server stops.
func (s *Server) ListenAndServe() error {
	log.Logger.Info().Str("addr", s.http.Addr).Msg("api server listening")
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		log.Logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.status).
			Dur("duration", time.Since(start)).
			Msg("api request")
	})
}

func withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		status := http.StatusText(rw.status)
		metrics.APIRequestsTotal.WithLabelValues(r.Method, status).Inc()
		timer.ObserveDurationVec(metrics.APIRequestDuration, r.Method)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
