// Package bridge exposes the updater operations to the host application as
// JSON over HTTP.
package bridge

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"git.home.luguber.info/inful/hotupdate/internal/eventstore"
	ferrors "git.home.luguber.info/inful/hotupdate/internal/foundation/errors"
	"git.home.luguber.info/inful/hotupdate/internal/logfields"
	"git.home.luguber.info/inful/hotupdate/internal/updater"
)

// maxBodyBytes bounds request bodies; requests carry a URL and a version.
const maxBodyBytes = 64 << 10

// Operations is the facade surface served by the bridge.
type Operations interface {
	Stage(ctx context.Context, req *updater.StageRequest) updater.Result
	Activate(ctx context.Context) updater.Result
	Confirm(ctx context.Context, version string) updater.Result
	ListIgnored(ctx context.Context) updater.Versions
	ListHistory(ctx context.Context) updater.Versions
	Status(ctx context.Context) updater.Status
	Operations() []eventstore.OperationSummary
}

// Options configures optional routes.
type Options struct {
	// MetricsPath mounts MetricsHandler when both are set.
	MetricsPath    string
	MetricsHandler http.Handler
	Logger         *slog.Logger
}

// Server is the host bridge HTTP server.
type Server struct {
	Addr   string
	ops    Operations
	router *chi.Mux
	server *http.Server
	errs   *ferrors.HTTPErrorAdapter
	logger *slog.Logger
	opts   Options
}

// NewServer creates a bridge listening on addr.
func NewServer(addr string, ops Operations, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		Addr:   addr,
		ops:    ops,
		router: chi.NewRouter(),
		errs:   ferrors.NewHTTPErrorAdapter(logger),
		logger: logger,
		opts:   opts,
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.logRequests)

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/stage", s.handleStage)
		r.Post("/activate", s.handleActivate)
		r.Post("/confirm", s.handleConfirm)
		r.Get("/ignored", s.handleIgnored)
		r.Get("/history", s.handleHistory)
		r.Get("/status", s.handleStatus)
		r.Get("/operations", s.handleOperations)
	})

	if s.opts.MetricsPath != "" && s.opts.MetricsHandler != nil {
		s.router.Method(http.MethodGet, s.opts.MetricsPath, s.opts.MetricsHandler)
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Shutdown. It returns http.ErrServerClosed after a
// graceful shutdown.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("Bridge request",
			logfields.Method(r.Method),
			logfields.Path(r.URL.Path),
			logfields.Status(ww.Status()),
			logfields.DurationMS(float64(time.Since(start).Microseconds())/1000),
			slog.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeResult writes {} on success and the error envelope otherwise.
func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, res updater.Result) {
	if res.IsOk() {
		writeJSON(w, http.StatusOK, struct{}{})
		return
	}
	s.errs.WriteErrorResponse(w, r, res.UnwrapErr())
}

// decode reads a JSON body into v. Empty bodies report false.
func decode(r *http.Request, v any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || len(body) == 0 {
		return false
	}
	return json.Unmarshal(body, v) == nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

func (s *Server) handleStage(w http.ResponseWriter, r *http.Request) {
	var req updater.StageRequest
	if !decode(r, &req) {
		s.errs.WriteErrorResponse(w, r,
			ferrors.ValidationError(ferrors.CodeUpdateDataRequired, "Update data is required").Build())
		return
	}
	s.writeResult(w, r, s.ops.Stage(r.Context(), &req))
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	s.writeResult(w, r, s.ops.Activate(r.Context()))
}

type confirmRequest struct {
	Version string `json:"version"`
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	_ = decode(r, &req)
	s.writeResult(w, r, s.ops.Confirm(r.Context(), req.Version))
}

func (s *Server) handleIgnored(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ops.ListIgnored(r.Context()))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ops.ListHistory(r.Context()))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ops.Status(r.Context()))
}

type operationsResponse struct {
	Operations []eventstore.OperationSummary `json:"operations"`
}

func (s *Server) handleOperations(w http.ResponseWriter, _ *http.Request) {
	ops := s.ops.Operations()
	if ops == nil {
		ops = []eventstore.OperationSummary{}
	}
	writeJSON(w, http.StatusOK, operationsResponse{Operations: ops})
}
