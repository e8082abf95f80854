// Package server exposes the entry and cache administration services over
// HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/systmms/secretproxy/internal/config"
	"github.com/systmms/secretproxy/internal/entry"
	"github.com/systmms/secretproxy/internal/logging"
	"github.com/systmms/secretproxy/internal/metrics"
	"github.com/systmms/secretproxy/pkg/backend"
)

// EntryService is the secret entry API the server delegates to.
type EntryService interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// CacheAdmin is the cache administration API the server delegates to.
type CacheAdmin interface {
	ListKeys(ctx context.Context) []string
	Invalidate(ctx context.Context, key string)
	InvalidateAll(ctx context.Context)
}

// Options configures a Server.
type Options struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Auth enforces roles. Nil disables authentication.
	Auth *Authenticator

	// BackendType is reported by the health endpoint.
	BackendType backend.Type

	// MetricsHandler is mounted at MetricsPath when non-nil.
	MetricsHandler http.Handler
	MetricsPath    string
	Metrics        *metrics.Metrics

	Logger *logging.Logger
}

// Server serves the HTTP API.
type Server struct {
	opts    Options
	entries EntryService
	admin   CacheAdmin
	router  *mux.Router
	logger  *logging.Logger
	http    *http.Server
}

// New creates a server and registers its routes.
func New(entries EntryService, admin CacheAdmin, opts Options) *Server {
	s := &Server{
		opts:    opts,
		entries: entries,
		admin:   admin,
		router:  mux.NewRouter(),
		logger:  opts.Logger,
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	auth := s.opts.Auth

	r.Handle("/entries/{key}", auth.require(config.RoleSecretsUser, http.HandlerFunc(s.handleGetEntry))).Methods(http.MethodGet)
	r.Handle("/entries/{key}", auth.require(config.RoleSecretsUser, http.HandlerFunc(s.handlePutEntry))).Methods(http.MethodPut)
	r.Handle("/entries/{key}", auth.require(config.RoleSecretsUser, http.HandlerFunc(s.handleDeleteEntry))).Methods(http.MethodDelete)

	r.Handle("/entry-cache", auth.require(config.RoleSecretsCacheAdmin, http.HandlerFunc(s.handleListCache))).Methods(http.MethodGet)
	r.Handle("/entry-cache", auth.require(config.RoleSecretsCacheAdmin, http.HandlerFunc(s.handleInvalidateAll))).Methods(http.MethodDelete)
	r.Handle("/entry-cache/{key}", auth.require(config.RoleSecretsCacheAdmin, http.HandlerFunc(s.handleInvalidate))).Methods(http.MethodDelete)

	r.HandleFunc("/admin/health", s.handleHealth).Methods(http.MethodGet)

	if s.opts.MetricsHandler != nil {
		path := s.opts.MetricsPath
		if path == "" {
			path = config.DefaultMetricsPath
		}
		r.Handle(path, s.opts.MetricsHandler).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, ErrorDetail{
			Message: "No route for " + r.URL.Path,
			Type:    "RouteNotFound",
			Code:    CodeNotFound,
		})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrorDetail{
			Message: r.Method + " is not allowed on " + r.URL.Path,
			Type:    "MethodNotAllowed",
			Code:    CodeValidation,
		})
	})

	r.Use(s.observe)
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe listens on the configured address and serves until ctx
// ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx ends.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.http = &http.Server{
		Handler:           s.router,
		ReadTimeout:       s.opts.ReadTimeout,
		ReadHeaderTimeout: s.opts.ReadTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(ln)
	}()
	s.logger.Info("Listening on %s (backend %s)", ln.Addr(), s.opts.BackendType)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("Shutting down, waiting up to %s for in-flight requests", timeout)
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	value, err := s.entries.Get(r.Context(), key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry.Entry{Key: key, Value: value})
}

func (s *Server) handlePutEntry(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	var body entry.Entry
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, ErrorDetail{
			Message:    "Malformed request body",
			Type:       "ValidationError",
			Code:       CodeValidation,
			Parameters: []Parameter{{Key: "body", Value: err.Error()}},
		})
		return
	}

	if err := s.entries.Put(r.Context(), key, body.Value); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	if err := s.entries.Delete(r.Context(), key); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCache(w http.ResponseWriter, r *http.Request) {
	keys := s.admin.ListKeys(r.Context())
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, keys)
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	s.admin.Invalidate(r.Context(), mux.Vars(r)["key"])
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInvalidateAll(w http.ResponseWriter, r *http.Request) {
	s.admin.InvalidateAll(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "UP",
		"backend": string(s.opts.BackendType),
	})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("%s %s failed: %v", r.Method, r.URL.Path, err)
	} else {
		s.logger.Debug("%s %s rejected: %v", r.Method, r.URL.Path, err)
	}
	writeError(w, status, detail)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// observe logs each request at debug level and counts it by route
// template, so keys never become metric labels.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cr := mux.CurrentRoute(r); cr != nil {
			if tpl, err := cr.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.opts.Metrics.HTTPRequest(route, r.Method, strconv.Itoa(rec.status))
		s.logger.Debug("%s %s -> %d (%s)", r.Method, route, rec.status, time.Since(start).Round(time.Microsecond))
	})
}
