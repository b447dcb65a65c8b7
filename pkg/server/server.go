package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/adfharrison1/livedb/pkg/api"
	"github.com/adfharrison1/livedb/pkg/indexing"
	"github.com/adfharrison1/livedb/pkg/metrics"
	"github.com/adfharrison1/livedb/pkg/schema"
	"github.com/adfharrison1/livedb/pkg/storage"
)

// Server holds references to storage, router, etc.
type Server struct {
	router  *mux.Router
	store   *storage.Store
	handler *api.Handler
	logger  *slog.Logger

	mu   sync.Mutex
	http *http.Server
}

// NewServer wires the API routes over a store. Realm work runs on exec.
func NewServer(store *storage.Store, registry *schema.Registry, indexes *indexing.IndexEngine, exec api.Executor, log *slog.Logger) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		store:   store,
		handler: api.NewHandler(exec, registry, indexes, log),
		logger:  log,
	}
	s.routes()

	s.router.Use(s.requestLoggerMiddleware)
	s.router.Use(metrics.Middleware)

	// Customize NotFoundHandler to log 404s
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Warn("no route found", "method", r.Method, "path", r.URL.Path)
		api.WriteJSONError(w, http.StatusNotFound, "no route for "+r.Method+" "+r.URL.Path)
	})

	return s
}

// requestLoggerMiddleware logs the method, URL path, and duration for each request.
func (s *Server) requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "took", time.Since(start))
	})
}

// SaveDB saves the latest committed version to file
func (s *Server) SaveDB(filename string) error {
	if err := s.store.SaveToFile(filename); err != nil {
		s.logger.Error("could not save database", "file", filename, "error", err)
		return err
	}
	s.logger.Info("saved database", "file", filename)
	return nil
}

// Router exposes the internal mux.Router.
func (s *Server) Router() http.Handler {
	return s.router
}

// ListenAndServe serves HTTP on addr until Shutdown is called.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	s.logger.Info("listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) routes() {
	s.handler.RegisterRoutes(s.router)
	s.router.Handle("/metrics", metrics.Handler()).Methods("GET")
}
