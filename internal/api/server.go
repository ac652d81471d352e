// Package api implements the indexer's read-only HTTP surface: health,
// status, and simple lookups over agents, feedback, and collections. It
// is not the indexer's correctness boundary (that lives in the decoder,
// buffer, and verifier); it exists so an operator or a downstream
// consumer has somewhere to read the indexed state from.
//
// Grounded on the teacher's internal/api package: a *mux.Router,
// commonMiddleware for CORS/OPTIONS, rateLimitMiddleware for per-IP
// throttling, and a TTL-cached /status handler.
package api

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"agentindex/internal/config"
	"agentindex/internal/eventbus"
	"agentindex/internal/repository"
)

// Server wraps the repository behind the indexer's read-only API.
type Server struct {
	repo       *repository.Repository
	httpServer *http.Server
	cfg        *config.Config

	statusCache struct {
		mu        sync.Mutex
		payload   []byte
		expiresAt time.Time
	}
}

// NewServer constructs a Server listening on cfg.APIPort. Routes are
// registered immediately; Start blocks until Shutdown is called or the
// listener fails. A non-nil bus lets the server invalidate its /status
// cache as soon as a batch commits instead of waiting out its TTL.
func NewServer(repo *repository.Repository, cfg *config.Config, bus *eventbus.Bus) *Server {
	r := mux.NewRouter()

	s := &Server{repo: repo, cfg: cfg}

	r.Use(commonMiddleware)
	r.Use(rateLimitMiddleware)

	registerRoutes(r, s)

	s.httpServer = &http.Server{
		Addr:    addr(cfg.APIPort),
		Handler: r,
	}

	if bus != nil {
		ch := make(chan eventbus.Event, 16)
		bus.Subscribe("batch_committed", ch)
		go s.invalidateStatusCacheOn(ch)
	}
	return s
}

func (s *Server) invalidateStatusCacheOn(ch <-chan eventbus.Event) {
	for range ch {
		s.statusCache.mu.Lock()
		s.statusCache.expiresAt = time.Time{}
		s.statusCache.mu.Unlock()
	}
}

func addr(port int) string {
	if port <= 0 {
		port = 8080
	}
	return ":" + strconv.Itoa(port)
}

// Start runs the HTTP server until Shutdown is called. Matches the
// teacher's (*Server).Start signature so main.go's shutdown sequencing
// looks the same for every long-running component.
func (s *Server) Start() error {
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func commonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
