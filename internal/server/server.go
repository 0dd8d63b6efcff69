// Package server exposes sessions and their live streams over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codedeck/go-codedeck/internal/archive"
	"github.com/codedeck/go-codedeck/internal/config"
	"github.com/codedeck/go-codedeck/internal/decklog"
	"github.com/codedeck/go-codedeck/internal/liveness"
	"github.com/codedeck/go-codedeck/internal/session"
	"github.com/codedeck/go-codedeck/internal/sources"
	"github.com/codedeck/go-codedeck/internal/stream"
)

// Server is the codedeck HTTP server.
type Server struct {
	cfg      config.Config
	registry *sources.Registry
	detector *liveness.Detector
	bus      *stream.Bus
	norm     *session.Normalizer
	manager  *session.Manager
	archive  *archive.Store
	tickets  *TicketStore
	router   chi.Router

	startedAt time.Time
}

// NewServer wires the full pipeline: sources, liveness, stream bus,
// reconnector, loader, and the optional archive.
func NewServer(cfg config.Config) (*Server, error) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = config.DefaultPort
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = config.DefaultHost
	}

	registry := sources.NewRegistry()

	detector := liveness.NewDetector()
	detector.SetActiveWindow(cfg.Liveness.ActiveWindowDuration())

	bus := stream.NewBus()
	norm := session.NewNormalizer()

	recon := session.NewReconnector(bus, norm)
	recon.SetTailStarter(func(sessionID, path string) error {
		go func() {
			if err := stream.TailFile(context.Background(), bus, sessionID, path); err != nil {
				decklog.Log.Warn("Tail failed", "session_id", sessionID, "error", err)
				bus.Complete(sessionID)
			}
		}()
		return nil
	})

	loader := session.NewLoader(registry, detector, recon)
	loader.SetTimeout(cfg.Liveness.LoadTimeoutDuration())

	s := &Server{
		cfg:       cfg,
		registry:  registry,
		detector:  detector,
		bus:       bus,
		norm:      norm,
		manager:   session.NewManager(loader),
		tickets:   NewTicketStore(cfg.Server.TicketTTLDuration()),
		startedAt: time.Now(),
	}

	if cfg.Archive.Enabled {
		dbPath := cfg.Archive.DBPath
		if dbPath == "" {
			dir, err := config.Dir()
			if err != nil {
				return nil, fmt.Errorf("resolve config dir: %w", err)
			}
			dbPath = dir + "/archive.duckdb"
		}
		arc, err := archive.NewStore(dbPath, cfg.Archive.BatchSize, cfg.Archive.FlushIntervalDuration())
		if err != nil {
			return nil, fmt.Errorf("open archive: %w", err)
		}
		s.archive = arc
	}

	s.router = s.setupRouter()
	return s, nil
}

// setupRouter configures the HTTP routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(corsMiddleware)

	if s.cfg.Server.Token != "" {
		decklog.Log.Info("Server authentication enabled")
		r.Use(bearerAuth(s.cfg.Server.Token))
	} else {
		decklog.Log.Warn("Server running without authentication - set a token to secure")
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/engines", s.handleListEngines)
		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/live", s.handleListLive)
		r.Post("/sessions/{sessionID}/open", s.handleOpenSession)
		r.Get("/sessions/{sessionID}", s.handleGetSession)
		r.Delete("/sessions/{sessionID}", s.handleCloseSession)
		r.Get("/sessions/{sessionID}/ws", s.handleSessionWS)
		r.Post("/ws/ticket", s.handleIssueTicket)
		r.Get("/health", s.handleHealth)

		if s.archive != nil {
			r.Get("/archive/sessions", s.handleArchiveSessions)
			r.Get("/archive/sessions/{sessionID}/events", s.handleArchiveEvents)
		}
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// ListenAndServe starts the server and blocks until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler: s.router,
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if s.cfg.Server.Port == 0 {
		s.cfg.Server.Port = ln.Addr().(*net.TCPAddr).Port
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		s.manager.CloseAll()
		if s.archive != nil {
			s.archive.Close()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	fmt.Printf("codedeck server running at http://%s:%d\n", s.cfg.Server.Host, s.cfg.Server.Port)
	return srv.Serve(ln)
}

// Addr returns the server address string.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
}

// Router exposes the configured router, mostly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// bearerAuth returns middleware that validates a bearer token using
// constant-time comparison to prevent timing attacks.
func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Allow health checks without auth
			if r.URL.Path == "/v1/health" {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="codedeck"`)
				writeError(w, http.StatusUnauthorized, "unauthorized", "Missing Authorization header")
				return
			}

			const prefix = "Bearer "
			if len(auth) < len(prefix) || auth[:len(prefix)] != prefix {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid Authorization header format")
				return
			}

			if subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// corsMiddleware adds CORS headers for cross-origin requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is an API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, err string, msg string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: msg})
}
