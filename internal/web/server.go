// Package web implements the HTTP surface of spec.md §6.1: a chi router
// wiring the Store, Execution Engine, Environment Manager, Run Queue,
// Trigger Scheduler, and Live-Event Fan-out together, grounded on the
// teacher's chi-based admin handler layering (internal/admin/handlers).
package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scriptyard/scriptyard/internal/auth"
	"github.com/scriptyard/scriptyard/internal/config"
	"github.com/scriptyard/scriptyard/internal/engine"
	"github.com/scriptyard/scriptyard/internal/environment"
	"github.com/scriptyard/scriptyard/internal/fanout"
	"github.com/scriptyard/scriptyard/internal/logger"
	"github.com/scriptyard/scriptyard/internal/models"
	"github.com/scriptyard/scriptyard/internal/queue"
	"github.com/scriptyard/scriptyard/internal/scheduler"
	"github.com/scriptyard/scriptyard/internal/store"
)

// Server is the HTTP surface: one *http.Server fronted by a chi.Mux, built
// from the already-wired core components rather than owning their
// lifecycle (cmd/server.go owns startup/shutdown order).
type Server struct {
	cfg       *config.Config
	store     *store.Store
	engine    *engine.Engine
	env       *environment.Manager
	queue     *queue.Queue
	scheduler *scheduler.Scheduler
	bus       *fanout.Bus
	tokens    *auth.TokenIssuer
	log       logger.Logger

	httpServer *http.Server
}

// Deps bundles the components Server routes requests to.
type Deps struct {
	Store     *store.Store
	Engine    *engine.Engine
	Env       *environment.Manager
	Queue     *queue.Queue
	Scheduler *scheduler.Scheduler
	Bus       *fanout.Bus
	Tokens    *auth.TokenIssuer
}

// New builds a Server. Call Serve to start listening.
func New(cfg *config.Config, deps Deps, log logger.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		store:     deps.Store,
		engine:    deps.Engine,
		env:       deps.Env,
		queue:     deps.Queue,
		scheduler: deps.Scheduler,
		bus:       deps.Bus,
		tokens:    deps.Tokens,
		log:       log,
	}
	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(cfg.HTTPHost, cfg.HTTPPort),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/api/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/api/auth/login", s.handleLogin)
	r.Post("/api/auth/register", s.handleRegister)
	r.Get("/api/scripts/{slug}/trigger", s.handleURLTrigger)
	r.Get("/ws", s.handleWebsocket)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Route("/api/scripts", func(r chi.Router) {
			r.Get("/", s.handleListScripts)
			r.Post("/", s.handleCreateScript)
			r.Route("/{slug}", func(r chi.Router) {
				r.Use(s.scriptContext)
				r.Get("/", s.handleGetScript)
				r.Put("/", s.handleUpdateScript)
				r.Delete("/", s.handleDeleteScript)
				r.Patch("/auto-save", s.handleAutoSave)
				r.Post("/execute", s.handleExecute)
				r.Get("/venv-info", s.handleVenvInfo)
			})
		})

		r.Route("/api/execution/triggers", func(r chi.Router) {
			r.Get("/", s.handleListTriggers)
			r.Post("/", s.handleCreateTrigger)
			r.Route("/{id}", func(r chi.Router) {
				r.Use(s.triggerContext)
				r.Get("/", s.handleGetTrigger)
				r.Put("/", s.handleUpdateTrigger)
				r.Delete("/", s.handleDeleteTrigger)
			})
		})
		r.Post("/api/execution/validate-cron", s.handleValidateCron)

		r.Route("/api/logs", func(r chi.Router) {
			r.Get("/", s.handleListLogs)
			r.Get("/summary", s.handleLogsSummary)
			r.Get("/{id}", s.handleGetLog)
			r.Delete("/{id}", s.handleDeleteLog)
			r.Post("/cleanup", s.handleCleanupLogs)
		})

		r.Route("/api/folders", func(r chi.Router) {
			r.Get("/", s.handleListFolders)
			r.Post("/", s.handleCreateFolder)
			r.Put("/{id}", s.handleUpdateFolder)
			r.Delete("/{id}", s.handleDeleteFolder)
		})

		r.Route("/api/settings", func(r chi.Router) {
			r.Get("/", s.handleGetSettings)
			r.Post("/", s.handleUpdateSettings)
		})
	})

	return r
}

// Serve blocks, listening until ctx is canceled, then gracefully shuts
// down. Mirrors the teacher's Serve/Shutdown split (internal/admin/http.go)
// with context-driven shutdown instead of a manual idleConnsClosed channel.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("web: shutdown: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("http request",
			"method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds())
	})
}

// requireAuth enforces the bearer-token authentication of spec.md §6.1 on
// every route group it wraps except the URL-trigger and websocket
// endpoints, which authenticate differently (API key, none).
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			encodeError(w, auth.ErrInvalidToken)
			return
		}
		userID, username, isAdmin, err := s.tokens.Verify(r.Context(), tokenString)
		if err != nil {
			encodeError(w, err)
			return
		}
		user := &models.User{ID: userID, Username: username, IsAdmin: isAdmin}
		ctx := auth.WithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
