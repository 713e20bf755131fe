package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"studyhub/profiles/internal/config"
	"studyhub/profiles/internal/model"
	"studyhub/profiles/internal/operations"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	cfg      config.Config
	auth     *operations.Auth
	profiles *operations.Profiles
	health   Pinger
	metrics  *Metrics
	logger   *slog.Logger
}

func NewServer(cfg config.Config, auth *operations.Auth, profiles *operations.Profiles, health Pinger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		auth:     auth,
		profiles: profiles,
		health:   health,
		metrics:  NewMetrics(),
		logger:   logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Middleware)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{s.cfg.FrontendURL},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Origin"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/signup", s.handleSignUp)
		r.Post("/signin", s.handleSignIn)
		r.With(s.authMiddleware).Get("/signout", s.handleSignOut)
		r.Get("/signin/google", s.handleSignInWithGoogle)
		r.Get("/callback/google", s.handleGoogleCallback)
		r.Get("/verify", s.handleVerify)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/reset-password", s.handleResetPassword)
		r.With(s.authMiddleware).Post("/update-password", s.handleUpdatePassword)
	})

	r.Route("/api/profile", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/createProfile", s.handleCreateProfile)
		r.Get("/getProfile", s.handleGetProfile)
		r.Put("/updateProfile", s.handleUpdateProfile)
		r.Get("/hasCompletedProfile", s.handleHasCompletedProfile)
		r.With(s.requireRoles(model.RoleTeacher, model.RoleMentor, model.RoleAdmin)).Get("/mentees", s.handleListMentees)
		r.With(s.requireRoles(model.RoleAdmin)).Get("/users/{userId}", s.handleGetUserProfile)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
