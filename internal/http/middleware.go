package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"studyhub/profiles/internal/model"
	"studyhub/profiles/internal/operations"
)

type accountKey struct{}

type tokenKey struct{}

// authMiddleware resolves the bearer token through the identity provider on
// every request.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "No token provided")
			return
		}

		account, err := s.auth.Authenticate(r.Context(), token)
		if err != nil {
			if operations.KindOf(err) == operations.KindAuthentication {
				writeError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}
			writeError(w, http.StatusInternalServerError, "Authentication failed")
			return
		}

		ctx := context.WithValue(r.Context(), accountKey{}, account)
		ctx = context.WithValue(ctx, tokenKey{}, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRoles admits callers whose profile role is in allowed. It must run
// after authMiddleware.
func (s *Server) requireRoles(allowed ...model.Role) func(http.Handler) http.Handler {
	names := make([]string, 0, len(allowed))
	for _, role := range allowed {
		names = append(names, string(role))
	}
	denied := "Access denied. Required role: " + strings.Join(names, " or ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account, ok := accountFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "No token provided")
				return
			}
			role, err := s.profiles.Role(r.Context(), account.ID)
			if err != nil {
				if operations.KindOf(err) == operations.KindAuthorization {
					writeError(w, http.StatusForbidden, "Unable to verify user role")
					return
				}
				writeError(w, http.StatusInternalServerError, "Authorization check failed")
				return
			}
			for _, candidate := range allowed {
				if role == candidate {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, denied)
		})
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.InfoContext(r.Context(), "http request",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

func accountFromContext(ctx context.Context) (model.Account, bool) {
	account, ok := ctx.Value(accountKey{}).(model.Account)
	return account, ok
}

func tokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}
