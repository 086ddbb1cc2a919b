package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/poyrazK/adminguard/internal/core/domain"
	"github.com/poyrazK/adminguard/internal/core/ports"
)

type contextKey string

const (
	CtxUserID contextKey = "user_id"

	// UserIDHeader carries the caller's user id, set by the upstream transport.
	UserIDHeader = "X-User-ID"
	// ActionClassHeader optionally names the rate-limit class of the request.
	ActionClassHeader = "X-Action-Class"
)

// RateLimitMiddleware rejects banned or over-limit callers. Requests without a
// user id pass through untouched. The limiter fails open, so cache errors are
// logged and the request continues.
func RateLimitMiddleware(limiter ports.RateLimiter, limit int, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(UserIDHeader)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			userID, err := domain.ParseUserID(raw)
			if err != nil {
				http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
				return
			}

			banned, err := limiter.IsBanned(r.Context(), userID)
			if err != nil {
				logger.Warn("ban check failed", "user_id", userID, "error", err)
			}
			if banned {
				logger.Info("rejecting banned user", "user_id", userID)
				http.Error(w, "Too Many Requests: temporarily banned", http.StatusTooManyRequests)
				return
			}

			action := actionClassFor(r)
			res, err := limiter.Check(r.Context(), userID, action, limit)
			if err != nil {
				logger.Warn("rate limit check degraded", "user_id", userID, "action", action, "error", err)
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			if !res.Allowed {
				logger.Info("rate limit exceeded", "user_id", userID, "current", res.Current, "limit", res.Limit)
				http.Error(w, "Too Many Requests: wait 5 minutes", http.StatusTooManyRequests)
				return
			}

			ctx := context.WithValue(r.Context(), CtxUserID, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin only lets admins through. Authority checks fail closed.
func RequireAdmin(authority ports.AdminAuthority) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := r.Context().Value(CtxUserID).(int64)
			if !ok {
				http.Error(w, "Unauthorized: missing user id", http.StatusUnauthorized)
				return
			}

			if !authority.IsAdmin(r.Context(), userID) {
				http.Error(w, "Forbidden: admin role required", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func actionClassFor(r *http.Request) domain.ActionClass {
	switch domain.ActionClass(r.Header.Get(ActionClassHeader)) {
	case domain.ActionClassMessage:
		return domain.ActionClassMessage
	case domain.ActionClassCallback:
		return domain.ActionClassCallback
	case domain.ActionClassCommand:
		return domain.ActionClassCommand
	}
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return domain.ActionClassMessage
	}
	return domain.ActionClassCommand
}
