package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/poyrazK/adminguard/internal/core/domain"
	"github.com/poyrazK/adminguard/internal/core/ports"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger is a dependency reported by the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// APIHandler exposes the admin, audit and ban operations over HTTP.
type APIHandler struct {
	authority ports.AdminAuthority
	roles     ports.AdminRoles
	limiter   ports.RateLimiter
	audit     ports.AuditLog
	deps      map[string]Pinger
	limit     int
	logger    *slog.Logger
}

// NewAPIHandler creates and returns a new APIHandler instance. deps are pinged by /health.
func NewAPIHandler(authority ports.AdminAuthority, roles ports.AdminRoles, limiter ports.RateLimiter, audit ports.AuditLog, deps map[string]Pinger, limit int, logger *slog.Logger) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIHandler{
		authority: authority,
		roles:     roles,
		limiter:   limiter,
		audit:     audit,
		deps:      deps,
		limit:     limit,
		logger:    logger,
	}
}

// RegisterRoutes registers the API routes with the provided ServeMux.
func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	// Public Routes
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("GET /metrics", h.Metrics)

	// Middleware
	limited := RateLimitMiddleware(h.limiter, h.limit, h.logger)
	admin := RequireAdmin(h.authority)

	// Every admin route is rate limited first, then checked for the role.
	guard := func(fn http.HandlerFunc) http.Handler {
		return limited(admin(fn))
	}

	mux.Handle("GET /admins", guard(h.ListAdmins))
	mux.Handle("GET /admins/{id}", guard(h.GetAdmin))
	mux.Handle("POST /admins/reload", guard(h.ReloadAdmins))
	mux.Handle("POST /admins/{id}", guard(h.AddAdmin))
	mux.Handle("DELETE /admins/{id}", guard(h.RemoveAdmin))
	mux.Handle("GET /audit-logs", guard(h.ListAuditLogs))
	mux.Handle("GET /audit-logs/stats/{id}", guard(h.AdminStats))
	mux.Handle("GET /bans/{id}", guard(h.GetBan))
	mux.Handle("DELETE /bans/{id}", guard(h.Unban))
}

// Metrics handles Prometheus metrics scraping requests.
func (h *APIHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// HealthCheck handles health check requests.
func (h *APIHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "UP"
	details := make(map[string]string)

	for name, dep := range h.deps {
		if err := dep.Ping(r.Context()); err != nil {
			status = "DEGRADED"
			details[name] = err.Error()
		} else {
			details[name] = "OK"
		}
	}

	resp := map[string]interface{}{
		"status":  status,
		"details": details,
	}

	code := http.StatusOK
	if status == "DEGRADED" {
		code = http.StatusServiceUnavailable
	}
	h.writeJSON(w, code, resp)
}

func (h *APIHandler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	ids, err := h.authority.ListAdmins(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"admins":      ids,
		"total":       len(ids),
		"local_count": h.authority.LocalCount(),
	})
}

func (h *APIHandler) GetAdmin(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathUserID(w, r)
	if !ok {
		return
	}
	isAdmin, err := h.authority.CheckAdmin(r.Context(), userID)
	if err != nil {
		h.logger.Warn("admin check degraded", "user_id", userID, "error", err)
	}
	h.writeJSON(w, http.StatusOK, domain.AdminRoleRecord{UserID: userID, IsAdmin: isAdmin})
}

func (h *APIHandler) AddAdmin(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathUserID(w, r)
	if !ok {
		return
	}
	if err := h.roles.Grant(r.Context(), callerID(r), userID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, domain.AdminRoleRecord{UserID: userID, IsAdmin: true})
}

func (h *APIHandler) RemoveAdmin(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathUserID(w, r)
	if !ok {
		return
	}
	if err := h.roles.Revoke(r.Context(), callerID(r), userID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) ReloadAdmins(w http.ResponseWriter, r *http.Request) {
	if err := h.authority.ForceReload(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"local_count": h.authority.LocalCount()})
}

// ListAuditLogs returns the newest entries; ?limit= defaults to domain.DefaultAuditQueryLimit.
func (h *APIHandler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit := domain.DefaultAuditQueryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "Bad Request: limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := h.audit.Query(r.Context(), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, entries)
}

func (h *APIHandler) AdminStats(w http.ResponseWriter, r *http.Request) {
	adminID, ok := h.pathUserID(w, r)
	if !ok {
		return
	}
	stats, err := h.audit.Stats(r.Context(), adminID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *APIHandler) GetBan(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathUserID(w, r)
	if !ok {
		return
	}
	banned, err := h.limiter.IsBanned(r.Context(), userID)
	if err != nil {
		h.logger.Warn("ban check degraded", "user_id", userID, "error", err)
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"user_id": userID, "banned": banned})
}

func (h *APIHandler) Unban(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathUserID(w, r)
	if !ok {
		return
	}
	if err := h.limiter.Unban(r.Context(), userID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// callerID is set by RateLimitMiddleware; RequireAdmin guarantees it on admin routes.
func callerID(r *http.Request) int64 {
	id, _ := r.Context().Value(CtxUserID).(int64)
	return id
}

func (h *APIHandler) pathUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := domain.ParseUserID(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *APIHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrInconsistentState):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrTransient):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
