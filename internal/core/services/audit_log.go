package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/poyrazK/adminguard/internal/core/domain"
	"github.com/poyrazK/adminguard/internal/core/ports"
	"github.com/poyrazK/adminguard/internal/infrastructure/metrics"
)

const (
	// AuditLogKey is the newest-first list of encoded entries.
	AuditLogKey = "admin:action:log"
	// AuditLogCap is the maximum number of entries kept.
	AuditLogCap = 1000
	// AuditStatsTTL is the rolling window of the per-admin counters.
	AuditStatsTTL = 7 * 24 * time.Hour

	profileCacheSize  = 1024
	profileCacheTTL   = 10 * time.Minute
)

func auditStatsKey(adminID, action string) string {
	return "admin:stats:" + adminID + ":" + action
}

// AuditLogService keeps a bounded log of admin actions plus 7-day per-admin
// counters in the distributed cache. Recording never blocks the action being
// recorded: errors are logged and returned, and callers may ignore them.
type AuditLogService struct {
	cache    ports.DistributedCache
	store    ports.AuthorityStore
	profiles *expirable.LRU[int64, domain.User]
	logger   *slog.Logger
	now      func() time.Time
}

var _ ports.AuditLog = (*AuditLogService)(nil)

// NewAuditLogService builds the audit log. store may be nil, in which case
// entries carry placeholder display names.
func NewAuditLogService(cache ports.DistributedCache, store ports.AuthorityStore, logger *slog.Logger) *AuditLogService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogService{
		cache:    cache,
		store:    store,
		profiles: expirable.NewLRU[int64, domain.User](profileCacheSize, nil, profileCacheTTL),
		logger:   logger,
		now:      time.Now,
	}
}

func (s *AuditLogService) Record(ctx context.Context, adminID int64, action string, payload map[string]any) error {
	if err := domain.ValidateUserID(adminID); err != nil {
		s.logger.Error("audit record rejected", "admin_id", adminID, "action", action, "error", err)
		return err
	}
	if action == "" {
		err := fmt.Errorf("%w: audit action cannot be empty", domain.ErrInvalidInput)
		s.logger.Error("audit record rejected", "admin_id", adminID, "error", err)
		return err
	}

	now := s.now()
	entry := domain.AuditLogEntry{
		ID:             uuid.New().String(),
		Timestamp:      now.UnixMilli(),
		Date:           now.UTC().Format(time.RFC3339),
		AdminID:        adminID,
		AdminUsername:  "unknown",
		AdminFirstName: "Unknown",
		Action:         action,
		Payload:        payload,
	}
	if u := s.lookupProfile(ctx, adminID); u != nil {
		if u.Username != "" {
			entry.AdminUsername = u.Username
		}
		if u.FirstName != "" {
			entry.AdminFirstName = u.FirstName
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		metrics.AuditRecords.WithLabelValues(action, "error").Inc()
		s.logger.Error("failed to encode audit entry", "admin_id", adminID, "action", action, "error", err)
		return fmt.Errorf("%w: encode audit entry: %w", domain.ErrInvalidInput, err)
	}

	statsKey := auditStatsKey(domain.FormatUserID(adminID), action)
	err = s.cache.Batch(ctx, []ports.CacheOp{
		{Kind: ports.OpPushFront, Key: AuditLogKey, Value: string(data)},
		{Kind: ports.OpTrim, Key: AuditLogKey, Start: 0, Stop: AuditLogCap - 1},
		{Kind: ports.OpIncrement, Key: statsKey},
		{Kind: ports.OpExpire, Key: statsKey, TTL: AuditStatsTTL},
	})
	if err != nil {
		metrics.AuditRecords.WithLabelValues(action, "error").Inc()
		s.logger.Error("failed to write audit entry", "admin_id", adminID, "action", action, "error", err)
		return fmt.Errorf("%w: write audit entry: %w", domain.ErrTransient, err)
	}

	metrics.AuditRecords.WithLabelValues(action, "ok").Inc()
	s.logger.Info("admin action logged", "admin_id", adminID, "action", action)
	return nil
}

// Query returns at most limit entries, newest first. A negative limit selects
// domain.DefaultAuditQueryLimit; zero returns nothing.
func (s *AuditLogService) Query(ctx context.Context, limit int) ([]domain.AuditLogEntry, error) {
	if limit < 0 {
		limit = domain.DefaultAuditQueryLimit
	}
	if limit == 0 {
		return []domain.AuditLogEntry{}, nil
	}
	if limit > AuditLogCap {
		limit = AuditLogCap
	}

	raw, err := s.cache.Range(ctx, AuditLogKey, 0, int64(limit-1))
	if err != nil {
		s.logger.Error("failed to read audit log", "error", err)
		return []domain.AuditLogEntry{}, fmt.Errorf("%w: read audit log: %w", domain.ErrTransient, err)
	}

	entries := make([]domain.AuditLogEntry, 0, len(raw))
	for _, item := range raw {
		var e domain.AuditLogEntry
		if errDecode := json.Unmarshal([]byte(item), &e); errDecode != nil {
			s.logger.Warn("skipping malformed audit entry", "error", errDecode)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Stats returns 7-day counts for every action in domain.StatActions, zero-filled.
func (s *AuditLogService) Stats(ctx context.Context, adminID int64) (map[string]int, error) {
	stats := make(map[string]int, len(domain.StatActions))
	for _, action := range domain.StatActions {
		stats[action] = 0
	}
	if err := domain.ValidateUserID(adminID); err != nil {
		return stats, err
	}

	id := domain.FormatUserID(adminID)
	for _, action := range domain.StatActions {
		val, found, err := s.cache.Get(ctx, auditStatsKey(id, action))
		if err != nil {
			s.logger.Error("failed to read admin stats", "admin_id", id, "error", err)
			return stats, fmt.Errorf("%w: read stats for %s: %w", domain.ErrTransient, id, err)
		}
		if !found {
			continue
		}
		n, errConv := strconv.Atoi(val)
		if errConv != nil {
			s.logger.Warn("malformed stats counter", "admin_id", id, "action", action, "value", val)
			continue
		}
		stats[action] = n
	}
	return stats, nil
}

// lookupProfile is best-effort; a store failure just leaves placeholder names.
func (s *AuditLogService) lookupProfile(ctx context.Context, adminID int64) *domain.User {
	if s.store == nil {
		return nil
	}
	if u, ok := s.profiles.Get(adminID); ok {
		return &u
	}
	u, err := s.store.GetUser(ctx, adminID)
	if err != nil {
		s.logger.Debug("admin profile lookup failed", "admin_id", adminID, "error", err)
		return nil
	}
	if u == nil {
		return nil
	}
	s.profiles.Add(adminID, *u)
	return u
}
