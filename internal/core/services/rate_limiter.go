package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poyrazK/adminguard/internal/core/domain"
	"github.com/poyrazK/adminguard/internal/core/ports"
	"github.com/poyrazK/adminguard/internal/infrastructure/metrics"
)

const (
	// RateWindow is the fixed window, anchored at the first request.
	RateWindow = 60 * time.Second
	// BanDuration is how long a user stays banned after exceeding a limit.
	BanDuration = 300 * time.Second
)

var knownActionClasses = []domain.ActionClass{
	domain.ActionClassMessage,
	domain.ActionClassCallback,
	domain.ActionClassCommand,
}

func rateCounterKey(action domain.ActionClass, id string) string {
	return "limit:" + string(action) + ":" + id
}

func banKey(id string) string {
	return "ban:" + id
}

// CacheRateLimiter counts requests per (action class, user) in fixed windows kept
// in the distributed cache. Exceeding a limit bans the user from every action
// class for BanDuration.
//
// Cache failures fail open: the request is allowed and the error is returned
// alongside the result so callers can log it. Admin checks fail closed instead.
type CacheRateLimiter struct {
	cache  ports.DistributedCache
	logger *slog.Logger
	window time.Duration
	ban    time.Duration
}

var _ ports.RateLimiter = (*CacheRateLimiter)(nil)

func NewRateLimiter(cache ports.DistributedCache, logger *slog.Logger) *CacheRateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CacheRateLimiter{
		cache:  cache,
		logger: logger,
		window: RateWindow,
		ban:    BanDuration,
	}
}

// Check counts one request. limit <= 0 selects domain.DefaultRateLimit.
func (l *CacheRateLimiter) Check(ctx context.Context, userID int64, action domain.ActionClass, limit int) (domain.RateLimitResult, error) {
	if limit <= 0 {
		limit = domain.DefaultRateLimit
	}
	if err := domain.ValidateUserID(userID); err != nil {
		return domain.RateLimitResult{Limit: limit}, err
	}
	if action == "" {
		action = domain.ActionClassMessage
	}
	id := domain.FormatUserID(userID)
	key := rateCounterKey(action, id)

	current, err := l.cache.IncrementWithExpiry(ctx, key, l.window)
	if err != nil && current == 0 {
		metrics.RateLimitDecisions.WithLabelValues(string(action), "fail_open").Inc()
		l.logger.Warn("rate limit counter unavailable, allowing", "user_id", id, "action", action, "error", err)
		return domain.RateLimitResult{Allowed: true, Limit: limit, Remaining: limit}, fmt.Errorf("%w: increment %s: %w", domain.ErrTransient, key, err)
	}

	// The counter was taken but its window could not be armed; the next call retries.
	var expireErr error
	if err != nil {
		l.logger.Error("failed to arm rate limit window", "key", key, "error", err)
		expireErr = fmt.Errorf("%w: expire %s: %w", domain.ErrTransient, key, err)
	}

	if current > int64(limit) {
		res := domain.RateLimitResult{Allowed: false, Current: current, Limit: limit, Remaining: 0, Banned: true}
		metrics.RateLimitDecisions.WithLabelValues(string(action), "banned").Inc()
		if err := l.cache.SetWithExpiry(ctx, banKey(id), "1", l.ban); err != nil {
			l.logger.Error("failed to set ban flag", "user_id", id, "error", err)
			return res, fmt.Errorf("%w: set ban for %s: %w", domain.ErrTransient, id, err)
		}
		l.logger.Info("user banned for exceeding rate limit", "user_id", id, "action", action, "current", current, "limit", limit)
		return res, nil
	}

	metrics.RateLimitDecisions.WithLabelValues(string(action), "allowed").Inc()
	return domain.RateLimitResult{
		Allowed:   true,
		Current:   current,
		Limit:     limit,
		Remaining: limit - int(current),
	}, expireErr
}

// IsBanned reports whether the ban flag is present. Failures report false.
func (l *CacheRateLimiter) IsBanned(ctx context.Context, userID int64) (bool, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return false, err
	}
	banned, err := l.cache.Exists(ctx, banKey(domain.FormatUserID(userID)))
	if err != nil {
		l.logger.Warn("ban check unavailable, allowing", "user_id", userID, "error", err)
		return false, fmt.Errorf("%w: check ban for %d: %w", domain.ErrTransient, userID, err)
	}
	return banned, nil
}

// Unban lifts a ban early and resets the user's counters so the next request
// does not re-trigger it.
func (l *CacheRateLimiter) Unban(ctx context.Context, userID int64) error {
	if err := domain.ValidateUserID(userID); err != nil {
		return err
	}
	id := domain.FormatUserID(userID)
	keys := []string{banKey(id)}
	for _, action := range knownActionClasses {
		keys = append(keys, rateCounterKey(action, id))
	}
	if err := l.cache.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("%w: unban %s: %w", domain.ErrTransient, id, err)
	}
	l.logger.Info("user unbanned", "user_id", id)
	return nil
}
