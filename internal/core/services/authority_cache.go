package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/poyrazK/adminguard/internal/core/domain"
	"github.com/poyrazK/adminguard/internal/core/ports"
	"github.com/poyrazK/adminguard/internal/infrastructure/metrics"
	"golang.org/x/sync/singleflight"
)

const (
	// AdminSetKey holds the canonical ids of every admin in the distributed cache.
	AdminSetKey = "admin:users"
	// AdminFlagTTL bounds the per-user flag key.
	AdminFlagTTL = 24 * time.Hour
	// DefaultLocalTTL bounds how long the in-process snapshot is served before a reload.
	DefaultLocalTTL = 5 * time.Minute

	refreshTimeout = 10 * time.Second
)

func adminFlagKey(id string) string {
	return "admin:" + id
}

// AuthorityCache answers admin checks from three tiers: an in-process snapshot,
// the distributed cache, and the durable store. Reads fail closed. Writes go
// durable store first, then distributed cache, then the local snapshot.
//
// The local snapshot is per instance and may lag other instances by up to ttl.
type AuthorityCache struct {
	store  ports.AuthorityStore
	cache  ports.DistributedCache
	logger *slog.Logger
	ttl    time.Duration
	now    func() time.Time

	mu       sync.RWMutex
	local    map[string]struct{}
	loadedAt time.Time
	// removals counts RemoveAdmin calls; a load that overlaps one is discarded.
	removals uint64

	refreshGroup singleflight.Group
}

var _ ports.AdminAuthority = (*AuthorityCache)(nil)

func NewAuthorityCache(store ports.AuthorityStore, cache ports.DistributedCache, ttl time.Duration, logger *slog.Logger) *AuthorityCache {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultLocalTTL
	}
	return &AuthorityCache{
		store:  store,
		cache:  cache,
		logger: logger,
		ttl:    ttl,
		now:    time.Now,
		local:  make(map[string]struct{}),
	}
}

// IsAdmin reports whether userID is an admin. Any failure yields false.
func (c *AuthorityCache) IsAdmin(ctx context.Context, userID int64) bool {
	ok, _ := c.CheckAdmin(ctx, userID)
	return ok
}

// CheckAdmin makes the same decision as IsAdmin and also returns the error behind
// a denial, if any. A non-nil error never comes with true.
func (c *AuthorityCache) CheckAdmin(ctx context.Context, userID int64) (bool, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return false, err
	}
	id := domain.FormatUserID(userID)

	loadErr := c.ensureLoaded(ctx)
	if loadErr != nil {
		c.logger.Warn("admin cache refresh failed, checking flag key only", "error", loadErr)
	}

	if c.hasLocal(id) {
		metrics.AuthorityLookups.WithLabelValues("local", "hit").Inc()
		return true, nil
	}

	// An admin added after the last snapshot is still visible through its flag key.
	val, found, err := c.cache.Get(ctx, adminFlagKey(id))
	if err != nil {
		metrics.AuthorityLookups.WithLabelValues("flag", "error").Inc()
		c.logger.Error("admin flag lookup failed, denying", "user_id", id, "error", err)
		return false, fmt.Errorf("%w: read admin flag for %s: %w", domain.ErrTransient, id, err)
	}
	if found && val == "1" {
		metrics.AuthorityLookups.WithLabelValues("flag", "hit").Inc()
		c.addLocal(id)
		return true, nil
	}

	metrics.AuthorityLookups.WithLabelValues("flag", "miss").Inc()
	return false, loadErr
}

// AddAdmin grants the role. A failure after the durable write is returned as is;
// completed steps stay in place for the caller to retry.
func (c *AuthorityCache) AddAdmin(ctx context.Context, userID int64) error {
	if err := domain.ValidateUserID(userID); err != nil {
		return err
	}
	id := domain.FormatUserID(userID)

	if err := c.store.SetAdminFlag(ctx, userID, true); err != nil {
		return fmt.Errorf("%w: grant admin %s in store: %w", domain.ErrTransient, id, err)
	}

	err := c.cache.Batch(ctx, []ports.CacheOp{
		{Kind: ports.OpSetAdd, Key: AdminSetKey, Value: id},
		{Kind: ports.OpSetWithExpiry, Key: adminFlagKey(id), Value: "1", TTL: AdminFlagTTL},
	})
	if err != nil {
		return fmt.Errorf("%w: admin %s granted in store but not in cache: %w", domain.ErrInconsistentState, id, err)
	}

	c.addLocal(id)
	c.logger.Info("added admin", "user_id", id)
	return nil
}

// RemoveAdmin revokes the role in the same tier order as AddAdmin. The local
// snapshot drops the user even when the cache write fails.
func (c *AuthorityCache) RemoveAdmin(ctx context.Context, userID int64) error {
	if err := domain.ValidateUserID(userID); err != nil {
		return err
	}
	id := domain.FormatUserID(userID)

	if err := c.store.SetAdminFlag(ctx, userID, false); err != nil {
		return fmt.Errorf("%w: revoke admin %s in store: %w", domain.ErrTransient, id, err)
	}

	err := c.cache.Batch(ctx, []ports.CacheOp{
		{Kind: ports.OpSetRemove, Key: AdminSetKey, Value: id},
		{Kind: ports.OpDelete, Key: adminFlagKey(id)},
	})
	c.removeLocal(id)
	if err != nil {
		return fmt.Errorf("%w: admin %s revoked in store but not in cache: %w", domain.ErrInconsistentState, id, err)
	}

	c.logger.Info("removed admin", "user_id", id)
	return nil
}

// ForceReload drops the local snapshot and its timestamp, then reloads it.
func (c *AuthorityCache) ForceReload(ctx context.Context) error {
	c.clearLocal()
	return c.refresh(ctx)
}

// ListAdmins returns the admin ids held by the distributed cache, sorted.
func (c *AuthorityCache) ListAdmins(ctx context.Context) ([]int64, error) {
	members, err := c.cache.SetMembers(ctx, AdminSetKey)
	if err != nil {
		return nil, fmt.Errorf("%w: read admin set: %w", domain.ErrTransient, err)
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, errParse := strconv.ParseInt(m, 10, 64)
		if errParse != nil {
			c.logger.Warn("skipping malformed admin set member", "member", m)
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// LocalCount is the number of admins in this instance's snapshot.
func (c *AuthorityCache) LocalCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.local)
}

// StartRefresher reloads the snapshot every interval until ctx is done. It is
// best-effort: there is no ordering with foreground calls, and failures are
// only logged.
func (c *AuthorityCache) StartRefresher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = c.ttl
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.refresh(ctx); err != nil {
					c.logger.Warn("background admin refresh failed", "error", err)
				}
			}
		}
	}()
}

func (c *AuthorityCache) ensureLoaded(ctx context.Context) error {
	c.mu.RLock()
	stale := len(c.local) == 0 || c.now().Sub(c.loadedAt) > c.ttl
	c.mu.RUnlock()
	if !stale {
		return nil
	}
	return c.refresh(ctx)
}

// refresh collapses concurrent reloads in this process into one. The shared
// load is detached from any single caller, so a cancelled caller stops waiting
// without failing the load for everyone else.
func (c *AuthorityCache) refresh(ctx context.Context) error {
	ch := c.refreshGroup.DoChan("refresh", func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return nil, c.load(loadCtx)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *AuthorityCache) load(ctx context.Context) error {
	c.mu.RLock()
	removals := c.removals
	c.mu.RUnlock()

	source := "cache"
	ids, err := c.cache.SetMembers(ctx, AdminSetKey)
	if err != nil {
		return c.loadFailed(source, fmt.Errorf("%w: read admin set: %w", domain.ErrTransient, err))
	}

	if len(ids) == 0 {
		source = "store"
		if err := c.syncFromDurableStore(ctx); err != nil {
			return c.loadFailed(source, err)
		}
		ids, err = c.cache.SetMembers(ctx, AdminSetKey)
		if err != nil {
			return c.loadFailed(source, fmt.Errorf("%w: re-read admin set: %w", domain.ErrTransient, err))
		}
	}

	fresh := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		fresh[id] = struct{}{}
	}

	c.mu.Lock()
	if c.removals != removals {
		// The set was read before a concurrent removal landed; the next check reloads.
		c.mu.Unlock()
		c.logger.Debug("discarding admin snapshot that overlapped a removal", "source", source)
		return nil
	}
	c.local = fresh
	c.loadedAt = c.now()
	c.mu.Unlock()

	metrics.AuthorityRefreshes.WithLabelValues(source, "ok").Inc()
	metrics.LocalAdmins.Set(float64(len(fresh)))
	c.logger.Debug("admin cache updated", "admins", len(fresh), "source", source)
	return nil
}

// loadFailed clears the snapshot so that stale data is never served indefinitely.
func (c *AuthorityCache) loadFailed(source string, err error) error {
	c.clearLocal()
	metrics.AuthorityRefreshes.WithLabelValues(source, "error").Inc()
	return err
}

// syncFromDurableStore copies every admin into the distributed cache in one
// transaction. Concurrent syncs from other instances converge because set-add
// and flag overwrite are idempotent.
func (c *AuthorityCache) syncFromDurableStore(ctx context.Context) error {
	admins, err := c.store.GetAllAdmins(ctx)
	if err != nil {
		return fmt.Errorf("%w: load admins from store: %w", domain.ErrTransient, err)
	}

	ops := make([]ports.CacheOp, 0, 2*len(admins))
	for _, a := range admins {
		if !a.IsAdmin {
			continue
		}
		id := domain.FormatUserID(a.UserID)
		ops = append(ops,
			ports.CacheOp{Kind: ports.OpSetAdd, Key: AdminSetKey, Value: id},
			ports.CacheOp{Kind: ports.OpSetWithExpiry, Key: adminFlagKey(id), Value: "1", TTL: AdminFlagTTL},
		)
	}
	if len(ops) == 0 {
		return nil
	}

	if err := c.cache.Batch(ctx, ops); err != nil {
		return fmt.Errorf("%w: write admins to cache: %w", domain.ErrTransient, err)
	}
	c.logger.Info("synced admins to distributed cache", "count", len(ops)/2)
	return nil
}

func (c *AuthorityCache) hasLocal(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.local[id]
	return ok
}

func (c *AuthorityCache) addLocal(id string) {
	c.mu.Lock()
	c.local[id] = struct{}{}
	n := len(c.local)
	c.mu.Unlock()
	metrics.LocalAdmins.Set(float64(n))
}

func (c *AuthorityCache) removeLocal(id string) {
	c.mu.Lock()
	delete(c.local, id)
	c.removals++
	n := len(c.local)
	c.mu.Unlock()
	metrics.LocalAdmins.Set(float64(n))
}

func (c *AuthorityCache) clearLocal() {
	c.mu.Lock()
	c.local = make(map[string]struct{})
	c.loadedAt = time.Time{}
	c.mu.Unlock()
	metrics.LocalAdmins.Set(0)
}
