package ports

import (
	"context"
	"time"

	"github.com/poyrazK/adminguard/internal/core/domain"
)

// AuthorityStore is the durable system of record for the admin flag.
type AuthorityStore interface {
	GetAllAdmins(ctx context.Context) ([]domain.AdminRoleRecord, error)
	SetAdminFlag(ctx context.Context, userID int64, isAdmin bool) error
	GetUser(ctx context.Context, userID int64) (*domain.User, error)
	Ping(ctx context.Context) error
}

// CacheOpKind names one command inside an atomic Batch.
type CacheOpKind int

const (
	OpSetAdd CacheOpKind = iota
	OpSetRemove
	OpSetWithExpiry
	OpDelete
	OpIncrement
	OpExpire
	OpPushFront
	OpTrim
)

// CacheOp is a single command queued into DistributedCache.Batch.
type CacheOp struct {
	Kind  CacheOpKind
	Key   string
	Value string
	TTL   time.Duration
	Start int64
	Stop  int64
}

// DistributedCache is the shared key/value, set and list store reachable from every instance.
type DistributedCache interface {
	SetAdd(ctx context.Context, key string, members ...string) error
	SetRemove(ctx context.Context, key string, members ...string) error
	SetMembers(ctx context.Context, key string) ([]string, error)
	SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error
	// Get reports found=false without error when the key does not exist.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Increment(ctx context.Context, key string) (int64, error)
	// IncrementWithExpiry increments key and gives it ttl whenever it has no
	// expiry, so a lost EXPIRE is repaired by the next call.
	IncrementWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	PushFront(ctx context.Context, key string, values ...string) error
	Trim(ctx context.Context, key string, start, stop int64) error
	Range(ctx context.Context, key string, start, stop int64) ([]string, error)
	// Batch executes all ops atomically (MULTI/EXEC).
	Batch(ctx context.Context, ops []CacheOp) error
	Ping(ctx context.Context) error
}

// AdminAuthority answers "is this user an admin" and mutates the role across tiers.
type AdminAuthority interface {
	IsAdmin(ctx context.Context, userID int64) bool
	CheckAdmin(ctx context.Context, userID int64) (bool, error)
	AddAdmin(ctx context.Context, userID int64) error
	RemoveAdmin(ctx context.Context, userID int64) error
	ForceReload(ctx context.Context) error
	ListAdmins(ctx context.Context) ([]int64, error)
	LocalCount() int
}

// AdminRoles is the guarded entry point for role changes requested by an actor.
// actorID 0 means an operator acting outside any admin session.
type AdminRoles interface {
	Grant(ctx context.Context, actorID, targetID int64) error
	Revoke(ctx context.Context, actorID, targetID int64) error
}

// RateLimiter enforces per-user, per-action fixed windows and temporary bans.
type RateLimiter interface {
	Check(ctx context.Context, userID int64, action domain.ActionClass, limit int) (domain.RateLimitResult, error)
	IsBanned(ctx context.Context, userID int64) (bool, error)
	Unban(ctx context.Context, userID int64) error
}

// AuditLog records admin actions and reports on them.
type AuditLog interface {
	Record(ctx context.Context, adminID int64, action string, payload map[string]any) error
	Query(ctx context.Context, limit int) ([]domain.AuditLogEntry, error)
	Stats(ctx context.Context, adminID int64) (map[string]int, error)
}
