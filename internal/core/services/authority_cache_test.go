package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/poyrazK/adminguard/internal/adapters/cache"
	"github.com/poyrazK/adminguard/internal/core/domain"
	"github.com/poyrazK/adminguard/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory authority store that tracks flag changes.
type memStore struct {
	mu     sync.Mutex
	admins map[int64]bool
	users  map[int64]domain.User
	calls  int
}

func newMemStore(ids ...int64) *memStore {
	s := &memStore{admins: make(map[int64]bool), users: make(map[int64]domain.User)}
	for _, id := range ids {
		s.admins[id] = true
	}
	return s
}

func (s *memStore) GetAllAdmins(_ context.Context) ([]domain.AdminRoleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	var out []domain.AdminRoleRecord
	for id, ok := range s.admins {
		if ok {
			out = append(out, domain.AdminRoleRecord{UserID: id, IsAdmin: true})
		}
	}
	return out, nil
}

func (s *memStore) SetAdminFlag(_ context.Context, userID int64, isAdmin bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admins[userID] = isAdmin
	return nil
}

func (s *memStore) GetUser(_ context.Context, userID int64) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *memStore) Ping(_ context.Context) error { return nil }

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *cache.RedisCache) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return mr, cache.NewRedisCache(mr.Addr(), "", 0)
}

func TestAuthorityCache_ColdStartSyncsFromStore(t *testing.T) {
	mr, rc := setupMiniredis(t)
	store := newMemStore(1001, 1002)
	c := NewAuthorityCache(store, rc, 0, nil)
	ctx := context.Background()

	assert.True(t, c.IsAdmin(ctx, 1001))
	assert.False(t, c.IsAdmin(ctx, 1003))

	members, err := mr.Members(AdminSetKey)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1001", "1002"}, members)
	assert.Equal(t, AdminFlagTTL, mr.TTL("admin:1001"))
	assert.Equal(t, 2, c.LocalCount())
}

func TestAuthorityCache_WarmCacheSkipsStore(t *testing.T) {
	mr, rc := setupMiniredis(t)
	mr.SetAdd(AdminSetKey, "1001")

	store := new(testutil.MockAuthorityStore)
	c := NewAuthorityCache(store, rc, 0, nil)
	ctx := context.Background()

	assert.True(t, c.IsAdmin(ctx, 1001))
	assert.False(t, c.IsAdmin(ctx, 42))
	store.AssertNotCalled(t, "GetAllAdmins")
}

func TestAuthorityCache_IsAdminIsReadOnly(t *testing.T) {
	mr, rc := setupMiniredis(t)
	store := newMemStore(1001, 1002)
	c := NewAuthorityCache(store, rc, 0, nil)
	ctx := context.Background()

	// Warm both caches first.
	require.True(t, c.IsAdmin(ctx, 1001))
	keysBefore := mr.Keys()
	membersBefore, _ := mr.Members(AdminSetKey)

	for i := 0; i < 10; i++ {
		c.IsAdmin(ctx, 1001)
		c.IsAdmin(ctx, 1003)
	}

	assert.Equal(t, keysBefore, mr.Keys())
	membersAfter, _ := mr.Members(AdminSetKey)
	assert.ElementsMatch(t, membersBefore, membersAfter)
	assert.Equal(t, 1, store.calls, "store should only be read by the cold sync")
	store.mu.Lock()
	assert.Equal(t, map[int64]bool{1001: true, 1002: true}, store.admins)
	store.mu.Unlock()
}

func TestAuthorityCache_AddAdmin(t *testing.T) {
	mr, rc := setupMiniredis(t)
	store := newMemStore(1001)
	c := NewAuthorityCache(store, rc, 0, nil)
	ctx := context.Background()

	require.False(t, c.IsAdmin(ctx, 2002))
	require.NoError(t, c.AddAdmin(ctx, 2002))

	assert.True(t, c.IsAdmin(ctx, 2002), "visible immediately")
	assert.True(t, store.admins[2002], "durable flag set")
	ok, _ := mr.IsMember(AdminSetKey, "2002")
	assert.True(t, ok)
	assert.Equal(t, AdminFlagTTL, mr.TTL("admin:2002"))

	require.NoError(t, c.ForceReload(ctx))
	assert.True(t, c.IsAdmin(ctx, 2002), "visible after cold start")

	// A second instance sees it too.
	other := NewAuthorityCache(store, rc, 0, nil)
	assert.True(t, other.IsAdmin(ctx, 2002))
}

func TestAuthorityCache_RemoveAdmin(t *testing.T) {
	mr, rc := setupMiniredis(t)
	store := newMemStore(1001, 1002)
	c := NewAuthorityCache(store, rc, 0, nil)
	ctx := context.Background()

	require.True(t, c.IsAdmin(ctx, 1002))
	require.NoError(t, c.RemoveAdmin(ctx, 1002))

	assert.False(t, c.IsAdmin(ctx, 1002), "revoked immediately")
	assert.False(t, store.admins[1002])
	assert.False(t, mr.Exists("admin:1002"))

	require.NoError(t, c.ForceReload(ctx))
	assert.False(t, c.IsAdmin(ctx, 1002), "revoked after cold start")
	assert.True(t, c.IsAdmin(ctx, 1001))
}

func TestAuthorityCache_RemoveLastAdminThenReload(t *testing.T) {
	_, rc := setupMiniredis(t)
	store := newMemStore(1001)
	c := NewAuthorityCache(store, rc, 0, nil)
	ctx := context.Background()

	require.True(t, c.IsAdmin(ctx, 1001))
	require.NoError(t, c.RemoveAdmin(ctx, 1001))

	// The set is now empty, so the reload re-syncs from the store, which no longer lists 1001.
	require.NoError(t, c.ForceReload(ctx))
	assert.False(t, c.IsAdmin(ctx, 1001))
	assert.Equal(t, 0, c.LocalCount())
}

func TestAuthorityCache_FlagKeyCoversLateAdd(t *testing.T) {
	mr, rc := setupMiniredis(t)
	store := newMemStore(1001)
	c := NewAuthorityCache(store, rc, 0, nil)
	ctx := context.Background()

	require.True(t, c.IsAdmin(ctx, 1001))

	// Another instance granted 3003 after this snapshot was taken.
	mr.Set("admin:3003", "1")

	assert.True(t, c.IsAdmin(ctx, 3003))
	assert.Equal(t, 2, c.LocalCount(), "flag hit backfills the local tier")
}

func TestAuthorityCache_LocalTTLRefresh(t *testing.T) {
	mr, rc := setupMiniredis(t)
	mr.SetAdd(AdminSetKey, "1001")

	c := NewAuthorityCache(newMemStore(), rc, 5*time.Minute, nil)
	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.True(t, c.IsAdmin(ctx, 1001))

	// Set membership without a flag key is only seen after the snapshot expires.
	mr.SetAdd(AdminSetKey, "4004")
	assert.False(t, c.IsAdmin(ctx, 4004))

	now = now.Add(6 * time.Minute)
	assert.True(t, c.IsAdmin(ctx, 4004))
}

func TestAuthorityCache_FailClosed(t *testing.T) {
	mr, rc := setupMiniredis(t)
	store := newMemStore(1001)
	c := NewAuthorityCache(store, rc, time.Minute, nil)
	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.True(t, c.IsAdmin(ctx, 1001))

	mr.SetError("connection reset")
	now = now.Add(2 * time.Minute)

	ok, err := c.CheckAdmin(ctx, 1001)
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.False(t, c.IsAdmin(ctx, 1001))
	assert.Equal(t, 0, c.LocalCount(), "failed refresh clears the local tier")
}

func TestAuthorityCache_StoreFailureOnColdCache(t *testing.T) {
	_, rc := setupMiniredis(t)
	store := new(testutil.MockAuthorityStore)
	store.On("GetAllAdmins").Return(nil, errors.New("db down"))

	c := NewAuthorityCache(store, rc, 0, nil)
	ok, err := c.CheckAdmin(context.Background(), 1001)

	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrTransient)
}

func TestAuthorityCache_AddAdminFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("store failure leaves cache untouched", func(t *testing.T) {
		mr, rc := setupMiniredis(t)
		store := new(testutil.MockAuthorityStore)
		store.On("SetAdminFlag", int64(5), true).Return(errors.New("db down"))

		c := NewAuthorityCache(store, rc, 0, nil)
		err := c.AddAdmin(ctx, 5)

		assert.ErrorIs(t, err, domain.ErrTransient)
		assert.False(t, mr.Exists(AdminSetKey))
		assert.Equal(t, 0, c.LocalCount())
	})

	t.Run("cache failure after durable write is surfaced", func(t *testing.T) {
		mr, rc := setupMiniredis(t)
		store := new(testutil.MockAuthorityStore)
		store.On("SetAdminFlag", int64(5), true).Return(nil).Once()

		c := NewAuthorityCache(store, rc, 0, nil)
		mr.SetError("READONLY")
		err := c.AddAdmin(ctx, 5)

		assert.ErrorIs(t, err, domain.ErrInconsistentState)
		assert.Equal(t, 0, c.LocalCount(), "local tier is not more privileged than the cache")
		store.AssertExpectations(t)
	})
}

func TestAuthorityCache_RemoveAdminCacheFailure(t *testing.T) {
	mr, rc := setupMiniredis(t)
	store := newMemStore(1001)
	c := NewAuthorityCache(store, rc, 0, nil)
	ctx := context.Background()

	require.True(t, c.IsAdmin(ctx, 1001))
	mr.SetError("READONLY")

	err := c.RemoveAdmin(ctx, 1001)
	assert.ErrorIs(t, err, domain.ErrInconsistentState)
	assert.False(t, store.admins[1001], "durable write stays committed")
	assert.Equal(t, 0, c.LocalCount())
}

func TestAuthorityCache_InvalidInput(t *testing.T) {
	_, rc := setupMiniredis(t)
	store := new(testutil.MockAuthorityStore)
	c := NewAuthorityCache(store, rc, 0, nil)
	ctx := context.Background()

	ok, err := c.CheckAdmin(ctx, 0)
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.ErrorIs(t, c.AddAdmin(ctx, -1), domain.ErrInvalidInput)
	assert.ErrorIs(t, c.RemoveAdmin(ctx, 0), domain.ErrInvalidInput)

	store.AssertNotCalled(t, "SetAdminFlag")
	store.AssertNotCalled(t, "GetAllAdmins")
}

func TestAuthorityCache_ConcurrentColdRefresh(t *testing.T) {
	mr, rc := setupMiniredis(t)
	store := newMemStore(1001, 1002)
	ctx := context.Background()

	// Two independent instances racing on the same cold cache.
	instances := []*AuthorityCache{
		NewAuthorityCache(store, rc, 0, nil),
		NewAuthorityCache(store, rc, 0, nil),
	}

	var wg sync.WaitGroup
	errs := make([]error, len(instances))
	for i, inst := range instances {
		wg.Add(1)
		go func(i int, inst *AuthorityCache) {
			defer wg.Done()
			errs[i] = inst.ForceReload(ctx)
		}(i, inst)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	members, err := mr.Members(AdminSetKey)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1001", "1002"}, members)
	for _, inst := range instances {
		assert.True(t, inst.IsAdmin(ctx, 1001))
		assert.True(t, inst.IsAdmin(ctx, 1002))
	}
}

func TestAuthorityCache_ConcurrentIsAdmin(t *testing.T) {
	_, rc := setupMiniredis(t)
	store := newMemStore(1001)
	c := NewAuthorityCache(store, rc, 0, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, c.IsAdmin(ctx, 1001))
		}()
	}
	wg.Wait()
}

func TestAuthorityCache_ListAdmins(t *testing.T) {
	mr, rc := setupMiniredis(t)
	mr.SetAdd(AdminSetKey, "30", "4", "garbage", "100")

	c := NewAuthorityCache(newMemStore(), rc, 0, nil)
	ids, err := c.ListAdmins(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 30, 100}, ids)

	mr.SetError("down")
	_, err = c.ListAdmins(context.Background())
	assert.ErrorIs(t, err, domain.ErrTransient)
}

func TestAuthorityCache_StartRefresher(t *testing.T) {
	mr, rc := setupMiniredis(t)
	mr.SetAdd(AdminSetKey, "1001")

	c := NewAuthorityCache(newMemStore(), rc, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.True(t, c.IsAdmin(ctx, 1001))
	mr.SetAdd(AdminSetKey, "1002")

	c.StartRefresher(ctx, 10*time.Millisecond)

	assert.Eventually(t, func() bool { return c.LocalCount() == 2 }, time.Second, 10*time.Millisecond)
}

// gatedCache parks the next SetMembers call until release is closed. With
// readFirst the members are read before parking, so the caller sees a snapshot
// taken before anything that happens while it waits.
type gatedCache struct {
	*cache.RedisCache

	mu        sync.Mutex
	armed     bool
	readFirst bool
	entered   chan struct{}
	release   chan struct{}
}

func newGatedCache(rc *cache.RedisCache, readFirst bool) *gatedCache {
	return &gatedCache{
		RedisCache: rc,
		armed:      true,
		readFirst:  readFirst,
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
}

func (g *gatedCache) SetMembers(ctx context.Context, key string) ([]string, error) {
	g.mu.Lock()
	armed := g.armed
	g.armed = false
	g.mu.Unlock()
	if !armed {
		return g.RedisCache.SetMembers(ctx, key)
	}

	if g.readFirst {
		members, err := g.RedisCache.SetMembers(ctx, key)
		close(g.entered)
		<-g.release
		return members, err
	}
	close(g.entered)
	<-g.release
	return g.RedisCache.SetMembers(ctx, key)
}

func TestAuthorityCache_CancelledCallerDoesNotFailSharedRefresh(t *testing.T) {
	mr, rc := setupMiniredis(t)
	_, _ = mr.SetAdd(AdminSetKey, "1001")
	gc := newGatedCache(rc, false)
	c := NewAuthorityCache(newMemStore(), gc, 0, nil)

	ctxA, cancelA := context.WithCancel(context.Background())
	doneA := make(chan bool, 1)
	go func() { doneA <- c.IsAdmin(ctxA, 1001) }()
	<-gc.entered

	doneB := make(chan bool, 1)
	go func() { doneB <- c.IsAdmin(context.Background(), 1001) }()
	// Give B time to join the in-flight refresh.
	time.Sleep(50 * time.Millisecond)

	cancelA()
	select {
	case <-doneA:
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller kept waiting on the shared refresh")
	}

	close(gc.release)
	select {
	case ok := <-doneB:
		assert.True(t, ok, "healthy caller must see the admin")
	case <-time.After(2 * time.Second):
		t.Fatal("healthy caller never returned")
	}
	assert.Equal(t, 1, c.LocalCount(), "snapshot survives the other caller's cancellation")
}

func TestAuthorityCache_LoadOverlappingRemovalIsDiscarded(t *testing.T) {
	mr, rc := setupMiniredis(t)
	store := newMemStore(1001, 1002)
	_, _ = mr.SetAdd(AdminSetKey, "1001", "1002")
	gc := newGatedCache(rc, true)
	c := NewAuthorityCache(store, gc, 0, nil)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- c.ForceReload(ctx) }()
	<-gc.entered

	require.NoError(t, c.RemoveAdmin(ctx, 1001))
	close(gc.release)
	require.NoError(t, <-done)

	assert.False(t, c.IsAdmin(ctx, 1001), "revoked admin must not come back from an older read")
	assert.True(t, c.IsAdmin(ctx, 1002))
	assert.Equal(t, 1, c.LocalCount())
}
