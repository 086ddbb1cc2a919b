package testutil

import (
	"context"

	"github.com/poyrazK/adminguard/internal/core/domain"
	"github.com/stretchr/testify/mock"
)

// MockAuthority implements ports.AdminAuthority for testing.
type MockAuthority struct {
	mock.Mock
}

func (m *MockAuthority) IsAdmin(ctx context.Context, userID int64) bool {
	args := m.Called(userID)
	return args.Bool(0)
}

func (m *MockAuthority) CheckAdmin(ctx context.Context, userID int64) (bool, error) {
	args := m.Called(userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockAuthority) AddAdmin(ctx context.Context, userID int64) error {
	args := m.Called(userID)
	return args.Error(0)
}

func (m *MockAuthority) RemoveAdmin(ctx context.Context, userID int64) error {
	args := m.Called(userID)
	return args.Error(0)
}

func (m *MockAuthority) ForceReload(ctx context.Context) error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockAuthority) ListAdmins(ctx context.Context) ([]int64, error) {
	args := m.Called()
	ids, _ := args.Get(0).([]int64)
	return ids, args.Error(1)
}

func (m *MockAuthority) LocalCount() int {
	args := m.Called()
	return args.Int(0)
}

// MockRateLimiter implements ports.RateLimiter for testing.
type MockRateLimiter struct {
	mock.Mock
}

func (m *MockRateLimiter) Check(ctx context.Context, userID int64, action domain.ActionClass, limit int) (domain.RateLimitResult, error) {
	args := m.Called(userID, action, limit)
	return args.Get(0).(domain.RateLimitResult), args.Error(1)
}

func (m *MockRateLimiter) IsBanned(ctx context.Context, userID int64) (bool, error) {
	args := m.Called(userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRateLimiter) Unban(ctx context.Context, userID int64) error {
	args := m.Called(userID)
	return args.Error(0)
}

// MockAuditLog implements ports.AuditLog for testing.
type MockAuditLog struct {
	mock.Mock
}

func (m *MockAuditLog) Record(ctx context.Context, adminID int64, action string, payload map[string]any) error {
	args := m.Called(adminID, action, payload)
	return args.Error(0)
}

func (m *MockAuditLog) Query(ctx context.Context, limit int) ([]domain.AuditLogEntry, error) {
	args := m.Called(limit)
	entries, _ := args.Get(0).([]domain.AuditLogEntry)
	return entries, args.Error(1)
}

func (m *MockAuditLog) Stats(ctx context.Context, adminID int64) (map[string]int, error) {
	args := m.Called(adminID)
	stats, _ := args.Get(0).(map[string]int)
	return stats, args.Error(1)
}

// MockAdminRoles implements ports.AdminRoles for testing.
type MockAdminRoles struct {
	mock.Mock
}

func (m *MockAdminRoles) Grant(ctx context.Context, actorID, targetID int64) error {
	args := m.Called(actorID, targetID)
	return args.Error(0)
}

func (m *MockAdminRoles) Revoke(ctx context.Context, actorID, targetID int64) error {
	args := m.Called(actorID, targetID)
	return args.Error(0)
}
