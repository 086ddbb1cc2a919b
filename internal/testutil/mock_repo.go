package testutil

import (
	"context"

	"github.com/poyrazK/adminguard/internal/core/domain"
	"github.com/stretchr/testify/mock"
)

// MockAuthorityStore implements ports.AuthorityStore for testing.
type MockAuthorityStore struct {
	mock.Mock
}

func (m *MockAuthorityStore) GetAllAdmins(ctx context.Context) ([]domain.AdminRoleRecord, error) {
	args := m.Called()
	admins, _ := args.Get(0).([]domain.AdminRoleRecord)
	return admins, args.Error(1)
}

func (m *MockAuthorityStore) SetAdminFlag(ctx context.Context, userID int64, isAdmin bool) error {
	args := m.Called(userID, isAdmin)
	return args.Error(0)
}

func (m *MockAuthorityStore) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	args := m.Called(userID)
	u, _ := args.Get(0).(*domain.User)
	return u, args.Error(1)
}

func (m *MockAuthorityStore) Ping(ctx context.Context) error {
	args := m.Called()
	return args.Error(0)
}
