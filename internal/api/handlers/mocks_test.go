// internal/api/handlers/mocks_test.go

package handlers_test

import (
	"context"

	"ctp-notifications/internal/common/auth"
	"ctp-notifications/internal/delivery"
	"ctp-notifications/internal/models"
	"ctp-notifications/internal/store"

	"github.com/stretchr/testify/mock"
)

// --- Mocks ---

type MockDocuments struct {
	mock.Mock
}

func (m *MockDocuments) Get(ctx context.Context, collection, id string) (models.Document, error) {
	args := m.Called(ctx, collection, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(models.Document), args.Error(1)
}

func (m *MockDocuments) FindByFieldIn(ctx context.Context, collection, field string, values []string) ([]store.Record, error) {
	args := m.Called(ctx, collection, field, values)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.Record), args.Error(1)
}

func (m *MockDocuments) UpdateFields(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	args := m.Called(ctx, collection, id, fields)
	return args.Error(0)
}

func (m *MockDocuments) Create(ctx context.Context, collection, id string, data models.Document) error {
	args := m.Called(ctx, collection, id, data)
	return args.Error(0)
}

type MockPushSender struct {
	mock.Mock
}

func (m *MockPushSender) Deliver(ctx context.Context, n delivery.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) CreateUser(ctx context.Context, user *auth.User) (*auth.User, error) {
	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.User), args.Error(1)
}

func (m *MockIdentityProvider) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.User), args.Error(1)
}

func (m *MockIdentityProvider) DeleteUser(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type MockDeadLetters struct {
	mock.Mock
}

func (m *MockDeadLetters) List(ctx context.Context, limit int) ([]delivery.DeadLetter, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]delivery.DeadLetter), args.Error(1)
}

func (m *MockDeadLetters) Len(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}
