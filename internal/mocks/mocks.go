package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"social-service/internal/live"
	"social-service/internal/rabbitmq"
	"social-service/internal/repositories"
)

// MockStore mocks the transactional store. fn is never invoked, so callers
// observe only the configured Changes and error.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Update(ctx context.Context, fn func(repositories.Tx) error) (repositories.Changes, error) {
	args := m.Called(ctx, fn)
	var changes repositories.Changes
	if val := args.Get(0); val != nil {
		changes = val.(repositories.Changes)
	}
	return changes, args.Error(1)
}

func (m *MockStore) View(ctx context.Context, fn func(repositories.Tx) error) (repositories.Changes, error) {
	args := m.Called(ctx, fn)
	var changes repositories.Changes
	if val := args.Get(0); val != nil {
		changes = val.(repositories.Changes)
	}
	return changes, args.Error(1)
}

var _ repositories.Store = (*MockStore)(nil)

// MockFeed mocks the change feed live queries listen on.
type MockFeed struct {
	mock.Mock
}

func (m *MockFeed) Publish(ctx context.Context, keys []string) error {
	args := m.Called(ctx, keys)
	return args.Error(0)
}

func (m *MockFeed) Subscribe(ctx context.Context, fn func([]string)) (func(), error) {
	args := m.Called(ctx, fn)
	var unsub func()
	if val := args.Get(0); val != nil {
		unsub = val.(func())
	}
	return unsub, args.Error(1)
}

func (m *MockFeed) Close() error {
	args := m.Called()
	return args.Error(0)
}

var _ live.Feed = (*MockFeed)(nil)

// MockPublisher mocks RabbitMQ publisher behavior for domain events and audit logs.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

var _ rabbitmq.Publisher = (*MockPublisher)(nil)
