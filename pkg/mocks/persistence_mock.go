package mocks

import (
	"context"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockFlowRepository is a mock implementation of persistence.FlowRepository interface.
type MockFlowRepository struct {
	mock.Mock
}

func (m *MockFlowRepository) Flows(ctx context.Context, filter persistence.FlowFilter) ([]*models.Flow, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Flow), args.Error(1)
}

func (m *MockFlowRepository) FlowByID(ctx context.Context, id string) (*models.Flow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Flow), args.Error(1)
}

func (m *MockFlowRepository) SaveFlow(ctx context.Context, flow *models.Flow) error {
	args := m.Called(ctx, flow)

	return args.Error(0)
}

func (m *MockFlowRepository) DeleteFlow(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockSessionRepository is a mock implementation of persistence.SessionRepository interface.
type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) SessionByID(ctx context.Context, id string) (*models.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Session), args.Error(1)
}

func (m *MockSessionRepository) SaveSession(ctx context.Context, session *models.Session) error {
	args := m.Called(ctx, session)

	return args.Error(0)
}

func (m *MockSessionRepository) ActiveSessionsIdleSince(ctx context.Context, cutoff time.Time) ([]*models.Session, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Session), args.Error(1)
}

func (m *MockSessionRepository) DeleteSession(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	flowRepo    *MockFlowRepository
	sessionRepo *MockSessionRepository
}

var _ persistence.Persistence = (*MockPersistence)(nil)

// NewMockPersistence creates a new MockPersistence with all mock repositories.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		flowRepo:    &MockFlowRepository{},
		sessionRepo: &MockSessionRepository{},
	}
}

// GetMockFlowRepository returns the underlying mock flow repository for setting up expectations.
func (m *MockPersistence) GetMockFlowRepository() *MockFlowRepository {
	return m.flowRepo
}

// GetMockSessionRepository returns the underlying mock session repository for setting up expectations.
func (m *MockPersistence) GetMockSessionRepository() *MockSessionRepository {
	return m.sessionRepo
}

func (m *MockPersistence) FlowRepository() persistence.FlowRepository {
	return m.flowRepo
}

func (m *MockPersistence) SessionRepository() persistence.SessionRepository {
	return m.sessionRepo
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
