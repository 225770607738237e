package mocks

import (
	"context"

	"github.com/dukex/chatflow/pkg/bridge"
	"github.com/stretchr/testify/mock"
)

// MockBridge is a mock implementation of bridge.Bridge interface.
type MockBridge struct {
	mock.Mock
}

var _ bridge.Bridge = (*MockBridge)(nil)

func (m *MockBridge) Invoke(ctx context.Context, capability bridge.Capability, config map[string]any, variables map[string]any) (bridge.Result, error) {
	args := m.Called(ctx, capability, config, variables)

	return args.Get(0).(bridge.Result), args.Error(1)
}
