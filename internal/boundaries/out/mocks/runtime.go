// Package mocks holds testify mocks for the output ports.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/bnema/berth/internal/boundaries/out"
)

// MockRuntimeDriver is a mock implementation of out.RuntimeDriver
type MockRuntimeDriver struct {
	mock.Mock
}

var _ out.RuntimeDriver = (*MockRuntimeDriver)(nil)

// NewMockRuntimeDriver creates a mock whose expectations are asserted on cleanup.
func NewMockRuntimeDriver(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockRuntimeDriver {
	m := &MockRuntimeDriver{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Unit operations
func (m *MockRuntimeDriver) CreateUnit(ctx context.Context, spec out.UnitSpec) (string, error) {
	args := m.Called(ctx, spec)
	return args.String(0), args.Error(1)
}

func (m *MockRuntimeDriver) StartUnit(ctx context.Context, unitID string) error {
	args := m.Called(ctx, unitID)
	return args.Error(0)
}

func (m *MockRuntimeDriver) StopUnit(ctx context.Context, unitID string) error {
	args := m.Called(ctx, unitID)
	return args.Error(0)
}

func (m *MockRuntimeDriver) PauseUnit(ctx context.Context, unitID string) error {
	args := m.Called(ctx, unitID)
	return args.Error(0)
}

func (m *MockRuntimeDriver) ResumeUnit(ctx context.Context, unitID string) error {
	args := m.Called(ctx, unitID)
	return args.Error(0)
}

func (m *MockRuntimeDriver) RemoveUnit(ctx context.Context, unitID string, force bool) error {
	args := m.Called(ctx, unitID, force)
	return args.Error(0)
}

// Observation
func (m *MockRuntimeDriver) ListUnits(ctx context.Context) ([]out.UnitState, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]out.UnitState), args.Error(1)
}

func (m *MockRuntimeDriver) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
