package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/bnema/berth/internal/boundaries/out"
	"github.com/bnema/berth/internal/domain"
)

// MockRecordStore is a mock implementation of out.RecordStore
type MockRecordStore struct {
	mock.Mock
}

var _ out.RecordStore = (*MockRecordStore)(nil)

func (m *MockRecordStore) Save(ctx context.Context, c domain.Container) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockRecordStore) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRecordStore) LoadAll(ctx context.Context) ([]domain.Container, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Container), args.Error(1)
}

func (m *MockRecordStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
