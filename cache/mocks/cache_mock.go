package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/zlnvch/deskfolio/models"
)

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Publish(ctx context.Context, channel string, message []byte) error {
	args := m.Called(ctx, channel, message)
	return args.Error(0)
}

func (m *MockCache) Subscribe(ctx context.Context, channel string, handler func(message []byte)) error {
	args := m.Called(ctx, channel, handler)
	return args.Error(0)
}

func (m *MockCache) GetFile(ctx context.Context, fileId string) (models.File, bool, error) {
	args := m.Called(ctx, fileId)
	return args.Get(0).(models.File), args.Bool(1), args.Error(2)
}

func (m *MockCache) SetFile(ctx context.Context, file models.File) error {
	args := m.Called(ctx, file)
	return args.Error(0)
}

func (m *MockCache) InvalidateFile(ctx context.Context, fileId string) error {
	args := m.Called(ctx, fileId)
	return args.Error(0)
}
