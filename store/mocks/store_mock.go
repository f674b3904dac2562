package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/zlnvch/deskfolio/models"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	args := m.Called(ctx, user)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *MockStore) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *MockStore) GetFile(ctx context.Context, fileId string) (models.File, error) {
	args := m.Called(ctx, fileId)
	return args.Get(0).(models.File), args.Error(1)
}

func (m *MockStore) UpsertFile(ctx context.Context, file models.File) error {
	args := m.Called(ctx, file)
	return args.Error(0)
}

func (m *MockStore) DeleteFile(ctx context.Context, fileId string) error {
	args := m.Called(ctx, fileId)
	return args.Error(0)
}

func (m *MockStore) AddFileHistory(ctx context.Context, snapshot models.HistorySnapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

func (m *MockStore) GetFileHistory(ctx context.Context, fileId string, userId string, limit int) ([]models.HistorySnapshot, error) {
	args := m.Called(ctx, fileId, userId, limit)
	return args.Get(0).([]models.HistorySnapshot), args.Error(1)
}

func (m *MockStore) DeleteFileHistory(ctx context.Context, fileId string) error {
	args := m.Called(ctx, fileId)
	return args.Error(0)
}

func (m *MockStore) WriteAccessLogBatch(ctx context.Context, entries []models.AccessLogEntry) ([]models.AccessLogEntry, error) {
	args := m.Called(ctx, entries)
	return args.Get(0).([]models.AccessLogEntry), args.Error(1)
}

func (m *MockStore) GetAccessLogs(ctx context.Context, fileId string, limit int) ([]models.AccessLogEntry, error) {
	args := m.Called(ctx, fileId, limit)
	return args.Get(0).([]models.AccessLogEntry), args.Error(1)
}

func (m *MockStore) GetDesktopState(ctx context.Context) (models.DesktopState, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.DesktopState), args.Error(1)
}

func (m *MockStore) SaveDesktopState(ctx context.Context, state models.DesktopState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

func (m *MockStore) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
