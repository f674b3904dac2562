package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/gofrs/uuid/v5"

	"github.com/zlnvch/deskfolio/models"
	"github.com/zlnvch/deskfolio/store"
)

// MemoryDeskfolioStore keeps everything in process memory. Nothing survives a
// restart; it backs local development and tests.
type MemoryDeskfolioStore struct {
	mu         sync.RWMutex
	users      map[string]models.User
	files      map[string]models.File
	history    map[string][]models.HistorySnapshot
	accessLogs map[string][]models.AccessLogEntry
	desktop    *models.DesktopState
}

func NewMemoryDeskfolioStore() *MemoryDeskfolioStore {
	return &MemoryDeskfolioStore{
		users:      make(map[string]models.User),
		files:      make(map[string]models.File),
		history:    make(map[string][]models.HistorySnapshot),
		accessLogs: make(map[string][]models.AccessLogEntry),
	}
}

func (m *MemoryDeskfolioStore) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user.Email = strings.ToLower(user.Email)
	if _, ok := m.users[user.Email]; ok {
		return models.User{}, store.ErrConditionFailed
	}
	if user.Id == "" {
		userId, err := uuid.NewV4()
		if err != nil {
			return models.User{}, err
		}
		user.Id = userId.String()
	}
	m.users[user.Email] = user
	return user, nil
}

func (m *MemoryDeskfolioStore) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[strings.ToLower(email)]
	if !ok {
		return models.User{}, store.ErrItemNotFound
	}
	return user, nil
}

func (m *MemoryDeskfolioStore) GetFile(ctx context.Context, fileId string) (models.File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	file, ok := m.files[fileId]
	if !ok {
		return models.File{}, store.ErrItemNotFound
	}
	return file, nil
}

func (m *MemoryDeskfolioStore) UpsertFile(ctx context.Context, file models.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.files[file.FileId]; ok {
		file.CreatedAt = existing.CreatedAt
	} else if file.CreatedAt.IsZero() {
		file.CreatedAt = file.UpdatedAt
	}
	m.files[file.FileId] = file
	return nil
}

func (m *MemoryDeskfolioStore) DeleteFile(ctx context.Context, fileId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.files, fileId)
	return nil
}

func (m *MemoryDeskfolioStore) AddFileHistory(ctx context.Context, snapshot models.HistorySnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history[snapshot.FileId] = append(m.history[snapshot.FileId], snapshot)
	return nil
}

func (m *MemoryDeskfolioStore) GetFileHistory(ctx context.Context, fileId string, userId string, limit int) ([]models.HistorySnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []models.HistorySnapshot{}
	for _, snapshot := range m.history[fileId] {
		if snapshot.UserId == userId {
			result = append(result, snapshot)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].SavedAt.After(result[j].SavedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryDeskfolioStore) DeleteFileHistory(ctx context.Context, fileId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.history, fileId)
	return nil
}

func (m *MemoryDeskfolioStore) WriteAccessLogBatch(ctx context.Context, entries []models.AccessLogEntry) ([]models.AccessLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, entry := range entries {
		m.accessLogs[entry.FileId] = append(m.accessLogs[entry.FileId], entry)
	}
	return []models.AccessLogEntry{}, nil
}

func (m *MemoryDeskfolioStore) GetAccessLogs(ctx context.Context, fileId string, limit int) ([]models.AccessLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := append([]models.AccessLogEntry{}, m.accessLogs[fileId]...)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryDeskfolioStore) GetDesktopState(ctx context.Context) (models.DesktopState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.desktop == nil {
		return models.DesktopState{}, store.ErrItemNotFound
	}
	return *m.desktop, nil
}

func (m *MemoryDeskfolioStore) SaveDesktopState(ctx context.Context, state models.DesktopState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.desktop = &state
	return nil
}

func (m *MemoryDeskfolioStore) Close(ctx context.Context) error {
	return nil
}
