package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zlnvch/deskfolio/models"
	"github.com/zlnvch/deskfolio/store"
)

func TestCreateUser_DuplicateEmail(t *testing.T) {
	s := NewMemoryDeskfolioStore()
	ctx := context.Background()

	user, err := s.CreateUser(ctx, models.User{Email: "Ann@Example.com", PasswordHash: "h"})
	require.NoError(t, err)
	assert.NotEmpty(t, user.Id)

	_, err = s.CreateUser(ctx, models.User{Email: "ann@example.com"})
	assert.ErrorIs(t, err, store.ErrConditionFailed)

	got, err := s.GetUserByEmail(ctx, "ANN@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.Id, got.Id)
}

func TestUpsertFile_KeepsCreatedAt(t *testing.T) {
	s := NewMemoryDeskfolioStore()
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpsertFile(ctx, models.File{FileId: "f", Version: 1, CreatedAt: t0, UpdatedAt: t0}))
	require.NoError(t, s.UpsertFile(ctx, models.File{FileId: "f", Version: 2, CreatedAt: t0.Add(time.Hour), UpdatedAt: t0.Add(time.Hour)}))

	file, err := s.GetFile(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, 2, file.Version)
	assert.Equal(t, t0, file.CreatedAt)
	assert.Equal(t, t0.Add(time.Hour), file.UpdatedAt)
}

func TestGetFileHistory_ScopedAndOrdered(t *testing.T) {
	s := NewMemoryDeskfolioStore()
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.AddFileHistory(ctx, models.HistorySnapshot{FileId: "f", UserId: "u1", Version: i + 1, SavedAt: t0.Add(time.Duration(i) * time.Minute)}))
	}
	require.NoError(t, s.AddFileHistory(ctx, models.HistorySnapshot{FileId: "f", UserId: "u2", Version: 9, SavedAt: t0}))

	history, err := s.GetFileHistory(ctx, "f", "u1", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 3, history[0].Version)
	assert.Equal(t, 2, history[1].Version)

	require.NoError(t, s.DeleteFileHistory(ctx, "f"))
	history, err = s.GetFileHistory(ctx, "f", "u1", 50)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestGetDesktopState_NotFound(t *testing.T) {
	s := NewMemoryDeskfolioStore()

	_, err := s.GetDesktopState(context.Background())
	assert.ErrorIs(t, err, store.ErrItemNotFound)
}
