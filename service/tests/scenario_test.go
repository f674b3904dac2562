package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zlnvch/deskfolio/models"
	"github.com/zlnvch/deskfolio/service"
	"github.com/zlnvch/deskfolio/store/memory"
	"github.com/zlnvch/deskfolio/worker"
)

func setupMemoryService(t *testing.T) (*service.Service, *memory.MemoryDeskfolioStore, *worker.AccessLogBatcher) {
	memStore := memory.NewMemoryDeskfolioStore()
	accessLogBatcher := worker.NewAccessLogBatcher(memStore, nil, 1000)

	svc := service.NewService(memStore, nil, accessLogBatcher, testJWTConfig(), time.Second)
	clock := fixedNow
	svc.SetClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})
	return svc, memStore, accessLogBatcher
}

func TestLockedDocumentScenario(t *testing.T) {
	svc, _, batcher := setupMemoryService(t)
	ctx := context.Background()

	result, err := svc.WriteFile(ctx, service.WriteParams{
		FileId:   "doc1",
		FileName: "notes.txt",
		Content:  "hello",
		Password: ptr("abc"),
		Subject:  service.GuestSubject,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Version)

	view, err := svc.ReadFile(ctx, "doc1", service.GuestSubject, service.RequestMeta{})
	require.NoError(t, err)
	assert.True(t, view.IsLocked)
	assert.Nil(t, view.Content)

	_, err = svc.WriteFile(ctx, service.WriteParams{
		FileId:         "doc1",
		FileName:       "notes.txt",
		Content:        "hello v2",
		UnlockPassword: ptr("wrong"),
		Subject:        service.GuestSubject,
	})
	assert.ErrorIs(t, err, service.ErrWrongUnlockPassword)

	result, err = svc.WriteFile(ctx, service.WriteParams{
		FileId:         "doc1",
		FileName:       "notes.txt",
		Content:        "hello v2",
		UnlockPassword: ptr("abc"),
		Subject:        service.GuestSubject,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Version)

	view, err = svc.ReadFile(ctx, "doc1", service.GuestSubject, service.RequestMeta{})
	require.NoError(t, err)
	assert.True(t, view.IsLocked)

	var actions []models.AccessAction
	for _, entry := range drainEntries(batcher) {
		actions = append(actions, entry.Action)
	}
	assert.Equal(t, []models.AccessAction{models.ActionCreate, models.ActionView, models.ActionEdit, models.ActionView}, actions)
}

func TestVersionsAndHistoryAcrossWriters(t *testing.T) {
	svc, _, _ := setupMemoryService(t)
	ctx := context.Background()
	user2 := service.Subject{Id: "user2"}

	write := func(subject service.Subject, content string) int {
		result, err := svc.WriteFile(ctx, service.WriteParams{FileId: "doc1", FileName: "a.txt", Content: content, Subject: subject})
		require.NoError(t, err)
		return result.Version
	}

	assert.Equal(t, 1, write(user1, "one"))
	assert.Equal(t, 2, write(user1, "two"))
	assert.Equal(t, 3, write(user2, "three"))
	assert.Equal(t, 4, write(user1, "three"))
	assert.Equal(t, 5, write(service.GuestSubject, "five"))

	history, err := svc.FileHistory(ctx, "doc1", user1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "one", history[0].Content)
	assert.Equal(t, 1, history[0].Version)

	history, err = svc.FileHistory(ctx, "doc1", user2)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "two", history[0].Content)
}

func TestDeleteThenReadBehavesAsNeverWritten(t *testing.T) {
	svc, memStore, _ := setupMemoryService(t)
	ctx := context.Background()

	for _, content := range []string{"a", "b", "c"} {
		_, err := svc.WriteFile(ctx, service.WriteParams{FileId: "doc1", FileName: "a.txt", Content: content, Subject: user1})
		require.NoError(t, err)
	}
	history, err := svc.FileHistory(ctx, "doc1", user1)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	require.NoError(t, svc.DeleteFile(ctx, "doc1", user1, service.RequestMeta{}))

	view, err := svc.ReadFile(ctx, "doc1", user1, service.RequestMeta{})
	require.NoError(t, err)
	assert.False(t, view.Exists)
	assert.Equal(t, "", *view.Content)

	history, err = svc.FileHistory(ctx, "doc1", user1)
	require.NoError(t, err)
	assert.Empty(t, history)

	_, err = memStore.GetFile(ctx, "doc1")
	assert.Error(t, err)

	result, err := svc.WriteFile(ctx, service.WriteParams{FileId: "doc1", FileName: "a.txt", Content: "fresh", Subject: user1})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Version)
}

func TestUnlockFile(t *testing.T) {
	svc, _, batcher := setupMemoryService(t)
	ctx := context.Background()

	_, err := svc.WriteFile(ctx, service.WriteParams{FileId: "doc1", FileName: "s.txt", Content: "secret", Password: ptr("abc"), Subject: user1})
	require.NoError(t, err)
	drainEntries(batcher)

	_, err = svc.UnlockFile(ctx, "doc1", nil, user1, service.RequestMeta{})
	assert.ErrorIs(t, err, service.ErrFileLocked)

	_, err = svc.UnlockFile(ctx, "doc1", ptr("nope"), user1, service.RequestMeta{})
	assert.ErrorIs(t, err, service.ErrWrongUnlockPassword)
	assert.Empty(t, drainEntries(batcher))

	view, err := svc.UnlockFile(ctx, "doc1", ptr("abc"), user1, service.RequestMeta{})
	require.NoError(t, err)
	require.NotNil(t, view.Content)
	assert.Equal(t, "secret", *view.Content)
	assert.True(t, view.IsLocked)

	entries := drainEntries(batcher)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ActionView, entries[0].Action)
}
