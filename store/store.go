package store

import (
	"context"

	"github.com/Laisky/errors/v2"
	"github.com/zlnvch/deskfolio/models"
)

type DeskfolioStore interface {
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)

	GetFile(ctx context.Context, fileId string) (models.File, error)
	// UpsertFile writes every field of file except CreatedAt, which is only
	// set when the record is inserted. An empty PasswordHash removes the lock.
	UpsertFile(ctx context.Context, file models.File) error
	DeleteFile(ctx context.Context, fileId string) error

	AddFileHistory(ctx context.Context, snapshot models.HistorySnapshot) error
	GetFileHistory(ctx context.Context, fileId string, userId string, limit int) ([]models.HistorySnapshot, error)
	DeleteFileHistory(ctx context.Context, fileId string) error

	// WriteAccessLogBatch returns the entries that could not be written.
	WriteAccessLogBatch(ctx context.Context, entries []models.AccessLogEntry) ([]models.AccessLogEntry, error)
	GetAccessLogs(ctx context.Context, fileId string, limit int) ([]models.AccessLogEntry, error)

	GetDesktopState(ctx context.Context) (models.DesktopState, error)
	SaveDesktopState(ctx context.Context, state models.DesktopState) error

	Close(ctx context.Context) error
}

// Custom error types for clarity
var (
	ErrItemNotFound    = errors.New("item does not exist")
	ErrConditionFailed = errors.New("condition not met")
)
