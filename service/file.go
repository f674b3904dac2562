package service

import (
	"context"
	"encoding/json"
	"time"
	"unicode/utf8"

	"github.com/Laisky/errors/v2"
	"go.uber.org/zap"

	"github.com/zlnvch/deskfolio/cache"
	"github.com/zlnvch/deskfolio/log"
	"github.com/zlnvch/deskfolio/models"
	"github.com/zlnvch/deskfolio/store"
)

// FileView is what a reader gets back. Content is nil for locked files.
type FileView struct {
	FileId    string
	FileName  string
	Content   *string
	IsLocked  bool
	Exists    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type WriteParams struct {
	FileId   string
	FileName string
	Content  string
	// Password nil keeps the current lock, blank removes it, otherwise it
	// becomes the new lock.
	Password       *string
	UnlockPassword *string
	Subject        Subject
	Meta           RequestMeta
}

type WriteResult struct {
	FileId   string
	FileName string
	Version  int
}

func textLength(s string) int {
	return utf8.RuneCountInString(s)
}

// lookupFile reads through the cache. Absent files are never cached.
func (s *Service) lookupFile(ctx context.Context, fileId string) (models.File, bool, error) {
	if s.Cache != nil {
		file, found, err := s.Cache.GetFile(ctx, fileId)
		if err != nil {
			log.Logger.Warn("file cache read failed", zap.String("fileId", fileId), zap.Error(err))
		} else if found {
			return file, true, nil
		}
	}

	file, found, err := s.fetchFile(ctx, fileId)
	if err != nil || !found {
		return file, found, err
	}

	if s.Cache != nil {
		if err := s.Cache.SetFile(ctx, file); err != nil {
			log.Logger.Warn("file cache write failed", zap.String("fileId", fileId), zap.Error(err))
		}
	}
	return file, true, nil
}

// fetchFile goes straight to the store.
func (s *Service) fetchFile(ctx context.Context, fileId string) (models.File, bool, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	file, err := s.Store.GetFile(storeCtx, fileId)
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			return models.File{}, false, nil
		}
		return models.File{}, false, errors.Wrapf(err, "get file %q", fileId)
	}
	return file, true, nil
}

func (s *Service) ReadFile(ctx context.Context, fileId string, subject Subject, meta RequestMeta) (FileView, error) {
	if fileId == "" {
		return FileView{}, newError(ErrValidation, "fileId is required")
	}
	if err := s.requireStore(); err != nil {
		return FileView{}, err
	}

	file, found, err := s.lookupFile(ctx, fileId)
	if err != nil {
		return FileView{}, err
	}

	if !found {
		s.recordAccess(ctx, fileId, models.ActionView, subject, meta, accessDetails{})
		empty := ""
		return FileView{FileId: fileId, Content: &empty}, nil
	}

	view := FileView{
		FileId:    file.FileId,
		FileName:  file.FileName,
		IsLocked:  file.IsLocked(),
		Exists:    true,
		CreatedAt: file.CreatedAt,
		UpdatedAt: file.UpdatedAt,
	}
	if !view.IsLocked {
		content := file.Content
		view.Content = &content
	}

	s.recordAccess(ctx, fileId, models.ActionView, subject, meta, accessDetails{
		fileName: file.FileName,
		fileSize: textLength(file.Content),
	})
	return view, nil
}

// UnlockFile returns the full view of a file when password opens its lock.
// Unlocked and absent files behave like ReadFile. The lock itself is left
// in place.
func (s *Service) UnlockFile(ctx context.Context, fileId string, password *string, subject Subject, meta RequestMeta) (FileView, error) {
	if fileId == "" {
		return FileView{}, newError(ErrValidation, "fileId is required")
	}
	if err := s.requireStore(); err != nil {
		return FileView{}, err
	}

	file, found, err := s.lookupFile(ctx, fileId)
	if err != nil {
		return FileView{}, err
	}
	if !found {
		s.recordAccess(ctx, fileId, models.ActionView, subject, meta, accessDetails{})
		empty := ""
		return FileView{FileId: fileId, Content: &empty}, nil
	}

	if err := checkUnlock(file, password); err != nil {
		log.Logger.Info("unlock rejected", zap.String("fileId", fileId), zap.Error(err))
		return FileView{}, err
	}

	content := file.Content
	s.recordAccess(ctx, fileId, models.ActionView, subject, meta, accessDetails{
		fileName: file.FileName,
		fileSize: textLength(file.Content),
	})
	return FileView{
		FileId:    file.FileId,
		FileName:  file.FileName,
		Content:   &content,
		IsLocked:  file.IsLocked(),
		Exists:    true,
		CreatedAt: file.CreatedAt,
		UpdatedAt: file.UpdatedAt,
	}, nil
}

func (s *Service) WriteFile(ctx context.Context, params WriteParams) (WriteResult, error) {
	if params.FileId == "" {
		return WriteResult{}, newError(ErrValidation, "fileId is required")
	}
	if params.FileName == "" {
		return WriteResult{}, newError(ErrValidation, "fileName is required")
	}
	if err := s.requireStore(); err != nil {
		return WriteResult{}, err
	}

	existing, exists, err := s.fetchFile(ctx, params.FileId)
	if err != nil {
		return WriteResult{}, err
	}

	if exists {
		if err := checkUnlock(existing, params.UnlockPassword); err != nil {
			log.Logger.Info("write to locked file rejected",
				zap.String("fileId", params.FileId),
				zap.Error(err))
			return WriteResult{}, err
		}
	}

	passwordHash, err := resolvePasswordHash(existing.PasswordHash, params.Password)
	if err != nil {
		return WriteResult{}, err
	}

	if exists && !params.Subject.IsGuest() && existing.Content != params.Content {
		savedAt := existing.UpdatedAt
		if savedAt.IsZero() {
			savedAt = existing.CreatedAt
		}
		snapshot := models.HistorySnapshot{
			FileId:   params.FileId,
			UserId:   params.Subject.Id,
			FileName: existing.FileName,
			Content:  existing.Content,
			Version:  existing.Version,
			SavedAt:  savedAt,
		}

		storeCtx, cancel := s.storeCtx(ctx)
		err := s.Store.AddFileHistory(storeCtx, snapshot)
		cancel()
		if err != nil {
			return WriteResult{}, errors.Wrapf(err, "save history for %q", params.FileId)
		}
	}

	// Stores keep CreatedAt from the first insert
	now := s.now()
	version := 1
	if exists {
		version = existing.Version + 1
	}

	file := models.File{
		FileId:       params.FileId,
		FileName:     params.FileName,
		Content:      params.Content,
		Version:      version,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	storeCtx, cancel := s.storeCtx(ctx)
	err = s.Store.UpsertFile(storeCtx, file)
	cancel()
	if err != nil {
		return WriteResult{}, errors.Wrapf(err, "save file %q", params.FileId)
	}

	action := models.ActionCreate
	if exists {
		action = models.ActionEdit
	}
	s.recordAccess(ctx, params.FileId, action, params.Subject, params.Meta, accessDetails{
		fileName:     params.FileName,
		fileSize:     textLength(params.Content),
		lengthChange: textLength(params.Content) - textLength(existing.Content),
	})

	s.fileChanged(ctx, models.FileEvent{
		Type:     models.FileUpdated,
		FileId:   params.FileId,
		FileName: params.FileName,
		Version:  version,
	})

	log.Logger.Info("file saved",
		zap.String("fileId", params.FileId),
		zap.Int("version", version),
		zap.Bool("locked", passwordHash != ""))

	return WriteResult{FileId: params.FileId, FileName: params.FileName, Version: version}, nil
}

// DeleteFile is idempotent: deleting an absent id still succeeds and is
// still audited.
func (s *Service) DeleteFile(ctx context.Context, fileId string, subject Subject, meta RequestMeta) error {
	if fileId == "" {
		return newError(ErrValidation, "fileId is required")
	}
	if err := s.requireStore(); err != nil {
		return err
	}

	existing, _, err := s.fetchFile(ctx, fileId)
	if err != nil {
		return err
	}

	s.recordAccess(ctx, fileId, models.ActionDelete, subject, meta, accessDetails{
		fileName: existing.FileName,
		fileSize: textLength(existing.Content),
	})

	storeCtx, cancel := s.storeCtx(ctx)
	err = s.Store.DeleteFile(storeCtx, fileId)
	cancel()
	if err != nil {
		return errors.Wrapf(err, "delete file %q", fileId)
	}

	// History deletion can span many batches, so it gets the request context
	// rather than a single round trip timeout.
	if err := s.Store.DeleteFileHistory(ctx, fileId); err != nil {
		return errors.Wrapf(err, "delete history for %q", fileId)
	}

	s.fileChanged(ctx, models.FileEvent{Type: models.FileDeleted, FileId: fileId})

	log.Logger.Info("file deleted", zap.String("fileId", fileId))
	return nil
}

// fileChanged drops the cached copy before returning so the next read sees
// the write, then broadcasts the event in the background.
func (s *Service) fileChanged(ctx context.Context, event models.FileEvent) {
	if s.Cache == nil {
		return
	}

	if err := s.Cache.InvalidateFile(ctx, event.FileId); err != nil {
		log.Logger.Warn("file cache invalidation failed", zap.String("fileId", event.FileId), zap.Error(err))
	}

	go func() {
		msgBytes, err := json.Marshal(event)
		if err != nil {
			return
		}
		if err := s.Cache.Publish(context.Background(), cache.FileChannel(event.FileId), msgBytes); err != nil {
			log.Logger.Warn("file event publish failed", zap.String("fileId", event.FileId), zap.Error(err))
		}
	}()
}

// FileHistory returns the caller's own snapshots, newest first.
func (s *Service) FileHistory(ctx context.Context, fileId string, subject Subject) ([]models.HistorySnapshot, error) {
	if fileId == "" {
		return nil, newError(ErrValidation, "fileId is required")
	}
	if err := s.requireStore(); err != nil {
		return nil, err
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	history, err := s.Store.GetFileHistory(storeCtx, fileId, subject.Id, maxHistoryEntries)
	if err != nil {
		return nil, errors.Wrapf(err, "get history for %q", fileId)
	}
	if history == nil {
		history = []models.HistorySnapshot{}
	}
	return history, nil
}

// FileAccessLogs returns the most recent entries for fileId, newest first.
// Any authenticated subject may read them.
func (s *Service) FileAccessLogs(ctx context.Context, fileId string, subject Subject) ([]models.AccessLogEntry, error) {
	if fileId == "" {
		return nil, newError(ErrValidation, "fileId is required")
	}
	if err := s.requireStore(); err != nil {
		return nil, err
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	logs, err := s.Store.GetAccessLogs(storeCtx, fileId, maxAccessLogEntries)
	if err != nil {
		return nil, errors.Wrapf(err, "get access logs for %q", fileId)
	}
	if logs == nil {
		logs = []models.AccessLogEntry{}
	}

	log.Logger.Debug("access logs read", zap.String("fileId", fileId), zap.String("userId", subject.Id))
	return logs, nil
}
