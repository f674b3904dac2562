package service

import (
	"context"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/zlnvch/deskfolio/log"
	"github.com/zlnvch/deskfolio/models"
)

// RequestMeta is what the transport knows about the caller.
type RequestMeta struct {
	IPAddress      string
	UserAgent      string
	Referrer       string
	Origin         string
	AcceptLanguage string
	AcceptEncoding string
	Method         string
	ContentType    string
	ContentLength  *int64
}

type accessDetails struct {
	fileName     string
	fileSize     int
	lengthChange int
}

func (s *Service) newAccessLogEntry(fileId string, action models.AccessAction, subject Subject, meta RequestMeta, details accessDetails) models.AccessLogEntry {
	userId := subject.Id
	if subject.IsGuest() {
		userId = models.GuestUserId
	}
	userAgent := meta.UserAgent
	if userAgent == "" {
		userAgent = "unknown"
	}
	ipAddress := meta.IPAddress
	if ipAddress == "" {
		ipAddress = "unknown"
	}
	ua := ParseUserAgent(userAgent)

	return models.AccessLogEntry{
		Id:             uuid.Must(uuid.NewV7()).String(),
		FileId:         fileId,
		Action:         action,
		UserId:         userId,
		IPAddress:      ipAddress,
		UserAgent:      userAgent,
		Timestamp:      s.now(),
		Browser:        ua.Browser,
		BrowserVersion: ua.BrowserVersion,
		OS:             ua.OS,
		Device:         ua.Device,
		Referrer:       meta.Referrer,
		Origin:         meta.Origin,
		AcceptLanguage: meta.AcceptLanguage,
		AcceptEncoding: meta.AcceptEncoding,
		RequestMethod:  meta.Method,
		ContentType:    meta.ContentType,
		ContentLength:  meta.ContentLength,
		FileName:       details.fileName,
		FileSize:       details.fileSize,
		LengthChange:   details.lengthChange,
	}
}

// recordAccess hands the entry to the batcher. Without a batcher, or when its
// buffer is full, the entry is written straight to the store.
func (s *Service) recordAccess(ctx context.Context, fileId string, action models.AccessAction, subject Subject, meta RequestMeta, details accessDetails) {
	entry := s.newAccessLogEntry(fileId, action, subject, meta, details)
	if s.AccessLogBatcher != nil && s.AccessLogBatcher.Submit(entry) {
		return
	}
	if s.Store == nil {
		return
	}

	// The entry is written even if the caller went away
	storeCtx, cancel := s.storeCtx(context.WithoutCancel(ctx))
	defer cancel()

	failed, err := s.Store.WriteAccessLogBatch(storeCtx, []models.AccessLogEntry{entry})
	if err != nil || len(failed) > 0 {
		log.Logger.Error("failed to write access log entry",
			zap.String("fileId", fileId),
			zap.String("action", string(action)),
			zap.Error(err))
	}
}
