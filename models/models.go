package models

import (
	"encoding/json"
	"time"
)

const GuestUserId = "guest"

type User struct {
	Id           string
	Email        string
	PasswordHash string
	Name         string
}

type File struct {
	FileId       string
	FileName     string
	Content      string
	Version      int
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (f File) IsLocked() bool {
	return f.PasswordHash != ""
}

type HistorySnapshot struct {
	FileId   string    `json:"-"`
	UserId   string    `json:"-"`
	FileName string    `json:"fileName"`
	Content  string    `json:"content"`
	Version  int       `json:"version"`
	SavedAt  time.Time `json:"savedAt"`
}

type AccessAction string

const (
	ActionView   AccessAction = "view"
	ActionCreate AccessAction = "create"
	ActionEdit   AccessAction = "edit"
	ActionDelete AccessAction = "delete"
)

type AccessLogEntry struct {
	Id        string       `json:"id"`
	FileId    string       `json:"fileId"`
	Action    AccessAction `json:"action"`
	UserId    string       `json:"userId"`
	IPAddress string       `json:"ipAddress"`
	UserAgent string       `json:"userAgent"`
	Timestamp time.Time    `json:"timestamp"`

	Browser        string `json:"browser"`
	BrowserVersion string `json:"browserVersion"`
	OS             string `json:"os"`
	Device         string `json:"device"`

	Referrer       string `json:"referrer,omitempty"`
	Origin         string `json:"origin,omitempty"`
	AcceptLanguage string `json:"acceptLanguage,omitempty"`
	AcceptEncoding string `json:"acceptEncoding,omitempty"`
	RequestMethod  string `json:"requestMethod,omitempty"`
	ContentType    string `json:"contentType,omitempty"`
	ContentLength  *int64 `json:"contentLength,omitempty"`

	FileName     string `json:"fileName,omitempty"`
	FileSize     int    `json:"fileSize"`
	LengthChange int    `json:"lengthChange"`
}

// DesktopState is persisted wholesale. The frontend owns the shape of both
// fields, so they are kept as raw JSON.
type DesktopState struct {
	IconPositions json.RawMessage `json:"iconPositions"`
	DesktopItems  json.RawMessage `json:"desktopItems"`
	UpdatedAt     time.Time       `json:"-"`
}

type FileEventType string

const (
	FileUpdated FileEventType = "file_updated"
	FileDeleted FileEventType = "file_deleted"
)

// FileEvent is broadcast to live subscribers of a file. It never carries
// content, so locked files leak nothing.
type FileEvent struct {
	Type     FileEventType `json:"type"`
	FileId   string        `json:"fileId"`
	FileName string        `json:"fileName,omitempty"`
	Version  int           `json:"version,omitempty"`
}
