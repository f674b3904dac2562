package dynamo

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/zlnvch/deskfolio/models"
)

const (
	userPrefix    = "USER#"
	filePrefix    = "FILE#"
	historyPrefix = "HISTORY#"
	accessPrefix  = "ACCESS#"

	userSK    = "PROFILE"
	fileSK    = "META"
	desktopPK = "DESKTOP"
	desktopSK = "STATE"
)

func userPK(email string) string {
	return userPrefix + strings.ToLower(strings.TrimSpace(email))
}

func filePK(fileId string) string {
	return filePrefix + fileId
}

func historyPK(fileId string) string {
	return historyPrefix + fileId
}

func accessPK(fileId string) string {
	return accessPrefix + fileId
}

// historySKPrefix scopes a history partition to one writer. The full sort key
// appends the zero-padded save time so a descending query returns the newest
// snapshots first.
func historySKPrefix(userId string) string {
	return userId + "#"
}

func historySK(userId string, savedAt time.Time, suffix string) string {
	return fmt.Sprintf("%s%020d#%s", historySKPrefix(userId), max(toMillis(savedAt), 0), suffix)
}

// Times are stored as unix milliseconds; zero means unset.
func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

type dynamoUser struct {
	PK           string `dynamodbav:"PK"`
	SK           string `dynamodbav:"SK"`
	Id           string `dynamodbav:"Id"`
	Email        string `dynamodbav:"Email"`
	PasswordHash string `dynamodbav:"PasswordHash"`
	Name         string `dynamodbav:"Name,omitempty"`
}

func userToDynamo(u models.User) dynamoUser {
	return dynamoUser{
		PK:           userPK(u.Email),
		SK:           userSK,
		Id:           u.Id,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Name:         u.Name,
	}
}

func userFromDynamo(du dynamoUser) models.User {
	return models.User{
		Id:           du.Id,
		Email:        du.Email,
		PasswordHash: du.PasswordHash,
		Name:         du.Name,
	}
}

type dynamoFile struct {
	PK           string `dynamodbav:"PK"`
	SK           string `dynamodbav:"SK"`
	FileId       string `dynamodbav:"FileId"`
	FileName     string `dynamodbav:"FileName"`
	Content      string `dynamodbav:"Content"`
	Version      int    `dynamodbav:"Version"`
	PasswordHash string `dynamodbav:"PasswordHash,omitempty"`
	CreatedAt    int64  `dynamodbav:"CreatedAt"`
	UpdatedAt    int64  `dynamodbav:"UpdatedAt"`
}

func fileToDynamo(f models.File) dynamoFile {
	return dynamoFile{
		PK:           filePK(f.FileId),
		SK:           fileSK,
		FileId:       f.FileId,
		FileName:     f.FileName,
		Content:      f.Content,
		Version:      f.Version,
		PasswordHash: f.PasswordHash,
		CreatedAt:    toMillis(f.CreatedAt),
		UpdatedAt:    toMillis(f.UpdatedAt),
	}
}

func fileFromDynamo(df dynamoFile) models.File {
	return models.File{
		FileId:       df.FileId,
		FileName:     df.FileName,
		Content:      df.Content,
		Version:      df.Version,
		PasswordHash: df.PasswordHash,
		CreatedAt:    fromMillis(df.CreatedAt),
		UpdatedAt:    fromMillis(df.UpdatedAt),
	}
}

type dynamoHistory struct {
	PK       string `dynamodbav:"PK"`
	SK       string `dynamodbav:"SK"`
	FileId   string `dynamodbav:"FileId"`
	UserId   string `dynamodbav:"UserId"`
	FileName string `dynamodbav:"FileName"`
	Content  string `dynamodbav:"Content"`
	Version  int    `dynamodbav:"Version"`
	SavedAt  int64  `dynamodbav:"SavedAt"`
}

func historyToDynamo(h models.HistorySnapshot, suffix string) dynamoHistory {
	return dynamoHistory{
		PK:       historyPK(h.FileId),
		SK:       historySK(h.UserId, h.SavedAt, suffix),
		FileId:   h.FileId,
		UserId:   h.UserId,
		FileName: h.FileName,
		Content:  h.Content,
		Version:  h.Version,
		SavedAt:  toMillis(h.SavedAt),
	}
}

func historyFromDynamo(dh dynamoHistory) models.HistorySnapshot {
	return models.HistorySnapshot{
		FileId:   dh.FileId,
		UserId:   dh.UserId,
		FileName: dh.FileName,
		Content:  dh.Content,
		Version:  dh.Version,
		SavedAt:  fromMillis(dh.SavedAt),
	}
}

// Access log sort keys are the entry's UUIDv7, which orders by creation time.
type dynamoAccessLog struct {
	PK             string `dynamodbav:"PK"`
	SK             string `dynamodbav:"SK"`
	FileId         string `dynamodbav:"FileId"`
	Action         string `dynamodbav:"Action"`
	UserId         string `dynamodbav:"UserId"`
	IPAddress      string `dynamodbav:"IPAddress"`
	UserAgent      string `dynamodbav:"UserAgent"`
	Timestamp      int64  `dynamodbav:"Timestamp"`
	Browser        string `dynamodbav:"Browser,omitempty"`
	BrowserVersion string `dynamodbav:"BrowserVersion,omitempty"`
	OS             string `dynamodbav:"OS,omitempty"`
	Device         string `dynamodbav:"Device,omitempty"`
	Referrer       string `dynamodbav:"Referrer,omitempty"`
	Origin         string `dynamodbav:"Origin,omitempty"`
	AcceptLanguage string `dynamodbav:"AcceptLanguage,omitempty"`
	AcceptEncoding string `dynamodbav:"AcceptEncoding,omitempty"`
	RequestMethod  string `dynamodbav:"RequestMethod,omitempty"`
	ContentType    string `dynamodbav:"ContentType,omitempty"`
	ContentLength  *int64 `dynamodbav:"ContentLength,omitempty"`
	FileName       string `dynamodbav:"FileName,omitempty"`
	FileSize       int    `dynamodbav:"FileSize"`
	LengthChange   int    `dynamodbav:"LengthChange"`
}

func accessLogToDynamo(e models.AccessLogEntry) dynamoAccessLog {
	return dynamoAccessLog{
		PK:             accessPK(e.FileId),
		SK:             e.Id,
		FileId:         e.FileId,
		Action:         string(e.Action),
		UserId:         e.UserId,
		IPAddress:      e.IPAddress,
		UserAgent:      e.UserAgent,
		Timestamp:      toMillis(e.Timestamp),
		Browser:        e.Browser,
		BrowserVersion: e.BrowserVersion,
		OS:             e.OS,
		Device:         e.Device,
		Referrer:       e.Referrer,
		Origin:         e.Origin,
		AcceptLanguage: e.AcceptLanguage,
		AcceptEncoding: e.AcceptEncoding,
		RequestMethod:  e.RequestMethod,
		ContentType:    e.ContentType,
		ContentLength:  e.ContentLength,
		FileName:       e.FileName,
		FileSize:       e.FileSize,
		LengthChange:   e.LengthChange,
	}
}

func accessLogFromDynamo(da dynamoAccessLog) models.AccessLogEntry {
	return models.AccessLogEntry{
		Id:             da.SK,
		FileId:         da.FileId,
		Action:         models.AccessAction(da.Action),
		UserId:         da.UserId,
		IPAddress:      da.IPAddress,
		UserAgent:      da.UserAgent,
		Timestamp:      fromMillis(da.Timestamp),
		Browser:        da.Browser,
		BrowserVersion: da.BrowserVersion,
		OS:             da.OS,
		Device:         da.Device,
		Referrer:       da.Referrer,
		Origin:         da.Origin,
		AcceptLanguage: da.AcceptLanguage,
		AcceptEncoding: da.AcceptEncoding,
		RequestMethod:  da.RequestMethod,
		ContentType:    da.ContentType,
		ContentLength:  da.ContentLength,
		FileName:       da.FileName,
		FileSize:       da.FileSize,
		LengthChange:   da.LengthChange,
	}
}

// Desktop fields are stored as JSON strings; DynamoDB would otherwise turn
// every number in the layout into a decimal attribute.
type dynamoDesktop struct {
	PK            string `dynamodbav:"PK"`
	SK            string `dynamodbav:"SK"`
	IconPositions string `dynamodbav:"IconPositions"`
	DesktopItems  string `dynamodbav:"DesktopItems"`
	UpdatedAt     int64  `dynamodbav:"UpdatedAt"`
}

func desktopToDynamo(d models.DesktopState) dynamoDesktop {
	return dynamoDesktop{
		PK:            desktopPK,
		SK:            desktopSK,
		IconPositions: string(d.IconPositions),
		DesktopItems:  string(d.DesktopItems),
		UpdatedAt:     toMillis(d.UpdatedAt),
	}
}

func desktopFromDynamo(dd dynamoDesktop) models.DesktopState {
	state := models.DesktopState{UpdatedAt: fromMillis(dd.UpdatedAt)}
	if dd.IconPositions != "" {
		state.IconPositions = json.RawMessage(dd.IconPositions)
	}
	if dd.DesktopItems != "" {
		state.DesktopItems = json.RawMessage(dd.DesktopItems)
	}
	return state
}
