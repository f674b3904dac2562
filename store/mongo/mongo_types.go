package mongo

import (
	"encoding/json"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/zlnvch/deskfolio/models"
)

const (
	usersCollection      = "users"
	filesCollection      = "files"
	historyCollection    = "fileHistory"
	accessLogsCollection = "fileAccessLogs"
	desktopCollection    = "desktop"

	desktopDocId = "desktop_state"
)

// The users collection keeps the bcrypt hash under "password".
type mongoUser struct {
	Id       primitive.ObjectID `bson:"_id,omitempty"`
	Email    string             `bson:"email"`
	Password string             `bson:"password"`
	Name     string             `bson:"name,omitempty"`
}

func userToMongo(u models.User) mongoUser {
	mu := mongoUser{
		Email:    strings.ToLower(strings.TrimSpace(u.Email)),
		Password: u.PasswordHash,
		Name:     u.Name,
	}
	if oid, err := primitive.ObjectIDFromHex(u.Id); err == nil {
		mu.Id = oid
	}
	return mu
}

func userFromMongo(mu mongoUser) models.User {
	return models.User{
		Id:           mu.Id.Hex(),
		Email:        mu.Email,
		PasswordHash: mu.Password,
		Name:         mu.Name,
	}
}

type mongoFile struct {
	FileId       string    `bson:"fileId"`
	FileName     string    `bson:"fileName"`
	Content      string    `bson:"content"`
	Version      int       `bson:"version"`
	PasswordHash string    `bson:"passwordHash,omitempty"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

func fileFromMongo(mf mongoFile) models.File {
	return models.File{
		FileId:       mf.FileId,
		FileName:     mf.FileName,
		Content:      mf.Content,
		Version:      mf.Version,
		PasswordHash: mf.PasswordHash,
		CreatedAt:    mf.CreatedAt.UTC(),
		UpdatedAt:    mf.UpdatedAt.UTC(),
	}
}

// fileUpdate is the upsert document for a file. createdAt is only written
// when the upsert inserts.
func fileUpdate(file models.File) bson.M {
	set := bson.M{
		"fileId":    file.FileId,
		"fileName":  file.FileName,
		"content":   file.Content,
		"version":   file.Version,
		"updatedAt": file.UpdatedAt,
	}
	update := bson.M{
		"$setOnInsert": bson.M{"createdAt": file.CreatedAt},
	}
	if file.PasswordHash != "" {
		set["passwordHash"] = file.PasswordHash
	} else {
		update["$unset"] = bson.M{"passwordHash": ""}
	}
	update["$set"] = set
	return update
}

type mongoHistory struct {
	FileId   string    `bson:"fileId"`
	UserId   string    `bson:"userId"`
	FileName string    `bson:"fileName"`
	Content  string    `bson:"content"`
	Version  int       `bson:"version"`
	SavedAt  time.Time `bson:"savedAt"`
}

func historyToMongo(h models.HistorySnapshot) mongoHistory {
	return mongoHistory{
		FileId:   h.FileId,
		UserId:   h.UserId,
		FileName: h.FileName,
		Content:  h.Content,
		Version:  h.Version,
		SavedAt:  h.SavedAt,
	}
}

func historyFromMongo(mh mongoHistory) models.HistorySnapshot {
	return models.HistorySnapshot{
		FileId:   mh.FileId,
		UserId:   mh.UserId,
		FileName: mh.FileName,
		Content:  mh.Content,
		Version:  mh.Version,
		SavedAt:  mh.SavedAt.UTC(),
	}
}

type mongoAccessLog struct {
	Id             string    `bson:"_id"`
	FileId         string    `bson:"fileId"`
	Action         string    `bson:"action"`
	UserId         string    `bson:"userId"`
	IPAddress      string    `bson:"ipAddress"`
	UserAgent      string    `bson:"userAgent"`
	Timestamp      time.Time `bson:"timestamp"`
	Browser        string    `bson:"browser,omitempty"`
	BrowserVersion string    `bson:"browserVersion,omitempty"`
	OS             string    `bson:"os,omitempty"`
	Device         string    `bson:"device,omitempty"`
	Referrer       string    `bson:"referrer,omitempty"`
	Origin         string    `bson:"origin,omitempty"`
	AcceptLanguage string    `bson:"acceptLanguage,omitempty"`
	AcceptEncoding string    `bson:"acceptEncoding,omitempty"`
	RequestMethod  string    `bson:"requestMethod,omitempty"`
	ContentType    string    `bson:"contentType,omitempty"`
	ContentLength  *int64    `bson:"contentLength,omitempty"`
	FileName       string    `bson:"fileName,omitempty"`
	FileSize       int       `bson:"fileSize"`
	LengthChange   int       `bson:"lengthChange"`
}

func accessLogToMongo(e models.AccessLogEntry) mongoAccessLog {
	return mongoAccessLog{
		Id:             e.Id,
		FileId:         e.FileId,
		Action:         string(e.Action),
		UserId:         e.UserId,
		IPAddress:      e.IPAddress,
		UserAgent:      e.UserAgent,
		Timestamp:      e.Timestamp,
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

func accessLogFromMongo(ma mongoAccessLog) models.AccessLogEntry {
	return models.AccessLogEntry{
		Id:             ma.Id,
		FileId:         ma.FileId,
		Action:         models.AccessAction(ma.Action),
		UserId:         ma.UserId,
		IPAddress:      ma.IPAddress,
		UserAgent:      ma.UserAgent,
		Timestamp:      ma.Timestamp.UTC(),
		Browser:        ma.Browser,
		BrowserVersion: ma.BrowserVersion,
		OS:             ma.OS,
		Device:         ma.Device,
		Referrer:       ma.Referrer,
		Origin:         ma.Origin,
		AcceptLanguage: ma.AcceptLanguage,
		AcceptEncoding: ma.AcceptEncoding,
		RequestMethod:  ma.RequestMethod,
		ContentType:    ma.ContentType,
		ContentLength:  ma.ContentLength,
		FileName:       ma.FileName,
		FileSize:       ma.FileSize,
		LengthChange:   ma.LengthChange,
	}
}

// Desktop layout fields are stored as native documents so the collection
// stays readable from the mongo shell.
type mongoDesktop struct {
	Id            string    `bson:"_id"`
	IconPositions any       `bson:"iconPositions"`
	DesktopItems  any       `bson:"desktopItems"`
	UpdatedAt     time.Time `bson:"updatedAt"`
}

func desktopToMongo(d models.DesktopState) (mongoDesktop, error) {
	md := mongoDesktop{Id: desktopDocId, UpdatedAt: d.UpdatedAt}
	if err := decodeRaw(d.IconPositions, &md.IconPositions); err != nil {
		return mongoDesktop{}, err
	}
	if err := decodeRaw(d.DesktopItems, &md.DesktopItems); err != nil {
		return mongoDesktop{}, err
	}
	return md, nil
}

func desktopFromMongo(md mongoDesktop) (models.DesktopState, error) {
	state := models.DesktopState{UpdatedAt: md.UpdatedAt.UTC()}
	var err error
	if state.IconPositions, err = encodeRaw(md.IconPositions); err != nil {
		return models.DesktopState{}, err
	}
	if state.DesktopItems, err = encodeRaw(md.DesktopItems); err != nil {
		return models.DesktopState{}, err
	}
	return state, nil
}

func decodeRaw(raw json.RawMessage, out *any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func encodeRaw(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(normalizeBSON(v))
}

// normalizeBSON turns driver container types back into plain maps and slices
// so they marshal as ordinary JSON objects and arrays.
func normalizeBSON(v any) any {
	switch t := v.(type) {
	case primitive.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = normalizeBSON(e.Value)
		}
		return m
	case primitive.M:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = normalizeBSON(e)
		}
		return m
	case primitive.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeBSON(e)
		}
		return out
	default:
		return v
	}
}
