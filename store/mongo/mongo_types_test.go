package mongo

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/zlnvch/deskfolio/models"
)

func TestUserToMongo_NormalizesEmail(t *testing.T) {
	mu := userToMongo(models.User{Email: "  Admin@Example.COM ", PasswordHash: "hash"})
	assert.Equal(t, "admin@example.com", mu.Email)
	assert.Equal(t, "hash", mu.Password)
	assert.True(t, mu.Id.IsZero())

	oid := primitive.NewObjectID()
	mu = userToMongo(models.User{Id: oid.Hex(), Email: "a@b.c"})
	assert.Equal(t, oid, mu.Id)
	assert.Equal(t, oid.Hex(), userFromMongo(mu).Id)
}

func TestDesktopState_SurvivesBSON(t *testing.T) {
	state := models.DesktopState{
		IconPositions: json.RawMessage(`{"notes":{"x":10,"y":20}}`),
		DesktopItems:  json.RawMessage(`[{"id":"notes","type":"file"}]`),
		UpdatedAt:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	md, err := desktopToMongo(state)
	require.NoError(t, err)
	assert.Equal(t, desktopDocId, md.Id)

	raw, err := bson.Marshal(md)
	require.NoError(t, err)

	var decoded mongoDesktop
	require.NoError(t, bson.Unmarshal(raw, &decoded))

	got, err := desktopFromMongo(decoded)
	require.NoError(t, err)
	assert.JSONEq(t, string(state.IconPositions), string(got.IconPositions))
	assert.JSONEq(t, string(state.DesktopItems), string(got.DesktopItems))
	assert.True(t, state.UpdatedAt.Equal(got.UpdatedAt))
}

func TestDesktopState_EmptyFields(t *testing.T) {
	md, err := desktopToMongo(models.DesktopState{})
	require.NoError(t, err)
	assert.Nil(t, md.IconPositions)

	got, err := desktopFromMongo(md)
	require.NoError(t, err)
	assert.Nil(t, got.IconPositions)
	assert.Nil(t, got.DesktopItems)
}

func TestDesktopState_InvalidJSON(t *testing.T) {
	_, err := desktopToMongo(models.DesktopState{IconPositions: json.RawMessage(`{`)})
	assert.Error(t, err)
}

func TestAccessLogRoundTrip(t *testing.T) {
	length := int64(42)
	entry := models.AccessLogEntry{
		Id:            "0190a6c4-0000-7000-8000-000000000001",
		FileId:        "doc1",
		Action:        models.ActionEdit,
		UserId:        "u1",
		Timestamp:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Browser:       "Firefox",
		ContentLength: &length,
		FileName:      "Doc",
		FileSize:      3,
		LengthChange:  -2,
	}

	assert.Equal(t, entry, accessLogFromMongo(accessLogToMongo(entry)))
}

func TestFileUpdate_CreatedAtOnlyOnInsert(t *testing.T) {
	created := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	update := fileUpdate(models.File{
		FileId:    "doc1",
		FileName:  "notes.txt",
		Content:   "hello",
		Version:   1,
		CreatedAt: created,
		UpdatedAt: created,
	})

	setOnInsert, ok := update["$setOnInsert"].(bson.M)
	require.True(t, ok)
	assert.Equal(t, created, setOnInsert["createdAt"])

	set, ok := update["$set"].(bson.M)
	require.True(t, ok)
	assert.NotContains(t, set, "createdAt")
	assert.Equal(t, created, set["updatedAt"])
	assert.NotContains(t, set, "passwordHash")
	assert.Equal(t, bson.M{"passwordHash": ""}, update["$unset"])
}

func TestFileUpdate_KeepsPasswordHash(t *testing.T) {
	update := fileUpdate(models.File{FileId: "doc1", PasswordHash: "hash"})

	assert.Equal(t, "hash", update["$set"].(bson.M)["passwordHash"])
	assert.NotContains(t, update, "$unset")
}
