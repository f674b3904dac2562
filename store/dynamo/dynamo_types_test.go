package dynamo

import (
	"encoding/json"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zlnvch/deskfolio/models"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "USER#admin@example.com", userPK(" Admin@Example.com "))
	assert.Equal(t, "FILE#doc1", filePK("doc1"))
	assert.Equal(t, "HISTORY#doc1", historyPK("doc1"))
	assert.Equal(t, "ACCESS#doc1", accessPK("doc1"))
}

func TestHistorySK_OrdersByTimeWithinWriter(t *testing.T) {
	older := historySK("u1", time.UnixMilli(999), "b")
	newer := historySK("u1", time.UnixMilli(1000), "a")

	assert.True(t, strings.HasPrefix(older, historySKPrefix("u1")))
	assert.Less(t, older, newer)
	assert.False(t, strings.HasPrefix(historySK("u10", time.UnixMilli(1), "a"), historySKPrefix("u1")))
}

func TestHistorySK_ZeroTimeSortsFirst(t *testing.T) {
	zero := historySK("u1", time.Time{}, "a")
	assert.Equal(t, "u1#00000000000000000000#a", zero)
	assert.Less(t, zero, historySK("u1", time.UnixMilli(1), "a"))
	assert.Equal(t, zero, historySK("u1", time.Unix(-10, 0), "a"))
}

func TestFileRoundTrip(t *testing.T) {
	f := models.File{
		FileId:       "doc1",
		FileName:     "Doc",
		Content:      "abc",
		Version:      2,
		PasswordHash: "hash",
		CreatedAt:    time.UnixMilli(1000).UTC(),
		UpdatedAt:    time.UnixMilli(2000).UTC(),
	}

	df := fileToDynamo(f)
	assert.Equal(t, "FILE#doc1", df.PK)
	assert.Equal(t, fileSK, df.SK)
	assert.Equal(t, f, fileFromDynamo(df))
}

func TestZeroTimesStayZero(t *testing.T) {
	df := fileToDynamo(models.File{FileId: "x"})
	assert.Zero(t, df.CreatedAt)
	assert.True(t, fileFromDynamo(df).UpdatedAt.IsZero())
}

func TestDesktopRoundTrip(t *testing.T) {
	state := models.DesktopState{
		IconPositions: json.RawMessage(`{"a":{"x":1,"y":2}}`),
		DesktopItems:  json.RawMessage(`[]`),
		UpdatedAt:     time.UnixMilli(5000).UTC(),
	}

	dd := desktopToDynamo(state)
	assert.Equal(t, desktopPK, dd.PK)
	assert.Equal(t, state, desktopFromDynamo(dd))

	empty := desktopFromDynamo(dynamoDesktop{})
	assert.Nil(t, empty.IconPositions)
	assert.Nil(t, empty.DesktopItems)
}

func TestAccessLogUsesIdAsSortKey(t *testing.T) {
	entry := models.AccessLogEntry{Id: "0190a6c4-0000-7000-8000-000000000001", FileId: "doc1", Action: models.ActionView}
	da := accessLogToDynamo(entry)
	assert.Equal(t, "ACCESS#doc1", da.PK)
	assert.Equal(t, entry.Id, da.SK)
	assert.Equal(t, entry, accessLogFromDynamo(da))
}

func TestFileUpdateFields_CreatedAtOnlyOnInsert(t *testing.T) {
	created := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	df := fileToDynamo(models.File{
		FileId:    "doc1",
		FileName:  "notes.txt",
		Content:   "hello",
		Version:   1,
		CreatedAt: created,
		UpdatedAt: created,
	})

	set, setOnInsert, remove, err := fileUpdateFields(df)
	require.NoError(t, err)

	assert.NotContains(t, set, "CreatedAt")
	require.Contains(t, setOnInsert, "CreatedAt")
	createdAt, ok := setOnInsert["CreatedAt"].(*types.AttributeValueMemberN)
	require.True(t, ok)
	assert.Equal(t, strconv.FormatInt(created.UnixMilli(), 10), createdAt.Value)
	assert.Equal(t, []string{"PasswordHash"}, remove)

	input, err := buildUpdateInput("Deskfolio", df.PK, df.SK, set, setOnInsert, remove)
	require.NoError(t, err)
	expr := *input.UpdateExpression
	assert.Contains(t, expr, "#CreatedAt = if_not_exists(#CreatedAt, :CreatedAt)")
	assert.Contains(t, expr, "#UpdatedAt = :UpdatedAt")
	assert.True(t, strings.HasSuffix(expr, "REMOVE #PasswordHash"))
	assert.Equal(t, setOnInsert["CreatedAt"], input.ExpressionAttributeValues[":CreatedAt"])
	assert.Equal(t, "CreatedAt", input.ExpressionAttributeNames["#CreatedAt"])
}

func TestFileUpdateFields_KeepsPasswordHash(t *testing.T) {
	set, _, remove, err := fileUpdateFields(fileToDynamo(models.File{FileId: "doc1", PasswordHash: "hash"}))
	require.NoError(t, err)
	assert.Contains(t, set, "PasswordHash")
	assert.Empty(t, remove)
}

func TestBuildUpdateInput_NothingToUpdate(t *testing.T) {
	_, err := buildUpdateInput("Deskfolio", "FILE#doc1", fileSK, nil, nil, nil)
	assert.Error(t, err)
}
