package dynamo

import (
	"context"
	"slices"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/gofrs/uuid/v5"

	"github.com/zlnvch/deskfolio/models"
)

const deleteThrottle = 100 * time.Millisecond

type DynamoDeskfolioStore struct {
	client    *dynamodb.Client
	tableName string
}

func NewDynamoDeskfolioStore(ctx context.Context, devMode bool, dynamodbEndpoint string, tableName string) (*DynamoDeskfolioStore, error) {
	client, err := newDynamoDBClient(ctx, devMode, dynamodbEndpoint)
	if err != nil {
		return nil, err
	}

	tables, err := getTables(client, ctx)
	if err != nil {
		return nil, err
	}

	if !slices.Contains(tables, tableName) {
		return nil, errors.Errorf("given table name '%s' not found in dynamodb", tableName)
	}

	return &DynamoDeskfolioStore{client: client, tableName: tableName}, nil
}

func (dynamoStore *DynamoDeskfolioStore) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	if user.Id == "" {
		userId, err := uuid.NewV4()
		if err != nil {
			return models.User{}, err
		}
		user.Id = userId.String()
	}

	if err := insertItem(dynamoStore, ctx, userToDynamo(user)); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (dynamoStore *DynamoDeskfolioStore) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	du, err := getItem[dynamoUser](dynamoStore, ctx, userPK(email), userSK, false)
	if err != nil {
		return models.User{}, err
	}
	return userFromDynamo(du), nil
}

func (dynamoStore *DynamoDeskfolioStore) GetFile(ctx context.Context, fileId string) (models.File, error) {
	df, err := getItem[dynamoFile](dynamoStore, ctx, filePK(fileId), fileSK, true)
	if err != nil {
		return models.File{}, err
	}
	return fileFromDynamo(df), nil
}

func (dynamoStore *DynamoDeskfolioStore) UpsertFile(ctx context.Context, file models.File) error {
	df := fileToDynamo(file)
	set, setOnInsert, remove, err := fileUpdateFields(df)
	if err != nil {
		return err
	}
	return upsertItem(dynamoStore, ctx, df.PK, df.SK, set, setOnInsert, remove)
}

// fileUpdateFields splits a file item into overwritten attributes, CreatedAt
// which is only written on insert, and a cleared password hash.
func fileUpdateFields(df dynamoFile) (set, setOnInsert map[string]types.AttributeValue, remove []string, err error) {
	avMap, err := attributevalue.MarshalMap(df)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "marshal error")
	}

	set = map[string]types.AttributeValue{
		"FileId":    avMap["FileId"],
		"FileName":  avMap["FileName"],
		"Content":   avMap["Content"],
		"Version":   avMap["Version"],
		"UpdatedAt": avMap["UpdatedAt"],
	}
	if df.PasswordHash != "" {
		set["PasswordHash"] = avMap["PasswordHash"]
	} else {
		remove = append(remove, "PasswordHash")
	}
	setOnInsert = map[string]types.AttributeValue{
		"CreatedAt": avMap["CreatedAt"],
	}
	return set, setOnInsert, remove, nil
}

func (dynamoStore *DynamoDeskfolioStore) DeleteFile(ctx context.Context, fileId string) error {
	return deleteItem(dynamoStore, ctx, filePK(fileId), fileSK)
}

func (dynamoStore *DynamoDeskfolioStore) AddFileHistory(ctx context.Context, snapshot models.HistorySnapshot) error {
	suffix, err := uuid.NewV4()
	if err != nil {
		return err
	}
	return putItem(dynamoStore, ctx, historyToDynamo(snapshot, suffix.String()))
}

func (dynamoStore *DynamoDeskfolioStore) GetFileHistory(ctx context.Context, fileId string, userId string, limit int) ([]models.HistorySnapshot, error) {
	// Newest first
	items, err := queryByPK[dynamoHistory](dynamoStore, ctx, historyPK(fileId), historySKPrefix(userId), false, int32(limit))
	if err != nil {
		return nil, err
	}

	snapshots := make([]models.HistorySnapshot, 0, len(items))
	for _, item := range items {
		snapshots = append(snapshots, historyFromDynamo(item))
	}
	return snapshots, nil
}

func (dynamoStore *DynamoDeskfolioStore) DeleteFileHistory(ctx context.Context, fileId string) error {
	return batchDeleteByPKThrottled(dynamoStore, ctx, historyPK(fileId), deleteThrottle)
}

func (dynamoStore *DynamoDeskfolioStore) WriteAccessLogBatch(ctx context.Context, entries []models.AccessLogEntry) ([]models.AccessLogEntry, error) {
	var failed []models.AccessLogEntry

	for i := 0; i < len(entries); i += batchWriteLimit {
		chunk := entries[i:min(i+batchWriteLimit, len(entries))]

		writeRequests := make([]types.WriteRequest, 0, len(chunk))
		for _, entry := range chunk {
			avMap, err := attributevalue.MarshalMap(accessLogToDynamo(entry))
			if err != nil {
				return append(failed, entries[i:]...), errors.Wrap(err, "marshal error")
			}
			writeRequests = append(writeRequests, types.WriteRequest{
				PutRequest: &types.PutRequest{Item: avMap},
			})
		}

		unprocessed, err := writeBatchRequests[dynamoAccessLog](dynamoStore, ctx, writeRequests)
		for _, u := range unprocessed {
			failed = append(failed, accessLogFromDynamo(u))
		}
		if err != nil {
			return append(failed, entries[i+len(chunk):]...), err
		}
	}

	return failed, nil
}

func (dynamoStore *DynamoDeskfolioStore) GetAccessLogs(ctx context.Context, fileId string, limit int) ([]models.AccessLogEntry, error) {
	items, err := queryByPK[dynamoAccessLog](dynamoStore, ctx, accessPK(fileId), "", false, int32(limit))
	if err != nil {
		return nil, err
	}

	entries := make([]models.AccessLogEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, accessLogFromDynamo(item))
	}
	return entries, nil
}

func (dynamoStore *DynamoDeskfolioStore) GetDesktopState(ctx context.Context) (models.DesktopState, error) {
	dd, err := getItem[dynamoDesktop](dynamoStore, ctx, desktopPK, desktopSK, false)
	if err != nil {
		return models.DesktopState{}, err
	}
	return desktopFromDynamo(dd), nil
}

func (dynamoStore *DynamoDeskfolioStore) SaveDesktopState(ctx context.Context, state models.DesktopState) error {
	return putItem(dynamoStore, ctx, desktopToDynamo(state))
}

func (dynamoStore *DynamoDeskfolioStore) Close(ctx context.Context) error {
	return nil
}
