// Package mongo implements store.DeskfolioStore on MongoDB.
package mongo

import (
	"context"
	"time"

	"github.com/Laisky/errors/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"github.com/zlnvch/deskfolio/models"
	"github.com/zlnvch/deskfolio/store"
)

const (
	serverSelectionTimeout = 3 * time.Second
	connectTimeout         = 5 * time.Second
	maxPoolSize            = 1
)

type MongoDeskfolioStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoDeskfolioStore connects, pings the primary and ensures indexes.
// An empty dbName uses the database named in the URI.
func NewMongoDeskfolioStore(ctx context.Context, uri string, dbName string) (*MongoDeskfolioStore, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(serverSelectionTimeout).
		SetConnectTimeout(connectTimeout).
		SetMaxPoolSize(maxPoolSize)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, errors.Wrap(err, "connect mongo")
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, "ping mongo")
	}

	if dbName == "" {
		cs, err := connstring.ParseAndValidate(uri)
		if err != nil {
			_ = client.Disconnect(ctx)
			return nil, errors.Wrap(err, "parse mongo uri")
		}
		dbName = cs.Database
	}
	if dbName == "" {
		dbName = "deskfolio"
	}

	mongoStore := &MongoDeskfolioStore{client: client, db: client.Database(dbName)}
	if err := mongoStore.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return mongoStore, nil
}

func (mongoStore *MongoDeskfolioStore) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		usersCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		filesCollection: {
			{Keys: bson.D{{Key: "fileId", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		historyCollection: {
			{Keys: bson.D{{Key: "fileId", Value: 1}, {Key: "userId", Value: 1}, {Key: "savedAt", Value: -1}}},
		},
		accessLogsCollection: {
			{Keys: bson.D{{Key: "fileId", Value: 1}, {Key: "timestamp", Value: -1}}},
		},
	}

	for colName, idx := range indexes {
		if _, err := mongoStore.db.Collection(colName).Indexes().CreateMany(ctx, idx); err != nil {
			return errors.Wrapf(err, "create indexes for %s", colName)
		}
	}
	return nil
}

func (mongoStore *MongoDeskfolioStore) col(name string) *mongo.Collection {
	return mongoStore.db.Collection(name)
}

func (mongoStore *MongoDeskfolioStore) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	mu := userToMongo(user)
	if mu.Id.IsZero() {
		mu.Id = primitive.NewObjectID()
	}

	if _, err := mongoStore.col(usersCollection).InsertOne(ctx, mu); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.User{}, store.ErrConditionFailed
		}
		return models.User{}, errors.Wrapf(err, "insert user %q", mu.Email)
	}
	return userFromMongo(mu), nil
}

func (mongoStore *MongoDeskfolioStore) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	var mu mongoUser
	err := mongoStore.col(usersCollection).
		FindOne(ctx, bson.M{"email": userToMongo(models.User{Email: email}).Email}).
		Decode(&mu)
	if err != nil {
		return models.User{}, notFound(err, "find user")
	}
	return userFromMongo(mu), nil
}

func (mongoStore *MongoDeskfolioStore) GetFile(ctx context.Context, fileId string) (models.File, error) {
	var mf mongoFile
	if err := mongoStore.col(filesCollection).FindOne(ctx, bson.M{"fileId": fileId}).Decode(&mf); err != nil {
		return models.File{}, notFound(err, "find file")
	}
	return fileFromMongo(mf), nil
}

func (mongoStore *MongoDeskfolioStore) UpsertFile(ctx context.Context, file models.File) error {
	_, err := mongoStore.col(filesCollection).UpdateOne(ctx,
		bson.M{"fileId": file.FileId},
		fileUpdate(file),
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return errors.Wrapf(err, "upsert file %q", file.FileId)
	}
	return nil
}

func (mongoStore *MongoDeskfolioStore) DeleteFile(ctx context.Context, fileId string) error {
	if _, err := mongoStore.col(filesCollection).DeleteOne(ctx, bson.M{"fileId": fileId}); err != nil {
		return errors.Wrapf(err, "delete file %q", fileId)
	}
	return nil
}

func (mongoStore *MongoDeskfolioStore) AddFileHistory(ctx context.Context, snapshot models.HistorySnapshot) error {
	if _, err := mongoStore.col(historyCollection).InsertOne(ctx, historyToMongo(snapshot)); err != nil {
		return errors.Wrapf(err, "insert history for %q", snapshot.FileId)
	}
	return nil
}

func (mongoStore *MongoDeskfolioStore) GetFileHistory(ctx context.Context, fileId string, userId string, limit int) ([]models.HistorySnapshot, error) {
	opts := options.Find().SetSort(bson.D{{Key: "savedAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := mongoStore.col(historyCollection).Find(ctx, bson.M{"fileId": fileId, "userId": userId}, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "find history for %q", fileId)
	}

	var docs []mongoHistory
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode history")
	}

	snapshots := make([]models.HistorySnapshot, 0, len(docs))
	for _, doc := range docs {
		snapshots = append(snapshots, historyFromMongo(doc))
	}
	return snapshots, nil
}

func (mongoStore *MongoDeskfolioStore) DeleteFileHistory(ctx context.Context, fileId string) error {
	if _, err := mongoStore.col(historyCollection).DeleteMany(ctx, bson.M{"fileId": fileId}); err != nil {
		return errors.Wrapf(err, "delete history for %q", fileId)
	}
	return nil
}

// WriteAccessLogBatch inserts unordered so one bad entry does not block the
// rest. Entries already present (a retried batch) count as written.
func (mongoStore *MongoDeskfolioStore) WriteAccessLogBatch(ctx context.Context, entries []models.AccessLogEntry) ([]models.AccessLogEntry, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	docs := make([]any, 0, len(entries))
	for _, entry := range entries {
		docs = append(docs, accessLogToMongo(entry))
	}

	_, err := mongoStore.col(accessLogsCollection).InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err == nil {
		return nil, nil
	}

	var bulkErr mongo.BulkWriteException
	if !errors.As(err, &bulkErr) {
		return entries, errors.Wrap(err, "insert access logs")
	}

	var failed []models.AccessLogEntry
	for _, we := range bulkErr.WriteErrors {
		if we.Code == 11000 {
			continue
		}
		if we.Index >= 0 && we.Index < len(entries) {
			failed = append(failed, entries[we.Index])
		}
	}
	if len(failed) == 0 && bulkErr.WriteConcernError == nil {
		return nil, nil
	}
	return failed, errors.Wrap(err, "insert access logs")
}

func (mongoStore *MongoDeskfolioStore) GetAccessLogs(ctx context.Context, fileId string, limit int) ([]models.AccessLogEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := mongoStore.col(accessLogsCollection).Find(ctx, bson.M{"fileId": fileId}, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "find access logs for %q", fileId)
	}

	var docs []mongoAccessLog
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode access logs")
	}

	entries := make([]models.AccessLogEntry, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, accessLogFromMongo(doc))
	}
	return entries, nil
}

func (mongoStore *MongoDeskfolioStore) GetDesktopState(ctx context.Context) (models.DesktopState, error) {
	var md mongoDesktop
	if err := mongoStore.col(desktopCollection).FindOne(ctx, bson.M{"_id": desktopDocId}).Decode(&md); err != nil {
		return models.DesktopState{}, notFound(err, "find desktop state")
	}
	return desktopFromMongo(md)
}

func (mongoStore *MongoDeskfolioStore) SaveDesktopState(ctx context.Context, state models.DesktopState) error {
	md, err := desktopToMongo(state)
	if err != nil {
		return errors.Wrap(err, "encode desktop state")
	}

	_, err = mongoStore.col(desktopCollection).ReplaceOne(ctx,
		bson.M{"_id": desktopDocId},
		md,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return errors.Wrap(err, "save desktop state")
	}
	return nil
}

func (mongoStore *MongoDeskfolioStore) Close(ctx context.Context) error {
	return mongoStore.client.Disconnect(ctx)
}

func notFound(err error, msg string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.ErrItemNotFound
	}
	return errors.Wrap(err, msg)
}
