package redis

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/zlnvch/deskfolio/log"
	"github.com/zlnvch/deskfolio/models"
)

type RedisDeskfolioCache struct {
	client redis.UniversalClient
}

func NewRedisDeskfolioCache(ctx context.Context, devMode bool, redisEndpoint string) (*RedisDeskfolioCache, error) {
	opts := &redis.Options{Addr: redisEndpoint}
	if !devMode {
		// AWS elasticache endpoints require TLS
		opts.TLSConfig = &tls.Config{}
	}
	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrapf(err, "ping redis at %s", redisEndpoint)
	}

	return &RedisDeskfolioCache{client: client}, nil
}

func (redisCache *RedisDeskfolioCache) Publish(ctx context.Context, channel string, message []byte) error {
	return redisCache.client.Publish(ctx, channel, message).Err()
}

func (redisCache *RedisDeskfolioCache) Subscribe(ctx context.Context, channel string, handler func(message []byte)) error {
	pubsub := redisCache.client.Subscribe(ctx, channel)
	// Ensure subscription is established
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return errors.Wrapf(err, "subscribe %s", channel)
	}

	ch := pubsub.Channel()

	go func() {
		defer func() {
			pubsub.Close()
			log.Logger.Debug("pubsub channel closed", zap.String("channel", channel))
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()

	return nil
}

// Key helpers use hash tags for cluster compatibility
func buildFileKey(fileId string) string {
	return "file:{" + fileId + "}"
}

const cacheTTL = 10 * time.Minute

type cachedFile struct {
	FileId       string    `json:"fileId"`
	FileName     string    `json:"fileName"`
	Content      string    `json:"content"`
	Version      int       `json:"version"`
	PasswordHash string    `json:"passwordHash,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (redisCache *RedisDeskfolioCache) GetFile(ctx context.Context, fileId string) (models.File, bool, error) {
	data, err := redisCache.client.Get(ctx, buildFileKey(fileId)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.File{}, false, nil
		}
		return models.File{}, false, err
	}

	var cf cachedFile
	if err := json.Unmarshal(data, &cf); err != nil {
		// Corrupt entry: drop it and report a miss
		redisCache.client.Del(ctx, buildFileKey(fileId))
		return models.File{}, false, nil
	}

	return models.File{
		FileId:       cf.FileId,
		FileName:     cf.FileName,
		Content:      cf.Content,
		Version:      cf.Version,
		PasswordHash: cf.PasswordHash,
		CreatedAt:    cf.CreatedAt,
		UpdatedAt:    cf.UpdatedAt,
	}, true, nil
}

func (redisCache *RedisDeskfolioCache) SetFile(ctx context.Context, file models.File) error {
	data, err := json.Marshal(cachedFile{
		FileId:       file.FileId,
		FileName:     file.FileName,
		Content:      file.Content,
		Version:      file.Version,
		PasswordHash: file.PasswordHash,
		CreatedAt:    file.CreatedAt,
		UpdatedAt:    file.UpdatedAt,
	})
	if err != nil {
		return err
	}
	return redisCache.client.Set(ctx, buildFileKey(file.FileId), data, cacheTTL).Err()
}

func (redisCache *RedisDeskfolioCache) InvalidateFile(ctx context.Context, fileId string) error {
	return redisCache.client.Del(ctx, buildFileKey(fileId)).Err()
}

func (redisCache *RedisDeskfolioCache) Close() error {
	return redisCache.client.Close()
}
