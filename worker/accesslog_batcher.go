package worker

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/zlnvch/deskfolio/log"
	"github.com/zlnvch/deskfolio/models"
	"github.com/zlnvch/deskfolio/mq"
	"github.com/zlnvch/deskfolio/store"
)

// Largest batch a single store write accepts.
const accessLogBatchSize = 25

// AccessLogRetryMessage is the queue body for entries the store did not
// accept. Attempt counts how many times the batch has been through the queue.
type AccessLogRetryMessage struct {
	Entries []models.AccessLogEntry `json:"entries"`
	Attempt int                     `json:"attempt"`
}

type AccessLogBatcher struct {
	WriteCh            chan models.AccessLogEntry
	deskfolioStore     store.DeskfolioStore
	retryQueue         mq.MessageQueue
	tickerMilliseconds int
}

// NewAccessLogBatcher buffers entries and writes them in batches. retryQueue
// may be nil, in which case unprocessed entries are logged and dropped.
func NewAccessLogBatcher(deskfolioStore store.DeskfolioStore, retryQueue mq.MessageQueue, tickerMilliseconds int) *AccessLogBatcher {
	return &AccessLogBatcher{
		WriteCh:            make(chan models.AccessLogEntry, 1024), // buffer to absorb bursts
		deskfolioStore:     deskfolioStore,
		retryQueue:         retryQueue,
		tickerMilliseconds: tickerMilliseconds,
	}
}

// Submit queues entry without blocking. It reports false when the buffer is
// full; the caller then still owns the entry.
func (b *AccessLogBatcher) Submit(entry models.AccessLogEntry) bool {
	select {
	case b.WriteCh <- entry:
		return true
	default:
		log.Logger.Warn("access log buffer full",
			zap.String("fileId", entry.FileId),
			zap.String("action", string(entry.Action)))
		return false
	}
}

func (b *AccessLogBatcher) Run(shutdownCtx context.Context) {
	ticker := time.NewTicker(time.Duration(b.tickerMilliseconds) * time.Millisecond)
	defer ticker.Stop()

	batch := make([]models.AccessLogEntry, 0, accessLogBatchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Not derived from shutdownCtx so the final flush still completes
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		unprocessed, err := b.deskfolioStore.WriteAccessLogBatch(ctx, batch)
		if err != nil {
			log.Logger.Error("write access log batch", zap.Error(err), zap.Int("size", len(batch)))
		}
		if len(unprocessed) > 0 {
			b.requeue(ctx, AccessLogRetryMessage{Entries: unprocessed, Attempt: 1})
		}

		batch = batch[:0]
	}

	for {
		select {
		case entry := <-b.WriteCh:
			batch = append(batch, entry)
			if len(batch) == accessLogBatchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-shutdownCtx.Done():
			// Drain whatever was submitted before shutdown
			for {
				select {
				case entry := <-b.WriteCh:
					batch = append(batch, entry)
					if len(batch) == accessLogBatchSize {
						flush()
					}
					continue
				default:
				}
				break
			}
			flush()
			return
		}
	}
}

func (b *AccessLogBatcher) requeue(ctx context.Context, msg AccessLogRetryMessage) {
	if b.retryQueue == nil {
		log.Logger.Error("dropping unprocessed access log entries, no retry queue",
			zap.Int("count", len(msg.Entries)))
		return
	}

	body, err := json.Marshal(msg)
	if err != nil {
		log.Logger.Error("marshal access log retry message", zap.Error(err))
		return
	}
	if err := b.retryQueue.Send(ctx, string(body)); err != nil {
		log.Logger.Error("send access log retry message", zap.Error(err), zap.Int("count", len(msg.Entries)))
	}
}
