package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Laisky/errors/v2"
	"go.uber.org/zap"

	"github.com/zlnvch/deskfolio/log"
	"github.com/zlnvch/deskfolio/mq"
	"github.com/zlnvch/deskfolio/store"
)

// Batches that keep failing are dropped after this many passes through the queue.
const maxAccessLogAttempts = 5

// Seconds a received retry batch stays hidden from other consumers
const visibilityTimeout = 60

type MQConsumer struct {
	accessLogQueue mq.MessageQueue
	deskfolioStore store.DeskfolioStore
}

func NewMQConsumer(accessLogQueue mq.MessageQueue, deskfolioStore store.DeskfolioStore) *MQConsumer {
	return &MQConsumer{
		accessLogQueue: accessLogQueue,
		deskfolioStore: deskfolioStore,
	}
}

func (mqConsumer *MQConsumer) Run(shutdownCtx context.Context) {
	for {
		msg, err := mqConsumer.accessLogQueue.Receive(shutdownCtx, visibilityTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			log.Logger.Error("mqConsumer receive", zap.Error(err))
			select {
			case <-shutdownCtx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		if msg == nil {
			continue
		}

		mqConsumer.handle(msg)
	}
}

func (mqConsumer *MQConsumer) handle(msg *mq.Message) {
	// timeout should be a little less than queue visibility timeout
	ctx, cancel := context.WithTimeout(context.Background(), (visibilityTimeout-1)*time.Second)
	defer cancel()

	var retryMsg AccessLogRetryMessage
	if err := json.Unmarshal([]byte(msg.Body), &retryMsg); err != nil {
		log.Logger.Warn("discarding malformed access log retry message", zap.Error(err))
		mqConsumer.delete(ctx, msg)
		return
	}

	unprocessed, err := mqConsumer.deskfolioStore.WriteAccessLogBatch(ctx, retryMsg.Entries)
	if err != nil {
		log.Logger.Error("retry access log batch", zap.Error(err), zap.Int("attempt", retryMsg.Attempt))
	}

	if len(unprocessed) > 0 {
		if retryMsg.Attempt >= maxAccessLogAttempts {
			log.Logger.Error("giving up on access log entries",
				zap.Int("count", len(unprocessed)),
				zap.Int("attempt", retryMsg.Attempt))
		} else {
			body, err := json.Marshal(AccessLogRetryMessage{Entries: unprocessed, Attempt: retryMsg.Attempt + 1})
			if err == nil {
				err = mqConsumer.accessLogQueue.Send(ctx, string(body))
			}
			if err != nil {
				// Leave the message to reappear after the visibility timeout
				log.Logger.Error("requeue access log entries", zap.Error(err))
				return
			}
		}
	}

	mqConsumer.delete(ctx, msg)
}

func (mqConsumer *MQConsumer) delete(ctx context.Context, msg *mq.Message) {
	if err := mqConsumer.accessLogQueue.Delete(ctx, msg); err != nil {
		log.Logger.Error("mqConsumer delete", zap.Error(err))
	}
}
