package ws

import (
	"context"

	"go.uber.org/zap"

	"github.com/zlnvch/deskfolio/cache"
	"github.com/zlnvch/deskfolio/log"
)

type subscription struct {
	client *Client
	fileId string
}

type fileMessage struct {
	fileId  string
	payload []byte
}

// Hub tracks live connections and the files they follow. It holds one cache
// subscription per followed file and fans events out to every follower. All
// maps are owned by the Run goroutine.
type Hub struct {
	deskfolioCache         cache.DeskfolioCache
	OpenCh                 chan *Client
	CloseCh                chan *Client
	SubscribeCh            chan subscription
	UnsubscribeCh          chan subscription
	broadcastCh            chan fileMessage
	keyToClients           map[string]map[*Client]struct{}
	fileToClients          map[string]map[*Client]struct{}
	fileToSubscriberCancel map[string]context.CancelFunc
}

func NewHub(deskfolioCache cache.DeskfolioCache) *Hub {
	return &Hub{
		deskfolioCache:         deskfolioCache,
		OpenCh:                 make(chan *Client, 256),
		CloseCh:                make(chan *Client, 256),
		SubscribeCh:            make(chan subscription, 1024),
		UnsubscribeCh:          make(chan subscription, 1024),
		broadcastCh:            make(chan fileMessage, 1024),
		keyToClients:           make(map[string]map[*Client]struct{}),
		fileToClients:          make(map[string]map[*Client]struct{}),
		fileToSubscriberCancel: make(map[string]context.CancelFunc),
	}
}

const maxConnectionsPerKey = 3

func (h *Hub) Run(shutdownCtx context.Context) {
	for {
		select {
		case client := <-h.OpenCh:
			if _, ok := h.keyToClients[client.key]; !ok {
				h.keyToClients[client.key] = make(map[*Client]struct{})
			}

			if len(h.keyToClients[client.key]) >= maxConnectionsPerKey {
				log.Logger.Info("connection limit reached",
					zap.String("key", client.key),
					zap.Int("max", maxConnectionsPerKey))
				close(client.Send)
				continue
			}

			h.keyToClients[client.key][client] = struct{}{}

		case client := <-h.CloseCh:
			for fileId := range client.followedFiles {
				h.removeFollower(fileId, client)
			}
			delete(h.keyToClients[client.key], client)
			if len(h.keyToClients[client.key]) == 0 {
				delete(h.keyToClients, client.key)
			}

		case sub := <-h.SubscribeCh:
			if !sub.client.follow(sub.fileId) {
				continue
			}
			if h.fileToClients[sub.fileId] == nil {
				ctx, cancel := context.WithCancel(shutdownCtx)
				fileId := sub.fileId
				channel := cache.FileChannel(fileId)

				err := h.deskfolioCache.Subscribe(ctx, channel, func(payload []byte) {
					select {
					case h.broadcastCh <- fileMessage{fileId: fileId, payload: payload}:
					case <-ctx.Done():
					}
				})
				if err != nil {
					log.Logger.Error("failed to subscribe to file channel", zap.String("channel", channel), zap.Error(err))
					cancel()
					sub.client.unfollow(fileId)
					continue
				}

				h.fileToClients[fileId] = make(map[*Client]struct{})
				h.fileToSubscriberCancel[fileId] = cancel
			}
			h.fileToClients[sub.fileId][sub.client] = struct{}{}

		case unsub := <-h.UnsubscribeCh:
			unsub.client.unfollow(unsub.fileId)
			h.removeFollower(unsub.fileId, unsub.client)

		case msg := <-h.broadcastCh:
			for client := range h.fileToClients[msg.fileId] {
				if !client.deliver(msg.payload) {
					log.Logger.Warn("dropping file event for slow client", zap.String("key", client.key))
				}
			}

		case <-shutdownCtx.Done():
			for fileId, cancel := range h.fileToSubscriberCancel {
				cancel()
				delete(h.fileToSubscriberCancel, fileId)
			}
			return
		}
	}
}

func (h *Hub) removeFollower(fileId string, client *Client) {
	delete(h.fileToClients[fileId], client)
	if len(h.fileToClients[fileId]) == 0 {
		if cancel, ok := h.fileToSubscriberCancel[fileId]; ok {
			cancel()
			delete(h.fileToSubscriberCancel, fileId)
		}
		delete(h.fileToClients, fileId)
	}
}
