package ws

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/zlnvch/deskfolio/log"
	"github.com/zlnvch/deskfolio/service"
)

const (
	// Time allowed to write a file event or reply to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Inbound frames are subscribe/unsubscribe requests carrying one fileId.
	maxControlMessageSize = 1024

	controlMessagesPerSecond = 5
	controlMessageBurst      = 10

	// File events and replies queued per connection before events are dropped.
	eventQueueSize = 64

	maxFollowedFilesPerConnection = 50
)

type MessageHandler func(client *Client, messageType int, messageBytes []byte)

// NewClient builds a client for subject. Guests share a connection budget
// per remote address; authenticated subjects share one per id.
func NewClient(hub *Hub, conn *websocket.Conn, subject service.Subject, remoteIP string, handler MessageHandler) *Client {
	key := "user:" + subject.Id
	if subject.IsGuest() {
		key = "ip:" + remoteIP
	}
	return &Client{
		hub:           hub,
		conn:          conn,
		subject:       subject,
		key:           key,
		handler:       handler,
		followedFiles: make(map[string]struct{}),
		Send:          make(chan []byte, eventQueueSize),
		limiter:       rate.NewLimiter(rate.Limit(controlMessagesPerSecond), controlMessageBurst),
	}
}

// Client is one websocket connection following a set of files.
type Client struct {
	hub           *Hub
	conn          *websocket.Conn
	subject       service.Subject
	key           string
	handler       MessageHandler
	followedFiles map[string]struct{} // owned by the hub goroutine
	Send          chan []byte
	limiter       *rate.Limiter
}

// follow records fileId and reports whether it is newly followed. It refuses
// once the connection follows maxFollowedFilesPerConnection files.
func (c *Client) follow(fileId string) bool {
	if _, ok := c.followedFiles[fileId]; ok {
		return false
	}
	if len(c.followedFiles) >= maxFollowedFilesPerConnection {
		log.Logger.Info("follow limit reached",
			zap.String("key", c.key),
			zap.Int("max", maxFollowedFilesPerConnection))
		return false
	}
	c.followedFiles[fileId] = struct{}{}
	return true
}

func (c *Client) unfollow(fileId string) {
	delete(c.followedFiles, fileId)
}

// deliver queues payload without blocking and reports whether it was queued.
func (c *Client) deliver(payload []byte) bool {
	select {
	case c.Send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.CloseCh <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxControlMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		messageType, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Logger.Debug("ws close error", zap.String("key", c.key), zap.Error(err))
			}
			break
		}

		if !c.limiter.Allow() {
			log.Logger.Info("closing ws connection: control message rate exceeded", zap.String("key", c.key))
			break
		}

		if messageType != websocket.TextMessage {
			log.Logger.Debug("ignoring non-text ws frame", zap.String("key", c.key), zap.Int("type", messageType))
			continue
		}

		c.handler(c, messageType, messageBytes)
	}
}

func (c *Client) WritePump(shutdownCtx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub refused or dropped this connection
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Too many connections"),
				)
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Logger.Debug("failed to write file event", zap.String("key", c.key), zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-shutdownCtx.Done():
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "Websocket service shutting down"),
			)
			return
		}
	}
}
