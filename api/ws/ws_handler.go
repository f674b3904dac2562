package ws

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zlnvch/deskfolio/log"
	"github.com/zlnvch/deskfolio/service"
)

const (
	subprotocol     = "deskfolio-v1"
	maxFileIdLength = 256
)

type Handler struct {
	Service *service.Service
	Hub     *Hub
}

func NewHandler(svc *service.Service, hub *Hub) *Handler {
	return &Handler{
		Service: svc,
		Hub:     hub,
	}
}

// NewWsUpgrader accepts any origin when allowedOrigin is empty.
func (h *Handler) NewWsUpgrader(allowedOrigin string) websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" {
				return true
			}
			return r.Header.Get("Origin") == allowedOrigin
		},
		Subprotocols: []string{subprotocol},
	}
}

// tokenFromProtocols reads "deskfolio-v1, <token>" from Sec-WebSocket-Protocol.
// Browsers cannot set custom headers on a websocket handshake.
func tokenFromProtocols(r *http.Request) string {
	parts := strings.Split(r.Header.Get("Sec-WebSocket-Protocol"), ",")
	if len(parts) != 2 {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// ServeWS upgrades the connection. A missing or bad token is not an error:
// the connection follows files as guest.
func (h *Handler) ServeWS(wsUpgrader websocket.Upgrader, w http.ResponseWriter, r *http.Request, shutdownCtx context.Context) {
	subject := h.Service.OptionalSubject(tokenFromProtocols(r))

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Logger.Debug("failed to upgrade ws connection", zap.Error(err))
		return
	}

	remoteIP := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		remoteIP = host
	}

	client := NewClient(h.Hub, conn, subject, remoteIP, h.HandleWsMessage)
	h.Hub.OpenCh <- client

	go client.ReadPump()
	go client.WritePump(shutdownCtx)
}

// Websocket message structs
type message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type fileRefMessage struct {
	FileId string `json:"fileId"`
}

type responseMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func (h *Handler) HandleWsMessage(client *Client, messageType int, messageBytes []byte) {
	var msg message
	if err := json.Unmarshal(messageBytes, &msg); err != nil {
		log.Logger.Debug("invalid ws JSON", zap.Error(err))
		return
	}

	var resp responseMessage

	switch msg.Type {
	case "subscribe", "unsubscribe":
		var ref fileRefMessage
		if err := json.Unmarshal(msg.Data, &ref); err != nil {
			log.Logger.Debug("invalid ws file reference", zap.String("type", msg.Type), zap.Error(err))
			return
		}
		resp = h.handleFileSubscription(client, msg.Type, ref)

	default:
		log.Logger.Debug("unknown ws message type", zap.String("type", msg.Type))
	}

	if resp.Type != "" {
		respBytes, err := json.Marshal(resp)
		if err != nil {
			log.Logger.Error("failed to marshal ws response", zap.Error(err))
			return
		}
		client.deliver(respBytes)
	}
}

func (h *Handler) handleFileSubscription(client *Client, msgType string, ref fileRefMessage) responseMessage {
	resp := responseMessage{Type: msgType + "_response"}

	if ref.FileId == "" || len(ref.FileId) > maxFileIdLength {
		resp.Data = map[string]any{"success": false, "fileId": ref.FileId, "error": "invalid fileId"}
		return resp
	}

	sub := subscription{client: client, fileId: ref.FileId}
	if msgType == "subscribe" {
		h.Hub.SubscribeCh <- sub
	} else {
		h.Hub.UnsubscribeCh <- sub
	}
	resp.Data = map[string]any{"success": true, "fileId": ref.FileId}
	return resp
}
