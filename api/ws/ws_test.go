package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	cachemocks "github.com/zlnvch/deskfolio/cache/mocks"
	"github.com/zlnvch/deskfolio/config"
	"github.com/zlnvch/deskfolio/service"
)

type capturedSubscription struct {
	ctx     context.Context
	handler func([]byte)
}

func expectSubscribe(mockCache *cachemocks.MockCache, fileId string) chan capturedSubscription {
	captured := make(chan capturedSubscription, 4)
	mockCache.On("Subscribe", mock.Anything, "file:{"+fileId+"}:events", mock.Anything).
		Run(func(args mock.Arguments) {
			captured <- capturedSubscription{
				ctx:     args.Get(0).(context.Context),
				handler: args.Get(2).(func([]byte)),
			}
		}).
		Return(nil)
	return captured
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
	var zero T
	return zero
}

func TestHub_FansOutFileEvents(t *testing.T) {
	mockCache := new(cachemocks.MockCache)
	captured := expectSubscribe(mockCache, "doc1")

	hub := NewHub(mockCache)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	alice := NewClient(hub, nil, service.Subject{Id: "alice"}, "1.1.1.1", nil)
	guest := NewClient(hub, nil, service.GuestSubject, "2.2.2.2", nil)
	hub.OpenCh <- alice
	hub.OpenCh <- guest
	hub.SubscribeCh <- subscription{client: alice, fileId: "doc1"}
	hub.SubscribeCh <- subscription{client: guest, fileId: "doc1"}

	sub := waitFor(t, captured)

	// The guest subscription may still be queued behind the first broadcast
	event := []byte(`{"type":"file_updated","fileId":"doc1","version":2}`)
	assert.Eventually(t, func() bool {
		sub.handler(event)
		select {
		case got := <-guest.Send:
			return assert.Equal(t, event, got)
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, event, waitFor(t, alice.Send))
	mockCache.AssertNumberOfCalls(t, "Subscribe", 1)

	hub.UnsubscribeCh <- subscription{client: alice, fileId: "doc1"}
	hub.CloseCh <- guest

	select {
	case <-sub.ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("cache subscription was not cancelled after the last follower left")
	}
}

func TestHub_ConnectionLimitPerKey(t *testing.T) {
	hub := NewHub(new(cachemocks.MockCache))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	for i := 0; i < maxConnectionsPerKey; i++ {
		hub.OpenCh <- NewClient(hub, nil, service.GuestSubject, "3.3.3.3", nil)
	}
	extra := NewClient(hub, nil, service.GuestSubject, "3.3.3.3", nil)
	hub.OpenCh <- extra

	select {
	case _, ok := <-extra.Send:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("extra connection was not rejected")
	}
}

func TestHandleWsMessage_RejectsInvalidFileId(t *testing.T) {
	hub := NewHub(new(cachemocks.MockCache))
	h := NewHandler(nil, hub)
	client := NewClient(hub, nil, service.GuestSubject, "1.1.1.1", nil)

	h.HandleWsMessage(client, websocket.TextMessage, []byte(`{"type":"subscribe","data":{"fileId":""}}`))

	var resp struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(waitFor(t, client.Send), &resp))
	assert.Equal(t, "subscribe_response", resp.Type)
	assert.Equal(t, false, resp.Data["success"])
	assert.Empty(t, hub.SubscribeCh)
}

func TestServeWS_SubscribeAndReceive(t *testing.T) {
	mockCache := new(cachemocks.MockCache)
	captured := expectSubscribe(mockCache, "doc1")

	hub := NewHub(mockCache)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	svc := service.NewService(nil, nil, nil, config.JWTConfig{}, 0)
	h := NewHandler(svc, hub)
	upgrader := h.NewWsUpgrader("")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeWS(upgrader, w, r, ctx)
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Sec-WebSocket-Protocol": {subprotocol}})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "subscribe", "data": map[string]string{"fileId": "doc1"}}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp responseMessage
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "subscribe_response", resp.Type)

	sub := waitFor(t, captured)
	sub.handler([]byte(`{"type":"file_deleted","fileId":"doc1"}`))

	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"file_deleted","fileId":"doc1"}`, string(payload))
}

func TestUpgrader_CheckOrigin(t *testing.T) {
	h := NewHandler(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://evil.example")

	assert.True(t, h.NewWsUpgrader("").CheckOrigin(req))
	assert.False(t, h.NewWsUpgrader("https://deskfolio.example").CheckOrigin(req))

	req.Header.Set("Origin", "https://deskfolio.example")
	assert.True(t, h.NewWsUpgrader("https://deskfolio.example").CheckOrigin(req))
}

func TestClient_FollowLimit(t *testing.T) {
	client := NewClient(nil, nil, service.GuestSubject, "4.4.4.4", nil)

	for i := 0; i < maxFollowedFilesPerConnection; i++ {
		require.True(t, client.follow(fmt.Sprintf("doc%d", i)))
	}
	assert.False(t, client.follow("doc0"), "already followed")
	assert.False(t, client.follow("one-too-many"))

	client.unfollow("doc0")
	assert.True(t, client.follow("one-too-many"))
}

func TestClient_DeliverNeverBlocks(t *testing.T) {
	client := NewClient(nil, nil, service.GuestSubject, "4.4.4.4", nil)

	for i := 0; i < eventQueueSize; i++ {
		require.True(t, client.deliver([]byte("{}")))
	}
	assert.False(t, client.deliver([]byte("{}")))
}
