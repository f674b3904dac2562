package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	cachemocks "github.com/zlnvch/deskfolio/cache/mocks"
	"github.com/zlnvch/deskfolio/config"
	"github.com/zlnvch/deskfolio/store/memory"
)

func TestHealth(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	deskfolioAPI := NewDeskfolioAPI(nil, nil, nil, config.JWTConfig{}, time.Second, ctx)
	handler := deskfolioAPI.Handler("")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	cancel()
	deskfolioAPI.Wait()
}

func TestWebsocketRouteRequiresCache(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	withoutCache := NewDeskfolioAPI(memory.NewMemoryDeskfolioStore(), nil, nil, config.JWTConfig{}, time.Second, ctx)
	rec := httptest.NewRecorder()
	withoutCache.Handler("").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	withCache := NewDeskfolioAPI(memory.NewMemoryDeskfolioStore(), new(cachemocks.MockCache), nil, config.JWTConfig{}, time.Second, ctx)
	rec = httptest.NewRecorder()
	withCache.Handler("").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	// Plain GET without upgrade headers is rejected by the upgrader
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWorkersStopOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	deskfolioAPI := NewDeskfolioAPI(memory.NewMemoryDeskfolioStore(), new(cachemocks.MockCache), nil, config.JWTConfig{}, time.Second, ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		deskfolioAPI.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not stop")
	}
}
