package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/zlnvch/deskfolio/api/rest"
	"github.com/zlnvch/deskfolio/api/ws"
	"github.com/zlnvch/deskfolio/cache"
	"github.com/zlnvch/deskfolio/config"
	"github.com/zlnvch/deskfolio/log"
	"github.com/zlnvch/deskfolio/mq"
	"github.com/zlnvch/deskfolio/service"
	"github.com/zlnvch/deskfolio/store"
	"github.com/zlnvch/deskfolio/worker"
)

const accessLogFlushMilliseconds = 500

type DeskfolioAPI struct {
	Service     *service.Service
	restHandler *rest.Handler
	wsHandler   *ws.Handler
	shutdownCtx context.Context
	workers     sync.WaitGroup
}

// NewDeskfolioAPI wires the service and starts the background workers. Any
// of deskfolioStore, deskfolioCache and accessLogQueue may be nil; the
// features that depend on them are then disabled.
func NewDeskfolioAPI(
	deskfolioStore store.DeskfolioStore,
	deskfolioCache cache.DeskfolioCache,
	accessLogQueue mq.MessageQueue,
	jwtConfig config.JWTConfig,
	storeTimeout time.Duration,
	shutdownCtx context.Context,
) *DeskfolioAPI {
	deskfolioAPI := &DeskfolioAPI{shutdownCtx: shutdownCtx}

	var accessLogBatcher *worker.AccessLogBatcher
	if deskfolioStore != nil {
		accessLogBatcher = worker.NewAccessLogBatcher(deskfolioStore, accessLogQueue, accessLogFlushMilliseconds)
		deskfolioAPI.goWorker(func() { accessLogBatcher.Run(shutdownCtx) })

		if accessLogQueue != nil {
			mqConsumer := worker.NewMQConsumer(accessLogQueue, deskfolioStore)
			deskfolioAPI.goWorker(func() { mqConsumer.Run(shutdownCtx) })
		}
	} else {
		log.Logger.Warn("no store configured, file and auth endpoints will fail")
	}

	svc := service.NewService(deskfolioStore, deskfolioCache, accessLogBatcher, jwtConfig, storeTimeout)
	deskfolioAPI.Service = svc
	deskfolioAPI.restHandler = rest.NewHandler(svc)

	if deskfolioCache != nil {
		wsHub := ws.NewHub(deskfolioCache)
		deskfolioAPI.goWorker(func() { wsHub.Run(shutdownCtx) })
		deskfolioAPI.wsHandler = ws.NewHandler(svc, wsHub)
	} else {
		log.Logger.Info("no cache configured, live file events disabled")
	}

	return deskfolioAPI
}

func (deskfolioAPI *DeskfolioAPI) goWorker(run func()) {
	deskfolioAPI.workers.Add(1)
	go func() {
		defer deskfolioAPI.workers.Done()
		run()
	}()
}

// Wait blocks until every background worker has stopped. Workers stop on the
// shutdown context; the access log batcher flushes what it holds first.
func (deskfolioAPI *DeskfolioAPI) Wait() {
	deskfolioAPI.workers.Wait()
}

func (deskfolioAPI *DeskfolioAPI) RegisterRoutes(mux *http.ServeMux, allowedOrigin string) {
	// Health check endpoint (no auth required)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	deskfolioAPI.restHandler.RegisterRoutes(mux)

	if deskfolioAPI.wsHandler == nil {
		return
	}
	wsUpgrader := deskfolioAPI.wsHandler.NewWsUpgrader(allowedOrigin)
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		deskfolioAPI.wsHandler.ServeWS(wsUpgrader, w, r, deskfolioAPI.shutdownCtx)
	})
}

// Handler returns the full HTTP stack: routes behind CORS and request logging.
func (deskfolioAPI *DeskfolioAPI) Handler(allowedOrigin string) http.Handler {
	mux := http.NewServeMux()
	deskfolioAPI.RegisterRoutes(mux, allowedOrigin)
	return rest.WithRequestLogging(rest.WithCORS(mux))
}
