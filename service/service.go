package service

import (
	"context"
	"time"

	"github.com/zlnvch/deskfolio/cache"
	"github.com/zlnvch/deskfolio/config"
	"github.com/zlnvch/deskfolio/store"
	"github.com/zlnvch/deskfolio/worker"
)

const (
	maxHistoryEntries   = 50
	maxAccessLogEntries = 100
	defaultStoreTimeout = 5 * time.Second
)

// Service holds the injected clients. Store and Cache may be nil: without a
// store every data operation fails with ErrNotConfigured, and without a cache
// reads go straight to the store and no events are published.
type Service struct {
	Store            store.DeskfolioStore
	Cache            cache.DeskfolioCache
	AccessLogBatcher *worker.AccessLogBatcher
	JWT              config.JWTConfig
	StoreTimeout     time.Duration

	now func() time.Time
}

func NewService(
	store store.DeskfolioStore,
	cache cache.DeskfolioCache,
	accessLogBatcher *worker.AccessLogBatcher,
	jwtConfig config.JWTConfig,
	storeTimeout time.Duration,
) *Service {
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}

	return &Service{
		Store:            store,
		Cache:            cache,
		AccessLogBatcher: accessLogBatcher,
		JWT:              jwtConfig,
		StoreTimeout:     storeTimeout,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// storeCtx bounds a single store round trip.
func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.StoreTimeout)
}

func (s *Service) requireStore() error {
	if s.Store == nil {
		return newError(ErrNotConfigured, "Store not configured")
	}
	return nil
}
