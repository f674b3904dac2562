package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zlnvch/deskfolio/api"
	"github.com/zlnvch/deskfolio/cache"
	"github.com/zlnvch/deskfolio/cache/redis"
	"github.com/zlnvch/deskfolio/config"
	"github.com/zlnvch/deskfolio/log"
	"github.com/zlnvch/deskfolio/mq"
	"github.com/zlnvch/deskfolio/mq/sqsmq"
	"github.com/zlnvch/deskfolio/store"
	"github.com/zlnvch/deskfolio/store/dynamo"
	"github.com/zlnvch/deskfolio/store/memory"
	"github.com/zlnvch/deskfolio/store/mongo"
)

const shutdownTimeout = 10 * time.Second

var rootCMD = &cobra.Command{
	Use:           "deskfolio",
	Short:         "deskfolio",
	Long:          `backend for the deskfolio portfolio desktop`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCMD = &cobra.Command{
	Use:   "serve",
	Short: "run the HTTP server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()
		return serve(cfg)
	},
}

func init() {
	rootCMD.AddCommand(serveCMD)
}

func main() {
	if err := rootCMD.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	if err := log.Setup(cfg.LogLevel, cfg.DevMode); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newStore returns a nil interface when no backend is configured.
func newStore(ctx context.Context, cfg *config.Config) (store.DeskfolioStore, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendDynamo:
		return dynamo.NewDynamoDeskfolioStore(ctx, cfg.DevMode, cfg.DynamoDBEndpoint, cfg.DynamoDBTable)
	case config.StoreBackendMongo:
		return mongo.NewMongoDeskfolioStore(ctx, cfg.MongoURI, cfg.MongoDBName)
	case config.StoreBackendMemory:
		return memory.NewMemoryDeskfolioStore(), nil
	default:
		return nil, nil
	}
}

func serve(cfg *config.Config) error {
	ctx := context.Background()

	deskfolioStore, err := newStore(ctx, cfg)
	if err != nil {
		return errors.Wrapf(err, "create %s store", cfg.StoreBackend)
	}

	var deskfolioCache cache.DeskfolioCache
	if cfg.RedisEndpoint != "" {
		redisCache, err := redis.NewRedisDeskfolioCache(ctx, cfg.DevMode, cfg.RedisEndpoint)
		if err != nil {
			return errors.Wrap(err, "create redis cache")
		}
		defer redisCache.Close()
		deskfolioCache = redisCache
	}

	var accessLogQueue mq.MessageQueue
	if cfg.SQSAccessLogQueue != "" {
		sqsQueue, err := sqsmq.NewSQSMessageQueue(ctx, cfg.DevMode, cfg.SQSEndpoint, cfg.SQSAccessLogQueue)
		if err != nil {
			return errors.Wrap(err, "create SQS queue")
		}
		accessLogQueue = sqsQueue
	}

	if len(cfg.JWT.Secret) == 0 {
		log.Logger.Warn("JWT_SECRET is not set, login and authenticated endpoints will fail")
	}

	shutdownCtx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	deskfolioAPI := api.NewDeskfolioAPI(deskfolioStore, deskfolioCache, accessLogQueue, cfg.JWT, cfg.StoreTimeout, shutdownCtx)

	server := &http.Server{
		Addr:              ":" + cfg.HostPort,
		Handler:           deskfolioAPI.Handler(cfg.AllowedWSOrigin),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Logger.Info("starting server",
			zap.String("port", cfg.HostPort),
			zap.String("store", cfg.StoreBackend),
			zap.Bool("cache", deskfolioCache != nil),
			zap.Bool("retryQueue", accessLogQueue != nil))
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			stop()
			deskfolioAPI.Wait()
			closeStore(deskfolioStore)
			return errors.Wrap(err, "listen")
		}
	case <-shutdownCtx.Done():
	}

	log.Logger.Info("server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Logger.Error("http server shutdown", zap.Error(err))
	}

	deskfolioAPI.Wait()
	closeStore(deskfolioStore)
	return nil
}

func closeStore(deskfolioStore store.DeskfolioStore) {
	if deskfolioStore == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := deskfolioStore.Close(ctx); err != nil {
		log.Logger.Error("close store", zap.Error(err))
	}
}
