package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/LeventeLantos/message-relay/internal/cache"
	"github.com/LeventeLantos/message-relay/internal/client"
	"github.com/LeventeLantos/message-relay/internal/config"
	"github.com/LeventeLantos/message-relay/internal/model"
	"github.com/LeventeLantos/message-relay/internal/repo"
	"github.com/LeventeLantos/message-relay/internal/service"
)

var (
	cfg    *config.Config
	logger = slog.Default()
)

func main() {
	root := &cobra.Command{
		Use:           "relay",
		Short:         "Message relay: inbound webhooks, outbound dispatch",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()

			c, err := config.LoadAll()
			if err != nil {
				return err
			}
			cfg = c
			logger = newLogger(c.Log.Level, c.Log.Format)
			slog.SetDefault(logger)
			return nil
		},
	}

	root.AddCommand(serveCmd())
	root.AddCommand(workerCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(messagesCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func openStore(ctx context.Context, c *config.Config) (repo.Store, error) {
	dsn := c.Postgres.URL
	if c.Store.Driver == config.DriverSQLite {
		dsn = c.SQLite.Path
	}
	store, err := repo.Open(ctx, c.Store.Driver, dsn, c.Postgres.MaxConns, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", c.Store.Driver, err)
	}
	return store, nil
}

func openCache(ctx context.Context, c *config.Config) (*cache.RedisCache, func() error, error) {
	rdb, err := cache.Connect(ctx, c.Redis.Addr, c.Redis.Password, c.Redis.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis at %s: %w", c.Redis.Addr, err)
	}
	return cache.NewRedisCache(rdb, c.Redis.TTL()), rdb.Close, nil
}

func redisOpt(c *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	}
}

func retryPolicy(c *config.Config) service.RetryPolicy {
	return service.RetryPolicy{
		MaxAttempts: c.Dispatch.MaxAttempts,
		Delay:       c.Dispatch.RetryDelay(),
		Retryable:   service.IsRetryable,
	}
}

// newDispatcher builds the provider clients and a dispatcher that mirrors
// every status change into the cache. The returned func releases idle
// provider connections.
func newDispatcher(c *config.Config, store repo.Store, statuses cache.StatusCache) (*service.Dispatcher, func()) {
	opts := client.Options{
		Timeout:     c.Provider.Timeout(),
		MaxAttempts: c.Provider.MaxAttempts,
		BackoffMin:  c.Provider.BackoffMin(),
		BackoffMax:  c.Provider.BackoffMax(),
		Logger:      logger,
	}
	email := client.NewEmailClient(c.Provider.EmailURL, opts)
	text := client.NewTextClient(c.Provider.TextURL, opts)

	d := service.NewDispatcher(store, store, map[model.Channel]service.Transport{
		model.ChannelEmail: email,
		model.ChannelText:  text,
	}, logger).WithStatusHook(statusHook(statuses))

	return d, func() {
		email.Close()
		text.Close()
	}
}

func statusHook(statuses cache.StatusCache) func(context.Context, model.Message) {
	return func(ctx context.Context, m model.Message) {
		err := statuses.StoreStatus(ctx, cache.Snapshot{
			MessageID: m.ID,
			Status:    m.Status,
			LastError: m.LastError,
			UpdatedAt: m.UpdatedAt,
		})
		if err != nil {
			logger.Warn("status cache write failed", "message_id", m.ID, "status", m.Status, "err", err)
		}
	}
}
