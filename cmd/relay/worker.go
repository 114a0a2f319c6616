package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/LeventeLantos/message-relay/internal/config"
	"github.com/LeventeLantos/message-relay/internal/queue"
)

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume dispatch tasks and deliver messages to providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWorker(ctx, cfg)
		},
	}
}

func runWorker(ctx context.Context, c *config.Config) error {
	store, err := openStore(ctx, c)
	if err != nil {
		return err
	}
	defer store.Close()

	statuses, closeCache, err := openCache(ctx, c)
	if err != nil {
		return err
	}
	defer closeCache()

	d, closeClients := newDispatcher(c, store, statuses)
	defer closeClients()

	w := queue.NewWorker(redisOpt(c), queue.WorkerConfig{
		Concurrency: c.Worker.Concurrency,
		Queue:       c.Worker.Queue,
		Policy:      retryPolicy(c),
	}, d, logger)

	return w.Run(ctx)
}
