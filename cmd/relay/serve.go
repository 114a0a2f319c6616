package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/LeventeLantos/message-relay/internal/api"
	"github.com/LeventeLantos/message-relay/internal/config"
	"github.com/LeventeLantos/message-relay/internal/queue"
	"github.com/LeventeLantos/message-relay/internal/scheduler"
	"github.com/LeventeLantos/message-relay/internal/service"
)

func serveCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the stale message sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply the schema before serving")
	return cmd
}

func runServe(ctx context.Context, c *config.Config, migrate bool) error {
	store, err := openStore(ctx, c)
	if err != nil {
		return err
	}
	defer store.Close()

	if migrate {
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	statuses, closeCache, err := openCache(ctx, c)
	if err != nil {
		return err
	}
	defer closeCache()

	policy := retryPolicy(c)

	var enqueuer service.Enqueuer
	switch c.Dispatch.Mode {
	case config.ModeInline:
		d, closeClients := newDispatcher(c, store, statuses)
		defer closeClients()

		q := queue.NewInlineQueue(d, policy, logger)
		// cut retry delays short and let running attempts finish before the clients and store close
		defer q.Close()
		enqueuer = q
	default:
		q := queue.NewAsynqQueue(redisOpt(c), c.Worker.Queue, policy, logger)
		defer q.Close()
		enqueuer = q
	}

	intake := service.NewIntake(
		service.NewParticipantResolver(store),
		service.NewConversationResolver(store),
		store,
		enqueuer,
		logger,
	).WithDeduper(statuses)

	requeuer, err := service.NewRequeuer(store, enqueuer, c.Sweep.StaleAfter(), c.Sweep.BatchSize, logger)
	if err != nil {
		return err
	}

	sched, err := scheduler.New(c.Sweep.Interval(), requeuer.Run, logger)
	if err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	srv := &http.Server{
		Addr:              c.Server.Address,
		Handler:           loggingMiddleware(api.Router(api.NewHandler(sched, intake, store, statuses, logger))),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", c.Server.Address, "dispatch_mode", c.Dispatch.Mode, "store", c.Store.Driver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
