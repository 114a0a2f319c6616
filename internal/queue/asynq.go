package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/LeventeLantos/message-relay/internal/service"
)

// AsynqQueue enqueues dispatch tasks on Redis. The task id is the message id,
// so enqueueing a message that is already pending is a no-op.
type AsynqQueue struct {
	client   *asynq.Client
	queue    string
	maxRetry int
	log      *slog.Logger
}

func NewAsynqQueue(opt asynq.RedisConnOpt, queue string, policy service.RetryPolicy, logger *slog.Logger) *AsynqQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &AsynqQueue{
		client:   asynq.NewClient(opt),
		queue:    queue,
		maxRetry: max(policy.MaxAttempts-1, 0),
		log:      logger.With("component", "queue"),
	}
}

func (q *AsynqQueue) EnqueueDispatch(ctx context.Context, messageID string) error {
	task, err := NewDispatchTask(messageID)
	if err != nil {
		return err
	}

	info, err := q.client.EnqueueContext(ctx, task,
		asynq.TaskID(messageID),
		asynq.MaxRetry(q.maxRetry),
		asynq.Queue(q.queue),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		q.log.Debug("dispatch already enqueued", "message_id", messageID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue dispatch %s: %w", messageID, err)
	}
	q.log.Debug("dispatch enqueued", "message_id", messageID, "queue", info.Queue)
	return nil
}

func (q *AsynqQueue) Close() error {
	return q.client.Close()
}

type WorkerConfig struct {
	Concurrency int
	Queue       string
	Policy      service.RetryPolicy
}

// Worker consumes dispatch tasks. Retries are scheduled by asynq using the
// policy's fixed delay; non-retryable failures skip the remaining attempts.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	log    *slog.Logger
}

func NewWorker(opt asynq.RedisConnOpt, cfg WorkerConfig, d Dispatcher, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "worker")

	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency:    max(cfg.Concurrency, 1),
		Queues:         map[string]int{cfg.Queue: 1},
		RetryDelayFunc: fixedDelay(cfg.Policy.Delay),
		ErrorHandler:   errorHandler(log),
		Logger:         &asynqLogger{log: log},
		LogLevel:       asynq.WarnLevel,
	})

	mux := asynq.NewServeMux()
	mux.Handle(TypeDispatch, &dispatchHandler{dispatcher: d, policy: cfg.Policy, log: log})

	return &Worker{server: srv, mux: mux, log: log}
}

// Run blocks until ctx is canceled, then drains in-flight tasks.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return err
	}
	w.log.Info("worker started")

	<-ctx.Done()
	w.server.Shutdown()
	w.log.Info("worker stopped")
	return nil
}

func fixedDelay(d time.Duration) asynq.RetryDelayFunc {
	return func(int, error, *asynq.Task) time.Duration {
		return d
	}
}

type dispatchHandler struct {
	dispatcher Dispatcher
	policy     service.RetryPolicy
	log        *slog.Logger
}

func (h *dispatchHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	messageID, err := parseDispatchPayload(t.Payload())
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	err = h.dispatcher.Dispatch(ctx, messageID)
	if err == nil {
		return nil
	}
	if !h.retryable(err) {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}

func (h *dispatchHandler) retryable(err error) bool {
	if h.policy.Retryable == nil {
		return service.IsRetryable(err)
	}
	return h.policy.Retryable(err)
}

func errorHandler(log *slog.Logger) asynq.ErrorHandler {
	return asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
		id, _ := parseDispatchPayload(task.Payload())
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)

		if terminal(retried, maxRetry, err) {
			log.Error("dispatch failed permanently", "task", task.Type(), "message_id", id, "attempts", retried+1, "err", err)
			return
		}
		log.Warn("dispatch failed, will retry", "task", task.Type(), "message_id", id, "attempt", retried+1, "err", err)
	})
}

func terminal(retried, maxRetry int, err error) bool {
	return errors.Is(err, asynq.SkipRetry) || retried >= maxRetry
}

// asynqLogger routes asynq's internal logging into slog.
type asynqLogger struct {
	log *slog.Logger
}

func (l *asynqLogger) Debug(args ...any) { l.log.Debug(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...any)  { l.log.Info(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...any)  { l.log.Warn(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...any) { l.log.Error(fmt.Sprint(args...)) }
func (l *asynqLogger) Fatal(args ...any) {
	l.log.Error(fmt.Sprint(args...))
	panic(fmt.Sprint(args...))
}
