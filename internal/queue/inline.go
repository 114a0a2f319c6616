package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/LeventeLantos/message-relay/internal/service"
)

var ErrQueueClosed = errors.New("inline queue closed")

// InlineQueue dispatches in-process, for development without a queue broker.
// A message already being dispatched is not started twice. Close interrupts
// the delay between attempts; an attempt already running is allowed to finish.
type InlineQueue struct {
	dispatcher Dispatcher
	policy     service.RetryPolicy
	log        *slog.Logger

	base context.Context
	stop context.CancelFunc

	mu       sync.Mutex
	closed   bool
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

func NewInlineQueue(d Dispatcher, policy service.RetryPolicy, logger *slog.Logger) *InlineQueue {
	if logger == nil {
		logger = slog.Default()
	}
	base, stop := context.WithCancel(context.Background())
	return &InlineQueue{
		dispatcher: d,
		policy:     policy,
		log:        logger.With("component", "queue", "mode", "inline"),
		base:       base,
		stop:       stop,
		inflight:   make(map[string]struct{}),
	}
}

// EnqueueDispatch starts the dispatch in the background. The caller's context
// only bounds the enqueue, not the dispatch.
func (q *InlineQueue) EnqueueDispatch(ctx context.Context, messageID string) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	if _, ok := q.inflight[messageID]; ok {
		q.mu.Unlock()
		return nil
	}
	q.inflight[messageID] = struct{}{}
	q.wg.Add(1)
	q.mu.Unlock()

	go func() {
		defer q.wg.Done()
		defer func() {
			q.mu.Lock()
			delete(q.inflight, messageID)
			q.mu.Unlock()
		}()

		err := q.policy.Run(q.base, func(ctx context.Context) error {
			return q.dispatcher.Dispatch(context.WithoutCancel(ctx), messageID)
		})
		switch {
		case err == nil:
		case q.base.Err() != nil:
			q.log.Warn("dispatch abandoned on shutdown", "message_id", messageID, "err", err)
		default:
			q.log.Error("dispatch failed permanently", "message_id", messageID, "err", err)
		}
	}()
	return nil
}

// Wait blocks until every started dispatch has finished.
func (q *InlineQueue) Wait() {
	q.wg.Wait()
}

// Close rejects new work, cuts pending retry delays short and waits for
// running attempts.
func (q *InlineQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.stop()
	q.wg.Wait()
}
