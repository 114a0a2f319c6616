package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/LeventeLantos/message-relay/internal/repo"
)

// Requeuer re-enqueues outbound messages that stayed QUEUED longer than
// staleAfter, which happens when the enqueue right after creation failed.
type Requeuer struct {
	messages   repo.MessageRepository
	enqueuer   Enqueuer
	staleAfter time.Duration
	batchSize  int
	log        *slog.Logger
	now        func() time.Time
}

func NewRequeuer(messages repo.MessageRepository, enqueuer Enqueuer, staleAfter time.Duration, batchSize int, logger *slog.Logger) (*Requeuer, error) {
	if staleAfter <= 0 {
		return nil, errors.New("staleAfter must be > 0")
	}
	if batchSize <= 0 {
		return nil, errors.New("batchSize must be > 0")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Requeuer{
		messages:   messages,
		enqueuer:   enqueuer,
		staleAfter: staleAfter,
		batchSize:  batchSize,
		log:        logger.With("component", "requeuer"),
		now:        time.Now,
	}, nil
}

// Tick sweeps one batch and returns how many messages were enqueued again.
func (r *Requeuer) Tick(ctx context.Context) (int, error) {
	msgs, err := r.messages.ClaimStaleQueued(ctx, r.now().Add(-r.staleAfter), r.batchSize)
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, m := range msgs {
		if err := r.enqueuer.EnqueueDispatch(ctx, m.ID); err != nil {
			r.log.Warn("requeue failed", "message_id", m.ID, "err", err)
			continue
		}
		requeued++
	}
	if len(msgs) > 0 {
		r.log.Info("stale messages requeued", "found", len(msgs), "requeued", requeued)
	}
	return requeued, nil
}

// Run adapts Tick to the scheduler's tick signature.
func (r *Requeuer) Run(ctx context.Context) {
	if _, err := r.Tick(ctx); err != nil {
		r.log.Error("requeue sweep failed", "err", err)
	}
}
