package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Job is one unit of periodic work. It receives a context canceled on Stop.
type Job func(ctx context.Context)

// Scheduler runs a Job every interval while started. Every Start triggers one
// run right away so a freshly booted process does not wait a full interval.
type Scheduler struct {
	interval time.Duration
	job      Job
	log      *slog.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	ticks    int64
	lastTick time.Time
}

// Status is a point-in-time view for the HTTP status endpoint.
type Status struct {
	Running  bool       `json:"running"`
	Interval string     `json:"interval"`
	Ticks    int64      `json:"ticks"`
	LastTick *time.Time `json:"last_tick,omitempty"`
}

func New(interval time.Duration, job Job, logger *slog.Logger) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if job == nil {
		return nil, errors.New("job must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		interval: interval,
		job:      job,
		log:      logger.With("component", "scheduler"),
	}, nil
}

// Start launches the loop. It reports false if the loop was already running.
func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(ctx, s.done)

	s.log.Info("scheduler started", "interval", s.interval.String())
	return true
}

// Stop cancels the loop and waits for an in-progress run to return. It
// reports false if the loop was not running.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return false
	}

	cancel()
	<-done

	s.log.Info("scheduler stopped")
	return true
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:  s.cancel != nil,
		Interval: s.interval.String(),
		Ticks:    s.ticks,
	}
	if !s.lastTick.IsZero() {
		t := s.lastTick.UTC()
		st.LastTick = &t
	}
	return st
}

func (s *Scheduler) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.runOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runOnce executes the job, surviving a panic so one bad run does not end
// the loop.
func (s *Scheduler) runOnce(ctx context.Context) {
	start := time.Now()

	s.mu.Lock()
	s.ticks++
	s.lastTick = start
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduled job panicked", "panic", r)
		}
	}()

	s.job(ctx)
	s.log.Debug("scheduled job finished", "duration_ms", time.Since(start).Milliseconds())
}
