package evaluation

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/telemed-faq/backend/pkg/logger"
)

const DefaultInterval = 6 * time.Hour

var ErrInvalidInterval = errors.New("evaluation interval must be positive")

// Scheduler runs a job on a fixed interval. It owns at most one loop: Start
// replaces a running loop, Stop cancels it and waits for it to exit.
type Scheduler struct {
	job func(context.Context)

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	interval time.Duration
}

// NewScheduler returns a scheduler that runs bulk open-gap evaluation.
func NewScheduler(svc *Service) *Scheduler {
	return newScheduler(func(ctx context.Context) {
		if _, err := svc.EvaluateAllOpenGaps(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Scheduled gap evaluation failed", zap.Error(err))
		}
	})
}

func newScheduler(job func(context.Context)) *Scheduler {
	return &Scheduler{job: job}
}

// Start begins running the job every interval, first run one interval from
// now. A loop that is already running is stopped first.
func (s *Scheduler) Start(interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.interval = interval

	go s.loop(ctx, interval, done)

	logger.Info("Gap evaluation scheduler started", zap.Duration("interval", interval))
	return nil
}

// Stop cancels the running loop, including a job in progress, and waits for
// it to return. Calling Stop on a stopped scheduler does nothing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopLocked() {
		logger.Info("Gap evaluation scheduler stopped")
	}
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

func (s *Scheduler) stopLocked() bool {
	if s.cancel == nil {
		return false
	}

	s.cancel()
	<-s.done

	s.cancel = nil
	s.done = nil
	s.interval = 0
	return true
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.job(ctx)
		}
	}
}
