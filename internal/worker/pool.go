// Package worker runs fire-and-forget side effects off the request path.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/telemed-faq/backend/internal/metrics"
	"github.com/telemed-faq/backend/pkg/logger"
)

const DefaultTaskTimeout = 30 * time.Second

// Pool is a bounded goroutine pool. Tasks get their own context, detached
// from the request that scheduled them.
type Pool struct {
	pool    *ants.Pool
	timeout time.Duration
	wg      sync.WaitGroup
	log     *zap.Logger
}

func NewPool(size int, taskTimeout time.Duration) (*Pool, error) {
	if taskTimeout <= 0 {
		taskTimeout = DefaultTaskTimeout
	}

	pool, err := ants.NewPool(size, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	return &Pool{
		pool:    pool,
		timeout: taskTimeout,
		log:     logger.Named("worker"),
	}, nil
}

// Go schedules task and returns immediately. It reports false when the pool
// is saturated or released; the task is then dropped.
func (p *Pool) Go(name string, task func(ctx context.Context)) bool {
	p.wg.Add(1)
	err := p.pool.Submit(func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.log.Error("Background task panicked", zap.String("task", name), zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		task(ctx)
	})
	if err != nil {
		p.wg.Done()
		metrics.BackgroundDropped.WithLabelValues(name).Inc()
		p.log.Warn("Background task dropped", zap.String("task", name), zap.Error(err))
		return false
	}
	return true
}

// Wait blocks until every scheduled task has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) Running() int {
	return p.pool.Running()
}

// Release stops accepting tasks and waits up to timeout for running ones.
func (p *Pool) Release(timeout time.Duration) error {
	if err := p.pool.ReleaseTimeout(timeout); err != nil {
		return fmt.Errorf("failed to release worker pool: %w", err)
	}
	return nil
}
