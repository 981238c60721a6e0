// Package tasks runs analysis work off the request path. Submitting an
// empathy attempt returns immediately; the comparison runs here.
package tasks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const defaultBuffer = 64

type task struct {
	name string
	fn   func(ctx context.Context) error
}

// Queue is a bounded worker pool. Saturation drops the task with a log line
// rather than blocking the HTTP handler that submitted it.
type Queue struct {
	tasks   chan task
	group   *errgroup.Group
	cancel  context.CancelFunc
	logger  *slog.Logger
	closing sync.Once
}

func NewQueue(workers int, logger *slog.Logger) *Queue {
	if workers < 1 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)

	q := &Queue{
		tasks:  make(chan task, defaultBuffer),
		group:  g,
		cancel: cancel,
		logger: logger,
	}

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			q.run(gctx)
			return nil
		})
	}
	return q
}

func (q *Queue) run(ctx context.Context) {
	for t := range q.tasks {
		start := time.Now()
		if err := t.fn(ctx); err != nil {
			q.logger.Error("task failed", "task", t.name, "error", err, "duration", time.Since(start))
			continue
		}
		q.logger.Debug("task done", "task", t.name, "duration", time.Since(start))
	}
}

// Submit enqueues a task without blocking. Returns false when the queue is
// saturated or closed; the caller decides whether that matters.
func (q *Queue) Submit(name string, fn func(ctx context.Context) error) bool {
	select {
	case q.tasks <- task{name: name, fn: fn}:
		return true
	default:
		q.logger.Warn("task queue saturated, dropping", "task", name)
		return false
	}
}

// Close stops intake and waits for in-flight tasks to drain.
func (q *Queue) Close() {
	q.closing.Do(func() {
		close(q.tasks)
	})
	q.group.Wait()
	q.cancel()
}
