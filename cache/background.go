package cache

import (
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// WaitUntil defers a task past the return of the call that scheduled it.
// Hosts with a request lifetime pass their own hook; Background is the
// in-process implementation.
type WaitUntil func(task func() error)

// Background runs deferred tasks on goroutines.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - WaitUntil blocks while Limit tasks are already running.
// - Wait returns the first task error since the Background was created.
type Background struct {
	g        errgroup.Group
	started  atomic.Int64
	failures atomic.Int64
}

// NewBackground creates a runner with at most limit concurrent tasks.
// A limit of zero or less means no limit.
func NewBackground(limit int) *Background {
	b := &Background{}
	if limit > 0 {
		b.g.SetLimit(limit)
	}
	return b
}

// WaitUntil schedules task.
func (b *Background) WaitUntil(task func() error) {
	b.started.Add(1)
	b.g.Go(func() error {
		err := task()
		if err != nil {
			b.failures.Add(1)
		}
		return err
	})
}

// Wait blocks until every scheduled task has finished.
func (b *Background) Wait() error {
	return b.g.Wait()
}

// Started returns the number of tasks scheduled so far.
func (b *Background) Started() int64 { return b.started.Load() }

// Failures returns the number of tasks that returned an error.
func (b *Background) Failures() int64 { return b.failures.Load() }
