// Package sched runs kernel threads as goroutines.
package sched

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/containerd/log"
)

// Scheduler tracks every thread it starts.
type Scheduler struct {
	wg      sync.WaitGroup
	running atomic.Int64
	nextTID atomic.Int64
}

// New returns an empty scheduler.
func New() *Scheduler {
	return &Scheduler{}
}

// Spawn starts fn on a new thread and returns its thread id. The thread
// ends when fn returns or calls Exit.
func (s *Scheduler) Spawn(ctx context.Context, name string, fn func(ctx context.Context)) int {
	tid := int(s.nextTID.Add(1))
	ctx = log.WithLogger(ctx, log.G(ctx).WithFields(log.Fields{
		"thread": name,
		"tid":    tid,
	}))

	s.wg.Add(1)
	s.running.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Add(-1)
		log.G(ctx).Trace("thread started")
		defer log.G(ctx).Trace("thread finished")
		fn(ctx)
	}()
	return tid
}

// Exit terminates the calling thread. Deferred calls still run. It must
// only be called from a thread started by Spawn.
func Exit() {
	runtime.Goexit()
}

// Running returns the number of live threads.
func (s *Scheduler) Running() int {
	return int(s.running.Load())
}

// Wait blocks until every spawned thread has ended.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
