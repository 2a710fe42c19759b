// Package session is the core of the browsing shell: the serialized control
// loop, the tab collection, the per-tab navigation state machine, and the
// command surface the presentation layer drives.
package session

import (
	"sync"
)

// Loop is the serialized control context. Every mutation of session,
// navigation, download and activation state runs as a job on this single
// goroutine; components hand their concurrent results back via Dispatch.
type Loop struct {
	jobs chan func()

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewLoop creates a stopped loop; call Start to begin draining jobs.
func NewLoop() *Loop {
	return &Loop{
		jobs:   make(chan func(), 256),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start launches the drain goroutine.
func (l *Loop) Start() {
	go func() {
		defer close(l.doneCh)
		for {
			select {
			case <-l.stopCh:
				return
			case job := <-l.jobs:
				job()
			}
		}
	}()
}

// Dispatch enqueues a job. Jobs dispatched after Close are dropped.
func (l *Loop) Dispatch(job func()) {
	select {
	case l.jobs <- job:
	case <-l.stopCh:
	}
}

// Do runs a job on the loop and waits for it to finish. Never call from a
// job already running on the loop.
func (l *Loop) Do(job func()) {
	done := make(chan struct{})
	l.Dispatch(func() {
		job()
		close(done)
	})
	select {
	case <-done:
	case <-l.stopCh:
	}
}

// Close stops the loop synchronously. Idempotent. Queued jobs that have not
// started are discarded.
func (l *Loop) Close() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
		<-l.doneCh
	})
}
