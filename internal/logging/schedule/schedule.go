// Package schedule provides the single logical timer that drives the flush
// loop. It guarantees that no two callback runs ever overlap, while still
// letting the callback rearm the timer before it returns.
package schedule

import (
	"sync"
	"time"
)

// Scheduler invokes a callback after a deadline armed with Start. A firing
// that arrives while a previous run is still executing waits for it to finish
// rather than skipping or overlapping; overlapping runs would double-drain
// the state the callback owns.
type Scheduler struct {
	mu       sync.Mutex
	cond     *sync.Cond
	timer    *time.Timer
	callback func()
	running  bool
	disposed bool
}

func NewScheduler(callback func()) *Scheduler {
	s := &Scheduler{callback: callback}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Start arms a one-shot deadline, replacing any deadline not yet fired. Safe
// to call from inside the callback. After Dispose it is a no-op.
func (s *Scheduler) Start(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(d, s.fire)
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	for s.running {
		s.cond.Wait()
	}
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.callback()

	s.mu.Lock()
	s.running = false
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Dispose cancels any pending deadline and blocks until an in-flight callback
// run has fully finished. No callback runs after Dispose returns.
func (s *Scheduler) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		for s.running {
			s.cond.Wait()
		}
		return
	}
	s.disposed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	for s.running {
		s.cond.Wait()
	}
}
