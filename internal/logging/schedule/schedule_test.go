package schedule

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestScheduler_FiresCallback(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	fired := make(chan struct{})
	var once sync.Once
	s := NewScheduler(func() {
		once.Do(func() { close(fired) })
	})
	defer s.Dispose()

	s.Start(10 * time.Millisecond)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never fired")
	}
}

func TestScheduler_SingleFlightUnderSelfRearm(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var concurrent atomic.Int32
	var maxConcurrent atomic.Int32
	var runs atomic.Int32

	var s *Scheduler
	s = NewScheduler(func() {
		n := concurrent.Add(1)
		if n > maxConcurrent.Load() {
			maxConcurrent.Store(n)
		}

		// Rearm immediately from inside the callback, then keep working:
		// the next firing must wait for this run to finish.
		if runs.Add(1) < 20 {
			s.Start(0)
		}
		time.Sleep(2 * time.Millisecond)

		concurrent.Add(-1)
	})

	s.Start(0)

	deadline := time.Now().Add(5 * time.Second)
	for runs.Load() < 20 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Dispose()

	assert.GreaterOrEqual(t, runs.Load(), int32(20))
	assert.Equal(t, int32(1), maxConcurrent.Load())
}

func TestScheduler_DisposeBlocksUntilCallbackFinishes(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool

	s := NewScheduler(func() {
		close(started)
		<-release
		finished.Store(true)
	})

	s.Start(0)
	<-started

	disposeReturned := make(chan struct{})
	go func() {
		s.Dispose()
		close(disposeReturned)
	}()

	select {
	case <-disposeReturned:
		t.Fatal("Dispose returned while the callback was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-disposeReturned:
	case <-time.After(2 * time.Second):
		t.Fatal("Dispose never returned")
	}
	assert.True(t, finished.Load())
}

func TestScheduler_NoCallbackAfterDispose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var runs atomic.Int32
	s := NewScheduler(func() {
		runs.Add(1)
	})

	s.Start(20 * time.Millisecond)
	s.Dispose()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), runs.Load())

	// Start after dispose is a no-op
	s.Start(0)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), runs.Load())
}

func TestScheduler_StartReplacesPendingDeadline(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	fired := make(chan struct{}, 8)
	s := NewScheduler(func() {
		fired <- struct{}{}
	})
	defer s.Dispose()

	s.Start(time.Hour)
	s.Start(10 * time.Millisecond)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("rearmed deadline never fired")
	}
}

func TestScheduler_ConcurrentDispose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := NewScheduler(func() {
		time.Sleep(10 * time.Millisecond)
	})
	s.Start(0)
	time.Sleep(5 * time.Millisecond)

	var wg sync.WaitGroup
	wg.Add(4)
	for i := 0; i < 4; i++ {
		go func() {
			defer wg.Done()
			s.Dispose()
		}()
	}
	wg.Wait()
}
