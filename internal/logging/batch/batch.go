// Package batch implements the flush loop at the heart of the shipper: it
// collects entries from concurrent producers into size-bounded batches and
// hands them to an emitter on a timer, backing off and shedding load when the
// emitter keeps failing.
package batch

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Chichichkin/LogShipper/internal/logging/backoff"
	"github.com/Chichichkin/LogShipper/internal/logging/queue"
	"github.com/Chichichkin/LogShipper/internal/logging/schedule"
	"github.com/Chichichkin/LogShipper/internal/logging/selflog"
)

// Unbounded disables the queue ceiling.
const Unbounded = queue.Unbounded

// Emitter delivers batches downstream. EmitBatch is called with a non-empty
// batch and must treat delivery as all-or-nothing: any error means the whole
// batch failed. EmitEmpty is called once per flush cycle that found nothing
// queued. An emitter that also implements io.Closer is closed when the
// processor is disposed.
type Emitter[T any] interface {
	EmitBatch(ctx context.Context, entries []T) error
	EmitEmpty(ctx context.Context) error
}

type Options struct {
	// BatchSizeLimit is the maximum number of entries per EmitBatch call.
	BatchSizeLimit int
	// Period is the steady-state flush interval.
	Period time.Duration
	// QueueLimit caps the number of entries buffered between flushes;
	// Unbounded removes the cap. Entries past the cap are dropped.
	QueueLimit int
	// EagerlyEmitFirstEvent makes the first enqueued entry trigger an
	// immediate flush instead of waiting a full period.
	EagerlyEmitFirstEvent bool

	// Failure policy; zero values use the backoff package defaults.
	MinimumBackoff     time.Duration
	MaximumBackoff     time.Duration
	DropBatchThreshold int
	DropQueueThreshold int

	// Diagnostics receives drop and delivery-failure notices. Optional.
	Diagnostics *selflog.Logger
}

func (o Options) validate() error {
	if o.BatchSizeLimit <= 0 {
		return errors.New("batch: BatchSizeLimit must be positive")
	}
	if o.Period <= 0 {
		return errors.New("batch: Period must be positive")
	}
	if o.QueueLimit <= 0 && o.QueueLimit != Unbounded {
		return errors.New("batch: QueueLimit must be positive or Unbounded")
	}
	return nil
}

// Processor owns the queue, the failure tracker and the timer. Any number of
// goroutines may call Emit; everything else runs on the timer's single
// logical thread, so the working batch and the tracker need no locking.
type Processor[T any] struct {
	ctx       context.Context
	opts      Options
	emitter   Emitter[T]
	queue     *queue.Queue[T]
	tracker   *backoff.Tracker
	scheduler *schedule.Scheduler
	diag      *selflog.Logger

	// working persists across failed flushes so a transient outage retries
	// the same batch instead of dropping it.
	working []T

	started     atomic.Bool
	disposing   atomic.Bool
	disposeOnce sync.Once
}

func NewProcessor[T any](ctx context.Context, emitter Emitter[T], opts Options) (*Processor[T], error) {
	if emitter == nil {
		return nil, errors.New("batch: emitter must not be nil")
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	p := &Processor[T]{
		ctx:     ctx,
		opts:    opts,
		emitter: emitter,
		queue:   queue.New[T](opts.QueueLimit),
		tracker: backoff.NewTracker(backoff.Settings{
			Period:             opts.Period,
			MinimumBackoff:     opts.MinimumBackoff,
			MaximumBackoff:     opts.MaximumBackoff,
			DropBatchThreshold: opts.DropBatchThreshold,
			DropQueueThreshold: opts.DropQueueThreshold,
		}),
		diag: opts.Diagnostics,
	}
	p.scheduler = schedule.NewScheduler(p.tick)
	return p, nil
}

// Emit buffers one entry for delivery. It never blocks and never returns an
// error: past the queue limit the entry is silently dropped. The first call
// arms the flush timer, so an idle processor costs nothing.
func (p *Processor[T]) Emit(v T) {
	if p.disposing.Load() {
		return
	}
	if !p.queue.TryEnqueue(v) {
		p.diag.Printf("dropping entry: queue limit of %d reached", p.opts.QueueLimit)
		entriesDropped.Inc()
		return
	}
	queueDepth.Set(float64(p.queue.Len()))

	if p.started.CompareAndSwap(false, true) {
		first := p.opts.Period
		if p.opts.EagerlyEmitFirstEvent {
			first = 0
		}
		p.scheduler.Start(first)
	}
}

// tick runs one flush cycle. The scheduler guarantees no two cycles overlap,
// including the final synchronous cycle during Dispose.
func (p *Processor[T]) tick() {
	defer func() {
		if p.tracker.ShouldDropBatch() && len(p.working) > 0 {
			p.diag.Printf("dropping batch of %d entries after %d consecutive failures", len(p.working), p.tracker.FailureCount())
			batchesDropped.Inc()
			p.working = nil
		}
		if p.tracker.ShouldDropQueue() {
			if n := p.discardQueue(); n > 0 {
				p.diag.Printf("dropping %d queued entries after %d consecutive failures", n, p.tracker.FailureCount())
				queueDrops.Inc()
			}
		}
		queueDepth.Set(float64(p.queue.Len()))
		if !p.disposing.Load() {
			p.scheduler.Start(p.tracker.NextInterval())
		}
	}()

	for {
		for len(p.working) < p.opts.BatchSizeLimit {
			v, ok := p.queue.TryDequeue()
			if !ok {
				break
			}
			p.working = append(p.working, v)
		}

		if len(p.working) == 0 {
			if err := p.emitter.EmitEmpty(p.ctx); err != nil {
				p.diag.Printf("empty-batch notification failed: %v", err)
			}
			return
		}

		if err := p.emitter.EmitBatch(p.ctx, p.working); err != nil {
			p.diag.Printf("emitting batch of %d entries failed: %v", len(p.working), err)
			batchesFailed.Inc()
			p.tracker.MarkFailure()
			return
		}

		batchesEmitted.Inc()
		entriesEmitted.Add(float64(len(p.working)))
		p.tracker.MarkSuccess()

		wasFull := len(p.working) >= p.opts.BatchSizeLimit
		p.working = nil
		if !wasFull {
			// A partial batch means the backlog is caught up; let the
			// period elapse before the next cycle.
			return
		}
	}
}

func (p *Processor[T]) discardQueue() int {
	n := 0
	for {
		if _, ok := p.queue.TryDequeue(); !ok {
			return n
		}
		n++
	}
}

// Dispose stops the timer, waits for an in-flight flush to finish, runs one
// final flush to drain whatever is queued, and closes the emitter if it is
// closeable. After Dispose returns the emitter is never invoked again.
func (p *Processor[T]) Dispose() {
	p.disposeOnce.Do(func() {
		p.disposing.Store(true)
		p.scheduler.Dispose()
		p.tick()
		if closer, ok := p.emitter.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				p.diag.Printf("closing emitter failed: %v", err)
			}
		}
	})
}
