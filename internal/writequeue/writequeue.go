// Package writequeue serializes every mutation to internal/store behind
// a single FIFO worker goroutine. It is the sole caller of Store's write
// path: running two writers concurrently against the embedded database
// would violate Store's single-writer discipline, so nothing else in
// this module may call Store.ApplyWrite/ApplyBatch directly.
package writequeue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	apperrors "github.com/bpsong/mailroom/internal/errors"
	"github.com/bpsong/mailroom/internal/logger"
	"github.com/bpsong/mailroom/internal/store"
)

// Tunables from spec.md 4.2.
const (
	maxAttempts       = 3
	baseBackoff       = 100 * time.Millisecond
	checkpointCount   = 1000
	checkpointInterval = 300 * time.Second

	// softDepthThreshold is the §5 load-shedding knob: once this many jobs
	// are queued ahead of a new submission, Submit/SubmitBatch return a
	// Busy error instead of enqueuing and waiting, so a backed-up writer
	// fails fast (503) rather than piling up blocked request goroutines.
	softDepthThreshold = 512
)

// job is one unit of work: either a single statement or an atomic batch.
type job struct {
	stmts  []store.Statement
	result chan error
}

// Queue is the in-process write serializer in front of Store.
type Queue struct {
	st *store.Store

	jobs chan job
	done chan struct{}
	wg   sync.WaitGroup

	cron *cron.Cron

	mu            sync.Mutex
	writesSince   int
	lastCheckpoint time.Time
}

// New constructs a Queue bound to st but does not start its worker;
// call Run to start consuming jobs.
func New(st *store.Store) *Queue {
	return &Queue{
		st:             st,
		jobs:           make(chan job, 4096),
		done:           make(chan struct{}),
		lastCheckpoint: time.Now(),
	}
}

// Run starts the worker goroutine and the periodic checkpoint ticker.
// It blocks until Shutdown is called.
func (q *Queue) Run(ctx context.Context) {
	q.cron = cron.New()
	// Belt-and-suspenders alongside the write-counter trigger: even a
	// quiet system gets checkpointed at least every checkpointInterval.
	q.cron.AddFunc("@every 5m", func() {
		q.mu.Lock()
		due := time.Since(q.lastCheckpoint) >= checkpointInterval
		q.mu.Unlock()
		if due {
			q.runCheckpoint(context.Background())
		}
	})
	q.cron.Start()
	defer q.cron.Stop()

	q.wg.Add(1)
	defer q.wg.Done()

	for {
		select {
		case j := <-q.jobs:
			q.process(ctx, j)
		case <-q.done:
			q.drain(ctx)
			q.finalCheckpoint(ctx)
			return
		}
	}
}

// Submit enqueues a single statement and blocks until it has been
// applied (or permanently failed).
func (q *Queue) Submit(ctx context.Context, sql string, args ...any) error {
	return q.submitStatements(ctx, []store.Statement{{SQL: sql, Args: args}})
}

// SubmitBatch enqueues an atomic group of statements.
func (q *Queue) SubmitBatch(ctx context.Context, stmts []store.Statement) error {
	return q.submitStatements(ctx, stmts)
}

func (q *Queue) submitStatements(ctx context.Context, stmts []store.Statement) error {
	if q.Depth() >= softDepthThreshold {
		return apperrors.NewBusy()
	}

	j := job{stmts: stmts, result: make(chan error, 1)}
	select {
	case q.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-j.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Depth reports the current queue length, used as the Busy backpressure
// signal upstream.
func (q *Queue) Depth() int {
	return len(q.jobs)
}

// SecondsSinceCheckpoint reports how long it has been since the last
// successful WAL checkpoint, for the health check's operator-facing
// staleness signal.
func (q *Queue) SecondsSinceCheckpoint() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return time.Since(q.lastCheckpoint).Seconds()
}

func (q *Queue) process(ctx context.Context, j job) {
	var err error
	backoff := baseBackoff
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if len(j.stmts) == 1 {
			err = q.st.ApplyWrite(ctx, j.stmts[0].SQL, j.stmts[0].Args...)
		} else {
			err = q.st.ApplyBatch(ctx, j.stmts)
		}
		if err == nil {
			q.recordSuccess(ctx)
			j.result <- nil
			return
		}
		if !errors.Is(err, store.ErrConflict) {
			// Non-transient: surface immediately, no retry.
			j.result <- err
			return
		}
		if attempt < maxAttempts {
			logger.WriteQueue().Warn().Int("attempt", attempt).Msg("write conflict, retrying")
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	j.result <- err
}

func (q *Queue) recordSuccess(ctx context.Context) {
	q.mu.Lock()
	q.writesSince++
	due := q.writesSince >= checkpointCount
	q.mu.Unlock()
	if due {
		q.runCheckpoint(ctx)
	}
}

func (q *Queue) runCheckpoint(ctx context.Context) {
	if err := q.st.Checkpoint(ctx); err != nil {
		logger.WriteQueue().Error().Err(err).Msg("checkpoint failed")
		return
	}
	q.mu.Lock()
	q.writesSince = 0
	q.lastCheckpoint = time.Now()
	q.mu.Unlock()
	logger.WriteQueue().Debug().Msg("checkpoint complete")
}

func (q *Queue) drain(ctx context.Context) {
	for {
		select {
		case j := <-q.jobs:
			q.process(ctx, j)
		default:
			return
		}
	}
}

func (q *Queue) finalCheckpoint(ctx context.Context) {
	if err := q.st.Checkpoint(ctx); err != nil {
		logger.WriteQueue().Error().Err(err).Msg("final checkpoint failed")
	}
}

// Shutdown stops accepting new work conceptually (callers must stop
// calling Submit themselves), drains in-flight jobs, issues a final
// checkpoint, and returns once Run has exited.
func (q *Queue) Shutdown(ctx context.Context) {
	close(q.done)
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.WriteQueue().Warn().Msg("shutdown grace period exceeded, returning without full drain confirmation")
	}
}
