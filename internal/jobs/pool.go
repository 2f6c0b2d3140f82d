package jobs

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// JobProcessor runs one job to a terminal result.
type JobProcessor interface {
	Process(ctx context.Context, job Job, track func(Status)) Result
}

// QueueStats reports the current state of the job queue.
type QueueStats struct {
	Pending   int   `json:"pending"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Workers   int   `json:"workers"`
	Capacity  int   `json:"capacity"`
}

// PoolOptions configures the worker pool.
type PoolOptions struct {
	Processor JobProcessor
	Workers   int
	QueueSize int
	// Retain is how many finished tickets stay available to Lookup.
	Retain int
	Log    zerolog.Logger
}

// WorkerPool is the job queue: a bounded channel drained by a fixed number of
// workers. Each enqueued job gets a Ticket that completes exactly once.
type WorkerPool struct {
	jobs   chan *Ticket
	proc   JobProcessor
	opts   PoolOptions
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	stopped bool

	regMu    sync.RWMutex
	registry map[string]*Ticket
	order    []string

	active    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// NewWorkerPool creates a worker pool. Call Start to begin processing.
func NewWorkerPool(opts PoolOptions) *WorkerPool {
	if opts.Retain <= 0 {
		opts.Retain = 1000
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		jobs:     make(chan *Ticket, opts.QueueSize),
		proc:     opts.Processor,
		opts:     opts,
		log:      opts.Log,
		ctx:      ctx,
		cancel:   cancel,
		registry: make(map[string]*Ticket),
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.opts.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
	wp.log.Info().Int("workers", wp.opts.Workers).Int("queue_size", wp.opts.QueueSize).Msg("transcription worker pool started")
}

// Stop stops accepting jobs and waits for queued ones to drain. If ctx ends
// first, running engines are cancelled and the remaining jobs finish as aborted.
func (wp *WorkerPool) Stop(ctx context.Context) {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	close(wp.jobs)
	wp.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		wp.log.Warn().Msg("shutdown deadline reached, aborting running jobs")
		wp.cancel()
		<-done
	}
	wp.cancel()

	wp.log.Info().
		Int64("completed", wp.completed.Load()).
		Int64("failed", wp.failed.Load()).
		Msg("transcription worker pool stopped")
}

// Enqueue adds a job to the queue, assigning an ID and timestamp when unset.
// It returns false if the queue is full or the pool has been stopped.
func (wp *WorkerPool) Enqueue(job Job) (*Ticket, bool) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	if job.CanonicalPath == "" {
		job.CanonicalPath = CanonicalPathFor(job.InputPath)
	}
	t := newTicket(job)

	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.stopped {
		return nil, false
	}
	select {
	case wp.jobs <- t:
	default:
		return nil, false
	}
	wp.register(t)
	return t, true
}

// Lookup returns the ticket of a queued, running or recently finished job.
func (wp *WorkerPool) Lookup(id string) (*Ticket, bool) {
	wp.regMu.RLock()
	defer wp.regMu.RUnlock()
	t, ok := wp.registry[id]
	return t, ok
}

// Stats returns current queue statistics.
func (wp *WorkerPool) Stats() QueueStats {
	return QueueStats{
		Pending:   len(wp.jobs),
		Active:    wp.active.Load(),
		Completed: wp.completed.Load(),
		Failed:    wp.failed.Load(),
		Workers:   wp.opts.Workers,
		Capacity:  cap(wp.jobs),
	}
}

// Pending returns the number of jobs waiting for a worker.
func (wp *WorkerPool) Pending() int { return len(wp.jobs) }

// ActiveJobs returns the number of jobs currently being processed.
func (wp *WorkerPool) ActiveJobs() int64 { return wp.active.Load() }

func (wp *WorkerPool) register(t *Ticket) {
	wp.regMu.Lock()
	defer wp.regMu.Unlock()
	wp.registry[t.job.ID] = t
	wp.order = append(wp.order, t.job.ID)

	// Evict the oldest finished tickets once over the limit; unfinished ones
	// stay so their waiters can still be found.
	for i := 0; len(wp.registry) > wp.opts.Retain && i < len(wp.order); {
		id := wp.order[i]
		old, ok := wp.registry[id]
		if ok && !old.finished() {
			i++
			continue
		}
		delete(wp.registry, id)
		wp.order = append(wp.order[:i], wp.order[i+1:]...)
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	log := wp.log.With().Int("worker", id).Logger()

	for t := range wp.jobs {
		wp.active.Add(1)
		res := wp.proc.Process(wp.ctx, t.job, t.setStatus)
		wp.active.Add(-1)

		if res.OK() {
			wp.completed.Add(1)
		} else {
			wp.failed.Add(1)
			log.Warn().
				Str("job_id", t.job.ID).
				Str("input", t.job.InputPath).
				Msg("transcription failed")
		}
		t.complete(res)
	}
}
