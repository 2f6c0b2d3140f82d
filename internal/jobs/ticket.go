package jobs

import (
	"context"
	"sync"
)

// Ticket tracks one enqueued job and delivers its result exactly once.
type Ticket struct {
	job  Job
	done chan struct{}
	once sync.Once

	mu     sync.RWMutex
	status Status
	result Result
}

func newTicket(job Job) *Ticket {
	return &Ticket{job: job, done: make(chan struct{}), status: StatusQueued}
}

// Job returns the job this ticket tracks.
func (t *Ticket) Job() Job { return t.job }

// Status returns the job's current state.
func (t *Ticket) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Done is closed once the result is available.
func (t *Ticket) Done() <-chan struct{} { return t.done }

// Result returns the job result and whether the job has finished.
func (t *Ticket) Result() (Result, bool) {
	select {
	case <-t.done:
	default:
		return Result{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.result, true
}

// Wait blocks until the job finishes or ctx ends.
func (t *Ticket) Wait(ctx context.Context) (Result, error) {
	select {
	case <-t.done:
		r, _ := t.Result()
		return r, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (t *Ticket) setStatus(s Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == StatusDone || s == StatusDone {
		return
	}
	t.status = s
}

// complete records the result. Later calls are ignored.
func (t *Ticket) complete(r Result) {
	t.once.Do(func() {
		t.mu.Lock()
		t.result = r
		t.status = StatusDone
		t.mu.Unlock()
		close(t.done)
	})
}

func (t *Ticket) finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}
