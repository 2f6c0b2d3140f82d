// Package intake turns incoming media into queued jobs: HTTP uploads saved to
// the records directory, files dropped into a watch folder, and any other
// caller holding a path.
package intake

import (
	"github.com/snarg/whisper-worker/internal/jobs"
	"github.com/snarg/whisper-worker/internal/metrics"
)

// Enqueuer accepts jobs. *jobs.WorkerPool implements it.
type Enqueuer interface {
	Enqueue(job jobs.Job) (*jobs.Ticket, bool)
}

// Submit enqueues job and records the outcome per intake source.
func Submit(q Enqueuer, job jobs.Job) (*jobs.Ticket, bool) {
	t, ok := q.Enqueue(job)
	if ok {
		metrics.JobsEnqueuedTotal.WithLabelValues(string(job.Source)).Inc()
	} else {
		metrics.JobsRejectedTotal.WithLabelValues(string(job.Source)).Inc()
	}
	return t, ok
}
