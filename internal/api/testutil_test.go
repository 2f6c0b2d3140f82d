package api

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/snarg/whisper-worker/internal/errs"
	"github.com/snarg/whisper-worker/internal/jobs"
	"github.com/snarg/whisper-worker/internal/transcode"
	"github.com/snarg/whisper-worker/internal/transcript"
)

// cannedProcessor finishes every job with a fixed result.
type cannedProcessor struct {
	mu     sync.Mutex
	seen   []jobs.Job
	result jobs.Result
	block  chan struct{}
}

func (p *cannedProcessor) Process(ctx context.Context, job jobs.Job, track func(jobs.Status)) jobs.Result {
	p.mu.Lock()
	p.seen = append(p.seen, job)
	p.mu.Unlock()
	track(jobs.StatusTranscribing)
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
		}
	}
	res := p.result
	res.JobID = job.ID
	return res
}

func (p *cannedProcessor) jobs() []jobs.Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]jobs.Job(nil), p.seen...)
}

func successResult() jobs.Result {
	return jobs.Result{
		Status: jobs.ResultSuccess,
		Batches: [][]transcript.Segment{
			{{ID: 0, Start: "00:00:00.000", End: "00:00:02.500", Content: "hello"}},
			{{ID: 0, Start: "00:00:02.500", End: "00:00:04.000", Content: "world"}},
		},
		Language: "en",
		Media:    &transcode.MediaInfo{Format: "MP4", FileType: "M4A", Title: "Standup"},
	}
}

func failedResult() jobs.Result {
	return jobs.Result{
		Status: jobs.ResultError,
		Error:  errs.New(errs.Transcode, "Invalid data found when processing input", nil),
	}
}

func newTestPool(t *testing.T, proc jobs.JobProcessor, queueSize int) *jobs.WorkerPool {
	t.Helper()
	wp := jobs.NewWorkerPool(jobs.PoolOptions{
		Processor: proc,
		Workers:   1,
		QueueSize: queueSize,
		Log:       zerolog.Nop(),
	})
	wp.Start()
	t.Cleanup(func() { wp.Stop(context.Background()) })
	return wp
}

// dirSaver stores uploads in a temp dir and remembers the last name.
type dirSaver struct {
	dir      string
	lastName string
	lastData string
	err      error
}

func (s *dirSaver) Save(name string, r io.Reader) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.lastName = name
	s.lastData = string(data)
	path := filepath.Join(s.dir, "1708881234000-"+filepath.Base(name))
	return path, os.WriteFile(path, data, 0o644)
}
