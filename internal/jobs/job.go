// Package jobs runs transcription jobs: transcode, run the engine, collect the
// streamed segments, and clean up the job's temp files.
package jobs

import (
	"time"

	"github.com/snarg/whisper-worker/internal/errs"
	"github.com/snarg/whisper-worker/internal/transcode"
	"github.com/snarg/whisper-worker/internal/transcript"
)

// Status is a job's position in the processing state machine.
type Status string

const (
	StatusQueued       Status = "queued"
	StatusTranscoding  Status = "transcoding"
	StatusTranscribing Status = "transcribing"
	StatusCollecting   Status = "collecting"
	StatusDone         Status = "done"
)

// Source records how a job entered the queue.
type Source string

const (
	SourceHTTP  Source = "http"
	SourceWatch Source = "watch"
	SourceMQTT  Source = "mqtt"
)

// Job is one queued transcription. InputPath is owned by the job once queued:
// it and CanonicalPath are removed when the job finishes.
type Job struct {
	ID            string    `json:"id"`
	InputPath     string    `json:"input_path"`
	CanonicalPath string    `json:"canonical_path"`
	OriginalName  string    `json:"original_name,omitempty"`
	Source        Source    `json:"source,omitempty"`
	Language      string    `json:"language,omitempty"` // overrides the configured language
	Prompt        string    `json:"prompt,omitempty"`   // overrides the configured prompt
	EnqueuedAt    time.Time `json:"enqueued_at"`
}

// CanonicalPathFor returns where the transcoded audio for inputPath is written.
func CanonicalPathFor(inputPath string) string {
	return inputPath + ".wav"
}

// ResultStatus is the outcome of a finished job.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultError   ResultStatus = "error"
)

// Result is what a finished job hands back to whoever enqueued it. Batches keep
// the grouping the engine streamed them in; segment ids restart at 0 in every
// batch. On error Batches is nil: partial output is never returned.
type Result struct {
	JobID      string                 `json:"job_id"`
	Status     ResultStatus           `json:"status"`
	Batches    [][]transcript.Segment `json:"batches"`
	Language   string                 `json:"language,omitempty"`
	Media      *transcode.MediaInfo   `json:"media,omitempty"` // nil when the container was not recognised
	Aborted    bool                   `json:"aborted,omitempty"`
	Skipped    errs.Code              `json:"skipped,omitempty"`
	Error      *errs.Error            `json:"error,omitempty"`
	DurationMs int64                  `json:"duration_ms"`
}

// OK reports whether the job succeeded.
func (r Result) OK() bool {
	return r.Status == ResultSuccess
}

// Segments returns the batches flattened and renumbered from 0.
func (r Result) Segments() []transcript.Segment {
	return transcript.Flatten(r.Batches)
}
