package jobs

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/whisper-worker/internal/errs"
	"github.com/snarg/whisper-worker/internal/metrics"
	"github.com/snarg/whisper-worker/internal/transcode"
	"github.com/snarg/whisper-worker/internal/transcript"
	"github.com/snarg/whisper-worker/internal/whisper"
)

// Engine runs one whisper command and streams its events.
type Engine interface {
	Run(ctx context.Context, jobID string, cmd whisper.Command) <-chan whisper.Event
}

// Event types handed to PublishFunc.
const (
	EventJobStatus  = "job_status"
	EventTranscript = "transcript"
	EventJobResult  = "job_result"
)

// PublishFunc receives job lifecycle notifications. payload is a StatusUpdate,
// a whisper.Event or a Result depending on eventType.
type PublishFunc func(eventType, jobID string, payload any)

// StatusUpdate is the payload of an EventJobStatus notification.
type StatusUpdate struct {
	JobID  string `json:"job_id"`
	Status Status `json:"status"`
}

// ProcessorOptions configures a Processor.
type ProcessorOptions struct {
	Transcoder transcode.Transcoder
	Engine     Engine
	Builder    *whisper.CommandBuilder
	Model      whisper.ModelSelection
	Options    whisper.Options
	JobTimeout time.Duration // 0 = no limit on the engine run
	Publish    PublishFunc
	Log        zerolog.Logger
}

// Processor drives a single job through transcoding and transcription.
type Processor struct {
	opts   ProcessorOptions
	log    zerolog.Logger
	stat   func(string) (os.FileInfo, error)
	remove func(string) error
}

// NewProcessor creates a Processor.
func NewProcessor(opts ProcessorOptions) *Processor {
	return &Processor{
		opts:   opts,
		log:    opts.Log,
		stat:   os.Stat,
		remove: os.Remove,
	}
}

// Process runs job to completion and always returns a terminal Result. Both
// temp files are removed before it returns. track, if non-nil, is called on
// every state change.
func (p *Processor) Process(ctx context.Context, job Job, track func(Status)) Result {
	start := time.Now()
	log := p.log.With().Str("job_id", job.ID).Logger()
	if job.CanonicalPath == "" {
		job.CanonicalPath = CanonicalPathFor(job.InputPath)
	}
	setStatus := func(s Status) {
		if track != nil {
			track(s)
		}
		p.publish(EventJobStatus, job.ID, StatusUpdate{JobID: job.ID, Status: s})
	}

	res := p.run(ctx, log, job, setStatus)
	res.JobID = job.ID
	res.DurationMs = time.Since(start).Milliseconds()

	p.cleanup(log, job)
	setStatus(StatusDone)
	p.publish(EventJobResult, job.ID, res)

	metrics.JobsTotal.WithLabelValues(string(res.Status)).Inc()
	metrics.JobDuration.Observe(time.Since(start).Seconds())

	ev := log.Info()
	if !res.OK() {
		ev = log.Warn().Str("error_code", string(res.Error.Code)).Str("error", res.Error.Message)
	}
	ev.Str("status", string(res.Status)).
		Int("batches", len(res.Batches)).
		Int64("duration_ms", res.DurationMs).
		Msg("job finished")
	return res
}

func (p *Processor) run(ctx context.Context, log zerolog.Logger, job Job, setStatus func(Status)) Result {
	if ctx.Err() != nil {
		log.Info().Msg("job cancelled before start")
		return abortedResult(nil, "")
	}

	if _, err := p.stat(job.InputPath); errors.Is(err, fs.ErrNotExist) {
		log.Info().Str("input", job.InputPath).Msg("input file missing, nothing to transcribe")
		return Result{Status: ResultSuccess, Batches: [][]transcript.Segment{}, Skipped: errs.MissingSource}
	}

	setStatus(StatusTranscoding)
	media := probe(log, job.InputPath)
	tcStart := time.Now()
	if err := p.opts.Transcoder.Transcode(ctx, job.InputPath, job.CanonicalPath); err != nil {
		res := errorResult(errs.As(err, errs.Transcode))
		if ctx.Err() != nil {
			log.Info().Err(err).Msg("job cancelled during transcoding")
			res = abortedResult(nil, "")
		}
		res.Media = media
		return res
	}
	metrics.TranscodeDuration.Observe(time.Since(tcStart).Seconds())

	setStatus(StatusTranscribing)
	engineCtx := ctx
	if p.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		engineCtx, cancel = context.WithTimeout(ctx, p.opts.JobTimeout)
		defer cancel()
	}

	opts := p.opts.Options
	if job.Language != "" {
		opts.Language = job.Language
	}
	if job.Prompt != "" {
		opts.Prompt = job.Prompt
	}
	cmd := p.opts.Builder.Build(job.CanonicalPath, p.opts.Model, opts)
	log.Info().Str("command", cmd.String()).Msg("whisper command")

	res := p.collect(p.opts.Engine.Run(engineCtx, job.ID, cmd), setStatus)
	res.Media = media
	return res
}

// probe identifies the input container from its tags. Unrecognised files are
// normal (plain WAV, WebM) and leave the result without media info.
func probe(log zerolog.Logger, path string) *transcode.MediaInfo {
	info, err := transcode.Probe(path)
	if err != nil {
		log.Debug().Err(err).Str("input", path).Msg("input media not identified")
		return nil
	}
	log.Debug().
		Str("format", info.Format).
		Str("file_type", info.FileType).
		Str("title", info.Title).
		Msg("input media identified")
	return &info
}

// collect drains the engine stream. Every data event becomes its own batch.
func (p *Processor) collect(events <-chan whisper.Event, setStatus func(Status)) Result {
	batches := [][]transcript.Segment{}
	var language string
	collecting := false

	for ev := range events {
		p.publish(EventTranscript, ev.JobID, ev)
		metrics.EngineEventsTotal.WithLabelValues(string(ev.Type)).Inc()

		switch ev.Type {
		case whisper.EventData:
			if !collecting {
				collecting = true
				setStatus(StatusCollecting)
			}
			batches = append(batches, ev.Segments)
			metrics.SegmentsTotal.Add(float64(len(ev.Segments)))
		case whisper.EventLanguage:
			language = ev.Language
		case whisper.EventSuccess:
			return Result{Status: ResultSuccess, Batches: batches, Language: language}
		case whisper.EventAbort:
			return abortedResult(batches, language)
		case whisper.EventError:
			return errorResult(ev.Err())
		}
	}
	return errorResult(errs.New(errs.EngineExit, "engine stream ended without a result", nil))
}

// abortedResult is the outcome of any cancellation: success with whatever
// batches were collected before it.
func abortedResult(batches [][]transcript.Segment, language string) Result {
	if batches == nil {
		batches = [][]transcript.Segment{}
	}
	return Result{Status: ResultSuccess, Batches: batches, Language: language, Aborted: true}
}

func errorResult(e *errs.Error) Result {
	return Result{Status: ResultError, Error: e}
}

// cleanup removes the canonical audio and the original upload. Missing files
// are fine: the job may never have got as far as transcoding.
func (p *Processor) cleanup(log zerolog.Logger, job Job) {
	for _, path := range []string{job.CanonicalPath, job.InputPath} {
		if path == "" {
			continue
		}
		if err := p.remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(err).Str("path", path).Msg("failed to remove job file")
		}
	}
}

func (p *Processor) publish(eventType, jobID string, payload any) {
	if p.opts.Publish != nil {
		p.opts.Publish(eventType, jobID, payload)
	}
}
