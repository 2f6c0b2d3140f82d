package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/snarg/whisper-worker/internal/errs"
	"github.com/snarg/whisper-worker/internal/transcript"
	"golang.org/x/sync/errgroup"
)

// detectedLangRe matches whisper.cpp's stderr line
// "auto-detected language: en (p = 0.973)".
var detectedLangRe = regexp.MustCompile(`language: (.+) \(p = `)

const readChunkSize = 4096

// Invoker runs the engine and converts its output into events.
type Invoker struct {
	runner ProcessRunner
	log    zerolog.Logger
}

// NewInvoker creates an Invoker. A nil runner uses ExecRunner.
func NewInvoker(runner ProcessRunner, log zerolog.Logger) *Invoker {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Invoker{runner: runner, log: log}
}

// Run starts cmd and returns its event stream. The channel is closed right
// after the terminal event. Cancelling ctx kills the process and ends the
// stream with an abort event. The caller must drain the channel.
func (inv *Invoker) Run(ctx context.Context, jobID string, cmd Command) <-chan Event {
	out := make(chan Event, 16)
	go inv.run(ctx, jobID, cmd, out)
	return out
}

func (inv *Invoker) run(ctx context.Context, jobID string, cmd Command, out chan<- Event) {
	defer close(out)
	log := inv.log.With().Str("job_id", jobID).Logger()
	emit := func(ev Event) {
		ev.JobID = jobID
		out <- ev
	}

	emit(Event{Type: EventStart})
	log.Debug().Str("command", cmd.String()).Msg("starting whisper")

	proc, err := inv.runner.Start(ctx, cmd)
	if err != nil {
		log.Error().Err(err).Str("path", cmd.Path).Msg("whisper spawn failed")
		emit(Event{Type: EventError, Code: errs.Spawn, Message: err.Error()})
		return
	}

	exited := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			if err := proc.Kill(); err != nil {
				log.Warn().Err(err).Msg("failed to kill whisper")
			}
		case <-exited:
		}
	}()

	var g errgroup.Group
	g.Go(func() error {
		return readChunks(proc.Stdout(), func(lines string) {
			if segs := transcript.ParseChunk(lines); len(segs) > 0 {
				emit(Event{Type: EventData, Segments: segs})
			}
		})
	})
	g.Go(func() error {
		return readChunks(proc.Stderr(), func(lines string) {
			log.Debug().Str("stderr", strings.TrimSpace(lines)).Msg("whisper output")
			if m := detectedLangRe.FindStringSubmatch(lines); m != nil {
				emit(Event{Type: EventLanguage, Language: m[1]})
			}
		})
	})
	if err := g.Wait(); err != nil {
		log.Debug().Err(err).Msg("whisper stream read ended with error")
	}

	code, waitErr := proc.Wait()
	close(exited)

	switch {
	case ctx.Err() != nil:
		log.Info().Err(ctx.Err()).Msg("whisper aborted")
		emit(Event{Type: EventAbort, Code: errs.Aborted, Message: ctx.Err().Error()})
	case waitErr != nil:
		emit(Event{Type: EventError, Code: errs.EngineExit, Message: waitErr.Error()})
	case code != 0:
		log.Warn().Int("exit_code", code).Msg("whisper exited with error")
		emit(Event{Type: EventError, Code: errs.EngineExit, Message: fmt.Sprintf("exit status %d", code)})
	default:
		emit(Event{Type: EventSuccess})
	}
}

// readChunks reads r until EOF and hands complete lines to fn, one call per
// read that finished at least one line. An unterminated tail is delivered at EOF.
func readChunks(r io.Reader, fn func(lines string)) error {
	var lb transcript.LineBuffer
	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if lines := lb.Feed(string(buf[:n])); lines != "" {
				fn(lines)
			}
		}
		if err != nil {
			if rest := lb.Flush(); rest != "" {
				fn(rest)
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
