// Package transcode converts arbitrary media into the 16 kHz mono PCM WAV the
// whisper engine expects.
package transcode

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
	"github.com/snarg/whisper-worker/internal/errs"
)

// Transcoder produces the canonical audio file for a job.
type Transcoder interface {
	Transcode(ctx context.Context, inputPath, outputPath string) error
}

// commandResult is the captured output of one external command.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for tests.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := commandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		res.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		}
	}
	return res, err
}

// FFmpeg transcodes with the ffmpeg CLI.
type FFmpeg struct {
	path   string
	runner commandRunner
	stat   func(string) (os.FileInfo, error)
	log    zerolog.Logger
}

// NewFFmpeg creates a transcoder that runs the ffmpeg binary at path
// ("ffmpeg" resolves through PATH).
func NewFFmpeg(path string, log zerolog.Logger) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{path: path, runner: execRunner{}, stat: os.Stat, log: log}
}

// Available reports whether the ffmpeg binary can be found.
func (f *FFmpeg) Available() bool {
	_, err := exec.LookPath(f.path)
	return err == nil
}

// Transcode writes outputPath as mono 16 kHz signed 16-bit PCM. Failures are
// returned as *errs.Error with code ERROR_TRANSCODE and ffmpeg's own message.
// The output file is left in place for the caller.
func (f *FFmpeg) Transcode(ctx context.Context, inputPath, outputPath string) error {
	args := Args(inputPath, outputPath)
	f.log.Debug().Str("command", f.path+" "+strings.Join(args, " ")).Msg("ffmpeg start")

	res, err := f.runner.Run(ctx, f.path, args...)
	if err != nil {
		msg := stderrTail(res.Stderr, 3)
		if msg == "" {
			msg = err.Error()
		}
		f.log.Warn().Err(err).Int("exit_code", res.ExitCode).Str("stderr", msg).Msg("ffmpeg failed")
		return errs.New(errs.Transcode, msg, err)
	}

	if _, err := f.stat(outputPath); err != nil {
		return errs.New(errs.Transcode, "ffmpeg completed but output file is missing", err)
	}
	f.log.Debug().Str("output", outputPath).Msg("transcoding succeeded")
	return nil
}

// Args builds the ffmpeg arguments for canonical whisper input.
func Args(inputPath, outputPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		outputPath,
	}
}

// stderrTail returns the last n non-empty lines of ffmpeg's stderr, which is
// where it puts the actual reason for a failure.
func stderrTail(stderr string, n int) string {
	var lines []string
	for _, l := range strings.Split(stderr, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "; ")
}

