package jobs

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/whisper-worker/internal/errs"
	"github.com/snarg/whisper-worker/internal/transcript"
	"github.com/snarg/whisper-worker/internal/whisper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTranscoder struct {
	calls int
	err   error
	hang  bool // block until ctx is cancelled, like a stuck ffmpeg
}

func (f *fakeTranscoder) Transcode(ctx context.Context, in, out string) error {
	f.calls++
	if f.hang {
		<-ctx.Done()
		return errs.New(errs.Transcode, "signal: killed", ctx.Err())
	}
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(out, []byte("RIFF"), 0o644)
}

// scriptedEngine replays a fixed event list. A nil script blocks until ctx
// is cancelled and then aborts, like a hung whisper process being killed.
type scriptedEngine struct {
	script  []whisper.Event
	calls   int
	lastCmd whisper.Command
}

func (e *scriptedEngine) Run(ctx context.Context, jobID string, cmd whisper.Command) <-chan whisper.Event {
	e.calls++
	e.lastCmd = cmd
	ch := make(chan whisper.Event, len(e.script)+2)
	go func() {
		defer close(ch)
		if e.script == nil {
			ch <- whisper.Event{Type: whisper.EventStart, JobID: jobID}
			<-ctx.Done()
			ch <- whisper.Event{Type: whisper.EventAbort, JobID: jobID, Code: errs.Aborted}
			return
		}
		for _, ev := range e.script {
			ev.JobID = jobID
			ch <- ev
		}
	}()
	return ch
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) publish(eventType, _ string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if su, ok := payload.(StatusUpdate); ok {
		r.events = append(r.events, eventType+":"+string(su.Status))
		return
	}
	r.events = append(r.events, eventType)
}

func seg(start, end, content string, id int) transcript.Segment {
	return transcript.Segment{ID: id, Start: start, End: end, Content: content}
}

func newTestProcessor(tc *fakeTranscoder, eng *scriptedEngine, rec *recorder) *Processor {
	opts := ProcessorOptions{
		Transcoder: tc,
		Engine:     eng,
		Builder:    whisper.NewCommandBuilder("/opt/whisper.cpp", whisper.PlatformCapabilities{OS: "linux", Arch: "amd64"}),
		Model:      whisper.ModelSelection{ModelPath: "/models/ggml-tiny.bin"},
		Options:    whisper.Options{Language: "en"},
		Log:        zerolog.Nop(),
	}
	if rec != nil {
		opts.Publish = rec.publish
	}
	return NewProcessor(opts)
}

func newInputFile(t *testing.T) Job {
	t.Helper()
	path := filepath.Join(t.TempDir(), "1708881234000-meeting.m4a")
	require.NoError(t, os.WriteFile(path, []byte("fake-audio"), 0o644))
	return Job{ID: "job-1", InputPath: path, CanonicalPath: CanonicalPathFor(path)}
}

func assertRemoved(t *testing.T, job Job) {
	t.Helper()
	for _, p := range []string{job.InputPath, job.CanonicalPath} {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err), "%s should be removed", p)
	}
}

func TestProcessSuccess(t *testing.T) {
	tc := &fakeTranscoder{}
	eng := &scriptedEngine{script: []whisper.Event{
		{Type: whisper.EventStart},
		{Type: whisper.EventData, Segments: []transcript.Segment{seg("00:00:00.000", "00:00:01.000", "a", 0)}},
		{Type: whisper.EventLanguage, Language: "en"},
		{Type: whisper.EventData, Segments: []transcript.Segment{
			seg("00:00:01.000", "00:00:02.000", "b", 0),
			seg("00:00:02.000", "00:00:03.000", "c", 1),
		}},
		{Type: whisper.EventSuccess},
	}}
	rec := &recorder{}
	p := newTestProcessor(tc, eng, rec)
	job := newInputFile(t)

	var states []Status
	res := p.Process(context.Background(), job, func(s Status) { states = append(states, s) })

	require.True(t, res.OK(), "result: %+v", res)
	assert.Equal(t, "job-1", res.JobID)
	require.Len(t, res.Batches, 2)
	assert.Len(t, res.Batches[0], 1)
	assert.Len(t, res.Batches[1], 2)
	assert.Equal(t, 0, res.Batches[1][0].ID, "ids stay batch-local")
	assert.Equal(t, "en", res.Language)
	assert.Len(t, res.Segments(), 3)
	assert.Nil(t, res.Media, "plain bytes are not an identifiable container")

	assert.Equal(t, []Status{StatusTranscoding, StatusTranscribing, StatusCollecting, StatusDone}, states)
	assert.Equal(t, 1, tc.calls)
	assert.Equal(t, job.CanonicalPath, eng.lastCmd.Args[len(eng.lastCmd.Args)-1])
	assertRemoved(t, job)

	assert.Equal(t, EventJobResult, rec.events[len(rec.events)-1])
	assert.Contains(t, rec.events, EventTranscript)
}

func TestProcessMissingInput(t *testing.T) {
	tc := &fakeTranscoder{}
	eng := &scriptedEngine{}
	p := newTestProcessor(tc, eng, nil)

	job := Job{ID: "job-2", InputPath: filepath.Join(t.TempDir(), "gone.m4a")}
	res := p.Process(context.Background(), job, nil)

	require.True(t, res.OK())
	assert.NotNil(t, res.Batches)
	assert.Empty(t, res.Batches)
	assert.Equal(t, errs.MissingSource, res.Skipped)
	assert.Zero(t, tc.calls, "transcoder must not run")
	assert.Zero(t, eng.calls, "engine must not run")
}

func TestProcessTranscodeFailure(t *testing.T) {
	tc := &fakeTranscoder{err: errs.New(errs.Transcode, "Invalid data found when processing input", nil)}
	eng := &scriptedEngine{}
	p := newTestProcessor(tc, eng, nil)
	job := newInputFile(t)

	res := p.Process(context.Background(), job, nil)

	require.False(t, res.OK())
	require.NotNil(t, res.Error)
	assert.Equal(t, errs.Transcode, res.Error.Code)
	assert.Equal(t, "Invalid data found when processing input", res.Error.Message)
	assert.Zero(t, eng.calls)
	assertRemoved(t, job)
}

func TestProcessEngineExitDiscardsProgress(t *testing.T) {
	eng := &scriptedEngine{script: []whisper.Event{
		{Type: whisper.EventStart},
		{Type: whisper.EventData, Segments: []transcript.Segment{seg("00:00:00.000", "00:00:01.000", "partial", 0)}},
		{Type: whisper.EventError, Code: errs.EngineExit, Message: "exit status 1"},
	}}
	p := newTestProcessor(&fakeTranscoder{}, eng, nil)
	job := newInputFile(t)

	res := p.Process(context.Background(), job, nil)

	require.False(t, res.OK())
	assert.Equal(t, errs.EngineExit, res.Error.Code)
	assert.Nil(t, res.Batches)
	assertRemoved(t, job)
}

func TestProcessSpawnFailure(t *testing.T) {
	eng := &scriptedEngine{script: []whisper.Event{
		{Type: whisper.EventStart},
		{Type: whisper.EventError, Code: errs.Spawn, Message: "no such file or directory"},
	}}
	res := newTestProcessor(&fakeTranscoder{}, eng, nil).Process(context.Background(), newInputFile(t), nil)
	require.False(t, res.OK())
	assert.Equal(t, errs.Spawn, res.Error.Code)
}

func TestProcessTimeoutAborts(t *testing.T) {
	eng := &scriptedEngine{}
	p := newTestProcessor(&fakeTranscoder{}, eng, nil)
	p.opts.JobTimeout = 50 * time.Millisecond
	job := newInputFile(t)

	done := make(chan Result, 1)
	go func() { done <- p.Process(context.Background(), job, nil) }()

	select {
	case res := <-done:
		assert.True(t, res.OK())
		assert.True(t, res.Aborted)
		assertRemoved(t, job)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout did not abort the engine")
	}
}

func TestProcessCancelledBeforeStart(t *testing.T) {
	tc := &fakeTranscoder{}
	p := newTestProcessor(tc, &scriptedEngine{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job := newInputFile(t)
	res := p.Process(ctx, job, nil)
	require.True(t, res.OK(), "result: %+v", res)
	assert.True(t, res.Aborted)
	assert.NotNil(t, res.Batches)
	assert.Empty(t, res.Batches)
	assert.Nil(t, res.Error)
	assert.Zero(t, tc.calls)
	assertRemoved(t, job)
}

func TestProcessCancelledDuringTranscode(t *testing.T) {
	tc := &fakeTranscoder{hang: true}
	eng := &scriptedEngine{}
	p := newTestProcessor(tc, eng, nil)
	job := newInputFile(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res := p.Process(ctx, job, nil)

	require.True(t, res.OK(), "result: %+v", res)
	assert.True(t, res.Aborted)
	assert.Empty(t, res.Batches)
	assert.Zero(t, eng.calls, "engine must not run")
	assertRemoved(t, job)
}

func TestProcessReportsMedia(t *testing.T) {
	eng := &scriptedEngine{script: []whisper.Event{{Type: whisper.EventStart}, {Type: whisper.EventSuccess}}}
	p := newTestProcessor(&fakeTranscoder{}, eng, nil)

	path := filepath.Join(t.TempDir(), "1708881234000-standup.mp3")
	data := append([]byte("ID3\x03\x00\x00\x00\x00\x00\x00"), make([]byte, 64)...)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	res := p.Process(context.Background(), Job{ID: "job-3", InputPath: path}, nil)

	require.True(t, res.OK(), "result: %+v", res)
	require.NotNil(t, res.Media)
	assert.Equal(t, "ID3v2.3", res.Media.Format)
	assert.Equal(t, "MP3", res.Media.FileType)
}

func TestProcessJobOverrides(t *testing.T) {
	eng := &scriptedEngine{script: []whisper.Event{{Type: whisper.EventStart}, {Type: whisper.EventSuccess}}}
	p := newTestProcessor(&fakeTranscoder{}, eng, nil)
	job := newInputFile(t)
	job.Language = "zh_CN"

	res := p.Process(context.Background(), job, nil)
	require.True(t, res.OK())
	assert.Equal(t, []string{"-l", "zh", "--prompt", " 简体中文"}, eng.lastCmd.Args[:4])
}

func TestProcessStreamWithoutTerminal(t *testing.T) {
	eng := &scriptedEngine{script: []whisper.Event{{Type: whisper.EventStart}}}
	res := newTestProcessor(&fakeTranscoder{}, eng, nil).Process(context.Background(), newInputFile(t), nil)
	require.False(t, res.OK())
	assert.Equal(t, errs.EngineExit, res.Error.Code)
}
