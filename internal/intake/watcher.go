package intake

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/snarg/whisper-worker/internal/jobs"
)

// mediaExtensions are the file types picked up from the watch folder.
var mediaExtensions = map[string]bool{
	".wav": true, ".mp3": true, ".m4a": true, ".aac": true, ".ogg": true,
	".oga": true, ".opus": true, ".flac": true, ".wma": true, ".webm": true,
	".mp4": true, ".mkv": true, ".mov": true, ".amr": true,
}

// IsMedia reports whether path has a recognised audio or video extension.
func IsMedia(path string) bool {
	return mediaExtensions[strings.ToLower(filepath.Ext(path))]
}

// WatcherStatus is reported on the health endpoint.
type WatcherStatus struct {
	Status       string `json:"status"`
	WatchDir     string `json:"watch_dir"`
	FilesQueued  int64  `json:"files_queued"`
	FilesSkipped int64  `json:"files_skipped"`
}

// Watcher monitors a drop folder and queues every new media file as a job.
// Files are moved into the records directory before queueing, so the job owns
// them and the transcoder's output never lands in the watched folder.
type Watcher struct {
	dir      string
	uploads  *Uploads
	queue    Enqueuer
	debounce time.Duration
	retry    time.Duration
	log      zerolog.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}

	// Debounce: coalesce rapid Create+Write events on the same file.
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer

	// Files moved back after the queue refused them. Their own fsnotify
	// events are ignored; the retry timer or the next backfill requeues them.
	heldMu     sync.Mutex
	held       map[string]bool
	retryTimer *time.Timer

	filesQueued  atomic.Int64
	filesSkipped atomic.Int64
	status       atomic.Value // string: "starting", "watching", "stopped"
}

// NewWatcher creates a watcher for dir. Call Start to begin watching.
func NewWatcher(dir string, uploads *Uploads, queue Enqueuer, log zerolog.Logger) *Watcher {
	w := &Watcher{
		dir:            dir,
		uploads:        uploads,
		queue:          queue,
		debounce:       500 * time.Millisecond,
		retry:          30 * time.Second,
		log:            log.With().Str("component", "watcher").Logger(),
		done:           make(chan struct{}),
		debounceTimers: make(map[string]*time.Timer),
		held:           make(map[string]bool),
	}
	w.status.Store("starting")
	return w
}

// Start begins watching and queues media files already present in the folder.
// The watch loop ends when ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.dir); err != nil {
		fw.Close()
		return err
	}
	w.watcher = fw

	go w.watchLoop(ctx)
	w.backfill()
	w.status.Store("watching")

	w.log.Info().Str("watch_dir", w.dir).Msg("file watcher started")
	return nil
}

// Stop closes the fsnotify watcher and cancels pending debounce timers.
func (w *Watcher) Stop() {
	w.status.Store("stopped")
	if w.watcher != nil {
		w.watcher.Close()
		<-w.done
	}

	w.debounceMu.Lock()
	for p, t := range w.debounceTimers {
		t.Stop()
		delete(w.debounceTimers, p)
	}
	w.debounceMu.Unlock()

	w.heldMu.Lock()
	if w.retryTimer != nil {
		w.retryTimer.Stop()
		w.retryTimer = nil
	}
	w.heldMu.Unlock()

	w.log.Info().
		Int64("files_queued", w.filesQueued.Load()).
		Int64("files_skipped", w.filesSkipped.Load()).
		Msg("file watcher stopped")
}

// Status returns the current watcher state for the health endpoint.
func (w *Watcher) Status() WatcherStatus {
	s, _ := w.status.Load().(string)
	return WatcherStatus{
		Status:       s,
		WatchDir:     w.dir,
		FilesQueued:  w.filesQueued.Load(),
		FilesSkipped: w.filesSkipped.Load(),
	}
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !IsMedia(event.Name) || w.isHeld(event.Name) {
				continue
			}
			w.scheduleProcess(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// scheduleProcess waits for writes to a file to settle before queueing it.
func (w *Watcher) scheduleProcess(path string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if t, ok := w.debounceTimers[path]; ok {
		t.Reset(w.debounce)
		return
	}

	w.debounceTimers[path] = time.AfterFunc(w.debounce, func() {
		w.debounceMu.Lock()
		delete(w.debounceTimers, path)
		w.debounceMu.Unlock()

		w.processFile(path)
	})
}

func (w *Watcher) processFile(path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	adopted, err := w.uploads.Adopt(path)
	if err != nil {
		w.filesSkipped.Add(1)
		w.log.Warn().Err(err).Str("path", path).Msg("failed to move watched file")
		return
	}

	job := jobs.Job{
		InputPath:    adopted,
		OriginalName: filepath.Base(path),
		Source:       jobs.SourceWatch,
	}
	t, ok := Submit(w.queue, job)
	if !ok {
		w.filesSkipped.Add(1)
		w.hold(path)
		if err := moveFile(adopted, path); err != nil {
			w.release(path)
			w.log.Error().Err(err).
				Str("path", path).
				Str("kept", adopted).
				Msg("job queue full and watched file could not be moved back")
			return
		}
		w.log.Warn().Str("path", path).Dur("retry_in", w.retry).Msg("job queue full, watched file left in place")
		return
	}

	w.filesQueued.Add(1)
	w.log.Info().
		Str("job_id", t.Job().ID).
		Str("path", path).
		Msg("watched file queued")
}

func (w *Watcher) isHeld(path string) bool {
	w.heldMu.Lock()
	defer w.heldMu.Unlock()
	return w.held[path]
}

// hold marks path as waiting for a retry and arms the retry timer.
func (w *Watcher) hold(path string) {
	w.heldMu.Lock()
	defer w.heldMu.Unlock()
	w.held[path] = true
	if w.retryTimer == nil {
		w.retryTimer = time.AfterFunc(w.retry, w.retryHeld)
	}
}

func (w *Watcher) release(path string) {
	w.heldMu.Lock()
	delete(w.held, path)
	w.heldMu.Unlock()
}

// retryHeld offers every held file to the queue again.
func (w *Watcher) retryHeld() {
	w.heldMu.Lock()
	paths := make([]string, 0, len(w.held))
	for p := range w.held {
		paths = append(paths, p)
	}
	w.held = make(map[string]bool)
	w.retryTimer = nil
	w.heldMu.Unlock()

	if s, _ := w.status.Load().(string); s == "stopped" {
		return
	}
	for _, p := range paths {
		w.processFile(p)
	}
}

// backfill queues media files that were dropped while the service was down.
func (w *Watcher) backfill() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.log.Warn().Err(err).Msg("failed to list watch dir")
		return
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() || !IsMedia(e.Name()) {
			continue
		}
		w.processFile(filepath.Join(w.dir, e.Name()))
		n++
	}
	if n > 0 {
		w.log.Info().Int("files", n).Msg("backfill complete")
	}
}
