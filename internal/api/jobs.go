package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/snarg/whisper-worker/internal/intake"
	"github.com/snarg/whisper-worker/internal/jobs"
	"github.com/snarg/whisper-worker/internal/transcript"
)

// JobSource looks up jobs and reports queue state. *jobs.WorkerPool implements it.
type JobSource interface {
	Lookup(id string) (*jobs.Ticket, bool)
	Stats() jobs.QueueStats
}

// JobQueue is the full queue surface the API needs.
type JobQueue interface {
	JobSource
	intake.Enqueuer
}

type JobsHandler struct {
	jobs JobSource
}

func NewJobsHandler(src JobSource) *JobsHandler {
	return &JobsHandler{jobs: src}
}

// JobResponse describes a job and, once finished, its result.
type JobResponse struct {
	ID           string       `json:"id"`
	Status       jobs.Status  `json:"status"`
	Source       jobs.Source  `json:"source,omitempty"`
	OriginalName string       `json:"original_name,omitempty"`
	EnqueuedAt   time.Time    `json:"enqueued_at"`
	Result       *jobs.Result `json:"result,omitempty"`
}

// GetJob handles GET /api/v1/jobs/{id}.
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	t, ok := h.jobs.Lookup(chi.URLParam(r, "id"))
	if !ok {
		WriteErrorWithCode(w, http.StatusNotFound, ErrNotFound, "job not found")
		return
	}
	job := t.Job()
	resp := JobResponse{
		ID:           job.ID,
		Status:       t.Status(),
		Source:       job.Source,
		OriginalName: job.OriginalName,
		EnqueuedAt:   job.EnqueuedAt,
	}
	if res, done := t.Result(); done {
		resp.Result = &res
	}
	WriteJSON(w, http.StatusOK, resp)
}

// GetTranscript handles GET /api/v1/jobs/{id}/transcript?format=.
// Returns 409 while the job is still running.
func (h *JobsHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	format, err := transcript.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidParameter, err.Error())
		return
	}
	t, ok := h.jobs.Lookup(chi.URLParam(r, "id"))
	if !ok {
		WriteErrorWithCode(w, http.StatusNotFound, ErrNotFound, "job not found")
		return
	}
	res, done := t.Result()
	if !done {
		WriteErrorWithCode(w, http.StatusConflict, ErrNotFinished, "job has not finished")
		return
	}
	if !res.OK() {
		WriteJobError(w, res.Error)
		return
	}
	writeTranscript(w, format, res.Segments())
}

// QueueStats handles GET /api/v1/queue.
func (h *JobsHandler) QueueStats(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.jobs.Stats())
}

// Routes registers job routes on the given router.
func (h *JobsHandler) Routes(r chi.Router) {
	r.Get("/jobs/{id}", h.GetJob)
	r.Get("/jobs/{id}/transcript", h.GetTranscript)
	r.Get("/queue", h.QueueStats)
}
