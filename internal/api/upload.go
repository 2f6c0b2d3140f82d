package api

import (
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/whisper-worker/internal/intake"
	"github.com/snarg/whisper-worker/internal/jobs"
	"github.com/snarg/whisper-worker/internal/transcode"
	"github.com/snarg/whisper-worker/internal/transcript"
)

// UploadSaver stores an uploaded file and returns its path.
type UploadSaver interface {
	Save(originalName string, r io.Reader) (string, error)
}

// UploadHandler accepts recordings over HTTP and queues them for transcription.
type UploadHandler struct {
	saver UploadSaver
	queue intake.Enqueuer
	log   zerolog.Logger
}

// NewUploadHandler creates a new upload handler.
func NewUploadHandler(saver UploadSaver, queue intake.Enqueuer, log zerolog.Logger) *UploadHandler {
	return &UploadHandler{
		saver: saver,
		queue: queue,
		log:   log.With().Str("handler", "upload").Logger(),
	}
}

// Routes registers the upload endpoint.
func (h *UploadHandler) Routes(r chi.Router) {
	r.Post("/upload/record", h.Upload)
}

// UploadResponse is returned once an uploaded recording has been transcribed.
type UploadResponse struct {
	JobID      string                 `json:"job_id"`
	Status     jobs.ResultStatus      `json:"status"`
	Batches    [][]transcript.Segment `json:"batches"`
	Language   string                 `json:"language,omitempty"`
	Media      *transcode.MediaInfo   `json:"media,omitempty"`
	Aborted    bool                   `json:"aborted,omitempty"`
	Skipped    string                 `json:"skipped,omitempty"`
	DurationMs int64                  `json:"duration_ms"`
}

// AcceptedResponse is returned for uploads queued with wait=false.
type AcceptedResponse struct {
	JobID  string      `json:"job_id"`
	Status jobs.Status `json:"status"`
}

// Upload handles POST /api/v1/upload/record.
// The recording is read from the multipart field "file". By default the request
// blocks until the job finishes; ?wait=false returns 202 with the job id.
// ?format= selects how the transcript is rendered.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	format, err := transcript.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidParameter, err.Error())
		return
	}
	wait := true
	if v, ok := QueryBool(r, "wait"); ok {
		wait = v
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			WriteErrorWithCode(w, http.StatusRequestEntityTooLarge, ErrPayloadTooLarge, "upload exceeds size limit")
			return
		}
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	language := r.FormValue("language")
	if !transcript.SupportedLanguage(language) {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidParameter, "unsupported language: "+language)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, "missing file field")
		return
	}
	defer file.Close()

	path, err := h.saver.Save(header.Filename, file)
	if err != nil {
		h.log.Error().Err(err).Str("filename", header.Filename).Msg("failed to store upload")
		WriteError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	ticket, ok := intake.Submit(h.queue, jobs.Job{
		InputPath:    path,
		OriginalName: header.Filename,
		Source:       jobs.SourceHTTP,
		Language:     language,
		Prompt:       r.FormValue("prompt"),
	})
	if !ok {
		os.Remove(path)
		WriteErrorWithCode(w, http.StatusServiceUnavailable, ErrQueueFull, "transcription queue is full")
		return
	}
	job := ticket.Job()
	h.log.Info().
		Str("job_id", job.ID).
		Str("filename", header.Filename).
		Int64("size", header.Size).
		Msg("upload queued")

	if !wait {
		w.Header().Set("Location", "/api/v1/jobs/"+job.ID)
		WriteJSON(w, http.StatusAccepted, AcceptedResponse{JobID: job.ID, Status: jobs.StatusQueued})
		return
	}

	res, err := ticket.Wait(r.Context())
	if err != nil {
		// Client went away; the job keeps running and can be fetched by id.
		h.log.Debug().Str("job_id", job.ID).Msg("upload client disconnected before job finished")
		return
	}
	writeResult(w, res, format)
}

// writeResult renders a finished job: JSON batches by default, or the
// flattened transcript in the requested text format.
func writeResult(w http.ResponseWriter, res jobs.Result, format transcript.Format) {
	if !res.OK() {
		WriteJobError(w, res.Error)
		return
	}
	if format == transcript.FormatJSON {
		batches := res.Batches
		if batches == nil {
			batches = [][]transcript.Segment{}
		}
		WriteJSON(w, http.StatusOK, UploadResponse{
			JobID:      res.JobID,
			Status:     res.Status,
			Batches:    batches,
			Language:   res.Language,
			Media:      res.Media,
			Aborted:    res.Aborted,
			Skipped:    string(res.Skipped),
			DurationMs: res.DurationMs,
		})
		return
	}
	writeTranscript(w, format, res.Segments())
}

func writeTranscript(w http.ResponseWriter, format transcript.Format, segs []transcript.Segment) {
	body, err := transcript.Render(format, segs)
	if err != nil {
		WriteErrorWithCode(w, http.StatusUnprocessableEntity, ErrBadRequest, err.Error())
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
