package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/snarg/whisper-worker/internal/transcript"
)

// ConvertHandler re-renders an existing WebVTT transcript in another format.
type ConvertHandler struct{}

func NewConvertHandler() *ConvertHandler { return &ConvertHandler{} }

// Convert handles POST /api/v1/convert?to=srt|lrc|json|vtt|txt.
// The request body is a WebVTT document.
func (h *ConvertHandler) Convert(w http.ResponseWriter, r *http.Request) {
	to, ok := QueryString(r, "to")
	if !ok {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidParameter, "missing to parameter")
		return
	}
	format, err := transcript.ParseFormat(to)
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidParameter, err.Error())
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "failed to read body")
		return
	}
	writeTranscript(w, format, transcript.DecodeVTT(string(body)))
}

func (h *ConvertHandler) Routes(r chi.Router) {
	r.Post("/convert", h.Convert)
}
