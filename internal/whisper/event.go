package whisper

import (
	"github.com/snarg/whisper-worker/internal/errs"
	"github.com/snarg/whisper-worker/internal/transcript"
)

// EventType tags the variant of an Event.
type EventType string

const (
	EventStart    EventType = "start"
	EventData     EventType = "data"
	EventLanguage EventType = "detected_lang"
	EventSuccess  EventType = "success"
	EventError    EventType = "error"
	EventAbort    EventType = "abort"
)

// Event is one item of an engine run's event stream. A stream starts with
// exactly one start event and ends with exactly one success, error or abort.
type Event struct {
	Type     EventType            `json:"type"`
	JobID    string               `json:"job_id"`
	Segments []transcript.Segment `json:"segments,omitempty"`
	Language string               `json:"language,omitempty"`
	Code     errs.Code            `json:"code,omitempty"`
	Message  string               `json:"message,omitempty"`
}

// Terminal reports whether e ends the stream.
func (e Event) Terminal() bool {
	switch e.Type {
	case EventSuccess, EventError, EventAbort:
		return true
	}
	return false
}

// Err returns the structured error carried by an error or abort event.
func (e Event) Err() *errs.Error {
	if e.Type != EventError && e.Type != EventAbort {
		return nil
	}
	return &errs.Error{Code: e.Code, Message: e.Message}
}
