// Package errs defines the structured error values a transcription job can end with.
package errs

import (
	"errors"
	"fmt"
)

// Code identifies why a job stage failed.
type Code string

const (
	// Transcode means ffmpeg could not produce the canonical audio file.
	Transcode Code = "ERROR_TRANSCODE"
	// EngineExit means the whisper process exited with a nonzero code.
	EngineExit Code = "ERROR_ENGINE_EXIT"
	// Spawn means the whisper process could not be started.
	Spawn Code = "ERROR_SPAWN"
	// Aborted means the engine run was cancelled before it finished.
	Aborted Code = "ERROR_ABORTED"
	// MissingSource is informational: the input disappeared before processing.
	MissingSource Code = "MISSING_SOURCE"
)

// Error is a job failure with a stable code and a human readable message.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message,omitempty"`
	Err     error  `json:"-"`
}

// New creates an Error wrapping err.
func New(code Code, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// As returns err as an *Error, wrapping foreign errors under fallback.
func As(err error, fallback Code) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Code: fallback, Message: err.Error(), Err: err}
}
