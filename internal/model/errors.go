package model

import (
	"errors"
	"fmt"
)

var (
	// ErrIncompleteResult means a stream ended without a usable structured result.
	ErrIncompleteResult = errors.New("incomplete result")
	// ErrMissingCorrectIndices means a quiz question arrived without its answer key.
	ErrMissingCorrectIndices = errors.New("quiz question has no correct indices")
	// ErrInvalidIndex means an option index is outside the option list.
	ErrInvalidIndex = errors.New("option index out of range")
	// ErrEmptyTopic means a session was started without a topic.
	ErrEmptyTopic = errors.New("topic is empty")
	// ErrEmptyQuestion means a turn was submitted without its question.
	ErrEmptyQuestion = errors.New("question is empty")
	// ErrSessionNotFound is returned for unknown context ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrTurnChanged means the turn at a captured position is no longer the captured turn.
	ErrTurnChanged = errors.New("turn changed since it was captured")
	// ErrAlreadyGraded means feedback was already applied to the turn.
	ErrAlreadyGraded = errors.New("turn already graded")
)

// UpstreamError is a non-2xx answer from the model backend.
type UpstreamError struct {
	Status  int
	Message string
	Model   string
}

func (e *UpstreamError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("upstream %s: %s", e.Model, e.Message)
	}
	return "upstream: " + e.Message
}

// StreamDecodeError is a single malformed frame or upstream line. It is never fatal.
type StreamDecodeError struct {
	Frame string
	Err   error
}

func (e *StreamDecodeError) Error() string {
	return fmt.Sprintf("decode frame %q: %v", truncate(e.Frame, 80), e.Err)
}

func (e *StreamDecodeError) Unwrap() error { return e.Err }

// TransportError is a network failure while a stream is being read.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "transport: " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
