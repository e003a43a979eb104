package stream

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pavelanni/lazywriter/internal/extract"
	"github.com/pavelanni/lazywriter/internal/model"
	"github.com/pavelanni/lazywriter/internal/sse"
)

// EventSource yields decoded events until io.EOF. *sse.Decoder implements it.
type EventSource interface {
	Next() (sse.Event, error)
}

// remoteError rebuilds the error reported by an error event. Events without
// a known code become plain errors.
func remoteError(ev sse.Event) error {
	msg := ev.Error
	if msg == "" {
		msg = "generation failed"
	}
	switch ev.Code {
	case sse.CodeUpstream:
		return &model.UpstreamError{Status: ev.Status, Message: msg, Model: ev.Model}
	case sse.CodeTransport:
		return &model.TransportError{Err: errors.New(msg)}
	case sse.CodeIncomplete:
		return fmt.Errorf("%w: %s", model.ErrIncompleteResult, msg)
	case sse.CodeMissingCorrect:
		return fmt.Errorf("%w: %s", model.ErrMissingCorrectIndices, msg)
	case sse.CodeInvalidIndex:
		return fmt.Errorf("%w: %s", model.ErrInvalidIndex, msg)
	}
	return fmt.Errorf("generation failed: %s", msg)
}

// ReadMCQ consumes a question stream. onUpdate, when set, sees every draft.
// A stream that ends without done still completes with the last draft.
func ReadMCQ(src EventSource, onUpdate func(extract.MCQDraft)) (model.MCQ, error) {
	var last *extract.MCQDraft
loop:
	for {
		ev, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return model.MCQ{}, err
		}
		switch ev.Type {
		case sse.TypeMCQ:
			d := extract.MCQDraft{Question: ev.Question, Options: ev.Options, CorrectIndices: ev.CorrectIndices}
			last = &d
			if onUpdate != nil {
				onUpdate(d)
			}
		case sse.TypeError:
			return model.MCQ{}, remoteError(ev)
		case sse.TypeDone:
			break loop
		}
	}
	if last == nil {
		return model.MCQ{}, fmt.Errorf("%w: no question received", model.ErrIncompleteResult)
	}
	mcq, err := extract.Validate(*last, false)
	if err != nil {
		return model.MCQ{}, err
	}
	mcq.CorrectIndices = last.CorrectIndices
	return mcq, nil
}

// ReadText consumes a plain-text stream, calling onChunk for each delta.
func ReadText(src EventSource, onChunk func(string)) (string, error) {
	var sb strings.Builder
loop:
	for {
		ev, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sb.String(), err
		}
		switch ev.Type {
		case sse.TypeChunk:
			sb.WriteString(ev.Text)
			if onChunk != nil {
				onChunk(ev.Text)
			}
		case sse.TypeError:
			return sb.String(), remoteError(ev)
		case sse.TypeDone:
			break loop
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: no text received", model.ErrIncompleteResult)
	}
	return sb.String(), nil
}
