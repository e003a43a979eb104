// Package stream turns upstream text deltas into SSE events, and reads those
// events back on the client side.
package stream

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/pavelanni/lazywriter/internal/extract"
	"github.com/pavelanni/lazywriter/internal/model"
	"github.com/pavelanni/lazywriter/internal/sse"
)

// TextSource yields upstream text deltas until io.EOF.
type TextSource interface {
	Next() (string, error)
}

// Sink receives outgoing events.
type Sink interface {
	Send(sse.Event) error
}

// Relay writes one generation to a sink.
type Relay struct {
	Sink  Sink
	Model string
	// Describe turns an error into the message shown to the user. When nil
	// the error text is used.
	Describe func(error) string
}

// sendError is returned when the sink itself failed; no error event can be
// delivered then.
type sendError struct{ err error }

func (e *sendError) Error() string { return "send event: " + e.err.Error() }
func (e *sendError) Unwrap() error { return e.err }

func (r Relay) send(ev sse.Event) error {
	if err := r.Sink.Send(ev); err != nil {
		return &sendError{err: err}
	}
	return nil
}

// fail reports err to the client as an error event and returns it.
func (r Relay) fail(err error) error {
	var se *sendError
	if errors.As(err, &se) {
		return err
	}
	msg := err.Error()
	if r.Describe != nil {
		msg = r.Describe(err)
	}
	ev := sse.Event{Type: sse.TypeError, Error: msg, Code: codeFor(err), Model: r.Model}
	var ue *model.UpstreamError
	if errors.As(err, &ue) {
		ev.Status = ue.Status
		if ue.Model != "" {
			ev.Model = ue.Model
		}
	}
	if sendErr := r.Sink.Send(ev); sendErr != nil {
		slog.Warn("could not deliver error event", "error", sendErr)
	}
	return err
}

// codeFor classifies err for the error event so the reader can rebuild the
// same kind of error.
func codeFor(err error) sse.ErrorCode {
	var ue *model.UpstreamError
	var te *model.TransportError
	switch {
	case errors.As(err, &ue):
		return sse.CodeUpstream
	case errors.As(err, &te):
		return sse.CodeTransport
	case errors.Is(err, model.ErrIncompleteResult):
		return sse.CodeIncomplete
	case errors.Is(err, model.ErrMissingCorrectIndices):
		return sse.CodeMissingCorrect
	case errors.Is(err, model.ErrInvalidIndex):
		return sse.CodeInvalidIndex
	}
	return sse.CodeInternal
}

// Text forwards every delta as a chunk event carrying exactly the new text,
// then sends done. The joined text is returned for logging.
func (r Relay) Text(src TextSource) (string, error) {
	var sb strings.Builder
	for {
		delta, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sb.String(), r.fail(err)
		}
		sb.WriteString(delta)
		if err := r.send(sse.Event{Type: sse.TypeChunk, Text: delta}); err != nil {
			return sb.String(), err
		}
	}
	if sb.Len() == 0 {
		return "", r.fail(fmt.Errorf("%w: empty reply", model.ErrIncompleteResult))
	}
	return sb.String(), r.send(sse.Event{Type: sse.TypeDone})
}

// MCQ extracts a question while it streams, sending an mcq event whenever a
// tracked field changes. At the end the authoritative value is validated and
// sent, followed by done.
func (r Relay) MCQ(src TextSource, quiz bool) (model.MCQ, error) {
	acc := extract.NewAccumulator(extract.MCQFields(quiz)...)
	for {
		delta, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return model.MCQ{}, r.fail(err)
		}
		if !acc.Write(delta) {
			continue
		}
		if err := r.send(draftEvent(acc.Draft())); err != nil {
			return model.MCQ{}, err
		}
	}

	mcq, err := extract.Validate(acc.Finalize(), quiz)
	if err != nil {
		slog.Warn("unusable question from model", "model", r.Model, "error", err, "raw", clip(acc.Buffer(), 500))
		return model.MCQ{}, r.fail(err)
	}
	q := mcq.Question
	final := sse.Event{Type: sse.TypeMCQ, Question: &q, Options: mcq.Options, CorrectIndices: mcq.CorrectIndices}
	if err := r.send(final); err != nil {
		return mcq, err
	}
	return mcq, r.send(sse.Event{Type: sse.TypeDone})
}

func draftEvent(d extract.MCQDraft) sse.Event {
	return sse.Event{
		Type:           sse.TypeMCQ,
		Question:       d.Question,
		Options:        d.Options,
		CorrectIndices: d.CorrectIndices,
	}
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
