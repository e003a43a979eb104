// Package sse encodes and decodes the `data: <json>\n\n` event stream that
// carries generated text and questions to the browser.
package sse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/pavelanni/lazywriter/internal/model"
)

// EventType is the "type" member of every event.
type EventType string

const (
	TypeChunk EventType = "chunk"
	TypeMCQ   EventType = "mcq"
	TypeDone  EventType = "done"
	TypeError EventType = "error"
)

// ErrorCode classifies the failure carried by an error event.
type ErrorCode string

const (
	CodeUpstream       ErrorCode = "upstream"
	CodeIncomplete     ErrorCode = "incomplete"
	CodeTransport      ErrorCode = "transport"
	CodeMissingCorrect ErrorCode = "missing-correct-indices"
	CodeInvalidIndex   ErrorCode = "invalid-index"
	CodeInternal       ErrorCode = "internal"
)

// Event is one frame of the stream. Which members are set depends on Type.
type Event struct {
	Type           EventType `json:"type"`
	Text           string    `json:"text,omitempty"`
	Question       *string   `json:"question,omitempty"`
	Options        []string  `json:"options,omitempty"`
	CorrectIndices []int     `json:"correctIndices,omitzero"`
	Error          string    `json:"error,omitempty"`
	Code           ErrorCode `json:"code,omitempty"`
	Status         int       `json:"status,omitempty"`
	Model          string    `json:"model,omitempty"`
}

// Writer encodes events onto an HTTP response, flushing after each frame.
type Writer struct {
	mu  sync.Mutex
	out io.Writer
	rc  *http.ResponseController
}

// NewWriter sets the event-stream headers on w. Nothing is written until the
// first Send.
func NewWriter(w http.ResponseWriter) *Writer {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	return &Writer{out: w, rc: http.NewResponseController(w)}
}

// Send writes one frame and flushes it.
func (w *Writer) Send(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := fmt.Fprintf(w.out, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if err := w.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return fmt.Errorf("flush event: %w", err)
	}
	return nil
}

const readSize = 4096

// Decoder reads events back from a byte stream that may be split anywhere.
// Malformed frames are logged and skipped.
type Decoder struct {
	r         io.Reader
	buf       []byte
	pending   []Event
	eof       bool
	malformed int
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Next returns the next event. It returns io.EOF once the stream is exhausted
// and a *model.TransportError when the underlying read fails.
func (d *Decoder) Next() (Event, error) {
	chunk := make([]byte, readSize)
	for {
		if len(d.pending) > 0 {
			ev := d.pending[0]
			d.pending = d.pending[1:]
			return ev, nil
		}
		if d.eof {
			return Event{}, io.EOF
		}

		n, err := d.r.Read(chunk)
		if n > 0 {
			d.buf = append(d.buf, bytes.ReplaceAll(chunk[:n], []byte("\r"), nil)...)
			d.splitFrames()
		}
		if errors.Is(err, io.EOF) {
			d.eof = true
			if len(bytes.TrimSpace(d.buf)) > 0 {
				d.parseFrame(d.buf)
			}
			d.buf = nil
			continue
		}
		if err != nil {
			return Event{}, &model.TransportError{Err: err}
		}
	}
}

// Malformed reports how many frames were dropped.
func (d *Decoder) Malformed() int { return d.malformed }

func (d *Decoder) splitFrames() {
	for {
		idx := bytes.Index(d.buf, []byte("\n\n"))
		if idx < 0 {
			return
		}
		d.parseFrame(d.buf[:idx])
		d.buf = d.buf[idx+2:]
	}
}

func (d *Decoder) parseFrame(frame []byte) {
	var data [][]byte
	for _, line := range bytes.Split(frame, []byte("\n")) {
		switch {
		case len(line) == 0, line[0] == ':':
			// blank or comment
		case bytes.HasPrefix(line, []byte("data:")):
			v := line[len("data:"):]
			if len(v) > 0 && v[0] == ' ' {
				v = v[1:]
			}
			data = append(data, v)
		}
	}
	if len(data) == 0 {
		return
	}
	payload := bytes.Join(data, []byte("\n"))

	var ev Event
	err := json.Unmarshal(payload, &ev)
	if err == nil && ev.Type == "" {
		err = errors.New("missing event type")
	}
	if err != nil {
		d.malformed++
		slog.Warn("dropping malformed event", "error", &model.StreamDecodeError{Frame: string(payload), Err: err})
		return
	}
	d.pending = append(d.pending, ev)
}
