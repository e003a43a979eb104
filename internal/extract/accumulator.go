package extract

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pavelanni/lazywriter/internal/model"
)

// MCQDraft is the best question extracted so far. A nil Question or Options
// means the field has not been located; CorrectIndices is nil until located.
type MCQDraft struct {
	Question       *string
	Options        []string
	CorrectIndices []int
}

// Accumulator owns the raw text of one in-flight generation. It is not safe
// for concurrent use; every request creates its own.
type Accumulator struct {
	fields []Field
	buf    strings.Builder
	last   map[string]Value
	done   bool
}

// NewAccumulator tracks the given fields.
func NewAccumulator(fields ...Field) *Accumulator {
	return &Accumulator{
		fields: fields,
		last:   make(map[string]Value, len(fields)),
	}
}

// Write appends a delta, rescans the whole buffer and reports whether any
// tracked field changed. Values never shrink here; only Finalize may replace
// them with something shorter.
func (a *Accumulator) Write(delta string) bool {
	if a.done || delta == "" {
		return false
	}
	a.buf.WriteString(delta)
	buf := a.buf.String()

	changed := false
	for _, f := range a.fields {
		next := LiveChain.Extract(buf, f)
		prev := a.last[f.Name]
		if !supersedes(f.Kind, prev, next) {
			continue
		}
		if !next.Equal(prev) {
			a.last[f.Name] = next
			changed = true
		}
	}
	return changed
}

func supersedes(k Kind, prev, next Value) bool {
	switch {
	case !next.Found():
		return false
	case !prev.Found():
		return true
	case prev.Status == Complete:
		return false
	case next.Status == Complete:
		return true
	default:
		return next.size(k) >= prev.size(k)
	}
}

// Finalize runs the authoritative pass over the whole buffer and marks the
// accumulator complete. Calling it again yields the same draft.
func (a *Accumulator) Finalize() MCQDraft {
	buf := a.buf.String()
	for _, f := range a.fields {
		v := FinalChain.Extract(buf, f)
		if v.Found() {
			a.last[f.Name] = v
		} else {
			delete(a.last, f.Name)
		}
	}
	a.done = true
	return a.Draft()
}

// Draft returns the current values.
func (a *Accumulator) Draft() MCQDraft {
	var d MCQDraft
	for _, f := range a.fields {
		v, ok := a.last[f.Name]
		if !ok || !v.Found() {
			continue
		}
		switch f.Kind {
		case KindString:
			s := v.Text
			d.Question = &s
		case KindStrings:
			d.Options = slices.Clone(v.List)
		case KindInts:
			d.CorrectIndices = slices.Clone(v.Ints)
		}
	}
	return d
}

// Value returns the tracked value of one field.
func (a *Accumulator) Value(name string) Value { return a.last[name] }

// Buffer returns everything written so far.
func (a *Accumulator) Buffer() string { return a.buf.String() }

// Done reports whether Finalize has run.
func (a *Accumulator) Done() bool { return a.done }

// Validate turns a draft into a usable question. In quiz mode the answer key
// must be present and every index must point at an option.
func Validate(d MCQDraft, quiz bool) (model.MCQ, error) {
	if d.Question == nil || strings.TrimSpace(*d.Question) == "" {
		return model.MCQ{}, fmt.Errorf("%w: no question", model.ErrIncompleteResult)
	}
	if len(d.Options) == 0 {
		return model.MCQ{}, fmt.Errorf("%w: no options", model.ErrIncompleteResult)
	}
	mcq := model.MCQ{Question: *d.Question, Options: d.Options}
	if !quiz {
		return mcq, nil
	}
	if d.CorrectIndices == nil {
		return model.MCQ{}, model.ErrMissingCorrectIndices
	}
	for _, idx := range d.CorrectIndices {
		if idx < 0 || idx >= len(d.Options) {
			return model.MCQ{}, fmt.Errorf("%w: correct index %d with %d options", model.ErrInvalidIndex, idx, len(d.Options))
		}
	}
	mcq.CorrectIndices = d.CorrectIndices
	return mcq, nil
}
