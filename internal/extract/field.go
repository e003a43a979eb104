// Package extract pulls named fields out of a JSON object that is still being
// streamed, so partial questions and options can be shown before the model
// finishes writing.
package extract

import "slices"

// Kind is the JSON type of a tracked field.
type Kind int

const (
	KindString  Kind = iota // "F": "..."
	KindStrings             // "F": ["...", ...]
	KindInts                // "F": [0, 1, ...]
)

// Field names a tracked top-level key.
type Field struct {
	Name string
	Kind Kind
}

var (
	FieldQuestion       = Field{Name: "question", Kind: KindString}
	FieldOptions        = Field{Name: "options", Kind: KindStrings}
	FieldCorrectIndices = Field{Name: "correctIndices", Kind: KindInts}
)

// MCQFields returns the fields tracked for a question stream.
func MCQFields(quiz bool) []Field {
	if quiz {
		return []Field{FieldQuestion, FieldOptions, FieldCorrectIndices}
	}
	return []Field{FieldQuestion, FieldOptions}
}

// Status tags how much of a field a strategy could recover.
type Status int

const (
	NotFound Status = iota
	Partial
	Complete
)

func (s Status) String() string {
	switch s {
	case Partial:
		return "partial"
	case Complete:
		return "complete"
	default:
		return "not found"
	}
}

// Value is the tagged result of extracting one field. Only the member that
// matches the field's Kind is meaningful.
type Value struct {
	Status Status
	Text   string
	List   []string
	Ints   []int
}

// Found reports whether the field was located at all.
func (v Value) Found() bool { return v.Status != NotFound }

// Equal compares two values by content.
func (v Value) Equal(o Value) bool {
	return v.Status == o.Status &&
		v.Text == o.Text &&
		slices.Equal(v.List, o.List) &&
		slices.Equal(v.Ints, o.Ints)
}

// size is the length used for the monotonic growth check.
func (v Value) size(k Kind) int {
	switch k {
	case KindStrings:
		return len(v.List)
	case KindInts:
		return len(v.Ints)
	default:
		return len(v.Text)
	}
}
