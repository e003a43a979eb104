package extract

import (
	"errors"
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/pavelanni/lazywriter/internal/model"
)

func finalDraft(t *testing.T, doc string, fields []Field) MCQDraft {
	t.Helper()
	acc := NewAccumulator(fields...)
	acc.Write(doc)
	return acc.Finalize()
}

func isSubsequence(sub, full []string) bool {
	j := 0
	for _, s := range sub {
		for j < len(full) && full[j] != s {
			j++
		}
		if j == len(full) {
			return false
		}
		j++
	}
	return true
}

func TestThreeChunkScenario(t *testing.T) {
	acc := NewAccumulator(MCQFields(false)...)

	if !acc.Write(`{"question": "What is y`) {
		t.Fatal("chunk 1 should change the draft")
	}
	d := acc.Draft()
	if d.Question == nil || *d.Question != "What is y" {
		t.Fatalf("question after chunk 1 = %v, want %q", d.Question, "What is y")
	}
	if d.Options != nil {
		t.Errorf("options after chunk 1 = %v, want nil", d.Options)
	}
	if got := acc.Value("question").Status; got != Partial {
		t.Errorf("question status = %v, want partial", got)
	}

	if !acc.Write(`our name?", "options": ["Alice"`) {
		t.Fatal("chunk 2 should change the draft")
	}
	d = acc.Draft()
	if *d.Question != "What is your name?" {
		t.Errorf("question after chunk 2 = %q", *d.Question)
	}
	if got := acc.Value("question").Status; got != Complete {
		t.Errorf("question status = %v, want complete", got)
	}
	if !slices.Equal(d.Options, []string{"Alice"}) {
		t.Errorf("options after chunk 2 = %v, want [Alice]", d.Options)
	}

	acc.Write(`, "Bob"]}`)
	d = acc.Draft()
	if !slices.Equal(d.Options, []string{"Alice", "Bob"}) {
		t.Errorf("options after chunk 3 = %v, want [Alice Bob]", d.Options)
	}
	if got := acc.Value("options").Status; got != Complete {
		t.Errorf("options status = %v, want complete", got)
	}
}

func TestOpenStringKeepsArrayUnset(t *testing.T) {
	acc := NewAccumulator(FieldOptions)
	acc.Write(`{"options": ["Ali`)
	if d := acc.Draft(); d.Options != nil {
		t.Errorf("options = %v, want nil while the first element is open", d.Options)
	}
	acc.Write(`ce", "Bo`)
	if d := acc.Draft(); !slices.Equal(d.Options, []string{"Alice"}) {
		t.Errorf("options = %v, want [Alice]", d.Options)
	}
}

func TestMonotonicPartialExtraction(t *testing.T) {
	docs := map[string]string{
		"plain":     `{"question": "What is your name?", "options": ["Alice", "Bob", "Carol"]}`,
		"escapes":   `{"question":"Say \"hi\"\nplease \\ now","options":["a\\b","café","😀 smile","a\\b"]}`,
		"fenced":    "```json\n{\"question\": \"Pick one\", \"options\": [\"x\", \"y\"], \"correctIndices\": [1, 0]}\n```",
		"multibyte": `{"question": "Ünïcödé ✓ 日本語", "options": ["日本", "中文", "日本"]}`,
		"spaced":    "{\n  \"question\" :\n \"Tabs\\tand\\r\\nbreaks\",\n  \"options\" : [ \"one\" ,\n \"two\" ]\n}",
	}
	fields := MCQFields(true)

	for name, doc := range docs {
		t.Run(name, func(t *testing.T) {
			final := finalDraft(t, doc, fields)
			if final.Question == nil {
				t.Fatal("final question missing")
			}

			acc := NewAccumulator(fields...)
			prevQ, prevOpts := 0, 0
			for i := 0; i < len(doc); i++ {
				acc.Write(doc[i : i+1])
				d := acc.Draft()
				if d.Question != nil {
					if !strings.HasPrefix(*final.Question, *d.Question) {
						t.Fatalf("byte %d: question %q is not a prefix of %q", i, *d.Question, *final.Question)
					}
					if len(*d.Question) < prevQ {
						t.Fatalf("byte %d: question shrank from %d to %d", i, prevQ, len(*d.Question))
					}
					prevQ = len(*d.Question)
				}
				if !isSubsequence(d.Options, final.Options) {
					t.Fatalf("byte %d: options %q inconsistent with %q", i, d.Options, final.Options)
				}
				if len(d.Options) < prevOpts {
					t.Fatalf("byte %d: options shrank from %d to %d", i, prevOpts, len(d.Options))
				}
				prevOpts = len(d.Options)
			}

			got := acc.Finalize()
			if !reflect.DeepEqual(got, final) {
				t.Errorf("streamed final = %+v, want %+v", got, final)
			}
		})
	}
}

func TestEscapesDecoded(t *testing.T) {
	doc := `{"question":"Say \"hi\"\nplease \\ now","options":["a\\b","café","😀 smile","a\\b"]}`
	d := finalDraft(t, doc, MCQFields(false))
	if want := "Say \"hi\"\nplease \\ now"; *d.Question != want {
		t.Errorf("question = %q, want %q", *d.Question, want)
	}
	want := []string{`a\b`, "café", "😀 smile", `a\b`}
	if !slices.Equal(d.Options, want) {
		t.Errorf("options = %q, want %q", d.Options, want)
	}
}

func TestPartialArrayDeduplicates(t *testing.T) {
	acc := NewAccumulator(FieldOptions)
	acc.Write(`{"options": ["a", "a", "b", "c`)
	if d := acc.Draft(); !slices.Equal(d.Options, []string{"a", "b"}) {
		t.Errorf("partial options = %v, want [a b]", d.Options)
	}
	acc.Write(`"]}`)
	if d := acc.Draft(); !slices.Equal(d.Options, []string{"a", "a", "b", "c"}) {
		t.Errorf("complete options = %v, want [a a b c]", d.Options)
	}
}

func TestIntArrayWaitsForDelimiter(t *testing.T) {
	acc := NewAccumulator(FieldCorrectIndices)
	steps := []struct {
		delta string
		want  []int
	}{
		{`{"correctIndices": [1`, nil},
		{`,`, []int{1}},
		{` 1`, []int{1}},
		{`2`, []int{1}},
		{`]`, []int{1, 12}},
	}
	for _, s := range steps {
		acc.Write(s.delta)
		if got := acc.Draft().CorrectIndices; !slices.Equal(got, s.want) {
			t.Errorf("after %q: correctIndices = %v, want %v", s.delta, got, s.want)
		}
	}
	if got := acc.Value("correctIndices").Status; got != Complete {
		t.Errorf("status = %v, want complete", got)
	}
}

func TestWriteReportsOnlyChanges(t *testing.T) {
	acc := NewAccumulator(MCQFields(false)...)
	if acc.Write(`{"quest`) {
		t.Error("incomplete key should not emit")
	}
	if !acc.Write(`ion": "A`) {
		t.Error("first question text should emit")
	}
	if !acc.Write(`  `) {
		t.Error("growing question text should emit")
	}
	acc.Write(`",`)
	if acc.Write("\n   ") {
		t.Error("whitespace after a complete field should not emit")
	}
	if acc.Write("") {
		t.Error("empty delta should not emit")
	}
}

func TestFinalizeIdempotent(t *testing.T) {
	acc := NewAccumulator(MCQFields(true)...)
	acc.Write("```json\n{\"question\": \"Q?\", \"options\": [\"a\", \"b\"], \"correctIndices\": [0]}\n```")
	first := acc.Finalize()
	second := acc.Finalize()
	if !reflect.DeepEqual(first, second) {
		t.Errorf("second Finalize = %+v, want %+v", second, first)
	}
	if !acc.Done() {
		t.Error("Done() = false after Finalize")
	}
	if acc.Write(`more`) {
		t.Error("Write after Finalize should be ignored")
	}
}

func TestFenceStrippingRoundTrip(t *testing.T) {
	plain := `{"question": "Q?", "options": ["a", "b"], "correctIndices": [0]}`
	want := finalDraft(t, plain, MCQFields(true))

	variants := map[string]string{
		"json tag":         "```json\n" + plain + "\n```",
		"no tag":           "```\n" + plain + "\n```",
		"upper tag":        "```JSON\n" + plain + "\n```\n",
		"leading space":    "  ```json\r\n" + plain + "\r\n```  ",
		"unclosed fence":   "```json\n" + plain,
		"surrounded prose": "Here it is:\n" + plain + "\nGood luck!",
	}
	for name, doc := range variants {
		t.Run(name, func(t *testing.T) {
			got := finalDraft(t, doc, MCQFields(true))
			if !reflect.DeepEqual(got, want) {
				t.Errorf("draft = %+v, want %+v", got, want)
			}
		})
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"{}", "{}"},
		{"  {}  ", "{}"},
		{"```json\n{}\n```", "{}"},
		{"```\n{\"a\": 1}\n```", "{\"a\": 1}"},
		{"```json\n{}", "{}"},
	}
	for _, tt := range tests {
		if got := StripFences(tt.in); got != tt.want {
			t.Errorf("StripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFinalPassOverridesPartial(t *testing.T) {
	// The stream is cut inside the question; the final pass reports what the
	// scanner can still recover.
	acc := NewAccumulator(MCQFields(false)...)
	acc.Write(`{"options": ["a", "b"], "question": "Unfinished`)
	d := acc.Finalize()
	if d.Question == nil || *d.Question != "Unfinished" {
		t.Errorf("question = %v, want %q", d.Question, "Unfinished")
	}
	if !slices.Equal(d.Options, []string{"a", "b"}) {
		t.Errorf("options = %v", d.Options)
	}
}

func TestChainPrefersComplete(t *testing.T) {
	buf := `{"question": "Strict", "options": ["x"]}`
	v := FinalChain.Extract(buf, FieldQuestion)
	if v.Status != Complete || v.Text != "Strict" {
		t.Errorf("Extract = %+v, want complete Strict", v)
	}

	v = FinalChain.Extract(`{"question": "Trunc`, FieldQuestion)
	if v.Status != Partial || v.Text != "Trunc" {
		t.Errorf("Extract = %+v, want partial Trunc", v)
	}

	v = FinalChain.Extract(`nothing here`, FieldQuestion)
	if v.Found() {
		t.Errorf("Extract = %+v, want not found", v)
	}
}

func TestKeyWithNonMatchingValueIsSkipped(t *testing.T) {
	buf := `{"hint": "question", "question": "Real?"}`
	v := Scan{}.Extract(buf, FieldQuestion)
	if v.Text != "Real?" {
		t.Errorf("Scan = %q, want %q", v.Text, "Real?")
	}
}

func TestValidate(t *testing.T) {
	q := "Q?"
	empty := "  "
	tests := []struct {
		name    string
		draft   MCQDraft
		quiz    bool
		wantErr error
	}{
		{"ok", MCQDraft{Question: &q, Options: []string{"a"}}, false, nil},
		{"no question", MCQDraft{Options: []string{"a"}}, false, model.ErrIncompleteResult},
		{"blank question", MCQDraft{Question: &empty, Options: []string{"a"}}, false, model.ErrIncompleteResult},
		{"no options", MCQDraft{Question: &q}, false, model.ErrIncompleteResult},
		{"quiz without key", MCQDraft{Question: &q, Options: []string{"a"}}, true, model.ErrMissingCorrectIndices},
		{"quiz out of range", MCQDraft{Question: &q, Options: []string{"a"}, CorrectIndices: []int{1}}, true, model.ErrInvalidIndex},
		{"quiz empty key", MCQDraft{Question: &q, Options: []string{"a"}, CorrectIndices: []int{}}, true, nil},
		{"quiz ok", MCQDraft{Question: &q, Options: []string{"a", "b"}, CorrectIndices: []int{1}}, true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(tt.draft, tt.quiz)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
