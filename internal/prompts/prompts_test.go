package prompts

import (
	"errors"
	"strings"
	"testing"
	"testing/fstest"
	"unicode/utf8"

	"github.com/pavelanni/lazywriter/internal/model"
)

type fakeOverrides map[string]string

func (f fakeOverrides) GetPromptOverride(kind string) (string, error) {
	if kind == "broken" {
		return "", errors.New("db down")
	}
	return f[kind], nil
}

func TestLoadEmbedded(t *testing.T) {
	set, err := Load(Embedded())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, k := range Kinds {
		if strings.TrimSpace(set[k]) == "" {
			t.Errorf("template %s is empty", k)
		}
	}
	for _, k := range []Kind{KindQuestion, KindQuiz, KindFinalize, KindQuizFinalize, KindQuizFeedback} {
		if !strings.Contains(set[k], "{Context}") {
			t.Errorf("template %s has no {Context} placeholder", k)
		}
	}
	if !strings.Contains(set[KindQuiz], "correctIndices") {
		t.Error("quiz template should ask for correctIndices")
	}
}

func TestLoadMissingFile(t *testing.T) {
	fsys := fstest.MapFS{"question.txt": {Data: []byte("q")}}
	if _, err := Load(fsys); err == nil {
		t.Error("Load should fail when a kind has no file")
	}
}

func TestResolverPrecedence(t *testing.T) {
	defaults := Set{KindQuestion: "default-q", KindFinalize: "default-f"}
	r := NewResolver(defaults, fakeOverrides{"finalize": "stored-f"})

	tests := []struct {
		name       string
		kind       Kind
		requested  string
		want       string
		wantSource Source
	}{
		{"request wins", KindFinalize, "from-request", "from-request", SourceRequest},
		{"blank request ignored", KindFinalize, "   ", "stored-f", SourceOverride},
		{"override", KindFinalize, "", "stored-f", SourceOverride},
		{"default", KindQuestion, "", "default-q", SourceDefault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, src, err := r.Template(tt.kind, tt.requested)
			if err != nil {
				t.Fatalf("Template: %v", err)
			}
			if got != tt.want || src != tt.wantSource {
				t.Errorf("Template() = %q (%s), want %q (%s)", got, src, tt.want, tt.wantSource)
			}
		})
	}

	if _, _, err := r.Template(Kind("broken"), ""); err == nil {
		t.Error("override store error should be returned")
	}
	if _, _, err := NewResolver(defaults, nil).Template(KindQuiz, ""); err == nil {
		t.Error("unknown kind should fail")
	}
}

func TestIsValidKind(t *testing.T) {
	if !IsValidKind("quiz-feedback") {
		t.Error("quiz-feedback should be valid")
	}
	if IsValidKind("essay") {
		t.Error("essay should not be valid")
	}
}

func TestFill(t *testing.T) {
	got := Fill("A {Context} B {Context} {Unknown}", map[string]string{"Context": "x {Context} $1"})
	want := "A x {Context} $1 B x {Context} $1 {Unknown}"
	if got != want {
		t.Errorf("Fill() = %q, want %q", got, want)
	}
}

func TestComposeContext(t *testing.T) {
	turns := []model.ConversationTurn{
		{Question: "Who?", Answer: "Alice, Bob", Options: []string{"Alice", "Bob", "Carol"}, SelectedIndices: []int{0, 1}},
		{Question: "When?", Answer: "Additional: yesterday", Options: []string{"Today", "Never"}, SelectedIndices: []int{}},
		{Question: "Where?", Answer: "Home", Options: []string{"Home"}, SelectedIndices: []int{0}},
	}
	got := ComposeContext("  My trip  ", turns)
	want := "My trip\n\nPrevious questions and answers:\n" +
		"Q: Who?\nA: Alice, Bob\nNot selected: Carol\n\n" +
		"Q: When?\nA: Additional: yesterday\nNot selected: Today, Never\n\n" +
		"Q: Where?\nA: Home"
	if got != want {
		t.Errorf("ComposeContext() =\n%q\nwant\n%q", got, want)
	}

	if got := ComposeContext("Topic", nil); got != "Topic" {
		t.Errorf("ComposeContext(no turns) = %q", got)
	}
}

func TestWithRefinement(t *testing.T) {
	if got := WithRefinement("P", "  "); got != "P" {
		t.Errorf("blank refinement changed prompt: %q", got)
	}
	got := WithRefinement("P", " shorter ")
	want := "P\n\nUser's refinement request: shorter\n\nPlease refine the essay/message according to the user's request above."
	if got != want {
		t.Errorf("WithRefinement() = %q, want %q", got, want)
	}
}

func TestQuizHistory(t *testing.T) {
	turns := []model.ConversationTurn{
		{Question: "Q1", Answer: "A", Feedback: "Good", OptionFeedback: []model.OptionFeedback{{Index: 0, IsCorrect: true, Explanation: "yes"}}},
		{Question: "Q2", Answer: "B"},
	}
	got := QuizHistory(turns)
	want := "Question: Q1\nStudent Answer: A\nFeedback: Good\n" +
		`Option Feedback: [{"index":0,"isCorrect":true,"explanation":"yes"}]` + "\n" +
		"\n---\n\n" +
		"Question: Q2\nStudent Answer: B\n"
	if got != want {
		t.Errorf("QuizHistory() =\n%q\nwant\n%q", got, want)
	}
	if got := QuizHistory(nil); got != "No quiz history available." {
		t.Errorf("QuizHistory(nil) = %q", got)
	}
}

func TestFeedbackVars(t *testing.T) {
	vars := FeedbackVars("Q?", []string{"a", "b"}, []int{1}, []int{0, 1}, "")
	if vars["Options"] != "0: a\n1: b" {
		t.Errorf("Options = %q", vars["Options"])
	}
	if vars["CorrectIndices"] != "1" || vars["SelectedIndices"] != "0, 1" {
		t.Errorf("indices = %q / %q", vars["CorrectIndices"], vars["SelectedIndices"])
	}
	if vars["Context"] != "No additional context provided" {
		t.Errorf("Context = %q", vars["Context"])
	}
}

func TestSanitize(t *testing.T) {
	if got := Sanitize("  hi \n"); got != "hi" {
		t.Errorf("Sanitize() = %q", got)
	}
	long := strings.Repeat("é", MaxInputRunes+5)
	got := Sanitize(long)
	if !strings.HasSuffix(got, "[Text truncated due to length]") {
		t.Error("long text should carry a truncation marker")
	}
	body := strings.TrimSuffix(got, "\n\n[Text truncated due to length]")
	if n := utf8.RuneCountInString(body); n != MaxInputRunes {
		t.Errorf("kept %d runes, want %d", n, MaxInputRunes)
	}
}
