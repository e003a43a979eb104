package session

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/pavelanni/lazywriter/internal/model"
	"github.com/pavelanni/lazywriter/internal/store"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewManager(s)
}

func TestContextID(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"My Trip to Paris!", "my-trip-to-paris"},
		{"  --Hello,   World--  ", "hello-world"},
		{"Поездка в Москву", "поездка-в-москву"},
		{"!!!", "context"},
		{"", "context"},
		{strings.Repeat("a", 60), strings.Repeat("a", 48)},
		{strings.Repeat("a", 47) + " b", strings.Repeat("a", 47)},
		{"Essay #2: 2026", "essay-2-2026"},
	}
	for _, tt := range tests {
		if got := ContextID(tt.topic); got != tt.want {
			t.Errorf("ContextID(%q) = %q, want %q", tt.topic, got, tt.want)
		}
	}
}

func TestComposeAnswer(t *testing.T) {
	opts := []string{"Alice", "Bob", "Carol"}
	tests := []struct {
		name     string
		selected []int
		freeText string
		want     string
	}{
		{"options only", []int{0, 2}, "", "Alice, Carol"},
		{"options and text", []int{1}, " and Dave ", "Bob | Additional: and Dave"},
		{"text only", nil, "Dave", "Additional: Dave"},
		{"nothing", nil, "  ", "No selection made"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComposeAnswer(opts, tt.selected, tt.freeText); got != tt.want {
				t.Errorf("ComposeAnswer() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStartAndResume(t *testing.T) {
	m := newTestManager(t)

	if _, err := m.Start("   ", "", model.ModeEssay); !errors.Is(err, model.ErrEmptyTopic) {
		t.Errorf("Start(blank) error = %v, want ErrEmptyTopic", err)
	}

	sess, err := m.Start("My Trip", "gemini-flash-latest", model.ModeEssay)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sess.ID != "my-trip" || sess.Topic != "My Trip" {
		t.Errorf("session = %+v", sess)
	}
	if _, _, err := m.AppendTurn(sess.ID, TurnInput{Question: "Who?", Options: []string{"me"}, SelectedIndices: []int{0}}); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}

	again, err := m.Start("my trip", "gemini-pro-latest", model.ModeEssay)
	if err != nil {
		t.Fatalf("Start (resume): %v", err)
	}
	if len(again.Turns) != 1 {
		t.Errorf("resumed session lost turns: %+v", again.Turns)
	}
	if again.Model != "gemini-pro-latest" || again.Topic != "My Trip" {
		t.Errorf("resumed session = %+v", again)
	}

	if _, err := m.Get("missing"); !errors.Is(err, model.ErrSessionNotFound) {
		t.Errorf("Get(missing) error = %v", err)
	}
}

func TestAppendTurnValidation(t *testing.T) {
	m := newTestManager(t)
	sess, _ := m.Start("Quiz", "", model.ModeQuiz)
	opts := []string{"a", "b", "c"}

	tests := []struct {
		name    string
		in      TurnInput
		wantErr error
	}{
		{"empty question", TurnInput{Options: opts}, model.ErrEmptyQuestion},
		{"selected out of range", TurnInput{Question: "Q", Options: opts, SelectedIndices: []int{3}}, model.ErrInvalidIndex},
		{"negative index", TurnInput{Question: "Q", Options: opts, SelectedIndices: []int{-1}}, model.ErrInvalidIndex},
		{"quiz without key", TurnInput{Question: "Q", Options: opts, Quiz: true}, model.ErrMissingCorrectIndices},
		{"quiz key out of range", TurnInput{Question: "Q", Options: opts, CorrectIndices: []int{5}, Quiz: true}, model.ErrInvalidIndex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := m.AppendTurn(sess.ID, tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("AppendTurn() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, _, err := m.AppendTurn("missing", TurnInput{Question: "Q"}); !errors.Is(err, model.ErrSessionNotFound) {
		t.Errorf("AppendTurn(missing) error = %v", err)
	}

	ref, turn, err := m.AppendTurn(sess.ID, TurnInput{
		Question: " Q ", Options: opts, SelectedIndices: []int{2, 0, 2}, CorrectIndices: []int{0}, Quiz: true,
	})
	if err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	if !slices.Equal(turn.SelectedIndices, []int{0, 2}) {
		t.Errorf("SelectedIndices = %v, want [0 2]", turn.SelectedIndices)
	}
	if turn.Answer != "a, c" || turn.Question != "Q" || !turn.IsQuiz {
		t.Errorf("turn = %+v", turn)
	}
	if ref.Index != 0 || ref.TurnID == "" || ref.TurnID != turn.ID {
		t.Errorf("ref = %+v", ref)
	}
}

func TestApplyFeedbackTargetsCapturedTurn(t *testing.T) {
	m := newTestManager(t)
	sess, _ := m.Start("Race", "", model.ModeQuiz)
	in := TurnInput{Question: "Q1", Options: []string{"a", "b"}, SelectedIndices: []int{0}, CorrectIndices: []int{0}, Quiz: true}

	ref1, _, err := m.AppendTurn(sess.ID, in)
	if err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	// The user moves on before grading of the first turn finishes.
	in.Question = "Q2"
	if _, _, err := m.AppendTurn(sess.ID, in); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}

	fb := model.Feedback{Feedback: "Well done", OptionFeedback: []model.OptionFeedback{{Index: 0, IsCorrect: true, Explanation: "yes"}}}
	if err := m.ApplyFeedback(ref1, fb); err != nil {
		t.Fatalf("ApplyFeedback: %v", err)
	}

	got, _ := m.Get(sess.ID)
	if !got.Turns[0].HasFeedback || got.Turns[0].Feedback != "Well done" {
		t.Errorf("turn 0 = %+v", got.Turns[0])
	}
	if got.Turns[1].HasFeedback || got.Turns[1].Feedback != "" {
		t.Errorf("turn 1 should be untouched: %+v", got.Turns[1])
	}

	if err := m.ApplyFeedback(ref1, fb); !errors.Is(err, model.ErrAlreadyGraded) {
		t.Errorf("second ApplyFeedback error = %v, want ErrAlreadyGraded", err)
	}
}

func TestApplyFeedbackAfterReset(t *testing.T) {
	m := newTestManager(t)
	sess, _ := m.Start("Reset", "", model.ModeQuiz)
	in := TurnInput{Question: "old", Options: []string{"a"}, CorrectIndices: []int{0}, Quiz: true}
	ref, _, _ := m.AppendTurn(sess.ID, in)

	// The session is deleted and restarted; index 0 now holds a different turn.
	if err := m.Delete(sess.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	sess, _ = m.Start("Reset", "", model.ModeQuiz)
	in.Question = "new"
	_, _, _ = m.AppendTurn(sess.ID, in)

	err := m.ApplyFeedback(ref, model.Feedback{Feedback: "late"})
	if !errors.Is(err, model.ErrTurnChanged) {
		t.Fatalf("ApplyFeedback error = %v, want ErrTurnChanged", err)
	}
	got, _ := m.Get(sess.ID)
	if got.Turns[0].HasFeedback {
		t.Error("new turn must not receive stale feedback")
	}

	ref.Index = 7
	if err := m.ApplyFeedback(ref, model.Feedback{}); !errors.Is(err, model.ErrTurnChanged) {
		t.Errorf("out-of-range ref error = %v", err)
	}
}

func TestConcurrentAppends(t *testing.T) {
	m := newTestManager(t)
	sess, _ := m.Start("Busy", "", model.ModeEssay)

	const n = 20
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := m.AppendTurn(sess.ID, TurnInput{Question: fmt.Sprintf("Q%d", i)}); err != nil {
				t.Errorf("AppendTurn: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := m.Get(sess.ID)
	if len(got.Turns) != n {
		t.Errorf("expected %d turns, got %d", n, len(got.Turns))
	}
}

func TestListOrder(t *testing.T) {
	m := newTestManager(t)
	for _, topic := range []string{"beta", "Alpha", "gamma"} {
		if _, err := m.Start(topic, "", model.ModeEssay); err != nil {
			t.Fatalf("Start: %v", err)
		}
	}
	_, _, _ = m.AppendTurn("gamma", TurnInput{Question: "Q"})

	list, err := m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var ids []string
	for _, s := range list {
		ids = append(ids, s.ID)
	}
	want := []string{"gamma", "alpha", "beta"}
	if !slices.Equal(ids, want) {
		t.Errorf("List() order = %v, want %v", ids, want)
	}
	if list[0].QuestionCount != 1 {
		t.Errorf("QuestionCount = %d", list[0].QuestionCount)
	}
}

func TestDelete(t *testing.T) {
	m := newTestManager(t)
	sess, _ := m.Start("Gone", "", model.ModeEssay)
	if err := m.Delete(sess.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := m.Delete(sess.ID); !errors.Is(err, model.ErrSessionNotFound) {
		t.Errorf("second Delete error = %v, want ErrSessionNotFound", err)
	}
}

func TestScores(t *testing.T) {
	m := newTestManager(t)
	sess, _ := m.Start("Scored", "", model.ModeQuiz)
	opts := []string{"a", "b", "c", "d"}
	_, _, _ = m.AppendTurn(sess.ID, TurnInput{Question: "Q1", Options: opts, SelectedIndices: []int{0, 1}, CorrectIndices: []int{0, 1}, Quiz: true})
	_, _, _ = m.AppendTurn(sess.ID, TurnInput{Question: "essay-style", Options: opts})
	_, _, _ = m.AppendTurn(sess.ID, TurnInput{Question: "Q3", Options: opts, SelectedIndices: []int{0, 2}, CorrectIndices: []int{0, 1}, Quiz: true})
	_, _, _ = m.AppendTurn(sess.ID, TurnInput{Question: "Q4", Options: opts, SelectedIndices: []int{0}, CorrectIndices: []int{}, Quiz: true})

	r, err := m.Scores(sess.ID)
	if err != nil {
		t.Fatalf("Scores: %v", err)
	}
	if len(r.Turns) != 3 {
		t.Fatalf("expected 3 scored turns, got %d", len(r.Turns))
	}
	if r.Turns[1].Index != 2 || r.Turns[1].Score.String() != "0/2" {
		t.Errorf("turn = %+v", r.Turns[1])
	}
	if r.Turns[2].Score.Defined() {
		t.Error("turn without correct answers should be undefined")
	}
	if got := r.Total.String(); got != "2/4" {
		t.Errorf("total = %q, want 2/4", got)
	}
}
