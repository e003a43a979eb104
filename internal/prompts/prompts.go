package prompts

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pavelanni/lazywriter/internal/model"
)

//go:embed templates/*.txt
var templateFS embed.FS

// Kind names a prompt template.
type Kind string

const (
	// KindQuestion asks the next essay question.
	KindQuestion Kind = "question"
	// KindQuiz asks the next quiz question with its answer key.
	KindQuiz Kind = "quiz"
	// KindFinalize writes the essay.
	KindFinalize Kind = "finalize"
	// KindQuizFinalize writes the performance analysis.
	KindQuizFinalize Kind = "quiz-finalize"
	// KindQuizFeedback grades one quiz answer.
	KindQuizFeedback Kind = "quiz-feedback"
)

// Kinds lists every template kind.
var Kinds = []Kind{KindQuestion, KindQuiz, KindFinalize, KindQuizFinalize, KindQuizFeedback}

// IsValidKind checks if a kind name is known.
func IsValidKind(k string) bool {
	return slices.Contains(Kinds, Kind(k))
}

// MaxInputRunes caps user-supplied text placed into a prompt.
const MaxInputRunes = 10000

// Set maps each kind to its template text.
type Set map[Kind]string

// Embedded returns the built-in templates.
func Embedded() fs.FS {
	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}

// Load reads "<kind>.txt" for every kind from fsys.
func Load(fsys fs.FS) (Set, error) {
	set := make(Set, len(Kinds))
	for _, k := range Kinds {
		name := string(k) + ".txt"
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read prompt file %s: %w", name, err)
		}
		set[k] = string(data)
	}
	return set, nil
}

// OverrideStore holds user-edited templates. An empty string means no
// override is stored.
type OverrideStore interface {
	GetPromptOverride(kind string) (string, error)
}

// Source tells where a resolved template came from.
type Source string

const (
	SourceRequest  Source = "request"
	SourceOverride Source = "override"
	SourceDefault  Source = "default"
)

// Resolver picks the template for a call: the one sent with the request,
// then a stored override, then the default.
type Resolver struct {
	defaults  Set
	overrides OverrideStore
}

// NewResolver creates a resolver. overrides may be nil.
func NewResolver(defaults Set, overrides OverrideStore) *Resolver {
	return &Resolver{defaults: defaults, overrides: overrides}
}

// Template resolves the template text for kind.
func (r *Resolver) Template(kind Kind, requested string) (string, Source, error) {
	if strings.TrimSpace(requested) != "" {
		return requested, SourceRequest, nil
	}
	if r.overrides != nil {
		s, err := r.overrides.GetPromptOverride(string(kind))
		if err != nil {
			return "", "", fmt.Errorf("load prompt override %s: %w", kind, err)
		}
		if strings.TrimSpace(s) != "" {
			return s, SourceOverride, nil
		}
	}
	return r.Default(kind)
}

// Default returns the built-in template for kind.
func (r *Resolver) Default(kind Kind) (string, Source, error) {
	s, ok := r.defaults[kind]
	if !ok {
		return "", "", errors.New("unknown prompt kind: " + string(kind))
	}
	return s, SourceDefault, nil
}

// Fill replaces each {Name} placeholder with vars[Name] as literal text.
// Placeholders without a value are left as they are, and inserted values are
// never scanned for further placeholders.
func Fill(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for name, val := range vars {
		pairs = append(pairs, "{"+name+"}", val)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// ComposeContext renders the topic followed by the answers so far.
func ComposeContext(topic string, turns []model.ConversationTurn) string {
	topic = Sanitize(topic)
	if len(turns) == 0 {
		return topic
	}
	entries := make([]string, 0, len(turns))
	for _, t := range turns {
		entries = append(entries, historyEntry(t))
	}
	return topic + "\n\nPrevious questions and answers:\n" + strings.Join(entries, "\n\n")
}

func historyEntry(t model.ConversationTurn) string {
	entry := "Q: " + t.Question + "\nA: " + t.Answer
	if len(t.Options) > 0 && t.SelectedIndices != nil {
		var rest []string
		for i, opt := range t.Options {
			if !slices.Contains(t.SelectedIndices, i) {
				rest = append(rest, opt)
			}
		}
		if len(rest) > 0 {
			entry += "\nNot selected: " + strings.Join(rest, ", ")
		}
	}
	return entry
}

// WithRefinement appends a user's revision request to a finalize prompt.
func WithRefinement(prompt, refinement string) string {
	refinement = Sanitize(refinement)
	if refinement == "" {
		return prompt
	}
	return prompt + "\n\nUser's refinement request: " + refinement +
		"\n\nPlease refine the essay/message according to the user's request above."
}

// QuizHistory renders graded turns for the performance analysis.
func QuizHistory(turns []model.ConversationTurn) string {
	if len(turns) == 0 {
		return "No quiz history available."
	}
	blocks := make([]string, 0, len(turns))
	for _, t := range turns {
		var sb strings.Builder
		sb.WriteString("Question: " + t.Question + "\n")
		sb.WriteString("Student Answer: " + t.Answer + "\n")
		if t.Feedback != "" {
			sb.WriteString("Feedback: " + t.Feedback + "\n")
		}
		if len(t.OptionFeedback) > 0 {
			data, _ := json.Marshal(t.OptionFeedback)
			sb.WriteString("Option Feedback: " + string(data) + "\n")
		}
		blocks = append(blocks, sb.String())
	}
	return strings.Join(blocks, "\n---\n\n")
}

// FeedbackVars builds the placeholder values for grading one quiz answer.
func FeedbackVars(question string, options []string, correct, selected []int, context string) map[string]string {
	lines := make([]string, len(options))
	for i, opt := range options {
		lines[i] = strconv.Itoa(i) + ": " + opt
	}
	if strings.TrimSpace(context) == "" {
		context = "No additional context provided"
	}
	return map[string]string{
		"Question":        question,
		"Options":         strings.Join(lines, "\n"),
		"CorrectIndices":  joinInts(correct),
		"SelectedIndices": joinInts(selected),
		"Context":         Sanitize(context),
	}
}

func joinInts(nums []int) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ", ")
}

// Sanitize trims user text and caps its length.
func Sanitize(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > MaxInputRunes {
		runes := []rune(s)
		s = string(runes[:MaxInputRunes]) + "\n\n[Text truncated due to length]"
	}
	return s
}
