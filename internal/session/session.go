// Package session keeps the conversation history of each topic and applies
// background grading results to the exact turn they were computed for.
package session

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/pavelanni/lazywriter/internal/model"
	"github.com/pavelanni/lazywriter/internal/scoring"
)

// Store persists sessions. *store.Store implements it.
type Store interface {
	GetSession(id string) (*model.Session, error)
	SaveSession(sess model.Session) error
	DeleteSession(id string) error
	ListSessions() ([]model.Session, error)
}

// Manager serializes read-modify-write cycles per session.
type Manager struct {
	store Store
	now   func() time.Time
	newID func() string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a manager on top of s.
func NewManager(s Store) *Manager {
	return &Manager{
		store: s,
		now:   time.Now,
		newID: uuid.NewString,
		locks: make(map[string]*sync.Mutex),
	}
}

func (m *Manager) lock(id string) func() {
	m.mu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	m.mu.Unlock()
	l.Lock()
	return l.Unlock
}

const maxIDRunes = 48

// ContextID derives the session key from the start of the topic: lower
// case, runs of other characters collapsed to '-', at most 48 characters.
func ContextID(topic string) string {
	var sb strings.Builder
	n := 0
	dash := false
	for _, r := range strings.ToLower(topic) {
		if n >= maxIDRunes {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && sb.Len() > 0 {
				sb.WriteByte('-')
				n++
				if n >= maxIDRunes {
					break
				}
			}
			dash = false
			sb.WriteRune(r)
			n++
			continue
		}
		dash = true
	}
	id := strings.Trim(sb.String(), "-")
	if id == "" {
		return "context"
	}
	return id
}

// Start opens the session for topic, creating it if needed. An existing
// session with the same id is resumed with the given model and mode.
func (m *Manager) Start(topic, modelName string, mode model.Mode) (*model.Session, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, model.ErrEmptyTopic
	}
	if mode == "" {
		mode = model.ModeEssay
	}
	id := ContextID(topic)
	defer m.lock(id)()

	sess, err := m.store.GetSession(id)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	now := m.now()
	if sess == nil {
		sess = &model.Session{ID: id, Topic: topic, CreatedAt: now, Turns: []model.ConversationTurn{}}
	}
	if modelName != "" {
		sess.Model = modelName
	}
	sess.Mode = mode
	sess.UpdatedAt = now
	if err := m.store.SaveSession(*sess); err != nil {
		return nil, fmt.Errorf("save session %s: %w", id, err)
	}
	return sess, nil
}

// Get returns a session or model.ErrSessionNotFound.
func (m *Manager) Get(id string) (*model.Session, error) {
	sess, err := m.store.GetSession(id)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	if sess == nil {
		return nil, model.ErrSessionNotFound
	}
	return sess, nil
}

// List returns summaries, most questions first, then by topic.
func (m *Manager) List() ([]model.SessionSummary, error) {
	sessions, err := m.store.ListSessions()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]model.SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, model.SessionSummary{
			ID:            s.ID,
			Topic:         s.Topic,
			Mode:          s.Mode,
			QuestionCount: len(s.Turns),
			UpdatedAt:     s.UpdatedAt,
		})
	}
	slices.SortStableFunc(out, func(a, b model.SessionSummary) int {
		if a.QuestionCount != b.QuestionCount {
			return b.QuestionCount - a.QuestionCount
		}
		return strings.Compare(strings.ToLower(a.Topic), strings.ToLower(b.Topic))
	})
	return out, nil
}

// Delete removes a session and all its turns.
func (m *Manager) Delete(id string) error {
	defer m.lock(id)()
	sess, err := m.store.GetSession(id)
	if err != nil {
		return fmt.Errorf("load session %s: %w", id, err)
	}
	if sess == nil {
		return model.ErrSessionNotFound
	}
	return m.store.DeleteSession(id)
}

// TurnInput is a submitted answer.
type TurnInput struct {
	Question        string
	Options         []string
	SelectedIndices []int
	FreeText        string
	CorrectIndices  []int
	Quiz            bool
}

// AppendTurn validates and records an answer. The returned TurnRef names the
// new turn for later feedback.
func (m *Manager) AppendTurn(id string, in TurnInput) (model.TurnRef, model.ConversationTurn, error) {
	turn, err := NewTurn(in)
	if err != nil {
		return model.TurnRef{}, model.ConversationTurn{}, err
	}
	turn.ID = m.newID()

	defer m.lock(id)()
	sess, err := m.store.GetSession(id)
	if err != nil {
		return model.TurnRef{}, model.ConversationTurn{}, fmt.Errorf("load session %s: %w", id, err)
	}
	if sess == nil {
		return model.TurnRef{}, model.ConversationTurn{}, model.ErrSessionNotFound
	}
	sess.Turns = append(sess.Turns, turn)
	sess.UpdatedAt = m.now()
	if err := m.store.SaveSession(*sess); err != nil {
		return model.TurnRef{}, model.ConversationTurn{}, fmt.Errorf("save session %s: %w", id, err)
	}
	ref := model.TurnRef{SessionID: id, Index: len(sess.Turns) - 1, TurnID: turn.ID}
	return ref, turn, nil
}

// NewTurn validates an answer and builds its turn without recording it.
// Indices are range-checked, sorted and de-duplicated.
func NewTurn(in TurnInput) (model.ConversationTurn, error) {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return model.ConversationTurn{}, model.ErrEmptyQuestion
	}
	selected, err := normalizeIndices(in.SelectedIndices, len(in.Options))
	if err != nil {
		return model.ConversationTurn{}, fmt.Errorf("selected: %w", err)
	}
	freeText := strings.TrimSpace(in.FreeText)
	turn := model.ConversationTurn{
		Question:        question,
		Answer:          ComposeAnswer(in.Options, selected, freeText),
		Options:         in.Options,
		SelectedIndices: selected,
		FreeText:        freeText,
	}
	if in.Quiz {
		if in.CorrectIndices == nil {
			return model.ConversationTurn{}, model.ErrMissingCorrectIndices
		}
		correct, err := normalizeIndices(in.CorrectIndices, len(in.Options))
		if err != nil {
			return model.ConversationTurn{}, fmt.Errorf("correct: %w", err)
		}
		turn.CorrectIndices = correct
		turn.IsQuiz = true
	}
	return turn, nil
}

// normalizeIndices checks range, sorts and drops duplicates. The result is
// never nil.
func normalizeIndices(idx []int, n int) ([]int, error) {
	out := make([]int, 0, len(idx))
	for _, i := range idx {
		if i < 0 || i >= n {
			return nil, fmt.Errorf("%w: %d with %d options", model.ErrInvalidIndex, i, n)
		}
		out = append(out, i)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// ComposeAnswer renders an answer as the model will read it.
func ComposeAnswer(options []string, selected []int, freeText string) string {
	picked := make([]string, 0, len(selected))
	for _, i := range selected {
		if i >= 0 && i < len(options) {
			picked = append(picked, options[i])
		}
	}
	answer := strings.Join(picked, ", ")
	freeText = strings.TrimSpace(freeText)
	switch {
	case freeText != "" && answer != "":
		answer += " | Additional: " + freeText
	case freeText != "":
		answer = "Additional: " + freeText
	case answer == "":
		answer = "No selection made"
	}
	return answer
}

// ApplyFeedback stores grading results on the turn named by ref. It fails
// with model.ErrTurnChanged when that position no longer holds the captured
// turn, and with model.ErrAlreadyGraded on a second application.
func (m *Manager) ApplyFeedback(ref model.TurnRef, fb model.Feedback) error {
	defer m.lock(ref.SessionID)()
	sess, err := m.store.GetSession(ref.SessionID)
	if err != nil {
		return fmt.Errorf("load session %s: %w", ref.SessionID, err)
	}
	if sess == nil {
		return model.ErrSessionNotFound
	}
	if ref.Index < 0 || ref.Index >= len(sess.Turns) || sess.Turns[ref.Index].ID != ref.TurnID {
		return fmt.Errorf("%w: %s[%d]", model.ErrTurnChanged, ref.SessionID, ref.Index)
	}
	turn := &sess.Turns[ref.Index]
	if turn.HasFeedback {
		return model.ErrAlreadyGraded
	}
	turn.Feedback = fb.Feedback
	turn.OptionFeedback = fb.OptionFeedback
	turn.HasFeedback = true
	sess.UpdatedAt = m.now()
	return m.store.SaveSession(*sess)
}

// TurnScore is the score of one quiz turn.
type TurnScore struct {
	Index       int           `json:"index"`
	TurnID      string        `json:"turnId"`
	HasFeedback bool          `json:"hasFeedback"`
	Score       scoring.Score `json:"score"`
}

// Report holds per-turn scores and their total.
type Report struct {
	Turns []TurnScore   `json:"turns"`
	Total scoring.Total `json:"total"`
}

// Scores computes the scores of every quiz turn of a session.
func (m *Manager) Scores(id string) (Report, error) {
	sess, err := m.Get(id)
	if err != nil {
		return Report{}, err
	}
	return Score(sess.Turns), nil
}

// Score computes a report over turns. Turns that are not quiz turns are
// skipped.
func Score(turns []model.ConversationTurn) Report {
	r := Report{Turns: []TurnScore{}}
	for i, t := range turns {
		if !t.IsQuiz {
			continue
		}
		s := scoring.Compute(t.CorrectIndices, t.SelectedIndices, len(t.Options))
		r.Turns = append(r.Turns, TurnScore{Index: i, TurnID: t.ID, HasFeedback: t.HasFeedback, Score: s})
		r.Total.Add(s)
	}
	return r
}
