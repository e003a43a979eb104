package model

import (
	"context"
	"time"
)

// Mode selects how a session is driven.
type Mode string

const (
	// ModeEssay gathers details for a final essay.
	ModeEssay Mode = "essay"
	// ModeQuiz asks graded questions and ends with a performance analysis.
	ModeQuiz Mode = "quiz"
)

// DefaultModel is used when neither the request nor the configuration names one.
const DefaultModel = "gemini-flash-latest"

// OptionFeedback explains why a single option is right or wrong.
type OptionFeedback struct {
	Index       int    `json:"index"`
	IsCorrect   bool   `json:"isCorrect"`
	Explanation string `json:"explanation"`
}

// ConversationTurn is one question/answer exchange, optionally graded.
type ConversationTurn struct {
	ID              string           `json:"id,omitempty"`
	Question        string           `json:"question"`
	Answer          string           `json:"answer"`
	Options         []string         `json:"options"`
	SelectedIndices []int            `json:"selectedIndices"`
	FreeText        string           `json:"freeText"`
	Feedback        string           `json:"feedback,omitempty"`
	OptionFeedback  []OptionFeedback `json:"optionFeedback,omitempty"`
	CorrectIndices  []int            `json:"correctIndices,omitzero"`
	IsQuiz          bool             `json:"isQuiz,omitempty"`
	HasFeedback     bool             `json:"hasFeedback,omitempty"`
}

// Session is the persisted state of one topic.
type Session struct {
	ID        string             `json:"contextId"`
	Topic     string             `json:"context"`
	Model     string             `json:"model"`
	Mode      Mode               `json:"mode"`
	Turns     []ConversationTurn `json:"turns"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// SessionSummary is a session listing entry.
type SessionSummary struct {
	ID            string    `json:"contextId"`
	Topic         string    `json:"context"`
	Mode          Mode      `json:"mode"`
	QuestionCount int       `json:"questionCount"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// TurnRef identifies a turn as it was at append time.
type TurnRef struct {
	SessionID string `json:"contextId"`
	Index     int    `json:"index"`
	TurnID    string `json:"turnId"`
}

// Feedback is the result of grading a quiz turn.
type Feedback struct {
	Feedback       string           `json:"feedback"`
	OptionFeedback []OptionFeedback `json:"optionFeedback"`
}

// MCQ is a multiple-choice question. CorrectIndices is only set in quiz mode.
type MCQ struct {
	Question       string   `json:"question"`
	Options        []string `json:"options"`
	CorrectIndices []int    `json:"correctIndices,omitzero"`
}

// ModelInfo describes a generation model offered by the upstream API.
type ModelInfo struct {
	Name             string   `json:"name"`
	DisplayName      string   `json:"displayName"`
	Description      string   `json:"description"`
	SupportedMethods []string `json:"supportedMethods"`
}

// Settings are the single-valued user preferences.
type Settings struct {
	Context       string `json:"context"`
	Model         string `json:"model"`
	FinalizeModel string `json:"finalizeModel"`
}

// Config holds runtime parameters set via CLI flags.
type Config struct {
	DefaultAPIKey string // used when a request carries no key
	DefaultModel  string
	BasePath      string // URL prefix for sub-path deployments (e.g. "/writer")
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}
