package model

import "time"

// Export is the top-level JSON structure written by the export command.
type Export struct {
	ExportedAt time.Time       `json:"exported_at"`
	Settings   Settings        `json:"settings"`
	Sessions   []SessionExport `json:"sessions"`
}

// SessionExport holds one session for export.
type SessionExport struct {
	ContextID string       `json:"context_id"`
	Topic     string       `json:"topic"`
	Mode      Mode         `json:"mode"`
	Model     string       `json:"model"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Turns     []TurnResult `json:"turns"`
	Earned    float64      `json:"earned,omitempty"`
	Possible  int          `json:"possible,omitempty"`
	Score     string       `json:"score,omitempty"`
}

// TurnResult holds per-turn data for export.
type TurnResult struct {
	Question       string   `json:"question"`
	Options        []string `json:"options"`
	Selected       []int    `json:"selected"`
	FreeText       string   `json:"free_text,omitempty"`
	Answer         string   `json:"answer"`
	CorrectIndices []int    `json:"correct_indices,omitempty"`
	Feedback       string   `json:"feedback,omitempty"`
	Score          string   `json:"score,omitempty"`
}
