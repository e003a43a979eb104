package model

// GenerateRequest is the body of the generate-question, finalize and
// quiz-finalize endpoints.
type GenerateRequest struct {
	Context             string             `json:"context"`
	ContextID           string             `json:"contextId,omitempty"`
	ConversationHistory []ConversationTurn `json:"conversationHistory"`
	SystemPrompt        string             `json:"systemPrompt,omitempty"`
	Refinement          string             `json:"refinement,omitempty"`
	APIKey              string             `json:"apiKey,omitempty"`
	Model               string             `json:"model,omitempty"`
	Quiz                bool               `json:"quiz,omitempty"`
}

// FeedbackRequest asks for feedback on one quiz answer.
type FeedbackRequest struct {
	Question        string   `json:"question"`
	Options         []string `json:"options"`
	SelectedIndices []int    `json:"selectedIndices"`
	CorrectIndices  []int    `json:"correctIndices"`
	Context         string   `json:"context"`
	SystemPrompt    string   `json:"systemPrompt,omitempty"`
	APIKey          string   `json:"apiKey,omitempty"`
	Model           string   `json:"model,omitempty"`
}

// FeedbackResponse is the graded answer with its key echoed back.
type FeedbackResponse struct {
	Feedback       string           `json:"feedback"`
	OptionFeedback []OptionFeedback `json:"optionFeedback"`
	CorrectIndices []int            `json:"correctIndices"`
}

// ErrorResponse is the JSON body of every non-streaming error.
type ErrorResponse struct {
	Error string `json:"error"`
	Model string `json:"model,omitempty"`
}
