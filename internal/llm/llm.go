package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/pavelanni/lazywriter/internal/extract"
	"github.com/pavelanni/lazywriter/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultBaseURL is Gemini's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"

// Client grades quiz answers through an OpenAI-compatible chat API. The API
// key travels with each request, so the underlying client is built per call.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// New creates a new grading client. An empty baseURL selects DefaultBaseURL.
func New(baseURL string, httpc *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpc == nil {
		httpc = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpc: httpc}
}

func (c *Client) api(apiKey string) *openai.Client {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = c.baseURL
	config.HTTPClient = c.httpc
	return openai.NewClientWithConfig(config)
}

// GradeAnswer sends a filled quiz-feedback prompt and returns the parsed
// feedback. Output that is not the expected JSON object falls back to the raw
// text with per-option correctness taken from correct.
func (c *Client) GradeAnswer(ctx context.Context, apiKey, modelName, prompt string, numOptions int, correct []int) (model.Feedback, error) {
	resp, err := c.api(apiKey).CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: modelName,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.3,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return model.Feedback{}, &model.UpstreamError{Status: apiErr.HTTPStatusCode, Message: apiErr.Message, Model: modelName}
		}
		return model.Feedback{}, fmt.Errorf("LLM API call: %w", err)
	}

	if len(resp.Choices) == 0 {
		return model.Feedback{}, fmt.Errorf("LLM returned no choices: %w", model.ErrIncompleteResult)
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)

	fb, err := ParseFeedback(raw)
	if err != nil {
		slog.Warn("grading response is not JSON, using fallback", "model", modelName, "error", err)
		return Fallback(raw, numOptions, correct), nil
	}
	return fb, nil
}

// ParseFeedback decodes a grading reply, tolerating markdown fences. An empty
// feedback string is replaced by the raw reply.
func ParseFeedback(raw string) (model.Feedback, error) {
	var fb model.Feedback
	if err := json.Unmarshal([]byte(extract.StripFences(raw)), &fb); err != nil {
		return model.Feedback{}, fmt.Errorf("parse LLM response: %w", err)
	}
	if fb.Feedback == "" {
		fb.Feedback = strings.TrimSpace(raw)
	}
	if fb.OptionFeedback == nil {
		fb.OptionFeedback = []model.OptionFeedback{}
	}
	return fb, nil
}

// Fallback builds feedback from an unparsable reply.
func Fallback(raw string, numOptions int, correct []int) model.Feedback {
	text := strings.TrimSpace(raw)
	if text == "" {
		text = "Feedback generated successfully."
	}
	fb := model.Feedback{Feedback: text, OptionFeedback: make([]model.OptionFeedback, 0, numOptions)}
	for i := range numOptions {
		ok := slices.Contains(correct, i)
		explanation := "This is not a correct answer."
		if ok {
			explanation = "This is a correct answer."
		}
		fb.OptionFeedback = append(fb.OptionFeedback, model.OptionFeedback{Index: i, IsCorrect: ok, Explanation: explanation})
	}
	return fb
}
