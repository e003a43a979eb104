// Package client calls the lazywriter HTTP API and decodes its event
// streams, doing what the browser does.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/pavelanni/lazywriter/internal/extract"
	"github.com/pavelanni/lazywriter/internal/model"
	"github.com/pavelanni/lazywriter/internal/session"
	"github.com/pavelanni/lazywriter/internal/sse"
	"github.com/pavelanni/lazywriter/internal/stream"
)

// Client talks to one server.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// New creates a client for the server at baseURL, including any base path.
func New(baseURL string, httpc *http.Client) *Client {
	if httpc == nil {
		httpc = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpc: httpc}
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &model.TransportError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	var body model.ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		body.Error = fmt.Sprintf("request failed with status %d", resp.StatusCode)
	}
	return &model.UpstreamError{Status: resp.StatusCode, Message: body.Error, Model: body.Model}
}

// openEvents posts a generation request and returns a decoder over the
// response. A JSON answer means the server failed before streaming.
func (c *Client) openEvents(ctx context.Context, path string, req model.GenerateRequest) (*sse.Decoder, io.Closer, error) {
	resp, err := c.post(ctx, path, req)
	if err != nil {
		return nil, nil, err
	}
	mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mt != "text/event-stream" {
		defer resp.Body.Close()
		return nil, nil, decodeError(resp)
	}
	return sse.NewDecoder(resp.Body), resp.Body, nil
}

// GenerateQuestion streams the next question. onUpdate, when set, sees each
// partial question as it grows.
func (c *Client) GenerateQuestion(ctx context.Context, req model.GenerateRequest, onUpdate func(extract.MCQDraft)) (model.MCQ, error) {
	dec, body, err := c.openEvents(ctx, "/api/generate-question", req)
	if err != nil {
		return model.MCQ{}, err
	}
	defer body.Close()
	mcq, err := stream.ReadMCQ(dec, onUpdate)
	if err != nil {
		return model.MCQ{}, err
	}
	if req.Quiz && mcq.CorrectIndices == nil {
		return model.MCQ{}, model.ErrMissingCorrectIndices
	}
	return mcq, nil
}

// Finalize streams the essay.
func (c *Client) Finalize(ctx context.Context, req model.GenerateRequest, onChunk func(string)) (string, error) {
	return c.text(ctx, "/api/finalize", req, onChunk)
}

// QuizFinalize streams the performance analysis.
func (c *Client) QuizFinalize(ctx context.Context, req model.GenerateRequest, onChunk func(string)) (string, error) {
	return c.text(ctx, "/api/quiz-finalize", req, onChunk)
}

func (c *Client) text(ctx context.Context, path string, req model.GenerateRequest, onChunk func(string)) (string, error) {
	dec, body, err := c.openEvents(ctx, path, req)
	if err != nil {
		return "", err
	}
	defer body.Close()
	return stream.ReadText(dec, onChunk)
}

// QuizFeedback grades one answer synchronously.
func (c *Client) QuizFeedback(ctx context.Context, req model.FeedbackRequest) (model.FeedbackResponse, error) {
	var out model.FeedbackResponse
	err := c.postJSON(ctx, "/api/quiz-feedback", req, &out)
	return out, err
}

// StartSession creates or resumes the session for topic.
func (c *Client) StartSession(ctx context.Context, topic, modelName string, quiz bool) (model.Session, error) {
	var out model.Session
	err := c.postJSON(ctx, "/api/sessions", map[string]any{"context": topic, "model": modelName, "quiz": quiz}, &out)
	return out, err
}

// AnswerRequest is one submitted answer.
type AnswerRequest struct {
	Question        string   `json:"question"`
	Options         []string `json:"options"`
	SelectedIndices []int    `json:"selectedIndices"`
	FreeText        string   `json:"freeText,omitempty"`
	CorrectIndices  []int    `json:"correctIndices,omitzero"`
	APIKey          string   `json:"apiKey,omitempty"`
	Model           string   `json:"model,omitempty"`
}

// AnswerResult names the recorded turn.
type AnswerResult struct {
	Index   int    `json:"index"`
	TurnID  string `json:"turnId"`
	Answer  string `json:"answer"`
	Grading bool   `json:"grading"`
}

// Answer records an answer in a session.
func (c *Client) Answer(ctx context.Context, contextID string, req AnswerRequest) (AnswerResult, error) {
	var out AnswerResult
	err := c.postJSON(ctx, "/api/sessions/"+contextID+"/turns", req, &out)
	return out, err
}

// Session fetches a session with its turns.
func (c *Client) Session(ctx context.Context, contextID string) (model.Session, error) {
	var out model.Session
	err := c.getJSON(ctx, "/api/sessions/"+contextID, &out)
	return out, err
}

// Scores fetches the per-turn scores of a session.
func (c *Client) Scores(ctx context.Context, contextID string) (session.Report, error) {
	var out session.Report
	err := c.getJSON(ctx, "/api/sessions/"+contextID+"/score", &out)
	return out, err
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	resp, err := c.post(ctx, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return &model.TransportError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
