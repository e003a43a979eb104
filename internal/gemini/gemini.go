// Package gemini talks to the Gemini generative-language REST API.
//
// Generation goes over plain HTTP so the streamed response can be read line
// by line as it arrives; the model catalogue and key checks use the SDK.
package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/pavelanni/lazywriter/internal/model"
)

// DefaultBaseURL is the public v1beta endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Client issues generateContent and streamGenerateContent calls.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// New creates a client. An empty baseURL selects DefaultBaseURL; a nil
// httpc selects http.DefaultClient. No timeout is applied beyond the
// caller's context.
func New(baseURL string, httpc *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpc == nil {
		httpc = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpc: httpc}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func (r *generateResponse) text() string {
	if len(r.Candidates) == 0 || len(r.Candidates[0].Content.Parts) == 0 {
		return ""
	}
	return r.Candidates[0].Content.Parts[0].Text
}

func (c *Client) post(ctx context.Context, apiKey, modelName, method, prompt string) (*http.Response, error) {
	body, err := json.Marshal(generateRequest{Contents: []content{{Parts: []part{{Text: prompt}}}}})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	u := fmt.Sprintf("%s/models/%s:%s?key=%s", c.baseURL, url.PathEscape(modelName), method, url.QueryEscape(apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
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
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, decodeError(resp.StatusCode, data, modelName)
	}
	return resp, nil
}

// Generate returns the whole reply of a non-streaming call.
func (c *Client) Generate(ctx context.Context, apiKey, modelName, prompt string) (string, error) {
	resp, err := c.post(ctx, apiKey, modelName, "generateContent", prompt)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	text := out.text()
	if text == "" {
		return "", fmt.Errorf("%w: empty reply from %s", model.ErrIncompleteResult, modelName)
	}
	return text, nil
}

// Stream starts a streaming call. A non-2xx answer is returned here as a
// *model.UpstreamError, before any text is read.
func (c *Client) Stream(ctx context.Context, apiKey, modelName, prompt string) (*Stream, error) {
	resp, err := c.post(ctx, apiKey, modelName, "streamGenerateContent", prompt)
	if err != nil {
		return nil, err
	}
	return &Stream{body: resp.Body, r: bufio.NewReader(resp.Body), model: modelName}, nil
}

// Stream yields text deltas from a streamGenerateContent response. The
// upstream sends a JSON array spread over many lines; each line is
// translated on its own.
type Stream struct {
	body    io.ReadCloser
	r       *bufio.Reader
	model   string
	eof     bool
	skipped int
}

// Next returns the next non-empty text delta, io.EOF at the end of the
// response, or a *model.TransportError when the read fails.
func (s *Stream) Next() (string, error) {
	for !s.eof {
		line, err := s.r.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return "", &model.TransportError{Err: err}
			}
			s.eof = true
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		text, ok := TextFromLine(line)
		if !ok {
			s.skipped++
			continue
		}
		if text != "" {
			return text, nil
		}
	}
	if s.skipped > 0 {
		slog.Debug("upstream lines without text", "model", s.model, "count", s.skipped)
	}
	return "", io.EOF
}

// Skipped counts the non-blank lines that carried no text member.
func (s *Stream) Skipped() int { return s.skipped }

// Close releases the response body.
func (s *Stream) Close() error { return s.body.Close() }

var textPattern = regexp.MustCompile(`"text"\s*:\s*"((?:[^"\\]|\\.)*)"?`)

// TextFromLine pulls the candidate text out of one line of a streamed reply.
// A line holding a whole chunk object, optionally wrapped in array
// punctuation, is decoded strictly; otherwise a `"text": "..."` member is
// matched directly. ok is false when the line carries no text member.
func TextFromLine(line string) (string, bool) {
	t := strings.TrimSpace(line)
	t = strings.TrimLeft(t, "[,")
	t = strings.TrimRight(t, ",]")
	t = strings.TrimSpace(t)
	if strings.HasPrefix(t, "{") {
		var chunk generateResponse
		if err := json.Unmarshal([]byte(t), &chunk); err == nil {
			if len(chunk.Candidates) == 0 {
				return "", false
			}
			return chunk.text(), true
		}
	}

	m := textPattern.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	var s string
	if err := json.Unmarshal([]byte(`"`+m[1]+`"`), &s); err != nil {
		slog.Warn("skipping undecodable upstream line",
			"error", &model.StreamDecodeError{Frame: line, Err: err})
		return "", false
	}
	return s, true
}

func decodeError(status int, body []byte, modelName string) *model.UpstreamError {
	msg := errorMessage(body)
	if msg == "" {
		msg = fmt.Sprintf("request failed with status %d", status)
	}
	return &model.UpstreamError{Status: status, Message: msg, Model: modelName}
}

// errorMessage understands {"error":{"message":...}}, the same wrapped in an
// array, and {"error":"..."}.
func errorMessage(body []byte) string {
	data := bytes.TrimSpace(body)
	if len(data) > 0 && data[0] == '[' {
		var arr []json.RawMessage
		if err := json.Unmarshal(data, &arr); err != nil || len(arr) == 0 {
			return ""
		}
		data = arr[0]
	}
	var env struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil || len(env.Error) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(env.Error, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(env.Error, &obj); err == nil {
		return obj.Message
	}
	return ""
}
