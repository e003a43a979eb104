package gemini

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/pavelanni/lazywriter/internal/model"
)

// RecommendedModels are listed first, in this order.
var RecommendedModels = []string{"gemini-flash-latest", "gemini-pro-latest"}

const greetPrompt = "Say hello in one short friendly sentence."

// Catalog answers model listing and key validation through the SDK.
type Catalog struct {
	opts []option.ClientOption
}

// NewCatalog creates a catalogue. Extra options are appended after the
// per-request API key, e.g. option.WithEndpoint for a proxy.
func NewCatalog(opts ...option.ClientOption) *Catalog {
	return &Catalog{opts: opts}
}

func (c *Catalog) client(ctx context.Context, apiKey string) (*genai.Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("API key is empty")
	}
	opts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, c.opts...)
	cl, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return cl, nil
}

// ListModels returns the models that can generate content.
func (c *Catalog) ListModels(ctx context.Context, apiKey string) ([]model.ModelInfo, error) {
	cl, err := c.client(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	defer cl.Close()

	var out []model.ModelInfo
	it := cl.ListModels(ctx)
	for {
		m, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list models: %w", sdkError(err, ""))
		}
		if !supportsGeneration(m.SupportedGenerationMethods) {
			continue
		}
		out = append(out, model.ModelInfo{
			Name:             strings.TrimPrefix(m.Name, "models/"),
			DisplayName:      m.DisplayName,
			Description:      m.Description,
			SupportedMethods: m.SupportedGenerationMethods,
		})
	}
	SortModels(out)
	return out, nil
}

// Greet asks the model for a one-sentence greeting. A reply proves the key
// and model work.
func (c *Catalog) Greet(ctx context.Context, apiKey, modelName string) (string, error) {
	cl, err := c.client(ctx, apiKey)
	if err != nil {
		return "", err
	}
	defer cl.Close()

	resp, err := cl.GenerativeModel(modelName).GenerateContent(ctx, genai.Text(greetPrompt))
	if err != nil {
		return "", fmt.Errorf("generate greeting: %w", sdkError(err, modelName))
	}
	text := strings.TrimSpace(firstText(resp))
	if text == "" {
		return "", fmt.Errorf("%w: empty greeting", model.ErrIncompleteResult)
	}
	return text, nil
}

// sdkError turns an HTTP error reported by the SDK into *model.UpstreamError.
// Other errors are returned unchanged.
func sdkError(err error, modelName string) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		msg := gerr.Message
		if msg == "" {
			msg = fmt.Sprintf("request failed with status %d", gerr.Code)
		}
		return &model.UpstreamError{Status: gerr.Code, Message: msg, Model: modelName}
	}
	return err
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func supportsGeneration(methods []string) bool {
	return slices.Contains(methods, "generateContent") || slices.Contains(methods, "streamGenerateContent")
}

// SortModels puts RecommendedModels first and orders the rest by display name.
func SortModels(models []model.ModelInfo) {
	rank := func(name string) int {
		if i := slices.Index(RecommendedModels, name); i >= 0 {
			return i
		}
		return len(RecommendedModels)
	}
	slices.SortStableFunc(models, func(a, b model.ModelInfo) int {
		if ra, rb := rank(a.Name), rank(b.Name); ra != rb {
			return ra - rb
		}
		return strings.Compare(a.DisplayName, b.DisplayName)
	})
}
