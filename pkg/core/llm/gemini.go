package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"
)

// GeminiProvider implements the Provider interface for Google's Gemini models.
// The underlying client is created on first use and reused afterwards.
type GeminiProvider struct {
	APIKey string
	Model  string // e.g. "gemini-2.5-flash"

	once    sync.Once
	client  *genai.Client
	initErr error
}

// Ensure interface compliance
var _ Provider = (*GeminiProvider)(nil)

func NewGeminiProvider(apiKey, model string) *GeminiProvider {
	return &GeminiProvider{APIKey: apiKey, Model: model}
}

func (p *GeminiProvider) getClient(ctx context.Context) (*genai.Client, error) {
	if p.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrMissingAPIKey)
	}
	p.once.Do(func() {
		p.client, p.initErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  p.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
	})
	if p.initErr != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", p.initErr)
	}
	return p.client, nil
}

// GenerateResponse sends a generateContent request to the Gemini API.
func (p *GeminiProvider) GenerateResponse(ctx context.Context, prompt string, systemPrompt string, options map[string]interface{}) (string, error) {
	client, err := p.getClient(ctx)
	if err != nil {
		return "", err
	}

	model := optString(options, OptModel, p.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(optFloat(options, OptTemperature, 0.1))),
	}
	if n := optInt(options, OptMaxTokens, 0); n > 0 {
		config.MaxOutputTokens = int32(n)
	}
	if val, ok := options["response_format"].(map[string]interface{}); ok && val["type"] == "json_object" {
		config.ResponseMIMEType = "application/json"
	}
	if systemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		}
	}

	result, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}
	return strings.TrimSpace(result.Text()), nil
}

func (p *GeminiProvider) AdaptInstructions(raw string) string {
	return raw
}

// Embed returns the embedding for text using the configured embedding model.
func (p *GeminiProvider) Embed(ctx context.Context, model, text string) ([]float32, error) {
	client, err := p.getClient(ctx)
	if err != nil {
		return nil, err
	}
	res, err := client.Models.EmbedContent(ctx, model, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("gemini embedding failed: %w", err)
	}
	if len(res.Embeddings) == 0 || res.Embeddings[0] == nil {
		return nil, fmt.Errorf("gemini embedding returned no vectors")
	}
	return res.Embeddings[0].Values, nil
}
