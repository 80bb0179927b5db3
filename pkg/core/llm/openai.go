package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DashScopeCompatibleURL is Qwen's OpenAI-compatible endpoint.
const DashScopeCompatibleURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

// OpenAIProvider serves any chat-completions compatible endpoint. It backs
// both the "openai" and "qwen" providers.
type OpenAIProvider struct {
	Name   string
	Model  string
	apiKey string
	client *openai.Client
}

var _ Provider = (*OpenAIProvider)(nil)

func NewOpenAIProvider(name, apiKey, baseURL, model string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAIProvider{Name: name, Model: model, apiKey: apiKey, client: &client}
}

// NewQwenProvider points the OpenAI client at DashScope.
func NewQwenProvider(apiKey, model string) *OpenAIProvider {
	return NewOpenAIProvider("qwen", apiKey, DashScopeCompatibleURL, model)
}

func (p *OpenAIProvider) GenerateResponse(ctx context.Context, prompt string, systemPrompt string, options map[string]interface{}) (string, error) {
	if p.apiKey == "" {
		return "", fmt.Errorf("%s: %w", p.Name, ErrMissingAPIKey)
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(optString(options, OptModel, p.Model)),
		Messages:    messages,
		Temperature: openai.Float(optFloat(options, OptTemperature, 0.1)),
	}
	if n := optInt(options, OptMaxTokens, 0); n > 0 {
		params.MaxTokens = openai.Int(int64(n))
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%s generation failed: %w", p.Name, err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("%s returned no choices", p.Name)
	}
	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}

func (p *OpenAIProvider) AdaptInstructions(raw string) string {
	return raw
}
