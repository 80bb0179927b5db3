package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"zeno_agent/pkg/core/config"
	"zeno_agent/pkg/core/llm"
)

// Agent types that may carry their own provider override.
const (
	Router       = "router"
	Forecast     = "forecast"
	Comparative  = "comparative"
	Scenario     = "scenario"
	RAG          = "rag"
	Economist    = "economist"
	Dashboard    = "dashboard"
	FileAnalysis = "file_analysis"
)

// GenerateConfig carries the per-call generation limits. A zero MaxTokens or a
// nil Temperature leaves the provider default in place; Temp(0) requests
// deterministic sampling.
type GenerateConfig struct {
	MaxTokens   int
	Temperature *float64
}

// Temp returns a Temperature value for GenerateConfig.
func Temp(v float64) *float64 { return &v }

// Generator is the text generation service consumed by every handler.
type Generator interface {
	Generate(ctx context.Context, agentType, prompt string, cfg GenerateConfig) (string, error)
}

type Manager struct {
	mu        sync.RWMutex
	config    config.LLMConfig
	providers map[string]llm.Provider
	log       *logrus.Entry
}

// NewManager registers the given providers under their names.
func NewManager(cfg config.LLMConfig, providers map[string]llm.Provider, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	return &Manager{
		config:    cfg,
		providers: providers,
		log:       logger.WithField("component", "agent"),
	}
}

// NewManagerFromConfig builds every supported provider from cfg.
func NewManagerFromConfig(cfg config.LLMConfig, logger *logrus.Logger) *Manager {
	return NewManager(cfg, DefaultProviders(cfg), logger)
}

// DefaultProviders constructs the provider set named in the configuration.
func DefaultProviders(cfg config.LLMConfig) map[string]llm.Provider {
	key := func(name string) string { return cfg.Keys[name] }
	model := func(name string) string { return cfg.Models[name] }
	return map[string]llm.Provider{
		"gemini":        llm.NewGeminiProvider(key("gemini"), model("gemini")),
		"gemini-legacy": &llm.LegacyGeminiProvider{APIKey: key("gemini-legacy"), Model: model("gemini-legacy")},
		"openai":        llm.NewOpenAIProvider("openai", key("openai"), "", model("openai")),
		"qwen":          llm.NewQwenProvider(key("qwen"), model("qwen")),
		"anthropic":     llm.NewAnthropicProvider(key("anthropic"), model("anthropic")),
		"deepseek":      &llm.DeepSeekProvider{APIKey: key("deepseek"), Model: model("deepseek")},
	}
}

// GetProvider resolves the provider for an agent type: override, then active provider.
func (m *Manager) GetProvider(agentType string) (string, llm.Provider) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if a, ok := m.config.Agents[agentType]; ok && a.Provider != "" {
		if p, ok := m.providers[a.Provider]; ok {
			return a.Provider, p
		}
	}
	if p, ok := m.providers[m.config.ActiveProvider]; ok {
		return m.config.ActiveProvider, p
	}
	return "", nil
}

// Generate runs prompt against the provider configured for agentType.
func (m *Manager) Generate(ctx context.Context, agentType, prompt string, cfg GenerateConfig) (string, error) {
	name, provider := m.GetProvider(agentType)
	if provider == nil {
		return "", fmt.Errorf("no provider available for agent %q", agentType)
	}

	options := map[string]interface{}{}
	if cfg.Temperature != nil {
		options[llm.OptTemperature] = *cfg.Temperature
	}
	if cfg.MaxTokens > 0 {
		options[llm.OptMaxTokens] = cfg.MaxTokens
	}

	m.log.WithFields(logrus.Fields{"agent": agentType, "provider": name}).Debug("generate")
	return provider.GenerateResponse(ctx, prompt, provider.AdaptInstructions(""), options)
}

// ExecutePrompt sends a prompt with an explicit system prompt and raw options.
func (m *Manager) ExecutePrompt(ctx context.Context, agentType, rawPrompt, rawSystemPrompt string, options map[string]interface{}) (string, error) {
	_, provider := m.GetProvider(agentType)
	if provider == nil {
		return "", fmt.Errorf("no provider available for agent %q", agentType)
	}
	return provider.GenerateResponse(ctx, rawPrompt, provider.AdaptInstructions(rawSystemPrompt), options)
}

func (m *Manager) SetGlobalProvider(newProvider string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.providers[newProvider]; !ok {
		return fmt.Errorf("provider %s not found", newProvider)
	}
	m.config.ActiveProvider = newProvider
	m.log.WithField("provider", newProvider).Info("global provider switched")
	return nil
}

func (m *Manager) ActiveProvider() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.ActiveProvider
}

// Available lists registered provider names in sorted order.
func (m *Manager) Available() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.providers))
	for k := range m.providers {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Agents returns a copy of the per-agent configuration.
func (m *Manager) Agents() map[string]config.AgentConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]config.AgentConfig, len(m.config.Agents))
	for k, v := range m.config.Agents {
		out[k] = v
	}
	return out
}
