// Package prompt provides a centralized prompt library for LLM interactions.
// Prompts are JSON files embedded in the binary and can be replaced at runtime
// from a directory, so wording changes need no code changes.
package prompt

// PromptTemplate represents a reusable prompt with metadata
type PromptTemplate struct {
	ID             string           `json:"id"`                   // Unique identifier (e.g., "router.classify")
	Name           string           `json:"name"`                 // Human-readable name
	Category       string           `json:"category"`             // Category (router, economist, dashboard, etc.)
	Description    string           `json:"description"`          // Description of prompt purpose
	SystemPrompt   string           `json:"system_prompt"`        // The system prompt content
	UserPromptTmpl string           `json:"user_prompt_template"` // Go template for user prompt
	Variables      []PromptVariable `json:"variables"`            // Variables used in template
	Version        string           `json:"version"`              // Version for tracking changes
}

// PromptVariable defines a variable used in a prompt template
type PromptVariable struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Default     string `json:"default"`
}

// Vars holds runtime values for template substitution.
type Vars map[string]interface{}

// IDs of the prompts shipped with the binary.
const (
	RouterClassify       = "router.classify"
	FileAnalyze          = "file.analyze"
	ForecastInterpret    = "forecast.interpret"
	EconomistBrief       = "economist.brief"
	ComparativeSynthesis = "comparative.synthesize"
	ScenarioAnalyze      = "scenario.analyze"
	RAGSummarize         = "rag.summarize"
	RAGAnswer            = "rag.answer"
)

// EconomistStructure returns the prompt ID holding the role and section layout
// for an economist brief of the given agent type.
func EconomistStructure(agentType string) string {
	switch agentType {
	case "comparative", "scenario", "forecast":
		return "economist." + agentType
	default:
		return "economist.default"
	}
}

// DashboardPanel returns the prompt ID for a dashboard panel.
func DashboardPanel(panel string) string {
	return "dashboard." + panel
}
