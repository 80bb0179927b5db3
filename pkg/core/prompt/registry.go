package prompt

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"text/template"
)

// Registry holds loaded prompts and their parsed templates.
type Registry struct {
	mu        sync.RWMutex
	prompts   map[string]*PromptTemplate
	templates map[string]*template.Template
}

func NewRegistry() *Registry {
	return &Registry{
		prompts:   make(map[string]*PromptTemplate),
		templates: make(map[string]*template.Template),
	}
}

// Register adds or replaces a prompt template. The user prompt template is
// parsed eagerly so broken prompts fail at load time.
func (r *Registry) Register(pt *PromptTemplate) error {
	if pt.ID == "" {
		return fmt.Errorf("prompt ID cannot be empty")
	}
	tmpl, err := template.New(pt.ID).Option("missingkey=zero").Parse(pt.UserPromptTmpl)
	if err != nil {
		return fmt.Errorf("parse template %s: %w", pt.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts[pt.ID] = pt
	r.templates[pt.ID] = tmpl
	return nil
}

// GetPrompt retrieves a prompt by ID
func (r *Registry) GetPrompt(id string) (*PromptTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.prompts[id]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("prompt not found: %s", id)
}

// GetSystemPrompt is a convenience method to get only the system prompt string
func (r *Registry) GetSystemPrompt(id string) (string, error) {
	pt, err := r.GetPrompt(id)
	if err != nil {
		return "", err
	}
	return pt.SystemPrompt, nil
}

// Render executes the user prompt template of id with vars.
func (r *Registry) Render(id string, vars Vars) (string, error) {
	r.mu.RLock()
	tmpl, ok := r.templates[id]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("prompt not found: %s", id)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, map[string]interface{}(vars)); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", id, err)
	}
	return buf.String(), nil
}

// ListPrompts returns all registered prompt IDs in sorted order.
func (r *Registry) ListPrompts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.prompts))
	for id := range r.prompts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ListByCategory returns all prompts in a specific category
func (r *Registry) ListByCategory(category string) []*PromptTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*PromptTemplate
	for _, pt := range r.prompts {
		if pt.Category == category {
			result = append(result, pt)
		}
	}
	return result
}

// Count returns the number of registered prompts
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.prompts)
}
