package prompt

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
)

//go:embed resources
var builtin embed.FS

// Default returns a registry holding the embedded prompt library, with any
// prompts found under overrideDir replacing their embedded counterparts.
func Default(overrideDir string) (*Registry, error) {
	r := NewRegistry()
	sub, err := fs.Sub(builtin, "resources")
	if err != nil {
		return nil, err
	}
	if err := LoadFS(r, sub); err != nil {
		return nil, fmt.Errorf("load embedded prompts: %w", err)
	}
	if overrideDir != "" {
		if err := LoadFromDirectory(r, overrideDir); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// LoadFromDirectory loads all prompts from a directory tree laid out as
//
//	baseDir/
//	  category1/
//	    prompt1.json
//	  category2/
//	    prompt2.json
func LoadFromDirectory(r *Registry, baseDir string) error {
	if _, err := os.Stat(baseDir); err != nil {
		return fmt.Errorf("prompts directory not found: %s", baseDir)
	}
	return LoadFS(r, os.DirFS(baseDir))
}

// LoadFS walks fsys and registers every .json file as a prompt template.
func LoadFS(r *Registry, fsys fs.FS) error {
	return fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path.Ext(p) != ".json" {
			return nil
		}

		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", p, err)
		}

		var pt PromptTemplate
		if err := json.Unmarshal(data, &pt); err != nil {
			return fmt.Errorf("failed to parse %s: %w", p, err)
		}

		// Auto-generate ID and category from the path when not specified
		if pt.ID == "" {
			pt.ID = generateIDFromPath(p)
		}
		if pt.Category == "" {
			pt.Category = detectCategory(p)
		}

		if err := r.Register(&pt); err != nil {
			return fmt.Errorf("failed to register %s: %w", pt.ID, err)
		}
		return nil
	})
}

// generateIDFromPath creates a prompt ID from the file path
// e.g., "economist/forecast.json" -> "economist.forecast"
func generateIDFromPath(p string) string {
	return strings.ReplaceAll(strings.TrimSuffix(p, ".json"), "/", ".")
}

func detectCategory(p string) string {
	parts := strings.Split(p, "/")
	if len(parts) > 1 {
		return parts[0]
	}
	return "general"
}
