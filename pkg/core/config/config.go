// Package config loads the service configuration from a YAML file and the
// process environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// DefaultPath is used when neither --config nor ZENO_CONFIG is given.
const DefaultPath = "config/zeno.yaml"

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	LLM       LLMConfig       `yaml:"llm"`
	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	Search    SearchConfig    `yaml:"search"`
	Forecast  ForecastConfig  `yaml:"forecast"`
	Entities  EntityConfig    `yaml:"entities"`
	Logging   LoggingConfig   `yaml:"logging"`
	Resources ResourcesConfig `yaml:"resources"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LLMConfig mirrors the models.yaml layout: one active provider plus optional
// per-agent overrides.
type LLMConfig struct {
	ActiveProvider  string                 `yaml:"active_provider"`
	Agents          map[string]AgentConfig `yaml:"agents"`
	GenerationModel string                 `yaml:"generation_model"`
	EmbeddingModel  string                 `yaml:"embedding_model"`
	Models          map[string]string      `yaml:"models"` // provider name -> model id
	Keys            map[string]string      `yaml:"-"`      // provider name -> API key, env only
}

type AgentConfig struct {
	Provider    string `yaml:"provider"`
	Description string `yaml:"description"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // postgres | sqlite
	URL      string `yaml:"url"`
	Path     string `yaml:"path"`
	MaxConns int32  `yaml:"max_conns"`
	LogRuns  bool   `yaml:"log_runs"`
}

type CacheConfig struct {
	LookupSize       int           `yaml:"lookup_size"`
	LookupTTL        time.Duration `yaml:"lookup_ttl"`
	EmbeddingMaxCost int64         `yaml:"embedding_max_cost"`
	EmbeddingTTL     time.Duration `yaml:"embedding_ttl"`
}

type SearchConfig struct {
	Provider          string        `yaml:"provider"` // serpapi | duckduckgo | none
	APIKey            string        `yaml:"-"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	ResultsPerQuery   int           `yaml:"results_per_query"`
	Timeout           time.Duration `yaml:"timeout"`
}

type ForecastConfig struct {
	MinCleanRows       int     `yaml:"min_clean_rows"`
	MinModelPoints     int     `yaml:"min_model_points"`
	HighConfidenceRows int     `yaml:"high_confidence_rows"`
	DefaultPeriods     int     `yaml:"default_periods"`
	MaxPeriods         int     `yaml:"max_periods"`
	YearlyFourierOrder int     `yaml:"yearly_fourier_order"`
	IntervalWidth      float64 `yaml:"interval_width"`
	FallbackBand       float64 `yaml:"fallback_band"`
	RAGContextChars    int     `yaml:"rag_context_chars"`
	Indicator          string  `yaml:"indicator"`
}

type EntityConfig struct {
	FallbackCommodity string `yaml:"fallback_commodity"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
}

type ResourcesConfig struct {
	// PromptDir overrides the embedded prompt library when set.
	PromptDir string `yaml:"prompt_dir"`
}

// Defaults returns a configuration that runs without a config file.
func Defaults() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		LLM: LLMConfig{
			ActiveProvider:  "gemini",
			Agents:          map[string]AgentConfig{},
			GenerationModel: "gemini-2.5-flash",
			EmbeddingModel:  "text-embedding-004",
			Models: map[string]string{
				"gemini":        "gemini-2.5-flash",
				"gemini-legacy": "gemini-1.5-flash",
				"openai":        "gpt-4o-mini",
				"anthropic":     "claude-3-5-haiku-latest",
				"deepseek":      "deepseek-chat",
				"qwen":          "qwen-max",
			},
			Keys: map[string]string{},
		},
		Database: DatabaseConfig{
			Driver:   "postgres",
			Path:     "zeno.db",
			MaxConns: 20,
		},
		Cache: CacheConfig{
			LookupSize:       1000,
			LookupTTL:        time.Hour,
			EmbeddingMaxCost: 2000,
			EmbeddingTTL:     time.Hour,
		},
		Search: SearchConfig{
			Provider:          "serpapi",
			RequestsPerSecond: 2,
			ResultsPerQuery:   3,
			Timeout:           15 * time.Second,
		},
		Forecast: ForecastConfig{
			MinCleanRows:       8,
			MinModelPoints:     4,
			HighConfidenceRows: 24,
			DefaultPeriods:     3,
			YearlyFourierOrder: 3,
			IntervalWidth:      0.95,
			FallbackBand:       0.10,
			RAGContextChars:    2000,
			Indicator:          "exports",
		},
		Entities: EntityConfig{FallbackCommodity: "coffee"},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads .env (if present), then the YAML file at path (if present), then
// applies environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path == "" {
		path = os.Getenv("ZENO_CONFIG")
	}
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("ZENO_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := getenv("ZENO_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := getenv("ZENO_DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := getenv("ZENO_ACTIVE_PROVIDER"); v != "" {
		c.LLM.ActiveProvider = v
	}
	if c.LLM.Keys == nil {
		c.LLM.Keys = map[string]string{}
	}

	gemini := firstNonEmpty(getenv("GEMINI_API_KEY"), getenv("GOOGLE_API_KEY"))
	c.LLM.Keys["gemini"] = gemini
	c.LLM.Keys["gemini-legacy"] = gemini
	c.LLM.Keys["openai"] = getenv("OPENAI_API_KEY")
	c.LLM.Keys["anthropic"] = getenv("ANTHROPIC_API_KEY")
	c.LLM.Keys["deepseek"] = getenv("DEEPSEEK_API_KEY")
	c.LLM.Keys["qwen"] = firstNonEmpty(getenv("DASHSCOPE_API_KEY"), getenv("QWEN_API_KEY"))

	c.Search.APIKey = getenv("SERPAPI_KEY")
}

// Validate rejects values no component can work with.
func (c Config) Validate() error {
	f := c.Forecast
	if f.MinCleanRows < 2 {
		return fmt.Errorf("forecast.min_clean_rows must be >= 2, got %d", f.MinCleanRows)
	}
	if f.MinModelPoints < 2 {
		return fmt.Errorf("forecast.min_model_points must be >= 2, got %d", f.MinModelPoints)
	}
	if f.DefaultPeriods < 1 {
		return fmt.Errorf("forecast.default_periods must be >= 1, got %d", f.DefaultPeriods)
	}
	if f.MaxPeriods < f.DefaultPeriods {
		return fmt.Errorf("forecast.max_periods must be >= default_periods (%d), got %d", f.DefaultPeriods, f.MaxPeriods)
	}
	if f.IntervalWidth <= 0 || f.IntervalWidth >= 1 {
		return fmt.Errorf("forecast.interval_width must be in (0,1), got %v", f.IntervalWidth)
	}
	if f.FallbackBand < 0 || f.FallbackBand >= 1 {
		return fmt.Errorf("forecast.fallback_band must be in [0,1), got %v", f.FallbackBand)
	}
	switch strings.ToLower(c.Database.Driver) {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	return nil
}

// ProviderFor returns the provider configured for an agent type, falling back
// to the active provider.
func (c LLMConfig) ProviderFor(agentType string) string {
	if a, ok := c.Agents[agentType]; ok && a.Provider != "" {
		return a.Provider
	}
	return c.ActiveProvider
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
