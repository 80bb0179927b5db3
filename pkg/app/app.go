// Package app assembles the service from configuration. Both the HTTP server
// and the CLI build their components here.
package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	apiconfig "zeno_agent/pkg/api/config"
	apidash "zeno_agent/pkg/api/dashboard"
	apiquery "zeno_agent/pkg/api/query"
	"zeno_agent/pkg/core/agent"
	"zeno_agent/pkg/core/comparative"
	"zeno_agent/pkg/core/config"
	"zeno_agent/pkg/core/dashboard"
	"zeno_agent/pkg/core/economist"
	"zeno_agent/pkg/core/entity"
	"zeno_agent/pkg/core/forecast"
	"zeno_agent/pkg/core/knowledge"
	"zeno_agent/pkg/core/llm"
	"zeno_agent/pkg/core/pipeline"
	"zeno_agent/pkg/core/prompt"
	"zeno_agent/pkg/core/retry"
	"zeno_agent/pkg/core/router"
	"zeno_agent/pkg/core/scenario"
	"zeno_agent/pkg/core/store"
	"zeno_agent/pkg/core/websearch"
)

// Backend is what the handlers need from a database.
type Backend interface {
	store.TradeStore
	store.RunWriter
}

type App struct {
	Config     config.Config
	Logger     *logrus.Logger
	Manager    *agent.Manager
	Prompts    *prompt.Registry
	Store      store.TradeStore
	Router     *router.Router
	Forecast   *forecast.Orchestrator
	Dashboard  *dashboard.Analyst
	Dispatcher *pipeline.Dispatcher

	closers []func()
}

// Build wires every component. The caller owns the returned App and must
// Close it.
func Build(ctx context.Context, cfg config.Config, logger *logrus.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	prompts, err := prompt.Default(cfg.Resources.PromptDir)
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	a.Prompts = prompts
	logger.WithField("count", prompts.Count()).Info("prompt library loaded")

	a.Manager = agent.NewManagerFromConfig(cfg.LLM, logger)

	backend, err := a.openBackend(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = store.NewCachedStore(backend, cfg.Cache.LookupSize, cfg.Cache.LookupTTL)

	embedder, err := llm.NewGeminiEmbedder(
		llm.NewGeminiProvider(cfg.LLM.Keys["gemini"], cfg.LLM.Models["gemini"]),
		cfg.LLM.EmbeddingModel, cfg.Cache.EmbeddingMaxCost, cfg.Cache.EmbeddingTTL, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("embedder: %w", err)
	}
	a.closers = append(a.closers, embedder.Close)

	narrator := economist.New(a.Manager, a.searcher(), prompts, logger)
	kb := knowledge.NewRetriever(a.Store, embedder, a.Manager, prompts, logger)

	a.Forecast = forecast.NewOrchestrator(cfg.Forecast, forecast.Deps{
		Store:     a.Store,
		Generator: a.Manager,
		Prompts:   prompts,
		Narrator:  narrator,
		Knowledge: kb,
		Logger:    logger,
	})

	shortcuts, err := router.LoadShortcuts()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load shortcuts: %w", err)
	}
	a.Router = router.New(a.Manager, prompts, shortcuts, logger)
	a.Dashboard = dashboard.NewAnalyst(a.Manager, prompts, logger)

	var recorder pipeline.Recorder
	if cfg.Database.LogRuns {
		recorder = store.NewRunRepo(backend, retry.New(retry.Default("runs"), logger))
	}

	a.Dispatcher = pipeline.NewDispatcher(pipeline.Deps{
		Router:   a.Router,
		Forecast: a.Forecast,
		Comparative: comparative.New(comparative.Deps{
			Store:     a.Store,
			Extractor: entity.NewExtractor(cfg.Entities.FallbackCommodity),
			Evidence:  kb,
			Generator: a.Manager,
			Prompts:   prompts,
			Narrator:  narrator,
			Logger:    logger,
		}),
		Scenario:  scenario.New(a.Store, kb, a.Manager, prompts, logger),
		Knowledge: kb,
		Generator: a.Manager,
		Prompts:   prompts,
		Recorder:  recorder,
		Logger:    logger,
	})
	return a, nil
}

func (a *App) openBackend(ctx context.Context) (Backend, error) {
	db := a.Config.Database
	switch strings.ToLower(db.Driver) {
	case "sqlite":
		s, err := store.NewSQLite(db.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", db.Path, err)
		}
		a.closers = append(a.closers, func() { s.Close() })
		a.Logger.WithField("path", db.Path).Info("using sqlite store")
		return s, nil
	default:
		if db.URL == "" {
			return nil, fmt.Errorf("database.url (or DATABASE_URL) is required for the postgres driver")
		}
		s, err := store.NewPostgres(ctx, db.URL, db.MaxConns)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		a.Logger.Info("using postgres store")
		return s, nil
	}
}

// searcher picks the web search backend. SerpAPI without a key degrades to
// DuckDuckGo.
func (a *App) searcher() websearch.Searcher {
	sc := a.Config.Search
	client := &http.Client{Timeout: sc.Timeout}

	provider := strings.ToLower(sc.Provider)
	if provider == "serpapi" && sc.APIKey == "" {
		a.Logger.Warn("SERPAPI_KEY not set, using duckduckgo for web search")
		provider = "duckduckgo"
	}
	switch provider {
	case "serpapi":
		return websearch.New(&websearch.SerpAPI{APIKey: sc.APIKey, HTTPClient: client}, sc.RequestsPerSecond, a.Logger)
	case "duckduckgo":
		return websearch.New(&websearch.DuckDuckGo{HTTPClient: client}, sc.RequestsPerSecond, a.Logger)
	default:
		a.Logger.Info("web search disabled")
		return websearch.Nop{}
	}
}

// Handler returns the HTTP routes.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()

	q := apiquery.NewHandler(a.Dispatcher, a.Logger)
	mux.HandleFunc("/query", q.HandleQuery)
	mux.HandleFunc("/healthz", apiquery.HandleHealth)

	d := apidash.NewHandler(a.Dashboard, a.Logger)
	mux.HandleFunc("/dashboard/economist", d.HandleData)
	mux.HandleFunc("/dashboard/economist/analyze", d.HandleAnalyze)

	c := apiconfig.NewHandler(a.Manager, a.Logger)
	mux.HandleFunc("/api/config", c.HandleConfig)
	mux.HandleFunc("/api/config/switch", c.HandleSwitch)
	return mux
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
