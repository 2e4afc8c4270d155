package di

import (
	"context"
	"errors"
	"fmt"

	"listing-agent/internal/application/port/input"
	"listing-agent/internal/application/port/output"
	"listing-agent/internal/domain/entity"
	"listing-agent/internal/infrastructure/browser/rod"
	"listing-agent/internal/infrastructure/config"
	"listing-agent/internal/infrastructure/llm/langchain"
	"listing-agent/internal/infrastructure/llm/openrouter"
	"listing-agent/internal/infrastructure/logger"
	"listing-agent/internal/infrastructure/metrics"
	"listing-agent/internal/infrastructure/store/sqlite"
	"listing-agent/internal/infrastructure/userinteraction"
	"listing-agent/internal/usecase/batch"
	"listing-agent/internal/usecase/dedupe"
	"listing-agent/internal/usecase/extraction"
	"listing-agent/internal/usecase/navigator"
	"listing-agent/internal/usecase/observer"
	"listing-agent/internal/usecase/orchestrator"
	"listing-agent/internal/usecase/pagination"
	"listing-agent/internal/usecase/planner"
)

const (
	BackendOpenRouter = "openrouter"
	BackendLangchain  = "langchain"
	BackendNone       = "none"
)

var ErrUnknownBackend = errors.New("unknown llm backend")

type Config struct {
	LLMBackend  string
	APIKey      string
	Model       string
	VisionModel string
	BaseURL     string
	// Vision enables the screenshot fallback through the same backend.
	Vision   bool
	Settings config.Settings
	DBPath   string
	LogName  string
	Log      logger.Config
	Verbose  bool
}

type Container struct {
	Logger  output.LoggerPort
	Metrics *metrics.Collector
	Store   output.RunStore
	Text    output.TextGenerator
	Vision  output.VisionGenerator
	Console *userinteraction.Console
	Batch   *batch.Runner

	cfg   Config
	table pagination.ScoringTable
}

func NewContainer(ctx context.Context, cfg Config) (*Container, error) {
	name := cfg.LogName
	if name == "" {
		name = "extraction"
	}
	log, err := logger.NewLoggerAdapter(name, cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	c := &Container{
		Logger:  log,
		Metrics: metrics.NewCollector("listing"),
		Console: userinteraction.NewConsole(cfg.Verbose),
		cfg:     cfg,
		table:   pagination.DefaultScoringTable().Merge(cfg.Settings.Scoring),
	}

	if err := c.initLLM(); err != nil {
		c.Close()
		return nil, err
	}

	if cfg.DBPath != "" {
		store, err := sqlite.Open(ctx, cfg.DBPath)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to open run store: %w", err)
		}
		c.Store = store
	}

	c.Batch = batch.New(c.OpenSession, cfg.Settings.BatchConcurrency, log)

	log.Info("Container ready",
		"llm_backend", cfg.LLMBackend,
		"model", cfg.Model,
		"vision", cfg.Vision,
		"store", cfg.DBPath,
		"batch_concurrency", cfg.Settings.BatchConcurrency,
	)
	return c, nil
}

func (c *Container) initLLM() error {
	switch c.cfg.LLMBackend {
	case BackendOpenRouter:
		orCfg := openrouter.DefaultConfig(c.cfg.APIKey, c.cfg.Model)
		orCfg.VisionModel = c.cfg.VisionModel
		if c.cfg.BaseURL != "" {
			orCfg.BaseURL = c.cfg.BaseURL
		}
		orCfg.Logger = c.Logger
		a := openrouter.NewOpenRouterAdapter(orCfg)
		c.Text = a
		if c.cfg.Vision {
			c.Vision = a
		}
	case BackendLangchain:
		a, err := langchain.NewOpenAICompatible(langchain.Config{
			APIKey:  c.cfg.APIKey,
			BaseURL: c.cfg.BaseURL,
			Model:   c.cfg.Model,
		}, c.Logger)
		if err != nil {
			return fmt.Errorf("failed to create llm: %w", err)
		}
		c.Text = a
		if c.cfg.Vision {
			c.Vision = a
		}
	case BackendNone, "":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.cfg.LLMBackend)
	}
	return nil
}

// OpenSession launches a dedicated browser and builds the run pipeline on
// top of it. Release closes the browser.
func (c *Container) OpenSession(ctx context.Context) (*batch.Session, error) {
	s := c.cfg.Settings

	browserCfg := rod.DefaultConfig()
	browserCfg.Headless = s.Headless
	browserCfg.Stealth = s.Stealth
	browserCfg.BinPath = s.BrowserBin
	browser, err := rod.NewBrowserAdapter(ctx, browserCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser: %w", err)
	}

	return &batch.Session{
		Runner:  c.pipeline(browser, browser),
		Release: browser.Close,
	}, nil
}

func (c *Container) pipeline(driver output.BrowserPort, screens output.Screenshotter) *orchestrator.UseCase {
	s := c.cfg.Settings

	obsCfg := observer.DefaultConfig()
	obsCfg.SettleDelay = s.SettleDelay

	extCfg := extraction.DefaultConfig()
	extCfg.MaxResults = s.MaxResultsPerPage

	navCfg := navigator.DefaultConfig()
	navCfg.SettleDelay = s.NavigationSettle

	runCfg := orchestrator.DefaultConfig()
	runCfg.DefaultMaxPages = s.MaxPages
	runCfg.FailureBudget = s.FailureBudget
	runCfg.MaxResultsPerPage = s.MaxResultsPerPage

	detector := pagination.New(c.table, c.Logger)

	var recon orchestrator.ReconPlanner
	if c.Text != nil {
		recon = planner.New(c.Text, c.Logger, planner.DefaultConfig())
	}

	return orchestrator.New(orchestrator.Deps{
		Driver:    driver,
		Observer:  observer.New(driver, c.table.Relevant, c.Logger, obsCfg),
		Detector:  detector,
		Extractor: extraction.New(c.Text, c.Vision, screens, c.Metrics, c.Logger, extCfg),
		Guard:     dedupe.New(dedupe.Config{RepeatLimit: s.RepeatLimit, StrictURLLoop: s.StrictURLLoop}, c.Logger),
		Navigator: navigator.New(driver, detector, c.Metrics, c.Logger, navCfg),
		Planner:   recon,
		Store:     c.Store,
		Metrics:   c.Metrics,
		Progress:  c.Console,
		Logger:    c.Logger,
	}, runCfg)
}

// Run executes a single request on a fresh session.
func (c *Container) Run(ctx context.Context, req input.RunRequest) (*entity.RunReport, error) {
	res := c.Batch.RunAll(ctx, []input.RunRequest{req})
	return res[0].Report, res[0].Err
}

func (c *Container) Close() {
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			c.Logger.Warn("Run store close failed", "error", err)
		}
	}
	if c.Logger != nil {
		c.Logger.Close()
	}
}
