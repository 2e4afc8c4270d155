package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"listing-agent/internal/application/port/input"
	"listing-agent/internal/di"
	"listing-agent/internal/domain/entity"
	"listing-agent/internal/infrastructure/config"
	"listing-agent/internal/infrastructure/env"
	"listing-agent/internal/infrastructure/httpapi"
	"listing-agent/internal/infrastructure/logger"
)

type options struct {
	url        string
	goal       string
	maxPages   int
	allPages   bool
	recon      bool
	headless   bool
	vision     bool
	verbose    bool
	dbPath     string
	jobsPath   string
	configPath string
	serve      string
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.url, "url", "", "start URL of the listing")
	flag.StringVar(&o.goal, "goal", "", "what to extract, e.g. \"names of companies\"")
	flag.IntVar(&o.maxPages, "max-pages", 0, "page limit (0 uses the configured default)")
	flag.BoolVar(&o.allPages, "all-pages", false, "keep paging even when no pagination control is detected")
	flag.BoolVar(&o.recon, "recon", false, "ask the model to describe the listing before extracting")
	flag.BoolVar(&o.headless, "headless", true, "run Chrome headless")
	flag.BoolVar(&o.vision, "vision", false, "enable the screenshot fallback")
	flag.BoolVar(&o.verbose, "v", false, "print every state transition")
	flag.StringVar(&o.dbPath, "db", "", "SQLite file for run reports")
	flag.StringVar(&o.jobsPath, "jobs", "", "YAML file with a batch of requests")
	flag.StringVar(&o.configPath, "config", "", "YAML config file")
	flag.StringVar(&o.serve, "serve", "", "serve the HTTP API on this address instead of running once")
	flag.Parse()
	return o
}

func main() {
	opts := parseFlags()
	envService := env.NewEnvService()

	if opts.configPath == "" {
		opts.configPath = envService.Get("EXTRACTOR_CONFIG")
	}
	var file *config.File
	if opts.configPath != "" {
		f, err := config.Load(opts.configPath)
		if err != nil {
			log.Fatalf("Ошибка загрузки конфигурации: %v", err)
		}
		file = f
	}
	settings := config.Resolve(file, envService)
	if isFlagSet("headless") {
		settings.Headless = opts.headless
	}

	backend := envService.GetWithDefault("LLM_BACKEND", di.BackendOpenRouter)
	cfg := di.Config{
		LLMBackend:  backend,
		VisionModel: envService.Get("OPENROUTER_VISION_MODEL_NAME"),
		BaseURL:     envService.Get("LLM_BASE_URL"),
		Vision:      opts.vision,
		Settings:    settings,
		DBPath:      opts.dbPath,
		LogName:     "extractor",
		Log:         logger.DefaultConfig(),
		Verbose:     opts.verbose,
	}
	if backend != di.BackendNone {
		cfg.APIKey = envService.MustGet("OPENROUTER_API_KEY")
		cfg.Model = envService.MustGet("OPENROUTER_MODEL_NAME")
	}
	if cfg.DBPath == "" {
		cfg.DBPath = envService.Get("EXTRACTOR_DB_PATH")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := di.NewContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Ошибка инициализации: %v", err)
	}

	var code int
	switch {
	case opts.serve != "":
		code = serve(ctx, container, opts.serve)
	case opts.jobsPath != "" || (file != nil && len(file.Jobs) > 0 && opts.url == ""):
		code = runBatch(ctx, container, opts, file)
	default:
		code = runOnce(ctx, container, opts)
	}

	container.Close()
	stop()
	os.Exit(code)
}

func serve(ctx context.Context, c *di.Container, addr string) int {
	httpCfg := httpapi.DefaultConfig()
	httpCfg.Addr = addr

	srv := httpapi.New(c.Batch, c.Store, c.Metrics.Handler(), c.Logger, httpCfg)
	fmt.Fprintf(os.Stderr, "\nHTTP API слушает %s\n", addr)
	if err := srv.ListenAndServe(ctx); err != nil {
		c.Logger.Error("HTTP server failed", "error", err)
		fmt.Fprintf(os.Stderr, "\nОшибка сервера: %v\n", err)
		return 1
	}
	return 0
}

func runOnce(ctx context.Context, c *di.Container, opts options) int {
	if opts.url == "" {
		answer, err := c.Console.AskQuestion(ctx, "Введите URL страницы со списком:")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ошибка чтения ввода: %v\n", err)
			return 1
		}
		opts.url = answer
	}
	if opts.goal == "" {
		answer, err := c.Console.AskQuestion(ctx, "Что нужно извлечь со страницы?")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ошибка чтения ввода: %v\n", err)
			return 1
		}
		opts.goal = answer
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	req := input.RunRequest{
		URL:             opts.url,
		Goal:            opts.goal,
		MaxPages:        opts.maxPages,
		ForcePagination: opts.allPages,
		Reconnaissance:  opts.recon,
	}

	c.Logger.Info("Task started", "url", req.URL, "goal", req.Goal)
	fmt.Fprintln(os.Stderr, "\nИзвлечение началось...")

	report, err := c.Run(ctx, req)
	if report != nil {
		printJSON(report)
	}
	if err != nil {
		c.Logger.Error("Task failed", "error", err)
		fmt.Fprintf(os.Stderr, "\nОшибка выполнения: %v\n", err)
		return exitCode(err)
	}
	return 0
}

func runBatch(ctx context.Context, c *di.Container, opts options, file *config.File) int {
	var reqs []input.RunRequest
	if opts.jobsPath != "" {
		jobs, err := config.LoadJobs(opts.jobsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ошибка загрузки заданий: %v\n", err)
			return 2
		}
		reqs = jobs
	} else {
		reqs = file.Jobs
	}

	c.Logger.Info("Batch started", "jobs", len(reqs))

	results := c.Batch.RunAll(ctx, reqs)

	type item struct {
		Request input.RunRequest  `json:"request"`
		Report  *entity.RunReport `json:"report,omitempty"`
		Error   string            `json:"error,omitempty"`
	}
	out := make([]item, 0, len(results))
	code := 0
	for _, r := range results {
		it := item{Request: r.Request, Report: r.Report}
		if r.Err != nil {
			it.Error = r.Err.Error()
			code = max(code, exitCode(r.Err))
		}
		out = append(out, it)
	}
	printJSON(out)
	return code
}

// exitCode is 2 for rejected input and 1 for anything else.
func exitCode(err error) int {
	if errors.Is(err, entity.ErrInvalidRequest) {
		return 2
	}
	return 1
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Printf("encode result: %v", err)
	}
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
