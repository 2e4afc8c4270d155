// Package config reads the optional YAML configuration file and merges it
// with environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"listing-agent/internal/application/port/input"
	"listing-agent/internal/application/port/output"
	"listing-agent/internal/usecase/pagination"

	"gopkg.in/yaml.v3"
)

type File struct {
	Scoring pagination.ScoringTable `yaml:"scoring"`
	Run     RunSection              `yaml:"run"`
	Browser BrowserSection          `yaml:"browser"`
	Batch   BatchSection            `yaml:"batch"`
	Jobs    []input.RunRequest      `yaml:"jobs"`
}

type RunSection struct {
	MaxPages          int           `yaml:"max_pages"`
	FailureBudget     int           `yaml:"failure_budget"`
	MaxResultsPerPage int           `yaml:"max_results_per_page"`
	RepeatLimit       int           `yaml:"repeat_limit"`
	StrictURLLoop     *bool         `yaml:"strict_url_loop"`
	SettleDelay       time.Duration `yaml:"settle_delay"`
	NavigationSettle  time.Duration `yaml:"navigation_settle"`
}

type BrowserSection struct {
	Headless *bool  `yaml:"headless"`
	Stealth  *bool  `yaml:"stealth"`
	BinPath  string `yaml:"bin_path"`
}

type BatchSection struct {
	Concurrency int `yaml:"concurrency"`
}

// Settings is the resolved configuration handed to the container.
type Settings struct {
	Scoring           pagination.ScoringTable
	MaxPages          int
	FailureBudget     int
	MaxResultsPerPage int
	RepeatLimit       int
	StrictURLLoop     bool
	SettleDelay       time.Duration
	NavigationSettle  time.Duration
	Headless          bool
	Stealth           bool
	BrowserBin        string
	BatchConcurrency  int
}

func Defaults() Settings {
	return Settings{
		Scoring:           pagination.DefaultScoringTable(),
		MaxPages:          20,
		FailureBudget:     3,
		MaxResultsPerPage: 100,
		RepeatLimit:       2,
		SettleDelay:       750 * time.Millisecond,
		NavigationSettle:  2 * time.Second,
		Headless:          true,
		Stealth:           true,
		BatchConcurrency:  2,
	}
}

// Load parses a config file. Unknown keys are rejected.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &f, nil
}

// LoadJobs reads a batch file: either a bare list of requests or a full
// config file with a jobs section.
func LoadJobs(path string) ([]input.RunRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read jobs %s: %w", path, err)
	}

	var list []input.RunRequest
	if err := yaml.Unmarshal(data, &list); err == nil && len(list) > 0 {
		return list, nil
	}

	f, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if len(f.Jobs) == 0 {
		return nil, fmt.Errorf("jobs file %s has no jobs", path)
	}
	return f.Jobs, nil
}

// Resolve layers defaults, then the file (may be nil), then env.
func Resolve(f *File, env output.ConfigPort) Settings {
	s := Defaults()

	if f != nil {
		s.Scoring = s.Scoring.Merge(f.Scoring)
		applyInt(&s.MaxPages, f.Run.MaxPages)
		applyInt(&s.FailureBudget, f.Run.FailureBudget)
		applyInt(&s.MaxResultsPerPage, f.Run.MaxResultsPerPage)
		applyInt(&s.RepeatLimit, f.Run.RepeatLimit)
		applyInt(&s.BatchConcurrency, f.Batch.Concurrency)
		if f.Run.StrictURLLoop != nil {
			s.StrictURLLoop = *f.Run.StrictURLLoop
		}
		if f.Run.SettleDelay > 0 {
			s.SettleDelay = f.Run.SettleDelay
		}
		if f.Run.NavigationSettle > 0 {
			s.NavigationSettle = f.Run.NavigationSettle
		}
		if f.Browser.Headless != nil {
			s.Headless = *f.Browser.Headless
		}
		if f.Browser.Stealth != nil {
			s.Stealth = *f.Browser.Stealth
		}
		if f.Browser.BinPath != "" {
			s.BrowserBin = f.Browser.BinPath
		}
	}

	if env != nil {
		s.MaxPages = env.GetInt("EXTRACTOR_MAX_PAGES", s.MaxPages)
		s.FailureBudget = env.GetInt("EXTRACTOR_FAILURE_BUDGET", s.FailureBudget)
		s.MaxResultsPerPage = env.GetInt("EXTRACTOR_MAX_RESULTS", s.MaxResultsPerPage)
		s.RepeatLimit = env.GetInt("EXTRACTOR_REPEAT_LIMIT", s.RepeatLimit)
		s.StrictURLLoop = env.GetBool("EXTRACTOR_STRICT_URL_LOOP", s.StrictURLLoop)
		s.SettleDelay = env.GetDuration("EXTRACTOR_SETTLE_DELAY", s.SettleDelay)
		s.NavigationSettle = env.GetDuration("EXTRACTOR_NAVIGATION_SETTLE", s.NavigationSettle)
		s.Headless = env.GetBool("EXTRACTOR_HEADLESS", s.Headless)
		s.Stealth = env.GetBool("EXTRACTOR_STEALTH", s.Stealth)
		s.BrowserBin = env.GetWithDefault("EXTRACTOR_BROWSER_BIN", s.BrowserBin)
		s.BatchConcurrency = env.GetInt("EXTRACTOR_BATCH_CONCURRENCY", s.BatchConcurrency)
	}

	return s
}

func applyInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}
