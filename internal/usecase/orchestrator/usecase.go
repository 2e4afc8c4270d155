package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"listing-agent/internal/application/port/input"
	"listing-agent/internal/application/port/output"
	"listing-agent/internal/domain/entity"
	"listing-agent/internal/usecase/dedupe"
	"listing-agent/internal/usecase/extraction"
	"listing-agent/internal/usecase/navigator"

	"github.com/google/uuid"
)

var _ input.ExtractionRunner = (*UseCase)(nil)

type State string

const (
	StateIdle       State = "idle"
	StateObserving  State = "observing"
	StateDetecting  State = "detecting"
	StateExtracting State = "extracting"
	StateDeciding   State = "deciding"
	StateNavigating State = "navigating"
	StateCompleted  State = "completed"
	StateAborted    State = "aborted"
)

type PageObserver interface {
	Observe(ctx context.Context) (*entity.PageSnapshot, error)
}

type PaginationDetector interface {
	Classify(candidates []entity.ElementCandidate) entity.PaginationAssessment
}

type ContentExtractor interface {
	Extract(ctx context.Context, snap *entity.PageSnapshot, goal string, maxResults int) (*entity.Extraction, error)
}

type DuplicateGuard interface {
	Check(state *entity.RunState, content, url string) dedupe.Result
}

type PaginationNavigator interface {
	Advance(ctx context.Context, assessment entity.PaginationAssessment, currentPage int) (navigator.Strategy, error)
}

type ReconPlanner interface {
	Plan(ctx context.Context, snap *entity.PageSnapshot, assessment entity.PaginationAssessment, goal string) (string, error)
}

type Config struct {
	DefaultMaxPages   int
	MaxPagesCeiling   int
	StepsPerPage      int
	FailureBudget     int
	MaxResultsPerPage int
}

func DefaultConfig() Config {
	return Config{
		DefaultMaxPages:   20,
		MaxPagesCeiling:   200,
		StepsPerPage:      3,
		FailureBudget:     3,
		MaxResultsPerPage: 100,
	}
}

// Deps are the collaborators of one run. Planner, Store, Metrics and
// Progress are optional.
type Deps struct {
	Driver    output.BrowserPort
	Observer  PageObserver
	Detector  PaginationDetector
	Extractor ContentExtractor
	Guard     DuplicateGuard
	Navigator PaginationNavigator
	Planner   ReconPlanner
	Store     output.RunStore
	Metrics   output.MetricsPort
	Progress  output.ProgressPort
	Logger    output.LoggerPort
}

type UseCase struct {
	deps Deps
	cfg  Config
}

func New(deps Deps, cfg Config) *UseCase {
	if deps.Metrics == nil {
		deps.Metrics = output.NopMetrics{}
	}
	if deps.Progress == nil {
		deps.Progress = output.NopProgress{}
	}
	deps.Logger = deps.Logger.WithField("component", "orchestrator")
	return &UseCase{deps: deps, cfg: cfg}
}

// Run drives observe → detect → extract → decide → navigate until a stop
// condition holds. The report is always returned; err wraps
// entity.ErrAborted when the run was aborted.
func (uc *UseCase) Run(ctx context.Context, req input.RunRequest) (*entity.RunReport, error) {
	r := uc.newRun(req)

	if err := validate(req); err != nil {
		return r.abort(ctx, err)
	}

	r.log.Info("Extraction started", "goal", req.Goal, "max_pages", r.maxPages, "force_pagination", req.ForcePagination)

	if err := r.navigateInitial(ctx); err != nil {
		return r.abort(ctx, err)
	}

	planned := !req.Reconnaissance || uc.deps.Planner == nil

	for step := 1; ; step++ {
		if err := ctx.Err(); err != nil {
			return r.abort(ctx, err)
		}
		if step > r.maxSteps {
			r.log.Warn("Step budget exhausted", "steps", r.maxSteps)
			return r.finish(ctx, entity.StopLoopDetected)
		}

		r.transition(ctx, StateObserving)
		snap, err := uc.deps.Observer.Observe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return r.abort(ctx, ctx.Err())
			}
			if r.failed(err) {
				return r.abort(ctx, err)
			}
			continue
		}

		r.transition(ctx, StateDetecting)
		assessment := uc.deps.Detector.Classify(snap.Candidates)

		if !planned {
			planned = true
			plan, err := uc.deps.Planner.Plan(ctx, snap, assessment, req.Goal)
			if err != nil {
				r.log.Warn("Reconnaissance failed", "error", err)
			} else {
				r.report.Plan = plan
			}
		}

		r.transition(ctx, StateExtracting)
		ext, err := uc.deps.Extractor.Extract(ctx, snap, req.Goal, uc.cfg.MaxResultsPerPage)
		if err != nil {
			return r.abort(ctx, err)
		}
		if ext.CollaboratorErrors > 0 && len(ext.Records) == 0 {
			if r.failed(&entity.CollaboratorError{Collaborator: "extraction", Err: fmt.Errorf("%d failed calls", ext.CollaboratorErrors)}) {
				return r.abort(ctx, fmt.Errorf("extraction collaborators kept failing"))
			}
		} else {
			r.state.ConsecutiveFailureCount = 0
		}

		r.transition(ctx, StateDeciding)
		content := dedupe.RecordsContent(ext.Records)
		if len(ext.Records) == 0 {
			content = snap.Text
		}
		check := uc.deps.Guard.Check(r.state, content, snap.URL)

		switch check.Decision {
		case dedupe.StopLoop:
			r.log.Info("Loop detected", "url", check.URLKey, "fingerprint", check.Fingerprint)
			return r.finish(ctx, entity.StopLoopDetected)
		case dedupe.Accept:
			r.appendPage(ctx, snap, ext, check)
		case dedupe.AcceptDuplicate:
			if r.hasNewRecords(ext.Records) {
				r.appendPage(ctx, snap, ext, check)
			} else {
				r.log.Info("Duplicate page skipped", "url", snap.URL)
			}
		}

		if !assessment.HasPagination && !req.ForcePagination {
			return r.finish(ctx, entity.StopCompleted)
		}
		if len(r.state.PageResults) >= r.maxPages {
			return r.finish(ctx, entity.StopMaxPagesReached)
		}

		r.transition(ctx, StateNavigating)
		strategy, err := uc.deps.Navigator.Advance(ctx, assessment, r.sitePage)
		uc.deps.Progress.ShowNavigation(ctx, string(strategy), err == nil)
		if err != nil {
			if ctx.Err() != nil {
				return r.abort(ctx, ctx.Err())
			}
			var navErr *entity.NavigationError
			if errors.As(err, &navErr) {
				r.log.Info("Pagination exhausted", "error", err)
				return r.finish(ctx, entity.StopNoMorePagination)
			}
			return r.abort(ctx, err)
		}
		r.sitePage++
	}
}

type run struct {
	uc       *UseCase
	req      input.RunRequest
	log      output.LoggerPort
	state    *entity.RunState
	report   *entity.RunReport
	seen     map[string]struct{}
	current  State
	maxPages int
	maxSteps int
	sitePage int
	started  time.Time
}

func (uc *UseCase) newRun(req input.RunRequest) *run {
	maxPages := req.MaxPages
	if maxPages <= 0 {
		maxPages = uc.cfg.DefaultMaxPages
	}
	if uc.cfg.MaxPagesCeiling > 0 && maxPages > uc.cfg.MaxPagesCeiling {
		maxPages = uc.cfg.MaxPagesCeiling
	}
	stepsPerPage := uc.cfg.StepsPerPage
	if stepsPerPage <= 0 {
		stepsPerPage = 1
	}

	runID := uuid.NewString()
	now := time.Now()

	return &run{
		uc:  uc,
		req: req,
		log: uc.deps.Logger.WithFields(map[string]any{
			"run_id": runID,
			"url":    req.URL,
		}),
		state: entity.NewRunState(),
		report: &entity.RunReport{
			RunID:     runID,
			URL:       req.URL,
			Goal:      req.Goal,
			StartedAt: now,
		},
		seen:     make(map[string]struct{}),
		current:  StateIdle,
		maxPages: maxPages,
		maxSteps: maxPages*stepsPerPage + uc.cfg.FailureBudget,
		sitePage: 1,
		started:  now,
	}
}

func validate(req input.RunRequest) error {
	if strings.TrimSpace(req.URL) == "" {
		return fmt.Errorf("%w: url is required", entity.ErrInvalidRequest)
	}
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "file") {
		return fmt.Errorf("%w: unsupported url %q", entity.ErrInvalidRequest, req.URL)
	}
	return nil
}

func (r *run) navigateInitial(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= max(1, r.uc.cfg.FailureBudget); attempt++ {
		err := r.uc.deps.Driver.Navigate(ctx, r.req.URL)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
		r.log.Warn("Initial navigation failed", "attempt", attempt, "error", err)
	}
	return &entity.ObservationError{Op: "navigate", Err: lastErr}
}

func (r *run) transition(ctx context.Context, to State) {
	r.log.Debug("State transition", "from", r.current, "to", to, "page_index", r.state.NextPageIndex())
	r.current = to
	r.uc.deps.Progress.ShowState(ctx, string(to), r.state.NextPageIndex())
}

// failed counts a consecutive failure and reports whether the budget is spent.
func (r *run) failed(err error) bool {
	r.state.ConsecutiveFailureCount++
	r.log.Warn("Cycle failed",
		"error", err,
		"consecutive_failures", r.state.ConsecutiveFailureCount,
		"budget", r.uc.cfg.FailureBudget,
	)
	return r.state.ConsecutiveFailureCount >= r.uc.cfg.FailureBudget
}

func (r *run) hasNewRecords(records []entity.ExtractionRecord) bool {
	for _, rec := range records {
		if _, ok := r.seen[extraction.NameKey(rec.Name)]; !ok {
			return true
		}
	}
	return false
}

func (r *run) appendPage(ctx context.Context, snap *entity.PageSnapshot, ext *entity.Extraction, check dedupe.Result) {
	page := entity.PageResult{
		PageIndex:          r.state.NextPageIndex(),
		URL:                snap.URL,
		Records:            ext.Records,
		Source:             ext.Source,
		ContentFingerprint: check.Fingerprint,
	}
	r.state.PageResults = append(r.state.PageResults, page)
	for _, rec := range ext.Records {
		r.seen[extraction.NameKey(rec.Name)] = struct{}{}
	}

	r.uc.deps.Metrics.PageProcessed(page.Source, len(page.Records))
	r.uc.deps.Progress.ShowPage(ctx, page)
	r.log.Info("Page processed",
		"page_index", page.PageIndex,
		"records", len(page.Records),
		"source", page.Source,
		"decision", check.Decision,
	)
}

func (r *run) finish(ctx context.Context, reason entity.StopReason) (*entity.RunReport, error) {
	r.transition(ctx, StateCompleted)
	r.complete(ctx, reason)
	return r.report, nil
}

func (r *run) abort(ctx context.Context, cause error) (*entity.RunReport, error) {
	r.transition(ctx, StateAborted)
	r.report.Error = cause.Error()
	r.complete(ctx, entity.StopAborted)
	r.log.Error("Extraction aborted", "error", cause)
	return r.report, fmt.Errorf("%w: %w", entity.ErrAborted, cause)
}

func (r *run) complete(ctx context.Context, reason entity.StopReason) {
	var all []entity.ExtractionRecord
	for _, p := range r.state.PageResults {
		all = append(all, p.Records...)
	}

	r.report.Pages = r.state.PageResults
	r.report.PagesProcessed = len(r.state.PageResults)
	r.report.Records = extraction.Dedupe(all)
	r.report.StoppedReason = reason
	r.report.FinishedAt = time.Now()

	duration := time.Since(r.started)
	r.uc.deps.Metrics.RunFinished(reason, duration)
	r.uc.deps.Progress.ShowFinished(ctx, r.report)

	if r.uc.deps.Store != nil {
		// The run context may already be cancelled; the report still has to land.
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := r.uc.deps.Store.SaveRun(saveCtx, r.report); err != nil {
			r.log.Error("Failed to persist run", "error", err)
		}
	}

	r.log.Info("Extraction finished",
		"stopped_reason", reason,
		"pages", r.report.PagesProcessed,
		"records", len(r.report.Records),
		"duration", duration,
	)
}
