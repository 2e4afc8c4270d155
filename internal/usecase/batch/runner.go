package batch

import (
	"context"
	"fmt"

	"listing-agent/internal/application/port/input"
	"listing-agent/internal/application/port/output"
	"listing-agent/internal/domain/entity"

	"golang.org/x/sync/errgroup"
)

var _ input.BatchRunner = (*Runner)(nil)

// Session is an isolated runner plus the release func for its resources.
type Session struct {
	Runner  input.ExtractionRunner
	Release func()
}

// SessionFactory opens a fresh browser session for a single job.
type SessionFactory func(ctx context.Context) (*Session, error)

type Runner struct {
	open        SessionFactory
	concurrency int
	logger      output.LoggerPort
}

func New(open SessionFactory, concurrency int, logger output.LoggerPort) *Runner {
	if concurrency <= 0 {
		concurrency = 2
	}
	return &Runner{
		open:        open,
		concurrency: concurrency,
		logger:      logger.WithField("component", "batch_runner"),
	}
}

// RunAll runs every request in its own session. A failing job never
// cancels its siblings; results keep the order of reqs.
func (r *Runner) RunAll(ctx context.Context, reqs []input.RunRequest) []input.BatchResult {
	results := make([]input.BatchResult, len(reqs))

	var g errgroup.Group
	g.SetLimit(r.concurrency)

	for i, req := range reqs {
		g.Go(func() error {
			results[i] = r.runOne(ctx, i, req)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	r.logger.Info("Batch finished", "jobs", len(reqs), "failed", failed)

	return results
}

func (r *Runner) runOne(ctx context.Context, i int, req input.RunRequest) (res input.BatchResult) {
	res.Request = req
	log := r.logger.WithFields(map[string]any{"job": i, "url": req.URL})

	defer func() {
		if p := recover(); p != nil {
			log.Error("Job panicked", "panic", p)
			res.Err = fmt.Errorf("job %d panicked: %v", i, p)
		}
	}()

	if err := ctx.Err(); err != nil {
		res.Err = fmt.Errorf("%w: %w", entity.ErrAborted, err)
		return res
	}

	session, err := r.open(ctx)
	if err != nil {
		log.Error("Failed to open session", "error", err)
		res.Err = fmt.Errorf("open session: %w", err)
		return res
	}
	if session.Release != nil {
		defer session.Release()
	}

	log.Info("Job started")
	res.Report, res.Err = session.Runner.Run(ctx, req)
	if res.Err != nil {
		log.Warn("Job failed", "error", res.Err)
	}
	return res
}
